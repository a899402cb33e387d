package geometry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
)

var (
	// ErrNotPersisted is returned by a Persister holding no layout for a source
	ErrNotPersisted = errors.New("geometry not persisted")
	// ErrNoFlapHinge means a flap deflection was requested without a pivot
	ErrNoFlapHinge = errors.New("flap deflection requires a flap hinge")
)

// Key identifies one cached layout
type Key struct {
	Source    string
	FlapAngle float64
}

func (k Key) String() string {
	return k.Source + "@" + strconv.FormatFloat(k.FlapAngle, 'g', -1, 64)
}

// Loader builds the undeflected layout of a geometry source
type Loader func(ctx context.Context, source string) (*Airfoil, error)

// Persister keeps the most recently built layout of each source across
// runs. The stored layout records its flap angle; the cache treats a
// stored layout with a different angle as stale.
type Persister interface {
	Load(ctx context.Context, source string) (*Airfoil, error)
	Save(ctx context.Context, airfoil *Airfoil) error
}

// Cache memoizes layouts by (source, flap angle)
type Cache struct {
	loader    Loader
	persister Persister
	hinge     *Point
	logger    *slog.Logger

	mu      sync.RWMutex
	entries map[Key]*Airfoil
	group   singleflight.Group
}

// NewCache creates a cache. Flaps are deflected about hinge; without a hinge
// only undeflected layouts can be built. persister may be nil.
func NewCache(loader Loader, persister Persister, hinge *Point, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		loader:    loader,
		persister: persister,
		hinge:     hinge,
		logger:    logger.With(slog.String("component", "geometry_cache")),
		entries:   make(map[Key]*Airfoil),
	}
}

// Get returns the layout for source with the flap deflected by flapAngle
// degrees
func (c *Cache) Get(ctx context.Context, source string, flapAngle float64) (*Airfoil, error) {
	key := Key{Source: source, FlapAngle: flapAngle}

	c.mu.RLock()
	a, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		return a, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (interface{}, error) {
		return c.build(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Airfoil), nil
}

func (c *Cache) build(ctx context.Context, key Key) (*Airfoil, error) {
	if c.persister != nil {
		stored, err := c.persister.Load(ctx, key.Source)
		switch {
		case err == nil && stored.FlapAngle == key.FlapAngle:
			if verr := stored.Validate(); verr != nil {
				return nil, fmt.Errorf("persisted geometry %s: %w", key, verr)
			}
			c.store(key, stored)
			c.logger.DebugContext(ctx, "geometry loaded from persistence", slog.String("key", key.String()))
			return stored, nil
		case err == nil:
			c.logger.InfoContext(ctx, "persisted geometry has a different flap angle, rebuilding",
				slog.String("source", key.Source),
				slog.Float64("stored_flap_angle", stored.FlapAngle),
				slog.Float64("flap_angle", key.FlapAngle),
			)
		case !errors.Is(err, ErrNotPersisted):
			c.logger.WarnContext(ctx, "reading persisted geometry failed, rebuilding",
				slog.String("source", key.Source),
				slog.String("error", err.Error()),
			)
		}
	}

	base, err := c.loader(ctx, key.Source)
	if err != nil {
		return nil, fmt.Errorf("load geometry %s: %w", key.Source, err)
	}
	eta := key.FlapAngle - base.FlapAngle
	var hinge Point
	if eta != 0 {
		if c.hinge == nil {
			return nil, apperrors.NewConfigError("flap angle set but no flap hinge configured", ErrNoFlapHinge).
				WithContext("file", key.Source).
				WithContext("flap_angle", key.FlapAngle)
		}
		hinge = *c.hinge
	}
	a := base.Deflect(hinge, eta)
	if err := a.Validate(); err != nil {
		return nil, fmt.Errorf("geometry %s: %w", key, err)
	}

	if c.persister != nil {
		if err := c.persister.Save(ctx, a); err != nil {
			c.logger.WarnContext(ctx, "persisting geometry failed",
				slog.String("key", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	c.store(key, a)
	return a, nil
}

func (c *Cache) store(key Key, a *Airfoil) {
	c.mu.Lock()
	c.entries[key] = a
	c.mu.Unlock()
}

// FilePersister stores one JSON document per geometry source
type FilePersister struct {
	Dir string
}

func (p *FilePersister) path(source string) string {
	name := strings.TrimSuffix(filepath.Base(source), filepath.Ext(source))
	return filepath.Join(p.Dir, name+".geometry.json")
}

// Load reads the stored layout of source
func (p *FilePersister) Load(_ context.Context, source string) (*Airfoil, error) {
	data, err := os.ReadFile(p.path(source))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotPersisted
		}
		return nil, err
	}
	var a Airfoil
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode %s: %w", p.path(source), err)
	}
	return &a, nil
}

// Save replaces the stored layout of the airfoil's source
func (p *FilePersister) Save(_ context.Context, a *Airfoil) error {
	if err := os.MkdirAll(p.Dir, 0755); err != nil {
		return err
	}
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	return os.WriteFile(p.path(a.Source), data, 0644)
}
