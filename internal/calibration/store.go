package calibration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrRecordNotFound is returned when no offset record exists for a key
var ErrRecordNotFound = errors.New("calibration record not found")

// Offsets is the persisted calibration record: one additive offset per
// pressure channel, in frame column order, plus the reference length the
// record was taken with (zero when unknown).
type Offsets struct {
	RunID           string    `json:"run_id"`
	Channels        []string  `json:"channels"`
	Values          []float64 `json:"values"`
	ReferenceLength float64   `json:"reference_length,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Validate checks that every channel has exactly one offset
func (o *Offsets) Validate() error {
	if len(o.Channels) != len(o.Values) {
		return fmt.Errorf("record %s: %d channels but %d offsets", o.RunID, len(o.Channels), len(o.Values))
	}
	seen := make(map[string]struct{}, len(o.Channels))
	for _, ch := range o.Channels {
		if _, dup := seen[ch]; dup {
			return fmt.Errorf("record %s: channel %s listed twice", o.RunID, ch)
		}
		seen[ch] = struct{}{}
	}
	return nil
}

// Store persists offset records keyed by run identifier or path
type Store interface {
	Load(ctx context.Context, key string) (*Offsets, error)
	Save(ctx context.Context, key string, offsets *Offsets) error
}

// FileStore keeps one JSON document per record. Relative keys resolve
// against Dir; a missing extension defaults to .json.
type FileStore struct {
	Dir string
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Path returns the file backing a key
func (s *FileStore) Path(key string) string {
	p := key
	if filepath.Ext(p) == "" {
		p += ".json"
	}
	if !filepath.IsAbs(p) {
		p = filepath.Join(s.Dir, p)
	}
	return p
}

// Load reads a record
func (s *FileStore) Load(ctx context.Context, key string) (*Offsets, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := s.Path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrRecordNotFound, path)
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var rec Offsets
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if err := rec.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &rec, nil
}

// Save writes a record atomically
func (s *FileStore) Save(ctx context.Context, key string, offsets *Offsets) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := offsets.Validate(); err != nil {
		return err
	}
	path := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create calibration directory: %w", err)
	}

	data, err := json.MarshalIndent(offsets, "", "  ")
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
