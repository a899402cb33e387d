package geometry

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
)

// plate is a flat plate traversed from the trailing edge over the upper
// side to the leading edge and back along the lower side.
func plate(t *testing.T) *Airfoil {
	t.Helper()
	taps := []Tap{
		{ID: "1", Channel: "static_K02_1", S: 0.5, X: 0.5, Y: 0, NX: 0, NY: 1},
		{ID: "2", Channel: "static_K02_2", S: 1.0, X: 0, Y: 0, NX: -1, NY: 0},
		{ID: "3", Channel: "static_K02_3", S: 1.5, X: 0.5, Y: 0, NX: 0, NY: -1},
	}
	a, err := NewAirfoil("plate.dat", taps,
		Tap{ID: "virtual_top", S: 0, X: 1, Y: 0, NX: 0, NY: 1},
		Tap{ID: "virtual_bot", S: 2, X: 1, Y: 0, NX: 0, NY: -1},
	)
	require.NoError(t, err)
	return a
}

func TestNewAirfoil(t *testing.T) {
	a := plate(t)
	assert.Equal(t, []string{VirtualTopChannel, "static_K02_1", "static_K02_2", "static_K02_3", VirtualBottomChannel}, a.Channels())
	assert.Len(t, a.RealTaps(), 3)
	assert.Equal(t, []float64{0, 0.5, 1, 1.5, 2}, a.Arclength())
	assert.True(t, a.Taps[0].Virtual)
	assert.True(t, a.Taps[4].Virtual)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(a *Airfoil)
		wantErr error
	}{
		{"swapped arclength", func(a *Airfoil) { a.Taps[1].S, a.Taps[2].S = a.Taps[2].S, a.Taps[1].S }, ErrNonMonotonicArclength},
		{"repeated arclength", func(a *Airfoil) { a.Taps[2].S = a.Taps[1].S }, ErrNonMonotonicArclength},
		{"too few taps", func(a *Airfoil) { a.Taps = a.Taps[:2] }, ErrTooFewTaps},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := plate(t)
			tt.mutate(a)
			err := a.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.wantErr))
		})
	}

	a := plate(t)
	a.Taps[1].NX = 0.5
	assert.Error(t, a.Validate())

	a = plate(t)
	var tapErr *TapError
	a.Taps[3].S = 0.1
	require.True(t, errors.As(a.Validate(), &tapErr))
	assert.Equal(t, "3", tapErr.Tap)
}

func TestDeflect(t *testing.T) {
	a := plate(t)
	d := a.Deflect(Point{X: 0.8, Y: 0}, 90)

	assert.Equal(t, 90.0, d.FlapAngle)
	// trailing edge swings down to (0.8, -0.2), upper normal turns aft
	assert.InDelta(t, 0.8, d.Taps[0].X, 1e-12)
	assert.InDelta(t, -0.2, d.Taps[0].Y, 1e-12)
	assert.InDelta(t, 1, d.Taps[0].NX, 1e-12)
	assert.InDelta(t, 0, d.Taps[0].NY, 1e-12)
	// forward of the hinge nothing moves
	assert.Equal(t, a.Taps[1], d.Taps[1])
	// original untouched
	assert.Equal(t, 1.0, a.Taps[0].X)
	assert.Equal(t, a.Arclength(), d.Arclength())
	assert.InDelta(t, 1, math.Hypot(d.Taps[4].NX, d.Taps[4].NY), 1e-12)
}

type memPersister struct {
	stored *Airfoil
	saves  int
}

func (m *memPersister) Load(_ context.Context, source string) (*Airfoil, error) {
	if m.stored == nil || m.stored.Source != source {
		return nil, ErrNotPersisted
	}
	return m.stored, nil
}

func (m *memPersister) Save(_ context.Context, a *Airfoil) error {
	m.stored = a
	m.saves++
	return nil
}

func TestCache(t *testing.T) {
	var loads int32
	base := plate(t)
	loader := func(_ context.Context, source string) (*Airfoil, error) {
		atomic.AddInt32(&loads, 1)
		return base, nil
	}
	p := &memPersister{}
	c := NewCache(loader, p, &Point{X: 0.8}, nil)
	ctx := context.Background()

	a, err := c.Get(ctx, "plate.dat", 0)
	require.NoError(t, err)
	_, err = c.Get(ctx, "plate.dat", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&loads))
	assert.Equal(t, 1, p.saves)
	assert.Equal(t, base.Taps, a.Taps)

	// a flap angle change forces a rebuild and replaces the persisted layout
	d, err := c.Get(ctx, "plate.dat", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
	assert.Equal(t, 10.0, d.FlapAngle)
	assert.Equal(t, 10.0, p.stored.FlapAngle)

	// a fresh cache reuses the persisted layout when the angle matches
	c2 := NewCache(loader, p, &Point{X: 0.8}, nil)
	_, err = c2.Get(ctx, "plate.dat", 10)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&loads))
}

func TestCache_FlapAngleWithoutHinge(t *testing.T) {
	base := plate(t)
	loader := func(_ context.Context, source string) (*Airfoil, error) {
		return base, nil
	}
	p := &memPersister{}
	c := NewCache(loader, p, nil, nil)
	ctx := context.Background()

	a, err := c.Get(ctx, "plate.dat", 0)
	require.NoError(t, err)
	assert.Equal(t, base.Taps, a.Taps)

	_, err = c.Get(ctx, "plate.dat", 10)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoFlapHinge))
	assert.True(t, apperrors.Is(err, apperrors.ErrTypeConfig))
	assert.Equal(t, 0.0, p.stored.FlapAngle)
}

func TestFilePersister(t *testing.T) {
	p := &FilePersister{Dir: t.TempDir()}
	ctx := context.Background()

	_, err := p.Load(ctx, "/data/Messpunkte Demonstrator.csv")
	assert.True(t, errors.Is(err, ErrNotPersisted))

	a := plate(t)
	a.Source = "/data/Messpunkte Demonstrator.csv"
	require.NoError(t, p.Save(ctx, a))

	got, err := p.Load(ctx, a.Source)
	require.NoError(t, err)
	assert.Equal(t, a, got)
}
