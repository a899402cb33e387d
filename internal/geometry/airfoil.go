// Package geometry describes the pressure-tap layout around an airfoil
// contour and memoizes it per flap setting.
package geometry

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrNonMonotonicArclength means the taps are not ordered along the contour
	ErrNonMonotonicArclength = errors.New("tap arclength is not strictly increasing")
	// ErrTooFewTaps means the contour cannot be integrated
	ErrTooFewTaps = errors.New("airfoil needs at least one real tap between the virtual trailing-edge taps")
)

// Channel names of the synthetic trailing-edge taps
const (
	VirtualTopChannel    = "static_virtual_top"
	VirtualBottomChannel = "static_virtual_bot"
)

// Point is a position in chord-normalized airfoil coordinates
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Tap is one surface pressure measurement point. S is the arclength from
// the upper trailing edge normalized by the chord; (NX, NY) is the outward
// unit normal.
type Tap struct {
	ID      string  `json:"id"`
	Channel string  `json:"channel"`
	S       float64 `json:"s"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	NX      float64 `json:"nx"`
	NY      float64 `json:"ny"`
	Virtual bool    `json:"virtual,omitempty"`
}

// Airfoil is the ordered tap layout. The first and last taps are the
// virtual trailing-edge closure points.
type Airfoil struct {
	Source    string  `json:"source"`
	FlapAngle float64 `json:"flap_angle"`
	Taps      []Tap   `json:"taps"`
}

// NewAirfoil wraps real taps, ordered from the upper to the lower trailing
// edge, with the two virtual trailing-edge taps and validates the result.
// top and bottom give the contour closure at s=0 and s=contourLength.
func NewAirfoil(source string, taps []Tap, top, bottom Tap) (*Airfoil, error) {
	top.Virtual, bottom.Virtual = true, true
	if top.Channel == "" {
		top.Channel = VirtualTopChannel
	}
	if bottom.Channel == "" {
		bottom.Channel = VirtualBottomChannel
	}
	all := make([]Tap, 0, len(taps)+2)
	all = append(all, top)
	all = append(all, taps...)
	all = append(all, bottom)

	a := &Airfoil{Source: source, Taps: all}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}

// Validate checks the contour ordering and normal vectors
func (a *Airfoil) Validate() error {
	if len(a.Taps) < 3 {
		return ErrTooFewTaps
	}
	if !a.Taps[0].Virtual || !a.Taps[len(a.Taps)-1].Virtual {
		return errors.New("contour must start and end with a virtual trailing-edge tap")
	}
	seen := make(map[string]struct{}, len(a.Taps))
	for i, tp := range a.Taps {
		if i > 0 && !(tp.S > a.Taps[i-1].S) {
			return &TapError{Tap: tp.ID, Index: i, Err: ErrNonMonotonicArclength}
		}
		if _, dup := seen[tp.Channel]; dup {
			return &TapError{Tap: tp.ID, Index: i, Err: fmt.Errorf("channel %s assigned twice", tp.Channel)}
		}
		seen[tp.Channel] = struct{}{}
		norm := math.Hypot(tp.NX, tp.NY)
		if math.IsNaN(norm) || math.Abs(norm-1) > 1e-6 {
			return &TapError{Tap: tp.ID, Index: i, Err: fmt.Errorf("normal (%g, %g) is not a unit vector", tp.NX, tp.NY)}
		}
	}
	return nil
}

// TapError locates a geometry problem
type TapError struct {
	Tap   string
	Index int
	Err   error
}

func (e *TapError) Error() string {
	return fmt.Sprintf("tap %s (index %d): %v", e.Tap, e.Index, e.Err)
}

func (e *TapError) Unwrap() error { return e.Err }

// Channels returns the frame column of every tap, virtual taps included
func (a *Airfoil) Channels() []string {
	out := make([]string, len(a.Taps))
	for i, tp := range a.Taps {
		out[i] = tp.Channel
	}
	return out
}

// RealTaps returns the measured taps without the virtual closure points
func (a *Airfoil) RealTaps() []Tap {
	return a.Taps[1 : len(a.Taps)-1]
}

// Arclength returns the s coordinate of every tap
func (a *Airfoil) Arclength() []float64 {
	out := make([]float64, len(a.Taps))
	for i, tp := range a.Taps {
		out[i] = tp.S
	}
	return out
}

// Deflect returns a copy whose taps aft of the hinge are rotated by etaDeg
// about it. Positive angles deflect the flap trailing edge down. Arclength
// stays with the tap.
func (a *Airfoil) Deflect(hinge Point, etaDeg float64) *Airfoil {
	out := &Airfoil{
		Source:    a.Source,
		FlapAngle: a.FlapAngle + etaDeg,
		Taps:      append([]Tap(nil), a.Taps...),
	}
	if etaDeg == 0 {
		return out
	}
	theta := -etaDeg * math.Pi / 180
	sin, cos := math.Sincos(theta)
	for i := range out.Taps {
		tp := &out.Taps[i]
		if tp.X < hinge.X {
			continue
		}
		dx, dy := tp.X-hinge.X, tp.Y-hinge.Y
		tp.X = hinge.X + dx*cos - dy*sin
		tp.Y = hinge.Y + dx*sin + dy*cos
		tp.NX, tp.NY = tp.NX*cos-tp.NY*sin, tp.NX*sin+tp.NY*cos
	}
	return out
}
