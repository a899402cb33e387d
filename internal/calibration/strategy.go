package calibration

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrUnknownStrategy is returned for an unrecognized strategy identifier
var ErrUnknownStrategy = errors.New("unknown calibration strategy")

// Kind identifies a calibration strategy
type Kind string

const (
	KindFromFile      Kind = "file"
	KindSelfCalibrate Kind = "20sec"
	KindManual        Kind = "manual"
)

// DefaultSelfCalibrationWindow is the quiescent start-up window used to
// derive offsets
const DefaultSelfCalibrationWindow = 20 * time.Second

// Strategy is one of FromFile, SelfCalibrate or Manual. The set is closed;
// the unexported marker keeps other packages from adding variants.
type Strategy interface {
	Kind() Kind
	isStrategy()
}

// FromFile subtracts a previously recorded offset record, which may also
// carry the reference length of the model.
type FromFile struct {
	Path string
}

// SelfCalibrate derives offsets from the first Window of the run and
// persists them under SaveAs when set.
type SelfCalibrate struct {
	Window time.Duration
	SaveAs string
}

// Manual applies offsets persisted by SelfCalibrate on another run
type Manual struct {
	Path string
}

func (FromFile) Kind() Kind      { return KindFromFile }
func (SelfCalibrate) Kind() Kind { return KindSelfCalibrate }
func (Manual) Kind() Kind        { return KindManual }

func (FromFile) isStrategy()      {}
func (SelfCalibrate) isStrategy() {}
func (Manual) isStrategy()        {}

// ParseStrategy builds a strategy from its identifier. The path is the
// record to read for file and manual, and the record to write for 20sec.
// The form "manual:<path>" carries the path inline.
func ParseStrategy(kind, path string) (Strategy, error) {
	k := strings.TrimSpace(kind)
	if rest, ok := strings.CutPrefix(k, string(KindManual)+":"); ok {
		k, path = string(KindManual), strings.TrimSpace(rest)
	}

	switch Kind(k) {
	case KindFromFile:
		if path == "" {
			return nil, fmt.Errorf("%s calibration requires a record path", KindFromFile)
		}
		return FromFile{Path: path}, nil
	case KindSelfCalibrate:
		return SelfCalibrate{Window: DefaultSelfCalibrationWindow, SaveAs: path}, nil
	case KindManual:
		if path == "" {
			return nil, fmt.Errorf("%s calibration requires a record path", KindManual)
		}
		return Manual{Path: path}, nil
	default:
		return nil, fmt.Errorf("%w: %q (expected %s, %s or %s)",
			ErrUnknownStrategy, kind, KindFromFile, KindSelfCalibrate, KindManual)
	}
}
