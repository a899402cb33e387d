package aerodynamics

import (
	"errors"
	"fmt"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Derived column names
const (
	ColAlpha = "alpha"
	ColUCAS  = "U_CAS"
	ColUTAS  = "U_TAS"
	ColRe    = "Re"
	ColCl    = "cl"
	ColCdp   = "cdp"
	ColCm    = "cm"
	ColCd    = "cd"
	ColCmrLE = "cmr_LE"
	ColCmrTE = "cmr_TE"
)

// Stage markers
const (
	StageAirspeed             = "airspeed"
	StagePressureCoefficients = "pressure_coefficients"
	StageAlphaCorrection      = "alpha_wall_correction"
	StageSurfaceLoads         = "surface_loads"
	StageWakeDrag             = "wake_drag"
	StageWallCorrection       = "wall_correction"
)

var (
	// ErrAlreadyApplied is returned when a transform would run twice
	ErrAlreadyApplied = errors.New("transform already applied")
	// ErrMissingPrerequisite is returned when a transform runs before the
	// stage it depends on
	ErrMissingPrerequisite = errors.New("prerequisite stage missing")
	// ErrChannelMismatch means the frame lacks a channel the sensor layout expects
	ErrChannelMismatch = errors.New("channel missing for sensor layout")
)

// Probe names the reference Prandtl probe channels
type Probe struct {
	Static string `yaml:"static" json:"static" validate:"required"`
	Total  string `yaml:"total" json:"total" validate:"required"`
}

// DefaultProbe is the probe layout of the car-borne test rig
var DefaultProbe = Probe{Static: "static_K04_31", Total: "ptot_rake_3"}

func requireStage(f *timeseries.Frame, stage, prerequisite string) error {
	if !f.HasStage(prerequisite) {
		return apperrors.NewConfigError(
			fmt.Sprintf("%s requires %s", stage, prerequisite), ErrMissingPrerequisite).
			WithContext("stage", stage)
	}
	return nil
}

func refuseRepeat(f *timeseries.Frame, stage string) error {
	if f.HasStage(stage) {
		return apperrors.NewConfigError(fmt.Sprintf("%s already applied", stage), ErrAlreadyApplied).
			WithContext("stage", stage)
	}
	return nil
}

func lookup(f *timeseries.Frame, channel string) ([]float64, error) {
	v, err := f.Lookup(channel)
	if err != nil {
		return nil, apperrors.NewDataQualityError("required channel missing", ErrChannelMismatch).
			WithContext("channel", channel)
	}
	return v, nil
}

func mark(f *timeseries.Frame, stage string) (*timeseries.Frame, error) {
	out, err := f.WithStage(stage)
	if err != nil {
		return nil, apperrors.NewConfigError(fmt.Sprintf("%s already applied", stage), ErrAlreadyApplied).
			WithContext("stage", stage)
	}
	return out, nil
}
