package aerodynamics

import (
	"math"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Atmosphere constants
const (
	// RhoISA is the sea-level density of the International Standard Atmosphere
	RhoISA = 1.225
	// GasConstantAir is the specific gas constant of dry air in J/(kg K)
	GasConstantAir = 287.0500676
)

// Viscosity returns the dynamic viscosity of air at temperature T in kelvin
// (Sutherland's law)
func Viscosity(T float64) float64 {
	return 1.458e-6 * math.Pow(T, 1.5) / (T + 110.4)
}

// Airspeed derives calibrated and true airspeed and the Reynolds number
// from the reference probe
type Airspeed struct {
	Probe           Probe
	Temperature     float64
	ReferenceLength float64
}

// Apply adds U_CAS, U_TAS and Re. A negative dynamic pressure leaves U_CAS
// undefined (NaN); U_TAS uses its magnitude.
func (a Airspeed) Apply(f *timeseries.Frame) (*timeseries.Frame, error) {
	if err := refuseRepeat(f, StageAirspeed); err != nil {
		return nil, err
	}
	if a.Temperature <= 0 {
		return nil, apperrors.NewConfigError("air temperature must be positive kelvin", nil).
			WithContext("temperature", a.Temperature)
	}
	if a.ReferenceLength <= 0 {
		return nil, apperrors.NewConfigError("reference length must be positive", nil).
			WithContext("reference_length", a.ReferenceLength)
	}
	ptot, err := lookup(f, a.Probe.Total)
	if err != nil {
		return nil, err
	}
	pstat, err := lookup(f, a.Probe.Static)
	if err != nil {
		return nil, err
	}

	mu := Viscosity(a.Temperature)
	n := f.Len()
	cas := make([]float64, n)
	tas := make([]float64, n)
	re := make([]float64, n)
	for i := 0; i < n; i++ {
		dp := ptot[i] - pstat[i]
		cas[i] = math.Sqrt(2 * dp / RhoISA)
		rho := pstat[i] / (GasConstantAir * a.Temperature)
		tas[i] = math.Sqrt(math.Abs(2 * dp / rho))
		re[i] = tas[i] * a.ReferenceLength * rho / mu
	}

	out, err := f.WithColumns(
		timeseries.Column{Name: ColUCAS, Values: cas},
		timeseries.Column{Name: ColUTAS, Values: tas},
		timeseries.Column{Name: ColRe, Values: re},
	)
	if err != nil {
		return nil, apperrors.NewConfigError("add airspeed columns", err)
	}
	return mark(out, StageAirspeed)
}
