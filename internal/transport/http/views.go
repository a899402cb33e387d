package http

import (
	"math"
	"time"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/pipeline"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
)

// JSON has no NaN; undefined statistics are rendered as null

// StatView is a mean and standard deviation
type StatView struct {
	Mean *float64 `json:"mean"`
	Std  *float64 `json:"std"`
}

// PolarPointView is one reduced segment
type PolarPointView struct {
	Label          string              `json:"label"`
	Start          time.Time           `json:"start"`
	End            time.Time           `json:"end"`
	Samples        int                 `json:"samples"`
	WindOffSamples int                 `json:"wind_off_samples"`
	Stats          map[string]StatView `json:"stats"`
}

// RepresentativeView is a representative reduction
type RepresentativeView struct {
	Target  segments.Target `json:"target"`
	Samples int             `json:"samples"`
	Alpha   *float64        `json:"alpha"`
	Cl      *float64        `json:"cl"`
	Cd      *float64        `json:"cd"`
	Cm      *float64        `json:"cm"`
}

// WallView holds the wall-correction coefficients
type WallView struct {
	Lambda       float64 `json:"lambda"`
	Sigma        float64 `json:"sigma"`
	Xi           float64 `json:"xi"`
	LiftFactor   float64 `json:"lift_factor"`
	MomentFactor float64 `json:"moment_factor"`
	AlphaFactor  float64 `json:"alpha_factor"`
}

// ReductionSummary is the list entry of a reduction
type ReductionSummary struct {
	ID        string    `json:"id"`
	Campaign  string    `json:"campaign"`
	CreatedAt time.Time `json:"created_at"`
	Segments  int       `json:"segments"`
}

// ReductionView is the full result of a reduction
type ReductionView struct {
	ID              string                 `json:"id"`
	Campaign        string                 `json:"campaign"`
	CreatedAt       time.Time              `json:"created_at"`
	FlapAngle       float64                `json:"flap_angle"`
	Recordings      []string               `json:"recordings"`
	Outputs         []string               `json:"outputs,omitempty"`
	ReferenceLength float64                `json:"reference_length"`
	Rows            int                    `json:"rows"`
	Stages          []string               `json:"stages,omitempty"`
	Wall            *WallView              `json:"wall_correction,omitempty"`
	Polar           []PolarPointView       `json:"polar"`
	Representatives []RepresentativeView   `json:"representatives,omitempty"`
	Recovered       map[string]int         `json:"recovered,omitempty"`
	Steps           []pipeline.StepSummary `json:"steps"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func newReductionView(red *services.Reduction) ReductionView {
	res := red.Result
	v := ReductionView{
		ID:              red.ID,
		Campaign:        red.Campaign,
		CreatedAt:       red.CreatedAt,
		FlapAngle:       red.FlapAngle,
		Recordings:      red.Recordings,
		Outputs:         red.Outputs,
		ReferenceLength: res.ReferenceLength,
		Recovered:       res.Recovered,
		Steps:           res.Steps,
		Polar:           make([]PolarPointView, len(res.Polar)),
	}
	if res.Frame != nil {
		v.Rows = res.Frame.Len()
		v.Stages = res.Frame.Stages()
	}
	if res.Wall != nil {
		v.Wall = newWallView(*res.Wall)
	}
	for i, p := range res.Polar {
		pv := PolarPointView{
			Label:          p.Label,
			Start:          p.Start,
			End:            p.End,
			Samples:        p.Samples,
			WindOffSamples: p.WindOffSamples,
			Stats:          make(map[string]StatView),
		}
		for _, ns := range p.Columns() {
			pv.Stats[ns.Name] = StatView{Mean: finite(ns.Stat.Mean), Std: finite(ns.Stat.Std)}
		}
		v.Polar[i] = pv
	}
	for _, r := range res.Representatives {
		v.Representatives = append(v.Representatives, RepresentativeView{
			Target:  r.Target,
			Samples: r.Samples,
			Alpha:   finite(r.Alpha),
			Cl:      finite(r.Cl),
			Cd:      finite(r.Cd),
			Cm:      finite(r.Cm),
		})
	}
	return v
}

func newWallView(w aerodynamics.WallCorrection) *WallView {
	return &WallView{
		Lambda:       w.Lambda,
		Sigma:        w.Sigma,
		Xi:           w.Xi,
		LiftFactor:   w.LiftFactor(),
		MomentFactor: w.MomentFactor(),
		AlphaFactor:  w.AlphaFactor(),
	}
}
