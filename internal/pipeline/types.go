package pipeline

import (
	"sync"
	"time"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/calibration"
	"github.com/geisspaul/MoProMa-Auswertung/internal/geometry"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Group is one channel group of a recording
type Group struct {
	Series *timeseries.Series
	// Pressure groups are glitch filtered and calibrated
	Pressure bool
}

// Recording is one captured run. Groups are synchronized in order onto the
// first group's timestamps.
type Recording struct {
	Name   string
	Groups []Group
	// Origin is the shared time origin the groups are rebased to; the zero
	// time keeps the instrument clocks.
	Origin      time.Time
	Calibration calibration.Strategy
}

// Request is the input of one reduction
type Request struct {
	Recordings []Recording
	Airfoil    *geometry.Airfoil
	Segments   []segments.Segment
	// WallReference enables the wall correction when not empty
	WallReference []aerodynamics.ReferencePoint
	// Targets request representative reductions at nominal operating points
	Targets []segments.Target
}

// Result is the output of one reduction
type Result struct {
	Frame           *timeseries.Frame
	Polar           []segments.PolarPoint
	Representatives []segments.Representative
	Wall            *aerodynamics.WallCorrection
	ReferenceLength float64
	Offsets         map[string]*calibration.Offsets
	Recovered       map[string]int
	Steps           []StepSummary
}

// StepStatus represents the current status of a step
type StepStatus string

const (
	StepStatusPending   StepStatus = "pending"
	StepStatusActive    StepStatus = "active"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepState represents the runtime state of a step
type StepState struct {
	mu        sync.RWMutex
	ID        string
	Status    StepStatus
	StartTime time.Time
	EndTime   time.Time
	Rows      int
	Err       error
}

// NewStepState creates a pending step state
func NewStepState(id string) *StepState {
	return &StepState{ID: id, Status: StepStatusPending}
}

// Start marks the step as active
func (s *StepState) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.StartTime = time.Now()
	s.Status = StepStatusActive
}

// Complete marks the step as completed
func (s *StepState) Complete(rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Status = StepStatusCompleted
	s.Rows = rows
}

// Fail marks the step as failed with the given error
func (s *StepState) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = time.Now()
	s.Status = StepStatusFailed
	s.Err = err
}

// Skip marks a step that did not run
func (s *StepState) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Status = StepStatusSkipped
}

// Duration returns how long the step ran
func (s *StepState) Duration() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.StartTime.IsZero() || s.EndTime.IsZero() {
		return 0
	}
	return s.EndTime.Sub(s.StartTime)
}

// Summary returns a copy safe to publish
func (s *StepState) Summary() StepSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := StepSummary{ID: s.ID, Status: s.Status, Rows: s.Rows}
	if !s.StartTime.IsZero() && !s.EndTime.IsZero() {
		sum.Duration = s.EndTime.Sub(s.StartTime)
	}
	if s.Err != nil {
		sum.Error = s.Err.Error()
	}
	return sum
}

// StepSummary is the published state of a step
type StepSummary struct {
	ID       string        `json:"id"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration_ns"`
	Rows     int           `json:"rows"`
	Error    string        `json:"error,omitempty"`
}
