// Package calibration removes per-channel static pressure offsets from a
// synchronized frame.
package calibration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// Stage marks a frame whose pressure offsets have been removed
const Stage = "calibration"

var (
	// ErrChannelMismatch means an offset record does not fit the frame's
	// pressure channels
	ErrChannelMismatch = errors.New("calibration channels do not match frame")
	// ErrAlreadyApplied is returned when a frame is calibrated twice
	ErrAlreadyApplied = errors.New("calibration already applied")
)

// Result is a calibrated frame together with the offsets that produced it
type Result struct {
	Frame   *timeseries.Frame
	Offsets *Offsets
	// ReferenceLength is the record's reference length, zero when the
	// record does not carry one.
	ReferenceLength float64
}

// Calibrator applies calibration strategies
type Calibrator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// NewCalibrator creates a calibrator persisting records through store
func NewCalibrator(store Store, logger *slog.Logger) *Calibrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calibrator{
		store:  store,
		logger: logger.With(slog.String("component", "calibrator")),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Apply subtracts offsets chosen by strategy from the pressure columns.
// Columns not listed in pressure are left untouched.
func (c *Calibrator) Apply(ctx context.Context, frame *timeseries.Frame, strategy Strategy, pressure []string) (*Result, error) {
	if frame.HasStage(Stage) {
		return nil, apperrors.NewCalibrationError("frame is already calibrated", ErrAlreadyApplied)
	}
	for _, ch := range pressure {
		if !frame.Has(ch) {
			return nil, apperrors.NewCalibrationError("pressure channel missing from frame", ErrChannelMismatch).
				WithContext("channel", ch)
		}
	}

	var (
		offsets *Offsets
		err     error
	)
	switch s := strategy.(type) {
	case FromFile:
		offsets, err = c.load(ctx, s.Path, pressure)
	case Manual:
		offsets, err = c.load(ctx, s.Path, pressure)
	case SelfCalibrate:
		offsets, err = c.selfCalibrate(ctx, frame, s, pressure)
	case nil:
		return nil, apperrors.NewConfigError("no calibration strategy", ErrUnknownStrategy)
	default:
		return nil, apperrors.NewConfigError(fmt.Sprintf("unsupported strategy %T", strategy), ErrUnknownStrategy)
	}
	if err != nil {
		return nil, err
	}

	out, err := subtract(frame, offsets)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "calibration applied",
		slog.String("strategy", string(strategy.Kind())),
		slog.String("run_id", offsets.RunID),
		slog.Int("channels", len(offsets.Channels)),
	)

	res := &Result{Frame: out, Offsets: offsets}
	if strategy.Kind() == KindFromFile {
		res.ReferenceLength = offsets.ReferenceLength
	}
	return res, nil
}

func (c *Calibrator) load(ctx context.Context, path string, pressure []string) (*Offsets, error) {
	if c.store == nil {
		return nil, apperrors.NewConfigError("no calibration store configured", nil)
	}
	rec, err := c.store.Load(ctx, path)
	if err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return nil, apperrors.NewCalibrationError("calibration record not found", err).
				WithContext("file", path)
		}
		return nil, apperrors.NewStorageError("load calibration record", err).
			WithContext("file", path)
	}
	if err := matchChannels(rec, pressure); err != nil {
		return nil, err.WithContext("file", path)
	}
	return rec, nil
}

// selfCalibrate assumes a quiescent, uniform pressure field during the
// window: each channel's offset is its window mean minus the mean of all
// channel means.
func (c *Calibrator) selfCalibrate(ctx context.Context, frame *timeseries.Frame, s SelfCalibrate, pressure []string) (*Offsets, error) {
	if len(pressure) == 0 {
		return nil, apperrors.NewCalibrationError("no pressure channels to calibrate", ErrChannelMismatch)
	}
	if frame.Len() == 0 {
		return nil, apperrors.NewCalibrationError("frame has no rows", nil)
	}
	window := s.Window
	if window <= 0 {
		window = DefaultSelfCalibrationWindow
	}

	start := frame.Index()[0]
	lo, hi := frame.Window(start, start.Add(window))
	if hi-lo == 0 {
		return nil, apperrors.NewCalibrationError("calibration window is empty", nil).
			WithContext("window", window.String())
	}

	means := make([]float64, len(pressure))
	for i, ch := range pressure {
		values, _ := frame.Column(ch)
		means[i] = stat.Mean(values[lo:hi], nil)
		if math.IsNaN(means[i]) || math.IsInf(means[i], 0) {
			return nil, apperrors.NewCalibrationError("non-finite mean in calibration window", nil).
				WithContext("channel", ch)
		}
	}
	grand := stat.Mean(means, nil)

	values := make([]float64, len(means))
	for i, m := range means {
		values[i] = m - grand
	}

	runID := s.SaveAs
	if runID == "" {
		runID = uuid.NewString()
	}
	rec := &Offsets{
		RunID:     runID,
		Channels:  append([]string(nil), pressure...),
		Values:    values,
		CreatedAt: c.now(),
	}

	if s.SaveAs != "" {
		if c.store == nil {
			return nil, apperrors.NewConfigError("no calibration store configured", nil)
		}
		if err := c.store.Save(ctx, s.SaveAs, rec); err != nil {
			return nil, apperrors.NewStorageError("persist calibration record", err).
				WithContext("file", s.SaveAs)
		}
		c.logger.DebugContext(ctx, "calibration record saved",
			slog.String("key", s.SaveAs),
			slog.Duration("window", window),
			slog.Int("rows", hi-lo),
		)
	}
	return rec, nil
}

func matchChannels(rec *Offsets, pressure []string) *apperrors.AppError {
	if len(rec.Channels) != len(pressure) {
		return apperrors.NewCalibrationError(
			fmt.Sprintf("record has %d channels, frame has %d pressure channels", len(rec.Channels), len(pressure)),
			ErrChannelMismatch)
	}
	want := make(map[string]struct{}, len(pressure))
	for _, ch := range pressure {
		want[ch] = struct{}{}
	}
	for _, ch := range rec.Channels {
		if _, ok := want[ch]; !ok {
			return apperrors.NewCalibrationError("record channel not among pressure channels", ErrChannelMismatch).
				WithContext("channel", ch)
		}
	}
	return nil
}

func subtract(frame *timeseries.Frame, offsets *Offsets) (*timeseries.Frame, error) {
	cols := make([]timeseries.Column, len(offsets.Channels))
	for i, ch := range offsets.Channels {
		values, err := frame.Lookup(ch)
		if err != nil {
			return nil, apperrors.NewCalibrationError("offset channel missing from frame", ErrChannelMismatch).
				WithContext("channel", ch)
		}
		out := make([]float64, len(values))
		off := offsets.Values[i]
		for r, v := range values {
			out[r] = v - off
		}
		cols[i] = timeseries.Column{Name: ch, Values: out}
	}

	replaced, err := frame.WithReplaced(cols...)
	if err != nil {
		return nil, apperrors.NewCalibrationError("apply offsets", err)
	}
	marked, err := replaced.WithStage(Stage)
	if err != nil {
		return nil, apperrors.NewCalibrationError("apply offsets", ErrAlreadyApplied)
	}
	return marked, nil
}
