// Package pipeline runs a reduction: every recording is rebased, glitch
// filtered, synchronized and calibrated in parallel, the recordings are
// joined, and the joined frame passes the aerodynamic stages in a fixed
// order before it is reduced into polar points.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/sync/errgroup"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/calibration"
	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/synchronizer"
	"github.com/geisspaul/MoProMa-Auswertung/internal/timeseries"
)

// TracerName is the instrumentation scope of pipeline spans
const TracerName = "moproma.pipeline"

// Step IDs in execution order
const (
	StepPrepare         = "prepare"
	StepAirspeed        = aerodynamics.StageAirspeed
	StepPressure        = aerodynamics.StagePressureCoefficients
	StepAlphaCorrection = aerodynamics.StageAlphaCorrection
	StepSurface         = aerodynamics.StageSurfaceLoads
	StepWake            = aerodynamics.StageWakeDrag
	StepWall            = aerodynamics.StageWallCorrection
	StepSegments        = "segments"
)

// Options is the physical setup shared by all runs
type Options struct {
	Probe            aerodynamics.Probe
	PressurePatterns []string
	// Temperature is the air temperature in kelvin
	Temperature float64
	// Chord is the configured reference length in metres
	Chord          float64
	Hinges         aerodynamics.FlapHinges
	Rakes          aerodynamics.RakeLayout
	AlphaChannel   string
	SyncTolerance  time.Duration
	Location       *time.Location
	GlitchLower    float64
	GlitchUpper    float64
	WallLower      float64
	WallUpper      float64
	CorrectAlpha   bool
	WindOffSpeed   float64
	Representative segments.Tolerance
}

// OptionsFromConfig maps the reduction section of the configuration
func OptionsFromConfig(cfg config.ReductionConfig) (Options, error) {
	loc, err := cfg.Location()
	if err != nil {
		return Options{}, err
	}
	return Options{
		Probe:            aerodynamics.Probe{Static: cfg.ProbeStatic, Total: cfg.ProbeTotal},
		PressurePatterns: cfg.PressurePatterns,
		Temperature:      cfg.Temperature,
		Chord:            cfg.Chord,
		Hinges:           cfg.Hinges(),
		Rakes:            cfg.Rakes,
		AlphaChannel:     cfg.AlphaChannel,
		SyncTolerance:    cfg.SyncTolerance,
		Location:         loc,
		GlitchLower:      cfg.GlitchLower,
		GlitchUpper:      cfg.GlitchUpper,
		WallLower:        cfg.Wall.LowerDistance,
		WallUpper:        cfg.Wall.UpperDistance,
		CorrectAlpha:     cfg.Wall.CorrectAlpha,
		WindOffSpeed:     cfg.WindOffSpeed,
		Representative:   cfg.Representative,
	}, nil
}

// Pipeline runs reductions. It holds no per-run state and may serve
// concurrent runs.
type Pipeline struct {
	opts       Options
	calibrator *calibration.Calibrator
	sync       *synchronizer.Synchronizer
	aggregator *segments.Aggregator
	tracer     trace.Tracer
	metrics    *infrastructure.PipelineMetrics
	logger     *slog.Logger
}

// New creates a pipeline. A nil tracer disables spans, nil metrics disable
// recording.
func New(opts Options, calibrator *calibration.Calibrator, tracer trace.Tracer, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) *Pipeline {
	logger = infrastructure.WithComponent(logger, "pipeline")
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer(TracerName)
	}
	if opts.AlphaChannel == "" {
		opts.AlphaChannel = aerodynamics.ColAlpha
	}
	if opts.Representative == (segments.Tolerance{}) {
		opts.Representative = segments.DefaultRepresentativeTolerance
	}
	return &Pipeline{
		opts:       opts,
		calibrator: calibrator,
		sync:       synchronizer.New(synchronizer.Options{Tolerance: opts.SyncTolerance, Location: opts.Location}, logger),
		aggregator: segments.NewAggregator(segments.Options{WindOffSpeed: opts.WindOffSpeed}, logger),
		tracer:     tracer,
		metrics:    metrics,
		logger:     logger,
	}
}

// state is threaded through the steps of one run
type state struct {
	req     *Request
	frame   *timeseries.Frame
	result  *Result
	surface []string
}

func (s *state) recovered(kind string, n int) {
	if n > 0 {
		s.result.Recovered[kind] += n
	}
}

// step is one stage of a run
type step struct {
	id  string
	run func(ctx context.Context, st *state) error
}

// Run executes one reduction
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int("pipeline.recordings", len(req.Recordings)),
			attribute.Int("pipeline.segments", len(req.Segments)),
		),
	)
	defer span.End()

	res, err := p.run(ctx, &req)
	p.metrics.RecordRun(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.logger.ErrorContext(ctx, "reduction failed", slog.String("error", err.Error()))
		return nil, err
	}
	if res != nil {
		for kind, n := range res.Recovered {
			p.metrics.RecordRecovered(ctx, kind, n)
		}
	}
	return res, nil
}

func (p *Pipeline) run(ctx context.Context, req *Request) (*Result, error) {
	if err := p.validate(req); err != nil {
		return nil, err
	}

	st := &state{
		req: req,
		result: &Result{
			ReferenceLength: p.opts.Chord,
			Offsets:         make(map[string]*calibration.Offsets, len(req.Recordings)),
			Recovered:       make(map[string]int),
		},
		surface: req.Airfoil.Channels(),
	}

	wall := len(req.WallReference) > 0
	steps := []struct {
		step
		enabled bool
	}{
		{step{StepPrepare, p.prepare}, true},
		{step{StepAirspeed, p.airspeed}, true},
		{step{StepPressure, p.pressureCoefficients}, true},
		{step{StepAlphaCorrection, p.correctAlpha}, wall && p.opts.CorrectAlpha},
		{step{StepSurface, p.surfaceLoads}, true},
		{step{StepWake, p.wakeDrag}, true},
		{step{StepWall, p.wallCorrection}, wall},
		{step{StepSegments, p.reduceSegments}, true},
	}

	states := make([]*StepState, len(steps))
	for i, s := range steps {
		states[i] = NewStepState(s.id)
	}
	defer func() {
		st.result.Steps = make([]StepSummary, len(states))
		for i, s := range states {
			st.result.Steps[i] = s.Summary()
		}
	}()

	for i, s := range steps {
		if !s.enabled {
			states[i].Skip()
			continue
		}
		if err := ctx.Err(); err != nil {
			states[i].Fail(err)
			return nil, err
		}
		if err := p.execute(ctx, s.step, states[i], st); err != nil {
			return nil, err
		}
	}

	st.result.Frame = st.frame
	return st.result, nil
}

// execute runs one step inside its own span and records its metrics
func (p *Pipeline) execute(ctx context.Context, s step, ss *StepState, st *state) error {
	ctx, span := p.tracer.Start(ctx, fmt.Sprintf("pipeline.step.%s", s.id),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attribute.String("step.id", s.id)),
	)
	defer span.End()

	ss.Start()
	err := s.run(ctx, st)
	rows := 0
	if st.frame != nil {
		rows = st.frame.Len()
	}
	if err != nil {
		ss.Fail(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		ss.Complete(rows)
		span.SetAttributes(attribute.Int("step.rows", rows))
	}
	p.metrics.RecordStage(ctx, s.id, ss.Duration(), rows, err == nil)

	p.logger.DebugContext(ctx, "step finished",
		slog.String("step", s.id),
		slog.Duration("duration", ss.Duration()),
		slog.Int("rows", rows),
		slog.Bool("success", err == nil),
	)
	return err
}

func (p *Pipeline) validate(req *Request) error {
	if len(req.Recordings) == 0 {
		return apperrors.NewConfigError("reduction has no recordings", nil)
	}
	if req.Airfoil == nil {
		return apperrors.NewGeometryError("reduction has no airfoil geometry", nil)
	}
	if err := req.Airfoil.Validate(); err != nil {
		return apperrors.NewGeometryError("invalid airfoil geometry", err).WithContext("file", req.Airfoil.Source)
	}
	seen := make(map[string]bool, len(req.Recordings))
	for _, rec := range req.Recordings {
		if rec.Name == "" {
			return apperrors.NewConfigError("recording without name", nil)
		}
		if seen[rec.Name] {
			return apperrors.NewConfigError("recording listed twice", nil).WithContext("recording", rec.Name)
		}
		seen[rec.Name] = true
		if len(rec.Groups) == 0 {
			return apperrors.NewConfigError("recording has no channel groups", nil).WithContext("recording", rec.Name)
		}
		if rec.Calibration == nil {
			return apperrors.NewConfigError("recording has no calibration strategy", calibration.ErrUnknownStrategy).
				WithContext("recording", rec.Name)
		}
	}
	return nil
}

// prepared is the output of one recording's preparation
type prepared struct {
	frame           *timeseries.Frame
	offsets         *calibration.Offsets
	referenceLength float64
	glitches        int
	filled          int
}

// prepare synchronizes and calibrates each recording in parallel and joins
// the results in time order
func (p *Pipeline) prepare(ctx context.Context, st *state) error {
	out := make([]prepared, len(st.req.Recordings))
	g, gctx := errgroup.WithContext(ctx)
	for i := range st.req.Recordings {
		i, rec := i, st.req.Recordings[i]
		g.Go(func() error {
			pr, err := p.prepareRecording(gctx, rec)
			if err != nil {
				var ae *apperrors.AppError
				if errors.As(err, &ae) {
					return ae.WithContext("recording", rec.Name)
				}
				return fmt.Errorf("recording %s: %w", rec.Name, err)
			}
			out[i] = pr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	frames := make([]*timeseries.Frame, len(out))
	for i, pr := range out {
		name := st.req.Recordings[i].Name
		frames[i] = pr.frame
		st.result.Offsets[name] = pr.offsets
		st.recovered(infrastructure.RecoveredGlitch, pr.glitches)
		st.recovered(infrastructure.RecoveredSyncFill, pr.filled)
		if pr.referenceLength > 0 {
			p.adoptReferenceLength(ctx, st, name, pr.referenceLength)
		}
	}

	frame, err := timeseries.Concat(frames...)
	if err != nil {
		return apperrors.NewConfigError("recordings cannot be joined", err)
	}
	if p.opts.AlphaChannel != aerodynamics.ColAlpha {
		alpha, ok := frame.Column(p.opts.AlphaChannel)
		if !ok {
			return apperrors.NewDataQualityError("angle of attack channel missing", nil).
				WithContext("channel", p.opts.AlphaChannel)
		}
		frame, err = frame.WithColumns(timeseries.Column{Name: aerodynamics.ColAlpha, Values: alpha})
		if err != nil {
			return apperrors.NewConfigError("add alpha column", err).WithContext("channel", aerodynamics.ColAlpha)
		}
	}
	st.frame = frame
	return nil
}

// adoptReferenceLength lets a calibration record override the configured
// chord. The first record wins.
func (p *Pipeline) adoptReferenceLength(ctx context.Context, st *state, recording string, l float64) {
	current := st.result.ReferenceLength
	if current == l {
		return
	}
	if current != p.opts.Chord {
		p.logger.WarnContext(ctx, "calibration records disagree on reference length; keeping the first",
			slog.String("recording", recording),
			slog.Float64("reference_length", l),
			slog.Float64("kept", current))
		return
	}
	p.logger.WarnContext(ctx, "calibration record overrides reference length",
		slog.String("recording", recording),
		slog.Float64("configured", p.opts.Chord),
		slog.Float64("reference_length", l))
	st.result.ReferenceLength = l
}

func (p *Pipeline) prepareRecording(ctx context.Context, rec Recording) (prepared, error) {
	var pr prepared
	series := make([]*timeseries.Series, len(rec.Groups))
	var pressure []string
	for i, g := range rec.Groups {
		s := g.Series
		if s == nil {
			return pr, apperrors.NewConfigError("channel group without data", nil).WithContext("group", i)
		}
		if !rec.Origin.IsZero() {
			s = s.Rebase(rec.Origin)
		}
		if g.Pressure {
			var dropped int
			s, dropped = s.DropGlitches(p.opts.GlitchLower, p.opts.GlitchUpper)
			if dropped > 0 {
				p.logger.DebugContext(ctx, "glitch rows dropped",
					slog.String("recording", rec.Name),
					slog.String("series", s.Name),
					slog.Int("rows", dropped))
			}
			pr.glitches += dropped
			pressure = append(pressure, s.Channels...)
		}
		series[i] = s
	}

	frame, report, err := p.sync.Synchronize(ctx, series...)
	if err != nil {
		return pr, err
	}
	for _, n := range report.Filled {
		pr.filled += n
	}

	cal, err := p.calibrator.Apply(ctx, frame, rec.Calibration, pressure)
	if err != nil {
		return pr, err
	}
	pr.frame = cal.Frame
	pr.offsets = cal.Offsets
	pr.referenceLength = cal.ReferenceLength
	return pr, nil
}

func (p *Pipeline) airspeed(_ context.Context, st *state) error {
	out, err := aerodynamics.Airspeed{
		Probe:           p.opts.Probe,
		Temperature:     p.opts.Temperature,
		ReferenceLength: st.result.ReferenceLength,
	}.Apply(st.frame)
	if err != nil {
		return err
	}
	st.frame = out
	return nil
}

func (p *Pipeline) pressureCoefficients(ctx context.Context, st *state) error {
	out, replaced, err := aerodynamics.PressureCoefficients{
		Probe:    p.opts.Probe,
		Patterns: p.opts.PressurePatterns,
	}.Apply(st.frame)
	if err != nil {
		return err
	}
	if replaced > 0 {
		p.logger.DebugContext(ctx, "non-finite pressure coefficients set to zero", slog.Int("values", replaced))
	}
	st.recovered(infrastructure.RecoveredInfiniteCp, replaced)
	st.frame = out
	return nil
}

// wallCoefficients computes the correction once per run
func (p *Pipeline) wallCoefficients(ctx context.Context, st *state) (aerodynamics.WallCorrection, error) {
	if st.result.Wall != nil {
		return *st.result.Wall, nil
	}
	w, err := aerodynamics.ComputeWallCorrection(st.req.WallReference, st.result.ReferenceLength, p.opts.WallLower, p.opts.WallUpper)
	if err != nil {
		return w, err
	}
	p.logger.InfoContext(ctx, "wall correction computed",
		slog.Float64("lambda", w.Lambda),
		slog.Float64("sigma", w.Sigma),
		slog.Float64("xi", w.Xi))
	st.result.Wall = &w
	return w, nil
}

func (p *Pipeline) correctAlpha(ctx context.Context, st *state) error {
	w, err := p.wallCoefficients(ctx, st)
	if err != nil {
		return err
	}
	out, err := w.CorrectAngleOfAttack(st.frame)
	if err != nil {
		return err
	}
	st.frame = out
	return nil
}

func (p *Pipeline) surfaceLoads(_ context.Context, st *state) error {
	out, err := aerodynamics.SurfaceLoads{Airfoil: st.req.Airfoil, Hinges: p.opts.Hinges}.Apply(st.frame)
	if err != nil {
		return err
	}
	st.frame = out
	return nil
}

func (p *Pipeline) wakeDrag(_ context.Context, st *state) error {
	out, err := aerodynamics.WakeDrag{Layout: p.opts.Rakes, ReferenceLength: st.result.ReferenceLength}.Apply(st.frame)
	if err != nil {
		return err
	}
	st.frame = out
	return nil
}

func (p *Pipeline) wallCorrection(ctx context.Context, st *state) error {
	w, err := p.wallCoefficients(ctx, st)
	if err != nil {
		return err
	}
	if p.opts.Hinges.LeadingEdge == nil {
		// earlier evaluations skipped cl/cm correction without a leading-edge flap
		p.logger.WarnContext(ctx, "correcting cl and cm without a leading-edge flap; results differ from the legacy evaluation")
	}
	out, err := w.Apply(st.frame, st.surface)
	if err != nil {
		return err
	}
	st.frame = out
	return nil
}

func (p *Pipeline) reduceSegments(ctx context.Context, st *state) error {
	points, err := p.aggregator.Reduce(ctx, st.frame, st.req.Segments)
	if err != nil {
		return err
	}
	for _, pt := range points {
		if pt.Samples == 0 {
			st.recovered(infrastructure.RecoveredEmptyStat, 1)
		}
	}
	st.result.Polar = points

	for _, target := range st.req.Targets {
		r, err := segments.RepresentativeAt(st.frame, target, p.opts.Representative)
		if err != nil {
			return err
		}
		if r.Samples == 0 {
			p.logger.WarnContext(ctx, "no rows near target operating point",
				slog.Float64("alpha", target.Alpha),
				slog.Float64("re", target.Re))
		}
		st.result.Representatives = append(st.result.Representatives, r)
	}
	return nil
}
