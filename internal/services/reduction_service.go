package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/calibration"
	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/exporter"
	"github.com/geisspaul/MoProMa-Auswertung/internal/geometry"
	"github.com/geisspaul/MoProMa-Auswertung/internal/infrastructure"
	"github.com/geisspaul/MoProMa-Auswertung/internal/ingest"
	"github.com/geisspaul/MoProMa-Auswertung/internal/pipeline"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
)

// DefaultRetention is the number of reductions kept in memory
const DefaultRetention = 32

// Campaign names the inputs of one reduction
type Campaign struct {
	Name string `json:"name" validate:"required,max=128"`
	// Workbook is the segment definition, relative to the data directory
	Workbook string            `json:"workbook" validate:"required"`
	Targets  []segments.Target `json:"targets,omitempty" validate:"max=64"`
	// Export writes the polar, frame and workbook to the output directory
	Export bool `json:"export"`
}

// Reduction is a finished reduction
type Reduction struct {
	ID         string           `json:"id"`
	Campaign   string           `json:"campaign"`
	CreatedAt  time.Time        `json:"created_at"`
	FlapAngle  float64          `json:"flap_angle"`
	Recordings []string         `json:"recordings"`
	Outputs    []string         `json:"outputs,omitempty"`
	Result     *pipeline.Result `json:"-"`
}

// ReductionService runs campaigns and keeps their results
type ReductionService struct {
	cfg       *config.Config
	loc       *time.Location
	pipeline  *pipeline.Pipeline
	geometry  *geometry.Cache
	writer    *exporter.CSVWriter
	validate  *validator.Validate
	logger    *slog.Logger
	retention int
	now       func() time.Time

	mu         sync.RWMutex
	reductions map[string]*Reduction
	order      []string
}

// NewReductionService creates the service from a validated configuration.
// tracer and metrics may be nil.
func NewReductionService(cfg *config.Config, tracer trace.Tracer, metrics *infrastructure.PipelineMetrics, logger *slog.Logger) (*ReductionService, error) {
	logger = infrastructure.WithComponent(logger, "reduction_service")

	opts, err := pipeline.OptionsFromConfig(cfg.Reduction)
	if err != nil {
		return nil, err
	}

	calibrator := calibration.NewCalibrator(calibration.NewFileStore(cfg.Paths.CalibrationDir), logger)

	var persister geometry.Persister
	if cfg.Paths.GeometryCacheDir != "" {
		persister = &geometry.FilePersister{Dir: cfg.Paths.GeometryCacheDir}
	}
	cache := geometry.NewCache(ingest.TapLoader(cfg.Reduction.Chord), persister, cfg.Reduction.FlapHinge.Point(), logger)

	logger.Info("reduction service initialized",
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("calibration_dir", cfg.Paths.CalibrationDir),
		slog.String("output_dir", cfg.Paths.OutputDir),
		slog.Bool("wall_correction", cfg.Reduction.Wall.Enabled))

	return &ReductionService{
		cfg:        cfg,
		loc:        opts.Location,
		pipeline:   pipeline.New(opts, calibrator, tracer, metrics, logger),
		geometry:   cache,
		writer:     exporter.NewCSVWriter(cfg.Paths.OutputDir, logger),
		validate:   validator.New(),
		logger:     logger,
		retention:  DefaultRetention,
		now:        func() time.Time { return time.Now().UTC() },
		reductions: make(map[string]*Reduction),
	}, nil
}

// Reduce runs one campaign and stores the result
func (s *ReductionService) Reduce(ctx context.Context, c Campaign) (*Reduction, error) {
	if err := s.validate.Struct(c); err != nil {
		return nil, apperrors.NewValidationError("invalid campaign", err)
	}
	if !filepath.IsLocal(c.Workbook) {
		return nil, apperrors.NewValidationError("invalid workbook path", ErrInvalidPath).
			WithContext("file", c.Workbook)
	}
	workbook := s.dataPath(c.Workbook)

	logger := s.logger.With(slog.String("campaign", c.Name))
	logger.InfoContext(ctx, "reduction started", slog.String("workbook", workbook))

	def, err := segments.LoadDefinition(workbook, s.loc)
	if err != nil {
		return nil, err
	}

	req, err := s.request(ctx, def)
	if err != nil {
		return nil, err
	}
	req.Targets = c.Targets

	res, err := s.pipeline.Run(ctx, *req)
	if err != nil {
		return nil, err
	}

	red := &Reduction{
		ID:        uuid.NewString(),
		Campaign:  c.Name,
		CreatedAt: s.now(),
		FlapAngle: def.FlapAngle,
		Result:    res,
	}
	for _, rec := range def.Recordings {
		red.Recordings = append(red.Recordings, rec.Name)
	}

	if c.Export {
		outputs, err := s.export(c.Name, res)
		if err != nil {
			return nil, err
		}
		red.Outputs = outputs
	}

	s.store(red)
	logger.InfoContext(ctx, "reduction completed",
		slog.String("reduction_id", red.ID),
		slog.Int("segments", len(res.Polar)),
		slog.Int("rows", res.Frame.Len()))
	return red, nil
}

// request resolves the workbook's recordings into pipeline input
func (s *ReductionService) request(ctx context.Context, def *segments.Definition) (*pipeline.Request, error) {
	red := s.cfg.Reduction

	airfoil, err := s.geometry.Get(ctx, s.dataPath(red.TapTable), def.FlapAngle)
	if err != nil {
		return nil, err
	}

	req := &pipeline.Request{Airfoil: airfoil, Segments: def.Segments}

	if red.Wall.Enabled {
		if req.WallReference, err = ingest.LoadReferenceTable(s.dataPath(red.Wall.ReferenceTable)); err != nil {
			return nil, err
		}
	}

	for _, r := range def.Recordings {
		rec, err := s.recording(r)
		if err != nil {
			return nil, err
		}
		req.Recordings = append(req.Recordings, rec)
	}
	return req, nil
}

// recording loads the channel groups of one recording
func (s *ReductionService) recording(r segments.Recording) (pipeline.Recording, error) {
	red := s.cfg.Reduction
	rec := pipeline.Recording{Name: r.Name}

	strategy, err := strategyFor(r)
	if err != nil {
		return rec, apperrors.NewConfigError("invalid calibration type", err).WithContext("recording", r.Name)
	}
	rec.Calibration = strategy

	if red.OriginGroup != "" {
		origin, err := ingest.LoadChannelGroup(s.groupPath(r.Name, red.OriginGroup), red.OriginGroup)
		if err != nil {
			return rec, err
		}
		if origin.Len() == 0 {
			return rec, apperrors.NewDataQualityError("time origin group has no samples", nil).
				WithContext("series", red.OriginGroup).
				WithContext("recording", r.Name)
		}
		rec.Origin = origin.Start()
	}

	for _, g := range red.Groups {
		series, err := ingest.LoadChannelGroup(s.groupPath(r.Name, g.Name), g.Name)
		if err != nil {
			return rec, err
		}
		rec.Groups = append(rec.Groups, pipeline.Group{Series: series, Pressure: g.Pressure})
	}
	return rec, nil
}

// strategyFor maps a workbook calibration cell. "file" reads the record
// stored under the recording name, "20sec" stores its offsets under that
// name, "manual:<record>" applies a stored record. A bare record name is
// accepted as manual, anything else is an unknown strategy.
func strategyFor(r segments.Recording) (calibration.Strategy, error) {
	cell := strings.TrimSpace(r.Calibration)
	strategy, err := calibration.ParseStrategy(cell, r.Name)
	if errors.Is(err, calibration.ErrUnknownStrategy) && manualRecord(cell) {
		return calibration.Manual{Path: cell}, nil
	}
	return strategy, err
}

// manualRecord reports whether a bare calibration cell names a manual
// offsets record: a path, a file name or a legacy *_manual_calibration_data
// record
func manualRecord(cell string) bool {
	return strings.ContainsAny(cell, `/\`) ||
		filepath.Ext(cell) != "" ||
		strings.HasSuffix(cell, "_manual_calibration_data")
}

func (s *ReductionService) export(name string, res *pipeline.Result) ([]string, error) {
	polar, err := s.writer.ExportPolar(name+"_polar.csv", res.Polar, s.loc)
	if err != nil {
		return nil, err
	}
	frame, err := s.writer.ExportFrame(name+"_frame.csv", res.Frame, s.loc)
	if err != nil {
		return nil, err
	}
	workbook, err := s.writer.ExportWorkbook(name+"_polar.xlsx", exporter.Workbook{
		Polar:           res.Polar,
		Representatives: res.Representatives,
		Wall:            res.Wall,
		Location:        s.loc,
	})
	if err != nil {
		return nil, err
	}
	return []string{polar, frame, workbook}, nil
}

// Get returns a stored reduction
func (s *ReductionService) Get(id string) (*Reduction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	red, ok := s.reductions[id]
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrTypeNotFound, "reduction not found", ErrReductionNotFound).
			WithContext("id", id)
	}
	return red, nil
}

// List returns the stored reductions, newest first
func (s *ReductionService) List() []*Reduction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Reduction, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.reductions[s.order[i]])
	}
	return out
}

// Settling returns the running mean of column near target for a stored
// reduction, using the configured settling window
func (s *ReductionService) Settling(id, column string, target segments.Target) ([]segments.SettlingSample, error) {
	red, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if column == "" {
		column = aerodynamics.ColCl
	}
	return segments.Settling(red.Result.Frame, column, target, s.cfg.Reduction.Settling)
}

// Location is the zone exported times are written in
func (s *ReductionService) Location() *time.Location {
	return s.loc
}

func (s *ReductionService) store(red *Reduction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reductions[red.ID] = red
	s.order = append(s.order, red.ID)
	for len(s.order) > s.retention {
		delete(s.reductions, s.order[0])
		s.order = s.order[1:]
	}
}

func (s *ReductionService) groupPath(recording, group string) string {
	return filepath.Join(s.cfg.Paths.DataDir, fmt.Sprintf("%s_%s.csv", recording, group))
}

// dataPath places relative names in the data directory
func (s *ReductionService) dataPath(name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(s.cfg.Paths.DataDir, name)
}
