package http

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/exporter"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
)

var validate = validator.New()

// ReductionRequest is the body of POST /api/v1/reductions
type ReductionRequest struct {
	Name     string            `json:"name" validate:"required,max=128"`
	Workbook string            `json:"workbook" validate:"required"`
	Targets  []segments.Target `json:"targets,omitempty" validate:"max=64"`
	Export   bool              `json:"export"`
}

// Bind implements render.Binder
func (req *ReductionRequest) Bind(r *http.Request) error {
	if err := validate.Struct(req); err != nil {
		return apperrors.NewValidationError("invalid reduction request", err)
	}
	return nil
}

// SettlingResponse is the body of GET /api/v1/reductions/{id}/settling
type SettlingResponse struct {
	Column  string                    `json:"column"`
	Target  segments.Target           `json:"target"`
	Samples []segments.SettlingSample `json:"samples"`
}

// ReductionHandler handles reduction HTTP requests
type ReductionHandler struct {
	service      ReductionService
	errorHandler *apperrors.ErrorHandler
	maxBodyBytes int64
	submit       func(http.Handler) http.Handler
	logger       *slog.Logger
}

// NewReductionHandler creates a new reduction handler. submit wraps the
// submission route and may be nil.
func NewReductionHandler(service ReductionService, maxBodyBytes int64, submit func(http.Handler) http.Handler, logger *slog.Logger) *ReductionHandler {
	return &ReductionHandler{
		service:      service,
		errorHandler: apperrors.NewErrorHandler(logger),
		maxBodyBytes: maxBodyBytes,
		submit:       submit,
		logger:       logger.With(slog.String("handler", "reductions")),
	}
}

// Routes returns the reduction routes
func (h *ReductionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.List)
	if h.submit != nil {
		r.With(h.submit).Post("/", h.Create)
	} else {
		r.Post("/", h.Create)
	}
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Get("/polar.csv", h.PolarCSV)
		r.Get("/settling", h.Settling)
	})

	return r
}

// Create handles POST /api/v1/reductions
func (h *ReductionHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h.maxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	}

	var req ReductionRequest
	if err := render.Bind(r, &req); err != nil {
		h.errorHandler.HandleError(w, r, asValidation(err))
		return
	}

	red, err := h.service.Reduce(r.Context(), services.Campaign{
		Name:     req.Name,
		Workbook: req.Workbook,
		Targets:  req.Targets,
		Export:   req.Export,
	})
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "reduction created",
		slog.String("reduction_id", red.ID),
		slog.String("campaign", red.Campaign))

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newReductionView(red))
}

// List handles GET /api/v1/reductions
func (h *ReductionHandler) List(w http.ResponseWriter, r *http.Request) {
	reds := h.service.List()
	out := make([]ReductionSummary, 0, len(reds))
	for _, red := range reds {
		out = append(out, ReductionSummary{
			ID:        red.ID,
			Campaign:  red.Campaign,
			CreatedAt: red.CreatedAt,
			Segments:  len(red.Result.Polar),
		})
	}
	render.JSON(w, r, out)
}

// Get handles GET /api/v1/reductions/{id}
func (h *ReductionHandler) Get(w http.ResponseWriter, r *http.Request) {
	red, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	render.JSON(w, r, newReductionView(red))
}

// PolarCSV handles GET /api/v1/reductions/{id}/polar.csv
func (h *ReductionHandler) PolarCSV(w http.ResponseWriter, r *http.Request) {
	red, err := h.service.Get(chi.URLParam(r, "id"))
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+red.Campaign+`_polar.csv"`)
	if err := exporter.WritePolarCSV(w, red.Result.Polar, h.service.Location()); err != nil {
		h.logger.ErrorContext(r.Context(), "polar export failed",
			slog.String("reduction_id", red.ID),
			slog.String("error", err.Error()))
	}
}

// Settling handles GET /api/v1/reductions/{id}/settling
func (h *ReductionHandler) Settling(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var target segments.Target
	var err error
	if target.Alpha, err = queryFloat(q.Get("alpha")); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("invalid alpha", err))
		return
	}
	if target.Re, err = queryFloat(q.Get("re")); err != nil {
		h.errorHandler.HandleError(w, r, apperrors.NewValidationError("invalid re", err))
		return
	}

	column := q.Get("column")
	samples, err := h.service.Settling(chi.URLParam(r, "id"), column, target)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}
	if column == "" {
		column = "cl"
	}
	render.JSON(w, r, SettlingResponse{Column: column, Target: target, Samples: samples})
}

func queryFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}

// asValidation reports malformed bodies as validation errors
func asValidation(err error) error {
	if apperrors.TypeOf(err) != "" {
		return err
	}
	return apperrors.NewValidationError("invalid request body", err)
}
