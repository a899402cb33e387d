package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geisspaul/MoProMa-Auswertung/internal/aerodynamics"
	"github.com/geisspaul/MoProMa-Auswertung/internal/config"
	apperrors "github.com/geisspaul/MoProMa-Auswertung/internal/errors"
	"github.com/geisspaul/MoProMa-Auswertung/internal/pipeline"
	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
)

type fakeService struct {
	reductions map[string]*services.Reduction
	campaign   services.Campaign
	reduceErr  error
	settling   segments.Target
}

func newFakeService() *fakeService {
	return &fakeService{reductions: map[string]*services.Reduction{"r1": testReduction("r1")}}
}

func (f *fakeService) Reduce(_ context.Context, c services.Campaign) (*services.Reduction, error) {
	f.campaign = c
	if f.reduceErr != nil {
		return nil, f.reduceErr
	}
	red := testReduction("r2")
	red.Campaign = c.Name
	f.reductions[red.ID] = red
	return red, nil
}

func (f *fakeService) Get(id string) (*services.Reduction, error) {
	red, ok := f.reductions[id]
	if !ok {
		return nil, apperrors.NewAppError(apperrors.ErrTypeNotFound, "reduction not found", services.ErrReductionNotFound)
	}
	return red, nil
}

func (f *fakeService) List() []*services.Reduction {
	var out []*services.Reduction
	for _, red := range f.reductions {
		out = append(out, red)
	}
	return out
}

func (f *fakeService) Settling(id, column string, target segments.Target) ([]segments.SettlingSample, error) {
	if _, err := f.Get(id); err != nil {
		return nil, err
	}
	f.settling = target
	return []segments.SettlingSample{{Time: time.Date(2024, 6, 18, 10, 0, 0, 0, time.UTC), Mean: 0.5}}, nil
}

func (f *fakeService) Location() *time.Location { return time.UTC }

func testReduction(id string) *services.Reduction {
	start := time.Date(2024, 6, 18, 10, 0, 0, 0, time.UTC)
	return &services.Reduction{
		ID:         id,
		Campaign:   "flap0",
		CreatedAt:  start,
		Recordings: []string{"rec1"},
		Result: &pipeline.Result{
			ReferenceLength: 0.5,
			Wall:            &aerodynamics.WallCorrection{Lambda: 0.1, Sigma: 0.01, Xi: 0.02},
			Polar: []segments.PolarPoint{
				{Label: "alpha4", Start: start, End: start.Add(10 * time.Second), Samples: 100,
					Alpha: segments.Stat{Mean: 4}, Cl: segments.Stat{Mean: 0.5, Std: 0.01}},
				{Label: "empty", Start: start.Add(time.Minute), End: start.Add(2 * time.Minute),
					Cl: segments.Stat{Mean: math.NaN(), Std: math.NaN()}},
			},
			Representatives: []segments.Representative{
				{Target: segments.Target{Alpha: 4, Re: 1e6}, Samples: 0, Alpha: math.NaN(), Cl: math.NaN(), Cd: math.NaN(), Cm: math.NaN()},
			},
		},
	}
}

func newTestRouter(svc ReductionService, server config.ServerConfig) http.Handler {
	logger := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	return NewRouter(RouterConfig{
		Service: svc,
		Server:  server,
		Version: "test",
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# metrics\n"))
		}),
		Logger: logger,
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func TestHealthCheck(t *testing.T) {
	rec := serve(newTestRouter(newFakeService(), config.ServerConfig{}), http.MethodGet, "/api/health", "")

	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, float64(1), body["reductions"])
	assert.NotEmpty(t, rec.Header().Get("X-Trace-ID"))
}

func TestCreateReduction(t *testing.T) {
	svc := newFakeService()
	h := newTestRouter(svc, config.ServerConfig{MaxBodyBytes: 1 << 20})

	rec := serve(h, http.MethodPost, "/api/v1/reductions",
		`{"name":"flap10","workbook":"segments.xlsx","targets":[{"alpha":4,"re":1000000}],"export":true}`)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, services.Campaign{
		Name:     "flap10",
		Workbook: "segments.xlsx",
		Targets:  []segments.Target{{Alpha: 4, Re: 1e6}},
		Export:   true,
	}, svc.campaign)

	body := decode(t, rec)
	assert.Equal(t, "r2", body["id"])
	assert.Equal(t, "flap10", body["campaign"])

	polar := body["polar"].([]interface{})
	require.Len(t, polar, 2)
	stats := polar[0].(map[string]interface{})["stats"].(map[string]interface{})
	assert.Equal(t, 0.5, stats["cl"].(map[string]interface{})["mean"])
	empty := polar[1].(map[string]interface{})["stats"].(map[string]interface{})
	assert.Nil(t, empty["cl"].(map[string]interface{})["mean"])

	rep := body["representatives"].([]interface{})[0].(map[string]interface{})
	assert.Nil(t, rep["cl"])

	wall := body["wall_correction"].(map[string]interface{})
	assert.Equal(t, 0.1, wall["lambda"])
}

func TestCreateReduction_Errors(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		reduceErr error
		maxBytes  int64
		status    int
	}{
		{name: "malformed json", body: `{"name":`, status: http.StatusBadRequest},
		{name: "missing name", body: `{"workbook":"w.xlsx"}`, status: http.StatusBadRequest},
		{name: "body too large", body: `{"name":"flap10","workbook":"segments.xlsx"}`, maxBytes: 8, status: http.StatusBadRequest},
		{
			name:      "service failure",
			body:      `{"name":"flap10","workbook":"w.xlsx"}`,
			reduceErr: apperrors.NewSyncError("no overlap", nil),
			status:    http.StatusUnprocessableEntity,
		},
		{
			name:      "cancelled",
			body:      `{"name":"flap10","workbook":"w.xlsx"}`,
			reduceErr: context.DeadlineExceeded,
			status:    http.StatusGatewayTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			svc.reduceErr = tt.reduceErr
			h := newTestRouter(svc, config.ServerConfig{MaxBodyBytes: tt.maxBytes})

			rec := serve(h, http.MethodPost, "/api/v1/reductions", tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")
		})
	}
}

func TestCreateReduction_RateLimited(t *testing.T) {
	h := newTestRouter(newFakeService(), config.ServerConfig{
		RateLimit: config.RateLimitConfig{Enabled: true, RPS: 0.1, Burst: 1},
	})
	body := `{"name":"flap10","workbook":"w.xlsx"}`

	assert.Equal(t, http.StatusCreated, serve(h, http.MethodPost, "/api/v1/reductions", body).Code)
	rec := serve(h, http.MethodPost, "/api/v1/reductions", body)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "10", rec.Header().Get("Retry-After"))

	// reads are not limited
	assert.Equal(t, http.StatusOK, serve(h, http.MethodGet, "/api/v1/reductions", "").Code)
}

func TestListReductions(t *testing.T) {
	rec := serve(newTestRouter(newFakeService(), config.ServerConfig{}), http.MethodGet, "/api/v1/reductions", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var list []ReductionSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "r1", list[0].ID)
	assert.Equal(t, 2, list[0].Segments)
}

func TestGetReduction(t *testing.T) {
	h := newTestRouter(newFakeService(), config.ServerConfig{})

	rec := serve(h, http.MethodGet, "/api/v1/reductions/r1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "r1", decode(t, rec)["id"])

	rec = serve(h, http.MethodGet, "/api/v1/reductions/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", decode(t, rec)["error_code"])
}

func TestPolarCSV(t *testing.T) {
	rec := serve(newTestRouter(newFakeService(), config.ServerConfig{}), http.MethodGet, "/api/v1/reductions/r1/polar.csv", "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "flap0_polar.csv")

	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "label,start,end,samples,wind_off_samples,"))
	assert.True(t, strings.HasPrefix(lines[1], "alpha4,2024-06-18T10:00:00Z,"))
}

func TestSettling(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		status int
		target segments.Target
	}{
		{name: "target", path: "/api/v1/reductions/r1/settling?column=cd&alpha=4&re=1e6", status: http.StatusOK, target: segments.Target{Alpha: 4, Re: 1e6}},
		{name: "defaults", path: "/api/v1/reductions/r1/settling", status: http.StatusOK},
		{name: "invalid alpha", path: "/api/v1/reductions/r1/settling?alpha=x", status: http.StatusBadRequest},
		{name: "invalid re", path: "/api/v1/reductions/r1/settling?re=x", status: http.StatusBadRequest},
		{name: "unknown reduction", path: "/api/v1/reductions/nope/settling", status: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newFakeService()
			rec := serve(newTestRouter(svc, config.ServerConfig{}), http.MethodGet, tt.path, "")

			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.status != http.StatusOK {
				return
			}
			assert.Equal(t, tt.target, svc.settling)
			var resp SettlingResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Len(t, resp.Samples, 1)
			assert.NotEmpty(t, resp.Column)
		})
	}
}

func TestUnknownRouteAndMetrics(t *testing.T) {
	h := newTestRouter(newFakeService(), config.ServerConfig{})

	rec := serve(h, http.MethodGet, "/api/v1/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

	rec = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "# metrics\n", rec.Body.String())
}
