// Package httpapi is the thin outer surface for the six-plus exposed
// entry points of spec.md §6 (run_farm_analysis, analyze_field,
// get_analysis_trends, evaluate_alerts, acknowledge_alert/resolve_alert,
// plan_precision, export_plan_pdf). Handlers decode, run go-playground/
// validator struct-tag validation, call straight into the core, and
// translate errkind.Kind into an HTTP status, following DemeterEye's
// api/router.go chi+cors wiring and handlers_fields.go's decode/
// validate/call/encode handler shape (minus its auth middleware, which
// has no counterpart in this domain).
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/demeterfield/pipeline/internal/alerts"
	"github.com/demeterfield/pipeline/internal/analysis"
	"github.com/demeterfield/pipeline/internal/errkind"
	"github.com/demeterfield/pipeline/internal/export"
	"github.com/demeterfield/pipeline/internal/models"
	"github.com/demeterfield/pipeline/internal/orchestrator"
	"github.com/demeterfield/pipeline/internal/planner"
	"github.com/demeterfield/pipeline/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/rs/zerolog"
)

// Server wires the core engines behind chi handlers.
type Server struct {
	orchestrator *orchestrator.Orchestrator
	engine       *analysis.Engine
	alertEng     *alerts.Engine
	plan         *planner.Planner
	store        store.PersistenceStore
	validate     *validator.Validate
	log          zerolog.Logger
}

func New(o *orchestrator.Orchestrator, engine *analysis.Engine, alertEng *alerts.Engine, p *planner.Planner, persistence store.PersistenceStore, log zerolog.Logger) *Server {
	return &Server{
		orchestrator: o, engine: engine, alertEng: alertEng, plan: p, store: persistence,
		validate: validator.New(),
		log:      log.With().Str("component", "httpapi").Logger(),
	}
}

// decodeAndValidate decodes the request body into dst and runs struct
// tag validation, writing the appropriate 400 response on either
// failure so handlers don't have to repeat the boilerplate.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
			return false
		}
	}
	if err := s.validate.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return false
	}
	return true
}

// Routes builds the chi router, mirroring DemeterEye's routes()
// shape: CORS middleware, an OpenAPI document served at a fixed path,
// a swagger-ui mount, then the versioned API tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/api/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=60")
		_, _ = w.Write(openapiYAML)
	})
	r.Mount("/swagger", httpSwagger.Handler(httpSwagger.URL("/api/openapi.yaml")))

	r.Route("/api", func(api chi.Router) {
		api.Post("/farms/{farmId}/analyze", s.handleRunFarmAnalysis)
		api.Post("/fields/analyze", s.handleAnalyzeField)
		api.Get("/fields/{fieldId}/trends", s.handleGetAnalysisTrends)
		api.Post("/farms/{farmId}/alerts/evaluate", s.handleEvaluateAlerts)
		api.Post("/alerts/{id}/acknowledge", s.handleAcknowledgeAlert)
		api.Post("/alerts/{id}/resolve", s.handleResolveAlert)
		api.Post("/alerts/{id}/false-positive", s.handleFalsePositiveAlert)
		api.Post("/plans", s.handlePlanPrecision)
		api.Get("/plans/{farmId}/{fieldId}/{season}/pdf", s.handleExportPlanPDF)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an errkind.Kind to the HTTP status spec.md §7's
// error-handling table implies — invalid input is a client error,
// not-found is 404, everything else transient/provider-side is 502/504.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errkind.Is(err, errkind.InvalidInput):
		status = http.StatusBadRequest
	case errkind.Is(err, errkind.NotFound):
		status = http.StatusNotFound
	case errkind.Is(err, errkind.Timeout):
		status = http.StatusGatewayTimeout
	case errkind.Is(err, errkind.Cancelled):
		status = http.StatusRequestTimeout
	case errkind.Is(err, errkind.ImageryUnavailable), errkind.Is(err, errkind.WeatherUnavailable), errkind.Is(err, errkind.Unavailable), errkind.Is(err, errkind.Transient):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseDate(s string, fallback time.Time) time.Time {
	if s == "" {
		return fallback
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t
	}
	return fallback
}

type runFarmAnalysisReq struct {
	AnalysisDate string `json:"analysisDate,omitempty"`
	CropType     string `json:"cropType,omitempty"`
	Season       string `json:"season,omitempty"`
	Concurrency  int    `json:"concurrency,omitempty"`
}

func (s *Server) handleRunFarmAnalysis(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	var req runFarmAnalysisReq
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad json"})
			return
		}
	}

	bundle, err := s.orchestrator.RunFarmAnalysis(r.Context(), farmID, orchestrator.Options{
		AnalysisDate: parseDate(req.AnalysisDate, time.Now().UTC()),
		CropType:     req.CropType,
		Season:       req.Season,
		Concurrency:  req.Concurrency,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bundle)
}

type analyzeFieldReq struct {
	Field        models.FieldBoundary `json:"field" validate:"required"`
	AnalysisDate string               `json:"analysisDate,omitempty"`
}

func (s *Server) handleAnalyzeField(w http.ResponseWriter, r *http.Request) {
	var req analyzeFieldReq
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := s.engine.AnalyzeField(r.Context(), req.Field, parseDate(req.AnalysisDate, time.Now().UTC()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleGetAnalysisTrends(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "fieldId")
	q := r.URL.Query()
	start := parseDate(q.Get("startDate"), time.Now().AddDate(0, -6, 0))
	end := parseDate(q.Get("endDate"), time.Now())

	series, err := s.engine.GetAnalysisTrends(r.Context(), fieldID, start, end)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, series)
}

type evaluateAlertsReq struct {
	Analyses []models.AnalysisResult          `json:"analyses" validate:"required,min=1"`
	Weather  map[string]alerts.WeatherContext `json:"weatherContext,omitempty"`
}

func (s *Server) handleEvaluateAlerts(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	var req evaluateAlertsReq
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	out, err := s.alertEng.Evaluate(r.Context(), farmID, req.Analyses, req.Weather)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

type alertActionReq struct {
	User string `json:"user" validate:"required"`
	Note string `json:"note,omitempty"`
}

func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	s.handleAlertTransition(w, r, func(ctx context.Context, id, user, _ string) (models.Alert, error) {
		return s.alertEng.Acknowledge(ctx, id, user)
	})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	s.handleAlertTransition(w, r, s.alertEng.Resolve)
}

func (s *Server) handleFalsePositiveAlert(w http.ResponseWriter, r *http.Request) {
	s.handleAlertTransition(w, r, s.alertEng.MarkFalsePositive)
}

func (s *Server) handleAlertTransition(w http.ResponseWriter, r *http.Request, transition func(ctx context.Context, id, user, note string) (models.Alert, error)) {
	id := chi.URLParam(r, "id")
	var req alertActionReq
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	alert, err := transition(r.Context(), id, req.User, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type planPrecisionReq struct {
	AnalysisResult models.AnalysisResult `json:"analysisResult" validate:"required"`
	CropType       string                `json:"cropType" validate:"required"`
	Season         string                `json:"season" validate:"required"`
}

func (s *Server) handlePlanPrecision(w http.ResponseWriter, r *http.Request) {
	var req planPrecisionReq
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	p := s.plan.Plan(req.AnalysisResult, req.CropType, req.Season)
	if err := s.store.UpsertPlan(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleExportPlanPDF(w http.ResponseWriter, r *http.Request) {
	farmID := chi.URLParam(r, "farmId")
	fieldID := chi.URLParam(r, "fieldId")
	season := chi.URLParam(r, "season")

	p, err := s.store.GetPlan(r.Context(), farmID, fieldID, season)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := export.PlanToPDF(*p)
	if err != nil {
		s.log.Error().Err(err).Str("fieldId", fieldID).Msg("failed to render plan PDF")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to render pdf"})
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", "attachment; filename=\"plan-"+fieldID+"-"+season+".pdf\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
