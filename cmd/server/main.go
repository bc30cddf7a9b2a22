package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quotelane/rules/coverage"
	"github.com/quotelane/rules/internal/logger"
	"github.com/quotelane/rules/internal/metrics"
	"github.com/quotelane/rules/rules"
)

type Server struct {
	db      *sql.DB
	manager *coverage.Manager
	metrics *metrics.Metrics
	router  *chi.Mux
}

// NewServer wires the rule manager against Postgres when databaseURL is
// set, or against in-memory stores seeded from rulesFile otherwise.
func NewServer(databaseURL, rulesFile string) (*Server, error) {
	var db *sql.DB
	if databaseURL != "" {
		var err error
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to ping database: %w", err)
		}
	}

	s := &Server{
		db:      db,
		manager: coverage.NewManager(db),
		metrics: metrics.New(),
	}

	if db == nil && rulesFile != "" {
		count, err := s.manager.SeedFromFile(rulesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to seed rules: %w", err)
		}
		logger.Info("seeded rules from file", "file", rulesFile, "count", count)
	}

	s.setupRoutes()

	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/v1/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/v1/evaluate", s.handleEvaluate)

	r.Route("/api/v1/coverage-types/{coverageType}/rules", func(r chi.Router) {
		r.Post("/", s.handleCreateRule)
		r.Get("/", s.handleListRules)
		r.Get("/{ruleId}", s.handleGetRule)
		r.Put("/{ruleId}", s.handleUpdateRule)
		r.Delete("/{ruleId}", s.handleDeleteRule)
	})

	r.Get("/api/v1/templates", s.handleListTemplates)
	r.Post("/api/v1/templates/{name}/apply", s.handleApplyTemplate)

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"coverageTypes": len(s.manager.CoverageTypes()),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.CoverageType == "" {
		respondError(w, http.StatusBadRequest, "coverageType is required", nil)
		return
	}
	if req.Answers == nil {
		respondError(w, http.StatusBadRequest, "answers are required", nil)
		return
	}

	evalCtx := &rules.Context{Answers: req.Answers}
	if req.Metadata != nil {
		evalCtx.Metadata = rules.Metadata{
			SubmissionDate:  req.Metadata.SubmissionDate,
			PolicyStartDate: req.Metadata.PolicyStartDate,
		}
	}

	start := time.Now()
	result, ruleCount, err := s.manager.Evaluate(req.CoverageType, evalCtx)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "evaluation failed", err)
		return
	}
	s.metrics.ObserveEvaluation(req.CoverageType, ruleCount, result.BlockedSubmission, start)

	respondJSON(w, http.StatusOK, EvaluateResponse{
		Result:         result,
		RulesEvaluated: ruleCount,
		EvaluationTime: time.Since(start).String(),
	})
}

// ruleFromRequest decodes a rule payload. Decode issues are authoring
// errors here, not drop-and-continue.
func ruleFromRequest(req RuleRequest, coverageType, id string) (*rules.Rule, []rules.DecodeIssue) {
	conditions, issues := rules.DecodeConditions(req.Conditions)
	actions, actionIssues := rules.DecodeActions(req.Actions)
	issues = append(issues, actionIssues...)
	if len(issues) > 0 {
		return nil, issues
	}

	ruleType := req.RuleType
	if ruleType == "" {
		ruleType = rules.RuleTypeConditional
	}
	priority := rules.SuggestedPriority(ruleType)
	if req.Priority != nil {
		priority = *req.Priority
	}

	return &rules.Rule{
		ID:           id,
		CoverageType: coverageType,
		Name:         req.Name,
		RuleType:     ruleType,
		Priority:     priority,
		Active:       req.Active == nil || *req.Active,
		Conditions:   conditions,
		Actions:      actions,
		ErrorMessage: req.ErrorMessage,
	}, nil
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	coverageType := chi.URLParam(r, "coverageType")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	rule, issues := ruleFromRequest(req, coverageType, uuid.NewString())
	if len(issues) > 0 {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "malformed conditions or actions",
			Issues: issues,
		})
		return
	}

	if err := s.manager.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to add rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	coverageType := chi.URLParam(r, "coverageType")

	rulesList, err := s.manager.Store(coverageType).List()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rulesList == nil {
		rulesList = []*rules.Rule{}
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rulesList})
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	coverageType := chi.URLParam(r, "coverageType")
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.manager.Store(coverageType).Get(ruleID)
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	coverageType := chi.URLParam(r, "coverageType")
	ruleID := chi.URLParam(r, "ruleId")

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule, issues := ruleFromRequest(req, coverageType, ruleID)
	if len(issues) > 0 {
		respondJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "malformed conditions or actions",
			Issues: issues,
		})
		return
	}

	if err := s.manager.UpdateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	coverageType := chi.URLParam(r, "coverageType")
	ruleID := chi.URLParam(r, "ruleId")

	if err := s.manager.DeleteRule(coverageType, ruleID); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, TemplatesResponse{Templates: rules.Catalog()})
}

func (s *Server) handleApplyTemplate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	tmpl, found := rules.LookupTemplate(name)
	if !found {
		respondError(w, http.StatusNotFound, "template not found", nil)
		return
	}

	var req ApplyTemplateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	conditions, actions := rules.ApplyTemplate(tmpl, req.Values)
	respondJSON(w, http.StatusOK, ApplyTemplateResponse{
		RuleType:          tmpl.RuleType,
		SuggestedPriority: rules.SuggestedPriority(tmpl.RuleType),
		Conditions:        conditions,
		Actions:           actions,
	})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	databaseURL := os.Getenv("DATABASE_URL")
	rulesFile := os.Getenv("RULES_FILE")
	if databaseURL == "" && rulesFile == "" {
		logger.Fatal("DATABASE_URL or RULES_FILE environment variable is required")
	}

	server, err := NewServer(databaseURL, rulesFile)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if server.db != nil {
		defer server.db.Close()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if err := logger.Shutdown(ctx); err != nil {
		logger.Error("logger shutdown error", "error", err)
	}

	logger.Info("server stopped")
}
