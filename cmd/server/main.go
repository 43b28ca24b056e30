package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
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

	"github.com/openexpense/rules/internal/logger"
	"github.com/openexpense/rules/rules"
)

type Server struct {
	engine *rules.Engine
	db     *sql.DB // nil when running with the in-memory store
	router *chi.Mux
}

// NewServer wires a server against PostgreSQL when databaseURL is set, and
// against an in-memory store seeded with the default rules otherwise.
func NewServer(databaseURL string) (*Server, error) {
	if databaseURL == "" {
		store, err := rules.NewSeededRuleStore(rules.DefaultRules())
		if err != nil {
			return nil, err
		}
		return NewServerWithStore(store, nil)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return NewServerWithStore(rules.NewPostgresRuleStore(db), db)
}

// NewServerWithStore builds a server over an existing store. db may be nil.
func NewServerWithStore(store rules.RuleStore, db *sql.DB) (*Server, error) {
	engine, err := rules.NewEngine(store)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Server{
		engine: engine,
		db:     db,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/api/health", s.handleHealth)
	r.Post("/api/evaluate", s.handleEvaluate)

	r.Route("/api/rules", func(r chi.Router) {
		r.Get("/", s.handleListRules)
		r.Post("/", s.handleCreateRule)
		r.Post("/reorder", s.handleReorderRules)

		r.Route("/{ruleId}", func(r chi.Router) {
			r.Get("/", s.handleGetRule)
			r.Put("/", s.handleUpdateRule)
			r.Delete("/", s.handleDeleteRule)
		})
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondError(w, http.StatusServiceUnavailable, "database unreachable", err)
			return
		}
	}

	rulesList, err := s.engine.ListRules()
	if err != nil {
		respondError(w, http.StatusServiceUnavailable, "rule store unreachable", err)
		return
	}

	respondJSON(w, http.StatusOK, HealthResponse{
		Status:      "healthy",
		RulesLoaded: len(rulesList),
	})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var expense rules.Expense
	if err := json.NewDecoder(r.Body).Decode(&expense); err != nil {
		respondError(w, http.StatusBadRequest, "invalid expense data", err)
		return
	}
	if expense == nil {
		respondError(w, http.StatusBadRequest, "expense must be a JSON object", nil)
		return
	}

	start := time.Now()
	result, err := s.engine.EvaluateExpense(expense)
	if err != nil {
		logger.Error("evaluation failed", "error", err)
		respondError(w, http.StatusInternalServerError, "failed to evaluate expense", err)
		return
	}

	respondJSON(w, http.StatusOK, EvaluateResponse{
		EvaluationResult: result,
		EvaluationID:     uuid.New().String(),
		EvaluationTime:   time.Since(start).String(),
	})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rulesList, err := s.engine.ListRules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}
	if rulesList == nil {
		rulesList = []*rules.Rule{}
	}

	respondJSON(w, http.StatusOK, RulesListResponse{Rules: rulesList})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.Name == "" || req.Condition == "" {
		respondError(w, http.StatusBadRequest, "name and condition are required", nil)
		return
	}
	if err := validateActions(req.Actions); err != nil {
		respondError(w, http.StatusBadRequest, "invalid actions", err)
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}

	rule := &rules.Rule{
		Name:      req.Name,
		Condition: req.Condition,
		Actions:   req.Actions,
		Active:    active,
		Priority:  req.Priority,
	}

	if err := s.engine.AddRule(rule); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	rule, err := s.engine.GetRule(ruleID)
	if errors.Is(err, rules.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	var req UpdateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := validateActions(req.Actions); err != nil {
		respondError(w, http.StatusBadRequest, "invalid actions", err)
		return
	}

	rule, err := s.engine.UpdateRule(ruleID, req.patch())
	if errors.Is(err, rules.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, rule)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := chi.URLParam(r, "ruleId")

	err := s.engine.DeleteRule(ruleID)
	if errors.Is(err, rules.ErrRuleNotFound) {
		respondError(w, http.StatusNotFound, "rule not found", nil)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to delete rule", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderRules(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if err := s.engine.ReorderRules(req.RuleIDs); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reorder rules", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "rules reordered successfully"})
}

func validateActions(actions []rules.ActionKind) error {
	for _, a := range actions {
		if !a.Valid() {
			return fmt.Errorf("unknown action kind %q", a)
		}
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	respondJSON(w, status, resp)
}

func main() {
	server, err := NewServer(os.Getenv("DATABASE_URL"))
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
	logger.Info("server stopped")
}
