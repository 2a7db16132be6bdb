// Package api serves the web form and the JSON API over the analysis
// pipeline, the bulk job manager, and the record store.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"ticket-triage/analysis"
	"ticket-triage/bulk"
	"ticket-triage/logger"
	"ticket-triage/store"
	"ticket-triage/zendesk"
)

// Analyzer runs the full pipeline for one ticket. *analysis.Engine
// satisfies it.
type Analyzer interface {
	Analyze(ctx context.Context, ticketID string) (*store.AnalysisRecord, error)
}

// PriorityRunner runs the planning analysis. *analysis.PriorityAnalyzer
// satisfies it.
type PriorityRunner interface {
	Analyze(ctx context.Context, ticketID string) (*store.TicketPriority, error)
}

// BulkJobs manages background multi-ticket jobs. *bulk.Manager satisfies it.
type BulkJobs interface {
	Submit(ctx context.Context, ticketIDs []string) (*store.BulkJob, error)
	Cancel(jobID string) error
	Job(ctx context.Context, jobID string) (*store.BulkJob, error)
}

// analyzeTimeout bounds a synchronous single-ticket request: fetch plus two
// model calls plus research.
const analyzeTimeout = 5 * time.Minute

const queryTimeout = 10 * time.Second

// Server holds the handler dependencies. Priority and Bulk may be nil; their
// routes then answer 404.
type Server struct {
	store     store.Store
	analyzer  Analyzer
	priority  PriorityRunner
	bulk      BulkJobs
	log       logger.Logger
	authToken string
}

// NewServer creates the API server. authToken protects the JSON API when
// non-empty; the web form and health check stay public.
func NewServer(st store.Store, analyzer Analyzer, priority PriorityRunner, bulk BulkJobs, log logger.Logger, authToken string) *Server {
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		store:     st,
		analyzer:  analyzer,
		priority:  priority,
		bulk:      bulk,
		log:       log,
		authToken: authToken,
	}
}

// Handler returns the chi router with all routes registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/", s.handleIndex)
	r.Post("/analyze", s.handleAnalyzeForm)
	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authToken != "" {
			r.Use(s.authMiddleware)
		}
		r.Post("/api/analyze", s.handleAnalyzeJSON)
		r.Get("/api/tickets/recent", s.handleRecent)
		r.Get("/api/tickets/search", s.handleSearch)
		r.Get("/api/tickets/{ticketID}", s.handleTicket)
		if s.priority != nil {
			r.Post("/api/tickets/{ticketID}/priority", s.handlePriorityRun)
			r.Get("/api/tickets/{ticketID}/priority", s.handlePriorityGet)
		}
		if s.bulk != nil {
			r.Post("/api/bulk", s.handleBulkSubmit)
			r.Get("/api/bulk/{jobID}", s.handleBulkGet)
			r.Delete("/api/bulk/{jobID}", s.handleBulkCancel)
		}
	})

	return r
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	recent, err := s.store.RecentSummaries(ctx, 3)
	if err != nil {
		s.log.Error("api.recent_failed", logger.Err(err))
	}
	renderIndex(w, &indexData{Recent: recent})
}

func (s *Server) handleAnalyzeForm(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form", http.StatusBadRequest)
		return
	}
	ticketID := strings.TrimSpace(r.PostFormValue("ticket_id"))
	data := &indexData{TicketID: ticketID}

	if ticketID == "" {
		data.Error = "Ticket ID is required."
	} else {
		ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
		defer cancel()
		rec, err := s.analyzer.Analyze(ctx, ticketID)
		if err != nil {
			data.Error = userFacingError(err)
			s.log.Warn("api.analyze_failed",
				logger.String("ticket_id", ticketID),
				logger.Err(err),
			)
		} else {
			data.Record = rec
		}
	}

	rctx, cancel := context.WithTimeout(context.Background(), queryTimeout)
	defer cancel()
	data.Recent, _ = s.store.RecentSummaries(rctx, 3)
	renderIndex(w, data)
}

func (s *Server) handleAnalyzeJSON(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketID string `json:"ticket_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.TicketID) == "" {
		writeError(w, http.StatusBadRequest, "ticket_id required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()
	rec, err := s.analyzer.Analyze(ctx, strings.TrimSpace(req.TicketID))
	if err != nil {
		status := analysisErrorStatus(err)
		s.log.Warn("api.analyze_failed",
			logger.String("ticket_id", req.TicketID),
			logger.Err(err),
		)
		writeError(w, status, userFacingError(err))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleTicket(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	rec, err := s.store.GetSummary(ctx, ticketID)
	if err != nil {
		s.log.Error("api.get_ticket_failed", logger.String("ticket_id", ticketID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load ticket")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "ticket not analyzed")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r.URL.Query().Get("limit"), 10)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	recs, err := s.store.RecentSummaries(ctx, limit)
	if err != nil {
		s.log.Error("api.recent_failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to list tickets")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": recs, "count": len(recs)})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	limit := parseIntParam(r.URL.Query().Get("limit"), 20)

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	recs, err := s.store.SearchSummaries(ctx, query, limit)
	if err != nil {
		s.log.Error("api.search_failed", logger.Err(err))
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tickets": recs, "count": len(recs), "query": query})
}

func (s *Server) handlePriorityRun(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()
	p, err := s.priority.Analyze(ctx, ticketID)
	if err != nil {
		s.log.Warn("api.priority_failed", logger.String("ticket_id", ticketID), logger.Err(err))
		writeError(w, analysisErrorStatus(err), userFacingError(err))
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePriorityGet(w http.ResponseWriter, r *http.Request) {
	ticketID := chi.URLParam(r, "ticketID")

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	p, err := s.store.GetPriority(ctx, ticketID)
	if err != nil {
		s.log.Error("api.get_priority_failed", logger.String("ticket_id", ticketID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load priority")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "priority not analyzed")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleBulkSubmit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TicketIDs []string `json:"ticket_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ids := make([]string, 0, len(req.TicketIDs))
	for _, id := range req.TicketIDs {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "ticket_ids required")
		return
	}

	job, err := s.bulk.Submit(r.Context(), ids)
	if err != nil {
		s.log.Warn("api.bulk_submit_failed", logger.Err(err))
		if errors.Is(err, bulk.ErrBusy) {
			writeError(w, http.StatusTooManyRequests, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create job")
		return
	}
	writeJSON(w, http.StatusAccepted, job)
}

func (s *Server) handleBulkGet(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()
	job, err := s.bulk.Job(ctx, jobID)
	if err != nil {
		s.log.Error("api.get_job_failed", logger.String("job_id", jobID), logger.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if job == nil {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleBulkCancel(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if err := s.bulk.Cancel(jobID); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelling", "job_id": jobID})
}

// analysisErrorStatus maps pipeline errors onto HTTP status codes.
func analysisErrorStatus(err error) int {
	switch {
	case errors.Is(err, zendesk.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, zendesk.ErrAuth):
		return http.StatusBadGateway
	case errors.Is(err, analysis.ErrNoConversation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func userFacingError(err error) string {
	switch {
	case errors.Is(err, zendesk.ErrNotFound):
		return "Ticket not found."
	case errors.Is(err, zendesk.ErrAuth):
		return "Zendesk authentication failed; check the configured credentials."
	case errors.Is(err, analysis.ErrNoConversation):
		return "Ticket has no public comments to analyze."
	default:
		return "Analysis failed: " + err.Error()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseIntParam(s string, defaultVal int) int {
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	return v
}
