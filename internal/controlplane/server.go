package controlplane

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	"github.com/fentz26/aiorg/internal/logging"
	"github.com/fentz26/aiorg/internal/models"
)

// Version is reported by /health.
var Version = "dev"

// Server provides the HTTP API for aiorg.
type Server struct {
	service *Service
	addr    string
	server  *http.Server
	log     zerolog.Logger
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, addr string) *Server {
	return &Server{
		service: service,
		addr:    addr,
		log:     logging.Component("api"),
	}
}

// Handler builds the routed, CORS-wrapped handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer, s.requestLogger)

	r.Get("/health", s.handleHealth)

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.listAgents)
		r.Get("/{id}/eligible", s.eligibleTasks)
	})
	r.Route("/projects", func(r chi.Router) {
		r.Get("/", s.listProjects)
		r.Post("/", s.createProject)
		r.Get("/{name}/status", s.projectStatus)
		r.Get("/{name}/report", s.projectReport)
	})
	r.Get("/standup", s.standup)
	r.Route("/tasks", func(r chi.Router) {
		r.Get("/", s.listTasks)
		r.Get("/{id}", s.getTask)
		r.Get("/{id}/audit", s.taskAudit)
	})
	r.Route("/messages", func(r chi.Router) {
		r.Post("/", s.sendMessage)
		r.Get("/{agent}/pending", s.pendingMessages)
		r.Post("/{id}/ack", s.ackMessage)
	})
	r.Get("/stats", s.stats)

	return cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(r)
}

// Start serves until Shutdown. ctx becomes the base context of every request.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.log.Info().Str("addr", s.addr).Msg("starting aiorg daemon")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		ev := s.log.Debug()
		switch {
		case ww.Status() >= 500:
			ev = s.log.Error()
		case ww.Status() >= 400:
			ev = s.log.Warn()
		}
		ev.Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Msg(http.StatusText(ww.Status()))
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	OK      bool   `json:"ok"`
	Store   string `json:"store"`
	Version string `json:"version"`
	Time    string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{OK: true, Store: "ok", Version: Version, Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	if err := s.service.Ping(r.Context()); err != nil {
		resp.OK = false
		resp.Store = err.Error()
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// --- Agents ---

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Agents())
}

func (s *Server) eligibleTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.EligibleTasks(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.service.Stats())
}

// --- Projects ---

type createProjectRequest struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

type createProjectResponse struct {
	Project *models.Project `json:"project"`
	Tasks   []*models.Task  `json:"tasks"`
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %v: %w", err, ErrInvalidRequest))
		return
	}
	if req.Type == "" {
		req.Type = "web-app"
	}

	project, tasks, err := s.service.CreateProject(r.Context(), req.Name, req.Type)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createProjectResponse{Project: project, Tasks: tasks})
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.service.ListProjects(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, projects)
}

func (s *Server) projectStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.service.ProjectStatus(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) projectReport(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.ProjectReport(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(report))
}

func (s *Server) standup(w http.ResponseWriter, r *http.Request) {
	report, err := s.service.Standup(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// --- Tasks ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	tasks, err := s.service.ListTasks(r.Context(), q.Get("project"), q.Get("agent"), q.Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.service.GetTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) taskAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := s.service.TaskHistory(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Messages ---

type sendMessageRequest struct {
	From    string          `json:"from"`
	To      string          `json:"to"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

func (s *Server) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fmt.Errorf("decode body: %v: %w", err, ErrInvalidRequest))
		return
	}
	id, err := s.service.SendMessage(r.Context(), req.From, req.To, req.Type, req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) pendingMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.service.PendingMessages(r.Context(), chi.URLParam(r, "agent"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) ackMessage(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Acknowledge(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "consumed"})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}
