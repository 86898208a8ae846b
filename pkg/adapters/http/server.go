package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aretw0/appflow"
	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/internal/presentation/graph"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server exposes the sessions of a Manager over HTTP.
type Server struct {
	Sessions *session.Manager
	Streams  *StreamManager

	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics serves the metrics of gatherer under /metrics.
func WithMetrics(gatherer prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = gatherer
	}
}

// WithStreams shares a StreamManager with the Server.
func WithStreams(streams *StreamManager) Option {
	return func(s *Server) {
		s.Streams = streams
	}
}

// NewServer creates a Server over sessions.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		Sessions: sessions,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.Streams == nil {
		s.Streams = NewStreamManager(s.logger)
	}
	return s
}

// NewHandler creates a new HTTP handler for the sessions.
func NewHandler(sessions *session.Manager, opts ...Option) http.Handler {
	return NewServer(sessions, opts...).Routes()
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions", func(r chi.Router) {
		r.Get("/", s.ListSessions)
		r.Post("/", s.StartSession)
		r.Route("/{id}", func(r chi.Router) {
			r.Put("/", s.LoadOrStartSession)
			r.Delete("/", s.DeleteSession)
			r.Get("/state", s.GetState)
			r.Post("/dispatch", s.Dispatch)
			r.Get("/can/{event}", s.Can)
			r.Get("/actions", s.GetActions)
			r.Post("/reset", s.Reset)
			r.Get("/graph", s.GetGraph)
			r.Get("/events", s.SubscribeEvents)
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// StateView is the JSON representation of a session.
type StateView struct {
	Session string       `json:"session"`
	Node    flow.NodeRef `json:"node"`
	State   any          `json:"state"`
	Actions []string     `json:"actions"`
	Pending bool         `json:"pending,omitempty"`
}

func view(s *session.Session) StateView {
	return StateView{
		Session: s.ID,
		Node:    s.Machine.Current(),
		State:   s.Machine.GetState(),
		Actions: s.Machine.Actions(),
	}
}

// DispatchRequest is the body of POST /sessions/{id}/dispatch.
type DispatchRequest struct {
	Event string `json:"event"`
	Args  []any  `json:"args,omitempty"`
	// Await blocks the response until pending work settles.
	Await bool `json:"await,omitempty"`
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":     "appflow",
		"version":  strings.TrimSpace(appflow.Version),
		"sessions": len(s.Sessions.List()),
	})
}

// ListSessions handles the GET /sessions request.
func (s *Server) ListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.Sessions.List()})
}

// StartSession handles the POST /sessions request.
func (s *Server) StartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.Start(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(sess))
}

// LoadOrStartSession handles the PUT /sessions/{id} request.
func (s *Server) LoadOrStartSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.Sessions.LoadOrStart(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

// DeleteSession handles the DELETE /sessions/{id} request.
func (s *Server) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetState handles the GET /sessions/{id}/state request.
func (s *Server) GetState(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

// Dispatch handles the POST /sessions/{id}/dispatch request.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	var req DispatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Event == "" {
		http.Error(w, "event is required", http.StatusBadRequest)
		return
	}
	args, _ := schema.Normalize(req.Args).([]any)

	// Pending work outlives the request unless the client awaits it.
	id := chi.URLParam(r, "id")
	f, err := s.Sessions.Dispatch(context.WithoutCancel(r.Context()), id, req.Event, args...)
	if err == nil && req.Await && f != nil {
		_, err = f.Await(r.Context())
		f = nil
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	out := view(sess)
	out.Pending = f != nil && !f.Settled()
	writeJSON(w, http.StatusOK, out)
}

// Can handles the GET /sessions/{id}/can/{event} request.
func (s *Server) Can(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	event := chi.URLParam(r, "event")
	writeJSON(w, http.StatusOK, map[string]any{"event": event, "can": sess.Machine.Can(event)})
}

// GetActions handles the GET /sessions/{id}/actions request.
func (s *Server) GetActions(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"actions": sess.Machine.Actions()})
}

// Reset handles the POST /sessions/{id}/reset request.
func (s *Server) Reset(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var sess *session.Session
	err := s.Sessions.WithLock(r.Context(), id, func(ctx context.Context) error {
		var err error
		if sess, err = s.Sessions.Get(id); err != nil {
			return err
		}
		return sess.Machine.Reset(ctx)
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view(sess))
}

// GetGraph handles the GET /sessions/{id}/graph request. The graph is JSON
// unless format=mermaid is requested.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(w, r)
	if !ok {
		return
	}
	nodes := sess.Machine.Inspect()
	if r.URL.Query().Get("format") == "mermaid" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		overlay := &graph.Overlay{Current: sess.Machine.Current().Index}
		fmt.Fprint(w, graph.GenerateMermaid(nodes, overlay))
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

// SubscribeEvents handles the GET /sessions/{id}/events request (SSE).
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	sess, ok := s.session(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch, unsubscribe := s.Streams.Subscribe(sess)
	defer unsubscribe()

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

func (s *Server) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	sess, err := s.Sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return sess, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var reducerErr *flow.ReducerError
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.As(err, &reducerErr):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status == http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "err", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
