package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/appflow"
	"github.com/aretw0/appflow/internal/logging"
	"github.com/aretw0/appflow/pkg/flow"
	"github.com/aretw0/appflow/pkg/schema"
	"github.com/aretw0/appflow/pkg/session"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"golang.org/x/sync/errgroup"
)

// SessionsURI is the resource listing the live sessions.
const SessionsURI = "appflow://sessions"

// StateResponse provides a unified structure across tools.
type StateResponse struct {
	Session string       `json:"session" jsonschema_description:"The session id"`
	Node    flow.NodeRef `json:"node" jsonschema_description:"The current position of the machine"`
	State   any          `json:"state" jsonschema_description:"The current root state"`
	Actions []string     `json:"actions" jsonschema_description:"Events the current node accepts"`
	Pending bool         `json:"pending,omitempty" jsonschema_description:"Indicates that part of the dispatch is still running"`
}

// SessionArgs addresses a session.
type SessionArgs struct {
	SessionID string `json:"session_id"`
}

// DispatchArgs are the arguments of the dispatch tool.
type DispatchArgs struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Args      []any  `json:"args,omitempty"`
	Await     bool   `json:"await,omitempty"`
}

// CanArgs are the arguments of the can tool.
type CanArgs struct {
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
}

// CanResponse answers the can tool.
type CanResponse struct {
	Event string `json:"event"`
	Can   bool   `json:"can"`
}

// Server exposes a session Manager as an MCP Server.
type Server struct {
	sessions  *session.Manager
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures a logger for the Server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(sessions *session.Manager, opts ...Option) *Server {
	s := &Server{
		sessions:  sessions,
		mcpServer: server.NewMCPServer("appflow-mcp", strings.TrimSpace(appflow.Version)),
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		// Create a timeout context for the graceful shutdown
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	})
	return g.Wait()
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With, Baggage, Sentry-Trace")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	sessionID := func(required bool) mcp.ToolOption {
		if required {
			return mcp.WithString("session_id", mcp.Required(), mcp.Description("The session id"))
		}
		return mcp.WithString("session_id", mcp.Description("The session id (a random one is generated if omitted)"))
	}

	// TOOL: start_session
	s.mcpServer.AddTool(mcp.NewTool("start_session",
		mcp.WithDescription("Start a session, or return the existing one with the same id."),
		sessionID(false),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleStart))

	// TOOL: dispatch
	s.mcpServer.AddTool(mcp.NewTool("dispatch",
		mcp.WithDescription("Send an event to a session. Events are dotted paths relative to the current node."),
		sessionID(true),
		mcp.WithString("event", mcp.Required(), mcp.Description("The event path, e.g. 'save' or '#form.submit'")),
		mcp.WithArray("args", mcp.Description("Arguments passed to the reducer")),
		mcp.WithBoolean("await", mcp.Description("Wait until pending work settles")),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleDispatch))

	// TOOL: get_state
	s.mcpServer.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Get the state, position and available events of a session."),
		sessionID(true),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetState))

	// TOOL: can
	s.mcpServer.AddTool(mcp.NewTool("can",
		mcp.WithDescription("Report whether the current node of a session accepts an event."),
		sessionID(true),
		mcp.WithString("event", mcp.Required(), mcp.Description("The event name")),
		mcp.WithOutputSchema[CanResponse](),
	), mcp.NewStructuredToolHandler(s.handleCan))

	// TOOL: reset
	s.mcpServer.AddTool(mcp.NewTool("reset",
		mcp.WithDescription("Reset a session to its initial state."),
		sessionID(true),
		mcp.WithOutputSchema[StateResponse](),
	), mcp.NewStructuredToolHandler(s.handleReset))

	// TOOL: get_graph
	s.mcpServer.AddTool(mcp.NewTool("get_graph",
		mcp.WithDescription("Get the compiled nodes of a session's flow for introspection."),
		sessionID(true),
	), func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, err := s.sessions.Get(request.GetString("session_id", ""))
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		jsonBytes, _ := json.Marshal(sess.Machine.Inspect())
		return mcp.NewToolResultText(string(jsonBytes)), nil
	})
}

func respond(s *session.Session) StateResponse {
	return StateResponse{
		Session: s.ID,
		Node:    s.Machine.Current(),
		State:   s.Machine.GetState(),
		Actions: s.Machine.Actions(),
	}
}

func (s *Server) handleStart(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	var (
		sess *session.Session
		err  error
	)
	if args.SessionID == "" {
		sess, err = s.sessions.Start(ctx)
	} else {
		sess, err = s.sessions.LoadOrStart(ctx, args.SessionID)
	}
	if err != nil {
		return StateResponse{}, err
	}
	return respond(sess), nil
}

func (s *Server) handleDispatch(ctx context.Context, request mcp.CallToolRequest, args DispatchArgs) (StateResponse, error) {
	if args.Event == "" {
		return StateResponse{}, errors.New("event is required")
	}
	values, _ := schema.Normalize(args.Args).([]any)

	f, err := s.sessions.Dispatch(context.WithoutCancel(ctx), args.SessionID, args.Event, values...)
	if err == nil && args.Await && f != nil {
		_, err = f.Await(ctx)
		f = nil
	}
	if err != nil {
		s.logger.WarnContext(ctx, "MCP Dispatch failed", "session_id", args.SessionID, "event", args.Event, "error", err)
		return StateResponse{}, fmt.Errorf("dispatch failed: %w", err)
	}

	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return StateResponse{}, err
	}
	out := respond(sess)
	out.Pending = f != nil && !f.Settled()
	return out, nil
}

func (s *Server) handleGetState(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return StateResponse{}, err
	}
	return respond(sess), nil
}

func (s *Server) handleCan(ctx context.Context, request mcp.CallToolRequest, args CanArgs) (CanResponse, error) {
	sess, err := s.sessions.Get(args.SessionID)
	if err != nil {
		return CanResponse{}, err
	}
	return CanResponse{Event: args.Event, Can: sess.Machine.Can(args.Event)}, nil
}

func (s *Server) handleReset(ctx context.Context, request mcp.CallToolRequest, args SessionArgs) (StateResponse, error) {
	var sess *session.Session
	err := s.sessions.WithLock(ctx, args.SessionID, func(ctx context.Context) error {
		var err error
		if sess, err = s.sessions.Get(args.SessionID); err != nil {
			return err
		}
		return sess.Machine.Reset(ctx)
	})
	if err != nil {
		return StateResponse{}, err
	}
	return respond(sess), nil
}

func (s *Server) registerResources() {
	// EXPOSE: appflow://sessions
	s.mcpServer.AddResource(mcp.NewResource(SessionsURI, "Live Sessions",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, _ := json.Marshal(s.sessions.List())
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      SessionsURI,
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
