package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/morannon-ai/morannon/internal/audit"
	"github.com/morannon-ai/morannon/internal/auth"
	"github.com/morannon-ai/morannon/internal/corpus"
	"github.com/morannon-ai/morannon/internal/platform/middleware"
	"github.com/morannon-ai/morannon/internal/policy"
	"github.com/morannon-ai/morannon/internal/retrieval"
)

// Dependencies holds all injected dependencies for the server.
type Dependencies struct {
	Pool               *pgxpool.Pool
	Auth               *auth.TokenService
	DevHandler         *auth.DevHandler
	PolicyEngine       *policy.Engine
	PolicyHandler      *policy.Handler
	RetrievalHandler   *retrieval.Handler
	CorpusHandler      *corpus.Handler
	AuditHandler       *audit.Handler
	AuditLogger        audit.Logger
	DevMode            bool
	DevPrincipal       *auth.Principal
	Logger             *slog.Logger
	CORSAllowedOrigins []string
}

type Server struct {
	httpServer   *http.Server
	protectedMux *http.ServeMux
	pool         *pgxpool.Pool
	handler      http.Handler
}

func New(addr string, deps Dependencies) *Server {
	// Protected routes mux — wrapped with auth middleware
	protectedMux := http.NewServeMux()

	var protectedHandler http.Handler = protectedMux
	protectedHandler = middleware.TenantContext(protectedHandler)
	if deps.Auth != nil {
		if deps.DevMode && deps.DevPrincipal != nil {
			protectedHandler = auth.MiddlewareWithDevMode(deps.Auth, deps.DevPrincipal)(protectedHandler)
		} else {
			protectedHandler = auth.Middleware(deps.Auth)(protectedHandler)
		}
	}

	// Top-level mux: public routes + protected catch-all
	topMux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		protectedMux: protectedMux,
		pool:         deps.Pool,
	}

	// Public routes (no auth required)
	topMux.HandleFunc("GET /healthz", s.handleHealth)
	topMux.HandleFunc("GET /readyz", s.handleReadiness)
	if deps.DevMode && deps.DevHandler != nil {
		deps.DevHandler.RegisterDevRoutes(topMux)
	}
	if deps.AuditHandler != nil {
		// WebSocket upgrade authenticates via query parameter, so the
		// stream route bypasses the header-based middleware chain.
		topMux.HandleFunc("GET /api/v1/audit/stream", deps.AuditHandler.HandleStream)
	}

	var routeOpts []policy.MiddlewareOption
	if deps.AuditLogger != nil {
		routeOpts = append(routeOpts, policy.WithAuditLogger(deps.AuditLogger))
	}

	// Retrieval routes — any authenticated principal; the access filter
	// decides what they see.
	if deps.RetrievalHandler != nil {
		protectedMux.HandleFunc("POST /api/v1/query", deps.RetrievalHandler.HandleQuery)
		protectedMux.HandleFunc("POST /api/v1/search", deps.RetrievalHandler.HandleSearch)
	}

	// Policy routes
	if deps.PolicyHandler != nil {
		protectedMux.HandleFunc("GET /api/v1/filter", deps.PolicyHandler.HandleGetFilter)
		if deps.PolicyEngine != nil {
			protectedMux.Handle("GET /api/v1/policy",
				policy.RequireRole(deps.PolicyEngine, "admin", routeOpts...)(
					http.HandlerFunc(deps.PolicyHandler.HandleGetPolicy),
				),
			)
			protectedMux.Handle("POST /api/v1/policy/reload",
				policy.RequireRole(deps.PolicyEngine, "admin", routeOpts...)(
					http.HandlerFunc(deps.PolicyHandler.HandleReload),
				),
			)
		}
	}

	// Ingestion routes (admin only)
	if deps.CorpusHandler != nil && deps.PolicyEngine != nil {
		protectedMux.Handle("POST /api/v1/documents",
			policy.RequireRole(deps.PolicyEngine, "admin", routeOpts...)(
				http.HandlerFunc(deps.CorpusHandler.HandleCreate),
			),
		)
	}

	// Audit query routes
	if deps.AuditHandler != nil && deps.PolicyEngine != nil {
		protectedMux.Handle("GET /api/v1/audit/events",
			policy.RequireRole(deps.PolicyEngine, "dept_admin", routeOpts...)(
				http.HandlerFunc(deps.AuditHandler.HandleListEvents),
			),
		)
	}

	// All other routes go through auth middleware
	topMux.Handle("/", protectedHandler)

	// Wrap top-level mux with observability middleware
	var handler http.Handler = topMux
	if deps.Logger != nil {
		handler = middleware.Logging(deps.Logger)(handler)
	}
	handler = middleware.RequestID(handler)
	if len(deps.CORSAllowedOrigins) > 0 {
		handler = middleware.CORS(deps.CORSAllowedOrigins)(handler)
	}

	s.handler = handler
	s.httpServer.Handler = handler
	return s
}

// Handler returns the full middleware-wrapped handler chain (for testing).
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ProtectedMux returns the mux for authenticated routes.
func (s *Server) ProtectedMux() *http.ServeMux {
	return s.protectedMux
}

func (s *Server) Start(ctx context.Context) error {
	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", s.httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.httpServer.Addr, err)
	}

	slog.Info("server starting", "addr", listener.Addr().String())

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		slog.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.pool == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database not connected",
		})
		return
	}

	if err := s.pool.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database ping failed",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
