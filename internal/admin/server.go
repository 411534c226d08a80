// Package admin exposes the local control API: engine start/stop,
// status, a liveness probe and optional pprof.
package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/VK79/Radar12/internal/engine"
	"github.com/VK79/Radar12/pkg/logx"
)

const (
	defaultListen  = "127.0.0.1:8080"
	requestTimeout = 30 * time.Second
	shutdownGrace  = 10 * time.Second
)

type Config struct {
	Listen string
	Token  string // empty disables auth
	Pprof  bool
}

// Engine is the slice of the monitoring engine the API drives.
type Engine interface {
	Start(ctx context.Context) error
	Stop()
	Status() engine.Status
}

type Server struct {
	cfg    Config
	engine Engine
	log    logx.Logger

	mu      sync.Mutex
	baseCtx context.Context
}

func New(cfg Config, eng Engine, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg, engine: eng, log: log}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	addr := strings.TrimSpace(s.cfg.Listen)
	if addr == "" {
		addr = defaultListen
	}
	if s.cfg.Token == "" && !isLoopbackAddr(addr) {
		s.log.Warn("admin API has no token on a non-loopback address",
			logx.String("addr", addr))
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("admin: listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	s.log.Info("admin server listening",
		logx.String("addr", ln.Addr().String()),
		logx.Bool("pprof", s.cfg.Pprof),
		logx.Bool("token_set", s.cfg.Token != ""))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("admin: serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("admin server stopped")
	return nil
}

// Handler builds the router. Split out so tests can drive it without a
// listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))
			r.Get("/status", s.handleStatus)
			r.Post("/start", s.handleStart)
			r.Post("/stop", s.handleStop)
		})
		// Profile captures run longer than the API timeout, so pprof
		// sits outside that group.
		if s.cfg.Pprof {
			r.Mount("/debug", middleware.Profiler())
		}
	})

	return r
}

type statusResponse struct {
	Running     bool    `json:"running"`
	LastCycleAt *string `json:"last_cycle_at"`
	LastError   *string `json:"last_error"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	st := s.engine.Status()
	resp := statusResponse{Running: st.Running}
	if !st.LastCycleAt.IsZero() {
		ts := st.LastCycleAt.Format(time.RFC3339)
		resp.LastCycleAt = &ts
	}
	if st.LastError != "" {
		resp.LastError = &st.LastError
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStart(w http.ResponseWriter, _ *http.Request) {
	// The engine outlives the request, so it must not inherit the
	// request context.
	if err := s.engine.Start(s.startCtx()); err != nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"running": true})
}

func (s *Server) handleStop(w http.ResponseWriter, _ *http.Request) {
	s.engine.Stop()
	writeJSON(w, http.StatusOK, map[string]bool{"running": false})
}

func (s *Server) startCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.baseCtx != nil {
		return s.baseCtx
	}
	return context.Background()
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := strings.TrimSpace(s.cfg.Token)
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		const prefix = "Bearer "
		ah := r.Header.Get("Authorization")
		if strings.HasPrefix(ah, prefix) && strings.TrimSpace(strings.TrimPrefix(ah, prefix)) == tok {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
			logx.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	buf, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal"}`))
		return
	}
	w.WriteHeader(status)
	_, _ = w.Write(buf)
}

func isLoopbackAddr(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
