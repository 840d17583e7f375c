// Package health serves the liveness endpoints hosting platforms poll.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"sync"
	"time"

	rtsup "moviebot/internal/runtime/supervisor"
	logx "moviebot/pkg/logx"
)

// Cycle is the last completed publish cycle as shown on /healthz.
type Cycle struct {
	ID        string    `json:"id"`
	Task      string    `json:"task"`
	Finished  time.Time `json:"finished"`
	Attempted int       `json:"attempted"`
	Succeeded int       `json:"succeeded"`
	Skipped   int       `json:"skipped"`
	Failed    int       `json:"failed"`
}

// Status is the /healthz payload.
type Status struct {
	State     string `json:"state"`
	Uptime    string `json:"uptime"`
	DedupSize int    `json:"dedup_size"`
	// EventsDropped counts bus deliveries lost to full subscribers.
	EventsDropped uint64        `json:"events_dropped"`
	LastCycle     *Cycle        `json:"last_cycle,omitempty"`
	NextRun       *time.Time    `json:"next_run,omitempty"`
	Goroutines    []rtsup.Stats `json:"goroutines,omitempty"`
}

// Source produces a Status snapshot. It must be safe for concurrent use.
type Source interface {
	Health() Status
}

type SourceFunc func() Status

func (f SourceFunc) Health() Status { return f() }

type Config struct {
	Addr  string
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	cfg Config
	src Source
	log logx.Logger

	mu   sync.Mutex
	addr string
}

func New(cfg Config, src Source, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 5 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Pprof {
		// Profiles can run for 30s.
		cfg.WriteTimeout = max(cfg.WriteTimeout, 60*time.Second)
	}
	return &Server{cfg: cfg, src: src, log: log.With(logx.String("comp", "health"))}
}

// Handler returns the mux: "/" answers "alive", "/healthz" the JSON status.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("alive"))
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		var st Status
		if s.src != nil {
			st = s.src.Health()
		}
		code := http.StatusOK
		if st.State != "" && st.State != "running" {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		_ = enc.Encode(st)
	})
	if s.cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", hpprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", hpprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", hpprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", hpprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", hpprof.Trace)
	}
	return mux
}

// Addr reports the bound address while serving.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Serve listens and serves until ctx is done. It is meant to run under
// Supervisor.GoRestart so a crashed listener comes back.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return s.serve(ctx, ln)
}

func (s *Server) serve(ctx context.Context, ln net.Listener) error {
	defer func() { _ = ln.Close() }()

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.addr = ""
		s.mu.Unlock()
	}()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
			return
		}
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()), logx.Bool("pprof", s.cfg.Pprof))
	err := srv.Serve(ln)
	if ctx.Err() != nil {
		return nil
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}
