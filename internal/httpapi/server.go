// Package httpapi is the thin HTTP surface over the store and the
// scheduler: health, manual triggers, and the schedule/notification
// passthroughs. No business logic lives here.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"dosewatch/internal/clock"
	"dosewatch/internal/sched"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

type Config struct {
	Enabled bool
	Addr    string
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	store storage.Store
	sched *sched.Service
	clk   clock.Clock

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, store storage.Store, sch *sched.Service, clk clock.Clock, log logx.Logger) *Service {
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8080"
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{cfg: cfg, log: log, store: store, sched: sch, clk: clk}
}

// now reports wall time in the scheduler's current location, so date
// defaults agree with where evaluation draws the day boundary even
// after a timezone hot reload.
func (s *Service) now() time.Time {
	return s.clk.Now().In(s.sched.Location())
}

func (s *Service) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Route("/api", func(r chi.Router) {
		r.Post("/scheduler/run", s.handleSchedulerRun)
		r.Post("/owners", s.handleCreateOwner)
		r.Route("/owners/{owner}", func(r chi.Router) {
			r.Post("/doses", s.handleScheduleDose)
			r.Get("/doses", s.handleListDoses)
			r.Post("/doses/{id}/taken", s.handleMarkTaken)
			r.Get("/notifications", s.handleListNotifications)
			r.Post("/notifications/test", s.handleTestNotification)
			r.Post("/notifications/{id}/read", s.handleMarkRead)
		})
	})
	return r
}

func (s *Service) Start(ctx context.Context) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("http server terminated", logx.Err(err))
		}
	}()
	s.log.Info("http server started", logx.String("addr", ln.Addr().String()))
	return nil
}

func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		s.log.Warn("http shutdown", logx.Err(err))
	}
}

// ---- response helpers ----

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
