package sched

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"dosewatch/internal/clock"
	"dosewatch/internal/dedup"
	"dosewatch/internal/notify"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

// ErrPassRunning is returned by RunNow when an evaluation pass is
// already in flight.
var ErrPassRunning = errors.New("evaluation pass already running")

type Config struct {
	Enabled  bool
	Timezone string // IANA TZ, e.g. "America/New_York"; empty means local
}

type Service struct {
	mu  sync.Mutex
	cfg Config
	loc *time.Location
	c   *cron.Cron

	log   logx.Logger
	store storage.Store
	disp  *notify.Dispatcher
	guard *dedup.Guard
	clk   clock.Clock

	// Single-flight flag for the evaluation pass; shared between the
	// cron trigger and RunNow.
	running atomic.Bool

	ticks       atomic.Uint64
	skips       atomic.Uint64
	transitions atomic.Uint64

	lastPass time.Time // guarded by mu
	lastErr  string    // guarded by mu
}

func New(cfg Config, store storage.Store, disp *notify.Dispatcher, guard *dedup.Guard, clk clock.Clock, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		cfg:   cfg,
		store: store,
		disp:  disp,
		guard: guard,
		clk:   clk,
		log:   log,
	}
	s.loc = s.loadLocation(cfg.Timezone)
	return s
}

func (s *Service) loadLocation(tz string) *time.Location {
	tz = strings.TrimSpace(tz)
	if tz == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		s.log.Warn("invalid timezone, falling back to local", logx.String("tz", tz), logx.Err(err))
		return time.Local
	}
	return loc
}

func (s *Service) Enabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg.Enabled
}

// Start registers the minute evaluation trigger and the midnight dedup
// reset, both in the configured location.
func (s *Service) Start(ctx context.Context) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return
	}
	if !s.cfg.Enabled {
		s.log.Info("scheduler disabled")
		return
	}
	s.startCronLocked()
}

func (s *Service) startCronLocked() {
	c := cron.New(cron.WithLocation(s.loc))
	// Every minute: one evaluation pass.
	_, _ = c.AddFunc("* * * * *", s.tick)
	// Local midnight: clear the dedup guard so recurring doses can fire
	// again on their next date.
	_, _ = c.AddFunc("0 0 * * *", s.midnight)
	c.Start()
	s.c = c
	s.log.Info("scheduler started", logx.String("tz", s.loc.String()))
}

// Stop halts the driver and waits for an in-flight pass to finish its
// current dose write, so no transition commits without its side effects
// recorded.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	c := s.c
	s.c = nil
	s.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
		s.log.Info("scheduler stopped")
	case <-ctx.Done():
		s.log.Warn("scheduler stop timed out; pass still draining")
	}
}

// Apply updates the runtime config. A timezone change restarts the cron
// driver so both triggers fire on the new local clock.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	defer s.mu.Unlock()

	oldTZ := strings.TrimSpace(s.cfg.Timezone)
	newTZ := strings.TrimSpace(cfg.Timezone)
	wasEnabled := s.cfg.Enabled
	s.cfg = cfg
	s.loc = s.loadLocation(cfg.Timezone)

	if s.c == nil {
		if cfg.Enabled && wasEnabled != cfg.Enabled {
			s.startCronLocked()
		}
		return
	}
	if !cfg.Enabled {
		c := s.c
		s.c = nil
		go func() { <-c.Stop().Done() }()
		s.log.Info("scheduler disabled via config")
		return
	}
	if oldTZ != newTZ {
		c := s.c
		go func() { <-c.Stop().Done() }()
		s.startCronLocked()
	}
}

// tick is the cron entry point for the periodic evaluation pass.
func (s *Service) tick() {
	s.ticks.Add(1)
	if !s.running.CompareAndSwap(false, true) {
		s.skips.Add(1)
		s.log.Info("evaluation still running, skipping tick")
		return
	}
	defer s.running.Store(false)
	_ = s.runPass(context.Background())
}

// midnight is the cron entry point for the daily boundary.
func (s *Service) midnight() {
	n := s.guard.Len()
	s.guard.ResetDaily()
	s.log.Info("dedup guard reset at midnight", logx.Int("cleared", n))
}

// RunNow forces one evaluation pass, sharing the single-flight flag
// with the periodic driver. Used by the manual HTTP trigger.
func (s *Service) RunNow(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return ErrPassRunning
	}
	defer s.running.Store(false)
	return s.runPass(ctx)
}

// Location is the timezone evaluation currently runs in. The HTTP
// surface derives its "today" defaults from this so a timezone hot
// reload moves both sides of the date boundary together.
func (s *Service) Location() *time.Location {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loc
}

func (s *Service) notePass(at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPass = at
	if err != nil {
		s.lastErr = err.Error()
	} else {
		s.lastErr = ""
	}
}
