package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"dosewatch/internal/clock"
	"dosewatch/internal/config"
	"dosewatch/internal/dedup"
	"dosewatch/internal/httpapi"
	"dosewatch/internal/notify"
	"dosewatch/internal/sched"
	"dosewatch/internal/storage"
	logx "dosewatch/pkg/logx"
)

// App owns the wiring: config, logging, storage, notification channels,
// the evaluation scheduler and the HTTP surface.
type App struct {
	cfgPath string
	cfgm    *config.ConfigManager

	log  logx.Logger
	logs *logx.Service

	store storage.Store
	sms   *notify.SMS
	guard *dedup.Guard
	sched *sched.Service
	http  *httpapi.Service

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	busyTimeout, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busyTimeout,
	}, log.With(logx.String("comp", "storage")))
	if err != nil {
		return nil, err
	}
	log.Info("storage opened", logx.String("driver", cfg.Storage.Driver))

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Scheduler.Timezone); tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	clk := clock.In(loc)

	channels := []notify.Channel{notify.NewInApp(store, clk)}

	sms := notify.NewSMS(mapSMSConfig(cfg))
	channels = append(channels, sms)

	tg, err := notify.NewTelegram(mapTelegramConfig(cfg))
	if err != nil {
		return nil, err
	}
	channels = append(channels, tg)

	disp := notify.NewDispatcher(log.With(logx.String("comp", "notify")), channels...)
	guard := dedup.NewGuard()

	schedSvc := sched.New(sched.Config{
		Enabled:  cfg.SchedulerEnabled(),
		Timezone: cfg.Scheduler.Timezone,
	}, store, disp, guard, clk, log.With(logx.String("comp", "sched")))

	httpSvc := httpapi.New(httpapi.Config{
		Enabled: cfg.HTTP.Enabled,
		Addr:    cfg.HTTP.Addr,
	}, store, schedSvc, clk, log.With(logx.String("comp", "http")))

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		store:   store,
		sms:     sms,
		guard:   guard,
		sched:   schedSvc,
		http:    httpSvc,
	}, nil
}

func mapSMSConfig(cfg *config.Config) notify.SMSConfig {
	if cfg.SMS == nil {
		return notify.SMSConfig{}
	}
	return notify.SMSConfig{
		Enabled:    cfg.SMS.Enabled,
		AccountSID: cfg.SMS.AccountSID,
		AuthToken:  cfg.SMS.AuthToken,
		From:       cfg.SMS.From,
		RatePerSec: cfg.SMS.RatePerSec,
	}
}

func mapTelegramConfig(cfg *config.Config) notify.TelegramConfig {
	if cfg.Telegram == nil {
		return notify.TelegramConfig{}
	}
	return notify.TelegramConfig{
		Enabled: cfg.Telegram.Enabled,
		Token:   cfg.Telegram.Token,
	}
}

func (a *App) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	// Reject bad hot reloads before they are committed or published.
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return config.Validate(cfg)
	})

	a.sched.Start(runCtx)
	if err := a.http.Start(runCtx); err != nil {
		cancel()
		return err
	}

	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-runCtx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.log.Info("app started")
	return nil
}

// applyConfig pushes a validated hot reload into the live services.
// Storage driver changes and Twilio/Telegram credential changes need a
// restart; everything else applies in place.
func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	a.sched.Apply(sched.Config{
		Enabled:  cfg.SchedulerEnabled(),
		Timezone: cfg.Scheduler.Timezone,
	})

	a.sms.Apply(mapSMSConfig(cfg))

	a.log.Info("config reloaded")
}

func (a *App) Stop(ctx context.Context) error {
	a.log.Info("stopping")
	if a.cancel != nil {
		a.cancel()
	}

	a.http.Stop(ctx)

	stopCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	a.sched.Stop(stopCtx)
	cancel()

	if err := a.store.Close(); err != nil {
		a.log.Warn("storage close", logx.Err(err))
	}

	a.wg.Wait()
	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
