package app

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bobmcallan/vire-balance/internal/balance"
	"github.com/bobmcallan/vire-balance/internal/browser"
	"github.com/bobmcallan/vire-balance/internal/common"
	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/handlers"
	"github.com/bobmcallan/vire-balance/internal/history"
	"github.com/bobmcallan/vire-balance/internal/recognize"
)

// App holds all application components and dependencies.
type App struct {
	Config *config.Config
	Logger *common.Logger

	History    *history.Store
	Sessions   *browser.ChromeFactory
	Recognizer recognize.Recognizer
	Engine     *balance.Engine

	// HTTP handlers
	HealthHandler  *handlers.HealthHandler
	VersionHandler *handlers.VersionHandler
	BalanceHandler *handlers.BalanceHandler
}

// New initializes the application with all dependencies.
func New(cfg *config.Config, logger *common.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		Logger: logger,
	}

	db, err := history.NewBadgerDB(slog.Default(), &cfg.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open history storage: %w", err)
	}
	a.History = history.NewStore(db, slog.Default())

	a.Sessions = browser.NewChromeFactory(cfg.Browser)

	if cfg.Optical.Enabled {
		recognizer, err := recognize.NewONNXRecognizer(cfg.Optical.ModelPath)
		if err != nil {
			// The optical fallback is an enhancement; run without it.
			logger.Warn().
				Str("model", cfg.Optical.ModelPath).
				Str("error", err.Error()).
				Msg("optical fallback disabled, recognizer failed to load")
		} else {
			a.Recognizer = recognizer
			logger.Info().Str("model", cfg.Optical.ModelPath).Msg("optical fallback enabled")
		}
	}

	cache := balance.NewLiveCache()
	fetcher := balance.NewFetcher(a.Sessions, a.Recognizer, cache, a.History, cfg.Monitor, cfg.Browser, logger)
	a.Engine = balance.NewEngine(fetcher, cache, a.History, cfg.Monitor, logger)

	a.initHandlers()

	logger.Info().Msg("application initialization complete")

	return a, nil
}

// MonitorInterval returns the configured periodic sweep interval.
func (a *App) MonitorInterval() time.Duration {
	return time.Duration(a.Config.Monitor.IntervalMinutes) * time.Minute
}

// initHandlers initializes all HTTP handlers.
func (a *App) initHandlers() {
	a.HealthHandler = handlers.NewHealthHandler(a.Logger)
	a.VersionHandler = handlers.NewVersionHandler(a.Logger)
	a.BalanceHandler = handlers.NewBalanceHandler(a.Logger, a.Engine)

	a.Logger.Debug().Msg("HTTP handlers initialized")
}

// Close closes all application resources.
func (a *App) Close() error {
	if a.Engine != nil {
		a.Engine.Close()
	}
	if a.Sessions != nil {
		a.Sessions.Close()
	}
	if a.Recognizer != nil {
		a.Recognizer.Close()
	}
	if a.History != nil {
		return a.History.Close()
	}
	return nil
}
