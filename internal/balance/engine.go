package balance

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bobmcallan/vire-balance/internal/common"
	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/extract"
	"github.com/bobmcallan/vire-balance/internal/interfaces"
	"github.com/bobmcallan/vire-balance/internal/models"
	"github.com/bobmcallan/vire-balance/internal/platform"
)

// Engine owns the wallet registry, the live cache, the history log, and
// the cycle scheduler. One instance per process; all mutable state lives
// here and is reached only through its methods.
type Engine struct {
	fetcher *Fetcher
	cache   *LiveCache
	history interfaces.HistoryStore
	logger  *common.Logger

	walletDelay time.Duration

	mu      sync.RWMutex // guards wallets
	wallets []models.WalletConfig

	// busy is the single scrape-activity guard: at most one cycle sweep or
	// single-wallet refresh runs at a time, because at most one rendering
	// resource is provisioned.
	busy atomic.Bool

	monitorMu     sync.Mutex
	monitorCancel context.CancelFunc

	// sweep pacing is swappable for tests.
	sleep func(ctx context.Context, d time.Duration)
}

// NewEngine creates the engine. The fetcher shares the engine's cache and
// history store.
func NewEngine(fetcher *Fetcher, cache *LiveCache, history interfaces.HistoryStore, monitorCfg config.MonitorConfig, logger *common.Logger) *Engine {
	walletDelay := time.Duration(monitorCfg.WalletDelaySeconds) * time.Second
	if walletDelay <= 0 {
		walletDelay = 5 * time.Second
	}

	return &Engine{
		fetcher:     fetcher,
		cache:       cache,
		history:     history,
		logger:      logger,
		walletDelay: walletDelay,
		sleep:       sleepCtx,
	}
}

// SetWallets replaces the configured wallet set in whole. Cached readings
// for removed wallets are dropped; their history survives independently.
func (e *Engine) SetWallets(configs []models.WalletConfig) {
	prepared := make([]models.WalletConfig, 0, len(configs))
	keep := make(map[string]bool, len(configs))
	for _, c := range configs {
		prepared = append(prepared, e.prepare(c))
		keep[c.DisplayName] = true
	}

	e.mu.Lock()
	e.wallets = prepared
	e.mu.Unlock()

	e.cache.Retain(keep)
	e.seedAll(prepared)

	e.logger.Info().Int("wallets", len(prepared)).Msg("wallet set replaced")
}

// InitializeWallet adds (or updates) one wallet and seeds its cache from
// the companion holdings value, without waiting for a full cycle.
func (e *Engine) InitializeWallet(cfg models.WalletConfig) models.WalletConfig {
	prepared := e.prepare(cfg)

	e.mu.Lock()
	replaced := false
	for i, w := range e.wallets {
		if w.DisplayName == prepared.DisplayName {
			e.wallets[i] = prepared
			replaced = true
			break
		}
	}
	if !replaced {
		e.wallets = append(e.wallets, prepared)
	}
	e.mu.Unlock()

	e.seedAll([]models.WalletConfig{prepared})

	e.logger.Info().
		Str("wallet", prepared.DisplayName).
		Str("platform", string(prepared.Platform)).
		Msg("wallet initialized")
	return prepared
}

// prepare fills in the generated ID and the platform classification.
// Platform is inferred once and immutable afterwards.
func (e *Engine) prepare(cfg models.WalletConfig) models.WalletConfig {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Platform == "" {
		cfg.Platform = platform.Classify(cfg.SourceURL)
	}
	return cfg
}

// seedAll seeds the cache from companion holdings values for wallets with
// no reading yet. Seeded readings are never written to the history log.
func (e *Engine) seedAll(configs []models.WalletConfig) {
	for _, c := range configs {
		if c.SeedBalance == "" {
			continue
		}
		if _, ok := e.cache.LastKnownGood(c.DisplayName); ok {
			continue
		}
		value, ok := extract.ParseMoney(c.SeedBalance)
		if !ok {
			e.logger.Warn().
				Str("wallet", c.DisplayName).
				Str("seed", c.SeedBalance).
				Msg("ignoring unparseable seed balance")
			continue
		}
		e.cache.Put(models.BalanceReading{
			WalletName:   c.DisplayName,
			ValueText:    extract.FormatMoney(value),
			NumericValue: value,
			Currency:     models.DefaultCurrency,
			Platform:     c.Platform,
			Timestamp:    time.Now(),
			Status:       models.StatusSuccess,
			Seeded:       true,
		})
	}
}

// Wallets returns a snapshot of the configured wallet list.
func (e *Engine) Wallets() []models.WalletConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]models.WalletConfig, len(e.wallets))
	copy(out, e.wallets)
	return out
}

// StartMonitor begins periodic sweeps at the given interval. Any previous
// monitor is stopped first, clearing its pending timer. The first sweep
// runs immediately.
func (e *Engine) StartMonitor(interval time.Duration) {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()

	if e.monitorCancel != nil {
		e.monitorCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	e.monitorCancel = cancel

	go e.monitorLoop(ctx, interval)

	e.logger.Info().Str("interval", interval.String()).Msg("balance monitor started")
}

// StopMonitor stops periodic sweeps. A fetch already in flight is abandoned
// without recording anything; the cache and history keep their prior state.
func (e *Engine) StopMonitor() {
	e.monitorMu.Lock()
	defer e.monitorMu.Unlock()

	if e.monitorCancel != nil {
		e.monitorCancel()
		e.monitorCancel = nil
		e.logger.Info().Msg("balance monitor stopped")
	}
}

func (e *Engine) monitorLoop(ctx context.Context, interval time.Duration) {
	e.initialSweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := e.RefreshAll(ctx); err != nil {
				// A running cycle owns the resource; this tick is simply skipped.
				e.logger.Debug().Str("error", err.Error()).Msg("periodic sweep skipped")
			}
		}
	}
}

// initialSweep runs the monitor's first sweep. A cycle still in flight from
// a previous monitor or a force refresh is waited out rather than losing the
// sweep until the next tick.
func (e *Engine) initialSweep(ctx context.Context) {
	for ctx.Err() == nil {
		_, err := e.RefreshAll(ctx)
		if err == nil {
			return
		}
		if !errors.Is(err, ErrCycleRunning) {
			e.logger.Warn().Str("error", err.Error()).Msg("initial sweep failed")
			return
		}
		e.sleep(ctx, time.Second)
	}
}

// RefreshAll runs one full sequential sweep over all configured wallets
// and blocks until it completes. Returns ErrCycleRunning if another scrape
// activity holds the busy guard; cycles are never run concurrently.
func (e *Engine) RefreshAll(ctx context.Context) ([]models.BalanceReading, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrCycleRunning
	}
	defer e.busy.Store(false)

	wallets := e.Wallets()
	e.logger.Info().Int("wallets", len(wallets)).Msg("refresh cycle starting")
	start := time.Now()

	readings := make([]models.BalanceReading, 0, len(wallets))
	for i, wallet := range wallets {
		if ctx.Err() != nil {
			e.logger.Warn().Msg("refresh cycle cancelled")
			break
		}
		if i > 0 {
			// Pacing between wallets keeps load on third-party origins low.
			e.sleep(ctx, e.walletDelay)
		}
		readings = append(readings, e.fetcher.FetchOne(ctx, wallet))
	}

	e.logger.Info().
		Int("wallets", len(readings)).
		Str("elapsed", time.Since(start).Round(time.Millisecond).String()).
		Msg("refresh cycle complete")
	return readings, nil
}

// RefreshWallet fetches a single wallet outside the sequential cycle. It
// still takes the busy guard, so it never overlaps a running cycle or
// another single-wallet refresh.
func (e *Engine) RefreshWallet(ctx context.Context, walletName string) (models.BalanceReading, error) {
	var target *models.WalletConfig
	for _, w := range e.Wallets() {
		if w.DisplayName == walletName {
			wc := w
			target = &wc
			break
		}
	}
	if target == nil {
		return models.BalanceReading{}, ErrWalletNotFound
	}

	if !e.busy.CompareAndSwap(false, true) {
		return models.BalanceReading{}, ErrCycleRunning
	}
	defer e.busy.Store(false)

	return e.fetcher.FetchOne(ctx, *target), nil
}

// CurrentOf returns the cached reading for a wallet. ok is false for a
// wallet that has never been seeded or fetched.
func (e *Engine) CurrentOf(walletName string) (models.BalanceReading, bool) {
	return e.cache.Get(walletName)
}

// GetBalances returns wallet name -> display text for every configured
// wallet, in configured order. Unseeded wallets show the placeholder.
func (e *Engine) GetBalances() map[string]string {
	out := make(map[string]string)
	for _, w := range e.Wallets() {
		if r, ok := e.cache.Get(w.DisplayName); ok {
			out[w.DisplayName] = r.ValueText
		} else {
			out[w.DisplayName] = models.PlaceholderValue
		}
	}
	return out
}

// GetDetailedBalances returns full readings ordered by configured wallet
// order, not recency. Reading it twice with no scraping in between yields
// identical results.
func (e *Engine) GetDetailedBalances() []models.BalanceReading {
	wallets := e.Wallets()
	out := make([]models.BalanceReading, 0, len(wallets))
	for _, w := range wallets {
		if r, ok := e.cache.Get(w.DisplayName); ok {
			out = append(out, r)
			continue
		}
		out = append(out, models.BalanceReading{
			WalletName: w.DisplayName,
			ValueText:  models.PlaceholderValue,
			Currency:   models.DefaultCurrency,
			Platform:   w.Platform,
			Status:     models.StatusUnavailable,
		})
	}
	return out
}

// GetWalletHistory returns up to limit retained entries for one wallet,
// most recent first.
func (e *Engine) GetWalletHistory(walletName string, limit int) ([]models.HistoryEntry, error) {
	return e.history.RecentFor(walletName, limit)
}

// GetAllHistory returns up to limit retained entries across all wallets,
// most recent first.
func (e *Engine) GetAllHistory(limit int) ([]models.HistoryEntry, error) {
	return e.history.RecentAll(limit)
}

// GetLatestByWallet returns the most recent history entry per wallet.
func (e *Engine) GetLatestByWallet() (map[string]models.HistoryEntry, error) {
	return e.history.LatestPerWallet()
}

// GetWalletStats computes trend statistics over a wallet's retained history.
func (e *Engine) GetWalletStats(walletName string) (*models.WalletStats, error) {
	return e.history.StatsFor(walletName)
}

// Close stops the monitor, abandoning any fetch it has in flight.
func (e *Engine) Close() error {
	e.StopMonitor()
	return nil
}
