package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/bobmcallan/vire-balance/internal/common"
	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/extract"
	"github.com/bobmcallan/vire-balance/internal/interfaces"
	"github.com/bobmcallan/vire-balance/internal/models"
	"github.com/bobmcallan/vire-balance/internal/platform"
	"github.com/bobmcallan/vire-balance/internal/recognize"
)

// Fetcher resolves one wallet's current balance: fast API path when the
// platform has one, otherwise a rendered page driven through the extraction
// strategy chain, with bounded retries. Failures never escape; exhaustion
// degrades to the stale fallback or an unavailable placeholder.
type Fetcher struct {
	sessions   interfaces.SessionFactory
	recognizer recognize.Recognizer // nil disables the optical fallback
	cache      *LiveCache
	history    interfaces.HistoryStore
	logger     *common.Logger

	attempts   int
	retryDelay time.Duration
	navTimeout time.Duration

	// fastPath and sleep are swappable for tests.
	fastPath func(p platform.Platform) platform.BalanceQuerier
	sleep    func(ctx context.Context, d time.Duration)
}

// NewFetcher wires a fetcher from its collaborators. recognizer may be nil.
func NewFetcher(
	sessions interfaces.SessionFactory,
	recognizer recognize.Recognizer,
	cache *LiveCache,
	history interfaces.HistoryStore,
	monitorCfg config.MonitorConfig,
	browserCfg config.BrowserConfig,
	logger *common.Logger,
) *Fetcher {
	attempts := monitorCfg.RetryAttempts
	if attempts <= 0 {
		attempts = 3
	}
	retryDelay := time.Duration(monitorCfg.RetryDelaySeconds) * time.Second
	if retryDelay <= 0 {
		retryDelay = 5 * time.Second
	}
	navTimeout := time.Duration(browserCfg.NavTimeoutSeconds) * time.Second

	return &Fetcher{
		sessions:   sessions,
		recognizer: recognizer,
		cache:      cache,
		history:    history,
		logger:     logger,
		attempts:   attempts,
		retryDelay: retryDelay,
		navTimeout: navTimeout,
		fastPath: func(p platform.Platform) platform.BalanceQuerier {
			return platform.FastPathFor(p, 8*time.Second)
		},
		sleep: sleepCtx,
	}
}

// FetchOne runs the full fetch chain for one wallet and returns its
// reading. The reading is also written to the live cache, and to the
// history log on definitive success or definitive exhaustion. Caller
// cancellation is neither: the fetch is abandoned and nothing is recorded.
func (f *Fetcher) FetchOne(ctx context.Context, wallet models.WalletConfig) models.BalanceReading {
	prof := platform.ProfileFor(wallet.Platform)

	b := &backoff.Backoff{
		Min:    f.retryDelay,
		Max:    4 * f.retryDelay,
		Factor: 2,
	}

	var lastErr *FetchError
	for attempt := 1; attempt <= f.attempts; attempt++ {
		if ctx.Err() != nil {
			return f.abandoned(wallet, ctx.Err())
		}
		if attempt > 1 {
			f.sleep(ctx, b.Duration())
		}

		value, text, ferr := f.attempt(ctx, wallet, prof)
		if ferr == nil {
			reading := models.BalanceReading{
				WalletName:   wallet.DisplayName,
				ValueText:    text,
				NumericValue: value,
				Currency:     models.DefaultCurrency,
				Platform:     wallet.Platform,
				Timestamp:    time.Now(),
				Status:       models.StatusSuccess,
			}
			f.record(reading)
			f.logger.Info().
				Str("wallet", wallet.DisplayName).
				Str("value", text).
				Int("attempt", attempt).
				Msg("balance fetched")
			return reading
		}

		lastErr = ferr
		f.logger.Warn().
			Str("wallet", wallet.DisplayName).
			Str("kind", ferr.Kind.String()).
			Str("error", ferr.Err.Error()).
			Int("attempt", attempt).
			Int("max_attempts", f.attempts).
			Msg("fetch attempt failed")

		if ctx.Err() != nil {
			return f.abandoned(wallet, ctx.Err())
		}
	}

	return f.exhausted(wallet, lastErr)
}

// abandoned handles caller cancellation. A cancelled fetch is not a failed
// one: nothing is recorded, the cache and history keep whatever they held
// before. An attempt aborted mid-flight surfaces here through its error.
func (f *Fetcher) abandoned(wallet models.WalletConfig, cause error) models.BalanceReading {
	f.logger.Debug().
		Str("wallet", wallet.DisplayName).
		Str("cause", cause.Error()).
		Msg("fetch abandoned on cancellation")

	if prior, ok := f.cache.Get(wallet.DisplayName); ok {
		return prior
	}
	return models.BalanceReading{
		WalletName:   wallet.DisplayName,
		ValueText:    models.PlaceholderValue,
		Currency:     models.DefaultCurrency,
		Platform:     wallet.Platform,
		Timestamp:    time.Now(),
		Status:       models.StatusUnavailable,
		ErrorMessage: fmt.Sprintf("fetch cancelled: %v", cause),
	}
}

// exhausted handles the all-attempts-failed path: stale fallback when a
// prior known-good reading exists, unavailable placeholder otherwise.
func (f *Fetcher) exhausted(wallet models.WalletConfig, lastErr *FetchError) models.BalanceReading {
	errMsg := "fetch failed"
	if lastErr != nil {
		errMsg = lastErr.Error()
	}

	if prior, ok := f.cache.LastKnownGood(wallet.DisplayName); ok {
		reading := models.BalanceReading{
			WalletName:   wallet.DisplayName,
			ValueText:    prior.ValueText,
			NumericValue: prior.NumericValue,
			Currency:     models.DefaultCurrency,
			Platform:     wallet.Platform,
			Timestamp:    time.Now(),
			Status:       models.StatusTemporaryError,
			ErrorMessage: fmt.Sprintf("using last known value from %s: %s", prior.Timestamp.Format(time.RFC3339), errMsg),
		}
		f.record(reading)
		f.logger.Warn().
			Str("wallet", wallet.DisplayName).
			Str("stale_value", prior.ValueText).
			Msg("all attempts failed, carrying last known value")
		return reading
	}

	// No prior success: nothing meaningful to record in history.
	reading := models.BalanceReading{
		WalletName:   wallet.DisplayName,
		ValueText:    models.PlaceholderValue,
		Currency:     models.DefaultCurrency,
		Platform:     wallet.Platform,
		Timestamp:    time.Now(),
		Status:       models.StatusUnavailable,
		ErrorMessage: errMsg,
	}
	f.cache.Put(reading)
	f.logger.Warn().
		Str("wallet", wallet.DisplayName).
		Msg("all attempts failed with no prior value, wallet unavailable")
	return reading
}

// attempt performs one fetch: fast path first, then a fresh browser
// session through the strategy chain. The session is closed on every exit.
func (f *Fetcher) attempt(ctx context.Context, wallet models.WalletConfig, prof platform.Profile) (decimal.Decimal, string, *FetchError) {
	if querier := f.fastPath(wallet.Platform); querier != nil {
		value, err := querier.TotalBalance(ctx, wallet.SourceURL)
		if err == nil && extract.Validate(value, prof) {
			return value, extract.FormatMoney(value), nil
		}
		if err != nil {
			f.logger.Debug().
				Str("wallet", wallet.DisplayName).
				Str("error", err.Error()).
				Msg("fast path failed, falling back to browser")
		}
	}

	session, err := f.sessions.NewSession()
	if err != nil {
		return decimal.Decimal{}, "", networkErr("failed to open browser session: %w", err)
	}
	defer session.Close()

	if err := session.Open(ctx, wallet.SourceURL, f.navTimeout); err != nil {
		return decimal.Decimal{}, "", networkErr("%w", err)
	}
	if err := session.Settle(ctx, prof.SettleDelay); err != nil {
		return decimal.Decimal{}, "", networkErr("settle interrupted: %w", err)
	}

	pageText, err := session.ReadVisibleText(ctx)
	if err != nil {
		return decimal.Decimal{}, "", networkErr("%w", err)
	}

	for _, strategy := range extract.ChainFor(wallet.Platform) {
		if m := strategy.Fn(pageText, prof); m != nil {
			f.logger.Debug().
				Str("wallet", wallet.DisplayName).
				Str("strategy", strategy.Name).
				Str("value", m.Text).
				Msg("strategy matched")
			return m.Value, m.Text, nil
		}
	}

	if f.recognizer != nil {
		if value, text, ok := f.optical(ctx, session, wallet, prof); ok {
			return value, text, nil
		}
	}

	if extract.OutOfBandOnly(pageText, prof) {
		return decimal.Decimal{}, "", validationErr("only implausible values shown for %s", wallet.DisplayName)
	}
	return decimal.Decimal{}, "", extractionErr("no strategy matched for %s", wallet.DisplayName)
}

// optical runs the recognition fallback: find a label on screen, capture
// the region below it, and read the amount optically. The recognized text
// goes through the same numeric-shape and plausibility filters as any
// other candidate.
func (f *Fetcher) optical(ctx context.Context, session interfaces.Session, wallet models.WalletConfig, prof platform.Profile) (decimal.Decimal, string, bool) {
	for _, label := range prof.Labels {
		rect, found, err := session.LocateText(ctx, label)
		if err != nil || !found {
			continue
		}

		region := valueRegionBelow(rect)
		img, err := session.Screenshot(ctx, &region)
		if err != nil {
			f.logger.Debug().
				Str("wallet", wallet.DisplayName).
				Str("error", err.Error()).
				Msg("optical capture failed")
			continue
		}

		raw, err := f.recognizer.ReadAmount(img)
		if err != nil {
			f.logger.Debug().
				Str("wallet", wallet.DisplayName).
				Str("error", err.Error()).
				Msg("optical recognition failed")
			continue
		}

		value, ok := extract.ParseMoney(raw)
		if !ok || !extract.Validate(value, prof) {
			continue
		}

		f.logger.Debug().
			Str("wallet", wallet.DisplayName).
			Str("label", label).
			Str("value", raw).
			Msg("optical fallback matched")
		return value, extract.FormatMoney(value), true
	}
	return decimal.Decimal{}, "", false
}

// valueRegionBelow estimates where the headline value sits relative to its
// label: directly under it, usually in a larger font.
func valueRegionBelow(label interfaces.Rect) interfaces.Rect {
	width := label.Width * 2
	if width < 200 {
		width = 200
	}
	height := label.Height * 2.5
	if height < 40 {
		height = 40
	}
	return interfaces.Rect{
		X:      label.X,
		Y:      label.Y + label.Height,
		Width:  width,
		Height: height,
	}
}

// record writes a definitive reading to the cache and history log. A
// history write failure is logged and does not interrupt the cache update.
func (f *Fetcher) record(reading models.BalanceReading) {
	f.cache.Put(reading)

	entry := models.HistoryEntry{
		WalletName:  reading.WalletName,
		BalanceText: reading.ValueText,
		Platform:    reading.Platform,
		Timestamp:   reading.Timestamp,
		Status:      reading.Status,
	}
	if err := f.history.Append(entry); err != nil {
		perr := persistErr("failed to persist history entry: %w", err)
		f.logger.Error().
			Str("wallet", reading.WalletName).
			Str("kind", perr.Kind.String()).
			Str("error", perr.Err.Error()).
			Msg("failed to persist history entry")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
