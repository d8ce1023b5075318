// Package models defines data structures for vire-balance
package models

import (
	"time"

	"github.com/bobmcallan/vire-balance/internal/platform"
	"github.com/shopspring/decimal"
)

// PlaceholderValue is shown for wallets with no reading yet. It is never
// written to the history log.
const PlaceholderValue = "--"

// DefaultCurrency is the display currency symbol for readings.
const DefaultCurrency = "$"

// WalletConfig describes one externally-hosted wallet/portfolio page to
// monitor. Platform is inferred from SourceURL once at creation and is
// immutable afterwards.
type WalletConfig struct {
	ID          string            `json:"id"`
	DisplayName string            `json:"display_name"`
	SourceURL   string            `json:"source_url"`
	Platform    platform.Platform `json:"platform"`

	// SeedBalance optionally seeds the live cache from a companion holdings
	// record so a newly added wallet shows a value before its first scrape.
	SeedBalance string `json:"seed_balance,omitempty"`
}

// ReadingStatus classifies the outcome of a balance fetch.
type ReadingStatus string

const (
	// StatusSuccess means a fresh value was extracted this cycle.
	StatusSuccess ReadingStatus = "success"
	// StatusTemporaryError means the fetch failed but a prior known-good
	// value is being carried forward.
	StatusTemporaryError ReadingStatus = "temporary_error"
	// StatusUnavailable means the fetch failed and no prior value exists.
	StatusUnavailable ReadingStatus = "unavailable"
)

// BalanceReading is the result of one fetch for one wallet.
// Success and temporary_error readings always carry a non-empty ValueText;
// unavailable carries PlaceholderValue and no numeric guarantee.
type BalanceReading struct {
	WalletName   string            `json:"wallet_name"`
	ValueText    string            `json:"value_text"`
	NumericValue decimal.Decimal   `json:"numeric_value"`
	Currency     string            `json:"currency"`
	Platform     platform.Platform `json:"platform"`
	Timestamp    time.Time         `json:"timestamp"`
	Status       ReadingStatus     `json:"status"`
	ErrorMessage string            `json:"error_message,omitempty"`

	// Seeded marks a reading injected from a holdings record rather than
	// scraped; replaced by the first real reading.
	Seeded bool `json:"seeded,omitempty"`
}

// HistoryEntry is one durable reading in the per-wallet history log.
type HistoryEntry struct {
	ID          uint64            `json:"id" badgerhold:"key"`
	WalletName  string            `json:"wallet_name" badgerholdIndex:"WalletName"`
	BalanceText string            `json:"balance_text"`
	Platform    platform.Platform `json:"platform"`
	Timestamp   time.Time         `json:"timestamp"`
	Status      ReadingStatus     `json:"status"`
}

// WalletStats summarizes the entries currently retained for one wallet.
// Success and temporary_error entries both count: a carried-forward stale
// value is still a historically recorded reading.
type WalletStats struct {
	WalletName     string          `json:"wallet_name"`
	CurrentBalance decimal.Decimal `json:"current_balance"`
	MinBalance     decimal.Decimal `json:"min_balance"`
	MaxBalance     decimal.Decimal `json:"max_balance"`
	AvgBalance     decimal.Decimal `json:"avg_balance"`
	Change         decimal.Decimal `json:"change"`
	ChangePercent  decimal.Decimal `json:"change_percent"`
	TotalEntries   int             `json:"total_entries"`
	FirstEntry     time.Time       `json:"first_entry"`
	LastEntry      time.Time       `json:"last_entry"`
}
