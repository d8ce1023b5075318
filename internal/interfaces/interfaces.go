package interfaces

import (
	"context"
	"time"

	"github.com/bobmcallan/vire-balance/internal/models"
)

// Rect is a screen region in CSS pixels.
type Rect struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// Session is the capability surface over one rendered page. It is the only
// abstraction that touches a real rendering engine. Every session consumes
// one rendering slot; callers must Close on every exit path.
type Session interface {
	// Open navigates to url, bounded by navTimeout.
	Open(ctx context.Context, url string, navTimeout time.Duration) error

	// Settle waits a fixed duration for the page to hydrate. Third-party
	// pages expose no rendering-complete signal, so this is a plain wait.
	Settle(ctx context.Context, d time.Duration) error

	// ReadVisibleText returns the page's visible text.
	ReadVisibleText(ctx context.Context) (string, error)

	// LocateText finds the on-screen position of the first element whose
	// text contains the given phrase.
	LocateText(ctx context.Context, text string) (Rect, bool, error)

	// Screenshot captures the page, or just region when non-nil.
	Screenshot(ctx context.Context, region *Rect) ([]byte, error)

	// Close releases the rendering slot.
	Close()
}

// SessionFactory creates browser sessions. Implementations can be swapped
// (chromedp in production, fakes in tests).
type SessionFactory interface {
	NewSession() (Session, error)
	Close() error
}

// HistoryStore is the durable per-wallet-capped log of past readings.
type HistoryStore interface {
	Append(entry models.HistoryEntry) error
	RecentFor(walletName string, limit int) ([]models.HistoryEntry, error)
	RecentAll(limit int) ([]models.HistoryEntry, error)
	LatestPerWallet() (map[string]models.HistoryEntry, error)
	StatsFor(walletName string) (*models.WalletStats, error)
	Close() error
}
