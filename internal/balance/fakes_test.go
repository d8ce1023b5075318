package balance

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/vire-balance/internal/common"
	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/interfaces"
	"github.com/bobmcallan/vire-balance/internal/models"
	"github.com/bobmcallan/vire-balance/internal/platform"
)

// fakeSession is a scripted browser session.
type fakeSession struct {
	pageText string
	openErr  error
	locate   map[string]interfaces.Rect
	image    []byte

	mu     sync.Mutex
	closed bool
}

func (s *fakeSession) Open(_ context.Context, _ string, _ time.Duration) error {
	return s.openErr
}

func (s *fakeSession) Settle(_ context.Context, _ time.Duration) error { return nil }

func (s *fakeSession) ReadVisibleText(_ context.Context) (string, error) {
	return s.pageText, nil
}

func (s *fakeSession) LocateText(_ context.Context, text string) (interfaces.Rect, bool, error) {
	r, ok := s.locate[text]
	return r, ok, nil
}

func (s *fakeSession) Screenshot(_ context.Context, _ *interfaces.Rect) ([]byte, error) {
	if s.image == nil {
		return nil, errors.New("no image scripted")
	}
	return s.image, nil
}

func (s *fakeSession) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// fakeFactory hands out scripted sessions in order (the last script is
// reused once exhausted) and detects overlapping sessions.
type fakeFactory struct {
	mu         sync.Mutex
	scripts    []*fakeSession
	created    []*fakeSession
	active     int
	overlapped bool
}

func (f *fakeFactory) NewSession() (interfaces.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var s *fakeSession
	if len(f.scripts) > 0 {
		src := f.scripts[0]
		if len(f.scripts) > 1 {
			f.scripts = f.scripts[1:]
		}
		s = &fakeSession{
			pageText: src.pageText,
			openErr:  src.openErr,
			locate:   src.locate,
			image:    src.image,
		}
	} else {
		s = &fakeSession{openErr: errors.New("no session scripted")}
	}

	f.created = append(f.created, s)
	f.active++
	if f.active > 1 {
		f.overlapped = true
	}
	return &countingSession{fakeSession: s, factory: f}, nil
}

func (f *fakeFactory) Close() error { return nil }

func (f *fakeFactory) createdCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

func (f *fakeFactory) allClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.created {
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if !closed {
			return false
		}
	}
	return true
}

// countingSession decrements the factory's active count on Close.
type countingSession struct {
	*fakeSession
	factory *fakeFactory
	once    sync.Once
}

func (s *countingSession) Close() {
	s.once.Do(func() {
		s.factory.mu.Lock()
		s.factory.active--
		s.factory.mu.Unlock()
	})
	s.fakeSession.Close()
}

// fakeHistory is an in-memory interfaces.HistoryStore.
type fakeHistory struct {
	mu      sync.Mutex
	entries []models.HistoryEntry
	failErr error
}

func (h *fakeHistory) Append(entry models.HistoryEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failErr != nil {
		return h.failErr
	}
	entry.ID = uint64(len(h.entries) + 1)
	h.entries = append(h.entries, entry)
	return nil
}

func (h *fakeHistory) RecentFor(walletName string, limit int) ([]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []models.HistoryEntry
	for _, e := range h.entries {
		if e.WalletName == walletName {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) RecentAll(limit int) ([]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (h *fakeHistory) LatestPerWallet() (map[string]models.HistoryEntry, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	latest := make(map[string]models.HistoryEntry)
	for _, e := range h.entries {
		cur, ok := latest[e.WalletName]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			latest[e.WalletName] = e
		}
	}
	return latest, nil
}

func (h *fakeHistory) StatsFor(walletName string) (*models.WalletStats, error) {
	return nil, errors.New("not implemented in fake")
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) all() []models.HistoryEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]models.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// fakeQuerier is a scripted fast-path balance endpoint.
type fakeQuerier struct {
	value decimal.Decimal
	err   error
	calls int
}

func (q *fakeQuerier) TotalBalance(_ context.Context, _ string) (decimal.Decimal, error) {
	q.calls++
	return q.value, q.err
}

// fakeRecognizer returns a fixed recognition result.
type fakeRecognizer struct {
	text string
	err  error
}

func (r *fakeRecognizer) ReadAmount(_ []byte) (string, error) { return r.text, r.err }
func (r *fakeRecognizer) Close() error                        { return nil }

func testMonitorConfig() config.MonitorConfig {
	return config.MonitorConfig{
		IntervalMinutes:    60,
		WalletDelaySeconds: 5,
		RetryAttempts:      3,
		RetryDelaySeconds:  1,
	}
}

// newTestFetcher builds a fetcher over fakes with no real sleeping and no
// fast path unless a test installs one.
func newTestFetcher(factory *fakeFactory, cache *LiveCache, history *fakeHistory) *Fetcher {
	f := NewFetcher(factory, nil, cache, history, testMonitorConfig(), config.BrowserConfig{NavTimeoutSeconds: 5}, common.NewSilentLogger())
	f.sleep = func(context.Context, time.Duration) {}
	f.fastPath = func(platform.Platform) platform.BalanceQuerier { return nil }
	return f
}

func testWallet(name string) models.WalletConfig {
	return models.WalletConfig{
		ID:          "id-" + name,
		DisplayName: name,
		SourceURL:   "https://example.com/wallet/" + name,
		Platform:    platform.Generic,
	}
}
