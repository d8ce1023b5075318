package history

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/models"
	"github.com/bobmcallan/vire-balance/internal/platform"
)

func testStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, err := NewBadgerDB(logger, &config.BadgerConfig{Path: t.TempDir() + "/history"})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	return NewStore(db, logger)
}

func entryAt(wallet, text string, ts time.Time) models.HistoryEntry {
	return models.HistoryEntry{
		WalletName:  wallet,
		BalanceText: text,
		Platform:    platform.Generic,
		Timestamp:   ts,
		Status:      models.StatusSuccess,
	}
}

func TestAppendCapPerWallet(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 25; i++ {
		if err := s.Append(entryAt("main", "$100.00", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append %d failed: %v", i, err)
		}
	}
	// A second wallet must be unaffected by the first wallet's eviction.
	if err := s.Append(entryAt("other", "$50.00", base)); err != nil {
		t.Fatalf("append other failed: %v", err)
	}

	entries, err := s.RecentFor("main", 100)
	if err != nil {
		t.Fatalf("RecentFor failed: %v", err)
	}
	if len(entries) != 20 {
		t.Fatalf("expected exactly 20 retained entries, got %d", len(entries))
	}

	// Most recent first; the oldest 5 were evicted.
	if !entries[0].Timestamp.Equal(base.Add(24 * time.Minute)) {
		t.Errorf("expected newest entry first, got %v", entries[0].Timestamp)
	}
	if !entries[19].Timestamp.Equal(base.Add(5 * time.Minute)) {
		t.Errorf("expected oldest retained entry at t+5m, got %v", entries[19].Timestamp)
	}

	other, err := s.RecentFor("other", 100)
	if err != nil {
		t.Fatalf("RecentFor other failed: %v", err)
	}
	if len(other) != 1 {
		t.Errorf("expected other wallet untouched, got %d entries", len(other))
	}
}

func TestRecentForLimit(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		if err := s.Append(entryAt("main", "$100.00", base.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := s.RecentFor("main", 2)
	if err != nil {
		t.Fatalf("RecentFor failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if !entries[0].Timestamp.After(entries[1].Timestamp) {
		t.Error("expected most-recent-first ordering")
	}
}

func TestRecentAllAcrossWallets(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append(entryAt("a", "$100.00", base))
	s.Append(entryAt("b", "$200.00", base.Add(time.Minute)))
	s.Append(entryAt("a", "$110.00", base.Add(2*time.Minute)))

	entries, err := s.RecentAll(10)
	if err != nil {
		t.Fatalf("RecentAll failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].BalanceText != "$110.00" {
		t.Errorf("expected newest entry first, got %s", entries[0].BalanceText)
	}
}

func TestLatestPerWallet(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append(entryAt("a", "$100.00", base))
	s.Append(entryAt("a", "$110.00", base.Add(time.Minute)))
	s.Append(entryAt("b", "$200.00", base))

	latest, err := s.LatestPerWallet()
	if err != nil {
		t.Fatalf("LatestPerWallet failed: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("expected 2 wallets, got %d", len(latest))
	}
	if latest["a"].BalanceText != "$110.00" {
		t.Errorf("expected latest for a to be $110.00, got %s", latest["a"].BalanceText)
	}
	if latest["b"].BalanceText != "$200.00" {
		t.Errorf("expected latest for b to be $200.00, got %s", latest["b"].BalanceText)
	}
}

func TestStatsFor(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i, text := range []string{"$100.00", "$120.00", "$90.00", "$150.00"} {
		if err := s.Append(entryAt("main", text, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	stats, err := s.StatsFor("main")
	if err != nil {
		t.Fatalf("StatsFor failed: %v", err)
	}

	checks := []struct {
		name string
		got  string
		want string
	}{
		{"current", stats.CurrentBalance.String(), "150"},
		{"min", stats.MinBalance.String(), "90"},
		{"max", stats.MaxBalance.String(), "150"},
		{"avg", stats.AvgBalance.String(), "115"},
		{"change", stats.Change.String(), "50"},
		{"changePercent", stats.ChangePercent.String(), "50"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %s, want %s", c.name, c.got, c.want)
		}
	}

	if stats.TotalEntries != 4 {
		t.Errorf("expected 4 entries, got %d", stats.TotalEntries)
	}
	if !stats.FirstEntry.Equal(base) {
		t.Errorf("unexpected first entry time: %v", stats.FirstEntry)
	}
	if !stats.LastEntry.Equal(base.Add(3 * time.Hour)) {
		t.Errorf("unexpected last entry time: %v", stats.LastEntry)
	}
}

func TestStatsForNoHistory(t *testing.T) {
	s := testStore(t)
	if _, err := s.StatsFor("ghost"); err == nil {
		t.Error("expected error for wallet with no history")
	}
}

func TestStatsCountTemporaryErrors(t *testing.T) {
	s := testStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	s.Append(entryAt("main", "$100.00", base))

	stale := entryAt("main", "$100.00", base.Add(time.Hour))
	stale.Status = models.StatusTemporaryError
	s.Append(stale)

	stats, err := s.StatsFor("main")
	if err != nil {
		t.Fatalf("StatsFor failed: %v", err)
	}
	// A carried-forward stale value is still a recorded reading.
	if stats.TotalEntries != 2 {
		t.Errorf("expected temporary_error entries counted, got %d", stats.TotalEntries)
	}
}
