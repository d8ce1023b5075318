package history

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/timshannon/badgerhold/v4"

	"github.com/bobmcallan/vire-balance/internal/extract"
	"github.com/bobmcallan/vire-balance/internal/models"
)

// maxEntriesPerWallet bounds file size and memory: trend and stats queries
// only need a short recent window, not full history. Eviction is per
// wallet; other wallets' entries are unaffected.
const maxEntriesPerWallet = 20

// Store implements interfaces.HistoryStore on BadgerDB. The engine is the
// single writer; readers go through the query methods.
type Store struct {
	db     *BadgerDB
	logger *slog.Logger
}

// NewStore creates a history store backed by db.
func NewStore(db *BadgerDB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Append inserts one entry and evicts the oldest entries for that wallet
// beyond the per-wallet cap.
func (s *Store) Append(entry models.HistoryEntry) error {
	if err := s.db.Store().Insert(badgerhold.NextSequence(), &entry); err != nil {
		return fmt.Errorf("failed to append history for %s: %w", entry.WalletName, err)
	}

	var entries []models.HistoryEntry
	q := badgerhold.Where("WalletName").Eq(entry.WalletName).Index("WalletName")
	if err := s.db.Store().Find(&entries, q); err != nil {
		return fmt.Errorf("failed to read history for %s: %w", entry.WalletName, err)
	}

	if len(entries) <= maxEntriesPerWallet {
		return nil
	}

	sortOldestFirst(entries)
	for _, old := range entries[:len(entries)-maxEntriesPerWallet] {
		if err := s.db.Store().Delete(old.ID, models.HistoryEntry{}); err != nil {
			return fmt.Errorf("failed to evict history entry %d for %s: %w", old.ID, entry.WalletName, err)
		}
	}

	s.logger.Debug("evicted history entries over cap",
		"wallet", entry.WalletName, "evicted", len(entries)-maxEntriesPerWallet)
	return nil
}

// RecentFor returns up to limit entries for a wallet, most recent first.
// limit <= 0 means all retained entries.
func (s *Store) RecentFor(walletName string, limit int) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	q := badgerhold.Where("WalletName").Eq(walletName).Index("WalletName")
	if err := s.db.Store().Find(&entries, q); err != nil {
		return nil, fmt.Errorf("failed to read history for %s: %w", walletName, err)
	}

	sortNewestFirst(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// RecentAll returns up to limit entries across all wallets, most recent first.
func (s *Store) RecentAll(limit int) ([]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	sortNewestFirst(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// LatestPerWallet returns the most recent entry for every wallet that has
// history, keyed by wallet name.
func (s *Store) LatestPerWallet() (map[string]models.HistoryEntry, error) {
	var entries []models.HistoryEntry
	if err := s.db.Store().Find(&entries, nil); err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	latest := make(map[string]models.HistoryEntry)
	for _, e := range entries {
		cur, ok := latest[e.WalletName]
		if !ok || e.Timestamp.After(cur.Timestamp) {
			latest[e.WalletName] = e
		}
	}
	return latest, nil
}

// StatsFor computes trend statistics over the entries currently retained
// for a wallet. Change is measured against the oldest retained entry.
func (s *Store) StatsFor(walletName string) (*models.WalletStats, error) {
	entries, err := s.RecentFor(walletName, 0)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no history for wallet %s", walletName)
	}

	// Chronological order for first/last semantics.
	sortOldestFirst(entries)

	var values []decimal.Decimal
	for _, e := range entries {
		v, ok := extract.ParseMoney(e.BalanceText)
		if !ok {
			s.logger.Warn("skipping unparseable history entry",
				"wallet", walletName, "text", e.BalanceText)
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no numeric history for wallet %s", walletName)
	}

	stats := &models.WalletStats{
		WalletName:   walletName,
		MinBalance:   values[0],
		MaxBalance:   values[0],
		TotalEntries: len(entries),
		FirstEntry:   entries[0].Timestamp,
		LastEntry:    entries[len(entries)-1].Timestamp,
	}

	sum := decimal.Zero
	for _, v := range values {
		if v.LessThan(stats.MinBalance) {
			stats.MinBalance = v
		}
		if v.GreaterThan(stats.MaxBalance) {
			stats.MaxBalance = v
		}
		sum = sum.Add(v)
	}

	first := values[0]
	current := values[len(values)-1]

	stats.CurrentBalance = current
	stats.AvgBalance = sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2)
	stats.Change = current.Sub(first)
	if !first.IsZero() {
		stats.ChangePercent = stats.Change.Div(first).Mul(decimal.NewFromInt(100)).Round(2)
	}

	return stats, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func sortOldestFirst(entries []models.HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID < entries[j].ID
		}
		return entries[i].Timestamp.Before(entries[j].Timestamp)
	})
}

func sortNewestFirst(entries []models.HistoryEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Timestamp.Equal(entries[j].Timestamp) {
			return entries[i].ID > entries[j].ID
		}
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}
