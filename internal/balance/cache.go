package balance

import (
	"sync"

	"github.com/bobmcallan/vire-balance/internal/models"
)

// LiveCache holds the latest reading per wallet, in memory only. It is
// rebuilt from nothing at process start; only the fetcher (and wallet
// seeding) writes, readers never mutate.
// Thread-safe with sync.RWMutex.
type LiveCache struct {
	mu       sync.RWMutex
	readings map[string]models.BalanceReading
}

// NewLiveCache creates an empty cache.
func NewLiveCache() *LiveCache {
	return &LiveCache{
		readings: make(map[string]models.BalanceReading),
	}
}

// Put stores the latest reading for a wallet.
func (c *LiveCache) Put(reading models.BalanceReading) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.readings[reading.WalletName] = reading
}

// Get returns the latest reading for a wallet, if any.
func (c *LiveCache) Get(walletName string) (models.BalanceReading, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.readings[walletName]
	return r, ok
}

// LastKnownGood returns the latest reading carrying a usable value:
// success readings (seeded included) and carried-forward temporary_error
// readings qualify; unavailable placeholders do not.
func (c *LiveCache) LastKnownGood(walletName string) (models.BalanceReading, bool) {
	r, ok := c.Get(walletName)
	if !ok {
		return models.BalanceReading{}, false
	}
	if r.Status == models.StatusUnavailable || r.ValueText == "" || r.ValueText == models.PlaceholderValue {
		return models.BalanceReading{}, false
	}
	return r, true
}

// Retain drops cached readings for wallets not in keep. Called when the
// configured wallet set is replaced in whole.
func (c *LiveCache) Retain(keep map[string]bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for name := range c.readings {
		if !keep[name] {
			delete(c.readings, name)
		}
	}
}
