// Package platform classifies wallet source URLs and carries the
// per-platform tuning the extraction engine depends on.
package platform

import (
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Platform identifies a supported portfolio site. Classified once from the
// wallet's source URL and immutable for the config's lifetime.
type Platform string

const (
	DeBank    Platform = "debank"
	Zerion    Platform = "zerion"
	Zapper    Platform = "zapper"
	CoinStats Platform = "coinstats"
	Generic   Platform = "generic"
)

// Classify infers the platform from a wallet source URL by domain pattern.
// Unknown domains fall back to Generic, which still gets the full strategy
// chain, just with conservative tuning.
func Classify(sourceURL string) Platform {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return Generic
	}
	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")

	switch {
	case host == "debank.com" || strings.HasSuffix(host, ".debank.com"):
		return DeBank
	case host == "zerion.io" || strings.HasSuffix(host, ".zerion.io"):
		return Zerion
	case host == "zapper.xyz" || strings.HasSuffix(host, ".zapper.xyz"):
		return Zapper
	case host == "coinstats.app" || strings.HasSuffix(host, ".coinstats.app"):
		return CoinStats
	default:
		return Generic
	}
}

// Profile carries the per-platform tuning used by the fetcher and the
// extraction strategies.
type Profile struct {
	// SettleDelay is the fixed wait after navigation. There is no rendering
	// "done" signal on these pages, so the delay is tuned per platform:
	// some portfolios take far longer to hydrate than others.
	SettleDelay time.Duration

	// MinPlausible/MaxPlausible bound accepted extraction candidates.
	// Values outside [MinPlausible, MaxPlausible) are treated as no match.
	MinPlausible decimal.Decimal
	MaxPlausible decimal.Decimal

	// Labels are the headline phrases the labeled-value strategy anchors on,
	// tried in order.
	Labels []string

	// HeadlineLines is the window the positional strategy scans for the
	// first currency-shaped token.
	HeadlineLines int

	// HasFastPath reports whether the platform exposes a lightweight
	// balance endpoint that can skip browser rendering.
	HasFastPath bool
}

var defaultMin = decimal.NewFromInt(10)
var defaultMax = decimal.NewFromInt(10_000_000)

var profiles = map[Platform]Profile{
	DeBank: {
		SettleDelay:   12 * time.Second,
		MinPlausible:  defaultMin,
		MaxPlausible:  defaultMax,
		Labels:        []string{"Net Worth", "Total Value"},
		HeadlineLines: 8,
		HasFastPath:   true,
	},
	Zerion: {
		SettleDelay:   10 * time.Second,
		MinPlausible:  defaultMin,
		MaxPlausible:  defaultMax,
		Labels:        []string{"Portfolio Value", "Total Value"},
		HeadlineLines: 6,
	},
	Zapper: {
		// Zapper hydrates aggregated positions noticeably slower than the
		// other platforms.
		SettleDelay:   18 * time.Second,
		MinPlausible:  defaultMin,
		MaxPlausible:  defaultMax,
		Labels:        []string{"Net Worth", "Total"},
		HeadlineLines: 10,
	},
	CoinStats: {
		SettleDelay:   8 * time.Second,
		MinPlausible:  defaultMin,
		MaxPlausible:  defaultMax,
		Labels:        []string{"Total Portfolio Value", "Portfolio Value"},
		HeadlineLines: 6,
	},
	Generic: {
		SettleDelay:   8 * time.Second,
		MinPlausible:  defaultMin,
		MaxPlausible:  defaultMax,
		Labels:        []string{"Net Worth", "Portfolio Value", "Total Value", "Balance"},
		HeadlineLines: 6,
	},
}

// ProfileFor returns the tuning profile for a platform. Unknown platforms
// get the Generic profile.
func ProfileFor(p Platform) Profile {
	if prof, ok := profiles[p]; ok {
		return prof
	}
	return profiles[Generic]
}
