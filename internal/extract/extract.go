// Package extract implements the balance extraction strategies. Every
// strategy is a pure function over rendered page text, so the whole set is
// unit-testable without a browser.
//
// Strategies run in priority order: platform-anchored first (labeled,
// positional), then the opportunistic whole-page scan as a last resort.
// A candidate that fails validation is "no match", never a usable answer —
// a wrong number is worse than a missing one.
package extract

import (
	"regexp"
	"strings"

	"github.com/bobmcallan/vire-balance/internal/platform"
	"github.com/shopspring/decimal"
)

// RawMatch is a candidate balance found on a page: the token as rendered
// plus its parsed numeric value.
type RawMatch struct {
	Text  string
	Value decimal.Decimal
}

// Strategy is one named extraction attempt over visible page text.
type Strategy struct {
	Name string
	Fn   func(pageText string, prof platform.Profile) *RawMatch
}

// ChainFor returns the strategy chain for a platform, in priority order.
func ChainFor(p platform.Platform) []Strategy {
	switch p {
	case platform.Zerion, platform.CoinStats:
		// These render the headline value as the first currency token on
		// the page; the positional shape outranks label anchoring.
		return []Strategy{
			{Name: "positional", Fn: Positional},
			{Name: "labeled", Fn: Labeled},
			{Name: "opportunistic", Fn: Opportunistic},
		}
	default:
		return []Strategy{
			{Name: "labeled", Fn: Labeled},
			{Name: "positional", Fn: Positional},
			{Name: "opportunistic", Fn: Opportunistic},
		}
	}
}

var (
	currencyToken = regexp.MustCompile(`\$\s?(\d[\d,]*(?:\.\d+)?)`)
	percentToken  = regexp.MustCompile(`[+\-]?\d+(?:\.\d+)?\s?%`)
	dateToken     = regexp.MustCompile(`\b\d{1,2}[/\-]\d{1,2}[/\-]\d{2,4}\b|\b(?:Jan|Feb|Mar|Apr|May|Jun|Jul|Aug|Sep|Oct|Nov|Dec)[a-z]*\s+\d{1,2}\b`)
)

// ParseMoney parses a currency-formatted token ("$1,234.56") into a decimal.
func ParseMoney(token string) (decimal.Decimal, bool) {
	cleaned := strings.TrimSpace(token)
	cleaned = strings.TrimPrefix(cleaned, "$")
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	value, err := decimal.NewFromString(cleaned)
	if err != nil || value.IsNegative() {
		return decimal.Decimal{}, false
	}
	return value, true
}

// Validate applies the plausibility band. Values outside
// [MinPlausible, MaxPlausible) are rejected outright.
func Validate(value decimal.Decimal, prof platform.Profile) bool {
	if value.IsNegative() {
		return false
	}
	return value.GreaterThanOrEqual(prof.MinPlausible) && value.LessThan(prof.MaxPlausible)
}

// noiseLine reports whether a line looks like a percentage, a date, or a
// rate-of-change figure rather than a balance.
func noiseLine(line string) bool {
	if percentToken.MatchString(line) {
		return true
	}
	if dateToken.MatchString(line) {
		return true
	}
	trimmed := strings.TrimSpace(line)
	return strings.HasPrefix(trimmed, "+") || strings.HasPrefix(trimmed, "-")
}

// firstCurrencyIn returns the first validated currency token in s.
func firstCurrencyIn(s string, prof platform.Profile) *RawMatch {
	for _, tok := range currencyToken.FindAllString(s, -1) {
		value, ok := ParseMoney(tok)
		if !ok || !Validate(value, prof) {
			continue
		}
		return &RawMatch{Text: strings.ReplaceAll(tok, " ", ""), Value: value}
	}
	return nil
}

// Labeled locates a known headline label ("Net Worth", "Portfolio Value")
// and searches a bounded window of subsequent lines for a currency token,
// skipping percentage/date/change noise.
func Labeled(pageText string, prof platform.Profile) *RawMatch {
	lower := strings.ToLower(pageText)
	for _, label := range prof.Labels {
		idx := strings.Index(lower, strings.ToLower(label))
		if idx < 0 {
			continue
		}

		window := pageText[idx:]
		lines := strings.Split(window, "\n")
		// Bounded window: the label line plus the next few lines. Headline
		// values sit immediately under their label on every known layout.
		limit := 6
		if limit > len(lines) {
			limit = len(lines)
		}
		for i := 0; i < limit; i++ {
			line := lines[i]
			if i > 0 && noiseLine(line) {
				continue
			}
			if m := firstCurrencyIn(line, prof); m != nil {
				return m
			}
		}
	}
	return nil
}

// Positional matches the headline shape some platforms render: the first
// currency token within the first N visible lines, optionally followed by a
// percentage change line. That token takes priority over any other number
// on the page.
func Positional(pageText string, prof platform.Profile) *RawMatch {
	limit := prof.HeadlineLines
	if limit <= 0 {
		limit = 6
	}

	seen := 0
	for _, line := range strings.Split(pageText, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen++
		if seen > limit {
			break
		}
		if noiseLine(line) {
			continue
		}
		if m := firstCurrencyIn(line, prof); m != nil {
			return m
		}
	}
	return nil
}

// Opportunistic is the fallback of last resort: collect every currency
// token on the whole page, reject implausible ones, and return the largest
// survivor. Headline portfolio totals are almost always the largest dollar
// figure shown; line-item amounts are smaller.
func Opportunistic(pageText string, prof platform.Profile) *RawMatch {
	var best *RawMatch
	for _, tok := range currencyToken.FindAllString(pageText, -1) {
		value, ok := ParseMoney(tok)
		if !ok || !Validate(value, prof) {
			continue
		}
		if best == nil || value.GreaterThan(best.Value) {
			best = &RawMatch{Text: strings.ReplaceAll(tok, " ", ""), Value: value}
		}
	}
	return best
}

// OutOfBandOnly reports whether the page shows currency tokens but every one
// of them falls outside the plausibility band. Distinguishes "the value is
// there but implausible" from "no value rendered at all".
func OutOfBandOnly(pageText string, prof platform.Profile) bool {
	found := false
	for _, tok := range currencyToken.FindAllString(pageText, -1) {
		value, ok := ParseMoney(tok)
		if !ok {
			continue
		}
		found = true
		if Validate(value, prof) {
			return false
		}
	}
	return found
}

// FormatMoney renders a decimal as display text ("$1,234.56").
func FormatMoney(value decimal.Decimal) string {
	fixed := value.StringFixed(2)

	neg := strings.HasPrefix(fixed, "-")
	fixed = strings.TrimPrefix(fixed, "-")

	parts := strings.SplitN(fixed, ".", 2)
	whole := parts[0]

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "$" + b.String()
	if len(parts) == 2 {
		out += "." + parts[1]
	}
	if neg {
		out = "-" + out
	}
	return out
}
