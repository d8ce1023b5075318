package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// BalanceQuerier is the lightweight fast path: a network call that returns a
// wallet's total balance without rendering the page. Not every platform has
// one; the fetcher falls back to the browser when FastPathFor returns nil.
type BalanceQuerier interface {
	TotalBalance(ctx context.Context, sourceURL string) (decimal.Decimal, error)
}

// DeBankClient queries DeBank's undocumented total_balance endpoint.
// The endpoint is best-effort: it changes without notice and is only ever
// used as an optimization ahead of browser rendering.
type DeBankClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewDeBankClient creates a client with a short timeout; a slow fast path
// defeats its purpose.
func NewDeBankClient(timeout time.Duration) *DeBankClient {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &DeBankClient{
		baseURL:    "https://api.debank.com",
		httpClient: &http.Client{Timeout: timeout},
	}
}

// TotalBalance fetches the USD total for the address embedded in sourceURL.
// GET /user/total_balance?addr={addr} -> { data: { total_usd_value: float } }
func (c *DeBankClient) TotalBalance(ctx context.Context, sourceURL string) (decimal.Decimal, error) {
	addr, err := AddressFromURL(sourceURL)
	if err != nil {
		return decimal.Decimal{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/user/total_balance?addr="+url.QueryEscape(addr), nil)
	if err != nil {
		return decimal.Decimal{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to reach debank api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return decimal.Decimal{}, fmt.Errorf("debank api returned %d: %s", resp.StatusCode, string(body))
	}

	var result struct {
		Data struct {
			TotalUSDValue json.Number `json:"total_usd_value"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return decimal.Decimal{}, fmt.Errorf("failed to parse response: %w", err)
	}
	if result.Data.TotalUSDValue == "" {
		return decimal.Decimal{}, fmt.Errorf("debank api response missing total_usd_value")
	}

	value, err := decimal.NewFromString(result.Data.TotalUSDValue.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("debank api returned non-numeric total: %w", err)
	}
	return value, nil
}

// AddressFromURL extracts the wallet address from a profile-style URL such
// as https://debank.com/profile/0xabc... The address is the first non-empty
// path segment after "profile".
func AddressFromURL(sourceURL string) (string, error) {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return "", fmt.Errorf("invalid source url %q: %w", sourceURL, err)
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, seg := range segments {
		if seg == "profile" && i+1 < len(segments) && segments[i+1] != "" {
			return segments[i+1], nil
		}
	}
	return "", fmt.Errorf("no wallet address in url %q", sourceURL)
}

// FastPathFor returns the lightweight balance querier for a platform, or
// nil when the platform has no usable endpoint.
func FastPathFor(p Platform, timeout time.Duration) BalanceQuerier {
	switch p {
	case DeBank:
		return NewDeBankClient(timeout)
	default:
		return nil
	}
}
