package balance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/bobmcallan/vire-balance/internal/interfaces"
	"github.com/bobmcallan/vire-balance/internal/models"
	"github.com/bobmcallan/vire-balance/internal/platform"
)

func TestFetchOneSuccess(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{pageText: "Net Worth\n$12,345.67"}}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusSuccess {
		t.Fatalf("expected success, got %s (%s)", reading.Status, reading.ErrorMessage)
	}
	if reading.ValueText != "$12,345.67" {
		t.Errorf("unexpected value text: %s", reading.ValueText)
	}
	if reading.NumericValue.String() != "12345.67" {
		t.Errorf("unexpected numeric value: %s", reading.NumericValue.String())
	}

	cached, ok := cache.Get("main")
	if !ok || cached.ValueText != "$12,345.67" {
		t.Error("expected cache updated with fresh value")
	}

	entries := history.all()
	if len(entries) != 1 || entries[0].Status != models.StatusSuccess {
		t.Fatalf("expected one success history entry, got %v", entries)
	}
	if !factory.allClosed() {
		t.Error("expected session closed after success")
	}
}

func TestFetchOneRetriesThenStaleFallback(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{openErr: errors.New("navigation timeout")}}}
	cache := NewLiveCache()
	cache.Put(models.BalanceReading{
		WalletName:   "main",
		ValueText:    "$999.00",
		NumericValue: decimal.NewFromInt(999),
		Status:       models.StatusSuccess,
	})
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if factory.createdCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", factory.createdCount())
	}
	if reading.Status != models.StatusTemporaryError {
		t.Fatalf("expected temporary_error, got %s", reading.Status)
	}
	if reading.ValueText != "$999.00" {
		t.Errorf("expected stale value carried forward, got %s", reading.ValueText)
	}
	if reading.ErrorMessage == "" {
		t.Error("expected explanatory error message")
	}

	entries := history.all()
	if len(entries) != 1 || entries[0].Status != models.StatusTemporaryError {
		t.Fatalf("expected one temporary_error history entry, got %v", entries)
	}
	if entries[0].BalanceText != "$999.00" {
		t.Errorf("expected stale value in history, got %s", entries[0].BalanceText)
	}
	if !factory.allClosed() {
		t.Error("expected every attempt's session closed")
	}
}

func TestFetchOneUnavailableWithoutPrior(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{openErr: errors.New("connection refused")}}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", reading.Status)
	}
	if reading.ValueText != models.PlaceholderValue {
		t.Errorf("expected placeholder value, got %s", reading.ValueText)
	}
	if len(history.all()) != 0 {
		t.Error("unavailable readings must not be persisted")
	}

	cached, ok := cache.Get("main")
	if !ok || cached.Status != models.StatusUnavailable {
		t.Error("expected unavailable reading cached for readers")
	}
}

func TestFetchOneFastPathSkipsBrowser(t *testing.T) {
	factory := &fakeFactory{}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	querier := &fakeQuerier{value: decimal.NewFromInt(5000)}
	f.fastPath = func(platform.Platform) platform.BalanceQuerier { return querier }

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusSuccess {
		t.Fatalf("expected success via fast path, got %s", reading.Status)
	}
	if reading.ValueText != "$5,000.00" {
		t.Errorf("unexpected value text: %s", reading.ValueText)
	}
	if querier.calls != 1 {
		t.Errorf("expected one fast path call, got %d", querier.calls)
	}
	if factory.createdCount() != 0 {
		t.Errorf("expected no browser session, got %d", factory.createdCount())
	}
}

func TestFetchOneFastPathFailureFallsBackToBrowser(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{pageText: "Net Worth\n$750.00"}}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	f.fastPath = func(platform.Platform) platform.BalanceQuerier {
		return &fakeQuerier{err: errors.New("endpoint gone")}
	}

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusSuccess {
		t.Fatalf("expected browser fallback success, got %s", reading.Status)
	}
	if reading.ValueText != "$750.00" {
		t.Errorf("unexpected value text: %s", reading.ValueText)
	}
	if factory.createdCount() != 1 {
		t.Errorf("expected one browser session, got %d", factory.createdCount())
	}
}

func TestFetchOneImplausibleValuesForceRetry(t *testing.T) {
	// The page shows only values outside the plausibility band; every
	// strategy must refuse them rather than degrade to a wrong number.
	factory := &fakeFactory{scripts: []*fakeSession{{pageText: "Net Worth\n$3.00\nTVL $15,000,000.00"}}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if factory.createdCount() != 3 {
		t.Errorf("expected 3 attempts, got %d", factory.createdCount())
	}
	if reading.Status != models.StatusUnavailable {
		t.Fatalf("expected unavailable, got %s with %q", reading.Status, reading.ValueText)
	}
	if !strings.Contains(reading.ErrorMessage, "only implausible values shown") {
		t.Errorf("expected validation failure message, got %q", reading.ErrorMessage)
	}
}

func TestFetchOneCancelledBeforeStartLeavesStateUntouched(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{openErr: errors.New("navigation timeout")}}}
	cache := NewLiveCache()
	prior := models.BalanceReading{
		WalletName:   "main",
		ValueText:    "$999.00",
		NumericValue: decimal.NewFromInt(999),
		Status:       models.StatusSuccess,
	}
	cache.Put(prior)
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reading := f.FetchOne(ctx, testWallet("main"))

	if factory.createdCount() != 0 {
		t.Errorf("expected no attempts after cancellation, got %d", factory.createdCount())
	}
	if reading.Status != models.StatusSuccess || reading.ValueText != "$999.00" {
		t.Errorf("expected the prior reading back, got %s %q", reading.Status, reading.ValueText)
	}
	if len(history.all()) != 0 {
		t.Errorf("cancelled fetch must not write history, got %v", history.all())
	}
	cached, ok := cache.Get("main")
	if !ok || cached.Status != models.StatusSuccess {
		t.Errorf("cancelled fetch must not downgrade the cache, got %v", cached)
	}
}

func TestFetchOneCancelledMidRetriesAbandons(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{openErr: errors.New("navigation timeout")}}}
	cache := NewLiveCache()
	cache.Put(models.BalanceReading{
		WalletName:   "main",
		ValueText:    "$999.00",
		NumericValue: decimal.NewFromInt(999),
		Status:       models.StatusSuccess,
	})
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	// Cancellation lands between attempts, as StopMonitor or a dropped
	// HTTP client would deliver it.
	ctx, cancel := context.WithCancel(context.Background())
	f.sleep = func(context.Context, time.Duration) { cancel() }

	reading := f.FetchOne(ctx, testWallet("main"))

	if factory.createdCount() >= 3 {
		t.Errorf("expected retries abandoned, got %d attempts", factory.createdCount())
	}
	if reading.Status != models.StatusSuccess || reading.ValueText != "$999.00" {
		t.Errorf("expected the prior reading back, got %s %q", reading.Status, reading.ValueText)
	}
	if len(history.all()) != 0 {
		t.Errorf("abandoned fetch must not write history, got %v", history.all())
	}
	cached, _ := cache.Get("main")
	if cached.Status != models.StatusSuccess {
		t.Errorf("abandoned fetch must not downgrade the cache, got %s", cached.Status)
	}
	if !factory.allClosed() {
		t.Error("expected every attempt's session closed")
	}
}

func TestFetchOneCancelledWithoutPriorReturnsUnavailable(t *testing.T) {
	factory := &fakeFactory{}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reading := f.FetchOne(ctx, testWallet("main"))

	if reading.Status != models.StatusUnavailable {
		t.Fatalf("expected unavailable, got %s", reading.Status)
	}
	if reading.ValueText != models.PlaceholderValue {
		t.Errorf("expected placeholder value, got %s", reading.ValueText)
	}
	if _, ok := cache.Get("main"); ok {
		t.Error("cancelled fetch must not populate the cache")
	}
	if len(history.all()) != 0 {
		t.Error("cancelled fetch must not write history")
	}
}

func TestFetchOneOpticalFallback(t *testing.T) {
	session := &fakeSession{
		pageText: "Net Worth", // value rendered as an image, not text
		locate:   map[string]interfaces.Rect{"Net Worth": {X: 10, Y: 20, Width: 120, Height: 18}},
		image:    []byte("png-bytes"),
	}
	factory := &fakeFactory{scripts: []*fakeSession{session}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)
	f.recognizer = &fakeRecognizer{text: "$4,321.09"}

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusSuccess {
		t.Fatalf("expected optical success, got %s (%s)", reading.Status, reading.ErrorMessage)
	}
	if reading.ValueText != "$4,321.09" {
		t.Errorf("unexpected value text: %s", reading.ValueText)
	}
}

func TestFetchOneOpticalRejectsImplausible(t *testing.T) {
	session := &fakeSession{
		pageText: "Net Worth",
		locate:   map[string]interfaces.Rect{"Net Worth": {X: 10, Y: 20, Width: 120, Height: 18}},
		image:    []byte("png-bytes"),
	}
	factory := &fakeFactory{scripts: []*fakeSession{session}}
	cache := NewLiveCache()
	history := &fakeHistory{}
	f := newTestFetcher(factory, cache, history)
	f.recognizer = &fakeRecognizer{text: "$2.00"}

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusUnavailable {
		t.Fatalf("expected unavailable for implausible optical value, got %s", reading.Status)
	}
}

func TestFetchOnePersistenceFailureDoesNotBlockCache(t *testing.T) {
	factory := &fakeFactory{scripts: []*fakeSession{{pageText: "Net Worth\n$12,345.67"}}}
	cache := NewLiveCache()
	history := &fakeHistory{failErr: errors.New("disk full")}
	f := newTestFetcher(factory, cache, history)

	reading := f.FetchOne(context.Background(), testWallet("main"))

	if reading.Status != models.StatusSuccess {
		t.Fatalf("expected success despite persistence failure, got %s", reading.Status)
	}
	if _, ok := cache.Get("main"); !ok {
		t.Error("expected cache updated despite history failure")
	}
}
