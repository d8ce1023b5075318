// Package browser implements the rendering session over headless Chrome.
package browser

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/bobmcallan/vire-balance/internal/config"
	"github.com/bobmcallan/vire-balance/internal/interfaces"
)

// ChromeFactory creates sessions against a shared Chrome exec allocator.
// One allocator per process; each session is a fresh tab context.
type ChromeFactory struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	cfg         config.BrowserConfig
}

// NewChromeFactory prepares the exec allocator with the usual headless
// hardening flags.
func NewChromeFactory(cfg config.BrowserConfig) *ChromeFactory {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeFactory{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		cfg:         cfg,
	}
}

// NewSession opens a fresh browser tab context.
func (f *ChromeFactory) NewSession() (interfaces.Session, error) {
	ctx, cancel := chromedp.NewContext(f.allocCtx)
	return &chromeSession{ctx: ctx, cancel: cancel}, nil
}

// Close tears down the allocator and any remaining tabs.
func (f *ChromeFactory) Close() error {
	f.allocCancel()
	return nil
}

// chromeSession wraps one chromedp tab context.
type chromeSession struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// run executes chromedp actions on the session's tab, honoring the caller's
// context: caller cancellation tears the session down. Each fetch attempt
// uses a fresh session, so this is safe.
func (s *chromeSession) run(ctx context.Context, actions ...chromedp.Action) error {
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()
	return chromedp.Run(s.ctx, actions...)
}

func (s *chromeSession) Open(ctx context.Context, url string, navTimeout time.Duration) error {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	tctx, cancel := context.WithTimeout(ctx, navTimeout)
	defer cancel()

	if err := s.run(tctx,
		chromedp.Navigate(url),
		chromedp.WaitVisible("body", chromedp.ByQuery),
	); err != nil {
		return fmt.Errorf("navigation to %s failed: %w", url, err)
	}
	return nil
}

func (s *chromeSession) Settle(ctx context.Context, d time.Duration) error {
	return s.run(ctx, chromedp.Sleep(d))
}

func (s *chromeSession) ReadVisibleText(ctx context.Context) (string, error) {
	var text string
	if err := s.run(ctx,
		chromedp.Evaluate(`document.body ? document.body.innerText : ''`, &text),
	); err != nil {
		return "", fmt.Errorf("failed to read page text: %w", err)
	}
	return text, nil
}

func (s *chromeSession) LocateText(ctx context.Context, text string) (interfaces.Rect, bool, error) {
	var result struct {
		Found  bool    `json:"found"`
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	}

	expr := fmt.Sprintf(`
		(() => {
			const needle = '%s';
			const walker = document.createTreeWalker(document.body, NodeFilter.SHOW_TEXT);
			while (walker.nextNode()) {
				const node = walker.currentNode;
				if (node.textContent.includes(needle)) {
					const el = node.parentElement || document.body;
					const r = el.getBoundingClientRect();
					return { found: true, x: r.x, y: r.y, width: r.width, height: r.height };
				}
			}
			return { found: false, x: 0, y: 0, width: 0, height: 0 };
		})()
	`, escJS(text))

	if err := s.run(ctx, chromedp.Evaluate(expr, &result)); err != nil {
		return interfaces.Rect{}, false, fmt.Errorf("failed to locate %q: %w", text, err)
	}
	if !result.Found {
		return interfaces.Rect{}, false, nil
	}
	return interfaces.Rect{X: result.X, Y: result.Y, Width: result.Width, Height: result.Height}, true, nil
}

func (s *chromeSession) Screenshot(ctx context.Context, region *interfaces.Rect) ([]byte, error) {
	var buf []byte

	if region == nil {
		if err := s.run(ctx, chromedp.FullScreenshot(&buf, 90)); err != nil {
			return nil, fmt.Errorf("screenshot failed: %w", err)
		}
		return buf, nil
	}

	capture := chromedp.ActionFunc(func(cctx context.Context) error {
		data, err := page.CaptureScreenshot().
			WithClip(&page.Viewport{
				X:      region.X,
				Y:      region.Y,
				Width:  region.Width,
				Height: region.Height,
				Scale:  1,
			}).
			Do(cctx)
		if err != nil {
			return err
		}
		buf = data
		return nil
	})

	if err := s.run(ctx, capture); err != nil {
		return nil, fmt.Errorf("region screenshot failed: %w", err)
	}
	return buf, nil
}

func (s *chromeSession) Close() {
	s.cancel()
}

func escJS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return s
}
