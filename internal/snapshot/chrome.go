package snapshot

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/log"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Default capture parameters.
const (
	DefaultTimeout = 15 * time.Second
	DefaultSettle  = 200 * time.Millisecond
	viewportWidth  = 1280
	viewportHeight = 1024
)

// ChromeOptions configures NewChromeProducer.
type ChromeOptions struct {
	// ExecPath is the Chrome/Chromium binary. Empty lets chromedp search
	// the usual locations.
	ExecPath string

	// Timeout bounds a single snapshot. Zero uses DefaultTimeout.
	Timeout time.Duration

	// Settle is the pause after the node becomes visible, letting images
	// and fonts paint. Zero uses DefaultSettle.
	Settle time.Duration

	Logger *log.Logger
}

// ChromeProducer captures thumbnails with a headless Chrome instance
// shared by all snapshots. Each snapshot runs in its own tab.
type ChromeProducer struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	timeout     time.Duration
	settle      time.Duration
	logger      *log.Logger
}

// NewChromeProducer prepares a headless browser allocator. The browser
// itself starts with the first snapshot.
func NewChromeProducer(opts ChromeOptions) *ChromeProducer {
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.WindowSize(viewportWidth, viewportHeight))
	if opts.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ExecPath))
	}
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), allocOpts...)

	p := &ChromeProducer{
		allocCtx:    allocCtx,
		cancelAlloc: cancel,
		timeout:     opts.Timeout,
		settle:      opts.Settle,
		logger:      opts.Logger,
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.settle <= 0 {
		p.settle = DefaultSettle
	}
	if p.logger == nil {
		p.logger = log.New(io.Discard)
	}
	return p
}

// Snapshot renders node and returns a JPEG data URL scaled to Width pixels
// wide, or "" on any failure.
func (p *ChromeProducer) Snapshot(ctx context.Context, node Node) string {
	if node.HTML == "" || node.Selector == "" {
		p.logger.Debug("snapshot skipped: empty node")
		return ""
	}

	start := time.Now()
	img, err := p.capture(ctx, node)
	if err != nil {
		p.logger.Warn("snapshot failed", "selector", node.Selector, "err", err)
		return ""
	}
	p.logger.Debug("snapshot captured", "selector", node.Selector, "bytes", len(img), "took", time.Since(start))
	return DataURLPrefix + base64.StdEncoding.EncodeToString(img)
}

// rect is an element's bounding box in document coordinates.
type rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (p *ChromeProducer) capture(ctx context.Context, node Node) ([]byte, error) {
	tabCtx, cancelTab := chromedp.NewContext(p.allocCtx)
	defer cancelTab()
	stop := context.AfterFunc(ctx, cancelTab)
	defer stop()

	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, p.timeout)
	defer cancelTimeout()

	selector, err := json.Marshal(node.Selector)
	if err != nil {
		return nil, fmt.Errorf("invalid selector: %w", err)
	}
	boundsJS := fmt.Sprintf(`(() => {
		const el = document.querySelector(%s);
		if (!el) return null;
		const r = el.getBoundingClientRect();
		return {x: r.left + window.scrollX, y: r.top + window.scrollY, width: r.width, height: r.height};
	})()`, selector)

	var bounds rect
	var img []byte
	err = chromedp.Run(tabCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("failed to get frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, node.HTML).Do(ctx)
		}),
		chromedp.WaitVisible(node.Selector, chromedp.ByQuery),
		chromedp.Sleep(p.settle),
		chromedp.Evaluate(boundsJS, &bounds),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if bounds.Width <= 0 || bounds.Height <= 0 {
				return errors.New("node has no visible area")
			}
			var err error
			img, err = page.CaptureScreenshot().
				WithFormat(page.CaptureScreenshotFormatJpeg).
				WithQuality(JPEGQuality).
				WithCaptureBeyondViewport(true).
				WithClip(&page.Viewport{
					X:      bounds.X,
					Y:      bounds.Y,
					Width:  bounds.Width,
					Height: bounds.Height,
					Scale:  Width / bounds.Width,
				}).
				Do(ctx)
			return err
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	return img, nil
}

// Close shuts the browser down.
func (p *ChromeProducer) Close() error {
	p.cancelAlloc()
	return nil
}
