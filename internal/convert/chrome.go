package convert

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// ChromeConfig controls the headless browser renderer.
type ChromeConfig struct {
	Timeout time.Duration
}

// ChromeRenderer prints markup documents to PDF with headless Chrome, keeping
// the filing's own layout.
type ChromeRenderer struct {
	cfg         ChromeConfig
	allocator   context.Context
	allocCancel context.CancelFunc
}

var _ Renderer = (*ChromeRenderer)(nil)

// NewChromeRenderer prepares a browser allocator. Chrome itself is started
// lazily on the first Render.
func NewChromeRenderer(cfg ChromeConfig) *ChromeRenderer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &ChromeRenderer{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	r.allocCancel()
}

// Render loads raw into a blank page and prints it.
func (r *ChromeRenderer) Render(ctx context.Context, raw []byte) ([]byte, error) {
	taskCtx, taskCancel := chromedp.NewContext(r.allocator)
	defer taskCancel()

	taskCtx, cancel := context.WithTimeout(taskCtx, r.cfg.Timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var out []byte
	err := chromedp.Run(taskCtx,
		chromedp.Navigate("about:blank"),
		chromedp.ActionFunc(func(ctx context.Context) error {
			tree, err := page.GetFrameTree().Do(ctx)
			if err != nil {
				return fmt.Errorf("frame tree: %w", err)
			}
			return page.SetDocumentContent(tree.Frame.ID, string(raw)).Do(ctx)
		}),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			data, _, err := page.PrintToPDF().WithPrintBackground(true).Do(ctx)
			if err != nil {
				return fmt.Errorf("print to pdf: %w", err)
			}
			out = data
			return nil
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("chromedp run: %w", err)
	}
	return out, nil
}
