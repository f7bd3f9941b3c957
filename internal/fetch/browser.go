package fetch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

// ErrNoSuchControl is returned when a click target is absent from the page.
// For pagination controls this means "no more pages", not a failure.
var ErrNoSuchControl = errors.New("no such control on page")

// Page is one headless-browser tab. Sources drive their listing state
// machines (load, scroll, click-next-page) through it.
type Page interface {
	// Navigate loads the URL and waits for the document body.
	Navigate(ctx context.Context, url string) error

	// HTML returns the current rendered markup.
	HTML(ctx context.Context) (string, error)

	// Count returns how many elements match the selector right now.
	Count(ctx context.Context, selector string) (int, error)

	// ScrollBottom scrolls to the page end and gives lazy loaders a moment
	// to fire.
	ScrollBottom(ctx context.Context) error

	// ClickText clicks the first element matching selector whose trimmed
	// text equals label exactly. Returns ErrNoSuchControl when absent.
	ClickText(ctx context.Context, selector, label string) error

	// Click clicks the first element matching selector. Returns
	// ErrNoSuchControl when absent.
	Click(ctx context.Context, selector string) error

	// PollAttribute reads the attribute until done approves the value or the
	// window elapses. Returns the last observed value; ok reports whether
	// done approved it.
	PollAttribute(ctx context.Context, selector, attr string, window time.Duration, done func(string) bool) (value string, ok bool, err error)

	// Close releases the tab.
	Close() error
}

// PageOpener opens browser tabs. Implemented by Browser; faked in source
// tests.
type PageOpener interface {
	OpenPage(ctx context.Context) (Page, error)
}

// Browser owns one headless Chrome process shared by all tabs.
type Browser struct {
	allocCtx      context.Context
	cancelAlloc   context.CancelFunc
	browserCtx    context.Context
	cancelBrowser context.CancelFunc
	timeout       time.Duration
}

// NewBrowser starts a headless browser. timeout bounds every page operation
// so an unresponsive page cannot stall a worker indefinitely.
func NewBrowser(ctx context.Context, userAgent string, timeout time.Duration) (*Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.DisableGPU,
		chromedp.NoSandbox,
		chromedp.Headless,
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	// Start the process up front so a missing Chrome binary fails here
	// rather than in the middle of a run
	if err := chromedp.Run(browserCtx); err != nil {
		cancelBrowser()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return &Browser{
		allocCtx:      allocCtx,
		cancelAlloc:   cancelAlloc,
		browserCtx:    browserCtx,
		cancelBrowser: cancelBrowser,
		timeout:       timeout,
	}, nil
}

// OpenPage opens a fresh tab.
func (b *Browser) OpenPage(ctx context.Context) (Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	return &chromePage{ctx: tabCtx, cancel: cancel, timeout: b.timeout}, nil
}

// Close shuts the browser down.
func (b *Browser) Close() error {
	b.cancelBrowser()
	b.cancelAlloc()
	return nil
}

type chromePage struct {
	ctx     context.Context
	cancel  context.CancelFunc
	timeout time.Duration
}

// run executes actions on the tab under the operation timeout, honoring the
// caller's cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opCtx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(opCtx, actions...)
}

func (p *chromePage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	)
}

func (p *chromePage) HTML(ctx context.Context) (string, error) {
	var html string
	if err := p.run(ctx, chromedp.OuterHTML("html", &html)); err != nil {
		return "", err
	}
	return html, nil
}

func (p *chromePage) Count(ctx context.Context, selector string) (int, error) {
	var n int
	js := fmt.Sprintf("document.querySelectorAll(%q).length", selector)
	if err := p.run(ctx, chromedp.Evaluate(js, &n)); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *chromePage) ScrollBottom(ctx context.Context) error {
	return p.run(ctx,
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(500*time.Millisecond),
	)
}

func (p *chromePage) ClickText(ctx context.Context, selector, label string) error {
	js := fmt.Sprintf(`(() => {
		const els = document.querySelectorAll(%q);
		for (const el of els) {
			if (el.textContent.trim() === %q) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, selector, label)

	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return ErrNoSuchControl
	}
	return nil
}

func (p *chromePage) Click(ctx context.Context, selector string) error {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (!el) return false;
		el.click();
		return true;
	})()`, selector)

	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(js, &clicked)); err != nil {
		return err
	}
	if !clicked {
		return ErrNoSuchControl
	}
	return nil
}

func (p *chromePage) PollAttribute(ctx context.Context, selector, attr string, window time.Duration, done func(string) bool) (string, bool, error) {
	js := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		return el ? (el.getAttribute(%q) || "") : "";
	})()`, selector, attr)

	deadline := time.Now().Add(window)
	var last string
	for {
		var value string
		if err := p.run(ctx, chromedp.Evaluate(js, &value)); err != nil {
			return last, false, err
		}
		last = value
		if done(value) {
			return value, true, nil
		}
		if time.Now().After(deadline) {
			return last, false, nil
		}

		select {
		case <-time.After(250 * time.Millisecond):
		case <-ctx.Done():
			return last, false, ctx.Err()
		}
	}
}

func (p *chromePage) Close() error {
	p.cancel()
	return nil
}
