// Package browser wraps headless Chrome behind a small Page interface so the
// scraper does not depend on a particular driver.
package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Page is one browser tab bound to a session.
type Page interface {
	Navigate(ctx context.Context, url string) error
	// WaitIdle waits up to timeout for network activity to settle.
	WaitIdle(ctx context.Context, timeout time.Duration) error
	// Evaluate runs a JavaScript expression in the page and JSON-decodes
	// its result into out. out may be nil to discard the result.
	Evaluate(ctx context.Context, js string, out any) error
	ScrollToBottom(ctx context.Context) error
	// ClickFirst clicks the first visible element matching any selector,
	// in order, and reports whether something was clicked.
	ClickFirst(ctx context.Context, selectors []string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Close() error
}

// LaunchOptions configures a new browser process.
type LaunchOptions struct {
	UserAgent string
	Width     int
	Height    int
	Proxy     string
	ChromeBin string
	Headless  bool
}

// Launcher starts a browser process and returns its single page.
type Launcher interface {
	Launch(ctx context.Context, opts LaunchOptions) (Page, error)
}

// Mobile viewport used for review feeds.
const (
	MobileWidth  = 390
	MobileHeight = 844
)

const scrollJS = `window.scrollTo(0, document.body.scrollHeight)`

// clickFirstJS clicks the first visible match, trying selectors in order.
const clickFirstJS = `(() => {
	const selectors = %s;
	for (const sel of selectors) {
		let nodes;
		try { nodes = document.querySelectorAll(sel); } catch (e) { continue; }
		for (const el of nodes) {
			const r = el.getBoundingClientRect();
			if (r.width === 0 && r.height === 0) continue;
			el.click();
			return true;
		}
	}
	return false;
})()`

func clickFirstScript(selectors []string) (string, error) {
	data, err := json.Marshal(selectors)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(clickFirstJS, data), nil
}

func decodeResult(raw []byte, out any) error {
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode evaluate result: %w", err)
	}
	return nil
}
