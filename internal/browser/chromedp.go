package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// idleQuiet is how long the network must stay without in-flight requests
// before WaitIdle returns.
const idleQuiet = 500 * time.Millisecond

// ChromedpLauncher starts a local Chrome through chromedp's exec allocator.
type ChromedpLauncher struct{}

// NewChromedpLauncher creates the default launcher
func NewChromedpLauncher() *ChromedpLauncher {
	return &ChromedpLauncher{}
}

// Launch starts Chrome and opens one tab with mobile emulation applied
func (ChromedpLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", opts.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(opts.Width, opts.Height),
	)
	if opts.UserAgent != "" {
		allocOpts = append(allocOpts, chromedp.UserAgent(opts.UserAgent))
	}
	if opts.Proxy != "" {
		allocOpts = append(allocOpts, chromedp.ProxyServer(opts.Proxy))
	}
	if opts.ChromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(opts.ChromeBin))
	}

	// The browser outlives the Launch call, so it hangs off Background and
	// is torn down by Close.
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	p := &chromedpPage{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}
	chromedp.ListenTarget(tabCtx, p.track)

	runCtx, done := p.bind(ctx)
	defer done()

	err := chromedp.Run(runCtx,
		network.Enable(),
		emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), 3, true),
		emulation.SetTouchEmulationEnabled(true),
	)
	if err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start chrome: %w", err)
	}
	return p, nil
}

type chromedpPage struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	requests requestTracker
}

// requestTracker keeps the set of in-flight requests. A redirect reuses the
// RequestID with a second RequestWillBeSent, so counting events would leak.
type requestTracker struct {
	mu           sync.Mutex
	inflight     map[network.RequestID]struct{}
	lastActivity time.Time
	now          func() time.Time
}

func (r *requestTracker) observe(ev interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inflight == nil {
		r.inflight = make(map[network.RequestID]struct{})
	}
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		r.inflight[e.RequestID] = struct{}{}
	case *network.EventLoadingFinished:
		delete(r.inflight, e.RequestID)
	case *network.EventLoadingFailed:
		delete(r.inflight, e.RequestID)
	default:
		return
	}
	r.lastActivity = r.clock()
}

func (r *requestTracker) clock() time.Time {
	if r.now != nil {
		return r.now()
	}
	return time.Now()
}

func (r *requestTracker) pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight)
}

// idle reports no requests in flight for at least quiet
func (r *requestTracker) idle(quiet time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.inflight) == 0 && r.clock().Sub(r.lastActivity) >= quiet
}

func (p *chromedpPage) track(ev interface{}) {
	p.requests.observe(ev)
}

// bind derives a context from the tab that is also cancelled with ctx
func (p *chromedpPage) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	runCtx, cancel := context.WithCancel(p.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (p *chromedpPage) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, done := p.bind(ctx)
	defer done()
	return chromedp.Run(runCtx, actions...)
}

func (p *chromedpPage) Navigate(ctx context.Context, url string) error {
	return p.run(ctx, chromedp.Navigate(url))
}

func (p *chromedpPage) WaitIdle(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if p.requests.idle(idleQuiet) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("network not idle after %s", timeout)
		case <-ticker.C:
		}
	}
}

func (p *chromedpPage) Evaluate(ctx context.Context, js string, out any) error {
	if out == nil {
		return p.run(ctx, chromedp.Evaluate(js, nil))
	}
	var raw []byte
	if err := p.run(ctx, chromedp.Evaluate(js, &raw)); err != nil {
		return err
	}
	return decodeResult(raw, out)
}

func (p *chromedpPage) ScrollToBottom(ctx context.Context) error {
	return p.run(ctx, chromedp.Evaluate(scrollJS, nil))
}

func (p *chromedpPage) ClickFirst(ctx context.Context, selectors []string) (bool, error) {
	script, err := clickFirstScript(selectors)
	if err != nil {
		return false, err
	}
	var clicked bool
	if err := p.run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, err
	}
	return clicked, nil
}

func (p *chromedpPage) HTML(ctx context.Context) (string, error) {
	var html string
	err := p.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	return html, err
}

func (p *chromedpPage) Title(ctx context.Context) (string, error) {
	var title string
	err := p.run(ctx, chromedp.Title(&title))
	return title, err
}

func (p *chromedpPage) Close() error {
	err := chromedp.Cancel(p.ctx)
	p.cancelTab()
	p.cancelAlloc()
	return err
}
