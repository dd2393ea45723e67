package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// RodLauncher starts Chrome through go-rod with the stealth patches applied.
type RodLauncher struct{}

// NewRodLauncher creates the alternate launcher
func NewRodLauncher() *RodLauncher {
	return &RodLauncher{}
}

// Launch starts Chromium with the given flags and returns a stealth page
func (RodLauncher) Launch(ctx context.Context, opts LaunchOptions) (Page, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-gpu").
		Set("disable-dev-shm-usage").
		Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-blink-features", "AutomationControlled").
		Set("window-size", fmt.Sprintf("%d,%d", opts.Width, opts.Height))
	if opts.Proxy != "" {
		l = l.Proxy(opts.Proxy)
	}
	if opts.ChromeBin != "" {
		l = l.Bin(opts.ChromeBin)
	}

	launchURL, err := l.Context(ctx).Launch()
	if err != nil {
		l.Kill()
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(launchURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect browser: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("stealth page: %w", err)
	}

	if opts.UserAgent != "" {
		if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: opts.UserAgent}); err != nil {
			_ = b.Close()
			l.Kill()
			return nil, fmt.Errorf("set user agent: %w", err)
		}
	}
	err = page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             opts.Width,
		Height:            opts.Height,
		DeviceScaleFactor: 3,
		Mobile:            true,
	})
	if err != nil {
		_ = b.Close()
		l.Kill()
		return nil, fmt.Errorf("set viewport: %w", err)
	}

	return &rodPage{browser: b, page: page, launcher: l}, nil
}

type rodPage struct {
	browser  *rod.Browser
	page     *rod.Page
	launcher *launcher.Launcher
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	page := p.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (p *rodPage) WaitIdle(ctx context.Context, timeout time.Duration) error {
	return p.page.Context(ctx).Timeout(timeout).WaitStable(300 * time.Millisecond)
}

func (p *rodPage) eval(ctx context.Context, js string) (*proto.RuntimeRemoteObject, error) {
	return p.page.Context(ctx).Eval("() => (" + js + ")")
}

func (p *rodPage) Evaluate(ctx context.Context, js string, out any) error {
	res, err := p.eval(ctx, js)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	raw, err := json.Marshal(res.Value)
	if err != nil {
		return fmt.Errorf("encode evaluate result: %w", err)
	}
	return decodeResult(raw, out)
}

func (p *rodPage) ScrollToBottom(ctx context.Context) error {
	_, err := p.eval(ctx, scrollJS)
	return err
}

func (p *rodPage) ClickFirst(ctx context.Context, selectors []string) (bool, error) {
	script, err := clickFirstScript(selectors)
	if err != nil {
		return false, err
	}
	res, err := p.eval(ctx, script)
	if err != nil {
		return false, err
	}
	return res.Value.Bool(), nil
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Title(ctx context.Context) (string, error) {
	info, err := p.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (p *rodPage) Close() error {
	err := p.browser.Close()
	p.launcher.Kill()
	return err
}
