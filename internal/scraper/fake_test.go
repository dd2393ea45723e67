package scraper

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sjsage522/placereview/internal/browser"
)

// fakePage replays one scripted extraction result per Evaluate call; the
// last result repeats once the script runs out.
type fakePage struct {
	mu          sync.Mutex
	results     []any
	evalErr     error
	evalCalls   int
	navFailures int
	navCalls    int
	scrolls     int
	clicks      int
	html        string
	closed      bool
}

func (p *fakePage) Navigate(context.Context, string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navCalls++
	if p.navCalls <= p.navFailures {
		return errors.New("net::ERR_TIMED_OUT")
	}
	return nil
}

func (p *fakePage) WaitIdle(context.Context, time.Duration) error { return nil }

func (p *fakePage) Evaluate(_ context.Context, _ string, out any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evalCalls++
	if p.evalErr != nil {
		return p.evalErr
	}
	var result any
	if len(p.results) > 0 {
		i := p.evalCalls - 1
		if i >= len(p.results) {
			i = len(p.results) - 1
		}
		result = p.results[i]
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (p *fakePage) ScrollToBottom(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scrolls++
	return nil
}

func (p *fakePage) ClickFirst(context.Context, []string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks++
	return false, nil
}

func (p *fakePage) HTML(context.Context) (string, error) { return p.html, nil }

func (p *fakePage) Title(context.Context) (string, error) { return "", nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeLauncher struct {
	page *fakePage
}

func (l *fakeLauncher) Launch(context.Context, browser.LaunchOptions) (browser.Page, error) {
	return l.page, nil
}

type rec struct {
	Text string `json:"text"`
	Date string `json:"date"`
}

// feed builds an extraction payload holding reviews from..to inclusive.
func feed(from, to int, date func(i int) string) map[string]any {
	records := make([]rec, 0, to-from+1)
	for i := from; i <= to; i++ {
		d := ""
		if date != nil {
			d = date(i)
		}
		records = append(records, rec{Text: reviewText(i), Date: d})
	}
	return map[string]any{"matched": "li.place_apply_pui", "count": len(records), "records": records}
}

func reviewText(i int) string {
	return fmt.Sprintf("%d번 손님 후기: 음식이 정말 맛있고 친절했어요", i)
}
