package internal

import (
	"sjsage522/placereview/internal/browser"
	"sjsage522/placereview/internal/scraper"
	"sjsage522/placereview/services/analyzer"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/proxy"
	"sjsage522/placereview/services/queue"
	"sjsage522/placereview/services/store"
)

// Dependencies holds all service dependencies. Commands fill in only the
// ones they use; nil fields are skipped by Cleanup.
type Dependencies struct {
	Store    store.Store
	Queue    queue.Queue
	Progress *cache.ProgressCache
	Proxies  *proxy.Manager
	Browsers *browser.Pool
	Scraper  *scraper.Scraper
	Analyzer analyzer.Analyzer
}

// Cleanup releases connections and stops the browser pool
func (d *Dependencies) Cleanup() {
	if d.Browsers != nil {
		d.Browsers.Close()
	}
	if d.Queue != nil {
		d.Queue.Close()
	}
	if d.Store != nil {
		d.Store.Close()
	}
}
