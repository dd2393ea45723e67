package browser

import (
	"context"
	"sync"
	"sync/atomic"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

// ProxySource supplies proxies to new sessions. services/proxy.Manager
// satisfies it.
type ProxySource interface {
	Next() string
	MarkFailed(proxyURL string)
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Capacity  int
	ChromeBin string
	Headless  bool
	Proxies   ProxySource
}

// Pool bounds the number of live browser processes. Acquire blocks while
// the pool is full; it never fails for capacity.
type Pool struct {
	launcher Launcher
	opts     PoolOptions
	sem      chan struct{}
	inUse    atomic.Int32
	closed   chan struct{}
	once     sync.Once
	log      *logger.Logger
}

// NewPool creates a pool around launcher. A capacity below 1 is treated as 1.
func NewPool(launcher Launcher, opts PoolOptions) *Pool {
	if opts.Capacity < 1 {
		opts.Capacity = 1
	}
	return &Pool{
		launcher: launcher,
		opts:     opts,
		sem:      make(chan struct{}, opts.Capacity),
		closed:   make(chan struct{}),
		log:      logger.ForBrowser(),
	}
}

// Capacity returns the maximum number of concurrent sessions.
func (p *Pool) Capacity() int { return cap(p.sem) }

// InUse returns the number of sessions currently holding a slot.
func (p *Pool) InUse() int { return int(p.inUse.Load()) }

// Acquire waits for a free slot and launches a browser in it.
func (p *Pool) Acquire(ctx context.Context) (*Session, error) {
	select {
	case <-p.closed:
		return nil, errors.ErrPoolClosed
	default:
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.closed:
		return nil, errors.ErrPoolClosed
	}
	p.inUse.Add(1)

	opts := LaunchOptions{
		UserAgent: helpers.RandomMobileUserAgent(),
		Width:     MobileWidth,
		Height:    MobileHeight,
		ChromeBin: p.opts.ChromeBin,
		Headless:  p.opts.Headless,
	}
	if p.opts.Proxies != nil {
		opts.Proxy = p.opts.Proxies.Next()
	}

	page, err := p.launcher.Launch(ctx, opts)
	if err != nil {
		p.release()
		if opts.Proxy != "" {
			p.opts.Proxies.MarkFailed(opts.Proxy)
		}
		return nil, errors.NewBrowser("pool", "launch browser", err)
	}

	p.log.Debug().
		Int("in_use", p.InUse()).
		Int("capacity", p.Capacity()).
		Str("proxy", opts.Proxy).
		Msg("Browser session acquired")

	return &Session{page: page, pool: p, proxy: opts.Proxy}, nil
}

func (p *Pool) release() {
	p.inUse.Add(-1)
	<-p.sem
}

// Close stops new acquisitions. Live sessions keep their slots until they
// are closed.
func (p *Pool) Close() {
	p.once.Do(func() { close(p.closed) })
}

// Session is a leased browser. Close must be called exactly once on every
// exit path; further calls are no-ops.
type Session struct {
	page  Page
	pool  *Pool
	proxy string
	once  sync.Once
}

// Page returns the session's page.
func (s *Session) Page() Page { return s.page }

// Proxy returns the proxy the session was launched through, if any.
func (s *Session) Proxy() string { return s.proxy }

// MarkProxyFailed benches the session's proxy, typically after repeated
// navigation failures.
func (s *Session) MarkProxyFailed() {
	if s.proxy != "" && s.pool.opts.Proxies != nil {
		s.pool.opts.Proxies.MarkFailed(s.proxy)
	}
}

// Close tears down the browser and returns the slot to the pool.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		err = s.page.Close()
		s.pool.release()
		if err != nil {
			s.pool.log.Warn().Err(err).Msg("Browser close failed")
		}
	})
	return err
}
