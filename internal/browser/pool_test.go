package browser

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "sjsage522/placereview/pkg/errors"
)

type stubPage struct {
	closed atomic.Int32
}

func (p *stubPage) Navigate(context.Context, string) error                  { return nil }
func (p *stubPage) WaitIdle(context.Context, time.Duration) error           { return nil }
func (p *stubPage) Evaluate(context.Context, string, any) error             { return nil }
func (p *stubPage) ScrollToBottom(context.Context) error                    { return nil }
func (p *stubPage) ClickFirst(context.Context, []string) (bool, error)      { return false, nil }
func (p *stubPage) HTML(context.Context) (string, error)                    { return "", nil }
func (p *stubPage) Title(context.Context) (string, error)                   { return "", nil }
func (p *stubPage) Close() error                                            { p.closed.Add(1); return nil }

type stubLauncher struct {
	mu       sync.Mutex
	launched []LaunchOptions
	err      error
}

func (l *stubLauncher) Launch(_ context.Context, opts LaunchOptions) (Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launched = append(l.launched, opts)
	if l.err != nil {
		return nil, l.err
	}
	return &stubPage{}, nil
}

type stubProxies struct {
	failed []string
}

func (s *stubProxies) Next() string            { return "socks5://10.0.0.1:1080" }
func (s *stubProxies) MarkFailed(proxy string) { s.failed = append(s.failed, proxy) }

func TestPoolBoundsConcurrency(t *testing.T) {
	pool := NewPool(&stubLauncher{}, PoolOptions{Capacity: 2})
	assert.Equal(t, 2, pool.Capacity())

	s1, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	s2, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, pool.InUse())

	acquired := make(chan *Session)
	go func() {
		s3, err := pool.Acquire(context.Background())
		if err == nil {
			acquired <- s3
		}
	}()

	select {
	case <-acquired:
		t.Fatal("third session acquired while pool was full")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, s1.Close())
	select {
	case s3 := <-acquired:
		assert.Equal(t, 2, pool.InUse())
		require.NoError(t, s3.Close())
	case <-time.After(time.Second):
		t.Fatal("waiting acquirer was not woken")
	}

	require.NoError(t, s2.Close())
	assert.Equal(t, 0, pool.InUse())
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	pool := NewPool(&stubLauncher{}, PoolOptions{Capacity: 1})

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, int32(1), s.Page().(*stubPage).closed.Load())

	// the single slot is free again
	s, err = pool.Acquire(context.Background())
	require.NoError(t, err)
	s.Close()
}

func TestAcquireRespectsContext(t *testing.T) {
	pool := NewPool(&stubLauncher{}, PoolOptions{Capacity: 1})
	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.InUse())
}

func TestAcquireLaunchFailureReleasesSlot(t *testing.T) {
	proxies := &stubProxies{}
	launcher := &stubLauncher{err: errors.New("chrome not found")}
	pool := NewPool(launcher, PoolOptions{Capacity: 1, Proxies: proxies})

	_, err := pool.Acquire(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsRetryable(err))
	assert.Equal(t, 0, pool.InUse())
	assert.Equal(t, []string{"socks5://10.0.0.1:1080"}, proxies.failed)
}

func TestAcquireUsesMobileProfile(t *testing.T) {
	launcher := &stubLauncher{}
	pool := NewPool(launcher, PoolOptions{Capacity: 1, Proxies: &stubProxies{}, Headless: true})

	s, err := pool.Acquire(context.Background())
	require.NoError(t, err)
	defer s.Close()

	require.Len(t, launcher.launched, 1)
	opts := launcher.launched[0]
	assert.Equal(t, MobileWidth, opts.Width)
	assert.Equal(t, MobileHeight, opts.Height)
	assert.Contains(t, opts.UserAgent, "Mobile")
	assert.Equal(t, "socks5://10.0.0.1:1080", opts.Proxy)
	assert.Equal(t, "socks5://10.0.0.1:1080", s.Proxy())
	assert.True(t, opts.Headless)
}

func TestClosedPool(t *testing.T) {
	pool := NewPool(&stubLauncher{}, PoolOptions{Capacity: 1})
	pool.Close()
	pool.Close()

	_, err := pool.Acquire(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPoolClosed)
}

func TestClickFirstScriptEmbedsSelectors(t *testing.T) {
	script, err := clickFirstScript([]string{`a[class*="more"]`, "button.fvwqf"})
	require.NoError(t, err)
	assert.Contains(t, script, `["a[class*=\"more\"]","button.fvwqf"]`)
}

func TestDecodeResult(t *testing.T) {
	var out []map[string]any
	require.NoError(t, decodeResult([]byte(`[{"text":"맛있어요"}]`), &out))
	assert.Equal(t, "맛있어요", out[0]["text"])

	assert.NoError(t, decodeResult([]byte(`{}`), nil))
	assert.Error(t, decodeResult([]byte(`not json`), &out))
}
