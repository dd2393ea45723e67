package proxy

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProxyInfo holds proxy information with latency
type ProxyInfo struct {
	URL         string        `json:"url"`
	Host        string        `json:"host"`
	Port        string        `json:"port"`
	Type        string        `json:"type"`
	Latency     time.Duration `json:"latency"`
	LastTest    time.Time     `json:"last_test"`
	Working     bool          `json:"working"`
	FailedUntil time.Time     `json:"failed_until"`
}

// Manager rotates round-robin over a static proxy list. Failed proxies sit
// out a cool-down window before they are handed out again.
type Manager struct {
	proxies  []ProxyInfo
	mutex    sync.Mutex
	next     int
	cooldown time.Duration
	now      func() time.Time
	dial     func(ctx context.Context, network, addr string) (net.Conn, error)
}

// NewManager creates a manager from proxy URLs such as
// socks5://10.0.0.1:1080 or http://proxy:3128. Entries that do not parse
// are skipped with a warning.
func NewManager(urls []string) *Manager {
	pm := &Manager{
		cooldown: 5 * time.Minute,
		now:      time.Now,
		dial:     (&net.Dialer{}).DialContext,
	}
	for _, raw := range urls {
		info, err := parseProxy(raw)
		if err != nil {
			log.Warn().Err(err).Str("proxy", raw).Msg("Skipping invalid proxy")
			continue
		}
		pm.proxies = append(pm.proxies, info)
	}
	return pm
}

func parseProxy(raw string) (ProxyInfo, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "socks5://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyInfo{}, err
	}
	host, port := u.Hostname(), u.Port()
	if host == "" || port == "" {
		return ProxyInfo{}, fmt.Errorf("proxy %q needs host and port", raw)
	}
	switch u.Scheme {
	case "socks5", "http", "https":
	default:
		return ProxyInfo{}, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	return ProxyInfo{URL: raw, Host: host, Port: port, Type: u.Scheme, Working: true}, nil
}

// Len returns the number of configured proxies
func (pm *Manager) Len() int {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()
	return len(pm.proxies)
}

// Next returns the next proxy not cooling down, or "" when none is usable.
func (pm *Manager) Next() string {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	now := pm.now()
	for i := 0; i < len(pm.proxies); i++ {
		p := &pm.proxies[(pm.next+i)%len(pm.proxies)]
		if now.Before(p.FailedUntil) {
			continue
		}
		pm.next = (pm.next + i + 1) % len(pm.proxies)
		return p.URL
	}
	return ""
}

// MarkFailed benches a proxy for the cool-down window
func (pm *Manager) MarkFailed(proxyURL string) {
	pm.mutex.Lock()
	defer pm.mutex.Unlock()

	for i := range pm.proxies {
		if pm.proxies[i].URL == proxyURL {
			pm.proxies[i].Working = false
			pm.proxies[i].FailedUntil = pm.now().Add(pm.cooldown)
			log.Warn().Str("proxy", proxyURL).Dur("cooldown", pm.cooldown).Msg("Proxy marked as failed")
			return
		}
	}
}

// Check tests every proxy and reorders the list fastest-first. Proxies that
// fail the test are benched like MarkFailed.
func (pm *Manager) Check(ctx context.Context) []ProxyInfo {
	pm.mutex.Lock()
	proxies := make([]ProxyInfo, len(pm.proxies))
	copy(proxies, pm.proxies)
	pm.mutex.Unlock()

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 10) // Limit concurrent tests
	for i := range proxies {
		wg.Add(1)
		go func(proxy *ProxyInfo) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()
			pm.testProxyLatency(ctx, proxy)
		}(&proxies[i])
	}
	wg.Wait()

	sort.SliceStable(proxies, func(i, j int) bool {
		if proxies[i].Working != proxies[j].Working {
			return proxies[i].Working
		}
		return proxies[i].Latency < proxies[j].Latency
	})

	pm.mutex.Lock()
	pm.proxies = proxies
	pm.next = 0
	pm.mutex.Unlock()

	working := 0
	for _, p := range proxies {
		if p.Working {
			working++
		}
	}
	log.Info().Int("total", len(proxies)).Int("working", working).Msg("Proxy check complete")

	result := make([]ProxyInfo, len(proxies))
	copy(result, proxies)
	return result
}

// testProxyLatency tests the latency of a single proxy
func (pm *Manager) testProxyLatency(ctx context.Context, proxy *ProxyInfo) {
	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	testStart := pm.now()
	conn, err := pm.dial(dialCtx, "tcp", net.JoinHostPort(proxy.Host, proxy.Port))
	if err != nil {
		log.Debug().Str("proxy", proxy.URL).Err(err).Msg("TCP connection failed")
		pm.bench(proxy)
		return
	}
	defer conn.Close()

	// Verify SOCKS proxies actually speak SOCKS5
	if proxy.Type == "socks5" && !testSOCKS5Handshake(conn) {
		log.Debug().Str("proxy", proxy.URL).Msg("SOCKS5 handshake failed")
		pm.bench(proxy)
		return
	}

	proxy.Working = true
	proxy.FailedUntil = time.Time{}
	proxy.Latency = pm.now().Sub(testStart)
	proxy.LastTest = pm.now()

	log.Debug().
		Str("proxy", proxy.URL).
		Dur("latency", proxy.Latency).
		Msg("Proxy working")
}

func (pm *Manager) bench(proxy *ProxyInfo) {
	proxy.Working = false
	proxy.Latency = time.Hour
	proxy.LastTest = pm.now()
	proxy.FailedUntil = pm.now().Add(pm.cooldown)
}

// testSOCKS5Handshake performs a basic SOCKS5 handshake
func testSOCKS5Handshake(conn net.Conn) bool {
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	defer conn.SetDeadline(time.Time{})

	// VER=5, NMETHODS=1, METHODS=0 (no authentication)
	if _, err := conn.Write([]byte{0x05, 0x01, 0x00}); err != nil {
		return false
	}

	// [VER, METHOD]
	authResp := make([]byte, 2)
	if _, err := conn.Read(authResp); err != nil {
		return false
	}
	return authResp[0] == 0x05 && authResp[1] == 0x00
}
