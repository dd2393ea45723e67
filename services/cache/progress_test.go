package cache

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockCache implements CacheService in memory
type MockCache struct {
	mu   sync.Mutex
	data map[string][]byte
	ttl  map[string]time.Duration
	err  error
}

func NewMockCache() *MockCache {
	return &MockCache{data: map[string][]byte{}, ttl: map[string]time.Duration{}}
}

func (m *MockCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	v, ok := m.data[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return v, nil
}

func (m *MockCache) Set(key string, value []byte, expiration time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.data[key] = value
	m.ttl[key] = expiration
	return nil
}

func (m *MockCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return m.err
}

func TestProgressCacheRoundTrip(t *testing.T) {
	mock := NewMockCache()
	pc := NewProgressCache(mock, time.Hour)

	pc.Save(JobSnapshot{JobID: "abc", Status: "processing", StatusMessage: "collected 3/10 reviews", Progress: 15})
	assert.Equal(t, time.Hour, mock.ttl["job:abc"])

	snap, ok := pc.Load("abc")
	require.True(t, ok)
	assert.Equal(t, "processing", snap.Status)
	assert.Equal(t, 15, snap.Progress)

	pc.Forget("abc")
	_, ok = pc.Load("abc")
	assert.False(t, ok)
}

func TestProgressCacheSwallowsErrors(t *testing.T) {
	mock := NewMockCache()
	mock.err = errors.New("connection refused")
	pc := NewProgressCache(mock, time.Hour)

	assert.NotPanics(t, func() { pc.Save(JobSnapshot{JobID: "abc"}) })
	_, ok := pc.Load("abc")
	assert.False(t, ok)
}

func TestProgressCacheCorruptEntry(t *testing.T) {
	mock := NewMockCache()
	mock.data["job:abc"] = []byte("{not json")
	_, ok := NewProgressCache(mock, time.Hour).Load("abc")
	assert.False(t, ok)
}

func TestNilProgressCache(t *testing.T) {
	var pc *ProgressCache
	pc.Save(JobSnapshot{JobID: "abc"})
	_, ok := pc.Load("abc")
	assert.False(t, ok)

	_, ok = NewProgressCache(nil, time.Hour).Load("abc")
	assert.False(t, ok)
}
