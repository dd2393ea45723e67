package worker

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"sjsage522/placereview/helpers"
	"sjsage522/placereview/internal/scraper"
	apperrors "sjsage522/placereview/pkg/errors"
	"sjsage522/placereview/services/analyzer"
	"sjsage522/placereview/services/cache"
	"sjsage522/placereview/services/queue"
	"sjsage522/placereview/services/store"
)

// MockStore implements store.Store in memory
type MockStore struct {
	mu        sync.Mutex
	jobs      map[string]*store.Job
	reviews   []store.Review
	analyses  []store.Analysis
	nextID    int64
	progress  map[string][]int
	reviewErr error
	leases    map[string]lease
}

type lease struct {
	owner   string
	expires time.Time
}

var _ store.Store = (*MockStore)(nil)

func NewMockStore() *MockStore {
	return &MockStore{jobs: map[string]*store.Job{}, progress: map[string][]int{}, leases: map[string]lease{}}
}

func (m *MockStore) CreateJob(_ context.Context, job *store.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	cp.CreatedAt = time.Now()
	cp.UpdatedAt = cp.CreatedAt
	m.jobs[job.ID] = &cp
	return nil
}

func (m *MockStore) GetJob(_ context.Context, id string) (*store.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return nil, apperrors.ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

func (m *MockStore) UpdateJob(_ context.Context, id string, u store.JobUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return apperrors.ErrJobNotFound
	}
	apply(job, u, time.Now())
	if u.Progress != nil {
		m.progress[id] = append(m.progress[id], job.Progress)
	}
	return nil
}

func (m *MockStore) DeleteJob(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.jobs[id]; !ok {
		return apperrors.ErrJobNotFound
	}
	delete(m.jobs, id)
	m.deleteReviewsLocked(id)
	return nil
}

func (m *MockStore) ClaimJob(_ context.Context, id, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok || job.Status.IsTerminal() {
		return false, nil
	}
	if l, held := m.leases[id]; held && l.owner != owner && time.Now().Before(l.expires) {
		return false, nil
	}
	m.leases[id] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return true, nil
}

func (m *MockStore) RenewLease(_ context.Context, id, owner string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, held := m.leases[id]; !held || l.owner != owner {
		return apperrors.ErrLeaseLost
	}
	m.leases[id] = lease{owner: owner, expires: time.Now().Add(ttl)}
	return nil
}

func (m *MockStore) ReleaseJob(_ context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, held := m.leases[id]; held && l.owner == owner {
		delete(m.leases, id)
	}
	return nil
}

// expireLease simulates a lease holder that stopped renewing
func (m *MockStore) expireLease(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, held := m.leases[id]; held {
		l.expires = time.Now().Add(-time.Second)
		m.leases[id] = l
	}
}

// stealLease hands the job to another worker behind the holder's back
func (m *MockStore) stealLease(id, owner string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leases[id] = lease{owner: owner, expires: time.Now().Add(time.Hour)}
}

func (m *MockStore) leaseOf(id string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, held := m.leases[id]
	return l.owner, held
}

func (m *MockStore) InsertReview(_ context.Context, r *store.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reviewErr != nil {
		return m.reviewErr
	}
	m.nextID++
	r.ID = m.nextID
	r.CreatedAt = time.Now()
	m.reviews = append(m.reviews, *r)
	return nil
}

func (m *MockStore) ListReviews(_ context.Context, jobID string) ([]store.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Review
	for _, r := range m.reviews {
		if r.JobID == jobID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *MockStore) DeleteReviews(_ context.Context, jobID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deleteReviewsLocked(jobID), nil
}

func (m *MockStore) deleteReviewsLocked(jobID string) int64 {
	removed := map[int64]bool{}
	kept := m.reviews[:0]
	for _, r := range m.reviews {
		if r.JobID == jobID {
			removed[r.ID] = true
			continue
		}
		kept = append(kept, r)
	}
	m.reviews = kept

	analyses := m.analyses[:0]
	for _, a := range m.analyses {
		if !removed[a.ReviewID] {
			analyses = append(analyses, a)
		}
	}
	m.analyses = analyses
	return int64(len(removed))
}

func (m *MockStore) InsertAnalysis(_ context.Context, a *store.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	a.ID = m.nextID
	m.analyses = append(m.analyses, *a)
	return nil
}

func (m *MockStore) ListAnalyses(_ context.Context, jobID string) ([]store.Analysis, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := map[int64]bool{}
	for _, r := range m.reviews {
		if r.JobID == jobID {
			ids[r.ID] = true
		}
	}
	var out []store.Analysis
	for _, a := range m.analyses {
		if ids[a.ReviewID] {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReviewID < out[j].ReviewID })
	return out, nil
}

func (m *MockStore) SentimentSummary(ctx context.Context, jobID string) (map[string]int, error) {
	analyses, _ := m.ListAnalyses(ctx, jobID)
	out := map[string]int{}
	for _, a := range analyses {
		out[a.Sentiment]++
	}
	return out, nil
}

func (m *MockStore) Close() error { return nil }

func (m *MockStore) job(id string) store.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.jobs[id]
}

func (m *MockStore) progressOf(id string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int(nil), m.progress[id]...)
}

// MockScraper replays a fixed result, reporting the given progress first
type MockScraper struct {
	mu       sync.Mutex
	result   *scraper.Result
	err      error
	progress []scraper.Progress
	calls    int
	opts     scraper.Options
}

func (m *MockScraper) Scrape(ctx context.Context, opts scraper.Options) (*scraper.Result, error) {
	m.mu.Lock()
	m.calls++
	m.opts = opts
	m.mu.Unlock()

	for _, p := range m.progress {
		opts.OnProgress(p)
	}
	if m.err != nil {
		return nil, m.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return m.result, nil
}

// MockAnalyzer fails for the texts listed in fail. When gate is set every
// call blocks until gate is closed or ctx ends; started is closed on the
// first call.
type MockAnalyzer struct {
	mu      sync.Mutex
	fail    map[string]bool
	calls   int
	gate    chan struct{}
	started chan struct{}
	once    sync.Once
}

func (m *MockAnalyzer) Analyze(ctx context.Context, text string) (*analyzer.Result, error) {
	if m.started != nil {
		m.once.Do(func() { close(m.started) })
	}
	if m.gate != nil {
		select {
		case <-m.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.fail[text] {
		return nil, apperrors.NewAnalysis("analyzer", "generate", errors.New("model timeout"))
	}
	return &analyzer.Result{
		Sentiment: analyzer.Positive,
		Aspects:   []analyzer.Aspect{{Aspect: "맛", Sentiment: analyzer.Positive}},
		Keywords:  []string{"맛"},
		Summary:   "맛있다",
	}, nil
}

// MockQueue hands out queued messages one per Consume call
type MockQueue struct {
	mu         sync.Mutex
	pending    []queue.JobMessage
	acked      []string
	failed     []string
	enqueueErr error
	consumeErr error
}

var _ queue.Queue = (*MockQueue)(nil)

func (m *MockQueue) Enqueue(_ context.Context, msg queue.JobMessage) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return "", m.enqueueErr
	}
	m.pending = append(m.pending, msg)
	return fmt.Sprintf("%d-0", len(m.pending)), nil
}

func (m *MockQueue) Consume(ctx context.Context, handler queue.Handler) error {
	m.mu.Lock()
	if m.consumeErr != nil {
		err := m.consumeErr
		m.mu.Unlock()
		return err
	}
	if len(m.pending) == 0 {
		m.mu.Unlock()
		return helpers.Sleep(ctx, 5*time.Millisecond)
	}
	msg := m.pending[0]
	m.pending = m.pending[1:]
	m.mu.Unlock()

	if err := handler(ctx, queue.Delivery{ID: msg.JobID, Job: msg, Attempt: 1}); err != nil {
		m.mu.Lock()
		m.failed = append(m.failed, msg.JobID)
		m.mu.Unlock()
		return fmt.Errorf("handle job %s: %w", msg.JobID, err)
	}
	m.mu.Lock()
	m.acked = append(m.acked, msg.JobID)
	m.mu.Unlock()
	return nil
}

func (m *MockQueue) Close() error { return nil }

func (m *MockQueue) handled() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.acked) + len(m.failed)
}

// MockLogger implements the helpers.LoggerInterface for testing
type MockLogger struct {
	mu     sync.Mutex
	errors []string
	infos  []string
}

var _ helpers.LoggerInterface = (*MockLogger)(nil)

func NewMockLogger() *MockLogger {
	return &MockLogger{
		errors: make([]string, 0),
		infos:  make([]string, 0),
	}
}

func (m *MockLogger) LogError(component string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors = append(m.errors, component+": "+err.Error())
}

func (m *MockLogger) LogInfo(format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infos = append(m.infos, fmt.Sprintf(format, args...))
}

func (m *MockLogger) errorLines() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.errors...)
}

// MockCache implements cache.CacheService in memory
type MockCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

var _ cache.CacheService = (*MockCache)(nil)

func NewMockCache() *MockCache {
	return &MockCache{data: map[string][]byte{}}
}

func (m *MockCache) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return v, nil
}

func (m *MockCache) Set(key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MockCache) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
