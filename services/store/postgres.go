package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"sjsage522/placereview/internal/model"
	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS scrape_jobs (
	id               UUID PRIMARY KEY,
	place_id         TEXT NOT NULL,
	place_name       TEXT NOT NULL DEFAULT '',
	mode             TEXT NOT NULL,
	limit_count      INTEGER,
	start_date       TIMESTAMPTZ,
	end_date         TIMESTAMPTZ,
	status           TEXT NOT NULL DEFAULT 'queued',
	status_message   TEXT NOT NULL DEFAULT '',
	progress         INTEGER NOT NULL DEFAULT 0 CHECK (progress BETWEEN 0 AND 100),
	total_reviews    TEXT NOT NULL DEFAULT '0',
	analyzed_reviews TEXT NOT NULL DEFAULT '0',
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	completed_at     TIMESTAMPTZ,
	lease_owner      TEXT,
	lease_expires_at TIMESTAMPTZ
);
ALTER TABLE scrape_jobs ADD COLUMN IF NOT EXISTS lease_owner TEXT;
ALTER TABLE scrape_jobs ADD COLUMN IF NOT EXISTS lease_expires_at TIMESTAMPTZ;
CREATE INDEX IF NOT EXISTS idx_scrape_jobs_status ON scrape_jobs (status);

CREATE TABLE IF NOT EXISTS reviews (
	id          BIGSERIAL PRIMARY KEY,
	job_id      UUID NOT NULL REFERENCES scrape_jobs (id) ON DELETE CASCADE,
	review_text TEXT NOT NULL,
	review_date TIMESTAMPTZ NOT NULL,
	author_name TEXT NOT NULL DEFAULT '',
	rating      TEXT NOT NULL DEFAULT '',
	created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_reviews_job_id ON reviews (job_id);

CREATE TABLE IF NOT EXISTS review_analyses (
	id         BIGSERIAL PRIMARY KEY,
	review_id  BIGINT NOT NULL UNIQUE REFERENCES reviews (id) ON DELETE CASCADE,
	sentiment  TEXT NOT NULL CHECK (sentiment IN ('Positive', 'Negative', 'Neutral')),
	aspects    JSONB NOT NULL DEFAULT '[]',
	keywords   TEXT[] NOT NULL DEFAULT '{}',
	summary    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const jobColumns = `id, place_id, place_name, mode, limit_count, start_date, end_date,
	status, status_message, progress, total_reviews, analyzed_reviews, error_message,
	created_at, updated_at, completed_at`

// PostgresStore implements Store on PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewPostgresStore connects to dsn, waiting for the server to come up, and
// applies the schema.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.NewStorage("postgres", "open", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	log := logger.ForStore()
	for attempt := 1; ; attempt++ {
		err = db.PingContext(ctx)
		if err == nil {
			break
		}
		if attempt == 10 || ctx.Err() != nil {
			db.Close()
			return nil, errors.NewStorage("postgres", "ping", err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("database not ready, retrying")
		select {
		case <-ctx.Done():
		case <-time.After(2 * time.Second):
		}
	}

	s := &PostgresStore{db: db, logger: log}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.NewStorage("postgres", "migrate", err)
	}
	s.logger.Debug().Msg("schema applied")
	return nil
}

// Close closes the connection pool
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// CreateJob inserts job. ID, status and timestamps are filled in when empty.
func (s *PostgresStore) CreateJob(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = NewJob("", "", 0, nil, nil).ID
	}
	if job.Status == "" {
		job.Status = StatusQueued
	}
	if job.TotalReviews == "" {
		job.TotalReviews = "0"
	}
	if job.AnalyzedReviews == "" {
		job.AnalyzedReviews = "0"
	}

	var limit sql.NullInt64
	if job.Mode == model.ModeByCount {
		limit = sql.NullInt64{Int64: int64(job.LimitCount), Valid: true}
	}

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO scrape_jobs (id, place_id, place_name, mode, limit_count, start_date, end_date,
			status, status_message, progress, total_reviews, analyzed_reviews)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at`,
		job.ID, job.PlaceID, job.PlaceName, string(job.Mode), limit,
		nullTime(job.StartDate), nullTime(job.EndDate),
		string(job.Status), job.StatusMessage, job.Progress, job.TotalReviews, job.AnalyzedReviews,
	).Scan(&job.CreatedAt, &job.UpdatedAt)
	if err != nil {
		return errors.NewStorage("postgres", "create job", err)
	}
	return nil
}

// GetJob returns ErrJobNotFound for an unknown id
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id)

	var (
		job         Job
		mode        string
		status      string
		limit       sql.NullInt64
		start, end  sql.NullTime
		errMsg      sql.NullString
		completedAt sql.NullTime
	)
	err := row.Scan(&job.ID, &job.PlaceID, &job.PlaceName, &mode, &limit, &start, &end,
		&status, &job.StatusMessage, &job.Progress, &job.TotalReviews, &job.AnalyzedReviews, &errMsg,
		&job.CreatedAt, &job.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrJobNotFound
	}
	if err != nil {
		return nil, errors.NewStorage("postgres", "get job", err)
	}

	job.Mode = model.Mode(mode)
	job.Status = JobStatus(status)
	job.LimitCount = int(limit.Int64)
	// date bounds are calendar days in the worker's zone, whatever the
	// session TimeZone of the database
	job.StartDate = localTimePtr(start)
	job.EndDate = localTimePtr(end)
	job.ErrorMessage = errMsg.String
	job.CompletedAt = timePtr(completedAt)
	return &job, nil
}

// UpdateJob applies the non-nil fields of update. Progress is raised, never
// lowered.
func (s *PostgresStore) UpdateJob(ctx context.Context, id string, update JobUpdate) error {
	sets := []string{"updated_at = NOW()"}
	args := []any{}
	add := func(expr string, v any) {
		args = append(args, v)
		sets = append(sets, fmt.Sprintf(expr, len(args)))
	}

	if update.Status != nil {
		add("status = $%d", string(*update.Status))
	}
	if update.StatusMessage != nil {
		add("status_message = $%d", *update.StatusMessage)
	}
	if update.Progress != nil {
		add("progress = GREATEST(progress, LEAST($%d::INTEGER, 100))", *update.Progress)
	}
	if update.TotalReviews != nil {
		add("total_reviews = $%d", strconv.Itoa(*update.TotalReviews))
	}
	if update.AnalyzedReviews != nil {
		add("analyzed_reviews = $%d", strconv.Itoa(*update.AnalyzedReviews))
	}
	if update.ErrorMessage != nil {
		add("error_message = $%d", *update.ErrorMessage)
	}
	if update.PlaceName != nil {
		add("place_name = $%d", *update.PlaceName)
	}
	if update.CompletedAt != nil {
		add("completed_at = $%d", *update.CompletedAt)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE scrape_jobs SET %s WHERE id = $%d", strings.Join(sets, ", "), len(args))

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.NewStorage("postgres", "update job", err)
	}
	return expectRow(res)
}

// DeleteJob removes the job together with its reviews and analyses
func (s *PostgresStore) DeleteJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scrape_jobs WHERE id = $1`, id)
	if err != nil {
		return errors.NewStorage("postgres", "delete job", err)
	}
	return expectRow(res)
}

// InsertReview stores review and sets its ID
func (s *PostgresStore) InsertReview(ctx context.Context, review *Review) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO reviews (job_id, review_text, review_date, author_name, rating)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		review.JobID, review.Text, review.ReviewDate, review.Author, review.Rating,
	).Scan(&review.ID, &review.CreatedAt)
	if err != nil {
		return errors.NewStorage("postgres", "insert review", err)
	}
	return nil
}

// ListReviews returns a job's reviews in insertion order
func (s *PostgresStore) ListReviews(ctx context.Context, jobID string) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, review_text, review_date, author_name, rating, created_at
		FROM reviews WHERE job_id = $1 ORDER BY id`, jobID)
	if err != nil {
		return nil, errors.NewStorage("postgres", "list reviews", err)
	}
	defer rows.Close()

	var out []Review
	for rows.Next() {
		var r Review
		if err := rows.Scan(&r.ID, &r.JobID, &r.Text, &r.ReviewDate, &r.Author, &r.Rating, &r.CreatedAt); err != nil {
			return nil, errors.NewStorage("postgres", "scan review", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("postgres", "list reviews", err)
	}
	return out, nil
}

// DeleteReviews removes every review of a job and returns how many were removed
func (s *PostgresStore) DeleteReviews(ctx context.Context, jobID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM reviews WHERE job_id = $1`, jobID)
	if err != nil {
		return 0, errors.NewStorage("postgres", "delete reviews", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// ClaimJob leases an unfinished job to owner for ttl. It reports false when
// the job is finished, gone, or leased to someone else and not yet expired.
func (s *PostgresStore) ClaimJob(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET lease_owner = $2, lease_expires_at = NOW() + make_interval(secs => $3)
		WHERE id = $1
		  AND status IN ('queued', 'processing')
		  AND (lease_owner IS NULL OR lease_owner = $2 OR lease_expires_at < NOW())`,
		id, owner, ttl.Seconds())
	if err != nil {
		return false, errors.NewStorage("postgres", "claim job", err)
	}
	n, _ := res.RowsAffected()
	return n == 1, nil
}

// RenewLease extends owner's lease by ttl
func (s *PostgresStore) RenewLease(ctx context.Context, id, owner string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET lease_expires_at = NOW() + make_interval(secs => $3)
		WHERE id = $1 AND lease_owner = $2`,
		id, owner, ttl.Seconds())
	if err != nil {
		return errors.NewStorage("postgres", "renew lease", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.ErrLeaseLost
	}
	return nil
}

// ReleaseJob drops owner's lease. Releasing a lease held by someone else
// is a no-op.
func (s *PostgresStore) ReleaseJob(ctx context.Context, id, owner string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET lease_owner = NULL, lease_expires_at = NULL
		WHERE id = $1 AND lease_owner = $2`,
		id, owner)
	if err != nil {
		return errors.NewStorage("postgres", "release job", err)
	}
	return nil
}

// InsertAnalysis stores the analysis of one review and sets its ID
func (s *PostgresStore) InsertAnalysis(ctx context.Context, a *Analysis) error {
	aspects := a.Aspects
	if aspects == nil {
		aspects = []Aspect{}
	}
	aspectJSON, err := json.Marshal(aspects)
	if err != nil {
		return errors.NewStorage("postgres", "encode aspects", err)
	}
	keywords := a.Keywords
	if keywords == nil {
		keywords = []string{}
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO review_analyses (review_id, sentiment, aspects, keywords, summary)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		a.ReviewID, a.Sentiment, aspectJSON, pq.Array(keywords), a.Summary,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return errors.NewStorage("postgres", "insert analysis", err)
	}
	return nil
}

// ListAnalyses returns the analyses of a job's reviews, ordered by review
func (s *PostgresStore) ListAnalyses(ctx context.Context, jobID string) ([]Analysis, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.id, a.review_id, a.sentiment, a.aspects, a.keywords, a.summary, a.created_at
		FROM review_analyses a
		JOIN reviews r ON r.id = a.review_id
		WHERE r.job_id = $1
		ORDER BY a.review_id`, jobID)
	if err != nil {
		return nil, errors.NewStorage("postgres", "list analyses", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		var (
			a          Analysis
			aspectJSON []byte
		)
		if err := rows.Scan(&a.ID, &a.ReviewID, &a.Sentiment, &aspectJSON, pq.Array(&a.Keywords), &a.Summary, &a.CreatedAt); err != nil {
			return nil, errors.NewStorage("postgres", "scan analysis", err)
		}
		if err := json.Unmarshal(aspectJSON, &a.Aspects); err != nil {
			return nil, errors.NewStorage("postgres", "decode aspects", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("postgres", "list analyses", err)
	}
	return out, nil
}

// SentimentSummary counts a job's analyses per sentiment label
func (s *PostgresStore) SentimentSummary(ctx context.Context, jobID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.sentiment, COUNT(*)
		FROM review_analyses a
		JOIN reviews r ON r.id = a.review_id
		WHERE r.job_id = $1
		GROUP BY a.sentiment`, jobID)
	if err != nil {
		return nil, errors.NewStorage("postgres", "sentiment summary", err)
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var (
			label string
			n     int
		)
		if err := rows.Scan(&label, &n); err != nil {
			return nil, errors.NewStorage("postgres", "scan sentiment", err)
		}
		out[label] = n
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewStorage("postgres", "sentiment summary", err)
	}
	return out, nil
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewStorage("postgres", "rows affected", err)
	}
	if n == 0 {
		return errors.ErrJobNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func localTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.In(time.Local)
	return &v
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
