package cache

import (
	"encoding/json"
	"time"

	"sjsage522/placereview/logger"
)

// JobSnapshot is the cached view of a job's progress served to pollers.
type JobSnapshot struct {
	JobID           string    `json:"jobId"`
	PlaceID         string    `json:"placeId"`
	PlaceName       string    `json:"placeName,omitempty"`
	Status          string    `json:"status"`
	StatusMessage   string    `json:"statusMessage"`
	Progress        int       `json:"progress"`
	TotalReviews    string    `json:"totalReviews"`
	AnalyzedReviews string    `json:"analyzedReviews"`
	ErrorMessage    string    `json:"errorMessage,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// ProgressCache stores job snapshots under job:<id>. Failures are logged
// and swallowed; the database stays authoritative.
type ProgressCache struct {
	svc CacheService
	ttl time.Duration
	log *logger.Logger
}

// NewProgressCache wraps svc. A nil svc yields a cache that never hits.
func NewProgressCache(svc CacheService, ttl time.Duration) *ProgressCache {
	return &ProgressCache{svc: svc, ttl: ttl, log: logger.ForCache()}
}

// SnapshotKey returns the cache key for a job
func SnapshotKey(jobID string) string {
	return "job:" + jobID
}

// Save writes snap, ignoring cache errors
func (c *ProgressCache) Save(snap JobSnapshot) {
	if c == nil || c.svc == nil {
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		c.log.Warn().Err(err).Str("job_id", snap.JobID).Msg("Failed to encode job snapshot")
		return
	}
	if err := c.svc.Set(SnapshotKey(snap.JobID), data, c.ttl); err != nil {
		c.log.Warn().Err(err).Str("job_id", snap.JobID).Msg("Failed to cache job snapshot")
	}
}

// Load returns the cached snapshot, or false on a miss or any cache error
func (c *ProgressCache) Load(jobID string) (JobSnapshot, bool) {
	var snap JobSnapshot
	if c == nil || c.svc == nil {
		return snap, false
	}
	data, err := c.svc.Get(SnapshotKey(jobID))
	if err != nil {
		if err != ErrCacheMiss {
			c.log.Debug().Err(err).Str("job_id", jobID).Msg("Job snapshot lookup failed")
		}
		return snap, false
	}
	if err := json.Unmarshal(data, &snap); err != nil {
		c.log.Warn().Err(err).Str("job_id", jobID).Msg("Discarding corrupt job snapshot")
		return snap, false
	}
	return snap, true
}

// Forget drops a job's snapshot
func (c *ProgressCache) Forget(jobID string) {
	if c == nil || c.svc == nil {
		return
	}
	if err := c.svc.Delete(SnapshotKey(jobID)); err != nil {
		c.log.Debug().Err(err).Str("job_id", jobID).Msg("Failed to drop job snapshot")
	}
}
