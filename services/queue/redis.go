package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"sjsage522/placereview/logger"
	"sjsage522/placereview/pkg/errors"
)

const payloadField = "job"

// RedisOptions configures a RedisQueue
type RedisOptions struct {
	Addr          string
	DB            int
	Stream        string
	Group         string
	Consumer      string
	MaxDeliveries int
	ReclaimIdle   time.Duration
	Block         time.Duration
	DeadMaxLen    int64
}

// RedisQueue implements Queue on a Redis stream with a consumer group.
// Messages left pending longer than ReclaimIdle are claimed by whichever
// consumer asks next; after MaxDeliveries attempts a message is moved to
// <stream>:dead and acknowledged.
type RedisQueue struct {
	client *redis.Client
	opts   RedisOptions
	log    *logger.Logger
}

// NewRedisQueue connects and makes sure the stream and group exist
func NewRedisQueue(ctx context.Context, opts RedisOptions) (*RedisQueue, error) {
	if opts.Block <= 0 {
		opts.Block = 5 * time.Second
	}
	if opts.MaxDeliveries < 1 {
		opts.MaxDeliveries = 3
	}
	if opts.DeadMaxLen <= 0 {
		opts.DeadMaxLen = 10000
	}

	client := redis.NewClient(&redis.Options{
		Addr: opts.Addr,
		DB:   opts.DB,
	})

	q := &RedisQueue{client: client, opts: opts, log: logger.ForQueue()}
	if err := q.ensureGroup(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return q, nil
}

func (q *RedisQueue) ensureGroup(ctx context.Context) error {
	err := q.client.XGroupCreateMkStream(ctx, q.opts.Stream, q.opts.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return errors.NewQueue("redis", "create consumer group", err)
	}
	return nil
}

// DeadLetterStream returns the stream that receives undeliverable messages
func (q *RedisQueue) DeadLetterStream() string {
	return q.opts.Stream + ":dead"
}

// Enqueue publishes a job message to the stream
func (q *RedisQueue) Enqueue(ctx context.Context, msg JobMessage) (string, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return "", errors.NewQueue("redis", "encode job message", err)
	}

	id, err := q.client.XAdd(ctx, &redis.XAddArgs{
		Stream: q.opts.Stream,
		Values: map[string]interface{}{
			payloadField: string(payload),
		},
	}).Result()
	if err != nil {
		return "", errors.NewQueue("redis", "xadd", err)
	}

	q.log.Debug().Str("job_id", msg.JobID).Str("message_id", id).Msg("Job enqueued")
	return id, nil
}

// Consume reclaims a stale message if there is one, otherwise blocks for a
// new one, and runs handler on it
func (q *RedisQueue) Consume(ctx context.Context, handler Handler) error {
	msg, err := q.next(ctx)
	if err != nil || msg == nil {
		return err
	}
	return q.dispatch(ctx, *msg, handler)
}

func (q *RedisQueue) next(ctx context.Context) (*redis.XMessage, error) {
	if q.opts.ReclaimIdle > 0 {
		claimed, _, err := q.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
			Stream:   q.opts.Stream,
			Group:    q.opts.Group,
			Consumer: q.opts.Consumer,
			MinIdle:  q.opts.ReclaimIdle,
			Start:    "0-0",
			Count:    1,
		}).Result()
		if err != nil && err != redis.Nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errors.NewQueue("redis", "xautoclaim", err)
		}
		if len(claimed) > 0 {
			q.log.Info().Str("message_id", claimed[0].ID).Msg("Reclaimed stale job message")
			return &claimed[0], nil
		}
	}

	streams, err := q.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.opts.Group,
		Consumer: q.opts.Consumer,
		Streams:  []string{q.opts.Stream, ">"},
		Count:    1,
		Block:    q.opts.Block,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewQueue("redis", "xreadgroup", err)
	}
	for _, s := range streams {
		if len(s.Messages) > 0 {
			return &s.Messages[0], nil
		}
	}
	return nil, nil
}

func (q *RedisQueue) dispatch(ctx context.Context, msg redis.XMessage, handler Handler) error {
	var job JobMessage
	raw, _ := msg.Values[payloadField].(string)
	if err := json.Unmarshal([]byte(raw), &job); err != nil || job.JobID == "" {
		q.log.Warn().Str("message_id", msg.ID).Msg("Undecodable job message")
		return q.deadLetter(ctx, msg, "undecodable payload")
	}

	attempt := q.deliveries(ctx, msg.ID)
	if attempt > int64(q.opts.MaxDeliveries) {
		q.log.Warn().
			Str("message_id", msg.ID).
			Str("job_id", job.JobID).
			Int64("attempt", attempt).
			Msg("Job exceeded max deliveries")
		return q.deadLetter(ctx, msg, fmt.Sprintf("exceeded %d deliveries", q.opts.MaxDeliveries))
	}

	stop := q.keepClaimed(ctx, msg.ID)
	err := handler(ctx, Delivery{ID: msg.ID, Job: job, Attempt: attempt})
	stop()
	if err != nil {
		// left pending; XAUTOCLAIM picks it up after ReclaimIdle
		return fmt.Errorf("handle job %s: %w", job.JobID, err)
	}

	if err := q.client.XAck(ctx, q.opts.Stream, q.opts.Group, msg.ID).Err(); err != nil {
		return errors.NewQueue("redis", "xack", err)
	}
	return nil
}

// keepClaimed re-claims the message for this consumer every third of
// ReclaimIdle while the handler runs, so XAUTOCLAIM elsewhere never sees
// a live job as stale. JUSTID claims leave the delivery count alone.
func (q *RedisQueue) keepClaimed(ctx context.Context, id string) (stop func()) {
	if q.opts.ReclaimIdle <= 0 {
		return func() {}
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(q.opts.ReclaimIdle / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			err := q.client.XClaimJustID(ctx, &redis.XClaimArgs{
				Stream:   q.opts.Stream,
				Group:    q.opts.Group,
				Consumer: q.opts.Consumer,
				MinIdle:  0,
				Messages: []string{id},
			}).Err()
			if err != nil && ctx.Err() == nil {
				q.log.Warn().Err(err).Str("message_id", id).Msg("Failed to refresh job message claim")
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// deliveries returns how many times the message has been delivered,
// including the current delivery
func (q *RedisQueue) deliveries(ctx context.Context, id string) int64 {
	pending, err := q.client.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: q.opts.Stream,
		Group:  q.opts.Group,
		Start:  id,
		End:    id,
		Count:  1,
	}).Result()
	if err != nil || len(pending) == 0 {
		return 1
	}
	return pending[0].RetryCount
}

func (q *RedisQueue) deadLetter(ctx context.Context, msg redis.XMessage, reason string) error {
	values := map[string]interface{}{
		"original_id": msg.ID,
		"reason":      reason,
	}
	for k, v := range msg.Values {
		values[k] = v
	}

	pipe := q.client.TxPipeline()
	pipe.XAdd(ctx, &redis.XAddArgs{Stream: q.DeadLetterStream(), Values: values})
	pipe.XTrimMaxLenApprox(ctx, q.DeadLetterStream(), q.opts.DeadMaxLen, 0)
	pipe.XAck(ctx, q.opts.Stream, q.opts.Group, msg.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.NewQueue("redis", "dead-letter", err)
	}
	return nil
}

// Ping checks the Redis connection
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
