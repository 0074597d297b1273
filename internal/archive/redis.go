// Package archive stores flushed call summaries in Redis so they can be
// read back after the call has ended.
package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ai-screening-call-service/internal/models"
	"ai-screening-call-service/internal/observability/logging"
	"ai-screening-call-service/internal/observability/metrics"
)

var (
	ErrNotFound  = errors.New("call summary not found")
	ErrInvalidID = errors.New("invalid session id")
)

const (
	defaultTTL       = 7 * 24 * time.Hour
	defaultPrefix    = "screening"
	defaultMaxRecent = 1000
)

// RedisStore keeps call summaries as JSON under <prefix>:call:<sessionId>,
// plus a capped list of recent session IDs.
type RedisStore struct {
	client    redis.UniversalClient
	ttl       time.Duration
	prefix    string
	maxRecent int64
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// Option configures a RedisStore.
type Option func(*RedisStore)

// WithTTL sets how long summaries are kept. Zero keeps them forever.
func WithTTL(ttl time.Duration) Option {
	return func(s *RedisStore) { s.ttl = ttl }
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *RedisStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRecent caps the recent-calls index.
func WithMaxRecent(n int64) Option {
	return func(s *RedisStore) {
		if n > 0 {
			s.maxRecent = n
		}
	}
}

// NewRedisStore creates a summary archive on client.
func NewRedisStore(client redis.UniversalClient, opts ...Option) *RedisStore {
	s := &RedisStore{
		client:    client,
		ttl:       defaultTTL,
		prefix:    defaultPrefix,
		maxRecent: defaultMaxRecent,
		logger:    logging.WithComponent("archive"),
		metrics:   metrics.DefaultMetrics,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisStore) callKey(id string) string {
	return fmt.Sprintf("%s:call:%s", s.prefix, id)
}

func (s *RedisStore) recentKey() string {
	return s.prefix + ":calls:recent"
}

// Save stores the summary and records it in the recent index.
func (s *RedisStore) Save(ctx context.Context, sum models.CallSummary) (err error) {
	defer func() { s.metrics.RecordArchiveWrite(err) }()

	if sum.SessionID == "" {
		return ErrInvalidID
	}
	data, err := json.Marshal(sum)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.callKey(sum.SessionID), data, s.ttl)
	pipe.LRem(ctx, s.recentKey(), 0, sum.SessionID)
	pipe.LPush(ctx, s.recentKey(), sum.SessionID)
	pipe.LTrim(ctx, s.recentKey(), 0, s.maxRecent-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	s.logger.Debug().Str("sessionId", sum.SessionID).Str("outcome", string(sum.Outcome)).Msg("Call summary archived")
	return nil
}

// Notify archives a flushed summary.
func (s *RedisStore) Notify(ctx context.Context, sum models.CallSummary) error {
	return s.Save(ctx, sum)
}

// Get returns the archived summary for a session.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (models.CallSummary, error) {
	if sessionID == "" {
		return models.CallSummary{}, ErrInvalidID
	}
	data, err := s.client.Get(ctx, s.callKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return models.CallSummary{}, ErrNotFound
		}
		return models.CallSummary{}, fmt.Errorf("redis get failed: %w", err)
	}

	var sum models.CallSummary
	if err := json.Unmarshal(data, &sum); err != nil {
		return models.CallSummary{}, fmt.Errorf("unmarshal summary: %w", err)
	}
	return sum, nil
}

// Recent returns up to n summaries, newest first. Expired entries are skipped.
func (s *RedisStore) Recent(ctx context.Context, n int) ([]models.CallSummary, error) {
	if n <= 0 {
		return []models.CallSummary{}, nil
	}
	ids, err := s.client.LRange(ctx, s.recentKey(), 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange failed: %w", err)
	}
	if len(ids) == 0 {
		return []models.CallSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.callKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	out := make([]models.CallSummary, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var sum models.CallSummary
		if err := json.Unmarshal([]byte(raw), &sum); err != nil {
			s.logger.Warn().Err(err).Str("sessionId", ids[i]).Msg("Skipping unreadable summary")
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
