package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for checkpoint persistence.
var (
	savesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_checkpoint_saves_total",
		Help: "Total checkpoint writes by checkpoint name",
	}, []string{"name"})

	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_checkpoint_loads_total",
		Help: "Total checkpoint reads by checkpoint name and result",
	}, []string{"name", "result"})
)

// ErrNotFound reports that no checkpoint exists under the requested name.
var ErrNotFound = errors.New("checkpoint not found")

// Store persists cursors in Redis. Checkpoints are single-writer state:
// each export run owns its name for the duration of the run.
type Store struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStore returns a Store writing checkpoints with the given TTL. A zero
// or negative TTL means DefaultTTL.
func NewStore(redisClient *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		redis:  redisClient,
		ttl:    ttl,
		logger: log.With().Str("component", "checkpoint").Logger(),
	}
}

// Key returns the Redis key a checkpoint name maps to.
func Key(name string) string {
	return KeyPrefix + name
}

// Save writes the cursor under name, stamping UpdatedAt and refreshing the
// TTL.
func (s *Store) Save(ctx context.Context, name string, cursor Cursor) error {
	if name == "" {
		return fmt.Errorf("checkpoint name is required")
	}
	cursor.UpdatedAt = time.Now().UTC()

	payload, err := json.Marshal(cursor)
	if err != nil {
		return fmt.Errorf("marshal checkpoint %s: %w", name, err)
	}
	if err := s.redis.Set(ctx, Key(name), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store checkpoint %s: %w", name, err)
	}
	savesTotal.WithLabelValues(name).Inc()

	s.logger.Debug().
		Str("checkpoint", name).
		Str("run_id", cursor.RunID).
		Int64("documents", cursor.Documents).
		Msg("Checkpoint saved")

	return nil
}

// Load reads the cursor stored under name. Returns ErrNotFound when the
// checkpoint does not exist or has expired.
func (s *Store) Load(ctx context.Context, name string) (*Cursor, error) {
	if name == "" {
		return nil, fmt.Errorf("checkpoint name is required")
	}

	payload, err := s.redis.Get(ctx, Key(name)).Result()
	if err == redis.Nil {
		loadsTotal.WithLabelValues(name, "miss").Inc()
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", name, err)
	}

	var cursor Cursor
	if err := json.Unmarshal([]byte(payload), &cursor); err != nil {
		return nil, fmt.Errorf("parse checkpoint %s: %w", name, err)
	}
	loadsTotal.WithLabelValues(name, "hit").Inc()

	s.logger.Debug().
		Str("checkpoint", name).
		Str("run_id", cursor.RunID).
		Int64("documents", cursor.Documents).
		Time("updated_at", cursor.UpdatedAt).
		Msg("Checkpoint loaded")

	return &cursor, nil
}

// Clear removes the checkpoint stored under name. Clearing a missing
// checkpoint is not an error.
func (s *Store) Clear(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("checkpoint name is required")
	}
	if err := s.redis.Del(ctx, Key(name)).Err(); err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", name, err)
	}
	s.logger.Info().Str("checkpoint", name).Msg("Checkpoint cleared")
	return nil
}
