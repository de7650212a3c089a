package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vetclinic/backend/internal/domain/billing"
	"go.uber.org/zap"
)

const defaultSequenceKeyPrefix = "invoice_seq:"

// SequenceSeedFunc returns the value a fresh year-month counter starts from
type SequenceSeedFunc func(ctx context.Context, yearMonth string) (int64, error)

// RedisInvoiceSequence implements billing.InvoiceSequence with Redis INCR.
// A missing counter is seeded once with SETNX so existing numbers are skipped.
type RedisInvoiceSequence struct {
	client    redis.Cmdable
	seed      SequenceSeedFunc
	keyPrefix string
	logger    *zap.Logger
}

// RedisInvoiceSequenceOption is a functional option for configuring the sequence
type RedisInvoiceSequenceOption func(*RedisInvoiceSequence)

// WithSequenceSeed sets the seed used for counters that do not exist yet
func WithSequenceSeed(seed SequenceSeedFunc) RedisInvoiceSequenceOption {
	return func(s *RedisInvoiceSequence) {
		s.seed = seed
	}
}

// WithSequenceKeyPrefix overrides the key prefix
func WithSequenceKeyPrefix(prefix string) RedisInvoiceSequenceOption {
	return func(s *RedisInvoiceSequence) {
		if prefix != "" {
			s.keyPrefix = prefix
		}
	}
}

// WithSequenceLogger sets the logger
func WithSequenceLogger(logger *zap.Logger) RedisInvoiceSequenceOption {
	return func(s *RedisInvoiceSequence) {
		s.logger = logger
	}
}

// NewRedisInvoiceSequence creates a new RedisInvoiceSequence
func NewRedisInvoiceSequence(client redis.Cmdable, opts ...RedisInvoiceSequenceOption) *RedisInvoiceSequence {
	s := &RedisInvoiceSequence{
		client:    client,
		keyPrefix: defaultSequenceKeyPrefix,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *RedisInvoiceSequence) key(yearMonth string) string {
	return s.keyPrefix + yearMonth
}

// Next reserves and returns the next value for yearMonth
func (s *RedisInvoiceSequence) Next(ctx context.Context, yearMonth string) (int64, error) {
	key := s.key(yearMonth)

	if s.seed != nil {
		exists, err := s.client.Exists(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("check invoice sequence: %w", err)
		}
		if exists == 0 {
			seed, err := s.seed(ctx, yearMonth)
			if err != nil {
				return 0, fmt.Errorf("seed invoice sequence: %w", err)
			}
			set, err := s.client.SetNX(ctx, key, seed, 0).Result()
			if err != nil {
				return 0, fmt.Errorf("seed invoice sequence: %w", err)
			}
			if set {
				s.logger.Info("Seeded invoice sequence",
					zap.String("year_month", yearMonth),
					zap.Int64("seed", seed))
			}
		}
	}

	n, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("increment invoice sequence: %w", err)
	}
	return n, nil
}

var _ billing.InvoiceSequence = (*RedisInvoiceSequence)(nil)
