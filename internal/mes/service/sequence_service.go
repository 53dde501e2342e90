package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// SequenceService hands out daily document codes (MO-20260831-0001).
// Counters live in redis so codes stay unique across instances; without a
// redis client it falls back to an in-process counter (tests, single node).
type SequenceService struct {
	rdb *redis.Client

	mu    sync.Mutex
	local map[string]int64
}

func NewSequenceService(rdb *redis.Client) *SequenceService {
	return &SequenceService{rdb: rdb, local: make(map[string]int64)}
}

// Next returns the next code for the prefix, e.g. Next(ctx, "SPK-CUT").
func (s *SequenceService) Next(ctx context.Context, prefix string) (string, error) {
	day := time.Now().Format("20060102")
	key := fmt.Sprintf("seq:%s:%s", prefix, day)

	var n int64
	if s.rdb != nil {
		v, err := s.rdb.Incr(ctx, key).Result()
		if err != nil {
			return "", fmt.Errorf("sequence incr: %w", err)
		}
		if v == 1 {
			s.rdb.Expire(ctx, key, 48*time.Hour)
		}
		n = v
	} else {
		s.mu.Lock()
		s.local[key]++
		n = s.local[key]
		s.mu.Unlock()
	}

	return fmt.Sprintf("%s-%s-%04d", prefix, day, n), nil
}
