package chat

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type countingSweeper struct {
	calls atomic.Int32
	err   error
}

func (s *countingSweeper) Sweep(context.Context, time.Duration) (int64, error) {
	s.calls.Add(1)
	return 1, s.err
}

func TestTTLWorkerSweepsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := &countingSweeper{}

	StartTTLWorker(ctx, s, time.Hour, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return s.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	time.Sleep(30 * time.Millisecond)
	after := s.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, after, s.calls.Load())
}

func TestSweepOnceToleratesErrors(t *testing.T) {
	s := &countingSweeper{err: errors.New("database is locked")}
	sweepOnce(context.Background(), s, time.Hour)
	assert.Equal(t, int32(1), s.calls.Load())
}
