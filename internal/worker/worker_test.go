package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_BoundsConcurrency(t *testing.T) {
	logger, _ := test.NewNullLogger()
	p := NewPool(3, logger)

	var inFlight, peak, ran int32
	jobs := make([]Job, 20)
	for i := range jobs {
		jobs[i] = func(ctx context.Context) error {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&peak)
				if n <= old || atomic.CompareAndSwapInt32(&peak, old, n) {
					break
				}
			}
			time.Sleep(2 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			atomic.AddInt32(&ran, 1)
			return nil
		}
	}

	errs := p.Run(context.Background(), jobs)
	require.Len(t, errs, 20)
	assert.NoError(t, Join(errs))
	assert.Equal(t, int32(20), ran)
	assert.LessOrEqual(t, peak, int32(3))
}

func TestPool_FailuresAreIndependent(t *testing.T) {
	logger, hook := test.NewNullLogger()
	p := NewPool(2, logger)
	boom := errors.New("boom")

	var ran int32
	jobs := []Job{
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return boom },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); panic("bad chunk") },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
	}
	errs := p.Run(context.Background(), jobs)

	assert.Equal(t, int32(4), ran)
	assert.NoError(t, errs[0])
	assert.ErrorIs(t, errs[1], boom)
	assert.ErrorContains(t, errs[2], "panicked")
	assert.NoError(t, errs[3])

	joined := Join(errs)
	assert.ErrorIs(t, joined, boom)
	assert.ErrorContains(t, joined, "job 1")
	assert.Len(t, hook.AllEntries(), 2)
}

func TestPool_CancelledContext(t *testing.T) {
	logger, _ := test.NewNullLogger()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var ran int32
	jobs := []Job{
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
		func(ctx context.Context) error { atomic.AddInt32(&ran, 1); return nil },
	}
	errs := NewPool(1, logger).Run(ctx, jobs)

	assert.Equal(t, int32(0), ran)
	for _, err := range errs {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestNewPool_MinimumSize(t *testing.T) {
	assert.Equal(t, 1, NewPool(0, nil).Size)
}
