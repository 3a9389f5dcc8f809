package tx

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "webdir/pkg/domain-errors"
)

func TestMemoryRunner_SerializesSameKey(t *testing.T) {
	r := NewMemoryRunner()
	ctx := WithShardKey(context.Background(), "membership-1")

	var inFlight, maxInFlight atomic.Int32
	var wg sync.WaitGroup
	for range 20 {
		wg.Go(func() {
			err := r.RunInTx(ctx, func(ctx context.Context) error {
				n := inFlight.Add(1)
				for {
					cur := maxInFlight.Load()
					if n <= cur || maxInFlight.CompareAndSwap(cur, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				inFlight.Add(-1)
				return nil
			})
			require.NoError(t, err)
		})
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxInFlight.Load())
}

func TestMemoryRunner_NestedCallsReuseLock(t *testing.T) {
	r := NewMemoryRunner()
	ctx := WithShardKey(context.Background(), "category-1")

	calls := 0
	err := r.RunInTx(ctx, func(ctx context.Context) error {
		return r.RunInTx(ctx, func(ctx context.Context) error {
			calls++
			return nil
		})
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestMemoryRunner_PropagatesErrorsAndCancellation(t *testing.T) {
	r := NewMemoryRunner()

	boom := errors.New("boom")
	err := r.RunInTx(context.Background(), func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = r.RunInTx(ctx, func(context.Context) error {
		t.Fatal("closure must not run on a cancelled context")
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
}
