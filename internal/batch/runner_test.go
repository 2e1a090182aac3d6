package batch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChunk(t *testing.T) {
	ids := make([]int, 45)
	for i := range ids {
		ids[i] = i + 1
	}

	chunks := Chunk(ids, 20)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 20)
	assert.Len(t, chunks[1], 20)
	assert.Len(t, chunks[2], 5)
	assert.Equal(t, 21, chunks[1][0])
	assert.Equal(t, 45, chunks[2][4])

	assert.Empty(t, Chunk([]int{}, 20))
	assert.Len(t, Chunk(ids, 0), 1)
}

func TestRunner_CompletesAndReportsProgress(t *testing.T) {
	r := NewRunner(time.Minute, zap.NewNop())

	job, err := r.Start(context.Background(), "count", func(ctx context.Context, report func(int, int)) (any, error) {
		for i := 1; i <= 3; i++ {
			report(i, 3)
		}
		return map[string]int{"count": 3}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, job.Status)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := r.Wait(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
	assert.Equal(t, Progress{Done: 3, Total: 3}, final.Progress)
	assert.Equal(t, map[string]int{"count": 3}, final.Result)
	assert.False(t, final.EndedAt.IsZero())
}

func TestRunner_OneJobAtATime(t *testing.T) {
	r := NewRunner(time.Minute, zap.NewNop())
	release := make(chan struct{})

	first, err := r.Start(context.Background(), "slow", func(ctx context.Context, _ func(int, int)) (any, error) {
		<-release
		return nil, nil
	})
	require.NoError(t, err)

	running, err := r.Start(context.Background(), "second", func(context.Context, func(int, int)) (any, error) {
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.Equal(t, first.ID, running.ID)

	close(release)
	_, err = r.Wait(context.Background(), first.ID)
	require.NoError(t, err)

	next, err := r.Start(context.Background(), "third", func(context.Context, func(int, int)) (any, error) {
		return nil, nil
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)

	_, err = r.Get(first.ID)
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunner_FailureAndPanic(t *testing.T) {
	r := NewRunner(0, zap.NewNop())

	job, err := r.Start(context.Background(), "fails", func(context.Context, func(int, int)) (any, error) {
		return nil, errors.New("boom")
	})
	require.NoError(t, err)
	final, err := r.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Equal(t, "boom", final.Error)

	job, err = r.Start(context.Background(), "panics", func(context.Context, func(int, int)) (any, error) {
		panic("bad chunk")
	})
	require.NoError(t, err)
	final, err = r.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.Contains(t, final.Error, "bad chunk")
}

func TestRunner_DetachedFromRequestContext(t *testing.T) {
	r := NewRunner(time.Minute, zap.NewNop())
	reqCtx, cancelReq := context.WithCancel(context.Background())

	started := make(chan struct{})
	job, err := r.Start(reqCtx, "detached", func(ctx context.Context, _ func(int, int)) (any, error) {
		close(started)
		time.Sleep(20 * time.Millisecond)
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	<-started
	cancelReq()

	final, err := r.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, final.Status)
}

func TestRunner_Cancel(t *testing.T) {
	r := NewRunner(time.Minute, zap.NewNop())
	job, err := r.Start(context.Background(), "cancellable", func(ctx context.Context, _ func(int, int)) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	require.NoError(t, err)
	require.NoError(t, r.Cancel(job.ID))

	final, err := r.Wait(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, final.Status)
	assert.ErrorIs(t, r.Cancel("missing"), ErrJobNotFound)
}
