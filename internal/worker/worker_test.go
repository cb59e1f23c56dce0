package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_RunOnce(t *testing.T) {
	tests := []struct {
		name    string
		result  runner.Result
		err     error
		wantErr error
	}{
		{name: "batch completes", result: runner.Result{Claimed: 2, Completed: 2}},
		{name: "batch cap is not an error", err: runner.ErrTooManyBatches},
		{name: "store error", err: errors.New("db down"), wantErr: errors.New("db down")},
		{name: "lost claim", result: runner.Result{ClaimID: 7, Lost: true}, wantErr: runner.ErrClaimLost},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := NewWorker(1, "@every 1s", func(context.Context) (runner.Result, error) {
				return tt.result, tt.err
			})

			_, err := w.RunOnce(context.Background())
			switch {
			case tt.wantErr == nil:
				assert.NoError(t, err)
			case errors.Is(tt.wantErr, runner.ErrClaimLost):
				assert.ErrorIs(t, err, runner.ErrClaimLost)
			default:
				assert.EqualError(t, err, tt.wantErr.Error())
			}
		})
	}
}

func TestWorker_StartRejectsBadSchedule(t *testing.T) {
	w := NewWorker(1, "not a schedule", func(context.Context) (runner.Result, error) {
		return runner.Result{}, nil
	})
	err := w.Start(context.Background())
	assert.Error(t, err)
	w.Stop()
}

func TestWorker_StartTwice(t *testing.T) {
	w := NewWorker(1, "@every 1h", func(context.Context) (runner.Result, error) {
		return runner.Result{}, nil
	})
	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	assert.Error(t, w.Start(context.Background()))
}

func TestWorker_TicksUntilStopped(t *testing.T) {
	var calls atomic.Int32
	w := NewWorker(1, "@every 1s", func(context.Context) (runner.Result, error) {
		calls.Add(1)
		return runner.Result{}, nil
	})
	require.NoError(t, w.Start(context.Background()))

	require.Eventually(t, func() bool { return calls.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
	w.Stop()

	n := calls.Load()
	time.Sleep(1500 * time.Millisecond)
	assert.Equal(t, n, calls.Load(), "no ticks after Stop")
}

func TestWorker_StopCancelsBatch(t *testing.T) {
	started := make(chan struct{})
	var canceled atomic.Bool
	w := NewWorker(1, "@every 1s", func(ctx context.Context) (runner.Result, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		canceled.Store(true)
		return runner.Result{}, ctx.Err()
	})
	require.NoError(t, w.Start(context.Background()))

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("batch never started")
	}
	w.Stop()
	assert.True(t, canceled.Load())
}
