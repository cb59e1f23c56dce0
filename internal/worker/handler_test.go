package worker

import (
	"context"
	"testing"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/mocks"
	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/joshu-sajeev/goqueue/internal/runner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDefaultHandlers(t *testing.T) {
	handlers := DefaultHandlers(nil)
	for _, hook := range config.BuiltinHooks {
		assert.Contains(t, handlers, hook)
	}
}

func TestEmailDigestHandler(t *testing.T) {
	tests := []struct {
		name    string
		args    models.Args
		wantErr bool
	}{
		{
			name: "valid digest",
			args: models.Args{map[string]any{"to": "ops@example.com", "subject": "Weekly", "period": "weekly"}},
		},
		{name: "missing argument", args: models.Args{}, wantErr: true},
		{
			name:    "invalid email",
			args:    models.Args{map[string]any{"to": "nope", "subject": "Weekly", "period": "weekly"}},
			wantErr: true,
		},
		{
			name:    "unknown period",
			args:    models.Args{map[string]any{"to": "ops@example.com", "subject": "Weekly", "period": "yearly"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := EmailDigestHandler(context.Background(), tt.args)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestEmailDigestHandler_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := EmailDigestHandler(ctx, models.Args{map[string]any{"to": "ops@example.com", "subject": "s", "period": "daily"}})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLicenseCheckHandler(t *testing.T) {
	ctx := context.Background()

	assert.NoError(t, LicenseCheckHandler(ctx, models.Args{map[string]any{"product": "pro", "key": "abcd-1234"}}))
	assert.ErrorContains(t, LicenseCheckHandler(ctx, models.Args{map[string]any{"product": "pro", "key": "revoked-1234"}}), "revoked")
	assert.Error(t, LicenseCheckHandler(ctx, models.Args{map[string]any{"product": "pro", "key": "short"}}))
}

func TestPruneLogsHandler(t *testing.T) {
	ctx := context.Background()

	t.Run("no cleaner", func(t *testing.T) {
		assert.NoError(t, PruneLogsHandler(nil)(ctx, nil))
	})

	t.Run("default retention", func(t *testing.T) {
		store := new(mocks.CleanupStoreMock)
		store.On("DeleteFinishedBefore", mock.Anything, mock.Anything, 20).Return(int64(3), nil)
		store.On("ResetStaleClaims", mock.Anything, mock.Anything).Return(int64(0), nil)
		store.On("FailStaleInProgress", mock.Anything, mock.Anything).Return(int64(0), nil)

		cleaner := runner.NewCleaner(store, runner.CleanupConfig{})
		require.NoError(t, PruneLogsHandler(cleaner)(ctx, models.Args{}))
		store.AssertExpectations(t)
	})

	t.Run("retention override", func(t *testing.T) {
		store := new(mocks.CleanupStoreMock)
		before := time.Now()
		store.On("DeleteFinishedBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
			return cutoff.After(before.Add(-2*time.Hour)) && cutoff.Before(before)
		}), 20).Return(int64(0), nil)
		store.On("ResetStaleClaims", mock.Anything, mock.Anything).Return(int64(0), nil)
		store.On("FailStaleInProgress", mock.Anything, mock.Anything).Return(int64(0), nil)

		cleaner := runner.NewCleaner(store, runner.CleanupConfig{})
		require.NoError(t, PruneLogsHandler(cleaner)(ctx, models.Args{map[string]any{"retention_hours": 1}}))
		store.AssertExpectations(t)
	})

	t.Run("invalid override", func(t *testing.T) {
		cleaner := runner.NewCleaner(new(mocks.CleanupStoreMock), runner.CleanupConfig{})
		assert.Error(t, PruneLogsHandler(cleaner)(ctx, models.Args{map[string]any{"retention_hours": 0}}))
	})
}
