package mocks

import (
	"context"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/models"
	"github.com/stretchr/testify/mock"
)

type RunnerStoreMock struct {
	mock.Mock
}

func (m *RunnerStoreMock) Get(ctx context.Context, id uint) (*models.Action, error) {
	args := m.Called(ctx, id)

	action, _ := args.Get(0).(*models.Action)
	return action, args.Error(1)
}

func (m *RunnerStoreMock) StakeClaim(ctx context.Context, limit int, hooks []string, group string, now time.Time) (*models.StakedClaim, error) {
	args := m.Called(ctx, limit, hooks, group, now)

	claim, _ := args.Get(0).(*models.StakedClaim)
	return claim, args.Error(1)
}

func (m *RunnerStoreMock) ReleaseClaim(ctx context.Context, claimID uint) error {
	args := m.Called(ctx, claimID)
	return args.Error(0)
}

func (m *RunnerStoreMock) ClaimIDOf(ctx context.Context, actionID uint) (uint, error) {
	args := m.Called(ctx, actionID)
	return args.Get(0).(uint), args.Error(1)
}

func (m *RunnerStoreMock) ClaimCount(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

func (m *RunnerStoreMock) MarkInProgress(ctx context.Context, id uint, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *RunnerStoreMock) MarkComplete(ctx context.Context, id uint, now time.Time) error {
	args := m.Called(ctx, id, now)
	return args.Error(0)
}

func (m *RunnerStoreMock) MarkFailure(ctx context.Context, id uint, reason string, now time.Time) error {
	args := m.Called(ctx, id, reason, now)
	return args.Error(0)
}

func (m *RunnerStoreMock) Log(ctx context.Context, id uint, message string) error {
	args := m.Called(ctx, id, message)
	return args.Error(0)
}

type CleanupStoreMock struct {
	mock.Mock
}

func (m *CleanupStoreMock) DeleteFinishedBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	args := m.Called(ctx, cutoff, limit)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CleanupStoreMock) ResetStaleClaims(ctx context.Context, claimedBefore time.Time) (int64, error) {
	args := m.Called(ctx, claimedBefore)
	return args.Get(0).(int64), args.Error(1)
}

func (m *CleanupStoreMock) FailStaleInProgress(ctx context.Context, startedBefore time.Time) (int64, error) {
	args := m.Called(ctx, startedBefore)
	return args.Get(0).(int64), args.Error(1)
}
