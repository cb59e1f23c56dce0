package mocks

import (
	"context"

	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/stretchr/testify/mock"
)

type JobServiceMock struct {
	mock.Mock
}

func (m *JobServiceMock) Backend(ctx context.Context) dto.BackendResponse {
	args := m.Called(ctx)
	return args.Get(0).(dto.BackendResponse)
}

func (m *JobServiceMock) Interval(ctx context.Context, name string) (*dto.IntervalResponse, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.IntervalResponse), args.Error(1)
}

func (m *JobServiceMock) Search(ctx context.Context, q *dto.SearchQuery) (*dto.SearchResponse, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.SearchResponse), args.Error(1)
}

func (m *JobServiceMock) Schedule(ctx context.Context, req *dto.ScheduleRequest) (*dto.ScheduleResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.ScheduleResponse), args.Error(1)
}

func (m *JobServiceMock) Unschedule(ctx context.Context, req *dto.UnscheduleRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *JobServiceMock) Run(ctx context.Context, req *dto.RunRequest) (*dto.RunResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*dto.RunResponse), args.Error(1)
}
