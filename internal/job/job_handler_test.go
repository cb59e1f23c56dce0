package job

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joshu-sajeev/goqueue/common"
	"github.com/joshu-sajeev/goqueue/internal/config"
	"github.com/joshu-sajeev/goqueue/internal/dto"
	"github.com/joshu-sajeev/goqueue/internal/mocks"
	"github.com/joshu-sajeev/goqueue/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func newTestRouter(svc JobServiceInterface) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TimeoutMiddleware(5*time.Second), middleware.ErrorHandler())
	NewJobHandler(svc).Register(r)
	return r
}

func serve(r *gin.Engine, method, target, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestJobHandler_Health(t *testing.T) {
	w := serve(newTestRouter(new(mocks.JobServiceMock)), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestJobHandler_Backend(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	svc.On("Backend", mock.Anything).Return(dto.BackendResponse{Backend: config.BackendClaimStore, ClaimStoreActive: true})

	w := serve(newTestRouter(svc), http.MethodGet, "/backend", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backend":"claim-store","claim_store_active":true}`, w.Body.String())
	svc.AssertExpectations(t)
}

func TestJobHandler_Interval(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	svc.On("Interval", mock.Anything, "daily").Return(&dto.IntervalResponse{Name: "daily", Seconds: 86400}, nil)
	svc.On("Interval", mock.Anything, "fortnightly").Return(nil, common.Errf(http.StatusNotFound, "unknown schedule"))
	r := newTestRouter(svc)

	w := serve(r, http.MethodGet, "/schedules/daily", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"name":"daily","seconds":86400}`, w.Body.String())

	w = serve(r, http.MethodGet, "/schedules/fortnightly", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	svc.AssertExpectations(t)
}

func TestJobHandler_Schedule(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		setupMock      func(*mocks.JobServiceMock)
		expectedStatus int
	}{
		{
			name: "successful schedule",
			body: `{"hook":"goqueue_sync","args":[1],"schedule":"hourly"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Schedule", mock.Anything, mock.MatchedBy(func(req *dto.ScheduleRequest) bool {
					return req.Hook == "goqueue_sync" && req.Schedule == "hourly" && string(req.Args) == "[1]"
				})).Return(&dto.ScheduleResponse{Backend: config.BackendHostCron, Hook: "goqueue_sync", Recurring: true}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "invalid request body JSON",
			body:           "{invalid json}",
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "missing hook",
			body:           `{"args":[]}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "schedule and interval together",
			body:           `{"hook":"goqueue_sync","schedule":"daily","interval_seconds":60}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "interval beyond ten years",
			body:           `{"hook":"goqueue_sync","interval_seconds":9223372036}`,
			setupMock:      func(m *mocks.JobServiceMock) {},
			expectedStatus: http.StatusBadRequest,
		},
		{
			name: "interval at the cap",
			body: `{"hook":"goqueue_sync","interval_seconds":315360000}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Schedule", mock.Anything, mock.MatchedBy(func(req *dto.ScheduleRequest) bool {
					return req.IntervalSeconds == 315360000
				})).Return(&dto.ScheduleResponse{Backend: config.BackendClaimStore, Hook: "goqueue_sync", Recurring: true}, nil)
			},
			expectedStatus: http.StatusCreated,
		},
		{
			name: "backend unavailable",
			body: `{"hook":"goqueue_sync"}`,
			setupMock: func(m *mocks.JobServiceMock) {
				m.On("Schedule", mock.Anything, mock.Anything).
					Return(nil, common.NewAPIError(http.StatusServiceUnavailable, "failed to schedule job", nil))
			},
			expectedStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			tt.setupMock(svc)

			w := serve(newTestRouter(svc), http.MethodPost, "/actions", tt.body)

			assert.Equal(t, tt.expectedStatus, w.Code, "Status code mismatch for test: %s", tt.name)
			svc.AssertExpectations(t)
		})
	}
}

func TestJobHandler_Unschedule(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	svc.On("Unschedule", mock.Anything, mock.MatchedBy(func(req *dto.UnscheduleRequest) bool {
		return req.Hook == "goqueue_sync" && req.All && req.Args == nil
	})).Return(nil)
	svc.On("Unschedule", mock.Anything, mock.MatchedBy(func(req *dto.UnscheduleRequest) bool {
		return req.Hook == "goqueue_missing"
	})).Return(common.Errf(http.StatusNotFound, "no scheduled job"))
	r := newTestRouter(svc)

	w := serve(r, http.MethodDelete, "/actions", `{"hook":"goqueue_sync","all":true}`)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = serve(r, http.MethodDelete, "/actions", `{"hook":"goqueue_missing"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(r, http.MethodDelete, "/actions", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestJobHandler_Search(t *testing.T) {
	svc := new(mocks.JobServiceMock)
	svc.On("Search", mock.Anything, mock.MatchedBy(func(q *dto.SearchQuery) bool {
		return q.Hook == "goqueue_sync" && q.Limit == 5 && q.Desc && q.Format == "ids"
	})).Return(&dto.SearchResponse{Backend: config.BackendClaimStore, IDs: []string{"4", "2"}}, nil)
	r := newTestRouter(svc)

	w := serve(r, http.MethodGet, "/actions?hook=goqueue_sync&limit=5&desc=true&format=ids", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"backend":"claim-store","ids":["4","2"]}`, w.Body.String())

	w = serve(r, http.MethodGet, "/actions?format=xml", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = serve(r, http.MethodGet, "/actions?status=sleeping", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	svc.AssertExpectations(t)
}

func TestJobHandler_Run(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		resp           *dto.RunResponse
		err            error
		expectedStatus int
	}{
		{
			name:           "batch completes",
			body:           `{"batch_size":10}`,
			resp:           &dto.RunResponse{Backend: config.BackendClaimStore, Claimed: 1, Completed: 1},
			expectedStatus: http.StatusOK,
		},
		{
			name:           "claim lost",
			body:           `{}`,
			resp:           &dto.RunResponse{Backend: config.BackendClaimStore, Claimed: 3, Lost: true},
			expectedStatus: http.StatusConflict,
		},
		{
			name:           "too many batches",
			body:           `{}`,
			err:            common.Errf(http.StatusTooManyRequests, "too many concurrent batches"),
			expectedStatus: http.StatusTooManyRequests,
		},
		{
			name:           "batch size too large",
			body:           `{"batch_size":5000}`,
			expectedStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(mocks.JobServiceMock)
			if tt.resp != nil || tt.err != nil {
				if tt.resp != nil {
					svc.On("Run", mock.Anything, mock.Anything).Return(tt.resp, nil)
				} else {
					svc.On("Run", mock.Anything, mock.Anything).Return(nil, tt.err)
				}
			}

			w := serve(newTestRouter(svc), http.MethodPost, "/runs", tt.body)
			assert.Equal(t, tt.expectedStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}
