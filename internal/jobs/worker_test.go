package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tessera-ai/tessera/internal/domain"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIngestJobRepository is a mock implementation of IngestJobRepository
type MockIngestJobRepository struct {
	mock.Mock
}

func (m *MockIngestJobRepository) GetPendingJobs(ctx context.Context) ([]*domain.IngestJob, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IngestJob), args.Error(1)
}

func (m *MockIngestJobRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.IngestJobStatus, errMsg string) error {
	args := m.Called(ctx, jobID, status, errMsg)
	return args.Error(0)
}

func (m *MockIngestJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockIngestService is a mock implementation of IngestService
type MockIngestService struct {
	mock.Mock
}

func (m *MockIngestService) Process(ctx context.Context, job *domain.IngestJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockIngestService) MarkFailed(ctx context.Context, tenantID, documentID, errMsg string) error {
	args := m.Called(ctx, tenantID, documentID, errMsg)
	return args.Error(0)
}

// TestWorker_StartStop tests the worker start and stop functionality
func TestWorker_StartStop(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	// Let it run for a bit
	time.Sleep(250 * time.Millisecond)

	worker.Stop()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestWorker_ContextCancellation tests worker stops on context cancellation
func TestWorker_ContextCancellation(t *testing.T) {
	mockProcessor := new(MockJobProcessor)
	mockProcessor.On("ProcessJobs", mock.Anything).Return(nil)

	worker := NewWorker(mockProcessor, 100*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start(ctx)
	}()

	time.Sleep(150 * time.Millisecond)

	cancel()
	wg.Wait()

	mockProcessor.AssertCalled(t, "ProcessJobs", mock.Anything)
}

// TestIngestWorker_ProcessJobs_NoPendingJobs tests when there are no pending jobs
func TestIngestWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{}, nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertNotCalled(t, "Process", mock.Anything, mock.Anything)
}

// TestIngestWorker_ProcessJobs_Success tests successful job processing
func TestIngestWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	job := &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Status:     domain.IngestJobStatusPending,
		Retries:    0,
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("Process", mock.Anything, job).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusCompleted, "").Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_FailureWithRetry tests job failure with retry
func TestIngestWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	job := &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Status:     domain.IngestJobStatusPending,
		Retries:    0,
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("Process", mock.Anything, job).Return(errors.New("chunking failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
	mockService.AssertNotCalled(t, "MarkFailed", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// TestIngestWorker_ProcessJobs_MaxRetriesExceeded tests job failure after max retries
func TestIngestWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	job := &domain.IngestJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		TenantID:   "tenant-1",
		Status:     domain.IngestJobStatusPending,
		Retries:    2, // Already retried twice
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return([]*domain.IngestJob{job}, nil)
	mockService.On("Process", mock.Anything, job).Return(errors.New("chunking failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)
	mockService.On("MarkFailed", mock.Anything, "tenant-1", "doc-1", mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_MultipleJobs tests processing multiple jobs
func TestIngestWorker_ProcessJobs_MultipleJobs(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	jobs := []*domain.IngestJob{
		{ID: "job-1", DocumentID: "doc-1", TenantID: "tenant-1", Status: domain.IngestJobStatusPending},
		{ID: "job-2", DocumentID: "doc-2", TenantID: "tenant-1", Status: domain.IngestJobStatusPending},
	}

	mockRepo.On("GetPendingJobs", mock.Anything).Return(jobs, nil)

	// Job 1 succeeds, job 2 fails and is requeued
	mockService.On("Process", mock.Anything, jobs[0]).Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-1", domain.IngestJobStatusCompleted, "").Return(nil)

	mockService.On("Process", mock.Anything, jobs[1]).Return(errors.New("embed failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-2").Return(nil)
	mockRepo.On("UpdateJobStatus", mock.Anything, "job-2", domain.IngestJobStatusPending, mock.Anything).Return(nil)

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockService.AssertExpectations(t)
}

// TestIngestWorker_ProcessJobs_RepositoryError tests repository error handling
func TestIngestWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockIngestJobRepository)
	mockService := new(MockIngestService)

	mockRepo.On("GetPendingJobs", mock.Anything).Return(nil, errors.New("database error"))

	worker := NewIngestWorker(mockRepo, mockService)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch pending jobs")
	mockRepo.AssertExpectations(t)
}

// MockSessionPruner is a mock implementation of SessionPruner
type MockSessionPruner struct {
	mock.Mock
}

func (m *MockSessionPruner) DeleteCompletedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// TestRetentionWorker_ProcessJobs tests pruning with the configured cutoff
func TestRetentionWorker_ProcessJobs(t *testing.T) {
	mockPruner := new(MockSessionPruner)

	retention := 720 * time.Hour
	mockPruner.On("DeleteCompletedBefore", mock.Anything, mock.MatchedBy(func(cutoff time.Time) bool {
		expected := time.Now().UTC().Add(-retention)
		return cutoff.Sub(expected).Abs() < time.Minute
	})).Return(int64(3), nil)

	worker := NewRetentionWorker(mockPruner, retention)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockPruner.AssertExpectations(t)
}

// TestRetentionWorker_ProcessJobs_Error tests pruner error handling
func TestRetentionWorker_ProcessJobs_Error(t *testing.T) {
	mockPruner := new(MockSessionPruner)
	mockPruner.On("DeleteCompletedBefore", mock.Anything, mock.Anything).Return(int64(0), errors.New("database error"))

	worker := NewRetentionWorker(mockPruner, time.Hour)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to prune sessions")
}
