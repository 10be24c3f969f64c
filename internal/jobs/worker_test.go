package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockJobProcessor is a mock implementation of JobProcessor
type MockJobProcessor struct {
	mock.Mock
}

func (m *MockJobProcessor) ProcessJobs(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockIndexJobRepository is a mock implementation of IndexJobRepository
type MockIndexJobRepository struct {
	mock.Mock
}

func (m *MockIndexJobRepository) ClaimPending(ctx context.Context, limit int) ([]*domain.IndexJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.IndexJob), args.Error(1)
}

func (m *MockIndexJobRepository) UpdateStatus(ctx context.Context, jobID string, status domain.IndexJobStatus, errMsg string) error {
	args := m.Called(ctx, jobID, status, errMsg)
	return args.Error(0)
}

func (m *MockIndexJobRepository) IncrementRetries(ctx context.Context, jobID string) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// MockIndexer is a mock implementation of Indexer
type MockIndexer struct {
	mock.Mock
}

func (m *MockIndexer) IndexDocument(ctx context.Context, documentID string) error {
	args := m.Called(ctx, documentID)
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

// TestIndexWorker_ProcessJobs_NoPendingJobs tests when there are no pending jobs
func TestIndexWorker_ProcessJobs_NoPendingJobs(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return([]*domain.IndexJob{}, nil)

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertNotCalled(t, "IndexDocument", mock.Anything, mock.Anything)
}

// TestIndexWorker_ProcessJobs_Success tests successful job processing
func TestIndexWorker_ProcessJobs_Success(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	job := &domain.IndexJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		Status:     domain.IndexJobStatusProcessing,
		Retries:    0,
	}

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusCompleted, "").Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_FailureWithRetry tests job failure with retry
func TestIndexWorker_ProcessJobs_FailureWithRetry(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	job := &domain.IndexJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		Status:     domain.IndexJobStatusProcessing,
		Retries:    0,
	}

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(errors.New("embedding failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusPending, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_MaxRetriesExceeded tests job failure after max retries
func TestIndexWorker_ProcessJobs_MaxRetriesExceeded(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	job := &domain.IndexJob{
		ID:         "job-1",
		DocumentID: "doc-1",
		Status:     domain.IndexJobStatusProcessing,
		Retries:    2, // Already retried twice
	}

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return([]*domain.IndexJob{job}, nil)
	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(errors.New("embedding failed"))
	mockRepo.On("IncrementRetries", mock.Anything, "job-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusFailed, mock.MatchedBy(func(msg string) bool {
		return msg != ""
	})).Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_MultipleJobs tests processing multiple jobs
func TestIndexWorker_ProcessJobs_MultipleJobs(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	jobs := []*domain.IndexJob{
		{ID: "job-1", DocumentID: "doc-1", Status: domain.IndexJobStatusProcessing},
		{ID: "job-2", DocumentID: "doc-2", Status: domain.IndexJobStatusProcessing},
	}

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return(jobs, nil)

	mockIndexer.On("IndexDocument", mock.Anything, "doc-1").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-1", domain.IndexJobStatusCompleted, "").Return(nil)

	mockIndexer.On("IndexDocument", mock.Anything, "doc-2").Return(nil)
	mockRepo.On("UpdateStatus", mock.Anything, "job-2", domain.IndexJobStatusCompleted, "").Return(nil)

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.NoError(t, err)
	mockRepo.AssertExpectations(t)
	mockIndexer.AssertExpectations(t)
}

// TestIndexWorker_ProcessJobs_RepositoryError tests repository error handling
func TestIndexWorker_ProcessJobs_RepositoryError(t *testing.T) {
	mockRepo := new(MockIndexJobRepository)
	mockIndexer := new(MockIndexer)

	mockRepo.On("ClaimPending", mock.Anything, mock.Anything).Return(nil, errors.New("database error"))

	worker := NewIndexWorker(mockRepo, mockIndexer)
	err := worker.ProcessJobs(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to claim pending jobs")
	mockRepo.AssertExpectations(t)
}
