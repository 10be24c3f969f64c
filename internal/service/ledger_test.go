package service

import (
	"context"
	"testing"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) GetTail(ctx context.Context, tenantID string) (int64, string, error) {
	args := m.Called(ctx, tenantID)
	return args.Get(0).(int64), args.String(1), args.Error(2)
}

func (m *MockLedgerRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func validAppendInput() AppendInput {
	return AppendInput{
		TenantID:     "tenant-1",
		ActorID:      "agent-1",
		ActorType:    domain.ActorTypeAgent,
		Action:       "knowledge.retrieve",
		ResourceType: "document",
		ResourceID:   "doc-1",
		Outcome:      domain.OutcomeSuccess,
		Severity:     domain.SeverityInfo,
		Payload:      map[string]any{"result_count": 3},
	}
}

func TestLedgerService_Append_Genesis(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator("record-1")

	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(0), "", nil)

	var captured *domain.AuditRecord
	mockRepo.On("Append", ctx, mock.MatchedBy(func(r *domain.AuditRecord) bool {
		captured = r
		return r.Sequence == 1 && r.PreviousHash == ""
	})).Return(nil)

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	result, err := service.Append(ctx, validAppendInput())

	require.NoError(t, err)
	assert.Equal(t, "record-1", result.RecordID)
	assert.Equal(t, int64(1), result.Sequence)

	require.NotNil(t, captured)
	recomputed, err := domain.ComputeRecordHash(captured)
	require.NoError(t, err)
	assert.Equal(t, recomputed, captured.RecordHash)
	mockRepo.AssertExpectations(t)
}

func TestLedgerService_Append_ChainsOntoTail(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator("record-6")

	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(5), "abc123", nil)
	mockRepo.On("Append", ctx, mock.MatchedBy(func(r *domain.AuditRecord) bool {
		return r.Sequence == 6 && r.PreviousHash == "abc123"
	})).Return(nil)

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	result, err := service.Append(ctx, validAppendInput())

	require.NoError(t, err)
	assert.Equal(t, int64(6), result.Sequence)
	mockRepo.AssertExpectations(t)
}

func TestLedgerService_Append_RetriesLostRace(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator("record-a", "record-b")

	// First attempt reads a stale tail and loses the race; the second
	// attempt re-reads and wins.
	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(3), "hash-3", nil).Once()
	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(4), "hash-4", nil).Once()

	mockRepo.On("Append", ctx, mock.MatchedBy(func(r *domain.AuditRecord) bool {
		return r.Sequence == 4
	})).Return(domain.ErrSequenceConflict).Once()
	mockRepo.On("Append", ctx, mock.MatchedBy(func(r *domain.AuditRecord) bool {
		return r.Sequence == 5 && r.PreviousHash == "hash-4"
	})).Return(nil).Once()

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	result, err := service.Append(ctx, validAppendInput())

	require.NoError(t, err)
	assert.Equal(t, int64(5), result.Sequence)
	mockRepo.AssertExpectations(t)
}

func TestLedgerService_Append_GivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator()

	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(1), "hash-1", nil)
	mockRepo.On("Append", ctx, mock.Anything).Return(domain.ErrSequenceConflict)

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	_, err := service.Append(ctx, validAppendInput())

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeSequenceConflict, domainErr.Code)
	mockRepo.AssertNumberOfCalls(t, "Append", maxAppendAttempts)
}

func TestLedgerService_Append_ChainViolationNotRetried(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator()

	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(2), "hash-2", nil)
	mockRepo.On("Append", ctx, mock.Anything).Return(domain.ErrAncestryMismatch)

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	_, err := service.Append(ctx, validAppendInput())

	require.ErrorIs(t, err, domain.ErrAncestryMismatch)
	mockRepo.AssertNumberOfCalls(t, "Append", 1)
}

func TestLedgerService_Append_ValidatesInput(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	service := NewLedgerServiceWithUUIDGen(mockRepo, NewMockUUIDGenerator())

	tests := []struct {
		name   string
		mutate func(*AppendInput)
	}{
		{"missing tenant", func(in *AppendInput) { in.TenantID = "" }},
		{"missing actor", func(in *AppendInput) { in.ActorID = "" }},
		{"missing action", func(in *AppendInput) { in.Action = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := validAppendInput()
			tt.mutate(&input)

			_, err := service.Append(ctx, input)

			require.Error(t, err)
			mockRepo.AssertNotCalled(t, "GetTail")
			mockRepo.AssertNotCalled(t, "Append")
		})
	}
}

func TestLedgerService_Append_DefaultsSeverity(t *testing.T) {
	ctx := context.Background()
	mockRepo := new(MockLedgerRepository)
	mockUUIDGen := NewMockUUIDGenerator("record-1")

	mockRepo.On("GetTail", ctx, "tenant-1").Return(int64(0), "", nil)
	mockRepo.On("Append", ctx, mock.MatchedBy(func(r *domain.AuditRecord) bool {
		return r.Severity == domain.SeverityInfo
	})).Return(nil)

	input := validAppendInput()
	input.Severity = ""

	service := NewLedgerServiceWithUUIDGen(mockRepo, mockUUIDGen)
	_, err := service.Append(ctx, input)

	require.NoError(t, err)
	mockRepo.AssertExpectations(t)
}
