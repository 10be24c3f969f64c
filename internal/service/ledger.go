package service

import (
	"context"
	"errors"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/telemetry"
)

const (
	// maxAppendAttempts caps the retry loop on lost append races, so write
	// storms surface as errors instead of being silently absorbed.
	maxAppendAttempts = 5
	appendBaseBackoff = 25 * time.Millisecond
)

// LedgerRepositoryInterface defines the repository interface for the audit ledger
type LedgerRepositoryInterface interface {
	GetTail(ctx context.Context, tenantID string) (int64, string, error)
	Append(ctx context.Context, record *domain.AuditRecord) error
}

// AppendInput represents the input for appending an audit record
type AppendInput struct {
	TenantID     string
	ActorID      string
	ActorType    domain.ActorType
	Action       string
	ResourceType string
	ResourceID   string
	Outcome      domain.Outcome
	Severity     domain.Severity
	Payload      map[string]any
}

// AppendResult identifies the committed record
type AppendResult struct {
	RecordID string
	Sequence int64
}

// LedgerService builds hash-chained audit records and appends them with a
// bounded retry loop. Only SequenceConflict is retried; a chain integrity
// violation indicates a defect or tampering and surfaces immediately.
type LedgerService struct {
	repo    LedgerRepositoryInterface
	uuidGen UUIDGenerator
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewLedgerService creates a new LedgerService instance
func NewLedgerService(repo LedgerRepositoryInterface) *LedgerService {
	return &LedgerService{
		repo:    repo,
		uuidGen: &DefaultUUIDGenerator{},
		sleep:   sleepWithContext,
	}
}

// NewLedgerServiceWithUUIDGen creates a new LedgerService with custom UUID generator (for testing)
func NewLedgerServiceWithUUIDGen(repo LedgerRepositoryInterface, uuidGen UUIDGenerator) *LedgerService {
	return &LedgerService{
		repo:    repo,
		uuidGen: uuidGen,
		sleep:   func(ctx context.Context, d time.Duration) error { return nil },
	}
}

// Append validates the input, chains a new record onto the tenant's tail,
// and commits it. The record hash is computed here and independently
// recomputed by the repository before the write is accepted.
func (s *LedgerService) Append(ctx context.Context, input AppendInput) (*AppendResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "LedgerService.Append", telemetry.SpanAttributes{
		TenantID:  input.TenantID,
		ActorID:   input.ActorID,
		Operation: "append",
	})
	defer span.End()

	if input.TenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	if input.ActorID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "actor ID is required")
	}
	if input.Action == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "action is required")
	}
	if input.Severity == "" {
		input.Severity = domain.SeverityInfo
	}

	var lastErr error
	for attempt := 0; attempt < maxAppendAttempts; attempt++ {
		if attempt > 0 {
			backoff := appendBaseBackoff << (attempt - 1)
			if err := s.sleep(ctx, backoff); err != nil {
				return nil, err
			}
		}

		tailSeq, tailHash, err := s.repo.GetTail(ctx, input.TenantID)
		if err != nil {
			return nil, err
		}

		record := &domain.AuditRecord{
			ID:           s.uuidGen.NewString(),
			TenantID:     input.TenantID,
			Sequence:     tailSeq + 1,
			Timestamp:    domain.CanonicalTimestamp(time.Now()),
			ActorID:      input.ActorID,
			ActorType:    input.ActorType,
			Action:       input.Action,
			ResourceType: input.ResourceType,
			ResourceID:   input.ResourceID,
			Outcome:      input.Outcome,
			Severity:     input.Severity,
			Payload:      input.Payload,
			PreviousHash: tailHash,
		}

		record.RecordHash, err = domain.ComputeRecordHash(record)
		if err != nil {
			return nil, err
		}

		if err := domain.ValidateAuditRecord(record); err != nil {
			return nil, err
		}

		err = s.repo.Append(ctx, record)
		if err == nil {
			return &AppendResult{RecordID: record.ID, Sequence: record.Sequence}, nil
		}

		if !errors.Is(err, domain.ErrSequenceConflict) {
			// ChainIntegrityViolation and everything else surfaces as-is
			return nil, err
		}
		lastErr = err
	}

	return nil, domain.NewDomainErrorWithCause(domain.ErrCodeSequenceConflict,
		"audit append lost the sequence race repeatedly, giving up", lastErr)
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
