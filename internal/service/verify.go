package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/telemetry"
)

// Broken-chain reasons reported by the verifier.
const (
	ReasonSequenceGap      = "sequence gap"
	ReasonPrevHashMismatch = "previous hash mismatch"
	ReasonHashMismatch     = "record hash mismatch"
)

// LedgerStreamInterface defines the repository interface for chain verification
type LedgerStreamInterface interface {
	StreamByTenant(ctx context.Context, tenantID string, fn func(*domain.AuditRecord) error) error
}

// VerificationReport is the result of walking one tenant's audit chain.
type VerificationReport struct {
	Valid            bool
	RecordsChecked   int
	BrokenAtSequence *int64
	Reason           string
}

// ChainVerifier walks a tenant's audit chain and reports the first point of
// sequence or hash discontinuity. It never repairs anything: a broken chain
// is evidence, and the write path deliberately has no fix-the-chain
// operation.
type ChainVerifier struct {
	repo LedgerStreamInterface
}

// NewChainVerifier creates a new ChainVerifier instance
func NewChainVerifier(repo LedgerStreamInterface) *ChainVerifier {
	return &ChainVerifier{repo: repo}
}

var errChainBroken = errors.New("chain verification stopped at first break")

// Verify streams the tenant's records in sequence order, checking the
// sequence progression, the hash ancestry, and an independent recomputation
// of each record's own hash. It short-circuits at the first failure.
func (v *ChainVerifier) Verify(ctx context.Context, tenantID string) (*VerificationReport, error) {
	ctx, span := telemetry.StartSpan(ctx, "ChainVerifier.Verify", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "verify",
	})
	defer span.End()

	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}

	report := &VerificationReport{Valid: true}
	expectedSeq := int64(1)
	expectedPrevHash := ""

	fail := func(seq int64, reason string) error {
		report.Valid = false
		report.BrokenAtSequence = &seq
		report.Reason = reason
		return errChainBroken
	}

	err := v.repo.StreamByTenant(ctx, tenantID, func(r *domain.AuditRecord) error {
		report.RecordsChecked++

		if r.Sequence != expectedSeq {
			return fail(r.Sequence, ReasonSequenceGap)
		}
		if r.PreviousHash != expectedPrevHash {
			return fail(r.Sequence, ReasonPrevHashMismatch)
		}

		recomputed, err := domain.ComputeRecordHash(r)
		if err != nil {
			return fmt.Errorf("failed to recompute hash at sequence %d: %w", r.Sequence, err)
		}
		if recomputed != r.RecordHash {
			return fail(r.Sequence, ReasonHashMismatch)
		}

		expectedSeq++
		expectedPrevHash = r.RecordHash
		return nil
	})
	if err != nil && !errors.Is(err, errChainBroken) {
		return nil, err
	}

	return report, nil
}
