package service

import (
	"context"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
)

type AuditPageResult struct {
	Items      []*domain.AuditRecord
	NextCursor string
	HasMore    bool
}

// AuditQueryRepositoryInterface defines the read side of the audit ledger
type AuditQueryRepositoryInterface interface {
	ListByTenantWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*AuditPageResult, error)
	CountByTenant(ctx context.Context, tenantID string) (int, error)
}

// AuditQueryService reads a tenant's audit chain for inspection. Reads are
// plain queries; the chain guarantees come from the append path and the
// verifier, not from here.
type AuditQueryService struct {
	repo AuditQueryRepositoryInterface
}

func NewAuditQueryService(repo AuditQueryRepositoryInterface) *AuditQueryService {
	return &AuditQueryService{repo: repo}
}

func (s *AuditQueryService) List(ctx context.Context, tenantID, cursorStr string, limit int) (*AuditPageResult, error) {
	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}

	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	return s.repo.ListByTenantWithCursor(ctx, tenantID, cursor, limit)
}

func (s *AuditQueryService) Count(ctx context.Context, tenantID string) (int, error) {
	if tenantID == "" {
		return 0, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	return s.repo.CountByTenant(ctx, tenantID)
}
