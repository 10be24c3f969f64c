package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
)

const agentKeyPrefix = "cst_"

type TenantPageResult struct {
	Items      []*domain.Tenant
	NextCursor string
	HasMore    bool
}

type TenantRepositoryInterface interface {
	Create(ctx context.Context, tenant *domain.Tenant) error
	GetByID(ctx context.Context, id string) (*domain.Tenant, error)
	GetByName(ctx context.Context, name string) (*domain.Tenant, error)
	ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*TenantPageResult, error)
}

type CredentialRepositoryInterface interface {
	Create(ctx context.Context, cred *domain.AgentCredential) error
	GetByID(ctx context.Context, id string) (*domain.AgentCredential, error)
	GetByHash(ctx context.Context, keyHash string) (*domain.AgentCredential, error)
	GetByTenantID(ctx context.Context, tenantID string) ([]*domain.AgentCredential, error)
	Revoke(ctx context.Context, id string) error
}

// IssueCredentialInput configures a new agent credential. Ceiling and
// profiles are fixed at issue time; tightening access means revoking and
// reissuing, which keeps the audit trail honest about who could see what.
type IssueCredentialInput struct {
	TenantID        string
	Name            string
	ActorType       domain.ActorType
	Ceiling         domain.SensitivityTier
	AllowedProfiles []string
}

// AuthService manages tenants and the agent credentials that act within them.
type AuthService struct {
	tenantRepo TenantRepositoryInterface
	credRepo   CredentialRepositoryInterface
	uuidGen    UUIDGenerator
}

func NewAuthService(tenantRepo TenantRepositoryInterface, credRepo CredentialRepositoryInterface, uuidGen UUIDGenerator) *AuthService {
	return &AuthService{
		tenantRepo: tenantRepo,
		credRepo:   credRepo,
		uuidGen:    uuidGen,
	}
}

func (s *AuthService) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	if name == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant name is required")
	}

	tenant := &domain.Tenant{
		ID:        s.uuidGen.NewString(),
		Name:      name,
		CreatedAt: time.Now().UTC(),
	}

	if err := domain.ValidateTenant(tenant); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid tenant", err)
	}

	if err := s.tenantRepo.Create(ctx, tenant); err != nil {
		return nil, err
	}

	return tenant, nil
}

func (s *AuthService) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	if id == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	return s.tenantRepo.GetByID(ctx, id)
}

func (s *AuthService) ListTenants(ctx context.Context, cursorStr string, limit int) (*TenantPageResult, error) {
	cursor, err := pagination.DecodeCursor(cursorStr)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}
	return s.tenantRepo.ListWithCursor(ctx, cursor, limit)
}

// IssueCredential mints a new agent key and returns the plaintext token
// exactly once. Only the hash is stored.
func (s *AuthService) IssueCredential(ctx context.Context, input IssueCredentialInput) (string, *domain.AgentCredential, error) {
	if input.TenantID == "" {
		return "", nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	if input.Name == "" {
		return "", nil, domain.NewDomainError(domain.ErrCodeValidation, "credential name is required")
	}

	if _, err := s.tenantRepo.GetByID(ctx, input.TenantID); err != nil {
		return "", nil, err
	}

	ceiling := input.Ceiling
	if ceiling == "" {
		ceiling = domain.TierInternal
	}
	actorType := input.ActorType
	if actorType == "" {
		actorType = domain.ActorTypeAgent
	}

	token, err := generateAgentToken()
	if err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeInternalError, "failed to generate credential", err)
	}

	cred := &domain.AgentCredential{
		ID:              s.uuidGen.NewString(),
		TenantID:        input.TenantID,
		Name:            input.Name,
		KeyHash:         hashToken(token),
		ActorType:       actorType,
		Ceiling:         ceiling,
		AllowedProfiles: input.AllowedProfiles,
		CreatedAt:       time.Now().UTC(),
		RevokedAt:       nil,
	}

	if err := domain.ValidateAgentCredential(cred); err != nil {
		return "", nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid credential", err)
	}

	if err := s.credRepo.Create(ctx, cred); err != nil {
		return "", nil, err
	}

	return token, cred, nil
}

// ValidateCredential resolves a bearer token to the tenant context it
// authorizes. An unknown or revoked token never reveals which it was.
func (s *AuthService) ValidateCredential(ctx context.Context, token string) (*domain.TenantContext, error) {
	if !IsValidAgentToken(token) {
		return nil, domain.ErrInvalidCredential
	}

	cred, err := s.credRepo.GetByHash(ctx, hashToken(token))
	if err != nil {
		if errors.Is(err, domain.ErrCredentialNotFound) {
			return nil, domain.ErrInvalidCredential
		}
		return nil, err
	}

	if cred.IsRevoked() {
		return nil, domain.ErrCredentialRevoked
	}

	return cred.Context(), nil
}

func (s *AuthService) RevokeCredential(ctx context.Context, id string) error {
	if id == "" {
		return domain.NewDomainError(domain.ErrCodeValidation, "credential ID is required")
	}
	return s.credRepo.Revoke(ctx, id)
}

func (s *AuthService) ListCredentials(ctx context.Context, tenantID string) ([]*domain.AgentCredential, error) {
	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	return s.credRepo.GetByTenantID(ctx, tenantID)
}

func generateAgentToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return agentKeyPrefix + hex.EncodeToString(bytes), nil
}

func hashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

func IsValidAgentToken(token string) bool {
	if !strings.HasPrefix(token, agentKeyPrefix) {
		return false
	}
	hexPart := token[len(agentKeyPrefix):]
	if len(hexPart) != 64 {
		return false
	}
	for _, c := range hexPart {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')) {
			return false
		}
	}
	return true
}
