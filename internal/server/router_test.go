package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/civium-ai/custodia/internal/api/handlers"
	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockCredentialValidator struct {
	mock.Mock
}

func (m *MockCredentialValidator) ValidateCredential(ctx context.Context, token string) (*domain.TenantContext, error) {
	args := m.Called(ctx, token)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.TenantContext), args.Error(1)
}

type MockRetrievalService struct {
	mock.Mock
}

func (m *MockRetrievalService) Retrieve(ctx context.Context, input service.RetrieveInput) (*service.RetrieveOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RetrieveOutput), args.Error(1)
}

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, input service.IngestInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) ReplaceContent(ctx context.Context, input service.ReplaceContentInput) (*domain.Document, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	args := m.Called(ctx, tenantID, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListDocumentsOutput), args.Error(1)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) Append(ctx context.Context, input service.AppendInput) (*service.AppendResult, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AppendResult), args.Error(1)
}

type MockAuditQueryService struct {
	mock.Mock
}

func (m *MockAuditQueryService) List(ctx context.Context, tenantID, cursor string, limit int) (*service.AuditPageResult, error) {
	args := m.Called(ctx, tenantID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AuditPageResult), args.Error(1)
}

func (m *MockAuditQueryService) Count(ctx context.Context, tenantID string) (int, error) {
	args := m.Called(ctx, tenantID)
	return args.Int(0), args.Error(1)
}

type MockChainVerifier struct {
	mock.Mock
}

func (m *MockChainVerifier) Verify(ctx context.Context, tenantID string) (*service.VerificationReport, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VerificationReport), args.Error(1)
}

type MockExportService struct {
	mock.Mock
}

func (m *MockExportService) Export(ctx context.Context, tenantID string) (*service.ExportResult, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ExportResult), args.Error(1)
}

type MockAdminService struct {
	mock.Mock
}

func (m *MockAdminService) CreateTenant(ctx context.Context, name string) (*domain.Tenant, error) {
	args := m.Called(ctx, name)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockAdminService) GetTenant(ctx context.Context, id string) (*domain.Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Tenant), args.Error(1)
}

func (m *MockAdminService) ListTenants(ctx context.Context, cursor string, limit int) (*service.TenantPageResult, error) {
	args := m.Called(ctx, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.TenantPageResult), args.Error(1)
}

func (m *MockAdminService) IssueCredential(ctx context.Context, input service.IssueCredentialInput) (string, *domain.AgentCredential, error) {
	args := m.Called(ctx, input)
	if args.Get(1) == nil {
		return "", nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*domain.AgentCredential), args.Error(2)
}

func (m *MockAdminService) RevokeCredential(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAdminService) ListCredentials(ctx context.Context, tenantID string) ([]*domain.AgentCredential, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.AgentCredential), args.Error(1)
}

const testAgentToken = "cst_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func setupRouter() (http.Handler, *MockCredentialValidator, *MockRetrievalService, *MockDocumentService, *MockAuditQueryService, *MockAdminService) {
	validator := new(MockCredentialValidator)
	retrievalSvc := new(MockRetrievalService)
	documentSvc := new(MockDocumentService)
	auditSvc := new(MockAuditQueryService)
	adminSvc := new(MockAdminService)

	cfg := RouterConfig{
		CredentialValidator: validator,
		RetrievalHandler:    handlers.NewRetrievalHandler(retrievalSvc),
		DocumentHandler:     handlers.NewDocumentHandler(documentSvc),
		AuditHandler:        handlers.NewAuditHandler(new(MockLedgerService), auditSvc, new(MockChainVerifier), new(MockExportService)),
		AdminHandler:        handlers.NewAdminHandler(adminSvc),
	}

	router := NewRouter(cfg)
	return router, validator, retrievalSvc, documentSvc, auditSvc, adminSvc
}

func TestRouter_HealthEndpoint(t *testing.T) {
	router, _, _, _, _, _ := setupRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var resp map[string]interface{}
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	data := resp["data"].(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
}

func TestRouter_AuthenticatedRoutes_RequireAuth(t *testing.T) {
	router, validator, _, _, _, _ := setupRouter()

	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/retrieve"},
		{http.MethodPost, "/documents"},
		{http.MethodGet, "/documents"},
		{http.MethodGet, "/documents/123"},
		{http.MethodPut, "/documents/123/content"},
		{http.MethodGet, "/audit/records"},
		{http.MethodPost, "/audit/records"},
		{http.MethodGet, "/audit/verify"},
		{http.MethodPost, "/audit/export"},
	}

	for _, route := range routes {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			req := httptest.NewRequest(route.method, route.path, nil)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}

	validator.AssertExpectations(t)
}

func TestRouter_AuthenticatedRoutes_WithValidCredential(t *testing.T) {
	router, validator, _, documentSvc, _, _ := setupRouter()

	validator.On("ValidateCredential", mock.Anything, testAgentToken).Return(&domain.TenantContext{
		TenantID:  "tenant-1",
		ActorID:   "agent-1",
		ActorType: domain.ActorTypeAgent,
		Ceiling:   domain.TierInternal,
	}, nil)

	expectedDoc := &domain.Document{
		ID:          "doc-123",
		TenantID:    "tenant-1",
		Title:       "Test",
		Content:     "Body",
		Fingerprint: domain.ContentFingerprint("Body"),
		Visibility:  domain.VisibilityPrivate,
		Sensitivity: domain.TierInternal,
		Status:      domain.DocumentStatusActive,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	documentSvc.On("GetByID", mock.Anything, "tenant-1", "doc-123").Return(expectedDoc, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-123", nil)
	req.Header.Set("Authorization", "Bearer "+testAgentToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	validator.AssertExpectations(t)
	documentSvc.AssertExpectations(t)
}

func TestRouter_AuditAppendRouted(t *testing.T) {
	validator := new(MockCredentialValidator)
	ledgerSvc := new(MockLedgerService)

	cfg := RouterConfig{
		CredentialValidator: validator,
		RetrievalHandler:    handlers.NewRetrievalHandler(new(MockRetrievalService)),
		DocumentHandler:     handlers.NewDocumentHandler(new(MockDocumentService)),
		AuditHandler:        handlers.NewAuditHandler(ledgerSvc, new(MockAuditQueryService), new(MockChainVerifier), new(MockExportService)),
		AdminHandler:        handlers.NewAdminHandler(new(MockAdminService)),
	}
	router := NewRouter(cfg)

	validator.On("ValidateCredential", mock.Anything, testAgentToken).Return(&domain.TenantContext{
		TenantID:  "tenant-1",
		ActorID:   "agent-1",
		ActorType: domain.ActorTypeAgent,
		Ceiling:   domain.TierInternal,
	}, nil)
	ledgerSvc.On("Append", mock.Anything, mock.MatchedBy(func(input service.AppendInput) bool {
		return input.TenantID == "tenant-1" && input.Action == "policy.review"
	})).Return(&service.AppendResult{RecordID: "rec-1", Sequence: 3}, nil)

	body := `{"action":"policy.review","outcome":"success"}`
	req := httptest.NewRequest(http.MethodPost, "/audit/records", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+testAgentToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	ledgerSvc.AssertExpectations(t)
}

func TestRouter_RevokedCredentialRejected(t *testing.T) {
	router, validator, _, _, _, _ := setupRouter()

	validator.On("ValidateCredential", mock.Anything, testAgentToken).
		Return(nil, domain.ErrCredentialRevoked)

	req := httptest.NewRequest(http.MethodPost, "/retrieve", strings.NewReader(`{"query":"x"}`))
	req.Header.Set("Authorization", "Bearer "+testAgentToken)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_AdminRoutes_NoCredentialRequired(t *testing.T) {
	router, _, _, _, _, adminSvc := setupRouter()

	expectedTenant := &domain.Tenant{
		ID:        "tenant-1",
		Name:      "Water Department",
		CreatedAt: time.Now().UTC(),
	}
	adminSvc.On("CreateTenant", mock.Anything, "Water Department").Return(expectedTenant, nil)

	req := httptest.NewRequest(http.MethodPost, "/tenants", strings.NewReader(`{"name":"Water Department"}`))
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	adminSvc.AssertExpectations(t)
}
