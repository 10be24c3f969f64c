package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
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

const testToken = "cst_0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"

func TestCredentialAuth_Success(t *testing.T) {
	mockValidator := new(MockCredentialValidator)
	mockValidator.On("ValidateCredential", mock.Anything, testToken).Return(&domain.TenantContext{
		TenantID:  "tenant-789",
		ActorID:   "cred-1",
		ActorType: domain.ActorTypeAgent,
		Ceiling:   domain.TierConfidential,
	}, nil)

	var captured *domain.TenantContext
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = GetTenantContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	middleware := CredentialAuth(mockValidator)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tenant-789", captured.TenantID)
	assert.Equal(t, domain.TierConfidential, captured.Ceiling)
	mockValidator.AssertExpectations(t)
}

func TestCredentialAuth_MissingHeader(t *testing.T) {
	mockValidator := new(MockCredentialValidator)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	middleware := CredentialAuth(mockValidator)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "missing authorization header")
}

func TestCredentialAuth_InvalidFormat(t *testing.T) {
	mockValidator := new(MockCredentialValidator)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	middleware := CredentialAuth(mockValidator)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Basic abc123")
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid authorization format")
}

func TestCredentialAuth_InvalidCredential(t *testing.T) {
	mockValidator := new(MockCredentialValidator)
	mockValidator.On("ValidateCredential", mock.Anything, mock.Anything).Return(nil, domain.ErrInvalidCredential)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	middleware := CredentialAuth(mockValidator)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "invalid credential")
}

func TestCredentialAuth_RevokedCredential(t *testing.T) {
	mockValidator := new(MockCredentialValidator)
	mockValidator.On("ValidateCredential", mock.Anything, mock.Anything).Return(nil, domain.ErrCredentialRevoked)

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	})

	middleware := CredentialAuth(mockValidator)
	wrappedHandler := middleware(handler)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	w := httptest.NewRecorder()

	wrappedHandler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetTenantContext_Unset(t *testing.T) {
	assert.Nil(t, GetTenantContext(context.Background()))
}
