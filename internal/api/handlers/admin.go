package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/civium-ai/custodia/internal/api"
	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/go-chi/chi/v5"
)

type AdminServiceInterface interface {
	CreateTenant(ctx context.Context, name string) (*domain.Tenant, error)
	GetTenant(ctx context.Context, id string) (*domain.Tenant, error)
	ListTenants(ctx context.Context, cursor string, limit int) (*service.TenantPageResult, error)
	IssueCredential(ctx context.Context, input service.IssueCredentialInput) (string, *domain.AgentCredential, error)
	RevokeCredential(ctx context.Context, id string) error
	ListCredentials(ctx context.Context, tenantID string) ([]*domain.AgentCredential, error)
}

type AdminHandler struct {
	svc AdminServiceInterface
}

func NewAdminHandler(svc AdminServiceInterface) *AdminHandler {
	return &AdminHandler{svc: svc}
}

type CreateTenantRequest struct {
	Name string `json:"name"`
}

type TenantResponse struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func tenantToResponse(t *domain.Tenant) *TenantResponse {
	return &TenantResponse{
		ID:        t.ID,
		Name:      t.Name,
		CreatedAt: t.CreatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *AdminHandler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}

	tenant, err := h.svc.CreateTenant(r.Context(), req.Name)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, tenantToResponse(tenant))
}

func (h *AdminHandler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	tenant, err := h.svc.GetTenant(r.Context(), id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, tenantToResponse(tenant))
}

type TenantListResponse struct {
	Items   []*TenantResponse `json:"items"`
	Cursor  string            `json:"cursor,omitempty"`
	HasMore bool              `json:"has_more"`
}

func (h *AdminHandler) ListTenants(w http.ResponseWriter, r *http.Request) {
	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.svc.ListTenants(r.Context(), cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*TenantResponse, len(page.Items))
	for i, t := range page.Items {
		responses[i] = tenantToResponse(t)
	}

	api.Success(w, http.StatusOK, TenantListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

type IssueCredentialRequest struct {
	TenantID        string   `json:"tenant_id"`
	Name            string   `json:"name"`
	ActorType       string   `json:"actor_type"`
	Ceiling         string   `json:"ceiling"`
	AllowedProfiles []string `json:"allowed_profiles"`
}

type CredentialResponse struct {
	ID              string   `json:"id"`
	TenantID        string   `json:"tenant_id"`
	Name            string   `json:"name"`
	Token           string   `json:"token,omitempty"`
	ActorType       string   `json:"actor_type"`
	Ceiling         string   `json:"ceiling"`
	AllowedProfiles []string `json:"allowed_profiles,omitempty"`
	CreatedAt       string   `json:"created_at"`
	Revoked         bool     `json:"revoked"`
}

func credentialToResponse(c *domain.AgentCredential, token string) *CredentialResponse {
	return &CredentialResponse{
		ID:              c.ID,
		TenantID:        c.TenantID,
		Name:            c.Name,
		Token:           token,
		ActorType:       string(c.ActorType),
		Ceiling:         string(c.Ceiling),
		AllowedProfiles: c.AllowedProfiles,
		CreatedAt:       c.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Revoked:         c.IsRevoked(),
	}
}

func (h *AdminHandler) IssueCredential(w http.ResponseWriter, r *http.Request) {
	var req IssueCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.TenantID == "" {
		api.Error(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	if req.Name == "" {
		api.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Ceiling != "" && !domain.IsValidSensitivityTier(domain.SensitivityTier(req.Ceiling)) {
		api.Error(w, http.StatusBadRequest, "invalid sensitivity tier")
		return
	}

	input := service.IssueCredentialInput{
		TenantID:        req.TenantID,
		Name:            req.Name,
		ActorType:       domain.ActorType(req.ActorType),
		Ceiling:         domain.SensitivityTier(req.Ceiling),
		AllowedProfiles: req.AllowedProfiles,
	}

	token, cred, err := h.svc.IssueCredential(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, credentialToResponse(cred, token))
}

func (h *AdminHandler) RevokeCredential(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	if err := h.svc.RevokeCredential(r.Context(), id); err != nil {
		api.HandleError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type CredentialListResponse struct {
	Items []*CredentialResponse `json:"items"`
}

func (h *AdminHandler) ListCredentials(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "id")
	if tenantID == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	creds, err := h.svc.ListCredentials(r.Context(), tenantID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*CredentialResponse, len(creds))
	for i, c := range creds {
		responses[i] = credentialToResponse(c, "")
	}

	api.Success(w, http.StatusOK, CredentialListResponse{Items: responses})
}
