package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/civium-ai/custodia/internal/api"
	"github.com/civium-ai/custodia/internal/api/middleware"
	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/go-chi/chi/v5"
)

type DocumentServiceInterface interface {
	Ingest(ctx context.Context, input service.IngestInput) (*domain.Document, error)
	ReplaceContent(ctx context.Context, input service.ReplaceContentInput) (*domain.Document, error)
	GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error)
	List(ctx context.Context, input service.ListDocumentsInput) (*service.ListDocumentsOutput, error)
}

type DocumentHandler struct {
	svc DocumentServiceInterface
}

func NewDocumentHandler(svc DocumentServiceInterface) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type IngestDocumentRequest struct {
	Title       string   `json:"title"`
	Content     string   `json:"content"`
	SourcePath  string   `json:"source_path"`
	Visibility  string   `json:"visibility"`
	Sensitivity string   `json:"sensitivity"`
	Profile     string   `json:"profile"`
	SharedWith  []string `json:"shared_with"`
}

type ReplaceContentRequest struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	SourcePath string `json:"source_path"`
}

type DocumentResponse struct {
	ID          string   `json:"id"`
	TenantID    string   `json:"tenant_id"`
	Title       string   `json:"title"`
	SourcePath  string   `json:"source_path,omitempty"`
	Fingerprint string   `json:"fingerprint"`
	Visibility  string   `json:"visibility"`
	Sensitivity string   `json:"sensitivity"`
	Profile     string   `json:"profile,omitempty"`
	SharedWith  []string `json:"shared_with,omitempty"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"created_at"`
	UpdatedAt   string   `json:"updated_at"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		TenantID:    d.TenantID,
		Title:       d.Title,
		SourcePath:  d.SourcePath,
		Fingerprint: d.Fingerprint,
		Visibility:  string(d.Visibility),
		Sensitivity: string(d.Sensitivity),
		Profile:     d.Profile,
		SharedWith:  d.SharedWith,
		Status:      string(d.Status),
		CreatedAt:   d.CreatedAt.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   d.UpdatedAt.Format("2006-01-02T15:04:05Z"),
	}
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req IngestDocumentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title == "" {
		api.Error(w, http.StatusBadRequest, "title is required")
		return
	}
	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	input := service.IngestInput{
		Caller:      caller,
		Title:       req.Title,
		Content:     req.Content,
		SourcePath:  req.SourcePath,
		Visibility:  domain.Visibility(req.Visibility),
		Sensitivity: domain.SensitivityTier(req.Sensitivity),
		Profile:     req.Profile,
		SharedWith:  req.SharedWith,
	}

	doc, err := h.svc.Ingest(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, documentToResponse(doc))
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	doc, err := h.svc.GetByID(r.Context(), caller.TenantID, id)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) ReplaceContent(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	id := chi.URLParam(r, "id")
	if id == "" {
		api.Error(w, http.StatusBadRequest, "id is required")
		return
	}

	var req ReplaceContentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Content == "" {
		api.Error(w, http.StatusBadRequest, "content is required")
		return
	}

	input := service.ReplaceContentInput{
		Caller:     caller,
		DocumentID: id,
		Title:      req.Title,
		Content:    req.Content,
		SourcePath: req.SourcePath,
	}

	doc, err := h.svc.ReplaceContent(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, documentToResponse(doc))
}

type DocumentListResponse struct {
	Items   []*DocumentResponse `json:"items"`
	Cursor  string              `json:"cursor,omitempty"`
	HasMore bool                `json:"has_more"`
}

func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 20
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	input := service.ListDocumentsInput{
		TenantID: caller.TenantID,
		Cursor:   cursor,
		Limit:    limit,
	}

	output, err := h.svc.List(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*DocumentResponse, len(output.Items))
	for i, d := range output.Items {
		responses[i] = documentToResponse(d)
	}

	api.Success(w, http.StatusOK, DocumentListResponse{
		Items:   responses,
		Cursor:  output.Cursor,
		HasMore: output.HasMore,
	})
}
