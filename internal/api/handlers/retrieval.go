package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/civium-ai/custodia/internal/api"
	"github.com/civium-ai/custodia/internal/api/middleware"
	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/service"
)

type RetrievalServiceInterface interface {
	Retrieve(ctx context.Context, input service.RetrieveInput) (*service.RetrieveOutput, error)
}

type RetrievalHandler struct {
	svc RetrievalServiceInterface
}

func NewRetrievalHandler(svc RetrievalServiceInterface) *RetrievalHandler {
	return &RetrievalHandler{svc: svc}
}

type RetrieveRequest struct {
	Query           string    `json:"query"`
	QueryVector     []float32 `json:"query_vector,omitempty"`
	IncludeCitywide bool      `json:"include_citywide"`
	MaxSensitivity  string    `json:"max_sensitivity"`
	AllowedProfiles []string  `json:"allowed_profiles"`
	Limit           int       `json:"limit"`
}

type FragmentResponse struct {
	FragmentID  string  `json:"fragment_id"`
	DocumentID  string  `json:"document_id"`
	Title       string  `json:"title"`
	Heading     string  `json:"heading,omitempty"`
	Content     string  `json:"content"`
	Position    int     `json:"position"`
	SourcePath  string  `json:"source_path,omitempty"`
	Profile     string  `json:"profile,omitempty"`
	Sensitivity string  `json:"sensitivity"`
	Visibility  string  `json:"visibility"`
	Similarity  float32 `json:"similarity"`
}

type RetrieveResponse struct {
	Fragments     []*FragmentResponse `json:"fragments"`
	EffectiveTier string              `json:"effective_tier"`
	AuditSequence int64               `json:"audit_sequence"`
}

func fragmentToResponse(f *service.RankedFragment) *FragmentResponse {
	return &FragmentResponse{
		FragmentID:  f.FragmentID,
		DocumentID:  f.DocumentID,
		Title:       f.Title,
		Heading:     f.Heading,
		Content:     f.Content,
		Position:    f.Position,
		SourcePath:  f.SourcePath,
		Profile:     f.Profile,
		Sensitivity: f.Sensitivity,
		Visibility:  f.Visibility,
		Similarity:  f.Similarity,
	}
}

func (h *RetrievalHandler) Retrieve(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req RetrieveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if (req.Query == "") == (len(req.QueryVector) == 0) {
		api.Error(w, http.StatusBadRequest, "exactly one of query or query_vector is required")
		return
	}

	var maxSensitivity domain.SensitivityTier
	if req.MaxSensitivity != "" {
		maxSensitivity = domain.SensitivityTier(req.MaxSensitivity)
		if !domain.IsValidSensitivityTier(maxSensitivity) {
			api.Error(w, http.StatusBadRequest, "invalid sensitivity tier")
			return
		}
	}

	input := service.RetrieveInput{
		Caller:          caller,
		Query:           req.Query,
		QueryVector:     req.QueryVector,
		IncludeCitywide: req.IncludeCitywide,
		MaxSensitivity:  maxSensitivity,
		AllowedProfiles: req.AllowedProfiles,
		Limit:           req.Limit,
	}

	output, err := h.svc.Retrieve(r.Context(), input)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	fragments := make([]*FragmentResponse, len(output.Fragments))
	for i, f := range output.Fragments {
		fragments[i] = fragmentToResponse(f)
	}

	api.Success(w, http.StatusOK, RetrieveResponse{
		Fragments:     fragments,
		EffectiveTier: string(output.EffectiveTier),
		AuditSequence: output.AuditSequence,
	})
}
