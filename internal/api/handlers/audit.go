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
)

type LedgerServiceInterface interface {
	Append(ctx context.Context, input service.AppendInput) (*service.AppendResult, error)
}

type AuditQueryServiceInterface interface {
	List(ctx context.Context, tenantID, cursor string, limit int) (*service.AuditPageResult, error)
	Count(ctx context.Context, tenantID string) (int, error)
}

type ChainVerifierInterface interface {
	Verify(ctx context.Context, tenantID string) (*service.VerificationReport, error)
}

type ExportServiceInterface interface {
	Export(ctx context.Context, tenantID string) (*service.ExportResult, error)
}

type AuditHandler struct {
	ledger   LedgerServiceInterface
	query    AuditQueryServiceInterface
	verifier ChainVerifierInterface
	exporter ExportServiceInterface
}

func NewAuditHandler(ledger LedgerServiceInterface, query AuditQueryServiceInterface, verifier ChainVerifierInterface, exporter ExportServiceInterface) *AuditHandler {
	return &AuditHandler{ledger: ledger, query: query, verifier: verifier, exporter: exporter}
}

type AppendAuditRecordRequest struct {
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Outcome      string         `json:"outcome"`
	Severity     string         `json:"severity"`
	Payload      map[string]any `json:"payload"`
}

type AppendAuditRecordResponse struct {
	RecordID string `json:"record_id"`
	Sequence int64  `json:"sequence"`
}

// Append commits a caller-supplied audit record onto the tenant's chain.
// Actor identity always comes from the authenticated credential, never from
// the request body.
func (h *AuditHandler) Append(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req AppendAuditRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Action == "" {
		api.Error(w, http.StatusBadRequest, "action is required")
		return
	}

	outcome := domain.Outcome(req.Outcome)
	if req.Outcome == "" {
		outcome = domain.OutcomeSuccess
	}

	result, err := h.ledger.Append(r.Context(), service.AppendInput{
		TenantID:     caller.TenantID,
		ActorID:      caller.ActorID,
		ActorType:    caller.ActorType,
		Action:       req.Action,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Outcome:      outcome,
		Severity:     domain.Severity(req.Severity),
		Payload:      req.Payload,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, AppendAuditRecordResponse{
		RecordID: result.RecordID,
		Sequence: result.Sequence,
	})
}

type AuditRecordResponse struct {
	ID           string         `json:"id"`
	TenantID     string         `json:"tenant_id"`
	Sequence     int64          `json:"sequence"`
	Timestamp    string         `json:"timestamp"`
	ActorID      string         `json:"actor_id"`
	ActorType    string         `json:"actor_type"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	Outcome      string         `json:"outcome"`
	Severity     string         `json:"severity"`
	Payload      map[string]any `json:"payload,omitempty"`
	PreviousHash string         `json:"previous_hash"`
	RecordHash   string         `json:"record_hash"`
}

func auditRecordToResponse(rec *domain.AuditRecord) *AuditRecordResponse {
	return &AuditRecordResponse{
		ID:           rec.ID,
		TenantID:     rec.TenantID,
		Sequence:     rec.Sequence,
		Timestamp:    rec.Timestamp.Format("2006-01-02T15:04:05.999999Z"),
		ActorID:      rec.ActorID,
		ActorType:    string(rec.ActorType),
		Action:       rec.Action,
		ResourceType: rec.ResourceType,
		ResourceID:   rec.ResourceID,
		Outcome:      string(rec.Outcome),
		Severity:     string(rec.Severity),
		Payload:      rec.Payload,
		PreviousHash: rec.PreviousHash,
		RecordHash:   rec.RecordHash,
	}
}

type AuditListResponse struct {
	Items   []*AuditRecordResponse `json:"items"`
	Cursor  string                 `json:"cursor,omitempty"`
	HasMore bool                   `json:"has_more"`
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	cursor := r.URL.Query().Get("cursor")
	limitStr := r.URL.Query().Get("limit")
	limit := 50
	if limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	page, err := h.query.List(r.Context(), caller.TenantID, cursor, limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*AuditRecordResponse, len(page.Items))
	for i, rec := range page.Items {
		responses[i] = auditRecordToResponse(rec)
	}

	api.Success(w, http.StatusOK, AuditListResponse{
		Items:   responses,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	})
}

type VerifyChainResponse struct {
	Valid            bool   `json:"valid"`
	RecordsChecked   int    `json:"records_checked"`
	BrokenAtSequence *int64 `json:"broken_at_sequence,omitempty"`
	Reason           string `json:"reason,omitempty"`
}

func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	report, err := h.verifier.Verify(r.Context(), caller.TenantID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusOK, VerifyChainResponse{
		Valid:            report.Valid,
		RecordsChecked:   report.RecordsChecked,
		BrokenAtSequence: report.BrokenAtSequence,
		Reason:           report.Reason,
	})
}

func (h *AuditHandler) Export(w http.ResponseWriter, r *http.Request) {
	caller := middleware.GetTenantContext(r.Context())
	if caller == nil {
		api.Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	result, err := h.exporter.Export(r.Context(), caller.TenantID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.Success(w, http.StatusCreated, result)
}
