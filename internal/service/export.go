package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/telemetry"
)

// ObjectStore defines the storage interface for chain exports
type ObjectStore interface {
	PutObject(ctx context.Context, key, contentType string, body []byte) error
	GenerateDownloadURL(ctx context.Context, key string) (string, error)
}

// ExportResult describes one committed chain export.
type ExportResult struct {
	Key            string `json:"key"`
	RecordCount    int    `json:"record_count"`
	TailSequence   int64  `json:"tail_sequence"`
	TailRecordHash string `json:"tail_record_hash"`
	DownloadURL    string `json:"download_url,omitempty"`
}

type exportLine struct {
	ID           string          `json:"id"`
	TenantID     string          `json:"tenant_id"`
	Sequence     int64           `json:"sequence"`
	Timestamp    string          `json:"timestamp"`
	ActorID      string          `json:"actor_id"`
	ActorType    string          `json:"actor_type"`
	Action       string          `json:"action"`
	ResourceType string          `json:"resource_type,omitempty"`
	ResourceID   string          `json:"resource_id,omitempty"`
	Outcome      string          `json:"outcome"`
	Severity     string          `json:"severity"`
	Payload      json.RawMessage `json:"payload,omitempty"`
	PreviousHash string          `json:"previous_hash"`
	RecordHash   string          `json:"record_hash"`
}

// ExportService writes a verified copy of a tenant's audit chain to object
// storage as JSON lines. It refuses to export a chain that fails
// verification; an export is a custody artifact, not a backup of whatever
// happens to be in the table.
type ExportService struct {
	verifier *ChainVerifier
	stream   LedgerStreamInterface
	store    ObjectStore
	now      func() time.Time
}

// NewExportService creates a new ExportService instance
func NewExportService(verifier *ChainVerifier, stream LedgerStreamInterface, store ObjectStore) *ExportService {
	return &ExportService{
		verifier: verifier,
		stream:   stream,
		store:    store,
		now:      time.Now,
	}
}

// Export verifies the tenant's chain and, if intact, writes every record to
// object storage under a timestamped key.
func (s *ExportService) Export(ctx context.Context, tenantID string) (*ExportResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "ExportService.Export", telemetry.SpanAttributes{
		TenantID:  tenantID,
		Operation: "export",
	})
	defer span.End()

	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}

	report, err := s.verifier.Verify(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if !report.Valid {
		return nil, domain.NewDomainError(domain.ErrCodeChainIntegrity,
			fmt.Sprintf("refusing to export broken chain: %s at sequence %d", report.Reason, *report.BrokenAtSequence))
	}

	var body []byte
	result := &ExportResult{}

	err = s.stream.StreamByTenant(ctx, tenantID, func(r *domain.AuditRecord) error {
		line, err := json.Marshal(exportLine{
			ID:           r.ID,
			TenantID:     r.TenantID,
			Sequence:     r.Sequence,
			Timestamp:    r.Timestamp.UTC().Format(time.RFC3339Nano),
			ActorID:      r.ActorID,
			ActorType:    string(r.ActorType),
			Action:       r.Action,
			ResourceType: r.ResourceType,
			ResourceID:   r.ResourceID,
			Outcome:      string(r.Outcome),
			Severity:     string(r.Severity),
			Payload:      marshalPayload(r.Payload),
			PreviousHash: r.PreviousHash,
			RecordHash:   r.RecordHash,
		})
		if err != nil {
			return err
		}
		body = append(body, line...)
		body = append(body, '\n')
		result.RecordCount++
		result.TailSequence = r.Sequence
		result.TailRecordHash = r.RecordHash
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	result.Key = fmt.Sprintf("audit-exports/%s/%s.jsonl", tenantID, s.now().UTC().Format("20060102T150405Z"))

	if err := s.store.PutObject(ctx, result.Key, "application/x-ndjson", body); err != nil {
		span.SetError(err)
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeUpstreamUnavailable, "failed to store chain export", err)
	}

	if url, err := s.store.GenerateDownloadURL(ctx, result.Key); err == nil {
		result.DownloadURL = url
	}

	return result, nil
}

func marshalPayload(payload map[string]any) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil
	}
	return raw
}
