package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// LedgerRepository is the append-only store behind the audit ledger. It
// exposes no update or delete operation; the database additionally enforces
// immutability with a rejecting trigger, so a compromised application tier
// cannot rewrite history either.
type LedgerRepository struct {
	pool *pgxpool.Pool
}

func NewLedgerRepository(pool *pgxpool.Pool) *LedgerRepository {
	return &LedgerRepository{pool: pool}
}

const auditColumns = `id, tenant_id, sequence, ts, actor_id, actor_type, action,
	resource_type, resource_id, outcome, severity, payload, previous_hash, record_hash`

// GetTail returns the tenant's last committed sequence and record hash,
// or (0, "") for a tenant with no records yet. This is an unlocked read;
// Append revalidates under the row lock.
func (r *LedgerRepository) GetTail(ctx context.Context, tenantID string) (int64, string, error) {
	var seq int64
	var hash string
	err := r.pool.QueryRow(ctx,
		`SELECT sequence, record_hash FROM audit_records
		 WHERE tenant_id = $1 ORDER BY sequence DESC LIMIT 1`,
		tenantID,
	).Scan(&seq, &hash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", nil
		}
		return 0, "", err
	}
	return seq, hash, nil
}

// Append validates and commits one record atomically. The tenant's tail row
// is locked FOR UPDATE for the duration, so concurrent appends for the same
// tenant serialize; appends for different tenants do not contend. Either the
// full validated record is committed or nothing is.
func (r *LedgerRepository) Append(ctx context.Context, record *domain.AuditRecord) error {
	if err := domain.ValidateAuditRecord(record); err != nil {
		return err
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var tailSeq int64
	var tailHash string
	err = tx.QueryRow(ctx,
		`SELECT sequence, record_hash FROM audit_records
		 WHERE tenant_id = $1 ORDER BY sequence DESC LIMIT 1 FOR UPDATE`,
		record.TenantID,
	).Scan(&tailSeq, &tailHash)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		if record.Sequence != 1 || record.PreviousHash != "" {
			return domain.ErrGenesisSequence
		}
	case err != nil:
		return err
	default:
		if record.Sequence != tailSeq+1 {
			return domain.ErrSequenceConflict
		}
		if record.PreviousHash != tailHash {
			return domain.ErrAncestryMismatch
		}
	}

	// Independently recompute the caller-supplied hash before accepting.
	expected, err := domain.ComputeRecordHash(record)
	if err != nil {
		return err
	}
	if record.RecordHash != expected {
		return domain.ErrRecordHashMismatch
	}

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode audit payload: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO audit_records
			(id, tenant_id, sequence, ts, actor_id, actor_type, action,
			 resource_type, resource_id, outcome, severity, payload, previous_hash, record_hash)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		record.ID, record.TenantID, record.Sequence, domain.CanonicalTimestamp(record.Timestamp),
		record.ActorID, record.ActorType, record.Action,
		nullableString(record.ResourceType), nullableString(record.ResourceID),
		record.Outcome, record.Severity, payloadJSON, record.PreviousHash, record.RecordHash,
	)
	if err != nil {
		// A concurrent genesis append has no tail row to lock; the primary
		// key on (tenant_id, sequence) arbitrates that race.
		if isUniqueViolation(err) {
			return domain.ErrSequenceConflict
		}
		return err
	}

	return tx.Commit(ctx)
}

// StreamByTenant invokes fn for each of the tenant's records in ascending
// sequence order, stopping at the first error fn returns.
func (r *LedgerRepository) StreamByTenant(ctx context.Context, tenantID string, fn func(*domain.AuditRecord) error) error {
	rows, err := r.pool.Query(ctx,
		`SELECT `+auditColumns+` FROM audit_records
		 WHERE tenant_id = $1 ORDER BY sequence ASC`,
		tenantID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(record); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountByTenant returns the number of committed records for a tenant.
func (r *LedgerRepository) CountByTenant(ctx context.Context, tenantID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM audit_records WHERE tenant_id = $1`, tenantID,
	).Scan(&count)
	return count, err
}

// ListByTenantWithCursor pages a tenant's records newest first, the
// secondary access pattern used by the audit API.
func (r *LedgerRepository) ListByTenantWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*service.AuditPageResult, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + auditColumns + ` FROM audit_records WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if cursor != nil {
		query += ` AND (ts, id) < ($2, $3) ORDER BY ts DESC, sequence DESC LIMIT $4`
		args = append(args, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		query += ` ORDER BY ts DESC, sequence DESC LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.AuditRecord
	for rows.Next() {
		record, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &service.AuditPageResult{Items: records}
	if len(records) > limit {
		result.Items = records[:limit]
		result.HasMore = true
		last := result.Items[limit-1]
		result.NextCursor = pagination.EncodeCursor(last.ID, last.Timestamp)
	}
	return result, nil
}

func scanAuditRecord(row pgx.Row) (*domain.AuditRecord, error) {
	var r domain.AuditRecord
	var actorType, outcome, severity string
	var resourceType, resourceID *string
	var payloadJSON []byte
	err := row.Scan(&r.ID, &r.TenantID, &r.Sequence, &r.Timestamp, &r.ActorID, &actorType,
		&r.Action, &resourceType, &resourceID, &outcome, &severity, &payloadJSON,
		&r.PreviousHash, &r.RecordHash)
	if err != nil {
		return nil, err
	}
	if resourceType != nil {
		r.ResourceType = *resourceType
	}
	if resourceID != nil {
		r.ResourceID = *resourceID
	}
	r.ActorType = domain.ActorType(actorType)
	r.Outcome = domain.Outcome(outcome)
	r.Severity = domain.Severity(severity)
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &r.Payload); err != nil {
			return nil, fmt.Errorf("failed to decode audit payload: %w", err)
		}
	}
	return &r, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}
