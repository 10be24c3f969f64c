package repository

import (
	"context"
	"errors"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

const documentColumns = `id, tenant_id, title, source_path, content, fingerprint,
	visibility, sensitivity, profile, shared_with, status, created_at, updated_at`

func (r *DocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO documents
			(id, tenant_id, title, source_path, content, fingerprint, visibility, sensitivity, profile, shared_with, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		d.ID, d.TenantID, d.Title, nullableString(d.SourcePath), d.Content, d.Fingerprint,
		d.Visibility, d.Sensitivity, nullableString(d.Profile), d.SharedWith, d.Status,
		d.CreatedAt, d.UpdatedAt,
	)
	return err
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// GetByIDForTenant fetches a document only when the tenant owns it.
// Used by the write paths, which never cross tenant boundaries.
func (r *DocumentRepository) GetByIDForTenant(ctx context.Context, id, tenantID string) (*domain.Document, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`,
		id, tenantID)
	return scanDocument(row)
}

// UpdateContent replaces a document's content and fingerprint. Fragments
// derived from the old content are replaced by the indexer, not patched.
func (r *DocumentRepository) UpdateContent(ctx context.Context, d *domain.Document) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE documents
		 SET title = $1, source_path = $2, content = $3, fingerprint = $4,
		     visibility = $5, sensitivity = $6, profile = $7, shared_with = $8,
		     status = $9, updated_at = $10
		 WHERE id = $11 AND tenant_id = $12`,
		d.Title, nullableString(d.SourcePath), d.Content, d.Fingerprint,
		d.Visibility, d.Sensitivity, nullableString(d.Profile), d.SharedWith,
		d.Status, d.UpdatedAt, d.ID, d.TenantID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepository) ListByTenantWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*service.DocumentPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + documentColumns + ` FROM documents WHERE tenant_id = $1`
	args := []interface{}{tenantID}

	if cursor != nil {
		query += ` AND (created_at, id) < ($2, $3) ORDER BY created_at DESC, id DESC LIMIT $4`
		args = append(args, cursor.Timestamp, cursor.LastID, limit+1)
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $2`
		args = append(args, limit+1)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []*domain.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &service.DocumentPageResult{Items: docs}
	if len(docs) > limit {
		result.Items = docs[:limit]
		result.HasMore = true
		last := result.Items[limit-1]
		result.NextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return result, nil
}

func scanDocument(row pgx.Row) (*domain.Document, error) {
	var d domain.Document
	var sourcePath, profile *string
	var visibility, sensitivity, status string
	err := row.Scan(&d.ID, &d.TenantID, &d.Title, &sourcePath, &d.Content, &d.Fingerprint,
		&visibility, &sensitivity, &profile, &d.SharedWith, &status, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	if sourcePath != nil {
		d.SourcePath = *sourcePath
	}
	if profile != nil {
		d.Profile = *profile
	}
	d.Visibility = domain.Visibility(visibility)
	d.Sensitivity = domain.SensitivityTier(sensitivity)
	d.Status = domain.DocumentStatus(status)
	return &d, nil
}
