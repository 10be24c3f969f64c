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

type TenantRepository struct {
	pool *pgxpool.Pool
}

func NewTenantRepository(pool *pgxpool.Pool) *TenantRepository {
	return &TenantRepository{pool: pool}
}

func (r *TenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, $3)`,
		tenant.ID, tenant.Name, tenant.CreatedAt,
	)
	return err
}

func (r *TenantRepository) GetByID(ctx context.Context, id string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE id = $1`,
		id,
	).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) GetByName(ctx context.Context, name string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, created_at FROM tenants WHERE name = $1`,
		name,
	).Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTenantNotFound
		}
		return nil, err
	}
	return &tenant, nil
}

func (r *TenantRepository) ListWithCursor(ctx context.Context, cursor *pagination.Cursor, limit int) (*service.TenantPageResult, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT id, name, created_at FROM tenants`
	args := []interface{}{}

	if cursor != nil {
		query += ` WHERE (created_at, id) < ($1, $2)`
		args = append(args, cursor.Timestamp, cursor.LastID)
		query += ` ORDER BY created_at DESC, id DESC LIMIT $3`
	} else {
		query += ` ORDER BY created_at DESC, id DESC LIMIT $1`
	}
	args = append(args, limit+1)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tenants []*domain.Tenant
	for rows.Next() {
		var tenant domain.Tenant
		if err := rows.Scan(&tenant.ID, &tenant.Name, &tenant.CreatedAt); err != nil {
			return nil, err
		}
		tenants = append(tenants, &tenant)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	result := &service.TenantPageResult{Items: tenants}
	if len(tenants) > limit {
		result.Items = tenants[:limit]
		result.HasMore = true
		last := result.Items[limit-1]
		result.NextCursor = pagination.EncodeCursor(last.ID, last.CreatedAt)
	}
	return result, nil
}
