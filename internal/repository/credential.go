package repository

import (
	"context"
	"errors"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type CredentialRepository struct {
	pool *pgxpool.Pool
}

func NewCredentialRepository(pool *pgxpool.Pool) *CredentialRepository {
	return &CredentialRepository{pool: pool}
}

func (r *CredentialRepository) Create(ctx context.Context, cred *domain.AgentCredential) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO agent_credentials
			(id, tenant_id, name, key_hash, actor_type, ceiling, allowed_profiles, created_at, revoked_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		cred.ID, cred.TenantID, cred.Name, cred.KeyHash, cred.ActorType,
		cred.Ceiling, cred.AllowedProfiles, cred.CreatedAt, cred.RevokedAt,
	)
	return err
}

func (r *CredentialRepository) GetByHash(ctx context.Context, keyHash string) (*domain.AgentCredential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, key_hash, actor_type, ceiling, allowed_profiles, created_at, revoked_at
		 FROM agent_credentials WHERE key_hash = $1`,
		keyHash,
	)
	return scanCredential(row)
}

func (r *CredentialRepository) GetByID(ctx context.Context, id string) (*domain.AgentCredential, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, name, key_hash, actor_type, ceiling, allowed_profiles, created_at, revoked_at
		 FROM agent_credentials WHERE id = $1`,
		id,
	)
	return scanCredential(row)
}

func (r *CredentialRepository) GetByTenantID(ctx context.Context, tenantID string) ([]*domain.AgentCredential, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, name, key_hash, actor_type, ceiling, allowed_profiles, created_at, revoked_at
		 FROM agent_credentials WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var creds []*domain.AgentCredential
	for rows.Next() {
		cred, err := scanCredential(rows)
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, rows.Err()
}

func (r *CredentialRepository) Revoke(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE agent_credentials SET revoked_at = $1 WHERE id = $2 AND revoked_at IS NULL`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCredentialNotFound
	}
	return nil
}

func scanCredential(row pgx.Row) (*domain.AgentCredential, error) {
	var cred domain.AgentCredential
	var actorType, ceiling string
	err := row.Scan(&cred.ID, &cred.TenantID, &cred.Name, &cred.KeyHash,
		&actorType, &ceiling, &cred.AllowedProfiles, &cred.CreatedAt, &cred.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCredentialNotFound
		}
		return nil, err
	}
	cred.ActorType = domain.ActorType(actorType)
	cred.Ceiling = domain.SensitivityTier(ceiling)
	return &cred, nil
}
