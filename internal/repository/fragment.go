package repository

import (
	"context"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// FragmentRepository handles persistence of embedded document fragments.
type FragmentRepository struct {
	db dbtx
}

func NewFragmentRepository(pool *pgxpool.Pool) *FragmentRepository {
	return &FragmentRepository{db: pool}
}

func NewFragmentRepositoryWithTx(tx pgx.Tx) *FragmentRepository {
	return &FragmentRepository{db: tx}
}

// ReplaceFragments deletes existing fragments for a document and inserts new
// ones. Fragments are replaced wholesale on content change, never patched.
func (r *FragmentRepository) ReplaceFragments(ctx context.Context, documentID string, fragments []domain.Fragment) error {
	_, err := r.db.Exec(ctx, `DELETE FROM fragments WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	if len(fragments) == 0 {
		return nil
	}

	for _, f := range fragments {
		createdAt := f.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO fragments
				(id, document_id, tenant_id, position, heading, content, embedding, fingerprint, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			f.ID,
			f.DocumentID,
			f.TenantID,
			f.Position,
			f.Heading,
			f.Content,
			pgvector.NewVector(f.Embedding),
			f.Fingerprint,
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// CountByDocument returns the number of fragments currently indexed for a document.
func (r *FragmentRepository) CountByDocument(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM fragments WHERE document_id = $1`, documentID,
	).Scan(&count)
	return count, err
}
