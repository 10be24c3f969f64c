package repository

import (
	"context"

	"github.com/civium-ai/custodia/internal/service"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// RetrievalRepository implements governance-filtered vector search over
// document fragments. The eligibility predicate in the WHERE clause mirrors
// domain.Document.EligibleFor exactly; filtering is never skipped.
type RetrievalRepository struct {
	pool *pgxpool.Pool
}

func NewRetrievalRepository(pool *pgxpool.Pool) *RetrievalRepository {
	return &RetrievalRepository{pool: pool}
}

func (r *RetrievalRepository) SearchFragments(ctx context.Context, q service.RetrievalQuery) ([]*service.RankedFragment, error) {
	vec := pgvector.NewVector(q.Embedding)

	tiers := make([]string, len(q.Tiers))
	for i, t := range q.Tiers {
		tiers[i] = string(t)
	}

	profiles := q.AllowedProfiles
	if profiles == nil {
		profiles = []string{}
	}

	query := `
		SELECT f.id, f.document_id, d.title, f.heading, f.content, f.position,
		       COALESCE(d.source_path, '') AS source_path,
		       COALESCE(d.profile, '') AS profile,
		       d.sensitivity, d.visibility, d.fingerprint,
		       1 - (f.embedding <=> $1) AS similarity
		FROM fragments f
		JOIN documents d ON d.id = f.document_id
		WHERE d.status = 'active'
		  AND (
		        d.tenant_id = $2
		        OR ($3 AND d.visibility = 'citywide')
		        OR (d.visibility = 'shared' AND $2 = ANY(d.shared_with))
		      )
		  AND d.sensitivity = ANY($4::text[])
		  AND (cardinality($5::text[]) = 0 OR d.profile = ANY($5::text[]))
		ORDER BY similarity DESC, f.position ASC
		LIMIT $6`

	rows, err := r.pool.Query(ctx, query,
		vec, q.TenantID, q.IncludeCitywide, tiers, profiles, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*service.RankedFragment, 0)
	for rows.Next() {
		var f service.RankedFragment
		var sensitivity, visibility string
		if err := rows.Scan(&f.FragmentID, &f.DocumentID, &f.Title, &f.Heading, &f.Content,
			&f.Position, &f.SourcePath, &f.Profile, &sensitivity, &visibility,
			&f.Fingerprint, &f.Similarity); err != nil {
			return nil, err
		}
		f.Sensitivity = sensitivity
		f.Visibility = visibility
		results = append(results, &f)
	}

	return results, rows.Err()
}
