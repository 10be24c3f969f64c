package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/telemetry"
)

const (
	defaultRetrievalLimit = 10
	minRetrievalLimit     = 1
	maxRetrievalLimit     = 20
)

// EmbeddingClient defines the interface for generating embeddings
type EmbeddingClient interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// RetrievalQuery is the fully resolved query handed to the repository:
// governance decisions (effective tiers, profiles) are made before this
// point, never inside the storage layer alone.
type RetrievalQuery struct {
	Embedding       []float32
	TenantID        string
	IncludeCitywide bool
	Tiers           []domain.SensitivityTier
	AllowedProfiles []string
	Limit           int
}

// RankedFragment is one retrieval hit, ordered by similarity.
type RankedFragment struct {
	FragmentID  string
	DocumentID  string
	Title       string
	Heading     string
	Content     string
	Position    int
	SourcePath  string
	Profile     string
	Sensitivity string
	Visibility  string
	Fingerprint string
	Similarity  float32
}

// RetrievalRepositoryInterface defines the repository interface for fragment search
type RetrievalRepositoryInterface interface {
	SearchFragments(ctx context.Context, q RetrievalQuery) ([]*RankedFragment, error)
}

// LedgerAppender records each retrieval decision as an auditable event.
type LedgerAppender interface {
	Append(ctx context.Context, input AppendInput) (*AppendResult, error)
}

// RetrieveInput represents one retrieval request on behalf of a caller.
type RetrieveInput struct {
	Caller          *domain.TenantContext
	Query           string
	QueryVector     []float32
	IncludeCitywide bool
	MaxSensitivity  domain.SensitivityTier
	AllowedProfiles []string
	Limit           int
}

// RetrieveOutput represents the ranked result set plus the governance
// decision that produced it.
type RetrieveOutput struct {
	Fragments     []*RankedFragment
	EffectiveTier domain.SensitivityTier
	AuditSequence int64
}

// RetrievalService ranks eligible fragments by semantic similarity while
// enforcing tenant isolation, the sensitivity ceiling, and the profile
// allow-list. Every successful retrieval is appended to the audit ledger;
// failures carry no ledger side effects.
type RetrievalService struct {
	repo      RetrievalRepositoryInterface
	embedding EmbeddingClient
	ledger    LedgerAppender
}

// NewRetrievalService creates a new RetrievalService instance
func NewRetrievalService(repo RetrievalRepositoryInterface, embedding EmbeddingClient, ledger LedgerAppender) *RetrievalService {
	return &RetrievalService{
		repo:      repo,
		embedding: embedding,
		ledger:    ledger,
	}
}

// Retrieve executes a governance-filtered similarity search. It fails closed:
// if the embedding or ranking backend is unavailable the caller gets an
// explicit upstream error, never an unfiltered or unranked listing. An empty
// result set is a success, distinct from "could not evaluate".
func (s *RetrievalService) Retrieve(ctx context.Context, input RetrieveInput) (*RetrieveOutput, error) {
	caller := input.Caller
	if caller == nil || caller.TenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant context is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "RetrievalService.Retrieve", telemetry.SpanAttributes{
		TenantID:  caller.TenantID,
		ActorID:   caller.ActorID,
		Operation: "retrieve",
	})
	defer span.End()

	effective, err := domain.ResolveTier(input.MaxSensitivity, caller.Ceiling)
	if err != nil {
		return nil, err
	}

	profiles := effectiveProfiles(input.AllowedProfiles, caller.AllowedProfiles)
	limit := clampLimit(input.Limit)

	embedding := input.QueryVector
	if len(embedding) == 0 {
		if input.Query == "" {
			return nil, domain.NewDomainError(domain.ErrCodeValidation, "query text or query vector is required")
		}
		embedding, err = s.embedding.GenerateEmbedding(ctx, input.Query)
		if err != nil {
			span.SetError(err)
			return nil, domain.ErrEmbeddingUnavailable.WithCause(err)
		}
	}

	fragments, err := s.repo.SearchFragments(ctx, RetrievalQuery{
		Embedding:       embedding,
		TenantID:        caller.TenantID,
		IncludeCitywide: input.IncludeCitywide,
		Tiers:           domain.TiersUpTo(effective),
		AllowedProfiles: profiles,
		Limit:           limit,
	})
	if err != nil {
		span.SetError(err)
		return nil, domain.ErrRankingUnavailable.WithCause(err)
	}

	for _, f := range fragments {
		f.Similarity = clampSimilarity(f.Similarity)
	}

	appendResult, err := s.auditRetrieval(ctx, caller, input, effective, profiles, limit, fragments)
	if err != nil {
		// The access must be provable; without its audit record the
		// result set is not released.
		return nil, err
	}

	return &RetrieveOutput{
		Fragments:     fragments,
		EffectiveTier: effective,
		AuditSequence: appendResult.Sequence,
	}, nil
}

func (s *RetrievalService) auditRetrieval(
	ctx context.Context,
	caller *domain.TenantContext,
	input RetrieveInput,
	effective domain.SensitivityTier,
	profiles []string,
	limit int,
	fragments []*RankedFragment,
) (*AppendResult, error) {
	fragmentIDs := make([]string, len(fragments))
	documentIDs := make([]string, 0, len(fragments))
	seen := map[string]bool{}
	for i, f := range fragments {
		fragmentIDs[i] = f.FragmentID
		if !seen[f.DocumentID] {
			seen[f.DocumentID] = true
			documentIDs = append(documentIDs, f.DocumentID)
		}
	}

	payload := map[string]any{
		"query_fingerprint": queryFingerprint(input.Query, input.QueryVector),
		"effective_tier":    string(effective),
		"include_citywide":  input.IncludeCitywide,
		"allowed_profiles":  profiles,
		"limit":             limit,
		"fragment_ids":      fragmentIDs,
		"document_ids":      documentIDs,
		"result_count":      len(fragments),
	}

	return s.ledger.Append(ctx, AppendInput{
		TenantID:     caller.TenantID,
		ActorID:      caller.ActorID,
		ActorType:    caller.ActorType,
		Action:       "knowledge.retrieve",
		ResourceType: "fragment",
		Outcome:      domain.OutcomeSuccess,
		Severity:     domain.SeverityInfo,
		Payload:      payload,
	})
}

// effectiveProfiles intersects the requested allow-list with the profiles
// configured on the credential. A credential without configured profiles
// leaves the request's list as-is.
func effectiveProfiles(requested, configured []string) []string {
	if len(configured) == 0 {
		return requested
	}
	if len(requested) == 0 {
		return configured
	}

	allowed := make(map[string]bool, len(configured))
	for _, p := range configured {
		allowed[p] = true
	}

	var out []string
	for _, p := range requested {
		if allowed[p] {
			out = append(out, p)
		}
	}
	if out == nil {
		// Disjoint sets: fall back to the credential's own list so the
		// gate stays closed rather than wide open.
		return configured
	}
	return out
}

func clampLimit(limit int) int {
	if limit == 0 {
		return defaultRetrievalLimit
	}
	if limit < minRetrievalLimit {
		return minRetrievalLimit
	}
	if limit > maxRetrievalLimit {
		return maxRetrievalLimit
	}
	return limit
}

func clampSimilarity(s float32) float32 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// queryFingerprint hashes the query so the audit trail proves what was asked
// without storing raw query text in the ledger.
func queryFingerprint(query string, vector []float32) string {
	h := sha256.New()
	if query != "" {
		h.Write([]byte(query))
	} else {
		var buf [4]byte
		for _, v := range vector {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			h.Write(buf[:])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
