package service

import (
	"context"
	"fmt"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/telemetry"
)

// IndexerDocumentRepository defines the repository interface for indexing
type IndexerDocumentRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// IndexerService rebuilds a document's fragments from its current content.
// This method is called by the background worker after ingest or a content
// replacement; fragments derived from older content are dropped wholesale.
type IndexerService struct {
	client   EmbeddingClient
	docRepo  IndexerDocumentRepository
	fragRepo FragmentRepositoryInterface
	chunkCfg ChunkConfig
	uuidGen  UUIDGenerator
}

// NewIndexerService creates a new IndexerService instance
func NewIndexerService(client EmbeddingClient, docRepo IndexerDocumentRepository, fragRepo FragmentRepositoryInterface) *IndexerService {
	return NewIndexerServiceWithUUIDGen(client, docRepo, fragRepo, &DefaultUUIDGenerator{})
}

// NewIndexerServiceWithUUIDGen creates a new IndexerService with custom UUID generator (for testing)
func NewIndexerServiceWithUUIDGen(client EmbeddingClient, docRepo IndexerDocumentRepository, fragRepo FragmentRepositoryInterface, uuidGen UUIDGenerator) *IndexerService {
	return &IndexerService{
		client:   client,
		docRepo:  docRepo,
		fragRepo: fragRepo,
		chunkCfg: DefaultChunkConfig(),
		uuidGen:  uuidGen,
	}
}

// IndexDocument chunks the document's content by section, embeds each chunk,
// and replaces the document's fragment set atomically.
func (s *IndexerService) IndexDocument(ctx context.Context, documentID string) error {
	ctx, span := telemetry.StartSpan(ctx, "IndexerService.IndexDocument", telemetry.SpanAttributes{
		DocumentID: documentID,
		Operation:  "index",
	})
	defer span.End()

	doc, err := s.docRepo.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	fragments := make([]domain.Fragment, 0, 8)
	position := 0

	for _, sec := range splitSections(doc.Content) {
		for _, chunk := range chunkText(sec.Text, s.chunkCfg) {
			embedding, err := s.client.GenerateEmbedding(ctx, buildFragmentEmbeddingText(doc, sec.Heading, chunk))
			if err != nil {
				span.SetError(err)
				return fmt.Errorf("failed to generate fragment embedding: %w", err)
			}

			fragments = append(fragments, domain.Fragment{
				ID:          s.uuidGen.NewString(),
				DocumentID:  doc.ID,
				TenantID:    doc.TenantID,
				Position:    position,
				Heading:     sec.Heading,
				Content:     chunk,
				Embedding:   embedding,
				Fingerprint: doc.Fingerprint,
				CreatedAt:   createdAt,
			})
			position++
		}
	}

	if err := s.fragRepo.ReplaceFragments(ctx, doc.ID, fragments); err != nil {
		span.SetError(err)
		return err
	}

	return nil
}

// buildFragmentEmbeddingText prefixes the chunk with the document title and
// section heading so the embedding carries its context.
func buildFragmentEmbeddingText(doc *domain.Document, heading, chunk string) string {
	text := doc.Title
	if heading != "" {
		if text != "" {
			text += "\n"
		}
		text += heading
	}
	if text != "" {
		text += "\n\n"
	}
	return text + chunk
}
