package service

import (
	"context"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
	"github.com/civium-ai/custodia/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	GetByIDForTenant(ctx context.Context, id, tenantID string) (*domain.Document, error)
	UpdateContent(ctx context.Context, d *domain.Document) error
	ListByTenantWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error)
}

type DocumentPageResult struct {
	Items      []*domain.Document
	NextCursor string
	HasMore    bool
}

// IndexJobRepositoryInterface defines the repository interface for index job persistence
type IndexJobRepositoryInterface interface {
	Create(ctx context.Context, job *domain.IndexJob) error
}

// FragmentRepositoryInterface defines the repository interface for fragment persistence
type FragmentRepositoryInterface interface {
	ReplaceFragments(ctx context.Context, documentID string, fragments []domain.Fragment) error
}

// IngestInput represents the input for ingesting a document
type IngestInput struct {
	Caller      *domain.TenantContext
	Title       string
	Content     string
	SourcePath  string
	Visibility  domain.Visibility
	Sensitivity domain.SensitivityTier
	Profile     string
	SharedWith  []string
}

// ReplaceContentInput represents the input for replacing a document's content
type ReplaceContentInput struct {
	Caller     *domain.TenantContext
	DocumentID string
	Title      string
	Content    string
	SourcePath string
}

type ListDocumentsInput struct {
	TenantID string
	Cursor   string
	Limit    int
}

type ListDocumentsOutput struct {
	Items   []*domain.Document
	Cursor  string
	HasMore bool
}

// DocumentService handles document ingestion and content replacement. A
// content change produces a new fingerprint, which forces every fragment to
// be rebuilt from the new content; fragments are never patched in place.
type DocumentService struct {
	txRunner TxRunner
	docRepo  DocumentRepositoryInterface
	ledger   LedgerAppender
	uuidGen  UUIDGenerator
}

// NewDocumentService creates a new DocumentService instance
func NewDocumentService(txRunner TxRunner, docRepo DocumentRepositoryInterface, ledger LedgerAppender) *DocumentService {
	return NewDocumentServiceWithUUIDGen(txRunner, docRepo, ledger, &DefaultUUIDGenerator{})
}

// NewDocumentServiceWithUUIDGen creates a new DocumentService with custom UUID generator (for testing)
func NewDocumentServiceWithUUIDGen(txRunner TxRunner, docRepo DocumentRepositoryInterface, ledger LedgerAppender, uuidGen UUIDGenerator) *DocumentService {
	return &DocumentService{
		txRunner: txRunner,
		docRepo:  docRepo,
		ledger:   ledger,
		uuidGen:  uuidGen,
	}
}

// Ingest creates a new document and queues an index job for its fragments,
// then records the ingestion in the tenant's audit chain.
func (s *DocumentService) Ingest(ctx context.Context, input IngestInput) (*domain.Document, error) {
	caller := input.Caller
	if caller == nil || caller.TenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant context is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "DocumentService.Ingest", telemetry.SpanAttributes{
		TenantID:  caller.TenantID,
		Operation: "ingest",
	})
	defer span.End()

	if input.Content == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "content is required")
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:          s.uuidGen.NewString(),
		TenantID:    caller.TenantID,
		Title:       input.Title,
		SourcePath:  input.SourcePath,
		Content:     input.Content,
		Fingerprint: domain.ContentFingerprint(input.Content),
		Visibility:  input.Visibility,
		Sensitivity: input.Sensitivity,
		Profile:     input.Profile,
		SharedWith:  input.SharedWith,
		Status:      domain.DocumentStatusActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := domain.ValidateDocument(doc); err != nil {
		if _, ok := err.(*domain.DomainError); ok {
			return nil, err
		}
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}

	job := &domain.IndexJob{
		ID:         s.uuidGen.NewString(),
		DocumentID: doc.ID,
		Status:     domain.IndexJobStatusPending,
		CreatedAt:  now,
	}

	err := s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, job)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, AppendInput{
		TenantID:     caller.TenantID,
		ActorID:      caller.ActorID,
		ActorType:    caller.ActorType,
		Action:       "document.ingest",
		ResourceType: "document",
		ResourceID:   doc.ID,
		Outcome:      domain.OutcomeSuccess,
		Severity:     domain.SeverityInfo,
		Payload: map[string]any{
			"fingerprint": doc.Fingerprint,
			"visibility":  string(doc.Visibility),
			"sensitivity": string(doc.Sensitivity),
			"profile":     doc.Profile,
		},
	}); err != nil {
		return nil, err
	}

	return doc, nil
}

// ReplaceContent swaps a document's content for a new version. If the
// fingerprint is unchanged this is a no-op; otherwise the old fragments are
// scheduled for replacement and the change is audited.
func (s *DocumentService) ReplaceContent(ctx context.Context, input ReplaceContentInput) (*domain.Document, error) {
	caller := input.Caller
	if caller == nil || caller.TenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant context is required")
	}

	ctx, span := telemetry.StartSpan(ctx, "DocumentService.ReplaceContent", telemetry.SpanAttributes{
		TenantID:   caller.TenantID,
		DocumentID: input.DocumentID,
		Operation:  "replace_content",
	})
	defer span.End()

	if input.Content == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "content is required")
	}

	doc, err := s.docRepo.GetByIDForTenant(ctx, input.DocumentID, caller.TenantID)
	if err != nil {
		return nil, err
	}

	newFingerprint := domain.ContentFingerprint(input.Content)
	if newFingerprint == doc.Fingerprint && (input.Title == "" || input.Title == doc.Title) {
		return doc, nil
	}

	previousFingerprint := doc.Fingerprint
	doc.Content = input.Content
	doc.Fingerprint = newFingerprint
	if input.Title != "" {
		doc.Title = input.Title
	}
	if input.SourcePath != "" {
		doc.SourcePath = input.SourcePath
	}
	doc.UpdatedAt = time.Now().UTC()

	job := &domain.IndexJob{
		ID:         s.uuidGen.NewString(),
		DocumentID: doc.ID,
		Status:     domain.IndexJobStatusPending,
		CreatedAt:  doc.UpdatedAt,
	}

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().UpdateContent(ctx, doc); err != nil {
			return err
		}
		return repos.IndexJobs().Create(ctx, job)
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	if _, err := s.ledger.Append(ctx, AppendInput{
		TenantID:     caller.TenantID,
		ActorID:      caller.ActorID,
		ActorType:    caller.ActorType,
		Action:       "document.replace_content",
		ResourceType: "document",
		ResourceID:   doc.ID,
		Outcome:      domain.OutcomeSuccess,
		Severity:     domain.SeverityInfo,
		Payload: map[string]any{
			"previous_fingerprint": previousFingerprint,
			"fingerprint":          doc.Fingerprint,
		},
	}); err != nil {
		return nil, err
	}

	return doc, nil
}

// GetByID returns a document when the tenant owns it.
func (s *DocumentService) GetByID(ctx context.Context, tenantID, id string) (*domain.Document, error) {
	if tenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}
	return s.docRepo.GetByIDForTenant(ctx, id, tenantID)
}

// List pages the tenant's own documents.
func (s *DocumentService) List(ctx context.Context, input ListDocumentsInput) (*ListDocumentsOutput, error) {
	if input.TenantID == "" {
		return nil, domain.NewDomainError(domain.ErrCodeValidation, "tenant ID is required")
	}

	cursor, err := pagination.DecodeCursor(input.Cursor)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid cursor", err)
	}

	page, err := s.docRepo.ListByTenantWithCursor(ctx, input.TenantID, cursor, input.Limit)
	if err != nil {
		return nil, err
	}

	return &ListDocumentsOutput{
		Items:   page.Items,
		Cursor:  page.NextCursor,
		HasMore: page.HasMore,
	}, nil
}
