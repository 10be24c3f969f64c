package service

import (
	"context"
	"testing"
	"time"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/civium-ai/custodia/internal/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) GetByIDForTenant(ctx context.Context, id, tenantID string) (*domain.Document, error) {
	args := m.Called(ctx, id, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentRepository) UpdateContent(ctx context.Context, d *domain.Document) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) ListByTenantWithCursor(ctx context.Context, tenantID string, cursor *pagination.Cursor, limit int) (*DocumentPageResult, error) {
	args := m.Called(ctx, tenantID, cursor, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*DocumentPageResult), args.Error(1)
}

type MockIndexJobRepository struct {
	mock.Mock
}

func (m *MockIndexJobRepository) Create(ctx context.Context, job *domain.IndexJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

type MockFragmentRepository struct {
	mock.Mock
}

func (m *MockFragmentRepository) ReplaceFragments(ctx context.Context, documentID string, fragments []domain.Fragment) error {
	args := m.Called(ctx, documentID, fragments)
	return args.Error(0)
}

// fakeTxRunner hands the same mocks to the transactional closure, which is
// enough to assert the writes that must happen together.
type fakeTxRunner struct {
	docs  *MockDocumentRepository
	jobs  *MockIndexJobRepository
	frags *MockFragmentRepository
	err   error
}

func (f *fakeTxRunner) Documents() DocumentRepositoryInterface { return f.docs }
func (f *fakeTxRunner) IndexJobs() IndexJobRepositoryInterface { return f.jobs }
func (f *fakeTxRunner) Fragments() FragmentRepositoryInterface { return f.frags }

func (f *fakeTxRunner) WithTx(ctx context.Context, fn func(repos TxRepositories) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(f)
}

func newFakeTxRunner() *fakeTxRunner {
	return &fakeTxRunner{
		docs:  new(MockDocumentRepository),
		jobs:  new(MockIndexJobRepository),
		frags: new(MockFragmentRepository),
	}
}

func TestDocumentService_Ingest(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()
	mockLedger := new(MockLedgerAppender)
	mockUUIDGen := NewMockUUIDGenerator("doc-1", "job-1")

	tx.docs.On("Create", ctx, mock.MatchedBy(func(d *domain.Document) bool {
		return d.ID == "doc-1" &&
			d.TenantID == "tenant-1" &&
			d.Fingerprint == domain.ContentFingerprint("# Zoning\nVariance rules.") &&
			d.Status == domain.DocumentStatusActive
	})).Return(nil)
	tx.jobs.On("Create", ctx, mock.MatchedBy(func(job *domain.IndexJob) bool {
		return job.ID == "job-1" && job.DocumentID == "doc-1" && job.Status == domain.IndexJobStatusPending
	})).Return(nil)
	mockLedger.On("Append", ctx, mock.MatchedBy(func(in AppendInput) bool {
		return in.Action == "document.ingest" && in.ResourceID == "doc-1"
	})).Return(&AppendResult{Sequence: 1}, nil)

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, mockLedger, mockUUIDGen)
	doc, err := service.Ingest(ctx, IngestInput{
		Caller:      testCaller(),
		Title:       "Zoning Handbook",
		Content:     "# Zoning\nVariance rules.",
		Visibility:  domain.VisibilityPrivate,
		Sensitivity: domain.TierInternal,
	})

	require.NoError(t, err)
	assert.Equal(t, "doc-1", doc.ID)
	tx.docs.AssertExpectations(t)
	tx.jobs.AssertExpectations(t)
	mockLedger.AssertExpectations(t)
}

func TestDocumentService_Ingest_EmptyContent(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()
	mockLedger := new(MockLedgerAppender)

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, mockLedger, NewMockUUIDGenerator())
	_, err := service.Ingest(ctx, IngestInput{
		Caller:     testCaller(),
		Title:      "Empty",
		Visibility: domain.VisibilityPrivate,
	})

	require.Error(t, err)
	tx.docs.AssertNotCalled(t, "Create")
	mockLedger.AssertNotCalled(t, "Append")
}

func TestDocumentService_Ingest_SharedWithRequiresSharedVisibility(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, new(MockLedgerAppender), NewMockUUIDGenerator("doc-1", "job-1"))
	_, err := service.Ingest(ctx, IngestInput{
		Caller:     testCaller(),
		Title:      "Budget",
		Content:    "numbers",
		Visibility: domain.VisibilityPrivate,
		SharedWith: []string{"tenant-2"},
	})

	require.Error(t, err)
	tx.docs.AssertNotCalled(t, "Create")
}

func TestDocumentService_ReplaceContent_ChangedFingerprint(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()
	mockLedger := new(MockLedgerAppender)
	mockUUIDGen := NewMockUUIDGenerator("job-2")

	existing := &domain.Document{
		ID:          "doc-1",
		TenantID:    "tenant-1",
		Title:       "Zoning Handbook",
		Content:     "old content",
		Fingerprint: domain.ContentFingerprint("old content"),
		Visibility:  domain.VisibilityPrivate,
		Sensitivity: domain.TierInternal,
		Status:      domain.DocumentStatusActive,
		CreatedAt:   time.Now().UTC().Add(-time.Hour),
		UpdatedAt:   time.Now().UTC().Add(-time.Hour),
	}

	tx.docs.On("GetByIDForTenant", ctx, "doc-1", "tenant-1").Return(existing, nil)
	tx.docs.On("UpdateContent", ctx, mock.MatchedBy(func(d *domain.Document) bool {
		return d.Fingerprint == domain.ContentFingerprint("new content")
	})).Return(nil)
	tx.jobs.On("Create", ctx, mock.MatchedBy(func(job *domain.IndexJob) bool {
		return job.ID == "job-2" && job.DocumentID == "doc-1"
	})).Return(nil)
	mockLedger.On("Append", ctx, mock.MatchedBy(func(in AppendInput) bool {
		return in.Action == "document.replace_content" && in.ResourceID == "doc-1"
	})).Return(&AppendResult{Sequence: 2}, nil)

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, mockLedger, mockUUIDGen)
	doc, err := service.ReplaceContent(ctx, ReplaceContentInput{
		Caller:     testCaller(),
		DocumentID: "doc-1",
		Content:    "new content",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.ContentFingerprint("new content"), doc.Fingerprint)
	tx.docs.AssertExpectations(t)
	tx.jobs.AssertExpectations(t)
	mockLedger.AssertExpectations(t)
}

func TestDocumentService_ReplaceContent_UnchangedIsNoop(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()
	mockLedger := new(MockLedgerAppender)

	existing := &domain.Document{
		ID:          "doc-1",
		TenantID:    "tenant-1",
		Title:       "Zoning Handbook",
		Content:     "same content",
		Fingerprint: domain.ContentFingerprint("same content"),
		Status:      domain.DocumentStatusActive,
	}
	tx.docs.On("GetByIDForTenant", ctx, "doc-1", "tenant-1").Return(existing, nil)

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, mockLedger, NewMockUUIDGenerator())
	doc, err := service.ReplaceContent(ctx, ReplaceContentInput{
		Caller:     testCaller(),
		DocumentID: "doc-1",
		Content:    "same content",
	})

	require.NoError(t, err)
	assert.Equal(t, existing.Fingerprint, doc.Fingerprint)
	tx.docs.AssertNotCalled(t, "UpdateContent")
	tx.jobs.AssertNotCalled(t, "Create")
	mockLedger.AssertNotCalled(t, "Append")
}

func TestDocumentService_ReplaceContent_OtherTenant(t *testing.T) {
	ctx := context.Background()
	tx := newFakeTxRunner()

	tx.docs.On("GetByIDForTenant", ctx, "doc-9", "tenant-1").Return(nil, domain.ErrDocumentNotFound)

	service := NewDocumentServiceWithUUIDGen(tx, tx.docs, new(MockLedgerAppender), NewMockUUIDGenerator())
	_, err := service.ReplaceContent(ctx, ReplaceContentInput{
		Caller:     testCaller(),
		DocumentID: "doc-9",
		Content:    "whatever",
	})

	require.ErrorIs(t, err, domain.ErrDocumentNotFound)
}
