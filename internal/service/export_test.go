package service

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/civium-ai/custodia/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) PutObject(ctx context.Context, key, contentType string, body []byte) error {
	args := m.Called(ctx, key, contentType, body)
	return args.Error(0)
}

func (m *MockObjectStore) GenerateDownloadURL(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func TestExportService_Export(t *testing.T) {
	ctx := context.Background()
	stream := &fakeLedgerStream{records: buildChain(t, 3)}
	mockStore := new(MockObjectStore)

	var body []byte
	mockStore.On("PutObject", mock.Anything, mock.MatchedBy(func(key string) bool {
		return len(key) > 0
	}), "application/x-ndjson", mock.MatchedBy(func(b []byte) bool {
		body = b
		return true
	})).Return(nil)
	mockStore.On("GenerateDownloadURL", mock.Anything, mock.Anything).
		Return("https://storage.example/export", nil)

	service := NewExportService(NewChainVerifier(stream), stream, mockStore)
	result, err := service.Export(ctx, "tenant-1")

	require.NoError(t, err)
	assert.Equal(t, 3, result.RecordCount)
	assert.Equal(t, int64(3), result.TailSequence)
	assert.Equal(t, stream.records[2].RecordHash, result.TailRecordHash)
	assert.Equal(t, "https://storage.example/export", result.DownloadURL)

	lines := bytes.Split(bytes.TrimSpace(body), []byte("\n"))
	require.Len(t, lines, 3)
	var first exportLine
	require.NoError(t, json.Unmarshal(lines[0], &first))
	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, "", first.PreviousHash)
	assert.Equal(t, stream.records[0].RecordHash, first.RecordHash)
	mockStore.AssertExpectations(t)
}

func TestExportService_Export_RefusesBrokenChain(t *testing.T) {
	ctx := context.Background()
	records := buildChain(t, 3)
	records[1].Action = "tampered"
	stream := &fakeLedgerStream{records: records}
	mockStore := new(MockObjectStore)

	service := NewExportService(NewChainVerifier(stream), stream, mockStore)
	_, err := service.Export(ctx, "tenant-1")

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeChainIntegrity, domainErr.Code)
	mockStore.AssertNotCalled(t, "PutObject")
}

func TestExportService_Export_StoreFailure(t *testing.T) {
	ctx := context.Background()
	stream := &fakeLedgerStream{records: buildChain(t, 1)}
	mockStore := new(MockObjectStore)

	mockStore.On("PutObject", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(assert.AnError)

	service := NewExportService(NewChainVerifier(stream), stream, mockStore)
	_, err := service.Export(ctx, "tenant-1")

	require.Error(t, err)
	var domainErr *domain.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, domain.ErrCodeUpstreamUnavailable, domainErr.Code)
}
