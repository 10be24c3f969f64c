//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/civium-ai/custodia/internal/api/handlers"
	"github.com/civium-ai/custodia/internal/jobs"
	"github.com/civium-ai/custodia/internal/repository"
	"github.com/civium-ai/custodia/internal/server"
	"github.com/civium-ai/custodia/internal/service"
	"github.com/civium-ai/custodia/internal/storage"
	"github.com/civium-ai/custodia/internal/testutil"
	"github.com/jackc/pgx/v5/pgxpool"
)

// workerPollInterval keeps index jobs flowing fast enough for tests to
// observe fragments shortly after ingest.
const workerPollInterval = 100 * time.Millisecond

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	S3Client     *storage.S3Client
	BinaryDir    string
	TenantID     string
	CredentialID string
	AuthToken    string
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)

	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     "rustfsadmin",
		SecretAccessKey: "rustfsadmin",
		Bucket:          "test-exports",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}

	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser := startServer(t, pool, s3Client, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		RustFSC:      s3C,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		S3Client:     s3Client,
		HTTPClient:   &http.Client{Timeout: 30 * time.Second},
	}
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
	if e.BinaryDir != "" {
		os.RemoveAll(e.BinaryDir)
	}
}

// Bootstrap creates a tenant and agent credential for testing
func (e *E2ETestEnv) Bootstrap() {
	tenantResp, err := e.Post("/tenants", map[string]string{"name": "E2E Test Tenant"}, "")
	if err != nil {
		e.T.Fatalf("failed to create tenant: %v", err)
	}

	var tenant struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.Unmarshal(tenantResp.Data, &tenant); err != nil {
		e.T.Fatalf("failed to parse tenant response: %v", err)
	}
	e.TenantID = tenant.ID

	credResp, err := e.Post("/credentials", map[string]interface{}{
		"tenant_id": e.TenantID,
		"name":      "e2e-test-agent",
		"ceiling":   "confidential",
	}, "")
	if err != nil {
		e.T.Fatalf("failed to issue credential: %v", err)
	}

	var cred struct {
		ID    string `json:"id"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(credResp.Data, &cred); err != nil {
		e.T.Fatalf("failed to parse credential response: %v", err)
	}
	e.CredentialID = cred.ID
	e.AuthToken = cred.Token
}

// IssueCredential mints an additional credential for the given tenant and
// returns its plaintext token.
func (e *E2ETestEnv) IssueCredential(tenantID, name, ceiling string, profiles []string) string {
	body := map[string]interface{}{
		"tenant_id": tenantID,
		"name":      name,
		"ceiling":   ceiling,
	}
	if len(profiles) > 0 {
		body["allowed_profiles"] = profiles
	}

	resp, err := e.Post("/credentials", body, "")
	if err != nil {
		e.T.Fatalf("failed to issue credential: %v", err)
	}

	var cred struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(resp.Data, &cred); err != nil {
		e.T.Fatalf("failed to parse credential response: %v", err)
	}
	return cred.Token
}

// CreateTenant creates an additional tenant and returns its ID.
func (e *E2ETestEnv) CreateTenant(name string) string {
	resp, err := e.Post("/tenants", map[string]string{"name": name}, "")
	if err != nil {
		e.T.Fatalf("failed to create tenant: %v", err)
	}

	var tenant struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &tenant); err != nil {
		e.T.Fatalf("failed to parse tenant response: %v", err)
	}
	return tenant.ID
}

// WaitForIndexed polls until the document's fragments are written or the
// timeout expires.
func (e *E2ETestEnv) WaitForIndexed(documentID string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		var count int
		err := e.Pool.QueryRow(e.Ctx,
			"SELECT count(*) FROM fragments WHERE document_id = $1", documentID).Scan(&count)
		if err == nil && count > 0 {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	e.T.Fatalf("document %s was not indexed within %v", documentID, timeout)
}

// BuildBinary builds the custodiad binary
func (e *E2ETestEnv) BuildBinary() {
	tmpDir, err := os.MkdirTemp("", "custodia-e2e-*")
	if err != nil {
		e.T.Fatalf("failed to create temp dir: %v", err)
	}
	e.BinaryDir = tmpDir

	cmd := exec.Command("go", "build", "-o", filepath.Join(tmpDir, "custodiad"), "./cmd/custodiad")
	cmd.Dir = "../.."
	if out, err := cmd.CombinedOutput(); err != nil {
		e.T.Fatalf("failed to build custodiad: %v\n%s", err, out)
	}
}

// RunCustodiad runs the custodiad CLI against the test database
func (e *E2ETestEnv) RunCustodiad(args ...string) (string, error) {
	cmd := exec.Command(filepath.Join(e.BinaryDir, "custodiad"), args...)
	cmd.Env = append(os.Environ(),
		fmt.Sprintf("CUSTODIA_DATABASE_URL=%s", e.PostgresC.ConnectionString()),
		fmt.Sprintf("CUSTODIA_S3_ENDPOINT=%s", e.RustFSC.Endpoint()),
		"CUSTODIA_S3_ACCESS_KEY_ID=rustfsadmin",
		"CUSTODIA_S3_SECRET_ACCESS_KEY=rustfsadmin",
		"CUSTODIA_S3_BUCKET=test-exports",
	)
	out, err := cmd.CombinedOutput()
	return string(out), err
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path, authToken string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, authToken)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, authToken)
}

// Put performs a PUT request
func (e *E2ETestEnv) Put(path string, body interface{}, authToken string) (*APIResponse, error) {
	return e.doRequest("PUT", path, body, authToken)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path, authToken string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, authToken)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, authToken string) (*APIResponse, error) {
	url := e.ServerURL + path

	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}

	if authToken != "" {
		req.Header.Set("Authorization", "Bearer "+authToken)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return &APIResponse{}, nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var apiResp APIResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		if resp.StatusCode >= 400 {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, err
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, apiResp.Error)
	}

	return &apiResp, nil
}

// DownloadFile downloads a file from the presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// startServer starts the HTTP server with all handlers and the index worker
func startServer(t *testing.T, pool *pgxpool.Pool, s3Client *storage.S3Client, port int) (string, func()) {
	tenantRepo := repository.NewTenantRepository(pool)
	credRepo := repository.NewCredentialRepository(pool)
	documentRepo := repository.NewDocumentRepository(pool)
	fragmentRepo := repository.NewFragmentRepository(pool)
	indexJobRepo := repository.NewIndexJobRepository(pool)
	ledgerRepo := repository.NewLedgerRepository(pool)
	retrievalRepo := repository.NewRetrievalRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	uuidGen := &service.DefaultUUIDGenerator{}
	authSvc := service.NewAuthService(tenantRepo, credRepo, uuidGen)
	ledgerSvc := service.NewLedgerService(ledgerRepo)

	embedder := &bagOfWordsEmbedder{}
	retrievalSvc := service.NewRetrievalService(retrievalRepo, embedder, ledgerSvc)
	documentSvc := service.NewDocumentService(txRunner, documentRepo, ledgerSvc)
	auditQuerySvc := service.NewAuditQueryService(ledgerRepo)
	verifier := service.NewChainVerifier(ledgerRepo)
	exportSvc := service.NewExportService(verifier, ledgerRepo, s3Client)

	indexerSvc := service.NewIndexerService(embedder, documentRepo, fragmentRepo)
	processor := jobs.NewIndexWorker(indexJobRepo, indexerSvc)
	indexWorker := jobs.NewWorker(processor, workerPollInterval)

	workerCtx, cancelWorker := context.WithCancel(context.Background())
	go indexWorker.Start(workerCtx)

	cfg := server.RouterConfig{
		CredentialValidator: authSvc,
		RetrievalHandler:    handlers.NewRetrievalHandler(retrievalSvc),
		DocumentHandler:     handlers.NewDocumentHandler(documentSvc),
		AuditHandler:        handlers.NewAuditHandler(ledgerSvc, auditQuerySvc, verifier, exportSvc),
		AdminHandler:        handlers.NewAdminHandler(authSvc),
	}

	router := server.NewRouter(cfg)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.Logf("server error: %v", err)
		}
	}()

	serverURL := fmt.Sprintf("http://localhost:%d", port)
	waitForServer(t, serverURL, 10*time.Second)

	return serverURL, func() {
		indexWorker.Stop()
		cancelWorker()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}

// bagOfWordsEmbedder produces deterministic embeddings without any external
// provider: each token is hashed into a bucket, so texts sharing words land
// close together under cosine similarity. Good enough for ranking assertions.
type bagOfWordsEmbedder struct{}

func (e *bagOfWordsEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, 1536)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?\"'()#")
		if token == "" {
			continue
		}
		h := sha256.Sum256([]byte(token))
		bucket := binary.BigEndian.Uint32(h[:4]) % 1536
		vec[bucket] += 1
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		vec[0] = 1
		return vec, nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}
