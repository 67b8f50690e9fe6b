//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tessera-ai/tessera/internal/agent"
	"github.com/tessera-ai/tessera/internal/api/handlers"
	"github.com/tessera-ai/tessera/internal/chunking"
	"github.com/tessera-ai/tessera/internal/ingest"
	"github.com/tessera-ai/tessera/internal/jobs"
	"github.com/tessera-ai/tessera/internal/repository"
	"github.com/tessera-ai/tessera/internal/retrieval"
	"github.com/tessera-ai/tessera/internal/server"
	"github.com/tessera-ai/tessera/internal/testutil"
)

// E2ETestEnv holds all resources needed for E2E tests. The stack runs without
// an embedding provider, so retrieval exercises the sparse path and generation
// falls back to extractive answers.
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	Pool         *pgxpool.Pool
	ServerURL    string
	ServerCloser func()
	IngestWorker *jobs.IngestWorker
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with a container and server
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	serverURL, serverCloser, worker := startServer(t, pool, port)

	return &E2ETestEnv{
		T:            t,
		Ctx:          ctx,
		PostgresC:    pgC,
		Pool:         pool,
		ServerURL:    serverURL,
		ServerCloser: serverCloser,
		IngestWorker: worker,
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
	if e.PostgresC != nil {
		e.PostgresC.Terminate(e.Ctx)
	}
}

// CreateTenant inserts a tenant row directly and returns its ID.
func (e *E2ETestEnv) CreateTenant(name string) string {
	id := uuid.NewString()
	_, err := e.Pool.Exec(e.Ctx,
		`INSERT INTO tenants (id, name, created_at) VALUES ($1, $2, now())`,
		id, name,
	)
	if err != nil {
		e.T.Fatalf("failed to create tenant: %v", err)
	}
	return id
}

// DrainJobs runs the ingest worker until the queue is empty.
func (e *E2ETestEnv) DrainJobs() {
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		if err := e.IngestWorker.ProcessJobs(e.Ctx); err != nil {
			e.T.Fatalf("worker failed: %v", err)
		}
		var pending int
		if err := e.Pool.QueryRow(e.Ctx,
			`SELECT count(*) FROM ingest_jobs WHERE status IN ('pending', 'processing')`,
		).Scan(&pending); err != nil {
			e.T.Fatalf("failed to count jobs: %v", err)
		}
		if pending == 0 {
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatal("ingest jobs did not drain in time")
}

// APIResponse represents a standard API response
type APIResponse struct {
	Data  json.RawMessage `json:"data"`
	Error string          `json:"error,omitempty"`
}

// Get performs a GET request as the given tenant
func (e *E2ETestEnv) Get(path, tenantID string) (*APIResponse, error) {
	return e.doRequest("GET", path, nil, tenantID)
}

// Post performs a POST request as the given tenant
func (e *E2ETestEnv) Post(path string, body interface{}, tenantID string) (*APIResponse, error) {
	return e.doRequest("POST", path, body, tenantID)
}

// Delete performs a DELETE request as the given tenant
func (e *E2ETestEnv) Delete(path, tenantID string) (*APIResponse, error) {
	return e.doRequest("DELETE", path, nil, tenantID)
}

func (e *E2ETestEnv) doRequest(method, path string, body interface{}, tenantID string) (*APIResponse, error) {
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

	if tenantID != "" {
		req.Header.Set("X-Tenant-ID", tenantID)
		req.Header.Set("X-User-ID", "e2e-user")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

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

// startServer starts the HTTP server wired without an embedding provider
func startServer(t *testing.T, pool *pgxpool.Pool, port int) (string, func(), *jobs.IngestWorker) {
	documentRepo := repository.NewDocumentRepository(pool)
	chunkRepo := repository.NewChunkRepository(pool)
	sessionRepo := repository.NewSessionRepository(pool)
	ingestJobRepo := repository.NewIngestJobRepository(pool)
	txRunner := repository.NewTxRunner(pool)

	ingestSvc := ingest.NewService(documentRepo, ingestJobRepo, txRunner,
		chunking.NewSplitter(), nil, chunking.DefaultOptions())
	worker := jobs.NewIngestWorker(ingestJobRepo, ingestSvc)

	engine := retrieval.NewEngine(chunkRepo, nil, retrieval.DefaultConfig())
	orchestrator := agent.NewOrchestrator(sessionRepo, engine, nil, agent.DefaultConfig())

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(ingestSvc, documentRepo),
		QueryHandler:    handlers.NewQueryHandler(orchestrator, sessionRepo),
	})

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
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, worker
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
