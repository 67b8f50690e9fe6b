//go:build e2e

package e2e

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type documentData struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	ChunkCount int    `json:"chunk_count"`
}

type ingestData struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

type sessionData struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Answer    string `json:"answer"`
	Degraded  bool   `json:"degraded"`
	Citations []struct {
		ChunkID    string `json:"chunk_id"`
		DocumentID string `json:"document_id"`
	} `json:"citations"`
}

func TestIngestQueryLifecycle(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	tenant := env.CreateTenant("acme")

	resp, err := env.Post("/documents", map[string]string{
		"text": "The quarterly revenue target for the Atlas project is twelve million dollars. " +
			"The Atlas project ships in March. Contact the finance team for budget questions.",
	}, tenant)
	require.NoError(t, err)

	var ack ingestData
	require.NoError(t, json.Unmarshal(resp.Data, &ack))
	require.NotEmpty(t, ack.DocumentID)
	assert.Equal(t, "pending", ack.Status)

	env.DrainJobs()

	resp, err = env.Get("/documents/"+ack.DocumentID, tenant)
	require.NoError(t, err)
	var doc documentData
	require.NoError(t, json.Unmarshal(resp.Data, &doc))
	assert.Equal(t, "chunked", doc.Status)
	assert.Greater(t, doc.ChunkCount, 0)

	resp, err = env.Post("/query", map[string]string{
		"query": "What is the revenue target for the Atlas project?",
	}, tenant)
	require.NoError(t, err)

	var session sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Contains(t, []string{"completed", "degraded"}, session.Status)
	assert.Contains(t, strings.ToLower(session.Answer), "twelve million")
	require.NotEmpty(t, session.Citations)
	assert.Equal(t, ack.DocumentID, session.Citations[0].DocumentID)

	// Session state is retrievable afterwards
	resp, err = env.Get("/sessions/"+session.ID, tenant)
	require.NoError(t, err)
	var fetched sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &fetched))
	assert.Equal(t, session.ID, fetched.ID)
	assert.Equal(t, session.Answer, fetched.Answer)
}

func TestTenantIsolation(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	acme := env.CreateTenant("acme")
	globex := env.CreateTenant("globex")

	resp, err := env.Post("/documents", map[string]string{
		"text": "The secret launch codeword is zephyr. Only acme staff may know it.",
	}, acme)
	require.NoError(t, err)
	var ack ingestData
	require.NoError(t, json.Unmarshal(resp.Data, &ack))

	env.DrainJobs()

	// The other tenant cannot see the document
	_, err = env.Get("/documents/"+ack.DocumentID, globex)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")

	// Nor retrieve its content through a query
	resp, err = env.Post("/query", map[string]string{
		"query": "What is the secret launch codeword?",
	}, globex)
	require.NoError(t, err)
	var session sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.NotContains(t, strings.ToLower(session.Answer), "zephyr")
	assert.Empty(t, session.Citations)

	// Nor read the owner's session
	resp, err = env.Post("/query", map[string]string{
		"query": "What is the secret launch codeword?",
	}, acme)
	require.NoError(t, err)
	var acmeSession sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &acmeSession))

	_, err = env.Get("/sessions/"+acmeSession.ID, globex)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

func TestDocumentReingestAndDelete(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	tenant := env.CreateTenant("acme")
	docID := uuid.NewString()

	_, err := env.Post("/documents", map[string]string{
		"document_id": docID,
		"text":        "The office is in Lisbon.",
	}, tenant)
	require.NoError(t, err)
	env.DrainJobs()

	// Re-ingest replaces the chunk set
	_, err = env.Post("/documents", map[string]string{
		"document_id": docID,
		"text":        "The office moved to Porto last year.",
	}, tenant)
	require.NoError(t, err)
	env.DrainJobs()

	resp, err := env.Post("/query", map[string]string{
		"query": "Where is the office?",
	}, tenant)
	require.NoError(t, err)
	var session sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	assert.Contains(t, strings.ToLower(session.Answer), "porto")

	// Deleting removes document and chunks
	_, err = env.Delete("/documents/"+docID, tenant)
	require.NoError(t, err)

	_, err = env.Get("/documents/"+docID, tenant)
	require.Error(t, err)

	resp, err = env.Post("/query", map[string]string{
		"query": "Where is the office?",
	}, tenant)
	require.NoError(t, err)
	var after sessionData
	require.NoError(t, json.Unmarshal(resp.Data, &after))
	assert.Empty(t, after.Citations)
}

func TestMissingIdentityRejected(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	_, err := env.Post("/documents", map[string]string{"text": "hello"}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestDocumentListPagination(t *testing.T) {
	env := SetupE2EEnv(t)
	defer env.Cleanup()

	tenant := env.CreateTenant("acme")
	for i := 0; i < 5; i++ {
		_, err := env.Post("/documents", map[string]string{
			"text": fmt.Sprintf("Document number %d body text.", i),
		}, tenant)
		require.NoError(t, err)
	}

	resp, err := env.Get("/documents?limit=2", tenant)
	require.NoError(t, err)

	var page struct {
		Items   []documentData `json:"items"`
		Cursor  string         `json:"cursor"`
		HasMore bool           `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Len(t, page.Items, 2)
	assert.True(t, page.HasMore)
	require.NotEmpty(t, page.Cursor)

	resp, err = env.Get("/documents?limit=2&cursor="+url.QueryEscape(page.Cursor), tenant)
	require.NoError(t, err)
	var next struct {
		Items []documentData `json:"items"`
	}
	require.NoError(t, json.Unmarshal(resp.Data, &next))
	assert.Len(t, next.Items, 2)
	assert.NotEqual(t, page.Items[0].ID, next.Items[0].ID)
}
