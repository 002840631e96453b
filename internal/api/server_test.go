package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fivarsson/triage/internal/api"
	"github.com/fivarsson/triage/internal/engine"
	"github.com/fivarsson/triage/internal/store"
	"github.com/fivarsson/triage/internal/vault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestServer runs the full pipeline without a classifier, so every
// submission takes the fallback path and no network is involved.
func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	root := t.TempDir()

	index, err := store.New(filepath.Join(root, "index.db"))
	require.NoError(t, err)
	t.Cleanup(func() { index.Close() })

	e := engine.New(nil, vault.NewWriter(root), index, nil)
	srv := httptest.NewServer(api.New(e, index, ":0").Handler())
	t.Cleanup(srv.Close)
	return srv, root
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeTriage(t *testing.T, resp *http.Response) api.TriageResponse {
	t.Helper()
	defer resp.Body.Close()
	var tr api.TriageResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tr))
	return tr
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "Life Triage System", body["service"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestTriageSubmission(t *testing.T) {
	srv, root := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/triage", api.TriageRequest{Text: "Remember to call the bank"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tr := decodeTriage(t, resp)
	assert.True(t, tr.Success)
	require.NotNil(t, tr.Triage)
	assert.True(t, strings.HasPrefix(tr.Triage.ID, "triage-"))
	assert.Contains(t, tr.Triage.Tags, "unprocessed")
	assert.True(t, strings.HasPrefix(tr.NotePath, "Inbox/"), "got %q", tr.NotePath)

	_, err := os.Stat(filepath.Join(root, tr.NotePath))
	require.NoError(t, err, "note written to the vault")
}

func TestTriageSourceMetadata(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/triage", api.TriageRequest{
		Text:     "quick thought",
		Metadata: map[string]string{"source": "telegram"},
	})
	tr := decodeTriage(t, resp)
	require.NotNil(t, tr.Triage)
	assert.Equal(t, "telegram", tr.Triage.Source.Type)
}

func TestTriageRejectsEmptyBody(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/triage", api.TriageRequest{Text: "   "})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestTriageRejectsInvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/api/triage", "application/json", strings.NewReader("{not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestEmailSubmission(t *testing.T) {
	srv, root := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/email", api.EmailRequest{
		From:    "anna@example.com",
		Subject: "Invoice due",
		Text:    "Please pay by Friday.",
		Attachments: []api.BinaryPayload{
			{Filename: "receipt.png", ContentType: "image/png", Data: []byte("fakepng")},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	tr := decodeTriage(t, resp)
	assert.True(t, tr.Success)
	require.NotNil(t, tr.Triage)
	assert.Equal(t, "email", tr.Triage.Source.Type)
	assert.Equal(t, "anna@example.com", tr.Triage.Source.From)
	require.Len(t, tr.Triage.Images, 1, "image attachments arrive as images")

	_, err := os.Stat(filepath.Join(root, tr.NotePath))
	require.NoError(t, err)
}

func TestEmailRejectsEmptyMessage(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/email", api.EmailRequest{From: "x@example.com"})
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStats(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, text := range []string{"first", "second"} {
		resp := postJSON(t, srv.URL+"/api/triage", api.TriageRequest{Text: text})
		decodeTriage(t, resp)
	}

	resp, err := http.Get(srv.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Processed int            `json:"processed"`
		ByType    map[string]int `json:"byType"`
		Indexed   struct {
			Total  int            `json:"total"`
			ByType map[string]int `json:"byType"`
		} `json:"indexed"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	assert.Equal(t, 2, body.Processed)
	assert.Equal(t, 2, body.ByType["note"])
	assert.Equal(t, 2, body.Indexed.Total)
	assert.Equal(t, 2, body.Indexed.ByType["note"])
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/triage")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/triage", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
