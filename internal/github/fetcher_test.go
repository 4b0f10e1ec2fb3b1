package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTestFetcher(t *testing.T, repo Repo) *Fetcher {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/handbook/contents/docs", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]string{
			{"type": "file", "name": "intro.md", "path": "docs/intro.md"},
			{"type": "file", "name": "logo.png", "path": "docs/logo.png"},
			{"type": "dir", "name": "faq", "path": "docs/faq"},
		})
	})
	mux.HandleFunc("GET /repos/acme/handbook/contents/docs/faq", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []map[string]string{
			{"type": "file", "name": "refunds.txt", "path": "docs/faq/refunds.txt"},
		})
	})
	mux.HandleFunc("GET /repos/acme/handbook/contents/docs/intro.md", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, repo.Ref, r.URL.Query().Get("ref"))
		writeJSON(w, map[string]string{
			"type":     "file",
			"name":     "intro.md",
			"path":     "docs/intro.md",
			"encoding": "base64",
			"sha":      "blob-sha",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Intro\n\nWelcome.\n")),
		})
	})
	mux.HandleFunc("GET /repos/acme/handbook/commits", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "docs", r.URL.Query().Get("path"))
		writeJSON(w, []map[string]string{{"sha": "deadbeef"}})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientOptions{BaseURL: server.URL})
	require.NoError(t, err)
	return NewFetcher(client, repo)
}

func TestFetcher_ListDocs(t *testing.T) {
	f := newTestFetcher(t, Repo{Owner: "acme", Name: "handbook", BasePath: "docs"})

	docs, err := f.ListDocs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"intro.md", "faq/refunds.txt"}, docs)
}

func TestFetcher_FetchDoc(t *testing.T) {
	f := newTestFetcher(t, Repo{Owner: "acme", Name: "handbook", BasePath: "docs", Ref: "v2"})

	doc, err := f.FetchDoc(context.Background(), "intro.md")
	require.NoError(t, err)
	assert.Equal(t, "intro.md", doc.Path)
	assert.Equal(t, "# Intro\n\nWelcome.\n", doc.Content)
	assert.Equal(t, "blob-sha", doc.SHA)
	assert.Equal(t, "https://raw.githubusercontent.com/acme/handbook/v2/docs/intro.md", doc.URL)
}

func TestFetcher_FetchDocNotFound(t *testing.T) {
	f := newTestFetcher(t, Repo{Owner: "acme", Name: "handbook", BasePath: "docs"})

	_, err := f.FetchDoc(context.Background(), "missing.md")
	assert.Error(t, err)
}

func TestFetcher_GetLatestCommitSHA(t *testing.T) {
	f := newTestFetcher(t, Repo{Owner: "acme", Name: "handbook", BasePath: "docs"})

	sha, err := f.GetLatestCommitSHA(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "deadbeef", sha)
}

func TestParseRepo(t *testing.T) {
	tests := []struct {
		in      string
		want    Repo
		wantErr bool
	}{
		{in: "acme/handbook", want: Repo{Owner: "acme", Name: "handbook"}},
		{in: "acme/handbook/docs/en", want: Repo{Owner: "acme", Name: "handbook", BasePath: "docs/en"}},
		{in: "acme/handbook/docs/@main", want: Repo{Owner: "acme", Name: "handbook", BasePath: "docs", Ref: "main"}},
		{in: "acme", wantErr: true},
		{in: "/handbook", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseRepo(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	r := Repo{Owner: "acme", Name: "handbook", BasePath: "docs", Ref: "main"}
	assert.Equal(t, "acme/handbook/docs@main", r.String())
}

func TestIsDocument(t *testing.T) {
	assert.True(t, IsDocument("README.md"))
	assert.True(t, IsDocument("notes.TXT"))
	assert.False(t, IsDocument("logo.png"))
	assert.False(t, IsDocument("manual.pdf"))
}
