package loader

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGitHubLoader(t *testing.T, handler http.HandlerFunc, ref string) *GitHubLoader {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	l := newGitHubLoader(srv.Client(), "acme", "speeches", "docs/speech.md", ref, "")
	base, err := url.Parse(srv.URL + "/")
	require.NoError(t, err)
	l.client.BaseURL = base
	return l
}

func TestGitHubLoaderLoad(t *testing.T) {
	var gotRef string
	l := newTestGitHubLoader(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/repos/acme/speeches/contents/docs/speech.md", r.URL.Path)
		gotRef = r.URL.Query().Get("ref")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"type":     "file",
			"name":     "speech.md",
			"path":     "docs/speech.md",
			"encoding": "base64",
			"content":  base64.StdEncoding.EncodeToString([]byte("# Speech\n\nHello.")),
		})
	}, "v1")

	doc, err := l.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "v1", gotRef)
	assert.Equal(t, "speech.md", doc.ID)
	assert.Equal(t, "github.com/acme/speeches/docs/speech.md", doc.Source)
	assert.Equal(t, "# Speech\n\nHello.", doc.Content)
}

func TestGitHubLoaderDirectory(t *testing.T) {
	l := newTestGitHubLoader(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"type":"file","name":"a.md","path":"docs/a.md"}]`))
	}, "")

	_, err := l.Load(context.Background())
	require.Error(t, err)
}

func TestNewGitHubLoaderRejectsBadRepository(t *testing.T) {
	_, err := NewGitHubLoader("no-slash", "speech.txt", "", "")
	require.Error(t, err)
}
