package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/agentgraph/pkg/registry"
)

func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, DefaultUserAgent, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>Page A</title></head><body><h1>Hello</h1><p>World</p></body></html>`))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><p>untitled</p></body></html>`))
	})
	mux.HandleFunc("/missing", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestScraper_Scrape(t *testing.T) {
	srv := newSite(t)
	out, err := New().Scrape(context.Background(), []string{srv.URL + "/a", srv.URL + "/b"})
	require.NoError(t, err)

	docs := strings.Split(out, "\n\n<Document")
	require.Len(t, docs, 2)
	assert.True(t, strings.HasPrefix(out, `<Document name="Page A">`))
	assert.Contains(t, out, "# Hello")
	assert.Contains(t, out, "World")
	assert.Contains(t, out, `<Document name="`+srv.URL+`/b">`)
	assert.True(t, strings.HasSuffix(out, "</Document>"))
}

func TestScraper_StatusError(t *testing.T) {
	srv := newSite(t)
	_, err := New().Scrape(context.Background(), []string{srv.URL + "/missing"})
	assert.ErrorContains(t, err, "status 404")
}

func TestScraper_NoURLs(t *testing.T) {
	_, err := New().Scrape(context.Background(), nil)
	assert.Error(t, err)
}

func TestScraper_ThroughRegistry(t *testing.T) {
	srv := newSite(t)
	r := registry.NewRegistry()
	New().Register(r)

	out, err := r.Invoke(context.Background(), ToolName, map[string]any{"urls": []any{srv.URL + "/a"}})
	require.NoError(t, err)
	assert.Contains(t, out, "Page A")

	_, err = r.Invoke(context.Background(), ToolName, map[string]any{"urls": "not-a-list"})
	assert.Error(t, err)
}

func TestScraper_Cancelled(t *testing.T) {
	srv := newSite(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Scrape(ctx, []string{srv.URL + "/a"})
	assert.ErrorIs(t, err, context.Canceled)
}
