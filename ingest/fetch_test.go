package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPWebFetcherStripsToMainText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><head><style>body{color:red}</style></head>
<body><nav>Skip this</nav><main><h1>Title</h1><p>Providers need 8GB RAM.</p></main>
<script>alert(1)</script></body></html>`))
	}))
	defer server.Close()

	f := NewHTTPWebFetcher()
	finalURL, content, contentType, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Equal(t, server.URL, finalURL)
	assert.Contains(t, contentType, "html")
	assert.Contains(t, string(content), "Providers need 8GB RAM.")
	assert.NotContains(t, string(content), "Skip this")
	assert.NotContains(t, string(content), "alert(1)")
}

func TestHTTPWebFetcherPassesThroughNonHTML(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("raw text body"))
	}))
	defer server.Close()

	f := NewHTTPWebFetcher()
	_, content, _, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "raw text body", string(content))
}

func TestHTTPWebFetcherSurfacesStatusErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	f := NewHTTPWebFetcher()
	_, _, _, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}
