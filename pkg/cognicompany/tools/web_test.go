package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/llm"
)

func TestWebScrapeExtractsVisibleText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title> Lovelace </title><style>p{}</style></head>
<body><h1>Notes</h1><script>alert(1)</script><p>The Analytical   Engine
weaves patterns.</p></body></html>`))
	}))
	defer srv.Close()

	r := NewRegistry(Env{HTTPClient: srv.Client()}, discardLogger())
	out := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "web_scrape", Arguments: `{"url":"` + srv.URL + `"}`}))

	require.NotContains(t, out, "error")
	assert.Equal(t, "Lovelace", out["title"])
	assert.Equal(t, "Notes\nThe Analytical Engine weaves patterns.", out["content"])
	assert.False(t, strings.Contains(out["content"].(string), "alert"))
}

func TestWebScrapeRejectsNonHTTP(t *testing.T) {
	r := NewRegistry(Env{}, discardLogger())
	out := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "web_scrape", Arguments: `{"url":"file:///etc/passwd"}`}))
	assert.Contains(t, out["error"], "http or https")
}

func TestWebScrapeReportsHTTPErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	r := NewRegistry(Env{HTTPClient: srv.Client()}, discardLogger())
	out := decodeOutput(t, r.Dispatch(context.Background(), llm.ToolCall{ID: "1", Name: "web_scrape", Arguments: `{"url":"` + srv.URL + `/missing"}`}))
	assert.Contains(t, out["error"], "status 404")
}
