package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/microcosm-cc/bluemonday"
)

// WebFetcher is the "pure capability" spec §6 names: fetch_web(url) ->
// (final_url, bytes, content_type).
type WebFetcher interface {
	Fetch(ctx context.Context, url string) (finalURL string, content []byte, contentType string, err error)
}

// HTTPWebFetcher is the default WebFetcher: it GETs url and, for HTML
// responses, strips to main textual content using goquery to walk the DOM
// and bluemonday's strict policy to sanitize away script/style/markup
// noise before extracting text.
type HTTPWebFetcher struct {
	Client  *http.Client
	sanitze *bluemonday.Policy
}

// NewHTTPWebFetcher creates an HTTPWebFetcher with a bounded-timeout
// client.
func NewHTTPWebFetcher() *HTTPWebFetcher {
	return &HTTPWebFetcher{
		Client:  &http.Client{Timeout: 30 * time.Second},
		sanitze: bluemonday.StrictPolicy(),
	}
}

func (f *HTTPWebFetcher) Fetch(ctx context.Context, url string) (string, []byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", nil, "", fmt.Errorf("ingest: building request for %s: %w", url, err)
	}

	resp, err := f.Client.Do(req)
	if err != nil {
		return "", nil, "", fmt.Errorf("ingest: fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", nil, "", fmt.Errorf("ingest: fetching %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, "", fmt.Errorf("ingest: reading body of %s: %w", url, err)
	}

	contentType := resp.Header.Get("Content-Type")
	finalURL := resp.Request.URL.String()

	if strings.Contains(contentType, "html") {
		text, err := extractMainText(body)
		if err != nil {
			return "", nil, "", fmt.Errorf("ingest: extracting text from %s: %w", url, err)
		}
		return finalURL, []byte(text), contentType, nil
	}

	return finalURL, body, contentType, nil
}

// extractMainText strips an HTML document to its main textual content:
// drop script/style/nav/footer noise nodes, sanitize what remains with a
// strict policy, and collapse whitespace.
func extractMainText(html []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(html)))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, noscript").Remove()

	main := doc.Find("main").First()
	if main.Length() == 0 {
		main = doc.Find("article").First()
	}
	if main.Length() == 0 {
		main = doc.Find("body").First()
	}

	raw := main.Text()
	sanitizer := bluemonday.StrictPolicy()
	clean := sanitizer.Sanitize(raw)

	return collapseWhitespace(clean), nil
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}
