package capability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fraktionswerk/draftflow/internal/metrics"
	"github.com/fraktionswerk/draftflow/internal/util"
)

const defaultMaxContentLength = 40_000

// HTTPFetchClient fetches URLs directly and extracts readable text from HTML.
type HTTPFetchClient struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewHTTPFetchClient creates a fetch capability client. The per-call timeout
// comes from FetchOptions, so the underlying client carries none.
func NewHTTPFetchClient(logger *zap.Logger) *HTTPFetchClient {
	return &HTTPFetchClient{
		client: &http.Client{
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return fmt.Errorf("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: "draftflow/1.0 (+https://github.com/fraktionswerk/draftflow)",
		logger:    logger,
	}
}

// FetchURL retrieves one URL and returns extracted text content. All failure
// modes yield Success=false rather than partial content.
func (c *HTTPFetchClient) FetchURL(ctx context.Context, url string, opts FetchOptions) (*FetchResult, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	maxLen := opts.MaxContentLength
	if maxLen <= 0 {
		maxLen = defaultMaxContentLength
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build fetch request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8")

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.RecordCapabilityCall("fetch", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordCapabilityCall("fetch", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}

	// Read at most maxLen*4 bytes of raw body; extraction shrinks it further.
	raw, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxLen)*4))
	if err != nil {
		metrics.RecordCapabilityCall("fetch", "error", time.Since(start).Seconds())
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}

	content := string(raw)
	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		content = extractText(content)
	} else {
		content = util.NormalizeWhitespace(content)
	}

	if len(content) > maxLen {
		content = util.TruncateString(content, maxLen, true)
	}
	if strings.TrimSpace(content) == "" {
		metrics.RecordCapabilityCall("fetch", "empty", time.Since(start).Seconds())
		return &FetchResult{Success: false}, nil
	}

	metrics.RecordCapabilityCall("fetch", "ok", time.Since(start).Seconds())
	return &FetchResult{
		Success:   true,
		Content:   content,
		WordCount: len(strings.Fields(content)),
	}, nil
}

// extractText pulls readable text out of an HTML document, dropping script,
// style and navigation chrome.
func extractText(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return util.NormalizeWhitespace(html)
	}

	doc.Find("script, style, noscript, nav, header, footer, iframe").Remove()

	// Prefer the main content landmark when the page declares one
	root := doc.Find("main, article").First()
	if root.Length() == 0 {
		root = doc.Find("body")
	}

	var sb strings.Builder
	root.Find("h1, h2, h3, h4, p, li, td, blockquote").Each(func(_ int, s *goquery.Selection) {
		text := strings.TrimSpace(s.Text())
		if text == "" {
			return
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	})

	text := sb.String()
	if strings.TrimSpace(text) == "" {
		text = root.Text()
	}
	return util.NormalizeWhitespace(text)
}
