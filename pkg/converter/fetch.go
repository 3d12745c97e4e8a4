package converter

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// fetchTimeout bounds one URL download and extraction.
const fetchTimeout = 30 * time.Second

// FetchResult is the readable content extracted from a web page.
type FetchResult struct {
	Title    string
	Markdown string
}

// FetchURL downloads a page, extracts its readable article content, and
// converts it to Markdown. Boilerplate (navigation, ads, footers) is
// stripped by the readability pass before conversion.
func (c *Converter) FetchURL(ctx context.Context, rawURL string) (*FetchResult, error) {
	parsed, err := url.ParseRequestURI(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, fmt.Errorf("invalid URL %q", rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s returned status %d", rawURL, resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to extract readable content: %w", err)
	}

	markdown, err := c.ToMarkdown([]byte(article.Content), FormatHTML, "")
	if err != nil {
		return nil, err
	}

	c.logger.Debug("fetched URL content",
		"url", rawURL,
		"title", article.Title,
		"markdown_bytes", len(markdown),
	)

	return &FetchResult{
		Title:    article.Title,
		Markdown: markdown,
	}, nil
}
