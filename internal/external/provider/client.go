// Package provider scrapes the market-data provider's HTML pages: the listing,
// per-entity quote indicators, annual statement tables and daily price history.
// Values are returned as raw labelled text or normalized numerics; mapping vendor
// labels onto canonical fields is left to ingestion.
package provider

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/aegis-screener/pkg/httputil"
	"github.com/wonny/aegis-screener/pkg/logger"
)

// Client handles communication with the provider
// ⭐ SSOT: provider page scraping happens in this package only
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
}

// NewClient creates a new provider client
func NewClient(httpClient *httputil.Client, baseURL string, log *logger.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log,
		baseURL:    strings.TrimRight(baseURL, "/"),
	}
}

// fetchDocument fetches a page and parses it as HTML
func (c *Client) fetchDocument(ctx context.Context, path string, params url.Values) (*goquery.Document, error) {
	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL = fmt.Sprintf("%s?%s", fullURL, params.Encode())
	}

	body, err := c.httpClient.Fetch(ctx, fullURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", path, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

var (
	dateRe = regexp.MustCompile(`(\d{4})[./-](\d{1,2})[./-](\d{1,2})`)
	yearRe = regexp.MustCompile(`(\d{4})`)
)

// parseDate accepts 2024/03/08, 2024-03-08 and 2024.03.08
func parseDate(s string) (time.Time, bool) {
	m := dateRe.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false
	}
	t, err := time.Parse("2006-1-2", fmt.Sprintf("%s-%s-%s", m[1], m[2], m[3]))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func cellText(s *goquery.Selection) string {
	return strings.Join(strings.Fields(s.Text()), " ")
}
