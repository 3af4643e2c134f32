// Package web provides the scrape_webpages tool: it fetches pages and returns
// their content as Markdown wrapped in Document blocks.
package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"golang.org/x/net/html"

	"github.com/aretw0/agentgraph/internal/logging"
	"github.com/aretw0/agentgraph/pkg/domain"
	"github.com/aretw0/agentgraph/pkg/registry"
	"github.com/aretw0/agentgraph/pkg/schema"
)

const (
	ToolName         = "scrape_webpages"
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "agentgraph-scraper/1.0"
	// MaxBodySize caps each response body (10MB).
	MaxBodySize  = 10 * 1024 * 1024
	maxRedirects = 10
)

// Scraper fetches web pages and converts them to Markdown.
type Scraper struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// Option configures a Scraper.
type Option func(*Scraper)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Scraper) { s.client = c }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(s *Scraper) { s.userAgent = ua }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scraper) { s.logger = l }
}

// New returns a Scraper.
func New(opts ...Option) *Scraper {
	s := &Scraper{
		client: &http.Client{
			Timeout: DefaultTimeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= maxRedirects {
					return errors.New("stopped after 10 redirects")
				}
				return nil
			},
		},
		userAgent: DefaultUserAgent,
		logger:    logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Tool returns the scrape_webpages tool.
func (s *Scraper) Tool() registry.Tool {
	return registry.Tool{
		ToolSpec: domain.ToolSpec{
			Name:        ToolName,
			Description: "Scrape the provided web pages for detailed information.",
			Parameters: schema.Schema{
				"urls": schema.Describe(schema.Slice(schema.String()), "The URLs to scrape."),
			},
		},
		Fn: s.invoke,
	}
}

// Register adds the tool to r.
func (s *Scraper) Register(r *registry.Registry) {
	r.Add(s.Tool())
}

func (s *Scraper) invoke(ctx context.Context, args map[string]any) (any, error) {
	raw, _ := args["urls"].([]any)
	urls := make([]string, 0, len(raw))
	for _, u := range raw {
		if str, ok := u.(string); ok {
			urls = append(urls, str)
		}
	}
	return s.Scrape(ctx, urls)
}

// Scrape fetches every URL in order and joins the resulting Document blocks
// with a blank line. The first failing URL aborts the call.
func (s *Scraper) Scrape(ctx context.Context, urls []string) (string, error) {
	if len(urls) == 0 {
		return "", errors.New("no urls provided")
	}
	docs := make([]string, 0, len(urls))
	for _, u := range urls {
		title, content, err := s.Fetch(ctx, u)
		if err != nil {
			return "", err
		}
		docs = append(docs, fmt.Sprintf("<Document name=%q>\n%s\n</Document>", title, content))
	}
	return strings.Join(docs, "\n\n"), nil
}

// Fetch retrieves one page and returns its title and Markdown body.
// URLs without a scheme are fetched over https.
func (s *Scraper) Fetch(ctx context.Context, rawURL string) (title, content string, err error) {
	url := strings.TrimSpace(rawURL)
	if url == "" {
		return "", "", errors.New("empty url")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize+1))
	if err != nil {
		return "", "", fmt.Errorf("failed to read %s: %w", url, err)
	}
	if len(body) > MaxBodySize {
		return "", "", fmt.Errorf("response from %s exceeds %d bytes", url, MaxBodySize)
	}

	content, err = htmltomarkdown.ConvertString(string(body))
	if err != nil {
		return "", "", fmt.Errorf("failed to convert %s: %w", url, err)
	}
	title = pageTitle(body)
	if title == "" {
		title = url
	}

	s.logger.Debug("page scraped", "url", url, "bytes", len(body), "duration", time.Since(start))
	return title, strings.TrimSpace(content), nil
}

func pageTitle(body []byte) string {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var find func(*html.Node) string
	find = func(n *html.Node) string {
		if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
			return strings.TrimSpace(n.FirstChild.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if t := find(c); t != "" {
				return t
			}
		}
		return ""
	}
	return find(doc)
}
