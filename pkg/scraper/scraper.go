package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/xhad/ragingest/internal/models"
	"golang.org/x/time/rate"
)

type ScraperConfig struct {
	BaseURL           string
	MaxDepth          int
	RateLimit         float64 // requests per second
	IgnorePatterns    []string
	AllowedExtensions []string
	Timeout           time.Duration
	MaxPageSize       int64
	OnProgress        func(url string)
	Logger            *slog.Logger
}

// Page is one fetched HTML page, kept raw so the ingest pipeline does the
// text extraction.
type Page struct {
	URL          string
	Title        string
	HTML         []byte
	Depth        int
	LastModified string
	FetchedAt    time.Time
}

// AssetID derives a stable asset id from the page URL so a recrawl replaces
// the chunks of the previous crawl.
func (p Page) AssetID() string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(p.URL)).String()
}

// Upload turns the page into an ingestible text/html file.
func (p Page) Upload() models.UploadedFile {
	name := "index.html"
	if u, err := url.Parse(p.URL); err == nil {
		if base := path.Base(u.Path); base != "" && base != "/" && base != "." {
			name = base
		}
	}
	if !strings.HasSuffix(name, ".html") && !strings.HasSuffix(name, ".htm") {
		name += ".html"
	}
	return models.UploadedFile{
		FileName:    name,
		ContentType: "text/html",
		Data:        p.HTML,
	}
}

type Scraper struct {
	config   ScraperConfig
	client   *http.Client
	visited  map[string]bool
	limiter  *rate.Limiter
	baseHost string
	logger   *slog.Logger
}

func NewWithConfig(config ScraperConfig) (*Scraper, error) {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxDepth == 0 {
		config.MaxDepth = 3
	}
	if config.RateLimit == 0 {
		config.RateLimit = 2 // 2 requests per second by default
	}
	if len(config.AllowedExtensions) == 0 {
		config.AllowedExtensions = []string{".html", ".htm", "/", ""}
	}
	if config.MaxPageSize == 0 {
		config.MaxPageSize = 10 << 20
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	parsedURL, err := url.Parse(config.BaseURL)
	if err != nil {
		return nil, err
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("base URL %q has no host", config.BaseURL)
	}

	return &Scraper{
		config: config,
		client: &http.Client{
			Timeout: config.Timeout,
		},
		visited:  make(map[string]bool),
		limiter:  rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		baseHost: parsedURL.Host,
		logger:   config.Logger.With("component", "scraper", "host", parsedURL.Host),
	}, nil
}

func (s *Scraper) shouldProcessURL(urlStr string) bool {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return false
	}

	// Check if URL is from the same host
	if parsedURL.Host != s.baseHost {
		return false
	}

	// Check extensions
	ext := strings.ToLower(parsedURL.Path)
	validExt := false
	for _, allowedExt := range s.config.AllowedExtensions {
		if strings.HasSuffix(ext, allowedExt) {
			validExt = true
			break
		}
	}
	if !validExt {
		return false
	}

	// Check ignore patterns
	for _, pattern := range s.config.IgnorePatterns {
		if strings.Contains(urlStr, pattern) {
			return false
		}
	}

	return true
}

// normalize drops the fragment so anchors of one page are visited once.
func normalize(u *url.URL) string {
	c := *u
	c.Fragment = ""
	return c.String()
}

// Crawl walks the site from startURL and hands every page to fn as soon as it
// is fetched. An error from fn stops the crawl.
func (s *Scraper) Crawl(ctx context.Context, startURL string, fn func(Page) error) error {
	return s.crawl(ctx, startURL, 0, fn)
}

func (s *Scraper) crawl(ctx context.Context, urlStr string, depth int, fn func(Page) error) error {
	if depth > s.config.MaxDepth || s.visited[urlStr] {
		return nil
	}

	if !s.shouldProcessURL(urlStr) {
		return nil
	}

	s.visited[urlStr] = true
	if s.config.OnProgress != nil {
		s.config.OnProgress(urlStr)
	}

	page, doc, err := s.fetch(ctx, urlStr, depth)
	if err != nil {
		return err
	}
	if err := fn(page); err != nil {
		return err
	}

	// Find and follow links
	var links []string
	doc.Find("a[href]").Each(func(_ int, selection *goquery.Selection) {
		href, exists := selection.Attr("href")
		if !exists {
			return
		}

		absoluteURL, err := url.Parse(href)
		if err != nil {
			s.logger.DebugContext(ctx, "skipping malformed link", "href", href, "err", err)
			return
		}

		// Make sure the URL is absolute
		if !absoluteURL.IsAbs() {
			base, err := url.Parse(urlStr)
			if err != nil {
				return
			}
			absoluteURL = base.ResolveReference(absoluteURL)
		}
		links = append(links, normalize(absoluteURL))
	})

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.crawl(ctx, link, depth+1, fn); err != nil {
			if ctx.Err() != nil {
				return err
			}
			if _, ok := err.(*fetchError); !ok {
				return err
			}
			s.logger.WarnContext(ctx, "failed to scrape page", "url", link, "err", err)
		}
	}

	return nil
}

// fetchError is a failure to load one page; the crawl skips such pages.
type fetchError struct {
	url string
	err error
}

func (e *fetchError) Error() string { return fmt.Sprintf("failed to fetch %s: %v", e.url, e.err) }
func (e *fetchError) Unwrap() error { return e.err }

func (s *Scraper) fetch(ctx context.Context, urlStr string, depth int) (Page, *goquery.Document, error) {
	// Apply rate limiting
	if err := s.limiter.Wait(ctx); err != nil {
		return Page{}, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return Page{}, nil, &fetchError{urlStr, err}
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return Page{}, nil, &fetchError{urlStr, err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Page{}, nil, &fetchError{urlStr, fmt.Errorf("received status code %d", resp.StatusCode)}
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(ct, "html") {
		return Page{}, nil, &fetchError{urlStr, fmt.Errorf("unexpected content type %q", ct)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.config.MaxPageSize))
	if err != nil {
		return Page{}, nil, &fetchError{urlStr, err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return Page{}, nil, &fetchError{urlStr, err}
	}

	return Page{
		URL:          urlStr,
		Title:        strings.TrimSpace(doc.Find("title").First().Text()),
		HTML:         body,
		Depth:        depth,
		LastModified: resp.Header.Get("Last-Modified"),
		FetchedAt:    time.Now(),
	}, doc, nil
}
