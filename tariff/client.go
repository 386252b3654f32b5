package tariff

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the Clear.ai Australian tariff API.
	DefaultBaseURL = "https://api.clear.ai/api/v1/au_tariff"

	// DefaultBookRef selects the Schedule 4 concession book.
	DefaultBookRef = "AU_TARIFF_SCHED4_2022"

	defaultTimeout   = 30 * time.Second
	defaultRateLimit = 10
	defaultRateBurst = 20
)

// ClientConfig configures a Client. Zero values fall back to defaults.
type ClientConfig struct {
	BaseURL   string
	BookRef   string
	Timeout   time.Duration
	RateLimit int // requests per second against the upstream
	RateBurst int
}

// Client queries the upstream tariff API. All requests pass through a
// shared rate limiter so bulk syncs cannot exceed the upstream quota.
type Client struct {
	baseURL    string
	bookRef    string
	httpClient *http.Client
}

// rateLimitedTransport delays each request until the limiter admits it.
type rateLimitedTransport struct {
	limiter *rate.Limiter
	next    http.RoundTripper
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.next.RoundTrip(req)
}

// NewClient creates a tariff API client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.BookRef == "" {
		cfg.BookRef = DefaultBookRef
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		bookRef: cfg.BookRef,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &rateLimitedTransport{
				limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateBurst),
				next: &http.Transport{
					MaxIdleConns:        10,
					IdleConnTimeout:     90 * time.Second,
					TLSHandshakeTimeout: 10 * time.Second,
				},
			},
		},
	}
}

// ChapterLookup fetches the flattened tariff lines for a 4+ digit HS code
// together with the owning chapter's notes. The two requests run in
// parallel. Codes that are not all digits or are shorter than 4 return an
// empty ChapterData without error.
func (c *Client) ChapterLookup(ctx context.Context, code string) (*ChapterData, error) {
	code = strings.TrimSpace(code)
	if !isDigits(code) || len(code) < 4 {
		return &ChapterData{Lines: []Line{}}, nil
	}

	data := &ChapterData{Lines: []Line{}}
	chapterCode := code[:2]

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lines, err := c.fetchLines(gctx, code)
		if err != nil {
			return err
		}
		data.Lines = lines
		return nil
	})
	g.Go(func() error {
		notes, err := c.ChapterNotes(gctx, chapterCode)
		if err != nil {
			return err
		}
		data.Notes = notes
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return data, nil
}

// Search looks up tariff lines for a 2 to 8 digit HS code prefix. Invalid
// codes return an empty list without error.
func (c *Client) Search(ctx context.Context, code string) ([]Line, error) {
	code = strings.TrimSpace(code)
	if !isDigits(code) || len(code) < 2 || len(code) > 8 {
		return []Line{}, nil
	}
	return c.fetchLines(ctx, code)
}

// ChapterNotes fetches the notes for a 2-digit chapter code. A chapter
// the upstream has nothing for yields nil without error.
func (c *Client) ChapterNotes(ctx context.Context, chapterCode string) (*Chapter, error) {
	chapterCode = strings.TrimSpace(chapterCode)
	if !isDigits(chapterCode) || len(chapterCode) != 2 {
		return nil, nil
	}

	endpoint := fmt.Sprintf("%s/chapters/by_code?code=%s", c.baseURL, url.QueryEscape(chapterCode))
	body, ok, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var chapter Chapter
	if err := json.Unmarshal(body, &chapter); err != nil {
		// Malformed payloads degrade to no notes, matching the
		// empty-on-protocol-error contract of the other lookups.
		return nil, nil
	}
	return &chapter, nil
}

// ConcessionSearch looks up Schedule 4 concession book entries by by-law
// number. Non-numeric input returns an empty result flagged as invalid.
func (c *Client) ConcessionSearch(ctx context.Context, bylawNumber string) (*ConcessionResult, error) {
	num := strings.TrimSpace(bylawNumber)
	if !isDigits(num) || num == "" {
		return &ConcessionResult{Results: []BookNode{}, Content: "invalid by-law number"}, nil
	}

	endpoint := fmt.Sprintf("%s/book_nodes/search?term=%s&book_ref=%s",
		c.baseURL, url.QueryEscape(num), url.QueryEscape(c.bookRef))
	body, ok, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &ConcessionResult{Results: []BookNode{}}, nil
	}

	var result ConcessionResult
	if err := json.Unmarshal(body, &result); err != nil {
		return &ConcessionResult{Results: []BookNode{}}, nil
	}
	if result.Results == nil {
		result.Results = []BookNode{}
	}
	return &result, nil
}

// ConcessionText resolves a by-law number into a short concession summary
// for classification results. Returns empty text when nothing is found.
func (c *Client) ConcessionText(ctx context.Context, bylawNumber string) (string, error) {
	result, err := c.ConcessionSearch(ctx, bylawNumber)
	if err != nil {
		return "", err
	}
	if len(result.Results) == 0 {
		return "", nil
	}

	node := result.Results[0]
	text := strings.TrimSpace(node.Content)
	if node.Heading != "" {
		text = node.Heading + ": " + text
	}
	if text == "" {
		return "", nil
	}

	const maxLen = 300
	if len(text) > maxLen {
		text = text[:maxLen] + "..."
	}
	return fmt.Sprintf("Schedule 4 by-law %s: %s", strings.TrimSpace(bylawNumber), text), nil
}

// fetchLines retrieves flattened tariff lines for a code. Upstream
// protocol problems (non-200, malformed JSON) yield an empty list;
// transport failures are returned as errors.
func (c *Client) fetchLines(ctx context.Context, code string) ([]Line, error) {
	endpoint := fmt.Sprintf("%s/tariffs/chapter_flatten_tariffs?code=%s", c.baseURL, url.QueryEscape(code))
	body, ok, err := c.get(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []Line{}, nil
	}

	var lines []Line
	if err := json.Unmarshal(body, &lines); err != nil {
		return []Line{}, nil
	}
	if lines == nil {
		lines = []Line{}
	}
	return lines, nil
}

// get performs a GET request. ok=false signals a non-200 response, which
// callers treat as "no data" rather than a failure.
func (c *Client) get(ctx context.Context, endpoint string) (body []byte, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("network error: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			log.Printf("[tariff] Warning: failed to close response body: %v", closeErr)
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, false, nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, true, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
