package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Kind classifies a failed fetch so the retry policy can tell transient
// failures from terminal ones.
type Kind int

const (
	KindTimeout Kind = iota
	KindConnection
	KindHTTPStatus
	KindBlocked
	KindParse
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindConnection:
		return "connection_error"
	case KindHTTPStatus:
		return "http_error"
	case KindBlocked:
		return "blocked"
	case KindParse:
		return "parse_error"
	default:
		return "unknown"
	}
}

// Error is a classified fetch failure. Status is only set for KindHTTPStatus.
type Error struct {
	Kind   Kind
	Status int
	URL    string
	Err    error
}

func (e *Error) Error() string {
	if e.Kind == KindHTTPStatus {
		return fmt.Sprintf("fetch %s: %s %d", e.URL, e.Kind, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether a retry within the same run has a chance of
// succeeding. Timeouts, connection errors, 5xx, 429 and bot-challenge pages
// are transient; other 4xx and unparseable bodies are terminal.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindConnection, KindBlocked:
		return true
	case KindHTTPStatus:
		return e.Status >= 500 || e.Status == http.StatusTooManyRequests
	default:
		return false
	}
}

// defaultUserAgents is the rotation pool used when none is configured.
var defaultUserAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// blockMarkers are fragments that mark a 200 response as a bot-challenge
// page rather than real content.
var blockMarkers = []string{
	"captcha",
	"unusual traffic",
	"robot check",
	"are you a robot",
	"enter the characters you see below",
}

// Client issues single HTTP GETs with a rotating user agent and a hard
// timeout. It performs no retries; that policy belongs to the scraper.
type Client struct {
	httpClient *http.Client
	userAgents []string
	rng        *rand.Rand
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the per-request timeout covering connect and read.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithUserAgents replaces the user-agent rotation pool.
func WithUserAgents(agents []string) Option {
	return func(c *Client) {
		if len(agents) > 0 {
			c.userAgents = agents
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a fetch client with a 30s timeout and the default
// user-agent pool.
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		userAgents: defaultUserAgents,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch GETs url and returns the parsed document, or an *Error classifying
// the failure. A fresh user agent is drawn from the pool on every call.
func (c *Client) Fetch(ctx context.Context, url string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &Error{Kind: KindConnection, URL: url, Err: err}
	}

	req.Header.Set("User-Agent", c.userAgents[c.rng.Intn(len(c.userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Connection", "keep-alive")
	req.Header.Set("Upgrade-Insecure-Requests", "1")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Kind: KindHTTPStatus, Status: resp.StatusCode, URL: url}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: classifyTransport(err), URL: url, Err: err}
	}

	if blocked(body) {
		return nil, &Error{Kind: KindBlocked, URL: url}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindParse, URL: url, Err: err}
	}
	return doc, nil
}

func classifyTransport(err error) Kind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}

// blocked checks the body for challenge-page markers. Only the first part of
// the body matters: challenge pages are small and markers sit near the top.
func blocked(body []byte) bool {
	head := body
	if len(head) > 64*1024 {
		head = head[:64*1024]
	}
	lower := strings.ToLower(string(head))
	for _, marker := range blockMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
