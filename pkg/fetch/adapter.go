package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gitpulse/gitpulse/pkg/provider"
	"github.com/gitpulse/gitpulse/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for provider requests.
var (
	providerRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_provider_requests_total",
		Help: "Total provider requests by endpoint and status",
	}, []string{"endpoint", "status"})

	providerRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gitpulse_provider_request_duration_seconds",
		Help:    "Provider request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	providerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gitpulse_provider_errors_total",
		Help: "Total normalized provider errors by kind",
	}, []string{"kind"})
)

// errBodySnippetLen bounds how much of a raw body is carried in Error.Cause
// for diagnostics.
const errBodySnippetLen = 256

// maxBodyBytes bounds how much of a response body the adapter will read.
const maxBodyBytes = 8 << 20

// TokenSource supplies the bearer credential for authenticated requests.
// Token issuance (OAuth, app installation, …) happens elsewhere; the
// adapter only attaches whatever credential the source hands out.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed credential.
// An empty StaticToken makes requests anonymously.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// RequestSpec describes one page request against the provider.
type RequestSpec struct {
	// Path is the endpoint path, e.g. "/users/octocat/repos".
	Path string

	// Query carries endpoint-specific parameters.
	Query url.Values

	// Cursor is the opaque continuation returned in Page.NextCursor.
	// When set it overrides Path and Query entirely; the provider hands
	// out full next-page URLs.
	Cursor string

	// PerPage is the page size hint; 0 uses the provider default.
	PerPage int
}

// Page is the successful result of one Fetch: raw external records plus
// the pagination signal.
type Page struct {
	Records    []provider.ExternalRecord
	NextCursor string
	HasMore    bool
}

// Adapter issues single requests against the provider API. It is the only
// component that sees the provider's wire format; everything it returns is
// either a Page of ExternalRecords or a normalized *Error.
type Adapter struct {
	httpClient *http.Client
	config     Config
	logger     zerolog.Logger
}

// Config holds the adapter configuration.
type Config struct {
	// BaseURL is the provider API root, e.g. "https://api.github.com".
	BaseURL string

	// Tokens supplies the bearer credential; nil means anonymous.
	Tokens TokenSource

	// UserAgent header (required by the provider).
	UserAgent string

	// Timeout is the hard per-request timeout.
	Timeout time.Duration

	// Limiter gates requests on the provider's rate-limit budget and is
	// fed from response headers. Optional.
	Limiter *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(baseURL, userAgent string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: userAgent,
		Timeout:   30 * time.Second,
	}
}

// New creates a new provider adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}

	if cfg.UserAgent == "" {
		return nil, fmt.Errorf("user-agent is required")
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	logger := log.With().Str("component", "fetch-adapter").Logger()

	return &Adapter{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		config: cfg,
		logger: logger,
	}, nil
}

// Fetch issues exactly one request for the given spec and returns either a
// decoded page or a normalized error. It never retries; see RetryWithBackoff
// for callers that want retry semantics.
func (a *Adapter) Fetch(ctx context.Context, spec RequestSpec) (*Page, error) {
	endpoint := spec.Path
	if spec.Cursor != "" {
		endpoint = cursorEndpoint(spec.Cursor)
	}

	startTime := time.Now()
	defer func() {
		providerRequestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	if a.config.Limiter != nil {
		allowed, err := a.config.Limiter.ShouldAllowRequest(ctx)
		if err != nil {
			a.logger.Warn().Err(err).Msg("Rate limit check failed, proceeding")
		} else if !allowed {
			a.logger.Warn().
				Str("endpoint", endpoint).
				Msg("Request blocked by rate limit budget")
			providerRequestsTotal.WithLabelValues(endpoint, "budget_blocked").Inc()
			providerErrorsTotal.WithLabelValues(string(KindRateLimited)).Inc()
			return nil, &Error{
				Kind:    KindRateLimited,
				Message: "request blocked: provider rate limit budget exhausted",
			}
		}
	}

	req, err := a.buildRequest(ctx, spec)
	if err != nil {
		providerErrorsTotal.WithLabelValues(string(KindUnknown)).Inc()
		return nil, &Error{Kind: KindUnknown, Message: "build request failed", Cause: err}
	}

	a.logger.Debug().
		Str("endpoint", endpoint).
		Str("url", req.URL.String()).
		Msg("Executing provider request")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		a.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Provider request failed")
		providerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		providerErrorsTotal.WithLabelValues(string(KindNetwork)).Inc()
		return nil, &Error{Kind: KindNetwork, Message: "provider request failed", Cause: err}
	}
	defer resp.Body.Close()

	if a.config.Limiter != nil {
		if err := a.config.Limiter.UpdateFromHeaders(ctx, resp.Header); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to update rate limit budget from headers")
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		providerRequestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		providerErrorsTotal.WithLabelValues(string(KindNetwork)).Inc()
		return nil, &Error{
			Kind:       KindNetwork,
			StatusCode: resp.StatusCode,
			Message:    "read response body failed",
			Cause:      err,
		}
	}

	providerRequestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()

	if resp.StatusCode >= 400 {
		perr := a.normalizeHTTPError(resp, body)
		providerErrorsTotal.WithLabelValues(string(perr.Kind)).Inc()
		a.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Str("kind", string(perr.Kind)).
			Msg("Provider request error")
		return nil, perr
	}

	records, err := provider.DecodeRecords(body)
	if err != nil {
		providerErrorsTotal.WithLabelValues(string(KindParse)).Inc()
		a.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", resp.StatusCode).
			Msg("Provider body is not valid JSON")
		return nil, &Error{
			Kind:       KindParse,
			StatusCode: resp.StatusCode,
			Message:    "provider response is not valid JSON",
			Cause:      fmt.Errorf("body: %s", bodySnippet(body)),
		}
	}

	next := parseNextLink(resp.Header.Get("Link"))

	a.logger.Debug().
		Str("endpoint", endpoint).
		Int("records", len(records)).
		Bool("has_more", next != "").
		Msg("Provider page fetched")

	return &Page{
		Records:    records,
		NextCursor: next,
		HasMore:    next != "",
	}, nil
}

// buildRequest assembles the HTTP request for a spec. A cursor is a full
// next-page URL handed out by the provider and is used verbatim.
func (a *Adapter) buildRequest(ctx context.Context, spec RequestSpec) (*http.Request, error) {
	var target string
	if spec.Cursor != "" {
		target = spec.Cursor
	} else {
		query := url.Values{}
		for k, vs := range spec.Query {
			query[k] = vs
		}
		if spec.PerPage > 0 {
			query.Set("per_page", strconv.Itoa(spec.PerPage))
		}
		target = a.config.BaseURL + spec.Path
		if encoded := query.Encode(); encoded != "" {
			target += "?" + encoded
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", a.config.UserAgent)
	req.Header.Set("Accept", "application/json")

	if a.config.Tokens != nil {
		token, err := a.config.Tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	return req, nil
}

// normalizeHTTPError maps a non-2xx response to a *Error. The body is only
// trusted after checking both that it is JSON and that a "message" field
// exists and is a string; otherwise a snippet of the raw body goes into
// Cause and the message falls back to the HTTP status text.
func (a *Adapter) normalizeHTTPError(resp *http.Response, body []byte) *Error {
	perr := &Error{
		Kind:       classify(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Message:    extractMessage(body, resp.StatusCode),
	}

	if len(body) > 0 {
		perr.Cause = fmt.Errorf("body: %s", bodySnippet(body))
	}

	if perr.Kind == KindRateLimited {
		perr.RetryAfter = parseRetryAfter(resp.Header)
	}

	return perr
}

// extractMessage pulls a human-readable message out of an error body
// without ever assuming its shape. Non-JSON bodies, non-object bodies, and
// objects without a string "message" all fall back to the status text.
func extractMessage(body []byte, status int) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		if msg, ok := payload["message"].(string); ok && msg != "" {
			return msg
		}
	}

	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("provider returned status %d", status)
}

// parseRetryAfter reads the Retry-After header (delay seconds) and falls
// back to X-RateLimit-Reset (epoch seconds) when absent.
func parseRetryAfter(headers http.Header) time.Duration {
	if raw := headers.Get("Retry-After"); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}

	if raw := headers.Get("X-RateLimit-Reset"); raw != "" {
		if epoch, err := strconv.ParseInt(raw, 10, 64); err == nil {
			if until := time.Until(time.Unix(epoch, 0)); until > 0 {
				return until
			}
		}
	}

	return 0
}

// parseNextLink extracts the rel="next" URL from a Link header.
// Returns "" when there is no next page.
func parseNextLink(header string) string {
	if header == "" {
		return ""
	}

	for _, part := range strings.Split(header, ",") {
		segments := strings.Split(part, ";")
		if len(segments) < 2 {
			continue
		}

		target := strings.Trim(strings.TrimSpace(segments[0]), "<>")
		for _, attr := range segments[1:] {
			if strings.TrimSpace(attr) == `rel="next"` {
				return target
			}
		}
	}

	return ""
}

// cursorEndpoint reduces a next-page URL to its path for metric labels,
// keeping label cardinality bounded.
func cursorEndpoint(cursor string) string {
	parsed, err := url.Parse(cursor)
	if err != nil {
		return "cursor"
	}
	return parsed.Path
}

// bodySnippet truncates a raw body for diagnostics.
func bodySnippet(body []byte) string {
	if len(body) > errBodySnippetLen {
		return string(body[:errBodySnippetLen]) + "…"
	}
	return string(body)
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (a *Adapter) SetHTTPClient(client *http.Client) {
	a.httpClient = client
}
