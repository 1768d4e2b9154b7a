// Package testutil provides testing utilities for GitPulse.
package testutil

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"
)

// MockResponse defines the behavior for a mock provider endpoint.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// MockProvider is a configurable mock source-hosting API for testing.
type MockProvider struct {
	server   *httptest.Server
	mu       sync.RWMutex
	handlers map[string]func(w http.ResponseWriter, r *http.Request)

	// Tracking
	RequestCount    int
	LastRequestPath string
	LastAuthHeader  string
}

// NewMockProvider creates a new mock provider server.
func NewMockProvider() *MockProvider {
	mock := &MockProvider{
		handlers: make(map[string]func(w http.ResponseWriter, r *http.Request)),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.LastRequestPath = r.URL.Path
		mock.LastAuthHeader = r.Header.Get("Authorization")
		mock.mu.Unlock()

		mock.mu.RLock()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.RUnlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockProvider) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockProvider) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.LastRequestPath = ""
	m.LastAuthHeader = ""
}

// SetHandler sets a custom handler for a specific path.
func (m *MockProvider) SetHandler(path string, handler func(w http.ResponseWriter, r *http.Request)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a simple response for a path.
func (m *MockProvider) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}

		for key, value := range resp.Headers {
			w.Header().Set(key, value)
		}

		w.WriteHeader(resp.StatusCode)
		if resp.Body != "" {
			w.Write([]byte(resp.Body))
		}
	})
}

// SetPagedResponse configures a paginated endpoint: each page body is
// served in order, with a Link rel="next" header pointing at the next
// page until the last one.
func (m *MockProvider) SetPagedResponse(path string, pages []string) {
	for i, body := range pages {
		page := i + 1
		pagePath := path
		if page > 1 {
			pagePath = fmt.Sprintf("%s/page/%d", path, page)
		}
		hasNext := page < len(pages)
		nextPath := fmt.Sprintf("%s/page/%d", path, page+1)
		pageBody := body

		m.SetHandler(pagePath, func(w http.ResponseWriter, r *http.Request) {
			setRateLimitHeaders(w.Header(), 4999)
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			if hasNext {
				w.Header().Set("Link",
					fmt.Sprintf(`<%s%s>; rel="next", <%s%s/page/%d>; rel="last"`,
						m.server.URL, nextPath, m.server.URL, path, len(pages)))
			}
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(pageBody))
		})
	}
}

// FailPage replaces one page of a paginated endpoint with resp.
func (m *MockProvider) FailPage(path string, page int, resp MockResponse) {
	pagePath := path
	if page > 1 {
		pagePath = fmt.Sprintf("%s/page/%d", path, page)
	}
	m.SetResponse(pagePath, resp)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockProvider) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// defaultHandler provides a default provider-like response.
func (m *MockProvider) defaultHandler(w http.ResponseWriter, r *http.Request) {
	setRateLimitHeaders(w.Header(), 4999)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`[]`))
}

func setRateLimitHeaders(h http.Header, remaining int) {
	h.Set("X-RateLimit-Limit", "5000")
	h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10))
}

// NewRepoListResponse creates a 200 response with n repository payloads.
func NewRepoListResponse(names ...string) MockResponse {
	body := "["
	for i, name := range names {
		if i > 0 {
			body += ","
		}
		body += fmt.Sprintf(`{"id": %d, "name": %q, "full_name": "octo/%s", "stargazers_count": %d,
			"owner": {"id": 1, "login": "octo", "type": "User"}}`, i+1, name, name, i*10)
	}
	body += "]"

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers: map[string]string{
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "4999",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewAuthErrorResponse creates a 401 Unauthorized response.
func NewAuthErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusUnauthorized,
		Body:       `{"message": "Bad credentials"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewRateLimitResponse creates a 429 Too Many Requests response with a
// Retry-After header.
func NewRateLimitResponse(retryAfterSecs int) MockResponse {
	return MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"message": "API rate limit exceeded"}`,
		Headers: map[string]string{
			"Retry-After":           strconv.Itoa(retryAfterSecs),
			"X-RateLimit-Limit":     "5000",
			"X-RateLimit-Remaining": "0",
			"X-RateLimit-Reset":     strconv.FormatInt(time.Now().Add(time.Hour).Unix(), 10),
			"Content-Type":          "application/json; charset=utf-8",
		},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"message": "Server Error"}`,
		Headers: map[string]string{
			"Content-Type": "application/json; charset=utf-8",
		},
	}
}

// NewMalformedResponse creates a 200 response whose body is not JSON.
func NewMalformedResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       `<html><body>maintenance</body></html>`,
		Headers: map[string]string{
			"Content-Type": "text/html",
		},
	}
}
