// Package scraper handles fetching and classifying booking pages from the
// Berlin service portal.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"termin-notifier/pkg/termin"
)

const (
	// DefaultBaseURL is the origin of the booking site.
	DefaultBaseURL = "https://service.berlin.de"

	// maxRedirects bounds the redirect chain per check. The booking flow
	// normally settles within two or three hops.
	maxRedirects = 5

	// sessionCookie must be echoed back on every follow-up request in a
	// redirect chain to preserve the server-side booking-flow state.
	sessionCookie = "Zmsappointment"

	requestTimeout = 30 * time.Second
)

// NetworkError indicates a transport-level failure (connection refused,
// timeout) while walking the redirect chain.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsNetworkError checks if an error is a transport-level failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// HTTPStatusError indicates the final response of a redirect walk carried
// a non-200 status.
type HTTPStatusError struct {
	URL        string
	StatusCode int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.URL)
}

// HTTPStatusCode extracts the status code from an HTTPStatusError.
func HTTPStatusCode(err error) (int, bool) {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	return 0, false
}

// FinalResponse is the last response reached by a redirect walk.
type FinalResponse struct {
	URL          string // URL the final response was fetched from
	Body         []byte
	location     string // Raw Location header, if any
	StatusCode   int
	Redirects    int  // Redirects followed before this response
	MaxRedirects bool // True if the walk stopped at the redirect bound
}

// Scraper checks booking pages for open appointment slots.
type Scraper struct {
	client  *http.Client
	logger  *slog.Logger
	baseURL string
}

// New creates a scraper against the production booking site.
func New(logger *slog.Logger) *Scraper {
	return NewWithBaseURL(DefaultBaseURL, logger)
}

// NewWithBaseURL creates a scraper pointed at an alternate origin. The
// HTTP client never follows redirects on its own: the walker manages the
// session cookie across the chain manually.
func NewWithBaseURL(baseURL string, logger *slog.Logger) *Scraper {
	return &Scraper{
		client: &http.Client{
			Timeout: requestTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		logger:  logger,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// CheckLocation fetches and classifies the booking page for one location.
func (s *Scraper) CheckLocation(ctx context.Context, loc termin.Location) (Classification, error) {
	resp, err := s.Follow(ctx, s.locationURL(loc))
	if err != nil {
		return Classification{}, err
	}

	if resp.StatusCode != http.StatusOK {
		return Classification{}, &HTTPStatusError{URL: resp.URL, StatusCode: resp.StatusCode}
	}

	result := Classify(resp.URL, resp.Body)
	s.logger.Info("Location checked",
		"location_id", loc.ID,
		"location_name", loc.Name,
		"status", result.Status,
		"slot_count", result.SlotCount,
		"reason", result.Reason,
		"redirects", resp.Redirects)
	return result, nil
}

// locationURL builds the booking request URL for a location. Treptow-
// Köpenick keeps the legacy query format the site still serves for it;
// every other location uses the list format.
func (s *Scraper) locationURL(loc termin.Location) string {
	if loc.Template == termin.TemplateSpecial {
		return fmt.Sprintf(
			"%s/terminvereinbarung/termin/tag.php?id=4067&anliegen%%5b%%5d=351180&termin=1&dienstleister=%s&anliegen[]=351180",
			s.baseURL, loc.ID)
	}
	return fmt.Sprintf(
		"%s/terminvereinbarung/termin/tag.php?termin=1&dienstleisterlist=%s&anliegenlist=351180",
		s.baseURL, loc.ID)
}

// Follow issues a GET and walks the redirect chain, echoing the session
// cookie back on each hop. It returns the first non-redirect response, or
// the last response seen if the chain exceeds the redirect bound. It never
// retries: a transport failure aborts the walk with a NetworkError.
func (s *Scraper) Follow(ctx context.Context, startURL string) (*FinalResponse, error) {
	cookies := make(map[string]string)
	currentURL := startURL

	for redirects := 0; ; redirects++ {
		resp, err := s.get(ctx, currentURL, cookies)
		if err != nil {
			return nil, &NetworkError{URL: currentURL, Err: err}
		}
		resp.Redirects = redirects

		next, ok := s.redirectTarget(resp)
		if !ok {
			return resp, nil
		}

		if redirects >= maxRedirects {
			// Soft condition: hand back the last response anyway.
			s.logger.Warn("Max redirects reached", "url", startURL, "redirects", redirects)
			resp.MaxRedirects = true
			return resp, nil
		}

		s.logger.Debug("Following redirect", "from", currentURL, "to", next)
		currentURL = next
	}
}

func (s *Scraper) get(ctx context.Context, pageURL string, cookies map[string]string) (*FinalResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	setBrowserHeaders(req)
	if len(cookies) > 0 {
		var pairs []string
		for name, value := range cookies {
			pairs = append(pairs, name+"="+value)
		}
		req.Header.Set("Cookie", strings.Join(pairs, "; "))
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			s.logger.Warn("Failed to close response body", "error", closeErr)
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	s.logger.Debug("HTTP request completed",
		"url", pageURL,
		"status_code", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
		"body_bytes", len(body))

	// The booking flow rotates its session cookie on most hops; keep the
	// latest value only.
	if value, ok := extractCookie(resp.Header.Values("Set-Cookie"), sessionCookie); ok {
		cookies[sessionCookie] = value
	}

	return &FinalResponse{
		URL:        pageURL,
		StatusCode: resp.StatusCode,
		Body:       body,
		location:   resp.Header.Get("Location"),
	}, nil
}

// redirectTarget reports the absolute URL to follow next, or false if the
// response is final.
func (s *Scraper) redirectTarget(resp *FinalResponse) (string, bool) {
	switch resp.StatusCode {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
	default:
		return "", false
	}
	if resp.location == "" {
		return "", false
	}
	if strings.HasPrefix(resp.location, "http") {
		return resp.location, true
	}
	return s.baseURL + resp.location, true
}

// extractCookie finds the named cookie in Set-Cookie header values,
// truncated at the first attribute separator.
func extractCookie(setCookies []string, name string) (string, bool) {
	prefix := name + "="
	for _, header := range setCookies {
		idx := strings.Index(header, prefix)
		if idx < 0 {
			continue
		}
		value := header[idx+len(prefix):]
		if end := strings.Index(value, ";"); end >= 0 {
			value = value[:end]
		}
		return value, true
	}
	return "", false
}

// setBrowserHeaders applies a Chrome-like header set. The booking site
// rejects requests that do not look like a browser.
func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,de;q=0.8")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Sec-Ch-Ua", `"Google Chrome";v="131", "Chromium";v="131", "Not_A Brand";v="24"`)
	req.Header.Set("Sec-Ch-Ua-Mobile", "?0")
	req.Header.Set("Sec-Ch-Ua-Platform", `"macOS"`)
	req.Header.Set("Sec-Fetch-Dest", "document")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-User", "?1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}
