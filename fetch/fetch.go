// Package fetch performs the conditional read against the remote
// announcement feed.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"campus-notifier/pkg/notifier"

	"github.com/codeGROOVE-dev/retry"
)

// ErrNotModified indicates the feed has no new content since the freshness
// hint sent with the request. Not a failure.
var ErrNotModified = errors.New("feed not modified")

// ErrAuthExpired indicates the access credential was rejected. The caller
// must purge the stored credential and tell the user to sign in again.
var ErrAuthExpired = errors.New("authentication expired")

// HTTPStatusError indicates a non-success response other than 304/401.
type HTTPStatusError struct {
	Code int
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("HTTP %d", e.Code)
}

// IsHTTPStatusError reports whether err is an HTTPStatusError and returns
// its status code.
func IsHTTPStatusError(err error) (int, bool) {
	var se *HTTPStatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return 0, false
}

type feedResponse struct {
	Articles []notifier.Article `json:"articles"`
}

// Client fetches the announcement feed.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	feedURL    string
}

// New creates a feed client. The http.Client should carry a bounded timeout;
// main wires 30 seconds.
func New(httpClient *http.Client, feedURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		feedURL:    feedURL,
		logger:     logger,
	}
}

// Fetch issues a conditional GET against the feed. A non-nil lastSeenAt adds
// a ?since= query (unix millis) and an If-Modified-Since header; a non-empty
// token adds a Bearer credential. Returns the raw article list on success,
// ErrNotModified on 304, ErrAuthExpired on 401, or an HTTPStatusError for
// any other non-2xx status. Transport and 5xx failures are retried a few
// times within this call; terminal statuses are not.
func (c *Client) Fetch(ctx context.Context, lastSeenAt *time.Time, token string) ([]notifier.Article, error) {
	reqURL, err := c.buildURL(lastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("build feed url: %w", err)
	}

	var articles []notifier.Article

	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
			if err != nil {
				return retry.Unrecoverable(fmt.Errorf("create request: %w", err))
			}
			req.Header.Set("Accept", "application/json")
			if token != "" {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			if lastSeenAt != nil {
				req.Header.Set("If-Modified-Since", lastSeenAt.UTC().Format(http.TimeFormat))
			}

			startTime := time.Now()
			resp, err := c.httpClient.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				c.logger.Warn("Feed request failed, will retry",
					"url", reqURL,
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					c.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			c.logger.Info("Feed request completed",
				"url", reqURL,
				"status_code", resp.StatusCode,
				"duration_ms", duration.Milliseconds())

			switch {
			case resp.StatusCode == http.StatusNotModified:
				return retry.Unrecoverable(ErrNotModified)
			case resp.StatusCode == http.StatusUnauthorized:
				return retry.Unrecoverable(ErrAuthExpired)
			case resp.StatusCode >= 400 && resp.StatusCode < 500:
				return retry.Unrecoverable(&HTTPStatusError{Code: resp.StatusCode})
			case resp.StatusCode < 200 || resp.StatusCode >= 300:
				// Server errors are worth another attempt within this poll.
				return &HTTPStatusError{Code: resp.StatusCode}
			}

			body, err := io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("read feed body: %w", err)
			}

			var decoded feedResponse
			if err := json.Unmarshal(body, &decoded); err != nil {
				return retry.Unrecoverable(fmt.Errorf("decode feed body: %w", err))
			}

			articles = decoded.Articles
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(10*time.Second),
		retry.MaxJitter(2*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Info("Retrying feed fetch after error", "attempt", n, "error", err)
		}),
	)
	if err != nil {
		// Unwrap the sentinel conditions so callers can branch on them
		// without knowing about the retry layer.
		switch {
		case errors.Is(err, ErrNotModified):
			return nil, ErrNotModified
		case errors.Is(err, ErrAuthExpired):
			return nil, ErrAuthExpired
		}
		var se *HTTPStatusError
		if errors.As(err, &se) {
			return nil, se
		}
		return nil, fmt.Errorf("after retries: %w", err)
	}

	c.logger.Info("Feed fetched", "article_count", len(articles))
	return articles, nil
}

func (c *Client) buildURL(lastSeenAt *time.Time) (string, error) {
	u, err := url.Parse(c.feedURL)
	if err != nil {
		return "", err
	}
	if lastSeenAt != nil {
		q := u.Query()
		q.Set("since", strconv.FormatInt(lastSeenAt.UnixMilli(), 10))
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}
