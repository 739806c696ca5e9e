package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/codeGROOVE-dev/retry"
)

// NtfyProvider delivers notifications by publishing to an ntfy topic over
// plain HTTP. Topics need no registration, so EnsureChannel only validates
// configuration.
type NtfyProvider struct {
	topicURL string
	token    string
	client   *http.Client
	logger   *slog.Logger
}

// NewNtfyProvider creates a provider publishing to the given topic URL
// (e.g. https://ntfy.sh/campus-notices). The token is optional.
func NewNtfyProvider(topicURL, token string, logger *slog.Logger) *NtfyProvider {
	return &NtfyProvider{
		topicURL: topicURL,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   logger,
	}
}

// EnsureChannel is a no-op beyond configuration validation: ntfy topics are
// created implicitly on first publish.
func (n *NtfyProvider) EnsureChannel(_ context.Context, id, _, _ string) error {
	if n.topicURL == "" {
		return fmt.Errorf("ntfy topic URL not configured (channel %s)", id)
	}
	return nil
}

// Send publishes one notification to the topic.
func (n *NtfyProvider) Send(ctx context.Context, title, body string) error {
	return retry.Do(
		func() error {
			n.logger.Info("ntfy publish starting",
				"method", "POST",
				"topic", n.topicURL,
				"title", title)

			startTime := time.Now()
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(body))
			if err != nil {
				return fmt.Errorf("create request: %w", err)
			}

			req.Header.Set("Title", title)
			req.Header.Set("Priority", "high")
			if n.token != "" {
				req.Header.Set("Authorization", "Bearer "+n.token)
			}

			resp, err := n.client.Do(req)
			duration := time.Since(startTime)

			if err != nil {
				n.logger.Warn("ntfy publish failed, will retry",
					"duration_ms", duration.Milliseconds(),
					"error", err)
				return err
			}
			defer func() {
				if closeErr := resp.Body.Close(); closeErr != nil {
					n.logger.Warn("Failed to close response body", "error", closeErr)
				}
			}()

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				n.logger.Warn("ntfy returned non-2xx status, will retry",
					"status_code", resp.StatusCode)
				return fmt.Errorf("HTTP %d", resp.StatusCode)
			}

			n.logger.Info("ntfy publish completed",
				"duration_ms", duration.Milliseconds(),
				"status", "success")

			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(attempt uint, err error) {
			n.logger.Info("Retrying ntfy publish after error", "attempt", attempt, "error", err)
		}),
	)
}
