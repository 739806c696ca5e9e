package notify

import (
	"context"
	"log/slog"
)

// MockProvider logs notifications instead of delivering them. Used for local
// development and on platforms without a notification surface.
type MockProvider struct {
	logger *slog.Logger
}

// NewMockProvider creates a new mock notification provider.
func NewMockProvider(logger *slog.Logger) *MockProvider {
	return &MockProvider{
		logger: logger,
	}
}

// EnsureChannel records the channel registration.
func (m *MockProvider) EnsureChannel(_ context.Context, id, name, importance string) error {
	m.logger.Debug("MOCK CHANNEL",
		"channel_id", id,
		"name", name,
		"importance", importance)
	return nil
}

// Send logs the notification instead of displaying it.
func (m *MockProvider) Send(_ context.Context, title, body string) error {
	m.logger.Info("MOCK NOTIFICATION",
		"title", title,
		"body", body)
	return nil
}
