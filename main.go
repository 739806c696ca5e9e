// Package main wires the campus-notifier service: a background engine that
// polls the campus announcement feed on a policy-controlled cadence and
// pushes notifications for new announcements, plus an HTTP surface for
// diagnostics and manual triggers.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"time"

	"campus-notifier/creds"
	"campus-notifier/fetch"
	"campus-notifier/notify"
	"campus-notifier/policy"
	"campus-notifier/poll"
	"campus-notifier/sched"
	"campus-notifier/server"
	"campus-notifier/store"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

func main() {
	ctx := context.Background()

	// Initialize structured logger
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	feedURL := os.Getenv("FEED_URL")
	if feedURL == "" {
		logger.Error("FEED_URL environment variable required")
		os.Exit(1)
	}

	// State backend: GCS object when a bucket is configured, local SQLite
	// otherwise.
	var st store.Store
	bucket := os.Getenv("STORAGE_BUCKET")
	if bucket != "" {
		client, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		// The store owns the client; closing the store closes it.
		st = store.NewObject(client, bucket, logger)
		logger.Info("Using object storage backend", "bucket", bucket)
	} else {
		statePath := os.Getenv("STATE_PATH")
		if statePath == "" {
			statePath = "./data/state.db"
			logger.Info("No STATE_PATH set, defaulting to local database", "path", statePath)
		}
		sqliteStore, err := store.NewSQLite(statePath, logger)
		if err != nil {
			logger.Error("Failed to open local database", "path", statePath, "error", err)
			os.Exit(1)
		}
		st = sqliteStore
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn("Failed to close store", "error", err)
		}
	}()

	tokenPath := os.Getenv("TOKEN_PATH")
	if tokenPath == "" {
		tokenPath = "./data/token"
	}
	credStore := creds.NewFileStore(tokenPath, logger)

	title := os.Getenv("NOTIFY_TITLE")
	if title == "" {
		title = notify.DefaultTitle
	}
	dispatcher := notify.New(initProvider(ctx, logger), title, logger)

	pollPolicy := policy.New(os.Getenv("POLL_POLICY"), nil)
	logger.Info("Rate policy selected", "policy", pollPolicy.String())

	fetcher := fetch.New(&http.Client{Timeout: 30 * time.Second}, feedURL, logger)

	cfg := &poll.Config{
		Fetcher:    fetcher,
		Store:      st,
		Dispatcher: dispatcher,
		Creds:      credStore,
		Policy:     pollPolicy,
		Logger:     logger,
		Supported:  notificationsSupported(logger),
	}

	// Scheduler and engine reference each other: the scheduler invokes the
	// engine on each wakeup, the engine registers and unregisters itself as
	// the enable switch flips.
	var engine *poll.Engine
	scheduler := sched.New(os.Getenv("POLL_SCHEDULE"), func() {
		engine.Run(context.Background())
	}, logger)
	cfg.Registrar = scheduler
	engine = poll.New(cfg)

	scheduler.Start()
	defer scheduler.Stop()

	// Re-register on restart when the user left polling enabled.
	if state, err := st.State(ctx); err == nil && state.Enabled {
		if err := scheduler.Register(); err != nil {
			logger.Error("Failed to re-register poll task", "error", err)
			os.Exit(1)
		}
		logger.Info("Polling re-registered from persisted state")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	srv := server.New(&server.Config{Engine: engine, Logger: logger})
	if err := srv.ListenAndServe(port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

// initProvider picks a notification backend: ntfy when a topic is
// configured, Gmail when credentials and a recipient are available, and a
// logging mock otherwise so local development needs no setup.
func initProvider(ctx context.Context, logger *slog.Logger) notify.Provider {
	if topicURL := os.Getenv("NTFY_TOPIC_URL"); topicURL != "" {
		logger.Info("Using ntfy notification provider", "topic", topicURL)
		return notify.NewNtfyProvider(topicURL, os.Getenv("NTFY_TOKEN"), logger)
	}

	if to := os.Getenv("NOTIFY_EMAIL"); to != "" {
		service, err := initGmailService(ctx)
		if err != nil {
			logger.Warn("Failed to initialize Gmail service, using mock notifications", "error", err)
			return notify.NewMockProvider(logger)
		}
		logger.Info("Using Gmail notification provider", "to", to)
		return notify.NewGmailProvider(service, to, logger)
	}

	logger.Info("Mock notification mode enabled (no NTFY_TOPIC_URL or NOTIFY_EMAIL)")
	return notify.NewMockProvider(logger)
}

// notificationsSupported reports whether this environment can deliver
// notifications at all. Defaults to true; NOTIFY_SUPPORTED=false forces the
// unsupported short-circuit for testing restricted environments.
func notificationsSupported(logger *slog.Logger) bool {
	raw := os.Getenv("NOTIFY_SUPPORTED")
	if raw == "" {
		return true
	}
	supported, err := strconv.ParseBool(raw)
	if err != nil {
		logger.Warn("Invalid NOTIFY_SUPPORTED value, assuming supported", "value", raw)
		return true
	}
	return supported
}

// isCloudRun checks if we're running in a GCP environment by querying the metadata server.
func isCloudRun(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://metadata.google.internal/computeMetadata/v1/project/project-id", nil)
	if err != nil {
		return false
	}
	req.Header.Set("Metadata-Flavor", "Google")

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	return resp.StatusCode == http.StatusOK
}

func initGmailService(ctx context.Context) (*gmail.Service, error) {
	// Try explicit credentials first (for local development or specific use cases)
	credsJSON := os.Getenv("GOOGLE_CREDENTIALS_JSON")
	if credsJSON != "" {
		return gmail.NewService(ctx, option.WithCredentialsJSON([]byte(credsJSON)))
	}

	// If running in Cloud Run, use Application Default Credentials (ADC)
	// The service account needs Gmail API access (gmail.send scope)
	if isCloudRun(ctx) {
		return gmail.NewService(ctx)
	}

	// Not in Cloud Run and no explicit credentials
	return nil, errors.New("GOOGLE_CREDENTIALS_JSON required when not running in Cloud Run")
}
