package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"campus-notifier/pkg/notifier"

	"cloud.google.com/go/storage"
	"github.com/codeGROOVE-dev/retry"
)

// stateObject is the bucket object holding the whole durable record.
const stateObject = "poll-state.json"

// stateDocument is the single JSON document the object backend persists.
// State and outcome log travel together so every write is whole-record.
type stateDocument struct {
	State    notifier.PollState     `json:"state"`
	Outcomes []notifier.PollOutcome `json:"outcomes"` // most recent first
}

// objectIO abstracts the raw document bytes behind the store so the
// read-modify-write logic can be exercised without a live bucket.
type objectIO interface {
	// load returns the document bytes, or nil when no document exists yet.
	load(ctx context.Context) ([]byte, error)
	save(ctx context.Context, data []byte) error
	close() error
}

// ObjectStore persists state as one JSON object in a Cloud Storage bucket,
// for deployments where the engine runs on Cloud Run and local disk does not
// survive restarts.
type ObjectStore struct {
	io     objectIO
	logger *slog.Logger

	// mu serializes read-modify-write cycles on the single document. The
	// manual trigger, the cron wakeup, and the delayed test can all write
	// concurrently; without serialization a concurrent append could load
	// the same document twice and lose an entry to the last writer.
	mu sync.Mutex
}

// NewObject creates a bucket-backed store. The store owns the client and
// closes it when the store is closed.
func NewObject(client *storage.Client, bucket string, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{
		io:     &gcsObject{client: client, bucket: bucket, logger: logger},
		logger: logger,
	}
}

// Close releases the underlying storage client.
func (s *ObjectStore) Close() error {
	return s.io.close()
}

// State returns the persisted poll state, or the zero state when the object
// does not exist yet.
func (s *ObjectStore) State(ctx context.Context) (notifier.PollState, error) {
	doc, err := s.load(ctx)
	if err != nil {
		return notifier.PollState{}, err
	}
	return doc.State, nil
}

// SaveState replaces the poll state, preserving the outcome log.
func (s *ObjectStore) SaveState(ctx context.Context, state notifier.PollState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	doc.State = state
	return s.save(ctx, doc)
}

// AppendOutcome prepends the entry and trims the log to MaxOutcomes.
func (s *ObjectStore) AppendOutcome(ctx context.Context, outcome notifier.PollOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	doc.Outcomes = append([]notifier.PollOutcome{outcome}, doc.Outcomes...)
	if len(doc.Outcomes) > MaxOutcomes {
		doc.Outcomes = doc.Outcomes[:MaxOutcomes]
	}
	return s.save(ctx, doc)
}

// Outcomes returns up to limit entries, most recent first.
func (s *ObjectStore) Outcomes(ctx context.Context, limit int) ([]notifier.PollOutcome, error) {
	if limit <= 0 || limit > MaxOutcomes {
		limit = MaxOutcomes
	}
	doc, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if len(doc.Outcomes) > limit {
		return doc.Outcomes[:limit], nil
	}
	return doc.Outcomes, nil
}

// ClearOutcomes empties the log, preserving the poll state.
func (s *ObjectStore) ClearOutcomes(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load(ctx)
	if err != nil {
		return err
	}
	doc.Outcomes = nil
	return s.save(ctx, doc)
}

func (s *ObjectStore) load(ctx context.Context) (stateDocument, error) {
	data, err := s.io.load(ctx)
	if err != nil {
		return stateDocument{}, err
	}
	// Not yet initialized reads as the zero document.
	if data == nil {
		return stateDocument{}, nil
	}

	var doc stateDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return stateDocument{}, fmt.Errorf("unmarshal state: %w", err)
	}
	return doc, nil
}

func (s *ObjectStore) save(ctx context.Context, doc stateDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return s.io.save(ctx, data)
}

// gcsObject reads and writes the state object in a Cloud Storage bucket,
// retrying transient failures within each call.
type gcsObject struct {
	client *storage.Client
	logger *slog.Logger
	bucket string
}

func (g *gcsObject) close() error {
	return g.client.Close()
}

func (g *gcsObject) load(ctx context.Context) ([]byte, error) {
	var data []byte

	err := retry.Do(
		func() error {
			r, openErr := g.client.Bucket(g.bucket).Object(stateObject).NewReader(ctx)
			if openErr != nil {
				if errors.Is(openErr, storage.ErrObjectNotExist) {
					return retry.Unrecoverable(openErr)
				}
				return fmt.Errorf("open state reader: %w", openErr)
			}
			defer func() {
				if closeErr := r.Close(); closeErr != nil {
					g.logger.Warn("Failed to close state reader", "error", closeErr)
				}
			}()

			var readErr error
			data, readErr = io.ReadAll(r)
			if readErr != nil {
				return fmt.Errorf("read state: %w", readErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			g.logger.Info("Retrying state load after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("load state after retries: %w", err)
	}
	return data, nil
}

func (g *gcsObject) save(ctx context.Context, data []byte) error {
	err := retry.Do(
		func() error {
			w := g.client.Bucket(g.bucket).Object(stateObject).NewWriter(ctx)
			if _, writeErr := w.Write(data); writeErr != nil {
				if closeErr := w.Close(); closeErr != nil {
					g.logger.Warn("Failed to close writer after error", "error", closeErr)
				}
				return fmt.Errorf("write state: %w", writeErr)
			}
			if closeErr := w.Close(); closeErr != nil {
				return fmt.Errorf("close state writer: %w", closeErr)
			}
			return nil
		},
		retry.Attempts(3),
		retry.Delay(time.Second),
		retry.MaxDelay(time.Minute),
		retry.MaxJitter(5*time.Second),
		retry.Context(ctx),
		retry.OnRetry(func(n uint, retryErr error) {
			g.logger.Info("Retrying state save after error", "attempt", n, "error", retryErr)
		}),
	)
	if err != nil {
		return fmt.Errorf("save state after retries: %w", err)
	}
	return nil
}
