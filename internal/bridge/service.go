// Package bridge wires intake, the event log, dispatch gating, and the
// optional fan-out and archive sinks behind the webhook HTTP surface.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/downstream"
	"github.com/your-org/flixbridge/internal/eventlog"
	"github.com/your-org/flixbridge/internal/intake"
	"github.com/your-org/flixbridge/internal/services"
	"github.com/your-org/flixbridge/pkg/kafka"
	"github.com/your-org/flixbridge/pkg/metrics"
	"github.com/your-org/flixbridge/pkg/storage/objectstore"
)

// ErrArchiveDisabled is returned by Export when no archive sink is wired.
var ErrArchiveDisabled = errors.New("archiving is not enabled")

// Service orchestrates the accept, commit, and fan-out pipeline.
type Service struct {
	intake     *intake.Intake
	store      *eventlog.Store
	dispatcher *downstream.Dispatcher
	publisher  kafka.Publisher    // nil when fan-out is disabled
	archive    objectstore.Client // nil when archiving is disabled
	logger     *zap.Logger
}

type Params struct {
	Intake     *intake.Intake
	Store      *eventlog.Store
	Dispatcher *downstream.Dispatcher
	Publisher  kafka.Publisher
	Archive    objectstore.Client
	Logger     *zap.Logger
}

// WebhookResult is returned to the webhook caller after a payload lands.
type WebhookResult struct {
	EventID       uint64
	CorrelationID string
	Dispatch      []downstream.Decision
}

// NewService constructs the bridge Service.
func NewService(p Params) *Service {
	return &Service{
		intake:     p.Intake,
		store:      p.Store,
		dispatcher: p.Dispatcher,
		publisher:  p.Publisher,
		archive:    p.Archive,
		logger:     p.Logger,
	}
}

// HandleWebhook runs one inbound payload through the pipeline. The payload
// is only acknowledged after it passed shape validation and was durably
// committed; fan-out failures are logged but do not fail the request since
// the event is already on disk.
func (s *Service) HandleWebhook(ctx context.Context, source string, payload any) (*WebhookResult, error) {
	pending, err := s.intake.Accept(payload)
	if err != nil {
		metrics.EventsRejected.WithLabelValues(source).Inc()
		return nil, err
	}
	metrics.EventsAccepted.WithLabelValues(source).Inc()

	id, err := s.intake.Commit(ctx, source, pending)
	if err != nil {
		metrics.StorageErrors.Inc()
		return nil, err
	}
	metrics.EventsCommitted.WithLabelValues(source).Inc()

	s.publishCommitted(ctx, id, source, pending)

	return &WebhookResult{
		EventID:       id,
		CorrelationID: pending.CorrelationID,
		Dispatch:      s.dispatchCommitted(ctx, id, source, pending),
	}, nil
}

// dispatchCommitted runs the committed event through the dispatch gate for
// every dispatch-eligible service.
func (s *Service) dispatchCommitted(ctx context.Context, id uint64, source string, pending *intake.Pending) []downstream.Decision {
	ev := eventlog.Event{ID: id, Source: source}
	if raw, err := json.Marshal(pending.Payload); err == nil {
		ev.Payload = raw
	}
	return []downstream.Decision{
		s.dispatcher.Dispatch(ctx, services.Radarr, ev, pending.Payload),
		s.dispatcher.Dispatch(ctx, services.Qbittorrent, ev, pending.Payload),
	}
}

func (s *Service) publishCommitted(ctx context.Context, id uint64, source string, pending *intake.Pending) {
	if s.publisher == nil {
		return
	}

	raw, err := json.Marshal(pending.Payload)
	if err != nil {
		s.logger.Error("marshal fan-out event", zap.Uint64("event_id", id), zap.Error(err))
		return
	}

	headers := map[string]string{
		"event_id":       fmt.Sprintf("%d", id),
		"event_type":     "release.accepted",
		"correlation_id": pending.CorrelationID,
	}
	if err := s.publisher.Publish(ctx, []byte(source), raw, headers); err != nil {
		s.logger.Error("publish committed event",
			zap.Uint64("event_id", id),
			zap.String("source", source),
			zap.Error(err),
		)
	}
}

// RecentEvents returns up to limit events, newest first.
func (s *Service) RecentEvents(ctx context.Context, limit int) ([]eventlog.Event, error) {
	return s.store.FetchRecent(ctx, limit)
}

// Pending lists in-flight intakes.
func (s *Service) Pending() []*intake.Pending {
	return s.intake.PendingSnapshot()
}

// Readiness reports per-service credential readiness.
func (s *Service) Readiness() []downstream.Readiness {
	return s.dispatcher.Report()
}

// Export snapshots up to limit recent events into the archive and returns
// the object key.
func (s *Service) Export(ctx context.Context, limit int) (string, error) {
	if s.archive == nil {
		return "", ErrArchiveDisabled
	}

	events, err := s.store.FetchRecent(ctx, limit)
	if err != nil {
		return "", err
	}

	data, err := json.Marshal(events)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s.json", time.Now().UTC().Format("2006/01/02"), uuid.NewString())
	if err := s.archive.Archive(ctx, key, data, "application/json"); err != nil {
		return "", fmt.Errorf("archive snapshot: %w", err)
	}

	s.logger.Info("event snapshot archived", zap.String("key", key), zap.Int("events", len(events)))
	return key, nil
}

// Close releases underlying resources.
func (s *Service) Close(ctx context.Context) error {
	if s.publisher != nil {
		if err := s.publisher.Close(ctx); err != nil {
			return err
		}
	}
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			return err
		}
	}
	return s.store.Close()
}
