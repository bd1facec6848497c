// Package intake gates untrusted inbound payloads before persistence.
//
// Acceptance and durable storage are deliberately separate steps: Accept
// validates shape and produces a request-scoped Pending value, Commit hands
// that value to the event store. A bounded registry tracks in-flight intakes
// for introspection only; the Pending value itself travels with the request,
// so concurrent intakes never overwrite each other.
package intake

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/eventlog"
)

// ErrNotObject rejects payloads that are not key-value mappings.
var ErrNotObject = errors.New("not a structured object")

// registrySize bounds the introspection registry of in-flight intakes.
const registrySize = 256

// Pending is one accepted-but-not-yet-committed payload.
type Pending struct {
	CorrelationID string         `json:"correlation_id"`
	AcceptedAt    time.Time      `json:"accepted_at"`
	Payload       map[string]any `json:"payload"`
}

// Appender is the slice of the event store the intake needs.
type Appender interface {
	Append(ctx context.Context, source string, payload map[string]any) (uint64, error)
}

// Intake validates payload shape and drives commits into the event store.
type Intake struct {
	store   Appender
	logger  *zap.Logger
	pending *lru.Cache[string, *Pending]
}

// New constructs an Intake over the given store.
func New(store Appender, logger *zap.Logger) (*Intake, error) {
	cache, err := lru.New[string, *Pending](registrySize)
	if err != nil {
		return nil, err
	}
	return &Intake{store: store, logger: logger, pending: cache}, nil
}

// Accept validates that payload is a key-value mapping and wraps it in a
// request-scoped Pending value. No persistence happens here.
func (i *Intake) Accept(payload any) (*Pending, error) {
	obj, ok := payload.(map[string]any)
	if !ok || obj == nil {
		return nil, ErrNotObject
	}

	p := &Pending{
		CorrelationID: uuid.NewString(),
		AcceptedAt:    time.Now().UTC(),
		Payload:       obj,
	}
	i.pending.Add(p.CorrelationID, p)
	return p, nil
}

// Commit appends the pending payload to the event store. A nil pending is a
// no-op. On storage failure the pending value stays registered so the caller
// can retry Commit without losing the payload.
func (i *Intake) Commit(ctx context.Context, source string, p *Pending) (uint64, error) {
	if p == nil {
		return 0, nil
	}

	id, err := i.store.Append(ctx, source, p.Payload)
	if err != nil {
		i.logger.Error("commit failed, pending payload retained",
			zap.String("correlation_id", p.CorrelationID),
			zap.String("source", source),
			zap.Error(err),
		)
		return 0, err
	}

	i.pending.Remove(p.CorrelationID)
	i.logger.Info("payload committed",
		zap.Uint64("event_id", id),
		zap.String("correlation_id", p.CorrelationID),
		zap.String("source", source),
	)
	return id, nil
}

// PendingSnapshot lists in-flight intakes, oldest first.
func (i *Intake) PendingSnapshot() []*Pending {
	keys := i.pending.Keys()
	out := make([]*Pending, 0, len(keys))
	for _, k := range keys {
		if p, ok := i.pending.Peek(k); ok {
			out = append(out, p)
		}
	}
	return out
}

var _ Appender = (*eventlog.Store)(nil)
