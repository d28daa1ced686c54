// Package audit appends structured events to the job store's append log.
// The reveal listener has no synchronous caller, so this log is its only
// user-visible output; every handled event ends here as either a success
// or a clearly tagged error entry.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/jobstore"
	"github.com/arbiter-labs/verdict-cli/internal/model"
)

// Sink records audit events keyed by request context.
type Sink interface {
	Append(ctx context.Context, eventType string, details map[string]any, requestContext string) error
}

// StoreSink persists audit events into the job store and mirrors them to
// the process log.
type StoreSink struct {
	store jobstore.Store
}

// NewStoreSink creates a StoreSink on top of the given store.
func NewStoreSink(store jobstore.Store) *StoreSink {
	return &StoreSink{store: store}
}

func (s *StoreSink) Append(ctx context.Context, eventType string, details map[string]any, requestContext string) error {
	evt := model.AuditEvent{
		ID:             uuid.New().String(),
		Type:           eventType,
		RequestContext: requestContext,
		Details:        details,
		CreatedAt:      time.Now().UTC(),
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return eris.Wrap(err, "audit: marshal event")
	}

	key := jobstore.AuditKey(requestContext, evt.ID, evt.CreatedAt)
	if err := s.store.Put(ctx, key, data); err != nil {
		return eris.Wrapf(err, "audit: append %s", eventType)
	}

	zap.L().Info("audit event",
		zap.String("event_type", eventType),
		zap.String("request_context", requestContext),
		zap.String("event_id", evt.ID),
	)
	return nil
}

// List returns the decoded audit events recorded for a request context,
// oldest first (audit keys are time-ordered).
func List(ctx context.Context, store jobstore.Store, requestContext string) ([]model.AuditEvent, error) {
	keys, err := store.List(ctx, jobstore.AuditPrefix+requestContext+"/")
	if err != nil {
		return nil, eris.Wrap(err, "audit: list")
	}

	events := make([]model.AuditEvent, 0, len(keys))
	for _, key := range keys {
		data, err := store.Get(ctx, key)
		if err != nil {
			return nil, eris.Wrapf(err, "audit: get %s", key)
		}
		if data == nil {
			continue
		}
		var evt model.AuditEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			return nil, eris.Wrapf(err, "audit: decode %s", key)
		}
		events = append(events, evt)
	}
	return events, nil
}
