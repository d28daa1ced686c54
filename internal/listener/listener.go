// Package listener turns asynchronous on-chain reveal events into
// audit-logged, correlated outcomes. Events may arrive in any order and
// more than once per logical reveal; both are tolerated here.
package listener

import (
	"context"
	"encoding/hex"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/arbiter-labs/verdict-cli/internal/audit"
	"github.com/arbiter-labs/verdict-cli/internal/chain"
	"github.com/arbiter-labs/verdict-cli/internal/correlation"
	"github.com/arbiter-labs/verdict-cli/internal/model"
	"github.com/arbiter-labs/verdict-cli/internal/timelock"
)

// State is the listener lifecycle state.
type State int32

const (
	StateDetached State = iota
	StateAttaching
	StateAttached
	StateAttachFailed
)

func (s State) String() string {
	switch s {
	case StateDetached:
		return "detached"
	case StateAttaching:
		return "attaching"
	case StateAttached:
		return "attached"
	case StateAttachFailed:
		return "attach_failed"
	default:
		return "unknown"
	}
}

// CommitModule is the slice of the commit module the listener depends on:
// attach is only legal once the module is Ready.
type CommitModule interface {
	State() timelock.State
}

// Listener subscribes to reveal events and routes them through the
// correlation table to the audit log.
type Listener struct {
	chain     chain.Client
	committer CommitModule
	table     *correlation.Table
	sink      audit.Sink
	requester string

	mu    sync.Mutex
	state State
	sub   chain.Subscription
	done  chan struct{}
}

// New wires a detached Listener. requester identifies this instance in
// audit entries.
func New(client chain.Client, committer CommitModule, table *correlation.Table, sink audit.Sink, requester string) *Listener {
	return &Listener{
		chain:     client,
		committer: committer,
		table:     table,
		sink:      sink,
		requester: requester,
	}
}

// State reports the current lifecycle state.
func (l *Listener) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Attach subscribes to reveal events. When the commit module is not yet
// Ready this is not an error, merely not yet possible: it returns
// (false, nil) and the caller retries later. Attaching while already
// attached is a no-op.
func (l *Listener) Attach(ctx context.Context) (bool, error) {
	if l.committer.State() != timelock.StateReady {
		return false, nil
	}

	l.mu.Lock()
	if l.state == StateAttached {
		l.mu.Unlock()
		return true, nil
	}
	l.state = StateAttaching
	l.mu.Unlock()

	events := make(chan chain.RevealEvent, 64)
	sub, err := l.chain.SubscribeReveals(ctx, events)

	l.mu.Lock()
	defer l.mu.Unlock()
	if err != nil {
		l.state = StateAttachFailed
		return false, eris.Wrap(err, "listener: attach")
	}
	l.sub = sub
	l.done = make(chan struct{})
	l.state = StateAttached

	go l.run(ctx, events, sub, l.done)
	zap.L().Info("reveal listener attached")
	return true, nil
}

func (l *Listener) run(ctx context.Context, events <-chan chain.RevealEvent, sub chain.Subscription, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case evt := <-events:
			l.HandleReveal(ctx, evt)
		case err := <-sub.Err():
			if err != nil {
				zap.L().Error("reveal subscription failed", zap.Error(err))
			}
			l.mu.Lock()
			l.state = StateDetached
			l.sub = nil
			l.mu.Unlock()
			return
		}
	}
}

// HandleReveal processes one reveal event. A reveal with no correlation
// entry (already processed, evicted, or committed elsewhere) is a normal
// outcome logged at warn level; a payload that fails to decode is logged
// to the audit store with the raw bytes for forensic replay. Neither
// takes down the subscription.
func (l *Listener) HandleReveal(ctx context.Context, evt chain.RevealEvent) {
	id := evt.ProtocolRequestID.String()

	requestContext, ok := l.table.Take(id)
	if !ok {
		zap.L().Warn("unroutable reveal",
			zap.String("protocol_request_id", id),
			zap.String("tx_hash", evt.TxHash.Hex()),
		)
		return
	}

	verdict, err := timelock.DecodeVerdict(evt.Payload)
	if err != nil {
		zap.L().Error("reveal decode failed",
			zap.String("protocol_request_id", id),
			zap.String("request_context", requestContext),
			zap.Error(err),
		)
		l.append(ctx, model.EventRevealDecodeFailed, map[string]any{
			"protocol_request_id": id,
			"raw_payload_hex":     hex.EncodeToString(evt.Payload),
			"tx_hash":             evt.TxHash.Hex(),
			"error":               err.Error(),
		}, requestContext)
		return
	}

	l.append(ctx, model.EventRevealReceived, map[string]any{
		"protocol_request_id": id,
		"revealed_verdict":    verdict,
		"tx_hash":             evt.TxHash.Hex(),
		"requester":           l.requester,
	}, requestContext)
}

func (l *Listener) append(ctx context.Context, eventType string, details map[string]any, requestContext string) {
	if err := l.sink.Append(ctx, eventType, details, requestContext); err != nil {
		zap.L().Error("audit append failed",
			zap.String("event_type", eventType),
			zap.String("request_context", requestContext),
			zap.Error(err),
		)
	}
}

// Detach unsubscribes cleanly. Safe to call when never attached.
func (l *Listener) Detach() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		l.sub.Unsubscribe()
		l.sub = nil
	}
	if l.done != nil {
		close(l.done)
		l.done = nil
	}
	if l.state != StateDetached {
		l.state = StateDetached
		zap.L().Info("reveal listener detached")
	}
}
