// Package correlation maps protocol request identifiers to the request
// contexts that originated them, so asynchronous reveal events can be
// routed back to the right logical request.
package correlation

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// DefaultCapacity bounds the table when no capacity is configured.
const DefaultCapacity = 1000

// Table is a bounded protocol-request-id → request-context mapping. When
// full, the oldest entry by insertion order is evicted to admit the new
// one; losing the ability to route a very old reveal is an accepted trade
// for bounded memory. Entries are only ever added and taken, never
// refreshed, so the underlying cache's recency order equals insertion
// order and eviction is FIFO.
type Table struct {
	mu     sync.Mutex
	cache  *lru.Cache
	taking bool // suppresses the evict callback during an explicit Take
}

// New creates a Table with the given capacity (DefaultCapacity if <= 0).
func New(capacity int) (*Table, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	t := &Table{}
	// The callback fires synchronously under t.mu, from Add on capacity
	// eviction and from Remove; only the former is worth a warning.
	cache, err := lru.NewWithEvict(capacity, func(key, value any) {
		if t.taking {
			return
		}
		zap.L().Warn("correlation entry evicted before its reveal arrived",
			zap.Any("protocol_request_id", key),
			zap.Any("request_context", value),
		)
	})
	if err != nil {
		return nil, eris.Wrap(err, "correlation: new cache")
	}
	t.cache = cache
	return t, nil
}

// Put registers a protocol request id for later reveal routing, evicting
// the oldest entry first if the table is at capacity.
func (t *Table) Put(protocolRequestID, requestContext string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cache.Add(protocolRequestID, requestContext)
}

// Take atomically looks up and removes the entry for a protocol request
// id. The second return is false if the id was never registered here,
// already taken, or evicted; the caller treats that as a normal outcome.
func (t *Table) Take(protocolRequestID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.cache.Peek(protocolRequestID)
	if !ok {
		return "", false
	}
	t.taking = true
	t.cache.Remove(protocolRequestID)
	t.taking = false
	return v.(string), true
}

// Len returns the number of pending entries.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cache.Len()
}
