package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/otalk/mod-muc-focus/internal/metrics"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/otalk/mod-muc-focus/internal/bridge")

type correlationEntry struct {
	RequestEntry
	span trace.Span
}

// CorrelationTable is an in-memory mapping from outgoing COLIBRI request
// id to the room and ordered nickname list it was issued for. Entries are
// installed at send time and removed on the first matching reply or room
// destruction. Entries are installed during controller turns and resolved
// from the goroutines that carry COLIBRI round trips, so the mutex guards
// every access.
type CorrelationTable struct {
	mu      sync.Mutex
	entries map[RequestID]*correlationEntry
}

// NewCorrelationTable returns an empty table.
func NewCorrelationTable() *CorrelationTable {
	return &CorrelationTable{entries: make(map[RequestID]*correlationEntry)}
}

// Install records a newly sent COLIBRI request, opening a trace span that
// spans the round trip.
func (t *CorrelationTable) Install(ctx context.Context, id RequestID, entry RequestEntry) {
	_, span := tracer.Start(ctx, "colibri.round_trip",
		trace.WithAttributes(
			attribute.String("focus.room", entry.Room),
			attribute.String("focus.bridge", string(entry.Bridge)),
			attribute.StringSlice("focus.nicknames", entry.Nicknames),
		),
	)

	t.mu.Lock()
	defer t.mu.Unlock()
	entry.IssuedAt = time.Now()
	t.entries[id] = &correlationEntry{RequestEntry: entry, span: span}
	metrics.CorrelationTableSize.Set(float64(len(t.entries)))
}

// Resolve removes and returns the entry for id, ending its span. The
// second return value is false if no entry was found — callers must treat
// a reply with no matching entry as stale and ignore it idempotently.
func (t *CorrelationTable) Resolve(id RequestID) (RequestEntry, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return RequestEntry{}, false
	}
	delete(t.entries, id)
	entry.span.End()
	metrics.CorrelationTableSize.Set(float64(len(t.entries)))
	return entry.RequestEntry, true
}

// Drop removes an entry without treating it as resolved — used on room
// destruction, when any outstanding request for that room becomes moot.
func (t *CorrelationTable) Drop(id RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return
	}
	delete(t.entries, id)
	entry.span.End()
	metrics.CorrelationTableSize.Set(float64(len(t.entries)))
}

// DropRoom removes every outstanding entry belonging to room, called on
// room destruction.
func (t *CorrelationTable) DropRoom(room string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, entry := range t.entries {
		if entry.Room == room {
			delete(t.entries, id)
			entry.span.End()
		}
	}
	metrics.CorrelationTableSize.Set(float64(len(t.entries)))
}

// Len reports the number of outstanding requests.
func (t *CorrelationTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
