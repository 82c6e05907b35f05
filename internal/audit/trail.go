// Package audit records the per-token decision trail: every check verdict
// and accept/reject decision, buffered per token and flushed as one block
// once a final decision is reached. The trail reconstructs any decision post
// hoc without participating in control flow.
package audit

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry is a single timestamped trail line for a token.
type Entry struct {
	TraceID   string
	Timestamp time.Time
	Line      string
}

// Sink receives the buffered entries of one token when the trail flushes.
type Sink interface {
	Write(token common.Address, entries []Entry) error
}

// Trail buffers decision lines per token. A nil *Trail and a Trail with a
// nil sink are both valid and drop everything, so callers never need to
// guard their Add calls.
type Trail struct {
	mu      sync.Mutex
	sink    Sink
	entries map[common.Address][]Entry
	traces  map[common.Address]string
}

// NewTrail creates a trail writing to sink. A nil sink disables the trail.
func NewTrail(sink Sink) *Trail {
	return &Trail{
		sink:    sink,
		entries: make(map[common.Address][]Entry),
		traces:  make(map[common.Address]string),
	}
}

// Add appends a formatted line to the token's buffer.
func (t *Trail) Add(token common.Address, format string, args ...any) {
	if t == nil || t.sink == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	trace, ok := t.traces[token]
	if !ok {
		trace = uuid.New().String()[:16]
		t.traces[token] = trace
	}

	t.entries[token] = append(t.entries[token], Entry{
		TraceID:   trace,
		Timestamp: time.Now().UTC(),
		Line:      fmt.Sprintf(format, args...),
	})
}

// Flush writes the token's buffered entries to the sink and clears them.
func (t *Trail) Flush(token common.Address) {
	if t == nil || t.sink == nil {
		return
	}

	t.mu.Lock()
	entries := t.entries[token]
	delete(t.entries, token)
	delete(t.traces, token)
	t.mu.Unlock()

	if len(entries) == 0 {
		return
	}

	if err := t.sink.Write(token, entries); err != nil {
		log.Error().Err(err).Str("token", token.Hex()).
			Msg("audit: failed to flush trail")
	}
}
