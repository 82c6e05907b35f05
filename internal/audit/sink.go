package audit

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// FileSink appends flushed trails to a log file, one block per token.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink truncates (or creates) the file at path.
func NewFileSink(path string) (*FileSink, error) {
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		return nil, fmt.Errorf("create checks log %s: %w", path, err)
	}
	return &FileSink{path: path}, nil
}

// Write appends one token's trail as a block headed by the token address.
func (s *FileSink) Write(token common.Address, entries []Entry) error {
	var b strings.Builder
	b.WriteString(token.Hex())
	b.WriteByte('\n')
	for _, e := range entries {
		b.WriteString(e.Timestamp.Format(time.RFC3339Nano))
		b.WriteString(" [")
		b.WriteString(e.TraceID)
		b.WriteString("] ")
		b.WriteString(e.Line)
		b.WriteByte('\n')
	}
	b.WriteString("\n\n")

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(b.String())
	return err
}

// MemorySink collects flushed trails in memory. Test helper.
type MemorySink struct {
	mu     sync.Mutex
	Blocks map[common.Address][]Entry
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{Blocks: make(map[common.Address][]Entry)}
}

// Write stores the flushed entries under the token key.
func (s *MemorySink) Write(token common.Address, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Blocks[token] = append(s.Blocks[token], entries...)
	return nil
}
