// Package evidence persists the trace events and receipts an invocation
// produces. The runtime only produces the shapes; callers append them to a
// sink after invoke() returns, and the sink owns the storage schema.
package evidence

import (
	"context"
	"sync"

	"github.com/govlegible/civitas/pkg/core"
	cerr "github.com/govlegible/civitas/pkg/errors"
)

// Sink accepts invocation evidence and answers queries by trace id.
type Sink interface {
	Append(ctx context.Context, events []core.TraceEvent) error
	Record(ctx context.Context, receipt core.Receipt) error
	ByTrace(ctx context.Context, traceID string) ([]core.TraceEvent, error)
	ReceiptByTrace(ctx context.Context, traceID string) (*core.Receipt, error)
}

// MemorySink keeps evidence in memory. Useful for tests and demos.
type MemorySink struct {
	mu       sync.RWMutex
	events   []core.TraceEvent
	receipts map[string]core.Receipt
}

// NewMemorySink creates an empty in-memory sink.
func NewMemorySink() *MemorySink {
	return &MemorySink{receipts: make(map[string]core.Receipt)}
}

// Append implements Sink.
func (s *MemorySink) Append(_ context.Context, events []core.TraceEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, events...)
	return nil
}

// Record implements Sink. Receipts are immutable: recording a second
// receipt for the same trace is refused.
func (s *MemorySink) Record(_ context.Context, receipt core.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.receipts[receipt.TraceID]; exists {
		return cerr.Newf(cerr.CodeIntegrity, "receipt already recorded for trace %q", receipt.TraceID)
	}
	s.receipts[receipt.TraceID] = receipt
	return nil
}

// ByTrace implements Sink.
func (s *MemorySink) ByTrace(_ context.Context, traceID string) ([]core.TraceEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.TraceEvent
	for _, event := range s.events {
		if event.TraceID == traceID {
			out = append(out, event)
		}
	}
	return out, nil
}

// ReceiptByTrace implements Sink.
func (s *MemorySink) ReceiptByTrace(_ context.Context, traceID string) (*core.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	receipt, ok := s.receipts[traceID]
	if !ok {
		return nil, nil
	}
	return &receipt, nil
}
