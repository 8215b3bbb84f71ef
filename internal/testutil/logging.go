package testutil

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// LogHandler is a slog.Handler that captures records for assertions.
type LogHandler struct {
	mu      *sync.Mutex
	records *[]slog.Record
}

// NewLogHandler returns an empty capturing handler.
func NewLogHandler() *LogHandler {
	return &LogHandler{mu: &sync.Mutex{}, records: &[]slog.Record{}}
}

// Logger returns a logger writing to h.
func (h *LogHandler) Logger() *slog.Logger {
	return slog.New(h)
}

// Enabled implements slog.Handler.
func (h *LogHandler) Enabled(context.Context, slog.Level) bool { return true }

// Handle implements slog.Handler.
func (h *LogHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	*h.records = append(*h.records, r.Clone())
	return nil
}

// WithAttrs implements slog.Handler.
func (h *LogHandler) WithAttrs([]slog.Attr) slog.Handler { return h }

// WithGroup implements slog.Handler.
func (h *LogHandler) WithGroup(string) slog.Handler { return h }

// Messages returns messages logged at level.
func (h *LogHandler) Messages(level slog.Level) []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, r := range *h.records {
		if r.Level == level {
			out = append(out, r.Message)
		}
	}
	return out
}

// Contains reports whether any record message contains substr.
func (h *LogHandler) Contains(substr string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range *h.records {
		if strings.Contains(r.Message, substr) {
			return true
		}
	}
	return false
}

// Count returns the number of records whose message contains substr.
func (h *LogHandler) Count(substr string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, r := range *h.records {
		if strings.Contains(r.Message, substr) {
			n++
		}
	}
	return n
}
