// SPDX-License-Identifier: MIT

package log

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"time"
)

const (
	// maxPartialBytes bounds the unframed tail kept between writes.
	maxPartialBytes = 64 * 1024
	// maxLineBytes bounds a single framed log line.
	maxLineBytes = 16 * 1024
	// recentLogCapacity bounds the in-memory ring served to the dashboard.
	recentLogCapacity = 256
)

// Entry is a parsed structured log line retained for the dashboard.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields"`
}

// BufferMetrics counts lines the buffer had to drop.
type BufferMetrics struct {
	DroppedPartialOverflow uint64
	DroppedTooLargeLines   uint64
	DroppedIrrelevant      uint64
}

// structuredBufferWriter frames the zerolog JSON stream into lines and feeds
// the recent-logs ring. Writes never fail; a malformed or oversized line is
// dropped and counted.
type structuredBufferWriter struct {
	mu      sync.Mutex
	partial bytes.Buffer
}

var (
	ringMu     sync.Mutex
	recentLogs []Entry
	ringStats  BufferMetrics

	bufferWriter = &structuredBufferWriter{}
)

// Buffer returns the writer that feeds the recent-logs ring. Configure tees
// the configured output through it.
func Buffer() io.Writer { return bufferWriter }

func (w *structuredBufferWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)
	for {
		raw := w.partial.Bytes()
		idx := bytes.IndexByte(raw, '\n')
		if idx < 0 {
			break
		}
		line := make([]byte, idx)
		copy(line, raw[:idx])
		w.partial.Next(idx + 1)
		ingestLine(line)
	}

	if w.partial.Len() > maxPartialBytes {
		w.partial.Reset()
		ringMu.Lock()
		ringStats.DroppedPartialOverflow++
		ringMu.Unlock()
	}
	return len(p), nil
}

func ingestLine(line []byte) {
	ringMu.Lock()
	defer ringMu.Unlock()

	if len(line) > maxLineBytes {
		ringStats.DroppedTooLargeLines++
		return
	}

	var fields map[string]any
	if err := json.Unmarshal(line, &fields); err != nil {
		ringStats.DroppedIrrelevant++
		return
	}
	if !relevant(fields) {
		ringStats.DroppedIrrelevant++
		return
	}

	entry := Entry{Fields: fields}
	if lvl, ok := fields["level"].(string); ok {
		entry.Level = lvl
	}
	if msg, ok := fields["message"].(string); ok {
		entry.Message = msg
	}
	if ts, ok := fields["time"].(string); ok {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			entry.Time = parsed
		}
	}

	recentLogs = append(recentLogs, entry)
	if len(recentLogs) > recentLogCapacity {
		recentLogs = recentLogs[len(recentLogs)-recentLogCapacity:]
	}
}

// relevant keeps the lines worth showing on the dashboard: audit entries,
// handled requests, and run/apply/config lifecycle events. Debug noise is
// excluded regardless of component.
func relevant(fields map[string]any) bool {
	if lvl, ok := fields["level"].(string); ok && lvl == "debug" {
		return false
	}
	if comp, ok := fields["component"].(string); ok && comp == "audit" {
		return true
	}
	event, _ := fields["event"].(string)
	if event == "request.handled" {
		return true
	}
	for _, prefix := range []string{"run.", "apply.", "config."} {
		if strings.HasPrefix(event, prefix) {
			return true
		}
	}
	return false
}

// GetRecentLogs returns a copy of the retained entries, oldest first.
func GetRecentLogs() []Entry {
	ringMu.Lock()
	defer ringMu.Unlock()
	out := make([]Entry, len(recentLogs))
	copy(out, recentLogs)
	return out
}

// ClearRecentLogs drops all retained entries.
func ClearRecentLogs() {
	ringMu.Lock()
	defer ringMu.Unlock()
	recentLogs = nil
}

// GetBufferMetrics returns a snapshot of the drop counters.
func GetBufferMetrics() BufferMetrics {
	ringMu.Lock()
	defer ringMu.Unlock()
	return ringStats
}
