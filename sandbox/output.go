package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// outKey is the stdout convention for structured worker results: a worker
// that wants to return a value prints a single JSON line {"__out": <value>}
// and the executor lifts it out of the stream.
const outKey = "__out"

// extractOut scans stdout for the first JSON line carrying the __out key.
// It returns the extracted value and the stream with that line removed;
// when no such line exists the value is nil and stdout is unchanged.
func extractOut(stdout string) (any, string) {
	if stdout == "" {
		return nil, ""
	}

	var kept []string
	var value any
	found := false
	for _, line := range strings.Split(stdout, "\n") {
		trimmed := strings.TrimSpace(line)
		if !found && trimmed != "" {
			var obj map[string]any
			if err := json.Unmarshal([]byte(trimmed), &obj); err == nil {
				if v, ok := obj[outKey]; ok {
					value = v
					found = true
					continue
				}
			}
		}
		kept = append(kept, line)
	}
	return value, strings.Join(kept, "\n")
}

// cappedBuffer collects worker output up to a byte cap and discards the
// rest, so a runaway worker cannot exhaust memory through its streams.
type cappedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	cap       int
	truncated bool
}

func newCappedBuffer(max int) *cappedBuffer {
	return &cappedBuffer{cap: max}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	room := b.cap - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.truncated {
		return b.buf.String() + "\n[output truncated]"
	}
	return b.buf.String()
}

type printerKey struct{}

// withPrinter attaches a handler output sink to the context.
func withPrinter(ctx context.Context, w *cappedBuffer) context.Context {
	return context.WithValue(ctx, printerKey{}, w)
}

// Print writes a line to the captured stdout of the executing handler.
// Outside an execution it is a no-op, so handlers stay testable on a bare
// context.
func Print(ctx context.Context, args ...any) {
	w, ok := ctx.Value(printerKey{}).(*cappedBuffer)
	if !ok {
		return
	}
	fmt.Fprintln(w, args...)
}
