package fallback

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/nexorch/toolorch/failure"
)

// ErrorRecord is one failure in the planner's history. Records are
// append-only; analysis reads them, nothing mutates them in place.
type ErrorRecord struct {
	// ID is a unique identifier assigned at record time.
	ID string

	// Tool and Action form the correlation key the attempt budget uses.
	Tool   string
	Action string

	// Category is the classified failure category.
	Category failure.Category

	// Message is the failure message as surfaced by the executor.
	Message string

	// Params is a snapshot of the parameters in effect when the failure
	// happened, deep-copied so later mutation cannot rewrite history.
	Params map[string]any

	// Timestamp is when the failure was recorded.
	Timestamp time.Time

	// Attempt is the attempt count for the key after this failure.
	Attempt int
}

func newRecord(tool, action string, category failure.Category, message string, params map[string]any, attempt int) ErrorRecord {
	return ErrorRecord{
		ID:        uuid.NewString(),
		Tool:      tool,
		Action:    action,
		Category:  category,
		Message:   message,
		Params:    copyParams(params),
		Timestamp: time.Now(),
		Attempt:   attempt,
	}
}

// copyParams deep-copies a parameter map. Map and slice values are copied
// recursively; other composite values go through a JSON round trip.
func copyParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case map[string]any:
		return copyParams(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	case string, bool, float64, float32,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		time.Duration:
		return val
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return val
		}
		var copied any
		if err := json.Unmarshal(raw, &copied); err != nil {
			return val
		}
		return copied
	}
}
