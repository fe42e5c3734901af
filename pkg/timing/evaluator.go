package timing

import (
	"context"
	"encoding/json"
	"fmt"
)

// Session is a handle on one participant's browser.
// The timing core never looks inside it; it only passes it back to the
// Evaluator and SessionProvider that produced it.
type Session interface {
	// Name identifies the participant in logs, e.g. "secondParticipant".
	Name() string
}

// Evaluator runs a JavaScript expression inside a session and returns the
// decoded JSON result: nil, bool, float64, string, []any or map[string]any.
type Evaluator interface {
	Eval(ctx context.Context, s Session, expr string) (any, error)
}

// SessionProvider owns participant lifecycles.
type SessionProvider interface {
	// Secondary returns the current measured participant.
	Secondary(ctx context.Context) (Session, error)

	// RestartSecondary closes the measured participant and starts a new
	// one in the same room.
	RestartSecondary(ctx context.Context) (Session, error)

	// Close releases a session.
	Close(s Session) error
}

// asNumber converts an evaluator result into a timestamp.
func asNumber(v any) (float64, bool, error) {
	switch n := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		return n, true, nil
	case float32:
		return float64(n), true, nil
	case int:
		return float64(n), true, nil
	case int64:
		return float64(n), true, nil
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %q", ErrMalformedResult, n)
		}
		return f, true, nil
	default:
		return 0, false, fmt.Errorf("%w: want number or null, got %T", ErrMalformedResult, v)
	}
}

// asBool converts an evaluator result into a probe answer.
func asBool(v any) (bool, error) {
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("%w: want boolean, got %T", ErrMalformedResult, v)
	}
	return b, nil
}
