package timing

import (
	"context"
	"fmt"
)

// Mode records which connection checkpoints a run measures.
type Mode struct {
	// Attach is true when the application attached to a pre-bound
	// session rather than connecting itself.
	Attach bool

	Connecting ID
	Connected  ID
}

// ModeFor returns the checkpoint pair for a capability flag.
func ModeFor(attach bool) Mode {
	if attach {
		return Mode{Attach: true, Connecting: ConnectionAttaching, Connected: ConnectionAttached}
	}
	return Mode{Connecting: ConnectionConnecting, Connected: ConnectionConnected}
}

// Resolve probes s once for the connection mode and checks that both
// selected columns of m are complete.
func Resolve(ctx context.Context, ev Evaluator, s Session, m Matrix) (Mode, error) {
	res, err := ev.Eval(ctx, s, AttachModeExpr)
	if err != nil {
		return Mode{}, fmt.Errorf("failed to probe connection mode: %w", err)
	}
	attach, err := asBool(res)
	if err != nil {
		return Mode{}, fmt.Errorf("connection mode probe: %w", err)
	}

	mode := ModeFor(attach)
	for _, id := range []ID{mode.Connecting, mode.Connected} {
		if _, err := m.Values(id); err != nil {
			return mode, fmt.Errorf("%s: %w", id, err)
		}
	}
	return mode, nil
}
