package timing

import (
	"context"
	"fmt"
)

// Registry is an ordered, immutable catalog of checkpoints together with
// the probes needed to sample them.
type Registry struct {
	checkpoints []Checkpoint
	readyExpr   string
	terminal    []ID
}

// Default returns the registry of conference join checkpoints.
func Default() *Registry {
	r, err := NewRegistry(ReadyExpr, TerminalCheckpoints, registry[:]...)
	if err != nil {
		panic(err)
	}
	return r
}

// Checkpoints returns a copy of the default catalog in order.
func Checkpoints() []Checkpoint {
	return Default().Checkpoints()
}

// NewRegistry validates and builds a registry.
//
// Checkpoint IDs must equal their position. A predecessor must appear
// earlier in the list, which keeps the predecessor graph a forest of
// chains.
func NewRegistry(readyExpr string, terminal []ID, checkpoints ...Checkpoint) (*Registry, error) {
	for i, cp := range checkpoints {
		if int(cp.ID) != i {
			return nil, fmt.Errorf("checkpoint %q: id %d at position %d", cp.Name, cp.ID, i)
		}
		if cp.Predecessor != None && (cp.Predecessor < 0 || cp.Predecessor >= cp.ID) {
			return nil, fmt.Errorf("checkpoint %q: predecessor %d must precede it", cp.Name, cp.Predecessor)
		}
		if cp.Threshold < 0 {
			return nil, fmt.Errorf("checkpoint %q: negative threshold %v", cp.Name, cp.Threshold)
		}
	}
	for _, id := range terminal {
		if id < 0 || int(id) >= len(checkpoints) {
			return nil, fmt.Errorf("terminal checkpoint %d out of range", id)
		}
	}

	cps := make([]Checkpoint, len(checkpoints))
	copy(cps, checkpoints)
	term := make([]ID, len(terminal))
	copy(term, terminal)

	return &Registry{
		checkpoints: cps,
		readyExpr:   readyExpr,
		terminal:    term,
	}, nil
}

// Len returns the number of checkpoints.
func (r *Registry) Len() int {
	return len(r.checkpoints)
}

// Checkpoints returns every checkpoint in registry order.
func (r *Registry) Checkpoints() []Checkpoint {
	out := make([]Checkpoint, len(r.checkpoints))
	copy(out, r.checkpoints)
	return out
}

// Lookup returns the checkpoint for id.
func (r *Registry) Lookup(id ID) (Checkpoint, bool) {
	if id < 0 || int(id) >= len(r.checkpoints) {
		return Checkpoint{}, false
	}
	return r.checkpoints[id], true
}

// Name returns the name of id, falling back to the default catalog name.
func (r *Registry) Name(id ID) string {
	if cp, ok := r.Lookup(id); ok {
		return cp.Name
	}
	return id.String()
}

// ThresholdOf returns the threshold of id in milliseconds.
func (r *Registry) ThresholdOf(id ID) float64 {
	return r.checkpoints[id].Threshold
}

// PredecessorOf returns the declared predecessor of id.
func (r *Registry) PredecessorOf(id ID) (ID, bool) {
	p := r.checkpoints[id].Predecessor
	return p, p != None
}

// Terminal returns the checkpoints that signal a fully recorded trial.
func (r *Registry) Terminal() []ID {
	out := make([]ID, len(r.terminal))
	copy(out, r.terminal)
	return out
}

// Evaluate samples id in session s. ok is false while the application has
// not produced the timestamp yet. Any result that is neither a number nor
// null is ErrMalformedResult.
func (r *Registry) Evaluate(ctx context.Context, ev Evaluator, s Session, id ID) (value float64, ok bool, err error) {
	cp, found := r.Lookup(id)
	if !found {
		return 0, false, fmt.Errorf("unknown checkpoint %d", id)
	}
	res, err := ev.Eval(ctx, s, cp.Expr)
	if err != nil {
		return 0, false, fmt.Errorf("failed to evaluate %s: %w", cp.Name, err)
	}
	value, ok, err = asNumber(res)
	if err != nil {
		return 0, false, fmt.Errorf("%s: %w", cp.Name, err)
	}
	return value, ok, nil
}

// IsReady reports whether every application object the checkpoint
// expressions need exists in s.
func (r *Registry) IsReady(ctx context.Context, ev Evaluator, s Session) (bool, error) {
	res, err := ev.Eval(ctx, s, r.readyExpr)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate readiness probe: %w", err)
	}
	ready, err := asBool(res)
	if err != nil {
		return false, fmt.Errorf("readiness probe: %w", err)
	}
	return ready, nil
}
