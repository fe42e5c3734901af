package timing

import (
	"context"
	"errors"
	"sync"
)

type fakeSession struct {
	name  string
	trial int
}

func (s *fakeSession) Name() string { return s.name }

// fakeApp answers expressions per trial. Each session restart moves it
// to the next trial.
type fakeApp struct {
	mu sync.Mutex

	// values[expr][trial]; a missing entry evaluates to nil.
	values map[string][]any

	// notReadyPolls is how many readiness probes return false after each
	// restart before the app reports ready.
	notReadyPolls int

	restartErr error
	evalErr    error

	attach   any
	session  *fakeSession
	restarts int
	polls    int
	probes   int
}

func newFakeApp() *fakeApp {
	return &fakeApp{values: map[string][]any{}, attach: false}
}

func (a *fakeApp) set(expr string, vals ...any) {
	a.values[expr] = vals
}

func (a *fakeApp) Secondary(context.Context) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.session == nil {
		return nil, errors.New("no participant")
	}
	return a.session, nil
}

func (a *fakeApp) RestartSecondary(context.Context) (Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.restartErr != nil {
		return nil, a.restartErr
	}
	a.session = &fakeSession{name: "secondParticipant", trial: a.restarts}
	a.restarts++
	a.polls = 0
	return a.session, nil
}

func (a *fakeApp) Close(Session) error { return nil }

func (a *fakeApp) Eval(_ context.Context, s Session, expr string) (any, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.evalErr != nil {
		return nil, a.evalErr
	}
	switch expr {
	case ReadyExpr:
		a.polls++
		return a.polls > a.notReadyPolls, nil
	case AttachModeExpr:
		a.probes++
		return a.attach, nil
	}
	vals, ok := a.values[expr]
	trial := s.(*fakeSession).trial
	if !ok || trial >= len(vals) {
		return nil, nil
	}
	return vals[trial], nil
}

// recordingSink keeps every sample it receives.
type recordingSink struct {
	names  []string
	trials []int
	values []Sample
}

func (r *recordingSink) Record(name string, trial int, s Sample) {
	r.names = append(r.names, name)
	r.trials = append(r.trials, trial)
	r.values = append(r.values, s)
}

// fillDefault gives every checkpoint of the default registry a value in
// each trial so that the whole chain passes.
func fillDefault(a *fakeApp, trials int) {
	base := map[ID]float64{
		IndexLoaded:          100,
		DocumentReady:        400,
		ConnectionAttaching:  500,
		ConnectionAttached:   502,
		ConnectionConnecting: 500,
		ConnectionConnected:  900,
		MUCJoined:            1100,
		SessionInitiate:      1300,
		IceChecking:          1350,
		IceConnected:         1500,
		AudioRender:          1600,
		VideoRender:          1650,
		DataChannelOpened:    2000,
	}
	for _, cp := range Checkpoints() {
		vals := make([]any, trials)
		for i := range vals {
			vals[i] = base[cp.ID] + float64(i)
		}
		a.set(cp.Expr, vals...)
	}
}
