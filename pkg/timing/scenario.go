package timing

import (
	"context"
	"errors"
	"fmt"
)

// Step is what a scenario does.
type Step int

const (
	// StepCollect gathers the sample matrix.
	StepCollect Step = iota
	// StepResolveMode picks the connecting/connected pair.
	StepResolveMode
	// StepVerify checks one checkpoint against its threshold.
	StepVerify
)

// Role selects a checkpoint that depends on the resolved Mode.
type Role int

const (
	// Fixed uses Scenario.Checkpoint as is.
	Fixed Role = iota
	// Connecting uses Mode.Connecting.
	Connecting
	// Connected uses Mode.Connected.
	Connected
)

// Scenario is one ordered step of the connection time suite.
type Scenario struct {
	Name string
	Step Step

	// Checkpoint and Role pick the checkpoint a StepVerify checks.
	Checkpoint ID
	Role       Role

	// BaselineRole, when not Fixed, overrides the declared predecessor
	// with a mode-dependent checkpoint.
	BaselineRole Role
}

// Scenarios returns the suite in execution order. Collection and mode
// resolution come first; every check after them is independent.
func Scenarios() []Scenario {
	return []Scenario{
		{Name: "collectData", Step: StepCollect},
		{Name: "checkConnectMethodAndValidateData", Step: StepResolveMode},
		{Name: "checkIndexLoaded", Step: StepVerify, Checkpoint: IndexLoaded},
		{Name: "checkDocumentReady", Step: StepVerify, Checkpoint: DocumentReady},
		{Name: "checkConnecting", Step: StepVerify, Role: Connecting},
		{Name: "checkConnected", Step: StepVerify, Role: Connected},
		{Name: "checkMUCJoined", Step: StepVerify, Checkpoint: MUCJoined, BaselineRole: Connected},
		{Name: "checkSessionInitiate", Step: StepVerify, Checkpoint: SessionInitiate},
		{Name: "checkIceChecking", Step: StepVerify, Checkpoint: IceChecking},
		{Name: "checkIceConnected", Step: StepVerify, Checkpoint: IceConnected},
		{Name: "checkAudioRender", Step: StepVerify, Checkpoint: AudioRender},
		{Name: "checkVideoRender", Step: StepVerify, Checkpoint: VideoRender},
		{Name: "checkDataChannelOpen", Step: StepVerify, Checkpoint: DataChannelOpened},
	}
}

// Target returns the checkpoint a StepVerify scenario checks under mode.
func (sc Scenario) Target(mode Mode) ID {
	return pick(sc.Role, sc.Checkpoint, mode)
}

// Baselines returns the baseline override for Verifier.Verify, if any.
func (sc Scenario) Baselines(mode Mode) []ID {
	if sc.BaselineRole == Fixed {
		return nil
	}
	return []ID{pick(sc.BaselineRole, None, mode)}
}

func pick(r Role, fixed ID, mode Mode) ID {
	switch r {
	case Connecting:
		return mode.Connecting
	case Connected:
		return mode.Connected
	default:
		return fixed
	}
}

// Suite carries the state handed from one scenario to the next: the
// matrix from collection and the mode from resolution.
type Suite struct {
	Collector *Collector
	Verifier  *Verifier
	Evaluator Evaluator
	Sessions  SessionProvider

	matrix     Matrix
	collected  bool
	mode       Mode
	resolved   bool
	resolveErr error
}

var (
	// ErrNotCollected is returned by scenarios that run before collection
	// succeeded.
	ErrNotCollected = errors.New("connection times were not collected")

	// ErrModeNotResolved is returned by scenarios bound to the connection
	// mode when resolution did not succeed.
	ErrModeNotResolved = errors.New("connection mode was not resolved")
)

// Matrix returns the collected samples.
func (s *Suite) Matrix() Matrix {
	return s.matrix
}

// Mode returns the resolved connection mode.
func (s *Suite) Mode() Mode {
	return s.mode
}

// Run executes one scenario. A StepVerify scenario returns its Result;
// other steps return a zero Result.
func (s *Suite) Run(ctx context.Context, sc Scenario) (Result, error) {
	switch sc.Step {
	case StepCollect:
		m, err := s.Collector.Collect(ctx)
		if err != nil {
			return Result{}, err
		}
		s.matrix, s.collected = m, true
		return Result{}, nil

	case StepResolveMode:
		if !s.collected {
			return Result{}, ErrNotCollected
		}
		sess, err := s.Sessions.Secondary(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("failed to get participant: %w", err)
		}
		mode, err := Resolve(ctx, s.Evaluator, sess, s.matrix)
		s.mode = mode
		if err != nil {
			s.resolveErr = err
			return Result{}, err
		}
		s.resolved, s.resolveErr = true, nil
		return Result{}, nil

	case StepVerify:
		if !s.collected {
			return Result{}, ErrNotCollected
		}
		if !s.resolved && (sc.Role != Fixed || sc.BaselineRole != Fixed) {
			if s.resolveErr != nil {
				return Result{}, fmt.Errorf("%w: %w", ErrModeNotResolved, s.resolveErr)
			}
			return Result{}, ErrModeNotResolved
		}
		res := s.Verifier.Verify(s.matrix, sc.Target(s.mode), sc.Baselines(s.mode)...)
		return res, res.Err

	default:
		return Result{}, fmt.Errorf("unknown step %d", sc.Step)
	}
}
