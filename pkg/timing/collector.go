package timing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/meettorture/pkg/timing/internal"
)

// Config holds collection settings.
type Config struct {
	// Trials is the number of conferences joined to gather data.
	Trials int

	// ReadyTimeout bounds the wait for the terminal checkpoints in each
	// trial.
	ReadyTimeout time.Duration

	// PollInterval is the pause between readiness probes.
	PollInterval time.Duration
}

// DefaultConfig returns the settings used by the connection time suite.
func DefaultConfig() Config {
	return Config{
		Trials:       10,
		ReadyTimeout: 10 * time.Second,
		PollInterval: 250 * time.Millisecond,
	}
}

// Option configures a Collector.
type Option func(*Collector) error

// WithTrials overrides the number of trials.
func WithTrials(n int) Option {
	return func(c *Collector) error {
		if n <= 0 {
			return errors.New("trial count must be positive")
		}
		c.config.Trials = n
		return nil
	}
}

// WithReadyTimeout overrides the per-trial wait ceiling.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Collector) error {
		if d <= 0 {
			return errors.New("ready timeout must be positive")
		}
		c.config.ReadyTimeout = d
		return nil
	}
}

// WithPollInterval overrides the readiness polling interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Collector) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		c.config.PollInterval = d
		return nil
	}
}

// WithSink sends every raw sample to s.
func WithSink(s Sink) Option {
	return func(c *Collector) error {
		c.sink = s
		return nil
	}
}

// WithLogger sets the logger for progress messages.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Collector) error {
		c.log = l
		return nil
	}
}

// WithClock replaces the time source used by the readiness wait.
func WithClock(clock internal.Clock) Option {
	return func(c *Collector) error {
		c.clock = clock
		return nil
	}
}

// Collector restarts the measured participant once per trial and samples
// every checkpoint.
type Collector struct {
	registry  *Registry
	evaluator Evaluator
	sessions  SessionProvider
	config    Config
	sink      Sink
	log       logrus.FieldLogger
	clock     internal.Clock
}

// NewCollector creates a Collector. A nil registry means Default().
func NewCollector(r *Registry, ev Evaluator, sp SessionProvider, opts ...Option) (*Collector, error) {
	if r == nil {
		r = Default()
	}
	if ev == nil || sp == nil {
		return nil, errors.New("collector needs an evaluator and a session provider")
	}
	c := &Collector{
		registry:  r,
		evaluator: ev,
		sessions:  sp,
		config:    DefaultConfig(),
		sink:      NopSink{},
		log:       logrus.StandardLogger(),
		clock:     internal.MonotonicClock{},
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Config returns the effective configuration.
func (c *Collector) Config() Config {
	return c.config
}

// Collect runs the configured number of trials.
func (c *Collector) Collect(ctx context.Context) (Matrix, error) {
	return c.CollectTrials(ctx, c.config.Trials)
}

// CollectTrials runs n trials and returns the filled matrix.
//
// A session that cannot be restarted aborts the run. So does a trial
// whose terminal checkpoints are not recorded within ReadyTimeout.
func (c *Collector) CollectTrials(ctx context.Context, n int) (Matrix, error) {
	if n <= 0 {
		return Matrix{}, errors.New("trial count must be positive")
	}
	m := NewMatrix(c.registry.Len(), n)

	for trial := 0; trial < n; trial++ {
		if err := ctx.Err(); err != nil {
			return Matrix{}, err
		}

		s, err := c.sessions.RestartSecondary(ctx)
		if err != nil {
			return Matrix{}, fmt.Errorf("trial %d: failed to restart participant: %w", trial, err)
		}

		if err := c.waitForMeasurements(ctx, s); err != nil {
			return Matrix{}, fmt.Errorf("trial %d: %w", trial, err)
		}

		for _, cp := range c.registry.checkpoints {
			v, ok, err := c.registry.Evaluate(ctx, c.evaluator, s, cp.ID)
			if err != nil {
				return Matrix{}, fmt.Errorf("trial %d: %w", trial, err)
			}
			sample := Sample{Value: v, OK: ok}
			m.Set(cp.ID, trial, sample)
			c.sink.Record(cp.Name, trial, sample)
		}
		c.log.WithField("trial", trial).Info("collected connection times")
	}

	for _, cp := range c.registry.checkpoints {
		c.log.WithField("checkpoint", cp.Name).Info(m.FormatColumn(cp.ID))
	}
	return m, nil
}

// waitForMeasurements polls until the application objects exist and the
// terminal checkpoints have been recorded.
func (c *Collector) waitForMeasurements(ctx context.Context, s Session) error {
	deadline := c.clock.Now().Add(c.config.ReadyTimeout)
	for {
		done, err := c.measurementsDone(ctx, s)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if !c.clock.Now().Before(deadline) {
			return fmt.Errorf("%w (waited %v)", ErrReadinessTimeout, c.config.ReadyTimeout)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		c.clock.Sleep(c.config.PollInterval)
	}
}

func (c *Collector) measurementsDone(ctx context.Context, s Session) (bool, error) {
	ready, err := c.registry.IsReady(ctx, c.evaluator, s)
	if err != nil || !ready {
		return false, err
	}
	for _, id := range c.registry.terminal {
		_, ok, err := c.registry.Evaluate(ctx, c.evaluator, s, id)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
