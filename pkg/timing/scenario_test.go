package timing

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModeFor(t *testing.T) {
	attach := ModeFor(true)
	assert.True(t, attach.Attach)
	assert.Equal(t, ConnectionAttaching, attach.Connecting)
	assert.Equal(t, ConnectionAttached, attach.Connected)

	connect := ModeFor(false)
	assert.False(t, connect.Attach)
	assert.Equal(t, ConnectionConnecting, connect.Connecting)
	assert.Equal(t, ConnectionConnected, connect.Connected)
}

func TestResolve(t *testing.T) {
	ctx := context.Background()

	t.Run("attach", func(t *testing.T) {
		app := newFakeApp()
		app.attach = true
		s, _ := app.RestartSecondary(ctx)
		m := NewMatrix(Default().Len(), 2)
		for i := 0; i < 2; i++ {
			m.Set(ConnectionAttaching, i, Sample{Value: 1, OK: true})
			m.Set(ConnectionAttached, i, Sample{Value: 2, OK: true})
		}

		mode, err := Resolve(ctx, app, s, m)
		require.NoError(t, err)
		assert.Equal(t, ModeFor(true), mode)
		assert.Equal(t, 1, app.probes)
	})

	t.Run("connect with missing sample", func(t *testing.T) {
		app := newFakeApp()
		s, _ := app.RestartSecondary(ctx)
		m := NewMatrix(Default().Len(), 2)
		m.Set(ConnectionConnecting, 0, Sample{Value: 1, OK: true})
		m.Set(ConnectionConnecting, 1, Sample{Value: 1, OK: true})
		m.Set(ConnectionConnected, 0, Sample{Value: 2, OK: true})

		mode, err := Resolve(ctx, app, s, m)
		assert.ErrorIs(t, err, ErrMissingMeasurement)
		assert.Equal(t, ConnectionConnected, mode.Connected)
	})

	t.Run("malformed probe", func(t *testing.T) {
		app := newFakeApp()
		app.attach = "yes"
		s, _ := app.RestartSecondary(ctx)

		_, err := Resolve(ctx, app, s, NewMatrix(Default().Len(), 1))
		assert.ErrorIs(t, err, ErrMalformedResult)
	})
}

func TestScenarios_Order(t *testing.T) {
	var names []string
	for _, sc := range Scenarios() {
		names = append(names, sc.Name)
	}
	assert.Equal(t, []string{
		"collectData",
		"checkConnectMethodAndValidateData",
		"checkIndexLoaded",
		"checkDocumentReady",
		"checkConnecting",
		"checkConnected",
		"checkMUCJoined",
		"checkSessionInitiate",
		"checkIceChecking",
		"checkIceConnected",
		"checkAudioRender",
		"checkVideoRender",
		"checkDataChannelOpen",
	}, names)
}

func TestScenario_Bindings(t *testing.T) {
	byName := map[string]Scenario{}
	for _, sc := range Scenarios() {
		byName[sc.Name] = sc
	}
	attach, connect := ModeFor(true), ModeFor(false)

	assert.Equal(t, ConnectionAttaching, byName["checkConnecting"].Target(attach))
	assert.Equal(t, ConnectionConnecting, byName["checkConnecting"].Target(connect))
	assert.Equal(t, ConnectionAttached, byName["checkConnected"].Target(attach))
	assert.Nil(t, byName["checkConnected"].Baselines(attach))

	muc := byName["checkMUCJoined"]
	assert.Equal(t, MUCJoined, muc.Target(attach))
	assert.Equal(t, []ID{ConnectionAttached}, muc.Baselines(attach))
	assert.Equal(t, []ID{ConnectionConnected}, muc.Baselines(connect))

	assert.Nil(t, byName["checkIceChecking"].Baselines(connect))
}

func TestSuite_RunAll(t *testing.T) {
	app := newFakeApp()
	fillDefault(app, 4)
	c, _ := newTestCollector(t, app, WithTrials(4))
	s := &Suite{Collector: c, Verifier: NewVerifier(nil), Evaluator: app, Sessions: app}
	ctx := context.Background()

	var verdicts int
	for _, sc := range Scenarios() {
		res, err := s.Run(ctx, sc)
		require.NoError(t, err, sc.Name)
		if sc.Step == StepVerify {
			verdicts++
			assert.True(t, res.Passed(), sc.Name)
		}
	}
	assert.Equal(t, 11, verdicts)
	assert.False(t, s.Mode().Attach)
	assert.Equal(t, 1, app.probes, "mode probed exactly once")
}

func TestSuite_FailureDoesNotStopLaterChecks(t *testing.T) {
	app := newFakeApp()
	fillDefault(app, 3)
	// ICE_CHECKING lands 400ms after SESSION_INITIATE, over its 150ms budget.
	app.set(registry[IceChecking].Expr, 1700.0, 1700.0, 1700.0)
	app.set(registry[IceConnected].Expr, 1800.0, 1800.0, 1800.0)
	c, _ := newTestCollector(t, app, WithTrials(3))
	s := &Suite{Collector: c, Verifier: NewVerifier(nil), Evaluator: app, Sessions: app}
	ctx := context.Background()

	failed := map[string]bool{}
	for _, sc := range Scenarios() {
		if _, err := s.Run(ctx, sc); err != nil {
			failed[sc.Name] = true
		}
	}
	assert.Equal(t, map[string]bool{"checkIceChecking": true}, failed)
}

func TestSuite_VerifyBeforeCollect(t *testing.T) {
	s := &Suite{Verifier: NewVerifier(nil)}
	_, err := s.Run(context.Background(), Scenarios()[2])
	assert.ErrorIs(t, err, ErrNotCollected)
}

func TestSuite_ConnectedNeedsResolvedMode(t *testing.T) {
	app := newFakeApp()
	fillDefault(app, 1)
	c, _ := newTestCollector(t, app, WithTrials(1))
	s := &Suite{Collector: c, Verifier: NewVerifier(nil), Evaluator: app, Sessions: app}
	ctx := context.Background()

	_, err := s.Run(ctx, Scenarios()[0])
	require.NoError(t, err)
	_, err = s.Run(ctx, Scenario{Name: "checkConnected", Step: StepVerify, Role: Connected})
	assert.ErrorIs(t, err, ErrModeNotResolved)
}

func TestSuite_FixedChecksRunAfterFailedResolve(t *testing.T) {
	app := newFakeApp()
	fillDefault(app, 2)
	app.set(registry[ConnectionConnected].Expr) // never connected
	c, _ := newTestCollector(t, app, WithTrials(2))
	s := &Suite{Collector: c, Verifier: NewVerifier(nil), Evaluator: app, Sessions: app}
	ctx := context.Background()

	errs := map[string]error{}
	for _, sc := range Scenarios() {
		_, err := s.Run(ctx, sc)
		errs[sc.Name] = err
	}

	require.NoError(t, errs["collectData"])
	resolveErr := errs["checkConnectMethodAndValidateData"]
	require.ErrorIs(t, resolveErr, ErrMissingMeasurement)
	assert.Contains(t, resolveErr.Error(), "CONNECTION_CONNECTED trial 0")

	for _, name := range []string{"checkConnecting", "checkConnected", "checkMUCJoined"} {
		assert.ErrorIs(t, errs[name], ErrModeNotResolved, name)
		assert.ErrorIs(t, errs[name], ErrMissingMeasurement, name)
		assert.NotErrorIs(t, errs[name], ErrNotCollected, name)
	}
	for _, name := range []string{
		"checkIndexLoaded",
		"checkDocumentReady",
		"checkSessionInitiate",
		"checkIceChecking",
		"checkIceConnected",
		"checkAudioRender",
		"checkVideoRender",
		"checkDataChannelOpen",
	} {
		assert.NoError(t, errs[name], name)
	}
}
