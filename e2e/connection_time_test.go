//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/meettorture/pkg/meet/testutil"
	"github.com/thesyncim/meettorture/pkg/timing"
)

// TestConnectionTime restarts the second participant once per trial and
// checks every connection checkpoint against its budget. Collection and
// mode resolution run first. When collection fails the checks are skipped;
// when only resolution fails the checks bound to the mode fail and the
// others still run.
func TestConnectionTime(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(*trials+2)*time.Minute)
	defer cancel()

	f := newFixture(t, "")
	startOwner(ctx, t, f, "")

	ev := testutil.RodEvaluator{}
	collector, err := timing.NewCollector(timing.Default(), ev, f,
		timing.WithTrials(*trials),
		timing.WithSink(timing.NewLogSink(log)),
		timing.WithLogger(log.WithField("test", t.Name())),
	)
	require.NoError(t, err)
	suite := &timing.Suite{
		Collector: collector,
		Verifier:  timing.NewVerifier(nil),
		Evaluator: ev,
		Sessions:  f,
	}

	collectFailed := false
	for _, sc := range timing.Scenarios() {
		sc := sc
		t.Run(sc.Name, func(t *testing.T) {
			if collectFailed {
				t.Skip("connection times were not collected")
			}
			res, err := suite.Run(ctx, sc)
			if sc.Step != timing.StepVerify {
				if err != nil && sc.Step == timing.StepCollect {
					collectFailed = true
				}
				require.NoError(t, err)
				if sc.Step == timing.StepResolveMode {
					t.Logf("mode: connecting=%s connected=%s", suite.Mode().Connecting, suite.Mode().Connected)
				}
				return
			}
			t.Logf("%s: gaps=%v median=%v threshold=%v", res.Name, res.Gaps, res.Median, res.Threshold)
			require.NoError(t, err)
		})
	}
}
