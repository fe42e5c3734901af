//go:build e2e

package e2e

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/meettorture/pkg/meet/auth"
	"github.com/thesyncim/meettorture/pkg/meet/testutil"
)

// newFixture returns a fixture for room (random when empty) that closes
// every browser when the test ends.
func newFixture(t *testing.T, room string) *testutil.Fixture {
	t.Helper()
	cfg := testutil.FixtureConfig{
		BaseURL: *meetURL,
		Room:    room,
		Browser: testutil.DefaultBrowserConfig(),
		Log:     log.WithField("test", t.Name()),
	}
	if authCfg != nil {
		cfg.OwnerSetup = func(ctx context.Context, owner *testutil.Participant) error {
			return auth.Authenticate(ctx, owner.Page(), *authCfg, cfg.Log)
		}
	}
	f, err := testutil.NewFixture(cfg)
	require.NoError(t, err)
	t.Cleanup(f.CloseAll)
	return f
}

// startOwner starts the owner and waits for it to join.
func startOwner(ctx context.Context, t *testing.T, f *testutil.Fixture, room string) *testutil.Participant {
	t.Helper()
	owner, err := f.StartOwner(ctx, "", room)
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForJoined(ctx, owner, testutil.DefaultJoinTimeout), "owner join")
	return owner
}
