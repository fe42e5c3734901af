//go:build e2e

package e2e

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/thesyncim/meettorture/pkg/meet/testutil"
)

// TestAuthSetupConference signs the owner in as host and checks that a
// second participant can then join without credentials.
func TestAuthSetupConference(t *testing.T) {
	if authCfg == nil {
		t.Skip("no authentication config")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	f := newFixture(t, "")
	owner := startOwner(ctx, t, f, "")

	second, err := f.StartSecondParticipant(ctx)
	require.NoError(t, err)
	require.NoError(t, testutil.WaitForJoined(ctx, second, testutil.DefaultJoinTimeout))
	require.NoError(t, testutil.WaitForMembers(ctx, owner, 2, testutil.DefaultJoinTimeout))

	require.NoError(t, f.RestartParticipants(ctx))
}
