package testutil

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type otherSession struct{}

func (otherSession) Name() string { return "other" }

func TestConferenceURL(t *testing.T) {
	assert.Equal(t, "http://localhost:8080/room1", ConferenceURL("http://localhost:8080/", "room1", ""))
	assert.Equal(t, "http://localhost:8080/room1#config.requireDisplayName=false",
		ConferenceURL("http://localhost:8080", "room1", "config.requireDisplayName=false"))
	assert.Equal(t, "http://h/r#a=b", ConferenceURL("http://h", "r", "#a=b"))
}

func TestNewFixture_Defaults(t *testing.T) {
	_, err := NewFixture(FixtureConfig{})
	assert.Error(t, err, "base URL is required")

	f, err := NewFixture(FixtureConfig{BaseURL: "http://localhost:8080"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(f.Room(), "torture"))
	assert.Equal(t, DefaultFragment, f.cfg.Fragment)
	assert.Equal(t, 30*time.Second, f.cfg.Browser.Timeout)
	assert.Nil(t, f.Owner())
	assert.Nil(t, f.SecondParticipant())
}

func TestNewRoomName_Unique(t *testing.T) {
	assert.NotEqual(t, NewRoomName(), NewRoomName())
}

func TestFixture_SecondaryBeforeStart(t *testing.T) {
	f, err := NewFixture(FixtureConfig{BaseURL: "http://localhost:8080", Room: "r"})
	require.NoError(t, err)
	_, err = f.Secondary(context.Background())
	assert.Error(t, err)
	assert.Error(t, f.Close(otherSession{}))
}

func TestRodEvaluator_RejectsForeignSession(t *testing.T) {
	_, err := RodEvaluator{}.Eval(context.Background(), otherSession{}, "1")
	assert.ErrorContains(t, err, "not a rod participant")
}

func TestBrowserClient_EvalWithoutPage(t *testing.T) {
	c := &BrowserClient{}
	_, err := c.Eval(context.Background(), "1")
	assert.Error(t, err)
	assert.Error(t, c.WaitStable())
	assert.NoError(t, c.Close())
}
