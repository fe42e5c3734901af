package timing

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry_Order(t *testing.T) {
	want := []string{
		"INDEX_LOADED", "DOCUMENT_READY",
		"CONNECTION_ATTACHING", "CONNECTION_ATTACHED",
		"CONNECTION_CONNECTING", "CONNECTION_CONNECTED",
		"MUC_JOINED", "SESSION_INITIATE",
		"ICE_CHECKING", "ICE_CONNECTED",
		"AUDIO_RENDER", "VIDEO_RENDER", "DATA_CHANNEL_OPENED",
	}
	r := Default()
	require.Equal(t, len(want), r.Len())
	for i, cp := range r.Checkpoints() {
		assert.Equal(t, ID(i), cp.ID)
		assert.Equal(t, want[i], cp.Name)
		assert.Equal(t, want[i], cp.ID.String())
	}
}

func TestDefaultRegistry_Chains(t *testing.T) {
	r := Default()
	tests := []struct {
		id        ID
		pred      ID
		threshold float64
	}{
		{IndexLoaded, None, 200},
		{DocumentReady, IndexLoaded, 600},
		{ConnectionAttaching, DocumentReady, 500},
		{ConnectionAttached, ConnectionAttaching, 5},
		{ConnectionConnecting, DocumentReady, 500},
		{ConnectionConnected, ConnectionConnecting, 1000},
		{MUCJoined, None, 500},
		{SessionInitiate, MUCJoined, 600},
		{IceChecking, SessionInitiate, 150},
		{IceConnected, IceChecking, 500},
		{AudioRender, IceConnected, 200},
		{VideoRender, IceConnected, 200},
		{DataChannelOpened, IceConnected, 4000},
	}
	for _, tt := range tests {
		t.Run(tt.id.String(), func(t *testing.T) {
			pred, ok := r.PredecessorOf(tt.id)
			assert.Equal(t, tt.pred, pred)
			assert.Equal(t, tt.pred != None, ok)
			assert.Equal(t, tt.threshold, r.ThresholdOf(tt.id))
		})
	}
	assert.Equal(t, []ID{AudioRender, VideoRender, DataChannelOpened}, r.Terminal())
}

func TestNewRegistry_Validation(t *testing.T) {
	_, err := NewRegistry("", nil, Checkpoint{ID: 1, Name: "A"})
	assert.Error(t, err, "id must match position")

	_, err = NewRegistry("", nil,
		Checkpoint{ID: 0, Name: "A", Predecessor: 1},
		Checkpoint{ID: 1, Name: "B", Predecessor: None},
	)
	assert.Error(t, err, "predecessor must come first")

	_, err = NewRegistry("", nil, Checkpoint{ID: 0, Name: "A", Predecessor: 0})
	assert.Error(t, err, "self reference")

	_, err = NewRegistry("", nil, Checkpoint{ID: 0, Name: "A", Predecessor: None, Threshold: -1})
	assert.Error(t, err)

	_, err = NewRegistry("", []ID{3}, Checkpoint{ID: 0, Name: "A", Predecessor: None})
	assert.Error(t, err)
}

func TestCheckpoints_ReturnsCopy(t *testing.T) {
	cps := Checkpoints()
	cps[0].Threshold = 1
	assert.Equal(t, 200.0, Default().ThresholdOf(IndexLoaded))
}

func TestEvaluate_Types(t *testing.T) {
	r := Default()
	app := newFakeApp()
	ctx := context.Background()
	s, err := app.RestartSecondary(ctx)
	require.NoError(t, err)

	app.set(registry[IndexLoaded].Expr, 123.5)
	v, ok, err := r.Evaluate(ctx, app, s, IndexLoaded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 123.5, v)

	_, ok, err = r.Evaluate(ctx, app, s, DocumentReady)
	require.NoError(t, err)
	assert.False(t, ok, "not produced yet")

	app.set(registry[VideoRender].Expr, "soon")
	_, _, err = r.Evaluate(ctx, app, s, VideoRender)
	assert.ErrorIs(t, err, ErrMalformedResult)

	app.set(registry[AudioRender].Expr, true)
	_, _, err = r.Evaluate(ctx, app, s, AudioRender)
	assert.ErrorIs(t, err, ErrMalformedResult)
}

func TestEvaluate_EvaluatorError(t *testing.T) {
	app := newFakeApp()
	ctx := context.Background()
	s, _ := app.RestartSecondary(ctx)
	app.evalErr = errors.New("target closed")

	_, _, err := Default().Evaluate(ctx, app, s, IndexLoaded)
	assert.ErrorContains(t, err, "target closed")
	_, err = Default().IsReady(ctx, app, s)
	assert.ErrorContains(t, err, "target closed")
}

func TestAsNumber(t *testing.T) {
	v, ok, err := asNumber(nil)
	assert.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, v)

	for _, in := range []any{float64(3), float32(3), 3, int64(3)} {
		v, ok, err := asNumber(in)
		assert.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 3.0, v)
	}

	_, _, err = asNumber(map[string]any{})
	assert.ErrorIs(t, err, ErrMalformedResult)
}
