package testutil

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-rod/rod"
)

const (
	// DefaultJoinTimeout bounds waits for a participant to join a room.
	DefaultJoinTimeout = 20 * time.Second

	pollInterval = 200 * time.Millisecond

	hangupExpr = `(typeof APP !== 'undefined' && APP.conference && APP.conference.hangup) ? (APP.conference.hangup(), true) : false`
)

// WaitForBoolean polls expr in p until it evaluates to true.
// A result that is not a boolean counts as false.
func WaitForBoolean(ctx context.Context, p *Participant, expr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		v, err := p.Eval(ctx, expr)
		if err != nil {
			return fmt.Errorf("failed to evaluate %q: %w", expr, err)
		}
		if b, ok := v.(bool); ok && b {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout waiting for %q (waited %v)", expr, timeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// WaitForElementByXPath waits for an element matching xpath to appear in
// p's page.
func WaitForElementByXPath(ctx context.Context, p *Participant, xpath string, timeout time.Duration) (*rod.Element, error) {
	el, err := p.Page().Context(ctx).Timeout(timeout).ElementX(xpath)
	if err != nil {
		return nil, fmt.Errorf("element %s not found within %v: %w", xpath, timeout, err)
	}
	return el.CancelTimeout(), nil
}

// WaitForJoined waits until p has joined its room.
func WaitForJoined(ctx context.Context, p *Participant, timeout time.Duration) error {
	return WaitForBoolean(ctx, p, `typeof APP !== 'undefined' && !!APP.conference && APP.conference.isJoined()`, timeout)
}

// WaitForMembers waits until p counts n members in the room, itself
// included.
func WaitForMembers(ctx context.Context, p *Participant, n int, timeout time.Duration) error {
	return WaitForBoolean(ctx, p,
		`typeof APP !== 'undefined' && !!APP.conference && APP.conference.membersCount == `+strconv.Itoa(n), timeout)
}

// WaitForIceConnected waits until p's media connection is up.
func WaitForIceConnected(ctx context.Context, p *Participant) error {
	return WaitForBoolean(ctx, p, `APP.conference.isIceConnected()`, 15*time.Second)
}

// WaitForSendReceiveData waits until p both sends and receives media.
func WaitForSendReceiveData(ctx context.Context, p *Participant) error {
	return WaitForBoolean(ctx, p, `(function() {
		const stats = APP.conference.getStats();
		return !!stats && stats.bitrate.upload > 0 && stats.bitrate.download > 0;
	})()`, 15*time.Second)
}

// WaitForRemoteStreams waits until p receives at least n remote streams.
func WaitForRemoteStreams(ctx context.Context, p *Participant, n int) error {
	return WaitForBoolean(ctx, p,
		`APP.conference.getRemoteStreamCount() >= `+strconv.Itoa(n), 15*time.Second)
}

// RemoteVideoType returns the video type ("camera", "desktop") p sees
// for the remote participant id, or "" when unknown.
func RemoteVideoType(ctx context.Context, p *Participant, id string) (string, error) {
	v, err := p.Eval(ctx, `APP.UI.getRemoteVideoType(`+strconv.Quote(id)+`)`)
	if err != nil {
		return "", err
	}
	s, _ := v.(string)
	return s, nil
}
