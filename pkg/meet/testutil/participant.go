package testutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"

	"github.com/thesyncim/meettorture/pkg/timing"
)

// Participant is one conference member driven by its own browser.
type Participant struct {
	name   string
	url    string
	client *BrowserClient
}

// Name returns the fixture role of the participant, e.g. "owner".
func (p *Participant) Name() string {
	return p.name
}

// URL returns the conference URL the participant joined.
func (p *Participant) URL() string {
	return p.url
}

// Page returns the participant's page.
func (p *Participant) Page() *rod.Page {
	return p.client.Page()
}

// Client returns the underlying browser.
func (p *Participant) Client() *BrowserClient {
	return p.client
}

// Eval evaluates expr in the participant's page.
func (p *Participant) Eval(ctx context.Context, expr string) (any, error) {
	return p.client.Eval(ctx, expr)
}

// RodEvaluator runs checkpoint expressions in Rod-driven participants.
type RodEvaluator struct{}

var _ timing.Evaluator = RodEvaluator{}

// Eval evaluates expr in s, which must be a *Participant.
func (RodEvaluator) Eval(ctx context.Context, s timing.Session, expr string) (any, error) {
	p, ok := s.(*Participant)
	if !ok {
		return nil, fmt.Errorf("session %q is %T, not a rod participant", s.Name(), s)
	}
	return p.Eval(ctx, expr)
}

// ConferenceURL builds the address of room on base, followed by an
// optional config fragment such as "config.requireDisplayName=false".
func ConferenceURL(base, room, fragment string) string {
	u := strings.TrimRight(base, "/") + "/" + room
	if fragment != "" {
		u += "#" + strings.TrimPrefix(fragment, "#")
	}
	return u
}
