package testutil

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/thesyncim/meettorture/pkg/timing"
)

// Fixture roles.
const (
	RoleOwner             = "owner"
	RoleSecondParticipant = "secondParticipant"
)

// DefaultFragment is appended to every participant URL unless overridden.
const DefaultFragment = "config.requireDisplayName=false"

// FixtureConfig configures a Fixture.
type FixtureConfig struct {
	// BaseURL is the address of the conference application.
	BaseURL string

	// Room is the shared conference room. Empty picks a random one.
	Room string

	// Fragment is the config fragment added to participant URLs.
	Fragment string

	Browser BrowserConfig
	Log     logrus.FieldLogger

	// OwnerSetup, when set, runs right after the owner's page loads,
	// before anyone waits for it to join. Host sign-in goes here.
	OwnerSetup func(ctx context.Context, owner *Participant) error
}

// Fixture manages the owner and the second participant of a conference
// and any extra participants a scenario starts.
type Fixture struct {
	cfg FixtureConfig
	log logrus.FieldLogger

	mu     sync.Mutex
	owner  *Participant
	second *Participant
	extra  map[*Participant]struct{}
}

var _ timing.SessionProvider = (*Fixture)(nil)

// NewFixture returns a Fixture with no participants started.
func NewFixture(cfg FixtureConfig) (*Fixture, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("fixture needs the conference base URL")
	}
	if cfg.Room == "" {
		cfg.Room = NewRoomName()
	}
	if cfg.Fragment == "" {
		cfg.Fragment = DefaultFragment
	}
	if cfg.Browser.Timeout == 0 {
		cfg.Browser = DefaultBrowserConfig()
	}
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	return &Fixture{
		cfg:   cfg,
		log:   cfg.Log.WithField("room", cfg.Room),
		extra: map[*Participant]struct{}{},
	}, nil
}

// NewRoomName returns a fresh room name.
func NewRoomName() string {
	return "torture" + uuid.NewString()[:8]
}

// Room returns the shared room name.
func (f *Fixture) Room() string {
	return f.cfg.Room
}

// BaseURL returns the conference application address.
func (f *Fixture) BaseURL() string {
	return f.cfg.BaseURL
}

// Owner returns the owner, or nil.
func (f *Fixture) Owner() *Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.owner
}

// SecondParticipant returns the second participant, or nil.
func (f *Fixture) SecondParticipant() *Participant {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.second
}

// StartOwner starts the owner in room (the fixture room when empty). An
// empty fragment uses the fixture default. A running owner is replaced.
func (f *Fixture) StartOwner(ctx context.Context, fragment, room string) (*Participant, error) {
	p, err := f.start(ctx, RoleOwner, fragment, room)
	if err != nil {
		return nil, err
	}
	if f.cfg.OwnerSetup != nil {
		if err := f.cfg.OwnerSetup(ctx, p); err != nil {
			p.client.Close()
			return nil, fmt.Errorf("owner setup: %w", err)
		}
	}
	f.mu.Lock()
	old := f.owner
	f.owner = p
	f.mu.Unlock()
	if old != nil {
		f.quit(old)
	}
	return p, nil
}

// StartSecondParticipant starts the second participant in the fixture
// room. A running second participant is replaced.
func (f *Fixture) StartSecondParticipant(ctx context.Context) (*Participant, error) {
	p, err := f.start(ctx, RoleSecondParticipant, "", "")
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	old := f.second
	f.second = p
	f.mu.Unlock()
	if old != nil {
		f.quit(old)
	}
	return p, nil
}

// StartParticipant starts an extra participant. It is not tracked as
// owner or second participant; Quit it when done.
func (f *Fixture) StartParticipant(ctx context.Context, fragment, room string) (*Participant, error) {
	p, err := f.start(ctx, fmt.Sprintf("participant-%s", uuid.NewString()[:4]), fragment, room)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.extra[p] = struct{}{}
	f.mu.Unlock()
	return p, nil
}

func (f *Fixture) start(ctx context.Context, name, fragment, room string) (*Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fragment == "" {
		fragment = f.cfg.Fragment
	}
	if room == "" {
		room = f.cfg.Room
	}
	url := ConferenceURL(f.cfg.BaseURL, room, fragment)

	client, err := NewBrowserClient(f.cfg.Browser)
	if err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	if _, err := client.Navigate(url); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to start %s: %w", name, err)
	}
	f.log.WithFields(logrus.Fields{"participant": name, "url": url}).Info("participant started")
	return &Participant{name: name, url: url, client: client}, nil
}

// Secondary returns the second participant.
func (f *Fixture) Secondary(ctx context.Context) (timing.Session, error) {
	p := f.SecondParticipant()
	if p == nil {
		return nil, errors.New("second participant not started")
	}
	return p, nil
}

// RestartSecondary closes the second participant and starts a new one.
func (f *Fixture) RestartSecondary(ctx context.Context) (timing.Session, error) {
	if p := f.SecondParticipant(); p != nil {
		if err := f.Close(p); err != nil {
			f.log.WithError(err).Warn("failed to close second participant")
		}
	}
	return f.StartSecondParticipant(ctx)
}

// Close hangs up s and closes its browser.
func (f *Fixture) Close(s timing.Session) error {
	p, ok := s.(*Participant)
	if !ok || p == nil {
		return fmt.Errorf("session %T is not a rod participant", s)
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.client.Timeout())
	defer cancel()
	if _, err := p.Eval(ctx, hangupExpr); err != nil {
		f.log.WithError(err).WithField("participant", p.name).Debug("hangup failed")
	}
	return f.quit(p)
}

// Quit closes the browser of p without hanging up first.
func (f *Fixture) Quit(p *Participant) error {
	if p == nil {
		return nil
	}
	return f.quit(p)
}

func (f *Fixture) quit(p *Participant) error {
	f.mu.Lock()
	switch p {
	case f.owner:
		f.owner = nil
	case f.second:
		f.second = nil
	default:
		delete(f.extra, p)
	}
	f.mu.Unlock()

	f.log.WithField("participant", p.name).Info("participant closed")
	return p.client.Close()
}

// CloseAllExceptOwner closes every participant but the owner.
func (f *Fixture) CloseAllExceptOwner() {
	f.mu.Lock()
	var ps []*Participant
	if f.second != nil {
		ps = append(ps, f.second)
	}
	for p := range f.extra {
		ps = append(ps, p)
	}
	f.mu.Unlock()

	for _, p := range ps {
		if err := f.Close(p); err != nil {
			f.log.WithError(err).Warn("failed to close participant")
		}
	}
}

// CloseAll closes every participant.
func (f *Fixture) CloseAll() {
	f.CloseAllExceptOwner()
	if o := f.Owner(); o != nil {
		if err := f.Close(o); err != nil {
			f.log.WithError(err).Warn("failed to close owner")
		}
	}
}

// EnsureTwoParticipants starts whichever of owner and second participant
// is missing and waits until both see each other.
func (f *Fixture) EnsureTwoParticipants(ctx context.Context) error {
	owner := f.Owner()
	if owner == nil {
		var err error
		if owner, err = f.StartOwner(ctx, "", ""); err != nil {
			return err
		}
	}
	if err := WaitForJoined(ctx, owner, DefaultJoinTimeout); err != nil {
		return fmt.Errorf("owner: %w", err)
	}

	second := f.SecondParticipant()
	if second == nil {
		var err error
		if second, err = f.StartSecondParticipant(ctx); err != nil {
			return err
		}
	}
	for _, p := range []*Participant{owner, second} {
		if err := WaitForMembers(ctx, p, 2, DefaultJoinTimeout); err != nil {
			return fmt.Errorf("%s: %w", p.Name(), err)
		}
	}
	return nil
}

// RestartParticipants closes everyone and starts a fresh owner and second
// participant in the fixture room.
func (f *Fixture) RestartParticipants(ctx context.Context) error {
	f.CloseAll()
	return f.EnsureTwoParticipants(ctx)
}
