package webdriver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tebeka/selenium"

	"github.com/thesyncim/meettorture/pkg/timing"
)

type otherSession struct{}

func (otherSession) Name() string { return "other" }

func TestScript(t *testing.T) {
	assert.Equal(t, "return (APP.connectionTimes['index.loaded']);",
		script("APP.connectionTimes['index.loaded']"))
	assert.Equal(t, "return ("+timing.ReadyExpr+");", script(timing.ReadyExpr))
}

func TestEvaluator_RejectsForeignSession(t *testing.T) {
	_, err := Evaluator{}.Eval(context.Background(), otherSession{}, "1")
	assert.ErrorContains(t, err, "not a webdriver session")
}

func TestOpen_UnsupportedBrowser(t *testing.T) {
	_, err := Open(Config{HubURL: "http://127.0.0.1:1/wd/hub", Browser: "lynx"}, "owner", "http://example.invalid")
	assert.ErrorContains(t, err, "unsupported browser")
}

func TestProvider_SecondaryBeforeStart(t *testing.T) {
	p := NewProvider(Config{Browser: "chrome"}, "http://example.invalid/room")
	_, err := p.Secondary(context.Background())
	assert.Error(t, err)
	assert.Error(t, p.Close(otherSession{}))
}

// fakeDriver answers scripts from a table. Methods it does not override
// panic through the nil embedded interface.
type fakeDriver struct {
	selenium.WebDriver

	results map[string]interface{}
	scripts []string
	url     string
	quits   int
}

func (d *fakeDriver) Get(url string) error {
	d.url = url
	return nil
}

func (d *fakeDriver) ExecuteScript(script string, args []interface{}) (interface{}, error) {
	d.scripts = append(d.scripts, script)
	return d.results[script], nil
}

func (d *fakeDriver) Quit() error {
	d.quits++
	return nil
}

// useFakeRemote makes Open hand out a new fakeDriver per call.
func useFakeRemote(t *testing.T, results map[string]interface{}) *[]*fakeDriver {
	t.Helper()
	var drivers []*fakeDriver
	orig := newRemote
	newRemote = func(caps selenium.Capabilities, hub string) (selenium.WebDriver, error) {
		d := &fakeDriver{results: results}
		drivers = append(drivers, d)
		return d, nil
	}
	t.Cleanup(func() { newRemote = orig })
	return &drivers
}

func TestEvaluator_Eval(t *testing.T) {
	expr := "APP.connectionTimes['index.loaded']"
	drivers := useFakeRemote(t, map[string]interface{}{script(expr): 123.0})

	s, err := Open(Config{HubURL: "http://hub/wd/hub", Browser: "firefox", Headless: true}, "owner", "http://meet/room")
	require.NoError(t, err)
	require.Len(t, *drivers, 1)
	d := (*drivers)[0]
	assert.Equal(t, "http://meet/room", d.url)

	v, err := Evaluator{}.Eval(context.Background(), s, expr)
	require.NoError(t, err)
	assert.Equal(t, 123.0, v)
	assert.Equal(t, []string{"return (APP.connectionTimes['index.loaded']);"}, d.scripts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluator{}.Eval(ctx, s, expr)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, d.scripts, 1)
}

func TestProvider_RestartQuitsPrevious(t *testing.T) {
	drivers := useFakeRemote(t, nil)
	p := NewProvider(Config{Browser: "chrome"}, "http://meet/room")
	ctx := context.Background()

	first, err := p.RestartSecondary(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secondParticipant", first.Name())

	second, err := p.RestartSecondary(ctx)
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	require.Len(t, *drivers, 2)
	assert.Equal(t, 1, (*drivers)[0].quits, "previous participant quit on restart")
	assert.Equal(t, 0, (*drivers)[1].quits)

	cur, err := p.Secondary(ctx)
	require.NoError(t, err)
	assert.Same(t, second, cur)

	require.NoError(t, p.Close(second))
	assert.Equal(t, 1, (*drivers)[1].quits)
	_, err = p.Secondary(ctx)
	assert.Error(t, err, "closed participant is no longer current")
}
