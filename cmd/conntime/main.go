// Connection time runner.
//
// This tool joins a conference with an owner, then repeatedly restarts a
// second participant and checks that every connection checkpoint it
// records stays within its budget. It prints one verdict per check and
// exits non-zero when any check fails.
//
// Usage:
//
//	go run ./cmd/conntime -url https://meet.example.com -trials 10
//	go run ./cmd/conntime -serve                   # against a local reference server
//	go run ./cmd/conntime -backend webdriver -hub http://localhost:4444/wd/hub -browser firefox
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/thesyncim/meettorture/cmd/meet-server/server"
	"github.com/thesyncim/meettorture/pkg/meet/auth"
	"github.com/thesyncim/meettorture/pkg/meet/testutil"
	"github.com/thesyncim/meettorture/pkg/meet/webdriver"
	"github.com/thesyncim/meettorture/pkg/timing"
)

type options struct {
	url          string
	room         string
	trials       int
	readyTimeout time.Duration
	backend      string
	hub          string
	browser      string
	headless     bool
	authConfig   string
	serve        bool
	attach       bool
}

func main() {
	var o options
	flag.StringVar(&o.url, "url", envOr("MEET_URL", ""), "Conference base URL (env MEET_URL)")
	flag.StringVar(&o.room, "room", "", "Room name (default: random)")
	flag.IntVar(&o.trials, "trials", timing.DefaultConfig().Trials, "Number of trials")
	flag.DurationVar(&o.readyTimeout, "ready-timeout", timing.DefaultConfig().ReadyTimeout, "Per-trial wait for the last checkpoint")
	flag.StringVar(&o.backend, "backend", "rod", "Browser backend: rod or webdriver")
	flag.StringVar(&o.hub, "hub", envOr("SELENIUM_HUB", "http://localhost:4444/wd/hub"), "WebDriver endpoint (webdriver backend)")
	flag.StringVar(&o.browser, "browser", "chrome", "Browser for the webdriver backend: chrome or firefox")
	flag.BoolVar(&o.headless, "headless", true, "Run browsers headless")
	flag.StringVar(&o.authConfig, "auth-config", os.Getenv(auth.ConfigEnv), "Host authentication YAML (env "+auth.ConfigEnv+")")
	flag.BoolVar(&o.serve, "serve", false, "Start a local reference conference server and test against it")
	flag.BoolVar(&o.attach, "attach", false, "With -serve: use pre-bound sessions")
	verbose := flag.Bool("v", false, "Debug logging, including every sample")
	flag.Parse()

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	results, err := run(ctx, o, log)
	if len(results) > 0 {
		printSummary(results)
	}
	if err != nil {
		log.WithError(err).Error("run aborted")
		os.Exit(1)
	}
	for _, r := range results {
		if !r.passed() {
			os.Exit(1)
		}
	}
}

type verdict struct {
	name   string
	result timing.Result
	err    error
	verify bool
}

func (v verdict) passed() bool {
	return v.err == nil
}

func run(ctx context.Context, o options, log *logrus.Logger) ([]verdict, error) {
	if o.serve {
		cfg := server.DefaultConfig()
		cfg.ExternalConnect = o.attach
		cfg.Log = log
		srv, err := server.NewServer(cfg)
		if err != nil {
			return nil, err
		}
		addr, err := srv.Start()
		if err != nil {
			return nil, err
		}
		defer srv.Shutdown(context.Background())
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		o.url = "http://localhost:" + port
	}
	if o.url == "" {
		return nil, errors.New("no conference URL: pass -url, set MEET_URL or use -serve")
	}

	var authCfg *auth.Config
	if o.authConfig != "" {
		cfg, err := auth.Load(o.authConfig)
		if err != nil {
			return nil, err
		}
		authCfg = &cfg
	}

	room := o.room
	if room == "" {
		room = testutil.NewRoomName()
	}
	rlog := log.WithField("room", room)

	var (
		ev       timing.Evaluator
		sessions timing.SessionProvider
		cleanup  func()
		err      error
	)
	switch o.backend {
	case "rod":
		ev, sessions, cleanup, err = rodBackend(ctx, o, room, authCfg, rlog)
	case "webdriver":
		if authCfg != nil {
			return nil, errors.New("host authentication needs the rod backend")
		}
		ev, sessions, cleanup, err = webdriverBackend(o, room, rlog)
	default:
		err = fmt.Errorf("unknown backend %q", o.backend)
	}
	if err != nil {
		return nil, err
	}
	defer cleanup()

	collector, err := timing.NewCollector(timing.Default(), ev, sessions,
		timing.WithTrials(o.trials),
		timing.WithReadyTimeout(o.readyTimeout),
		timing.WithSink(timing.NewLogSink(rlog)),
		timing.WithLogger(rlog),
	)
	if err != nil {
		return nil, err
	}
	suite := &timing.Suite{
		Collector: collector,
		Verifier:  timing.NewVerifier(nil),
		Evaluator: ev,
		Sessions:  sessions,
	}

	var results []verdict
	for _, sc := range timing.Scenarios() {
		res, err := suite.Run(ctx, sc)
		results = append(results, verdict{name: sc.Name, result: res, err: err, verify: sc.Step == timing.StepVerify})
		if err != nil && sc.Step == timing.StepCollect {
			// Every later check reads the collected samples.
			return results, fmt.Errorf("%s: %w", sc.Name, err)
		}
	}
	return results, nil
}

func rodBackend(ctx context.Context, o options, room string, authCfg *auth.Config, log logrus.FieldLogger) (timing.Evaluator, timing.SessionProvider, func(), error) {
	bc := testutil.DefaultBrowserConfig()
	bc.Headless = o.headless
	cfg := testutil.FixtureConfig{
		BaseURL: o.url,
		Room:    room,
		Browser: bc,
		Log:     log,
	}
	if authCfg != nil {
		cfg.OwnerSetup = func(ctx context.Context, owner *testutil.Participant) error {
			return auth.Authenticate(ctx, owner.Page(), *authCfg, log)
		}
	}
	f, err := testutil.NewFixture(cfg)
	if err != nil {
		return nil, nil, nil, err
	}
	owner, err := f.StartOwner(ctx, "", "")
	if err != nil {
		f.CloseAll()
		return nil, nil, nil, err
	}
	if err := testutil.WaitForJoined(ctx, owner, testutil.DefaultJoinTimeout); err != nil {
		f.CloseAll()
		return nil, nil, nil, fmt.Errorf("owner did not join: %w", err)
	}
	return testutil.RodEvaluator{}, f, f.CloseAll, nil
}

func webdriverBackend(o options, room string, log logrus.FieldLogger) (timing.Evaluator, timing.SessionProvider, func(), error) {
	cfg := webdriver.Config{HubURL: o.hub, Browser: o.browser, Headless: o.headless}
	url := testutil.ConferenceURL(o.url, room, testutil.DefaultFragment)
	owner, err := webdriver.Open(cfg, "owner", url)
	if err != nil {
		return nil, nil, nil, err
	}
	if err := owner.WaitForBoolean(webdriver.JoinedExpr, testutil.DefaultJoinTimeout); err != nil {
		owner.Quit()
		return nil, nil, nil, fmt.Errorf("owner did not join: %w", err)
	}
	log.WithField("hub", o.hub).Info("owner joined through webdriver")

	provider := webdriver.NewProvider(cfg, url)
	cleanup := func() {
		if s, err := provider.Secondary(context.Background()); err == nil {
			provider.Close(s)
		}
		owner.Quit()
	}
	return webdriver.Evaluator{}, provider, cleanup, nil
}

func printSummary(results []verdict) {
	fmt.Printf("\n")
	fmt.Printf("Connection Time Checks\n")
	fmt.Printf("======================\n")
	failed := 0
	for _, v := range results {
		if !v.passed() {
			failed++
		}
		if !v.verify {
			fmt.Printf("%-36s %s\n", v.name, checkMark(v.passed()))
			continue
		}
		r := v.result
		line := fmt.Sprintf("%-36s %s  %-22s median=%-8.1f threshold=%-6.0f gaps=%v",
			v.name, checkMark(v.passed()), r.Name, r.Median, r.Threshold, r.Gaps)
		if v.err != nil {
			line += "  (" + v.err.Error() + ")"
		}
		fmt.Println(line)
	}
	fmt.Printf("\n")
	fmt.Printf("Status: %s (%d/%d passed)\n", checkMark(failed == 0), len(results)-failed, len(results))
}

func checkMark(pass bool) string {
	if pass {
		return "PASS"
	}
	return "FAIL"
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
