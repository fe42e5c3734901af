//go:build e2e

// Package e2e provides the browser torture tests.
//
// These tests are isolated from the standard test suite via build tags.
// They require a Chrome browser (auto-downloaded by Rod if not present)
// and are intended for CI pipelines or explicit local testing.
//
// Running E2E tests against the in-process reference server:
//
//	go test -tags=e2e ./e2e/...
//
// Running them against a deployment:
//
//	go test -tags=e2e ./e2e/... -meet-url https://meet.example.com -trials 10
//
// Optional inputs (flag, then environment):
//   - -max-users / MAX_USERS: occupant limit the max users room enforces plus one
//   - -desktop-sharing-hook / DESKTOP_SHARING_HOOK: script that joins a
//     desktop-sharing participant, given the room URL
//   - -auth-config / MEET_AUTH_CONFIG: host authentication YAML
//
// E2E tests use:
//   - Rod for browser automation (Chrome DevTools Protocol)
//   - cmd/meet-server/server as the local conference
//   - Fixture and BrowserClient from pkg/meet/testutil
//   - the timing suite from pkg/timing
package e2e
