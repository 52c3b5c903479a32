// Package logging provides structured logging for wrtpresence.
//
// This package wraps a zap logger with convenience functions. Components
// that need their own name in log output take a *zap.Logger obtained from
// Named and fall back to a Nop logger in tests.
//
// # Log Levels
//
//   - Debug: raw router payloads, per-host poll results
//   - Info: setup results, OFFLINE->ONLINE transitions, cache rebuilds
//   - Warn: ONLINE->OFFLINE transitions
//   - Error: setup failures (authentication, refused connections)
//
// # Configuration
//
// Logging is silent unless a level is passed to Initialize or the
// WRTPRESENCE_LOG_LEVEL environment variable is set:
//
//	if err := logging.Initialize("debug"); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
// Output goes to stderr so that `wrtpresence scan --format json` stays
// machine readable on stdout.
package logging
