// Package ui renders terminal output for the wrtpresence CLI.
//
// Components:
//
//   - Header: command banner showing operation name and parameters
//   - Result: success/failure/warning boxes; failures carry troubleshooting
//     tips derived from the router error type
//   - RenderClients, RenderHosts, RenderLeases, RenderRecord: listings in
//     detailed (table), compact (tab separated) or json format
//   - WatchModel: a Bubble Tea dashboard that rescans on an interval
//
// Logging is controlled separately via WRTPRESENCE_LOG_LEVEL; when unset zap
// is silent so the styled output stays clean.
package ui
