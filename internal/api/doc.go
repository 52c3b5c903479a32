// Package api serves the presence tracker over HTTP.
//
// Routes:
//
//	GET /api/scan          run a scan and list associated clients
//	GET /api/devices/:mac  resolve one MAC to its lease record
//	GET /api/status        per-host connectivity and setup failures
//	GET /api/leases        rebuild and dump the hostname cache
//	GET /api/events        websocket stream of transition and scan events
package api
