// Package transport fetches raw lease and wireless data from DD-WRT and
// AsusWRT routers.
//
// Three transports implement the same Transport interface:
//
//   - HTTPClient reads the web UI status pages with Basic Auth
//   - SSHClient runs shell commands over golang.org/x/crypto/ssh
//   - TelnetClient drives an interactive telnet login
//
// A transport knows nothing about parsing. It returns the payload bytes
// and classifies failures into *wrt.Error values so callers can tell a
// router that is down from one that rejected the credentials.
//
// Each call is a single attempt. Persistent SSH and telnet sessions are
// cached per host and dropped on the first error.
package transport
