// Package wrt holds the domain types shared by the router polling engine:
// device records, protocol and mode enums, connectivity status and the
// typed Error taxonomy returned by transports and sessions.
//
// # Error Taxonomy
//
// Every failure talking to a router is an *Error with an ErrorType:
//   - Connection errors (Network, Timeout, ConnectionRefused, DNS) are
//     transient. During scanning they only flip a host OFFLINE.
//   - Auth errors are terminal for the session and surface at setup.
//   - UnexpectedResponse and NoData mean the router answered in a shape we
//     could not use; they are treated like connection errors for status.
//   - Configuration errors are raised before any network I/O.
//
// Use the Is* helpers rather than type switches:
//
//	if wrt.IsAuthError(err) {
//	    fmt.Println(wrt.TroubleshootingHint(err))
//	}
package wrt
