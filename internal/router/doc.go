// Package router owns the per-device polling session.
//
// A Session pairs one configured device (primary host plus optional
// companion access points) with the transport chosen for it. It moves
// through Uninitialized, Probing and then Ready or Failed; Failed is
// terminal and the device is left out of scanning.
//
// Once Ready, every call round-trips through the transport and the parser.
// Transport failures are returned per host and never demote the session:
// tracking ONLINE/OFFLINE is the tracker's job.
package router
