// Package hostcache resolves MAC addresses to hostnames from DHCP leases.
//
// The cache is rebuilt on demand, never incrementally: a lookup miss
// fetches the lease tables of all ONLINE router-mode devices and swaps in
// the new table whole. Readers hold a read lock only long enough to index
// the current map, so a rebuild in progress is never observed half done.
package hostcache
