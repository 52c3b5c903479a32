// Package parser converts raw router payloads into structured records.
//
// All functions are pure and never return errors: a malformed payload
// degrades to an empty result so one bad response cannot abort a scan.
// The single exception to "empty means nothing" is ParseWirelessClients,
// whose ok flag separates "the router sent no client data" from "no
// clients are associated".
//
// Two payload families are understood:
//
//	Web UI (*.live.asp):  {dhcp_leases:: 'host','192.168.1.2','AA:BB:..','1 day 00:00:00','2'}
//	                      {active_wireless::'AA:BB:..','eth1','0:12:34',...}
//	Shell output:         aa:bb:cc:dd:ee:00,laptop,192.168.1.2,1700000000
//	                      AA:BB:CC:DD:EE:00   (one MAC per line)
package parser
