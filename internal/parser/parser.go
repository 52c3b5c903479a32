package parser

import (
	"regexp"
	"strings"

	"github.com/muurk/wrtpresence/internal/wrt"
)

// Keys of interest in the DD-WRT status pages
const (
	KeyDHCPLeases     = "dhcp_leases"
	KeyActiveWireless = "active_wireless"
)

// leaseFields is the number of tokens per lease in the web UI lease array:
// hostname, ip, mac, expires, index
const leaseFields = 5

// dataTokenPattern matches {key::value} tokens in DD-WRT *.live.asp pages
var dataTokenPattern = regexp.MustCompile(`\{(\w+)::([^}]*)\}`)

// ParseDataTokens extracts {key::value} tokens from a DD-WRT status page.
// Malformed or absent tokens yield an empty map, never an error.
// When a key repeats, the last value wins.
func ParseDataTokens(page string) map[string]string {
	data := make(map[string]string)
	for _, m := range dataTokenPattern.FindAllStringSubmatch(page, -1) {
		data[m[1]] = m[2]
	}
	return data
}

// ParseHTTPLeases rebuilds the lease table from the web UI's flat lease array.
// Every five tokens form one lease: hostname, ip, mac, expires, index.
// A truncated trailing group and leases with an invalid MAC are dropped.
func ParseHTTPLeases(leases string) map[string]wrt.DeviceRecord {
	cleaned := strings.NewReplacer(`"`, "", `'`, "", " ", "").Replace(leases)
	records := make(map[string]wrt.DeviceRecord)
	if cleaned == "" {
		return records
	}

	elements := strings.Split(cleaned, ",")
	for i := 0; i+leaseFields <= len(elements); i += leaseFields {
		mac, ok := wrt.NormalizeMAC(elements[i+2])
		if !ok {
			continue
		}

		record := wrt.DeviceRecord{MAC: mac, Hostname: hostname(elements[i])}
		record.SetAttr(wrt.AttrIP, elements[i+1])
		record.SetAttr(wrt.AttrLeaseExpires, elements[i+3])
		records[mac] = record
	}
	return records
}

// ParseWirelessClients extracts associated client MACs from the web UI's
// quoted, comma-joined active_wireless list. Tokens that are not MAC
// addresses (interface names, rates, signal levels) are discarded.
//
// ok is false when the input is empty: the router sent no client data,
// which callers must treat as a failed poll rather than "zero clients".
func ParseWirelessClients(activeWireless string) (macs []string, ok bool) {
	trimmed := strings.TrimSpace(activeWireless)
	if trimmed == "" {
		return nil, false
	}

	trimmed = strings.Trim(trimmed, "'")
	return filterMACs(strings.Split(trimmed, "','")), true
}

// ParseMACLines returns the MACs found one per line in command output.
// Lines that are not MAC addresses are discarded.
func ParseMACLines(output string) []string {
	return filterMACs(splitLines(output))
}

// ParseSSHLeases parses shell lease output of the form
// mac,hostname[,ip[,expires]] one lease per line.
func ParseSSHLeases(output string) map[string]wrt.DeviceRecord {
	records := make(map[string]wrt.DeviceRecord)
	for _, line := range splitLines(output) {
		fields := strings.Split(line, ",")
		if len(fields) < 2 {
			continue
		}

		mac, ok := wrt.NormalizeMAC(fields[0])
		if !ok {
			continue
		}

		record := wrt.DeviceRecord{MAC: mac, Hostname: hostname(fields[1])}
		if len(fields) > 2 {
			record.SetAttr(wrt.AttrIP, strings.TrimSpace(fields[2]))
		}
		if len(fields) > 3 {
			record.SetAttr(wrt.AttrLeaseExpires, strings.TrimSpace(fields[3]))
		}
		records[mac] = record
	}
	return records
}

// hostname maps dnsmasq's "*" (no name sent by the client) to empty
func hostname(s string) string {
	s = strings.TrimSpace(s)
	if s == "*" {
		return ""
	}
	return s
}

// filterMACs keeps MAC tokens, normalized, in order of first appearance
func filterMACs(tokens []string) []string {
	macs := make([]string, 0, len(tokens))
	seen := make(map[string]bool, len(tokens))
	for _, token := range tokens {
		mac, ok := wrt.NormalizeMAC(token)
		if !ok || seen[mac] {
			continue
		}
		seen[mac] = true
		macs = append(macs, mac)
	}
	return macs
}

func splitLines(s string) []string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
