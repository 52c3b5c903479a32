package wrt

import (
	"regexp"
	"strings"
)

// macPattern matches six groups of 1-2 hex digits separated by colons
var macPattern = regexp.MustCompile(`^([0-9A-Fa-f]{1,2}:){5}[0-9A-Fa-f]{1,2}$`)

// IsMAC reports whether s (after trimming) is a MAC address in colon notation
func IsMAC(s string) bool {
	return macPattern.MatchString(strings.TrimSpace(s))
}

// NormalizeMAC returns s as lowercase, colon separated, zero padded octets.
// ok is false when s is not a MAC address.
func NormalizeMAC(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !macPattern.MatchString(s) {
		return "", false
	}

	octets := strings.Split(strings.ToLower(s), ":")
	for i, o := range octets {
		if len(o) == 1 {
			octets[i] = "0" + o
		}
	}
	return strings.Join(octets, ":"), true
}
