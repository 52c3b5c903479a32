package wrt

import "strings"

// ouiVendors maps the first three octets of a MAC to a vendor name.
// Only vendors commonly seen on home networks are listed.
var ouiVendors = map[string]string{
	"00:14:bf": "Linksys",
	"00:1a:70": "Linksys",
	"c0:c1:c0": "Linksys",
	"00:1f:c6": "ASUSTek",
	"00:1a:92": "ASUSTek",
	"14:da:e9": "ASUSTek",
	"00:1d:0f": "TP-Link",
	"14:cc:20": "TP-Link",
	"50:c7:bf": "TP-Link",
	"00:1f:33": "Netgear",
	"a0:63:91": "Netgear",
	"5c:b9:01": "Ubiquiti",
	"fc:ec:da": "Ubiquiti",
	"b8:27:eb": "Raspberry Pi",
	"dc:a6:32": "Raspberry Pi",
	"e4:5f:01": "Raspberry Pi",
	"00:25:00": "Apple",
	"28:cf:da": "Apple",
	"3c:15:c2": "Apple",
	"78:31:c1": "Apple",
	"18:65:90": "Samsung",
	"94:35:0a": "Samsung",
	"3c:a9:f4": "Intel",
	"2c:54:91": "Microsoft",
	"18:b4:30": "Nest Labs",
	"44:65:0d": "Amazon",
	"f4:f5:d8": "Google",
}

// Vendor returns the vendor for a normalized MAC, or "" when unknown.
// Locally administered (randomized) addresses report "Private".
func Vendor(mac string) string {
	if len(mac) < 8 {
		return ""
	}
	prefix := strings.ToLower(mac[:8])
	if vendor, ok := ouiVendors[prefix]; ok {
		return vendor
	}

	// Second-least-significant bit of the first octet marks a locally administered address
	switch prefix[1] {
	case '2', '6', 'a', 'e':
		return "Private"
	}
	return ""
}
