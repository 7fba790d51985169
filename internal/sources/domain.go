package sources

import (
	"net"
	"strings"
)

// multiLabelSuffixes are the well-known public suffixes that span two
// labels. Hosts ending in one of these keep three labels; everything else
// keeps two. Hand-maintained on purpose: the matching contract is this
// fixed list, not a full Public Suffix List lookup.
var multiLabelSuffixes = map[string]bool{
	"co.uk":  true,
	"com.au": true,
	"co.nz":  true,
	"co.jp":  true,
	"com.br": true,
	"co.in":  true,
	"com.mx": true,
	"co.za":  true,
	"com.sg": true,
}

// BaseDomain reduces a host to its registrable base domain:
// "www.google-analytics.com" -> "google-analytics.com",
// "a.b.example.co.uk" -> "example.co.uk". IP literals and single-label
// hosts are returned unchanged. Idempotent.
func BaseDomain(host string) string {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if net.ParseIP(host) != nil {
		return host
	}

	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}

	lastTwo := strings.Join(parts[len(parts)-2:], ".")
	if multiLabelSuffixes[lastTwo] && len(parts) >= 3 {
		return strings.Join(parts[len(parts)-3:], ".")
	}
	return lastTwo
}
