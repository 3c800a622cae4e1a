// Package netx holds network helpers used for device binding.
package netx

import (
	"net/netip"
	"strings"
)

// TruncateIP reduces an address to the coarse network prefix stored with a
// refresh token: the last IPv4 octet is zeroed (/24) and the last four IPv6
// groups are zeroed (/64). IPv4-mapped IPv6 addresses are treated as IPv4.
// Input that does not parse as an address is returned unchanged.
func TruncateIP(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ip
	}
	addr = addr.Unmap().WithZone("")

	bits := 64
	if addr.Is4() {
		bits = 24
	}

	prefix, err := addr.Prefix(bits)
	if err != nil {
		return ip
	}
	return prefix.Addr().String()
}
