package peer

import (
	"net"
	"net/netip"
	"strings"

	"github.com/pion/webrtc/v4"
)

// filteredPrefixes are interface ranges that the remote peer can never
// reach: container and VM bridges, VPN-internal ranges, and link-local.
var filteredPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
}

// IsFilteredAddr reports whether addr lies in a range whose candidates are
// never published.
func IsFilteredAddr(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range filteredPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// IsFilteredCandidate applies IsFilteredAddr to a candidate. Hostnames
// (mDNS) are never filtered.
func IsFilteredCandidate(c Candidate) bool {
	addr, err := netip.ParseAddr(c.Address)
	if err != nil {
		addr = CandidateAddr(c.Init)
	}
	return addr.IsValid() && IsFilteredAddr(addr)
}

// CandidateAddr extracts the connection address from an SDP candidate
// line ("candidate:<foundation> <component> <proto> <priority> <ip> <port>
// typ ..."). It returns the zero Addr if the line has no IP address.
func CandidateAddr(init webrtc.ICECandidateInit) netip.Addr {
	fields := strings.Fields(strings.TrimPrefix(init.Candidate, "a="))
	if len(fields) < 6 {
		return netip.Addr{}
	}
	addr, err := netip.ParseAddr(fields[4])
	if err != nil {
		return netip.Addr{}
	}
	return addr
}

// keepIP is installed as the SettingEngine IP filter so that filtered
// interfaces are not even gathered.
func keepIP(ip net.IP) bool {
	addr, ok := netip.AddrFromSlice(ip)
	return !ok || !IsFilteredAddr(addr)
}
