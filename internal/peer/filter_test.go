package peer

import (
	"net"
	"net/netip"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestIsFilteredAddr(t *testing.T) {
	tests := []struct {
		addr string
		want bool
	}{
		{"10.0.0.1", true},
		{"10.255.255.255", true},
		{"169.254.10.20", true},
		{"172.16.0.1", true},
		{"172.31.255.254", true},
		{"172.32.0.1", false},
		{"172.15.255.255", false},
		{"192.168.1.20", false},
		{"203.0.113.9", false},
		{"127.0.0.1", false},
		{"::ffff:10.1.2.3", true},
		{"2001:db8::1", false},
	}

	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			if got := IsFilteredAddr(netip.MustParseAddr(tt.addr)); got != tt.want {
				t.Errorf("IsFilteredAddr(%s) = %v, want %v", tt.addr, got, tt.want)
			}
		})
	}
}

func TestCandidateAddr(t *testing.T) {
	tests := []struct {
		line string
		want string
	}{
		{"candidate:1 1 udp 2130706431 192.168.1.4 50000 typ host", "192.168.1.4"},
		{"a=candidate:1 1 udp 2130706431 10.0.0.4 50000 typ host", "10.0.0.4"},
		{"candidate:2 1 udp 1694498815 203.0.113.7 61000 typ srflx raddr 10.0.0.4 rport 50000", "203.0.113.7"},
		{"candidate:3 1 udp 2130706431 d1f5c3a0.local 50000 typ host", ""},
		{"candidate:4 1 udp", ""},
	}

	for _, tt := range tests {
		got := CandidateAddr(webrtc.ICECandidateInit{Candidate: tt.line})
		if tt.want == "" {
			if got.IsValid() {
				t.Errorf("CandidateAddr(%q) = %v, want none", tt.line, got)
			}
			continue
		}
		if got.String() != tt.want {
			t.Errorf("CandidateAddr(%q) = %v, want %s", tt.line, got, tt.want)
		}
	}
}

func TestIsFilteredCandidate(t *testing.T) {
	tests := []struct {
		name string
		c    Candidate
		want bool
	}{
		{"private host", Candidate{Address: "172.17.0.2", Init: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 172.17.0.2 5000 typ host"}}, true},
		{"public srflx", Candidate{Address: "203.0.113.7", Init: webrtc.ICECandidateInit{Candidate: "candidate:2 1 udp 1 203.0.113.7 5000 typ srflx raddr 10.0.0.4 rport 5000"}}, false},
		{"address from line", Candidate{Init: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 169.254.3.3 5000 typ host"}}, true},
		{"mdns", Candidate{Address: "abc.local", Init: webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 abc.local 5000 typ host"}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsFilteredCandidate(tt.c); got != tt.want {
				t.Errorf("IsFilteredCandidate = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestKeepIP(t *testing.T) {
	if keepIP(net.ParseIP("10.1.1.1")) {
		t.Error("10.1.1.1 kept")
	}
	if !keepIP(net.ParseIP("192.168.0.2")) {
		t.Error("192.168.0.2 dropped")
	}
	if !keepIP(nil) {
		t.Error("unparseable IP should be kept")
	}
}
