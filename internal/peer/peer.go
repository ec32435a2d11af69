// Package peer is the seam between negotiation logic and the WebRTC
// stack. Connection and DataChannel cover exactly what the session
// manager drives, so tests can replace pion with a scripted fake.
package peer

import "github.com/pion/webrtc/v4"

// ChatLabel is the label of the side channel opened by the caller.
const ChatLabel = "chat"

// Candidate is a locally gathered ICE candidate.
type Candidate struct {
	// Address is the candidate's connection address as reported by the
	// ICE agent. It may be an mDNS hostname.
	Address string
	Init    webrtc.ICECandidateInit
}

// Connection is one peer connection.
type Connection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(webrtc.SessionDescription) error
	SetRemoteDescription(webrtc.SessionDescription) error
	AddICECandidate(webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	ConnectionState() webrtc.PeerConnectionState

	AddTrack(webrtc.TrackLocal) error
	// CreateDataChannel opens an ordered, reliable channel.
	CreateDataChannel(label string) (DataChannel, error)

	// OnICECandidate is not called for the end-of-gathering marker.
	OnICECandidate(func(Candidate))
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnDataChannel(func(DataChannel))

	Close() error
}

// DataChannel is a text-only view of a data channel.
type DataChannel interface {
	Label() string
	SendText(string) error
	OnOpen(func())
	OnClose(func())
	OnError(func(error))
	OnMessage(func([]byte))
	Close() error
}

// Factory creates connections.
type Factory interface {
	NewConnection() (Connection, error)
}
