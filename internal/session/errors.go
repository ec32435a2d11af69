package session

import (
	"errors"

	"github.com/mossy-p/reunion/internal/signaling"
)

var (
	// ErrMalformedSignal: a fetched offer or answer is not JSON or has the
	// wrong type. Fatal for the attempt; never retried.
	ErrMalformedSignal = errors.New("malformed signal")
	// ErrNegotiationTimeout: the other side never published its offer.
	ErrNegotiationTimeout = errors.New("negotiation timed out")
	// ErrJoinInProgress: Join or Reconnect called while another is running.
	ErrJoinInProgress = errors.New("join already in progress")
	// ErrPeerConnectionFailure: the connection or data channel failed or
	// closed underneath the session. Recovered only by Reconnect.
	ErrPeerConnectionFailure = errors.New("peer connection failure")
	// ErrNoSession is returned by Reconnect and Leave before any Join.
	ErrNoSession = errors.New("no active session")
)

// UserMessage maps a join or session error to the single message shown to
// the participant. Unknown errors get a generic message.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNegotiationTimeout):
		return "Could not find the consultation room, or the other participant has not started the call yet."
	case errors.Is(err, ErrMalformedSignal):
		return "The other participant sent an invalid connection request. Ask them to restart the call."
	case errors.Is(err, ErrPeerConnectionFailure):
		return "The connection was lost. Press reconnect to try again."
	case errors.Is(err, ErrJoinInProgress):
		return "Already joining the consultation, please wait."
	case errors.Is(err, signaling.ErrTransport):
		return "The signaling server is unreachable. Check your connection and try again."
	default:
		return "Something went wrong while connecting. Press reconnect to try again."
	}
}
