package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mossy-p/reunion/internal/models"
	"github.com/pion/webrtc/v4"
)

// Signaler is the subset of the room store client used for negotiation.
// *signaling.Client implements it.
type Signaler interface {
	PostOffer(ctx context.Context, roomID, sdp string) error
	GetOffer(ctx context.Context, roomID string) (string, error)
	PostAnswer(ctx context.Context, roomID, sdp string) error
	GetAnswer(ctx context.Context, roomID string) (string, error)
	PostCandidate(ctx context.Context, roomID string, side models.Side, candidate webrtc.ICECandidateInit) error
	GetCandidates(ctx context.Context, roomID string, side models.Side) ([]webrtc.ICECandidateInit, error)
	GetState(ctx context.Context, roomID string) (models.RoomState, error)
}

// Watcher is implemented by signalers that can push room events. Events
// only wake the poll loops early.
type Watcher interface {
	Watch(ctx context.Context, roomID string) (<-chan models.RoomEvent, error)
}

// ParseDescription decodes a published session description and checks its
// type. Any failure wraps ErrMalformedSignal.
func ParseDescription(raw string, want webrtc.SDPType) (webrtc.SessionDescription, error) {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(raw), &desc); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %v", ErrMalformedSignal, err)
	}
	if desc.Type != want {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: type %q, want %q", ErrMalformedSignal, desc.Type, want)
	}
	return desc, nil
}

func encodeDescription(desc webrtc.SessionDescription) (string, error) {
	data, err := json.Marshal(desc)
	if err != nil {
		return "", fmt.Errorf("encoding %s: %w", desc.Type, err)
	}
	return string(data), nil
}
