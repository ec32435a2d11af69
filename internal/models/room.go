package models

import (
	"encoding/json"
	"time"
)

// Side identifies which participant produced a signal.
type Side string

const (
	SideCaller Side = "caller"
	SideCallee Side = "callee"
)

// Valid reports whether s is one of the two known sides.
func (s Side) Valid() bool {
	return s == SideCaller || s == SideCallee
}

// Opposite returns the other participant's side.
func (s Side) Opposite() Side {
	if s == SideCaller {
		return SideCallee
	}
	return SideCaller
}

// RoomState is the summary returned by GET /reunion/:roomId/state
type RoomState struct {
	RoomID    string `json:"roomId"`
	HasOffer  bool   `json:"hasOffer"`
	HasAnswer bool   `json:"hasAnswer"`
}

// RoomSummary is one entry of GET /reunion/rooms
type RoomSummary struct {
	RoomID    string    `json:"roomId"`
	CreatedAt time.Time `json:"createdAt"`
	HasOffer  bool      `json:"hasOffer"`
	HasAnswer bool      `json:"hasAnswer"`
}

// DescriptionRequest is the body of the offer and answer POSTs. SDP holds
// the JSON-serialized session description and is opaque to the store.
type DescriptionRequest struct {
	SDP string `json:"sdp" binding:"required"`
}

// OfferResponse is returned by GET offer; Offer is nil until published.
type OfferResponse struct {
	Offer *string `json:"offer"`
}

// AnswerResponse is returned by GET answer; Answer is nil until published.
type AnswerResponse struct {
	Answer *string `json:"answer"`
}

// CandidateRequest is the body of POST candidate.
type CandidateRequest struct {
	From      Side            `json:"from" binding:"required"`
	Candidate json.RawMessage `json:"candidate" binding:"required"`
}

// CandidatesResponse is returned by GET candidates, in append order.
type CandidatesResponse struct {
	Candidates []json.RawMessage `json:"candidates"`
}

// RoomsResponse is returned by GET /reunion/rooms
type RoomsResponse struct {
	Rooms []RoomSummary `json:"rooms"`
}

// NewRoomResponse is returned by POST /reunion/rooms
type NewRoomResponse struct {
	RoomID string `json:"roomId"`
}

// TranscriptRequest carries chat messages for finalize and heartbeat.
type TranscriptRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// TranscriptResponse is returned by GET transcript.
type TranscriptResponse struct {
	Messages []ChatMessage `json:"messages"`
}

// OKResponse is the body of every successful write.
type OKResponse struct {
	OK bool `json:"ok"`
}
