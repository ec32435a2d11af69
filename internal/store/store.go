// Package store persists per-room signaling state: the offer, the answer,
// the two append-only candidate lists, and the chat transcript written when
// a consultation ends.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/mossy-p/reunion/internal/models"
)

// ErrNoOffer is returned when an answer or candidate is written to a room
// that has no offer.
var ErrNoOffer = errors.New("room has no offer")

// Store is the Room Store. Offer and answer are last-write-wins; candidates
// are append-only per side and returned in append order. Reads of an
// unknown room return zero values, not errors.
type Store interface {
	// PutOffer creates the room if needed and starts a new negotiation
	// generation: the answer and both candidate lists are cleared.
	PutOffer(ctx context.Context, roomID, sdp string) error
	// Offer returns "" when no offer is published.
	Offer(ctx context.Context, roomID string) (string, error)
	PutAnswer(ctx context.Context, roomID, sdp string) error
	// Answer returns "" when no answer is published.
	Answer(ctx context.Context, roomID string) (string, error)
	AppendCandidate(ctx context.Context, roomID string, from models.Side, candidate json.RawMessage) error
	Candidates(ctx context.Context, roomID string, from models.Side) ([]json.RawMessage, error)
	State(ctx context.Context, roomID string) (models.RoomState, error)
	// List returns live rooms. With openOnly, only rooms that have an
	// offer and are still waiting for an answer.
	List(ctx context.Context, openOnly bool) ([]models.RoomSummary, error)
	// Backup overwrites the in-flight transcript backup of a live room.
	Backup(ctx context.Context, roomID string, messages []models.ChatMessage) error
	// Finalize persists the transcript and deletes the room's live state.
	Finalize(ctx context.Context, roomID string, messages []models.ChatMessage) error
	// Transcript returns the finalized transcript, or the latest backup
	// if the room was never finalized.
	Transcript(ctx context.Context, roomID string) ([]models.ChatMessage, error)
	Delete(ctx context.Context, roomID string) error
}
