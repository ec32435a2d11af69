package store

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/models"
)

// Compile-time interface check.
var _ Store = (*MemoryStore)(nil)

type memoryRoom struct {
	offer     string
	answer    string
	caller    []json.RawMessage
	callee    []json.RawMessage
	backup    []models.ChatMessage
	createdAt time.Time
	touchedAt time.Time
}

// MemoryStore keeps rooms in process memory. Used by tests and by single
// instance deployments without Redis; Sweep enforces the inactivity TTL.
type MemoryStore struct {
	clock clock.Clock

	mu          sync.Mutex
	rooms       map[string]*memoryRoom
	transcripts map[string][]models.ChatMessage
}

// NewMemoryStore creates an empty store.
func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{
		clock:       c,
		rooms:       make(map[string]*memoryRoom),
		transcripts: make(map[string][]models.ChatMessage),
	}
}

func (s *MemoryStore) PutOffer(_ context.Context, roomID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	room, ok := s.rooms[roomID]
	if !ok {
		room = &memoryRoom{createdAt: now}
		s.rooms[roomID] = room
	}
	room.offer = sdp
	room.answer = ""
	room.caller = nil
	room.callee = nil
	room.touchedAt = now
	return nil
}

func (s *MemoryStore) Offer(_ context.Context, roomID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		return room.offer, nil
	}
	return "", nil
}

func (s *MemoryStore) PutAnswer(_ context.Context, roomID, sdp string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || room.offer == "" {
		return ErrNoOffer
	}
	room.answer = sdp
	room.touchedAt = s.clock.Now()
	return nil
}

func (s *MemoryStore) Answer(_ context.Context, roomID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if room, ok := s.rooms[roomID]; ok {
		return room.answer, nil
	}
	return "", nil
}

func (s *MemoryStore) AppendCandidate(_ context.Context, roomID string, from models.Side, candidate json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok || room.offer == "" {
		return ErrNoOffer
	}
	stored := append(json.RawMessage(nil), candidate...)
	if from == models.SideCaller {
		room.caller = append(room.caller, stored)
	} else {
		room.callee = append(room.callee, stored)
	}
	room.touchedAt = s.clock.Now()
	return nil
}

func (s *MemoryStore) Candidates(_ context.Context, roomID string, from models.Side) ([]json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return []json.RawMessage{}, nil
	}
	list := room.callee
	if from == models.SideCaller {
		list = room.caller
	}
	return append([]json.RawMessage{}, list...), nil
}

func (s *MemoryStore) State(_ context.Context, roomID string) (models.RoomState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := models.RoomState{RoomID: roomID}
	if room, ok := s.rooms[roomID]; ok {
		state.HasOffer = room.offer != ""
		state.HasAnswer = room.answer != ""
	}
	return state, nil
}

func (s *MemoryStore) List(_ context.Context, openOnly bool) ([]models.RoomSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms := make([]models.RoomSummary, 0, len(s.rooms))
	for id, room := range s.rooms {
		summary := models.RoomSummary{
			RoomID:    id,
			CreatedAt: room.createdAt,
			HasOffer:  room.offer != "",
			HasAnswer: room.answer != "",
		}
		if openOnly && (!summary.HasOffer || summary.HasAnswer) {
			continue
		}
		rooms = append(rooms, summary)
	}
	sort.Slice(rooms, func(i, j int) bool {
		return rooms[i].CreatedAt.Before(rooms[j].CreatedAt)
	})
	return rooms, nil
}

func (s *MemoryStore) Backup(_ context.Context, roomID string, messages []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[roomID]
	if !ok {
		return ErrNoOffer
	}
	room.backup = append([]models.ChatMessage(nil), messages...)
	room.touchedAt = s.clock.Now()
	return nil
}

func (s *MemoryStore) Finalize(_ context.Context, roomID string, messages []models.ChatMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts[roomID] = append([]models.ChatMessage{}, messages...)
	delete(s.rooms, roomID)
	return nil
}

func (s *MemoryStore) Transcript(_ context.Context, roomID string) ([]models.ChatMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if messages, ok := s.transcripts[roomID]; ok {
		return append([]models.ChatMessage{}, messages...), nil
	}
	if room, ok := s.rooms[roomID]; ok {
		return append([]models.ChatMessage{}, room.backup...), nil
	}
	return []models.ChatMessage{}, nil
}

func (s *MemoryStore) Delete(_ context.Context, roomID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.rooms, roomID)
	return nil
}

// Sweep deletes rooms untouched for longer than maxIdle and returns how
// many were removed.
func (s *MemoryStore) Sweep(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	removed := 0
	for id, room := range s.rooms {
		if now.Sub(room.touchedAt) > maxIdle {
			delete(s.rooms, id)
			removed++
		}
	}
	return removed
}
