package models

import "encoding/json"

// EventType represents the kind of room change pushed over /events
type EventType string

const (
	EventOffer     EventType = "offer"
	EventAnswer    EventType = "answer"
	EventCandidate EventType = "candidate"
	EventClosed    EventType = "closed"
)

// RoomEvent notifies watchers that a room changed. It carries no payload;
// watchers re-read the room through the regular GET endpoints.
type RoomEvent struct {
	Type   EventType `json:"type"`
	RoomID string    `json:"roomId"`
	From   Side      `json:"from,omitempty"`
}

// Chat content types
const (
	ChatTypeText = "text"
	ChatTypeFile = "file"
)

// ChatMessage is a content message of the side channel, also the unit of
// transcript persistence. Content is a string for text messages and a
// FileRef for file messages.
type ChatMessage struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
	Sender  string          `json:"sender"`
	Avatar  string          `json:"avatar,omitempty"`
}

// FileRef is the content of a file message.
type FileRef struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}
