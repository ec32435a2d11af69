// Package chat is the side-channel protocol carried over the session's
// data channel: presence announcements that keep both rosters in sync,
// and text or file messages that form the consultation transcript.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mossy-p/reunion/internal/models"
)

const metaPresence = "presence"

// Participant is one side of the consultation as seen by the roster.
type Participant struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Avatar  string `json:"avatar,omitempty"`
	IsMuted bool   `json:"isMuted"`
	// IsYou marks the local participant; never sent.
	IsYou bool `json:"-"`
}

// envelope covers both wire shapes: presence ({meta, participant}) and
// content ({type, content, sender, avatar}).
type envelope struct {
	Meta        string          `json:"meta,omitempty"`
	Participant *Participant    `json:"participant,omitempty"`
	Type        string          `json:"type,omitempty"`
	Content     json.RawMessage `json:"content,omitempty"`
	Sender      string          `json:"sender,omitempty"`
	Avatar      string          `json:"avatar,omitempty"`
}

var errUnknownEnvelope = errors.New("unknown envelope")

func encodePresence(p Participant) ([]byte, error) {
	return json.Marshal(envelope{Meta: metaPresence, Participant: &p})
}

func encodeContent(msg models.ChatMessage) ([]byte, error) {
	return json.Marshal(envelope{Type: msg.Type, Content: msg.Content, Sender: msg.Sender, Avatar: msg.Avatar})
}

// decode returns exactly one of a presence participant or a content
// message.
func decode(data []byte) (*Participant, *models.ChatMessage, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, nil, fmt.Errorf("decoding envelope: %w", err)
	}

	switch {
	case env.Meta == metaPresence:
		if env.Participant == nil {
			return nil, nil, fmt.Errorf("presence without participant: %w", errUnknownEnvelope)
		}
		return env.Participant, nil, nil
	case env.Type == models.ChatTypeText || env.Type == models.ChatTypeFile:
		return nil, &models.ChatMessage{Type: env.Type, Content: env.Content, Sender: env.Sender, Avatar: env.Avatar}, nil
	default:
		return nil, nil, fmt.Errorf("meta %q type %q: %w", env.Meta, env.Type, errUnknownEnvelope)
	}
}

// upsert reconciles p into roster: match by id, then by name, else append.
func upsert(roster []Participant, p Participant) []Participant {
	if p.ID != "" {
		for i := range roster {
			if roster[i].ID == p.ID {
				roster[i] = p
				return roster
			}
		}
	}
	if p.Name != "" {
		for i := range roster {
			if roster[i].Name == p.Name {
				roster[i] = p
				return roster
			}
		}
	}
	return append(roster, p)
}
