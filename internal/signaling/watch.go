package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
)

// Watch follows the room's change events. The returned channel is closed
// when ctx is cancelled or the stream drops; callers keep polling either
// way, events only let them poll early.
func (c *Client) Watch(ctx context.Context, roomID string) (<-chan models.RoomEvent, error) {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + roomPath(roomID, "events")

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		return nil, &TransportError{Method: http.MethodGet, Path: roomPath(roomID, "events"), Status: status, Err: err}
	}

	events := make(chan models.RoomEvent, 16)

	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}
		conn.Close()
	}()

	go func() {
		defer close(events)
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					logging.Debug("Event stream for room %s ended: %v", roomID, err)
				}
				return
			}

			var evt models.RoomEvent
			if err := json.Unmarshal(data, &evt); err != nil {
				logging.Warn("Ignoring malformed room event: %v", err)
				continue
			}
			logging.Debug("Room event: %s", eventString(evt))

			select {
			case events <- evt:
			default:
				// The consumer re-reads the room anyway; one queued event
				// per kind is enough.
			}
		}
	}()

	return events, nil
}

// eventString renders the event for logs.
func eventString(evt models.RoomEvent) string {
	if evt.From != "" {
		return fmt.Sprintf("%s from %s in %s", evt.Type, evt.From, evt.RoomID)
	}
	return fmt.Sprintf("%s in %s", evt.Type, evt.RoomID)
}
