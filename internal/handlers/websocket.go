package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mossy-p/reunion/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Origin checking is handled by middleware
		return true
	},
}

// Hub fans room change events out to WebSocket watchers. Watchers only
// get notified that something changed; the room contents still come from
// the HTTP endpoints, so a watcher that misses an event loses nothing.
type Hub struct {
	rooms map[string]*watchRoom
	mu    sync.RWMutex
}

// watchRoom holds the watchers of one room
type watchRoom struct {
	ID       string
	Watchers map[string]*Watcher
	mu       sync.RWMutex
}

// Watcher is one WebSocket connection following a room
type Watcher struct {
	ID     string
	RoomID string
	Conn   *websocket.Conn
	Send   chan []byte
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]*watchRoom)}
}

// Notify pushes evt to every watcher of evt.RoomID. Slow watchers drop it.
func (h *Hub) Notify(evt models.RoomEvent) {
	h.mu.RLock()
	room, exists := h.rooms[evt.RoomID]
	h.mu.RUnlock()
	if !exists {
		return
	}

	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Failed to marshal event: %v", err)
		return
	}

	room.mu.RLock()
	defer room.mu.RUnlock()
	for id, w := range room.Watchers {
		select {
		case w.Send <- data:
		default:
			log.Printf("Dropping %s event for watcher %s, buffer full", evt.Type, id)
		}
	}
}

// Watchers returns the number of watchers of roomID.
func (h *Hub) Watchers(roomID string) int {
	h.mu.RLock()
	room, exists := h.rooms[roomID]
	h.mu.RUnlock()
	if !exists {
		return 0
	}
	room.mu.RLock()
	defer room.mu.RUnlock()
	return len(room.Watchers)
}

// add and remove both hold h.mu across the room update, so a room is never
// dropped from the map while a watcher is joining it.
func (h *Hub) add(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[w.RoomID]
	if !exists {
		room = &watchRoom{ID: w.RoomID, Watchers: make(map[string]*Watcher)}
		h.rooms[w.RoomID] = room
	}
	room.mu.Lock()
	room.Watchers[w.ID] = w
	room.mu.Unlock()
}

func (h *Hub) remove(w *Watcher) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, exists := h.rooms[w.RoomID]
	if !exists {
		return
	}
	room.mu.Lock()
	delete(room.Watchers, w.ID)
	empty := len(room.Watchers) == 0
	room.mu.Unlock()

	if empty {
		delete(h.rooms, w.RoomID)
	}
}

// WatchRoom upgrades the request and streams the room's change events
func WatchRoom(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Printf("Failed to upgrade connection: %v", err)
			return
		}

		w := &Watcher{
			ID:     uuid.New().String(),
			RoomID: roomID,
			Conn:   conn,
			Send:   make(chan []byte, 64),
		}
		hub.add(w)
		log.Printf("Watcher %s following room %s", w.ID, roomID)

		go w.writePump()
		go w.readPump(hub)
	}
}

// readPump only services control frames; watchers never send data.
func (w *Watcher) readPump(hub *Hub) {
	defer func() {
		hub.remove(w)
		close(w.Send)
		log.Printf("Watcher %s left room %s", w.ID, w.RoomID)
	}()

	w.Conn.SetReadDeadline(time.Now().Add(pongWait))
	w.Conn.SetPongHandler(func(string) error {
		w.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := w.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}

func (w *Watcher) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		w.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-w.Send:
			w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				w.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := w.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("Failed to write event: %v", err)
				return
			}

		case <-ticker.C:
			w.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
