package handlers

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/store"
)

const (
	roomCodeLength   = 6
	roomCodeAttempts = 5
	codeChars        = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789" // Removed ambiguous chars
)

// NewRoom hands out a short room code that is not in use. The room itself
// is created by the first offer.
func NewRoom(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		for i := 0; i < roomCodeAttempts; i++ {
			code := generateRoomCode()
			state, err := st.State(c.Request.Context(), code)
			if err != nil {
				log.Printf("Failed to check room code %s: %v", code, err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create room"})
				return
			}
			if !state.HasOffer {
				c.JSON(http.StatusCreated, models.NewRoomResponse{RoomID: code})
				return
			}
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "No free room code, retry"})
	}
}

// PostOffer publishes (or replaces) the caller's offer.
func PostOffer(st store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		var req models.DescriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := st.PutOffer(c.Request.Context(), roomID, req.SDP); err != nil {
			storeError(c, err)
			return
		}

		log.Printf("Offer published in room %s", roomID)
		hub.Notify(models.RoomEvent{Type: models.EventOffer, RoomID: roomID, From: models.SideCaller})
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// GetOffer returns the offer, or null when none is published yet.
func GetOffer(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		offer, err := st.Offer(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.OfferResponse{Offer: optional(offer)})
	}
}

// PostAnswer publishes (or replaces) the callee's answer.
func PostAnswer(st store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		var req models.DescriptionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := st.PutAnswer(c.Request.Context(), roomID, req.SDP); err != nil {
			storeError(c, err)
			return
		}

		log.Printf("Answer published in room %s", roomID)
		hub.Notify(models.RoomEvent{Type: models.EventAnswer, RoomID: roomID, From: models.SideCallee})
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// GetAnswer returns the answer, or null when none is published yet.
func GetAnswer(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		answer, err := st.Answer(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.AnswerResponse{Answer: optional(answer)})
	}
}

// PostCandidate appends one candidate to the sender's list.
func PostCandidate(st store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		var req models.CandidateRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if !req.From.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be caller or callee"})
			return
		}
		if !isCandidate(req.Candidate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "candidate must be an object with a candidate string"})
			return
		}

		if err := st.AppendCandidate(c.Request.Context(), roomID, req.From, req.Candidate); err != nil {
			storeError(c, err)
			return
		}

		hub.Notify(models.RoomEvent{Type: models.EventCandidate, RoomID: roomID, From: req.From})
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// isCandidate reports whether raw looks like an RTCIceCandidateInit. The
// candidate line itself is opaque here; an empty one marks end of
// candidates and is allowed.
func isCandidate(raw json.RawMessage) bool {
	var probe struct {
		Candidate *string `json:"candidate"`
	}
	return json.Unmarshal(raw, &probe) == nil && probe.Candidate != nil
}

// GetCandidates lists the candidates published by one side, in order.
func GetCandidates(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		side := models.Side(c.Query("for"))
		if !side.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "for must be caller or callee"})
			return
		}

		candidates, err := st.Candidates(c.Request.Context(), c.Param("roomId"), side)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.CandidatesResponse{Candidates: candidates})
	}
}

// GetState reports whether the room has an offer and an answer.
func GetState(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		state, err := st.State(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, state)
	}
}

// ListRooms lists live rooms; ?open=true keeps only rooms awaiting an answer.
func ListRooms(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		openOnly, _ := strconv.ParseBool(c.Query("open"))

		rooms, err := st.List(c.Request.Context(), openOnly)
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.RoomsResponse{Rooms: rooms})
	}
}

// Finalize persists the chat transcript and deletes the room's live state.
func Finalize(st store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		var req models.TranscriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := st.Finalize(c.Request.Context(), roomID, req.Messages); err != nil {
			storeError(c, err)
			return
		}

		log.Printf("Room %s finalized with %d messages", roomID, len(req.Messages))
		hub.Notify(models.RoomEvent{Type: models.EventClosed, RoomID: roomID})
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// Heartbeat overwrites the in-flight transcript backup.
func Heartbeat(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.TranscriptRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := st.Backup(c.Request.Context(), c.Param("roomId"), req.Messages); err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

// GetTranscript returns the finalized transcript or the latest backup.
func GetTranscript(st store.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		messages, err := st.Transcript(c.Request.Context(), c.Param("roomId"))
		if err != nil {
			storeError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.TranscriptResponse{Messages: messages})
	}
}

// DeleteRoom drops a room without keeping a transcript (requires authentication)
func DeleteRoom(st store.Store, hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		roomID := c.Param("roomId")

		if err := st.Delete(c.Request.Context(), roomID); err != nil {
			storeError(c, err)
			return
		}

		userID, _ := c.Get("user_id")
		log.Printf("Room deleted: %s by user %v", roomID, userID)
		hub.Notify(models.RoomEvent{Type: models.EventClosed, RoomID: roomID})
		c.JSON(http.StatusOK, models.OKResponse{OK: true})
	}
}

func storeError(c *gin.Context, err error) {
	if errors.Is(err, store.ErrNoOffer) {
		c.JSON(http.StatusConflict, gin.H{"error": "Room has no offer"})
		return
	}
	log.Printf("Room store error on %s %s: %v", c.Request.Method, c.FullPath(), err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Room store unavailable"})
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// generateRoomCode generates a random room code
func generateRoomCode() string {
	code := make([]byte, roomCodeLength)
	for i := range code {
		n, _ := rand.Int(rand.Reader, big.NewInt(int64(len(codeChars))))
		code[i] = codeChars[n.Int64()]
	}
	return string(code)
}
