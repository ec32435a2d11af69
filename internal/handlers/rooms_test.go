package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/store"
)

const testSecret = "test-secret"

func newTestRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	st := store.NewMemoryStore(clock.Real())
	router := gin.New()
	router.Use(OriginFilter([]string{"https://app.example"}))
	Register(router, st, NewHub(), testSecret)
	return router, st
}

func do(router http.Handler, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestOfferAnswerFlow(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodGet, "/reunion/R1/offer", nil)
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != `{"offer":null}` {
		t.Fatalf("GET offer on empty room = %d %s", w.Code, w.Body.String())
	}

	w = do(router, http.MethodPost, "/reunion/R1/answer", models.DescriptionRequest{SDP: `{"type":"answer"}`})
	if w.Code != http.StatusConflict {
		t.Fatalf("answer without offer = %d, want 409", w.Code)
	}

	offer := `{"type":"offer","sdp":"v=0..."}`
	if w = do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: offer}); w.Code != http.StatusOK {
		t.Fatalf("POST offer = %d %s", w.Code, w.Body.String())
	}

	state := decode[models.RoomState](t, do(router, http.MethodGet, "/reunion/R1/state", nil))
	if !state.HasOffer || state.HasAnswer || state.RoomID != "R1" {
		t.Fatalf("state = %+v", state)
	}

	got := decode[models.OfferResponse](t, do(router, http.MethodGet, "/reunion/R1/offer", nil))
	if got.Offer == nil || *got.Offer != offer {
		t.Fatalf("offer = %v", got.Offer)
	}

	answer := `{"type":"answer","sdp":"v=0..."}`
	if w = do(router, http.MethodPost, "/reunion/R1/answer", models.DescriptionRequest{SDP: answer}); w.Code != http.StatusOK {
		t.Fatalf("POST answer = %d", w.Code)
	}
	gotAnswer := decode[models.AnswerResponse](t, do(router, http.MethodGet, "/reunion/R1/answer", nil))
	if gotAnswer.Answer == nil || *gotAnswer.Answer != answer {
		t.Fatalf("answer = %v", gotAnswer.Answer)
	}
}

func TestOfferOverwrite(t *testing.T) {
	router, _ := newTestRouter(t)

	do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: "first"})
	do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: "second"})

	for i := 0; i < 3; i++ {
		got := decode[models.OfferResponse](t, do(router, http.MethodGet, "/reunion/R1/offer", nil))
		if got.Offer == nil || *got.Offer != "second" {
			t.Fatalf("offer = %v, want second", got.Offer)
		}
	}
}

func TestCandidates(t *testing.T) {
	router, _ := newTestRouter(t)

	cand := json.RawMessage(`{"candidate":"candidate:1 1 udp 1 203.0.113.5 5000 typ host"}`)
	w := do(router, http.MethodPost, "/reunion/R1/candidate", models.CandidateRequest{From: models.SideCaller, Candidate: cand})
	if w.Code != http.StatusConflict {
		t.Fatalf("candidate without offer = %d, want 409", w.Code)
	}

	do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: "o"})

	tests := []struct {
		name string
		body any
		want int
	}{
		{"caller", models.CandidateRequest{From: models.SideCaller, Candidate: cand}, http.StatusOK},
		{"unknown side", models.CandidateRequest{From: "host", Candidate: cand}, http.StatusBadRequest},
		{"missing candidate", map[string]string{"from": "callee"}, http.StatusBadRequest},
		{"candidate is a string", map[string]any{"from": "callee", "candidate": "garbage"}, http.StatusBadRequest},
		{"candidate line not a string", map[string]any{"from": "callee", "candidate": map[string]int{"candidate": 7}}, http.StatusBadRequest},
		{"end of candidates", map[string]any{"from": "callee", "candidate": map[string]string{"candidate": ""}}, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(router, http.MethodPost, "/reunion/R1/candidate", tt.body); w.Code != tt.want {
				t.Fatalf("status = %d, want %d (%s)", w.Code, tt.want, w.Body.String())
			}
		})
	}

	got := decode[models.CandidatesResponse](t, do(router, http.MethodGet, "/reunion/R1/candidates?for=caller", nil))
	if len(got.Candidates) != 1 || !bytes.Equal(got.Candidates[0], cand) {
		t.Fatalf("caller candidates = %s", got.Candidates)
	}

	callee := decode[models.CandidatesResponse](t, do(router, http.MethodGet, "/reunion/R1/candidates?for=callee", nil))
	if len(callee.Candidates) != 1 || string(callee.Candidates[0]) != `{"candidate":""}` {
		t.Fatalf("callee candidates = %s", callee.Candidates)
	}

	if w := do(router, http.MethodGet, "/reunion/R1/candidates?for=both", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("bad side = %d, want 400", w.Code)
	}
}

func TestFinalizeAndTranscript(t *testing.T) {
	router, _ := newTestRouter(t)

	do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: "o"})

	msgs := []models.ChatMessage{{Type: models.ChatTypeText, Content: json.RawMessage(`"hola"`), Sender: "Ana"}}
	if w := do(router, http.MethodPost, "/reunion/R1/heartbeat", models.TranscriptRequest{Messages: msgs}); w.Code != http.StatusOK {
		t.Fatalf("heartbeat = %d", w.Code)
	}
	backup := decode[models.TranscriptResponse](t, do(router, http.MethodGet, "/reunion/R1/transcript", nil))
	if len(backup.Messages) != 1 {
		t.Fatalf("backup = %+v", backup.Messages)
	}

	msgs = append(msgs, models.ChatMessage{Type: models.ChatTypeText, Content: json.RawMessage(`"adios"`), Sender: "Luis"})
	if w := do(router, http.MethodPost, "/reunion/R1/finalizar", models.TranscriptRequest{Messages: msgs}); w.Code != http.StatusOK {
		t.Fatalf("finalizar = %d", w.Code)
	}

	state := decode[models.RoomState](t, do(router, http.MethodGet, "/reunion/R1/state", nil))
	if state.HasOffer {
		t.Fatal("room should be gone after finalizar")
	}
	final := decode[models.TranscriptResponse](t, do(router, http.MethodGet, "/reunion/R1/transcript", nil))
	if len(final.Messages) != 2 || final.Messages[1].Sender != "Luis" {
		t.Fatalf("transcript = %+v", final.Messages)
	}
}

func TestNewRoom(t *testing.T) {
	router, _ := newTestRouter(t)

	w := do(router, http.MethodPost, "/reunion/rooms", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("POST rooms = %d", w.Code)
	}
	got := decode[models.NewRoomResponse](t, w)
	if len(got.RoomID) != roomCodeLength {
		t.Fatalf("room code %q", got.RoomID)
	}
	for _, r := range got.RoomID {
		if !strings.ContainsRune(codeChars, r) {
			t.Fatalf("room code %q has ambiguous char %q", got.RoomID, r)
		}
	}
}

func TestListRoomsIsPublic(t *testing.T) {
	router, _ := newTestRouter(t)

	do(router, http.MethodPost, "/reunion/OPEN/offer", models.DescriptionRequest{SDP: "o"})
	do(router, http.MethodPost, "/reunion/DONE/offer", models.DescriptionRequest{SDP: "o"})
	do(router, http.MethodPost, "/reunion/DONE/answer", models.DescriptionRequest{SDP: "a"})

	all := decode[models.RoomsResponse](t, do(router, http.MethodGet, "/reunion/rooms", nil))
	if len(all.Rooms) != 2 {
		t.Fatalf("all rooms = %+v", all.Rooms)
	}
	open := decode[models.RoomsResponse](t, do(router, http.MethodGet, "/reunion/rooms?open=true", nil))
	if len(open.Rooms) != 1 || open.Rooms[0].RoomID != "OPEN" {
		t.Fatalf("open rooms = %+v", open.Rooms)
	}
}

func TestDeleteRequiresToken(t *testing.T) {
	router, _ := newTestRouter(t)

	do(router, http.MethodPost, "/reunion/OPEN/offer", models.DescriptionRequest{SDP: "o"})

	if w := do(router, http.MethodDelete, "/reunion/OPEN", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("delete without token = %d, want 401", w.Code)
	}
	if w := do(router, http.MethodDelete, "/reunion/OPEN", nil, "Authorization", "Bearer nope"); w.Code != http.StatusUnauthorized {
		t.Fatalf("delete with bad token = %d, want 401", w.Code)
	}

	login := do(router, http.MethodPost, "/api/auth/login", LoginRequest{Username: "ops", Password: "x"})
	if login.Code != http.StatusOK {
		t.Fatalf("login = %d", login.Code)
	}
	token := decode[LoginResponse](t, login).Token
	auth := "Bearer " + token

	if w := do(router, http.MethodDelete, "/reunion/OPEN", nil, "Authorization", auth); w.Code != http.StatusOK {
		t.Fatalf("delete = %d", w.Code)
	}
	if state := decode[models.RoomState](t, do(router, http.MethodGet, "/reunion/OPEN/state", nil)); state.HasOffer {
		t.Fatal("room survived delete")
	}
}

func TestExpiredToken(t *testing.T) {
	router, _ := newTestRouter(t)

	past := time.Now().Add(-2 * time.Hour)
	token, err := IssueToken(testSecret, "ops", past, past.Add(time.Hour))
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	do(router, http.MethodPost, "/reunion/R1/offer", models.DescriptionRequest{SDP: "o"})
	if w := do(router, http.MethodDelete, "/reunion/R1", nil, "Authorization", "Bearer "+token); w.Code != http.StatusUnauthorized {
		t.Fatalf("expired token = %d, want 401", w.Code)
	}
}

func TestOriginFilter(t *testing.T) {
	router, _ := newTestRouter(t)

	tests := []struct {
		name       string
		method     string
		origin     string
		wantStatus int
		wantCORS   bool
	}{
		{"no origin", http.MethodGet, "", http.StatusOK, false},
		{"allowed", http.MethodGet, "https://app.example", http.StatusOK, true},
		{"preflight", http.MethodOptions, "https://app.example", http.StatusNoContent, true},
		{"denied", http.MethodGet, "https://evil.example", http.StatusForbidden, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var w *httptest.ResponseRecorder
			if tt.origin == "" {
				w = do(router, tt.method, "/health", nil)
			} else {
				w = do(router, tt.method, "/health", nil, "Origin", tt.origin)
			}
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if got := w.Header().Get("Access-Control-Allow-Origin") != ""; got != tt.wantCORS {
				t.Fatalf("CORS header present = %v, want %v", got, tt.wantCORS)
			}
		})
	}
}
