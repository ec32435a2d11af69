// Package signaling is the typed HTTP client of the room store. It has no
// protocol logic: each method is a single request, and "not published yet"
// is reported as an empty value, never as an error.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/pion/webrtc/v4"
)

const maxResponseBytes = 4 << 20

// Client talks to one room store.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithToken sets the bearer token sent with every request. Only the
// administration route (DeleteRoom) needs one.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// NewClient creates a client for the store at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("signaling: invalid base URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("signaling: base URL %q must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func roomPath(roomID, op string) string {
	return "/reunion/" + url.PathEscape(roomID) + "/" + op
}

// NewRoom asks the store for an unused short room code.
func (c *Client) NewRoom(ctx context.Context) (string, error) {
	var resp models.NewRoomResponse
	if err := c.do(ctx, http.MethodPost, "/reunion/rooms", nil, nil, &resp); err != nil {
		return "", err
	}
	return resp.RoomID, nil
}

// PostOffer publishes sdp, a JSON-serialized session description.
func (c *Client) PostOffer(ctx context.Context, roomID, sdp string) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "offer"), nil, models.DescriptionRequest{SDP: sdp}, nil)
}

// GetOffer returns "" when no offer is published.
func (c *Client) GetOffer(ctx context.Context, roomID string) (string, error) {
	var resp models.OfferResponse
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "offer"), nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.Offer == nil {
		return "", nil
	}
	return *resp.Offer, nil
}

func (c *Client) PostAnswer(ctx context.Context, roomID, sdp string) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "answer"), nil, models.DescriptionRequest{SDP: sdp}, nil)
}

// GetAnswer returns "" when no answer is published.
func (c *Client) GetAnswer(ctx context.Context, roomID string) (string, error) {
	var resp models.AnswerResponse
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "answer"), nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.Answer == nil {
		return "", nil
	}
	return *resp.Answer, nil
}

// PostCandidate appends one candidate generated by side.
func (c *Client) PostCandidate(ctx context.Context, roomID string, side models.Side, candidate webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("signaling: encoding candidate: %w", err)
	}
	body := models.CandidateRequest{From: side, Candidate: raw}
	return c.do(ctx, http.MethodPost, roomPath(roomID, "candidate"), nil, body, nil)
}

// GetCandidates returns the candidates published by side, in append order.
// Entries that do not decode as a candidate are logged and skipped; the
// list is append-only, so failing the batch would fail every later poll.
func (c *Client) GetCandidates(ctx context.Context, roomID string, side models.Side) ([]webrtc.ICECandidateInit, error) {
	var resp models.CandidatesResponse
	query := url.Values{"for": {string(side)}}
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "candidates"), query, nil, &resp); err != nil {
		return nil, err
	}

	candidates := make([]webrtc.ICECandidateInit, 0, len(resp.Candidates))
	for i, raw := range resp.Candidates {
		var cand webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &cand); err != nil {
			logging.Warn("Skipping %s candidate %d in room %s: %v", side, i, roomID, err)
			continue
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

func (c *Client) GetState(ctx context.Context, roomID string) (models.RoomState, error) {
	var state models.RoomState
	err := c.do(ctx, http.MethodGet, roomPath(roomID, "state"), nil, nil, &state)
	return state, err
}

// ListRooms lists live rooms; openOnly keeps rooms still waiting for an
// answer. Requires a token.
func (c *Client) ListRooms(ctx context.Context, openOnly bool) ([]models.RoomSummary, error) {
	var resp models.RoomsResponse
	var query url.Values
	if openOnly {
		query = url.Values{"open": {strconv.FormatBool(true)}}
	}
	if err := c.do(ctx, http.MethodGet, "/reunion/rooms", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rooms, nil
}

// Finalize persists the transcript and ends the room.
func (c *Client) Finalize(ctx context.Context, roomID string, messages []models.ChatMessage) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "finalizar"), nil, models.TranscriptRequest{Messages: messages}, nil)
}

// Heartbeat overwrites the room's in-flight transcript backup.
func (c *Client) Heartbeat(ctx context.Context, roomID string, messages []models.ChatMessage) error {
	return c.do(ctx, http.MethodPost, roomPath(roomID, "heartbeat"), nil, models.TranscriptRequest{Messages: messages}, nil)
}

func (c *Client) Transcript(ctx context.Context, roomID string) ([]models.ChatMessage, error) {
	var resp models.TranscriptResponse
	if err := c.do(ctx, http.MethodGet, roomPath(roomID, "transcript"), nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

// DeleteRoom drops the room without a transcript. Requires a token.
func (c *Client) DeleteRoom(ctx context.Context, roomID string) error {
	return c.do(ctx, http.MethodDelete, "/reunion/"+url.PathEscape(roomID), nil, nil, nil)
}

// do sends one request and decodes the JSON response into out (if non-nil).
// Every failure is a *TransportError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	fail := func(status int, message string, err error) error {
		return &TransportError{Method: method, Path: path, Status: status, Message: message, Err: err}
	}

	requestURL := c.baseURL + path
	if len(query) > 0 {
		requestURL += "?" + query.Encode()
	}

	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("signaling: encoding request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return fmt.Errorf("signaling: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fail(0, "", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("reading response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &apiErr) == nil && apiErr.Error != "" {
			return fail(resp.StatusCode, apiErr.Error, nil)
		}
		return fail(resp.StatusCode, excerpt(data), nil)
	}

	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "application/json" {
		return fail(resp.StatusCode, "non-JSON response: "+excerpt(data), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fail(resp.StatusCode, "", fmt.Errorf("decoding response: %w", err))
	}
	return nil
}

func excerpt(data []byte) string {
	const max = 200
	s := strings.TrimSpace(string(data))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}
