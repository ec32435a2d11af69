package diagnostics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/signaling"
	"github.com/pion/webrtc/v4"
)

type room struct {
	state   models.RoomState
	offer   string
	answer  string
	caller  int
	callee  int
	failing error
}

func (r *room) PostOffer(context.Context, string, string) error  { return errors.New("read only") }
func (r *room) PostAnswer(context.Context, string, string) error { return errors.New("read only") }
func (r *room) PostCandidate(context.Context, string, models.Side, webrtc.ICECandidateInit) error {
	return errors.New("read only")
}

func (r *room) GetState(context.Context, string) (models.RoomState, error) {
	return r.state, r.failing
}

func (r *room) GetOffer(context.Context, string) (string, error) { return r.offer, r.failing }
func (r *room) GetAnswer(context.Context, string) (string, error) { return r.answer, r.failing }

func (r *room) GetCandidates(_ context.Context, _ string, side models.Side) ([]webrtc.ICECandidateInit, error) {
	n := r.callee
	if side == models.SideCaller {
		n = r.caller
	}
	return make([]webrtc.ICECandidateInit, n), r.failing
}

func statuses(results []Result) map[string]Status {
	out := make(map[string]Status, len(results))
	for _, r := range results {
		out[r.Check] = r.Status
	}
	return out
}

func TestRun(t *testing.T) {
	offer := `{"type":"offer","sdp":"v=0"}`
	answer := `{"type":"answer","sdp":"v=0"}`

	tests := []struct {
		name string
		room *room
		role models.Side
		want map[string]Status
	}{
		{
			name: "empty room as caller",
			room: &room{},
			role: models.SideCaller,
			want: map[string]Status{CheckRoomState: StatusSuccess, CheckOffer: StatusPending, CheckAnswer: StatusPending, "candidates:caller": StatusWarning},
		},
		{
			name: "empty room as callee",
			room: &room{},
			role: models.SideCallee,
			want: map[string]Status{CheckOffer: StatusWarning, CheckAnswer: StatusWarning},
		},
		{
			name: "negotiated",
			room: &room{state: models.RoomState{HasOffer: true, HasAnswer: true}, offer: offer, answer: answer, caller: 2, callee: 3},
			role: models.SideCallee,
			want: map[string]Status{CheckOffer: StatusSuccess, CheckAnswer: StatusSuccess, "candidates:caller": StatusSuccess, "candidates:callee": StatusSuccess},
		},
		{
			name: "malformed answer",
			room: &room{offer: offer, answer: "garbage"},
			role: models.SideCaller,
			want: map[string]Status{CheckOffer: StatusSuccess, CheckAnswer: StatusError},
		},
		{
			name: "store down",
			room: &room{failing: &signaling.TransportError{Status: 503}},
			role: models.SideCaller,
			want: map[string]Status{CheckRoomState: StatusError, CheckOffer: StatusError, CheckAnswer: StatusError, "candidates:callee": StatusError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := statuses(Run(context.Background(), tt.room, "R1", tt.role, nil))
			for check, want := range tt.want {
				if got[check] != want {
					t.Errorf("%s = %s, want %s", check, got[check], want)
				}
			}
		})
	}
}

func TestRunOrderAndTimestamps(t *testing.T) {
	clk := clock.Fake(time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC))
	results := Run(context.Background(), &room{}, "R1", models.SideCaller, clk)

	want := []string{CheckRoomState, CheckOffer, CheckAnswer, "candidates:caller", "candidates:callee"}
	if len(results) != len(want) {
		t.Fatalf("results = %+v", results)
	}
	for i, r := range results {
		if r.Check != want[i] {
			t.Errorf("results[%d] = %s, want %s", i, r.Check, want[i])
		}
		if !r.At.Equal(clk.Now()) {
			t.Errorf("results[%d] at %v", i, r.At)
		}
	}
}
