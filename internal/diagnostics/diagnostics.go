// Package diagnostics replays the signaling checks of a room for
// troubleshooting. It only reads; it is safe to run next to a live
// negotiation.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/session"
	"github.com/pion/webrtc/v4"
)

type Status string

const (
	StatusSuccess Status = "success"
	StatusWarning Status = "warning"
	StatusError   Status = "error"
	StatusPending Status = "pending"
)

// Check names, in the order Run performs them.
const (
	CheckRoomState  = "room-state"
	CheckOffer      = "offer"
	CheckAnswer     = "answer"
	CheckCandidates = "candidates"
)

type Result struct {
	Check  string    `json:"check"`
	Status Status    `json:"status"`
	Detail string    `json:"detail"`
	At     time.Time `json:"at"`
}

// Run checks the room from role's point of view. A missing offer or
// answer is pending when we are the side expected to produce it, and a
// warning when we are waiting on the other side.
func Run(ctx context.Context, sig session.Signaler, roomID string, role models.Side, clk clock.Clock) []Result {
	if clk == nil {
		clk = clock.Real()
	}
	var results []Result
	add := func(check string, status Status, format string, args ...any) {
		results = append(results, Result{Check: check, Status: status, Detail: fmt.Sprintf(format, args...), At: clk.Now()})
	}

	state, err := sig.GetState(ctx, roomID)
	if err != nil {
		add(CheckRoomState, StatusError, "room state unavailable: %v", err)
	} else {
		add(CheckRoomState, StatusSuccess, "hasOffer=%t hasAnswer=%t", state.HasOffer, state.HasAnswer)
	}

	offer, err := sig.GetOffer(ctx, roomID)
	switch {
	case err != nil:
		add(CheckOffer, StatusError, "fetching offer: %v", err)
	case offer == "" && role == models.SideCaller:
		add(CheckOffer, StatusPending, "no offer yet; this side publishes it")
	case offer == "":
		add(CheckOffer, StatusWarning, "no offer yet; the other participant has not started the call")
	default:
		if _, err := session.ParseDescription(offer, webrtc.SDPTypeOffer); err != nil {
			add(CheckOffer, StatusError, "%v", err)
		} else {
			add(CheckOffer, StatusSuccess, "offer published (%d bytes)", len(offer))
		}
	}

	answer, err := sig.GetAnswer(ctx, roomID)
	switch {
	case err != nil:
		add(CheckAnswer, StatusError, "fetching answer: %v", err)
	case answer == "" && role == models.SideCaller:
		add(CheckAnswer, StatusPending, "waiting for the other participant to answer")
	case answer == "":
		add(CheckAnswer, StatusWarning, "no answer yet; this side has not answered")
	default:
		if _, err := session.ParseDescription(answer, webrtc.SDPTypeAnswer); err != nil {
			add(CheckAnswer, StatusError, "%v", err)
		} else {
			add(CheckAnswer, StatusSuccess, "answer published (%d bytes)", len(answer))
		}
	}

	for _, side := range []models.Side{models.SideCaller, models.SideCallee} {
		candidates, err := sig.GetCandidates(ctx, roomID, side)
		check := CheckCandidates + ":" + string(side)
		switch {
		case err != nil:
			add(check, StatusError, "fetching %s candidates: %v", side, err)
		case len(candidates) == 0:
			add(check, StatusWarning, "no %s candidates", side)
		default:
			add(check, StatusSuccess, "%d %s candidates", len(candidates), side)
		}
	}

	return results
}
