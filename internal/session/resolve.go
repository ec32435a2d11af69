package session

import (
	"context"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
)

// Hint is an optional role override supplied by whoever starts the join.
type Hint int

const (
	HintNone Hint = iota
	// HintInitiator always makes a fresh offer, superseding any offer
	// already in the room.
	HintInitiator
	// HintResponder always answers.
	HintResponder
)

func (h Hint) String() string {
	switch h {
	case HintInitiator:
		return "initiator"
	case HintResponder:
		return "responder"
	default:
		return "none"
	}
}

// Resolution is the outcome of Resolve. Offer is set when the offer was
// already fetched while probing, so the callee need not fetch it again.
type Resolution struct {
	Role  models.Side
	Offer string
}

// Resolve decides whether the local participant is the caller or the
// callee of roomID. Without a hint the room is probed: an existing offer
// makes us the callee, otherwise we call.
//
// Two participants probing an empty room at the same instant can both
// resolve to caller; the later offer then wins in the store and the
// earlier caller never receives an answer until it reconnects.
func Resolve(ctx context.Context, sig Signaler, roomID string, hint Hint) Resolution {
	switch hint {
	case HintInitiator:
		return Resolution{Role: models.SideCaller}
	case HintResponder:
		return Resolution{Role: models.SideCallee}
	}

	state, err := sig.GetState(ctx, roomID)
	if err != nil {
		logging.Warn("Room state probe for %s failed: %v", roomID, err)
	} else if state.HasOffer {
		return Resolution{Role: models.SideCallee}
	}

	// The state may lag behind a just-published offer.
	offer, err := sig.GetOffer(ctx, roomID)
	if err != nil {
		logging.Warn("Offer probe for %s failed: %v", roomID, err)
	} else if offer != "" {
		return Resolution{Role: models.SideCallee, Offer: offer}
	}

	return Resolution{Role: models.SideCaller}
}
