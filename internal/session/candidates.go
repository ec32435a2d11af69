package session

import (
	"encoding/json"
	"sync"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/peer"
	"github.com/pion/webrtc/v4"
)

// remoteGate applies remote candidates at most once each and never before
// the remote description. The remote description itself is applied under
// the same mutex, so a candidate either lands in pending before the
// description or is applied directly after it.
type remoteGate struct {
	conn peer.Connection

	mu        sync.Mutex
	remoteSet bool
	added     map[string]struct{}
	pending   []webrtc.ICECandidateInit
}

func newRemoteGate(conn peer.Connection) *remoteGate {
	return &remoteGate{conn: conn, added: make(map[string]struct{})}
}

// candidateKey is the candidate's serialized form.
func candidateKey(c webrtc.ICECandidateInit) string {
	data, err := json.Marshal(c)
	if err != nil {
		return c.Candidate
	}
	return string(data)
}

// receive handles one polled candidate. Duplicates are dropped.
func (g *remoteGate) receive(c webrtc.ICECandidateInit) {
	g.mu.Lock()
	defer g.mu.Unlock()

	key := candidateKey(c)
	if _, seen := g.added[key]; seen {
		return
	}
	g.added[key] = struct{}{}

	if !g.remoteSet {
		g.pending = append(g.pending, c)
		return
	}
	g.applyLocked(c)
}

// setRemote applies desc and then flushes the buffered candidates in
// arrival order.
func (g *remoteGate) setRemote(desc webrtc.SessionDescription) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.conn.SetRemoteDescription(desc); err != nil {
		return err
	}
	g.remoteSet = true

	pending := g.pending
	g.pending = nil
	if len(pending) > 0 {
		logging.Debug("Flushing %d buffered candidates", len(pending))
	}
	for _, c := range pending {
		g.applyLocked(c)
	}
	return nil
}

func (g *remoteGate) applyLocked(c webrtc.ICECandidateInit) {
	if err := g.conn.AddICECandidate(c); err != nil {
		logging.Warn("Adding remote candidate failed: %v", err)
	}
}

// localGate holds local candidates until our description is published;
// the store refuses candidates for a room without an offer.
type localGate struct {
	mu        sync.Mutex
	published bool
	held      []webrtc.ICECandidateInit
}

// offer returns true if c may be sent now; otherwise it is held.
func (g *localGate) offer(c webrtc.ICECandidateInit) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.published {
		return true
	}
	g.held = append(g.held, c)
	return false
}

// open marks the description as published and returns the held
// candidates.
func (g *localGate) open() []webrtc.ICECandidateInit {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.published = true
	held := g.held
	g.held = nil
	return held
}
