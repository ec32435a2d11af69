package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/peer"
	"github.com/mossy-p/reunion/internal/store"
	"github.com/pion/webrtc/v4"
)

// fakeConn scripts a peer connection. It records every applied remote
// candidate and counts the ones applied before a remote description.
type fakeConn struct {
	mu            sync.Mutex
	name          string
	sigState      webrtc.SignalingState
	remoteSet     bool
	applied       []webrtc.ICECandidateInit
	earlyApplied  int
	tracks        int
	closed        bool
	channels      []*fakeChannel
	onCandidate   func(peer.Candidate)
	onState       func(webrtc.PeerConnectionState)
	onDataChannel func(peer.DataChannel)
}

func newFakeConn(name string) *fakeConn {
	return &fakeConn{name: name, sigState: webrtc.SignalingStateStable}
}

func (c *fakeConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0 offer from " + c.name}, nil
}

func (c *fakeConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0 answer from " + c.name}, nil
}

func (c *fakeConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc.Type == webrtc.SDPTypeOffer {
		c.sigState = webrtc.SignalingStateHaveLocalOffer
	} else {
		c.sigState = webrtc.SignalingStateStable
	}
	return nil
}

func (c *fakeConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if desc.Type == webrtc.SDPTypeOffer {
		c.sigState = webrtc.SignalingStateHaveRemoteOffer
	} else {
		c.sigState = webrtc.SignalingStateStable
	}
	c.remoteSet = true
	return nil
}

func (c *fakeConn) AddICECandidate(init webrtc.ICECandidateInit) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.remoteSet {
		c.earlyApplied++
		return errors.New("no remote description")
	}
	c.applied = append(c.applied, init)
	return nil
}

func (c *fakeConn) SignalingState() webrtc.SignalingState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sigState
}

func (c *fakeConn) ConnectionState() webrtc.PeerConnectionState {
	return webrtc.PeerConnectionStateNew
}

func (c *fakeConn) AddTrack(webrtc.TrackLocal) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracks++
	return nil
}

func (c *fakeConn) CreateDataChannel(label string) (peer.DataChannel, error) {
	ch := &fakeChannel{label: label}
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	c.mu.Unlock()
	return ch, nil
}

func (c *fakeConn) OnICECandidate(fn func(peer.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = fn
}

func (c *fakeConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = fn
}

func (c *fakeConn) OnDataChannel(fn func(peer.DataChannel)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDataChannel = fn
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	fn := c.onState
	c.mu.Unlock()
	if fn != nil {
		fn(webrtc.PeerConnectionStateClosed)
	}
	return nil
}

// gather simulates the ICE agent producing a local candidate.
func (c *fakeConn) gather(addr string) {
	c.mu.Lock()
	fn := c.onCandidate
	c.mu.Unlock()
	fn(peer.Candidate{
		Address: addr,
		Init:    webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 " + addr + " 50000 typ host"},
	})
}

func (c *fakeConn) setState(state webrtc.PeerConnectionState) {
	c.mu.Lock()
	fn := c.onState
	c.mu.Unlock()
	fn(state)
}

// remoteChannel simulates the caller's data channel arriving at the callee.
func (c *fakeConn) remoteChannel(label string) *fakeChannel {
	ch := &fakeChannel{label: label}
	c.mu.Lock()
	c.channels = append(c.channels, ch)
	fn := c.onDataChannel
	c.mu.Unlock()
	fn(ch)
	return ch
}

func (c *fakeConn) snapshot() (applied []webrtc.ICECandidateInit, early int, remoteSet, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), c.applied...), c.earlyApplied, c.remoteSet, c.closed
}

func (c *fakeConn) channelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

type fakeChannel struct {
	label string

	mu        sync.Mutex
	sent      []string
	closed    bool
	onOpen    func()
	onClose   func()
	onError   func(error)
	onMessage func([]byte)
}

func (d *fakeChannel) Label() string { return d.label }

func (d *fakeChannel) SendText(text string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, text)
	return nil
}

func (d *fakeChannel) OnOpen(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onOpen = fn
}

func (d *fakeChannel) OnClose(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onClose = fn
}

func (d *fakeChannel) OnError(fn func(error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onError = fn
}

func (d *fakeChannel) OnMessage(fn func([]byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onMessage = fn
}

func (d *fakeChannel) Close() error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func (d *fakeChannel) open() {
	d.mu.Lock()
	fn := d.onOpen
	d.mu.Unlock()
	fn()
}

func (d *fakeChannel) receive(msg string) {
	d.mu.Lock()
	fn := d.onMessage
	d.mu.Unlock()
	fn([]byte(msg))
}

// fakeFactory hands out fakeConns and remembers them.
type fakeFactory struct {
	name  string
	mu    sync.Mutex
	conns []*fakeConn
}

func (f *fakeFactory) NewConnection() (peer.Connection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := newFakeConn(f.name)
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *fakeFactory) last() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[len(f.conns)-1]
}

// storeSignaler runs the Signaler contract straight against a room store
// and records published candidates.
type storeSignaler struct {
	st store.Store

	mu     sync.Mutex
	posted []webrtc.ICECandidateInit
	offers int
}

func newStoreSignaler() *storeSignaler {
	return &storeSignaler{st: store.NewMemoryStore(clock.Real())}
}

func (s *storeSignaler) PostOffer(ctx context.Context, roomID, sdp string) error {
	s.mu.Lock()
	s.offers++
	s.mu.Unlock()
	return s.st.PutOffer(ctx, roomID, sdp)
}

func (s *storeSignaler) GetOffer(ctx context.Context, roomID string) (string, error) {
	return s.st.Offer(ctx, roomID)
}

func (s *storeSignaler) PostAnswer(ctx context.Context, roomID, sdp string) error {
	return s.st.PutAnswer(ctx, roomID, sdp)
}

func (s *storeSignaler) GetAnswer(ctx context.Context, roomID string) (string, error) {
	return s.st.Answer(ctx, roomID)
}

func (s *storeSignaler) PostCandidate(ctx context.Context, roomID string, side models.Side, c webrtc.ICECandidateInit) error {
	raw, _ := json.Marshal(c)
	if err := s.st.AppendCandidate(ctx, roomID, side, raw); err != nil {
		return err
	}
	s.mu.Lock()
	s.posted = append(s.posted, c)
	s.mu.Unlock()
	return nil
}

func (s *storeSignaler) GetCandidates(ctx context.Context, roomID string, side models.Side) ([]webrtc.ICECandidateInit, error) {
	raws, err := s.st.Candidates(ctx, roomID, side)
	if err != nil {
		return nil, err
	}
	out := make([]webrtc.ICECandidateInit, 0, len(raws))
	for _, raw := range raws {
		var c webrtc.ICECandidateInit
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *storeSignaler) GetState(ctx context.Context, roomID string) (models.RoomState, error) {
	return s.st.State(ctx, roomID)
}

func (s *storeSignaler) postedCandidates() []webrtc.ICECandidateInit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), s.posted...)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func fastConfig() Config {
	return Config{PollInterval: 5 * time.Millisecond, OfferTimeout: time.Second, Clock: clock.Real()}
}
