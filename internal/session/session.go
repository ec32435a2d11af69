// Package session negotiates one peer connection through the room store:
// role resolution, the caller and callee paths, candidate exchange, and
// reconnection.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/media"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/peer"
	"github.com/pion/webrtc/v4"
)

// DataChannelState tracks the chat channel.
type DataChannelState string

const (
	DataChannelClosed     DataChannelState = "closed"
	DataChannelConnecting DataChannelState = "connecting"
	DataChannelOpen       DataChannelState = "open"
	DataChannelError      DataChannelState = "error"
)

// Config holds the negotiation policy.
type Config struct {
	// PollInterval paces the answer, offer and candidate polls.
	PollInterval time.Duration
	// OfferTimeout bounds how long the callee waits for an offer.
	OfferTimeout time.Duration
	Clock        clock.Clock
	// Media supplies local tracks; nil negotiates a data channel only.
	Media media.Source
}

func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.OfferTimeout <= 0 {
		c.OfferTimeout = 15 * time.Second
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
	return c
}

// Session is one negotiation attempt in one room. It is created by
// Manager.Join or Manager.Reconnect and is dead once closed.
type Session struct {
	roomID string
	role   models.Side
	cfg    Config
	sig    Signaler
	conn   peer.Connection

	remote *remoteGate
	local  localGate

	// staleOffer was answered by an earlier session in this room; the
	// callee never answers it again.
	staleOffer string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	answerNudge    chan struct{}
	candidateNudge chan struct{}
	offerNudge     chan struct{}
	stopCandidates chan struct{}
	stopOnce       sync.Once

	ready     chan struct{}
	readyOnce sync.Once
	failed    chan struct{}
	failOnce  sync.Once
	closeOnce sync.Once

	// deliverMu keeps inbound messages in order across OnMessage.
	deliverMu sync.Mutex

	mu        sync.Mutex
	closed    bool
	err       error
	connState webrtc.PeerConnectionState
	dcState   DataChannelState
	dc        peer.DataChannel
	onMessage func([]byte)
	inbox     [][]byte
	answered  string
}

func newSession(roomID string, role models.Side, cfg Config, sig Signaler, conn peer.Connection, staleOffer string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		roomID:         roomID,
		role:           role,
		staleOffer:     staleOffer,
		cfg:            cfg,
		sig:            sig,
		conn:           conn,
		remote:         newRemoteGate(conn),
		ctx:            ctx,
		cancel:         cancel,
		answerNudge:    make(chan struct{}, 1),
		candidateNudge: make(chan struct{}, 1),
		offerNudge:     make(chan struct{}, 1),
		stopCandidates: make(chan struct{}),
		ready:          make(chan struct{}),
		failed:         make(chan struct{}),
		connState:      webrtc.PeerConnectionStateNew,
		dcState:        DataChannelClosed,
	}
}

func (s *Session) RoomID() string    { return s.roomID }
func (s *Session) Role() models.Side { return s.role }

// Ready is closed when the chat data channel opens.
func (s *Session) Ready() <-chan struct{} { return s.ready }

// Failed is closed when the session hits a terminal error; Err returns it.
func (s *Session) Failed() <-chan struct{} { return s.failed }

func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *Session) ConnectionState() webrtc.PeerConnectionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connState
}

func (s *Session) DataChannelState() DataChannelState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dcState
}

// Send writes text on the chat data channel.
func (s *Session) Send(text string) error {
	s.mu.Lock()
	dc, state := s.dc, s.dcState
	s.mu.Unlock()

	if dc == nil || state != DataChannelOpen {
		return fmt.Errorf("data channel is %s", state)
	}
	return dc.SendText(text)
}

// OnMessage sets the handler for inbound data channel messages. Messages
// received before a handler is set are delivered to it in order.
func (s *Session) OnMessage(fn func([]byte)) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.onMessage = fn
	inbox := s.inbox
	s.inbox = nil
	s.mu.Unlock()

	for _, msg := range inbox {
		fn(msg)
	}
}

// Close tears down the connection and stops every loop. Safe to call more
// than once and from any goroutine except the session's own loops.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		dc := s.dc
		if s.dcState != DataChannelError {
			s.dcState = DataChannelClosed
		}
		s.mu.Unlock()

		s.cancel()
		if dc != nil {
			dc.Close()
		}
		err = s.conn.Close()
		s.wg.Wait()

		s.mu.Lock()
		s.connState = webrtc.PeerConnectionStateClosed
		s.mu.Unlock()
		logging.Debug("Session in room %s closed", s.roomID)
	})
	return err
}

func (s *Session) spawn(fn func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		fn()
	}()
}

func (s *Session) fail(err error) {
	s.failOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		logging.Error("Session in room %s failed: %v", s.roomID, err)
		close(s.failed)
	})
}

// answeredOffer returns the offer this session answered, or the one it
// inherited as stale if it never answered.
func (s *Session) answeredOffer() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.answered != "" {
		return s.answered
	}
	return s.staleOffer
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// start wires the connection callbacks and runs the role's path. For the
// caller it returns once the offer is published; for the callee once the
// answer is published, unless background is set: then the callee path runs
// on the session's own context and its errors surface through Failed.
func (s *Session) start(ctx context.Context, offer string, background bool) error {
	s.conn.OnConnectionStateChange(s.handleConnectionState)
	s.conn.OnICECandidate(s.handleLocalCandidate)
	s.conn.OnDataChannel(func(dc peer.DataChannel) {
		if dc.Label() != peer.ChatLabel {
			logging.Warn("Ignoring unexpected data channel %q", dc.Label())
			return
		}
		s.attachDataChannel(dc)
	})

	s.spawn(s.pollCandidates)
	if w, ok := s.sig.(Watcher); ok {
		s.spawn(func() { s.watch(w) })
	}

	for _, track := range media.Acquire(s.cfg.Media) {
		if err := s.conn.AddTrack(track); err != nil {
			logging.Warn("Attaching %s track failed: %v", track.Kind(), err)
		}
	}

	if s.role == models.SideCallee && background {
		s.spawn(func() {
			if err := s.runCallee(s.ctx, offer); err != nil && s.ctx.Err() == nil {
				s.fail(err)
			}
		})
		return nil
	}

	// Join's context only bounds the setup; the loops run on the session's.
	ctx, cancel := mergeCancel(ctx, s.ctx)
	defer cancel()

	if s.role == models.SideCaller {
		return s.runCaller(ctx)
	}
	return s.runCallee(ctx, offer)
}

func (s *Session) runCaller(ctx context.Context) error {
	dc, err := s.conn.CreateDataChannel(peer.ChatLabel)
	if err != nil {
		return fmt.Errorf("creating data channel: %w", err)
	}
	s.attachDataChannel(dc)

	offer, err := s.conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("creating offer: %w", err)
	}
	if err := s.conn.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("setting local offer: %w", err)
	}
	raw, err := encodeDescription(offer)
	if err != nil {
		return err
	}
	if err := s.sig.PostOffer(ctx, s.roomID, raw); err != nil {
		return fmt.Errorf("publishing offer: %w", err)
	}
	logging.Info("Offer published in room %s", s.roomID)

	s.publishHeld()
	s.spawn(s.pollAnswer)
	return nil
}

func (s *Session) runCallee(ctx context.Context, offerRaw string) error {
	if offerRaw == s.staleOffer {
		offerRaw = ""
	}
	if offerRaw == "" {
		var err error
		if offerRaw, err = s.waitForOffer(ctx); err != nil {
			return err
		}
	}

	offer, err := ParseDescription(offerRaw, webrtc.SDPTypeOffer)
	if err != nil {
		return err
	}
	if err := s.remote.setRemote(offer); err != nil {
		return fmt.Errorf("setting remote offer: %w", err)
	}

	answer, err := s.conn.CreateAnswer()
	if err != nil {
		return fmt.Errorf("creating answer: %w", err)
	}
	if err := s.conn.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("setting local answer: %w", err)
	}
	raw, err := encodeDescription(answer)
	if err != nil {
		return err
	}
	if err := s.sig.PostAnswer(ctx, s.roomID, raw); err != nil {
		return fmt.Errorf("publishing answer: %w", err)
	}
	logging.Info("Answer published in room %s", s.roomID)

	s.mu.Lock()
	s.answered = offerRaw
	s.mu.Unlock()
	s.publishHeld()
	return nil
}

// waitForOffer polls for a fresh offer until OfferTimeout. The first fetch
// is immediate. An offer equal to staleOffer counts as none.
func (s *Session) waitForOffer(ctx context.Context) (string, error) {
	deadline := s.cfg.Clock.After(s.cfg.OfferTimeout)
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		offer, err := s.sig.GetOffer(ctx, s.roomID)
		switch {
		case err != nil && ctx.Err() == nil:
			logging.Warn("Polling offer: %v", err)
		case offer != "" && offer != s.staleOffer:
			return offer, nil
		}

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("%w: no offer in room %s after %s", ErrNegotiationTimeout, s.roomID, s.cfg.OfferTimeout)
		case <-ticker.C:
		case <-s.offerNudge:
		}
	}
}

// pollAnswer runs while the caller's offer is outstanding.
func (s *Session) pollAnswer() {
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		case <-s.answerNudge:
		}
		if s.conn.SignalingState() != webrtc.SignalingStateHaveLocalOffer {
			return
		}

		raw, err := s.sig.GetAnswer(s.ctx, s.roomID)
		if err != nil {
			if s.ctx.Err() == nil {
				logging.Warn("Polling answer: %v", err)
			}
			continue
		}
		if raw == "" {
			continue
		}

		answer, err := ParseDescription(raw, webrtc.SDPTypeAnswer)
		if err != nil {
			s.fail(err)
			return
		}
		if err := s.remote.setRemote(answer); err != nil {
			s.fail(fmt.Errorf("%w: applying answer: %v", ErrPeerConnectionFailure, err))
			return
		}
		logging.Info("Answer applied in room %s", s.roomID)
		return
	}
}

// pollCandidates fetches the other side's candidates until the connection
// settles.
func (s *Session) pollCandidates() {
	ticker := s.cfg.Clock.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	from := s.role.Opposite()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-s.stopCandidates:
			return
		case <-ticker.C:
		case <-s.candidateNudge:
		}

		candidates, err := s.sig.GetCandidates(s.ctx, s.roomID, from)
		if err != nil {
			if s.ctx.Err() == nil {
				logging.Warn("Polling %s candidates: %v", from, err)
			}
			continue
		}
		for _, c := range candidates {
			s.remote.receive(c)
		}
	}
}

func (s *Session) watch(w Watcher) {
	events, err := w.Watch(s.ctx, s.roomID)
	if err != nil {
		logging.Debug("Room events unavailable, polling only: %v", err)
		return
	}
	for evt := range events {
		if evt.From == s.role {
			continue
		}
		switch evt.Type {
		case models.EventOffer:
			nudge(s.offerNudge)
		case models.EventAnswer:
			nudge(s.answerNudge)
		case models.EventCandidate:
			nudge(s.candidateNudge)
		}
	}
}

func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func (s *Session) handleLocalCandidate(c peer.Candidate) {
	if peer.IsFilteredCandidate(c) {
		logging.Debug("Dropping private candidate %s", c.Address)
		return
	}
	if !s.local.offer(c.Init) {
		return
	}
	s.publishCandidate(c.Init)
}

func (s *Session) publishHeld() {
	for _, c := range s.local.open() {
		s.publishCandidate(c)
	}
}

func (s *Session) publishCandidate(c webrtc.ICECandidateInit) {
	if err := s.sig.PostCandidate(s.ctx, s.roomID, s.role, c); err != nil && s.ctx.Err() == nil {
		logging.Warn("Publishing candidate: %v", err)
	}
}

func (s *Session) handleConnectionState(state webrtc.PeerConnectionState) {
	s.mu.Lock()
	closing := s.closed
	if !closing {
		s.connState = state
	}
	s.mu.Unlock()
	if closing {
		return
	}

	logging.Info("Connection state in room %s: %s", s.roomID, state)

	switch state {
	case webrtc.PeerConnectionStateConnected,
		webrtc.PeerConnectionStateDisconnected,
		webrtc.PeerConnectionStateFailed,
		webrtc.PeerConnectionStateClosed:
		s.stopOnce.Do(func() { close(s.stopCandidates) })
	}

	switch state {
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.fail(fmt.Errorf("%w: connection %s", ErrPeerConnectionFailure, state))
	}
}

func (s *Session) attachDataChannel(dc peer.DataChannel) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		dc.Close()
		return
	}
	s.dc = dc
	s.dcState = DataChannelConnecting
	s.mu.Unlock()

	dc.OnOpen(func() {
		s.setDataChannelState(DataChannelOpen)
		logging.Info("Data channel open in room %s", s.roomID)
		s.readyOnce.Do(func() { close(s.ready) })
	})
	dc.OnClose(func() {
		if s.isClosed() {
			return
		}
		s.setDataChannelState(DataChannelClosed)
		s.fail(fmt.Errorf("%w: data channel closed", ErrPeerConnectionFailure))
	})
	dc.OnError(func(err error) {
		if s.isClosed() {
			return
		}
		s.setDataChannelState(DataChannelError)
		s.fail(fmt.Errorf("%w: data channel: %v", ErrPeerConnectionFailure, err))
	})
	dc.OnMessage(s.deliver)
}

func (s *Session) setDataChannelState(state DataChannelState) {
	s.mu.Lock()
	s.dcState = state
	s.mu.Unlock()
}

func (s *Session) deliver(msg []byte) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	fn := s.onMessage
	if fn == nil {
		s.inbox = append(s.inbox, append([]byte(nil), msg...))
	}
	s.mu.Unlock()

	if fn != nil {
		fn(msg)
	}
}

// mergeCancel returns a context that is done when either parent is.
func mergeCancel(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancelCause(a)
	stop := context.AfterFunc(b, func() { cancel(context.Cause(b)) })
	return ctx, func() {
		stop()
		cancel(errors.New("session setup finished"))
	}
}
