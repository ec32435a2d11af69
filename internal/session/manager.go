package session

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/peer"
)

// Manager owns the local participant's current session. Only one Join or
// Reconnect runs at a time; a concurrent call fails with
// ErrJoinInProgress instead of racing.
type Manager struct {
	sig     Signaler
	factory peer.Factory
	cfg     Config

	joining atomic.Bool

	mu      sync.Mutex
	current *Session
	// answered is the last offer a callee session of ours answered.
	answered answeredOffer
}

type answeredOffer struct {
	roomID string
	offer  string
}

func NewManager(sig Signaler, factory peer.Factory, cfg Config) *Manager {
	return &Manager{sig: sig, factory: factory, cfg: cfg.withDefaults()}
}

// Join resolves our role in roomID and negotiates a new session. Any
// previous session is closed first.
func (m *Manager) Join(ctx context.Context, roomID string, hint Hint) (*Session, error) {
	if !m.joining.CompareAndSwap(false, true) {
		return nil, ErrJoinInProgress
	}
	defer m.joining.Store(false)

	m.closeCurrent()

	res := Resolve(ctx, m.sig, roomID, hint)
	logging.Info("Joining room %s as %s (hint %s)", roomID, res.Role, hint)
	return m.open(ctx, roomID, res.Role, res.Offer, false)
}

// Reconnect replaces the current session with a fresh one in the same
// room and role. The caller re-offers and returns once the offer is
// published. The callee returns at once and answers in the background
// as soon as the room holds an offer it has not answered yet; the caller
// usually re-offers after its own failure, which may be later than ours.
// Failing to get a fresh offer within OfferTimeout surfaces through the
// session's Failed channel.
func (m *Manager) Reconnect(ctx context.Context) (*Session, error) {
	if !m.joining.CompareAndSwap(false, true) {
		return nil, ErrJoinInProgress
	}
	defer m.joining.Store(false)

	old := m.closeCurrent()
	if old == nil {
		return nil, ErrNoSession
	}

	logging.Info("Reconnecting to room %s as %s", old.roomID, old.role)
	return m.open(ctx, old.roomID, old.role, "", true)
}

// Current returns the live session, or nil.
func (m *Manager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Leave closes the current session.
func (m *Manager) Leave() error {
	if m.closeCurrent() == nil {
		return ErrNoSession
	}
	return nil
}

func (m *Manager) closeCurrent() *Session {
	m.mu.Lock()
	old := m.current
	m.current = nil
	m.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			logging.Debug("Closing previous session: %v", err)
		}
		if offer := old.answeredOffer(); offer != "" {
			m.mu.Lock()
			m.answered = answeredOffer{roomID: old.roomID, offer: offer}
			m.mu.Unlock()
		}
	}
	return old
}

func (m *Manager) open(ctx context.Context, roomID string, role models.Side, offer string, background bool) (*Session, error) {
	conn, err := m.factory.NewConnection()
	if err != nil {
		return nil, err
	}

	var stale string
	m.mu.Lock()
	if m.answered.roomID == roomID {
		stale = m.answered.offer
	}
	m.mu.Unlock()

	s := newSession(roomID, role, m.cfg, m.sig, conn, stale)
	if err := s.start(ctx, offer, background); err != nil {
		s.Close()
		return nil, err
	}

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	return s, nil
}
