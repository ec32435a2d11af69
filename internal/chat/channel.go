package chat

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/models"
)

// Transport carries text frames. *session.Session implements it.
type Transport interface {
	Send(text string) error
	OnMessage(func([]byte))
}

// Options tune a Channel. Zero values take the defaults.
type Options struct {
	// Throttle is the minimum spacing of presence sends.
	Throttle time.Duration
	Clock    clock.Clock
	// OnMessage is called for every content message, local or remote.
	OnMessage func(models.ChatMessage)
	// OnRoster is called after a remote presence changed the roster.
	OnRoster func([]Participant)
}

// Channel runs the protocol for the local participant.
type Channel struct {
	t    Transport
	opts Options

	mu       sync.Mutex
	self     Participant
	remotes  []Participant
	messages []models.ChatMessage
	lastSent time.Time
	sentOnce bool
	trailing *clock.Timer
	stopped  bool
}

// New creates a channel for self. An empty self.ID gets a random one.
func New(t Transport, self Participant, opts Options) *Channel {
	if opts.Throttle <= 0 {
		opts.Throttle = 800 * time.Millisecond
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if self.ID == "" {
		self.ID = uuid.NewString()
	}
	self.IsYou = true
	return &Channel{t: t, opts: opts, self: self}
}

// Start subscribes to the transport and announces presence. Call it once
// the data channel is open.
func (c *Channel) Start() {
	c.t.OnMessage(c.receive)
	c.announce()
}

// Stop cancels a pending trailing presence.
func (c *Channel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	if c.trailing != nil {
		c.trailing.Stop()
		c.trailing = nil
	}
}

func (c *Channel) Self() Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// Roster returns the local participant first, then the remote ones in
// arrival order.
func (c *Channel) Roster() []Participant {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Participant{c.self}, c.remotes...)
}

// Messages returns the message log, local and remote, in order.
func (c *Channel) Messages() []models.ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.ChatMessage(nil), c.messages...)
}

func (c *Channel) SetMuted(muted bool) {
	c.update(func(p *Participant) { p.IsMuted = muted })
}

func (c *Channel) SetName(name string) {
	c.update(func(p *Participant) { p.Name = name })
}

func (c *Channel) SetAvatar(avatar string) {
	c.update(func(p *Participant) { p.Avatar = avatar })
}

func (c *Channel) update(fn func(*Participant)) {
	c.mu.Lock()
	fn(&c.self)
	c.mu.Unlock()
	c.announce()
}

// SendText sends a text message and appends it to the log.
func (c *Channel) SendText(text string) error {
	content, err := json.Marshal(text)
	if err != nil {
		return err
	}
	return c.sendContent(models.ChatTypeText, content)
}

// SendFile shares a file that was uploaded elsewhere.
func (c *Channel) SendFile(name, url string) error {
	content, err := json.Marshal(models.FileRef{Name: name, URL: url})
	if err != nil {
		return err
	}
	return c.sendContent(models.ChatTypeFile, content)
}

func (c *Channel) sendContent(kind string, content json.RawMessage) error {
	c.mu.Lock()
	msg := models.ChatMessage{Type: kind, Content: content, Sender: c.self.Name, Avatar: c.self.Avatar}
	c.mu.Unlock()

	data, err := encodeContent(msg)
	if err != nil {
		return err
	}
	if err := c.t.Send(string(data)); err != nil {
		return fmt.Errorf("sending %s message: %w", kind, err)
	}
	c.appendMessage(msg)
	return nil
}

func (c *Channel) appendMessage(msg models.ChatMessage) {
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	if c.opts.OnMessage != nil {
		c.opts.OnMessage(msg)
	}
}

func (c *Channel) receive(data []byte) {
	p, msg, err := decode(data)
	if err != nil {
		logging.Warn("Ignoring side-channel message: %v", err)
		return
	}

	if msg != nil {
		c.appendMessage(*msg)
		return
	}

	p.IsYou = false
	c.mu.Lock()
	if p.ID == c.self.ID {
		c.mu.Unlock()
		return
	}
	c.remotes = upsert(c.remotes, *p)
	roster := append([]Participant{c.self}, c.remotes...)
	c.mu.Unlock()

	if c.opts.OnRoster != nil {
		c.opts.OnRoster(roster)
	}
	c.announce()
}

// announce sends presence now if the last send is older than the throttle,
// otherwise schedules one trailing send that carries the latest state.
func (c *Channel) announce() {
	c.mu.Lock()
	if c.stopped || c.trailing != nil {
		c.mu.Unlock()
		return
	}
	now := c.opts.Clock.Now()
	if wait := c.opts.Throttle - now.Sub(c.lastSent); c.sentOnce && wait > 0 {
		c.trailing = c.opts.Clock.AfterFunc(wait, c.flushTrailing)
		c.mu.Unlock()
		return
	}
	c.lastSent, c.sentOnce = now, true
	self := c.self
	c.mu.Unlock()

	c.sendPresence(self)
}

func (c *Channel) flushTrailing() {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return
	}
	c.trailing = nil
	c.lastSent, c.sentOnce = c.opts.Clock.Now(), true
	self := c.self
	c.mu.Unlock()

	c.sendPresence(self)
}

func (c *Channel) sendPresence(self Participant) {
	data, err := encodePresence(self)
	if err != nil {
		logging.Error("Encoding presence: %v", err)
		return
	}
	if err := c.t.Send(string(data)); err != nil {
		logging.Warn("Sending presence: %v", err)
	}
}
