package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/mossy-p/reunion/internal/chat"
	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/logging"
	"github.com/mossy-p/reunion/internal/media"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/peer"
	"github.com/mossy-p/reunion/internal/session"
	"github.com/mossy-p/reunion/internal/signaling"
)

const reconnectDelay = 2 * time.Second

func runJoin(g *globals, args []string) error {
	var (
		name         string
		hint         string
		audio, video bool
	)
	flagSet := pflag.NewFlagSet("join", pflag.ContinueOnError)
	flagSet.StringVar(&name, "name", "", "display name (default: a generated one)")
	flagSet.StringVar(&hint, "hint", "", "force the role: initiator or responder")
	flagSet.BoolVar(&audio, "audio", false, "send a silent audio track")
	flagSet.BoolVar(&video, "video", false, "offer a video track")
	roomID, err := parseRoom(flagSet, args)
	if err != nil {
		return err
	}
	h, err := parseHint(hint)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	self, err := localParticipant(ctx, models.LiteralName(name))
	if err != nil {
		return err
	}

	client, err := g.client()
	if err != nil {
		return err
	}
	factory, err := peer.NewPionFactory(peer.Options{STUNURLs: g.cfg.Reunion.STUNURLs})
	if err != nil {
		return err
	}

	cfg := session.Config{
		PollInterval: g.cfg.Reunion.PollInterval,
		OfferTimeout: g.cfg.Reunion.OfferTimeout,
	}
	if audio || video {
		cfg.Media = pumpedSource{
			ctx:    ctx,
			source: media.StaticSource{StreamID: "reunion-" + roomID, HasAudio: audio, HasVideo: video},
		}
	}
	mgr := session.NewManager(client, factory, cfg)

	sess, err := mgr.Join(ctx, roomID, h)
	if err != nil {
		pterm.Error.Println(session.UserMessage(err))
		return err
	}
	defer mgr.Leave()
	pterm.Info.Printfln("Joined room %s as %s, connecting...", roomID, sess.Role())

	tr := &relay{}
	tr.attach(sess)
	ch := chat.New(tr, self, chat.Options{
		Throttle:  g.cfg.Reunion.PresenceThrottle,
		OnMessage: printMessage,
		OnRoster:  printRoster,
	})
	defer ch.Stop()

	con := &consultation{
		ctx:      ctx,
		backup:   client,
		roomID:   roomID,
		ch:       ch,
		interval: g.cfg.Reunion.HeartbeatInterval,
	}
	lines := readLines(ctx)
	ready := sess.Ready()

	for {
		select {
		case <-ctx.Done():
			return finalize(client, roomID, ch)

		case <-ready:
			ready = nil
			pterm.Success.Printfln("Connected. Type a message, or /help.")
			con.connected()

		case <-sess.Failed():
			pterm.Warning.Println(session.UserMessage(sess.Err()))
			next, err := reconnect(ctx, mgr, roomID, sess.Role())
			if err != nil {
				return finalize(client, roomID, ch)
			}
			sess = next
			tr.attach(sess)
			ready = sess.Ready()

		case line, ok := <-lines:
			if !ok {
				return finalize(client, roomID, ch)
			}
			if quit := handleLine(ch, line); quit {
				return finalize(client, roomID, ch)
			}
		}
	}
}

// consultation starts the chat side of a joined room once its data channel
// is open. The transcript heartbeat starts on the first connection and
// keeps running across reconnects.
type consultation struct {
	ctx      context.Context
	backup   chat.Backup
	roomID   string
	ch       *chat.Channel
	clk      clock.Clock
	interval time.Duration

	heartbeat sync.Once
}

func (c *consultation) connected() {
	c.ch.Start()
	c.heartbeat.Do(func() {
		go chat.Heartbeat(c.ctx, c.backup, c.roomID, c.ch, c.clk, c.interval)
	})
}

// localParticipant resolves the display name. The terminal has no profile
// backend, so only literal names resolve; an empty one becomes guest-XXXX.
func localParticipant(ctx context.Context, name models.NameSource) (chat.Participant, error) {
	id := uuid.NewString()
	display, err := name.Resolve(ctx, nil)
	if err != nil {
		return chat.Participant{}, err
	}
	if display == "" {
		display = "guest-" + id[:4]
	}
	return chat.Participant{ID: id, Name: display}, nil
}

func parseHint(s string) (session.Hint, error) {
	switch s {
	case "":
		return session.HintNone, nil
	case "initiator":
		return session.HintInitiator, nil
	case "responder":
		return session.HintResponder, nil
	default:
		return session.HintNone, fmt.Errorf("join: invalid hint %q (want initiator or responder)", s)
	}
}

// reconnect retries until a new session starts negotiating. Once a failed
// attempt has dropped the old session, it rejoins with the same role.
func reconnect(ctx context.Context, mgr *session.Manager, roomID string, role models.Side) (*session.Session, error) {
	hint := session.HintResponder
	if role == models.SideCaller {
		hint = session.HintInitiator
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reconnectDelay):
		}

		sess, err := mgr.Reconnect(ctx)
		if errors.Is(err, session.ErrNoSession) {
			sess, err = mgr.Join(ctx, roomID, hint)
		}
		if err == nil {
			pterm.Info.Println("Reconnecting...")
			return sess, nil
		}
		pterm.Warning.Println(session.UserMessage(err))
	}
}

// finalize stores the transcript. It runs after the join context is
// cancelled, so it gets its own deadline.
func finalize(client *signaling.Client, roomID string, ch *chat.Channel) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	messages := ch.Messages()
	if err := client.Finalize(ctx, roomID, messages); err != nil {
		logging.Warn("Saving transcript failed: %v", err)
		return err
	}
	logging.Info("Saved %d messages for room %s", len(messages), roomID)
	return nil
}

func readLines(ctx context.Context) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case out <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// handleLine sends a chat line or runs a slash command. It reports whether
// the user asked to quit.
func handleLine(ch *chat.Channel, line string) bool {
	line = strings.TrimSpace(line)
	if line == "" {
		return false
	}
	if !strings.HasPrefix(line, "/") {
		if err := ch.SendText(line); err != nil {
			pterm.Warning.Printfln("Not sent: %v", err)
		}
		return false
	}

	cmd, arg, _ := strings.Cut(line[1:], " ")
	switch cmd {
	case "quit", "exit":
		return true
	case "mute":
		ch.SetMuted(true)
	case "unmute":
		ch.SetMuted(false)
	case "name":
		ch.SetName(arg)
	case "avatar":
		ch.SetAvatar(arg)
	case "file":
		fileName, url, ok := strings.Cut(arg, " ")
		if !ok {
			pterm.Warning.Println("usage: /file <name> <url>")
			return false
		}
		if err := ch.SendFile(fileName, url); err != nil {
			pterm.Warning.Printfln("Not sent: %v", err)
		}
	case "who":
		printRoster(ch.Roster())
	default:
		pterm.Println("/mute /unmute /name <n> /avatar <url> /file <name> <url> /who /quit")
	}
	return false
}

func printMessage(msg models.ChatMessage) {
	sender := pterm.FgCyan.Sprint(msg.Sender)
	switch msg.Type {
	case models.ChatTypeFile:
		var ref models.FileRef
		if err := json.Unmarshal(msg.Content, &ref); err == nil {
			pterm.Printfln("%s shared %s: %s", sender, ref.Name, ref.URL)
		}
	default:
		var text string
		if err := json.Unmarshal(msg.Content, &text); err == nil {
			pterm.Printfln("%s: %s", sender, text)
		}
	}
}

func printRoster(roster []chat.Participant) {
	var b strings.Builder
	for i, p := range roster {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(p.Name)
		if p.IsYou {
			b.WriteString(" (you)")
		}
		if p.IsMuted {
			b.WriteString(" [muted]")
		}
	}
	pterm.Info.Println("In the room: " + b.String())
}

// relay lets one chat.Channel outlive the sessions it runs over: a
// reconnect swaps the session underneath without losing the message log.
type relay struct {
	mu      sync.Mutex
	sess    *session.Session
	handler func([]byte)
}

func (r *relay) Send(text string) error {
	r.mu.Lock()
	sess := r.sess
	r.mu.Unlock()
	if sess == nil {
		return session.ErrNoSession
	}
	return sess.Send(text)
}

func (r *relay) OnMessage(fn func([]byte)) {
	r.mu.Lock()
	r.handler = fn
	sess := r.sess
	r.mu.Unlock()
	if sess != nil {
		sess.OnMessage(fn)
	}
}

func (r *relay) attach(sess *session.Session) {
	r.mu.Lock()
	r.sess = sess
	fn := r.handler
	r.mu.Unlock()
	if fn != nil {
		sess.OnMessage(fn)
	}
}

// pumpedSource opens static tracks and keeps their audio fed with silence
// for as long as ctx lives.
type pumpedSource struct {
	ctx    context.Context
	source media.StaticSource
}

func (p pumpedSource) Open(audio, video bool) ([]webrtc.TrackLocal, error) {
	tracks, err := p.source.Open(audio, video)
	if err != nil {
		return nil, err
	}
	go media.PumpSilence(p.ctx, tracks)
	return tracks, nil
}
