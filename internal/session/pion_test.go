package session

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mossy-p/reunion/internal/clock"
	"github.com/mossy-p/reunion/internal/handlers"
	"github.com/mossy-p/reunion/internal/models"
	"github.com/mossy-p/reunion/internal/peer"
	"github.com/mossy-p/reunion/internal/signaling"
	"github.com/mossy-p/reunion/internal/store"
	"github.com/pion/webrtc/v4"
)

// TestPionLoopback negotiates two real pion peers through the HTTP room
// store on the loopback interface.
func TestPionLoopback(t *testing.T) {
	if testing.Short() {
		t.Skip("real ICE negotiation")
	}

	gin.SetMode(gin.TestMode)
	router := gin.New()
	handlers.Register(router, store.NewMemoryStore(clock.Real()), handlers.NewHub(), "secret")
	srv := httptest.NewServer(router)
	defer srv.Close()

	client, err := signaling.NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	factory, err := peer.NewPionFactory(peer.Options{IncludeLoopback: true})
	if err != nil {
		t.Fatalf("NewPionFactory: %v", err)
	}

	cfg := Config{PollInterval: 100 * time.Millisecond, OfferTimeout: 5 * time.Second, Clock: clock.Real()}
	a := NewManager(client, factory, cfg)
	b := NewManager(client, factory, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	sa, err := a.Join(ctx, "R1", HintNone)
	if err != nil {
		t.Fatalf("A join: %v", err)
	}
	defer sa.Close()
	sb, err := b.Join(ctx, "R1", HintNone)
	if err != nil {
		t.Fatalf("B join: %v", err)
	}
	defer sb.Close()

	if sa.Role() != models.SideCaller || sb.Role() != models.SideCallee {
		t.Fatalf("roles = %s/%s", sa.Role(), sb.Role())
	}

	received := make(chan string, 1)
	sb.OnMessage(func(msg []byte) {
		select {
		case received <- string(msg):
		default:
		}
	})

	for _, s := range []*Session{sa, sb} {
		select {
		case <-s.Ready():
		case <-s.Failed():
			t.Fatalf("%s failed: %v", s.Role(), s.Err())
		case <-ctx.Done():
			t.Fatalf("%s never opened the data channel", s.Role())
		}
	}
	waitFor(t, "caller to report connected", func() bool {
		return sa.ConnectionState() == webrtc.PeerConnectionStateConnected
	})

	if err := sa.Send("hola doctora"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-received:
		if got != "hola doctora" {
			t.Fatalf("received %q", got)
		}
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}
