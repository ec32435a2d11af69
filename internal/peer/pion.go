package peer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/pion/webrtc/v4"
)

// Options configure the pion factory.
type Options struct {
	STUNURLs []string
	// IncludeLoopback gathers 127.0.0.1 candidates. Only useful when both
	// peers run on the same host, as in tests.
	IncludeLoopback bool
}

// PionFactory builds pion peer connections with the private-range IP
// filter installed and the default codecs registered.
type PionFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
}

// NewPionFactory prepares the pion API once; connections share it.
func NewPionFactory(opts Options) (*PionFactory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("registering codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	settingEngine.SetIPFilter(keepIP)
	if opts.IncludeLoopback {
		settingEngine.SetIncludeLoopbackCandidate(true)
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithSettingEngine(settingEngine),
	)

	var config webrtc.Configuration
	if len(opts.STUNURLs) > 0 {
		config.ICEServers = []webrtc.ICEServer{{URLs: opts.STUNURLs}}
	}

	return &PionFactory{api: api, config: config}, nil
}

func (f *PionFactory) NewConnection() (Connection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("creating peer connection: %w", err)
	}
	return &pionConnection{pc: pc}, nil
}

type pionConnection struct {
	pc *webrtc.PeerConnection

	mu      sync.Mutex
	senders []*webrtc.RTPSender
}

func (c *pionConnection) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConnection) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConnection) AddICECandidate(init webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(init)
}

func (c *pionConnection) SignalingState() webrtc.SignalingState {
	return c.pc.SignalingState()
}

func (c *pionConnection) ConnectionState() webrtc.PeerConnectionState {
	return c.pc.ConnectionState()
}

func (c *pionConnection) AddTrack(track webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(track)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.senders = append(c.senders, sender)
	c.mu.Unlock()

	// RTCP must be read for interceptors (NACK, reports) to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *pionConnection) CreateDataChannel(label string) (DataChannel, error) {
	ordered := true
	dc, err := c.pc.CreateDataChannel(label, &webrtc.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return nil, err
	}
	return pionDataChannel{dc: dc}, nil
}

func (c *pionConnection) OnICECandidate(fn func(Candidate)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			logging.Debug("ICE gathering complete")
			return
		}
		fn(Candidate{Address: candidate.Address, Init: candidate.ToJSON()})
	})
}

func (c *pionConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *pionConnection) OnDataChannel(fn func(DataChannel)) {
	c.pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		fn(pionDataChannel{dc: dc})
	})
}

func (c *pionConnection) Close() error {
	c.mu.Lock()
	senders := c.senders
	c.senders = nil
	c.mu.Unlock()

	var errs []error
	for _, s := range senders {
		if err := s.Stop(); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, c.pc.Close())
	return errors.Join(errs...)
}

type pionDataChannel struct {
	dc *webrtc.DataChannel
}

func (d pionDataChannel) Label() string { return d.dc.Label() }
func (d pionDataChannel) SendText(text string) error { return d.dc.SendText(text) }
func (d pionDataChannel) OnOpen(fn func()) { d.dc.OnOpen(fn) }
func (d pionDataChannel) OnClose(fn func()) { d.dc.OnClose(fn) }
func (d pionDataChannel) OnError(fn func(error)) { d.dc.OnError(fn) }
func (d pionDataChannel) Close() error { return d.dc.Close() }

func (d pionDataChannel) OnMessage(fn func([]byte)) {
	d.dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		fn(msg.Data)
	})
}
