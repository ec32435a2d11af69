// Package media acquires the local tracks attached to a peer connection.
// Device capture lives outside this module; a Source stands in for it.
package media

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mossy-p/reunion/internal/logging"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// ErrDeviceUnavailable is returned by a Source that cannot open a device.
var ErrDeviceUnavailable = errors.New("media device unavailable")

// Source opens local tracks. A request for audio and video either returns
// both or fails.
type Source interface {
	Open(audio, video bool) ([]webrtc.TrackLocal, error)
}

// Acquire tries audio and video, then audio only, then gives up and
// returns no tracks. It never fails: a call with only a data channel is
// still a valid consultation.
func Acquire(src Source) []webrtc.TrackLocal {
	if src == nil {
		return nil
	}

	stages := []struct {
		name         string
		audio, video bool
	}{
		{"audio+video", true, true},
		{"audio", true, false},
	}
	for _, stage := range stages {
		tracks, err := src.Open(stage.audio, stage.video)
		if err == nil {
			logging.Debug("Acquired %s (%d tracks)", stage.name, len(tracks))
			return tracks
		}
		logging.Warn("Could not acquire %s: %v", stage.name, err)
	}
	logging.Warn("Continuing without local media")
	return nil
}

// StaticSource serves sample tracks backed by pion's static sample
// writer. HasAudio and HasVideo simulate which devices are present.
type StaticSource struct {
	StreamID string
	HasAudio bool
	HasVideo bool
}

func (s StaticSource) Open(audio, video bool) ([]webrtc.TrackLocal, error) {
	if audio && !s.HasAudio {
		return nil, fmt.Errorf("microphone: %w", ErrDeviceUnavailable)
	}
	if video && !s.HasVideo {
		return nil, fmt.Errorf("camera: %w", ErrDeviceUnavailable)
	}

	var tracks []webrtc.TrackLocal
	if audio {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio", s.StreamID)
		if err != nil {
			return nil, fmt.Errorf("creating audio track: %w", err)
		}
		tracks = append(tracks, track)
	}
	if video {
		track, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", s.StreamID)
		if err != nil {
			return nil, fmt.Errorf("creating video track: %w", err)
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// opusSilence is a single 20ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const frameDuration = 20 * time.Millisecond

// PumpSilence writes silent Opus frames to every audio track in tracks
// until ctx is done, so the remote side sees a live stream.
func PumpSilence(ctx context.Context, tracks []webrtc.TrackLocal) {
	var audio []*webrtc.TrackLocalStaticSample
	for _, t := range tracks {
		if s, ok := t.(*webrtc.TrackLocalStaticSample); ok && t.Kind() == webrtc.RTPCodecTypeAudio {
			audio = append(audio, s)
		}
	}
	if len(audio) == 0 {
		return
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, track := range audio {
				if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: frameDuration}); err != nil {
					logging.Debug("Writing silence to %s: %v", track.ID(), err)
				}
			}
		}
	}
}
