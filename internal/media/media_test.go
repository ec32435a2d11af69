package media

import (
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"
)

type scriptedSource struct {
	fail  map[[2]bool]bool
	calls [][2]bool
}

func (s *scriptedSource) Open(audio, video bool) ([]webrtc.TrackLocal, error) {
	key := [2]bool{audio, video}
	s.calls = append(s.calls, key)
	if s.fail[key] {
		return nil, ErrDeviceUnavailable
	}
	return StaticSource{StreamID: "s", HasAudio: true, HasVideo: true}.Open(audio, video)
}

func TestAcquireFallback(t *testing.T) {
	tests := []struct {
		name       string
		fail       map[[2]bool]bool
		wantTracks int
		wantCalls  int
	}{
		{"both", nil, 2, 1},
		{"no camera", map[[2]bool]bool{{true, true}: true}, 1, 2},
		{"nothing", map[[2]bool]bool{{true, true}: true, {true, false}: true}, 0, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &scriptedSource{fail: tt.fail}
			tracks := Acquire(src)
			if len(tracks) != tt.wantTracks {
				t.Errorf("tracks = %d, want %d", len(tracks), tt.wantTracks)
			}
			if len(src.calls) != tt.wantCalls {
				t.Errorf("calls = %v, want %d stages", src.calls, tt.wantCalls)
			}
		})
	}
}

func TestAcquireNilSource(t *testing.T) {
	if tracks := Acquire(nil); tracks != nil {
		t.Fatalf("tracks = %v", tracks)
	}
}

func TestStaticSource(t *testing.T) {
	src := StaticSource{StreamID: "consult", HasAudio: true}

	if _, err := src.Open(true, true); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("Open(audio, video) without camera = %v", err)
	}
	tracks, err := src.Open(true, false)
	if err != nil || len(tracks) != 1 {
		t.Fatalf("Open(audio) = %v, %v", tracks, err)
	}
	if tracks[0].Kind() != webrtc.RTPCodecTypeAudio || tracks[0].StreamID() != "consult" {
		t.Fatalf("track kind %s stream %s", tracks[0].Kind(), tracks[0].StreamID())
	}
}
