package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

// recordedFrame is one line of a JSON-lines pose recording:
//
//	{"t": 1500, "fps": 30, "keypoints": [{"name": "left_hip", "x": 0.4, "y": 0.6, "score": 0.8}, ...]}
//
// t is milliseconds from the start of the recording. A frame without
// keypoints records a sample where no person was detected.
type recordedFrame struct {
	T         *int64     `json:"t"`
	FPS       *float64   `json:"fps,omitempty"`
	Keypoints []Keypoint `json:"keypoints"`
}

// ReplaySource replays a JSON-lines pose recording. Blank lines and lines
// starting with '#' are ignored.
type ReplaySource struct {
	scanner *bufio.Scanner
	start   time.Time
	line    int
	frames  int
	lastT   int64
}

// NewReplaySource reads a recording from r. Frame times are offsets from start.
func NewReplaySource(r io.Reader, start time.Time) *ReplaySource {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ReplaySource{scanner: sc, start: start}
}

// Estimate returns the next recorded frame, or io.EOF at the end of the recording.
func (s *ReplaySource) Estimate(ctx context.Context) (Pose, bool, error) {
	if err := ctx.Err(); err != nil {
		return Pose{}, false, err
	}
	for s.scanner.Scan() {
		s.line++
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var f recordedFrame
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return Pose{}, false, fmt.Errorf("parsing recording line %d: %w", s.line, err)
		}
		t := s.lastT
		if f.T != nil {
			t = *f.T
		}
		if t < s.lastT {
			return Pose{}, false, fmt.Errorf("recording line %d: time %dms goes backwards (previous %dms)", s.line, t, s.lastT)
		}
		s.lastT = t
		s.frames++

		p := Pose{
			Keypoints: f.Keypoints,
			FPS:       f.FPS,
			At:        s.start.Add(time.Duration(t) * time.Millisecond),
		}
		return p, len(f.Keypoints) > 0, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Pose{}, false, fmt.Errorf("reading recording: %w", err)
	}
	return Pose{}, false, io.EOF
}

// Frames returns the number of frames read so far.
func (s *ReplaySource) Frames() int {
	return s.frames
}
