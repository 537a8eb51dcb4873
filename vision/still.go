package vision

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// StillConfig tells where and how often composed frames are saved as images
type StillConfig struct {
	Dir string
	// png or jpg
	Format string
	// Zero disables periodic stills, Request still works
	Interval time.Duration
}

// StillCapture saves composed frames as still images, on request or every Interval
type StillCapture struct {
	cfg       StillConfig
	ext       string
	requested atomic.Bool
	now       func() time.Time

	mu    sync.Mutex
	last  time.Time
	saved []string
}

// StillName is the file name of a still taken at t from frame index
func StillName(t time.Time, index int, ext string) string {
	return fmt.Sprintf("capture_%s_%06d.%s", t.Format("20060102_150405"), index, ext)
}

// NewStillCapture creates the target directory if needed
func NewStillCapture(cfg StillConfig) (*StillCapture, error) {
	ext := strings.ToLower(strings.TrimPrefix(cfg.Format, "."))
	switch ext {
	case "":
		ext = "png"
	case "jpeg":
		ext = "jpg"
	case "png", "jpg":
	default:
		return nil, errors.Errorf("unsupported still format %q", cfg.Format)
	}
	if cfg.Dir == "" {
		return nil, errors.New("still directory is required")
	}
	if cfg.Interval < 0 {
		return nil, errors.Errorf("still interval must not be negative, got %v", cfg.Interval)
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "Can't create still directory %s", cfg.Dir)
	}
	return &StillCapture{
		cfg: cfg,
		ext: ext,
		now: time.Now,
	}, nil
}

// Request asks for the next observed frame to be saved. Safe to call from any goroutine.
func (s *StillCapture) Request() {
	s.requested.Store(true)
}

// Observe saves frame when a still was requested or the interval has passed
func (s *StillCapture) Observe(frame *gocv.Mat, index int, tracks []mot.TrackSnapshot) error {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	due := s.requested.Swap(false)
	if s.cfg.Interval > 0 && (s.last.IsZero() || now.Sub(s.last) >= s.cfg.Interval) {
		due = true
	}
	if !due {
		return nil
	}
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}
	s.last = now
	path := filepath.Join(s.cfg.Dir, StillName(now, index, s.ext))
	if !gocv.IMWrite(path, *frame) {
		return errors.Errorf("Can't write still %s", path)
	}
	s.saved = append(s.saved, path)
	return nil
}

// Saved returns paths of stills written so far
func (s *StillCapture) Saved() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.saved))
	copy(out, s.saved)
	return out
}
