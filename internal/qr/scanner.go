package qr

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultScanDelay is how long a simulated scan takes to resolve.
const DefaultScanDelay = 2 * time.Second

// MsgCameraUnavailable is shown when camera access fails.
const MsgCameraUnavailable = "Unable to access camera. Please ensure camera permissions are granted."

// ErrCameraUnavailable is returned when the camera cannot be opened.
var ErrCameraUnavailable = errors.New(MsgCameraUnavailable)

// Constraints is the requested video stream.
type Constraints struct {
	FacingMode string `json:"facingMode"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
}

// RearCamera asks for the back camera at 1280x720.
var RearCamera = Constraints{FacingMode: "environment", Width: 1280, Height: 720}

// Stream is an open video stream. Stop releases every track.
type Stream interface {
	Stop()
}

// Camera opens video streams.
type Camera interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// ScannerState is what the scanner view renders.
type ScannerState struct {
	Scanning bool   `json:"scanning"`
	Error    string `json:"error,omitempty"`
	Result   string `json:"result,omitempty"`
}

// Scanner keeps a camera preview open and resolves simulated scans. No
// image is ever decoded; the preview only exists for the user.
type Scanner struct {
	clock clockwork.Clock
	delay time.Duration

	mu     sync.Mutex
	camera Camera
	stream Stream
	err    string
	result string
}

// NewScanner creates a closed scanner.
func NewScanner(camera Camera, clock clockwork.Clock, delay time.Duration) *Scanner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if delay < 0 {
		delay = 0
	}
	return &Scanner{camera: camera, clock: clock, delay: delay}
}

// Start opens the rear camera, replacing any stream already open.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	camera := s.camera
	s.mu.Unlock()

	var stream Stream
	err := ErrCameraUnavailable
	if camera != nil {
		stream, err = camera.Open(ctx, RearCamera)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	if err != nil {
		s.err = MsgCameraUnavailable
		return ErrCameraUnavailable
	}
	s.err = ""
	s.stream = stream
	return nil
}

// Retry clears the previous outcome and requests camera access again,
// optionally through a different camera.
func (s *Scanner) Retry(ctx context.Context, camera Camera) error {
	s.mu.Lock()
	s.result = ""
	s.err = ""
	if camera != nil {
		s.camera = camera
	}
	s.mu.Unlock()
	return s.Start(ctx)
}

// Scan resolves after the scan delay with a fresh payload.
func (s *Scanner) Scan(ctx context.Context) (string, error) {
	if s.delay > 0 {
		select {
		case <-s.clock.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	payload := ScanPayload()
	s.mu.Lock()
	s.result = payload
	s.mu.Unlock()
	return payload, nil
}

// Close releases the camera stream.
func (s *Scanner) Close() {
	s.mu.Lock()
	s.stopLocked()
	s.mu.Unlock()
}

// State reports what the view shows.
func (s *Scanner) State() ScannerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ScannerState{Scanning: s.stream != nil && s.err == "", Error: s.err, Result: s.result}
}

func (s *Scanner) stopLocked() {
	if s.stream != nil {
		s.stream.Stop()
		s.stream = nil
	}
}

// ReportedCamera is a camera whose permission outcome was decided on the
// client device and reported to us.
type ReportedCamera struct {
	Granted bool
}

// Open succeeds when permission was granted.
func (c ReportedCamera) Open(context.Context, Constraints) (Stream, error) {
	if !c.Granted {
		return nil, ErrCameraUnavailable
	}
	return reportedStream{}, nil
}

// reportedStream has nothing to release server-side; the device stops its
// own tracks when the scanner closes.
type reportedStream struct{}

func (reportedStream) Stop() {}
