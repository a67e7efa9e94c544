// Package scanner owns the camera while a scan runs and samples frames until a
// known code payload is found, the scan is stopped, or the stream fails.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/garnizeh/triad/internal/metrics"
	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/internal/qrcode"
)

type State int

const (
	Idle State = iota
	Acquiring
	Active
	Found
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Acquiring:
		return "acquiring"
	case Active:
		return "active"
	case Found:
		return "found"
	case Error:
		return "error"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoCamera         = errors.New("no camera available")
	ErrStreamFailed     = errors.New("camera stream failed")
	ErrStopped          = errors.New("scan stopped")
	ErrBusy             = errors.New("scan already running")

	// ErrFrameNotReady may be returned by Stream.Frame when no new frame is available yet.
	ErrFrameNotReady = errors.New("frame not ready")
)

// Camera opens a video stream. Open blocks until the device is granted or refused.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream yields video frames. Close releases the device and must be safe to call once.
type Stream interface {
	Frame() (image.Image, error)
	Close() error
}

// Ticker paces the frame loop.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// DefaultFPS approximates a display refresh rate.
const DefaultFPS = 30

type Config struct {
	FPS     int
	Logger  *slog.Logger
	Metrics metrics.Recorder
	// OnState observes every transition. It runs on the scan goroutine and must not
	// block. Calling Session.Stop from it deadlocks; use Scanner.Cancel instead.
	OnState func(state State, err error)
	// Decode finds code text in a frame; defaults to qrcode.Decode.
	Decode func(img image.Image) (string, bool)
	// NewTicker defaults to a time.Ticker.
	NewTicker func(interval time.Duration) Ticker
}

// Result is a decoded frame whose text matched a known envelope.
type Result struct {
	Text    string
	Message payload.Message
}

type Scanner struct {
	camera    Camera
	interval  time.Duration
	logger    *slog.Logger
	metrics   metrics.Recorder
	onState   func(State, error)
	decode    func(image.Image) (string, bool)
	newTicker func(time.Duration) Ticker

	mu      sync.Mutex
	state   State
	session *Session
}

func New(camera Camera, cfg Config) *Scanner {
	s := &Scanner{
		camera:    camera,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
		onState:   cfg.OnState,
		decode:    cfg.Decode,
		newTicker: cfg.NewTicker,
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	s.interval = time.Second / time.Duration(fps)
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.metrics == nil {
		s.metrics = metrics.Noop()
	}
	if s.decode == nil {
		s.decode = qrcode.Decode
	}
	if s.newTicker == nil {
		s.newTicker = func(d time.Duration) Ticker { return timeTicker{time.NewTicker(d)} }
	}
	return s
}

func (s *Scanner) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scanner) setState(state State, err error) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	s.metrics.IncScannerState(state.String())
	if err != nil {
		s.logger.Error("scanner state", "state", state.String(), "error", err)
	} else {
		s.logger.Info("scanner state", "state", state.String())
	}
	if s.onState != nil {
		s.onState(state, err)
	}
}

// Cancel asks the running session, if any, to stop and returns without waiting for
// the camera to be released. Unlike Session.Stop it is safe to call from OnState.
func (s *Scanner) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session != nil {
		s.session.cancel()
	}
}

// Start acquires the camera and begins sampling frames. It returns ErrBusy while
// another session runs. Cancelling ctx has the same effect as Session.Stop.
func (s *Scanner) Start(ctx context.Context) (*Session, error) {
	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return nil, ErrBusy
	}
	ctx, cancel := context.WithCancel(ctx)
	sess := &Session{cancel: cancel, done: make(chan struct{})}
	s.session = sess
	s.mu.Unlock()

	go s.run(ctx, sess)
	return sess, nil
}

func (s *Scanner) run(ctx context.Context, sess *Session) {
	defer close(sess.done)

	var (
		res Result
		err error
	)
	defer func() {
		sess.cancel()
		sess.result, sess.err = res, err
		if err != nil && !errors.Is(err, ErrStopped) {
			s.setState(Error, err)
		}
		s.setState(Idle, nil)
		s.mu.Lock()
		s.session = nil
		s.mu.Unlock()
	}()

	s.setState(Acquiring, nil)
	stream, oerr := s.camera.Open(ctx)
	if oerr != nil {
		err = classifyOpen(ctx, oerr)
		return
	}

	var buf *image.RGBA
	defer func() {
		buf = nil
		if cerr := stream.Close(); cerr != nil {
			s.logger.Warn("camera release", "error", cerr)
		}
	}()

	if ctx.Err() != nil {
		err = ErrStopped
		return
	}
	s.setState(Active, nil)

	ticker := s.newTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			err = ErrStopped
			return
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			err = ErrStopped
			return
		}

		text, ok, ferr := s.capture(stream, &buf)
		if ferr != nil {
			if errors.Is(ferr, ErrFrameNotReady) {
				continue
			}
			err = ferr
			return
		}
		if !ok {
			s.metrics.IncFrames(false)
			continue
		}

		msg, derr := payload.Decode(ctx, text)
		if derr != nil {
			s.metrics.IncFrames(false)
			s.logger.Debug("frame code ignored", "error", derr)
			continue
		}

		s.metrics.IncFrames(true)
		res = Result{Text: text, Message: msg}
		s.setState(Found, nil)
		return
	}
}

// capture copies one frame into the off-screen buffer and decodes it.
// A panic in the stream or decoder becomes ErrStreamFailed.
func (s *Scanner) capture(stream Stream, buf **image.RGBA) (text string, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			text, ok = "", false
			err = fmt.Errorf("%w: panic during frame processing: %v", ErrStreamFailed, r)
		}
	}()

	frame, err := stream.Frame()
	if err != nil {
		if errors.Is(err, ErrFrameNotReady) {
			return "", false, err
		}
		return "", false, fmt.Errorf("%w: %v", ErrStreamFailed, err)
	}
	if frame == nil {
		return "", false, ErrFrameNotReady
	}

	b := frame.Bounds()
	if *buf == nil || (*buf).Bounds() != b {
		*buf = image.NewRGBA(b)
	}
	draw.Draw(*buf, b, frame, b.Min, draw.Src)

	text, ok = s.decode(*buf)
	return text, ok, nil
}

func classifyOpen(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ErrStopped
	case errors.Is(err, ErrPermissionDenied), errors.Is(err, ErrNoCamera), errors.Is(err, ErrStreamFailed):
		return err
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	case errors.Is(err, os.ErrNotExist):
		return fmt.Errorf("%w: %v", ErrNoCamera, err)
	}
	return fmt.Errorf("%w: %v", ErrStreamFailed, err)
}

// Session is one running scan.
type Session struct {
	cancel context.CancelFunc
	done   chan struct{}
	result Result
	err    error
}

// Stop cancels the scan and returns once the camera has been released. It must not
// be called from an OnState callback.
func (s *Session) Stop() {
	s.cancel()
	<-s.done
}

func (s *Session) Done() <-chan struct{} { return s.done }

// Result is valid after Done is closed. The error is ErrStopped after Stop,
// or a resource error when the camera could not be used.
func (s *Session) Result() (Result, error) {
	select {
	case <-s.done:
		return s.result, s.err
	default:
		return Result{}, errors.New("scan still running")
	}
}

// Wait blocks until the scan ends or ctx is done.
func (s *Session) Wait(ctx context.Context) (Result, error) {
	select {
	case <-s.done:
		return s.result, s.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}
