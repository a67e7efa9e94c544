package scanner_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/garnizeh/triad/internal/payload"
	"github.com/garnizeh/triad/internal/qrcode"
	"github.com/garnizeh/triad/internal/scanner"
	"github.com/garnizeh/triad/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type manualTicker struct{ ch chan time.Time }

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               {}

type recorder struct {
	mu     sync.Mutex
	states []scanner.State
}

func (r *recorder) observe(s scanner.State, _ error) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func (r *recorder) get() []scanner.State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scanner.State(nil), r.states...)
}

// frame returns a 4x4 image whose red channel encodes n.
func frame(n int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: uint8(n), A: 0xff})
		}
	}
	return img
}

func frameIndex(img image.Image) int {
	r, _, _, _ := img.At(0, 0).RGBA()
	return int(r >> 8)
}

func linkText(t *testing.T) string {
	t.Helper()
	p := &models.UserProfile{ID: "u1", DisplayName: "Alex", CurrentRole: models.RoleMentor}
	l, err := payload.NewLink(p, models.RelationMyMentee, time.Now())
	if err != nil {
		t.Fatalf("NewLink: %v", err)
	}
	s, err := payload.Encode(l)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return s
}

func newScanner(cam scanner.Camera, decode func(image.Image) (string, bool)) (*scanner.Scanner, *manualTicker, *recorder) {
	tk := &manualTicker{ch: make(chan time.Time)}
	rec := &recorder{}
	s := scanner.New(cam, scanner.Config{
		Decode:    decode,
		NewTicker: func(time.Duration) scanner.Ticker { return tk },
		OnState:   rec.observe,
	})
	return s, tk, rec
}

// tick delivers one frame tick, failing if the session ends first.
func tick(t *testing.T, tk *manualTicker, sess *scanner.Session) {
	t.Helper()
	select {
	case tk.ch <- time.Now():
	case <-sess.Done():
		t.Fatalf("session ended before tick was consumed")
	case <-time.After(5 * time.Second):
		t.Fatalf("tick not consumed")
	}
}

func wait(t *testing.T, sess *scanner.Session) (scanner.Result, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := sess.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("session did not finish")
	}
	return res, err
}

func TestScanFindsCodeInFrameOrder(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1), frame(2), frame(3), frame(4))
	text := linkText(t)

	var mu sync.Mutex
	var seen []int
	decode := func(img image.Image) (string, bool) {
		n := frameIndex(img)
		mu.Lock()
		seen = append(seen, n)
		mu.Unlock()
		switch n {
		case 2:
			return "not json", true // decodes but is not a known envelope
		case 3:
			return text, true
		}
		return "", false
	}

	s, tk, rec := newScanner(cam, decode)
	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	for i := 0; i < 3; i++ {
		tick(t, tk, sess)
	}

	res, err := wait(t, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != text || res.Message.Kind() != payload.KindLink {
		t.Fatalf("unexpected result %#v", res)
	}

	mu.Lock()
	defer mu.Unlock()
	if !reflect.DeepEqual(seen, []int{1, 2, 3}) {
		t.Fatalf("frames processed out of order: %v", seen)
	}

	want := []scanner.State{scanner.Acquiring, scanner.Active, scanner.Found, scanner.Idle}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after found")
	}
	if s.State() != scanner.Idle {
		t.Fatalf("expected idle, got %s", s.State())
	}
}

func TestStopReleasesCamera(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	cam.Loop = true
	s, tk, rec := newScanner(cam, func(image.Image) (string, bool) { return "", false })

	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tick(t, tk, sess)
	tick(t, tk, sess)
	sess.Stop()

	_, err = sess.Result()
	if !errors.Is(err, scanner.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after stop")
	}
	for _, st := range rec.get() {
		if st == scanner.Error {
			t.Fatalf("stop must not pass through the error state")
		}
	}

	// A new scan may start once the previous one has ended.
	sess, err = s.Start(context.Background())
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	sess.Stop()
	if cam.Opened() < 1 || !cam.Released() {
		t.Fatalf("expected every open released, opened=%d", cam.Opened())
	}
}

func TestCancelFromStateCallback(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	cam.Loop = true
	rec := &recorder{}

	var s *scanner.Scanner
	s = scanner.New(cam, scanner.Config{
		Decode:    func(image.Image) (string, bool) { return "", false },
		NewTicker: func(time.Duration) scanner.Ticker { return &manualTicker{ch: make(chan time.Time)} },
		OnState: func(st scanner.State, err error) {
			rec.observe(st, err)
			if st == scanner.Active {
				s.Cancel()
			}
		},
	})

	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := wait(t, sess); !errors.Is(err, scanner.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}

	want := []scanner.State{scanner.Acquiring, scanner.Active, scanner.Idle}
	if got := rec.get(); !reflect.DeepEqual(got, want) {
		t.Fatalf("states = %v, want %v", got, want)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after cancel")
	}
	s.Cancel()
}

func TestParentContextCancelStops(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	cam.Loop = true
	s, tk, _ := newScanner(cam, func(image.Image) (string, bool) { return "", false })

	ctx, cancel := context.WithCancel(context.Background())
	sess, err := s.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tick(t, tk, sess)
	cancel()

	if _, err := wait(t, sess); !errors.Is(err, scanner.ErrStopped) {
		t.Fatalf("expected ErrStopped, got %v", err)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after cancel")
	}
}

func TestStartWhileRunningIsBusy(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	cam.Loop = true
	s, _, _ := newScanner(cam, func(image.Image) (string, bool) { return "", false })

	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sess.Stop()

	if _, err := s.Start(context.Background()); !errors.Is(err, scanner.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
}

type failingCamera struct{ err error }

func (c failingCamera) Open(context.Context) (scanner.Stream, error) { return nil, c.err }

func TestOpenErrorsAreClassified(t *testing.T) {
	cases := []struct {
		cam  scanner.Camera
		want error
	}{
		{failingCamera{err: fmt.Errorf("open /dev/video0: %w", os.ErrPermission)}, scanner.ErrPermissionDenied},
		{failingCamera{err: scanner.ErrPermissionDenied}, scanner.ErrPermissionDenied},
		{scanner.NewImageCamera(), scanner.ErrNoCamera},
		{failingCamera{err: fmt.Errorf("open /dev/video9: %w", os.ErrNotExist)}, scanner.ErrNoCamera},
		{failingCamera{err: errors.New("device busy")}, scanner.ErrStreamFailed},
	}
	for _, c := range cases {
		s, _, rec := newScanner(c.cam, nil)
		sess, err := s.Start(context.Background())
		if err != nil {
			t.Fatalf("Start: %v", err)
		}
		if _, err := wait(t, sess); !errors.Is(err, c.want) {
			t.Fatalf("expected %v, got %v", c.want, err)
		}
		want := []scanner.State{scanner.Acquiring, scanner.Error, scanner.Idle}
		if got := rec.get(); !reflect.DeepEqual(got, want) {
			t.Fatalf("states = %v, want %v", got, want)
		}
	}
}

func TestPanicDuringFrameReleasesCamera(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	s, tk, _ := newScanner(cam, func(image.Image) (string, bool) { panic("decoder exploded") })

	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tick(t, tk, sess)

	if _, err := wait(t, sess); !errors.Is(err, scanner.ErrStreamFailed) {
		t.Fatalf("expected ErrStreamFailed, got %v", err)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after panic")
	}
}

func TestStreamEndIsStreamFailure(t *testing.T) {
	cam := scanner.NewImageCamera(frame(1))
	s, tk, _ := newScanner(cam, func(image.Image) (string, bool) { return "", false })

	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tick(t, tk, sess)
	tick(t, tk, sess)

	if _, err := wait(t, sess); !errors.Is(err, scanner.ErrStreamFailed) {
		t.Fatalf("expected ErrStreamFailed, got %v", err)
	}
	if !cam.Released() {
		t.Fatalf("camera not released after stream end")
	}
}

func TestScanRenderedCode(t *testing.T) {
	r, err := qrcode.NewRenderer(qrcode.DefaultWidth, qrcode.DefaultLinkColor, qrcode.DefaultSnapshotColor)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	code, err := r.Render(payload.KindLink, linkText(t))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(code.PNG))
	if err != nil {
		t.Fatalf("png decode: %v", err)
	}

	blank := image.NewRGBA(image.Rect(0, 0, 120, 120))
	for y := 0; y < 120; y++ {
		for x := 0; x < 120; x++ {
			blank.Set(x, y, color.White)
		}
	}

	cam := scanner.NewImageCamera(blank, img)
	s, tk, _ := newScanner(cam, nil)
	sess, err := s.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	tick(t, tk, sess)
	tick(t, tk, sess)

	res, err := wait(t, sess)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != code.Text {
		t.Fatalf("expected %s, got %s", code.Text, res.Text)
	}
}
