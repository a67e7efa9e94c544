package scanner

import (
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
)

// ErrEndOfStream is returned by an ImageCamera stream after its last frame.
var ErrEndOfStream = errors.New("end of stream")

// ImageCamera replays still images as camera frames. It stands in for a device
// camera in tools and tests.
type ImageCamera struct {
	frames []image.Image
	// Loop restarts from the first frame instead of ending the stream.
	Loop bool

	mu     sync.Mutex
	opened int
	closed int
}

func NewImageCamera(frames ...image.Image) *ImageCamera {
	return &ImageCamera{frames: frames}
}

// LoadImageCamera decodes PNG or JPEG files into an ImageCamera.
func LoadImageCamera(paths ...string) (*ImageCamera, error) {
	if len(paths) == 0 {
		return nil, ErrNoCamera
	}
	frames := make([]image.Image, 0, len(paths))
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			return nil, err
		}
		frames = append(frames, img)
	}
	return NewImageCamera(frames...), nil
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (c *ImageCamera) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(c.frames) == 0 {
		return nil, ErrNoCamera
	}
	c.mu.Lock()
	c.opened++
	c.mu.Unlock()
	return &imageStream{cam: c}, nil
}

// Released reports whether every opened stream has been closed.
func (c *ImageCamera) Released() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened == c.closed
}

func (c *ImageCamera) Opened() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opened
}

type imageStream struct {
	cam    *ImageCamera
	next   int
	closed bool
}

func (s *imageStream) Frame() (image.Image, error) {
	if s.closed {
		return nil, ErrEndOfStream
	}
	if s.next >= len(s.cam.frames) {
		if !s.cam.Loop {
			return nil, ErrEndOfStream
		}
		s.next = 0
	}
	img := s.cam.frames[s.next]
	s.next++
	return img, nil
}

func (s *imageStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	s.cam.mu.Lock()
	s.cam.closed++
	s.cam.mu.Unlock()
	return nil
}
