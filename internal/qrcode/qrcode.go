package qrcode

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strconv"
	"strings"

	"github.com/makiuchi-d/gozxing"
	zxqr "github.com/makiuchi-d/gozxing/qrcode"
	"github.com/makiuchi-d/gozxing/qrcode/decoder"

	"github.com/garnizeh/triad/internal/payload"
)

const (
	DefaultWidth         = 300
	DefaultLinkColor     = "#2563eb"
	DefaultSnapshotColor = "#059669"

	// Margin is the quiet zone in modules.
	Margin = 2
)

// Code is a rendered optical code.
type Code struct {
	Kind payload.Kind `json:"kind"`
	Text string       `json:"text"`
	PNG  []byte       `json:"-"`
}

// DataURL returns the PNG as a data: URL.
func (c *Code) DataURL() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.PNG)
}

// Renderer draws payload text as a square QR code with medium error correction.
// Only the foreground color differs between kinds.
type Renderer struct {
	width      int
	foreground map[payload.Kind]color.RGBA
	background color.RGBA
}

// NewRenderer builds a renderer. Colors are #rrggbb strings.
func NewRenderer(width int, linkColor, snapshotColor string) (*Renderer, error) {
	if width <= 0 {
		return nil, fmt.Errorf("invalid pixel width %d", width)
	}
	lc, err := ParseHexColor(linkColor)
	if err != nil {
		return nil, fmt.Errorf("link color: %w", err)
	}
	sc, err := ParseHexColor(snapshotColor)
	if err != nil {
		return nil, fmt.Errorf("snapshot color: %w", err)
	}
	return &Renderer{
		width:      width,
		foreground: map[payload.Kind]color.RGBA{payload.KindLink: lc, payload.KindSnapshot: sc},
		background: color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff},
	}, nil
}

// RenderMessage encodes m and renders it.
func (r *Renderer) RenderMessage(m payload.Message) (*Code, error) {
	text, err := payload.Encode(m)
	if err != nil {
		return nil, err
	}
	return r.Render(m.Kind(), text)
}

// Render draws text in the foreground color of kind.
func (r *Renderer) Render(kind payload.Kind, text string) (*Code, error) {
	fg, ok := r.foreground[kind]
	if !ok {
		return nil, fmt.Errorf("unknown code kind %q", string(kind))
	}

	hints := map[gozxing.EncodeHintType]interface{}{
		gozxing.EncodeHintType_ERROR_CORRECTION: decoder.ErrorCorrectionLevel_M,
		gozxing.EncodeHintType_MARGIN:           Margin,
		gozxing.EncodeHintType_CHARACTER_SET:    "UTF-8",
	}
	matrix, err := zxqr.NewQRCodeWriter().Encode(text, gozxing.BarcodeFormat_QR_CODE, r.width, r.width, hints)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}

	w, h := matrix.GetWidth(), matrix.GetHeight()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if matrix.Get(x, y) {
				img.SetRGBA(x, y, fg)
			} else {
				img.SetRGBA(x, y, r.background)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return &Code{Kind: kind, Text: text, PNG: buf.Bytes()}, nil
}

// ParseHexColor parses #rrggbb.
func ParseHexColor(s string) (color.RGBA, error) {
	v := strings.TrimPrefix(s, "#")
	if len(v) != 6 {
		return color.RGBA{}, fmt.Errorf("invalid color %q", s)
	}
	n, err := strconv.ParseUint(v, 16, 32)
	if err != nil {
		return color.RGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return color.RGBA{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), A: 0xff}, nil
}

// Decode looks for a QR code in img. Finding nothing is not an error; it reports false.
func Decode(img image.Image) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()
	if img == nil || img.Bounds().Empty() {
		return "", false
	}

	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", false
	}
	hints := map[gozxing.DecodeHintType]interface{}{
		gozxing.DecodeHintType_TRY_HARDER: true,
	}
	res, err := zxqr.NewQRCodeReader().Decode(bmp, hints)
	if err != nil {
		return "", false
	}
	return res.GetText(), true
}
