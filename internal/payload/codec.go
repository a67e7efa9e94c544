package payload

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/triad/pkg/models"
)

//go:embed envelope.schema.json
var envelopeSchema []byte

var envelope = sync.OnceValues(func() (*jsonschema.Schema, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal(envelopeSchema, rs); err != nil {
		return nil, fmt.Errorf("compile envelope schema: %w", err)
	}
	return rs, nil
})

// Encode returns the compact JSON text carried inside a code. A message that
// Decode would refuse, such as a hand-built Link without a user name, fails with
// ErrInvalidCode so every encoded text decodes back to the same message.
func Encode(m Message) (string, error) {
	if m == nil {
		return "", fmt.Errorf("encode: nil message")
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	if len(b) >= MaxEncodedSize {
		return "", fmt.Errorf("%w: %d bytes", ErrTooLarge, len(b))
	}
	if _, err := parse(context.Background(), b); err != nil {
		return "", fmt.Errorf("encode %s: %w", m.Kind(), err)
	}
	return string(b), nil
}

// EncodeURL returns the unpadded base64url form of Encode, suitable for manual sharing.
func EncodeURL(m Message) (string, error) {
	s, err := Encode(m)
	if err != nil {
		return "", err
	}
	return URLForm(s), nil
}

// URLForm converts encoded text to its unpadded base64url form.
func URLForm(text string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(text))
}

// Decode parses text produced by Encode or EncodeURL. Any text that is not a
// well-formed envelope of a known kind and version yields ErrInvalidCode.
func Decode(ctx context.Context, text string) (Message, error) {
	b, err := normalize(text)
	if err != nil {
		return nil, err
	}
	return parse(ctx, b)
}

// parse validates b against the envelope schema and unmarshals the matching kind.
func parse(ctx context.Context, b []byte) (Message, error) {
	rs, err := envelope()
	if err != nil {
		return nil, err
	}
	verrs, err := rs.ValidateBytes(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}
	if len(verrs) > 0 {
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidCode, verrs[0].PropertyPath, verrs[0].Message)
	}

	var head struct {
		Type Kind `json:"type"`
	}
	if err := json.Unmarshal(b, &head); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
	}

	switch head.Type {
	case KindLink:
		var l Link
		if err := json.Unmarshal(b, &l); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		return &l, nil
	case KindSnapshot:
		var s Snapshot
		if err := json.Unmarshal(b, &s); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCode, err)
		}
		for _, d := range s.Recent {
			if _, err := models.ParseDateKey(d.Date); err != nil {
				return nil, fmt.Errorf("%w: recent: %v", ErrInvalidCode, err)
			}
		}
		return &s, nil
	}
	return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidCode, string(head.Type))
}

func normalize(text string) ([]byte, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCode)
	}
	if strings.HasPrefix(s, "{") {
		return []byte(s), nil
	}

	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(s, "="))
	if err != nil {
		return nil, fmt.Errorf("%w: not json", ErrInvalidCode)
	}
	return b, nil
}
