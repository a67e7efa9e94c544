package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
)

// zstdMagic prefixes every zstd frame.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

type zstdCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

var compressor = sync.OnceValues(func() (*zstdCodec, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}
	return &zstdCodec{encoder: encoder, decoder: decoder}, nil
})

// Compressed reports whether path selects the zstd-compressed form.
func Compressed(path string) bool {
	return strings.HasSuffix(path, ".zst")
}

// Encode writes doc as JSON, zstd-compressed when compress is set.
func Encode(w io.Writer, doc *Document, compress bool) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal backup: %w", err)
	}
	if compress {
		z, err := compressor()
		if err != nil {
			return err
		}
		data = z.encoder.EncodeAll(data, make([]byte, 0, len(data)/2))
	}
	_, err = w.Write(data)
	return err
}

// Decode reads a document in either form; compression is detected from the content.
func Decode(r io.Reader) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if bytes.HasPrefix(data, zstdMagic) {
		z, err := compressor()
		if err != nil {
			return nil, err
		}
		if data, err = z.decoder.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrInvalidDocument, err)
		}
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return &doc, nil
}

// WriteFile stores doc at path through a synced temporary file and a rename,
// so a crash never leaves a truncated backup behind.
func WriteFile(path string, doc *Document) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create backup dir: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := Encode(&buf, doc, Compressed(path)); err != nil {
		return err
	}

	tmpFile := path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return os.Rename(tmpFile, path)
}

func ReadFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// ExportFile exports the store and writes it to path.
func (c *Codec) ExportFile(ctx context.Context, path string) error {
	doc, err := c.ExportAll(ctx)
	if err != nil {
		return err
	}
	if err := WriteFile(path, doc); err != nil {
		return fmt.Errorf("write backup %s: %w", path, err)
	}
	c.logger.Info("backup written", "path", path, "contacts", len(doc.Contacts), "days", len(doc.Activity))
	return nil
}
