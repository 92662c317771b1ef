package store

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/arslanovdev/quotecache/config"
)

// Wire markers distinguishing plain from gzip-compressed payloads. This is
// the SPEC_FULL §12.1 compression feature the reference library declares
// (internal/config/compression.go) but never wires up; the marker keeps
// decoding self-describing so Get never needs out-of-band knowledge of how
// a given entry was written.
const (
	markerPlain byte = 0x00
	markerGzip  byte = 0x01
)

type codec struct {
	cfg *config.CompressionCfg
}

func newCodec(cfg *config.CompressionCfg) codec {
	return codec{cfg: cfg}
}

// encode prepends the wire marker, gzip-compressing the payload first when
// compression is enabled and the payload clears the configured size floor.
func (c codec) encode(raw []byte) ([]byte, error) {
	if !c.cfg.Enabled() || len(raw) < c.cfg.MinSizeBytes {
		return append([]byte{markerPlain}, raw...), nil
	}

	var buf bytes.Buffer
	buf.WriteByte(markerGzip)

	level := c.cfg.Level
	if level == 0 {
		level = gzip.DefaultCompression
	}
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decode strips the wire marker and transparently inflates gzip payloads,
// returning exactly the bytes originally passed to encode.
func (c codec) decode(wire []byte) ([]byte, error) {
	if len(wire) == 0 {
		return nil, ErrCorrupted
	}
	marker, body := wire[0], wire[1:]
	switch marker {
	case markerPlain:
		return body, nil
	case markerGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, ErrCorrupted
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, ErrCorrupted
		}
		return out, nil
	default:
		return nil, ErrCorrupted
	}
}
