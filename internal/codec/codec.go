// Package codec compresses and decompresses byte buffers under a chosen
// algorithm and level. The algorithm is recorded per-object by the caller,
// never assumed globally — Decompress always takes the algorithm that
// produced the bytes, so a store may mix algorithms across its lifetime.
package codec

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Algorithm identifies a compression scheme. Defined here (not imported
// from the root package) so this package has no dependency on the engine.
type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
	Lz4  Algorithm = "lz4"
)

// Error wraps a codec failure: corrupt input or an unsupported level.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("codec: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Compress compresses data under algorithm at level. Level is ignored for
// Lz4 (the frame format has no level knob).
func Compress(algorithm Algorithm, level int, data []byte) ([]byte, error) {
	switch algorithm {
	case Gzip:
		return compressGzip(level, data)
	case Zstd:
		return compressZstd(level, data)
	case Lz4:
		return compressLz4(data)
	default:
		return nil, &Error{Op: "compress", Err: fmt.Errorf("unsupported algorithm %q", algorithm)}
	}
}

// Decompress reverses Compress. algorithm must match whatever produced
// data; this is always available because it is stored per-object.
func Decompress(algorithm Algorithm, data []byte) ([]byte, error) {
	switch algorithm {
	case Gzip:
		return decompressGzip(data)
	case Zstd:
		return decompressZstd(data)
	case Lz4:
		return decompressLz4(data)
	default:
		return nil, &Error{Op: "decompress", Err: fmt.Errorf("unsupported algorithm %q", algorithm)}
	}
}

func compressGzip(level int, data []byte) ([]byte, error) {
	if level < gzip.NoCompression || level > gzip.BestCompression {
		return nil, &Error{Op: "compress", Err: fmt.Errorf("invalid gzip level %d, want [0,9]", level)}
	}
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, level)
	if err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	if _, err := w.Write(data); err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	return buf.Bytes(), nil
}

func decompressGzip(data []byte) ([]byte, error) {
	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	defer r.Close()
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	return out, nil
}

// zstdLevel maps the spec's 1-22 integer level range onto the library's
// four EncoderLevel presets.
func zstdLevel(level int) (zstd.EncoderLevel, error) {
	switch {
	case level >= 1 && level <= 5:
		return zstd.SpeedFastest, nil
	case level >= 6 && level <= 12:
		return zstd.SpeedDefault, nil
	case level >= 13 && level <= 19:
		return zstd.SpeedBetterCompression, nil
	case level >= 20 && level <= 22:
		return zstd.SpeedBestCompression, nil
	default:
		return 0, fmt.Errorf("invalid zstd level %d", level)
	}
}

func compressZstd(level int, data []byte) ([]byte, error) {
	el, err := zstdLevel(level)
	if err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(el))
	if err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompressZstd(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	return out, nil
}

func compressLz4(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := lz4.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	if err := w.Close(); err != nil {
		return nil, &Error{Op: "compress", Err: err}
	}
	return buf.Bytes(), nil
}

func decompressLz4(data []byte) ([]byte, error) {
	r := lz4.NewReader(bytes.NewReader(data))
	out, err := io.ReadAll(r)
	if err != nil {
		return nil, &Error{Op: "decompress", Err: err}
	}
	return out, nil
}
