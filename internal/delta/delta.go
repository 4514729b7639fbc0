// Package delta computes and applies byte-level deltas between two
// buffers, and estimates their similarity cheaply enough to run as a
// candidate-selection probe before committing to a full diff.
//
// Two schemes are selectable by configuration: Simple (a reference
// longest-common-subsequence-style copy/insert encoder) and Extended
// (content-defined rolling-hash chunk matching). Both emit the same
// residual wire format, so patch does not need to know which produced it
// beyond the scheme tag embedded in the header.
package delta

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
)

// Scheme selects which delta algorithm diff/patch use.
type Scheme byte

const (
	Simple   Scheme = 1
	Extended Scheme = 2
)

// Error wraps a delta failure: a residual that fails its embedded
// checksum against the supplied base, or a missing/unreadable base.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("delta: %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// residual header, bit-exact per spec §4.2/§6:
//
//	4 bytes  magic "STDL"
//	1 byte   scheme tag
//	4 bytes  little-endian prefix of the base object's content hash
//	8 bytes  little-endian target size
//	payload  opaque to the outer engine
const (
	magic      = "STDL"
	headerSize = 4 + 1 + 4 + 8
)

func hashPrefix(base []byte) [4]byte {
	sum := sha256.Sum256(base)
	var p [4]byte
	copy(p[:], sum[:4])
	return p
}

func writeHeader(scheme Scheme, base []byte, targetSize int64) []byte {
	h := make([]byte, headerSize)
	copy(h[0:4], magic)
	h[4] = byte(scheme)
	prefix := hashPrefix(base)
	copy(h[5:9], prefix[:])
	binary.LittleEndian.PutUint64(h[9:17], uint64(targetSize))
	return h
}

type header struct {
	scheme     Scheme
	basePrefix [4]byte
	targetSize int64
}

func readHeader(residual []byte) (header, []byte, error) {
	if len(residual) < headerSize || string(residual[0:4]) != magic {
		return header{}, nil, fmt.Errorf("missing or corrupt STDL magic")
	}
	var h header
	h.scheme = Scheme(residual[4])
	copy(h.basePrefix[:], residual[5:9])
	h.targetSize = int64(binary.LittleEndian.Uint64(residual[9:17]))
	return h, residual[headerSize:], nil
}

// Diff produces a residual such that Patch(base, residual) == target.
// scheme selects which algorithm encodes the payload.
func Diff(scheme Scheme, base, target []byte) ([]byte, error) {
	var payload []byte
	switch scheme {
	case Simple:
		payload = encodeSimple(base, target)
	case Extended:
		payload = encodeExtended(base, target)
	default:
		return nil, &Error{Op: "diff", Err: fmt.Errorf("unknown scheme %d", scheme)}
	}
	out := make([]byte, 0, headerSize+len(payload))
	out = append(out, writeHeader(scheme, base, int64(len(target)))...)
	out = append(out, payload...)
	return out, nil
}

// Patch reconstructs target from base and a residual produced by Diff. It
// fails with a wrapped Error if the residual's embedded base-hash prefix
// does not match base (corruption or a residual paired with the wrong
// base).
func Patch(base, residual []byte) ([]byte, error) {
	h, payload, err := readHeader(residual)
	if err != nil {
		return nil, &Error{Op: "patch", Err: err}
	}
	if got := hashPrefix(base); got != h.basePrefix {
		return nil, &Error{Op: "patch", Err: fmt.Errorf("base hash prefix mismatch: residual does not correspond to base")}
	}

	var target []byte
	switch h.scheme {
	case Simple:
		target, err = decodeOpcodes(base, payload)
	case Extended:
		target, err = decodeOpcodes(base, payload)
	default:
		err = fmt.Errorf("unknown scheme tag %d", h.scheme)
	}
	if err != nil {
		return nil, &Error{Op: "patch", Err: err}
	}
	if int64(len(target)) != h.targetSize {
		return nil, &Error{Op: "patch", Err: fmt.Errorf("reconstructed size %d != header size %d", len(target), h.targetSize)}
	}
	return target, nil
}

// SchemeOf inspects a residual's header without verifying or applying it.
func SchemeOf(residual []byte) (Scheme, error) {
	h, _, err := readHeader(residual)
	if err != nil {
		return 0, &Error{Op: "scheme_of", Err: err}
	}
	return h.scheme, nil
}
