// Package objectstore durably holds compressed blobs on disk, addressed
// by content hash, and maintains their reference counts (the refcounts
// themselves live in the Index backend — see internal/index — so a
// put/release never needs a second transaction domain).
//
// Physical layout under root:
//
//	<root>/objects/<first-2-hex-of-id>/<rest-of-id>.<ext>
//
// The two-level fanout is carried over directly from the teacher's CAS
// (internal/store/cas.go): it keeps any single directory from
// accumulating millions of entries. Put uses the same per-hash
// reference-counted mutex pool to serialize concurrent writers of
// identical content without serializing writers of different content.
package objectstore

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/codec"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/delta"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// Error wraps an object-store I/O failure or a refcount/dependency
// inconsistency (e.g. releasing a base with live delta dependents).
type Error struct {
	Op       string
	ObjectID string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("objectstore: %s %s: %v", e.Op, e.ObjectID, e.Err)
}
func (e *Error) Unwrap() error { return e.Err }

// ErrHasDependents is wrapped by Error when DecRef targets a Whole object
// that still has live Delta dependents — the caller must release those
// first (spec §4.4, scenario S3).
var ErrHasDependents = fmt.Errorf("object has live delta dependents")

// hashEntry pairs a mutex with a reference count for the per-hash lock
// pool, exactly mirroring the teacher's CAS design: entries are removed
// from the map once no goroutine is waiting on them, so the pool never
// grows unboundedly over the store's lifetime.
type hashEntry struct {
	mu   sync.Mutex
	refs int32
}

// Store is a content-addressable, compressed, deduplicated blob store.
type Store struct {
	root  string
	idx   index.Index
	locks sync.Map // map[string]*hashEntry, keyed by object id
}

// Open creates (if needed) the objects/ directory under root and returns
// a Store backed by idx for metadata and refcounts.
func Open(root string, idx index.Index) (*Store, error) {
	objDir := filepath.Join(root, "objects")
	if err := os.MkdirAll(objDir, 0o750); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	return &Store{root: root, idx: idx}, nil
}

func (s *Store) blobPath(id, ext string) string {
	if len(id) < 2 {
		return filepath.Join(s.root, "objects", id, id+"."+ext)
	}
	return filepath.Join(s.root, "objects", id[:2], id[2:]+"."+ext)
}

func (s *Store) lockID(id string) (unlock func()) {
	v, _ := s.locks.LoadOrStore(id, &hashEntry{})
	e := v.(*hashEntry)
	atomic.AddInt32(&e.refs, 1)
	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		if atomic.AddInt32(&e.refs, -1) == 0 {
			s.locks.CompareAndDelete(id, e)
		}
	}
}

// PutResult describes the outcome of a Put.
type PutResult struct {
	ObjectID   string
	StoredSize int64
	IsNew      bool // false means an existing Whole object's refcount was incremented instead of writing
}

// Algorithm and StorageKind re-exported for callers that only need the
// object-store's vocabulary without pulling in the full index package.
type Algorithm = index.Algorithm
type StorageKind = index.StorageKind
type DeltaScheme = index.DeltaScheme

// PutWhole writes plaintext as a Whole object addressed by its SHA-256. If
// an object with that id already exists, its refcount is incremented and
// nothing is written to disk — this is the object store's own
// content-hash dedup (spec §4.4 step 2), distinct from (but exercised by)
// the Storage Manager's higher-level dedup probe.
func (s *Store) PutWhole(plaintext []byte, algorithm Algorithm, level int) (PutResult, error) {
	sum := sha256.Sum256(plaintext)
	id := hex.EncodeToString(sum[:])

	unlock := s.lockID(id)
	defer unlock()

	if meta, err := s.idx.GetObjectMeta(id); err == nil {
		if _, err := s.idx.IncrRefCount(id); err != nil {
			return PutResult{}, &Error{Op: "put_whole", ObjectID: id, Err: err}
		}
		return PutResult{ObjectID: id, StoredSize: s.statSize(id, meta), IsNew: false}, nil
	}

	compressed, err := codec.Compress(codec.Algorithm(algorithm), level, plaintext)
	if err != nil {
		return PutResult{}, &Error{Op: "put_whole", ObjectID: id, Err: err}
	}

	ext := extFor(index.KindWhole, algorithm)
	fileName := id + "." + ext
	if err := s.writeBlob(s.blobPath(id, ext), compressed); err != nil {
		return PutResult{}, &Error{Op: "put_whole", ObjectID: id, Err: err}
	}

	meta := index.ObjectMeta{ID: id, Algorithm: algorithm, Kind: index.KindWhole, FileName: fileName, RefCount: 1}
	if err := s.idx.PutObjectMeta(meta); err != nil {
		os.Remove(s.blobPath(id, ext))
		return PutResult{}, &Error{Op: "put_whole", ObjectID: id, Err: err}
	}
	return PutResult{ObjectID: id, StoredSize: int64(len(compressed)), IsNew: true}, nil
}

// PutDelta writes a residual as a Delta object. Delta objects are not
// content-addressed (the residual lives in a different byte space than
// the reconstructed target) so a fresh UUID identifies it; refcount is
// always exactly 1 (spec §3 invariant — deltas are never deduped).
func (s *Store) PutDelta(residual []byte, algorithm Algorithm, level int, base string, scheme DeltaScheme) (PutResult, error) {
	if _, err := s.idx.GetObjectMeta(base); err != nil {
		return PutResult{}, &Error{Op: "put_delta", ObjectID: base, Err: fmt.Errorf("base object missing: %w", err)}
	}

	id := uuid.New().String()
	compressed, err := codec.Compress(codec.Algorithm(algorithm), level, residual)
	if err != nil {
		return PutResult{}, &Error{Op: "put_delta", ObjectID: id, Err: err}
	}

	ext := extFor(index.KindDelta, algorithm)
	fileName := id + "." + ext
	if err := s.writeBlob(s.blobPath(id, ext), compressed); err != nil {
		return PutResult{}, &Error{Op: "put_delta", ObjectID: id, Err: err}
	}

	meta := index.ObjectMeta{
		ID: id, Algorithm: algorithm, Kind: index.KindDelta, FileName: fileName,
		RefCount: 1, Base: base, DeltaScheme: scheme,
	}
	if err := s.idx.PutObjectMeta(meta); err != nil {
		os.Remove(s.blobPath(id, ext))
		return PutResult{}, &Error{Op: "put_delta", ObjectID: id, Err: err}
	}
	return PutResult{ObjectID: id, StoredSize: int64(len(compressed)), IsNew: true}, nil
}

func (s *Store) writeBlob(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	tmp := dest + ".tmp-" + uuid.NewString()
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	_, werr := f.Write(data)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil || serr != nil || cerr != nil {
		os.Remove(tmp)
		if werr != nil {
			return werr
		}
		if serr != nil {
			return serr
		}
		return cerr
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func (s *Store) statSize(id string, meta index.ObjectMeta) int64 {
	path := s.blobPath(id, extFor(meta.Kind, meta.Algorithm))
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

// Exists reports whether id has a live object-meta record.
func (s *Store) Exists(id string) bool {
	_, err := s.idx.GetObjectMeta(id)
	return err == nil
}

// Meta returns the object-meta record for id.
func (s *Store) Meta(id string) (index.ObjectMeta, error) {
	m, err := s.idx.GetObjectMeta(id)
	if err != nil {
		return index.ObjectMeta{}, &Error{Op: "meta", ObjectID: id, Err: err}
	}
	return m, nil
}

// Get reads and decompresses id's bytes, reconstructing Delta objects
// against their base via patch. Recursion is bounded at one level — spec
// §8/§9 disallow delta chains, so a base is always Whole.
func (s *Store) Get(id string) ([]byte, error) {
	meta, err := s.idx.GetObjectMeta(id)
	if err != nil {
		return nil, &Error{Op: "get", ObjectID: id, Err: err}
	}

	raw, err := s.readBlob(id, meta)
	if err != nil {
		return nil, err
	}
	plain, err := codec.Decompress(codec.Algorithm(meta.Algorithm), raw)
	if err != nil {
		return nil, &Error{Op: "get", ObjectID: id, Err: err}
	}

	if meta.Kind != index.KindDelta {
		return plain, nil
	}

	baseMeta, err := s.idx.GetObjectMeta(meta.Base)
	if err != nil {
		return nil, &Error{Op: "get", ObjectID: id, Err: fmt.Errorf("missing base %s: %w", meta.Base, err)}
	}
	if baseMeta.Kind == index.KindDelta {
		return nil, &Error{Op: "get", ObjectID: id, Err: fmt.Errorf("delta chains are disallowed: base %s is itself a delta", meta.Base)}
	}
	baseRaw, err := s.readBlob(meta.Base, baseMeta)
	if err != nil {
		return nil, err
	}
	baseBytes, err := codec.Decompress(codec.Algorithm(baseMeta.Algorithm), baseRaw)
	if err != nil {
		return nil, &Error{Op: "get", ObjectID: meta.Base, Err: err}
	}

	target, err := delta.Patch(baseBytes, plain)
	if err != nil {
		return nil, &Error{Op: "get", ObjectID: id, Err: err}
	}
	return target, nil
}

func (s *Store) readBlob(id string, meta index.ObjectMeta) ([]byte, error) {
	path := s.blobPath(id, extFor(meta.Kind, meta.Algorithm))
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "read_blob", ObjectID: id, Err: err}
	}
	return data, nil
}

func extFor(kind index.StorageKind, algo index.Algorithm) string {
	if kind == index.KindDelta {
		return "dlt"
	}
	switch algo {
	case index.Zstd:
		return "zst"
	case index.Lz4:
		return "lz4"
	default:
		return "gz"
	}
}
