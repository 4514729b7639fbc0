package stowr

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/codec"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/delta"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// maxDeltaCandidates bounds how many existing entries the delta probe
// will fetch and score before picking a base (spec §4.5 step 3, "up to K
// e.g. 8").
const maxDeltaCandidates = 8

// StoreFile reads path, canonicalizes it, and runs the ingest pipeline
// (dedup probe, then delta probe, then whole-object fallback) to create
// exactly one new index entry. If keepOriginal is false, the source file
// is removed once the object write and index insert have both committed
// — a failure at any earlier step leaves the filesystem and index
// unchanged (spec §7).
func (e *Engine) StoreFile(path string, keepOriginal bool) error {
	canon, err := canonicalize(path)
	if err != nil {
		return newErr(KindNotFound, "store_file", path, err)
	}

	if _, err := e.idx.Get(canon); err == nil {
		return newErr(KindAlreadyExists, "store_file", canon, fmt.Errorf("already tracked"))
	}

	bytes, err := os.ReadFile(canon)
	if err != nil {
		return newErr(KindNotFound, "store_file", canon, err)
	}

	entry, err := e.ingest(canon, bytes)
	if err != nil {
		return err
	}

	if err := e.insertEntryLocked(entry); err != nil {
		return err
	}

	if !keepOriginal {
		if err := os.Remove(canon); err != nil {
			e.logger.Warn("store_file: failed to remove source after commit", "path", canon, "err", err)
		}
	}
	return nil
}

// ingest runs the four-step pipeline from spec §4.5 against bytes read
// from path and returns the Entry to insert. It does not touch the
// index; the caller commits it under the writer lock.
func (e *Engine) ingest(path string, data []byte) (Entry, error) {
	now := time.Now().UTC().Truncate(time.Second)
	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	if e.cfg.EnableDeduplication {
		if entry, ok, err := e.dedupProbe(path, data, hash, now); err != nil {
			return Entry{}, err
		} else if ok {
			return entry, nil
		}
	}

	if e.cfg.EnableDeltaCompression {
		if entry, ok, err := e.deltaProbe(path, data, hash, now); err != nil {
			return Entry{}, err
		} else if ok {
			return entry, nil
		}
	}

	return e.wholeFallback(path, data, hash, now)
}

func (e *Engine) dedupProbe(path string, data []byte, hash string, now time.Time) (Entry, bool, error) {
	existing, err := e.idx.FindByHash(hash)
	if err != nil {
		return Entry{}, false, newErr(KindIndex, "store_file.dedup_probe", path, err)
	}
	found := false
	for _, cand := range existing {
		if cand.Kind == index.KindDelta {
			continue
		}
		found = true
		break
	}
	if !found {
		return Entry{}, false, nil
	}

	res, err := e.store.PutWhole(data, indexAlgorithm(e.cfg.CompressionAlgorithm), e.cfg.CompressionLevel)
	if err != nil {
		return Entry{}, false, newErr(KindObjectStore, "store_file.dedup_probe", path, err)
	}
	return Entry{
		Path: path, ObjectID: res.ObjectID, OriginalSize: int64(len(data)),
		StoredSize: res.StoredSize, Algorithm: e.cfg.CompressionAlgorithm, ContentHash: hash,
		Kind: KindDedup, CreatedAt: now, ModifiedAt: now,
	}, true, nil
}

type deltaCandidate struct {
	entry index.Entry
	bytes []byte
}

func (e *Engine) deltaProbe(path string, data []byte, hash string, now time.Time) (Entry, bool, error) {
	all, err := e.idx.List()
	if err != nil {
		return Entry{}, false, newErr(KindIndex, "store_file.delta_probe", path, err)
	}

	ext := filepath.Ext(path)
	size := int64(len(data))
	var candidates []index.Entry
	for _, cand := range all {
		if cand.Kind == index.KindDelta {
			continue
		}
		if filepath.Ext(cand.Path) != ext {
			continue
		}
		if !withinFactor(cand.OriginalSize, size, 2) {
			continue
		}
		candidates = append(candidates, cand)
	}
	if len(candidates) == 0 {
		return Entry{}, false, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		return absDiff(candidates[i].OriginalSize, size) < absDiff(candidates[j].OriginalSize, size)
	})
	if len(candidates) > maxDeltaCandidates {
		candidates = candidates[:maxDeltaCandidates]
	}

	var best *deltaCandidate
	var bestScore float64
	for i := range candidates {
		cand := candidates[i]
		baseBytes, err := e.store.Get(cand.ObjectID)
		if err != nil {
			continue
		}
		score := delta.Similarity(baseBytes, data)
		// ties break by smallest candidate size (cheaper base to fetch on
		// extract), so a strictly-greater score always wins, and an equal
		// score only wins when it is smaller than the current best.
		if best == nil || score > bestScore ||
			(score == bestScore && cand.OriginalSize < best.entry.OriginalSize) {
			best = &deltaCandidate{entry: cand, bytes: baseBytes}
			bestScore = score
		}
	}
	if best == nil || bestScore < e.cfg.SimilarityThreshold {
		return Entry{}, false, nil
	}

	scheme := deltaScheme(e.cfg.DeltaAlgorithm)
	residual, err := delta.Diff(scheme, best.bytes, data)
	if err != nil {
		return Entry{}, false, newErr(KindDelta, "store_file.delta_probe", path, err)
	}

	algo := codecAlgorithm(e.cfg.CompressionAlgorithm)
	compressedResidual, err := codec.Compress(algo, e.cfg.CompressionLevel, residual)
	if err != nil {
		return Entry{}, false, newErr(KindCodec, "store_file.delta_probe", path, err)
	}
	compressedWhole, err := codec.Compress(algo, e.cfg.CompressionLevel, data)
	if err != nil {
		return Entry{}, false, newErr(KindCodec, "store_file.delta_probe", path, err)
	}
	if len(compressedResidual) >= len(compressedWhole) {
		return Entry{}, false, nil
	}

	res, err := e.store.PutDelta(residual, indexAlgorithm(e.cfg.CompressionAlgorithm), e.cfg.CompressionLevel, best.entry.ObjectID, index.DeltaScheme(e.cfg.DeltaAlgorithm))
	if err != nil {
		return Entry{}, false, newErr(KindObjectStore, "store_file.delta_probe", path, err)
	}
	return Entry{
		Path: path, ObjectID: res.ObjectID, OriginalSize: size, StoredSize: res.StoredSize,
		Algorithm: e.cfg.CompressionAlgorithm, ContentHash: hash, Kind: KindDelta,
		DeltaScheme: e.cfg.DeltaAlgorithm, Base: best.entry.ObjectID, CreatedAt: now, ModifiedAt: now,
	}, true, nil
}

func (e *Engine) wholeFallback(path string, data []byte, hash string, now time.Time) (Entry, error) {
	res, err := e.store.PutWhole(data, indexAlgorithm(e.cfg.CompressionAlgorithm), e.cfg.CompressionLevel)
	if err != nil {
		return Entry{}, newErr(KindObjectStore, "store_file.whole", path, err)
	}
	return Entry{
		Path: path, ObjectID: res.ObjectID, OriginalSize: int64(len(data)),
		StoredSize: res.StoredSize, Algorithm: e.cfg.CompressionAlgorithm, ContentHash: hash,
		Kind: KindWhole, CreatedAt: now, ModifiedAt: now,
	}, nil
}

func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

func withinFactor(a, b int64, factor int64) bool {
	if a == 0 || b == 0 {
		return a == b
	}
	lo, hi := a, b
	if lo > hi {
		lo, hi = hi, lo
	}
	return hi <= lo*factor
}

func absDiff(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

func codecAlgorithm(a Algorithm) codec.Algorithm { return codec.Algorithm(a) }

func indexAlgorithm(a Algorithm) index.Algorithm { return index.Algorithm(a) }

func deltaScheme(s DeltaScheme) delta.Scheme {
	if s == DeltaExtended {
		return delta.Extended
	}
	return delta.Simple
}
