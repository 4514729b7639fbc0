// Package stowr replaces selected files on the filesystem with
// compressed, deduplicated, optionally delta-encoded copies held inside
// an internal content-addressed store, and restores ("owes") them back
// on demand. A host application supplies a Config and drives an Engine
// through this programmatic API; command-line parsing, progress
// reporting, file-list parsing and path globbing are thin collaborators
// living outside the engine (see PathSource and ProgressSink).
package stowr

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
	stowrlock "github.com/XiaoLinXiaoZhu/stowr-core/internal/lock"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/objectstore"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/workerpool"
)

// Engine is the storage manager: the orchestrator that ingests, extracts,
// renames/moves/deletes, and runs batches with bounded parallelism. It
// owns the Index, the Object Store and the advisory cross-instance lock
// for one storage root.
type Engine struct {
	cfg    Config
	root   string
	idx    index.Index
	store  *objectstore.Store
	flock  *stowrlock.Lock
	pool   *workerpool.Pool
	wmu    sync.Mutex // single global writer lock, §5
	logger *slog.Logger
}

// Open validates cfg, acquires the advisory lock at <root>/.lock, opens
// (or creates) the index backend and object store, runs an automatic
// Fsck pass to repair any crash left behind (spec §7/S7), and returns a
// ready Engine.
func Open(cfg Config) (*Engine, error) {
	cfg = cfg.normalize()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	root := cfg.StoragePath
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, newErr(KindObjectStore, "open", root, fmt.Errorf("create storage root: %w", err))
	}

	fl, err := stowrlock.Acquire(filepath.Join(root, stowrlock.FileName))
	if err != nil {
		return nil, newErr(KindAlreadyLocked, "open", root, err)
	}

	idx, mode, err := index.Open(root, index.Mode(cfg.IndexMode))
	if err != nil {
		fl.Release()
		return nil, newErr(KindIndex, "open", root, err)
	}

	if cfg.IndexMode == Auto {
		idx, err = maybeMigrate(idx, mode, root)
		if err != nil {
			fl.Release()
			return nil, newErr(KindIndex, "open", root, err)
		}
	}

	st, err := objectstore.Open(root, idx)
	if err != nil {
		idx.Close()
		fl.Release()
		return nil, newErr(KindObjectStore, "open", root, err)
	}

	pool, err := workerpool.New(cfg.Multithread)
	if err != nil {
		idx.Close()
		fl.Release()
		return nil, newErr(KindObjectStore, "open", root, err)
	}

	logger := slog.Default().With("component", "stowr", "root", root)

	e := &Engine{cfg: cfg, root: root, idx: idx, store: st, flock: fl, pool: pool, logger: logger}

	if _, err := e.Fsck(); err != nil {
		logger.Warn("fsck at open failed", "err", err)
	}

	return e, nil
}

// maybeMigrate promotes a Document-backed index to Relational once its
// entry count has crossed the advisory threshold, per spec §9: migration
// is decided only at Open time, never mid-lifetime. On migration, the old
// document file is left on disk (Migrate never mutates its source) and
// the caller continues with the new Relational backend.
func maybeMigrate(idx index.Index, mode index.Mode, root string) (index.Index, error) {
	if mode != index.ModeDocument {
		return idx, nil
	}
	count, err := idx.Count()
	if err != nil {
		return idx, err
	}
	if !index.ShouldMigrate(mode, count, migrationThreshold) {
		return idx, nil
	}
	rel, err := index.Migrate(idx, filepath.Join(root, index.RelationalFileName))
	if err != nil {
		return idx, err
	}
	idx.Close()
	return rel, nil
}

// Close releases the worker pool, closes the index backend and releases
// the advisory lock. It is safe to call once; a second call is a no-op
// error from the underlying backend being already closed, which callers
// may ignore.
func (e *Engine) Close() error {
	e.pool.Release()
	idxErr := e.idx.Close()
	lockErr := e.flock.Release()
	if idxErr != nil {
		return newErr(KindIndex, "close", e.root, idxErr)
	}
	if lockErr != nil {
		return newErr(KindAlreadyLocked, "close", e.root, lockErr)
	}
	return nil
}

// FsckSummary reports what an Fsck pass repaired.
type FsckSummary struct {
	OrphanBlobsRemoved  []string
	OrphanMetaRemoved   []string
	IntegrityViolations []string
}

// Fsck walks the object store and index for the crash scenario spec
// §7/S7 names: a put that wrote its blob but crashed before the index
// insert that would have referenced it. Run automatically once at Open;
// safe to invoke again manually.
func (e *Engine) Fsck() (FsckSummary, error) {
	res, err := objectstore.Fsck(e.root, e.idx)
	if err != nil {
		return FsckSummary{}, newErr(KindObjectStore, "fsck", e.root, err)
	}
	return FsckSummary{
		OrphanBlobsRemoved:  res.OrphanBlobsRemoved,
		OrphanMetaRemoved:   res.OrphanMetaRemoved,
		IntegrityViolations: res.IntegrityViolations,
	}, nil
}
