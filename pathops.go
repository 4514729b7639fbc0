package stowr

import (
	"errors"
	"fmt"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// RenameFile atomically repoints oldPath's entry to newPath. It is
// index-only: no bytes move on disk, since the filesystem copy at
// oldPath is already gone once an entry exists for it (the path is in
// the Owed state). Fails with AlreadyExists if newPath is already
// tracked, or NotFound if oldPath is not.
func (e *Engine) RenameFile(oldPath, newPath string) error {
	oldCanon, err := canonicalize(oldPath)
	if err != nil {
		return newErr(KindNotFound, "rename_file", oldPath, err)
	}
	newCanon, err := canonicalize(newPath)
	if err != nil {
		return newErr(KindNotFound, "rename_file", newPath, err)
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()

	if err := e.idx.UpdatePath(oldCanon, newCanon); err != nil {
		switch {
		case errors.Is(err, index.ErrAlreadyExists):
			return newErr(KindAlreadyExists, "rename_file", newCanon, err)
		case errors.Is(err, index.ErrNotFound):
			return newErr(KindNotFound, "rename_file", oldCanon, err)
		default:
			return newErr(KindIndex, "rename_file", oldCanon, err)
		}
	}
	return nil
}

// MoveFile is an alias for RenameFile: both are the same index-only
// update_path operation (spec §4.5 lists them as two named operations
// over one mechanism).
func (e *Engine) MoveFile(src, dst string) error {
	return e.RenameFile(src, dst)
}

// DeleteFile removes path's entry and releases its object. If the
// object cannot be released (a Whole object with live Delta dependents,
// spec scenario S3), the index removal is rolled back so the entry and
// its object stay consistent, and the caller must release the
// dependents first.
func (e *Engine) DeleteFile(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return newErr(KindNotFound, "delete_file", path, err)
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()

	entry, err := e.idx.Remove(canon)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return newErr(KindNotFound, "delete_file", canon, err)
		}
		return newErr(KindIndex, "delete_file", canon, err)
	}

	if err := e.store.DecRef(entry.ObjectID); err != nil {
		if insertErr := e.idx.Insert(entry); insertErr != nil {
			e.logger.Warn("delete_file: failed to roll back index entry after release failure",
				"path", canon, "err", insertErr)
		}
		return newErr(KindObjectStore, "delete_file", canon, fmt.Errorf("release object: %w", err))
	}
	return nil
}
