package stowr

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// OweFile reconstructs the entry at path from the object store and
// writes it back to the filesystem, then releases the object and
// removes the index entry. If the destination already exists with
// content matching the entry's hash, the write is skipped (it is
// already correct) but the release and index removal still happen — an
// idempotent no-op write. A destination that exists with different
// content is an error and nothing is modified (spec §9 Open Question:
// overwrite is never silent).
func (e *Engine) OweFile(path string) error {
	canon, err := canonicalize(path)
	if err != nil {
		return newErr(KindNotFound, "owe_file", path, err)
	}

	entry, err := e.idx.Get(canon)
	if err != nil {
		if errors.Is(err, index.ErrNotFound) {
			return newErr(KindNotFound, "owe_file", canon, err)
		}
		return newErr(KindIndex, "owe_file", canon, err)
	}

	data, err := e.store.Get(entry.ObjectID)
	if err != nil {
		return newErr(KindObjectStore, "owe_file", canon, err)
	}

	wrote := false
	if existingHash, ok := hashOfFile(canon); ok {
		if existingHash != entry.ContentHash {
			return newErr(KindAlreadyExists, "owe_file", canon, fmt.Errorf("destination exists with different content"))
		}
		// identical content already in place: skip the write, still release.
	} else {
		if err := writeOwedFile(canon, data); err != nil {
			return newErr(KindObjectStore, "owe_file", canon, err)
		}
		wrote = true
	}

	e.wmu.Lock()
	defer e.wmu.Unlock()

	if err := e.store.DecRef(entry.ObjectID); err != nil {
		if wrote {
			os.Remove(canon)
		}
		return newErr(KindObjectStore, "owe_file", canon, fmt.Errorf("release object: %w", err))
	}
	if _, err := e.idx.Remove(canon); err != nil {
		e.logger.Warn("owe_file: index remove failed after release", "path", canon, "err", err)
		return newErr(KindIndex, "owe_file", canon, err)
	}
	return nil
}

// hashOfFile reports the hex SHA-256 of path's current content, and
// whether path exists at all.
func hashOfFile(path string) (hash string, exists bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// writeOwedFile restores data to dest via a temp-file-then-rename
// sequence, so a write failure never leaves a partial file at dest
// (spec §7: "the partial destination file, if any, is removed").
func writeOwedFile(dest string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o750); err != nil {
		return err
	}
	tmp := dest + ".owe-tmp"
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
