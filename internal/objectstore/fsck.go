package objectstore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// FsckResult summarizes what a Fsck pass cleaned up.
type FsckResult struct {
	OrphanBlobsRemoved  []string // blob files with no object-meta record
	OrphanMetaRemoved   []string // object-meta records with refcount <= 0
	IntegrityViolations []string // object-meta records whose blob file is missing
}

// Fsck walks the objects/ tree and the index's object-meta records,
// repairing the crash scenario spec §7/S7 names explicitly: a put that
// wrote its blob but crashed before the index insert that would have
// referenced it. The engine runs it once automatically when a store is
// opened; it may also be invoked manually at any later time.
//
// Unlike an orphan blob (safe to delete — nothing references it), a
// meta record whose blob is missing is bit rot, not an orphan: it is
// reported as an integrity violation rather than silently dropped, so the
// caller can decide whether to accept data loss for that object.
func Fsck(root string, idx index.Index) (FsckResult, error) {
	var res FsckResult

	metas, err := idx.ListObjectMeta()
	if err != nil {
		return res, err
	}
	objDir := filepath.Join(root, "objects")
	known := make(map[string]index.ObjectMeta, len(metas))
	for _, m := range metas {
		known[blobPathUnder(objDir, m.ID, extFor(m.Kind, m.Algorithm))] = m
	}

	err = filepath.WalkDir(objDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := filepath.Base(path)
		if strings.Contains(name, ".tmp-") {
			// leftover from a crash mid-write; always safe to remove.
			os.Remove(path)
			return nil
		}
		if _, ok := known[path]; !ok {
			if rmErr := os.Remove(path); rmErr == nil {
				res.OrphanBlobsRemoved = append(res.OrphanBlobsRemoved, path)
			}
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return res, err
	}

	for _, m := range metas {
		if m.RefCount <= 0 {
			if derr := idx.DeleteObjectMeta(m.ID); derr == nil {
				res.OrphanMetaRemoved = append(res.OrphanMetaRemoved, m.ID)
			}
			continue
		}
		ext := extFor(m.Kind, m.Algorithm)
		path := blobPathUnder(objDir, m.ID, ext)
		if _, statErr := os.Stat(path); statErr != nil {
			res.IntegrityViolations = append(res.IntegrityViolations, m.ID)
		}
	}

	return res, nil
}

func blobPathUnder(objDir, id, ext string) string {
	if len(id) < 2 {
		return filepath.Join(objDir, id, id+"."+ext)
	}
	return filepath.Join(objDir, id[:2], id[2:]+"."+ext)
}
