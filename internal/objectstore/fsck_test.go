package objectstore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/objectstore"
)

func storeRoot(t *testing.T) (string, index.Index) {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.OpenDocument(filepath.Join(dir, index.DocumentFileName))
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return dir, idx
}

func TestFsckRemovesOrphanBlob(t *testing.T) {
	root, idx := storeRoot(t)
	st, err := objectstore.Open(root, idx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// simulates a crash after the blob write but before the index insert
	// that would have referenced it (spec scenario S7).
	orphanDir := filepath.Join(root, "objects", "ab")
	if err := os.MkdirAll(orphanDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	orphanPath := filepath.Join(orphanDir, "cdef.gz")
	if err := os.WriteFile(orphanPath, []byte("orphan"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data := randBytes(512, 20)
	res, err := st.PutWhole(data, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole: %v", err)
	}

	result, err := objectstore.Fsck(root, idx)
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if len(result.OrphanBlobsRemoved) != 1 || result.OrphanBlobsRemoved[0] != orphanPath {
		t.Fatalf("expected orphan blob removed, got %+v", result.OrphanBlobsRemoved)
	}
	if _, statErr := os.Stat(orphanPath); !os.IsNotExist(statErr) {
		t.Fatalf("orphan blob should have been deleted from disk")
	}

	// the live object must survive fsck untouched.
	if !st.Exists(res.ObjectID) {
		t.Fatalf("live object should not be touched by fsck")
	}
}

func TestFsckRemovesZeroRefcountMeta(t *testing.T) {
	root, idx := storeRoot(t)
	if _, err := objectstore.Open(root, idx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := idx.PutObjectMeta(index.ObjectMeta{
		ID: "deadmeta", Algorithm: index.Gzip, Kind: index.KindWhole,
		FileName: "deadmeta.gz", RefCount: 0,
	}); err != nil {
		t.Fatalf("PutObjectMeta: %v", err)
	}

	result, err := objectstore.Fsck(root, idx)
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if len(result.OrphanMetaRemoved) != 1 || result.OrphanMetaRemoved[0] != "deadmeta" {
		t.Fatalf("expected zero-refcount meta removed, got %+v", result.OrphanMetaRemoved)
	}
	if _, err := idx.GetObjectMeta("deadmeta"); err == nil {
		t.Fatalf("zero-refcount meta should have been deleted")
	}
}

func TestFsckReportsIntegrityViolationForMissingBlob(t *testing.T) {
	root, idx := storeRoot(t)
	st, err := objectstore.Open(root, idx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	data := randBytes(512, 21)
	res, err := st.PutWhole(data, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole: %v", err)
	}

	blobPath := filepath.Join(root, "objects", res.ObjectID[:2], res.ObjectID[2:]+".gz")
	if err := os.Remove(blobPath); err != nil {
		t.Fatalf("Remove: %v", err)
	}

	result, err := objectstore.Fsck(root, idx)
	if err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if len(result.IntegrityViolations) != 1 || result.IntegrityViolations[0] != res.ObjectID {
		t.Fatalf("expected integrity violation for %s, got %+v", res.ObjectID, result.IntegrityViolations)
	}
	// the meta record itself is left in place; fsck reports bit rot rather
	// than silently discarding a live reference.
	if _, err := idx.GetObjectMeta(res.ObjectID); err != nil {
		t.Fatalf("meta record should survive an integrity violation: %v", err)
	}
}

func TestFsckCleansCrashTempFiles(t *testing.T) {
	root, idx := storeRoot(t)
	if _, err := objectstore.Open(root, idx); err != nil {
		t.Fatalf("Open: %v", err)
	}

	tmpDir := filepath.Join(root, "objects", "ff")
	if err := os.MkdirAll(tmpDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	tmpPath := filepath.Join(tmpDir, "0011.gz.tmp-abcd1234")
	if err := os.WriteFile(tmpPath, []byte("partial"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if _, err := objectstore.Fsck(root, idx); err != nil {
		t.Fatalf("Fsck: %v", err)
	}
	if _, statErr := os.Stat(tmpPath); !os.IsNotExist(statErr) {
		t.Fatalf("crash-leftover temp file should have been removed")
	}
}
