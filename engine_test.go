package stowr_test

import (
	"bytes"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	stowr "github.com/XiaoLinXiaoZhu/stowr-core"
)

func openTestEngine(t *testing.T, mutate func(*stowr.Config)) *stowr.Engine {
	t.Helper()
	cfg := stowr.Default()
	cfg.StoragePath = t.TempDir()
	if mutate != nil {
		mutate(&cfg)
	}
	e, err := stowr.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func randData(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

// S1 — basic round-trip.
func TestScenarioS1BasicRoundTrip(t *testing.T) {
	e := openTestEngine(t, nil)
	srcDir := t.TempDir()
	data := randData(4096, 100)
	path := writeTempFile(t, srcDir, "a.bin", data)

	if err := e.StoreFile(path, false); err != nil {
		t.Fatalf("StoreFile: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("source should have been removed after store")
	}
	entries, err := e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	if err := e.OweFile(path); err != nil {
		t.Fatalf("OweFile: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("owed bytes do not match original")
	}
	entries, err = e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected entry removed after owe, got %d", len(entries))
	}
}

// S2 — dedup.
func TestScenarioS2Dedup(t *testing.T) {
	e := openTestEngine(t, nil)
	dirX := filepath.Join(t.TempDir(), "x")
	dirY := filepath.Join(t.TempDir(), "y")
	os.MkdirAll(dirX, 0o750)
	os.MkdirAll(dirY, 0o750)

	data := randData(10*1024, 200)
	pathX := writeTempFile(t, dirX, "a", data)
	pathY := writeTempFile(t, dirY, "a", data)

	if err := e.StoreFile(pathX, false); err != nil {
		t.Fatalf("StoreFile x: %v", err)
	}
	if err := e.StoreFile(pathY, false); err != nil {
		t.Fatalf("StoreFile y: %v", err)
	}

	entries, err := e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	var wholeCount, dedupCount int
	var objectIDs = map[string]bool{}
	for _, ent := range entries {
		objectIDs[ent.ObjectID] = true
		switch ent.Kind {
		case stowr.KindWhole:
			wholeCount++
		case stowr.KindDedup:
			dedupCount++
		}
	}
	if wholeCount != 1 || dedupCount != 1 {
		t.Fatalf("expected 1 whole + 1 dedup entry, got whole=%d dedup=%d", wholeCount, dedupCount)
	}
	if len(objectIDs) != 1 {
		t.Fatalf("expected both entries to share one object, got %d distinct ids", len(objectIDs))
	}

	if err := e.OweFile(pathX); err != nil {
		t.Fatalf("OweFile x: %v", err)
	}
	entries, _ = e.ListFiles()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", len(entries))
	}

	if err := e.OweFile(pathY); err != nil {
		t.Fatalf("OweFile y: %v", err)
	}
	entries, _ = e.ListFiles()
	if len(entries) != 0 {
		t.Fatalf("expected 0 entries remaining, got %d", len(entries))
	}
}

// S3 — delta.
func TestScenarioS3Delta(t *testing.T) {
	e := openTestEngine(t, func(c *stowr.Config) {
		c.EnableDeltaCompression = true
		c.SimilarityThreshold = 0.5
	})
	dir := t.TempDir()

	v1 := make([]byte, 100*1024)
	for i := range v1 {
		v1[i] = byte(i % 251)
	}
	v2 := append([]byte(nil), v1...)
	v2[50000] ^= 0xFF

	p1 := writeTempFile(t, dir, "v1.bin", v1)
	p2 := writeTempFile(t, dir, "v2.bin", v2)

	if err := e.StoreFile(p1, false); err != nil {
		t.Fatalf("StoreFile v1: %v", err)
	}
	if err := e.StoreFile(p2, false); err != nil {
		t.Fatalf("StoreFile v2: %v", err)
	}

	entries, err := e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	var v2Entry stowr.Entry
	found := false
	for _, ent := range entries {
		if ent.Path == p2 {
			v2Entry = ent
			found = true
		}
	}
	if !found {
		t.Fatalf("v2 entry not found")
	}
	if v2Entry.Kind != stowr.KindDelta {
		t.Fatalf("expected v2 entry kind Delta, got %s", v2Entry.Kind)
	}

	// v1 cannot be released while v2 depends on it.
	if err := e.DeleteFile(p1); err == nil {
		t.Fatalf("expected delete of v1 to fail while v2 still depends on it")
	}

	// release the dependent first, then the base.
	if err := e.OweFile(p2); err != nil {
		t.Fatalf("OweFile v2: %v", err)
	}
	got2, err := os.ReadFile(p2)
	if err != nil {
		t.Fatalf("ReadFile v2: %v", err)
	}
	if !bytes.Equal(got2, v2) {
		t.Fatalf("owed v2 bytes do not match original")
	}

	if err := e.OweFile(p1); err != nil {
		t.Fatalf("OweFile v1 after dependent released: %v", err)
	}
	got1, err := os.ReadFile(p1)
	if err != nil {
		t.Fatalf("ReadFile v1: %v", err)
	}
	if !bytes.Equal(got1, v1) {
		t.Fatalf("owed v1 bytes do not match original")
	}
}

// S4 — rename collision.
func TestScenarioS4RenameCollision(t *testing.T) {
	e := openTestEngine(t, nil)
	dir := t.TempDir()
	pa := writeTempFile(t, dir, "a.txt", randData(1024, 300))
	pb := writeTempFile(t, dir, "b.txt", randData(1024, 301))

	if err := e.StoreFile(pa, false); err != nil {
		t.Fatalf("StoreFile a: %v", err)
	}
	if err := e.StoreFile(pb, false); err != nil {
		t.Fatalf("StoreFile b: %v", err)
	}

	err := e.RenameFile(pa, pb)
	if err == nil || !stowr.IsAlreadyExists(err) {
		t.Fatalf("expected AlreadyExists renaming onto an existing path, got %v", err)
	}

	entries, err := e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected both entries intact, got %d", len(entries))
	}
}

// S5 — batch partial failure.
func TestScenarioS5BatchPartialFailure(t *testing.T) {
	e := openTestEngine(t, nil)
	dir := t.TempDir()

	const total = 20
	paths := make([]string, 0, total)
	for i := 0; i < total; i++ {
		p := writeTempFile(t, dir, filepathName(i), randData(512, int64(400+i)))
		paths = append(paths, p)
	}
	// one unreadable path that was never created.
	missing := filepath.Join(dir, "does-not-exist.bin")
	paths = append(paths, missing)

	source := &sliceSource{paths: paths}
	summary := e.StoreFilesFromList(source, false, nil, nil)

	if len(summary.Succeeded) != total {
		t.Fatalf("expected %d successes, got %d", total, len(summary.Succeeded))
	}
	if len(summary.Failed) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(summary.Failed))
	}
	if summary.Failed[0].Path != missing {
		t.Fatalf("expected failure for %s, got %s", missing, summary.Failed[0].Path)
	}

	entries, err := e.ListFiles()
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != total {
		t.Fatalf("expected %d entries in index, got %d", total, len(entries))
	}
}

func filepathName(i int) string {
	return "item" + string(rune('a'+i%26)) + string(rune('0'+i/26)) + ".bin"
}

type sliceSource struct {
	paths []string
	pos   int
}

func (s *sliceSource) Next() (string, bool) {
	if s.pos >= len(s.paths) {
		return "", false
	}
	p := s.paths[s.pos]
	s.pos++
	return p, true
}

// S6 — backend equivalence. Document and Relational are interchangeable
// Index implementations behind the same interface; running an identical
// sequence of operations against each must produce the same observable
// results. (Migrating a live Document store past the advisory threshold
// only happens at Open once it has crossed spec's migration threshold, far
// too many entries to exercise in a unit test — so this test holds the
// backend fixed for a store's whole lifetime instead, the other supported
// configuration, and checks both give identical results.)
func TestScenarioS6BackendEquivalence(t *testing.T) {
	run := func(t *testing.T, mode stowr.IndexMode) (entries []stowr.Entry, owed [][]byte) {
		cfg := stowr.Default()
		cfg.StoragePath = t.TempDir()
		cfg.IndexMode = mode

		e, err := stowr.Open(cfg)
		if err != nil {
			t.Fatalf("Open (%s): %v", mode, err)
		}
		defer e.Close()

		srcDir := t.TempDir()
		var paths []string
		for i := 0; i < 3; i++ {
			data := randData(2048, int64(500+i))
			p := writeTempFile(t, srcDir, filepathName(i), data)
			if err := e.StoreFile(p, false); err != nil {
				t.Fatalf("StoreFile (%s): %v", mode, err)
			}
			paths = append(paths, p)
		}

		entries, err = e.ListFiles()
		if err != nil {
			t.Fatalf("ListFiles (%s): %v", mode, err)
		}

		for _, p := range paths {
			if err := e.OweFile(p); err != nil {
				t.Fatalf("OweFile (%s): %v", mode, err)
			}
			data, err := os.ReadFile(p)
			if err != nil {
				t.Fatalf("ReadFile (%s): %v", mode, err)
			}
			owed = append(owed, data)
		}
		return entries, owed
	}

	docEntries, docOwed := run(t, stowr.Document)
	relEntries, relOwed := run(t, stowr.Relational)

	if len(docEntries) != len(relEntries) {
		t.Fatalf("entry count mismatch: document=%d relational=%d", len(docEntries), len(relEntries))
	}
	if len(docOwed) != len(relOwed) {
		t.Fatalf("owed count mismatch: document=%d relational=%d", len(docOwed), len(relOwed))
	}
	for i := range docOwed {
		if !bytes.Equal(docOwed[i], relOwed[i]) {
			t.Fatalf("owed bytes differ between backends at index %d", i)
		}
	}
}

// S7 — crash recovery.
func TestScenarioS7CrashRecovery(t *testing.T) {
	root := t.TempDir()
	cfg := stowr.Default()
	cfg.StoragePath = root

	e, err := stowr.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	// simulate a put that wrote its blob but crashed before the index
	// insert that would have referenced it.
	orphanDir := filepath.Join(root, "objects", "ab")
	if err := os.MkdirAll(orphanDir, 0o750); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	orphanPath := filepath.Join(orphanDir, "cdef01.gz")
	if err := os.WriteFile(orphanPath, []byte("orphan"), 0o640); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	e2, err := stowr.Open(cfg)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer e2.Close()

	if _, err := os.Stat(orphanPath); !os.IsNotExist(err) {
		t.Fatalf("orphan blob should have been removed by the automatic fsck at reopen")
	}
}

// Invariant 7 — rename preserves all entry fields except path and
// modified-timestamp.
func TestInvariantRenamePreservesFields(t *testing.T) {
	e := openTestEngine(t, nil)
	dir := t.TempDir()
	path := writeTempFile(t, dir, "a.bin", randData(2048, 600))

	if err := e.StoreFile(path, false); err != nil {
		t.Fatalf("StoreFile: %v", err)
	}
	entries, _ := e.ListFiles()
	before := entries[0]

	newPath := filepath.Join(dir, "b.bin")
	if err := e.RenameFile(path, newPath); err != nil {
		t.Fatalf("RenameFile: %v", err)
	}
	entries, _ = e.ListFiles()
	after := entries[0]

	if after.Path != newPath {
		t.Fatalf("expected renamed path %s, got %s", newPath, after.Path)
	}
	if after.ObjectID != before.ObjectID || after.ContentHash != before.ContentHash ||
		after.OriginalSize != before.OriginalSize || after.StoredSize != before.StoredSize ||
		after.Algorithm != before.Algorithm || after.Kind != before.Kind ||
		!after.CreatedAt.Equal(before.CreatedAt) {
		t.Fatalf("rename must preserve all fields except path and modified-timestamp:\nbefore=%+v\nafter=%+v", before, after)
	}
}
