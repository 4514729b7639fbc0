package objectstore_test

import (
	"bytes"
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/delta"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/objectstore"
)

func openStore(t *testing.T) (*objectstore.Store, index.Index) {
	t.Helper()
	dir := t.TempDir()
	idx, err := index.OpenDocument(filepath.Join(dir, index.DocumentFileName))
	if err != nil {
		t.Fatalf("OpenDocument: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	st, err := objectstore.Open(dir, idx)
	if err != nil {
		t.Fatalf("objectstore.Open: %v", err)
	}
	return st, idx
}

func randBytes(n int, seed int64) []byte {
	r := rand.New(rand.NewSource(seed))
	b := make([]byte, n)
	r.Read(b)
	return b
}

func TestPutWholeGetRoundTrip(t *testing.T) {
	st, _ := openStore(t)
	data := randBytes(4096, 1)

	res, err := st.PutWhole(data, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole: %v", err)
	}
	if !res.IsNew {
		t.Fatalf("expected IsNew on first put")
	}

	got, err := st.Get(res.ObjectID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("round-trip mismatch")
	}
}

func TestPutWholeDedupsIdenticalContent(t *testing.T) {
	st, _ := openStore(t)
	data := randBytes(2048, 2)

	first, err := st.PutWhole(data, index.Zstd, 3)
	if err != nil {
		t.Fatalf("PutWhole 1: %v", err)
	}
	second, err := st.PutWhole(data, index.Zstd, 3)
	if err != nil {
		t.Fatalf("PutWhole 2: %v", err)
	}
	if second.IsNew {
		t.Fatalf("second identical put should hit dedup, got IsNew=true")
	}
	if first.ObjectID != second.ObjectID {
		t.Fatalf("dedup should reuse the same object id: %s != %s", first.ObjectID, second.ObjectID)
	}

	meta, err := st.Meta(first.ObjectID)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.RefCount != 2 {
		t.Fatalf("RefCount = %d, want 2", meta.RefCount)
	}
}

func TestPutDeltaGetReconstructsAgainstBase(t *testing.T) {
	st, _ := openStore(t)
	base := randBytes(64 * 1024, 3)
	target := append([]byte(nil), base...)
	target[30000] ^= 0xFF

	baseRes, err := st.PutWhole(base, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole base: %v", err)
	}

	residual, err := delta.Diff(delta.Simple, base, target)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}

	deltaRes, err := st.PutDelta(residual, index.Gzip, 6, baseRes.ObjectID, index.DeltaSimple)
	if err != nil {
		t.Fatalf("PutDelta: %v", err)
	}

	got, err := st.Get(deltaRes.ObjectID)
	if err != nil {
		t.Fatalf("Get delta: %v", err)
	}
	if !bytes.Equal(got, target) {
		t.Fatalf("delta round-trip mismatch")
	}
}

func TestPutDeltaRejectsMissingBase(t *testing.T) {
	st, _ := openStore(t)
	_, err := st.PutDelta([]byte("residual"), index.Gzip, 6, "no-such-base", index.DeltaSimple)
	if err == nil {
		t.Fatalf("expected error for missing base")
	}
}

func TestGetRejectsDeltaChains(t *testing.T) {
	st, idx := openStore(t)
	base := randBytes(4096, 4)
	baseRes, err := st.PutWhole(base, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole: %v", err)
	}

	// Forge a delta-of-delta meta record directly, since PutDelta itself
	// never produces one: Get must still refuse to chain deltas.
	if err := idx.PutObjectMeta(index.ObjectMeta{
		ID: "fake-delta-base", Algorithm: index.Gzip, Kind: index.KindDelta,
		FileName: "fake.dlt", RefCount: 1, Base: baseRes.ObjectID, DeltaScheme: index.DeltaSimple,
	}); err != nil {
		t.Fatalf("PutObjectMeta: %v", err)
	}
	if err := idx.PutObjectMeta(index.ObjectMeta{
		ID: "fake-delta-of-delta", Algorithm: index.Gzip, Kind: index.KindDelta,
		FileName: "fake2.dlt", RefCount: 1, Base: "fake-delta-base", DeltaScheme: index.DeltaSimple,
	}); err != nil {
		t.Fatalf("PutObjectMeta: %v", err)
	}

	_, err = st.Get("fake-delta-of-delta")
	if err == nil {
		t.Fatalf("expected Get to reject a delta chain")
	}
}
