package objectstore_test

import (
	"errors"
	"testing"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/delta"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
	"github.com/XiaoLinXiaoZhu/stowr-core/internal/objectstore"
)

func TestDecRefRemovesObjectAtZero(t *testing.T) {
	st, _ := openStore(t)
	data := randBytes(1024, 10)

	res, err := st.PutWhole(data, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole: %v", err)
	}

	if err := st.DecRef(res.ObjectID); err != nil {
		t.Fatalf("DecRef: %v", err)
	}
	if st.Exists(res.ObjectID) {
		t.Fatalf("object should be gone once refcount reaches zero")
	}
}

func TestDecRefDecrementsWithoutRemovingWhileReferenced(t *testing.T) {
	st, _ := openStore(t)
	data := randBytes(1024, 11)

	first, err := st.PutWhole(data, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole 1: %v", err)
	}
	if _, err := st.PutWhole(data, index.Gzip, 6); err != nil {
		t.Fatalf("PutWhole 2: %v", err)
	}

	if err := st.DecRef(first.ObjectID); err != nil {
		t.Fatalf("DecRef: %v", err)
	}
	meta, err := st.Meta(first.ObjectID)
	if err != nil {
		t.Fatalf("Meta: %v", err)
	}
	if meta.RefCount != 1 {
		t.Fatalf("RefCount = %d, want 1", meta.RefCount)
	}
}

func TestDecRefRejectsWholeWithDeltaDependents(t *testing.T) {
	st, _ := openStore(t)
	base := randBytes(32*1024, 12)
	target := append([]byte(nil), base...)
	target[1000] ^= 0xFF

	baseRes, err := st.PutWhole(base, index.Gzip, 6)
	if err != nil {
		t.Fatalf("PutWhole base: %v", err)
	}
	residual, err := delta.Diff(delta.Simple, base, target)
	if err != nil {
		t.Fatalf("Diff: %v", err)
	}
	if _, err := st.PutDelta(residual, index.Gzip, 6, baseRes.ObjectID, index.DeltaSimple); err != nil {
		t.Fatalf("PutDelta: %v", err)
	}

	err = st.DecRef(baseRes.ObjectID)
	if err == nil {
		t.Fatalf("expected DecRef to reject a base with live delta dependents")
	}
	if !errors.Is(err, objectstore.ErrHasDependents) {
		var oerr *objectstore.Error
		if !errors.As(err, &oerr) || !errors.Is(oerr.Err, objectstore.ErrHasDependents) {
			t.Fatalf("expected ErrHasDependents, got %v", err)
		}
	}
	if !st.Exists(baseRes.ObjectID) {
		t.Fatalf("base must still exist after a rejected DecRef")
	}
}

func TestDecRefUnknownObject(t *testing.T) {
	st, _ := openStore(t)
	if err := st.DecRef("does-not-exist"); err == nil {
		t.Fatalf("expected error for unknown object id")
	}
}

func TestDecRefAllowsWholeOnceDependentsReleased(t *testing.T) {
	st, idx := openStore(t)
	base := randBytes(16*1024, 13)
	target := append([]byte(nil), base...)
	target[500] ^= 0xFF

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

	if err := st.DecRef(deltaRes.ObjectID); err != nil {
		t.Fatalf("DecRef delta: %v", err)
	}
	if err := st.DecRef(baseRes.ObjectID); err != nil {
		t.Fatalf("DecRef base after dependent released: %v", err)
	}
	if st.Exists(baseRes.ObjectID) {
		t.Fatalf("base should be gone once its refcount reaches zero")
	}
	metas, err := idx.ListObjectMeta()
	if err != nil {
		t.Fatalf("ListObjectMeta: %v", err)
	}
	if len(metas) != 0 {
		t.Fatalf("expected no remaining object-meta records, got %d", len(metas))
	}
}
