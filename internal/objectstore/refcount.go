package objectstore

import (
	"os"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// DecRef decrements id's refcount and, if it reaches zero, removes the
// blob file and its meta record. Releasing a Whole object that still has
// live Delta dependents is forbidden — the Storage Manager must release
// those first (spec §4.4, scenario S3) — so DecRef checks for dependents
// before touching a Whole object's count at all.
func (s *Store) DecRef(id string) error {
	meta, err := s.idx.GetObjectMeta(id)
	if err != nil {
		return &Error{Op: "dec_ref", ObjectID: id, Err: err}
	}

	if meta.Kind == index.KindWhole {
		dependents, err := s.hasDeltaDependents(id)
		if err != nil {
			return &Error{Op: "dec_ref", ObjectID: id, Err: err}
		}
		if dependents {
			return &Error{Op: "dec_ref", ObjectID: id, Err: ErrHasDependents}
		}
	}

	unlock := s.lockID(id)
	defer unlock()

	count, err := s.idx.DecrRefCount(id)
	if err != nil {
		return &Error{Op: "dec_ref", ObjectID: id, Err: err}
	}
	if count > 0 {
		return nil
	}

	path := s.blobPath(id, extFor(meta.Kind, meta.Algorithm))
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return &Error{Op: "dec_ref", ObjectID: id, Err: err}
	}
	if err := s.idx.DeleteObjectMeta(id); err != nil {
		return &Error{Op: "dec_ref", ObjectID: id, Err: err}
	}
	return nil
}

// hasDeltaDependents scans every stored object for a Delta whose Base is
// id. This is an O(total objects) scan; acceptable at the scale this
// engine targets (a single user's local store), and keeping dependency
// tracking inside the existing object-meta listing avoids a second index.
func (s *Store) hasDeltaDependents(id string) (bool, error) {
	all, err := s.idx.ListObjectMeta()
	if err != nil {
		return false, err
	}
	for _, m := range all {
		if m.Kind == index.KindDelta && m.Base == id {
			return true, nil
		}
	}
	return false, nil
}
