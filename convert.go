package stowr

import "github.com/XiaoLinXiaoZhu/stowr-core/internal/index"

// The root package and internal/index intentionally define parallel
// StorageKind/Algorithm/DeltaScheme/Entry/ObjectMeta types (index stays
// leaf-level, dependency-free of the engine). These helpers convert
// between them at the one seam where the engine talks to its index.

func toIndexEntry(e Entry) index.Entry {
	return index.Entry{
		Path:         e.Path,
		ObjectID:     e.ObjectID,
		OriginalSize: e.OriginalSize,
		StoredSize:   e.StoredSize,
		Algorithm:    index.Algorithm(e.Algorithm),
		ContentHash:  e.ContentHash,
		Kind:         index.StorageKind(e.Kind),
		DeltaScheme:  index.DeltaScheme(e.DeltaScheme),
		Base:         e.Base,
		CreatedAt:    e.CreatedAt,
		ModifiedAt:   e.ModifiedAt,
	}
}

func fromIndexEntry(e index.Entry) Entry {
	return Entry{
		Path:         e.Path,
		ObjectID:     e.ObjectID,
		OriginalSize: e.OriginalSize,
		StoredSize:   e.StoredSize,
		Algorithm:    Algorithm(e.Algorithm),
		ContentHash:  e.ContentHash,
		Kind:         StorageKind(e.Kind),
		DeltaScheme:  DeltaScheme(e.DeltaScheme),
		Base:         e.Base,
		CreatedAt:    e.CreatedAt,
		ModifiedAt:   e.ModifiedAt,
	}
}

func fromIndexEntries(es []index.Entry) []Entry {
	out := make([]Entry, len(es))
	for i, e := range es {
		out[i] = fromIndexEntry(e)
	}
	return out
}
