package stowr

import "time"

// StorageKind classifies how a logical entry's bytes are held in the
// object store.
type StorageKind string

const (
	// KindWhole means the object holds the full compressed original bytes.
	KindWhole StorageKind = "whole"
	// KindDelta means the object holds a residual against a Base object.
	KindDelta StorageKind = "delta"
	// KindDedup means the entry shares a Whole object with >= 1 other entry.
	KindDedup StorageKind = "dedup"
)

// Algorithm is a codec identifier, stored per-object so a store may mix
// algorithms across its lifetime.
type Algorithm string

const (
	Gzip Algorithm = "gzip"
	Zstd Algorithm = "zstd"
	Lz4  Algorithm = "lz4"
)

// DeltaScheme identifies which delta algorithm produced a Delta-kind entry.
type DeltaScheme string

const (
	DeltaSimple   DeltaScheme = "simple"
	DeltaExtended DeltaScheme = "extended"
)

// Entry is the index's primary record: the mapping from a logical,
// canonicalized filesystem path to the stored object that owes its bytes.
type Entry struct {
	// Path is the canonicalized original path. Unique within the index.
	Path string

	// ObjectID identifies the stored object holding this entry's bytes.
	// Equal to ContentHash for Whole/Dedup kinds; a fresh UUID for Delta.
	ObjectID string

	// OriginalSize is the size, in bytes, of the uncompressed original.
	OriginalSize int64

	// StoredSize is the on-disk size after the codec (or, for Delta
	// entries, the size of the residual).
	StoredSize int64

	// Algorithm is the compression algorithm used for this entry's object.
	Algorithm Algorithm

	// ContentHash is the hex-encoded SHA-256 of the uncompressed original.
	ContentHash string

	// Kind classifies how the bytes are held.
	Kind StorageKind

	// DeltaScheme is set only when Kind == KindDelta.
	DeltaScheme DeltaScheme

	// Base is the object ID this entry's Delta object depends on. Empty
	// unless Kind == KindDelta.
	Base string

	// CreatedAt and ModifiedAt are second-precision timestamps.
	CreatedAt  time.Time
	ModifiedAt time.Time
}

// Clone returns a deep copy of e (all fields are value types already, so
// this is a plain value copy — kept as a method so callers never need to
// remember that).
func (e Entry) Clone() Entry { return e }

// ObjectMeta is the object store's record for one stored blob.
type ObjectMeta struct {
	// ID is the object identifier: equal to the content hash for
	// Whole/Dedup objects, a freshly generated UUID for Delta objects.
	ID string

	// Algorithm is the codec used to compress this object's bytes. For
	// Delta objects this is the codec applied to the residual, not the
	// base.
	Algorithm Algorithm

	// Kind distinguishes Whole from Delta storage (Dedup entries always
	// point at a Whole object's meta).
	Kind StorageKind

	// FileName is the object's ID followed by "." and its extension. The
	// blob itself lives at objects/<first two chars of ID>/<rest of ID>.<ext>.
	FileName string

	// RefCount is the number of logical entries referencing this object.
	// Delta objects always have RefCount == 1.
	RefCount int64

	// Base is set only for Delta objects: the Whole object ID this one
	// reconstructs against.
	Base string

	// DeltaScheme is set only for Delta objects.
	DeltaScheme DeltaScheme
}
