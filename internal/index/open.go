package index

import (
	"fmt"
	"os"
	"path/filepath"
)

// Mode selects which backend Open constructs.
type Mode string

const (
	ModeAuto       Mode = "auto"
	ModeDocument   Mode = "document"
	ModeRelational Mode = "relational"
)

// file names under the store root for each backend, per spec §6
// ("<root>/index.<ext>").
const (
	DocumentFileName   = "index.yaml"
	RelationalFileName = "index.db"
)

// Open resolves mode against existing on-disk state at root and returns a
// ready Index plus the Mode it actually selected (relevant when mode ==
// Auto). Backend selection happens once, at Open time, never mid-
// lifetime — migrating live would require coordinating in-flight writers
// against a swapped backend, which spec §9 explicitly chooses to avoid.
func Open(root string, mode Mode) (Index, Mode, error) {
	docPath := filepath.Join(root, DocumentFileName)
	relPath := filepath.Join(root, RelationalFileName)

	switch mode {
	case ModeDocument:
		idx, err := OpenDocument(docPath)
		return idx, ModeDocument, err
	case ModeRelational:
		idx, err := OpenRelational(relPath)
		return idx, ModeRelational, err
	case ModeAuto, "":
		// Probe: prefer whichever backend already has on-disk state. If
		// neither exists, start with Document (spec §4.3).
		if _, err := os.Stat(relPath); err == nil {
			idx, err := OpenRelational(relPath)
			return idx, ModeRelational, err
		}
		idx, err := OpenDocument(docPath)
		return idx, ModeDocument, err
	default:
		return nil, "", &Error{Op: "open", Err: fmt.Errorf("unknown index mode %q", mode)}
	}
}

// ShouldMigrate reports whether a Document-backed index has crossed the
// advisory threshold past which the caller should migrate to Relational.
// Migration itself only ever happens at the next Open, per spec §9.
func ShouldMigrate(currentMode Mode, count int, threshold int) bool {
	return currentMode == ModeDocument && count > threshold
}

// Migrate copies every entry and object-meta record from src into a fresh
// Relational index at relPath, leaving src untouched. The caller is
// responsible for swapping to the new backend and (optionally) removing
// the old document file; Migrate never deletes anything itself.
func Migrate(src Index, relPath string) (*Relational, error) {
	dst, err := OpenRelational(relPath)
	if err != nil {
		return nil, err
	}
	objs, err := src.ListObjectMeta()
	if err != nil {
		dst.Close()
		return nil, err
	}
	for _, m := range objs {
		if err := dst.PutObjectMeta(m); err != nil {
			dst.Close()
			return nil, err
		}
	}
	entries, err := src.List()
	if err != nil {
		dst.Close()
		return nil, err
	}
	for _, e := range entries {
		if err := dst.Insert(e); err != nil {
			dst.Close()
			return nil, err
		}
	}
	return dst, nil
}
