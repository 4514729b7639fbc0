package stowr

import (
	"errors"

	"github.com/XiaoLinXiaoZhu/stowr-core/internal/index"
)

// insertEntryLocked commits entry under the single global writer lock
// (spec §5: acquire, commit index entry, release — the heavy read/
// compress/diff work in ingest has already happened outside this lock).
func (e *Engine) insertEntryLocked(entry Entry) error {
	e.wmu.Lock()
	defer e.wmu.Unlock()

	if err := e.idx.Insert(toIndexEntry(entry)); err != nil {
		if errors.Is(err, index.ErrAlreadyExists) {
			return newErr(KindAlreadyExists, "store_file", entry.Path, err)
		}
		return newErr(KindIndex, "store_file", entry.Path, err)
	}
	return nil
}
