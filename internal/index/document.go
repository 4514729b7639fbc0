package index

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	atomicfile "github.com/natefinch/atomic"
	"gopkg.in/yaml.v3"
)

// documentFile is the on-disk shape of the Document backend: a single
// human-readable YAML file holding both maps, so the whole index is one
// diffable, inspectable artifact.
type documentFile struct {
	Entries map[string]Entry      `yaml:"entries"`
	Objects map[string]ObjectMeta `yaml:"objects"`
}

// Document is the single-file backend. Cheap for small N: every write
// re-serializes the entire file and commits it via a temp-file + fsync +
// rename, so a reader never observes a partial write.
type Document struct {
	mu   sync.RWMutex
	path string
	data documentFile
}

// OpenDocument opens (or creates) a Document index at path.
func OpenDocument(path string) (*Document, error) {
	d := &Document{
		path: path,
		data: documentFile{
			Entries: make(map[string]Entry),
			Objects: make(map[string]ObjectMeta),
		},
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}
		return nil, &Error{Op: "open", Err: err}
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return d, nil
	}
	var df documentFile
	if err := yaml.Unmarshal(raw, &df); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	if df.Entries == nil {
		df.Entries = make(map[string]Entry)
	}
	if df.Objects == nil {
		df.Objects = make(map[string]ObjectMeta)
	}
	d.data = df
	return d, nil
}

// commit re-serializes the whole document and replaces path atomically.
// Callers must hold d.mu (write lock) before calling.
func (d *Document) commit() error {
	out, err := yaml.Marshal(d.data)
	if err != nil {
		return &Error{Op: "commit", Err: err}
	}
	if err := os.MkdirAll(filepath.Dir(d.path), 0o750); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	if err := atomicfile.WriteFile(d.path, bytes.NewReader(out)); err != nil {
		return &Error{Op: "commit", Err: err}
	}
	return nil
}

func (d *Document) Insert(entry Entry) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.data.Entries[entry.Path]; ok {
		return &Error{Op: "insert", Path: entry.Path, Err: ErrAlreadyExists}
	}
	d.data.Entries[entry.Path] = entry
	if err := d.commit(); err != nil {
		delete(d.data.Entries, entry.Path)
		return err
	}
	return nil
}

func (d *Document) Get(path string) (Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.data.Entries[path]
	if !ok {
		return Entry{}, &Error{Op: "get", Path: path, Err: ErrNotFound}
	}
	return e, nil
}

func (d *Document) Remove(path string) (Entry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.data.Entries[path]
	if !ok {
		return Entry{}, &Error{Op: "remove", Path: path, Err: ErrNotFound}
	}
	delete(d.data.Entries, path)
	if err := d.commit(); err != nil {
		d.data.Entries[path] = e
		return Entry{}, err
	}
	return e, nil
}

func (d *Document) UpdatePath(oldPath, newPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.data.Entries[oldPath]
	if !ok {
		return &Error{Op: "update_path", Path: oldPath, Err: ErrNotFound}
	}
	if _, exists := d.data.Entries[newPath]; exists {
		return &Error{Op: "update_path", Path: newPath, Err: ErrAlreadyExists}
	}
	renamed := e
	renamed.Path = newPath
	renamed.ModifiedAt = time.Now().UTC().Truncate(time.Second)
	delete(d.data.Entries, oldPath)
	d.data.Entries[newPath] = renamed
	if err := d.commit(); err != nil {
		delete(d.data.Entries, newPath)
		d.data.Entries[oldPath] = e
		return err
	}
	return nil
}

func (d *Document) List() ([]Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Entry, 0, len(d.data.Entries))
	for _, e := range d.data.Entries {
		out = append(out, e)
	}
	return out, nil
}

func (d *Document) Search(pattern string) ([]Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Entry
	for path, e := range d.data.Entries {
		ok, err := filepath.Match(pattern, path)
		if err != nil {
			return nil, &Error{Op: "search", Err: err}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *Document) FindByHash(contentHash string) ([]Entry, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []Entry
	for _, e := range d.data.Entries {
		if e.ContentHash == contentHash {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *Document) Count() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.data.Entries), nil
}

func (d *Document) GetObjectMeta(id string) (ObjectMeta, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.data.Objects[id]
	if !ok {
		return ObjectMeta{}, &Error{Op: "get_object_meta", Path: id, Err: ErrNotFound}
	}
	return m, nil
}

func (d *Document) PutObjectMeta(meta ObjectMeta) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, had := d.data.Objects[meta.ID]
	d.data.Objects[meta.ID] = meta
	if err := d.commit(); err != nil {
		if had {
			d.data.Objects[meta.ID] = prev
		} else {
			delete(d.data.Objects, meta.ID)
		}
		return err
	}
	return nil
}

func (d *Document) IncrRefCount(id string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.data.Objects[id]
	if !ok {
		return 0, &Error{Op: "incr_refcount", Path: id, Err: ErrNotFound}
	}
	prev := m.RefCount
	m.RefCount++
	d.data.Objects[id] = m
	if err := d.commit(); err != nil {
		m.RefCount = prev
		d.data.Objects[id] = m
		return 0, err
	}
	return m.RefCount, nil
}

func (d *Document) DecrRefCount(id string) (int64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.data.Objects[id]
	if !ok {
		return 0, &Error{Op: "decr_refcount", Path: id, Err: ErrNotFound}
	}
	prev := m.RefCount
	m.RefCount--
	d.data.Objects[id] = m
	if err := d.commit(); err != nil {
		m.RefCount = prev
		d.data.Objects[id] = m
		return 0, err
	}
	return m.RefCount, nil
}

func (d *Document) DeleteObjectMeta(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	prev, had := d.data.Objects[id]
	delete(d.data.Objects, id)
	if err := d.commit(); err != nil {
		if had {
			d.data.Objects[id] = prev
		}
		return err
	}
	return nil
}

func (d *Document) ListObjectMeta() ([]ObjectMeta, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ObjectMeta, 0, len(d.data.Objects))
	for _, m := range d.data.Objects {
		out = append(out, m)
	}
	return out, nil
}

func (d *Document) Close() error { return nil }

var _ Index = (*Document)(nil)
