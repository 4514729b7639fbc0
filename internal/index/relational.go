package index

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS entries (
	path          TEXT PRIMARY KEY,
	object_id     TEXT NOT NULL,
	original_size INTEGER NOT NULL,
	stored_size   INTEGER NOT NULL,
	algorithm     TEXT NOT NULL,
	content_hash  TEXT NOT NULL,
	kind          TEXT NOT NULL,
	delta_scheme  TEXT NOT NULL DEFAULT '',
	base          TEXT NOT NULL DEFAULT '',
	created_at    INTEGER NOT NULL,
	modified_at   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_entries_content_hash ON entries(content_hash);

CREATE TABLE IF NOT EXISTS objects (
	id           TEXT PRIMARY KEY,
	algorithm    TEXT NOT NULL,
	kind         TEXT NOT NULL,
	file_name    TEXT NOT NULL,
	ref_count    INTEGER NOT NULL,
	base         TEXT NOT NULL DEFAULT '',
	delta_scheme TEXT NOT NULL DEFAULT ''
);
`

// Relational is the embedded-SQL backend, one table each for entries and
// objects, with a secondary index on content_hash for the dedup probe.
// Writes are single-row statements wrapped in short transactions.
type Relational struct {
	mu sync.RWMutex
	db *sql.DB
}

// OpenRelational opens (or creates) a SQLite-backed index at path.
func OpenRelational(path string) (*Relational, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	db.SetMaxOpenConns(1) // single-process exclusive writer per spec §5
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, &Error{Op: "open", Err: err}
	}
	return &Relational{db: db}, nil
}

func (r *Relational) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.db.Close()
}

func (r *Relational) Insert(e Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return &Error{Op: "insert", Path: e.Path, Err: err}
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM entries WHERE path = ?`, e.Path).Scan(&exists); err == nil {
		return &Error{Op: "insert", Path: e.Path, Err: ErrAlreadyExists}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return &Error{Op: "insert", Path: e.Path, Err: err}
	}

	_, err = tx.Exec(`INSERT INTO entries
		(path, object_id, original_size, stored_size, algorithm, content_hash, kind, delta_scheme, base, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.Path, e.ObjectID, e.OriginalSize, e.StoredSize, string(e.Algorithm), e.ContentHash,
		string(e.Kind), string(e.DeltaScheme), e.Base, e.CreatedAt.Unix(), e.ModifiedAt.Unix())
	if err != nil {
		return &Error{Op: "insert", Path: e.Path, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "insert", Path: e.Path, Err: err}
	}
	return nil
}

func scanEntry(row interface {
	Scan(dest ...any) error
}) (Entry, error) {
	var e Entry
	var algo, kind, scheme string
	var created, modified int64
	err := row.Scan(&e.Path, &e.ObjectID, &e.OriginalSize, &e.StoredSize, &algo, &e.ContentHash,
		&kind, &scheme, &e.Base, &created, &modified)
	if err != nil {
		return Entry{}, err
	}
	e.Algorithm = Algorithm(algo)
	e.Kind = StorageKind(kind)
	e.DeltaScheme = DeltaScheme(scheme)
	e.CreatedAt = time.Unix(created, 0).UTC()
	e.ModifiedAt = time.Unix(modified, 0).UTC()
	return e, nil
}

const entryColumns = `path, object_id, original_size, stored_size, algorithm, content_hash, kind, delta_scheme, base, created_at, modified_at`

func (r *Relational) Get(path string) (Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row := r.db.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE path = ?`, path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, &Error{Op: "get", Path: path, Err: ErrNotFound}
		}
		return Entry{}, &Error{Op: "get", Path: path, Err: err}
	}
	return e, nil
}

func (r *Relational) Remove(path string) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return Entry{}, &Error{Op: "remove", Path: path, Err: err}
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT `+entryColumns+` FROM entries WHERE path = ?`, path)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Entry{}, &Error{Op: "remove", Path: path, Err: ErrNotFound}
		}
		return Entry{}, &Error{Op: "remove", Path: path, Err: err}
	}
	if _, err := tx.Exec(`DELETE FROM entries WHERE path = ?`, path); err != nil {
		return Entry{}, &Error{Op: "remove", Path: path, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, &Error{Op: "remove", Path: path, Err: err}
	}
	return e, nil
}

func (r *Relational) UpdatePath(oldPath, newPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return &Error{Op: "update_path", Path: oldPath, Err: err}
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow(`SELECT 1 FROM entries WHERE path = ?`, oldPath).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Error{Op: "update_path", Path: oldPath, Err: ErrNotFound}
		}
		return &Error{Op: "update_path", Path: oldPath, Err: err}
	}
	if err := tx.QueryRow(`SELECT 1 FROM entries WHERE path = ?`, newPath).Scan(&exists); err == nil {
		return &Error{Op: "update_path", Path: newPath, Err: ErrAlreadyExists}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return &Error{Op: "update_path", Path: newPath, Err: err}
	}

	now := time.Now().UTC().Unix()
	if _, err := tx.Exec(`UPDATE entries SET path = ?, modified_at = ? WHERE path = ?`, newPath, now, oldPath); err != nil {
		return &Error{Op: "update_path", Path: oldPath, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &Error{Op: "update_path", Path: oldPath, Err: err}
	}
	return nil
}

func (r *Relational) List() ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, err := r.db.Query(`SELECT ` + entryColumns + ` FROM entries`)
	if err != nil {
		return nil, &Error{Op: "list", Err: err}
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &Error{Op: "list", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Relational) Search(pattern string) ([]Entry, error) {
	all, err := r.List()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, e := range all {
		ok, err := filepath.Match(pattern, e.Path)
		if err != nil {
			return nil, &Error{Op: "search", Err: err}
		}
		if ok {
			out = append(out, e)
		}
	}
	return out, nil
}

func (r *Relational) FindByHash(contentHash string) ([]Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, err := r.db.Query(`SELECT `+entryColumns+` FROM entries WHERE content_hash = ?`, contentHash)
	if err != nil {
		return nil, &Error{Op: "find_by_hash", Err: err}
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, &Error{Op: "find_by_hash", Err: err}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *Relational) Count() (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var n int
	if err := r.db.QueryRow(`SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		return 0, &Error{Op: "count", Err: err}
	}
	return n, nil
}

func scanObjectMeta(row interface {
	Scan(dest ...any) error
}) (ObjectMeta, error) {
	var m ObjectMeta
	var algo, kind, scheme string
	err := row.Scan(&m.ID, &algo, &kind, &m.FileName, &m.RefCount, &m.Base, &scheme)
	if err != nil {
		return ObjectMeta{}, err
	}
	m.Algorithm = Algorithm(algo)
	m.Kind = StorageKind(kind)
	m.DeltaScheme = DeltaScheme(scheme)
	return m, nil
}

const objectColumns = `id, algorithm, kind, file_name, ref_count, base, delta_scheme`

func (r *Relational) GetObjectMeta(id string) (ObjectMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	row := r.db.QueryRow(`SELECT `+objectColumns+` FROM objects WHERE id = ?`, id)
	m, err := scanObjectMeta(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ObjectMeta{}, &Error{Op: "get_object_meta", Path: id, Err: ErrNotFound}
		}
		return ObjectMeta{}, &Error{Op: "get_object_meta", Path: id, Err: err}
	}
	return m, nil
}

func (r *Relational) PutObjectMeta(m ObjectMeta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, err := r.db.Exec(`INSERT INTO objects (id, algorithm, kind, file_name, ref_count, base, delta_scheme)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET algorithm=excluded.algorithm, kind=excluded.kind,
			file_name=excluded.file_name, ref_count=excluded.ref_count, base=excluded.base,
			delta_scheme=excluded.delta_scheme`,
		m.ID, string(m.Algorithm), string(m.Kind), m.FileName, m.RefCount, m.Base, string(m.DeltaScheme))
	if err != nil {
		return &Error{Op: "put_object_meta", Path: m.ID, Err: err}
	}
	return nil
}

func (r *Relational) incrDecr(id string, delta int64, op string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return 0, &Error{Op: op, Path: id, Err: err}
	}
	defer tx.Rollback()

	var count int64
	if err := tx.QueryRow(`SELECT ref_count FROM objects WHERE id = ?`, id).Scan(&count); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, &Error{Op: op, Path: id, Err: ErrNotFound}
		}
		return 0, &Error{Op: op, Path: id, Err: err}
	}
	count += delta
	if _, err := tx.Exec(`UPDATE objects SET ref_count = ? WHERE id = ?`, count, id); err != nil {
		return 0, &Error{Op: op, Path: id, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return 0, &Error{Op: op, Path: id, Err: err}
	}
	return count, nil
}

func (r *Relational) IncrRefCount(id string) (int64, error) { return r.incrDecr(id, 1, "incr_refcount") }
func (r *Relational) DecrRefCount(id string) (int64, error) { return r.incrDecr(id, -1, "decr_refcount") }

func (r *Relational) DeleteObjectMeta(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.db.Exec(`DELETE FROM objects WHERE id = ?`, id); err != nil {
		return &Error{Op: "delete_object_meta", Path: id, Err: err}
	}
	return nil
}

func (r *Relational) ListObjectMeta() ([]ObjectMeta, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rows, err := r.db.Query(`SELECT ` + objectColumns + ` FROM objects`)
	if err != nil {
		return nil, &Error{Op: "list_object_meta", Err: err}
	}
	defer rows.Close()
	var out []ObjectMeta
	for rows.Next() {
		m, err := scanObjectMeta(rows)
		if err != nil {
			return nil, &Error{Op: "list_object_meta", Err: err}
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

var _ Index = (*Relational)(nil)
