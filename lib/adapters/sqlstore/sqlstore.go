package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var log = logger.GetLogger("sqlstore")

const (
	schema = `
	CREATE TABLE IF NOT EXISTS docs (
		id       TEXT PRIMARY KEY,
		age      INTEGER NOT NULL,
		longtext TEXT NOT NULL,
		nes      TEXT NOT NULL,
		list     TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS docs_age ON docs(age);`

	columns   = "id, age, longtext, nes, list"
	insertSQL = "INSERT INTO docs (" + columns + ") VALUES (?, ?, ?, ?, ?)"

	// maxParams keeps IN lists below the SQLite host parameter limit
	maxParams = 500
)

// Options configures a SQLite adapter
type Options struct {
	Name  string               // Adapter name, the file is <Dir>/<Name>.sqlite
	Dir   string               // Directory of the database file (empty = in memory)
	Locks lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

type sqlAdapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu sync.RWMutex // writers are serialized, readers share the pool
	db *sql.DB
}

// New creates a SQLite adapter.
func New(opts Options) adapter.Adapter {
	return &sqlAdapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (a *sqlAdapter) Name() string { return a.opts.Name }

func (a *sqlAdapter) Info() adapter.Info {
	features := adapter.FeatureNativeBatch | adapter.FeatureRangeIndex | adapter.FeatureCombinedIndex
	meta := map[string]interface{}{"path": ":memory:"}
	if a.opts.Dir != "" {
		features |= adapter.FeaturePersistent
		meta["path"] = a.path()
		meta["journal_mode"] = "wal"
	}
	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendSQLite,
		Strategy:   adapter.StrategyNative,
		Duplicates: adapter.DuplicateReject,
		Missing:    adapter.MissingOmit,
		Matching:   document.MatchSubstring,
		Features:   features,
		Metadata:   meta,
	}
}

func (a *sqlAdapter) path() string {
	return filepath.Join(a.opts.Dir, a.opts.Name+".sqlite")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *sqlAdapter) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db != nil {
		return nil
	}

	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	db, err := a.open(ctx)
	if err != nil {
		_ = a.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	a.db = db
	log.Debugf("%s: opened (persistent=%v)", a.opts.Name, a.opts.Dir != "")
	return nil
}

func (a *sqlAdapter) open(ctx context.Context) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)
	if a.opts.Dir == "" {
		db, err = sql.Open("sqlite", ":memory:")
		if err != nil {
			return nil, err
		}
		// every connection to :memory: is a database of its own
		db.SetMaxOpenConns(1)
	} else {
		if err := os.MkdirAll(a.opts.Dir, 0o755); err != nil {
			return nil, err
		}
		dsn := "file:" + a.path() + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, err
		}
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func (a *sqlAdapter) WriteDocs(ctx context.Context, docs []document.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.db == nil {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}
	if len(docs) == 0 {
		return nil
	}

	if err := a.insert(ctx, docs); err != nil {
		if isDuplicate(err) {
			return adapter.NewError(adapter.RetCDuplicateID, a.opts.Name, adapter.OpWriteDocs, err)
		}
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
	}
	return nil
}

func (a *sqlAdapter) insert(ctx context.Context, docs []document.Document) (err error) {
	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Warningf("%s: rollback failed: %v", a.opts.Name, rbErr)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range docs {
		nes, list, err := encodeColumns(&docs[i])
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, docs[i].ID, docs[i].Age, docs[i].LongText, nes, list); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (a *sqlAdapter) FindDocs(ctx context.Context, ids []string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, adapter.NotInitialized(a.opts.Name, adapter.OpFindDocs)
	}

	unique := make([]string, 0, len(ids))
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			unique = append(unique, id)
		}
	}

	result := make([]document.Document, 0, len(unique))
	for start := 0; start < len(unique); start += maxParams {
		chunk := unique[start:min(start+maxParams, len(unique))]
		stmt := "SELECT " + columns + " FROM docs WHERE id IN (?" + strings.Repeat(", ?", len(chunk)-1) + ")"
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		docs, err := a.selectDocs(ctx, stmt, args...)
		if err != nil {
			return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, adapter.OpFindDocs, err)
		}
		result = append(result, docs...)
	}
	return result, nil
}

func (a *sqlAdapter) QueryRegex(ctx context.Context, pattern string) ([]document.Document, error) {
	return a.query(ctx, adapter.OpQueryRegex,
		"SELECT "+columns+" FROM docs WHERE instr(longtext, ?) > 0", pattern)
}

func (a *sqlAdapter) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	return a.query(ctx, adapter.OpQueryIndex,
		"SELECT "+columns+" FROM docs WHERE age >= ? ORDER BY age", minAge)
}

func (a *sqlAdapter) QueryRegexIndex(ctx context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.query(ctx, adapter.OpQueryRegexIndex,
		"SELECT "+columns+" FROM docs WHERE age >= ? AND instr(longtext, ?) > 0 ORDER BY age", minAge, pattern)
}

func (a *sqlAdapter) Clear(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	if a.db != nil {
		if _, err := a.db.ExecContext(ctx, "DROP TABLE IF EXISTS docs"); err != nil {
			log.Warningf("%s: dropping table failed: %v", a.opts.Name, err)
			errs = append(errs, err)
		}
		if err := a.db.Close(); err != nil {
			return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, errors.Join(append(errs, err)...))
		}
		a.db = nil
	}
	if a.opts.Dir != "" {
		for _, suffix := range []string{"", "-wal", "-shm"} {
			if err := os.Remove(a.path() + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
				return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, errors.Join(append(errs, err)...))
			}
		}
	}
	if err := a.claim.Release(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, errors.Join(errs...))
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *sqlAdapter) query(ctx context.Context, op, stmt string, args ...interface{}) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.db == nil {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	docs, err := a.selectDocs(ctx, stmt, args...)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}
	return docs, nil
}

func (a *sqlAdapter) selectDocs(ctx context.Context, stmt string, args ...interface{}) ([]document.Document, error) {
	rows, err := a.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	docs := make([]document.Document, 0)
	for rows.Next() {
		var (
			doc       document.Document
			nes, list string
		)
		if err := rows.Scan(&doc.ID, &doc.Age, &doc.LongText, &nes, &list); err != nil {
			return nil, err
		}
		if err := decodeColumns(&doc, nes, list); err != nil {
			return nil, fmt.Errorf("document %q: %w", doc.ID, err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func encodeColumns(doc *document.Document) (string, string, error) {
	nes, err := json.Marshal(doc.Nes)
	if err != nil {
		return "", "", err
	}
	list, err := json.Marshal(doc.List)
	if err != nil {
		return "", "", err
	}
	return string(nes), string(list), nil
}

func decodeColumns(doc *document.Document, nes, list string) error {
	if err := json.Unmarshal([]byte(nes), &doc.Nes); err != nil {
		return err
	}
	return json.Unmarshal([]byte(list), &doc.List)
}

// isDuplicate reports whether err is a constraint violation. The only constraint a
// well formed document can violate is the primary key.
func isDuplicate(err error) bool {
	var sqlErr *sqlite.Error
	return errors.As(err, &sqlErr) && sqlErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
}
