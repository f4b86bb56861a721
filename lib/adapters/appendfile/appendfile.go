package appendfile

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/ncw/directio"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
)

var log = logger.GetLogger("appendfile")

// Options configures an append-only file adapter
type Options struct {
	Name     string               // Adapter name, the file is <Dir>/<Name>.log
	Dir      string               // Directory of the file (empty = os.TempDir())
	DirectIO bool                 // Bypass the page cache, frames are padded to the block size
	Fsync    bool                 // Sync the file after every append
	Locks    lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

type appendFileAdapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu   sync.RWMutex // writers append exclusively, readers read the whole file
	path string
	file logFile // append handle, nil before Init
	size int64   // length of the complete frames in the file
}

// logFile is the part of *os.File the append path uses
type logFile interface {
	io.Writer
	Sync() error
	Close() error
}

// New creates an append-only file adapter.
func New(opts Options) adapter.Adapter {
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	return &appendFileAdapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
		path:  filepath.Join(dir, opts.Name+".log"),
	}
}

func (a *appendFileAdapter) Name() string { return a.opts.Name }

func (a *appendFileAdapter) Info() adapter.Info {
	return adapter.Info{
		Name:       a.opts.Name,
		Backend:    adapter.BackendAppendFile,
		Strategy:   adapter.StrategyBulk,
		Duplicates: adapter.DuplicateOverwrite,
		Missing:    adapter.MissingOmit,
		Matching:   document.MatchSubstring,
		Features:   adapter.FeatureNativeBatch | adapter.FeaturePersistent,
		Metadata: map[string]interface{}{
			"path":      a.path,
			"direct_io": a.opts.DirectIO,
			"fsync":     a.opts.Fsync,
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (a *appendFileAdapter) Init(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file != nil {
		return nil
	}

	if err := a.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	size, err := a.dropTornTail()
	if err != nil {
		_ = a.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	var file *os.File
	if a.opts.DirectIO {
		file, err = directio.OpenFile(a.path, flags, 0o644)
	} else {
		file, err = os.OpenFile(a.path, flags, 0o644)
	}
	if err != nil {
		_ = a.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, a.opts.Name, adapter.OpInit, err)
	}

	a.file = file
	a.size = size
	log.Debugf("%s: opened %s (direct=%v, fsync=%v)", a.opts.Name, a.path, a.opts.DirectIO, a.opts.Fsync)
	return nil
}

// dropTornTail cuts an incomplete trailing frame left by an interrupted append and
// returns the length of the remaining log. A corrupt frame fails without touching
// the file.
func (a *appendFileAdapter) dropTornTail() (int64, error) {
	data, err := os.ReadFile(a.path)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	_, valid, err := decodeLog(data)
	if err != nil {
		return 0, err
	}
	if valid == len(data) {
		return int64(valid), nil
	}
	log.Warningf("%s: ignoring %d bytes of an incomplete frame at offset %d", a.opts.Name, len(data)-valid, valid)
	return int64(valid), os.Truncate(a.path, int64(valid))
}

func (a *appendFileAdapter) WriteDocs(_ context.Context, docs []document.Document) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return adapter.NotInitialized(a.opts.Name, adapter.OpWriteDocs)
	}
	if len(docs) == 0 {
		return nil
	}

	frame, err := encodeFrame(docs, a.opts.DirectIO)
	if err != nil {
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, err)
	}

	_, err = a.file.Write(frame)
	if err == nil && a.opts.Fsync {
		err = a.file.Sync()
	}
	if err != nil {
		return adapter.NewError(adapter.RetCWrite, a.opts.Name, adapter.OpWriteDocs, a.rollback(err))
	}
	a.size += int64(len(frame))
	return nil
}

// rollback cuts whatever part of a failed append reached the file, so the next
// frame starts right after the last complete one
func (a *appendFileAdapter) rollback(cause error) error {
	if err := os.Truncate(a.path, a.size); err != nil {
		log.Errorf("%s: dropping a failed append at offset %d failed: %v", a.opts.Name, a.size, err)
		return errors.Join(cause, err)
	}
	return cause
}

func (a *appendFileAdapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	docs, err := a.readAll(adapter.OpFindDocs)
	if err != nil {
		return nil, err
	}
	found, _ := adapter.SelectIDs(docs, ids)
	return found, nil
}

func (a *appendFileAdapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (a *appendFileAdapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryIndex, "", minAge)
}

func (a *appendFileAdapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return a.query(adapter.OpQueryRegexIndex, pattern, minAge)
}

func (a *appendFileAdapter) Clear(_ context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.file != nil {
		if err := a.file.Close(); err != nil {
			log.Warningf("%s: closing %s failed: %v", a.opts.Name, a.path, err)
		}
		a.file = nil
	}
	a.size = 0
	if err := os.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	if err := a.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, a.opts.Name, adapter.OpClear, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func (a *appendFileAdapter) query(op, pattern string, minAge int) ([]document.Document, error) {
	q, err := adapter.OpQuery(a.opts.Name, op, document.MatchSubstring, pattern, minAge)
	if err != nil {
		return nil, err
	}
	docs, err := a.readAll(op)
	if err != nil {
		return nil, err
	}
	return adapter.Filter(docs, q), nil
}

// readAll decodes the whole file and resolves repeated ids, the last write wins
func (a *appendFileAdapter) readAll(op string) ([]document.Document, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.file == nil {
		return nil, adapter.NotInitialized(a.opts.Name, op)
	}

	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}
	docs, _, err := decodeLog(data)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, a.opts.Name, op, err)
	}
	return latest(docs), nil
}

// latest keeps the last version of every id, in order of first appearance
func latest(docs []document.Document) []document.Document {
	position := make(map[string]int, len(docs))
	result := make([]document.Document, 0, len(docs))
	for i := range docs {
		if pos, ok := position[docs[i].ID]; ok {
			result[pos] = docs[i]
			continue
		}
		position[docs[i].ID] = len(result)
		result = append(result, docs[i])
	}
	return result
}
