package mapped

import (
	"context"
	"errors"
	"sync"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/docstore"
	"github.com/pubkey/storagebench/lib/document"
)

var log = logger.GetLogger("mapped")

// DefaultFlushThreshold is used when Options.FlushThreshold is not set
const DefaultFlushThreshold = 100

// Options configures a mapped adapter
type Options struct {
	Name           string          // Adapter name
	Underlying     adapter.Adapter // Adapter the buffered writes are committed to
	FlushThreshold int             // Pending documents that trigger a commit (0 = DefaultFlushThreshold)
}

// Adapter serves reads from memory and writes behind to the underlying adapter.
type Adapter struct {
	opts Options

	mu      sync.Mutex // serializes writes, flushes and the lifecycle
	memory  *docstore.MemoryEngine
	policy  adapter.Info // cached info of the underlying adapter
	pending []document.Document
}

// New creates a mapped adapter over opts.Underlying.
func New(opts Options) *Adapter {
	if opts.FlushThreshold <= 0 {
		opts.FlushThreshold = DefaultFlushThreshold
	}
	return &Adapter{opts: opts}
}

func (m *Adapter) Name() string { return m.opts.Name }

func (m *Adapter) Info() adapter.Info {
	under := m.opts.Underlying.Info()

	m.mu.Lock()
	pending := len(m.pending)
	m.mu.Unlock()

	return adapter.Info{
		Name:       m.opts.Name,
		Backend:    adapter.BackendMapped,
		Strategy:   adapter.StrategyCursor,
		Duplicates: under.Duplicates,
		Missing:    adapter.MissingOmit,
		Matching:   under.Matching,
		Features:   under.Features | adapter.FeatureBuffered | adapter.FeatureRangeIndex,
		Metadata: map[string]interface{}{
			"underlying":      under.Backend,
			"flush_threshold": m.opts.FlushThreshold,
			"pending":         pending,
		},
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (m *Adapter) Init(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memory != nil {
		return nil
	}

	if err := m.opts.Underlying.Init(ctx); err != nil {
		return err
	}
	policy := m.opts.Underlying.Info()

	memory, n, err := m.load(ctx, policy)
	if err != nil {
		return adapter.NewError(adapter.RetCProvisioning, m.opts.Name, adapter.OpInit, err)
	}

	m.memory = memory
	m.policy = policy
	log.Debugf("%s: loaded %d documents from %s", m.opts.Name, n, m.opts.Underlying.Name())
	return nil
}

func (m *Adapter) WriteDocs(ctx context.Context, docs []document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memory == nil {
		return adapter.NotInitialized(m.opts.Name, adapter.OpWriteDocs)
	}

	if err := m.memory.Insert(docs); err != nil {
		if errors.Is(err, docstore.ErrConflict) {
			return adapter.NewError(adapter.RetCDuplicateID, m.opts.Name, adapter.OpWriteDocs, err)
		}
		return adapter.NewError(adapter.RetCWrite, m.opts.Name, adapter.OpWriteDocs, err)
	}
	m.pending = append(m.pending, docs...)

	if len(m.pending) >= m.opts.FlushThreshold {
		return m.flush(ctx)
	}
	return nil
}

func (m *Adapter) FindDocs(_ context.Context, ids []string) ([]document.Document, error) {
	memory, _, err := m.loaded(adapter.OpFindDocs)
	if err != nil {
		return nil, err
	}
	docs, err := memory.Get(ids)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, m.opts.Name, adapter.OpFindDocs, err)
	}
	return docs, nil
}

func (m *Adapter) QueryRegex(_ context.Context, pattern string) ([]document.Document, error) {
	return m.query(adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (m *Adapter) QueryIndex(_ context.Context, minAge int) ([]document.Document, error) {
	return m.query(adapter.OpQueryIndex, "", minAge)
}

func (m *Adapter) QueryRegexIndex(_ context.Context, pattern string, minAge int) ([]document.Document, error) {
	return m.query(adapter.OpQueryRegexIndex, pattern, minAge)
}

// Clear drops the pending buffer and clears the underlying adapter
func (m *Adapter) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if n := len(m.pending); n > 0 {
		log.Debugf("%s: dropping %d pending documents", m.opts.Name, n)
	}
	m.pending = nil
	if m.memory != nil {
		_ = m.memory.Destroy()
		m.memory = nil
	}
	return m.opts.Underlying.Clear(ctx)
}

// --------------------------------------------------------------------------
// Write-behind
// --------------------------------------------------------------------------

// Flush commits all pending documents to the underlying adapter.
func (m *Adapter) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memory == nil {
		return adapter.NotInitialized(m.opts.Name, "Flush")
	}
	return m.flush(ctx)
}

// Close flushes pending documents. The adapter stays usable.
func (m *Adapter) Close(ctx context.Context) error {
	return m.Flush(ctx)
}

// Pending returns the number of documents not yet committed
func (m *Adapter) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// flush must be called with m.mu held. The pending buffer is committed once: on
// failure it is dropped and memory is reloaded from the underlying adapter, so
// reads only ever see committed documents.
func (m *Adapter) flush(ctx context.Context) error {
	if len(m.pending) == 0 {
		return nil
	}
	batch := m.pending
	m.pending = nil

	err := m.opts.Underlying.WriteDocs(ctx, batch)
	if err == nil {
		log.Debugf("%s: committed %d documents", m.opts.Name, len(batch))
		return nil
	}
	log.Warningf("%s: dropping %d documents, commit failed: %v", m.opts.Name, len(batch), err)

	code := adapter.CodeOf(err)
	if reloadErr := m.reload(ctx); reloadErr != nil {
		err = errors.Join(err, reloadErr)
	}
	return adapter.NewError(code, m.opts.Name, adapter.OpWriteDocs, err)
}

// reload replaces memory with the committed state of the underlying adapter. When
// that fails the adapter has to be initialized again.
func (m *Adapter) reload(ctx context.Context) error {
	_ = m.memory.Destroy()
	m.memory = nil

	memory, _, err := m.load(ctx, m.policy)
	if err != nil {
		return err
	}
	m.memory = memory
	return nil
}

// load reads every committed document of the underlying adapter into a new memory engine
func (m *Adapter) load(ctx context.Context, policy adapter.Info) (*docstore.MemoryEngine, int, error) {
	docs, err := m.opts.Underlying.QueryIndex(ctx, document.NoAgeBound)
	if err != nil {
		return nil, 0, err
	}

	memory := docstore.NewMemoryEngine(docstore.MemoryOptions{
		Overwrite: policy.Duplicates == adapter.DuplicateOverwrite,
	})
	if err := memory.Open(); err != nil {
		return nil, 0, err
	}
	if err := memory.Insert(docs); err != nil {
		return nil, 0, err
	}
	return memory, len(docs), nil
}

// loaded returns the memory engine and the match mode of the underlying adapter
func (m *Adapter) loaded(op string) (*docstore.MemoryEngine, document.MatchMode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.memory == nil {
		return nil, 0, adapter.NotInitialized(m.opts.Name, op)
	}
	return m.memory, m.policy.Matching, nil
}

func (m *Adapter) query(op, pattern string, minAge int) ([]document.Document, error) {
	memory, mode, err := m.loaded(op)
	if err != nil {
		return nil, err
	}
	q, err := adapter.OpQuery(m.opts.Name, op, mode, pattern, minAge)
	if err != nil {
		return nil, err
	}
	docs, err := memory.Scan(q)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, m.opts.Name, op, err)
	}
	return docs, nil
}
