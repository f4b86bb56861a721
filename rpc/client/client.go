package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/serializer"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	Logger = logger.GetLogger("rpc")
)

// Options configures a WorkerAdapter
type Options struct {
	Name       string                    // Name of the proxy, reported by Name()
	Spawner    Spawner                   // Starts or dials the worker on Init
	Serializer serializer.IRPCSerializer // Must match the serializer of the worker (default binary)
	Hosted     adapter.Info              // Info of the hosted adapter, the proxy inherits its policies
}

// WorkerAdapter forwards every operation to an adapter hosted by a worker
type WorkerAdapter struct {
	opts Options

	mu      sync.Mutex // guards the session lifecycle
	session *session
}

// NewWorkerAdapter creates a proxy. The worker is spawned by Init.
func NewWorkerAdapter(opts Options) *WorkerAdapter {
	if opts.Serializer == nil {
		opts.Serializer = serializer.NewBinarySerializer()
	}
	if opts.Name == "" {
		opts.Name = "worker-" + opts.Hosted.Name
	}
	return &WorkerAdapter{opts: opts}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (w *WorkerAdapter) Name() string { return w.opts.Name }

func (w *WorkerAdapter) Init(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if s == nil {
		conn, shardID, err := w.opts.Spawner.Spawn(ctx)
		if err != nil {
			return adapter.NewError(adapter.RetCProvisioning, w.Name(), "Init", err)
		}

		s = newSession(w.Name(), conn, shardID, w.opts.Serializer)
		if err := s.awaitReady(ctx); err != nil {
			_ = s.close()
			return err
		}
		Logger.Infof("Worker of %s is ready (%s, shard %d)", w.Name(), w.opts.Spawner, shardID)
	}

	if _, err := s.call(ctx, "Init", common.InitRequest{}, common.MsgTInit); err != nil {
		if w.session == nil {
			_ = s.close()
		}
		return err
	}
	w.session = s
	return nil
}

func (w *WorkerAdapter) WriteDocs(ctx context.Context, docs []document.Document) error {
	s, err := w.current("WriteDocs")
	if err != nil {
		return err
	}
	_, err = s.call(ctx, "WriteDocs", common.WriteDocsRequest{Docs: docs}, common.MsgTWriteDocs)
	return err
}

func (w *WorkerAdapter) FindDocs(ctx context.Context, ids []string) ([]document.Document, error) {
	return w.query(ctx, "FindDocs", common.FindDocsRequest{IDs: ids}, common.MsgTFindDocs)
}

func (w *WorkerAdapter) QueryRegex(ctx context.Context, pattern string) ([]document.Document, error) {
	return w.query(ctx, "QueryRegex", common.QueryRegexRequest{Pattern: pattern}, common.MsgTQueryRegex)
}

func (w *WorkerAdapter) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	return w.query(ctx, "QueryIndex", common.QueryIndexRequest{MinAge: minAge}, common.MsgTQueryIndex)
}

func (w *WorkerAdapter) QueryRegexIndex(ctx context.Context, pattern string, minAge int) ([]document.Document, error) {
	return w.query(ctx, "QueryRegexIndex",
		common.QueryRegexIndexRequest{Pattern: pattern, MinAge: minAge}, common.MsgTQueryRegexIndex)
}

// Clear clears the hosted adapter and closes the channel to the worker
func (w *WorkerAdapter) Clear(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	s := w.session
	if s == nil {
		return nil
	}
	_, err := s.call(ctx, "Clear", common.ClearRequest{}, common.MsgTClear)

	w.session = nil
	if cerr := s.close(); cerr != nil {
		Logger.Warningf("Closing the worker channel of %s failed: %v", w.Name(), cerr)
	}
	return err
}

func (w *WorkerAdapter) Info() adapter.Info {
	info := w.opts.Hosted
	info.Name = w.Name()
	info.Backend = adapter.BackendWorker
	info.Features |= adapter.FeatureWorker

	meta := map[string]interface{}{
		"hosted":  w.opts.Hosted.Backend,
		"spawner": w.opts.Spawner.String(),
	}
	if w.opts.Hosted.Metadata != nil {
		meta["hosted_metadata"] = w.opts.Hosted.Metadata
	}
	w.mu.Lock()
	if w.session != nil {
		meta["in_flight"] = w.session.pending.Size()
	}
	w.mu.Unlock()
	info.Metadata = meta
	return info
}

// InFlight returns the number of calls waiting for a reply, including calls whose
// caller gave up.
func (w *WorkerAdapter) InFlight() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return 0
	}
	return w.session.pending.Size()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// current returns the session of an initialized proxy
func (w *WorkerAdapter) current(op string) (*session, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.session == nil {
		return nil, adapter.NotInitialized(w.Name(), op)
	}
	return w.session, nil
}

func (w *WorkerAdapter) query(ctx context.Context, op string, req common.Request, expect common.MessageType) ([]document.Document, error) {
	s, err := w.current(op)
	if err != nil {
		return nil, err
	}
	resp, err := s.call(ctx, op, req, expect)
	if err != nil {
		return nil, err
	}
	return resp.Docs, nil
}

// --------------------------------------------------------------------------
// Session (one channel to one worker)
// --------------------------------------------------------------------------

// session correlates calls and replies on one connection
type session struct {
	name       string
	conn       transport.IConn
	shardID    uint64
	serializer serializer.IRPCSerializer

	nextID  atomic.Uint64
	pending *xsync.MapOf[uint64, chan *common.Message]

	ready     chan struct{}
	readyOnce sync.Once

	done chan struct{} // closed when the channel broke
	err  error         // why the channel broke, set before done is closed
}

func newSession(name string, conn transport.IConn, shardID uint64, ser serializer.IRPCSerializer) *session {
	s := &session{
		name:       name,
		conn:       conn,
		shardID:    shardID,
		serializer: ser,
		pending:    xsync.NewMapOf[uint64, chan *common.Message](),
		ready:      make(chan struct{}),
		done:       make(chan struct{}),
	}
	go s.readReplies()
	return s
}

// awaitReady blocks until the worker emitted its ready frame
func (s *session) awaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return nil
	case <-s.done:
		return adapter.NewError(adapter.RetCProvisioning, s.name, "Init",
			fmt.Errorf("worker closed the channel before it was ready: %w", s.err))
	case <-ctx.Done():
		return ctx.Err()
	}
}

// call sends req and waits for its reply
func (s *session) call(ctx context.Context, op string, req common.Request, expect common.MessageType) (*common.Message, error) {
	data, err := s.serializer.Serialize(*req.Message())
	if err != nil {
		return nil, adapter.NewError(adapter.RetCInternalError, s.name, op, fmt.Errorf("failed to serialize call: %w", err))
	}

	id := s.nextID.Add(1)
	ch := make(chan *common.Message, 1)
	s.pending.Store(id, ch)

	if err := s.conn.WriteFrame(s.shardID, id, data); err != nil {
		s.pending.Delete(id)
		return nil, adapter.NewError(adapter.RetCProtocol, s.name, op, err)
	}

	var resp *common.Message
	select {
	case resp = <-ch:
	case <-s.done:
		// the reply may have been routed right before the channel broke
		select {
		case resp = <-ch:
		default:
			return nil, adapter.NewError(adapter.RetCProtocol, s.name, op, s.err)
		}
	case <-ctx.Done():
		// the call keeps running in the worker, its reply is dropped
		return nil, ctx.Err()
	}

	if resp.Failed() {
		code := adapter.RetCode(resp.Code)
		if code == adapter.RetCSuccess {
			code = adapter.RetCInternalError
		}
		return nil, &adapter.Error{Code: code, Adapter: s.name, Op: op, Msg: resp.Err}
	}
	if resp.MsgType != expect {
		return nil, adapter.NewErrorf(adapter.RetCProtocol, s.name, op,
			"unexpected reply type %s, expected %s", resp.MsgType, expect)
	}
	return resp, nil
}

// readReplies routes every reply to the pending call with the same correlation id
func (s *session) readReplies() {
	for {
		_, corrID, data, err := s.conn.ReadFrame()
		if err != nil {
			s.fail(err)
			return
		}

		if corrID == 0 {
			first := false
			s.readyOnce.Do(func() {
				first = true
				close(s.ready)
			})
			if !first {
				Logger.Warningf("Dropping repeated ready message of the worker of %s", s.name)
			}
			continue
		}

		ch, ok := s.pending.LoadAndDelete(corrID)
		if !ok {
			Logger.Warningf("Dropping reply with unknown correlation id %d for %s", corrID, s.name)
			continue
		}

		resp := &common.Message{}
		if err := s.serializer.Deserialize(data, resp); err != nil {
			resp = common.NewErrorResponse(adapter.RetCProtocol, fmt.Sprintf("failed to deserialize reply: %s", err))
		}
		ch <- resp // buffered, the slot was removed so this is the only send
	}
}

// fail marks the channel as broken, every pending and later call fails
func (s *session) fail(err error) {
	if err == nil {
		err = errors.New("channel closed")
	}
	s.err = fmt.Errorf("worker channel broke: %w", err)
	close(s.done)

	if n := s.pending.Size(); n > 0 {
		Logger.Warningf("Worker channel of %s broke with %d pending calls: %v", s.name, n, err)
	}
	s.pending.Clear()
}

// close closes the connection, the reader ends with the connection
func (s *session) close() error {
	return s.conn.Close()
}
