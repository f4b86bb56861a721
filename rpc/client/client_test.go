package client

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pubkey/storagebench/lib/adapter"
	adaptertesting "github.com/pubkey/storagebench/lib/adapter/testing"
	"github.com/pubkey/storagebench/lib/adapters/docstore"
	"github.com/pubkey/storagebench/lib/adapters/kvmap"
	"github.com/pubkey/storagebench/lib/compose/sharded"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/serializer"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/inproc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInProcess(name string, factory adapter.Factory, ser serializer.IRPCSerializer) *WorkerAdapter {
	return NewWorkerAdapter(Options{
		Name:       name,
		Spawner:    InProcess(factory, ser),
		Serializer: ser,
		Hosted:     factory().Info(),
	})
}

func Test(t *testing.T) {
	adaptertesting.RunAdapterTests(t, "worker-docstore", func() adapter.Adapter {
		return newInProcess("worker-docstore", func() adapter.Adapter {
			return docstore.New(docstore.Options{Name: "worker-docstore"})
		}, serializer.NewBinarySerializer())
	})
	adaptertesting.RunAdapterTests(t, "worker-kvmap-json", func() adapter.Adapter {
		return newInProcess("worker-kvmap-json", func() adapter.Adapter {
			return kvmap.New(kvmap.Options{Name: "worker-kvmap-json"})
		}, serializer.NewJSONSerializer())
	})
	adaptertesting.RunAdapterTests(t, "sharded-workers", func() adapter.Adapter {
		return sharded.NewFromFactory("sharded-workers", 3, func(i int) adapter.Adapter {
			name := fmt.Sprintf("sharded-workers-%d", i)
			return newInProcess(name, func() adapter.Adapter {
				return docstore.New(docstore.Options{Name: name})
			}, serializer.NewBinarySerializer())
		})
	})
}

func Benchmark(b *testing.B) {
	adaptertesting.RunAdapterBenchmarks(b, "worker-docstore", func() adapter.Adapter {
		return newInProcess("worker-docstore", func() adapter.Adapter {
			return docstore.New(docstore.Options{Name: "worker-docstore"})
		}, serializer.NewBinarySerializer())
	})
}

// --------------------------------------------------------------------------
// Fake worker
// --------------------------------------------------------------------------

// fakeWorker is a hand driven worker end of a pipe
type fakeWorker struct {
	t    *testing.T
	conn transport.IConn
	ser  serializer.IRPCSerializer
}

func (f *fakeWorker) ready() {
	f.reply(0, common.NewReadyMessage())
}

func (f *fakeWorker) next() (uint64, *common.Message) {
	_, corrID, data, err := f.conn.ReadFrame()
	require.NoError(f.t, err)
	msg := &common.Message{}
	require.NoError(f.t, f.ser.Deserialize(data, msg))
	return corrID, msg
}

func (f *fakeWorker) reply(corrID uint64, msg *common.Message) {
	data, err := f.ser.Serialize(*msg)
	require.NoError(f.t, err)
	require.NoError(f.t, f.conn.WriteFrame(0, corrID, data))
}

// newFake returns a proxy wired to a fake worker, without initializing it
func newFake(t *testing.T) (*WorkerAdapter, *fakeWorker) {
	proxyEnd, workerEnd := inproc.Pipe()
	t.Cleanup(func() { _ = workerEnd.Close() })

	f := &fakeWorker{t: t, conn: workerEnd, ser: serializer.NewBinarySerializer()}
	w := NewWorkerAdapter(Options{
		Name: "fake",
		Spawner: SpawnerFunc(func(context.Context) (transport.IConn, uint64, error) {
			return proxyEnd, 0, nil
		}),
		Hosted: adapter.Info{Backend: adapter.BackendDocStore, Matching: document.MatchRegex},
	})
	return w, f
}

// initFake returns an initialized proxy wired to a fake worker
func initFake(t *testing.T) (*WorkerAdapter, *fakeWorker) {
	w, f := newFake(t)
	f.ready()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Init(context.Background()) }()

	corrID, msg := f.next()
	require.Equal(t, common.MsgTInit, msg.MsgType)
	f.reply(corrID, &common.Message{MsgType: common.MsgTInit})
	require.NoError(t, <-errCh)
	return w, f
}

// --------------------------------------------------------------------------
// Protocol tests
// --------------------------------------------------------------------------

func TestCallsBeforeInit(t *testing.T) {
	w, _ := newFake(t)
	ctx := context.Background()

	_, err := w.QueryIndex(ctx, 0)
	assert.True(t, adapter.IsCode(err, adapter.RetCInvalidOperation), err)
	assert.True(t, adapter.IsCode(w.WriteDocs(ctx, nil), adapter.RetCInvalidOperation))
	assert.NoError(t, w.Clear(ctx))
}

func TestConcurrentCallsResolveToOwnCaller(t *testing.T) {
	w, f := initFake(t)
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pattern := strconv.Itoa(i)
			docs, err := w.QueryRegex(ctx, pattern)
			if assert.NoError(t, err) && assert.Len(t, docs, 1) {
				assert.Equal(t, pattern, docs[0].ID)
			}
		}(i)
	}

	// collect every call, then answer in reverse order
	type call struct {
		corrID  uint64
		pattern string
	}
	calls := make([]call, 0, n)
	for i := 0; i < n; i++ {
		corrID, msg := f.next()
		require.Equal(t, common.MsgTQueryRegex, msg.MsgType)
		calls = append(calls, call{corrID, msg.Pattern})
	}
	for i := len(calls) - 1; i >= 0; i-- {
		f.reply(calls[i].corrID, common.NewResponse(common.MsgTQueryRegex,
			[]document.Document{{ID: calls[i].pattern}}, nil))
	}

	wg.Wait()
	assert.Zero(t, w.InFlight())
}

func TestDuplicateAndUnknownRepliesAreDropped(t *testing.T) {
	w, f := initFake(t)
	ctx := context.Background()

	result := make(chan []document.Document, 1)
	go func() {
		docs, err := w.FindDocs(ctx, []string{"a"})
		assert.NoError(t, err)
		result <- docs
	}()

	corrID, msg := f.next()
	require.Equal(t, []string{"a"}, msg.IDs)

	f.reply(corrID+100, common.NewResponse(common.MsgTFindDocs, []document.Document{{ID: "unknown"}}, nil))
	f.reply(corrID, common.NewResponse(common.MsgTFindDocs, []document.Document{{ID: "a"}}, nil))
	f.reply(corrID, common.NewResponse(common.MsgTFindDocs, []document.Document{{ID: "duplicate"}}, nil))

	docs := <-result
	require.Len(t, docs, 1)
	assert.Equal(t, "a", docs[0].ID)

	// the channel keeps working
	go func() {
		corrID, _ := f.next()
		f.reply(corrID, common.NewResponse(common.MsgTQueryIndex, nil, nil))
	}()
	_, err := w.QueryIndex(ctx, 0)
	assert.NoError(t, err)
	assert.Zero(t, w.InFlight())
}

func TestUnansweredCallStaysPending(t *testing.T) {
	w, f := initFake(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := w.QueryIndex(ctx, 0)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, w.InFlight())

	// a late reply resolves the slot and is dropped
	corrID, _ := f.next()
	f.reply(corrID, common.NewResponse(common.MsgTQueryIndex, nil, nil))
	assert.Eventually(t, func() bool { return w.InFlight() == 0 }, time.Second, time.Millisecond)
}

func TestRemoteErrorKeepsCode(t *testing.T) {
	w, f := initFake(t)

	go func() {
		corrID, _ := f.next()
		f.reply(corrID, common.NewResponse(common.MsgTQueryRegex, nil,
			adapter.NewErrorf(adapter.RetCQuery, "hosted", "QueryRegex", "bad pattern")))
	}()

	_, err := w.QueryRegex(context.Background(), "a(b")
	require.Error(t, err)
	assert.True(t, adapter.IsCode(err, adapter.RetCQuery), err)
	assert.Contains(t, err.Error(), "bad pattern")
}

func TestBrokenChannelFailsPendingCalls(t *testing.T) {
	w, f := initFake(t)
	ctx := context.Background()

	errCh := make(chan error, 1)
	go func() {
		_, err := w.QueryIndex(ctx, 0)
		errCh <- err
	}()

	f.next()
	require.NoError(t, f.conn.Close())

	err := <-errCh
	assert.True(t, adapter.IsCode(err, adapter.RetCProtocol), err)

	_, err = w.QueryIndex(ctx, 0)
	assert.True(t, adapter.IsCode(err, adapter.RetCProtocol), err)
}

func TestWorkerClosesBeforeReady(t *testing.T) {
	w, f := newFake(t)
	require.NoError(t, f.conn.Close())

	err := w.Init(context.Background())
	assert.True(t, adapter.IsCode(err, adapter.RetCProvisioning), err)
}

func TestClearSpawnsFreshWorker(t *testing.T) {
	var spawns atomic.Int32
	inner := InProcess(func() adapter.Adapter {
		return docstore.New(docstore.Options{Name: "fresh"})
	}, serializer.NewBinarySerializer())

	w := NewWorkerAdapter(Options{
		Name: "fresh",
		Spawner: SpawnerFunc(func(ctx context.Context) (transport.IConn, uint64, error) {
			spawns.Add(1)
			return inner.Spawn(ctx)
		}),
	})
	ctx := context.Background()

	require.NoError(t, w.Init(ctx))
	require.NoError(t, w.Init(ctx))
	assert.Equal(t, int32(1), spawns.Load())

	require.NoError(t, w.WriteDocs(ctx, []document.Document{{ID: "a", Age: 1}}))
	require.NoError(t, w.Clear(ctx))

	require.NoError(t, w.Init(ctx))
	defer w.Clear(ctx)
	assert.Equal(t, int32(2), spawns.Load())

	all, err := w.QueryIndex(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestInfoInheritsHostedPolicies(t *testing.T) {
	hosted := docstore.New(docstore.Options{Name: "info"}).Info()
	w := newInProcess("worker-info", func() adapter.Adapter {
		return docstore.New(docstore.Options{Name: "info"})
	}, serializer.NewBinarySerializer())

	info := w.Info()
	assert.Equal(t, "worker-info", info.Name)
	assert.Equal(t, adapter.BackendWorker, info.Backend)
	assert.Equal(t, hosted.Duplicates, info.Duplicates)
	assert.Equal(t, hosted.Missing, info.Missing)
	assert.Equal(t, hosted.Matching, info.Matching)
	assert.True(t, info.Features.Has(adapter.FeatureWorker))
}
