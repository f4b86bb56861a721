package worker

import (
	"context"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/adapters/docstore"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/serializer"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/inproc"
	"github.com/pubkey/storagebench/rpc/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// proxy is the test side of a connection to an executor
type proxy struct {
	t    *testing.T
	conn transport.IConn
	ser  serializer.IRPCSerializer
}

func (p *proxy) send(shardID, corrID uint64, msg *common.Message) {
	data, err := p.ser.Serialize(*msg)
	require.NoError(p.t, err)
	require.NoError(p.t, p.conn.WriteFrame(shardID, corrID, data))
}

func (p *proxy) recv() (uint64, *common.Message) {
	_, corrID, data, err := p.conn.ReadFrame()
	require.NoError(p.t, err)
	msg := &common.Message{}
	require.NoError(p.t, p.ser.Deserialize(data, msg))
	return corrID, msg
}

// serve starts an executor hosting a as shard 0 and waits for its ready frame
func serve(t *testing.T, a adapter.Adapter) (*proxy, <-chan error) {
	return serveWith(t, serializer.NewBinarySerializer(), a)
}

func serveWith(t *testing.T, ser serializer.IRPCSerializer, a adapter.Adapter) (*proxy, <-chan error) {
	exec := NewExecutor(ser, 0)
	exec.Host(0, a)

	proxyEnd, workerEnd := inproc.Pipe()
	done := make(chan error, 1)
	go func() { done <- exec.Serve(context.Background(), workerEnd) }()

	p := &proxy{t: t, conn: proxyEnd, ser: ser}
	corrID, msg := p.recv()
	require.Equal(t, uint64(0), corrID)
	require.Equal(t, common.MsgTReady, msg.MsgType)

	t.Cleanup(func() { _ = proxyEnd.Close() })
	return p, done
}

func TestServeAnswersCalls(t *testing.T) {
	p, _ := serve(t, docstore.New(docstore.Options{Name: "exec"}))

	p.send(0, 1, common.InitRequest{}.Message())
	corrID, msg := p.recv()
	assert.Equal(t, uint64(1), corrID)
	assert.Equal(t, common.MsgTInit, msg.MsgType)
	assert.False(t, msg.Failed())

	docs := []document.Document{{ID: "a", Age: 60, LongText: "zzz"}, {ID: "b", Age: 10, LongText: "abc"}}
	p.send(0, 2, common.WriteDocsRequest{Docs: docs}.Message())
	corrID, msg = p.recv()
	assert.Equal(t, uint64(2), corrID)
	assert.False(t, msg.Failed(), msg.Err)

	p.send(0, 3, common.QueryIndexRequest{MinAge: 50}.Message())
	corrID, msg = p.recv()
	assert.Equal(t, uint64(3), corrID)
	require.Len(t, msg.Docs, 1)
	assert.Equal(t, "a", msg.Docs[0].ID)

	// a failing call replies with the code of the adapter error
	p.send(0, 4, common.WriteDocsRequest{Docs: docs[:1]}.Message())
	_, msg = p.recv()
	assert.True(t, msg.Failed())
	assert.Equal(t, uint64(adapter.RetCDuplicateID), msg.Code)

	p.send(0, 5, common.ClearRequest{}.Message())
	_, msg = p.recv()
	assert.False(t, msg.Failed(), msg.Err)
}

func TestUnknownOperationGetsNoReply(t *testing.T) {
	serializers := map[string]func() serializer.IRPCSerializer{
		"Binary": serializer.NewBinarySerializer,
		"JSON":   serializer.NewJSONSerializer,
		"GOB":    serializer.NewGOBSerializer,
	}

	for name, factory := range serializers {
		t.Run(name, func(t *testing.T) {
			p, _ := serveWith(t, factory(), docstore.New(docstore.Options{Name: "exec-unknown-" + name}))

			p.send(0, 1, &common.Message{MsgType: common.MsgTReady})
			p.send(0, 2, &common.Message{MsgType: common.MessageType(200)})
			p.send(0, 3, common.InitRequest{}.Message())

			corrID, msg := p.recv()
			assert.Equal(t, uint64(3), corrID)
			assert.Equal(t, common.MsgTInit, msg.MsgType)
		})
	}
}

func TestUnknownOperationNameGetsNoReply(t *testing.T) {
	p, _ := serveWith(t, serializer.NewJSONSerializer(), docstore.New(docstore.Options{Name: "exec-unknown-name"}))

	require.NoError(t, p.conn.WriteFrame(0, 7, []byte(`{"msg_type":"compactDocs"}`)))
	p.send(0, 8, common.InitRequest{}.Message())

	corrID, msg := p.recv()
	assert.Equal(t, uint64(8), corrID)
	assert.Equal(t, common.MsgTInit, msg.MsgType)
}

func TestUnknownShardAndGarbage(t *testing.T) {
	p, _ := serve(t, docstore.New(docstore.Options{Name: "exec-errors"}))

	p.send(9, 1, common.InitRequest{}.Message())
	corrID, msg := p.recv()
	assert.Equal(t, uint64(1), corrID)
	assert.Equal(t, common.MsgTError, msg.MsgType)
	assert.Equal(t, uint64(adapter.RetCInvalidOperation), msg.Code)

	require.NoError(t, p.conn.WriteFrame(0, 2, []byte{1}))
	corrID, msg = p.recv()
	assert.Equal(t, uint64(2), corrID)
	assert.Equal(t, uint64(adapter.RetCProtocol), msg.Code)
}

func TestServeEndsWhenProxyCloses(t *testing.T) {
	p, done := serve(t, docstore.New(docstore.Options{Name: "exec-close"}))
	require.NoError(t, p.conn.Close())

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after the proxy closed the connection")
	}
}

// slowAdapter records how many calls run at the same time
type slowAdapter struct {
	adapter.Adapter
	running atomic.Int32
	maxSeen atomic.Int32
}

func (s *slowAdapter) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	n := s.running.Add(1)
	defer s.running.Add(-1)
	for {
		old := s.maxSeen.Load()
		if n <= old || s.maxSeen.CompareAndSwap(old, n) {
			break
		}
	}
	time.Sleep(2 * time.Millisecond)
	return []document.Document{{ID: "x", Age: minAge}}, nil
}

func TestSameShardIsSerialized(t *testing.T) {
	slow := &slowAdapter{Adapter: docstore.New(docstore.Options{Name: "exec-slow"})}
	p, _ := serve(t, slow)

	const calls = 20
	for i := 1; i <= calls; i++ {
		p.send(0, uint64(i), common.QueryIndexRequest{MinAge: i}.Message())
	}

	seen := make(map[uint64]bool)
	for i := 0; i < calls; i++ {
		corrID, msg := p.recv()
		require.Len(t, msg.Docs, 1)
		// every reply belongs to its call
		assert.Equal(t, int(corrID), msg.Docs[0].Age)
		seen[corrID] = true
	}
	assert.Len(t, seen, calls)
	assert.Equal(t, int32(1), slow.maxSeen.Load())
}

func TestListenAndServe(t *testing.T) {
	l, err := unix.Listen(filepath.Join(t.TempDir(), "worker.sock"))
	require.NoError(t, err)

	ser := serializer.NewJSONSerializer()
	exec := NewExecutor(ser, 4)
	exec.Host(3, docstore.New(docstore.Options{Name: "exec-socket"}))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, exec.ListenAndServe(ctx, l))
	}()

	conn, err := unix.Dial(l.Addr())
	require.NoError(t, err)
	p := &proxy{t: t, conn: conn, ser: ser}

	corrID, msg := p.recv()
	assert.Equal(t, uint64(0), corrID)
	assert.Equal(t, common.MsgTReady, msg.MsgType)

	p.send(3, 1, common.InitRequest{}.Message())
	_, msg = p.recv()
	assert.False(t, msg.Failed(), msg.Err)

	require.NoError(t, conn.Close())
	cancel()
	wg.Wait()
}
