package client

import (
	"context"
	"fmt"

	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/serializer"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/pubkey/storagebench/rpc/transport/inproc"
	"github.com/pubkey/storagebench/rpc/transport/stdio"
	"github.com/pubkey/storagebench/rpc/transport/tcp"
	"github.com/pubkey/storagebench/rpc/transport/unix"
	"github.com/pubkey/storagebench/rpc/worker"
)

// Spawner starts or connects to a worker. The returned connection reaches the
// executor hosting the adapter of shardID.
type Spawner interface {
	Spawn(ctx context.Context) (conn transport.IConn, shardID uint64, err error)
	String() string
}

// SpawnerFunc adapts a function to the Spawner interface
type SpawnerFunc func(ctx context.Context) (transport.IConn, uint64, error)

func (f SpawnerFunc) Spawn(ctx context.Context) (transport.IConn, uint64, error) { return f(ctx) }
func (f SpawnerFunc) String() string                                             { return "func" }

// --------------------------------------------------------------------------
// In process
// --------------------------------------------------------------------------

type inProcessSpawner struct {
	factory    adapter.Factory
	serializer serializer.IRPCSerializer
}

// InProcess runs a fresh adapter created by factory in an executor goroutine.
// Every Spawn creates a new adapter instance. The executor ends when the proxy
// closes the connection.
func InProcess(factory adapter.Factory, ser serializer.IRPCSerializer) Spawner {
	return &inProcessSpawner{factory: factory, serializer: ser}
}

func (s *inProcessSpawner) Spawn(context.Context) (transport.IConn, uint64, error) {
	proxyEnd, workerEnd := inproc.Pipe()

	exec := worker.NewExecutor(s.serializer, 0)
	exec.Host(0, s.factory())

	go func() {
		if err := exec.Serve(context.Background(), workerEnd); err != nil {
			Logger.Errorf("In-process worker failed: %v", err)
		}
	}()
	return proxyEnd, 0, nil
}

func (s *inProcessSpawner) String() string { return "inproc" }

// --------------------------------------------------------------------------
// Child process
// --------------------------------------------------------------------------

type processSpawner struct {
	path string
	args []string
}

// Process starts path with args as a worker child process serving over stdio,
// e.g. Process(os.Args[0], "worker", "--backend", "kvmap").
func Process(path string, args ...string) Spawner {
	return &processSpawner{path: path, args: args}
}

func (s *processSpawner) Spawn(context.Context) (transport.IConn, uint64, error) {
	conn, err := stdio.Spawn(s.path, s.args...)
	return conn, 0, err
}

func (s *processSpawner) String() string { return "process" }

// --------------------------------------------------------------------------
// Socket
// --------------------------------------------------------------------------

type dialSpawner struct {
	endpoint common.Endpoint
	shardID  uint64
}

// Dial connects to a worker server listening on endpoint. shardID selects the
// adapter among those the worker hosts.
func Dial(endpoint common.Endpoint, shardID uint64) Spawner {
	return &dialSpawner{endpoint: endpoint, shardID: shardID}
}

func (s *dialSpawner) Spawn(context.Context) (transport.IConn, uint64, error) {
	var conn transport.IConn
	var err error

	switch s.endpoint.Network {
	case "unix":
		conn, err = unix.Dial(s.endpoint.Address)
	case "tcp":
		conn, err = tcp.Dial(s.endpoint.Address)
	default:
		err = fmt.Errorf("can't dial endpoint %s", s.endpoint)
	}
	return conn, s.shardID, err
}

func (s *dialSpawner) String() string { return s.endpoint.String() }
