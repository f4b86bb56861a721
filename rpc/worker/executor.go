package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/rpc/common"
	"github.com/pubkey/storagebench/rpc/serializer"
	"github.com/pubkey/storagebench/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = logger.GetLogger("worker")

// DefaultMaxInFlight is the number of calls a connection executes at the same time
const DefaultMaxInFlight = 64

// readyCorrID is the correlation id of the ready frame
const readyCorrID = 0

// hostedShard is an adapter hosted by the executor
type hostedShard struct {
	mu      sync.Mutex // serializes access to the adapter
	adapter adapter.Adapter
}

// Executor hosts adapters and answers calls for them
type Executor struct {
	serializer  serializer.IRPCSerializer
	maxInFlight int
	shards      *xsync.MapOf[uint64, *hostedShard]
}

// NewExecutor creates an executor without hosted adapters.
// maxInFlight <= 0 uses DefaultMaxInFlight.
func NewExecutor(ser serializer.IRPCSerializer, maxInFlight int) *Executor {
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	return &Executor{
		serializer:  ser,
		maxInFlight: maxInFlight,
		shards:      xsync.NewMapOf[uint64, *hostedShard](),
	}
}

// Host registers a as the adapter of shardID, replacing a previous one.
// The adapter is not initialized, that is the first call of the proxy.
func (e *Executor) Host(shardID uint64, a adapter.Adapter) {
	e.shards.Store(shardID, &hostedShard{adapter: a})
	log.Infof("Hosting %s (%s) as shard %d", a.Name(), a.Info().Backend, shardID)
}

// --------------------------------------------------------------------------
// Serving
// --------------------------------------------------------------------------

// Serve emits the ready frame and answers calls read from conn until the peer
// closes the connection or ctx is done. Calls still running are awaited.
// A closed connection is not an error.
func (e *Executor) Serve(ctx context.Context, conn transport.IConn) error {
	defer conn.Close()

	ready, err := e.serializer.Serialize(*common.NewReadyMessage())
	if err != nil {
		return fmt.Errorf("failed to serialize ready message: %w", err)
	}
	if err := conn.WriteFrame(0, readyCorrID, ready); err != nil {
		return fmt.Errorf("failed to send ready message: %w", err)
	}

	// closing the connection unblocks ReadFrame once ctx is done
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	// The buffered channel acts as a counting semaphore
	semaphore := make(chan struct{}, e.maxInFlight)
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		shardID, corrID, payload, err := conn.ReadFrame()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				log.Infof("Connection closed by proxy")
				return nil
			}
			return fmt.Errorf("failed to read call: %w", err)
		}

		if corrID == readyCorrID {
			log.Warningf("Dropping call for shard %d with reserved correlation id %d", shardID, corrID)
			continue
		}

		// blocks if maxInFlight calls are running
		semaphore <- struct{}{}
		wg.Add(1)

		go func() {
			defer func() {
				<-semaphore
				wg.Done()
			}()
			e.execute(ctx, conn, shardID, corrID, payload)
		}()
	}
}

// execute runs one call and writes its reply
func (e *Executor) execute(ctx context.Context, conn transport.IConn, shardID, corrID uint64, payload []byte) {
	var resp *common.Message

	shard, ok := e.shards.Load(shardID)
	if !ok {
		resp = common.NewErrorResponse(adapter.RetCInvalidOperation, fmt.Sprintf("shard %d is not hosted", shardID))
	} else {
		var msg common.Message
		if err := e.serializer.Deserialize(payload, &msg); err != nil {
			resp = common.NewErrorResponse(adapter.RetCProtocol, fmt.Sprintf("failed to deserialize call: %s", err))
		} else {
			req, err := msg.Request()
			if err != nil {
				// the pending call of the proxy stays unresolved
				log.Warningf("Unknown operation for call %d on shard %d: %v", corrID, shardID, err)
				return
			}

			start := time.Now()
			shard.mu.Lock()
			resp = handle(ctx, shard.adapter, req)
			shard.mu.Unlock()
			log.Debugf("Processed %s for shard %d with correlation id %d took %s", msg.MsgType, shardID, corrID, time.Since(start))
		}
	}

	data, err := e.serializer.Serialize(*resp)
	if err != nil {
		log.Errorf("Failed to serialize reply of call %d: %v", corrID, err)
		if data, err = e.serializer.Serialize(*common.NewErrorResponse(adapter.RetCInternalError,
			fmt.Sprintf("failed to serialize reply: %s", err))); err != nil {
			return
		}
	}

	// Write the reply with the same correlation id
	if err := conn.WriteFrame(shardID, corrID, data); err != nil {
		log.Errorf("Failed to write reply of call %d: %v", corrID, err)
	}
}

// ListenAndServe serves every connection accepted by l until ctx is done.
// Every connection starts with its own ready frame.
func (e *Executor) ListenAndServe(ctx context.Context, l transport.IListener) error {
	stop := context.AfterFunc(ctx, func() { _ = l.Close() })
	defer stop()

	log.Infof("Listening on %s", l.Addr())

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("accept failed: %w", err)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := e.Serve(ctx, conn); err != nil {
				log.Errorf("Serving connection failed: %v", err)
			}
		}()
	}
}
