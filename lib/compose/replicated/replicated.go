package replicated

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/lni/dragonboat/v4"
	"github.com/lni/dragonboat/v4/client"
	"github.com/lni/dragonboat/v4/config"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/compose/replicated/internal"
	"github.com/pubkey/storagebench/lib/document"
	"github.com/pubkey/storagebench/lib/lockmgr"
)

var log = logger.GetLogger("replicated")

const (
	defaultShardID   = 1
	defaultReplicaID = 1
)

// Options configures a replicated adapter
type Options struct {
	Name            string               // Adapter name, also the directory name of the NodeHost
	Dir             string               // Parent directory of the NodeHost data (empty = os.TempDir())
	RaftAddress     string               // Raft address of the replica (empty = free local port)
	RTTMillisecond  uint64               // Round trip time between NodeHosts (0 = 5)
	SnapshotEntries uint64               // Applied entries between automatic snapshots (0 = disabled)
	Timeout         time.Duration        // Timeout of proposals, reads and the leader election (0 = 10s)
	Locks           lockmgr.ILockManager // Optional lock manager for exclusive resource ownership
}

// Adapter stores documents in a raft replicated state machine.
type Adapter struct {
	opts  Options
	claim *lockmgr.Claim

	mu sync.RWMutex // guards nh and cs
	nh *dragonboat.NodeHost
	cs *client.Session
}

// New creates a replicated adapter.
func New(opts Options) *Adapter {
	if opts.Dir == "" {
		opts.Dir = os.TempDir()
	}
	if opts.RTTMillisecond == 0 {
		opts.RTTMillisecond = 5
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Adapter{
		opts:  opts,
		claim: lockmgr.NewClaim(opts.Locks, opts.Name),
	}
}

func (r *Adapter) Name() string { return r.opts.Name }

func (r *Adapter) Info() adapter.Info {
	meta := map[string]interface{}{"dir": r.dataDir()}
	if leader, ok := r.LeaderID(); ok {
		meta["leader"] = leader
	}
	return adapter.Info{
		Name:       r.opts.Name,
		Backend:    adapter.BackendReplicated,
		Strategy:   adapter.StrategyNative,
		Duplicates: adapter.DuplicateReject,
		Missing:    adapter.MissingOmit,
		Matching:   document.MatchRegex,
		Features:   adapter.FeatureNativeBatch | adapter.FeatureRangeIndex | adapter.FeatureReplicated | adapter.FeaturePersistent,
		Metadata:   meta,
	}
}

// LeaderID returns the replica id of the current leader
func (r *Adapter) LeaderID() (uint64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nh == nil {
		return 0, false
	}
	leader, _, valid, err := r.nh.GetLeaderID(defaultShardID)
	if err != nil || !valid {
		return 0, false
	}
	return leader, true
}

func (r *Adapter) dataDir() string {
	return filepath.Join(r.opts.Dir, r.opts.Name+"-raft")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

func (r *Adapter) nodeHostConfig(address string) config.NodeHostConfig {
	return config.NodeHostConfig{
		WALDir:         r.dataDir(),
		NodeHostDir:    r.dataDir(),
		RTTMillisecond: r.opts.RTTMillisecond,
		RaftAddress:    address,
	}
}

func (r *Adapter) raftConfig() config.Config {
	compaction := r.opts.SnapshotEntries / 2
	return config.Config{
		ReplicaID:          defaultReplicaID,
		ShardID:            defaultShardID,
		ElectionRTT:        10,
		HeartbeatRTT:       1,
		CheckQuorum:        true,
		SnapshotEntries:    r.opts.SnapshotEntries,
		CompactionOverhead: compaction,
	}
}

// freeAddress returns a local address with a port nobody listens on right now
func freeAddress() (string, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	defer l.Close()
	return l.Addr().String(), nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see adapter.Adapter)
// --------------------------------------------------------------------------

func (r *Adapter) Init(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.nh != nil {
		return nil
	}

	if err := r.claim.Acquire(); err != nil {
		return adapter.NewError(adapter.RetCProvisioning, r.opts.Name, adapter.OpInit, err)
	}

	nh, err := r.start(ctx)
	if err != nil {
		_ = r.claim.Release()
		return adapter.NewError(adapter.RetCProvisioning, r.opts.Name, adapter.OpInit, err)
	}

	r.nh = nh
	r.cs = nh.GetNoOPSession(defaultShardID)
	return nil
}

// start launches the NodeHost and waits for the replica to become leader
func (r *Adapter) start(ctx context.Context) (*dragonboat.NodeHost, error) {
	address := r.opts.RaftAddress
	if address == "" {
		var err error
		if address, err = freeAddress(); err != nil {
			return nil, err
		}
	}

	nh, err := dragonboat.NewNodeHost(r.nodeHostConfig(address))
	if err != nil {
		return nil, fmt.Errorf("failed to create node host: %w", err)
	}

	members := map[uint64]string{defaultReplicaID: address}
	if err := nh.StartConcurrentReplica(members, false, NewStateMachine, r.raftConfig()); err != nil {
		nh.Close()
		return nil, fmt.Errorf("failed to start replica: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	ticker := time.NewTicker(time.Duration(r.opts.RTTMillisecond) * time.Millisecond)
	defer ticker.Stop()
	for {
		leader, _, valid, err := nh.GetLeaderID(defaultShardID)
		if err == nil && valid {
			log.Infof("%s: replica %d is leader of shard %d at %s", r.opts.Name, leader, defaultShardID, address)
			return nh, nil
		}
		select {
		case <-ctx.Done():
			nh.Close()
			return nil, fmt.Errorf("no leader elected: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (r *Adapter) WriteDocs(ctx context.Context, docs []document.Document) error {
	if len(docs) == 0 {
		_, err := r.session(adapter.OpWriteDocs)
		return err
	}
	return r.propose(ctx, adapter.OpWriteDocs, internal.Command{Type: internal.CommandTInsert, Docs: docs})
}

func (r *Adapter) FindDocs(ctx context.Context, ids []string) ([]document.Document, error) {
	return r.read(ctx, adapter.OpFindDocs, internal.Query{Type: internal.QueryTGet, IDs: ids})
}

func (r *Adapter) QueryRegex(ctx context.Context, pattern string) ([]document.Document, error) {
	return r.scan(ctx, adapter.OpQueryRegex, pattern, document.NoAgeBound)
}

func (r *Adapter) QueryIndex(ctx context.Context, minAge int) ([]document.Document, error) {
	return r.scan(ctx, adapter.OpQueryIndex, "", minAge)
}

func (r *Adapter) QueryRegexIndex(ctx context.Context, pattern string, minAge int) ([]document.Document, error) {
	return r.scan(ctx, adapter.OpQueryRegexIndex, pattern, minAge)
}

func (r *Adapter) Clear(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var wipeErr error
	if r.nh != nil {
		if wipeErr = r.proposeLocked(ctx, adapter.OpClear, internal.Command{Type: internal.CommandTWipe}); wipeErr != nil {
			log.Warningf("%s: wipe was not committed: %v", r.opts.Name, wipeErr)
		}
		r.nh.Close()
		r.nh = nil
		r.cs = nil
	}
	if err := os.RemoveAll(r.dataDir()); err != nil {
		return adapter.NewError(adapter.RetCInternalError, r.opts.Name, adapter.OpClear, errors.Join(wipeErr, err))
	}
	if err := r.claim.Release(); err != nil {
		return adapter.NewError(adapter.RetCInternalError, r.opts.Name, adapter.OpClear, errors.Join(wipeErr, err))
	}
	return wipeErr
}

// --------------------------------------------------------------------------
// Internal write and read operations
// --------------------------------------------------------------------------

func (r *Adapter) session(op string) (*dragonboat.NodeHost, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nh == nil {
		return nil, adapter.NotInitialized(r.opts.Name, op)
	}
	return r.nh, nil
}

func (r *Adapter) propose(ctx context.Context, op string, cmd internal.Command) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.nh == nil {
		return adapter.NotInitialized(r.opts.Name, op)
	}
	return r.proposeLocked(ctx, op, cmd)
}

// proposeLocked must be called with r.mu held
func (r *Adapter) proposeLocked(ctx context.Context, op string, cmd internal.Command) error {
	data, err := cmd.Serialize()
	if err != nil {
		return adapter.NewError(adapter.RetCWrite, r.opts.Name, op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	res, err := r.nh.SyncPropose(ctx, r.cs, data)
	if err != nil {
		return adapter.NewError(adapter.RetCWrite, r.opts.Name, op, err)
	}
	if code := adapter.RetCode(res.Value); code != adapter.RetCSuccess {
		return adapter.NewError(code, r.opts.Name, op, errors.New(string(res.Data)))
	}
	return nil
}

func (r *Adapter) scan(ctx context.Context, op, pattern string, minAge int) ([]document.Document, error) {
	q, err := adapter.OpQuery(r.opts.Name, op, document.MatchRegex, pattern, minAge)
	if err != nil {
		return nil, err
	}
	return r.read(ctx, op, internal.Query{Type: internal.QueryTScan, Match: q})
}

func (r *Adapter) read(ctx context.Context, op string, q internal.Query) ([]document.Document, error) {
	nh, err := r.session(op)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()
	res, err := nh.SyncRead(ctx, defaultShardID, q)
	if err != nil {
		return nil, adapter.NewError(adapter.RetCQuery, r.opts.Name, op, err)
	}

	docs, ok := res.([]document.Document)
	if !ok {
		return nil, adapter.NewErrorf(adapter.RetCInternalError, r.opts.Name, op, "unexpected type: received %T", res)
	}
	return docs, nil
}
