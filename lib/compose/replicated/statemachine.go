package replicated

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	sm "github.com/lni/dragonboat/v4/statemachine"
	"github.com/pubkey/storagebench/lib/adapter"
	"github.com/pubkey/storagebench/lib/compose/replicated/internal"
	"github.com/pubkey/storagebench/lib/docstore"
	"github.com/pubkey/storagebench/lib/document"
)

// snapshotBatch is the number of documents inserted at once while recovering
const snapshotBatch = 1000

// --------------------------------------------------------------------------
// State Machine Implementation
// --------------------------------------------------------------------------

// DocStateMachine is a concurrent dragonboat state machine holding the documents
// in a docstore.MemoryEngine.
type DocStateMachine struct {
	replicaID uint64
	shardID   uint64
	engine    *docstore.MemoryEngine
}

// NewStateMachine is the factory dragonboat uses to create the state machine of a replica
func NewStateMachine(shardID uint64, replicaID uint64) sm.IConcurrentStateMachine {
	engine := docstore.NewMemoryEngine(docstore.MemoryOptions{})
	_ = engine.Open()
	return &DocStateMachine{
		replicaID: replicaID,
		shardID:   shardID,
		engine:    engine,
	}
}

// Lookup handles read-only queries
func (fsm *DocStateMachine) Lookup(itf interface{}) (interface{}, error) {
	q, ok := itf.(internal.Query)
	if !ok {
		return nil, fmt.Errorf("invalid query type: %T", itf)
	}

	switch q.Type {
	case internal.QueryTGet:
		return fsm.engine.Get(q.IDs)
	case internal.QueryTScan:
		return fsm.engine.Scan(q.Match)
	case internal.QueryTCount:
		return fsm.engine.Len(), nil
	default:
		return nil, fmt.Errorf("unknown query operation: %s", q.Type)
	}
}

// Update applies committed commands. The result value of every entry is an
// adapter.RetCode, the data carries the error message of failed commands.
func (fsm *DocStateMachine) Update(entries []sm.Entry) ([]sm.Entry, error) {
	if len(entries) == 0 {
		return entries, nil
	}

	start := time.Now()
	for idx, e := range entries {
		cmd := internal.Command{}
		if err := cmd.Deserialize(e.Cmd); err != nil {
			entries[idx].Result = failed(adapter.RetCInternalError, fmt.Errorf("failed to deserialize command: %w", err))
			continue
		}

		switch cmd.Type {
		case internal.CommandTInsert:
			err := fsm.engine.Insert(cmd.Docs)
			switch {
			case err == nil:
				entries[idx].Result = sm.Result{Value: uint64(adapter.RetCSuccess)}
			case errors.Is(err, docstore.ErrConflict):
				entries[idx].Result = failed(adapter.RetCDuplicateID, err)
			default:
				entries[idx].Result = failed(adapter.RetCWrite, err)
			}
		case internal.CommandTWipe:
			err := fsm.wipe()
			if err != nil {
				entries[idx].Result = failed(adapter.RetCInternalError, err)
				continue
			}
			entries[idx].Result = sm.Result{Value: uint64(adapter.RetCSuccess)}
		default:
			entries[idx].Result = failed(adapter.RetCInvalidOperation, fmt.Errorf("unknown command operation: %s", cmd.Type))
		}
	}

	if elapsed := time.Since(start); elapsed > time.Millisecond {
		log.Infof("state machine took long to update: %d entries in %.2fms", len(entries), float64(elapsed)/float64(time.Millisecond))
	}
	return entries, nil
}

func failed(code adapter.RetCode, err error) sm.Result {
	return sm.Result{Value: uint64(code), Data: []byte(err.Error())}
}

func (fsm *DocStateMachine) wipe() error {
	if err := fsm.engine.Destroy(); err != nil {
		return err
	}
	return fsm.engine.Open()
}

// PrepareSnapshot is not used, the snapshot is taken from the engine directly
func (fsm *DocStateMachine) PrepareSnapshot() (interface{}, error) {
	return nil, nil
}

// SaveSnapshot writes all documents as a stream of JSON values
func (fsm *DocStateMachine) SaveSnapshot(_ interface{}, w io.Writer, _ sm.ISnapshotFileCollection, done <-chan struct{}) error {
	docs, err := fsm.engine.Scan(document.AgeQuery(document.NoAgeBound))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	for i := range docs {
		select {
		case <-done:
			return sm.ErrSnapshotStopped
		default:
		}
		if err := enc.Encode(&docs[i]); err != nil {
			return err
		}
	}
	return nil
}

// RecoverFromSnapshot replaces all documents with the ones of the stream
func (fsm *DocStateMachine) RecoverFromSnapshot(r io.Reader, _ []sm.SnapshotFile, done <-chan struct{}) error {
	if err := fsm.wipe(); err != nil {
		return err
	}

	dec := json.NewDecoder(r)
	batch := make([]document.Document, 0, snapshotBatch)
	for {
		select {
		case <-done:
			return sm.ErrSnapshotStopped
		default:
		}

		var doc document.Document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		batch = append(batch, doc)
		if len(batch) == snapshotBatch {
			if err := fsm.engine.Insert(batch); err != nil {
				return err
			}
			batch = batch[:0]
		}
	}
	return fsm.engine.Insert(batch)
}

// Close releases the documents
func (fsm *DocStateMachine) Close() error {
	return fsm.engine.Destroy()
}
