package docstore

import (
	"sync"
	"sync/atomic"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/document"
)

var log = logger.GetLogger("docstore")

// ChangeOp is the kind of a change event
type ChangeOp uint8

const (
	ChangeInsert ChangeOp = iota // documents were inserted
	ChangeRemove                 // the collection was removed
)

func (o ChangeOp) String() string {
	switch o {
	case ChangeInsert:
		return "insert"
	case ChangeRemove:
		return "remove"
	default:
		return "unknown"
	}
}

// ChangeEvent is published after a successful write to the collection.
// Docs is empty for ChangeRemove.
type ChangeEvent struct {
	Op   ChangeOp
	Docs []document.Document
}

// Collection is a named set of documents on top of an Engine.
type Collection struct {
	name   string
	engine Engine

	subsMu  sync.RWMutex // guards subs, emit holds it shared so unsubscribe can't close a channel mid-send
	subs    map[uint64]chan ChangeEvent
	nextSub uint64
	dropped atomic.Uint64
}

// NewCollection creates a collection backed by engine.
func NewCollection(name string, engine Engine) *Collection {
	return &Collection{
		name:   name,
		engine: engine,
		subs:   make(map[uint64]chan ChangeEvent),
	}
}

// Name returns the name of the collection
func (c *Collection) Name() string { return c.name }

// Engine returns the engine of the collection
func (c *Collection) Engine() Engine { return c.engine }

// Open opens the underlying engine.
func (c *Collection) Open() error {
	if err := c.engine.Open(); err != nil {
		return err
	}
	log.Debugf("%s: collection opened", c.name)
	return nil
}

// Insert stores docs. A conflicting id fails the whole batch with ErrConflict.
func (c *Collection) Insert(docs []document.Document) error {
	if err := c.engine.Insert(docs); err != nil {
		return err
	}
	if len(docs) > 0 {
		// subscribers must not see later changes of the caller
		events := make([]document.Document, len(docs))
		for i := range docs {
			events[i] = docs[i].Clone()
		}
		c.emit(ChangeEvent{Op: ChangeInsert, Docs: events})
	}
	return nil
}

// FindByIDs returns the stored documents for ids. Unknown ids are omitted.
func (c *Collection) FindByIDs(ids []string) ([]document.Document, error) {
	return c.engine.Get(ids)
}

// Find returns all documents satisfying q.
func (c *Collection) Find(q document.Query) ([]document.Document, error) {
	return c.engine.Scan(q)
}

// Count returns the number of documents in the collection.
func (c *Collection) Count() int {
	return c.engine.Len()
}

// Remove destroys all data of the collection. The collection can be opened again.
func (c *Collection) Remove() error {
	if err := c.engine.Destroy(); err != nil {
		return err
	}
	c.emit(ChangeEvent{Op: ChangeRemove})
	log.Debugf("%s: collection removed", c.name)
	return nil
}

// --------------------------------------------------------------------------
// Change subscription
// --------------------------------------------------------------------------

// Changes subscribes to the change events of the collection. The returned channel
// has the given buffer size (minimum 1). Events that don't fit are dropped, see
// Dropped. The returned function ends the subscription and closes the channel.
func (c *Collection) Changes(buffer int) (<-chan ChangeEvent, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan ChangeEvent, buffer)

	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
			close(ch)
		})
	}
}

// Dropped returns the number of events that were dropped because a subscriber's
// buffer was full.
func (c *Collection) Dropped() uint64 {
	return c.dropped.Load()
}

func (c *Collection) emit(ev ChangeEvent) {
	c.subsMu.RLock()
	defer c.subsMu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			if c.dropped.Add(1) == 1 {
				log.Warningf("%s: subscriber too slow, dropping change events", c.name)
			}
		}
	}
}
