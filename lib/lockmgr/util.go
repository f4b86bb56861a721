package lockmgr

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// generateOwnerID creates a new unique owner ID (a random UUID)
func generateOwnerID() ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return id.MarshalBinary()
}

// ResourceKey returns the lock key of a named storage resource
func ResourceKey(name string) string {
	return "resource:" + name
}

// Claim is the exclusive claim of one storage resource. A nil manager makes every
// operation a no-op, so adapters can hold a Claim whether locking is configured or not.
type Claim struct {
	mgr   ILockManager
	key   string
	mu    sync.Mutex
	owner []byte
}

// NewClaim creates a claim on the resource name. mgr may be nil.
func NewClaim(mgr ILockManager, name string) *Claim {
	return &Claim{mgr: mgr, key: ResourceKey(name)}
}

// Acquire takes the lock. Acquiring a claim that is already held is a no-op.
// It returns an error wrapping ErrBusy if another owner holds the resource.
func (c *Claim) Acquire() error {
	if c == nil || c.mgr == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner != nil {
		return nil
	}

	ok, owner, err := c.mgr.AcquireLock(c.key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrBusy, c.key)
	}
	c.owner = owner
	return nil
}

// Release gives the lock back. Releasing a claim that is not held is a no-op.
func (c *Claim) Release() error {
	if c == nil || c.mgr == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.owner == nil {
		return nil
	}

	ok, err := c.mgr.ReleaseLock(c.key, c.owner)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("lock %s was taken over by another owner", c.key)
	}
	c.owner = nil
	return nil
}

// Held reports whether the claim currently owns the lock.
func (c *Claim) Held() bool {
	if c == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.owner != nil
}
