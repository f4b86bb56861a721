package lockmgr

import (
	"bytes"

	"github.com/lni/dragonboat/v4/logger"
	"github.com/pubkey/storagebench/lib/db"
	"github.com/pubkey/storagebench/lib/db/engines/maple"
)

var log = logger.GetLogger("lockmgr")

type lockMgrImpl struct {
	store db.KVDB
}

// NewLockManager creates a lock manager that keeps its locks in store.
func NewLockManager(store db.KVDB) ILockManager {
	return &lockMgrImpl{
		store: store,
	}
}

// NewInMemory creates a lock manager on a fresh maple database, for locks that
// only have to be exclusive within the current process.
func NewInMemory() ILockManager {
	return NewLockManager(maple.NewMapleDB(&maple.DBOptions{NumShards: 4}))
}

func (lp *lockMgrImpl) AcquireLock(key string) (bool, []byte, error) {
	ownerID, err := generateOwnerID()
	if err != nil {
		return false, nil, err
	}

	// Try to acquire the lock (by setting the value only if it doesn't exist - atomic CAS operation)
	if !lp.store.SetIfUnset(key, ownerID) {
		log.Debugf("lock %s is held by another owner", key)
		return false, nil, nil
	}
	return true, ownerID, nil
}

func (lp *lockMgrImpl) ReleaseLock(key string, ownerID []byte) (bool, error) {
	// Check if the lock exists
	value, ok := lp.store.Get(key)
	if !ok {
		return true, nil
	}

	// Check if the lock is owned by us
	if !bytes.Equal(ownerID, value) {
		return false, nil
	}

	lp.store.Delete(key)
	return true, nil
}
