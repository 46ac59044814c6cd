package listsync

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Asset is the stage of the initial sync.
type Asset int

const (
	// Failed is entered when the list could not be requested from anyone.
	Failed Asset = -1
	// Initial waits for the blockchain to be synced.
	Initial Asset = 0
	// Waiting gives peers time to connect before asking for the list.
	Waiting Asset = 1
	// List asks peers for the registry and waits for the entries to stop
	// flowing in.
	List Asset = 2
	// Finished means the registry is considered complete.
	Finished Asset = 999
)

const (
	// TickSeconds is the expected interval between two calls to Tick.
	TickSeconds = 6

	// TimeoutSeconds is how long the list asset waits without a new entry
	// before moving on.
	TimeoutSeconds = 30

	// FailedRetrySeconds is how long the tracker stays failed before
	// starting over.
	FailedRetrySeconds = 60
)

// String ...
func (a Asset) String() string {
	switch a {
	case Failed:
		return "INDEXNODE_SYNC_FAILED"
	case Initial:
		return "INDEXNODE_SYNC_INITIAL"
	case Waiting:
		return "INDEXNODE_SYNC_WAITING"
	case List:
		return "INDEXNODE_SYNC_LIST"
	case Finished:
		return "INDEXNODE_SYNC_FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Tracker follows the progress of the initial list sync. It satisfies the
// registry's view of sync status and is driven by Tick.
type Tracker struct {
	mu sync.Mutex

	asset            Asset
	blockchainSynced bool
	assetStart       int64
	lastAdded        int64
	lastFailure      int64
	asked            int

	now    func() int64
	logger *logrus.Entry
}

// NewTracker creates a Tracker in the Initial asset. now defaults to the wall
// clock.
func NewTracker(now func() int64, logger *logrus.Entry) *Tracker {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	if logger == nil {
		logger = logrus.New().WithField("prefix", "sync")
	}
	t := &Tracker{
		now:    now,
		logger: logger,
	}
	t.reset()
	return t
}

func (t *Tracker) reset() {
	t.asset = Initial
	t.assetStart = t.now()
	t.lastAdded = 0
	t.asked = 0
}

// Reset starts the sync over.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.reset()
}

// Asset ...
func (t *Tracker) Asset() Asset {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asset
}

// IsBlockchainSynced ...
func (t *Tracker) IsBlockchainSynced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.blockchainSynced
}

// IsListSynced is true once the list asset is over.
func (t *Tracker) IsListSynced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asset > List
}

// IsSynced ...
func (t *Tracker) IsSynced() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asset == Finished
}

// IsFailed ...
func (t *Tracker) IsFailed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.asset == Failed
}

// AddedToList is called whenever a new entry reached the registry; it keeps
// the list asset open.
func (t *Tracker) AddedToList() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastAdded = t.now()
}

// SetBlockchainSynced records the sync status of the underlying chain. A
// chain falling behind restarts the sync.
func (t *Tracker) SetBlockchainSynced(synced bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.blockchainSynced && !synced {
		t.logger.Info("Blockchain fell behind, restarting sync")
		t.reset()
	}
	t.blockchainSynced = synced
}

// Status is a human readable description of the current asset.
func (t *Tracker) Status() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.asset {
	case Initial:
		return "Synchronizing blockchain..."
	case Waiting:
		return "Synchronization pending..."
	case List:
		return fmt.Sprintf("Synchronizing indexnodes... (%d requests)", t.asked)
	case Finished:
		return "Synchronization finished"
	case Failed:
		return "Synchronization failed"
	}
	return ""
}

// Tick advances the sync. peers is the number of peers the list can be
// requested from. It returns true when the caller should ask its peers for
// the list.
func (t *Tracker) Tick(peers int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	switch t.asset {
	case Failed:
		if now-t.lastFailure > FailedRetrySeconds {
			t.logger.Info("Retrying sync")
			t.reset()
		}
		return false
	case Finished:
		return false
	}

	if !t.blockchainSynced {
		return false
	}

	switch t.asset {
	case Initial:
		t.switchTo(Waiting, now)
	case Waiting:
		if now-t.assetStart >= TickSeconds {
			t.switchTo(List, now)
			t.lastAdded = now
		}
	case List:
		if now-t.lastAdded > TimeoutSeconds {
			if t.asked == 0 {
				t.logger.Warn("Failed to request the list from any peer")
				t.asset = Failed
				t.lastFailure = now
				return false
			}
			t.switchTo(Finished, now)
			return false
		}
		if peers > 0 {
			t.asked++
			return true
		}
	}
	return false
}

func (t *Tracker) switchTo(a Asset, now int64) {
	t.logger.WithFields(logrus.Fields{
		"from":    t.asset.String(),
		"to":      a.String(),
		"seconds": now - t.assetStart,
	}).Info("Sync asset changed")
	t.asset = a
	t.assetStart = now
}
