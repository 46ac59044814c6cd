package chain

import (
	"encoding/binary"
	"sync"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Inmem is a deterministic in-memory chain. Block hashes are derived from the
// height, so two Inmem chains at the same height agree.
type Inmem struct {
	mu          sync.RWMutex
	height      int
	genesisTime int64
	interval    int64
	synced      bool
	outputs     map[indexnode.Identity]Collateral
	spent       map[indexnode.Identity]bool
}

// NewInmem creates a chain at height with blocks every interval seconds
// starting at genesisTime.
func NewInmem(height int, genesisTime int64, interval int64) *Inmem {
	return &Inmem{
		height:      height,
		genesisTime: genesisTime,
		interval:    interval,
		synced:      true,
		outputs:     make(map[indexnode.Identity]Collateral),
		spent:       make(map[indexnode.Identity]bool),
	}
}

// InmemBlockHash is the hash of the block at height on every Inmem chain.
func InmemBlockHash(height int) chainhash.Hash {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(height))
	return chainhash.DoubleHashH(b[:])
}

// Height implements Chain.
func (c *Inmem) Height() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}

// BlockHash implements Chain.
func (c *Inmem) BlockHash(height int) (chainhash.Hash, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height > c.height {
		return chainhash.Hash{}, false
	}
	return InmemBlockHash(height), true
}

// BlockHeight implements Chain. It scans back from the tip, which is fine for
// the small windows pings are checked against.
func (c *Inmem) BlockHeight(hash chainhash.Hash) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for h := c.height; h >= 0 && h > c.height-1000; h-- {
		if InmemBlockHash(h) == hash {
			return h, true
		}
	}
	return 0, false
}

// Collateral implements Chain.
func (c *Inmem) Collateral(id indexnode.Identity) (Collateral, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.spent[id] {
		return Collateral{}, false
	}
	out, ok := c.outputs[id]
	return out, ok
}

// IsCollateralSpent implements Chain.
func (c *Inmem) IsCollateralSpent(id indexnode.Identity) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.spent[id]
}

// CollateralDepth implements Chain.
func (c *Inmem) CollateralDepth(id indexnode.Identity) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[id]
	if !ok || c.spent[id] {
		return -1
	}
	return c.height - out.Height + 1
}

// IsSynced implements Chain.
func (c *Inmem) IsSynced() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.synced
}

// SetSynced ...
func (c *Inmem) SetSynced(synced bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.synced = synced
}

// AddCollateral confirms a bonding output of value paying to owner at the
// current height.
func (c *Inmem) AddCollateral(id indexnode.Identity, owner []byte, value int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addCollateralAt(id, owner, value, c.height)
}

func (c *Inmem) addCollateralAt(id indexnode.Identity, owner []byte, value int64, height int) {
	c.outputs[id] = Collateral{
		Value:     value,
		Height:    height,
		BlockTime: c.blockTime(height),
		Owner:     owner,
	}
}

// Spend marks a collateral output as spent.
func (c *Inmem) Spend(id indexnode.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.spent[id] = true
}

// Advance mines n blocks and returns the new height.
func (c *Inmem) Advance(n int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.height += n
	return c.height
}

// AdvanceTo mines the blocks due at now, one every interval seconds after
// genesis, and returns the new height. The height never decreases.
func (c *Inmem) AdvanceTo(now int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.interval <= 0 || now < c.genesisTime {
		return c.height
	}
	if h := int((now - c.genesisTime) / c.interval); h > c.height {
		c.height = h
	}
	return c.height
}

// BlockTime implements Chain.
func (c *Inmem) BlockTime(height int) (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if height < 0 || height > c.height {
		return 0, false
	}
	return c.blockTime(height), true
}

func (c *Inmem) blockTime(height int) int64 {
	return c.genesisTime + int64(height)*c.interval
}
