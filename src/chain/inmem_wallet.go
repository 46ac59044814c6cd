package chain

import (
	"crypto/rand"
	"sync"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// InmemWallet holds at most one bonding output.
type InmemWallet struct {
	mu      sync.Mutex
	locked  bool
	balance int64
	output  indexnode.Identity
	key     *btcec.PrivateKey
	hasOut  bool
	frozen  map[indexnode.Identity]bool
}

// NewInmemWallet ...
func NewInmemWallet() *InmemWallet {
	return &InmemWallet{
		frozen: make(map[indexnode.Identity]bool),
	}
}

// Fund creates a fresh collateral key and output, confirms the output on c
// and returns its identity.
func (w *InmemWallet) Fund(c *Inmem) (indexnode.Identity, error) {
	key, err := keys.GenerateKey()
	if err != nil {
		return indexnode.Identity{}, err
	}
	var h chainhash.Hash
	if _, err := rand.Read(h[:]); err != nil {
		return indexnode.Identity{}, err
	}
	id := indexnode.NewIdentity(h, 0)
	value := int64(indexnode.CoinRequired) * indexnode.Coin
	c.AddCollateral(id, keys.PublicKeyBytes(key), value)

	w.mu.Lock()
	defer w.mu.Unlock()
	w.output = id
	w.key = key
	w.hasOut = true
	w.balance += value
	return id, nil
}

// Import adds an already confirmed bonding output and the key that owns it.
func (w *InmemWallet) Import(id indexnode.Identity, key *btcec.PrivateKey, value int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.output = id
	w.key = key
	w.hasOut = true
	w.balance += value
}

// SetLocked ...
func (w *InmemWallet) SetLocked(locked bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.locked = locked
}

// IsLocked implements Wallet.
func (w *InmemWallet) IsLocked() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.locked
}

// Balance implements Wallet.
func (w *InmemWallet) Balance() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// BondingOutput implements Wallet.
func (w *InmemWallet) BondingOutput() (indexnode.Identity, *btcec.PrivateKey, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.hasOut || w.locked {
		return indexnode.Identity{}, nil, false
	}
	return w.output, w.key, true
}

// LockOutput implements Wallet.
func (w *InmemWallet) LockOutput(id indexnode.Identity) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.frozen[id] = true
}

// IsOutputLocked ...
func (w *InmemWallet) IsOutputLocked(id indexnode.Identity) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.frozen[id]
}
