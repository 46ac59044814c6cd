package chain

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Collateral describes an unspent bonding output.
type Collateral struct {
	// Value in base units.
	Value int64

	// Height of the block that confirmed the output.
	Height int

	// BlockTime of that block.
	BlockTime int64

	// Owner is the public key the output pays to.
	Owner []byte
}

// Chain is the read-only view of the blockchain consumed by the registry.
// Implementations must be safe for concurrent use and answer from local state
// without blocking: the registry consults them while holding its lock.
type Chain interface {
	// Height returns the height of the current tip.
	Height() int

	// BlockHash returns the hash of the block at height on the active chain.
	BlockHash(height int) (chainhash.Hash, bool)

	// BlockHeight returns the height of a block on the active chain.
	BlockHeight(hash chainhash.Hash) (int, bool)

	// BlockTime returns the timestamp of the block at height.
	BlockTime(height int) (int64, bool)

	// Collateral returns the unspent output referenced by id.
	Collateral(id indexnode.Identity) (Collateral, bool)

	// IsCollateralSpent is true once the output referenced by id is spent.
	IsCollateralSpent(id indexnode.Identity) bool

	// CollateralDepth returns the number of confirmations of the output, or
	// -1 when it is unknown.
	CollateralDepth(id indexnode.Identity) int

	// IsSynced is false while the node is still downloading blocks.
	IsSynced() bool
}

// Wallet is the subset of the wallet used by a node running in local mode.
type Wallet interface {
	// IsLocked is true when the keys cannot be used.
	IsLocked() bool

	// Balance in base units.
	Balance() int64

	// BondingOutput returns an owned output carrying exactly the required
	// collateral, and the key that owns it.
	BondingOutput() (indexnode.Identity, *btcec.PrivateKey, bool)

	// LockOutput marks an output as not spendable by coin selection.
	LockOutput(id indexnode.Identity)
}

// Payments is the view of the payment schedule kept by the consensus layer.
type Payments interface {
	// PayeeAt returns the payee script paid by the block at height.
	PayeeAt(height int) ([]byte, bool)

	// IsScheduled reports whether payee is due to be paid in one of the
	// blocks following height.
	IsScheduled(payee []byte, height int) bool
}
