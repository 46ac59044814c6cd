package rank

import (
	"math/big"

	"github.com/btcsuite/btcd/blockchain"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Score hashes the identity together with a block hash and reads the result as
// an unsigned 256-bit integer. Nobody knows the block hash in advance, so
// nobody can bias the ordering ahead of time.
func Score(id indexnode.Identity, blockHash chainhash.Hash) *big.Int {
	buf := make([]byte, 0, chainhash.HashSize+4+chainhash.HashSize)
	buf = append(buf, id.Hash[:]...)
	buf = append(buf,
		byte(id.Index),
		byte(id.Index>>8),
		byte(id.Index>>16),
		byte(id.Index>>24),
	)
	buf = append(buf, blockHash[:]...)

	h := chainhash.DoubleHashH(buf)
	return blockchain.HashToBig(&h)
}
