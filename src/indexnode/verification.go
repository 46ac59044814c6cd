package indexnode

import (
	"strconv"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Verification is the challenge-response record proving that Addr is
// controlled by the operator key of Identity1. Identity2 is the verifier.
// The phase is given by which signatures are present.
type Verification struct {
	Identity1   Identity
	Identity2   Identity
	Addr        string
	Nonce       int
	BlockHeight int
	Sig1        []byte
	Sig2        []byte
}

// NewVerification creates an unsigned challenge.
func NewVerification(addr string, nonce int, height int) Verification {
	return Verification{
		Addr:        addr,
		Nonce:       nonce,
		BlockHeight: height,
	}
}

// Hash ...
func (v Verification) Hash() chainhash.Hash {
	var w hashWriter
	w.identity(v.Identity1)
	w.identity(v.Identity2)
	w.varString(v.Addr)
	w.int64(int64(v.Nonce))
	w.int64(int64(v.BlockHeight))
	return w.sum()
}

// ReplyMessage is what the challenged node signs: its address, the nonce and
// the hash of the referenced block.
func (v Verification) ReplyMessage(blockHash chainhash.Hash) string {
	return v.Addr + strconv.Itoa(v.Nonce) + blockHash.String()
}

// BroadcastMessage is what the verifier counter-signs; it additionally binds
// both identities.
func (v Verification) BroadcastMessage(blockHash chainhash.Hash) string {
	return v.ReplyMessage(blockHash) + v.Identity1.String() + v.Identity2.String()
}

// Copy ...
func (v Verification) Copy() Verification {
	c := v
	c.Sig1 = copyBytes(v.Sig1)
	c.Sig2 = copyBytes(v.Sig2)
	return c
}
