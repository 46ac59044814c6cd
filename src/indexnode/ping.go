package indexnode

import (
	"bytes"
	"fmt"
	"strconv"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
)

// Ping is a liveness proof signed with the operator key. BlockHash anchors it
// to a recent block so that old pings cannot be replayed.
type Ping struct {
	Identity  Identity
	BlockHash chainhash.Hash
	SigTime   int64
	Sig       []byte
}

// NewPing creates an unsigned ping.
func NewPing(id Identity, blockHash chainhash.Hash, now int64) Ping {
	return Ping{
		Identity:  id,
		BlockHash: blockHash,
		SigTime:   now,
	}
}

// Hash is derived from the identity and the signing time only, so re-signed
// duplicates collapse to one hash.
func (p Ping) Hash() chainhash.Hash {
	var w hashWriter
	w.identity(p.Identity)
	w.int64(p.SigTime)
	return w.sum()
}

// Message is the string signed by the operator key.
func (p Ping) Message() string {
	return p.Identity.String() + p.BlockHash.String() + strconv.FormatInt(p.SigTime, 10)
}

// Sign signs the ping with the operator key.
func (p *Ping) Sign(operator *btcec.PrivateKey) error {
	sig, err := keys.SignMessage(operator, p.Message())
	if err != nil {
		return err
	}
	if err := keys.VerifyMessage(keys.PublicKeyBytes(operator), sig, p.Message()); err != nil {
		return err
	}
	p.Sig = sig
	return nil
}

// CheckSignature verifies the ping against the record's operator key.
func (p Ping) CheckSignature(pubKeyOperator []byte) error {
	return keys.VerifyMessage(pubKeyOperator, p.Sig, p.Message())
}

// IsZero is true for the empty ping of a record that never pinged.
func (p Ping) IsZero() bool {
	return p.Identity.IsZero() && p.SigTime == 0 && len(p.Sig) == 0
}

// IsExpired ...
func (p Ping) IsExpired(now int64, params *Params) bool {
	return now-p.SigTime > params.NewStartRequiredSeconds
}

// Equal ...
func (p Ping) Equal(o Ping) bool {
	return p.Identity == o.Identity &&
		p.BlockHash == o.BlockHash &&
		p.SigTime == o.SigTime &&
		bytes.Equal(p.Sig, o.Sig)
}

// Copy ...
func (p Ping) Copy() Ping {
	c := p
	c.Sig = copyBytes(p.Sig)
	return c
}

func (p Ping) String() string {
	return fmt.Sprintf("ping %s at %d", p.Identity, p.SigTime)
}
