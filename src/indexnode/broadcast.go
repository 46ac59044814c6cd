package indexnode

import (
	"encoding/hex"
	"strconv"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
)

// Broadcast announces the public state of an indexnode. It is signed with the
// collateral key.
type Broadcast struct {
	Identity         Identity
	Addr             string
	PubKeyCollateral []byte
	PubKeyOperator   []byte
	Sig              []byte
	SigTime          int64
	ProtocolVersion  int32
	LastPing         Ping

	// Recovery marks a broadcast reprocessed after a recovery quorum agreed
	// that the node is alive. Not covered by the hash or the signature, and
	// never sent on the wire.
	Recovery bool `codec:"-" json:"-"`
}

// NewBroadcast builds the broadcast that re-announces an existing record.
func NewBroadcast(r Record) Broadcast {
	return Broadcast{
		Identity:         r.Identity,
		Addr:             r.Addr,
		PubKeyCollateral: copyBytes(r.PubKeyCollateral),
		PubKeyOperator:   copyBytes(r.PubKeyOperator),
		Sig:              copyBytes(r.Sig),
		SigTime:          r.SigTime,
		ProtocolVersion:  r.ProtocolVersion,
		LastPing:         r.LastPing.Copy(),
	}
}

// CreateBroadcast builds and signs a fresh announcement, together with its
// first ping, from the collateral and operator keys.
func CreateBroadcast(
	id Identity,
	addr string,
	collateral *btcec.PrivateKey,
	operator *btcec.PrivateKey,
	protocol int32,
	blockHash chainhash.Hash,
	now int64,
) (Broadcast, error) {
	ping := NewPing(id, blockHash, now)
	if err := ping.Sign(operator); err != nil {
		return Broadcast{}, err
	}

	b := Broadcast{
		Identity:         id,
		Addr:             addr,
		PubKeyCollateral: keys.PublicKeyBytes(collateral),
		PubKeyOperator:   keys.PublicKeyBytes(operator),
		SigTime:          now,
		ProtocolVersion:  protocol,
		LastPing:         ping,
	}
	if err := b.Sign(collateral); err != nil {
		return Broadcast{}, err
	}
	return b, nil
}

// Hash is derived from identity, collateral key and signing time so that two
// announcements of one node at different times are distinguishable.
func (b Broadcast) Hash() chainhash.Hash {
	var w hashWriter
	w.identity(b.Identity)
	w.varBytes(b.PubKeyCollateral)
	w.int64(b.SigTime)
	return w.sum()
}

// Message is the string signed by the collateral key.
func (b Broadcast) Message() string {
	return b.Addr +
		strconv.FormatInt(b.SigTime, 10) +
		hex.EncodeToString(b.PubKeyCollateral) +
		hex.EncodeToString(b.PubKeyOperator) +
		strconv.FormatInt(int64(b.ProtocolVersion), 10)
}

// Sign ...
func (b *Broadcast) Sign(collateral *btcec.PrivateKey) error {
	sig, err := keys.SignMessage(collateral, b.Message())
	if err != nil {
		return err
	}
	if err := keys.VerifyMessage(b.PubKeyCollateral, sig, b.Message()); err != nil {
		return err
	}
	b.Sig = sig
	return nil
}

// CheckSignature verifies the announcement against its own collateral key.
func (b Broadcast) CheckSignature() error {
	return keys.VerifyMessage(b.PubKeyCollateral, b.Sig, b.Message())
}

// Copy ...
func (b Broadcast) Copy() Broadcast {
	c := b
	c.PubKeyCollateral = copyBytes(b.PubKeyCollateral)
	c.PubKeyOperator = copyBytes(b.PubKeyOperator)
	c.Sig = copyBytes(b.Sig)
	c.LastPing = b.LastPing.Copy()
	return c
}
