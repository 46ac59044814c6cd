package node

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Validator holds the operator key of the local indexnode. Pings, verification
// replies and the announcements built in local mode are signed with it.
type Validator struct {
	Key     *btcec.PrivateKey
	Moniker string

	pub []byte
}

// NewValidator ...
func NewValidator(key *btcec.PrivateKey, moniker string) *Validator {
	return &Validator{
		Key:     key,
		Moniker: moniker,
		pub:     keys.PublicKeyBytes(key),
	}
}

// PublicKeyBytes returns the compressed operator public key.
func (v *Validator) PublicKeyBytes() []byte {
	return v.pub
}

// SignPing signs a ping of the local indexnode.
func (v *Validator) SignPing(p *indexnode.Ping) error {
	return p.Sign(v.Key)
}
