package keys

import (
	"bytes"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/indexnode/src/common"
)

// FromPublicKey returns the 33 byte compressed form of a public key. This is
// the form carried in announcements and stored in registry records.
func FromPublicKey(pub *btcec.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return pub.SerializeCompressed()
}

// ToPublicKey parses a compressed or uncompressed public key.
func ToPublicKey(pub []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pub, Curve())
}

// PublicKeyBytes is FromPublicKey applied to the public half of priv.
func PublicKeyBytes(priv *btcec.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return FromPublicKey(priv.PubKey())
}

// SamePublicKey compares two serialized public keys. Keys that fail to parse
// never match.
func SamePublicKey(a, b []byte) bool {
	if bytes.Equal(a, b) {
		return len(a) > 0
	}
	pa, err := ToPublicKey(a)
	if err != nil {
		return false
	}
	pb, err := ToPublicKey(b)
	if err != nil {
		return false
	}
	return pa.IsEqual(pb)
}

// PublicKeyHex returns the hexadecimal representation of the compressed form
// of the public key
func PublicKeyHex(pub []byte) string {
	return common.EncodeToString(pub)
}
