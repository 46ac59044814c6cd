package keys

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// MessageMagic prefixes every signed message so that a signature over an
// indexnode message can never be replayed as a transaction signature.
const MessageMagic = "Indexnode Signed Message:\n"

var (
	// ErrBadSignature is returned when a signature cannot be parsed or the
	// recovered key does not match.
	ErrBadSignature = errors.New("signature does not verify")
)

// MessageHash returns the double-SHA256 of the magic and the message, both
// length-prefixed the way the chain's message signing does it.
func MessageHash(message string) []byte {
	var buf bytes.Buffer
	wire.WriteVarString(&buf, 0, MessageMagic)
	wire.WriteVarString(&buf, 0, message)
	return chainhash.DoubleHashB(buf.Bytes())
}

// SignMessage produces a 65 byte compact signature of message. The public key
// can be recovered from the signature alone.
func SignMessage(priv *btcec.PrivateKey, message string) ([]byte, error) {
	if priv == nil {
		return nil, errors.New("no private key")
	}
	return btcec.SignCompact(Curve(), priv, MessageHash(message), true)
}

// VerifyMessage checks that sig is a signature of message by the owner of
// pub.
func VerifyMessage(pub []byte, sig []byte, message string) error {
	if len(sig) == 0 {
		return fmt.Errorf("%w: empty signature", ErrBadSignature)
	}
	recovered, _, err := btcec.RecoverCompact(Curve(), sig, MessageHash(message))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if !SamePublicKey(FromPublicKey(recovered), pub) {
		return fmt.Errorf("%w: key mismatch", ErrBadSignature)
	}
	return nil
}
