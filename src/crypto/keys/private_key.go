package keys

import (
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/btcsuite/btcd/btcec"
)

// Curve returns secp256k1, the curve of the chain's collateral keys.
func Curve() *btcec.KoblitzCurve {
	return btcec.S256()
}

// GenerateKey creates a new secp256k1 private key.
func GenerateKey() (*btcec.PrivateKey, error) {
	return btcec.NewPrivateKey(Curve())
}

// DumpPrivateKey exports a private key into a 32 byte binary dump.
func DumpPrivateKey(priv *btcec.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return priv.Serialize()
}

// ParsePrivateKey creates a private key from a 32 byte scalar in [1, N).
func ParsePrivateKey(d []byte) (*btcec.PrivateKey, error) {
	if 8*len(d) != Curve().Params().BitSize {
		return nil, fmt.Errorf("invalid length, need %d bits", Curve().Params().BitSize)
	}

	D := new(big.Int).SetBytes(d)
	if D.Sign() == 0 {
		return nil, fmt.Errorf("invalid private key, zero")
	}
	if D.Cmp(Curve().N) >= 0 {
		return nil, fmt.Errorf("invalid private key, >=N")
	}

	priv, _ := btcec.PrivKeyFromBytes(Curve(), d)
	return priv, nil
}

// PrivateKeyHex ...
func PrivateKeyHex(key *btcec.PrivateKey) string {
	return hex.EncodeToString(DumpPrivateKey(key))
}
