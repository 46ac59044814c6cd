package indexnode

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// Identity references the bonded collateral output of an indexnode. It is the
// primary key of the registry and never changes for the lifetime of a record.
type Identity wire.OutPoint

// NewIdentity ...
func NewIdentity(hash chainhash.Hash, index uint32) Identity {
	return Identity{Hash: hash, Index: index}
}

// ParseIdentity accepts "txid:index" or "txid-index".
func ParseIdentity(s string) (Identity, error) {
	sep := strings.LastIndexAny(s, ":-")
	if sep < 0 {
		return Identity{}, fmt.Errorf("identity %q: missing output index", s)
	}
	hash, err := chainhash.NewHashFromStr(s[:sep])
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: %v", s, err)
	}
	index, err := strconv.ParseUint(s[sep+1:], 10, 32)
	if err != nil {
		return Identity{}, fmt.Errorf("identity %q: %v", s, err)
	}
	return NewIdentity(*hash, uint32(index)), nil
}

// String returns the short form txid-index used in logs and signed messages.
func (id Identity) String() string {
	return fmt.Sprintf("%s-%d", id.Hash.String(), id.Index)
}

// IsZero is true for the empty identity, which list requests use as a
// wildcard.
func (id Identity) IsZero() bool {
	return id == Identity{}
}

// Less defines the total order used to break ties: transaction hash bytes
// first, then output index.
func (id Identity) Less(other Identity) bool {
	c := bytes.Compare(id.Hash[:], other.Hash[:])
	if c != 0 {
		return c < 0
	}
	return id.Index < other.Index
}

// OutPoint converts back to the chain type.
func (id Identity) OutPoint() wire.OutPoint {
	return wire.OutPoint(id)
}
