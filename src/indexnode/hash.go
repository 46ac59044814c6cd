package indexnode

import (
	"bytes"
	"encoding/binary"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// hashWriter accumulates the fields that identify a message and hashes them
// with double SHA-256. Signatures are never written into it, so re-signed
// copies of a message share one hash.
type hashWriter struct {
	buf bytes.Buffer
}

func (w *hashWriter) identity(id Identity) {
	w.buf.Write(id.Hash[:])
	binary.Write(&w.buf, binary.LittleEndian, id.Index)
}

func (w *hashWriter) int64(v int64) {
	binary.Write(&w.buf, binary.LittleEndian, v)
}

func (w *hashWriter) varBytes(b []byte) {
	wire.WriteVarBytes(&w.buf, 0, b)
}

func (w *hashWriter) varString(s string) {
	wire.WriteVarString(&w.buf, 0, s)
}

func (w *hashWriter) sum() chainhash.Hash {
	return chainhash.DoubleHashH(w.buf.Bytes())
}
