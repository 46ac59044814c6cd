package gossip

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// Envelope is the transport representation of a Message: its kind and its
// canonical JSON encoding.
type Envelope struct {
	Kind    Kind
	Payload []byte
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

// Wrap encodes m into an Envelope.
func Wrap(m Message) (Envelope, error) {
	var b bytes.Buffer
	enc := codec.NewEncoder(&b, jsonHandle())
	if err := enc.Encode(m); err != nil {
		return Envelope{}, err
	}
	return Envelope{Kind: m.Kind(), Payload: b.Bytes()}, nil
}

// Unwrap decodes the message carried by e. Unknown kinds are rejected.
func Unwrap(e Envelope) (Message, error) {
	m, err := newMessage(e.Kind)
	if err != nil {
		return nil, err
	}
	dec := codec.NewDecoderBytes(e.Payload, jsonHandle())
	if err := dec.Decode(m); err != nil {
		return nil, err
	}
	return m, nil
}
