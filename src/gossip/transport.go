package gossip

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Transport is what the Handler needs from the peer-to-peer layer. Peers are
// identified by their network address.
type Transport interface {
	// PushTo sends m to a single peer.
	PushTo(peer string, m Message) error

	// Relay sends m to every connected peer except the one it came from.
	Relay(m Message, except string)

	// IsLocalAddress is true for peers on the local machine or network.
	IsLocalAddress(addr string) bool

	// Misbehaving charges peer with a misbehaviour score.
	Misbehaving(peer string, howmuch int)

	// AddAddress makes addr, learnt from source, a candidate connection.
	AddAddress(addr string, source string)
}

// Local is the view of the local active node used when answering
// verifications and when an announcement of our own comes back.
type Local interface {
	// Operator returns the identity, operator key and advertised address of
	// the active node. ok is false unless the node runs as an indexnode.
	Operator() (id indexnode.Identity, key *btcec.PrivateKey, addr string, ok bool)

	// OwnAnnounce is called when the network relays an announcement signed
	// with our operator key.
	OwnAnnounce(b indexnode.Broadcast)
}
