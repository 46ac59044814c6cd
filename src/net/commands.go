package net

import (
	"github.com/mosaicnetworks/indexnode/src/gossip"
)

// HandshakeRequest is sent before the first gossip message to a peer. It
// carries the network and protocol version of the sender, and the address
// where it can be reached. Only the port of From is trusted: the receiving
// transport takes the host from the connection.
type HandshakeRequest struct {
	From     string
	Network  string
	Protocol int32
}

// HandshakeResponse indicates whether the responder accepts to gossip with
// the requester.
type HandshakeResponse struct {
	From     string
	Accepted bool
	Protocol int32
	Reason   string
}

// GossipRequest carries one gossip message. It is only served on a
// connection whose handshake was accepted; the sender is the peer bound by
// that handshake.
type GossipRequest struct {
	Envelope gossip.Envelope
}

// GossipResponse acknowledges a GossipRequest. Replies to the message itself
// travel as separate requests.
type GossipResponse struct {
	Success bool
}
