// Package net implements the transports used by indexnodes to exchange gossip
// messages, and the Gossiper that connects a gossip Handler to a transport.
//
// A Transport carries two requests: a HandshakeRequest, sent once before
// gossiping with a peer, and a GossipRequest wrapping one gossip envelope.
// Gossip is refused until a handshake is accepted. The sender of a request is
// set by the transport: the host a request came from cannot be claimed by
// the request itself.
// Two implementations are provided:
//
// - InmemTransport: routes requests between transports of the same process.
// Used in tests.
//
// - NetworkTransport: TCP. Every frame starts with the magic bytes of the
// network, and a frame with other magic bytes closes the connection. Idle
// outbound connections are pooled per peer.
//
// The address a NetworkTransport advertises is the one indexnodes announce
// and the one other nodes challenge during verification. When the bind
// address is not reachable by other nodes, an external address must be
// configured.
//
// Gossiper
//
// The Gossiper keeps the set of connected peers and their misbehaviour
// scores. Every peer gets its own writer actor so that a slow peer never
// delays messages to the others, and messages to one peer keep their order.
// A peer whose score reaches BanScore is dropped and banned for BanSeconds.
package net
