// Package peers defines the network peers an indexnode gossips with and
// implements functions to manage collections of peers.
//
// A peer is identified by the network address it listens on, and optionaly a
// moniker which is a non-unique user-friendly name. Peers are not indexnodes:
// any node relaying the indexnode list is a peer, whether or not it operates
// an indexnode itself.
//
// Upon starting up, a node looks for a peers.json file in its data directory.
// It lists the peers the node should connect to first. Peers learnt later,
// from the addresses of announced indexnodes, are added to the running
// PeerSet, and written back to peers.json on shutdown.
package peers
