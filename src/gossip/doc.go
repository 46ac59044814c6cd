// Package gossip turns indexnode messages received from peers into registry
// operations, and registry outcomes back into messages.
//
// Messages form a closed set (Announce, PingMsg, ListRequest, Verify,
// Inventory, GetData, SyncStatus). A Handler dispatches every incoming
// message with one exhaustive switch, charges misbehaving peers through the
// Transport, relays what the registry asks to relay and answers requests.
// The Handler never holds the registry lock while it signs a message or
// talks to the network.
package gossip
