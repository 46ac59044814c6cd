// Package indexnode defines the replicated state of one bonded service node
// and the three signed messages that carry it across the network.
//
// An indexnode is identified by the outpoint of its bonding collateral. Its
// Record holds everything peers know about it: service address, collateral
// and operator keys, the most recent Ping, the announcement signature and
// time, and the derived lifecycle State.
//
// Broadcast (announce) introduces or re-introduces a node and is signed with
// the collateral key. Ping proves liveness and is signed with the operator
// key. Verification is the transient challenge-response record used to prove
// that an advertised address is really controlled by the operator key.
//
// The lifecycle State of a Record is never set directly. It is recomputed by
// Evaluate from the record's fields and a CheckInputs snapshot of the chain
// and sync status.
package indexnode
