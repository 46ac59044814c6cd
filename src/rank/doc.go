// Package rank implements the deterministic orderings computed over the
// registry: per-block scores, ranks, and the selection of the next indexnode
// to be paid.
//
// Every function here is pure. Given the same records and the same block hash
// they return the same answer on every peer, which is what lets the network
// agree on payees and verification duties without talking about it.
package rank
