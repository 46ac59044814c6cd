// Package keys implements the public key cryptography used by indexnodes.
//
// Every indexnode is controlled by two key-pairs. The collateral key owns the
// bonded output on the chain and signs announcements. The operator key lives
// on the running node and signs pings and verification replies, so the
// collateral key can stay offline once a node has been announced.
//
// Signatures are compact (65 byte, key-recoverable) secp256k1 signatures over
// a double-SHA256 of a magic-prefixed message, as produced by SignMessage.
package keys
