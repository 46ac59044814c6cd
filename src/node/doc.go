// Package node runs an indexnode: the gossip loop, the periodic maintenance of
// the registry and, when an operator key is configured, the lifecycle of the
// local indexnode.
//
// Active indexnode
//
// The local indexnode goes through the states INITIAL, SYNC_IN_PROCESS,
// INPUT_TOO_NEW, NOT_CAPABLE and STARTED. Each evaluation is a call to the
// pure Transition function, which takes the previous state and a snapshot of
// its inputs (chain sync, external address, wallet, our own registry entry)
// and returns the next state together with the effects the node must apply:
// locking the collateral, signing and relaying a fresh announcement, or
// signing and relaying a ping.
//
// A node either runs in remote mode, where the announcement is signed by
// whoever owns the collateral and the node only pings, or in local mode,
// where the wallet owns the collateral and the node announces itself. A
// started node always tries to resume from its registry entry first, so
// that a restart does not require a new announcement.
//
// Maintenance
//
// Every tick advances the list sync, evaluates the local indexnode, sweeps
// the registry (spent collateral, recoveries, expired bookkeeping), asks
// peers for the announcements being recovered, and sends the verification
// challenges scheduled by OnBlockTip. Ticks are randomised and may be
// delayed under load; nothing depends on their exact timing.
package node
