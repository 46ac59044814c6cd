// Package registry implements the replicated list of indexnodes every peer
// maintains from gossip.
//
// The Registry is the single source of truth for ranking, for the active node
// and for the maintenance scheduler. All of its state sits behind one mutex,
// and every operation that mutates it, or that reads several related fields,
// runs entirely under that mutex: "check then insert" is never split across
// two critical sections. Pending verification challenges are the exception;
// they have their own mutex because the scheduler and the Verify handler
// write them without touching anything else.
//
// Callers never receive pointers into the registry. Lookups return copies,
// and mutations go through named operations (ApplyAnnounce, ApplyPing,
// ApplyVerifyReply, CheckAndRemove...) that return an Outcome describing what
// the caller should do next: relay, penalise the peer, ask for an entry. The
// registry itself never touches the network.
package registry
