package registry

import "fmt"

// Outcome tells the caller of a gossip operation what happened and what to
// do next. The registry never sends anything itself.
type Outcome struct {
	// Accepted is true when the message changed the registry.
	Accepted bool

	// Duplicate is true for messages already seen or superseded by newer
	// state. They are dropped without penalty.
	Duplicate bool

	// Relay asks the caller to forward the message to its peers.
	Relay bool

	// Ours is set when an accepted announcement carries the operator key of
	// the local active node.
	Ours bool

	// AskEntry asks the caller to request the announcement of an unknown
	// identity from the sending peer.
	AskEntry bool

	// Reason is a human readable explanation of a rejection.
	Reason string

	// DoS is the misbehaviour score to charge the sending peer with.
	DoS int
}

// Rejected is true when the message was neither applied nor a duplicate.
func (o Outcome) Rejected() bool {
	return !o.Accepted && !o.Duplicate
}

func (o Outcome) String() string {
	switch {
	case o.Accepted:
		return "accepted"
	case o.Duplicate:
		return "duplicate"
	}
	return fmt.Sprintf("rejected: %s (dos %d)", o.Reason, o.DoS)
}

func reject(reason string, dos int) Outcome {
	return Outcome{Reason: reason, DoS: dos}
}

func stale(reason string) Outcome {
	return Outcome{Duplicate: true, Reason: reason}
}
