package indexnode

// State is the derived lifecycle state of a Record.
type State int

const (
	// PreEnabled nodes are announced but have not pinged for a full
	// MinMnpSeconds after the announcement.
	PreEnabled State = iota
	// Enabled nodes are live and eligible for payment.
	Enabled
	// Expired nodes have not pinged within ExpirationSeconds.
	Expired
	// OutpointSpent nodes lost their collateral; they are removed on the next
	// sweep.
	OutpointSpent
	// UpdateRequired nodes speak an outdated protocol.
	UpdateRequired
	// WatchdogExpired nodes have not voted while the watchdog is active.
	WatchdogExpired
	// NewStartRequired nodes have been silent for too long to be revived by a
	// ping; they need a new announcement or a recovery.
	NewStartRequired
	// PoSeBan nodes reached the maximum ban score.
	PoSeBan
)

var states = []string{
	"PRE_ENABLED",
	"ENABLED",
	"EXPIRED",
	"OUTPOINT_SPENT",
	"UPDATE_REQUIRED",
	"WATCHDOG_EXPIRED",
	"NEW_START_REQUIRED",
	"POSE_BAN",
}

// String ...
func (s State) String() string {
	if s < 0 || int(s) >= len(states) {
		return "UNKNOWN"
	}
	return states[s]
}

// IsValidForAutoStart reports whether a node in state s can resume
// advertising with pings alone.
func (s State) IsValidForAutoStart() bool {
	switch s {
	case Enabled, PreEnabled, Expired, WatchdogExpired:
		return true
	}
	return false
}

// CheckInputs is everything outside a Record that its state depends on.
type CheckInputs struct {
	Now    int64
	Height int

	// Spent is the chain's answer for the record's collateral.
	Spent bool

	// RegistrySize is the number of known records; a banned node stays banned
	// for that many blocks.
	RegistrySize int

	// ListSynced is false while the initial list sync is running; records are
	// then given a grace period instead of being expired.
	ListSynced bool

	// WatchdogActive is true when the network is synced and watchdog votes
	// have been seen recently.
	WatchdogActive bool

	// Ours is true when the record carries this node's operator key.
	Ours bool

	Params *Params
}

// Evaluation is the outcome of Evaluate: the new state plus the ban
// bookkeeping that moves with it.
type Evaluation struct {
	State     State
	BanScore  int
	BanHeight int
}

// Evaluate computes the state of r from its fields and in. It does not modify
// r.
func Evaluate(r Record, in CheckInputs) Evaluation {
	ev := Evaluation{State: r.State, BanScore: r.BanScore, BanHeight: r.BanHeight}
	p := in.Params

	// once spent, stop doing the checks
	if r.State == OutpointSpent {
		return ev
	}
	if in.Spent {
		ev.State = OutpointSpent
		return ev
	}

	if r.State == PoSeBan {
		if in.Height < r.BanHeight {
			return ev
		}
		// the ban is served: give it one point back and run the usual checks
		ev.BanScore = clampBan(ev.BanScore - 1)
	} else if ev.BanScore >= BanMaxScore {
		ev.State = PoSeBan
		ev.BanHeight = in.Height + in.RegistrySize
		return ev
	}

	requireUpdate := r.ProtocolVersion < p.MinPaymentsProtocol ||
		(in.Ours && r.ProtocolVersion < p.ProtocolVersion)
	if requireUpdate {
		ev.State = UpdateRequired
		return ev
	}

	// keep old nodes on start, give them a chance to receive a ping
	waitForPing := !in.ListSynced && !r.IsPingedWithin(p.MinMnpSeconds, in.Now)

	if waitForPing && !in.Ours {
		// but if it was already expired before the initial check, stay there
		if r.State == Expired || r.State == WatchdogExpired || r.State == NewStartRequired {
			return ev
		}
	}

	if !waitForPing || in.Ours {
		if !r.IsPingedWithin(p.NewStartRequiredSeconds, in.Now) {
			ev.State = NewStartRequired
			return ev
		}

		watchdogExpired := in.WatchdogActive && in.Now-r.TimeLastWatchdogVote > WatchdogMaxSeconds
		if watchdogExpired {
			ev.State = WatchdogExpired
			return ev
		}

		if !r.IsPingedWithin(ExpirationSeconds, in.Now) {
			ev.State = Expired
			return ev
		}
	}

	if r.LastPing.SigTime-r.SigTime < p.MinMnpSeconds {
		ev.State = PreEnabled
		return ev
	}

	ev.State = Enabled
	return ev
}
