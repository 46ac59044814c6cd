package node

import (
	"fmt"

	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// ActiveState is the lifecycle state of the local indexnode.
type ActiveState int

const (
	// Initial is the state of a node that was not activated yet.
	Initial ActiveState = iota
	// SyncInProcess waits for the blockchain to catch up.
	SyncInProcess
	// InputTooNew waits for the collateral to mature.
	InputTooNew
	// NotCapable is set with a reason whenever the node cannot run.
	NotCapable
	// Started nodes are announced and ping periodically.
	Started
)

// String ...
func (s ActiveState) String() string {
	switch s {
	case Initial:
		return "INITIAL"
	case SyncInProcess:
		return "SYNC_IN_PROCESS"
	case InputTooNew:
		return "INPUT_TOO_NEW"
	case NotCapable:
		return "NOT_CAPABLE"
	case Started:
		return "STARTED"
	default:
		return "UNKNOWN"
	}
}

// Mode tells who owns the collateral of the local indexnode.
type Mode int

const (
	// ModeUnknown until the initial checks passed.
	ModeUnknown Mode = iota
	// ModeRemote nodes only advertise a broadcast signed elsewhere.
	ModeRemote
	// ModeLocal nodes own the collateral and sign their own broadcast.
	ModeLocal
)

// String ...
func (m Mode) String() string {
	switch m {
	case ModeRemote:
		return "REMOTE"
	case ModeLocal:
		return "LOCAL"
	default:
		return "UNKNOWN"
	}
}

// Reasons reported with NotCapable.
const (
	ReasonNotListening   = "Indexnode must accept connections from outside. Make sure listen configuration option is not overwritten by some another parameter."
	ReasonNoConnections  = "Can't detect valid external address. Will retry when there are some connections available."
	ReasonNoExternalAddr = "Can't detect valid external address. Please consider using the externalip configuration option if problem persists. Make sure to use IPv4 address only."
	ReasonNotInList      = "Indexnode not in indexnode list"
	ReasonBadProtocol    = "Invalid protocol version"
	ReasonAddrMismatch   = "Broadcasted IP doesn't match our external address. Make sure you issued a new broadcast if IP of this indexnode changed recently."
)

// Active is the state of the local indexnode. The zero value is a node that
// was just started.
type Active struct {
	State  ActiveState
	Mode   Mode
	Reason string

	// Identity and Addr are known once Started.
	Identity indexnode.Identity
	Addr     string

	PingerEnabled bool
}

// Status is the human readable description of the state.
func (a Active) Status(params *indexnode.Params) string {
	switch a.State {
	case Initial:
		return "Node just started, not yet activated"
	case SyncInProcess:
		return "Sync in progress. Must wait until sync is complete to start Indexnode"
	case InputTooNew:
		return fmt.Sprintf("Indexnode input must have at least %d confirmations", params.MinConfirmations)
	case NotCapable:
		return "Not capable indexnode: " + a.Reason
	case Started:
		return "Indexnode successfully started"
	default:
		return "Unknown"
	}
}

// WalletView is what the transition needs to know about the wallet.
type WalletView struct {
	Available bool
	Locked    bool
	Balance   int64

	// Collateral is an owned bonding output, if HasCollateral.
	Collateral    indexnode.Identity
	HasCollateral bool

	// InputAge is the number of confirmations of Collateral.
	InputAge int
}

// Inputs is everything Transition depends on. The caller gathers it before
// each evaluation.
type Inputs struct {
	Now    int64
	Params *indexnode.Params

	BlockchainSynced bool

	// Listen is false when inbound connections are disabled.
	Listen bool

	// ExternalAddr is the configured or learnt address of this node.
	ExternalAddr string

	// HasPeers is true while at least one peer connection is live.
	HasPeers bool

	Wallet WalletView

	// Own is the registry entry signed with our operator key, checked just
	// before the evaluation.
	Own indexnode.Info
}

// Effect is an action requested by Transition. Effects are applied by the
// caller, outside of any registry lock.
type Effect interface {
	effect()
}

// LockCollateral protects the bonding output from coin selection.
type LockCollateral struct {
	Identity indexnode.Identity
}

// CreateBroadcast asks for a fresh announcement of Identity at Addr, signed
// with the collateral and operator keys, to be applied and relayed.
type CreateBroadcast struct {
	Identity indexnode.Identity
	Addr     string
}

// SendPing asks for a fresh signed ping of Identity to be recorded and
// relayed.
type SendPing struct {
	Identity indexnode.Identity
}

func (LockCollateral) effect()  {}
func (CreateBroadcast) effect() {}
func (SendPing) effect()        {}

// Transition evaluates the state of the local indexnode. It has no side
// effects: whatever must happen outside is returned as Effects.
func Transition(a Active, in Inputs) (Active, []Effect) {
	if !in.Params.IsRegTest() && !in.BlockchainSynced {
		a.State = SyncInProcess
		return a, nil
	}
	if a.State == SyncInProcess {
		a.State = Initial
	}

	if a.Mode == ModeUnknown {
		a = initial(a, in)
	}

	var effects []Effect
	switch a.Mode {
	case ModeRemote:
		a = remote(a, in)
	case ModeLocal:
		// a node that was started before resumes without a new broadcast
		a = remote(a, in)
		if a.State != Started {
			a, effects = local(a, in)
			if len(effects) > 0 {
				// the new broadcast carries a fresh ping
				return a, effects
			}
		}
	}

	return ping(a, in, effects)
}

// Failed records the failure of a CreateBroadcast effect.
func Failed(a Active, err error) Active {
	a.State = NotCapable
	a.Reason = "Error creating indexnode broadcast: " + err.Error()
	a.PingerEnabled = false
	return a
}

func notCapable(a Active, reason string) Active {
	a.State = NotCapable
	a.Reason = reason
	return a
}

func initial(a Active, in Inputs) Active {
	if !in.Listen {
		return notCapable(a, ReasonNotListening)
	}

	if !isExternalAddr(in.ExternalAddr, in.Params) {
		if !in.HasPeers {
			return notCapable(a, ReasonNoConnections)
		}
		return notCapable(a, ReasonNoExternalAddr)
	}

	_, port, _ := indexnode.SplitAddr(in.ExternalAddr)
	if !indexnode.CheckPort(in.ExternalAddr, in.Params) {
		if in.Params.IsMain() {
			return notCapable(a, fmt.Sprintf("Invalid port: %d - only %d is supported on mainnet.",
				port, in.Params.MainDefaultPort))
		}
		return notCapable(a, fmt.Sprintf("Invalid port: %d - %d is only supported on mainnet.",
			port, in.Params.MainDefaultPort))
	}

	a.Addr = in.ExternalAddr
	a.Mode = ModeRemote

	w := in.Wallet
	if !w.Available || w.Locked || w.Balance < indexnode.CoinRequired*indexnode.Coin {
		return a
	}
	if w.HasCollateral {
		a.Mode = ModeLocal
	}
	return a
}

func isExternalAddr(addr string, params *indexnode.Params) bool {
	ip, _, ok := indexnode.SplitAddr(addr)
	if !ok || ip.To4() == nil {
		return false
	}
	return indexnode.IsValidNetAddr(addr, params)
}

func remote(a Active, in Inputs) Active {
	own := in.Own
	if !own.InfoValid {
		return notCapable(a, ReasonNotInList)
	}
	if own.ProtocolVersion < in.Params.MinPaymentsProtocol ||
		own.ProtocolVersion > in.Params.ProtocolVersion {
		return notCapable(a, ReasonBadProtocol)
	}
	if own.Addr != a.Addr {
		return notCapable(a, ReasonAddrMismatch)
	}
	if !own.State.IsValidForAutoStart() {
		return notCapable(a, fmt.Sprintf("Indexnode in %s state", own.State))
	}
	if a.State != Started {
		a.Identity = own.Identity
		a.Addr = own.Addr
		a.PingerEnabled = true
		a.State = Started
		a.Reason = ""
	}
	return a
}

func local(a Active, in Inputs) (Active, []Effect) {
	w := in.Wallet
	if !w.HasCollateral {
		return a, nil
	}
	if w.InputAge < in.Params.MinConfirmations {
		a.State = InputTooNew
		a.Reason = fmt.Sprintf("%s - %d confirmations", a.Status(in.Params), w.InputAge)
		return a, nil
	}

	a.Identity = w.Collateral
	a.PingerEnabled = true
	a.State = Started
	a.Reason = ""
	return a, []Effect{
		LockCollateral{Identity: w.Collateral},
		CreateBroadcast{Identity: w.Collateral, Addr: a.Addr},
	}
}

func ping(a Active, in Inputs, effects []Effect) (Active, []Effect) {
	if !a.PingerEnabled {
		return a, effects
	}
	if !in.Own.InfoValid || in.Own.Identity != a.Identity {
		return notCapable(a, ReasonNotInList), effects
	}
	if in.Own.TimeLastPing != 0 && in.Now-in.Own.TimeLastPing < in.Params.MinMnpSeconds {
		// too early
		return a, effects
	}
	return a, append(effects, SendPing{Identity: a.Identity})
}
