package indexnode

import (
	"fmt"
)

// Record is the registry's view of one indexnode.
type Record struct {
	Identity         Identity
	Addr             string
	PubKeyCollateral []byte
	PubKeyOperator   []byte
	LastPing         Ping
	Sig              []byte
	SigTime          int64
	ProtocolVersion  int32
	State            State

	// CollateralBlock caches the height of the block that confirmed the
	// collateral. Zero means unknown.
	CollateralBlock int

	BlockLastPaid int
	TimeLastPaid  int64

	BanScore  int
	BanHeight int

	TimeLastWatchdogVote int64
	TimeLastChecked      int64
}

// NewRecord creates the record described by an accepted announcement.
func NewRecord(b Broadcast) Record {
	return Record{
		Identity:             b.Identity,
		Addr:                 b.Addr,
		PubKeyCollateral:     copyBytes(b.PubKeyCollateral),
		PubKeyOperator:       copyBytes(b.PubKeyOperator),
		LastPing:             b.LastPing.Copy(),
		Sig:                  copyBytes(b.Sig),
		SigTime:              b.SigTime,
		ProtocolVersion:      b.ProtocolVersion,
		State:                Enabled,
		TimeLastWatchdogVote: b.SigTime,
	}
}

// Copy returns a deep copy; callers outside the registry only ever see copies.
func (r Record) Copy() Record {
	c := r
	c.PubKeyCollateral = copyBytes(r.PubKeyCollateral)
	c.PubKeyOperator = copyBytes(r.PubKeyOperator)
	c.Sig = copyBytes(r.Sig)
	c.LastPing = r.LastPing.Copy()
	return c
}

// Check re-evaluates the state unless it was evaluated less than CheckSeconds
// ago. It returns true when the state changed.
func (r *Record) Check(in CheckInputs, force bool) bool {
	if !force && in.Now-r.TimeLastChecked < CheckSeconds {
		return false
	}
	r.TimeLastChecked = in.Now

	prev := r.State
	ev := Evaluate(*r, in)
	r.State = ev.State
	r.BanScore = ev.BanScore
	r.BanHeight = ev.BanHeight
	return prev != r.State
}

// UpdateFromBroadcast replaces the announced fields with those of a newer
// broadcast. Identity and collateral key are never touched. It returns false
// if b is not newer and not a recovery.
func (r *Record) UpdateFromBroadcast(b Broadcast) bool {
	if b.SigTime <= r.SigTime && !b.Recovery {
		return false
	}
	r.PubKeyOperator = copyBytes(b.PubKeyOperator)
	r.SigTime = b.SigTime
	r.Sig = copyBytes(b.Sig)
	r.ProtocolVersion = b.ProtocolVersion
	r.Addr = b.Addr
	r.BanScore = 0
	r.BanHeight = 0
	r.TimeLastChecked = 0
	return true
}

// IsPingedWithin reports whether the last ping is less than seconds older
// than at.
func (r Record) IsPingedWithin(seconds int64, at int64) bool {
	if r.LastPing.IsZero() {
		return false
	}
	return at-r.LastPing.SigTime < seconds
}

// IsEnabled ...
func (r Record) IsEnabled() bool { return r.State == Enabled }

// IsPreEnabled ...
func (r Record) IsPreEnabled() bool { return r.State == PreEnabled }

// IsPoSeBanned ...
func (r Record) IsPoSeBanned() bool { return r.State == PoSeBan }

// IsPoSeVerified is true once the ban score reached its lower bound.
func (r Record) IsPoSeVerified() bool { return r.BanScore <= -BanMaxScore }

// IsOutpointSpent ...
func (r Record) IsOutpointSpent() bool { return r.State == OutpointSpent }

// IsUpdateRequired ...
func (r Record) IsUpdateRequired() bool { return r.State == UpdateRequired }

// IsNewStartRequired ...
func (r Record) IsNewStartRequired() bool { return r.State == NewStartRequired }

// IsValidForPayment ...
func (r Record) IsValidForPayment() bool {
	return r.State == Enabled
}

// IncreaseBanScore raises the ban score by one, up to BanMaxScore.
func (r *Record) IncreaseBanScore() {
	r.BanScore = clampBan(r.BanScore + 1)
}

// DecreaseBanScore lowers the ban score by one, down to -BanMaxScore.
func (r *Record) DecreaseBanScore() {
	r.BanScore = clampBan(r.BanScore - 1)
}

// CollateralAge is the number of blocks since the collateral was confirmed,
// or -1 when the confirmation height is not known yet.
func (r Record) CollateralAge(height int) int {
	if r.CollateralBlock <= 0 {
		return -1
	}
	return height - r.CollateralBlock
}

// PayeeScript ...
func (r Record) PayeeScript() []byte {
	return PayeeScript(r.PubKeyCollateral)
}

// Info returns the public fields of the record.
func (r Record) Info() Info {
	return Info{
		InfoValid:            true,
		Identity:             r.Identity,
		Addr:                 r.Addr,
		PubKeyCollateral:     copyBytes(r.PubKeyCollateral),
		PubKeyOperator:       copyBytes(r.PubKeyOperator),
		SigTime:              r.SigTime,
		TimeLastChecked:      r.TimeLastChecked,
		TimeLastPaid:         r.TimeLastPaid,
		TimeLastWatchdogVote: r.TimeLastWatchdogVote,
		TimeLastPing:         r.LastPing.SigTime,
		State:                r.State,
		ProtocolVersion:      r.ProtocolVersion,
	}
}

func (r Record) String() string {
	return fmt.Sprintf("%s %s %s ban=%d", r.Identity, r.Addr, r.State, r.BanScore)
}

// Info is the read-only view of a record handed to other subsystems.
// InfoValid is false for the zero value returned on lookup misses.
type Info struct {
	InfoValid            bool
	Identity             Identity
	Addr                 string
	PubKeyCollateral     []byte
	PubKeyOperator       []byte
	SigTime              int64
	TimeLastChecked      int64
	TimeLastPaid         int64
	TimeLastWatchdogVote int64
	TimeLastPing         int64
	State                State
	ProtocolVersion      int32
}

func clampBan(score int) int {
	if score > BanMaxScore {
		return BanMaxScore
	}
	if score < -BanMaxScore {
		return -BanMaxScore
	}
	return score
}

func copyBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
