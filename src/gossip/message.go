package gossip

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Kind identifies a message variant on the wire.
type Kind uint8

const (
	KindAnnounce Kind = iota + 1
	KindPing
	KindListRequest
	KindVerify
	KindInventory
	KindGetData
	KindSyncStatus
)

// String ...
func (k Kind) String() string {
	switch k {
	case KindAnnounce:
		return "mnb"
	case KindPing:
		return "mnp"
	case KindListRequest:
		return "dseg"
	case KindVerify:
		return "mnv"
	case KindInventory:
		return "inv"
	case KindGetData:
		return "getdata"
	case KindSyncStatus:
		return "ssc"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Message is one of the gossip messages defined in this package.
type Message interface {
	Kind() Kind
	message()
}

// Announce carries a signed announcement.
type Announce struct {
	Broadcast indexnode.Broadcast
}

// PingMsg carries a liveness ping.
type PingMsg struct {
	Ping indexnode.Ping
}

// ListRequest asks for the whole list when Identity is zero, or for a single
// entry.
type ListRequest struct {
	Identity indexnode.Identity
}

// Verify carries a verification in any of its three phases.
type Verify struct {
	Verification indexnode.Verification
}

// Inventory advertises announcements and pings by hash.
type Inventory struct {
	Announces []chainhash.Hash
	Pings     []chainhash.Hash
}

// GetData requests the announcements and pings advertised by an Inventory.
type GetData struct {
	Announces []chainhash.Hash
	Pings     []chainhash.Hash
}

// SyncStatus reports how many entries a list reply contained.
type SyncStatus struct {
	Count int
}

func (*Announce) Kind() Kind    { return KindAnnounce }
func (*PingMsg) Kind() Kind     { return KindPing }
func (*ListRequest) Kind() Kind { return KindListRequest }
func (*Verify) Kind() Kind      { return KindVerify }
func (*Inventory) Kind() Kind   { return KindInventory }
func (*GetData) Kind() Kind     { return KindGetData }
func (*SyncStatus) Kind() Kind  { return KindSyncStatus }

func (*Announce) message()    {}
func (*PingMsg) message()     {}
func (*ListRequest) message() {}
func (*Verify) message()      {}
func (*Inventory) message()   {}
func (*GetData) message()     {}
func (*SyncStatus) message()  {}

// newMessage returns an empty message of kind k.
func newMessage(k Kind) (Message, error) {
	switch k {
	case KindAnnounce:
		return &Announce{}, nil
	case KindPing:
		return &PingMsg{}, nil
	case KindListRequest:
		return &ListRequest{}, nil
	case KindVerify:
		return &Verify{}, nil
	case KindInventory:
		return &Inventory{}, nil
	case KindGetData:
		return &GetData{}, nil
	case KindSyncStatus:
		return &SyncStatus{}, nil
	}
	return nil, fmt.Errorf("unknown message kind %d", uint8(k))
}
