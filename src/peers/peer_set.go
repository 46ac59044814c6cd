package peers

import (
	"bytes"

	"github.com/ugorji/go/codec"
)

// PeerSet is an immutable set of Peers keyed by address. Modifications return
// a new PeerSet.
type PeerSet struct {
	Peers  []*Peer          `json:"peers"`
	ByAddr map[string]*Peer `json:"-"`
}

func jsonHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.Indent = 2
	return jh
}

// NewPeerSet keeps the first peer of every address, in order.
func NewPeerSet(peers []*Peer) *PeerSet {
	peerSet := &PeerSet{
		ByAddr: make(map[string]*Peer),
	}

	for _, peer := range peers {
		if _, ok := peerSet.ByAddr[peer.NetAddr]; ok {
			continue
		}
		peerSet.ByAddr[peer.NetAddr] = peer
		peerSet.Peers = append(peerSet.Peers, peer)
	}

	return peerSet
}

// UnmarshalPeerSet decodes a JSON list of peers.
func UnmarshalPeerSet(data []byte) (*PeerSet, error) {
	peers := []*Peer{}

	dec := codec.NewDecoderBytes(data, jsonHandle())
	if err := dec.Decode(&peers); err != nil {
		return nil, err
	}

	return NewPeerSet(peers), nil
}

// WithNewPeer returns a new PeerSet including peer. A known address leaves the
// set unchanged.
func (peerSet *PeerSet) WithNewPeer(peer *Peer) *PeerSet {
	peers := append([]*Peer{}, peerSet.Peers...)
	return NewPeerSet(append(peers, peer))
}

// WithRemovedPeer returns a new PeerSet without the peer at addr.
func (peerSet *PeerSet) WithRemovedPeer(addr string) *PeerSet {
	peers := make([]*Peer, 0, len(peerSet.Peers))
	for _, p := range peerSet.Peers {
		if p.NetAddr != addr {
			peers = append(peers, p)
		}
	}
	return NewPeerSet(peers)
}

// Addrs returns the addresses of the set, in order.
func (peerSet *PeerSet) Addrs() []string {
	res := []string{}

	for _, peer := range peerSet.Peers {
		res = append(res, peer.NetAddr)
	}

	return res
}

// Len returns the number of Peers in the PeerSet
func (peerSet *PeerSet) Len() int {
	return len(peerSet.Peers)
}

// Contains ...
func (peerSet *PeerSet) Contains(addr string) bool {
	_, ok := peerSet.ByAddr[addr]
	return ok
}

// Marshal encodes the peers as a JSON list.
func (peerSet *PeerSet) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, jsonHandle())
	if err := enc.Encode(peerSet.Peers); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
