package peers

// Peer is a node we gossip with.
type Peer struct {
	NetAddr string
	Moniker string `json:",omitempty"`
}

// NewPeer ...
func NewPeer(netAddr, moniker string) *Peer {
	return &Peer{
		NetAddr: netAddr,
		Moniker: moniker,
	}
}

// String ...
func (p *Peer) String() string {
	if p.Moniker != "" {
		return p.Moniker + "@" + p.NetAddr
	}
	return p.NetAddr
}
