package net

import (
	"errors"
	"fmt"
	"time"

	"github.com/Arceliar/phony"
	"github.com/mosaicnetworks/indexnode/src/gossip"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/peers"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

const (
	// BanScore is the misbehaviour score at which a peer is dropped.
	BanScore = 100

	// BanSeconds is how long a dropped peer stays banned.
	BanSeconds = 24 * 60 * 60

	// DefaultMaxPeers bounds the relay set.
	DefaultMaxPeers = 32

	maxSendFailures = 3
)

var errBanned = errors.New("peer is banned")

// Handler processes the gossip messages received by a Gossiper.
type Handler interface {
	Handle(peer string, m gossip.Message) registry.Outcome
}

// GossiperConfig ...
type GossiperConfig struct {
	Transport Transport
	Params    *indexnode.Params

	// Peers are the initial relay set, typically read from peers.json.
	Peers *peers.PeerSet

	// MaxPeers defaults to DefaultMaxPeers.
	MaxPeers int

	// Now defaults to time.Now.
	Now func() time.Time

	Logger *logrus.Entry
}

// Gossiper implements gossip.Transport on top of a Transport. It owns the
// relay set and the misbehaviour scores of peers; both are only touched from
// within the actor.
type Gossiper struct {
	phony.Inbox

	trans    Transport
	params   *indexnode.Params
	maxPeers int
	now      func() time.Time
	logger   *logrus.Entry

	peers   *peers.PeerSet
	writers map[string]*peerWriter
	scores  map[string]int
	banned  map[string]time.Time
}

// NewGossiper ...
func NewGossiper(conf GossiperConfig) *Gossiper {
	g := &Gossiper{
		trans:    conf.Transport,
		params:   conf.Params,
		maxPeers: conf.MaxPeers,
		now:      conf.Now,
		logger:   conf.Logger,
		peers:    conf.Peers,
		writers:  make(map[string]*peerWriter),
		scores:   make(map[string]int),
		banned:   make(map[string]time.Time),
	}
	if g.maxPeers <= 0 {
		g.maxPeers = DefaultMaxPeers
	}
	if g.now == nil {
		g.now = time.Now
	}
	if g.logger == nil {
		g.logger = logrus.New().WithField("prefix", "net")
	}
	if g.peers == nil {
		g.peers = peers.NewPeerSet(nil)
	}
	// never relay to ourselves
	g.peers = g.peers.WithRemovedPeer(g.trans.AdvertiseAddr())
	return g
}

// Run consumes the RPCs received by the transport and hands gossip messages
// to h until shutdownCh is closed.
func (g *Gossiper) Run(h Handler, shutdownCh <-chan struct{}) {
	consumer := g.trans.Consumer()
	for {
		select {
		case rpc := <-consumer:
			g.processRPC(h, rpc)
		case <-shutdownCh:
			return
		}
	}
}

func (g *Gossiper) processRPC(h Handler, rpc RPC) {
	switch cmd := rpc.Command.(type) {
	case *HandshakeRequest:
		rpc.Respond(g.processHandshake(rpc.From, cmd), nil)
	case *GossipRequest:
		if g.IsBanned(rpc.From) {
			rpc.Respond(&GossipResponse{}, errBanned)
			return
		}
		m, err := gossip.Unwrap(cmd.Envelope)
		if err != nil {
			g.logger.WithError(err).WithField("peer", rpc.From).Debug("Malformed message")
			rpc.Respond(&GossipResponse{}, err)
			return
		}
		// acknowledge first, replies travel separately
		rpc.Respond(&GossipResponse{Success: true}, nil)
		h.Handle(rpc.From, m)
	default:
		g.logger.WithField("rpc", fmt.Sprintf("%#v", rpc.Command)).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

// processHandshake answers the handshake of the peer from. The address in
// the request is only informative; from is bound by the transport.
func (g *Gossiper) processHandshake(from string, req *HandshakeRequest) *HandshakeResponse {
	resp := &HandshakeResponse{
		From:     g.trans.AdvertiseAddr(),
		Protocol: g.params.ProtocolVersion,
	}
	switch {
	case g.IsBanned(from):
		resp.Reason = "banned"
	case req.Network != g.params.Name:
		resp.Reason = fmt.Sprintf("wrong network %s", req.Network)
	case req.Protocol < g.params.MinPaymentsProtocol:
		resp.Reason = fmt.Sprintf("outdated protocol %d", req.Protocol)
	default:
		resp.Accepted = true
		g.AddAddress(from, from)
	}
	if !resp.Accepted {
		g.logger.WithFields(logrus.Fields{
			"peer":   from,
			"reason": resp.Reason,
		}).Debug("Refused handshake")
	}
	return resp
}

// PushTo implements gossip.Transport. The message is queued on the writer of
// peer; delivery errors are only logged.
func (g *Gossiper) PushTo(peer string, m gossip.Message) error {
	env, err := gossip.Wrap(m)
	if err != nil {
		return err
	}
	g.Act(nil, func() {
		if g._isBanned(peer) {
			return
		}
		g._writer(peer).send(env)
	})
	return nil
}

// Relay implements gossip.Transport.
func (g *Gossiper) Relay(m gossip.Message, except string) {
	env, err := gossip.Wrap(m)
	if err != nil {
		g.logger.WithError(err).Error("Failed to encode relayed message")
		return
	}
	g.Act(nil, func() {
		for _, addr := range g.peers.Addrs() {
			if addr == except {
				continue
			}
			g._writer(addr).send(env)
		}
	})
}

// IsLocalAddress implements gossip.Transport.
func (g *Gossiper) IsLocalAddress(addr string) bool {
	return indexnode.IsLocalOrPrivate(addr)
}

// Misbehaving implements gossip.Transport. A peer reaching BanScore is
// dropped and banned.
func (g *Gossiper) Misbehaving(peer string, howmuch int) {
	g.Act(nil, func() {
		g.scores[peer] += howmuch
		score := g.scores[peer]
		g.logger.WithFields(logrus.Fields{
			"peer":  peer,
			"score": score,
		}).Debug("Misbehaving peer")
		if score < BanScore {
			return
		}
		g.banned[peer] = g.now().Add(BanSeconds * time.Second)
		delete(g.scores, peer)
		g._removePeer(peer, "banned")
	})
}

// AddAddress implements gossip.Transport.
func (g *Gossiper) AddAddress(addr string, source string) {
	g.Act(nil, func() {
		switch {
		case addr == g.trans.AdvertiseAddr():
		case g.peers.Contains(addr):
		case g._isBanned(addr):
		case g.peers.Len() >= g.maxPeers:
		default:
			g.peers = g.peers.WithNewPeer(peers.NewPeer(addr, ""))
			g.logger.WithFields(logrus.Fields{
				"peer":   addr,
				"source": source,
				"peers":  g.peers.Len(),
			}).Debug("Added peer")
		}
	})
}

// Peers returns the current relay set.
func (g *Gossiper) Peers() []*peers.Peer {
	var res []*peers.Peer
	phony.Block(g, func() {
		res = append(res, g.peers.Peers...)
	})
	return res
}

// PeerAddrs ...
func (g *Gossiper) PeerAddrs() []string {
	var res []string
	phony.Block(g, func() {
		res = g.peers.Addrs()
	})
	return res
}

// IsBanned ...
func (g *Gossiper) IsBanned(addr string) bool {
	var res bool
	phony.Block(g, func() {
		res = g._isBanned(addr)
	})
	return res
}

func (g *Gossiper) _isBanned(addr string) bool {
	until, ok := g.banned[addr]
	if !ok {
		return false
	}
	if g.now().After(until) {
		delete(g.banned, addr)
		return false
	}
	return true
}

func (g *Gossiper) _writer(addr string) *peerWriter {
	w, ok := g.writers[addr]
	if !ok {
		w = &peerWriter{g: g, addr: addr}
		g.writers[addr] = w
	}
	return w
}

func (g *Gossiper) _removePeer(addr string, reason string) {
	delete(g.writers, addr)
	if !g.peers.Contains(addr) {
		return
	}
	g.peers = g.peers.WithRemovedPeer(addr)
	g.logger.WithFields(logrus.Fields{
		"peer":   addr,
		"reason": reason,
		"peers":  g.peers.Len(),
	}).Info("Removed peer")
}

// peerWriter serialises the messages sent to one peer.
type peerWriter struct {
	phony.Inbox
	g        *Gossiper
	addr     string
	shaken   bool
	failures int
}

func (w *peerWriter) send(env gossip.Envelope) {
	w.Act(nil, func() {
		w._send(env)
	})
}

func (w *peerWriter) _send(env gossip.Envelope) {
	logger := w.g.logger.WithFields(logrus.Fields{
		"peer": w.addr,
		"kind": env.Kind.String(),
	})

	if !w.shaken {
		if err := w._handshake(); err != nil {
			logger.WithError(err).Debug("Handshake failed")
			w._failed()
			return
		}
		w.shaken = true
	}

	var resp GossipResponse
	req := &GossipRequest{Envelope: env}
	if err := w.g.trans.Gossip(w.addr, req, &resp); err != nil {
		logger.WithError(err).Debug("Failed to send message")
		w.shaken = false
		w._failed()
		return
	}
	w.failures = 0
}

func (w *peerWriter) _handshake() error {
	var resp HandshakeResponse
	req := &HandshakeRequest{
		From:     w.g.trans.AdvertiseAddr(),
		Network:  w.g.params.Name,
		Protocol: w.g.params.ProtocolVersion,
	}
	if err := w.g.trans.Handshake(w.addr, req, &resp); err != nil {
		return err
	}
	if !resp.Accepted {
		return fmt.Errorf("handshake refused: %s", resp.Reason)
	}
	return nil
}

func (w *peerWriter) _failed() {
	w.failures++
	if w.failures < maxSendFailures {
		return
	}
	w.failures = 0
	w.g.Act(w, func() {
		w.g._removePeer(w.addr, "unreachable")
	})
}
