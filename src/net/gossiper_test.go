package net

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/gossip"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/peers"
	"github.com/mosaicnetworks/indexnode/src/registry"
)

type received struct {
	peer string
	msg  gossip.Message
}

type recorder struct {
	ch chan received
}

func (r *recorder) Handle(peer string, m gossip.Message) registry.Outcome {
	r.ch <- received{peer: peer, msg: m}
	return registry.Outcome{Accepted: true}
}

func (r *recorder) expect(t *testing.T, from string) gossip.Message {
	t.Helper()
	select {
	case got := <-r.ch:
		if got.peer != from {
			t.Fatalf("expected a message from %s, got one from %s", from, got.peer)
		}
		return got.msg
	case <-time.After(2 * time.Second):
		t.Fatalf("timeout waiting for a message from %s", from)
	}
	return nil
}

func (r *recorder) expectNothing(t *testing.T) {
	t.Helper()
	select {
	case got := <-r.ch:
		t.Fatalf("unexpected %s from %s", got.msg.Kind(), got.peer)
	case <-time.After(100 * time.Millisecond):
	}
}

type testGossiper struct {
	addr     string
	trans    *InmemTransport
	gossiper *Gossiper
	rec      *recorder
}

// newTestGossipers creates fully connected gossipers; each one starts with
// all the others in its relay set.
func newTestGossipers(t *testing.T, params []*indexnode.Params) []*testGossiper {
	res := make([]*testGossiper, len(params))
	for i := range params {
		addr, trans := NewInmemTransport("")
		res[i] = &testGossiper{addr: addr, trans: trans, rec: &recorder{ch: make(chan received, 64)}}
	}

	shutdownCh := make(chan struct{})
	t.Cleanup(func() { close(shutdownCh) })

	for i, tg := range res {
		var ps []*peers.Peer
		for j, other := range res {
			if i == j {
				continue
			}
			tg.trans.Connect(other.addr, other.trans)
			ps = append(ps, peers.NewPeer(other.addr, ""))
		}
		tg.gossiper = NewGossiper(GossiperConfig{
			Transport: tg.trans,
			Params:    params[i],
			Peers:     peers.NewPeerSet(ps),
			Logger:    common.NewTestEntry(t, common.TestLogLevel),
		})
		go tg.gossiper.Run(tg.rec, shutdownCh)
	}
	return res
}

func regtest(n int) []*indexnode.Params {
	res := make([]*indexnode.Params, n)
	for i := range res {
		res[i] = indexnode.RegTestParams()
	}
	return res
}

func contains(addrs []string, addr string) bool {
	for _, a := range addrs {
		if a == addr {
			return true
		}
	}
	return false
}

func TestGossiperRelay(t *testing.T) {
	g := newTestGossipers(t, regtest(3))

	g[0].gossiper.Relay(&gossip.SyncStatus{Count: 1}, g[1].addr)

	m := g[2].rec.expect(t, g[0].addr)
	if m.(*gossip.SyncStatus).Count != 1 {
		t.Fatalf("unexpected message %#v", m)
	}
	g[1].rec.expectNothing(t)
	g[0].rec.expectNothing(t)
}

func TestGossiperPushKeepsOrder(t *testing.T) {
	g := newTestGossipers(t, regtest(2))

	for i := 0; i < 10; i++ {
		if err := g[0].gossiper.PushTo(g[1].addr, &gossip.SyncStatus{Count: i}); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 10; i++ {
		m := g[1].rec.expect(t, g[0].addr)
		if c := m.(*gossip.SyncStatus).Count; c != i {
			t.Fatalf("expected message %d, got %d", i, c)
		}
	}
}

func TestGossiperBansMisbehavingPeer(t *testing.T) {
	g := newTestGossipers(t, regtest(2))

	g[0].gossiper.Misbehaving(g[1].addr, 60)
	if !contains(g[0].gossiper.PeerAddrs(), g[1].addr) {
		t.Fatalf("peer dropped below the ban score")
	}

	g[0].gossiper.Misbehaving(g[1].addr, 40)
	if contains(g[0].gossiper.PeerAddrs(), g[1].addr) {
		t.Fatalf("peer should be dropped at the ban score")
	}
	if !g[0].gossiper.IsBanned(g[1].addr) {
		t.Fatalf("peer should be banned")
	}

	// the banned peer can no longer reach us
	g[1].gossiper.PushTo(g[0].addr, &gossip.SyncStatus{Count: 1})
	g[0].rec.expectNothing(t)

	// and we do not add it back
	g[0].gossiper.AddAddress(g[1].addr, "test")
	if contains(g[0].gossiper.PeerAddrs(), g[1].addr) {
		t.Fatalf("banned peer added back")
	}
}

func TestGossiperRefusesOtherNetworks(t *testing.T) {
	g := newTestGossipers(t, []*indexnode.Params{indexnode.RegTestParams(), indexnode.MainNetParams()})

	g[1].gossiper.PushTo(g[0].addr, &gossip.SyncStatus{Count: 1})
	g[0].rec.expectNothing(t)

	g[0].gossiper.PushTo(g[1].addr, &gossip.SyncStatus{Count: 1})
	g[1].rec.expectNothing(t)
}

func TestGossiperAddAddress(t *testing.T) {
	addr, trans := NewInmemTransport("")
	g := NewGossiper(GossiperConfig{
		Transport: trans,
		Params:    indexnode.RegTestParams(),
		Peers:     peers.NewPeerSet([]*peers.Peer{peers.NewPeer(addr, "self")}),
		MaxPeers:  2,
		Logger:    common.NewTestEntry(t, common.TestLogLevel),
	})

	if len(g.PeerAddrs()) != 0 {
		t.Fatalf("our own address should not be a peer")
	}

	g.AddAddress(addr, "test")
	g.AddAddress("10.0.0.1:18444", "test")
	g.AddAddress("10.0.0.1:18444", "test")
	g.AddAddress("10.0.0.2:18444", "test")
	g.AddAddress("10.0.0.3:18444", "test")

	got := g.PeerAddrs()
	if len(got) != 2 || got[0] != "10.0.0.1:18444" || got[1] != "10.0.0.2:18444" {
		t.Fatalf("unexpected peers %v", got)
	}

	if !g.IsLocalAddress("192.168.1.1:18444") || g.IsLocalAddress("8.8.8.8:18444") {
		t.Fatalf("wrong local address classification")
	}
}

func TestGossiperBindsSender(t *testing.T) {
	g := newTestGossipers(t, regtest(2))
	victim := g[1].addr

	outsider, trans := NewInmemTransport("")
	trans.Connect(g[0].addr, g[0].trans)

	env, err := gossip.Wrap(&gossip.SyncStatus{Count: 1})
	if err != nil {
		t.Fatal(err)
	}

	// gossip before any handshake is refused by the transport
	var out GossipResponse
	if err := trans.Gossip(g[0].addr, &GossipRequest{Envelope: env}, &out); err == nil {
		t.Fatalf("gossip without a handshake should fail")
	}
	g[0].rec.expectNothing(t)

	// a handshake claiming the address of another node binds the sender's own
	params := indexnode.RegTestParams()
	hs := HandshakeRequest{From: victim, Network: params.Name, Protocol: params.ProtocolVersion}
	var hsResp HandshakeResponse
	if err := trans.Handshake(g[0].addr, &hs, &hsResp); err != nil || !hsResp.Accepted {
		t.Fatalf("handshake failed: %v %s", err, hsResp.Reason)
	}
	if err := trans.Gossip(g[0].addr, &GossipRequest{Envelope: env}, &out); err != nil {
		t.Fatal(err)
	}
	g[0].rec.expect(t, outsider)

	g[0].gossiper.Misbehaving(outsider, BanScore)
	if g[0].gossiper.IsBanned(victim) || !contains(g[0].gossiper.PeerAddrs(), victim) {
		t.Fatalf("a node was charged for messages it never sent")
	}
	if !g[0].gossiper.IsBanned(outsider) {
		t.Fatalf("the sender should be banned")
	}
}
