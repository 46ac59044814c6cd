package gossip

import (
	"fmt"
	"testing"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

const T = int64(1600000000)

type testNode struct {
	id         indexnode.Identity
	addr       string
	collateral *btcec.PrivateKey
	operator   *btcec.PrivateKey
}

type fakeLocal struct {
	node testNode
	own  []indexnode.Broadcast
}

func (l *fakeLocal) Operator() (indexnode.Identity, *btcec.PrivateKey, string, bool) {
	return l.node.id, l.node.operator, l.node.addr, true
}

func (l *fakeLocal) OwnAnnounce(b indexnode.Broadcast) {
	l.own = append(l.own, b)
}

type delivery struct {
	from, to string
	env      Envelope
}

// fakeNet delivers messages synchronously, in order, through the envelope
// codec.
type fakeNet struct {
	t      *testing.T
	params *indexnode.Params
	chain  *chain.Inmem
	now    int64
	peers  map[string]*testPeer
	order  []string
	queue  []delivery
	nodes  int
}

type testPeer struct {
	addr      string
	registry  *registry.Registry
	handler   *Handler
	transport *fakeTransport
	local     *fakeLocal
}

type fakeTransport struct {
	net    *fakeNet
	addr   string
	scores map[string]int
	addrs  []string
}

func (t *fakeTransport) PushTo(peer string, m Message) error {
	if _, ok := t.net.peers[peer]; !ok {
		return fmt.Errorf("unknown peer %s", peer)
	}
	t.net.enqueue(t.addr, peer, m)
	return nil
}

func (t *fakeTransport) Relay(m Message, except string) {
	for _, addr := range t.net.order {
		if addr == t.addr || addr == except {
			continue
		}
		t.net.enqueue(t.addr, addr, m)
	}
}

func (t *fakeTransport) IsLocalAddress(addr string) bool { return false }

func (t *fakeTransport) Misbehaving(peer string, howmuch int) {
	t.scores[peer] += howmuch
}

func (t *fakeTransport) AddAddress(addr string, source string) {
	t.addrs = append(t.addrs, addr)
}

func newFakeNet(t *testing.T) *fakeNet {
	return &fakeNet{
		t:      t,
		params: indexnode.RegTestParams(),
		chain:  chain.NewInmem(100, 0, 0),
		now:    T,
		peers:  make(map[string]*testPeer),
	}
}

func (n *fakeNet) addPeer(addr string, local *testNode) *testPeer {
	logger := common.NewTestEntry(n.t, logrus.DebugLevel).WithField("node", addr)
	p := &testPeer{addr: addr}
	p.registry = registry.New(registry.Config{
		Params: n.params,
		Chain:  n.chain,
		Now:    func() int64 { return n.now },
		Logger: logger,
	})
	p.transport = &fakeTransport{
		net:    n,
		addr:   addr,
		scores: make(map[string]int),
	}
	conf := Config{
		Registry:  p.registry,
		Chain:     n.chain,
		Transport: p.transport,
		Logger:    logger,
	}
	if local != nil {
		p.local = &fakeLocal{node: *local}
		conf.Local = p.local
	}
	p.handler = NewHandler(conf)

	n.peers[addr] = p
	n.order = append(n.order, addr)
	return p
}

func (n *fakeNet) enqueue(from, to string, m Message) {
	env, err := Wrap(m)
	if err != nil {
		n.t.Fatalf("wrap %s: %v", m.Kind(), err)
	}
	n.queue = append(n.queue, delivery{from: from, to: to, env: env})
}

// run delivers queued messages until the network is quiet.
func (n *fakeNet) run() int {
	count := 0
	for len(n.queue) > 0 {
		d := n.queue[0]
		n.queue = n.queue[1:]
		m, err := Unwrap(d.env)
		if err != nil {
			n.t.Fatalf("unwrap %s: %v", d.env.Kind, err)
		}
		n.peers[d.to].handler.Handle(d.from, m)
		count++
		if count > 10000 {
			n.t.Fatalf("gossip does not settle")
		}
	}
	return count
}

func (n *fakeNet) newNode(addr string) testNode {
	n.nodes++
	collateral, err := keys.GenerateKey()
	if err != nil {
		n.t.Fatal(err)
	}
	operator, err := keys.GenerateKey()
	if err != nil {
		n.t.Fatal(err)
	}
	id := indexnode.NewIdentity(chainhash.DoubleHashH([]byte(fmt.Sprintf("collateral %d", n.nodes))), 0)
	n.chain.AddCollateral(id, keys.PublicKeyBytes(collateral), indexnode.CoinRequired*indexnode.Coin)
	n.chain.Advance(n.params.MinConfirmations)
	return testNode{
		id:         id,
		addr:       addr,
		collateral: collateral,
		operator:   operator,
	}
}

func (n *fakeNet) announce(node testNode, sigTime int64) indexnode.Broadcast {
	b, err := indexnode.CreateBroadcast(node.id, node.addr, node.collateral, node.operator,
		n.params.ProtocolVersion, chain.InmemBlockHash(n.chain.Height()), sigTime)
	if err != nil {
		n.t.Fatal(err)
	}
	return b
}

func (n *fakeNet) ping(node testNode, sigTime int64) indexnode.Ping {
	p := indexnode.NewPing(node.id, chain.InmemBlockHash(n.chain.Height()), sigTime)
	if err := p.Sign(node.operator); err != nil {
		n.t.Fatal(err)
	}
	return p
}

// enable makes node ENABLED in the registries of the given peers.
func (n *fakeNet) enable(node testNode, peers ...*testPeer) {
	b := n.announce(node, n.now-40)
	p := n.ping(node, n.now)
	for _, peer := range peers {
		checked, out, ok := registry.CheckBroadcast(b, n.params, n.now)
		if !ok {
			n.t.Fatalf("announce of %s: %s", node.id, out)
		}
		if out := peer.registry.ApplyAnnounce(checked, ""); !out.Accepted {
			n.t.Fatalf("announce of %s at %s: %s", node.id, peer.addr, out)
		}
		if out := peer.registry.ApplyPing(p, ""); !out.Accepted {
			n.t.Fatalf("ping of %s at %s: %s", node.id, peer.addr, out)
		}
	}
}

func banScore(t *testing.T, p *testPeer, id indexnode.Identity) int {
	rec, ok := p.registry.Get(id)
	if !ok {
		t.Fatalf("%s unknown at %s", id, p.addr)
	}
	return rec.BanScore
}

func checkNoMisbehaviour(t *testing.T, n *fakeNet) {
	for _, addr := range n.order {
		if scores := n.peers[addr].transport.scores; len(scores) > 0 {
			t.Fatalf("%s charged peers: %v", addr, scores)
		}
	}
}
