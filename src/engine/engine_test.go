package engine

import (
	"bytes"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/config"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/node"
	"github.com/mosaicnetworks/indexnode/src/peers"
)

func newTestConfig(t *testing.T) (*config.Config, func()) {
	dir, err := ioutil.TempDir("", "indexnode-engine")
	if err != nil {
		t.Fatal(err)
	}
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.SetDataDir(dir)
	conf.NoService = true
	conf.GenesisTime = time.Now().Unix() - 100
	return conf, func() { os.RemoveAll(dir) }
}

// writeCollateral creates a collateral key in the data directory and confirms
// its output in the genesis block.
func writeCollateral(t *testing.T, conf *config.Config) indexnode.Identity {
	key, err := Keygen(conf.CollateralKeyfile())
	if err != nil {
		t.Fatal(err)
	}
	id := indexnode.NewIdentity(chainhash.DoubleHashH(keys.PublicKeyBytes(key)), 0)
	err = chain.NewJSONCollaterals(conf.DataDir).Add(chain.GenesisCollateral{
		Identity: id.String(),
		Owner:    keys.PublicKeyHex(keys.PublicKeyBytes(key)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return id
}

func TestInitRelay(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	if conf.Key != nil {
		t.Fatalf("a relay node has no operator key")
	}
	if _, err := os.Stat(conf.Keyfile()); !os.IsNotExist(err) {
		t.Fatalf("a relay node must not create a key file")
	}
	if e.Wallet != nil {
		t.Fatalf("a relay node has no wallet")
	}
	if e.Chain.Height() < 99 {
		t.Fatalf("the chain should follow the clock, height %d", e.Chain.Height())
	}
	if e.Peers.Len() != 0 {
		t.Fatalf("no peers file, expected no peers")
	}

	e.Node.Tick()
	if s := e.Node.Status(); s.Status != "Not an indexnode" {
		t.Fatalf("unexpected status %+v", s)
	}
}

func TestInitUnknownNetwork(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	conf.Network = "nope"

	if err := NewEngine(conf).Init(); err == nil {
		t.Fatalf("expected an error for an unknown network")
	}
}

func TestInitGeneratesOperatorKey(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	conf.Indexnode = true

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	if conf.Key == nil {
		t.Fatalf("an operator key should have been created")
	}
	key, err := keys.NewKeyfile(conf.Keyfile()).ReadKey()
	if err != nil {
		t.Fatal(err)
	}
	if !keys.SamePublicKey(keys.PublicKeyBytes(key), keys.PublicKeyBytes(conf.Key)) {
		t.Fatalf("the key file does not hold the operator key")
	}

	// a remote indexnode waits for its announcement
	e.Node.Tick()
	if a := e.Node.Active(); a.State != node.NotCapable || a.Reason != node.ReasonNotInList {
		t.Fatalf("expected %s %q, got %s %q", node.NotCapable, node.ReasonNotInList, a.State, a.Reason)
	}
}

func TestInitLocalIndexnode(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	id := writeCollateral(t, conf)
	conf.Collateral = id.String()

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	e.Node.Tick()
	a := e.Node.Active()
	if a.State != node.Started || a.Mode != node.ModeLocal || a.Identity != id {
		t.Fatalf("expected a started local node, got %s %s: %s", a.State, a.Mode, a.Reason)
	}
	if a.Addr != e.Transport.AdvertiseAddr() {
		t.Fatalf("expected to announce %s, got %s", e.Transport.AdvertiseAddr(), a.Addr)
	}
	if !e.Registry.Has(id) {
		t.Fatalf("the local indexnode should be registered")
	}
}

func TestInitWrongCollateralKey(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	id := writeCollateral(t, conf)
	conf.Collateral = id.String()

	// replace the key that owns the output
	os.Remove(conf.CollateralKeyfile())
	if _, err := Keygen(conf.CollateralKeyfile()); err != nil {
		t.Fatal(err)
	}

	if err := NewEngine(conf).Init(); err == nil {
		t.Fatalf("expected an error for a collateral owned by another key")
	}
}

func TestInitStore(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	conf.Store = true

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	e.Shutdown()

	if _, err := os.Stat(filepath.Join(conf.DataDir, config.DefaultBadgerFile)); err != nil {
		t.Fatalf("the badger database should have been created: %v", err)
	}
}

func TestInitPeers(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	err := peers.NewJSONPeerSet(conf.DataDir).Write([]*peers.Peer{
		peers.NewPeer("127.0.0.1:18001", "alice"),
		peers.NewPeer("127.0.0.1:18002", "bob"),
	})
	if err != nil {
		t.Fatal(err)
	}

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	if e.Peers.Len() != 2 {
		t.Fatalf("expected 2 peers, got %d", e.Peers.Len())
	}
}

func TestShutdownSavesPeers(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	e.Gossiper.AddAddress("127.0.0.1:18003", "test")
	e.Shutdown()

	ps, err := peers.NewJSONPeerSet(conf.DataDir).PeerSet()
	if err != nil {
		t.Fatal(err)
	}
	if !ps.Contains("127.0.0.1:18003") {
		t.Fatalf("expected the learnt peer to be saved, got %v", ps.Addrs())
	}
}

func TestAdvancePaysEnabledIndexnode(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()
	id := writeCollateral(t, conf)
	conf.Collateral = id.String()
	// deep enough for payee selection
	conf.GenesisTime = time.Now().Unix() - 300

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}
	defer e.Shutdown()

	e.Node.Tick()
	rec, ok := e.Registry.Get(id)
	if !ok {
		t.Fatalf("the local indexnode should be registered")
	}
	script := rec.PayeeScript()

	// force the node enabled: a ping well after the announcement
	ping := indexnode.NewPing(id, rec.LastPing.BlockHash, rec.SigTime+e.Params.MinMnpSeconds)
	if !e.Registry.SetLastPing(id, ping) {
		t.Fatalf("the ping should be recorded")
	}
	if state, _ := e.Registry.CheckRecord(id, true); state != indexnode.Enabled {
		t.Fatalf("expected %s, got %s", indexnode.Enabled, state)
	}

	height := e.Chain.Height()
	e.Advance(time.Now().Unix() + 2)
	if e.Chain.Height() <= height {
		t.Fatalf("expected new blocks")
	}

	payee, ok := e.Payments.PayeeAt(e.Chain.Height())
	if !ok || !bytes.Equal(payee, script) {
		t.Fatalf("the only enabled indexnode should be paid")
	}

	rec, _ = e.Registry.Get(id)
	if rec.BlockLastPaid != e.Chain.Height() {
		t.Fatalf("expected last paid at %d, got %d", e.Chain.Height(), rec.BlockLastPaid)
	}
}

func TestRunShutdown(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	e := NewEngine(conf)
	if err := e.Init(); err != nil {
		t.Fatal(err)
	}

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	e.Shutdown()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after Shutdown")
	}

	if !e.Transport.IsShutdown() {
		t.Fatalf("the transport should be closed")
	}
}

func TestKeygenRefusesExistingKey(t *testing.T) {
	conf, cleanup := newTestConfig(t)
	defer cleanup()

	if _, err := Keygen(conf.Keyfile()); err != nil {
		t.Fatal(err)
	}
	if _, err := Keygen(conf.Keyfile()); err == nil {
		t.Fatalf("expected an error when a key already exists")
	}
}
