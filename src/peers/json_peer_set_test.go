package peers

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"
)

func TestJSONPeerSet(t *testing.T) {
	// Create a test dir
	dir, err := ioutil.TempDir("", "indexnode")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	// Create the store
	store := NewJSONPeerSet(dir)

	// Try a read, should get nothing
	peerSet, err := store.PeerSet()
	if err == nil {
		t.Fatalf("store.PeerSet() should generate an error")
	}
	if peerSet != nil {
		t.Fatalf("peerSet: %v", peerSet)
	}

	peers := []*Peer{}
	for i := 0; i < 3; i++ {
		peers = append(peers, NewPeer(fmt.Sprintf("10.0.0.%d:18444", i), fmt.Sprintf("peer%d", i)))
	}

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	// Try a read, should find 3 peers
	peerSet, err = store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 3 {
		t.Fatalf("peers: %v", peerSet.Peers)
	}

	for i, p := range peerSet.Peers {
		if p.NetAddr != peers[i].NetAddr {
			t.Fatalf("peers[%d] NetAddr should be %s, not %s", i, peers[i].NetAddr, p.NetAddr)
		}
		if p.Moniker != peers[i].Moniker {
			t.Fatalf("peers[%d] Moniker should be %s, not %s", i, peers[i].Moniker, p.Moniker)
		}
	}
}

func TestJSONPeerSetEmptyFile(t *testing.T) {
	dir, err := ioutil.TempDir("", "indexnode")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	if err := ioutil.WriteFile(filepath.Join(dir, jsonPeerSetPath), []byte("\n"), 0600); err != nil {
		t.Fatal(err)
	}

	peerSet, err := NewJSONPeerSet(dir).PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if peerSet.Len() != 0 {
		t.Fatalf("expected no peers, got %d", peerSet.Len())
	}
}

func TestJSONPeerSetOverwrite(t *testing.T) {
	dir, err := ioutil.TempDir("", "indexnode")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeerSet(dir)
	a := NewPeer("10.0.0.1:18444", "alice")
	b := NewPeer("10.0.0.2:18444", "bob")

	if err := store.Write([]*Peer{a, b, NewPeer(a.NetAddr, "dup")}); err != nil {
		t.Fatal(err)
	}
	if err := store.Write([]*Peer{b}); err != nil {
		t.Fatal(err)
	}

	peerSet, err := store.PeerSet()
	if err != nil {
		t.Fatal(err)
	}
	if peerSet.Len() != 1 || !peerSet.Contains(b.NetAddr) {
		t.Fatalf("expected only %s, got %v", b.NetAddr, peerSet.Addrs())
	}
	if _, err := os.Stat(store.Path() + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("the temporary file should be gone")
	}
}
