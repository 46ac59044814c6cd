package peers

import (
	"reflect"
	"testing"
)

func TestPeerSet(t *testing.T) {
	a := NewPeer("10.0.0.1:18444", "alice")
	b := NewPeer("10.0.0.2:18444", "")
	c := NewPeer("10.0.0.3:18444", "charlie")

	ps := NewPeerSet([]*Peer{a, b, NewPeer(a.NetAddr, "dup")})
	if ps.Len() != 2 {
		t.Fatalf("duplicate addresses should be dropped, got %d peers", ps.Len())
	}
	if ps.ByAddr[a.NetAddr].Moniker != "alice" {
		t.Fatalf("the first peer with an address should win")
	}
	if ps.ByAddr[b.NetAddr] != b {
		t.Fatalf("peer not indexed by address")
	}

	ps2 := ps.WithNewPeer(c)
	if ps.Len() != 2 {
		t.Fatalf("WithNewPeer should not modify the original set")
	}
	if !reflect.DeepEqual(ps2.Addrs(), []string{a.NetAddr, b.NetAddr, c.NetAddr}) {
		t.Fatalf("unexpected addresses %v", ps2.Addrs())
	}

	ps3 := ps2.WithRemovedPeer(b.NetAddr)
	if ps3.Contains(b.NetAddr) || !ps3.Contains(c.NetAddr) || ps3.Len() != 2 {
		t.Fatalf("unexpected addresses %v", ps3.Addrs())
	}

	data, err := ps3.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	ps4, err := UnmarshalPeerSet(data)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ps4.Addrs(), ps3.Addrs()) {
		t.Fatalf("expected %v, got %v", ps3.Addrs(), ps4.Addrs())
	}
}

func TestPeerString(t *testing.T) {
	if s := NewPeer("10.0.0.1:18444", "alice").String(); s != "alice@10.0.0.1:18444" {
		t.Fatalf("unexpected %s", s)
	}
	if s := NewPeer("10.0.0.1:18444", "").String(); s != "10.0.0.1:18444" {
		t.Fatalf("unexpected %s", s)
	}
}

func TestWithRemovedUnknownPeer(t *testing.T) {
	ps := NewPeerSet([]*Peer{NewPeer("10.0.0.1:18444", "")})
	if ps.WithRemovedPeer("10.0.0.9:18444").Len() != 1 {
		t.Fatalf("removing an unknown address should keep the set")
	}
}
