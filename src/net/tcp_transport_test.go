package net

import (
	"testing"

	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

func TestTCPTransportAdvertise(t *testing.T) {
	cases := []struct {
		name      string
		bind      string
		advertise string
		err       error
		want      string
	}{
		{"unspecified bind", "0.0.0.0:0", "", errNotAdvertisable, ""},
		{"explicit advertise", "0.0.0.0:0", "127.0.0.1:12345", nil, "127.0.0.1:12345"},
		{"unspecified advertise", "127.0.0.1:0", "0.0.0.0:12345", errNotAdvertisable, ""},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			trans, err := NewTCPTransport(c.bind, c.advertise, indexnode.RegTestParams(), 1, 0, common.NewTestEntry(t, common.TestLogLevel))
			if err != c.err {
				t.Fatalf("expected %v, got %v", c.err, err)
			}
			if err != nil {
				return
			}
			defer trans.Close()
			if trans.AdvertiseAddr() != c.want {
				t.Fatalf("expected %s, got %s", c.want, trans.AdvertiseAddr())
			}
		})
	}
}

func TestTCPTransportBoundAddr(t *testing.T) {
	trans, err := NewTCPTransport("127.0.0.1:0", "", indexnode.RegTestParams(), 1, 0, common.NewTestEntry(t, common.TestLogLevel))
	if err != nil {
		t.Fatal(err)
	}
	defer trans.Close()

	if trans.AdvertiseAddr() != trans.LocalAddr() {
		t.Fatalf("expected to advertise %s, got %s", trans.LocalAddr(), trans.AdvertiseAddr())
	}
	if _, _, ok := indexnode.SplitAddr(trans.AdvertiseAddr()); !ok {
		t.Fatalf("bad advertise address %s", trans.AdvertiseAddr())
	}
}
