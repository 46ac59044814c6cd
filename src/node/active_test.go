package node

import (
	"errors"
	"reflect"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

const T = int64(1600000000)

var testCollateral = indexnode.NewIdentity(chainhash.DoubleHashH([]byte("collateral")), 0)

func mainInputs() Inputs {
	params := indexnode.MainNetParams()
	return Inputs{
		Now:              T,
		Params:           params,
		BlockchainSynced: true,
		Listen:           true,
		ExternalAddr:     "8.8.8.8:8168",
		HasPeers:         true,
	}
}

func ownInfo(in Inputs) indexnode.Info {
	return indexnode.Info{
		InfoValid:       true,
		Identity:        testCollateral,
		Addr:            in.ExternalAddr,
		State:           indexnode.Enabled,
		ProtocolVersion: in.Params.ProtocolVersion,
		TimeLastPing:    in.Now - in.Params.MinMnpSeconds,
	}
}

func fundedWallet(age int) WalletView {
	return WalletView{
		Available:     true,
		Balance:       indexnode.CoinRequired * indexnode.Coin,
		Collateral:    testCollateral,
		HasCollateral: true,
		InputAge:      age,
	}
}

func TestTransitionSync(t *testing.T) {
	in := mainInputs()
	in.BlockchainSynced = false

	a, effects := Transition(Active{State: Started, Mode: ModeRemote}, in)
	if a.State != SyncInProcess || len(effects) != 0 {
		t.Fatalf("expected %s without effects, got %s %v", SyncInProcess, a.State, effects)
	}

	in.BlockchainSynced = true
	a, _ = Transition(a, in)
	if a.State == SyncInProcess {
		t.Fatalf("a synced node must leave %s", SyncInProcess)
	}

	// regtest does not wait for the chain
	in.Params = indexnode.RegTestParams()
	in.ExternalAddr = "127.0.0.1:18444"
	in.BlockchainSynced = false
	in.Own = ownInfo(in)
	a, effects = Transition(Active{}, in)
	if a.State != Started {
		t.Fatalf("expected %s on regtest, got %s: %s", Started, a.State, a.Reason)
	}
	if !reflect.DeepEqual(effects, []Effect{SendPing{Identity: testCollateral}}) {
		t.Fatalf("unexpected effects %v", effects)
	}
}

func TestTransitionInitialChecks(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(in *Inputs)
		reason string
	}{
		{"NotListening", func(in *Inputs) { in.Listen = false }, ReasonNotListening},
		{"NoAddrNoPeers", func(in *Inputs) { in.ExternalAddr = ""; in.HasPeers = false }, ReasonNoConnections},
		{"NoAddr", func(in *Inputs) { in.ExternalAddr = "" }, ReasonNoExternalAddr},
		{"IPv6", func(in *Inputs) { in.ExternalAddr = "[2001:4860::8888]:8168" }, ReasonNoExternalAddr},
		{"Private", func(in *Inputs) { in.ExternalAddr = "10.0.0.1:8168" }, ReasonNoExternalAddr},
		{"MainPort", func(in *Inputs) { in.ExternalAddr = "8.8.8.8:9999" },
			"Invalid port: 9999 - only 8168 is supported on mainnet."},
		{"TestNetPort", func(in *Inputs) { in.Params = indexnode.TestNetParams() },
			"Invalid port: 8168 - 8168 is only supported on mainnet."},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := mainInputs()
			tc.modify(&in)
			a, effects := Transition(Active{}, in)
			if a.State != NotCapable {
				t.Fatalf("expected %s, got %s", NotCapable, a.State)
			}
			if a.Reason != tc.reason {
				t.Fatalf("expected reason %q, got %q", tc.reason, a.Reason)
			}
			if a.Mode != ModeUnknown {
				t.Fatalf("mode must stay unknown, got %s", a.Mode)
			}
			if len(effects) != 0 {
				t.Fatalf("unexpected effects %v", effects)
			}
		})
	}
}

func TestTransitionModeSelection(t *testing.T) {
	testCases := []struct {
		name   string
		wallet WalletView
		mode   Mode
	}{
		{"NoWallet", WalletView{}, ModeRemote},
		{"Locked", func() WalletView { w := fundedWallet(20); w.Locked = true; return w }(), ModeRemote},
		{"Poor", func() WalletView { w := fundedWallet(20); w.Balance = 10; return w }(), ModeRemote},
		{"NoCollateral", func() WalletView { w := fundedWallet(20); w.HasCollateral = false; return w }(), ModeRemote},
		{"Funded", fundedWallet(20), ModeLocal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := mainInputs()
			in.Wallet = tc.wallet
			a, _ := Transition(Active{}, in)
			if a.Mode != tc.mode {
				t.Fatalf("expected mode %s, got %s", tc.mode, a.Mode)
			}
			if a.Addr != in.ExternalAddr {
				t.Fatalf("expected addr %s, got %s", in.ExternalAddr, a.Addr)
			}
		})
	}
}

func TestTransitionRemote(t *testing.T) {
	testCases := []struct {
		name   string
		modify func(own *indexnode.Info)
		reason string
	}{
		{"NotFound", func(own *indexnode.Info) { *own = indexnode.Info{} }, ReasonNotInList},
		{"OldProtocol", func(own *indexnode.Info) { own.ProtocolVersion = 70000 }, ReasonBadProtocol},
		{"NewProtocol", func(own *indexnode.Info) { own.ProtocolVersion++ }, ReasonBadProtocol},
		{"OtherAddr", func(own *indexnode.Info) { own.Addr = "8.8.4.4:8168" }, ReasonAddrMismatch},
		{"Banned", func(own *indexnode.Info) { own.State = indexnode.PoSeBan }, "Indexnode in POSE_BAN state"},
		{"Spent", func(own *indexnode.Info) { own.State = indexnode.OutpointSpent }, "Indexnode in OUTPOINT_SPENT state"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			in := mainInputs()
			own := ownInfo(in)
			tc.modify(&own)
			in.Own = own
			a, effects := Transition(Active{}, in)
			if a.State != NotCapable || a.Reason != tc.reason {
				t.Fatalf("expected %s %q, got %s %q", NotCapable, tc.reason, a.State, a.Reason)
			}
			if len(effects) != 0 {
				t.Fatalf("unexpected effects %v", effects)
			}
		})
	}

	t.Run("Started", func(t *testing.T) {
		in := mainInputs()
		in.Own = ownInfo(in)
		a, effects := Transition(Active{}, in)
		expected := Active{
			State:         Started,
			Mode:          ModeRemote,
			Identity:      testCollateral,
			Addr:          in.ExternalAddr,
			PingerEnabled: true,
		}
		if !reflect.DeepEqual(a, expected) {
			t.Fatalf("expected %+v, got %+v", expected, a)
		}
		if !reflect.DeepEqual(effects, []Effect{SendPing{Identity: testCollateral}}) {
			t.Fatalf("unexpected effects %v", effects)
		}

		// pinged a moment ago
		in.Own.TimeLastPing = in.Now - 1
		a, effects = Transition(a, in)
		if a.State != Started || len(effects) != 0 {
			t.Fatalf("expected a quiet %s, got %s %v", Started, a.State, effects)
		}

		// dropped from the registry
		in.Own = indexnode.Info{}
		a, effects = Transition(a, in)
		if a.State != NotCapable || a.Reason != ReasonNotInList || len(effects) != 0 {
			t.Fatalf("expected %s %q, got %s %q", NotCapable, ReasonNotInList, a.State, a.Reason)
		}

		// back again, from a re-announcement made elsewhere
		in.Own = ownInfo(in)
		a, _ = Transition(a, in)
		if a.State != Started {
			t.Fatalf("expected %s, got %s", Started, a.State)
		}
	})
}

func TestTransitionLocal(t *testing.T) {
	t.Run("InputTooNew", func(t *testing.T) {
		in := mainInputs()
		in.Wallet = fundedWallet(3)
		a, effects := Transition(Active{}, in)
		if a.State != InputTooNew {
			t.Fatalf("expected %s, got %s", InputTooNew, a.State)
		}
		reason := "Indexnode input must have at least 15 confirmations - 3 confirmations"
		if a.Reason != reason {
			t.Fatalf("expected %q, got %q", reason, a.Reason)
		}
		if len(effects) != 0 {
			t.Fatalf("unexpected effects %v", effects)
		}
	})

	t.Run("Announce", func(t *testing.T) {
		in := mainInputs()
		in.Wallet = fundedWallet(15)
		a, effects := Transition(Active{}, in)
		if a.State != Started || a.Mode != ModeLocal || !a.PingerEnabled {
			t.Fatalf("expected a started local node, got %+v", a)
		}
		expected := []Effect{
			LockCollateral{Identity: testCollateral},
			CreateBroadcast{Identity: testCollateral, Addr: in.ExternalAddr},
		}
		if !reflect.DeepEqual(effects, expected) {
			t.Fatalf("expected %v, got %v", expected, effects)
		}
	})

	t.Run("Resume", func(t *testing.T) {
		in := mainInputs()
		in.Wallet = fundedWallet(15)
		in.Own = ownInfo(in)
		a, effects := Transition(Active{}, in)
		if a.State != Started {
			t.Fatalf("expected %s, got %s", Started, a.State)
		}
		for _, e := range effects {
			if _, ok := e.(CreateBroadcast); ok {
				t.Fatalf("a listed node must not announce again")
			}
		}
	})

	t.Run("Failed", func(t *testing.T) {
		a := Failed(Active{State: Started, Mode: ModeLocal, PingerEnabled: true}, errors.New("boom"))
		if a.State != NotCapable || a.PingerEnabled {
			t.Fatalf("unexpected %+v", a)
		}
		if a.Reason != "Error creating indexnode broadcast: boom" {
			t.Fatalf("unexpected reason %q", a.Reason)
		}
	})
}

func TestActiveStatus(t *testing.T) {
	params := indexnode.MainNetParams()
	testCases := []struct {
		active Active
		status string
	}{
		{Active{}, "Node just started, not yet activated"},
		{Active{State: SyncInProcess}, "Sync in progress. Must wait until sync is complete to start Indexnode"},
		{Active{State: InputTooNew}, "Indexnode input must have at least 15 confirmations"},
		{Active{State: NotCapable, Reason: ReasonNotInList}, "Not capable indexnode: " + ReasonNotInList},
		{Active{State: Started}, "Indexnode successfully started"},
	}
	for _, tc := range testCases {
		if s := tc.active.Status(params); s != tc.status {
			t.Fatalf("%s: expected %q, got %q", tc.active.State, tc.status, s)
		}
	}
}
