package chain

import (
	"os"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

func TestInmemBlocks(t *testing.T) {
	c := NewInmem(100, 1000, 150)

	hash, ok := c.BlockHash(90)
	if !ok {
		t.Fatalf("block 90 should exist")
	}
	h, ok := c.BlockHeight(hash)
	if !ok || h != 90 {
		t.Fatalf("expected height 90, got %d", h)
	}
	if _, ok := c.BlockHash(101); ok {
		t.Fatalf("block 101 should not exist yet")
	}

	c.Advance(1)
	if _, ok := c.BlockHash(101); !ok {
		t.Fatalf("block 101 should exist after advancing")
	}
	bt, ok := c.BlockTime(101)
	if !ok || bt != 1000+101*150 {
		t.Fatalf("unexpected block time %d", bt)
	}
}

func TestInmemCollateral(t *testing.T) {
	c := NewInmem(100, 0, 150)
	w := NewInmemWallet()

	id, err := w.Fund(c)
	if err != nil {
		t.Fatal(err)
	}

	if d := c.CollateralDepth(id); d != 1 {
		t.Fatalf("expected depth 1, got %d", d)
	}
	c.Advance(14)
	if d := c.CollateralDepth(id); d != 15 {
		t.Fatalf("expected depth 15, got %d", d)
	}

	out, ok := c.Collateral(id)
	if !ok {
		t.Fatalf("collateral should exist")
	}
	if out.Value != int64(indexnode.CoinRequired)*indexnode.Coin {
		t.Fatalf("unexpected collateral value %d", out.Value)
	}

	gotID, key, ok := w.BondingOutput()
	if !ok || gotID != id || key == nil {
		t.Fatalf("wallet should own the bonding output")
	}

	w.SetLocked(true)
	if _, _, ok := w.BondingOutput(); ok {
		t.Fatalf("locked wallet should not expose its bonding output")
	}

	c.Spend(id)
	if !c.IsCollateralSpent(id) {
		t.Fatalf("collateral should be spent")
	}
	if _, ok := c.Collateral(id); ok {
		t.Fatalf("spent collateral should not be returned")
	}
	if d := c.CollateralDepth(id); d != -1 {
		t.Fatalf("spent collateral depth should be -1, got %d", d)
	}
}

func TestInmemPayments(t *testing.T) {
	p := NewInmemPayments()
	payee := []byte{1, 2, 3}
	p.SetPayee(110, payee)

	if !p.IsScheduled(payee, 105) {
		t.Fatalf("payee should be scheduled within the window")
	}
	if p.IsScheduled(payee, 100) {
		t.Fatalf("payee should not be scheduled outside the window")
	}
	if got, ok := p.PayeeAt(110); !ok || string(got) != string(payee) {
		t.Fatalf("unexpected payee %v", got)
	}

	p.Prune(111)
	if _, ok := p.PayeeAt(110); ok {
		t.Fatalf("payee should have been pruned")
	}
}

func TestInmemAdvanceTo(t *testing.T) {
	c := NewInmem(0, 1000, 10)

	if h := c.AdvanceTo(999); h != 0 {
		t.Fatalf("no block before genesis, got height %d", h)
	}
	if h := c.AdvanceTo(1105); h != 10 {
		t.Fatalf("expected height 10, got %d", h)
	}
	if h := c.AdvanceTo(1050); h != 10 {
		t.Fatalf("the height must not decrease, got %d", h)
	}
}

func TestGenesisCollaterals(t *testing.T) {
	os.RemoveAll("test_data")
	os.Mkdir("test_data", os.ModeDir|0777)
	defer os.RemoveAll("test_data")

	store := NewJSONCollaterals("test_data")

	list, err := store.Collaterals()
	if err != nil || len(list) != 0 {
		t.Fatalf("a missing file holds no collateral, got %v %v", list, err)
	}

	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	id := indexnode.NewIdentity(chainhash.DoubleHashH([]byte("genesis")), 1)
	entry := GenesisCollateral{
		Identity: id.String(),
		Owner:    keys.PublicKeyHex(keys.PublicKeyBytes(key)),
	}
	if err := store.Add(entry); err != nil {
		t.Fatal(err)
	}
	if err := store.Add(entry); err != nil {
		t.Fatal(err)
	}

	list, err = store.Collaterals()
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("expected 1 collateral, got %d", len(list))
	}

	c := NewInmem(0, 1000, 10)
	if err := LoadGenesis(c, list); err != nil {
		t.Fatal(err)
	}
	c.AdvanceTo(1200)

	out, ok := c.Collateral(id)
	if !ok {
		t.Fatalf("the genesis collateral should exist")
	}
	if out.Height != 0 || out.BlockTime != 1000 {
		t.Fatalf("expected a genesis output, got height %d time %d", out.Height, out.BlockTime)
	}
	if out.Value != indexnode.CoinRequired*indexnode.Coin {
		t.Fatalf("unexpected value %d", out.Value)
	}
	if !keys.SamePublicKey(out.Owner, keys.PublicKeyBytes(key)) {
		t.Fatalf("unexpected owner")
	}
	if d := c.CollateralDepth(id); d != 21 {
		t.Fatalf("expected depth 21, got %d", d)
	}

	if err := LoadGenesis(c, []GenesisCollateral{{Identity: "nope"}}); err == nil {
		t.Fatalf("expected an error for a malformed identity")
	}
}

func TestInmemWalletImport(t *testing.T) {
	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	id := indexnode.NewIdentity(chainhash.DoubleHashH([]byte("imported")), 0)

	w := NewInmemWallet()
	w.Import(id, key, indexnode.CoinRequired*indexnode.Coin)

	got, gotKey, ok := w.BondingOutput()
	if !ok || got != id || gotKey != key {
		t.Fatalf("the imported output should be the bonding output")
	}
	if w.Balance() != indexnode.CoinRequired*indexnode.Coin {
		t.Fatalf("unexpected balance %d", w.Balance())
	}
}
