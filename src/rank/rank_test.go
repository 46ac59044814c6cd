package rank

import (
	"reflect"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

const proto = 90030

func testRecords(n int) []indexnode.Record {
	res := make([]indexnode.Record, n)
	for i := 0; i < n; i++ {
		h := chainhash.DoubleHashH([]byte{byte(i), byte(i >> 8)})
		res[i] = indexnode.Record{
			Identity:        indexnode.NewIdentity(h, uint32(i%3)),
			ProtocolVersion: proto,
			State:           indexnode.Enabled,
			CollateralBlock: 1,
			BlockLastPaid:   i + 1,
		}
	}
	return res
}

func identities(ranked []Ranked) []indexnode.Identity {
	res := make([]indexnode.Identity, len(ranked))
	for i, r := range ranked {
		res[i] = r.Record.Identity
	}
	return res
}

func TestScoreDeterministic(t *testing.T) {
	rs := testRecords(2)
	h1 := chainhash.DoubleHashH([]byte("block 1"))
	h2 := chainhash.DoubleHashH([]byte("block 2"))

	if Score(rs[0].Identity, h1).Cmp(Score(rs[0].Identity, h1)) != 0 {
		t.Fatalf("score should be deterministic")
	}
	if Score(rs[0].Identity, h1).Cmp(Score(rs[0].Identity, h2)) == 0 {
		t.Fatalf("score should depend on the block hash")
	}
	if Score(rs[0].Identity, h1).Cmp(Score(rs[1].Identity, h1)) == 0 {
		t.Fatalf("score should depend on the identity")
	}
}

func TestRankDeterminism(t *testing.T) {
	rs := testRecords(25)
	hash := chainhash.DoubleHashH([]byte("tip"))

	first := Rank(rs, hash, proto, true)
	second := Rank(rs, hash, proto, true)
	if !reflect.DeepEqual(identities(first), identities(second)) {
		t.Fatalf("two rankings of the same input differ")
	}

	reversed := make([]indexnode.Record, len(rs))
	for i, r := range rs {
		reversed[len(rs)-1-i] = r
	}
	third := Rank(reversed, hash, proto, true)
	if !reflect.DeepEqual(identities(first), identities(third)) {
		t.Fatalf("ranking depends on input order")
	}

	for i, r := range first {
		if r.Rank != i+1 {
			t.Fatalf("rank at position %d should be %d, not %d", i, i+1, r.Rank)
		}
		if i > 0 && first[i-1].Score.Cmp(r.Score) < 0 {
			t.Fatalf("ranking is not ordered by descending score at %d", i)
		}
	}
}

func TestRankFilters(t *testing.T) {
	rs := testRecords(6)
	rs[0].ProtocolVersion = proto - 1
	rs[1].State = indexnode.PreEnabled
	rs[2].State = indexnode.Expired
	hash := chainhash.DoubleHashH([]byte("tip"))

	ranked := Rank(rs, hash, proto, true)
	if len(ranked) != 3 {
		t.Fatalf("expected 3 ranked records, got %d", len(ranked))
	}
	for _, r := range ranked {
		if r.Record.Identity == rs[0].Identity || r.Record.Identity == rs[1].Identity {
			t.Fatalf("%s should have been filtered", r.Record.Identity)
		}
	}

	if RankOf(ranked, rs[0].Identity) != -1 {
		t.Fatalf("filtered record should have no rank")
	}
	top, ok := ByRank(ranked, 1)
	if !ok || RankOf(ranked, top.Identity) != 1 {
		t.Fatalf("ByRank(1) and RankOf disagree")
	}
	if _, ok := ByRank(ranked, 4); ok {
		t.Fatalf("ByRank beyond the end should fail")
	}
}

func TestNextPayeeOldestTenth(t *testing.T) {
	rs := testRecords(30)
	hash := chainhash.DoubleHashH([]byte("h-101"))

	// among the three oldest (tenth of 30), make the best scorer the oldest
	best := 0
	for i := 1; i < 3; i++ {
		if Score(rs[i].Identity, hash).Cmp(Score(rs[best].Identity, hash)) > 0 {
			best = i
		}
	}
	rs[best].BlockLastPaid, rs[0].BlockLastPaid = rs[0].BlockLastPaid, rs[best].BlockLastPaid
	want := rs[best].Identity

	got, count, ok := NextPayee(rs, PayeeInputs{
		Height:    1000,
		BlockHash: hash,
		MinProto:  proto,
		Now:       1000000,
	})
	if !ok {
		t.Fatalf("no payee selected")
	}
	if count != 30 {
		t.Fatalf("expected 30 candidates, got %d", count)
	}
	if got.Identity != want {
		t.Fatalf("expected payee %s, got %s", want, got.Identity)
	}
}

func TestNextPayeeFilters(t *testing.T) {
	rs := testRecords(10)
	hash := chainhash.DoubleHashH([]byte("h-101"))
	rs[0].State = indexnode.PreEnabled
	rs[1].ProtocolVersion = proto - 1

	scheduled := map[indexnode.Identity]bool{rs[2].Identity: true}
	in := PayeeInputs{
		Height:    1000,
		BlockHash: hash,
		MinProto:  proto,
		Now:       1000000,
		Scheduled: func(r indexnode.Record, h int) bool { return scheduled[r.Identity] },
	}

	got, count, ok := NextPayee(rs, in)
	if !ok {
		t.Fatalf("no payee selected")
	}
	if count != 7 {
		t.Fatalf("expected 7 candidates, got %d", count)
	}
	// 8 enabled nodes: the shortlist is a single node, the oldest remaining
	if got.Identity != rs[3].Identity {
		t.Fatalf("expected oldest qualified record %s, got %s", rs[3].Identity, got.Identity)
	}
}

func TestNextPayeeRetryWithoutAgeFilter(t *testing.T) {
	rs := testRecords(12)
	hash := chainhash.DoubleHashH([]byte("h-101"))
	now := int64(1000000)
	// everybody restarted a minute ago
	for i := range rs {
		rs[i].SigTime = now - 60
	}

	in := PayeeInputs{
		Height:        1000,
		BlockHash:     hash,
		MinProto:      proto,
		FilterSigTime: true,
		Now:           now,
	}
	got, count, ok := NextPayee(rs, in)
	if !ok {
		t.Fatalf("selection should be retried without the age filter")
	}
	if count != 12 {
		t.Fatalf("expected 12 candidates after retry, got %d", count)
	}
	if got.Identity != rs[0].Identity {
		t.Fatalf("expected %s, got %s", rs[0].Identity, got.Identity)
	}

	// above the threshold the filter stays on: only old nodes qualify
	for i := 0; i < 6; i++ {
		rs[i].SigTime = now - 100000
	}
	_, count, ok = NextPayee(rs, in)
	if !ok || count != 6 {
		t.Fatalf("expected 6 candidates with the filter on, got %d", count)
	}

	// a stricter policy forces the retry
	in.RetryFraction = 0.9
	_, count, _ = NextPayee(rs, in)
	if count != 12 {
		t.Fatalf("expected 12 candidates with retry fraction 0.9, got %d", count)
	}
}

func TestNextPayeeEmpty(t *testing.T) {
	if _, _, ok := NextPayee(nil, PayeeInputs{MinProto: proto}); ok {
		t.Fatalf("no payee expected from an empty registry")
	}
}
