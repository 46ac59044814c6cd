package rank

import (
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// Ranked is a record with its position in a ranking. Ranks start at 1.
type Ranked struct {
	Rank   int
	Score  *big.Int
	Record indexnode.Record
}

// Rank orders the records that speak at least minProto by descending score
// against blockHash. With onlyEnabled the records must be ENABLED, otherwise
// they must be valid for payment. Ties are broken by Identity so that the
// result does not depend on the order of the input.
func Rank(records []indexnode.Record, blockHash chainhash.Hash, minProto int32, onlyEnabled bool) []Ranked {
	res := make([]Ranked, 0, len(records))
	for _, r := range records {
		if r.ProtocolVersion < minProto {
			continue
		}
		if onlyEnabled {
			if !r.IsEnabled() {
				continue
			}
		} else if !r.IsValidForPayment() {
			continue
		}
		res = append(res, Ranked{
			Score:  Score(r.Identity, blockHash),
			Record: r,
		})
	}

	sort.Slice(res, func(i, j int) bool {
		c := res[i].Score.Cmp(res[j].Score)
		if c != 0 {
			return c > 0
		}
		return res[i].Record.Identity.Less(res[j].Record.Identity)
	})

	for i := range res {
		res[i].Rank = i + 1
	}
	return res
}

// RankOf returns the rank of id in ranked, or -1.
func RankOf(ranked []Ranked, id indexnode.Identity) int {
	for _, r := range ranked {
		if r.Record.Identity == id {
			return r.Rank
		}
	}
	return -1
}

// ByRank returns the record at the given rank.
func ByRank(ranked []Ranked, rank int) (indexnode.Record, bool) {
	if rank < 1 || rank > len(ranked) {
		return indexnode.Record{}, false
	}
	return ranked[rank-1].Record, true
}
