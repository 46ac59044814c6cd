package rank

import (
	"math/big"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

const (
	// PayeeHashDepth is how many blocks below the paid height the scoring
	// block hash is taken from.
	PayeeHashDepth = 101

	// DefaultRetryFraction is the share of enabled nodes below which the
	// selection is retried without the age filter.
	DefaultRetryFraction = 1.0 / 3

	// blockSpacing is the expected seconds per block used to turn a node
	// count into an age.
	blockSpacing = 2.6 * 60
)

// PayeeInputs are the parameters of NextPayee besides the records.
type PayeeInputs struct {
	// Height being paid.
	Height int

	// BlockHash of Height-PayeeHashDepth.
	BlockHash chainhash.Hash

	// MinProto is the minimum payments protocol.
	MinProto int32

	// FilterSigTime enables the age filter that keeps new entrants out of
	// the queue until older nodes had their turn.
	FilterSigTime bool

	// RetryFraction overrides DefaultRetryFraction when positive.
	RetryFraction float64

	Now int64

	// Scheduled reports whether a record is already scheduled for payment
	// within the lookahead window of height. May be nil.
	Scheduled func(r indexnode.Record, height int) bool
}

// NextPayee picks the indexnode to be paid at in.Height. It returns the
// winner and the number of candidates that qualified.
func NextPayee(records []indexnode.Record, in PayeeInputs) (indexnode.Record, int, bool) {
	enabled := 0
	for _, r := range records {
		if r.IsEnabled() && r.ProtocolVersion >= in.MinProto {
			enabled++
		}
	}

	candidates := qualify(records, in, enabled)

	fraction := in.RetryFraction
	if fraction <= 0 {
		fraction = DefaultRetryFraction
	}
	if in.FilterSigTime && float64(len(candidates)) < float64(enabled)*fraction {
		in.FilterSigTime = false
		candidates = qualify(records, in, enabled)
	}

	if len(candidates) == 0 {
		return indexnode.Record{}, 0, false
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].BlockLastPaid != candidates[j].BlockLastPaid {
			return candidates[i].BlockLastPaid < candidates[j].BlockLastPaid
		}
		return candidates[i].Identity.Less(candidates[j].Identity)
	})

	tenth := enabled / 10
	if tenth < 1 {
		tenth = 1
	}

	var best indexnode.Record
	highest := new(big.Int)
	for i, c := range candidates {
		if i >= tenth {
			break
		}
		s := Score(c.Identity, in.BlockHash)
		if i == 0 || s.Cmp(highest) > 0 {
			highest = s
			best = c
		}
	}
	return best, len(candidates), true
}

func qualify(records []indexnode.Record, in PayeeInputs, enabled int) []indexnode.Record {
	var res []indexnode.Record
	for _, r := range records {
		if !r.IsValidForPayment() {
			continue
		}
		if r.ProtocolVersion < in.MinProto {
			continue
		}
		if in.Scheduled != nil && in.Scheduled(r, in.Height) {
			continue
		}
		if in.FilterSigTime {
			if float64(r.SigTime)+float64(enabled)*blockSpacing > float64(in.Now) {
				continue
			}
			if r.CollateralAge(in.Height) < enabled {
				continue
			}
		}
		res = append(res, r)
	}
	return res
}
