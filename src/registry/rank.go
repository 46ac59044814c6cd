package registry

import (
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/rank"
)

func (r *Registry) rankAt(height int, minProto int32, onlyEnabled bool) ([]rank.Ranked, bool) {
	hash, ok := r.chain.BlockHash(height)
	if !ok {
		return nil, false
	}
	return rank.Rank(r.snapshot(), hash, minProto, onlyEnabled), true
}

// RankAt ranks the enabled records speaking at least minProto against the
// hash of the block at height. ok is false if that block is unknown.
func (r *Registry) RankAt(height int, minProto int32) ([]rank.Ranked, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rankAt(height, minProto, true)
}

// RankOf returns the rank of id at height, or -1.
func (r *Registry) RankOf(id indexnode.Identity, height int, minProto int32) int {
	ranked, ok := r.RankAt(height, minProto)
	if !ok {
		return -1
	}
	return rank.RankOf(ranked, id)
}

// ByRank returns the record holding rank n at height.
func (r *Registry) ByRank(n int, height int, minProto int32) (indexnode.Record, bool) {
	ranked, ok := r.RankAt(height, minProto)
	if !ok {
		return indexnode.Record{}, false
	}
	return rank.ByRank(ranked, n)
}

// NextPayee selects the indexnode to be paid by the block at height. The
// age filter is never applied on regtest.
func (r *Registry) NextPayee(height int, filterSigTime bool) (indexnode.Record, int, bool) {
	hash, ok := r.chain.BlockHash(height - rank.PayeeHashDepth)
	if !ok {
		r.logger.WithField("height", height-rank.PayeeHashDepth).Debug("No block hash for payee selection")
		return indexnode.Record{}, 0, false
	}

	r.mu.Lock()
	records := r.snapshot()
	now := r.now()
	r.mu.Unlock()

	in := rank.PayeeInputs{
		Height:        height,
		BlockHash:     hash,
		MinProto:      r.params.MinPaymentsProtocol,
		FilterSigTime: filterSigTime && !r.params.IsRegTest(),
		Now:           now,
	}
	if r.payments != nil {
		in.Scheduled = func(rec indexnode.Record, h int) bool {
			return r.payments.IsScheduled(rec.PayeeScript(), h)
		}
	}
	return rank.NextPayee(records, in)
}
