package registry

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

// CheckPing runs the checks that need nothing but the message itself.
func CheckPing(p indexnode.Ping, now int64) (Outcome, bool) {
	if p.Identity.IsZero() {
		return reject("ping without identity", 1), false
	}
	if p.SigTime > now+indexnode.MaxFutureSeconds {
		return reject("ping signature time too far in the future", 1), false
	}
	return Outcome{}, true
}

// ApplyPing applies a ping received from peer.
func (r *Registry) ApplyPing(p indexnode.Ping, peer string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := p.Hash()
	if _, ok := r.seenPings[hash]; ok {
		return Outcome{Duplicate: true}
	}
	r.seenPings[hash] = p.Copy()

	rec, ok := r.records[p.Identity]
	if ok && rec.IsNewStartRequired() {
		// only a new announcement or a recovery can revive it
		return reject("indexnode requires a new start", 0)
	}

	out := r.checkAndUpdatePing(rec, p, peer)
	if out.Rejected() {
		r.logger.WithFields(logrus.Fields{
			"indexnode": p.Identity.String(),
			"peer":      peer,
			"reason":    out.Reason,
			"dos":       out.DoS,
		}).Debug("Ping rejected")
	}
	return out
}

func (r *Registry) checkAndUpdatePing(rec *indexnode.Record, p indexnode.Ping, peer string) Outcome {
	now := r.now()
	height := r.chain.Height()
	hash := p.Hash()

	if out, ok := CheckPing(p, now); !ok {
		return out
	}

	blockHeight, known := r.chain.BlockHeight(p.BlockHash)
	if !known {
		// we may be stuck or on a fork, do not penalise
		delete(r.seenPings, hash)
		return reject("unknown block hash", 0)
	}

	if rec == nil {
		return Outcome{
			AskEntry: r.askForEntry(peer, p.Identity, now),
			Reason:   "unknown indexnode",
		}
	}

	if rec.IsUpdateRequired() || rec.IsNewStartRequired() {
		return reject("indexnode in state "+rec.State.String(), 0)
	}
	if blockHeight < height-indexnode.PingMaxBlockAge {
		return reject("block hash too old", 0)
	}
	if p.SigTime < rec.LastPing.SigTime {
		return stale("older than the last ping")
	}
	if rec.IsPingedWithin(r.params.MinMnpSeconds-60, p.SigTime) {
		return reject("ping arrived too early", 0)
	}
	if err := p.CheckSignature(rec.PubKeyOperator); err != nil {
		delete(r.seenPings, hash)
		return reject("bad ping signature", 33)
	}

	// the list is still syncing and this node was about to expire
	if !r.sync.IsListSynced() && !rec.IsPingedWithin(indexnode.ExpirationSeconds/2, now) {
		r.sync.AddedToList()
	}

	r.adoptPing(rec, p)
	r.check(rec, true)

	return Outcome{Accepted: true, Relay: rec.IsEnabled()}
}

// SeenPing ...
func (r *Registry) SeenPing(hash chainhash.Hash) (indexnode.Ping, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.seenPings[hash]
	if !ok {
		return indexnode.Ping{}, false
	}
	return p.Copy(), true
}

// HasSeenPing ...
func (r *Registry) HasSeenPing(hash chainhash.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seenPings[hash]
	return ok
}
