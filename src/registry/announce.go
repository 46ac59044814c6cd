package registry

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

// CheckBroadcast runs the checks that need nothing but the message itself.
// Callers run it before ApplyAnnounce, outside the registry lock. A ping that
// does not belong to the broadcast is stripped from the returned copy; the
// record will then wait for a fresh ping.
func CheckBroadcast(b indexnode.Broadcast, params *indexnode.Params, now int64) (indexnode.Broadcast, Outcome, bool) {
	if !indexnode.IsValidNetAddr(b.Addr, params) {
		return b, reject("invalid address "+b.Addr, 0), false
	}
	if b.SigTime > now+indexnode.MaxFutureSeconds {
		return b, reject("signature time too far in the future", 1), false
	}
	if b.ProtocolVersion < params.MinPaymentsProtocol {
		return b, reject("outdated protocol version", 0), false
	}
	if _, err := keys.ToPublicKey(b.PubKeyCollateral); err != nil {
		return b, reject("invalid collateral key", 100), false
	}
	if _, err := keys.ToPublicKey(b.PubKeyOperator); err != nil {
		return b, reject("invalid operator key", 100), false
	}
	if !indexnode.CheckPort(b.Addr, params) {
		return b, reject("invalid port "+b.Addr, 0), false
	}
	if err := b.CheckSignature(); err != nil {
		return b, reject("bad announce signature", 100), false
	}

	c := b.Copy()
	if !c.LastPing.IsZero() {
		badPing := c.LastPing.Identity != c.Identity ||
			c.LastPing.SigTime > now+indexnode.MaxFutureSeconds ||
			c.LastPing.CheckSignature(c.PubKeyOperator) != nil
		if badPing {
			c.LastPing = indexnode.Ping{}
		}
	}
	return c, Outcome{}, true
}

// ApplyAnnounce applies an announcement received from peer; peer is empty
// for announcements produced locally. The broadcast must have passed
// CheckBroadcast.
func (r *Registry) ApplyAnnounce(b indexnode.Broadcast, peer string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applyAnnounce(b, peer)
}

func (r *Registry) applyAnnounce(b indexnode.Broadcast, peer string) Outcome {
	now := r.now()
	height := r.chain.Height()
	hash := b.Hash()

	logger := r.logger.WithFields(logrus.Fields{
		"indexnode": b.Identity.String(),
		"peer":      peer,
	})

	if sb, ok := r.seenBroadcasts[hash]; ok && !b.Recovery {
		// less than two pings left before the node needs a new start
		if now-sb.FirstSeen > r.params.NewStartRequiredSeconds-2*r.params.MinMnpSeconds {
			sb.FirstSeen = now
			r.sync.AddedToList()
		}

		req, asked := r.recoveryRequests[hash]
		if asked && peer != "" && now < req.Deadline && req.Peers[peer] {
			// a peer answers a recovery request only once
			delete(req.Peers, peer)
			if b.LastPing.SigTime > sb.Broadcast.LastPing.SigTime {
				tmp := indexnode.NewRecord(b)
				tmp.Check(r.checkInputs(&tmp, now, height), true)
				if tmp.State.IsValidForAutoStart() {
					logger.WithField("state", tmp.State.String()).Debug("Good recovery reply")
					r.recoveryGoodReplies[hash] = append(r.recoveryGoodReplies[hash], b.Copy())
				}
			}
		}
		return Outcome{Duplicate: true}
	}
	r.seenBroadcasts[hash] = &seenBroadcast{FirstSeen: now, Broadcast: b.Copy()}

	rec, exists := r.records[b.Identity]
	if exists {
		if out, ok := r.checkUpdate(rec, b); !ok {
			if out.Duplicate {
				delete(r.seenBroadcasts, hash)
			}
			logger.WithField("reason", out.Reason).Debug("Announce not applied")
			return out
		}
	}

	collateralBlock, out, ok := r.checkOutpoint(b)
	if !ok {
		logger.WithField("reason", out.Reason).Debug("Announce rejected")
		return out
	}

	if exists {
		oldHash := indexnode.NewBroadcast(*rec).Hash()
		rec.UpdateFromBroadcast(b)
		if !b.LastPing.IsZero() && b.LastPing.SigTime > rec.LastPing.SigTime {
			r.adoptPing(rec, b.LastPing)
		}
		rec.CollateralBlock = collateralBlock
		if oldHash != hash {
			delete(r.seenBroadcasts, oldHash)
		}
		r.check(rec, true)
		logger.WithField("state", rec.State.String()).Debug("Updated indexnode")
	} else {
		n := indexnode.NewRecord(b)
		n.CollateralBlock = collateralBlock
		if r.isOurs(&n) {
			n.BanScore = -indexnode.BanMaxScore
		}
		r.add(n)
		if !b.LastPing.IsZero() {
			r.seenPings[b.LastPing.Hash()] = b.LastPing.Copy()
		}
		rec = r.records[b.Identity]
		r.check(rec, true)
	}
	r.sync.AddedToList()

	if r.isOurs(rec) {
		if b.ProtocolVersion != r.params.ProtocolVersion {
			// the operator has to re-activate the node; do not relay
			logger.WithField("protocol", b.ProtocolVersion).Warn("Own announcement has an outdated protocol")
			return Outcome{Accepted: true, Reason: "own announcement with outdated protocol"}
		}
		return Outcome{Accepted: true, Relay: true, Ours: true}
	}
	return Outcome{Accepted: true, Relay: true}
}

// checkUpdate decides whether b may replace rec. Only strictly newer
// announcements, or recovery rebroadcasts, are accepted.
func (r *Registry) checkUpdate(rec *indexnode.Record, b indexnode.Broadcast) (Outcome, bool) {
	if b.SigTime == rec.SigTime && !b.Recovery {
		return stale("same signature time as the known announcement"), false
	}
	if b.SigTime < rec.SigTime {
		return stale("older than the known announcement"), false
	}
	if rec.IsPoSeBanned() {
		return reject("indexnode is banned", 0), false
	}
	if !keys.SamePublicKey(rec.PubKeyCollateral, b.PubKeyCollateral) {
		return reject("collateral key changed", 33), false
	}
	return Outcome{}, true
}

// checkOutpoint verifies the collateral of b against the chain and returns
// the height of its confirmation.
func (r *Registry) checkOutpoint(b indexnode.Broadcast) (int, Outcome, bool) {
	coll, ok := r.chain.Collateral(b.Identity)
	if !ok {
		return 0, reject("collateral not found or spent", 0), false
	}
	if coll.Value != int64(indexnode.CoinRequired)*indexnode.Coin {
		return 0, reject("invalid collateral amount", 0), false
	}
	if depth := r.chain.CollateralDepth(b.Identity); depth < r.params.MinConfirmations {
		// forget it so that it is checked again once confirmed
		delete(r.seenBroadcasts, b.Hash())
		return 0, reject("collateral needs more confirmations", 0), false
	}
	if !keys.SamePublicKey(coll.Owner, b.PubKeyCollateral) {
		return 0, reject("collateral is not owned by the collateral key", 33), false
	}
	if coll.BlockTime > b.SigTime {
		return 0, reject("announcement signed before its collateral was confirmed", 0), false
	}
	return coll.Height, Outcome{}, true
}

// SeenBroadcast returns a previously accepted or relayed announcement.
func (r *Registry) SeenBroadcast(hash chainhash.Hash) (indexnode.Broadcast, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sb, ok := r.seenBroadcasts[hash]
	if !ok {
		return indexnode.Broadcast{}, false
	}
	return sb.Broadcast.Copy(), true
}

// HasSeenBroadcast ...
func (r *Registry) HasSeenBroadcast(hash chainhash.Hash) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.seenBroadcasts[hash]
	return ok
}
