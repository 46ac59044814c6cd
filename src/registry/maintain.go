package registry

import (
	"bytes"
	"math/rand"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/rank"
	"github.com/sirupsen/logrus"
)

const (
	// RecoveryQuorumTotal is the number of peers asked to confirm a node
	// that needs a new start.
	RecoveryQuorumTotal = 10

	// RecoveryQuorumRequired is the number of good replies needed to revive
	// it.
	RecoveryQuorumRequired = 6

	// RecoveryMaxAskEntries bounds the recoveries started per sweep.
	RecoveryMaxAskEntries = 10

	// RecoveryWaitSeconds is how long replies are collected.
	RecoveryWaitSeconds = 60

	// RecoveryRetrySeconds is how long before the same announcement can be
	// recovered again.
	RecoveryRetrySeconds = 3 * 60 * 60

	// LastPaidScanBlocks is how far back UpdateLastPaid looks after the
	// first scan.
	LastPaidScanBlocks = 100
)

type recoveryRequest struct {
	Deadline int64
	Peers    map[string]bool
}

// ScheduledRequest asks the peer at Addr for the announcement Hash.
type ScheduledRequest struct {
	Addr string
	Hash chainhash.Hash
}

// Report summarises a maintenance sweep.
type Report struct {
	Removed           []indexnode.Identity
	RecoveryRequested []indexnode.Identity
	Recovered         []indexnode.Identity

	// Relay holds reprocessed recovery announcements to forward.
	Relay []indexnode.Broadcast
}

// CheckAndRemove is the periodic sweep. It re-evaluates every record, drops
// records whose collateral is spent, starts recoveries for records needing a
// new start, reprocesses recoveries that reached their quorum, and expires
// the time-bounded bookkeeping.
func (r *Registry) CheckAndRemove(rng *rand.Rand) Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	height := r.chain.Height()
	var rep Report

	r.checkAll()

	var ranked []rank.Ranked
	asks := RecoveryMaxAskEntries
	for _, rec := range r.snapshotPointers() {
		hash := indexnode.NewBroadcast(*rec).Hash()

		if rec.IsOutpointSpent() {
			r.logger.WithFields(logrus.Fields{
				"indexnode": rec.Identity.String(),
				"addr":      rec.Addr,
			}).Info("Removing indexnode with spent collateral")

			delete(r.seenBroadcasts, hash)
			delete(r.weAskedForEntry, rec.Identity)
			delete(r.records, rec.Identity)
			r.removed = true
			rep.Removed = append(rep.Removed, rec.Identity)
			continue
		}

		ask := asks > 0 &&
			height > 0 &&
			r.sync.IsSynced() &&
			rec.IsNewStartRequired() &&
			!r.isRecoveryRequested(hash)
		if !ask {
			continue
		}

		if ranked == nil {
			ranked, _ = r.rankAt(rng.Intn(height), 0, true)
		}

		requested := make(map[string]bool)
		for i := 0; len(requested) < RecoveryQuorumTotal && i < len(ranked); i++ {
			addr := ranked[i].Record.Addr
			// do not get banned for asking too often
			if asked, ok := r.weAskedForEntry[rec.Identity]; ok {
				if _, ok := asked[addr]; ok {
					continue
				}
			}
			if requested[addr] {
				continue
			}
			requested[addr] = true
			r.scheduledRecovery = append(r.scheduledRecovery, ScheduledRequest{Addr: addr, Hash: hash})
		}
		if len(requested) > 0 {
			asks--
			rep.RecoveryRequested = append(rep.RecoveryRequested, rec.Identity)
			r.logger.WithFields(logrus.Fields{
				"indexnode": rec.Identity.String(),
				"peers":     len(requested),
			}).Info("Recovery initiated")
		}
		r.recoveryRequests[hash] = &recoveryRequest{
			Deadline: now + RecoveryWaitSeconds,
			Peers:    requested,
		}
	}

	r.processRecoveryReplies(now, &rep)
	r.expire(now, height)

	r.rebuildIndexIfNeeded(now)
	return rep
}

func (r *Registry) isRecoveryRequested(hash chainhash.Hash) bool {
	_, ok := r.recoveryRequests[hash]
	return ok
}

// processRecoveryReplies tallies the good replies of every recovery whose
// deadline passed. Above the quorum the first reply is reprocessed as a
// recovery rebroadcast; either way the replies are dropped.
func (r *Registry) processRecoveryReplies(now int64, rep *Report) {
	hashes := make([]chainhash.Hash, 0, len(r.recoveryGoodReplies))
	for hash := range r.recoveryGoodReplies {
		hashes = append(hashes, hash)
	}
	sort.Slice(hashes, func(i, j int) bool {
		return bytes.Compare(hashes[i][:], hashes[j][:]) < 0
	})

	for _, hash := range hashes {
		replies := r.recoveryGoodReplies[hash]
		if req, ok := r.recoveryRequests[hash]; ok && req.Deadline >= now {
			continue
		}

		if len(replies) >= RecoveryQuorumRequired {
			b := replies[0].Copy()
			b.Recovery = true
			out := r.applyAnnounce(b, "")

			r.logger.WithFields(logrus.Fields{
				"indexnode": b.Identity.String(),
				"replies":   len(replies),
				"outcome":   out.String(),
			}).Info("Reprocessed recovery announcement")

			if out.Accepted {
				rep.Recovered = append(rep.Recovered, b.Identity)
			}
			if out.Relay {
				rep.Relay = append(rep.Relay, b)
			}
		}
		delete(r.recoveryGoodReplies, hash)
	}
}

func (r *Registry) expire(now int64, height int) {
	for hash, req := range r.recoveryRequests {
		// allow this announcement to be recovered again later
		if now-req.Deadline > RecoveryRetrySeconds {
			delete(r.recoveryRequests, hash)
		}
	}
	for peer, until := range r.askedUsForList {
		if until < now {
			delete(r.askedUsForList, peer)
		}
	}
	for peer, until := range r.weAskedForList {
		if until < now {
			delete(r.weAskedForList, peer)
		}
	}
	for id, asked := range r.weAskedForEntry {
		for peer, until := range asked {
			if until < now {
				delete(asked, peer)
			}
		}
		if len(asked) == 0 {
			delete(r.weAskedForEntry, id)
		}
	}
	for addr, v := range r.weAskedForVerification {
		if v.BlockHeight < height-MaxPoSeBlocks {
			delete(r.weAskedForVerification, addr)
		}
	}
	for key, until := range r.fulfilled {
		if until < now {
			delete(r.fulfilled, key)
		}
	}
	// seen broadcasts are cleaned when announcements are replaced
	for hash, p := range r.seenPings {
		if p.IsExpired(now, r.params) {
			delete(r.seenPings, hash)
		}
	}
	for hash, v := range r.seenVerifications {
		if v.BlockHeight < height-MaxPoSeBlocks {
			delete(r.seenVerifications, hash)
		}
	}
}

// PopScheduledRecoveryConnection returns the next peer to ask for recovery
// announcements, with all the hashes to ask it for.
func (r *Registry) PopScheduledRecoveryConnection() (string, []chainhash.Hash, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.scheduledRecovery) == 0 {
		return "", nil, false
	}

	sort.Slice(r.scheduledRecovery, func(i, j int) bool {
		a, b := r.scheduledRecovery[i], r.scheduledRecovery[j]
		if a.Addr != b.Addr {
			return a.Addr < b.Addr
		}
		return bytes.Compare(a.Hash[:], b.Hash[:]) < 0
	})

	addr := r.scheduledRecovery[0].Addr
	var hashes []chainhash.Hash
	i := 0
	for ; i < len(r.scheduledRecovery) && r.scheduledRecovery[i].Addr == addr; i++ {
		hashes = append(hashes, r.scheduledRecovery[i].Hash)
	}
	r.scheduledRecovery = r.scheduledRecovery[i:]
	return addr, hashes, true
}

// CheckSameAddr penalises every enabled record sharing an address with a
// verified record, except that verified record. When several records at one
// address are verified, the first in identity order is kept. It returns the
// penalised identities.
func (r *Registry) CheckSameAddr() []indexnode.Identity {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.sync.IsSynced() || len(r.records) == 0 {
		return nil
	}

	var addrs []string
	groups := make(map[string][]*indexnode.Record)
	for _, rec := range r.snapshotPointers() {
		if !rec.IsEnabled() && !rec.IsPreEnabled() {
			continue
		}
		if _, ok := groups[rec.Addr]; !ok {
			addrs = append(addrs, rec.Addr)
		}
		groups[rec.Addr] = append(groups[rec.Addr], rec)
	}
	sort.Strings(addrs)

	var ban []*indexnode.Record
	for _, addr := range addrs {
		group := groups[addr]
		if len(group) < 2 {
			continue
		}
		var verified *indexnode.Record
		for _, rec := range group {
			if rec.IsPoSeVerified() {
				verified = rec
				break
			}
		}
		if verified == nil {
			continue
		}
		for _, rec := range group {
			if rec != verified {
				ban = append(ban, rec)
			}
		}
	}

	res := make([]indexnode.Identity, 0, len(ban))
	for _, rec := range ban {
		rec.IncreaseBanScore()
		res = append(res, rec.Identity)
		r.logger.WithFields(logrus.Fields{
			"indexnode": rec.Identity.String(),
			"addr":      rec.Addr,
			"score":     rec.BanScore,
		}).Info("Increased ban score of indexnode sharing a verified address")
	}
	return res
}
