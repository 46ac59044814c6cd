package registry

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

// ListReply is the inventory returned for a list request: the hashes of the
// announcements and pings the requester can fetch.
type ListReply struct {
	Announces []chainhash.Hash
	Pings     []chainhash.Hash
}

// Count is the number of entries listed.
func (l ListReply) Count() int {
	return len(l.Announces)
}

// ListEntries answers a list request from peer, for one identity or for the
// whole list when id is zero. localPeer exempts the peer from the full-list
// cool-down.
func (r *Registry) ListEntries(peer string, id indexnode.Identity, localPeer bool) (ListReply, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	logger := r.logger.WithField("peer", peer)

	if id.IsZero() && !localPeer && r.params.IsMain() {
		if until, ok := r.askedUsForList[peer]; ok && now < until {
			logger.Debug("Peer already asked for the list")
			return ListReply{}, reject("list requested again within the cool-down", RepeatedListRequestDoS)
		}
		r.askedUsForList[peer] = now + ListRequestSeconds
	}

	var reply ListReply
	for _, rec := range r.snapshotPointers() {
		if !id.IsZero() && rec.Identity != id {
			continue
		}
		// do not send local network indexnodes
		if indexnode.IsLocalOrPrivate(rec.Addr) && !r.params.IsRegTest() {
			continue
		}
		if rec.IsUpdateRequired() {
			continue
		}

		b := indexnode.NewBroadcast(*rec)
		hash := b.Hash()
		reply.Announces = append(reply.Announces, hash)
		if !rec.LastPing.IsZero() {
			pingHash := rec.LastPing.Hash()
			reply.Pings = append(reply.Pings, pingHash)
			r.seenPings[pingHash] = rec.LastPing.Copy()
		}
		if _, ok := r.seenBroadcasts[hash]; !ok {
			r.seenBroadcasts[hash] = &seenBroadcast{FirstSeen: now, Broadcast: b}
		}

		if !id.IsZero() {
			logger.WithField("indexnode", id.String()).Debug("Sent one entry")
			return reply, Outcome{Accepted: true}
		}
	}

	logger.WithField("count", reply.Count()).Debug("Sent list")
	return reply, Outcome{Accepted: true}
}

// snapshotPointers returns the live records ordered by identity. Callers
// must hold the lock.
func (r *Registry) snapshotPointers() []*indexnode.Record {
	ids := make([]indexnode.Identity, 0, len(r.records))
	for id := range r.records {
		ids = append(ids, id)
	}
	sortIdentities(ids)
	res := make([]*indexnode.Record, len(ids))
	for i, id := range ids {
		res[i] = r.records[id]
	}
	return res
}

// MarkListRequested records that we are about to ask peer for the full list.
// It returns false if we already did within the cool-down.
func (r *Registry) MarkListRequested(peer string, localPeer bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.params.IsMain() && !localPeer {
		if until, ok := r.weAskedForList[peer]; ok && now < until {
			r.logger.WithField("peer", peer).Debug("Already asked peer for the list")
			return false
		}
	}
	r.weAskedForList[peer] = now + ListRequestSeconds
	return true
}

// AskForEntry records that we are about to ask peer for the announcement of
// id. It returns false if we already did within the cool-down.
func (r *Registry) AskForEntry(peer string, id indexnode.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.askForEntry(peer, id, r.now())
}

func (r *Registry) askForEntry(peer string, id indexnode.Identity, now int64) bool {
	if peer == "" {
		return false
	}
	asked, ok := r.weAskedForEntry[id]
	if ok {
		if until, ok := asked[peer]; ok && now < until {
			return false
		}
	} else {
		asked = make(map[string]int64)
		r.weAskedForEntry[id] = asked
	}
	asked[peer] = now + ListRequestSeconds

	r.logger.WithFields(logrus.Fields{
		"indexnode": id.String(),
		"peer":      peer,
	}).Debug("Asking for entry")
	return true
}
