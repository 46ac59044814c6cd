package registry

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/ugorji/go/codec"
)

// SerializationVersion tags persisted registries. A cache written under
// another version is discarded.
const SerializationVersion = "IndexnodeRegistry-Version-1"

// SeenBroadcastEntry ...
type SeenBroadcastEntry struct {
	FirstSeen int64
	Broadcast indexnode.Broadcast
}

// AskEntry is one expiring "we asked peer for identity" record.
type AskEntry struct {
	Identity indexnode.Identity
	Peer     string
	Until    int64
}

// Dump is the persisted form of a Registry. Slices are used instead of maps
// and are sorted (records and asks by identity, seen messages by hash) so that
// the encoding is canonical.
type Dump struct {
	Records          []indexnode.Record
	Index            []indexnode.Identity
	SeenBroadcasts   []SeenBroadcastEntry
	SeenPings        []indexnode.Ping
	AskedUsForList   map[string]int64
	WeAskedForList   map[string]int64
	WeAskedForEntry  []AskEntry
	LastWatchdogVote int64
}

// Marshal ...
func (d *Dump) Marshal() ([]byte, error) {
	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(d); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Unmarshal ...
func (d *Dump) Unmarshal(data []byte) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	return dec.Decode(d)
}

// Dump captures the persistent part of the registry.
func (r *Registry) Dump() *Dump {
	r.mu.Lock()
	defer r.mu.Unlock()

	d := &Dump{
		Records:          r.snapshot(),
		Index:            r.index.Entries(),
		AskedUsForList:   make(map[string]int64, len(r.askedUsForList)),
		WeAskedForList:   make(map[string]int64, len(r.weAskedForList)),
		LastWatchdogVote: r.lastWatchdogVote,
	}
	broadcasts := make([]chainhash.Hash, 0, len(r.seenBroadcasts))
	for h := range r.seenBroadcasts {
		broadcasts = append(broadcasts, h)
	}
	sortHashes(broadcasts)
	for _, h := range broadcasts {
		sb := r.seenBroadcasts[h]
		d.SeenBroadcasts = append(d.SeenBroadcasts, SeenBroadcastEntry{
			FirstSeen: sb.FirstSeen,
			Broadcast: sb.Broadcast.Copy(),
		})
	}
	pings := make([]chainhash.Hash, 0, len(r.seenPings))
	for h := range r.seenPings {
		pings = append(pings, h)
	}
	sortHashes(pings)
	for _, h := range pings {
		d.SeenPings = append(d.SeenPings, r.seenPings[h].Copy())
	}
	for peer, until := range r.askedUsForList {
		d.AskedUsForList[peer] = until
	}
	for peer, until := range r.weAskedForList {
		d.WeAskedForList[peer] = until
	}
	for id, asked := range r.weAskedForEntry {
		for peer, until := range asked {
			d.WeAskedForEntry = append(d.WeAskedForEntry, AskEntry{Identity: id, Peer: peer, Until: until})
		}
	}
	sort.Slice(d.WeAskedForEntry, func(i, j int) bool {
		a, b := d.WeAskedForEntry[i], d.WeAskedForEntry[j]
		if a.Identity != b.Identity {
			return a.Identity.Less(b.Identity)
		}
		return a.Peer < b.Peer
	})
	return d
}

func sortHashes(hs []chainhash.Hash) {
	sort.Slice(hs, func(i, j int) bool {
		return bytes.Compare(hs[i][:], hs[j][:]) < 0
	})
}

// Restore replaces the content of the registry with d. An inconsistent dump
// is a Corrupted store error and leaves the registry empty.
func (r *Registry) Restore(d *Dump) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset()
	if err := r.restore(d); err != nil {
		r.reset()
		return err
	}
	r.added = len(r.records) > 0
	return nil
}

func (r *Registry) restore(d *Dump) error {
	for _, rec := range d.Records {
		if _, ok := r.records[rec.Identity]; ok {
			return common.NewStoreErr("Registry", common.Corrupted, fmt.Sprintf("duplicate record %s", rec.Identity))
		}
		if _, err := keys.ToPublicKey(rec.PubKeyCollateral); err != nil {
			return common.NewStoreErr("Registry", common.Corrupted, fmt.Sprintf("collateral key of %s", rec.Identity))
		}
		if _, err := keys.ToPublicKey(rec.PubKeyOperator); err != nil {
			return common.NewStoreErr("Registry", common.Corrupted, fmt.Sprintf("operator key of %s", rec.Identity))
		}
		c := rec.Copy()
		r.records[rec.Identity] = &c
	}

	// keep the persisted integers, then index whatever is missing
	for _, id := range d.Index {
		r.index.Add(id)
	}
	for _, rec := range r.snapshotPointers() {
		r.index.Add(rec.Identity)
	}

	for _, sb := range d.SeenBroadcasts {
		r.seenBroadcasts[sb.Broadcast.Hash()] = &seenBroadcast{
			FirstSeen: sb.FirstSeen,
			Broadcast: sb.Broadcast.Copy(),
		}
	}
	for _, p := range d.SeenPings {
		r.seenPings[p.Hash()] = p.Copy()
	}
	for peer, until := range d.AskedUsForList {
		r.askedUsForList[peer] = until
	}
	for peer, until := range d.WeAskedForList {
		r.weAskedForList[peer] = until
	}
	for _, e := range d.WeAskedForEntry {
		asked, ok := r.weAskedForEntry[e.Identity]
		if !ok {
			asked = make(map[string]int64)
			r.weAskedForEntry[e.Identity] = asked
		}
		asked[e.Peer] = e.Until
	}
	r.lastWatchdogVote = d.LastWatchdogVote
	return nil
}
