package registry

import (
	"bytes"
	"sort"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

const (
	// ListRequestSeconds is the cool-down between two full list requests to
	// or from the same peer, and between two requests for the same entry.
	ListRequestSeconds = 3 * 60 * 60

	// RepeatedListRequestDoS penalises a peer asking for the full list again
	// within the cool-down.
	RepeatedListRequestDoS = 34

	// FulfilledRequestSeconds is how long a verification reply or a
	// completed verification with a peer is remembered.
	FulfilledRequestSeconds = 60 * 60

	// MaxExpectedIndexSize is the dense index size above which a rebuild is
	// considered.
	MaxExpectedIndexSize = 30000

	// MinIndexRebuildSeconds is the minimum interval between two rebuilds.
	MinIndexRebuildSeconds = 60 * 60
)

// SyncStatus is the view of list-sync progress consumed by the registry.
type SyncStatus interface {
	IsListSynced() bool
	IsSynced() bool
	AddedToList()
}

type alwaysSynced struct{}

func (alwaysSynced) IsListSynced() bool { return true }
func (alwaysSynced) IsSynced() bool     { return true }
func (alwaysSynced) AddedToList()       {}

// Config ...
type Config struct {
	Params *indexnode.Params
	Chain  chain.Chain

	// Sync defaults to a status that is always synced.
	Sync SyncStatus

	// Payments is optional; without it last-paid scans and the scheduled
	// filter of NextPayee are skipped.
	Payments chain.Payments

	// IndexCeiling defaults to MaxExpectedIndexSize.
	IndexCeiling int

	// Now defaults to the wall clock in unix seconds.
	Now func() int64

	Logger *logrus.Entry
}

type seenBroadcast struct {
	FirstSeen int64
	Broadcast indexnode.Broadcast
}

// Registry ...
type Registry struct {
	mu sync.Mutex

	params   *indexnode.Params
	chain    chain.Chain
	sync     SyncStatus
	payments chain.Payments
	now      func() int64
	logger   *logrus.Entry

	records map[indexnode.Identity]*indexnode.Record

	index            *DenseIndex
	indexOld         *DenseIndex
	indexCeiling     int
	indexRebuilt     bool
	lastIndexRebuild int64

	seenBroadcasts    map[chainhash.Hash]*seenBroadcast
	seenPings         map[chainhash.Hash]indexnode.Ping
	seenVerifications map[chainhash.Hash]indexnode.Verification

	askedUsForList         map[string]int64
	weAskedForList         map[string]int64
	weAskedForEntry        map[indexnode.Identity]map[string]int64
	weAskedForVerification map[string]indexnode.Verification
	fulfilled              map[string]int64

	recoveryRequests    map[chainhash.Hash]*recoveryRequest
	recoveryGoodReplies map[chainhash.Hash][]indexnode.Broadcast
	scheduledRecovery   []ScheduledRequest

	lastWatchdogVote int64
	operatorKey      []byte
	lastPaidScanned  bool

	added   bool
	removed bool

	pendingMu sync.Mutex
	pending   map[string]pendingVerification
}

// New creates an empty Registry.
func New(conf Config) *Registry {
	r := &Registry{
		params:       conf.Params,
		chain:        conf.Chain,
		sync:         conf.Sync,
		payments:     conf.Payments,
		now:          conf.Now,
		logger:       conf.Logger,
		indexCeiling: conf.IndexCeiling,
		pending:      make(map[string]pendingVerification),
	}
	if r.sync == nil {
		r.sync = alwaysSynced{}
	}
	if r.now == nil {
		r.now = func() int64 { return time.Now().Unix() }
	}
	if r.logger == nil {
		r.logger = logrus.New().WithField("prefix", "registry")
	}
	if r.indexCeiling <= 0 {
		r.indexCeiling = MaxExpectedIndexSize
	}
	r.reset()
	return r
}

// reset clears everything but the configuration and the operator key.
func (r *Registry) reset() {
	r.records = make(map[indexnode.Identity]*indexnode.Record)
	r.index = NewDenseIndex()
	r.indexOld = NewDenseIndex()
	r.indexRebuilt = false
	r.seenBroadcasts = make(map[chainhash.Hash]*seenBroadcast)
	r.seenPings = make(map[chainhash.Hash]indexnode.Ping)
	r.seenVerifications = make(map[chainhash.Hash]indexnode.Verification)
	r.askedUsForList = make(map[string]int64)
	r.weAskedForList = make(map[string]int64)
	r.weAskedForEntry = make(map[indexnode.Identity]map[string]int64)
	r.weAskedForVerification = make(map[string]indexnode.Verification)
	r.fulfilled = make(map[string]int64)
	r.recoveryRequests = make(map[chainhash.Hash]*recoveryRequest)
	r.recoveryGoodReplies = make(map[chainhash.Hash][]indexnode.Broadcast)
	r.scheduledRecovery = nil
	r.lastWatchdogVote = 0
	r.lastPaidScanned = false
}

// Clear drops every record and all gossip bookkeeping, as before a fresh
// list sync.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reset()
	r.removed = true
}

// Params ...
func (r *Registry) Params() *indexnode.Params {
	return r.params
}

// Now returns the registry clock.
func (r *Registry) Now() int64 {
	return r.now()
}

// SetOperatorKey tells the registry which operator key belongs to the local
// active node. Records carrying it are evaluated as ours.
func (r *Registry) SetOperatorKey(pub []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operatorKey = append([]byte(nil), pub...)
}

func (r *Registry) isOurs(rec *indexnode.Record) bool {
	return len(r.operatorKey) > 0 && bytes.Equal(rec.PubKeyOperator, r.operatorKey)
}

/*******************************************************************************
Records
*******************************************************************************/

// Add inserts a record built from b unless its identity is already known.
func (r *Registry) Add(b indexnode.Broadcast) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.add(indexnode.NewRecord(b))
}

func (r *Registry) add(rec indexnode.Record) bool {
	if _, ok := r.records[rec.Identity]; ok {
		return false
	}
	r.logger.WithFields(logrus.Fields{
		"indexnode": rec.Identity.String(),
		"addr":      rec.Addr,
		"size":      len(r.records) + 1,
	}).Debug("Adding new indexnode")

	c := rec.Copy()
	r.records[rec.Identity] = &c
	r.index.Add(rec.Identity)
	r.added = true
	return true
}

// Has ...
func (r *Registry) Has(id indexnode.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.records[id]
	return ok
}

// Get returns a copy of the record of id.
func (r *Registry) Get(id indexnode.Identity) (indexnode.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return indexnode.Record{}, false
	}
	return rec.Copy(), true
}

// GetByOperator returns a copy of the record signed by the operator key.
func (r *Registry) GetByOperator(pub []byte) (indexnode.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findByOperator(pub)
	if rec == nil {
		return indexnode.Record{}, false
	}
	return rec.Copy(), true
}

func (r *Registry) findByOperator(pub []byte) *indexnode.Record {
	for _, rec := range r.records {
		if bytes.Equal(rec.PubKeyOperator, pub) {
			return rec
		}
	}
	return nil
}

// GetByPayee returns a copy of the record paid by script.
func (r *Registry) GetByPayee(script []byte) (indexnode.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.records {
		if bytes.Equal(rec.PayeeScript(), script) {
			return rec.Copy(), true
		}
	}
	return indexnode.Record{}, false
}

// GetInfo returns the public view of id; InfoValid is false if unknown.
func (r *Registry) GetInfo(id indexnode.Identity) indexnode.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return indexnode.Info{}
	}
	return rec.Info()
}

// GetInfoByOperator ...
func (r *Registry) GetInfoByOperator(pub []byte) indexnode.Info {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec := r.findByOperator(pub)
	if rec == nil {
		return indexnode.Info{}
	}
	return rec.Info()
}

// Snapshot returns copies of all records ordered by identity.
func (r *Registry) Snapshot() []indexnode.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot()
}

func (r *Registry) snapshot() []indexnode.Record {
	res := make([]indexnode.Record, 0, len(r.records))
	for _, rec := range r.records {
		res = append(res, rec.Copy())
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Identity.Less(res[j].Identity)
	})
	return res
}

// Size ...
func (r *Registry) Size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Count returns the number of records speaking at least minProto.
func (r *Registry) Count(minProto int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.ProtocolVersion >= minProto {
			n++
		}
	}
	return n
}

// CountEnabled returns the number of ENABLED records speaking at least
// minProto.
func (r *Registry) CountEnabled(minProto int32) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.countEnabled(minProto)
}

func (r *Registry) countEnabled(minProto int32) int {
	n := 0
	for _, rec := range r.records {
		if rec.ProtocolVersion >= minProto && rec.IsEnabled() {
			n++
		}
	}
	return n
}

/*******************************************************************************
State
*******************************************************************************/

func (r *Registry) checkInputs(rec *indexnode.Record, now int64, height int) indexnode.CheckInputs {
	return indexnode.CheckInputs{
		Now:            now,
		Height:         height,
		Spent:          r.chain.IsCollateralSpent(rec.Identity),
		RegistrySize:   len(r.records),
		ListSynced:     r.sync.IsListSynced(),
		WatchdogActive: r.isWatchdogActive(now),
		Ours:           r.isOurs(rec),
		Params:         r.params,
	}
}

func (r *Registry) check(rec *indexnode.Record, force bool) {
	prev := rec.State
	if rec.Check(r.checkInputs(rec, r.now(), r.chain.Height()), force) {
		r.logger.WithFields(logrus.Fields{
			"indexnode": rec.Identity.String(),
			"from":      prev.String(),
			"to":        rec.State.String(),
		}).Debug("State changed")
	}
}

// CheckAll re-evaluates the state of every record.
func (r *Registry) CheckAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkAll()
}

func (r *Registry) checkAll() {
	for _, rec := range r.records {
		r.check(rec, false)
	}
}

// CheckRecord re-evaluates the state of one record and returns it.
func (r *Registry) CheckRecord(id indexnode.Identity, force bool) (indexnode.State, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return 0, false
	}
	r.check(rec, force)
	return rec.State, true
}

// IsPingedWithin ...
func (r *Registry) IsPingedWithin(id indexnode.Identity, seconds int64, at int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	return rec.IsPingedWithin(seconds, at)
}

// SetLastPing adopts a ping produced locally and indexes it as seen.
func (r *Registry) SetLastPing(id indexnode.Identity, p indexnode.Ping) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	r.adoptPing(rec, p)
	return true
}

// adoptPing sets the last ping and keeps the seen broadcast in step with it.
func (r *Registry) adoptPing(rec *indexnode.Record, p indexnode.Ping) {
	rec.LastPing = p.Copy()
	r.seenPings[p.Hash()] = p.Copy()
	if sb, ok := r.seenBroadcasts[indexnode.NewBroadcast(*rec).Hash()]; ok {
		sb.Broadcast.LastPing = p.Copy()
	}
}

// UpdateWatchdogVoteTime records a watchdog vote by id.
func (r *Registry) UpdateWatchdogVoteTime(id indexnode.Identity) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return false
	}
	now := r.now()
	rec.TimeLastWatchdogVote = now
	r.lastWatchdogVote = now
	return true
}

// IsWatchdogActive is true while watchdog votes have been seen recently.
func (r *Registry) IsWatchdogActive() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isWatchdogActive(r.now())
}

func (r *Registry) isWatchdogActive(now int64) bool {
	return r.sync.IsSynced() && now-r.lastWatchdogVote <= indexnode.WatchdogMaxSeconds
}

// UpdateLastPaid scans recent blocks for payments to each record. The first
// scan goes back scanBack blocks, later ones LastPaidScanBlocks.
func (r *Registry) UpdateLastPaid(height int, scanBack int) {
	if r.payments == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	depth := LastPaidScanBlocks
	if !r.lastPaidScanned {
		depth = scanBack
	}
	for _, rec := range r.records {
		script := rec.PayeeScript()
		for h := height; h > height-depth && h > rec.BlockLastPaid; h-- {
			payee, ok := r.payments.PayeeAt(h)
			if !ok || !bytes.Equal(payee, script) {
				continue
			}
			rec.BlockLastPaid = h
			if bt, ok := r.chain.BlockTime(h); ok {
				rec.TimeLastPaid = bt
			}
			break
		}
	}
	r.lastPaidScanned = true
}

/*******************************************************************************
Notifications
*******************************************************************************/

// MembershipChanged reports whether records were added or removed since the
// last call, and resets both flags.
func (r *Registry) MembershipChanged() (added bool, removed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	added, removed = r.added, r.removed
	r.added, r.removed = false, false
	return added, removed
}

/*******************************************************************************
Dense index
*******************************************************************************/

// Index returns the dense integer of id, or -1.
func (r *Registry) Index(id indexnode.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index.Index(id)
}

// IdentityAt ...
func (r *Registry) IdentityAt(i int) (indexnode.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.index.Identity(i)
}

// IndexOld returns the integer id had before the last rebuild, or -1.
func (r *Registry) IndexOld(id indexnode.Identity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOld.Index(id)
}

// IdentityAtOld ...
func (r *Registry) IdentityAtOld(i int) (indexnode.Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexOld.Identity(i)
}

// IndexRebuilt reports whether the index was rebuilt since ClearOldIndex.
func (r *Registry) IndexRebuilt() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.indexRebuilt
}

// ClearOldIndex is called by consumers once they translated their
// references.
func (r *Registry) ClearOldIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexOld.Clear()
	r.indexRebuilt = false
}

func (r *Registry) rebuildIndexIfNeeded(now int64) {
	if now-r.lastIndexRebuild < MinIndexRebuildSeconds {
		return
	}
	if r.index.Size() <= r.indexCeiling {
		return
	}
	if r.index.Size() <= len(r.records) {
		return
	}

	r.indexOld = r.index
	r.index = NewDenseIndex()
	for _, rec := range r.snapshot() {
		r.index.Add(rec.Identity)
	}
	r.indexRebuilt = true
	r.lastIndexRebuild = now

	r.logger.WithField("size", r.index.Size()).Debug("Rebuilt dense index")
}
