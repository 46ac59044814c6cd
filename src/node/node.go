package node

import (
	"errors"
	"math/rand"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/gossip"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/listsync"
	"github.com/mosaicnetworks/indexnode/src/net"
	"github.com/mosaicnetworks/indexnode/src/peers"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

const (
	// PingBlockDepth is how far behind the tip the block referenced by our
	// own pings is.
	PingBlockDepth = 12

	// minBlocksToStore and storageCoeff bound how far back the first
	// last-paid scan goes.
	minBlocksToStore = 5000
	storageCoeff     = 1.25
)

var errNoCollateral = errors.New("collateral not available")

// Node runs the indexnode membership layer: it gossips with peers, keeps the
// registry in shape with periodic maintenance ticks, and manages the local
// indexnode when an operator key is configured.
type Node struct {
	routines

	conf   *Config
	logger *logrus.Entry
	params *indexnode.Params
	now    func() int64

	registry *registry.Registry
	handler  *gossip.Handler
	gossiper *net.Gossiper
	tracker  *listsync.Tracker
	chain    chain.Chain
	wallet   chain.Wallet
	cache    registry.Cache

	// validator is nil unless the node runs an indexnode
	validator *Validator

	activeLock sync.Mutex
	active     Active

	rngLock sync.Mutex
	rng     *rand.Rand

	membershipCh chan struct{}
	shutdownCh   chan struct{}
	controlTimer *ControlTimer

	start    time.Time
	lastDump int64
	ticks    int64
}

// NewNode is a factory method that returns a Node instance. wallet and cache
// may be nil. A nil validator makes a node that only relays and maintains the
// registry.
func NewNode(conf *Config,
	reg *registry.Registry,
	tracker *listsync.Tracker,
	gossiper *net.Gossiper,
	ch chain.Chain,
	wallet chain.Wallet,
	cache registry.Cache,
	validator *Validator,
) *Node {
	now := conf.Now
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	params := conf.Params
	if params == nil {
		params = reg.Params()
	}

	n := &Node{
		conf:         conf,
		logger:       conf.Logger.WithField("prefix", "node"),
		params:       params,
		now:          now,
		registry:     reg,
		gossiper:     gossiper,
		tracker:      tracker,
		chain:        ch,
		wallet:       wallet,
		cache:        cache,
		validator:    validator,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
		membershipCh: make(chan struct{}, 1),
		shutdownCh:   make(chan struct{}),
		controlTimer: NewJitterControlTimer(conf.MaintenanceInterval),
		start:        time.Now(),
	}

	hconf := gossip.Config{
		Registry:  reg,
		Chain:     ch,
		Transport: gossiper,
		Logger:    conf.Logger.WithField("prefix", "gossip"),
	}
	if validator != nil {
		hconf.Local = n
		reg.SetOperatorKey(validator.PublicKeyBytes())
		n.logger = n.logger.WithField("operator", validator.Moniker)
	}
	n.handler = gossip.NewHandler(hconf)

	return n
}

// Init loads the registry cache. A missing, outdated or corrupted cache is
// logged and the node starts with an empty registry.
func (n *Node) Init() error {
	n.lastDump = n.now()
	if n.cache == nil {
		return nil
	}

	dump, err := n.cache.Load()
	switch {
	case err == nil:
	case common.IsStore(err, common.KeyNotFound):
		n.logger.Debug("No registry cache")
		return nil
	case common.IsStore(err, common.VersionMismatch), common.IsStore(err, common.Corrupted):
		n.logger.WithError(err).Warn("Discarding registry cache")
		return nil
	default:
		return err
	}

	if err := n.registry.Restore(dump); err != nil {
		if common.IsStore(err, common.Corrupted) {
			n.logger.WithError(err).Warn("Discarding registry cache")
			return nil
		}
		return err
	}
	n.registry.CheckAll()
	n.logger.WithField("indexnodes", n.registry.Size()).Info("Loaded registry cache")
	return nil
}

// Handler returns the gossip handler of the node.
func (n *Node) Handler() *gossip.Handler {
	return n.handler
}

// Registry ...
func (n *Node) Registry() *registry.Registry {
	return n.registry
}

// Params returns the protocol parameters of the node.
func (n *Node) Params() *indexnode.Params {
	return n.params
}

// GetPeers returns the current relay set.
func (n *Node) GetPeers() []*peers.Peer {
	return n.gossiper.Peers()
}

// RunAsync calls Run in a separate goroutine.
func (n *Node) RunAsync() {
	n.logger.Debug("RunAsync")
	n.goFunc(n.Run)
}

// Run starts gossiping and runs the maintenance ticks until Shutdown.
func (n *Node) Run() {
	if !n.swapState(Idle, Running) {
		return
	}

	go n.controlTimer.Run()

	n.goFunc(func() {
		n.gossiper.Run(n.handler, n.shutdownCh)
	})

	for {
		select {
		case <-n.controlTimer.tickCh:
			n.Tick()
		case <-n.shutdownCh:
			return
		}
	}
}

// Tick runs one maintenance pass. Ticks may be skipped or delayed without
// harm.
func (n *Node) Tick() {
	atomic.AddInt64(&n.ticks, 1)

	n.tracker.SetBlockchainSynced(n.chain.IsSynced())
	addrs := n.gossiper.PeerAddrs()
	if n.tracker.Tick(len(addrs)) {
		for _, p := range addrs {
			n.handler.AskForList(p)
		}
	}

	if n.validator != nil {
		n.manageState()
	}

	if n.tracker.IsListSynced() {
		rep := n.registry.CheckAndRemove(n.random())
		n.handler.Relay(rep.Relay)
		if len(rep.Removed)+len(rep.RecoveryRequested)+len(rep.Recovered) > 0 {
			n.logger.WithFields(logrus.Fields{
				"removed":   len(rep.Removed),
				"recovery":  len(rep.RecoveryRequested),
				"recovered": len(rep.Recovered),
			}).Debug("Maintenance")
		}
	}

	for n.handler.SendRecoveryRequests() {
	}
	n.handler.SendPendingVerifications()

	n.notifyMembership()
	n.maybeDump()
}

// OnBlockTip runs the per-block work when the chain reaches height.
func (n *Node) OnBlockTip(height int) {
	if banned := n.registry.CheckSameAddr(); len(banned) > 0 {
		n.logger.WithField("indexnodes", len(banned)).Debug("Penalised indexnodes sharing an address")
	}
	n.registry.UpdateLastPaid(height, n.storageLimit())

	if n.validator != nil && n.tracker.IsListSynced() {
		n.handler.ScheduleVerifications(height, n.random())
	}
}

func (n *Node) storageLimit() int {
	limit := int(float64(n.registry.Size()) * storageCoeff)
	if limit < minBlocksToStore {
		return minBlocksToStore
	}
	return limit
}

// MembershipChanged returns a channel that receives a value whenever records
// were added to or removed from the registry. Changes that happen before the
// value is consumed are coalesced.
func (n *Node) MembershipChanged() <-chan struct{} {
	return n.membershipCh
}

func (n *Node) notifyMembership() {
	added, removed := n.registry.MembershipChanged()
	if !added && !removed {
		return
	}
	select {
	case n.membershipCh <- struct{}{}:
	default:
	}
}

func (n *Node) random() *rand.Rand {
	n.rngLock.Lock()
	defer n.rngLock.Unlock()
	return rand.New(rand.NewSource(n.rng.Int63()))
}

func (n *Node) maybeDump() {
	if n.cache == nil {
		return
	}
	now := n.now()
	if now-n.lastDump < int64(n.conf.DumpInterval/time.Second) {
		return
	}
	n.dump()
	n.lastDump = now
}

func (n *Node) dump() {
	if n.cache == nil {
		return
	}
	if err := n.cache.Save(n.registry.Dump()); err != nil {
		n.logger.WithError(err).Error("Failed to save the registry cache")
		return
	}
	n.logger.WithField("indexnodes", n.registry.Size()).Debug("Saved registry cache")
}

/*******************************************************************************
Active indexnode
*******************************************************************************/

func (n *Node) manageState() {
	n.activeLock.Lock()
	defer n.activeLock.Unlock()

	prev := n.active
	next, effects := Transition(prev, n.inputs())
	next = n.apply(next, effects)

	if next.State != prev.State || next.Mode != prev.Mode || next.Reason != prev.Reason {
		n.logger.WithFields(logrus.Fields{
			"state":  next.State.String(),
			"mode":   next.Mode.String(),
			"status": next.Status(n.params),
		}).Info("Active indexnode")
	}
	n.active = next
}

func (n *Node) inputs() Inputs {
	in := Inputs{
		Now:              n.now(),
		Params:           n.params,
		BlockchainSynced: n.tracker.IsBlockchainSynced(),
		Listen:           n.conf.Listen,
		ExternalAddr:     n.conf.ExternalAddr,
		HasPeers:         len(n.gossiper.PeerAddrs()) > 0,
	}

	if own := n.registry.GetInfoByOperator(n.validator.PublicKeyBytes()); own.InfoValid {
		n.registry.CheckRecord(own.Identity, false)
		in.Own = n.registry.GetInfo(own.Identity)
	}

	if n.wallet != nil {
		in.Wallet = WalletView{
			Available: true,
			Locked:    n.wallet.IsLocked(),
			Balance:   n.wallet.Balance(),
		}
		if id, _, ok := n.wallet.BondingOutput(); ok {
			in.Wallet.Collateral = id
			in.Wallet.HasCollateral = true
			in.Wallet.InputAge = n.chain.CollateralDepth(id)
		}
	}
	return in
}

func (n *Node) apply(a Active, effects []Effect) Active {
	for _, e := range effects {
		switch eff := e.(type) {
		case LockCollateral:
			n.wallet.LockOutput(eff.Identity)
		case CreateBroadcast:
			if err := n.announce(eff); err != nil {
				a = Failed(a, err)
				n.logger.WithError(err).Error("Failed to announce the local indexnode")
				return a
			}
		case SendPing:
			n.ping(eff.Identity)
		}
	}
	return a
}

func (n *Node) announce(eff CreateBroadcast) error {
	id, collateral, ok := n.wallet.BondingOutput()
	if !ok || id != eff.Identity {
		return errNoCollateral
	}
	b, err := indexnode.CreateBroadcast(
		eff.Identity,
		eff.Addr,
		collateral,
		n.validator.Key,
		n.params.ProtocolVersion,
		n.pingBlockHash(),
		n.now(),
	)
	if err != nil {
		return err
	}
	out := n.handler.AnnounceLocal(b)
	if out.Rejected() {
		return errors.New(out.Reason)
	}
	n.logger.WithField("indexnode", eff.Identity.String()).Info("Announced the local indexnode")
	return nil
}

func (n *Node) ping(id indexnode.Identity) {
	p := indexnode.NewPing(id, n.pingBlockHash(), n.now())
	if err := n.validator.SignPing(&p); err != nil {
		n.logger.WithError(err).Error("Failed to sign ping")
		return
	}
	if !n.handler.PingLocal(p) {
		return
	}
	n.logger.WithField("indexnode", id.String()).Debug("Relayed ping")
}

func (n *Node) pingBlockHash() chainhash.Hash {
	height := n.chain.Height() - PingBlockDepth
	if height < 0 {
		height = 0
	}
	hash, _ := n.chain.BlockHash(height)
	return hash
}

// Operator implements gossip.Local.
func (n *Node) Operator() (indexnode.Identity, *btcec.PrivateKey, string, bool) {
	n.activeLock.Lock()
	defer n.activeLock.Unlock()
	if n.validator == nil || n.active.State != Started {
		return indexnode.Identity{}, nil, "", false
	}
	return n.active.Identity, n.validator.Key, n.active.Addr, true
}

// OwnAnnounce implements gossip.Local. An announcement of ours started
// elsewhere is picked up right away.
func (n *Node) OwnAnnounce(b indexnode.Broadcast) {
	if b.ProtocolVersion != n.params.ProtocolVersion {
		n.logger.WithFields(logrus.Fields{
			"protocol": b.ProtocolVersion,
			"ours":     n.params.ProtocolVersion,
		}).Warn("Own announcement with another protocol version")
		return
	}
	n.manageState()
}

// Active returns the state of the local indexnode.
func (n *Node) Active() Active {
	n.activeLock.Lock()
	defer n.activeLock.Unlock()
	return n.active
}

/*******************************************************************************
Status
*******************************************************************************/

// Status is the operational status of the node.
type Status struct {
	State    string `json:"state"`
	Mode     string `json:"mode"`
	Status   string `json:"status"`
	Identity string `json:"identity,omitempty"`
	Addr     string `json:"addr,omitempty"`
	Sync     string `json:"sync"`
}

// Status ...
func (n *Node) Status() Status {
	a := n.Active()
	s := Status{
		State:  a.State.String(),
		Mode:   a.Mode.String(),
		Status: a.Status(n.params),
		Addr:   a.Addr,
		Sync:   n.tracker.Status(),
	}
	if n.validator == nil {
		s.Status = "Not an indexnode"
	}
	if !a.Identity.IsZero() {
		s.Identity = a.Identity.String()
	}
	return s
}

// GetStats returns stats
func (n *Node) GetStats() map[string]string {
	a := n.Active()
	return map[string]string{
		"indexnodes":      strconv.Itoa(n.registry.Size()),
		"enabled":         strconv.Itoa(n.registry.CountEnabled(0)),
		"height":          strconv.Itoa(n.chain.Height()),
		"num_peers":       strconv.Itoa(len(n.gossiper.PeerAddrs())),
		"sync":            n.tracker.Asset().String(),
		"active_state":    a.State.String(),
		"ticks":           strconv.FormatInt(atomic.LoadInt64(&n.ticks), 10),
		"uptime":          time.Since(n.start).Round(time.Second).String(),
		"state":           n.getState().String(),
		"watchdog_active": strconv.FormatBool(n.registry.IsWatchdogActive()),
	}
}

// Shutdown stops the node, saves the registry cache and closes it.
func (n *Node) Shutdown() {
	prev := n.getState()
	if prev == Shutdown || !n.swapState(prev, Shutdown) {
		return
	}
	n.logger.Debug("Shutdown")

	running := prev == Running

	close(n.shutdownCh)
	n.waitRoutines()

	if running {
		n.controlTimer.Shutdown()
	}

	n.dump()
	if n.cache != nil {
		if err := n.cache.Close(); err != nil {
			n.logger.WithError(err).Error("Failed to close the registry cache")
		}
	}
}
