package engine

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/config"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/listsync"
	"github.com/mosaicnetworks/indexnode/src/net"
	"github.com/mosaicnetworks/indexnode/src/node"
	"github.com/mosaicnetworks/indexnode/src/peers"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/mosaicnetworks/indexnode/src/service"
	"github.com/sirupsen/logrus"
)

const (
	// paymentHistory is how many blocks of payees are kept.
	paymentHistory = 5000

	chainPollInterval = time.Second
)

// Engine wires an indexnode from a Config: keys, simulated chain, transport,
// registry, node and HTTP service.
type Engine struct {
	Config    *config.Config
	Params    *indexnode.Params
	Node      *node.Node
	Transport *net.NetworkTransport
	Gossiper  *net.Gossiper
	Registry  *registry.Registry
	Tracker   *listsync.Tracker
	Chain     *chain.Inmem
	Payments  *chain.InmemPayments
	Wallet    chain.Wallet
	Cache     registry.Cache
	Peers     *peers.PeerSet
	PeerStore *peers.JSONPeerSet
	Service   *service.Service

	logger *logrus.Entry

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// NewEngine ...
func NewEngine(conf *config.Config) *Engine {
	engine := &Engine{
		Config:     conf,
		shutdownCh: make(chan struct{}),
	}

	return engine
}

func (e *Engine) isIndexnode() bool {
	return e.Config.Indexnode || e.Config.Collateral != ""
}

func (e *Engine) initKey() error {
	if !e.isIndexnode() || e.Config.Key != nil {
		return nil
	}

	privKey, err := keys.NewKeyfile(e.Config.Keyfile()).ReadKey()
	if err != nil {
		e.logger.WithError(err).Warn("Cannot read operator key from file")

		privKey, err = Keygen(e.Config.Keyfile())
		if err != nil {
			e.logger.WithError(err).Error("Cannot generate a new operator key")
			return err
		}

		e.logger.WithField("pub", keys.PublicKeyHex(keys.PublicKeyBytes(privKey))).
			Info("Created a new operator key")
	}

	e.Config.Key = privKey

	return nil
}

func (e *Engine) initChain() error {
	interval := int64(e.Config.BlockInterval / time.Second)
	if interval < 1 {
		interval = 1
	}

	e.Chain = chain.NewInmem(0, e.Config.GenesisTime, interval)
	e.Payments = chain.NewInmemPayments()

	store := chain.NewJSONCollaterals(e.Config.DataDir)
	genesis, err := store.Collaterals()
	if err != nil {
		return err
	}
	if err := chain.LoadGenesis(e.Chain, genesis); err != nil {
		return err
	}

	height := e.Chain.AdvanceTo(time.Now().Unix())

	e.logger.WithFields(logrus.Fields{
		"height":      height,
		"collaterals": len(genesis),
	}).Debug("Loaded chain")

	return nil
}

func (e *Engine) initWallet() error {
	if e.Config.Collateral == "" {
		return nil
	}

	id, err := indexnode.ParseIdentity(e.Config.Collateral)
	if err != nil {
		return err
	}

	key, err := keys.NewKeyfile(e.Config.CollateralKeyfile()).ReadKey()
	if err != nil {
		return fmt.Errorf("reading collateral key: %v", err)
	}

	out, ok := e.Chain.Collateral(id)
	if !ok {
		return fmt.Errorf("collateral %s not found", id)
	}
	if !keys.SamePublicKey(out.Owner, keys.PublicKeyBytes(key)) {
		return fmt.Errorf("collateral %s is not owned by the collateral key", id)
	}

	wallet := chain.NewInmemWallet()
	wallet.Import(id, key, out.Value)
	e.Wallet = wallet

	return nil
}

func (e *Engine) initCache() error {
	if !e.Config.Store {
		e.Cache = registry.NewInmemCache()

		e.logger.Debug("created new in-mem cache")

		return nil
	}

	e.logger.WithField("path", e.Config.DatabaseDir).Debug("Attempting to load or create database")

	cache, err := registry.NewBadgerCache(e.Config.DatabaseDir, e.Config.Logger().WithField("prefix", "badger"))
	if err != nil {
		return err
	}
	e.Cache = cache

	return nil
}

func (e *Engine) initTransport() error {
	transport, err := net.NewTCPTransport(
		e.Config.BindAddr,
		e.Config.ExternalAddr,
		e.Params,
		e.Config.MaxPool,
		e.Config.TCPTimeout,
		e.Config.Logger().WithField("prefix", "net"),
	)
	if err != nil {
		return err
	}

	e.Transport = transport

	return nil
}

func (e *Engine) initPeers() error {
	e.PeerStore = peers.NewJSONPeerSet(e.Config.DataDir)

	participants, err := e.PeerStore.PeerSet()
	if os.IsNotExist(err) {
		e.logger.WithField("path", e.PeerStore.Path()).Debug("No peers file")
		participants = peers.NewPeerSet(nil)
	} else if err != nil {
		return err
	}

	e.Peers = participants

	return nil
}

func (e *Engine) initNode() error {
	logger := e.Config.Logger()

	e.Tracker = listsync.NewTracker(nil, logger.WithField("prefix", "sync"))

	e.Registry = registry.New(registry.Config{
		Params:   e.Params,
		Chain:    e.Chain,
		Sync:     e.Tracker,
		Payments: e.Payments,
		Logger:   logger.WithField("prefix", "registry"),
	})

	e.Gossiper = net.NewGossiper(net.GossiperConfig{
		Transport: e.Transport,
		Params:    e.Params,
		Peers:     e.Peers,
		MaxPeers:  e.Config.MaxPeers,
		Logger:    logger.WithField("prefix", "net"),
	})

	var validator *node.Validator
	if e.Config.Key != nil {
		validator = node.NewValidator(e.Config.Key, e.Config.Moniker)
	}

	nodeConf := node.NewConfig(
		e.Config.MaintenanceInterval,
		e.Config.DumpInterval,
		!e.Config.NoListen,
		e.Transport.AdvertiseAddr(),
		e.Params,
		logger.Logger,
	)

	e.Node = node.NewNode(
		nodeConf,
		e.Registry,
		e.Tracker,
		e.Gossiper,
		e.Chain,
		e.Wallet,
		e.Cache,
		validator,
	)

	if err := e.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	return nil
}

func (e *Engine) initService() error {
	if !e.Config.NoService {
		e.Service = service.NewService(e.Config.ServiceAddr, e.Node, e.Config.Logger().WithField("prefix", "service"))
	}
	return nil
}

// Init builds every component. On error, the components created so far are
// released.
func (e *Engine) Init() error {
	e.logger = e.Config.Logger()

	e.Params = e.Config.Params()
	if e.Params == nil {
		return fmt.Errorf("unknown network %q", e.Config.Network)
	}

	steps := []func() error{
		e.initKey,
		e.initChain,
		e.initWallet,
		e.initCache,
		e.initTransport,
		e.initPeers,
		e.initNode,
		e.initService,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			e.release()
			return err
		}
	}

	return nil
}

func (e *Engine) release() {
	if e.Node == nil && e.Cache != nil {
		e.Cache.Close()
	}
	if e.Transport != nil {
		e.Transport.Close()
	}
}

// Run starts the background routines and runs the node until Shutdown is
// called.
func (e *Engine) Run() {
	if !e.Config.NoListen {
		go e.Transport.Listen()
	}

	if e.Service != nil {
		go e.Service.Serve()
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.followChain()
	}()

	e.Node.Run()
}

// Shutdown stops the node, saves the known peers and closes the transport.
func (e *Engine) Shutdown() {
	e.shutdownOnce.Do(func() {
		close(e.shutdownCh)
		e.wg.Wait()

		e.Node.Shutdown()

		if err := e.PeerStore.Write(e.Gossiper.Peers()); err != nil {
			e.logger.WithError(err).Error("Saving peers")
		}

		if err := e.Transport.Close(); err != nil {
			e.logger.WithError(err).Error("Closing transport")
		}
	})
}

func (e *Engine) followChain() {
	ticker := time.NewTicker(chainPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.Advance(time.Now().Unix())
		case <-e.shutdownCh:
			return
		}
	}
}

// Advance mines the blocks due at now. Each new block pays the indexnode
// selected for it, then the node is notified of the new tip.
func (e *Engine) Advance(now int64) {
	prev := e.Chain.Height()
	height := e.Chain.AdvanceTo(now)
	if height == prev {
		return
	}

	from := prev + 1
	if height-from > chain.ScheduleWindow {
		from = height - chain.ScheduleWindow
	}
	for h := from; h <= height; h++ {
		e.pay(h)
	}

	e.Node.OnBlockTip(height)
	e.Payments.Prune(height - paymentHistory)
}

func (e *Engine) pay(height int) {
	rec, _, ok := e.Registry.NextPayee(height, true)
	if !ok {
		return
	}
	e.Payments.SetPayee(height, rec.PayeeScript())

	e.logger.WithFields(logrus.Fields{
		"height":    height,
		"indexnode": rec.Identity,
	}).Debug("Block payee")
}

// Keygen creates a new key and writes it to keyfile. It fails if the file
// already exists.
func Keygen(keyfile string) (*btcec.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("A key already lives under %s", keyfile)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keys.NewKeyfile(keyfile).WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
