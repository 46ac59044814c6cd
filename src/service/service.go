package service

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"

	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/node"
	"github.com/mosaicnetworks/indexnode/src/peers"
	"github.com/sirupsen/logrus"
)

// Service serves the status of a node over HTTP as JSON.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering indexnode API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/status", s.makeHandler(s.GetStatus))
	s.mux.HandleFunc("/peers", s.makeHandler(s.GetPeers))
	s.mux.HandleFunc("/indexnodes", s.makeHandler(s.GetIndexnodes))
	s.mux.HandleFunc("/indexnode/", s.makeHandler(s.GetIndexnode))
	s.mux.HandleFunc("/rank/", s.makeHandler(s.GetRank))
	s.mux.HandleFunc("/payee/", s.makeHandler(s.GetPayee))
	s.mux.HandleFunc("/index/", s.makeHandler(s.GetByIndex))
	s.mux.HandleFunc("/watchdog/", s.makeHandler(s.PostWatchdog))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the handler serving every endpoint.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving indexnode API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// IndexnodeView is the JSON form of a registry record.
type IndexnodeView struct {
	Identity         string `json:"identity"`
	Index            int    `json:"index"`
	Addr             string `json:"addr"`
	State            string `json:"state"`
	ProtocolVersion  int32  `json:"protocol"`
	PubKeyCollateral string `json:"pubkey_collateral"`
	PubKeyOperator   string `json:"pubkey_operator"`
	Payee            string `json:"payee"`
	SigTime          int64  `json:"sig_time"`
	LastSeen         int64  `json:"last_seen"`
	ActiveSeconds    int64  `json:"active_seconds"`
	LastPaidBlock    int    `json:"last_paid_block"`
	LastPaidTime     int64  `json:"last_paid_time"`
	PoSeBanScore     int    `json:"pose_ban_score"`
}

// NewIndexnodeView returns the view of rec. Index is left to the caller.
func NewIndexnodeView(rec indexnode.Record) IndexnodeView {
	v := IndexnodeView{
		Identity:         rec.Identity.String(),
		Addr:             rec.Addr,
		State:            rec.State.String(),
		ProtocolVersion:  rec.ProtocolVersion,
		PubKeyCollateral: common.EncodeToString(rec.PubKeyCollateral),
		PubKeyOperator:   common.EncodeToString(rec.PubKeyOperator),
		Payee:            common.EncodeToString(rec.PayeeScript()),
		SigTime:          rec.SigTime,
		LastSeen:         rec.LastPing.SigTime,
		LastPaidBlock:    rec.BlockLastPaid,
		LastPaidTime:     rec.TimeLastPaid,
		PoSeBanScore:     rec.BanScore,
	}
	if rec.LastPing.SigTime > rec.SigTime {
		v.ActiveSeconds = rec.LastPing.SigTime - rec.SigTime
	}
	return v
}

// RankView is one entry of a ranking.
type RankView struct {
	Rank      int           `json:"rank"`
	Score     string        `json:"score"`
	Indexnode IndexnodeView `json:"indexnode"`
}

// PayeeView is the indexnode selected for payment at a height.
type PayeeView struct {
	Height    int           `json:"height"`
	Count     int           `json:"eligible"`
	Indexnode IndexnodeView `json:"indexnode"`
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, s.node.GetStats())
}

// GetStatus ...
func (s *Service) GetStatus(w http.ResponseWriter, r *http.Request) {
	returnJSON(w, s.node.Status())
}

// GetPeers ...
func (s *Service) GetPeers(w http.ResponseWriter, r *http.Request) {
	ps := s.node.GetPeers()
	if ps == nil {
		ps = []*peers.Peer{}
	}
	returnJSON(w, ps)
}

// GetIndexnodes returns every record ordered by identity.
func (s *Service) GetIndexnodes(w http.ResponseWriter, r *http.Request) {
	records := s.node.Registry().Snapshot()
	sort.Slice(records, func(i, j int) bool {
		return records[i].Identity.Less(records[j].Identity)
	})

	res := make([]IndexnodeView, 0, len(records))
	for _, rec := range records {
		res = append(res, s.view(rec))
	}
	returnJSON(w, res)
}

// view is NewIndexnodeView with the current dense index of rec.
func (s *Service) view(rec indexnode.Record) IndexnodeView {
	v := NewIndexnodeView(rec)
	v.Index = s.node.Registry().Index(rec.Identity)
	return v
}

// GetIndexnode ...
func (s *Service) GetIndexnode(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/indexnode/"):]

	id, err := indexnode.ParseIdentity(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing identity parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	rec, ok := s.node.Registry().Get(id)
	if !ok {
		http.Error(w, "indexnode not found", http.StatusNotFound)
		return
	}
	returnJSON(w, s.view(rec))
}

// GetByIndex resolves a dense index. With old=1 the index in use before the
// last rebuild is resolved instead, so that consumers can translate the
// references they hold.
func (s *Service) GetByIndex(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/index/"):]

	i, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing index parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reg := s.node.Registry()
	lookup := reg.IdentityAt
	if r.URL.Query().Get("old") == "1" {
		lookup = reg.IdentityAtOld
	}

	id, ok := lookup(i)
	if !ok {
		http.Error(w, "index not found", http.StatusNotFound)
		return
	}
	rec, ok := reg.Get(id)
	if !ok {
		http.Error(w, "indexnode not found", http.StatusNotFound)
		return
	}
	returnJSON(w, s.view(rec))
}

// WatchdogView is the answer to a watchdog vote.
type WatchdogView struct {
	Identity string `json:"identity"`
	Active   bool   `json:"watchdog_active"`
}

// PostWatchdog records a watchdog vote of an indexnode, as sent by the
// watchdog process of its operator.
func (s *Service) PostWatchdog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	param := r.URL.Path[len("/watchdog/"):]
	id, err := indexnode.ParseIdentity(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing identity parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reg := s.node.Registry()
	if !reg.UpdateWatchdogVoteTime(id) {
		http.Error(w, "indexnode not found", http.StatusNotFound)
		return
	}
	s.logger.WithField("indexnode", id.String()).Debug("Watchdog vote")

	returnJSON(w, WatchdogView{
		Identity: id.String(),
		Active:   reg.IsWatchdogActive(),
	})
}

// GetRank returns the ranking of ENABLED indexnodes at a height.
func (s *Service) GetRank(w http.ResponseWriter, r *http.Request) {
	height, ok := s.heightParam(w, r, "/rank/")
	if !ok {
		return
	}

	ranked, ok := s.node.Registry().RankAt(height, s.node.Params().MinPaymentsProtocol)
	if !ok {
		http.Error(w, "unknown block", http.StatusNotFound)
		return
	}

	res := make([]RankView, 0, len(ranked))
	for _, rk := range ranked {
		res = append(res, RankView{
			Rank:      rk.Rank,
			Score:     rk.Score.Text(16),
			Indexnode: NewIndexnodeView(rk.Record),
		})
	}
	returnJSON(w, res)
}

// GetPayee returns the indexnode selected for payment at a height.
func (s *Service) GetPayee(w http.ResponseWriter, r *http.Request) {
	height, ok := s.heightParam(w, r, "/payee/")
	if !ok {
		return
	}

	rec, count, ok := s.node.Registry().NextPayee(height, true)
	if !ok {
		http.Error(w, "no payee", http.StatusNotFound)
		return
	}
	returnJSON(w, PayeeView{
		Height:    height,
		Count:     count,
		Indexnode: NewIndexnodeView(rec),
	})
}

func (s *Service) heightParam(w http.ResponseWriter, r *http.Request, prefix string) (int, bool) {
	param := r.URL.Path[len(prefix):]

	height, err := strconv.Atoi(param)
	if err != nil {
		s.logger.WithError(err).Debugf("Parsing height parameter %s", param)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, false
	}
	return height, true
}

func returnJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(v)
}
