package service

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/listsync"
	"github.com/mosaicnetworks/indexnode/src/net"
	"github.com/mosaicnetworks/indexnode/src/node"
	"github.com/mosaicnetworks/indexnode/src/registry"
)

const testTime = int64(1600000000)

func newTestService(t *testing.T) (*Service, indexnode.Identity, *int64) {
	now := testTime
	clock := func() int64 { return now }

	ch := chain.NewInmem(200, 0, 0)
	wallet := chain.NewInmemWallet()
	id, err := wallet.Fund(ch)
	if err != nil {
		t.Fatal(err)
	}

	key, err := keys.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}

	conf := node.TestConfig(t)
	conf.ExternalAddr = "127.0.0.1:18444"
	conf.Now = clock

	logger := common.NewTestLogger(t, common.TestLogLevel)
	tracker := listsync.NewTracker(clock, logger.WithField("prefix", "sync"))
	reg := registry.New(registry.Config{
		Params: conf.Params,
		Chain:  ch,
		Sync:   tracker,
		Now:    clock,
		Logger: logger.WithField("prefix", "registry"),
	})
	_, trans := net.NewInmemTransport("")
	g := net.NewGossiper(net.GossiperConfig{
		Transport: trans,
		Params:    conf.Params,
		Logger:    logger.WithField("prefix", "net"),
	})

	n := node.NewNode(conf, reg, tracker, g, ch, wallet, registry.NewInmemCache(),
		node.NewValidator(key, "service"))
	if err := n.Init(); err != nil {
		t.Fatal(err)
	}
	n.Tick()

	return NewService("", n, logger.WithField("prefix", "service")), id, &now
}

func get(t *testing.T, s *Service, path string, v interface{}) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	if rec.Code == http.StatusOK && v != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
			t.Fatalf("%s: %v", path, err)
		}
	}
	return rec.Code
}

func TestGetStatus(t *testing.T) {
	s, id, _ := newTestService(t)

	var status node.Status
	if code := get(t, s, "/status", &status); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if status.State != "STARTED" || status.Identity != id.String() {
		t.Fatalf("unexpected status %+v", status)
	}

	var stats map[string]string
	if code := get(t, s, "/stats", &stats); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if stats["indexnodes"] != "1" || stats["height"] != "200" {
		t.Fatalf("unexpected stats %v", stats)
	}

	var ps []interface{}
	if code := get(t, s, "/peers", &ps); code != http.StatusOK || len(ps) != 0 {
		t.Fatalf("expected no peers, got %d %v", code, ps)
	}
}

func TestGetIndexnodes(t *testing.T) {
	s, id, _ := newTestService(t)

	var list []IndexnodeView
	if code := get(t, s, "/indexnodes", &list); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if len(list) != 1 || list[0].Identity != id.String() {
		t.Fatalf("unexpected list %+v", list)
	}
	if list[0].State != indexnode.PreEnabled.String() || list[0].Addr != "127.0.0.1:18444" {
		t.Fatalf("unexpected entry %+v", list[0])
	}

	var one IndexnodeView
	if code := get(t, s, "/indexnode/"+id.String(), &one); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if one != list[0] {
		t.Fatalf("expected %+v, got %+v", list[0], one)
	}

	if code := get(t, s, "/indexnode/nope", nil); code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, code)
	}
	other := indexnode.NewIdentity(id.Hash, id.Index+1)
	if code := get(t, s, "/indexnode/"+other.String(), nil); code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, code)
	}
}

func TestGetRankAndPayee(t *testing.T) {
	s, id, now := newTestService(t)

	var ranked []RankView
	if code := get(t, s, "/rank/200", &ranked); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if len(ranked) != 0 {
		t.Fatalf("a pre-enabled node is not ranked, got %+v", ranked)
	}
	if code := get(t, s, "/payee/200", nil); code != http.StatusNotFound {
		t.Fatalf("expected no payee, got %d", code)
	}

	// the next ping enables the node
	*now += s.node.Params().MinMnpSeconds
	s.node.Tick()
	s.node.Registry().CheckRecord(id, true)

	if code := get(t, s, "/rank/200", &ranked); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if len(ranked) != 1 || ranked[0].Rank != 1 || ranked[0].Indexnode.Identity != id.String() {
		t.Fatalf("unexpected ranking %+v", ranked)
	}

	var payee PayeeView
	if code := get(t, s, "/payee/200", &payee); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if payee.Indexnode.Identity != id.String() || payee.Count != 1 {
		t.Fatalf("unexpected payee %+v", payee)
	}

	if code := get(t, s, "/rank/300", nil); code != http.StatusNotFound {
		t.Fatalf("expected %d for an unknown block, got %d", http.StatusNotFound, code)
	}
	if code := get(t, s, "/rank/abc", nil); code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, code)
	}
}

func TestGetByIndex(t *testing.T) {
	s, id, _ := newTestService(t)

	var v IndexnodeView
	if code := get(t, s, "/index/0", &v); code != http.StatusOK {
		t.Fatalf("unexpected code %d", code)
	}
	if v.Identity != id.String() || v.Index != 0 {
		t.Fatalf("unexpected entry %+v", v)
	}

	// nothing was rebuilt yet
	if code := get(t, s, "/index/0?old=1", nil); code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, code)
	}
	if code := get(t, s, "/index/1", nil); code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, code)
	}
	if code := get(t, s, "/index/x", nil); code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, code)
	}
}

func TestPostWatchdog(t *testing.T) {
	s, id, now := newTestService(t)
	*now += 10

	post := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := post("/watchdog/" + id.String())
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected code %d", rec.Code)
	}
	var v WatchdogView
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatal(err)
	}
	if v.Identity != id.String() {
		t.Fatalf("unexpected answer %+v", v)
	}
	if info := s.node.Registry().GetInfo(id); info.TimeLastWatchdogVote != *now {
		t.Fatalf("expected a vote at %d, got %d", *now, info.TimeLastWatchdogVote)
	}

	other := indexnode.NewIdentity(id.Hash, id.Index+1)
	if rec := post("/watchdog/" + other.String()); rec.Code != http.StatusNotFound {
		t.Fatalf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
	if code := get(t, s, "/watchdog/"+id.String(), nil); code != http.StatusMethodNotAllowed {
		t.Fatalf("expected %d, got %d", http.StatusMethodNotAllowed, code)
	}
}
