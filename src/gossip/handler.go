package gossip

import (
	"github.com/mosaicnetworks/indexnode/src/chain"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

// Config ...
type Config struct {
	Registry  *registry.Registry
	Chain     chain.Chain
	Transport Transport

	// Local is nil on nodes that never run an indexnode.
	Local Local

	Logger *logrus.Entry
}

// Handler processes gossip messages for one registry.
type Handler struct {
	registry  *registry.Registry
	chain     chain.Chain
	transport Transport
	local     Local
	logger    *logrus.Entry
}

// NewHandler ...
func NewHandler(conf Config) *Handler {
	logger := conf.Logger
	if logger == nil {
		logger = logrus.New().WithField("prefix", "gossip")
	}
	return &Handler{
		registry:  conf.Registry,
		chain:     conf.Chain,
		transport: conf.Transport,
		local:     conf.Local,
		logger:    logger,
	}
}

// Handle processes message m received from peer and returns the outcome of
// the registry operation it triggered.
func (h *Handler) Handle(peer string, m Message) registry.Outcome {
	switch msg := m.(type) {
	case *Announce:
		return h.handleAnnounce(peer, msg)
	case *PingMsg:
		return h.handlePing(peer, msg)
	case *ListRequest:
		return h.handleListRequest(peer, msg)
	case *Verify:
		return h.handleVerify(peer, msg)
	case *Inventory:
		return h.handleInventory(peer, msg)
	case *GetData:
		return h.handleGetData(peer, msg)
	case *SyncStatus:
		h.logger.WithFields(logrus.Fields{
			"peer":  peer,
			"count": msg.Count,
		}).Debug("Peer sent list")
		return registry.Outcome{Accepted: true}
	}
	h.logger.WithField("peer", peer).Errorf("Unexpected message %T", m)
	return registry.Outcome{Reason: "unexpected message"}
}

// penalize charges peer for a rejected message.
func (h *Handler) penalize(peer string, m Message, out registry.Outcome) {
	if !out.Rejected() {
		return
	}
	logger := h.logger.WithFields(logrus.Fields{
		"peer":   peer,
		"kind":   m.Kind().String(),
		"reason": out.Reason,
	})
	if out.DoS > 0 && peer != "" {
		logger.WithField("dos", out.DoS).Debug("Misbehaving peer")
		h.transport.Misbehaving(peer, out.DoS)
		return
	}
	logger.Debug("Dropped message")
}

func (h *Handler) push(peer string, m Message) {
	if err := h.transport.PushTo(peer, m); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"peer": peer,
			"kind": m.Kind().String(),
		}).Debug("Failed to push message")
	}
}

func (h *Handler) handleAnnounce(peer string, m *Announce) registry.Outcome {
	b, out, ok := registry.CheckBroadcast(m.Broadcast, h.registry.Params(), h.registry.Now())
	if !ok {
		h.penalize(peer, m, out)
		return out
	}

	out = h.registry.ApplyAnnounce(b, peer)
	h.penalize(peer, m, out)
	if !out.Accepted {
		return out
	}

	h.transport.AddAddress(b.Addr, peer)
	if out.Relay {
		h.transport.Relay(&Announce{Broadcast: b}, peer)
	}
	if out.Ours && h.local != nil {
		h.local.OwnAnnounce(b)
	}
	return out
}

func (h *Handler) handlePing(peer string, m *PingMsg) registry.Outcome {
	if out, ok := registry.CheckPing(m.Ping, h.registry.Now()); !ok {
		h.penalize(peer, m, out)
		return out
	}

	out := h.registry.ApplyPing(m.Ping, peer)
	h.penalize(peer, m, out)
	if out.AskEntry {
		h.push(peer, &ListRequest{Identity: m.Ping.Identity})
	}
	if out.Relay {
		h.transport.Relay(&PingMsg{Ping: m.Ping}, peer)
	}
	return out
}

func (h *Handler) handleListRequest(peer string, m *ListRequest) registry.Outcome {
	reply, out := h.registry.ListEntries(peer, m.Identity, h.transport.IsLocalAddress(peer))
	h.penalize(peer, m, out)
	if !out.Accepted {
		return out
	}

	if reply.Count() > 0 {
		h.push(peer, &Inventory{Announces: reply.Announces, Pings: reply.Pings})
	}
	if m.Identity.IsZero() {
		h.push(peer, &SyncStatus{Count: reply.Count()})
	}
	return out
}

func (h *Handler) handleInventory(peer string, m *Inventory) registry.Outcome {
	var want GetData
	for _, hash := range m.Announces {
		if !h.registry.HasSeenBroadcast(hash) {
			want.Announces = append(want.Announces, hash)
		}
	}
	for _, hash := range m.Pings {
		if !h.registry.HasSeenPing(hash) {
			want.Pings = append(want.Pings, hash)
		}
	}
	if len(want.Announces)+len(want.Pings) > 0 {
		h.push(peer, &want)
	}
	return registry.Outcome{Accepted: true}
}

func (h *Handler) handleGetData(peer string, m *GetData) registry.Outcome {
	for _, hash := range m.Announces {
		if b, ok := h.registry.SeenBroadcast(hash); ok {
			h.push(peer, &Announce{Broadcast: b})
		}
	}
	for _, hash := range m.Pings {
		if p, ok := h.registry.SeenPing(hash); ok {
			h.push(peer, &PingMsg{Ping: p})
		}
	}
	return registry.Outcome{Accepted: true}
}

func (h *Handler) operator() (indexnode.Identity, bool) {
	if h.local == nil {
		return indexnode.Identity{}, false
	}
	id, _, _, ok := h.local.Operator()
	return id, ok
}
