package gossip

import (
	"math/rand"

	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

// AskForList asks peer for the whole list unless it was asked within the
// cool-down. It returns true when the request was sent.
func (h *Handler) AskForList(peer string) bool {
	if !h.registry.MarkListRequested(peer, h.transport.IsLocalAddress(peer)) {
		return false
	}
	if err := h.transport.PushTo(peer, &ListRequest{}); err != nil {
		h.logger.WithError(err).WithField("peer", peer).Debug("Failed to ask for the list")
		return false
	}
	h.logger.WithField("peer", peer).Debug("Asked for the list")
	return true
}

// AnnounceLocal applies an announcement of the local node and relays it to
// every peer.
func (h *Handler) AnnounceLocal(b indexnode.Broadcast) registry.Outcome {
	checked, out, ok := registry.CheckBroadcast(b, h.registry.Params(), h.registry.Now())
	if !ok {
		h.logger.WithField("reason", out.Reason).Error("Invalid local announcement")
		return out
	}
	out = h.registry.ApplyAnnounce(checked, "")
	if out.Accepted {
		h.transport.Relay(&Announce{Broadcast: checked}, "")
	}
	return out
}

// PingLocal records a ping of the local node and relays it.
func (h *Handler) PingLocal(p indexnode.Ping) bool {
	if !h.registry.SetLastPing(p.Identity, p) {
		return false
	}
	h.transport.Relay(&PingMsg{Ping: p}, "")
	return true
}

// Relay sends the given announcements to every peer.
func (h *Handler) Relay(bs []indexnode.Broadcast) {
	for _, b := range bs {
		h.transport.Relay(&Announce{Broadcast: b}, "")
	}
}

// ScheduleVerifications queues the challenges the local node must send at
// height.
func (h *Handler) ScheduleVerifications(height int, rng *rand.Rand) int {
	self, ok := h.operator()
	if !ok {
		return 0
	}
	return len(h.registry.ScheduleVerifications(self, height, rng))
}

// SendPendingVerifications sends the queued challenges.
func (h *Handler) SendPendingVerifications() int {
	sent := 0
	for _, v := range h.registry.PendingVerifications() {
		if err := h.transport.PushTo(v.Addr, &Verify{Verification: v}); err != nil {
			h.logger.WithError(err).WithField("addr", v.Addr).Debug("Failed to send challenge")
			continue
		}
		h.registry.MarkVerificationSent(v)
		sent++
	}
	return sent
}

// SendRecoveryRequests asks one scheduled peer for the announcements of
// nodes being recovered.
func (h *Handler) SendRecoveryRequests() bool {
	addr, hashes, ok := h.registry.PopScheduledRecoveryConnection()
	if !ok {
		return false
	}
	h.logger.WithFields(logrus.Fields{
		"peer":   addr,
		"hashes": len(hashes),
	}).Debug("Asking for recovery")
	h.push(addr, &GetData{Announces: hashes})
	return true
}
