package gossip

import (
	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/registry"
	"github.com/sirupsen/logrus"
)

// handleVerify dispatches on the phase of the verification: a bare challenge,
// a reply signed by the challenged node, or a broadcast signed by both.
func (h *Handler) handleVerify(peer string, m *Verify) registry.Outcome {
	switch {
	case len(m.Verification.Sig1) == 0:
		return h.replyToChallenge(peer, m)
	case len(m.Verification.Sig2) == 0:
		return h.processReply(peer, m)
	default:
		return h.processBroadcast(peer, m)
	}
}

func (h *Handler) replyToChallenge(peer string, m *Verify) registry.Outcome {
	// only indexnodes can be challenged
	if h.local == nil {
		return registry.Outcome{Reason: "not an indexnode"}
	}
	_, key, addr, ok := h.local.Operator()
	if !ok {
		return registry.Outcome{Reason: "not an indexnode"}
	}

	out := h.registry.ApproveVerifyReply(peer)
	if !out.Accepted {
		h.penalize(peer, m, out)
		return out
	}

	v := m.Verification
	blockHash, ok := h.chain.BlockHash(v.BlockHeight)
	if !ok {
		h.logger.WithField("height", v.BlockHeight).Debug("Cannot answer challenge for unknown block")
		return registry.Outcome{Reason: "unknown block height"}
	}

	reply := v.Copy()
	reply.Addr = addr
	sig, err := keys.SignMessage(key, reply.ReplyMessage(blockHash))
	if err != nil {
		h.logger.WithError(err).Error("Signing verification reply")
		return registry.Outcome{Reason: err.Error()}
	}
	reply.Sig1 = sig

	h.push(peer, &Verify{Verification: reply})
	return out
}

func (h *Handler) processReply(peer string, m *Verify) registry.Outcome {
	self, _ := h.operator()

	res, out := h.registry.ApplyVerifyReply(peer, m.Verification, self)
	h.penalize(peer, m, out)
	if !out.Accepted || res.Broadcast == nil {
		return out
	}

	_, key, _, _ := h.local.Operator()
	b := *res.Broadcast
	blockHash, ok := h.chain.BlockHash(b.BlockHeight)
	if !ok {
		return out
	}
	sig, err := keys.SignMessage(key, b.BroadcastMessage(blockHash))
	if err != nil {
		h.logger.WithError(err).Error("Signing verification broadcast")
		return out
	}
	b.Sig2 = sig

	h.registry.RecordVerification(b)
	h.logger.WithFields(logrus.Fields{
		"indexnode": b.Identity1.String(),
		"addr":      b.Addr,
	}).Debug("Broadcasting verification")
	h.transport.Relay(&Verify{Verification: b}, "")
	return out
}

func (h *Handler) processBroadcast(peer string, m *Verify) registry.Outcome {
	out := h.registry.ApplyVerifyBroadcast(m.Verification)
	h.penalize(peer, m, out)
	if out.Relay {
		h.transport.Relay(&Verify{Verification: m.Verification}, peer)
	}
	return out
}
