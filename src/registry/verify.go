package registry

import (
	"math/rand"

	"github.com/mosaicnetworks/indexnode/src/crypto/keys"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/mosaicnetworks/indexnode/src/rank"
	"github.com/sirupsen/logrus"
)

const (
	// MinPoSeProtocol is the lowest protocol taking part in verification.
	MinPoSeProtocol = 70203

	// MaxPoSeRank is the number of top ranked nodes that verify others.
	MaxPoSeRank = 10

	// MaxPoSeConnections is the number of challenges sent per step, and the
	// stride between two targets in the ranking.
	MaxPoSeConnections = 10

	// MaxPoSeBlocks is the age in blocks after which verifications are
	// outdated.
	MaxPoSeBlocks = 10

	// PendingVerificationSeconds is how long a challenge waits to be sent.
	PendingVerificationSeconds = 15

	// VerifyDoS penalises protocol violations during verification.
	VerifyDoS = 20

	// SelfVerifyDoS penalises a node claiming to have verified itself.
	SelfVerifyDoS = 100

	maxNonce = 999999
)

const (
	fulfilledRequest = "verify-request"
	fulfilledReply   = "verify-reply"
	fulfilledDone    = "verify-done"
)

type pendingVerification struct {
	Added        int64
	Verification indexnode.Verification
}

func (r *Registry) hasFulfilled(addr, kind string, now int64) bool {
	until, ok := r.fulfilled[addr+"|"+kind]
	return ok && now < until
}

func (r *Registry) addFulfilled(addr, kind string, now int64) {
	r.fulfilled[addr+"|"+kind] = now + FulfilledRequestSeconds
}

// ScheduleVerifications selects the nodes this node must challenge at height
// and queues one challenge per address. Only the MaxPoSeRank best ranked
// nodes verify; each one walks the ranking from its own offset with a stride
// of MaxPoSeConnections so that the work is spread.
func (r *Registry) ScheduleVerifications(self indexnode.Identity, height int, rng *rand.Rand) []indexnode.Verification {
	r.mu.Lock()
	ranked, ok := r.rankAt(height-1, MinPoSeProtocol, true)
	if !ok {
		r.mu.Unlock()
		return nil
	}

	myRank := rank.RankOf(ranked, self)
	if myRank < 0 || myRank > MaxPoSeRank {
		r.mu.Unlock()
		return nil
	}

	var addrs []string
	for i := MaxPoSeRank + myRank - 1; i < len(ranked); i += MaxPoSeConnections {
		target := ranked[i].Record
		if target.IsPoSeVerified() || target.IsPoSeBanned() {
			continue
		}
		addrs = append(addrs, target.Addr)
		if len(addrs) >= MaxPoSeConnections {
			break
		}
	}

	now := r.now()
	var res []indexnode.Verification
	for _, addr := range addrs {
		// not too often
		if r.hasFulfilled(addr, fulfilledRequest, now) {
			continue
		}
		res = append(res, indexnode.NewVerification(addr, rng.Intn(maxNonce), height-1))
	}
	r.mu.Unlock()

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()
	for _, v := range res {
		r.pending[v.Addr] = pendingVerification{Added: now, Verification: v}
	}
	if len(res) > 0 {
		r.logger.WithFields(logrus.Fields{
			"rank":    myRank,
			"targets": len(res),
		}).Debug("Scheduled verifications")
	}
	return res
}

// PendingVerifications returns the challenges waiting to be sent and drops
// those that waited longer than PendingVerificationSeconds.
func (r *Registry) PendingVerifications() []indexnode.Verification {
	now := r.now()

	r.pendingMu.Lock()
	defer r.pendingMu.Unlock()

	var res []indexnode.Verification
	for addr, p := range r.pending {
		if now-p.Added > PendingVerificationSeconds {
			delete(r.pending, addr)
			continue
		}
		res = append(res, p.Verification.Copy())
	}
	return res
}

// MarkVerificationSent records that the challenge v was sent to v.Addr so
// that its reply is expected.
func (r *Registry) MarkVerificationSent(v indexnode.Verification) {
	r.pendingMu.Lock()
	delete(r.pending, v.Addr)
	r.pendingMu.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	r.addFulfilled(v.Addr, fulfilledRequest, r.now())
	r.weAskedForVerification[v.Addr] = v.Copy()
}

// ApproveVerifyReply is called before answering a challenge from peer. A
// peer may only challenge us once per FulfilledRequestSeconds.
func (r *Registry) ApproveVerifyReply(peer string) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.hasFulfilled(peer, fulfilledReply, now) {
		return reject("peer already asked for verification", VerifyDoS)
	}
	r.addFulfilled(peer, fulfilledReply, now)
	return Outcome{Accepted: true}
}

// VerifyReplyResult is produced by ApplyVerifyReply.
type VerifyReplyResult struct {
	// Verified is the identity whose operator key signed the reply.
	Verified indexnode.Identity

	// Broadcast is the verification to counter-sign and broadcast when the
	// local node is an active indexnode. Sig2 is empty.
	Broadcast *indexnode.Verification
}

// ApplyVerifyReply processes the reply of peer to a challenge we sent. self
// is the identity of the local active node, or zero.
func (r *Registry) ApplyVerifyReply(peer string, v indexnode.Verification, self indexnode.Identity) (VerifyReplyResult, Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	logger := r.logger.WithField("peer", peer)

	// did we even ask for it?
	if !r.hasFulfilled(peer, fulfilledRequest, now) {
		return VerifyReplyResult{}, reject("unsolicited verification reply", VerifyDoS)
	}
	asked, ok := r.weAskedForVerification[peer]
	if !ok {
		return VerifyReplyResult{}, reject("unsolicited verification reply", VerifyDoS)
	}
	if asked.Nonce != v.Nonce {
		return VerifyReplyResult{}, reject("wrong nonce", VerifyDoS)
	}
	if asked.BlockHeight != v.BlockHeight {
		return VerifyReplyResult{}, reject("wrong block height", VerifyDoS)
	}

	blockHash, ok := r.chain.BlockHash(v.BlockHeight)
	if !ok {
		return VerifyReplyResult{}, reject("unknown block height", 0)
	}

	if r.hasFulfilled(peer, fulfilledDone, now) {
		return VerifyReplyResult{}, reject("already verified recently", VerifyDoS)
	}

	// the reply must be bound to the address we actually reached
	signed := v.Copy()
	signed.Addr = peer
	message := signed.ReplyMessage(blockHash)

	var real *indexnode.Record
	var toBan []*indexnode.Record
	for _, rec := range r.snapshotPointers() {
		if rec.Addr != peer {
			continue
		}
		if real == nil && keys.VerifyMessage(rec.PubKeyOperator, v.Sig1, message) == nil {
			real = rec
			continue
		}
		toBan = append(toBan, rec)
	}

	if real == nil {
		return VerifyReplyResult{}, reject("no indexnode found for the signature", VerifyDoS)
	}

	if !real.IsPoSeVerified() {
		real.DecreaseBanScore()
	}
	r.addFulfilled(peer, fulfilledDone, now)

	res := VerifyReplyResult{Verified: real.Identity}
	if !self.IsZero() && self != real.Identity {
		b := signed.Copy()
		b.Identity1 = real.Identity
		b.Identity2 = self
		b.Sig2 = nil
		res.Broadcast = &b
	}

	logger.WithFields(logrus.Fields{
		"indexnode": real.Identity.String(),
		"score":     real.BanScore,
	}).Debug("Verified indexnode")

	// only one identity may own an address
	for _, rec := range toBan {
		rec.IncreaseBanScore()
		logger.WithFields(logrus.Fields{
			"indexnode": rec.Identity.String(),
			"score":     rec.BanScore,
		}).Debug("Fake indexnode at verified address")
	}

	return res, Outcome{Accepted: true}
}

// RecordVerification marks a verification as seen, typically one we built
// and are about to broadcast.
func (r *Registry) RecordVerification(v indexnode.Verification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seenVerifications[v.Hash()] = v.Copy()
}

// ApplyVerifyBroadcast processes a verification signed by both the verified
// node and its verifier.
func (r *Registry) ApplyVerifyBroadcast(v indexnode.Verification) Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()

	hash := v.Hash()
	if _, ok := r.seenVerifications[hash]; ok {
		return Outcome{Duplicate: true}
	}
	r.seenVerifications[hash] = v.Copy()

	height := r.chain.Height()
	if v.BlockHeight < height-MaxPoSeBlocks {
		return stale("outdated verification")
	}
	if v.Identity1 == v.Identity2 {
		return reject("self verification", SelfVerifyDoS)
	}

	blockHash, ok := r.chain.BlockHash(v.BlockHeight)
	if !ok {
		return reject("unknown block height", 0)
	}

	ranked, ok := r.rankAt(v.BlockHeight, MinPoSeProtocol, true)
	if !ok {
		return reject("cannot rank", 0)
	}
	verifierRank := rank.RankOf(ranked, v.Identity2)
	if verifierRank < 0 {
		return reject("cannot rank the verifier", 0)
	}
	if verifierRank > MaxPoSeRank {
		return reject("verifier is not in the top ranks", 0)
	}

	rec1, ok := r.records[v.Identity1]
	if !ok {
		return reject("unknown verified indexnode", 0)
	}
	rec2, ok := r.records[v.Identity2]
	if !ok {
		return reject("unknown verifier", 0)
	}
	if rec1.Addr != v.Addr {
		return reject("address mismatch", 0)
	}
	if keys.VerifyMessage(rec1.PubKeyOperator, v.Sig1, v.ReplyMessage(blockHash)) != nil {
		return reject("bad signature of the verified indexnode", VerifyDoS)
	}
	if keys.VerifyMessage(rec2.PubKeyOperator, v.Sig2, v.BroadcastMessage(blockHash)) != nil {
		return reject("bad signature of the verifier", VerifyDoS)
	}

	if !rec1.IsPoSeVerified() {
		rec1.DecreaseBanScore()
	}

	logger := r.logger.WithFields(logrus.Fields{
		"indexnode": rec1.Identity.String(),
		"addr":      v.Addr,
		"score":     rec1.BanScore,
	})
	logger.Debug("Verification broadcast accepted")

	for _, rec := range r.records {
		if rec.Addr != v.Addr || rec.Identity == v.Identity1 {
			continue
		}
		rec.IncreaseBanScore()
		r.logger.WithFields(logrus.Fields{
			"indexnode": rec.Identity.String(),
			"addr":      rec.Addr,
			"score":     rec.BanScore,
		}).Debug("Increased ban score of fake indexnode")
	}

	return Outcome{Accepted: true, Relay: true}
}
