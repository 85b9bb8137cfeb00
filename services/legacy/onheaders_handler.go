package legacy

import (
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/jellydator/ttlcache/v3"
	"github.com/ordishs/gocore"
)

// OnHeaders requests every announced block the node does not have yet with a
// single getdata. The first header must connect to a known block, the rest
// must form a chain on top of it.
func (sp *serverPeer) OnHeaders(p *peer.Peer, msg *wire.MsgHeaders) {
	if !sp.ready(msg.Command()) {
		return
	}

	if len(msg.Headers) == 0 {
		return
	}

	start := gocore.CurrentTime()
	defer sp.server.stats.NewStat("OnHeaders").AddTime(start)

	chain := sp.server.chain
	now := sp.server.clock.Now()
	getData := wire.NewMsgGetData()

	var prevHash chainhash.Hash

	for i, header := range msg.Headers {
		hash := header.BlockHash()
		sp.markBlock(&hash)

		if i > 0 && !header.PrevBlock.IsEqual(&prevHash) {
			prometheusLegacyInvalid.Inc()
			sp.addBanScore(20, "non-continuous headers sequence")

			return
		}

		prevHash = hash

		if chain.BlockExists(&hash) {
			continue
		}

		if err := sp.checkHeader(header, i == 0 || chain.BlockExists(&header.PrevBlock), now); err != nil {
			if errors.Is(err, errors.ErrBlockOrphan) {
				sp.server.logger.Debugf("[%s] headers do not connect: %v", sp, err)
				sp.pushGetHeaders(p, nil)

				return
			}

			prometheusLegacyInvalid.Inc()
			sp.server.logger.Warnf("[%s] invalid header %s: %v", sp, hash, err)
			sp.addBanScore(20, "invalid header")

			return
		}

		if sp.server.requestedBlocks.Has(hash) {
			continue
		}

		if err := getData.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, &hash)); err != nil {
			break
		}

		sp.server.requestedBlocks.Set(hash, sp.ID(), ttlcache.DefaultTTL)
	}

	if len(getData.InvList) > 0 {
		p.QueueMessage(getData, nil)
	}
}

// checkHeader runs the full header checks when the parent is in the chain
// and only proof of work when the parent is an earlier header of the same
// message.
func (sp *serverPeer) checkHeader(header *wire.BlockHeader, parentKnown bool, now time.Time) error {
	chain := sp.server.chain

	if parentKnown {
		return chain.CheckHeader(header, now)
	}

	hash := header.BlockHash()

	if err := work.CheckProofOfWork(&hash, header.Bits, chain.Params().PowLimit); err != nil {
		return errors.NewHeaderInvalidError("header %s failed proof of work", hash, err)
	}

	return nil
}
