package legacy

import (
	"strconv"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/go-wire"
	"github.com/ordishs/gocore"
)

// OnBlock validates a block against its parent and adds it to the chain.
// Blocks whose parent is unknown are dropped.
func (sp *serverPeer) OnBlock(_ *peer.Peer, msg *wire.MsgBlock, _ []byte) {
	if !sp.ready(msg.Command()) {
		return
	}

	start := gocore.CurrentTime()
	defer sp.server.stats.NewStat("OnBlock").AddTime(start)

	chain := sp.server.chain
	hash := msg.BlockHash()

	sp.markBlock(&hash)
	sp.server.requestedBlocks.Delete(hash)

	if chain.BlockExists(&hash) {
		sp.server.logger.Debugf("[%s] already have block %s", sp, hash)
		return
	}

	parentHeight, ok := chain.HeightOf(&msg.Header.PrevBlock)
	if !ok {
		sp.server.logger.Infof("[%s] dropping orphan block %s, parent %s unknown", sp, hash, msg.Header.PrevBlock)
		return
	}

	block, err := model.NewBlock(msg, parentHeight+1)
	if err != nil {
		prometheusLegacyInvalid.Inc()
		sp.addBanScore(100, "undecodable block")

		return
	}

	if err = chain.CheckBlock(block, sp.server.clock.Now()); err != nil {
		sp.server.logger.Warnf("[%s] rejected block %s (%s): %v", sp, hash, errors.GetErrorCategory(err), err)

		if errors.IsMisbehaviourError(err) {
			prometheusLegacyInvalid.Inc()
			sp.addBanScore(100, "invalid block")
		}

		return
	}

	tipChanged, err := chain.Append(sp.server.ctx, block, strconv.Itoa(int(sp.ID())))
	if err != nil {
		if errors.Is(err, errors.ErrBlockExists) {
			return
		}

		sp.server.logger.Errorf("[%s] failed to add block %s: %v", sp, hash, err)

		return
	}

	prometheusLegacyBlocks.Inc()

	sp.server.logger.Infof("[%s] accepted block %s at height %d, tip changed: %t", sp, hash, block.Height, tipChanged)
}
