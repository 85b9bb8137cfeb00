package blockchain

import (
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/fingerprint/util"
	"github.com/bsv-blockchain/go-wire"
)

// CheckHeader validates a header against its parent: the parent must be
// known, the proof of work must meet the target, and the timestamp must be
// after the parent's median time past and no further ahead of now than
// blockchain_maxFutureBlockTime allows.
func (c *Chain) CheckHeader(header *wire.BlockHeader, now time.Time) error {
	hash := header.BlockHash()

	parent, ok := c.index.get(&header.PrevBlock)
	if !ok {
		return errors.NewBlockOrphanError("parent %s of header %s is unknown", header.PrevBlock, hash)
	}

	if err := work.CheckProofOfWork(&hash, header.Bits, c.params.PowLimit); err != nil {
		return errors.NewHeaderInvalidError("header %s failed proof of work", hash, err)
	}

	medianTime, err := c.medianTimePast(parent)
	if err != nil {
		return err
	}

	if header.Timestamp.Unix() <= medianTime {
		return errors.NewHeaderInvalidError("header %s timestamp %d is not after median time past %d", hash, header.Timestamp.Unix(), medianTime)
	}

	maxTime := now.Add(c.settings.BlockChain.MaxFutureBlockTime)
	if header.Timestamp.After(maxTime) {
		return errors.NewHeaderInvalidError("header %s timestamp %s is too far in the future, max %s", hash, header.Timestamp, maxTime)
	}

	return nil
}

// CheckBlock runs CheckHeader and the block level checks: merkle root,
// coinbase height and the configured excessive block size.
func (c *Chain) CheckBlock(block *model.Block, now time.Time) error {
	header := block.Header()
	if err := c.CheckHeader(&header, now); err != nil {
		return err
	}

	if maxSize := c.settings.Policy.ExcessiveBlockSize; maxSize > 0 && len(block.Bytes()) > maxSize {
		return errors.NewBlockInvalidError("block %s is %d bytes, larger than %d", block.Hash(), len(block.Bytes()), maxSize)
	}

	if err := block.CheckMerkleRoot(); err != nil {
		return err
	}

	coinbaseHeight, err := block.ExtractCoinbaseHeight()
	if err != nil {
		return err
	}

	if coinbaseHeight != block.Height {
		return errors.NewBlockInvalidError("block %s coinbase height %d does not match block height %d", block.Hash(), coinbaseHeight, block.Height)
	}

	return nil
}

func (c *Chain) medianTimePast(node *blockNode) (int64, error) {
	timestamps := make([]int64, 0, util.MedianTimeBlocks)

	for n := node; n != nil && len(timestamps) < util.MedianTimeBlocks; n = n.parent {
		timestamps = append(timestamps, n.block.Timestamp().Unix())
	}

	return util.CalcPastMedianTime(timestamps)
}
