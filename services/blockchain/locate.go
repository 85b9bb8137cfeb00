package blockchain

import (
	"fmt"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// MedianTimePast returns the median timestamp of the block and up to ten of
// its ancestors.
func (c *Chain) MedianTimePast(hash *chainhash.Hash) (time.Time, error) {
	node, ok := c.index.get(hash)
	if !ok {
		return time.Time{}, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	medianTime, err := c.medianTimePast(node)
	if err != nil {
		return time.Time{}, err
	}

	return time.Unix(medianTime, 0), nil
}

// LocateHeaders returns the active chain blocks that follow the first
// locator hash found on the active chain, stopping after hashStop or maxHeaders
// blocks. When no locator hash is on the active chain the blocks after
// genesis are returned.
//
// An empty locator asks for hashStop alone. That block is returned whether or
// not it is on the active chain, callers decide whether it may be revealed.
func (c *Chain) LocateHeaders(locator []*chainhash.Hash, hashStop *chainhash.Hash, maxHeaders int) []*model.Block {
	view := c.view.Load()

	if len(locator) == 0 {
		if hashStop == nil {
			return nil
		}

		node, ok := c.index.get(hashStop)
		if !ok {
			return nil
		}

		return []*model.Block{node.block}
	}

	start := c.genesis
	for _, hash := range locator {
		if node, ok := c.index.get(hash); ok && view.contains(node) {
			start = node
			break
		}
	}

	blocks := make([]*model.Block, 0, 16)

	for height := int(start.height) + 1; height < len(view.nodes) && len(blocks) < maxHeaders; height++ {
		node := view.nodes[height]
		blocks = append(blocks, node.block)

		if hashStop != nil && node.hash().IsEqual(hashStop) {
			break
		}
	}

	return blocks
}

// HeaderInfo returns the getblockheader view of a known block.
func (c *Chain) HeaderInfo(hash *chainhash.Hash) (*model.BlockHeaderInfo, error) {
	node, ok := c.index.get(hash)
	if !ok {
		return nil, errors.NewBlockNotFoundError("block %s not found", hash)
	}

	view := c.view.Load()

	medianTime, err := c.medianTimePast(node)
	if err != nil {
		return nil, err
	}

	header := node.block.Header()

	info := &model.BlockHeaderInfo{
		Hash:          node.hash().String(),
		Confirmations: -1,
		Height:        node.height,
		Version:       header.Version,
		MerkleRoot:    header.MerkleRoot.String(),
		Time:          header.Timestamp.Unix(),
		MedianTime:    medianTime,
		Nonce:         header.Nonce,
		Bits:          fmt.Sprintf("%08x", header.Bits),
		ChainWork:     fmt.Sprintf("%064x", node.work),
	}

	if node.parent != nil {
		info.PreviousHash = node.parent.hash().String()
	}

	if view.contains(node) {
		info.Confirmations = int64(view.Height()-node.height) + 1

		if next, ok := view.BlockAtHeight(node.height + 1); ok {
			info.NextHash = next.Hash().String()
		}
	}

	return info, nil
}

// BlockLocator returns hashes of the active chain walking back from the tip,
// one per block for the first ten and then doubling the step, always ending
// with genesis.
func (c *Chain) BlockLocator() []*chainhash.Hash {
	view := c.view.Load()

	locator := make([]*chainhash.Hash, 0, 32)

	step := 1
	for height := int(view.Height()); height > 0; height -= step {
		locator = append(locator, view.nodes[height].hash())

		if len(locator) >= 10 {
			step *= 2
		}
	}

	return append(locator, c.genesis.hash())
}
