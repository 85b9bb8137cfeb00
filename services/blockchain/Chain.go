// Package blockchain keeps the node's block index and active chain.
//
// Every accepted block stays in the index, including blocks on branches that
// lost a reorg. The active chain is the path from genesis to the block with
// the most cumulative work, ties going to the block seen first. It is
// published as an immutable View, so a concurrent reader sees either the
// chain before a reorg or the chain after it.
package blockchain

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/fingerprint/settings"
	blockchainstore "github.com/bsv-blockchain/fingerprint/stores/blockchain"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
)

type Chain struct {
	logger    ulogger.Logger
	settings  *settings.Settings
	params    *chaincfg.Params
	store     blockchainstore.Store
	index     *blockIndex
	genesis   *blockNode
	view      atomic.Pointer[View]
	appendMu  sync.Mutex
	listeners []func(*model.Block, bool)
}

// New creates a chain holding only the genesis block of the configured
// network. store may be nil, in which case accepted blocks are kept in memory
// only.
func New(logger ulogger.Logger, tSettings *settings.Settings, store blockchainstore.Store) (*Chain, error) {
	initPrometheusMetrics()

	params := tSettings.ChainCfgParams
	if params == nil || params.GenesisBlock == nil {
		return nil, errors.NewConfigurationError("chain params with a genesis block are required")
	}

	genesisBlock, err := model.NewBlock(params.GenesisBlock, 0)
	if err != nil {
		return nil, errors.NewStateInitializationError("failed to create genesis block", err)
	}

	if !genesisBlock.Hash().IsEqual(params.GenesisHash) {
		return nil, errors.NewStateInitializationError("genesis hash mismatch: got %s, expected %s", genesisBlock.Hash(), params.GenesisHash)
	}

	c := &Chain{
		logger:   logger.New("chain"),
		settings: tSettings,
		params:   params,
		store:    store,
		index:    newBlockIndex(1024),
	}

	c.genesis = &blockNode{
		block:  genesisBlock,
		work:   work.CalcWork(genesisBlock.Bits()),
		height: 0,
	}

	c.index.put(c.genesis)
	c.view.Store(&View{index: c.index, nodes: []*blockNode{c.genesis}})

	prometheusChainHeight.Set(0)

	return c, nil
}

// Load replays every block persisted in the store, in insertion order, so a
// restarted node ends up with the same index and active chain.
func (c *Chain) Load(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	blocks, metas, err := c.store.GetBlocks(ctx)
	if err != nil {
		return errors.NewStateInitializationError("failed to load blocks from store", err)
	}

	for i, block := range blocks {
		if _, err = c.connect(ctx, block, metas[i].PeerID, false); err != nil {
			return errors.NewStateInitializationError("failed to replay block %s", block, err)
		}
	}

	c.logger.Infof("loaded %d blocks from store, tip %s", len(blocks), c.Tip())

	return nil
}

// OnTipChanged registers fn to be called after a block is appended to the
// active chain. reorg is true when the active chain switched branches.
func (c *Chain) OnTipChanged(fn func(tip *model.Block, reorg bool)) {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	c.listeners = append(c.listeners, fn)
}

// Append adds a block whose parent is already known. If the block gives a
// chain with strictly more work than the current tip, it becomes the new tip
// and, if it is not on the current active chain, a reorg takes place. It
// returns whether the active chain changed.
func (c *Chain) Append(ctx context.Context, block *model.Block, peerID string) (bool, error) {
	return c.connect(ctx, block, peerID, true)
}

// connect links block into the index and notifies the tip listeners once
// appendMu has been released, so a slow listener never holds up other
// appends.
func (c *Chain) connect(ctx context.Context, block *model.Block, peerID string, persist bool) (bool, error) {
	if block == nil {
		return false, errors.NewInvalidArgumentError("block is nil")
	}

	changed, reorg, listeners, err := c.link(ctx, block, peerID, persist)
	if err != nil || !changed {
		return false, err
	}

	for _, fn := range listeners {
		fn(block, reorg)
	}

	return true, nil
}

// link reports whether the tip changed and returns the listeners registered
// at that moment.
func (c *Chain) link(ctx context.Context, block *model.Block, peerID string, persist bool) (changed, reorg bool, listeners []func(*model.Block, bool), err error) {
	c.appendMu.Lock()
	defer c.appendMu.Unlock()

	if _, exists := c.index.get(block.Hash()); exists {
		return false, false, nil, errors.NewBlockExistsError("block %s already known", block.Hash())
	}

	parent, ok := c.index.get(block.PrevHash())
	if !ok {
		return false, false, nil, errors.NewBlockOrphanError("parent %s of block %s is unknown", block.PrevHash(), block.Hash())
	}

	if block.Height != parent.height+1 {
		return false, false, nil, errors.NewBlockInvalidError("block %s has height %d, expected %d", block.Hash(), block.Height, parent.height+1)
	}

	node := &blockNode{
		block:  block,
		parent: parent,
		work:   work.CumulativeWork(parent.work, block.Bits()),
		height: block.Height,
		peerID: peerID,
	}

	if persist && c.store != nil {
		if _, err := c.store.StoreBlock(ctx, block, &model.BlockMeta{ChainWork: node.work, PeerID: peerID}); err != nil {
			return false, false, nil, errors.NewStorageError("failed to store block %s", block.Hash(), err)
		}
	}

	c.index.put(node)
	prometheusChainBlocks.Inc()

	current := c.view.Load()
	tip := current.tip()

	// equal work keeps the tip that was seen first
	if node.work.Cmp(tip.work) <= 0 {
		c.logger.Debugf("accepted block %s on a side branch, tip remains %s", node.block, tip.block)
		return false, false, nil, nil
	}

	reorg = node.parent != tip
	if reorg {
		c.view.Store(current.reorgTo(node))
		prometheusChainReorgs.Inc()
		c.logger.Infof("reorg from %s to %s", tip.block, node.block)
	} else {
		c.view.Store(current.extend(node))
	}

	prometheusChainHeight.Set(float64(node.height))

	return true, reorg, slices.Clone(c.listeners), nil
}

// View returns the current active chain snapshot.
func (c *Chain) View() *View {
	return c.view.Load()
}

func (c *Chain) Genesis() *model.Block {
	return c.genesis.block
}

func (c *Chain) Params() *chaincfg.Params {
	return c.params
}

func (c *Chain) Tip() *model.Block {
	return c.view.Load().Tip()
}

func (c *Chain) Height() uint32 {
	return c.view.Load().Height()
}

// BlockCount returns the number of blocks in the index, stale ones included.
func (c *Chain) BlockCount() int {
	return c.index.count()
}

func (c *Chain) IsOnActiveChain(hash *chainhash.Hash) bool {
	return c.view.Load().IsOnActiveChain(hash)
}

func (c *Chain) HeightOf(hash *chainhash.Hash) (uint32, bool) {
	node, ok := c.index.get(hash)
	if !ok {
		return 0, false
	}

	return node.height, true
}

func (c *Chain) BlockByHash(hash *chainhash.Hash) (*model.Block, bool) {
	node, ok := c.index.get(hash)
	if !ok {
		return nil, false
	}

	return node.block, true
}

// BlockExists reports whether hash is in the index.
func (c *Chain) BlockExists(hash *chainhash.Hash) bool {
	_, ok := c.index.get(hash)
	return ok
}
