package blockchain

import (
	"math/big"
	"sync"

	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/dolthub/swiss"
)

// blockNode is an entry in the block index. Nodes are never modified after
// they are inserted.
type blockNode struct {
	block  *model.Block
	parent *blockNode
	work   *big.Int
	height uint32
	peerID string
}

func (n *blockNode) hash() *chainhash.Hash {
	return n.block.Hash()
}

// ancestor returns the node at the given height on the path to genesis, or
// nil when height is above the node.
func (n *blockNode) ancestor(height uint32) *blockNode {
	if height > n.height {
		return nil
	}

	node := n
	for node != nil && node.height != height {
		node = node.parent
	}

	return node
}

// blockIndex holds every block the node accepted, active or stale.
type blockIndex struct {
	mu    sync.RWMutex
	nodes *swiss.Map[chainhash.Hash, *blockNode]
}

func newBlockIndex(length uint32) *blockIndex {
	return &blockIndex{
		nodes: swiss.NewMap[chainhash.Hash, *blockNode](length),
	}
}

func (bi *blockIndex) get(hash *chainhash.Hash) (*blockNode, bool) {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	return bi.nodes.Get(*hash)
}

func (bi *blockIndex) put(node *blockNode) {
	bi.mu.Lock()
	defer bi.mu.Unlock()

	bi.nodes.Put(*node.hash(), node)
}

func (bi *blockIndex) count() int {
	bi.mu.RLock()
	defer bi.mu.RUnlock()

	return bi.nodes.Count()
}
