package blockchain

import (
	"math/big"
	"time"

	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// View is an immutable snapshot of the active chain. A reorg publishes a new
// View, so a reader holding one sees a single consistent active chain for as
// long as it keeps it.
type View struct {
	index *blockIndex
	nodes []*blockNode // active chain indexed by height
}

func (v *View) tip() *blockNode {
	return v.nodes[len(v.nodes)-1]
}

func (v *View) contains(node *blockNode) bool {
	return node != nil && int(node.height) < len(v.nodes) && v.nodes[node.height] == node
}

// extend returns a view with node appended. Only the most recently published
// view is ever extended, so sharing the backing array is safe.
func (v *View) extend(node *blockNode) *View {
	return &View{
		index: v.index,
		nodes: append(v.nodes, node),
	}
}

// reorgTo returns a view whose tip is node, sharing nothing with v.
func (v *View) reorgTo(node *blockNode) *View {
	nodes := make([]*blockNode, node.height+1)

	for n := node; n != nil; n = n.parent {
		nodes[n.height] = n
	}

	return &View{
		index: v.index,
		nodes: nodes,
	}
}

// Tip returns the highest block of the active chain.
func (v *View) Tip() *model.Block {
	return v.tip().block
}

// Height returns the height of the active chain tip.
func (v *View) Height() uint32 {
	return v.tip().height
}

// TipWork returns the cumulative work of the active chain tip.
func (v *View) TipWork() *big.Int {
	return new(big.Int).Set(v.tip().work)
}

// BlockAtHeight returns the active chain block at height.
func (v *View) BlockAtHeight(height uint32) (*model.Block, bool) {
	if int(height) >= len(v.nodes) {
		return nil, false
	}

	return v.nodes[height].block, true
}

// IsOnActiveChain reports whether hash is part of this view's active chain.
func (v *View) IsOnActiveChain(hash *chainhash.Hash) bool {
	node, ok := v.index.get(hash)
	if !ok {
		return false
	}

	return v.contains(node)
}

// Lookup reports the timestamp of a known block and whether it is on this
// view's active chain. found is false for unknown hashes.
func (v *View) Lookup(hash *chainhash.Hash) (timestamp time.Time, onActiveChain bool, found bool) {
	node, ok := v.index.get(hash)
	if !ok {
		return time.Time{}, false, false
	}

	return node.block.Timestamp(), v.contains(node), true
}
