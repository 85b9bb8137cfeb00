// Package blockchain defines the persistence interface for accepted blocks.
//
// The chain model keeps every block in memory; the store is the durable copy
// that lets a restarted node rebuild the same block index, stale branches
// included.
package blockchain

import (
	"context"

	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type Store interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	StoreBlock(ctx context.Context, block *model.Block, meta *model.BlockMeta) (uint64, error)
	GetBlock(ctx context.Context, blockHash *chainhash.Hash) (*model.Block, *model.BlockMeta, error)
	GetBlockExists(ctx context.Context, blockHash *chainhash.Hash) (bool, error)
	// GetBlocks returns every stored block in insertion order, so a parent
	// always precedes its children.
	GetBlocks(ctx context.Context) ([]*model.Block, []*model.BlockMeta, error)
	Close() error
}
