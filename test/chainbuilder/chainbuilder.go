// Package chainbuilder creates linear runs of solved regtest blocks on top of
// an arbitrary ancestor, for feeding competing branches to a node.
package chainbuilder

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/miner"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
)

type Builder struct {
	params     *chaincfg.Params
	extraNonce uint64
}

// New returns a builder for params. extraNonce is put in every coinbase so
// two builders never produce the same block on the same ancestor.
func New(params *chaincfg.Params, extraNonce uint64) *Builder {
	if params == nil {
		params = &chaincfg.RegressionNetParams
	}

	return &Builder{
		params:     params,
		extraNonce: extraNonce,
	}
}

// BuildChain returns n blocks. Block i, counting from 1, is at height
// ancestorHeight+i, has timestamp ancestorMedianTime+i seconds and extends
// block i-1, the first one extending ancestorHash.
func (b *Builder) BuildChain(ctx context.Context, n int, ancestorHash *chainhash.Hash, ancestorHeight uint32, ancestorMedianTime int64) ([]*model.Block, error) {
	if n < 0 {
		return nil, errors.NewInvalidArgumentError("cannot build %d blocks", n)
	}

	if ancestorHash == nil {
		return nil, errors.NewInvalidArgumentError("ancestor hash is required")
	}

	blocks := make([]*model.Block, 0, n)
	prevHash := *ancestorHash

	for i := 1; i <= n; i++ {
		offset, err := safeconversion.IntToUint32(i)
		if err != nil {
			return nil, errors.NewInvalidArgumentError("block offset %d out of range", i, err)
		}

		block, err := miner.BuildBlock(ctx, b.params, miner.Template{
			PrevHash:   prevHash,
			Height:     ancestorHeight + offset,
			Timestamp:  time.Unix(ancestorMedianTime+int64(i), 0),
			ExtraNonce: b.extraNonce,
		})
		if err != nil {
			return nil, err
		}

		blocks = append(blocks, block)
		prevHash = *block.Hash()
	}

	return blocks, nil
}

// BuildChain builds with a regtest builder and no extra nonce.
func BuildChain(ctx context.Context, n int, ancestorHash *chainhash.Hash, ancestorHeight uint32, ancestorMedianTime int64) ([]*model.Block, error) {
	return New(nil, 0).BuildChain(ctx, n, ancestorHash, ancestorHeight, ancestorMedianTime)
}
