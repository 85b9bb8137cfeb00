// Package miner assembles regtest blocks: a coinbase, a header on top of a
// given parent and a solved nonce. Both the node's generate call and the
// chain builder used by the tests go through it.
package miner

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/miner/cpuminer"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-wire"
)

const blockVersion = 0x20000000

// Template describes the block to build.
type Template struct {
	PrevHash   chainhash.Hash
	Height     uint32
	Timestamp  time.Time
	Bits       uint32
	ExtraNonce uint64
}

// CreateBlock returns an unsolved block with coinbase as its only
// transaction.
func CreateBlock(prevHash *chainhash.Hash, timestamp time.Time, bits uint32, coinbase *wire.MsgTx) *wire.MsgBlock {
	msg := &wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    blockVersion,
			PrevBlock:  *prevHash,
			MerkleRoot: model.BuildMerkleRoot([]chainhash.Hash{coinbase.TxHash()}),
			Timestamp:  time.Unix(timestamp.Unix(), 0),
			Bits:       bits,
		},
	}

	_ = msg.AddTransaction(coinbase)

	return msg
}

// BuildBlock creates the coinbase and block for tmpl and solves it against
// the chain's proof-of-work limit.
func BuildBlock(ctx context.Context, params *chaincfg.Params, tmpl Template) (*model.Block, error) {
	if params == nil {
		return nil, errors.NewInvalidArgumentError("chain params are required")
	}

	bits := tmpl.Bits
	if bits == 0 {
		bits = params.PowLimitBits
	}

	coinbase, err := CreateCoinbase(tmpl.Height, params, tmpl.ExtraNonce)
	if err != nil {
		return nil, err
	}

	msg := CreateBlock(&tmpl.PrevHash, tmpl.Timestamp, bits, coinbase)

	if err = cpuminer.Solve(ctx, msg, params.PowLimit); err != nil {
		return nil, err
	}

	return model.NewBlock(msg, tmpl.Height)
}
