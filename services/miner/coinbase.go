package miner

import (
	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-wire"
)

const (
	// baseSubsidy is the starting block reward in satoshis.
	baseSubsidy int64 = 50 * 100_000_000

	// regtestHalvingInterval applies when the chain params carry no reduction
	// interval.
	regtestHalvingInterval = 150

	opZero = 0x00
	opOne  = 0x51
	opTrue = 0x51
)

// CalcBlockSubsidy returns the coinbase reward for a block at height.
func CalcBlockSubsidy(height uint32, params *chaincfg.Params) int64 {
	interval := uint32(regtestHalvingInterval)
	if params != nil && params.SubsidyReductionInterval > 0 {
		interval = uint32(params.SubsidyReductionInterval) //nolint:gosec // checked positive
	}

	halvings := height / interval
	if halvings >= 64 {
		return 0
	}

	return baseSubsidy >> halvings
}

// HeightScript returns the minimal script push of height, as required at the
// start of a coinbase signature script.
func HeightScript(height uint32) []byte {
	switch {
	case height == 0:
		return []byte{opZero}
	case height <= 16:
		return []byte{byte(opOne - 1 + height)}
	}

	var data []byte

	for h := height; h > 0; h >>= 8 {
		data = append(data, byte(h&0xff))
	}

	// a set high bit would make the number negative
	if data[len(data)-1]&0x80 != 0 {
		data = append(data, 0x00)
	}

	return append([]byte{byte(len(data))}, data...)
}

// CreateCoinbase builds a coinbase paying the full subsidy to an anyone can
// spend output. extraNonce is pushed after the height so two coinbases at the
// same height can be told apart.
func CreateCoinbase(height uint32, params *chaincfg.Params, extraNonce uint64) (*wire.MsgTx, error) {
	sigScript := HeightScript(height)

	var extra []byte
	for n := extraNonce; n > 0; n >>= 8 {
		extra = append(extra, byte(n&0xff))
	}

	if len(extra) == 0 {
		sigScript = append(sigScript, opTrue)
	} else {
		sigScript = append(sigScript, byte(len(extra)))
		sigScript = append(sigScript, extra...)
	}

	if len(sigScript) < 2 || len(sigScript) > 100 {
		return nil, errors.NewProcessingError("coinbase signature script length %d out of range", len(sigScript))
	}

	tx := wire.NewMsgTx(1)
	tx.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Index: wire.MaxPrevOutIndex},
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	tx.AddTxOut(&wire.TxOut{
		Value:    CalcBlockSubsidy(height, params),
		PkScript: []byte{opTrue},
	})

	return tx, nil
}
