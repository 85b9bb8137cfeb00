// Package work provides the proof-of-work arithmetic used for block validation
// and chain selection.
//
// The work of a block is the expected number of hashes needed to find it,
// 2^256 / (target + 1). The chain with the largest cumulative work is the
// active chain.
package work

import (
	"math/big"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

var (
	bigOne     = big.NewInt(1)
	oneLsh256  = new(big.Int).Lsh(bigOne, 256)
	zeroTarget = big.NewInt(0)
)

// CompactToBig converts the compact "bits" encoding of a target into a big
// integer.
//
//	-------------------------------------------------
//	|   Exponent     |    Sign    |    Mantissa     |
//	-------------------------------------------------
//	| 8 bits [31-24] | 1 bit [23] | 23 bits [22-00] |
//	-------------------------------------------------
//
// N = (-1^sign) * mantissa * 256^(exponent-3)
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int

	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}

	return bn
}

// CalcWork returns the work represented by a block with the given bits. A
// negative or zero target yields zero work.
func CalcWork(bits uint32) *big.Int {
	difficultyNum := CompactToBig(bits)
	if difficultyNum.Sign() <= 0 {
		return big.NewInt(0)
	}

	denominator := new(big.Int).Add(difficultyNum, bigOne)

	return new(big.Int).Div(oneLsh256, denominator)
}

// CumulativeWork adds the work of bits to the cumulative work of the parent.
func CumulativeWork(parentWork *big.Int, bits uint32) *big.Int {
	if parentWork == nil {
		return CalcWork(bits)
	}

	return new(big.Int).Add(parentWork, CalcWork(bits))
}

// HashToBig interprets a block hash as the little endian 256 bit number the
// proof-of-work check compares against the target.
func HashToBig(hash *chainhash.Hash) *big.Int {
	buf := *hash

	for i := 0; i < chainhash.HashSize/2; i++ {
		buf[i], buf[chainhash.HashSize-1-i] = buf[chainhash.HashSize-1-i], buf[i]
	}

	return new(big.Int).SetBytes(buf[:])
}

// CheckProofOfWork verifies that bits encodes a target inside (0, powLimit]
// and that the hash does not exceed it.
func CheckProofOfWork(hash *chainhash.Hash, bits uint32, powLimit *big.Int) error {
	target := CompactToBig(bits)

	if target.Cmp(zeroTarget) <= 0 {
		return errors.NewBlockInvalidError("block target difficulty of %064x is too low", target)
	}

	if powLimit != nil && target.Cmp(powLimit) > 0 {
		return errors.NewBlockInvalidError("block target difficulty of %064x is higher than max of %064x", target, powLimit)
	}

	if HashToBig(hash).Cmp(target) > 0 {
		return errors.NewBlockInvalidError("block hash of %s is higher than expected max of %064x", hash, target)
	}

	return nil
}
