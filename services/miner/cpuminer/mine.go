// Package cpuminer searches for a header nonce that meets the target.
package cpuminer

import (
	"context"
	"math"
	"math/big"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/go-wire"
)

// Solve increments the header nonce until the block hash meets the target
// encoded in the header bits. When the nonce space is exhausted the timestamp
// is moved forward one second and the search starts over.
func Solve(ctx context.Context, msg *wire.MsgBlock, powLimit *big.Int) error {
	target := work.CompactToBig(msg.Header.Bits)
	if target.Sign() <= 0 {
		return errors.NewBlockInvalidError("block target %064x is not positive", target)
	}

	if powLimit != nil && target.Cmp(powLimit) > 0 {
		return errors.NewBlockInvalidError("block target %064x is above the proof of work limit", target)
	}

	for {
		for nonce := uint32(0); ; nonce++ {
			// the context is only checked every so often, a regtest target is
			// usually met within a couple of tries
			if nonce%4096 == 0 {
				select {
				case <-ctx.Done():
					return errors.NewContextCanceledError("mining canceled", ctx.Err())
				default:
				}
			}

			msg.Header.Nonce = nonce
			hash := msg.Header.BlockHash()

			if work.HashToBig(&hash).Cmp(target) <= 0 {
				return nil
			}

			if nonce == math.MaxUint32 {
				break
			}
		}

		msg.Header.Timestamp = msg.Header.Timestamp.Add(time.Second)
	}
}
