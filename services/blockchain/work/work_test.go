package work

import (
	"fmt"
	"math/big"
	"testing"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalcWork(t *testing.T) {
	tests := []struct {
		name         string
		bits         uint32
		expectedWork string
	}{
		{"genesis difficulty", 0x1d00ffff, "0000000000000000000000000000000000000000000000000000000100010001"},
		{"mainnet typical difficulty", 0x1a05db8b, "000000000000000000000000000000000000000000000000002bb43836381c9c"},
		{"high difficulty", 0x17053894, "0000000000000000000000000000000000000000000031085d594cb7e26e94b5"},
		{"regtest limit", 0x207fffff, "0000000000000000000000000000000000000000000000000000000000000002"},
		{"negative target", 0x01800000, "0000000000000000000000000000000000000000000000000000000000000000"},
		{"zero target", 0x00000000, "0000000000000000000000000000000000000000000000000000000000000000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expectedWork, fmt.Sprintf("%064x", CalcWork(tt.bits)))
		})
	}
}

func TestCompactToBig(t *testing.T) {
	assert.LessOrEqual(t, CompactToBig(0x207fffff).Cmp(chaincfg.RegressionNetParams.PowLimit), 0)
	assert.Equal(t, int64(0x12), CompactToBig(0x01120000).Int64())
	assert.Equal(t, int64(-0x12), CompactToBig(0x01920000).Int64())
}

func TestCumulativeWork(t *testing.T) {
	total := CumulativeWork(nil, 0x207fffff)
	for i := 0; i < 7; i++ {
		total = CumulativeWork(total, 0x207fffff)
	}

	assert.Equal(t, big.NewInt(16), total)
}

func TestCheckProofOfWork(t *testing.T) {
	powLimit := chaincfg.RegressionNetParams.PowLimit

	require.NoError(t, CheckProofOfWork(chaincfg.RegressionNetParams.GenesisHash, 0x207fffff, powLimit))

	// every byte set is above any target
	var high chainhash.Hash
	for i := range high {
		high[i] = 0xff
	}

	require.ErrorIs(t, CheckProofOfWork(&high, 0x207fffff, powLimit), errors.ErrBlockInvalid)
	require.ErrorIs(t, CheckProofOfWork(&chainhash.Hash{}, 0x00000000, powLimit), errors.ErrBlockInvalid)
	require.ErrorIs(t, CheckProofOfWork(&chainhash.Hash{}, 0x217fffff, powLimit), errors.ErrBlockInvalid)
}
