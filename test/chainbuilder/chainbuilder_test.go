package chainbuilder

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChain(t *testing.T) {
	params := &chaincfg.RegressionNetParams
	ancestor := params.GenesisHash

	blocks, err := BuildChain(context.Background(), 5, ancestor, 0, 1700000000)
	require.NoError(t, err)
	require.Len(t, blocks, 5)

	prev := ancestor

	for i, block := range blocks {
		assert.Equal(t, uint32(i+1), block.Height)
		assert.Equal(t, int64(1700000000+i+1), block.Timestamp().Unix())
		assert.Equal(t, prev, block.PrevHash())
		require.NoError(t, work.CheckProofOfWork(block.Hash(), block.Bits(), params.PowLimit))
		require.NoError(t, block.CheckMerkleRoot())

		height, err := block.ExtractCoinbaseHeight()
		require.NoError(t, err)
		assert.Equal(t, block.Height, height)

		prev = block.Hash()
	}
}

func TestBuildChainFromMidChain(t *testing.T) {
	ancestor := &chainhash.Hash{0x01}

	blocks, err := BuildChain(context.Background(), 2, ancestor, 3, 100)
	require.NoError(t, err)

	assert.Equal(t, uint32(4), blocks[0].Height)
	assert.Equal(t, int64(101), blocks[0].Timestamp().Unix())
	assert.Equal(t, uint32(5), blocks[1].Height)
	assert.Equal(t, int64(102), blocks[1].Timestamp().Unix())
}

func TestBuildersDoNotCollide(t *testing.T) {
	params := &chaincfg.RegressionNetParams

	a, err := New(params, 1).BuildChain(context.Background(), 1, params.GenesisHash, 0, 1700000000)
	require.NoError(t, err)

	b, err := New(params, 2).BuildChain(context.Background(), 1, params.GenesisHash, 0, 1700000000)
	require.NoError(t, err)

	assert.NotEqual(t, a[0].Hash(), b[0].Hash())
}

func TestBuildChainRejectsBadArguments(t *testing.T) {
	_, err := BuildChain(context.Background(), -1, &chainhash.Hash{}, 0, 0)
	require.Error(t, err)

	_, err = BuildChain(context.Background(), 1, nil, 0, 0)
	require.Error(t, err)

	blocks, err := BuildChain(context.Background(), 0, &chainhash.Hash{}, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, blocks)
}
