package sql

import (
	"context"
	"math/big"
	"net/url"
	"testing"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQL {
	t.Helper()

	storeURL, err := url.Parse("sqlitememory:///blockchain")
	require.NoError(t, err)

	s, err := New(context.Background(), &ulogger.TestLogger{}, storeURL, t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = s.Close()
	})

	return s
}

func testBlock(t *testing.T, prev *chainhash.Hash, height uint32, extra byte) *model.Block {
	t.Helper()

	coinbase := &wire.MsgTx{
		Version: 1,
		TxIn: []*wire.TxIn{{
			PreviousOutPoint: wire.OutPoint{Index: 0xffffffff},
			SignatureScript:  []byte{0x01, byte(height), extra},
			Sequence:         0xffffffff,
		}},
		TxOut: []*wire.TxOut{{Value: 50_0000_0000, PkScript: []byte{0x51}}},
	}

	block, err := model.NewBlock(&wire.MsgBlock{
		Header: wire.BlockHeader{
			Version:    1,
			PrevBlock:  *prev,
			MerkleRoot: coinbase.TxHash(),
			Timestamp:  time.Unix(1296688700+int64(height), 0),
			Bits:       0x207fffff,
		},
		Transactions: []*wire.MsgTx{coinbase},
	}, height)
	require.NoError(t, err)

	return block
}

func TestStoreAndGetBlock(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	block := testBlock(t, chaincfg.RegressionNetParams.GenesisHash, 1, 0)
	meta := &model.BlockMeta{ChainWork: big.NewInt(4), PeerID: "peer-1"}

	id, err := s.StoreBlock(ctx, block, meta)
	require.NoError(t, err)
	assert.Positive(t, id)
	assert.Equal(t, id, meta.ID)

	exists, err := s.GetBlockExists(ctx, block.Hash())
	require.NoError(t, err)
	assert.True(t, exists)

	got, gotMeta, err := s.GetBlock(ctx, block.Hash())
	require.NoError(t, err)
	assert.Equal(t, block.Hash(), got.Hash())
	assert.Equal(t, uint32(1), got.Height)
	assert.Equal(t, block.Bytes(), got.Bytes())
	assert.Equal(t, id, gotMeta.ID)
	assert.Equal(t, 0, gotMeta.ChainWork.Cmp(big.NewInt(4)))
	assert.Equal(t, "peer-1", gotMeta.PeerID)
}

func TestStoreBlockDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	block := testBlock(t, chaincfg.RegressionNetParams.GenesisHash, 1, 0)

	_, err := s.StoreBlock(ctx, block, &model.BlockMeta{ChainWork: big.NewInt(4)})
	require.NoError(t, err)

	_, err = s.StoreBlock(ctx, block, &model.BlockMeta{ChainWork: big.NewInt(4)})
	require.ErrorIs(t, err, errors.ErrBlockExists)
}

func TestStoreBlockInvalidArguments(t *testing.T) {
	s := newTestStore(t)

	_, err := s.StoreBlock(context.Background(), nil, &model.BlockMeta{})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)

	block := testBlock(t, chaincfg.RegressionNetParams.GenesisHash, 1, 0)
	_, err = s.StoreBlock(context.Background(), block, &model.BlockMeta{})
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestGetBlockNotFound(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.GetBlock(context.Background(), &chainhash.Hash{0x01})
	require.ErrorIs(t, err, errors.ErrBlockNotFound)

	exists, err := s.GetBlockExists(context.Background(), &chainhash.Hash{0x01})
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestGetBlocksInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	genesis := chaincfg.RegressionNetParams.GenesisHash

	b1 := testBlock(t, genesis, 1, 0)
	b2 := testBlock(t, b1.Hash(), 2, 0)
	fork := testBlock(t, genesis, 1, 1)

	for i, b := range []*model.Block{b1, b2, fork} {
		_, err := s.StoreBlock(ctx, b, &model.BlockMeta{ChainWork: big.NewInt(int64(2 * (i + 2)))})
		require.NoError(t, err)
	}

	blocks, metas, err := s.GetBlocks(ctx)
	require.NoError(t, err)
	require.Len(t, blocks, 3)
	require.Len(t, metas, 3)

	assert.Equal(t, b1.Hash(), blocks[0].Hash())
	assert.Equal(t, b2.Hash(), blocks[1].Hash())
	assert.Equal(t, fork.Hash(), blocks[2].Hash())
	assert.Less(t, metas[0].ID, metas[1].ID)
	assert.Less(t, metas[1].ID, metas[2].ID)
}

func TestHealth(t *testing.T) {
	s := newTestStore(t)

	status, msg, err := s.Health(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
	assert.Equal(t, "OK", msg)
}
