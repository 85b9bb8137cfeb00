package blockchain

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain/work"
	"github.com/bsv-blockchain/fingerprint/services/miner"
	"github.com/bsv-blockchain/fingerprint/settings"
	blockchainstore "github.com/bsv-blockchain/fingerprint/stores/blockchain"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseTime = int64(1700000000)

func newTestChain(t *testing.T, store blockchainstore.Store) *Chain {
	t.Helper()

	c, err := New(&ulogger.TestLogger{}, settings.NewSettings(), store)
	require.NoError(t, err)

	return c
}

func buildOn(t *testing.T, c *Chain, parent *model.Block, timestamp int64, extraNonce uint64) *model.Block {
	t.Helper()

	block, err := miner.BuildBlock(context.Background(), c.Params(), miner.Template{
		PrevHash:   *parent.Hash(),
		Height:     parent.Height + 1,
		Timestamp:  time.Unix(timestamp, 0),
		ExtraNonce: extraNonce,
	})
	require.NoError(t, err)

	return block
}

// appendChain builds and appends n blocks on parent, one second apart.
func appendChain(t *testing.T, c *Chain, parent *model.Block, n int, extraNonce uint64) []*model.Block {
	t.Helper()

	blocks := make([]*model.Block, 0, n)

	for i := 0; i < n; i++ {
		block := buildOn(t, c, parent, baseTime+int64(parent.Height)+1, extraNonce)

		_, err := c.Append(context.Background(), block, "")
		require.NoError(t, err)

		blocks = append(blocks, block)
		parent = block
	}

	return blocks
}

func TestNewChain(t *testing.T) {
	c := newTestChain(t, nil)

	assert.Equal(t, c.Params().GenesisHash, c.Genesis().Hash())
	assert.Equal(t, c.Genesis().Hash(), c.Tip().Hash())
	assert.Equal(t, uint32(0), c.Height())
	assert.True(t, c.IsOnActiveChain(c.Genesis().Hash()))
	assert.Equal(t, 1, c.BlockCount())
}

func TestAppendExtendsActiveChain(t *testing.T) {
	c := newTestChain(t, nil)

	blocks := appendChain(t, c, c.Genesis(), 5, 0)

	assert.Equal(t, uint32(5), c.Height())
	assert.Equal(t, blocks[4].Hash(), c.Tip().Hash())

	for i, block := range blocks {
		assert.True(t, c.IsOnActiveChain(block.Hash()))

		height, ok := c.HeightOf(block.Hash())
		require.True(t, ok)
		assert.Equal(t, uint32(i+1), height)

		got, ok := c.BlockByHash(block.Hash())
		require.True(t, ok)
		assert.Equal(t, block.Hash(), got.Hash())
	}

	// genesis work plus five blocks of work 2
	assert.Equal(t, int64(12), c.View().TipWork().Int64())
}

func TestAppendReorg(t *testing.T) {
	c := newTestChain(t, nil)

	main := appendChain(t, c, c.Genesis(), 5, 0)

	// a fork from height 3 with equal work keeps the first seen tip
	fork := appendChain(t, c, main[2], 2, 1)
	assert.Equal(t, main[4].Hash(), c.Tip().Hash())
	assert.False(t, c.IsOnActiveChain(fork[1].Hash()))

	// one more block gives the fork strictly more work
	forkTip := buildOn(t, c, fork[1], baseTime+7, 1)

	changed, err := c.Append(context.Background(), forkTip, "peer")
	require.NoError(t, err)
	assert.True(t, changed)

	assert.Equal(t, uint32(6), c.Height())
	assert.Equal(t, forkTip.Hash(), c.Tip().Hash())

	for _, block := range main[:3] {
		assert.True(t, c.IsOnActiveChain(block.Hash()))
	}

	for _, block := range main[3:] {
		assert.False(t, c.IsOnActiveChain(block.Hash()))

		// stale blocks stay known
		_, ok := c.BlockByHash(block.Hash())
		assert.True(t, ok)
	}

	for _, block := range fork {
		assert.True(t, c.IsOnActiveChain(block.Hash()))
	}

	active, ok := c.View().BlockAtHeight(4)
	require.True(t, ok)
	assert.Equal(t, fork[0].Hash(), active.Hash())
}

func TestAppendRejects(t *testing.T) {
	c := newTestChain(t, nil)
	ctx := context.Background()

	blocks := appendChain(t, c, c.Genesis(), 1, 0)

	_, err := c.Append(ctx, blocks[0], "")
	require.ErrorIs(t, err, errors.ErrBlockExists)

	orphanParent := buildOn(t, c, blocks[0], baseTime+10, 5)
	orphan := buildOn(t, c, orphanParent, baseTime+11, 5)

	_, err = c.Append(ctx, orphan, "")
	require.ErrorIs(t, err, errors.ErrBlockOrphan)

	wrongHeight, err := model.NewBlock(buildOn(t, c, blocks[0], baseTime+12, 6).MsgBlock(), 7)
	require.NoError(t, err)

	_, err = c.Append(ctx, wrongHeight, "")
	require.ErrorIs(t, err, errors.ErrBlockInvalid)

	_, err = c.Append(ctx, nil, "")
	require.ErrorIs(t, err, errors.ErrInvalidArgument)
}

func TestViewIsConsistentDuringReorg(t *testing.T) {
	c := newTestChain(t, nil)

	main := appendChain(t, c, c.Genesis(), 5, 0)
	fork := make([]*model.Block, 0, 5)

	parent := main[2]
	for i := 0; i < 5; i++ {
		block := buildOn(t, c, parent, baseTime+int64(parent.Height)+2, 9)
		fork = append(fork, block)
		parent = block
	}

	var (
		stop      atomic.Bool
		violation atomic.Bool
		wg        sync.WaitGroup
	)

	for r := 0; r < 4; r++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for !stop.Load() {
				view := c.View()

				onMain := view.IsOnActiveChain(main[4].Hash())
				onFork := view.IsOnActiveChain(fork[2].Hash())

				// both tips can never be active in one view
				if onMain && onFork {
					violation.Store(true)
				}

				// the active chain is contiguous
				for h := uint32(1); h <= view.Height(); h++ {
					block, _ := view.BlockAtHeight(h)
					prev, _ := view.BlockAtHeight(h - 1)

					if !block.PrevHash().IsEqual(prev.Hash()) {
						violation.Store(true)
					}
				}
			}
		}()
	}

	for _, block := range fork {
		_, err := c.Append(context.Background(), block, "")
		require.NoError(t, err)
	}

	stop.Store(true)
	wg.Wait()

	assert.False(t, violation.Load())
	assert.Equal(t, uint32(8), c.Height())
	assert.False(t, c.IsOnActiveChain(main[4].Hash()))
}

func TestMedianTimePast(t *testing.T) {
	c := newTestChain(t, nil)

	blocks := appendChain(t, c, c.Genesis(), 12, 0)

	// twelve blocks at baseTime+1 .. baseTime+12, the last eleven are +2 .. +12
	mtp, err := c.MedianTimePast(blocks[11].Hash())
	require.NoError(t, err)
	assert.Equal(t, baseTime+7, mtp.Unix())

	// genesis and blocks one and two
	mtp, err = c.MedianTimePast(blocks[1].Hash())
	require.NoError(t, err)
	assert.Equal(t, baseTime+1, mtp.Unix())

	_, err = c.MedianTimePast(&chainhash.Hash{0x01})
	require.ErrorIs(t, err, errors.ErrBlockNotFound)
}

func TestLocateHeaders(t *testing.T) {
	c := newTestChain(t, nil)

	main := appendChain(t, c, c.Genesis(), 5, 0)
	fork := appendChain(t, c, main[2], 3, 1)

	// stale block by hash stop alone
	located := c.LocateHeaders(nil, main[4].Hash(), wire.MaxBlockHeadersPerMsg)
	require.Len(t, located, 1)
	assert.Equal(t, main[4].Hash(), located[0].Hash())

	assert.Empty(t, c.LocateHeaders(nil, &chainhash.Hash{0x01}, wire.MaxBlockHeadersPerMsg))
	assert.Empty(t, c.LocateHeaders(nil, nil, wire.MaxBlockHeadersPerMsg))

	// from genesis to the tip of the active chain
	located = c.LocateHeaders([]*chainhash.Hash{c.Genesis().Hash()}, nil, wire.MaxBlockHeadersPerMsg)
	require.Len(t, located, 6)
	assert.Equal(t, fork[2].Hash(), located[5].Hash())

	// a stale locator entry is skipped in favour of the next active one
	located = c.LocateHeaders([]*chainhash.Hash{main[4].Hash(), main[1].Hash()}, fork[0].Hash(), wire.MaxBlockHeadersPerMsg)
	require.Len(t, located, 2)
	assert.Equal(t, main[2].Hash(), located[0].Hash())
	assert.Equal(t, fork[0].Hash(), located[1].Hash())

	located = c.LocateHeaders([]*chainhash.Hash{c.Genesis().Hash()}, nil, 2)
	require.Len(t, located, 2)
}

func TestHeaderInfo(t *testing.T) {
	c := newTestChain(t, nil)

	main := appendChain(t, c, c.Genesis(), 5, 0)
	appendChain(t, c, main[2], 3, 1)

	info, err := c.HeaderInfo(main[2].Hash())
	require.NoError(t, err)
	assert.Equal(t, main[2].Hash().String(), info.Hash)
	assert.Equal(t, uint32(3), info.Height)
	assert.Equal(t, int64(4), info.Confirmations)
	assert.Equal(t, main[1].Hash().String(), info.PreviousHash)
	assert.NotEmpty(t, info.NextHash)
	assert.Equal(t, "207fffff", info.Bits)

	mtp, err := c.MedianTimePast(main[2].Hash())
	require.NoError(t, err)
	assert.Equal(t, mtp.Unix(), info.MedianTime)

	stale, err := c.HeaderInfo(main[4].Hash())
	require.NoError(t, err)
	assert.Equal(t, int64(-1), stale.Confirmations)
	assert.Empty(t, stale.NextHash)

	genesis, err := c.HeaderInfo(c.Genesis().Hash())
	require.NoError(t, err)
	assert.Empty(t, genesis.PreviousHash)

	_, err = c.HeaderInfo(&chainhash.Hash{0x01})
	require.ErrorIs(t, err, errors.ErrBlockNotFound)
}

func TestCheckBlock(t *testing.T) {
	c := newTestChain(t, nil)
	now := time.Unix(baseTime+100, 0)

	blocks := appendChain(t, c, c.Genesis(), 3, 0)
	mtp, err := c.MedianTimePast(blocks[2].Hash())
	require.NoError(t, err)

	t.Run("valid", func(t *testing.T) {
		require.NoError(t, c.CheckBlock(buildOn(t, c, blocks[2], mtp.Unix()+1, 1), now))
	})

	t.Run("timestamp not after median time past", func(t *testing.T) {
		err := c.CheckBlock(buildOn(t, c, blocks[2], mtp.Unix(), 1), now)
		require.ErrorIs(t, err, errors.ErrHeaderInvalid)
	})

	t.Run("timestamp too far in the future", func(t *testing.T) {
		future := now.Add(c.settings.BlockChain.MaxFutureBlockTime).Unix() + 1
		err := c.CheckBlock(buildOn(t, c, blocks[2], future, 1), now)
		require.ErrorIs(t, err, errors.ErrHeaderInvalid)
	})

	t.Run("unknown parent", func(t *testing.T) {
		parent := buildOn(t, c, blocks[2], baseTime+50, 2)
		err := c.CheckBlock(buildOn(t, c, parent, baseTime+51, 2), now)
		require.ErrorIs(t, err, errors.ErrBlockOrphan)
	})

	t.Run("proof of work not met", func(t *testing.T) {
		msg := buildOn(t, c, blocks[2], baseTime+60, 3).MsgBlock()

		for {
			msg.Header.Nonce++
			hash := msg.Header.BlockHash()

			if work.CheckProofOfWork(&hash, msg.Header.Bits, c.Params().PowLimit) != nil {
				break
			}
		}

		block, err := model.NewBlock(msg, 4)
		require.NoError(t, err)
		require.ErrorIs(t, c.CheckBlock(block, now), errors.ErrHeaderInvalid)
	})

	t.Run("coinbase height mismatch", func(t *testing.T) {
		block, err := model.NewBlock(buildOn(t, c, blocks[1], baseTime+70, 4).MsgBlock(), 3)
		require.NoError(t, err)

		// parent is blocks[1] at height 2, the coinbase commits to height 3
		require.NoError(t, c.CheckBlock(block, now))

		solved, err := miner.BuildBlock(context.Background(), c.Params(), miner.Template{
			PrevHash:  *blocks[1].Hash(),
			Height:    5,
			Timestamp: time.Unix(baseTime+72, 0),
		})
		require.NoError(t, err)

		mismatched, err := model.NewBlock(solved.MsgBlock(), 3)
		require.NoError(t, err)
		require.ErrorIs(t, c.CheckBlock(mismatched, now), errors.ErrBlockInvalid)
	})
}

func TestLoadFromStore(t *testing.T) {
	ctx := context.Background()

	storeURL, err := url.Parse("sqlitememory:///blockchain")
	require.NoError(t, err)

	store, err := blockchainstore.NewStore(ctx, &ulogger.TestLogger{}, storeURL, t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = store.Close()
	})

	c := newTestChain(t, store)

	main := appendChain(t, c, c.Genesis(), 5, 0)
	fork := appendChain(t, c, main[2], 3, 1)

	reloaded := newTestChain(t, store)
	require.NoError(t, reloaded.Load(ctx))

	assert.Equal(t, c.Tip().Hash(), reloaded.Tip().Hash())
	assert.Equal(t, c.BlockCount(), reloaded.BlockCount())
	assert.True(t, reloaded.IsOnActiveChain(fork[2].Hash()))
	assert.False(t, reloaded.IsOnActiveChain(main[4].Hash()))

	_, ok := reloaded.BlockByHash(main[4].Hash())
	assert.True(t, ok)
}

func TestOnTipChanged(t *testing.T) {
	c := newTestChain(t, nil)

	var (
		tips   []*chainhash.Hash
		reorgs int
	)

	c.OnTipChanged(func(tip *model.Block, reorg bool) {
		tips = append(tips, tip.Hash())

		if reorg {
			reorgs++
		}
	})

	main := appendChain(t, c, c.Genesis(), 2, 0)
	appendChain(t, c, main[0], 2, 1)

	assert.Len(t, tips, 3)
	assert.Equal(t, 1, reorgs)
}

func TestBlockedTipListenerDoesNotHoldAppends(t *testing.T) {
	c := newTestChain(t, nil)

	var calls atomic.Int32

	entered := make(chan struct{})
	release := make(chan struct{})

	c.OnTipChanged(func(*model.Block, bool) {
		if calls.Add(1) == 1 {
			close(entered)
			<-release
		}
	})

	first := buildOn(t, c, c.Genesis(), baseTime+1, 0)
	second := buildOn(t, c, first, baseTime+2, 0)

	firstDone := make(chan error, 1)

	go func() {
		_, err := c.Append(context.Background(), first, "")
		firstDone <- err
	}()

	<-entered

	secondDone := make(chan error, 1)

	go func() {
		_, err := c.Append(context.Background(), second, "")
		secondDone <- err
	}()

	select {
	case err := <-secondDone:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("append blocked behind a tip listener")
	}

	assert.Equal(t, *second.Hash(), *c.Tip().Hash())

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBlockLocator(t *testing.T) {
	c := newTestChain(t, nil)

	locator := c.BlockLocator()
	require.Len(t, locator, 1)
	assert.Equal(t, c.Genesis().Hash(), locator[0])

	blocks := appendChain(t, c, c.Genesis(), 15, 0)

	locator = c.BlockLocator()

	// heights 15..6 one by one, then 4, then genesis
	require.Len(t, locator, 12)
	assert.Equal(t, blocks[14].Hash(), locator[0])
	assert.Equal(t, blocks[5].Hash(), locator[9])
	assert.Equal(t, blocks[3].Hash(), locator[10])
	assert.Equal(t, c.Genesis().Hash(), locator[11])
}
