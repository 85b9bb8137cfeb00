package scenario

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/pkg/testpeer"
	"github.com/bsv-blockchain/fingerprint/settings"
	"github.com/bsv-blockchain/fingerprint/test/chainbuilder"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/google/uuid"
)

const (
	generatedBlocks = 5
	forkHeight      = 3
	forkLength      = 5

	// the fork coinbases carry this extra nonce so they never match a
	// generated block at the same height
	forkExtraNonce = 0xf00d
)

// Report holds what the stale block scenarios observed.
type Report struct {
	// RunID tags the log lines of one Run.
	RunID     string
	MockTime  time.Time
	Generated []*chainhash.Hash
	Fork      []*model.Block

	// StaleHash is the block at height 5 that lost the reorg.
	StaleHash   *chainhash.Hash
	ActiveHash  *chainhash.Hash
	ReorgHeight uint32
	FinalHeight uint32

	// scenario A, stale block requested while the clock is 60 days back
	RecentStaleBlock  testpeer.Outcome
	RecentStaleHeader testpeer.Outcome

	// scenario B, same block once the clock is back to real time
	OldStaleBlock  testpeer.Outcome
	OldStaleHeader testpeer.Outcome

	// scenario C, active chain block at height 3
	ActiveBlock  testpeer.Outcome
	ActiveHeader testpeer.Outcome
}

type Harness struct {
	logger   ulogger.Logger
	settings *settings.Settings
	node     *Node
	peer     *testpeer.Peer
}

// NewHarness returns a harness for the node at node. The harness connects
// its own peer in Run.
func NewHarness(logger ulogger.Logger, tSettings *settings.Settings, node *Node) *Harness {
	return &Harness{
		logger:   logger.New("scnro"),
		settings: tSettings,
		node:     node,
	}
}

func (h *Harness) timeout() time.Duration {
	return h.settings.Harness.RequestTimeout
}

func (h *Harness) connect(ctx context.Context, opts ...testpeer.Option) (*testpeer.Peer, error) {
	opts = append([]testpeer.Option{
		testpeer.WithChainParams(h.settings.ChainCfgParams),
		testpeer.WithTimeouts(h.settings.Harness.RequestTimeout, h.settings.Harness.PollInterval),
	}, opts...)

	return testpeer.Connect(ctx, h.logger, h.node.Addr(), opts...)
}

// Run executes scenarios A, B and C in order on one connection and returns
// what was observed. It returns an error only when a step that must succeed
// did not, the served or withheld outcomes are left to the caller to judge.
func (h *Harness) Run(ctx context.Context) (*Report, error) {
	var err error

	h.peer, err = h.connect(ctx)
	if err != nil {
		return nil, err
	}

	defer h.peer.Close()

	if err = h.peer.WaitForVerAck(h.timeout()); err != nil {
		return nil, errors.NewNetworkTimeoutError("handshake did not complete", err)
	}

	report := &Report{RunID: uuid.NewString()}

	h.logger.Infof("[%s] running stale block scenarios against %s", report.RunID, h.node.Addr())

	if err = h.buildStaleBranch(ctx, report); err != nil {
		return report, err
	}

	if err = h.recentStale(report); err != nil {
		return report, err
	}

	if err = h.oldStale(ctx, report); err != nil {
		return report, err
	}

	if err = h.activeBlock(report); err != nil {
		return report, err
	}

	report.FinalHeight = h.node.Server.GetBlockCount()

	return report, nil
}

// buildStaleBranch mines five blocks 60 days in the past, then feeds the
// node a longer branch from height 3 so blocks 4 and 5 become stale.
func (h *Harness) buildStaleBranch(ctx context.Context, report *Report) error {
	server := h.node.Server

	report.MockTime = time.Now().Add(-h.settings.Harness.MockTimeOffset).Truncate(time.Second)
	server.SetMockTime(report.MockTime.Unix())

	generated, err := server.Generate(ctx, generatedBlocks)
	if err != nil {
		return err
	}

	report.Generated = generated
	report.StaleHash = generated[len(generated)-1]
	report.ActiveHash = generated[forkHeight-1]

	forkHash := generated[forkHeight-1]

	info, err := server.GetBlockHeader(forkHash)
	if err != nil {
		return err
	}

	builder := chainbuilder.New(h.settings.ChainCfgParams, forkExtraNonce)

	report.Fork, err = builder.BuildChain(ctx, forkLength, forkHash, info.Height, info.MedianTime)
	if err != nil {
		return err
	}

	if err = h.peer.SendHeaders(report.Fork); err != nil {
		return err
	}

	forkHashes := make([]*chainhash.Hash, 0, len(report.Fork))
	for _, block := range report.Fork {
		forkHashes = append(forkHashes, block.Hash())
	}

	if err = h.peer.WaitForGetData(forkHashes, h.timeout()); err != nil {
		return errors.NewNetworkTimeoutError("node did not request the fork blocks", err)
	}

	for _, block := range report.Fork {
		if err = h.peer.SendBlock(block); err != nil {
			return err
		}
	}

	if err = h.peer.SyncWithPing(h.timeout()); err != nil {
		return err
	}

	expected := info.Height + forkLength

	err = h.peer.WaitUntil(func() bool {
		return server.GetBlockCount() == expected
	}, h.timeout(), 0)
	if err != nil {
		return errors.NewProcessingError("chain did not reorg to height %d, at %d", expected, server.GetBlockCount(), err)
	}

	report.ReorgHeight = server.GetBlockCount()

	h.logger.Infof("reorged to height %d, stale block %s", report.ReorgHeight, report.StaleHash)

	return nil
}

func (h *Harness) recentStale(report *Report) error {
	var err error

	if report.RecentStaleBlock, err = h.peer.ExpectBlock(report.StaleHash, h.timeout()); err != nil {
		return err
	}

	if report.RecentStaleHeader, err = h.peer.ExpectHeader(report.StaleHash, h.timeout()); err != nil {
		return err
	}

	return nil
}

// oldStale returns the clock to real time, mines a block so the tip is
// current and asks for the now 60 day old stale block again.
func (h *Harness) oldStale(ctx context.Context, report *Report) error {
	server := h.node.Server

	server.SetMockTime(0)

	generated, err := server.Generate(ctx, 1)
	if err != nil {
		return err
	}

	tip := generated[0]

	// make sure the last block and headers seen are the new tip's, so a late
	// stale answer could not be mistaken for an earlier one
	if _, err = h.peer.ExpectBlock(tip, h.timeout()); err != nil {
		return err
	}

	if _, err = h.peer.ExpectHeader(tip, h.timeout()); err != nil {
		return err
	}

	if report.OldStaleBlock, err = h.peer.ExpectBlock(report.StaleHash, h.timeout()); err != nil {
		return err
	}

	if report.OldStaleHeader, err = h.peer.ExpectHeader(report.StaleHash, h.timeout()); err != nil {
		return err
	}

	return nil
}

func (h *Harness) activeBlock(report *Report) error {
	var err error

	if report.ActiveBlock, err = h.peer.ExpectBlock(report.ActiveHash, h.timeout()); err != nil {
		return err
	}

	if report.ActiveHeader, err = h.peer.ExpectHeader(report.ActiveHash, h.timeout()); err != nil {
		return err
	}

	return nil
}

// RunBloomDisconnect is scenario D: a peer sending mempool to a node without
// bloom filter support is disconnected and the node is left with no peers.
func (h *Harness) RunBloomDisconnect(ctx context.Context) error {
	p, err := h.connect(ctx)
	if err != nil {
		return err
	}

	defer p.Close()

	if err = p.WaitForVerAck(h.timeout()); err != nil {
		return errors.NewNetworkTimeoutError("handshake did not complete", err)
	}

	if err = p.SendMemPool(); err != nil {
		return err
	}

	if err = p.WaitForDisconnect(h.timeout()); err != nil {
		return err
	}

	if peers := h.node.Server.GetPeerInfo(); len(peers) != 0 {
		return errors.NewProcessingError("node still has %d peers after disconnect", len(peers))
	}

	return nil
}
