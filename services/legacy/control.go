package legacy

import (
	"context"
	"sort"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain"
	"github.com/bsv-blockchain/fingerprint/services/miner"
	"github.com/bsv-blockchain/fingerprint/util"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// PeerInfo is the getpeerinfo view of a connected peer.
type PeerInfo struct {
	ID              int32     `json:"id"`
	Addr            string    `json:"addr"`
	Inbound         bool      `json:"inbound"`
	UserAgent       string    `json:"subver"`
	ProtocolVersion uint32    `json:"version"`
	VersionKnown    bool      `json:"version_known"`
	VerAckReceived  bool      `json:"verack_received"`
	ConnTime        time.Time `json:"conntime"`
	StartingHeight  int32     `json:"startingheight"`
	BanScore        uint32    `json:"banscore"`
}

// SetMockTime pins the node clock to unix seconds. Zero returns it to the
// real clock.
func (s *Server) SetMockTime(unix int64) {
	s.clock.SetMockTime(unix)
	s.logger.Infof("mock time set to %d", unix)
}

// MaxGenerateBlocks bounds a single Generate call.
const MaxGenerateBlocks = 10000

// Generate mines n blocks on the active chain tip and returns their hashes.
// Each block is stamped with the node clock, or one second past the median
// time past of its parent if that is later.
func (s *Server) Generate(ctx context.Context, n int) ([]*chainhash.Hash, error) {
	if n < 0 || n > MaxGenerateBlocks {
		return nil, errors.NewInvalidArgumentError("cannot generate %d blocks, the limit is %d", n, MaxGenerateBlocks)
	}

	s.generateMu.Lock()
	defer s.generateMu.Unlock()

	hashes := make([]*chainhash.Hash, 0, n)

	for i := 0; i < n; i++ {
		tip := s.chain.Tip()

		medianTime, err := s.chain.MedianTimePast(tip.Hash())
		if err != nil {
			return hashes, err
		}

		timestamp := s.clock.Now()
		if minTime := medianTime.Add(time.Second); timestamp.Before(minTime) {
			timestamp = minTime
		}

		block, err := miner.BuildBlock(ctx, s.chain.Params(), miner.Template{
			PrevHash:   *tip.Hash(),
			Height:     tip.Height + 1,
			Timestamp:  timestamp,
			ExtraNonce: s.extraNonce.Add(1),
		})
		if err != nil {
			return hashes, errors.NewProcessingError("failed to build block at height %d", tip.Height+1, err)
		}

		if _, err = s.chain.Append(ctx, block, ""); err != nil {
			return hashes, err
		}

		hashes = append(hashes, block.Hash())
	}

	if n > 0 {
		s.logger.Infof("generated %d blocks, tip %s", n, s.chain.Tip())
	}

	return hashes, nil
}

// GetBlockHeader returns the header of any known block, stale ones included.
func (s *Server) GetBlockHeader(hash *chainhash.Hash) (*model.BlockHeaderInfo, error) {
	return s.chain.HeaderInfo(hash)
}

// GetBlockCount returns the height of the active chain tip.
func (s *Server) GetBlockCount() uint32 {
	return s.chain.Height()
}

func (s *Server) GetBestBlockHash() *chainhash.Hash {
	return s.chain.Tip().Hash()
}

// GetPeerInfo returns the connected peers ordered by id.
func (s *Server) GetPeerInfo() []PeerInfo {
	peers := s.peers.Range()

	infos := make([]PeerInfo, 0, len(peers))
	for _, sp := range peers {
		infos = append(infos, sp.snapshot())
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].ID < infos[j].ID
	})

	return infos
}

func (s *Server) Chain() *blockchain.Chain {
	return s.chain
}

func (s *Server) Clock() util.Clock {
	return s.clock
}
