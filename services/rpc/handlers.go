package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/legacy"
	"github.com/bsv-blockchain/fingerprint/services/rpc/bsvjson"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

func init() {
	rpcHandlers = map[string]commandHandler{
		"getbestblockhash": handleGetBestBlockHash,
		"getblock":         handleGetBlock,
		"getblockcount":    handleGetBlockCount,
		"getblockheader":   handleGetBlockHeader,
		"getpeerinfo":      handleGetPeerInfo,
		"generate":         handleGenerate,
		"setmocktime":      handleSetMockTime,
	}
}

// getBlockVerboseResult is the getblock reply for verbosity 1.
type getBlockVerboseResult struct {
	*model.BlockHeaderInfo
	Size int      `json:"size"`
	Tx   []string `json:"tx"`
}

// parseParam unmarshals params[i] into target. It returns false when the
// parameter is absent or null.
func parseParam(params []json.RawMessage, i int, target interface{}) (bool, error) {
	if i >= len(params) || string(params[i]) == "null" {
		return false, nil
	}

	if err := json.Unmarshal(params[i], target); err != nil {
		return false, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidParams, "invalid parameter "+string(params[i]))
	}

	return true, nil
}

func parseHash(params []json.RawMessage, i int) (*chainhash.Hash, error) {
	var hashStr string

	found, err := parseParam(params, i, &hashStr)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidParams, "block hash is required")
	}

	hash, err := chainhash.NewHashFromStr(hashStr)
	if err != nil {
		return nil, bsvjson.NewRPCError(bsvjson.ErrRPCDecodeHexString, "invalid block hash "+hashStr)
	}

	return hash, nil
}

func rpcBlockNotFound(hash *chainhash.Hash) error {
	return bsvjson.NewRPCError(bsvjson.ErrRPCBlockNotFound, "Block not found: "+hash.String())
}

// handleSetMockTime implements setmocktime. Zero returns the node to the
// real clock.
func handleSetMockTime(_ context.Context, s *RPCServer, params []json.RawMessage) (interface{}, error) {
	var timestamp int64

	found, err := parseParam(params, 0, &timestamp)
	if err != nil {
		return nil, err
	}

	if !found || timestamp < 0 {
		return nil, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidParameter, "timestamp must be a non-negative unix time")
	}

	s.node.SetMockTime(timestamp)

	return nil, nil
}

// handleGenerate implements generate and returns the new block hashes.
func handleGenerate(ctx context.Context, s *RPCServer, params []json.RawMessage) (interface{}, error) {
	var numBlocks int

	found, err := parseParam(params, 0, &numBlocks)
	if err != nil {
		return nil, err
	}

	if !found || numBlocks <= 0 {
		return nil, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidParameter, "number of blocks must be positive")
	}

	if numBlocks > legacy.MaxGenerateBlocks {
		return nil, bsvjson.NewRPCError(bsvjson.ErrRPCInvalidParameter, fmt.Sprintf("cannot generate more than %d blocks at once", legacy.MaxGenerateBlocks))
	}

	hashes, err := s.node.Generate(ctx, numBlocks)
	if err != nil {
		return nil, err
	}

	reply := make([]string, 0, len(hashes))
	for _, hash := range hashes {
		reply = append(reply, hash.String())
	}

	return reply, nil
}

// handleGetBlockHeader implements getblockheader. Stale headers are returned
// with -1 confirmations.
func handleGetBlockHeader(_ context.Context, s *RPCServer, params []json.RawMessage) (interface{}, error) {
	hash, err := parseHash(params, 0)
	if err != nil {
		return nil, err
	}

	verbose := true

	if _, err = parseParam(params, 1, &verbose); err != nil {
		return nil, err
	}

	if !verbose {
		block, ok := s.node.Chain().BlockByHash(hash)
		if !ok {
			return nil, rpcBlockNotFound(hash)
		}

		header := block.Header()

		var buf bytes.Buffer
		if err = header.Serialize(&buf); err != nil {
			return nil, errors.NewProcessingError("failed to serialize header %s", hash, err)
		}

		return hex.EncodeToString(buf.Bytes()), nil
	}

	info, err := s.node.GetBlockHeader(hash)
	if err != nil {
		if errors.Is(err, errors.ErrBlockNotFound) {
			return nil, rpcBlockNotFound(hash)
		}

		return nil, err
	}

	return info, nil
}

// handleGetBlock implements getblock for verbosity 0 (hex) and 1.
func handleGetBlock(_ context.Context, s *RPCServer, params []json.RawMessage) (interface{}, error) {
	hash, err := parseHash(params, 0)
	if err != nil {
		return nil, err
	}

	verbosity := 1

	if _, err = parseParam(params, 1, &verbosity); err != nil {
		return nil, err
	}

	block, ok := s.node.Chain().BlockByHash(hash)
	if !ok {
		return nil, rpcBlockNotFound(hash)
	}

	if verbosity == 0 {
		return hex.EncodeToString(block.Bytes()), nil
	}

	info, err := s.node.GetBlockHeader(hash)
	if err != nil {
		return nil, err
	}

	msg := block.MsgBlock()

	txIDs := make([]string, 0, len(msg.Transactions))
	for _, tx := range msg.Transactions {
		txIDs = append(txIDs, tx.TxHash().String())
	}

	return &getBlockVerboseResult{
		BlockHeaderInfo: info,
		Size:            len(block.Bytes()),
		Tx:              txIDs,
	}, nil
}

func handleGetBlockCount(_ context.Context, s *RPCServer, _ []json.RawMessage) (interface{}, error) {
	return s.node.GetBlockCount(), nil
}

func handleGetBestBlockHash(_ context.Context, s *RPCServer, _ []json.RawMessage) (interface{}, error) {
	return s.node.GetBestBlockHash().String(), nil
}

func handleGetPeerInfo(_ context.Context, s *RPCServer, _ []json.RawMessage) (interface{}, error) {
	return s.node.GetPeerInfo(), nil
}
