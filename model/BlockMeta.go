package model

import "math/big"

type BlockMeta struct {
	ID        uint64   `json:"id"`         // ID of the block in the block store.
	ChainWork *big.Int `json:"chain_work"` // Cumulative work up to and including the block.
	PeerID    string   `json:"peer_id"`    // Peer the block was received from, empty when generated locally.
}
