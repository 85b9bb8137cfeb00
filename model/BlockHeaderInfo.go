package model

// BlockHeaderInfo is the control surface view of a header, shaped like the
// getblockheader RPC result.
type BlockHeaderInfo struct {
	Hash          string `json:"hash"`
	Confirmations int64  `json:"confirmations"` // -1 when the block is not on the active chain
	Height        uint32 `json:"height"`
	Version       int32  `json:"version"`
	MerkleRoot    string `json:"merkleroot"`
	Time          int64  `json:"time"`
	MedianTime    int64  `json:"mediantime"`
	Nonce         uint32 `json:"nonce"`
	Bits          string `json:"bits"`
	ChainWork     string `json:"chainwork"`
	PreviousHash  string `json:"previousblockhash,omitempty"`
	NextHash      string `json:"nextblockhash,omitempty"`
}
