package model

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
)

const (
	opZero      = 0x00
	opOne       = 0x51
	opSixteen   = 0x60
	maxHeightSz = 8
)

// Block is an accepted or candidate block together with its height. A Block
// is never modified after construction, callers must treat the wire message
// returned by MsgBlock as read-only.
type Block struct {
	Height uint32

	msg   *wire.MsgBlock
	hash  chainhash.Hash
	bytes []byte
}

func NewBlock(msg *wire.MsgBlock, height uint32) (*Block, error) {
	if msg == nil {
		return nil, errors.NewInvalidArgumentError("block message is nil")
	}

	var buf bytes.Buffer
	if err := msg.Serialize(&buf); err != nil {
		return nil, errors.NewBlockInvalidError("failed to serialize block", err)
	}

	return &Block{
		Height: height,
		msg:    msg,
		hash:   msg.BlockHash(),
		bytes:  buf.Bytes(),
	}, nil
}

func NewBlockFromBytes(blockBytes []byte, height uint32) (*Block, error) {
	msg := &wire.MsgBlock{}
	if err := msg.Deserialize(bytes.NewReader(blockBytes)); err != nil {
		return nil, errors.NewBlockInvalidError("failed to deserialize block", err)
	}

	return &Block{
		Height: height,
		msg:    msg,
		hash:   msg.BlockHash(),
		bytes:  blockBytes,
	}, nil
}

func (b *Block) Hash() *chainhash.Hash {
	h := b.hash
	return &h
}

func (b *Block) PrevHash() *chainhash.Hash {
	h := b.msg.Header.PrevBlock
	return &h
}

func (b *Block) Header() wire.BlockHeader {
	return b.msg.Header
}

func (b *Block) Timestamp() time.Time {
	return b.msg.Header.Timestamp
}

func (b *Block) Bits() uint32 {
	return b.msg.Header.Bits
}

// Bytes returns the serialized block as it is sent on the wire.
func (b *Block) Bytes() []byte {
	return b.bytes
}

func (b *Block) MsgBlock() *wire.MsgBlock {
	return b.msg
}

func (b *Block) String() string {
	return fmt.Sprintf("%s (height %d)", b.hash, b.Height)
}

// CheckMerkleRoot recomputes the merkle root over the block transactions and
// compares it with the header.
func (b *Block) CheckMerkleRoot() error {
	if len(b.msg.Transactions) == 0 {
		return errors.NewBlockInvalidError("block %s has no transactions", b.hash)
	}

	hashes := make([]chainhash.Hash, len(b.msg.Transactions))
	for i, tx := range b.msg.Transactions {
		hashes[i] = tx.TxHash()
	}

	calculated := BuildMerkleRoot(hashes)
	if !calculated.IsEqual(&b.msg.Header.MerkleRoot) {
		return errors.NewBlockInvalidError("merkle root mismatch for block %s: header %s, calculated %s", b.hash, b.msg.Header.MerkleRoot, calculated)
	}

	return nil
}

// ExtractCoinbaseHeight reads the BIP34 height push from the coinbase
// signature script.
func (b *Block) ExtractCoinbaseHeight() (uint32, error) {
	if len(b.msg.Transactions) == 0 {
		return 0, errors.NewBlockInvalidError("block %s has no coinbase", b.hash)
	}

	coinbase := b.msg.Transactions[0]
	if len(coinbase.TxIn) != 1 {
		return 0, errors.NewBlockInvalidError("coinbase of block %s has %d inputs", b.hash, len(coinbase.TxIn))
	}

	sigScript := coinbase.TxIn[0].SignatureScript
	if len(sigScript) < 1 {
		return 0, errors.NewBlockInvalidError("coinbase of block %s does not start with the block height", b.hash)
	}

	opcode := int(sigScript[0])
	if opcode == opZero {
		return 0, nil
	}

	if opcode >= opOne && opcode <= opSixteen {
		return uint32(opcode - (opOne - 1)), nil
	}

	serializedLen := int(sigScript[0])
	if serializedLen > maxHeightSz || len(sigScript[1:]) < serializedLen {
		return 0, errors.NewBlockInvalidError("coinbase of block %s has a malformed height push", b.hash)
	}

	serializedHeightBytes := make([]byte, 8)
	copy(serializedHeightBytes, sigScript[1:serializedLen+1])

	return uint32(binary.LittleEndian.Uint64(serializedHeightBytes)), nil
}
