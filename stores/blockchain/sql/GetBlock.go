package sql

import (
	"context"
	"database/sql"
	"math/big"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/ordishs/gocore"
)

const blockColumns = `
	 id
	,height
	,chain_work
	,peer_id
	,block_bytes
`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQL) GetBlock(ctx context.Context, blockHash *chainhash.Hash) (*model.Block, *model.BlockMeta, error) {
	start := gocore.CurrentTime()
	stat := gocore.NewStat("blockchain").NewStat("GetBlock")

	defer func() {
		stat.AddTime(start)
	}()

	row := s.db.QueryRowContext(ctx, `SELECT `+blockColumns+` FROM blocks WHERE hash = $1`, blockHash.CloneBytes())

	block, meta, err := scanBlock(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, errors.NewBlockNotFoundError("block %s not found", blockHash)
		}

		return nil, nil, errors.NewStorageError("failed to get block %s", blockHash, err)
	}

	return block, meta, nil
}

func scanBlock(row rowScanner) (*model.Block, *model.BlockMeta, error) {
	var (
		id         uint64
		height     uint64
		chainWork  []byte
		peerID     string
		blockBytes []byte
	)

	if err := row.Scan(&id, &height, &chainWork, &peerID, &blockBytes); err != nil {
		return nil, nil, err
	}

	height32, err := safeconversion.Uint64ToUint32(height)
	if err != nil {
		return nil, nil, err
	}

	block, err := model.NewBlockFromBytes(blockBytes, height32)
	if err != nil {
		return nil, nil, err
	}

	return block, &model.BlockMeta{
		ID:        id,
		ChainWork: new(big.Int).SetBytes(chainWork),
		PeerID:    peerID,
	}, nil
}
