package sql

import (
	"context"
	"database/sql"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/lib/pq"
	"github.com/ordishs/gocore"
	"modernc.org/sqlite"
)

// StoreBlock inserts the block and returns its store id. The parent link is
// resolved by hash and left NULL when the parent is not stored, which is the
// case for children of the genesis block.
func (s *SQL) StoreBlock(ctx context.Context, block *model.Block, meta *model.BlockMeta) (uint64, error) {
	start := gocore.CurrentTime()
	stat := gocore.NewStat("blockchain").NewStat("StoreBlock")

	defer func() {
		stat.AddTime(start)
	}()

	if block == nil {
		return 0, errors.NewInvalidArgumentError("block is nil")
	}

	if meta == nil || meta.ChainWork == nil {
		return 0, errors.NewInvalidArgumentError("chain work missing for block %s", block.Hash())
	}

	var parentID sql.NullInt64

	err := s.db.QueryRowContext(ctx, `SELECT id FROM blocks WHERE hash = $1`, block.PrevHash().CloneBytes()).Scan(&parentID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.NewStorageError("failed to look up parent of block %s", block.Hash(), err)
	}

	rows, err := s.db.QueryContext(ctx, `
		INSERT INTO blocks (
			 parent_id
			,hash
			,previous_hash
			,height
			,block_time
			,n_bits
			,chain_work
			,peer_id
			,block_bytes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`,
		parentID,
		block.Hash().CloneBytes(),
		block.PrevHash().CloneBytes(),
		int64(block.Height),
		block.Timestamp().Unix(),
		int64(block.Bits()),
		meta.ChainWork.Bytes(),
		meta.PeerID,
		block.Bytes(),
	)
	if err != nil {
		return 0, s.parseSQLError(err, block)
	}

	defer rows.Close()

	if !rows.Next() {
		if err = rows.Err(); err != nil {
			return 0, s.parseSQLError(err, block)
		}

		return 0, errors.NewStorageError("failed to insert block %s: no id returned", block.Hash())
	}

	var newBlockID uint64
	if err = rows.Scan(&newBlockID); err != nil {
		return 0, errors.NewStorageError("failed to scan new block id", err)
	}

	meta.ID = newBlockID

	return newBlockID, nil
}

// parseSQLError translates unique constraint violations from either backend
// into a BlockExists error.
func (*SQL) parseSQLError(err error, block *model.Block) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return errors.NewBlockExistsError("block already exists in the database: %s", block.Hash().String(), err)
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && (sqliteErr.Code()&0xff) == sqliteConstraint {
		return errors.NewBlockExistsError("block already exists in the database: %s", block.Hash().String(), err)
	}

	return errors.NewStorageError("failed to store block", err)
}
