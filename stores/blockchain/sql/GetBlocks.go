package sql

import (
	"context"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/ordishs/gocore"
)

// GetBlocks returns every stored block ordered by id. Ids are assigned on
// insert and a block is only stored after its parent, so parents always come
// first.
func (s *SQL) GetBlocks(ctx context.Context) ([]*model.Block, []*model.BlockMeta, error) {
	start := gocore.CurrentTime()
	stat := gocore.NewStat("blockchain").NewStat("GetBlocks")

	defer func() {
		stat.AddTime(start)
	}()

	rows, err := s.db.QueryContext(ctx, `SELECT `+blockColumns+` FROM blocks ORDER BY id ASC`)
	if err != nil {
		return nil, nil, errors.NewStorageError("failed to get blocks", err)
	}

	defer rows.Close()

	blocks := make([]*model.Block, 0, 64)
	metas := make([]*model.BlockMeta, 0, 64)

	for rows.Next() {
		block, meta, err := scanBlock(rows)
		if err != nil {
			return nil, nil, errors.NewStorageError("failed to scan block", err)
		}

		blocks = append(blocks, block)
		metas = append(metas, meta)
	}

	if err = rows.Err(); err != nil {
		return nil, nil, errors.NewStorageError("failed to iterate blocks", err)
	}

	return blocks, metas, nil
}
