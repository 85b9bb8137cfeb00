package sql

import (
	"context"
	"database/sql"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/ordishs/gocore"
)

func (s *SQL) GetBlockExists(ctx context.Context, blockHash *chainhash.Hash) (bool, error) {
	start := gocore.CurrentTime()
	stat := gocore.NewStat("blockchain").NewStat("GetBlockExists")

	defer func() {
		stat.AddTime(start)
	}()

	var exists bool

	err := s.db.QueryRowContext(ctx, `SELECT true FROM blocks WHERE hash = $1 LIMIT 1`, blockHash.CloneBytes()).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}

		return false, errors.NewStorageError("failed to check whether block %s exists", blockHash, err)
	}

	return exists, nil
}
