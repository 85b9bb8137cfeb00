package blockchain

import (
	"context"
	"net/url"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/stores/blockchain/sql"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util"
)

// NewStore opens the block store named by storeURL. Every supported scheme
// is served by the SQL store.
func NewStore(ctx context.Context, logger ulogger.Logger, storeURL *url.URL, dataFolder string) (Store, error) {
	if storeURL == nil {
		return nil, errors.NewConfigurationError("no block store configured, set blockchain_store")
	}

	switch util.SQLEngine(storeURL.Scheme) {
	case util.Postgres, util.Sqlite, util.SqliteMemory:
		store, err := sql.New(ctx, logger, storeURL, dataFolder)
		if err != nil {
			return nil, err
		}

		return store, nil
	}

	return nil, errors.NewStorageError("unknown block store scheme %q", storeURL.Scheme)
}
