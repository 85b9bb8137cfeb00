package blockchain

import (
	"context"
	"net/url"
	"testing"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	logger := &ulogger.TestLogger{}

	t.Run("sqlitememory", func(t *testing.T) {
		storeURL, err := url.Parse("sqlitememory:///blockchain")
		require.NoError(t, err)

		store, err := NewStore(ctx, logger, storeURL, t.TempDir())
		require.NoError(t, err)

		t.Cleanup(func() { _ = store.Close() })

		blocks, _, err := store.GetBlocks(ctx)
		require.NoError(t, err)
		assert.Empty(t, blocks)
	})

	t.Run("unknown scheme", func(t *testing.T) {
		storeURL, err := url.Parse("aerospike://localhost:3000/blockchain")
		require.NoError(t, err)

		_, err = NewStore(ctx, logger, storeURL, t.TempDir())
		require.ErrorIs(t, err, errors.ErrStorageError)
	})

	t.Run("missing url", func(t *testing.T) {
		_, err := NewStore(ctx, logger, nil, t.TempDir())
		require.ErrorIs(t, err, errors.ErrConfiguration)
	})
}
