// Package scenario runs the stale block fingerprinting scenarios against an
// in-process node: a competing branch makes part of the chain stale, and the
// node must keep serving the stale block while it is recent and stop once it
// is more than a month old.
package scenario

import (
	"context"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/blockchain"
	"github.com/bsv-blockchain/fingerprint/services/legacy"
	"github.com/bsv-blockchain/fingerprint/settings"
	blockchainstore "github.com/bsv-blockchain/fingerprint/stores/blockchain"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util"
)

const nodeStartTimeout = 10 * time.Second

// Node is a running node-under-test.
type Node struct {
	Server *legacy.Server
	Chain  *blockchain.Chain

	store  blockchainstore.Store
	cancel context.CancelFunc
	done   chan error
}

// StartNode creates the block store, replays it into a chain and starts a
// P2P server listening on tSettings.Legacy.ListenAddresses.
func StartNode(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings) (*Node, error) {
	store, err := blockchainstore.NewStore(ctx, logger, tSettings.BlockChain.StoreURL, tSettings.DataFolder)
	if err != nil {
		return nil, errors.NewServiceError("failed to create block store", err)
	}

	chain, err := blockchain.New(logger, tSettings, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	if err = chain.Load(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	server := legacy.New(logger, tSettings, chain, util.NewMockClock())

	if err = server.Init(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	nodeCtx, cancel := context.WithCancel(ctx)

	n := &Node{
		Server: server,
		Chain:  chain,
		store:  store,
		cancel: cancel,
		done:   make(chan error, 1),
	}

	readyCh := make(chan struct{})

	go func() {
		n.done <- server.Start(nodeCtx, readyCh)
	}()

	select {
	case <-readyCh:
	case err = <-n.done:
		cancel()
		_ = store.Close()

		return nil, errors.NewServiceError("node stopped during start", err)
	case <-time.After(nodeStartTimeout):
		cancel()
		_ = store.Close()

		return nil, errors.NewServiceUnavailableError("node did not start within %s", nodeStartTimeout)
	}

	return n, nil
}

// Addr is the address peers dial.
func (n *Node) Addr() string {
	return n.Server.Addr()
}

// Stop shuts the server down and closes the store.
func (n *Node) Stop() error {
	n.cancel()

	err := <-n.done

	if closeErr := n.store.Close(); closeErr != nil && err == nil {
		err = closeErr
	}

	return err
}
