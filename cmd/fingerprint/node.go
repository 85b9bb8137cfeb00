package fingerprint

import (
	"context"
	"net/http"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/blockchain"
	"github.com/bsv-blockchain/fingerprint/services/legacy"
	"github.com/bsv-blockchain/fingerprint/services/rpc"
	"github.com/bsv-blockchain/fingerprint/settings"
	blockchainstore "github.com/bsv-blockchain/fingerprint/stores/blockchain"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util"
	"github.com/bsv-blockchain/fingerprint/util/servicemanager"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

func nodeCommand() *cli.Command {
	return &cli.Command{
		Name:  "node",
		Usage: "run the node until interrupted",
		Flags: []cli.Flag{
			networkFlag(),
			&cli.StringSliceFlag{
				Name:  "listen",
				Usage: "P2P listen address, repeatable, overrides legacy_listen_addresses",
			},
			&cli.StringFlag{
				Name:  "rpc",
				Usage: "JSON-RPC listen address, overrides rpc_listenAddress",
			},
			&cli.BoolFlag{
				Name:  "no-bloom",
				Usage: "do not advertise or support bloom filters",
			},
		},
		Action: runNode,
	}
}

func runNode(c *cli.Context) error {
	tSettings, err := loadSettings(c)
	if err != nil {
		return err
	}

	if listen := c.StringSlice("listen"); len(listen) > 0 {
		tSettings.Legacy.ListenAddresses = listen
	}

	if rpcAddress := c.String("rpc"); rpcAddress != "" {
		tSettings.RPC.ListenAddress = rpcAddress
	}

	if c.Bool("no-bloom") {
		tSettings.Legacy.PeerBloomFilters = false
	}

	logger := newLogger("node", tSettings)

	store, err := blockchainstore.NewStore(c.Context, logger, tSettings.BlockChain.StoreURL, tSettings.DataFolder)
	if err != nil {
		return errors.NewServiceError("failed to create block store", err)
	}

	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logger.Errorf("failed to close block store: %v", closeErr)
		}
	}()

	chain, err := blockchain.New(logger, tSettings, store)
	if err != nil {
		return err
	}

	if err = chain.Load(c.Context); err != nil {
		return err
	}

	sm := servicemanager.NewServiceManager(c.Context, logger)

	server := legacy.New(logger, tSettings, chain, util.NewMockClock())

	if err = sm.AddService("Legacy", server); err != nil {
		return errors.NewServiceError("failed to add legacy service", err)
	}

	if tSettings.RPC.ListenAddress != "" {
		if err = sm.AddService("RPC", rpc.NewServer(logger, tSettings, server)); err != nil {
			return errors.NewServiceError("failed to add rpc service", err)
		}

		servicemanager.AddListenerInfo("RPC " + tSettings.RPC.ListenAddress)
	}

	startHTTP(sm.Ctx, logger, tSettings, sm)

	sm.WaitForServiceToBeReady()

	servicemanager.AddListenerInfo("P2P " + server.Addr())
	logger.Infof("node listening on %s, tip %s", server.Addr(), chain.Tip())

	return sm.Wait()
}

// newHTTPServer returns the echo instance serving prometheus metrics,
// /health and /services.
func newHTTPServer(tSettings *settings.Settings, sm *servicemanager.ServiceManager) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())

	e.GET(tSettings.Prometheus.Endpoint, echo.WrapHandler(promhttp.Handler()))
	sm.RegisterHandlers(e)

	return e
}

// startHTTP serves newHTTPServer until ctx is done.
func startHTTP(ctx context.Context, logger ulogger.Logger, tSettings *settings.Settings, sm *servicemanager.ServiceManager) {
	if tSettings.Prometheus.ListenAddress == "" {
		return
	}

	e := newHTTPServer(tSettings, sm)
	e.Server.ReadHeaderTimeout = 10 * time.Second

	servicemanager.AddListenerInfo("HTTP " + tSettings.Prometheus.ListenAddress)

	go func() {
		logger.Infof("starting metrics endpoint on %s%s", tSettings.Prometheus.ListenAddress, tSettings.Prometheus.Endpoint)

		if err := e.Start(tSettings.Prometheus.ListenAddress); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("metrics server failed: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := e.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("metrics server shutdown: %v", err)
		}
	}()
}
