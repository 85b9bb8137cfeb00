// Package fingerprint is the command line entry point: it runs the node, runs
// the stale block scenarios against an in-process node, or probes a remote
// node for a single block.
package fingerprint

import (
	"github.com/bsv-blockchain/fingerprint/settings"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/ordishs/gocore"
	"github.com/urfave/cli/v2"
)

// NewApp returns the command line application.
func NewApp(progname, version, commit string) *cli.App {
	gocore.SetInfo(progname, version, commit)

	return &cli.App{
		Name:    progname,
		Usage:   "stale block anti-fingerprinting node and test harness",
		Version: version + " (" + commit + ")",
		Commands: []*cli.Command{
			nodeCommand(),
			scenarioCommand(),
			probeCommand(),
		},
	}
}

func newLogger(service string, tSettings *settings.Settings) ulogger.Logger {
	return ulogger.New(service, ulogger.WithLevel(tSettings.LogLevel), ulogger.WithLoggerType(tSettings.LoggerType))
}

func networkFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "network",
		Usage: "mainnet, testnet or regtest, overrides the network setting",
	}
}

// loadSettings reads the settings files and applies the flags common to all
// commands.
func loadSettings(c *cli.Context) (*settings.Settings, error) {
	tSettings := settings.NewSettings()

	if network := c.String("network"); network != "" {
		params, err := settings.GetChainParams(network)
		if err != nil {
			return nil, err
		}

		tSettings.ChainCfgParams = params
	}

	return tSettings, nil
}
