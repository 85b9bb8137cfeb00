package fingerprint

import (
	"encoding/json"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/pkg/testpeer"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/urfave/cli/v2"
)

type probeResult struct {
	Address   string `json:"address"`
	Hash      string `json:"hash"`
	UserAgent string `json:"userAgent,omitempty"`
	Block     string `json:"block"`
	Header    string `json:"header"`
}

func probeCommand() *cli.Command {
	return &cli.Command{
		Name:  "probe",
		Usage: "ask a node for one block and its header and report whether they were served",
		Flags: []cli.Flag{
			networkFlag(),
			&cli.StringFlag{
				Name:     "address",
				Usage:    "host:port of the node",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "hash",
				Usage:    "block hash to request",
				Required: true,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "bound on every wait, defaults to harness_requestTimeout",
			},
		},
		Action: runProbe,
	}
}

func runProbe(c *cli.Context) error {
	tSettings, err := loadSettings(c)
	if err != nil {
		return err
	}

	hash, err := chainhash.NewHashFromStr(c.String("hash"))
	if err != nil {
		return errors.NewInvalidArgumentError("invalid block hash %s", c.String("hash"), err)
	}

	timeout := tSettings.Harness.RequestTimeout
	if t := c.Duration("timeout"); t > 0 {
		timeout = t
	}

	logger := newLogger("probe", tSettings)

	p, err := testpeer.Connect(c.Context, logger, c.String("address"),
		testpeer.WithChainParams(tSettings.ChainCfgParams),
		testpeer.WithTimeouts(timeout, tSettings.Harness.PollInterval),
	)
	if err != nil {
		return err
	}

	defer p.Close()

	if err = p.WaitForVerAck(timeout); err != nil {
		return errors.NewNetworkTimeoutError("handshake with %s did not complete", c.String("address"), err)
	}

	result := probeResult{
		Address: c.String("address"),
		Hash:    hash.String(),
	}

	if msg, _ := p.LastMessage(wire.CmdVersion); msg != nil {
		if version, ok := msg.(*wire.MsgVersion); ok {
			result.UserAgent = version.UserAgent
		}
	}

	block, err := p.ExpectBlock(hash, timeout)
	if err != nil {
		return err
	}

	header, err := p.ExpectHeader(hash, timeout)
	if err != nil {
		return err
	}

	result.Block = block.String()
	result.Header = header.String()

	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")

	return encoder.Encode(result)
}
