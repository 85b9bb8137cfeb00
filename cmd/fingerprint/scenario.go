package fingerprint

import (
	"encoding/json"
	"net/url"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/test/scenario"
	"github.com/urfave/cli/v2"
)

type scenarioResult struct {
	RunID             string `json:"runId"`
	StaleHash         string `json:"staleHash"`
	ActiveHash        string `json:"activeHash"`
	ReorgHeight       uint32 `json:"reorgHeight"`
	FinalHeight       uint32 `json:"finalHeight"`
	RecentStaleBlock  string `json:"recentStaleBlock"`
	RecentStaleHeader string `json:"recentStaleHeader"`
	OldStaleBlock     string `json:"oldStaleBlock"`
	OldStaleHeader    string `json:"oldStaleHeader"`
	ActiveBlock       string `json:"activeBlock"`
	ActiveHeader      string `json:"activeHeader"`
	BloomDisconnect   bool   `json:"bloomDisconnect"`
	Passed            bool   `json:"passed"`
}

func scenarioCommand() *cli.Command {
	return &cli.Command{
		Name:  "scenario",
		Usage: "run the stale block scenarios against an in-process node",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Value: "127.0.0.1:0",
				Usage: "P2P listen address of the in-process node",
			},
			&cli.StringFlag{
				Name:  "store",
				Value: "sqlitememory:///scenario",
				Usage: "block store URL of the in-process node",
			},
			&cli.DurationFlag{
				Name:  "stale-age",
				Usage: "stale block and header age limit of the in-process node, defaults to the legacy settings",
			},
		},
		Action: runScenario,
	}
}

func runScenario(c *cli.Context) error {
	tSettings, err := loadSettings(c)
	if err != nil {
		return err
	}

	tSettings.Legacy.ListenAddresses = []string{c.String("listen")}

	storeURL, err := url.Parse(c.String("store"))
	if err != nil {
		return errors.NewConfigurationError("invalid store url %s", c.String("store"), err)
	}

	tSettings.BlockChain.StoreURL = storeURL

	if staleAge := c.Duration("stale-age"); staleAge > 0 {
		tSettings.Legacy.StaleBlockAgeLimit = staleAge
		tSettings.Legacy.StaleHeaderAgeLimit = staleAge
	}

	logger := newLogger("scnro", tSettings)

	node, err := scenario.StartNode(c.Context, logger, tSettings)
	if err != nil {
		return err
	}

	report, err := scenario.NewHarness(logger, tSettings, node).Run(c.Context)

	if stopErr := node.Stop(); stopErr != nil {
		logger.Warnf("failed to stop node: %v", stopErr)
	}

	if err != nil {
		return err
	}

	// scenario D needs a node without bloom filter support
	noBloom := *tSettings
	noBloom.Legacy.PeerBloomFilters = false

	bloomNode, err := scenario.StartNode(c.Context, logger, &noBloom)
	if err != nil {
		return err
	}

	bloomErr := scenario.NewHarness(logger, &noBloom, bloomNode).RunBloomDisconnect(c.Context)

	if stopErr := bloomNode.Stop(); stopErr != nil {
		logger.Warnf("failed to stop node: %v", stopErr)
	}

	if bloomErr != nil {
		logger.Warnf("bloom scenario failed: %v", bloomErr)
	}

	result := scenarioResult{
		RunID:             report.RunID,
		StaleHash:         report.StaleHash.String(),
		ActiveHash:        report.ActiveHash.String(),
		ReorgHeight:       report.ReorgHeight,
		FinalHeight:       report.FinalHeight,
		RecentStaleBlock:  report.RecentStaleBlock.String(),
		RecentStaleHeader: report.RecentStaleHeader.String(),
		OldStaleBlock:     report.OldStaleBlock.String(),
		OldStaleHeader:    report.OldStaleHeader.String(),
		ActiveBlock:       report.ActiveBlock.String(),
		ActiveHeader:      report.ActiveHeader.String(),
		BloomDisconnect:   bloomErr == nil,
	}

	result.Passed = report.RecentStaleBlock.IsServed() &&
		report.RecentStaleHeader.IsServed() &&
		!report.OldStaleBlock.IsServed() &&
		!report.OldStaleHeader.IsServed() &&
		report.ActiveBlock.IsServed() &&
		report.ActiveHeader.IsServed() &&
		result.BloomDisconnect

	encoder := json.NewEncoder(c.App.Writer)
	encoder.SetIndent("", "  ")

	if err = encoder.Encode(result); err != nil {
		return err
	}

	if !result.Passed {
		return errors.NewProcessingError("stale block scenarios failed")
	}

	return nil
}
