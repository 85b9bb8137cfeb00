// Package settings builds the typed configuration of the node and the harness
// from gocore settings files and environment overrides.
package settings

import (
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/go-chaincfg"
)

const staleAgeLimit = 30 * 24 * time.Hour

func NewSettings() *Settings {
	params, err := GetChainParams(getString("network", "regtest"))
	if err != nil {
		panic(err)
	}

	return &Settings{
		ClientName:     getString("clientName", "fingerprint"),
		LogLevel:       getString("logLevel", "INFO"),
		LoggerType:     getString("logger", "zerolog"),
		DataFolder:     getString("dataFolder", "data"),
		ChainCfgParams: params,
		BlockChain: BlockChainSettings{
			StoreURL:           getURL("blockchain_store", "sqlitememory:///blockchain"),
			MaxFutureBlockTime: getDuration("blockchain_maxFutureBlockTime", 2*time.Hour),
		},
		Legacy: LegacySettings{
			ListenAddresses:     getMultiString("legacy_listen_addresses", "127.0.0.1:0"),
			PeerBloomFilters:    getBool("legacy_peerBloomFilters", true),
			StaleBlockAgeLimit:  getDuration("legacy_staleBlockAgeLimit", staleAgeLimit),
			StaleHeaderAgeLimit: getDuration("legacy_staleHeaderAgeLimit", staleAgeLimit),
			MaxPeers:            getInt("legacy_maxPeers", 125),
			BanThreshold:        getInt("legacy_banThreshold", 100),
			DisableBanning:      getBool("legacy_disableBanning", false),
			UserAgentName:       getString("legacy_userAgentName", "fingerprint"),
			UserAgentVersion:    getString("legacy_userAgentVersion", "0.1.0"),
			BlockRequestTimeout: getDuration("legacy_blockRequestTimeout", 20*time.Second),
			WriteQueueSize:      getInt("legacy_writeQueueSize", 64),
		},
		Policy: &PolicySettings{
			ExcessiveBlockSize: getInt("excessiveblocksize", 4294967296), // 4GB
		},
		Prometheus: PrometheusSettings{
			ListenAddress: getString("prometheus_listenAddress", ":9091"),
			Endpoint:      getString("prometheus_endpoint", "/metrics"),
		},
		RPC: RPCSettings{
			ListenAddress: getString("rpc_listenAddress", ""),
			RPCUser:       getString("rpc_user", ""),
			RPCPass:       getString("rpc_pass", ""),
			RPCTimeout:    getDuration("rpc_timeout", 30*time.Second),
		},
		Harness: HarnessSettings{
			RequestTimeout: getDuration("harness_requestTimeout", 3*time.Second),
			PollInterval:   getDuration("harness_pollInterval", 50*time.Millisecond),
			MockTimeOffset: getDuration("harness_mockTimeOffset", 60*24*time.Hour),
		},
	}
}

// GetChainParams maps a network name to its chain parameters.
func GetChainParams(network string) (*chaincfg.Params, error) {
	switch network {
	case "mainnet":
		return &chaincfg.MainNetParams, nil
	case "testnet":
		return &chaincfg.TestNetParams, nil
	case "regtest":
		return &chaincfg.RegressionNetParams, nil
	default:
		return nil, errors.NewConfigurationError("unknown network %s", network)
	}
}
