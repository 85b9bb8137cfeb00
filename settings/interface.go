package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type BlockChainSettings struct {
	StoreURL *url.URL
	// MaxFutureBlockTime bounds how far ahead of the node clock a block timestamp may be.
	MaxFutureBlockTime time.Duration
}

type LegacySettings struct {
	ListenAddresses     []string
	PeerBloomFilters    bool
	StaleBlockAgeLimit  time.Duration
	StaleHeaderAgeLimit time.Duration
	MaxPeers            int
	BanThreshold        int
	DisableBanning      bool
	UserAgentName       string
	UserAgentVersion    string
	BlockRequestTimeout time.Duration
	WriteQueueSize      int
}

type PolicySettings struct {
	ExcessiveBlockSize int
}

type PrometheusSettings struct {
	ListenAddress string
	Endpoint      string
}

type RPCSettings struct {
	ListenAddress string
	RPCUser       string
	RPCPass       string
	RPCTimeout    time.Duration
}

type HarnessSettings struct {
	RequestTimeout time.Duration
	PollInterval   time.Duration
	MockTimeOffset time.Duration
}

type Settings struct {
	ClientName     string
	LogLevel       string
	LoggerType     string
	DataFolder     string
	ChainCfgParams *chaincfg.Params
	BlockChain     BlockChainSettings
	Legacy         LegacySettings
	Policy         *PolicySettings
	Prometheus     PrometheusSettings
	RPC            RPCSettings
	Harness        HarnessSettings
}
