// Package legacy is the node-under-test: a BSV legacy protocol P2P server in
// front of the chain model. It answers block and header requests through the
// stale-block serving policy, accepts headers and blocks from peers, enforces
// the bloom service flag and exposes a small control surface for tests.
package legacy

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/fingerprint/services/blockchain"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/fingerprint/services/legacy/policy"
	"github.com/bsv-blockchain/fingerprint/settings"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util"
	"github.com/bsv-blockchain/fingerprint/util/health"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	txmap "github.com/bsv-blockchain/go-tx-map"
	"github.com/bsv-blockchain/go-wire"
	"github.com/jellydator/ttlcache/v3"
	"github.com/ordishs/gocore"
	"golang.org/x/sync/errgroup"
)

const banDuration = 24 * time.Hour

type Server struct {
	logger   ulogger.Logger
	settings *settings.Settings
	stats    *gocore.Stat
	chain    *blockchain.Chain
	clock    *util.MockClock

	services wire.ServiceFlag
	nonce    uint64
	limits   policy.Limits

	ctx       context.Context
	listeners []net.Listener

	peers           *txmap.SyncedMap[int32, *serverPeer]
	banned          *txmap.SyncedMap[string, time.Time]
	requestedBlocks *ttlcache.Cache[chainhash.Hash, int32]
	peerWg          sync.WaitGroup

	generateMu sync.Mutex
	extraNonce atomic.Uint64
	started    atomic.Bool
}

// New returns a server for chain. clock is the node's notion of now; every
// policy decision and generated block timestamp reads it.
func New(logger ulogger.Logger, tSettings *settings.Settings, chain *blockchain.Chain, clock *util.MockClock) *Server {
	initPrometheusMetrics()

	services := wire.SFNodeNetwork
	if tSettings.Legacy.PeerBloomFilters {
		services |= wire.SFNodeBloom
	}

	if clock == nil {
		clock = util.NewMockClock()
	}

	s := &Server{
		logger:   logger.New("legcy"),
		settings: tSettings,
		stats:    gocore.NewStat("legacy"),
		chain:    chain,
		clock:    clock,
		services: services,
		nonce:    randomNonce(),
		limits: policy.Limits{
			StaleBlockAge:  tSettings.Legacy.StaleBlockAgeLimit,
			StaleHeaderAge: tSettings.Legacy.StaleHeaderAgeLimit,
		},
		ctx:    context.Background(),
		peers:  txmap.NewSyncedMap[int32, *serverPeer](),
		banned: txmap.NewSyncedMap[string, time.Time](),
		requestedBlocks: ttlcache.New[chainhash.Hash, int32](
			ttlcache.WithTTL[chainhash.Hash, int32](tSettings.Legacy.BlockRequestTimeout),
			ttlcache.WithDisableTouchOnHit[chainhash.Hash, int32](),
		),
	}

	chain.OnTipChanged(s.announceTip)

	return s
}

func (s *Server) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	checks := []health.Check{
		{Name: "Listeners", Check: s.checkListeners},
	}

	return health.CheckAll(ctx, checkLiveness, checks)
}

func (s *Server) checkListeners(_ context.Context, _ bool) (int, string, error) {
	if !s.started.Load() || len(s.listeners) == 0 {
		return http.StatusServiceUnavailable, "not listening", nil
	}

	return http.StatusOK, "OK", nil
}

// Init opens the listen sockets so Addr is known before Start is called.
func (s *Server) Init(_ context.Context) error {
	wire.SetLimits(4000000000)

	if len(s.settings.Legacy.ListenAddresses) == 0 {
		return errors.NewConfigurationError("no listen addresses configured, set legacy_listen_addresses")
	}

	for _, addr := range s.settings.Legacy.ListenAddresses {
		listener, err := net.Listen("tcp", addr)
		if err != nil {
			s.closeListeners()
			return errors.NewServiceError("failed to listen on %s", addr, err)
		}

		s.listeners = append(s.listeners, listener)
		s.logger.Infof("listening on %s", listener.Addr())
	}

	return nil
}

// Start accepts inbound peers until ctx is cancelled. readyCh is closed once
// the server accepts connections.
func (s *Server) Start(ctx context.Context, readyCh chan<- struct{}) error {
	if len(s.listeners) == 0 {
		return errors.NewServiceNotStartedError("Init must be called before Start")
	}

	s.ctx = ctx

	go s.requestedBlocks.Start()

	g, gCtx := errgroup.WithContext(ctx)

	for _, listener := range s.listeners {
		g.Go(func() error {
			return s.acceptLoop(gCtx, listener)
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		s.closeListeners()

		return nil
	})

	s.started.Store(true)
	close(readyCh)

	err := g.Wait()

	s.requestedBlocks.Stop()
	s.disconnectAll()

	return err
}

func (s *Server) Stop(_ context.Context) error {
	s.closeListeners()
	s.disconnectAll()

	return nil
}

// Addr returns the address of the first listener.
func (s *Server) Addr() string {
	if len(s.listeners) == 0 {
		return ""
	}

	return s.listeners[0].Addr().String()
}

func (s *Server) acceptLoop(ctx context.Context, listener net.Listener) error {
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}

			s.logger.Errorf("failed to accept connection on %s: %v", listener.Addr(), err)

			continue
		}

		s.handleInbound(conn)
	}
}

func (s *Server) handleInbound(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	if until, ok := s.banned.Get(host); ok {
		if s.clock.Now().Before(until) {
			s.logger.Infof("rejecting connection from banned host %s", host)
			_ = conn.Close()

			return
		}

		s.banned.Delete(host)
	}

	if s.peers.Length() >= s.settings.Legacy.MaxPeers {
		s.logger.Infof("rejecting connection from %s, max peers %d reached", conn.RemoteAddr(), s.settings.Legacy.MaxPeers)
		_ = conn.Close()

		return
	}

	sp := newServerPeer(s)
	sp.Peer = peer.NewInboundPeer(s.logger, sp.newPeerConfig())

	s.peers.Set(sp.ID(), sp)
	prometheusLegacyPeers.Set(float64(s.peers.Length()))

	s.peerWg.Add(1)

	sp.AssociateConnection(conn)

	go func() {
		defer s.peerWg.Done()
		sp.WaitForDisconnect()
	}()

	s.logger.Infof("new inbound peer %s (id %d)", sp, sp.ID())
}

// removePeer is called from the peer's disconnect hook, before its
// connection is closed.
func (s *Server) removePeer(sp *serverPeer) {
	if s.peers.Delete(sp.ID()) {
		prometheusLegacyDisconnects.Inc()
		prometheusLegacyPeers.Set(float64(s.peers.Length()))
		s.logger.Infof("peer %s (id %d) disconnected", sp, sp.ID())
	}
}

// BanPeer bans the host of sp for banDuration.
func (s *Server) BanPeer(sp *serverPeer, reason error) {
	host, _, err := net.SplitHostPort(sp.Addr())
	if err != nil {
		host = sp.Addr()
	}

	s.banned.Set(host, s.clock.Now().Add(banDuration))
	prometheusLegacyBans.Inc()

	s.logger.Warnf("banned host %s for %s: %v", host, banDuration, reason)
}

// announceTip sends an inv for a new active chain tip to every peer that has
// completed the handshake, except the one that supplied the block. Peers
// with a full write queue are skipped.
func (s *Server) announceTip(tip *model.Block, _ bool) {
	inv := wire.NewMsgInv()
	_ = inv.AddInvVect(wire.NewInvVect(wire.InvTypeBlock, tip.Hash()))

	for _, sp := range s.peers.Range() {
		if !sp.handshakeComplete() || sp.hasBlock(tip.Hash()) {
			continue
		}

		// a peer that stopped reading must not hold up the chain
		if !sp.TryQueueMessage(inv) {
			s.logger.Debugf("write queue of %s is full, not announcing %s", sp, tip.Hash())
		}
	}
}

func (s *Server) disconnectAll() {
	for _, sp := range s.peers.Range() {
		sp.Disconnect()
	}

	s.peerWg.Wait()
}

func (s *Server) closeListeners() {
	for _, listener := range s.listeners {
		_ = listener.Close()
	}
}

func (s *Server) decide(hash *chainhash.Hash, kind policy.Kind) policy.Decision {
	decision := policy.Decide(policy.Request{Hash: *hash, Kind: kind}, s.chain.View(), s.clock.Now(), s.limits)

	switch decision {
	case policy.Serve:
		prometheusLegacyServed.WithLabelValues(kind.String()).Inc()
	default:
		prometheusLegacyWithheld.WithLabelValues(kind.String()).Inc()
	}

	return decision
}

func randomNonce() uint64 {
	var b [8]byte

	_, _ = rand.Read(b[:])

	return binary.LittleEndian.Uint64(b[:])
}
