package legacy

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/fingerprint/services/legacy/policy"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	txmap "github.com/bsv-blockchain/go-tx-map"
	"github.com/bsv-blockchain/go-wire"
	"github.com/ordishs/gocore"
)

// serverPeer extends peer.Peer with the state the server keeps per
// connection.
type serverPeer struct {
	*peer.Peer

	server *Server

	mu             sync.RWMutex
	userAgent      string
	startingHeight int32

	versionKnown   atomic.Bool
	verAckReceived atomic.Bool
	banScore       atomic.Uint32

	// blocks this peer sent or announced to us
	knownBlocks *txmap.SyncedMap[chainhash.Hash, struct{}]
}

func newServerPeer(s *Server) *serverPeer {
	return &serverPeer{
		server:      s,
		knownBlocks: txmap.NewSyncedMap[chainhash.Hash, struct{}](),
	}
}

func (sp *serverPeer) newPeerConfig() *peer.Config {
	return &peer.Config{
		ChainParams:     sp.server.chain.Params(),
		ProtocolVersion: wire.ProtocolVersion,
		WriteQueueSize:  sp.server.settings.Legacy.WriteQueueSize,
		Listeners: peer.MessageListeners{
			OnVersion:     sp.OnVersion,
			OnVerAck:      sp.OnVerAck,
			OnPing:        sp.OnPing,
			OnPong:        sp.OnPong,
			OnInv:         sp.OnInv,
			OnHeaders:     sp.OnHeaders,
			OnGetHeaders:  sp.OnGetHeaders,
			OnGetData:     sp.OnGetData,
			OnBlock:       sp.OnBlock,
			OnTx:          sp.OnTx,
			OnNotFound:    sp.OnNotFound,
			OnMemPool:     sp.OnMemPool,
			OnFilterLoad:  sp.OnFilterLoad,
			OnFilterAdd:   sp.OnFilterAdd,
			OnFilterClear: sp.OnFilterClear,
			OnReject:      sp.OnReject,
			OnDisconnect: func(*peer.Peer) {
				sp.server.removePeer(sp)
			},
		},
	}
}

func (sp *serverPeer) handshakeComplete() bool {
	return sp.versionKnown.Load() && sp.verAckReceived.Load()
}

// ready reports whether a message other than version or verack may be
// processed. Messages before version count against the ban score, messages
// between version and verack are dropped.
func (sp *serverPeer) ready(cmd string) bool {
	if !sp.versionKnown.Load() {
		sp.addBanScore(1, cmd+" received before version")
		return false
	}

	if !sp.verAckReceived.Load() {
		sp.server.logger.Debugf("[%s] ignoring %s received before verack", sp, cmd)
		return false
	}

	return true
}

func (sp *serverPeer) hasBlock(hash *chainhash.Hash) bool {
	return sp.knownBlocks.Exists(*hash)
}

func (sp *serverPeer) markBlock(hash *chainhash.Hash) {
	sp.knownBlocks.Set(*hash, struct{}{})
}

func newBanError(addr string, score uint32, reason string) *errors.Error {
	banErr := errors.NewNetworkPeerMaliciousError("misbehaving peer -- banning and disconnecting")
	banErr.SetData("peer", addr)
	banErr.SetData("score", score)
	banErr.SetData("reason", reason)

	return banErr
}

// addBanScore increases the misbehaviour score of the peer and bans and
// disconnects it once the score reaches legacy_banThreshold.
func (sp *serverPeer) addBanScore(increment uint32, reason string) {
	if sp.server.settings.Legacy.DisableBanning {
		sp.server.logger.Debugf("misbehaving peer %s: %s", sp, reason)
		return
	}

	threshold, err := safeconversion.IntToUint32(sp.server.settings.Legacy.BanThreshold)
	if err != nil {
		sp.server.logger.Errorf("invalid ban threshold: %v", err)
		return
	}

	score := sp.banScore.Add(increment)
	if score > threshold>>1 {
		sp.server.logger.Warnf("misbehaving peer %s: %s -- ban score increased to %d", sp, reason, score)
	}

	if score >= threshold {
		banErr := newBanError(sp.Addr(), score, reason)

		sp.server.BanPeer(sp, banErr)
		sp.DisconnectWithWarning(banErr.Message())
	}
}

// OnVersion answers the remote version with our own version followed by a
// verack.
func (sp *serverPeer) OnVersion(p *peer.Peer, msg *wire.MsgVersion) {
	if sp.versionKnown.Load() {
		sp.addBanScore(1, "duplicate version message")
		return
	}

	if msg.Nonce == sp.server.nonce {
		p.DisconnectWithInfo("connected to self")
		return
	}

	if msg.ProtocolVersion < int32(peer.MinAcceptableProtocolVersion) {
		p.DisconnectWithInfo("protocol version too old")
		return
	}

	remoteVersion, err := safeconversion.Int32ToUint32(msg.ProtocolVersion)
	if err != nil {
		p.DisconnectWithWarning("invalid protocol version")
		return
	}

	sp.mu.Lock()
	sp.userAgent = msg.UserAgent
	sp.startingHeight = msg.LastBlock
	sp.mu.Unlock()

	height, err := safeconversion.Uint32ToInt32(sp.server.chain.Height())
	if err != nil {
		sp.server.logger.Errorf("chain height out of range: %v", err)
		return
	}

	version, err := peer.NewVersionMsg(p.LocalAddr(), p.RemoteAddr(), sp.server.services, sp.server.nonce, height,
		sp.server.settings.Legacy.UserAgentName, sp.server.settings.Legacy.UserAgentVersion)
	if err != nil {
		sp.server.logger.Errorf("failed to create version message: %v", err)
		return
	}

	p.QueueMessage(version, nil)
	p.NegotiateProtocolVersion(remoteVersion)
	sp.versionKnown.Store(true)
	p.QueueMessage(wire.NewMsgVerAck(), nil)

	sp.server.logger.Debugf("[%s] version %d, user agent %s, height %d", sp, msg.ProtocolVersion, msg.UserAgent, msg.LastBlock)
}

func (sp *serverPeer) OnVerAck(_ *peer.Peer, msg *wire.MsgVerAck) {
	if !sp.versionKnown.Load() {
		sp.addBanScore(1, msg.Command()+" received before version")
		return
	}

	sp.verAckReceived.Store(true)
	sp.server.logger.Infof("[%s] handshake complete", sp)
}

func (sp *serverPeer) OnPing(p *peer.Peer, msg *wire.MsgPing) {
	if !sp.ready(msg.Command()) {
		return
	}

	// queued behind every response to earlier requests
	p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
}

func (sp *serverPeer) OnPong(_ *peer.Peer, _ *wire.MsgPong) {}

// OnMemPool disconnects the peer unless bloom filters are enabled. The node
// keeps no mempool, so there is nothing to announce otherwise.
func (sp *serverPeer) OnMemPool(_ *peer.Peer, msg *wire.MsgMemPool) {
	if !sp.ready(msg.Command()) {
		return
	}

	if !sp.enforceNodeBloomFlag(msg.Command()) {
		return
	}

	sp.server.logger.Debugf("[%s] mempool request, mempool is empty", sp)
}

func (sp *serverPeer) OnFilterLoad(_ *peer.Peer, msg *wire.MsgFilterLoad) {
	sp.onFilter(msg.Command())
}

func (sp *serverPeer) OnFilterAdd(_ *peer.Peer, msg *wire.MsgFilterAdd) {
	sp.onFilter(msg.Command())
}

func (sp *serverPeer) OnFilterClear(_ *peer.Peer, msg *wire.MsgFilterClear) {
	sp.onFilter(msg.Command())
}

func (sp *serverPeer) onFilter(cmd string) {
	if !sp.ready(cmd) {
		return
	}

	if !sp.enforceNodeBloomFlag(cmd) {
		return
	}

	sp.server.logger.Debugf("[%s] ignoring %s, filtered relay is not implemented", sp, cmd)
}

// enforceNodeBloomFlag disconnects peers that send bloom related messages
// while the node does not advertise SFNodeBloom. Peers new enough to know
// better are also banned when banning is enabled.
func (sp *serverPeer) enforceNodeBloomFlag(cmd string) bool {
	if sp.server.services&wire.SFNodeBloom == wire.SFNodeBloom {
		return true
	}

	if sp.ProtocolVersion() >= wire.BIP0111Version && !sp.server.settings.Legacy.DisableBanning {
		sp.addBanScore(100, cmd)
		sp.DisconnectWithWarning("ignoring unsupported " + cmd + " request, protocol version knows about NODE_BLOOM")

		return false
	}

	sp.DisconnectWithWarning("ignoring unsupported " + cmd + " request from peer")

	return false
}

// OnGetData sends the requested blocks the serving policy allows. Withheld
// blocks get no reply at all, the same as unknown ones. Transactions are
// answered with notfound.
func (sp *serverPeer) OnGetData(p *peer.Peer, msg *wire.MsgGetData) {
	if !sp.ready(msg.Command()) {
		return
	}

	start := gocore.CurrentTime()
	defer sp.server.stats.NewStat("OnGetData").AddTime(start)

	notFound := wire.NewMsgNotFound()

	for _, iv := range msg.InvList {
		switch iv.Type {
		case wire.InvTypeBlock:
			if sp.server.decide(&iv.Hash, policy.KindBlock) != policy.Serve {
				sp.server.logger.Debugf("[%s] withholding block %s", sp, iv.Hash)
				continue
			}

			block, ok := sp.server.chain.BlockByHash(&iv.Hash)
			if !ok {
				continue
			}

			p.QueueMessage(block.MsgBlock(), nil)

		case wire.InvTypeTx:
			_ = notFound.AddInvVect(iv)

		default:
			sp.server.logger.Debugf("[%s] ignoring getdata for inventory type %s", sp, iv.Type)
		}
	}

	if len(notFound.InvList) > 0 {
		p.QueueMessage(notFound, nil)
	}
}

// OnGetHeaders answers with the active chain headers after the locator. An
// empty locator asks for the hash stop header alone, which goes through the
// serving policy since it may be stale.
func (sp *serverPeer) OnGetHeaders(p *peer.Peer, msg *wire.MsgGetHeaders) {
	if !sp.ready(msg.Command()) {
		return
	}

	start := gocore.CurrentTime()
	defer sp.server.stats.NewStat("OnGetHeaders").AddTime(start)

	var hashStop *chainhash.Hash
	if !msg.HashStop.IsEqual(&chainhash.Hash{}) {
		hashStop = &msg.HashStop
	}

	if len(msg.BlockLocatorHashes) == 0 {
		if hashStop == nil || sp.server.decide(hashStop, policy.KindHeader) != policy.Serve {
			sp.server.logger.Debugf("[%s] withholding header %v", sp, hashStop)
			return
		}
	}

	blocks := sp.server.chain.LocateHeaders(msg.BlockLocatorHashes, hashStop, wire.MaxBlockHeadersPerMsg)

	headers := wire.NewMsgHeaders()

	for _, block := range blocks {
		header := block.Header()
		_ = headers.AddBlockHeader(&header)
	}

	p.QueueMessage(headers, nil)
}

// OnInv asks for the headers leading to any unknown announced block.
func (sp *serverPeer) OnInv(p *peer.Peer, msg *wire.MsgInv) {
	if !sp.ready(msg.Command()) {
		return
	}

	var unknown *chainhash.Hash

	for _, iv := range msg.InvList {
		if iv.Type != wire.InvTypeBlock {
			continue
		}

		sp.markBlock(&iv.Hash)

		if !sp.server.chain.BlockExists(&iv.Hash) {
			unknown = &iv.Hash
		}
	}

	if unknown == nil {
		return
	}

	sp.pushGetHeaders(p, unknown)
}

func (sp *serverPeer) pushGetHeaders(p *peer.Peer, hashStop *chainhash.Hash) {
	getHeaders := wire.NewMsgGetHeaders()

	for _, hash := range sp.server.chain.BlockLocator() {
		if err := getHeaders.AddBlockLocatorHash(hash); err != nil {
			break
		}
	}

	if hashStop != nil {
		getHeaders.HashStop = *hashStop
	}

	p.QueueMessage(getHeaders, nil)
}

// OnTx is a no-op, transactions are not relayed.
func (sp *serverPeer) OnTx(_ *peer.Peer, msg *wire.MsgTx) {
	if !sp.ready(msg.Command()) {
		return
	}

	sp.server.logger.Debugf("[%s] ignoring tx %s", sp, msg.TxHash())
}

func (sp *serverPeer) OnNotFound(_ *peer.Peer, msg *wire.MsgNotFound) {
	for _, iv := range msg.InvList {
		if iv.Type == wire.InvTypeBlock {
			sp.server.requestedBlocks.Delete(iv.Hash)
		}
	}

	sp.server.logger.Debugf("[%s] notfound for %d items", sp, len(msg.InvList))
}

func (sp *serverPeer) OnReject(_ *peer.Peer, msg *wire.MsgReject) {
	sp.server.logger.Debugf("[%s] rejected %s: %s", sp, msg.Cmd, msg.Reason)
}

// snapshot returns the PeerInfo of the peer.
func (sp *serverPeer) snapshot() PeerInfo {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	return PeerInfo{
		ID:              sp.ID(),
		Addr:            sp.Addr(),
		Inbound:         sp.Inbound(),
		UserAgent:       sp.userAgent,
		ProtocolVersion: sp.ProtocolVersion(),
		VersionKnown:    sp.versionKnown.Load(),
		VerAckReceived:  sp.verAckReceived.Load(),
		ConnTime:        sp.TimeConnected().Truncate(time.Second),
		StartingHeight:  sp.startingHeight,
		BanScore:        sp.banScore.Load(),
	}
}
