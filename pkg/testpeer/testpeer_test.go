package testpeer

import (
	"context"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testTimeout = 2 * time.Second

// fakeNode accepts a single connection and answers the handshake. Only
// requests for the served block get an answer. mempool closes the
// connection.
type fakeNode struct {
	listener   net.Listener
	peer       atomic.Pointer[peer.Peer]
	verAcks    atomic.Int32
	sendVerAck bool
	served     *wire.MsgBlock

	malformedHeaders atomic.Bool
}

// undecodableHeaders encodes as a headers message whose only header claims a
// transaction.
type undecodableHeaders struct {
	header wire.BlockHeader
}

func (m *undecodableHeaders) Bsvdecode(io.Reader, uint32, wire.MessageEncoding) error {
	return errors.NewProcessingError("not decodable")
}

func (m *undecodableHeaders) BsvEncode(w io.Writer, pver uint32, _ wire.MessageEncoding) error {
	if err := wire.WriteVarInt(w, pver, 1); err != nil {
		return err
	}

	if err := m.header.Serialize(w); err != nil {
		return err
	}

	return wire.WriteVarInt(w, pver, 1)
}

func (m *undecodableHeaders) Command() string {
	return wire.CmdHeaders
}

func (m *undecodableHeaders) MaxPayloadLength(uint32) uint64 {
	return 1024
}

func newFakeNode(t *testing.T, sendVerAck bool) *fakeNode {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	n := &fakeNode{
		listener:   listener,
		sendVerAck: sendVerAck,
		served:     wire.NewMsgBlock(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 7)),
	}

	go n.accept()

	t.Cleanup(n.stop)

	return n
}

func (n *fakeNode) accept() {
	conn, err := n.listener.Accept()
	if err != nil {
		return
	}

	p := peer.NewInboundPeer(&ulogger.TestLogger{}, &peer.Config{
		Listeners: peer.MessageListeners{
			OnVersion: func(p *peer.Peer, msg *wire.MsgVersion) {
				version, err := peer.NewVersionMsg(p.LocalAddr(), p.RemoteAddr(), wire.SFNodeNetwork, 1, 0, "fakenode", "1.0")
				if err != nil {
					p.Disconnect()
					return
				}

				p.QueueMessage(version, nil)

				if n.sendVerAck {
					p.QueueMessage(wire.NewMsgVerAck(), nil)
				}
			},
			OnVerAck: func(*peer.Peer, *wire.MsgVerAck) {
				n.verAcks.Add(1)
			},
			OnPing: func(p *peer.Peer, msg *wire.MsgPing) {
				p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
			},
			OnGetData: func(p *peer.Peer, msg *wire.MsgGetData) {
				for _, iv := range msg.InvList {
					if iv.Hash == n.served.BlockHash() {
						p.QueueMessage(n.served, nil)
					}
				}
			},
			OnGetHeaders: func(p *peer.Peer, msg *wire.MsgGetHeaders) {
				if msg.HashStop != n.served.BlockHash() {
					return
				}

				if n.malformedHeaders.Load() {
					p.QueueMessage(&undecodableHeaders{header: n.served.Header}, nil)
					return
				}

				headers := wire.NewMsgHeaders()
				_ = headers.AddBlockHeader(&n.served.Header)

				p.QueueMessage(headers, nil)
			},
			OnMemPool: func(p *peer.Peer, _ *wire.MsgMemPool) {
				p.Disconnect()
			},
		},
	})

	n.peer.Store(p)
	p.AssociateConnection(conn)
}

func (n *fakeNode) stop() {
	_ = n.listener.Close()

	if p := n.peer.Load(); p != nil {
		p.Disconnect()
		p.WaitForDisconnect()
	}
}

func connect(t *testing.T, n *fakeNode, opts ...Option) *Peer {
	t.Helper()

	p, err := Connect(context.Background(), &ulogger.TestLogger{}, n.listener.Addr().String(), opts...)
	require.NoError(t, err)

	t.Cleanup(p.Close)

	return p
}

func TestHandshakeReachesReady(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))
	assert.Equal(t, StateReady, p.State())
	assert.True(t, p.Connected())

	msg, ok := p.LastMessage(wire.CmdVersion)
	require.True(t, ok)
	assert.Contains(t, msg.(*wire.MsgVersion).UserAgent, "fakenode:1.0")

	require.Eventually(t, func() bool {
		return n.verAcks.Load() == 1
	}, testTimeout, 10*time.Millisecond)

	p.Close()
	n.stop()
}

func TestStaysHandshakingWithoutVerAck(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, false)
	p := connect(t, n, WithTimeouts(200*time.Millisecond, 10*time.Millisecond))

	err := p.WaitForVerAck(0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkTimeout))
	assert.Equal(t, StateHandshaking, p.State())

	// requests are refused until the handshake completes
	err = p.SendMemPool()
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkPeerDisconnected))

	p.Close()
	n.stop()
}

func TestWithholdVerAck(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n, WithholdVerAck())

	require.NoError(t, p.WaitForVerAck(testTimeout))
	require.NoError(t, p.SyncWithPing(testTimeout))

	assert.Equal(t, int32(0), n.verAcks.Load())

	p.Close()
	n.stop()
}

func TestExpectBlockOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))

	servedHash := n.served.BlockHash()

	outcome, err := p.ExpectBlock(&servedHash, testTimeout)
	require.NoError(t, err)
	require.True(t, outcome.IsServed())
	assert.Equal(t, "Served(block)", outcome.String())
	assert.True(t, p.LastBlockEquals(&servedHash))

	outcome, err = p.ExpectBlock(&chainhash.Hash{0x01}, testTimeout)
	require.NoError(t, err)
	assert.False(t, outcome.IsServed())
	assert.Nil(t, outcome.Payload())
	assert.Equal(t, "NoResponseObserved", outcome.String())

	// the earlier block is still the last one seen, it must not count twice
	outcome, err = p.ExpectBlock(&servedHash, testTimeout)
	require.NoError(t, err)
	assert.True(t, outcome.IsServed())
	assert.Equal(t, 2, p.MessageCount(wire.CmdBlock))

	p.Close()
	n.stop()
}

func TestExpectHeaderOutcomes(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))

	servedHash := n.served.BlockHash()

	outcome, err := p.ExpectHeader(&servedHash, testTimeout)
	require.NoError(t, err)
	require.True(t, outcome.IsServed())
	assert.True(t, p.LastHeaderEquals(&servedHash))

	outcome, err = p.ExpectHeader(&chainhash.Hash{0x02}, testTimeout)
	require.NoError(t, err)
	assert.False(t, outcome.IsServed())

	p.ClearMessage(wire.CmdHeaders)
	assert.False(t, p.LastHeaderEquals(&servedHash))

	p.Close()
	n.stop()
}

func TestUndecodableReplyIsRecorded(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	n.malformedHeaders.Store(true)

	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))

	servedHash := n.served.BlockHash()

	outcome, err := p.ExpectHeader(&servedHash, testTimeout)
	require.NoError(t, err)
	assert.False(t, outcome.IsServed())

	msg, ok := p.LastMessage(wire.CmdHeaders)
	require.True(t, ok, "headers reply should be recorded even though it does not decode")
	assert.IsType(t, &peer.MalformedMessage{}, msg)
	assert.Equal(t, 1, p.MessageCount(wire.CmdHeaders))
	assert.False(t, p.LastHeaderEquals(&servedHash))

	// the stream stays usable
	require.NoError(t, p.SyncWithPing(testTimeout))
	assert.Equal(t, StateReady, p.State())

	p.Close()
	n.stop()
}

func TestDisconnectMovesToDisconnected(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))
	require.NoError(t, p.SendMemPool())
	require.NoError(t, p.WaitForDisconnect(testTimeout))

	assert.Equal(t, StateDisconnected, p.State())
	assert.False(t, p.Connected())

	err := p.SendPing(1)
	require.Error(t, err)

	n.stop()
}

func TestWaitForDisconnectTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := newFakeNode(t, true)
	p := connect(t, n)

	require.NoError(t, p.WaitForVerAck(testTimeout))

	err := p.WaitForDisconnect(100 * time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkTimeout))
	assert.True(t, p.Connected())

	p.Close()
	n.stop()
}

func TestConnectRefused(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addr := listener.Addr().String()
	require.NoError(t, listener.Close())

	_, err = Connect(context.Background(), &ulogger.TestLogger{}, addr)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkConnectionRefused))
}

func TestWaitUntil(t *testing.T) {
	p := &Peer{timeout: time.Second, pollInterval: 5 * time.Millisecond}

	var calls atomic.Int32

	require.NoError(t, p.WaitUntil(func() bool {
		return calls.Add(1) == 3
	}, 0, 0))

	err := p.WaitUntil(func() bool { return false }, 30*time.Millisecond, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNetworkTimeout))
}
