package peer

import (
	"bytes"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type recorder struct {
	mu       sync.Mutex
	commands []string
	got      chan string
}

func newRecorder() *recorder {
	return &recorder{got: make(chan string, 64)}
}

func (r *recorder) record(cmd string) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	r.got <- cmd
}

func (r *recorder) wait(t *testing.T, cmd string) {
	t.Helper()

	timeout := time.After(2 * time.Second)

	for {
		select {
		case got := <-r.got:
			if got == cmd {
				return
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", cmd)
		}
	}
}

func connectedPair(t *testing.T, local, remote MessageListeners) (*Peer, *Peer) {
	t.Helper()

	logger := ulogger.NewErrorTestLogger(t)

	a, b := net.Pipe()

	out, err := NewOutboundPeer(logger, &Config{ChainParams: &chaincfg.RegressionNetParams, Listeners: local}, "127.0.0.1:18444")
	require.NoError(t, err)

	in := NewInboundPeer(logger, &Config{ChainParams: &chaincfg.RegressionNetParams, Listeners: remote})

	out.AssociateConnection(a)
	in.AssociateConnection(b)

	return out, in
}

func TestNewOutboundPeer(t *testing.T) {
	_, err := NewOutboundPeer(&ulogger.TestLogger{}, &Config{}, "not-an-address")
	require.Error(t, err)

	p, err := NewOutboundPeer(&ulogger.TestLogger{}, &Config{}, "127.0.0.1:18444")
	require.NoError(t, err)

	assert.False(t, p.Inbound())
	assert.False(t, p.Connected())
	assert.Equal(t, uint32(wire.ProtocolVersion), p.ProtocolVersion())
	assert.Equal(t, "127.0.0.1:18444 (outbound)", p.String())
}

func TestPeerIDsAreUnique(t *testing.T) {
	a := NewInboundPeer(&ulogger.TestLogger{}, &Config{})
	b := NewInboundPeer(&ulogger.TestLogger{}, &Config{})

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestPingPong(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()

	local := MessageListeners{
		OnPong: func(_ *Peer, msg *wire.MsgPong) {
			assert.Equal(t, uint64(42), msg.Nonce)
			rec.record(msg.Command())
		},
	}

	remote := MessageListeners{
		OnPing: func(p *Peer, msg *wire.MsgPing) {
			p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
		},
	}

	out, in := connectedPair(t, local, remote)

	out.QueueMessage(wire.NewMsgPing(42), nil)
	rec.wait(t, wire.CmdPong)

	out.Disconnect()
	out.WaitForDisconnect()
	in.WaitForDisconnect()

	assert.False(t, out.Connected())
	assert.False(t, in.Connected())
}

func TestResponsesKeepRequestOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	rec := newRecorder()

	local := MessageListeners{
		OnNotFound: func(_ *Peer, msg *wire.MsgNotFound) { rec.record(msg.Command()) },
		OnPong:     func(_ *Peer, msg *wire.MsgPong) { rec.record(msg.Command()) },
	}

	remote := MessageListeners{
		OnGetData: func(p *Peer, msg *wire.MsgGetData) {
			notFound := wire.NewMsgNotFound()
			for _, iv := range msg.InvList {
				_ = notFound.AddInvVect(iv)
			}

			p.QueueMessage(notFound, nil)
		},
		OnPing: func(p *Peer, msg *wire.MsgPing) {
			p.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
		},
	}

	out, in := connectedPair(t, local, remote)

	getData := wire.NewMsgGetData()
	require.NoError(t, getData.AddInvVect(wire.NewInvVect(wire.InvTypeTx, &chainhash.Hash{1})))

	out.QueueMessage(getData, nil)
	out.QueueMessage(wire.NewMsgPing(1), nil)

	rec.wait(t, wire.CmdPong)

	rec.mu.Lock()
	assert.Equal(t, []string{wire.CmdNotFound, wire.CmdPong}, rec.commands)
	rec.mu.Unlock()

	in.Disconnect()
	in.WaitForDisconnect()
	out.WaitForDisconnect()
}

func TestOnDisconnectRunsBeforeRemoteSeesClose(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var (
		mu    sync.Mutex
		order []string
	)

	local := MessageListeners{
		OnDisconnect: func(*Peer) {
			mu.Lock()
			order = append(order, "remote closed")
			mu.Unlock()
		},
	}

	remote := MessageListeners{
		OnMemPool: func(p *Peer, _ *wire.MsgMemPool) {
			p.Disconnect()
		},
		OnDisconnect: func(*Peer) {
			mu.Lock()
			order = append(order, "on disconnect")
			mu.Unlock()
		},
	}

	out, in := connectedPair(t, local, remote)

	out.QueueMessage(wire.NewMsgMemPool(), nil)

	out.WaitForDisconnect()
	in.WaitForDisconnect()

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, []string{"on disconnect", "remote closed"}, order)
}

func TestQueueMessageAfterDisconnect(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	out, in := connectedPair(t, MessageListeners{}, MessageListeners{})

	out.Disconnect()
	out.WaitForDisconnect()
	in.WaitForDisconnect()

	done := make(chan struct{}, 1)
	out.QueueMessage(wire.NewMsgPing(1), done)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("done channel was not signalled")
	}

	// a second disconnect is a no-op
	out.Disconnect()
}

func TestTryQueueMessageWhenQueueIsFull(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	p := NewInboundPeer(&ulogger.TestLogger{}, &Config{ChainParams: &chaincfg.RegressionNetParams, WriteQueueSize: 1})

	// nothing reads the remote end, so the first write never completes
	remote, local := net.Pipe()
	p.AssociateConnection(local)

	queued := 0

	for i := 0; i < 10 && p.TryQueueMessage(wire.NewMsgPing(uint64(i))); i++ {
		queued++
	}

	// one message stuck in the write and one in the queue at most
	assert.LessOrEqual(t, queued, 2)

	p.Disconnect()
	p.WaitForDisconnect()
	_ = remote.Close()

	assert.False(t, p.TryQueueMessage(wire.NewMsgPing(100)))
}

func TestNegotiateProtocolVersion(t *testing.T) {
	p := NewInboundPeer(&ulogger.TestLogger{}, &Config{})

	p.NegotiateProtocolVersion(wire.ProtocolVersion + 1)
	assert.Equal(t, uint32(wire.ProtocolVersion), p.ProtocolVersion())

	p.NegotiateProtocolVersion(wire.BIP0111Version)
	assert.Equal(t, uint32(wire.BIP0111Version), p.ProtocolVersion())
}

// rawMessage frames payload under cmd without validating it.
func rawMessage(bsvnet wire.BitcoinNet, cmd string, payload []byte) []byte {
	var buf bytes.Buffer

	_ = binary.Write(&buf, binary.LittleEndian, uint32(bsvnet))

	var command [wire.CommandSize]byte
	copy(command[:], cmd)
	buf.Write(command[:])

	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(payload)))
	buf.Write(chainhash.DoubleHashB(payload)[:4])
	buf.Write(payload)

	return buf.Bytes()
}

func TestUndecodableMessageIsReportedAndSkipped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	type read struct {
		msg wire.Message
		err error
	}

	reads := make(chan read, 8)
	rec := newRecorder()

	in := NewInboundPeer(ulogger.NewErrorTestLogger(t), &Config{
		ChainParams: &chaincfg.RegressionNetParams,
		Listeners: MessageListeners{
			OnRead: func(_ *Peer, _ int, msg wire.Message, err error) {
				if msg != nil {
					reads <- read{msg: msg, err: err}
				}
			},
			OnPing: func(_ *Peer, msg *wire.MsgPing) {
				rec.record(msg.Command())
			},
		},
	})

	remote, local := net.Pipe()
	in.AssociateConnection(local)

	headers := wire.NewMsgHeaders()
	require.NoError(t, headers.AddBlockHeader(wire.NewBlockHeader(1, &chainhash.Hash{}, &chainhash.Hash{}, 0x207fffff, 1)))

	var payload bytes.Buffer
	require.NoError(t, headers.BsvEncode(&payload, wire.ProtocolVersion, wire.BaseEncoding))

	// a header followed by a non zero transaction count
	malformed := payload.Bytes()
	malformed[len(malformed)-1] = 1

	go func() {
		_, _ = remote.Write(rawMessage(chaincfg.RegressionNetParams.Net, wire.CmdHeaders, malformed))
		_ = wire.WriteMessage(remote, wire.NewMsgPing(7), wire.ProtocolVersion, chaincfg.RegressionNetParams.Net)
	}()

	rec.wait(t, wire.CmdPing)

	first := <-reads
	require.IsType(t, &MalformedMessage{}, first.msg)
	assert.Equal(t, wire.CmdHeaders, first.msg.Command())
	require.Error(t, first.err)

	second := <-reads
	assert.Equal(t, wire.CmdPing, second.msg.Command())
	require.NoError(t, second.err)

	assert.True(t, in.Connected())

	_ = remote.Close()
	in.WaitForDisconnect()
}
