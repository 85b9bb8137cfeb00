// Package testpeer is a scriptable BSV legacy protocol client for driving a
// node in tests.
//
// A Peer dials a node, performs the version handshake and records the last
// message received for every command. Tests send requests and then poll the
// recorded messages; a request the node ignores is detected by a ping round
// trip, since the node answers requests in order.
package testpeer

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"maps"
	"net"
	"sync"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/services/legacy/peer"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/fingerprint/util/retry"
	"github.com/bsv-blockchain/go-chaincfg"
	safeconversion "github.com/bsv-blockchain/go-safe-conversion"
	"github.com/bsv-blockchain/go-wire"
	"github.com/looplab/fsm"
)

const (
	StateConnecting   = "CONNECTING"
	StateHandshaking  = "HANDSHAKING"
	StateReady        = "READY"
	StateDisconnected = "DISCONNECTED"

	eventVersionSent  = "VERSION_SENT"
	eventVerAckRecv   = "VERACK_RECEIVED"
	eventDisconnected = "DISCONNECTED"

	defaultTimeout      = 3 * time.Second
	defaultPollInterval = 50 * time.Millisecond
)

type Option func(*Peer)

// WithholdVerAck makes the peer never answer the node's version with a
// verack, leaving the node side of the handshake incomplete.
func WithholdVerAck() Option {
	return func(p *Peer) {
		p.withholdVerAck = true
	}
}

// WithTimeouts sets the default wait bound and poll interval.
func WithTimeouts(timeout, pollInterval time.Duration) Option {
	return func(p *Peer) {
		if timeout > 0 {
			p.timeout = timeout
		}

		if pollInterval > 0 {
			p.pollInterval = pollInterval
		}
	}
}

func WithChainParams(params *chaincfg.Params) Option {
	return func(p *Peer) {
		p.params = params
	}
}

func WithUserAgent(name, version string) Option {
	return func(p *Peer) {
		p.userAgentName = name
		p.userAgentVersion = version
	}
}

type Peer struct {
	logger ulogger.Logger
	params *chaincfg.Params
	fsm    *fsm.FSM
	peer   *peer.Peer

	withholdVerAck   bool
	userAgentName    string
	userAgentVersion string
	timeout          time.Duration
	pollInterval     time.Duration

	mu     sync.Mutex
	last   map[string]wire.Message
	counts map[string]int
}

// Connect dials addr, sends version and returns without waiting for the
// handshake to finish. Use WaitForVerAck to wait for the Ready state.
func Connect(ctx context.Context, logger ulogger.Logger, addr string, opts ...Option) (*Peer, error) {
	p := &Peer{
		logger:           logger.New("tpeer"),
		params:           &chaincfg.RegressionNetParams,
		userAgentName:    "testpeer",
		userAgentVersion: "0.1.0",
		timeout:          defaultTimeout,
		pollInterval:     defaultPollInterval,
		last:             make(map[string]wire.Message),
		counts:           make(map[string]int),
	}

	for _, opt := range opts {
		opt(p)
	}

	p.fsm = p.newFiniteStateMachine()

	var err error

	p.peer, err = peer.NewOutboundPeer(p.logger, p.newPeerConfig(), addr)
	if err != nil {
		return nil, err
	}

	conn, err := retry.RetryWithLogger(ctx, p.logger, func() (net.Conn, error) {
		var dialer net.Dialer
		return dialer.DialContext(ctx, "tcp", addr)
	}, 5, 1, 100*time.Millisecond, "dialing "+addr)
	if err != nil {
		return nil, errors.NewNetworkConnectionRefusedError("failed to connect to %s", addr, err)
	}

	version, err := peer.NewVersionMsg(conn.LocalAddr(), conn.RemoteAddr(), 0, randomNonce(), 0, p.userAgentName, p.userAgentVersion)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	p.peer.AssociateConnection(conn)

	// the transition must happen before the node can answer
	if err = p.fsm.Event(ctx, eventVersionSent); err != nil {
		p.peer.Disconnect()
		return nil, errors.NewStateError("failed to enter handshaking state", err)
	}

	p.peer.QueueMessage(version, nil)

	return p, nil
}

func (p *Peer) newFiniteStateMachine() *fsm.FSM {
	return fsm.NewFSM(
		StateConnecting,
		fsm.Events{
			{
				Name: eventVersionSent,
				Src:  []string{StateConnecting},
				Dst:  StateHandshaking,
			},
			{
				Name: eventVerAckRecv,
				Src:  []string{StateHandshaking},
				Dst:  StateReady,
			},
			{
				Name: eventDisconnected,
				Src:  []string{StateConnecting, StateHandshaking, StateReady},
				Dst:  StateDisconnected,
			},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				p.logger.Debugf("state %s -> %s", e.Src, e.Dst)
			},
		},
	)
}

func (p *Peer) newPeerConfig() *peer.Config {
	return &peer.Config{
		ChainParams: p.params,
		Listeners: peer.MessageListeners{
			// undecodable messages arrive as *peer.MalformedMessage and are
			// recorded under their command like any other
			OnRead: func(_ *peer.Peer, _ int, msg wire.Message, _ error) {
				if msg != nil {
					p.record(msg)
				}
			},
			OnVersion: func(pp *peer.Peer, msg *wire.MsgVersion) {
				if remote, err := safeconversion.Int32ToUint32(msg.ProtocolVersion); err == nil {
					pp.NegotiateProtocolVersion(remote)
				}

				if !p.withholdVerAck {
					pp.QueueMessage(wire.NewMsgVerAck(), nil)
				}
			},
			OnVerAck: func(_ *peer.Peer, _ *wire.MsgVerAck) {
				if err := p.fsm.Event(context.Background(), eventVerAckRecv); err != nil {
					p.logger.Debugf("unexpected verack: %v", err)
				}
			},
			OnPing: func(pp *peer.Peer, msg *wire.MsgPing) {
				pp.QueueMessage(wire.NewMsgPong(msg.Nonce), nil)
			},
			OnDisconnect: func(*peer.Peer) {
				_ = p.fsm.Event(context.Background(), eventDisconnected)
			},
		},
	}
}

// State returns the current handshake state.
func (p *Peer) State() string {
	return p.fsm.Current()
}

func (p *Peer) Connected() bool {
	return p.peer.Connected()
}

// Close disconnects from the node and waits for the connection goroutines
// to exit.
func (p *Peer) Close() {
	p.peer.Disconnect()
	p.peer.WaitForDisconnect()
}

func (p *Peer) record(msg wire.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := msg.Command()
	p.last[cmd] = msg
	p.counts[cmd]++
}

// LastMessage returns the last message received for cmd. A message that
// failed to decode is returned as a *peer.MalformedMessage.
func (p *Peer) LastMessage(cmd string) (wire.Message, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	msg, ok := p.last[cmd]

	return msg, ok
}

// MessageCount returns how many cmd messages have been received.
func (p *Peer) MessageCount(cmd string) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.counts[cmd]
}

// MessageCounts returns a copy of the per command receive counts.
func (p *Peer) MessageCounts() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()

	return maps.Clone(p.counts)
}

// ClearMessage forgets the last message received for cmd.
func (p *Peer) ClearMessage(cmd string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.last, cmd)
}

// WaitUntil polls predicate every pollInterval until it returns true or
// timeout elapses. Zero values use the peer defaults.
func (p *Peer) WaitUntil(predicate func() bool, timeout, pollInterval time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeout
	}

	if pollInterval <= 0 {
		pollInterval = p.pollInterval
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if predicate() {
			return nil
		}

		select {
		case <-deadline.C:
			if predicate() {
				return nil
			}

			return errors.NewNetworkTimeoutError("condition not met within %s", timeout)
		case <-ticker.C:
		}
	}
}

// WaitForVerAck waits for the Ready state.
func (p *Peer) WaitForVerAck(timeout time.Duration) error {
	return p.WaitUntil(func() bool {
		return p.fsm.Is(StateReady)
	}, timeout, 0)
}

// WaitForDisconnect waits for the node to close the connection.
func (p *Peer) WaitForDisconnect(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = p.timeout
	}

	select {
	case <-p.peer.Done():
		p.peer.WaitForDisconnect()
		return nil
	case <-time.After(timeout):
		return errors.NewNetworkTimeoutError("peer still connected after %s", timeout)
	}
}

func randomNonce() uint64 {
	var b [8]byte

	_, _ = rand.Read(b[:])

	return binary.LittleEndian.Uint64(b[:])
}
