// Package peer moves bitcoin wire messages over a single TCP connection.
//
// A Peer has one goroutine reading messages and handing them to the
// configured listeners in the order they arrive, and one goroutine writing
// queued messages in the order they were queued. A listener that queues a
// response before returning therefore has that response written before the
// response to any later message. Handshake and protocol rules live in the
// listeners, not here.
package peer

import (
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/ulogger"
	"github.com/bsv-blockchain/go-chaincfg"
	"github.com/bsv-blockchain/go-wire"
)

const (
	// MinAcceptableProtocolVersion is the lowest protocol version a peer may
	// announce.
	MinAcceptableProtocolVersion = 209

	defaultWriteQueueSize = 64

	// size of the fixed message header: magic, command, length and checksum
	messageHeaderSize = 24
)

var nodeCount atomic.Int32

// MessageListeners are invoked from the read goroutine. A nil listener
// ignores the message.
type MessageListeners struct {
	OnVersion     func(p *Peer, msg *wire.MsgVersion)
	OnVerAck      func(p *Peer, msg *wire.MsgVerAck)
	OnPing        func(p *Peer, msg *wire.MsgPing)
	OnPong        func(p *Peer, msg *wire.MsgPong)
	OnInv         func(p *Peer, msg *wire.MsgInv)
	OnHeaders     func(p *Peer, msg *wire.MsgHeaders)
	OnGetHeaders  func(p *Peer, msg *wire.MsgGetHeaders)
	OnGetData     func(p *Peer, msg *wire.MsgGetData)
	OnBlock       func(p *Peer, msg *wire.MsgBlock, buf []byte)
	OnTx          func(p *Peer, msg *wire.MsgTx)
	OnNotFound    func(p *Peer, msg *wire.MsgNotFound)
	OnMemPool     func(p *Peer, msg *wire.MsgMemPool)
	OnFilterLoad  func(p *Peer, msg *wire.MsgFilterLoad)
	OnFilterAdd   func(p *Peer, msg *wire.MsgFilterAdd)
	OnFilterClear func(p *Peer, msg *wire.MsgFilterClear)
	OnReject      func(p *Peer, msg *wire.MsgReject)

	// OnRead is called after every read attempt. A message that failed to
	// decode is passed as a *MalformedMessage along with the decode error.
	OnRead func(p *Peer, bytesRead int, msg wire.Message, err error)

	// OnWrite is called after every write attempt.
	OnWrite func(p *Peer, bytesWritten int, msg wire.Message, err error)

	// OnDisconnect is called once, before the connection is closed.
	OnDisconnect func(p *Peer)
}

type Config struct {
	ChainParams     *chaincfg.Params
	ProtocolVersion uint32
	WriteQueueSize  int
	Listeners       MessageListeners
}

type outMsg struct {
	msg      wire.Message
	doneChan chan<- struct{}
}

type Peer struct {
	logger  ulogger.Logger
	cfg     Config
	id      int32
	inbound bool
	addr    string

	conn            net.Conn
	protocolVersion atomic.Uint32
	connected       atomic.Bool
	disconnect      atomic.Bool
	timeConnected   time.Time

	outputQueue chan outMsg
	quit        chan struct{}
	wg          sync.WaitGroup
}

func newPeer(logger ulogger.Logger, cfg *Config, inbound bool) *Peer {
	c := *cfg

	if c.ProtocolVersion == 0 {
		c.ProtocolVersion = wire.ProtocolVersion
	}

	if c.WriteQueueSize <= 0 {
		c.WriteQueueSize = defaultWriteQueueSize
	}

	if c.ChainParams == nil {
		c.ChainParams = &chaincfg.RegressionNetParams
	}

	p := &Peer{
		logger:      logger,
		cfg:         c,
		id:          nodeCount.Add(1),
		inbound:     inbound,
		outputQueue: make(chan outMsg, c.WriteQueueSize),
		quit:        make(chan struct{}),
	}

	p.protocolVersion.Store(c.ProtocolVersion)

	return p
}

// NewInboundPeer returns a peer for a connection accepted by a listener.
func NewInboundPeer(logger ulogger.Logger, cfg *Config) *Peer {
	return newPeer(logger, cfg, true)
}

// NewOutboundPeer returns a peer that will be associated with a connection
// dialled to addr.
func NewOutboundPeer(logger ulogger.Logger, cfg *Config, addr string) (*Peer, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, errors.NewInvalidArgumentError("invalid peer address %q", addr, err)
	}

	p := newPeer(logger, cfg, false)
	p.addr = addr

	return p, nil
}

// AssociateConnection attaches conn to the peer and starts the read and
// write goroutines.
func (p *Peer) AssociateConnection(conn net.Conn) {
	if !p.connected.CompareAndSwap(false, true) {
		return
	}

	p.conn = conn
	p.timeConnected = time.Now()

	if p.inbound {
		p.addr = conn.RemoteAddr().String()
	}

	p.wg.Add(2)

	go p.inHandler()
	go p.outHandler()
}

func (p *Peer) ID() int32 {
	return p.id
}

func (p *Peer) Addr() string {
	return p.addr
}

func (p *Peer) LocalAddr() net.Addr {
	if p.conn == nil {
		return nil
	}

	return p.conn.LocalAddr()
}

func (p *Peer) RemoteAddr() net.Addr {
	if p.conn == nil {
		return nil
	}

	return p.conn.RemoteAddr()
}

func (p *Peer) Inbound() bool {
	return p.inbound
}

func (p *Peer) TimeConnected() time.Time {
	return p.timeConnected
}

// ProtocolVersion returns the negotiated protocol version.
func (p *Peer) ProtocolVersion() uint32 {
	return p.protocolVersion.Load()
}

// NegotiateProtocolVersion lowers the protocol version used on the
// connection to the remote version when that is older than ours.
func (p *Peer) NegotiateProtocolVersion(remote uint32) {
	if remote < p.cfg.ProtocolVersion {
		p.protocolVersion.Store(remote)
	}
}

func (p *Peer) Connected() bool {
	return p.connected.Load() && !p.disconnect.Load()
}

func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.addr, directionString(p.inbound))
}

// QueueMessage adds msg to the write queue. doneChan, when not nil, is
// signalled once the message has been written or dropped.
func (p *Peer) QueueMessage(msg wire.Message, doneChan chan<- struct{}) {
	if !p.Connected() {
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}

		return
	}

	select {
	case p.outputQueue <- outMsg{msg: msg, doneChan: doneChan}:
	case <-p.quit:
		if doneChan != nil {
			go func() {
				doneChan <- struct{}{}
			}()
		}
	}
}

// TryQueueMessage queues msg unless the write queue is full and reports
// whether it was queued.
func (p *Peer) TryQueueMessage(msg wire.Message) bool {
	if !p.Connected() {
		return false
	}

	select {
	case p.outputQueue <- outMsg{msg: msg}:
		return true
	default:
		return false
	}
}

// Disconnect closes the connection. It is safe to call more than once and
// from any goroutine.
func (p *Peer) Disconnect() {
	if !p.disconnect.CompareAndSwap(false, true) {
		return
	}

	if p.cfg.Listeners.OnDisconnect != nil {
		p.cfg.Listeners.OnDisconnect(p)
	}

	if p.conn != nil {
		_ = p.conn.Close()
	}

	close(p.quit)
}

// DisconnectWithInfo logs reason at info level and disconnects.
func (p *Peer) DisconnectWithInfo(reason string) {
	p.logger.Infof("[%s] disconnecting: %s", p, reason)
	p.Disconnect()
}

// DisconnectWithWarning logs reason at warn level and disconnects.
func (p *Peer) DisconnectWithWarning(reason string) {
	p.logger.Warnf("[%s] disconnecting: %s", p, reason)
	p.Disconnect()
}

// WaitForDisconnect blocks until the peer is disconnected and both
// goroutines have exited.
func (p *Peer) WaitForDisconnect() {
	<-p.quit
	p.wg.Wait()
}

// Done is closed when the peer disconnects.
func (p *Peer) Done() <-chan struct{} {
	return p.quit
}

func (p *Peer) inHandler() {
	defer p.wg.Done()
	defer p.Disconnect()

	reader := &headerReader{r: p.conn}

	for {
		reader.reset()

		msg, buf, err := wire.ReadMessage(reader, p.ProtocolVersion(), p.cfg.ChainParams.Net)

		// a message that failed to decode after its payload was consumed
		// leaves the stream aligned on the next header
		if err != nil && reader.aligned() {
			msg = &MalformedMessage{Cmd: reader.command(), Err: err}
		}

		if p.cfg.Listeners.OnRead != nil {
			p.cfg.Listeners.OnRead(p, len(buf)+messageHeaderSize, msg, err)
		}

		if err != nil {
			if p.disconnect.Load() {
				return
			}

			if _, ok := msg.(*MalformedMessage); ok {
				p.logger.Debugf("[%s] ignoring undecodable %s message: %v", p, msg.Command(), err)
				continue
			}

			if !errors.Is(err, io.EOF) {
				p.logger.Debugf("[%s] read error: %v", p, err)
			}

			return
		}

		p.dispatch(msg, buf)
	}
}

func (p *Peer) dispatch(msg wire.Message, buf []byte) {
	l := &p.cfg.Listeners

	switch m := msg.(type) {
	case *wire.MsgVersion:
		if l.OnVersion != nil {
			l.OnVersion(p, m)
		}
	case *wire.MsgVerAck:
		if l.OnVerAck != nil {
			l.OnVerAck(p, m)
		}
	case *wire.MsgPing:
		if l.OnPing != nil {
			l.OnPing(p, m)
		}
	case *wire.MsgPong:
		if l.OnPong != nil {
			l.OnPong(p, m)
		}
	case *wire.MsgInv:
		if l.OnInv != nil {
			l.OnInv(p, m)
		}
	case *wire.MsgHeaders:
		if l.OnHeaders != nil {
			l.OnHeaders(p, m)
		}
	case *wire.MsgGetHeaders:
		if l.OnGetHeaders != nil {
			l.OnGetHeaders(p, m)
		}
	case *wire.MsgGetData:
		if l.OnGetData != nil {
			l.OnGetData(p, m)
		}
	case *wire.MsgBlock:
		if l.OnBlock != nil {
			l.OnBlock(p, m, buf)
		}
	case *wire.MsgTx:
		if l.OnTx != nil {
			l.OnTx(p, m)
		}
	case *wire.MsgNotFound:
		if l.OnNotFound != nil {
			l.OnNotFound(p, m)
		}
	case *wire.MsgMemPool:
		if l.OnMemPool != nil {
			l.OnMemPool(p, m)
		}
	case *wire.MsgFilterLoad:
		if l.OnFilterLoad != nil {
			l.OnFilterLoad(p, m)
		}
	case *wire.MsgFilterAdd:
		if l.OnFilterAdd != nil {
			l.OnFilterAdd(p, m)
		}
	case *wire.MsgFilterClear:
		if l.OnFilterClear != nil {
			l.OnFilterClear(p, m)
		}
	case *wire.MsgReject:
		if l.OnReject != nil {
			l.OnReject(p, m)
		}
	default:
		p.logger.Debugf("[%s] received unhandled message %s", p, msg.Command())
	}
}

func (p *Peer) outHandler() {
	defer p.wg.Done()

	for {
		select {
		case out := <-p.outputQueue:
			err := wire.WriteMessage(p.conn, out.msg, p.ProtocolVersion(), p.cfg.ChainParams.Net)

			if p.cfg.Listeners.OnWrite != nil {
				p.cfg.Listeners.OnWrite(p, 0, out.msg, err)
			}

			if out.doneChan != nil {
				out.doneChan <- struct{}{}
			}

			if err != nil {
				if !p.disconnect.Load() {
					p.logger.Debugf("[%s] write error: %v", p, err)
				}

				p.Disconnect()
			}

		case <-p.quit:
			// release anyone waiting on a queued message
			for {
				select {
				case out := <-p.outputQueue:
					if out.doneChan != nil {
						out.doneChan <- struct{}{}
					}
				default:
					return
				}
			}
		}
	}
}

func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}

	return "outbound"
}

// NewVersionMsg builds the version message a side of the connection sends
// first. local and remote may be any net.Addr, non TCP addresses are sent as
// the unspecified address.
func NewVersionMsg(local, remote net.Addr, services wire.ServiceFlag, nonce uint64, height int32, userAgentName, userAgentVersion string) (*wire.MsgVersion, error) {
	msg := wire.NewMsgVersion(netAddress(local, services), netAddress(remote, 0), nonce, height)
	msg.Services = services

	if err := msg.AddUserAgent(userAgentName, userAgentVersion); err != nil {
		return nil, errors.NewInvalidArgumentError("invalid user agent %s/%s", userAgentName, userAgentVersion, err)
	}

	return msg, nil
}

func netAddress(addr net.Addr, services wire.ServiceFlag) *wire.NetAddress {
	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return wire.NewNetAddress(tcpAddr, services)
	}

	return wire.NewNetAddressIPPort(net.IPv4zero, 0, services)
}
