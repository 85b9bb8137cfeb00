package testpeer

import (
	"fmt"
	"time"

	"github.com/bsv-blockchain/fingerprint/errors"
	"github.com/bsv-blockchain/fingerprint/model"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/bsv-blockchain/go-wire"
)

// Outcome is what a single block or header request produced. A node that
// withholds a block and a node that does not know it look the same on the
// wire, so the only two outcomes are a served payload or silence.
type Outcome struct {
	served  bool
	payload wire.Message
}

// Served returns an outcome carrying the message the node answered with.
func Served(payload wire.Message) Outcome {
	return Outcome{served: true, payload: payload}
}

// NoResponseObserved returns the outcome of a request left unanswered until
// a later ping was answered.
func NoResponseObserved() Outcome {
	return Outcome{}
}

func (o Outcome) IsServed() bool {
	return o.served
}

// Payload returns the served message, nil when nothing was observed.
func (o Outcome) Payload() wire.Message {
	return o.payload
}

func (o Outcome) String() string {
	if !o.served {
		return "NoResponseObserved"
	}

	return fmt.Sprintf("Served(%s)", o.payload.Command())
}

// Send queues msg without any state check.
func (p *Peer) Send(msg wire.Message) {
	p.peer.QueueMessage(msg, nil)
}

func (p *Peer) sendReady(msg wire.Message) error {
	if state := p.fsm.Current(); state != StateReady {
		return errors.NewNetworkPeerDisconnectedError("cannot send %s in state %s", msg.Command(), state)
	}

	p.Send(msg)

	return nil
}

// SendGetData requests a single inventory item.
func (p *Peer) SendGetData(invType wire.InvType, hash *chainhash.Hash) error {
	getData := wire.NewMsgGetData()
	if err := getData.AddInvVect(wire.NewInvVect(invType, hash)); err != nil {
		return errors.NewInvalidArgumentError("failed to build getdata", err)
	}

	return p.sendReady(getData)
}

// SendGetHeaders requests headers after locator. With an empty locator the
// node is asked for hashStop alone.
func (p *Peer) SendGetHeaders(locator []*chainhash.Hash, hashStop *chainhash.Hash) error {
	getHeaders := wire.NewMsgGetHeaders()

	for _, hash := range locator {
		if err := getHeaders.AddBlockLocatorHash(hash); err != nil {
			return errors.NewInvalidArgumentError("failed to build getheaders", err)
		}
	}

	if hashStop != nil {
		getHeaders.HashStop = *hashStop
	}

	return p.sendReady(getHeaders)
}

// SendHeaders announces the headers of blocks.
func (p *Peer) SendHeaders(blocks []*model.Block) error {
	headers := wire.NewMsgHeaders()

	for _, block := range blocks {
		header := block.Header()
		if err := headers.AddBlockHeader(&header); err != nil {
			return errors.NewInvalidArgumentError("failed to build headers", err)
		}
	}

	return p.sendReady(headers)
}

func (p *Peer) SendBlock(block *model.Block) error {
	return p.sendReady(block.MsgBlock())
}

func (p *Peer) SendMemPool() error {
	return p.sendReady(wire.NewMsgMemPool())
}

func (p *Peer) SendPing(nonce uint64) error {
	return p.sendReady(wire.NewMsgPing(nonce))
}

// SyncWithPing sends a ping and waits for the matching pong. Every request
// sent before it has been answered, or ignored, once it returns.
func (p *Peer) SyncWithPing(timeout time.Duration) error {
	nonce := randomNonce()

	if err := p.SendPing(nonce); err != nil {
		return err
	}

	return p.WaitUntil(func() bool {
		msg, _ := p.LastMessage(wire.CmdPong)
		pong, ok := msg.(*wire.MsgPong)

		return ok && pong.Nonce == nonce
	}, timeout, 0)
}

// SendAndPing sends msg and syncs with a ping.
func (p *Peer) SendAndPing(msg wire.Message, timeout time.Duration) error {
	if err := p.sendReady(msg); err != nil {
		return err
	}

	return p.SyncWithPing(timeout)
}

// WaitForGetData waits until the last getdata received asks for every hash
// as a block.
func (p *Peer) WaitForGetData(hashes []*chainhash.Hash, timeout time.Duration) error {
	return p.WaitUntil(func() bool {
		msg, _ := p.LastMessage(wire.CmdGetData)

		getData, ok := msg.(*wire.MsgGetData)
		if !ok {
			return false
		}

		requested := make(map[chainhash.Hash]struct{}, len(getData.InvList))
		for _, iv := range getData.InvList {
			if iv.Type == wire.InvTypeBlock {
				requested[iv.Hash] = struct{}{}
			}
		}

		for _, hash := range hashes {
			if _, found := requested[*hash]; !found {
				return false
			}
		}

		return true
	}, timeout, 0)
}

// WaitForBlock waits until the last block received is hash.
func (p *Peer) WaitForBlock(hash *chainhash.Hash, timeout time.Duration) error {
	return p.WaitUntil(func() bool {
		return p.LastBlockEquals(hash)
	}, timeout, 0)
}

// WaitForHeader waits until the last header of the last headers message
// received is hash.
func (p *Peer) WaitForHeader(hash *chainhash.Hash, timeout time.Duration) error {
	return p.WaitUntil(func() bool {
		return p.LastHeaderEquals(hash)
	}, timeout, 0)
}

// LastBlockEquals reports whether the last block received is hash.
func (p *Peer) LastBlockEquals(hash *chainhash.Hash) bool {
	msg, _ := p.LastMessage(wire.CmdBlock)

	block, ok := msg.(*wire.MsgBlock)
	if !ok {
		return false
	}

	blockHash := block.BlockHash()

	return blockHash.IsEqual(hash)
}

// LastHeaderEquals reports whether the last header of the last headers
// message received is hash.
func (p *Peer) LastHeaderEquals(hash *chainhash.Hash) bool {
	msg, _ := p.LastMessage(wire.CmdHeaders)

	headersMsg, ok := msg.(*wire.MsgHeaders)
	if !ok || len(headersMsg.Headers) == 0 {
		return false
	}

	headers := headersMsg.Headers
	headerHash := headers[len(headers)-1].BlockHash()

	return headerHash.IsEqual(hash)
}

// ExpectBlock asks for the block body of hash and reports whether the node
// sent it before answering a following ping.
func (p *Peer) ExpectBlock(hash *chainhash.Hash, timeout time.Duration) (Outcome, error) {
	before := p.MessageCount(wire.CmdBlock)

	if err := p.SendGetData(wire.InvTypeBlock, hash); err != nil {
		return Outcome{}, err
	}

	if err := p.SyncWithPing(timeout); err != nil {
		return Outcome{}, err
	}

	if p.MessageCount(wire.CmdBlock) == before || !p.LastBlockEquals(hash) {
		return NoResponseObserved(), nil
	}

	msg, _ := p.LastMessage(wire.CmdBlock)

	return Served(msg), nil
}

// ExpectHeader asks for the header of hash alone, with an empty locator, and
// reports whether the node sent it before answering a following ping.
func (p *Peer) ExpectHeader(hash *chainhash.Hash, timeout time.Duration) (Outcome, error) {
	before := p.MessageCount(wire.CmdHeaders)

	if err := p.SendGetHeaders(nil, hash); err != nil {
		return Outcome{}, err
	}

	if err := p.SyncWithPing(timeout); err != nil {
		return Outcome{}, err
	}

	if p.MessageCount(wire.CmdHeaders) == before || !p.LastHeaderEquals(hash) {
		return NoResponseObserved(), nil
	}

	msg, _ := p.LastMessage(wire.CmdHeaders)

	return Served(msg), nil
}
