// Package policy decides whether a block or header requested by a peer may be
// revealed.
//
// Blocks on the active chain are always served. A block that only exists on a
// stale branch is served while its timestamp is within the configured age
// limit, and withheld afterwards. A withheld block must look exactly like an
// unknown one to the requesting peer, so the caller answers neither with data
// nor with notfound.
//
// A stale branch whose blocks are recent by timestamp but which carries more
// than a limit's worth of work is not treated specially.
package policy

import (
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

type Kind int

const (
	KindBlock Kind = iota
	KindHeader
)

func (k Kind) String() string {
	switch k {
	case KindBlock:
		return "block"
	case KindHeader:
		return "header"
	default:
		return "unknown"
	}
}

type Decision int

const (
	Withhold Decision = iota
	Serve
)

func (d Decision) String() string {
	if d == Serve {
		return "serve"
	}

	return "withhold"
}

type Request struct {
	Hash chainhash.Hash
	Kind Kind
}

// Limits holds the maximum age of a stale block, per request kind, that is
// still served.
type Limits struct {
	StaleBlockAge  time.Duration
	StaleHeaderAge time.Duration
}

func (l Limits) forKind(kind Kind) time.Duration {
	if kind == KindHeader {
		return l.StaleHeaderAge
	}

	return l.StaleBlockAge
}

// ChainView is the part of the active chain snapshot the policy needs.
type ChainView interface {
	// Lookup returns the timestamp of a known block and whether it is on the
	// active chain. found is false for unknown hashes.
	Lookup(hash *chainhash.Hash) (timestamp time.Time, onActiveChain bool, found bool)
}

// Decide returns whether req may be answered. It has no side effects, the
// same inputs always give the same decision.
func Decide(req Request, view ChainView, now time.Time, limits Limits) Decision {
	timestamp, onActiveChain, found := view.Lookup(&req.Hash)

	switch {
	case !found:
		return Withhold
	case onActiveChain:
		return Serve
	case now.Sub(timestamp) <= limits.forKind(req.Kind):
		return Serve
	default:
		return Withhold
	}
}
