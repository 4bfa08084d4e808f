package mempool

import (
	"time"

	core "codechain-core/core"
)

// BodyProvider resolves a block hash to its stored body; chain.Client
// satisfies this structurally.
type BodyProvider interface {
	BodyByHash(hash core.Hash) (*core.Body, bool)
}

// ChainSubscriber adapts a Pool to chain.Subscriber: the chain client
// only advertises hashes, so this loads each retracted block's body
// before handing the transactions to Pool.ChainNewBlocks.
//
// §4.5 requires mempool to observe retracted blocks before a new best
// block is advertised to peers; the chain client dispatches
// subscribers in registration order, and cmd/codechain registers the
// mempool before sync for exactly that reason.
type ChainSubscriber struct {
	Pool   *Pool
	Bodies BodyProvider
}

// ChainNewBlocks implements chain.Subscriber.
func (s *ChainSubscriber) ChainNewBlocks(enacted, retracted []core.Hash) {
	retractedTxs := make([][]*core.SignedTransaction, 0, len(retracted))
	for _, hash := range retracted {
		body, ok := s.Bodies.BodyByHash(hash)
		if !ok {
			continue
		}
		retractedTxs = append(retractedTxs, body.Transactions)
	}
	s.Pool.ChainNewBlocks(enacted, retracted, retractedTxs, time.Now())
}

// NewBestBlock implements chain.Subscriber: mined transactions are
// removed from the pool now that they have a home in the canonical
// chain.
func (s *ChainSubscriber) NewBestBlock(block *core.Block) {
	for _, tx := range block.Body.Transactions {
		s.Pool.Remove(tx.Hash(), AuditMined)
	}
}
