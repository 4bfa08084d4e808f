package mempool

import (
	"time"

	core "codechain-core/core"
)

// ChainNewBlocks implements the chain.Subscriber contract: re-insert
// retracted transactions with RetractedBlock origin (the highest
// priority, ranked even ahead of local), then cull anything that became invalid against the
// fresh account state (§4.3 "Chain updates"). now is used to age out
// non-local entries older than Config.MaxTimeInQueue.
func (p *Pool) ChainNewBlocks(enacted, retracted []core.Hash, retractedTxs [][]*core.SignedTransaction, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, txs := range retractedTxs {
		for _, tx := range txs {
			hash := tx.Hash()
			if _, already := p.byHash[hash]; already {
				continue
			}
			signer, err := tx.Signer()
			if err != nil {
				continue
			}
			if p.isBanned(signer) {
				continue
			}
			account, err := p.accounts.BestAccount(signer)
			if err != nil {
				continue
			}
			if tx.Unsigned.Seq < account.Seq {
				continue
			}
			var minBlock, minTime uint64
			if p.timelock != nil {
				minBlock, minTime = p.timelock(tx)
			}
			e := &entry{
				tx:          tx,
				signer:      signer,
				hash:        hash,
				origin:      OriginRetractedBlock,
				fee:         tx.Unsigned.Fee,
				insertionID: p.nextInsertionID,
				memUsage:    estimateMemUsage(tx),
				insertedAt:  now,
				minBlock:    minBlock,
				minTime:     minTime,
				index:       -1,
			}
			p.nextInsertionID++
			p.insert(e, account.Seq)
			p.byHash[hash] = e
			if tx.Unsigned.Seq >= p.lastSeq[signer] {
				p.lastSeq[signer] = tx.Unsigned.Seq
			}
			p.recordAudit(hash, AuditAccepted, OriginRetractedBlock.String())
		}
	}

	p.removeOldLocked(now)
	p.enforceLimits()
}

// RemoveOld culls entries that became invalid against fresh account
// state (seq too low, insufficient balance for the fee) and any
// non-local entry older than Config.MaxTimeInQueue.
func (p *Pool) RemoveOld(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeOldLocked(now)
}

func (p *Pool) removeOldLocked(now time.Time) {
	signers := make(map[core.Address]struct{})
	for signer := range p.current.bySeq {
		signers[signer] = struct{}{}
	}
	for signer := range p.future.bySeq {
		signers[signer] = struct{}{}
	}

	for signer := range signers {
		account, err := p.accounts.BestAccount(signer)
		if err != nil {
			continue
		}
		p.cullSigner(signer, account, now)
	}
}

func (p *Pool) cullSigner(signer core.Address, account core.Account, now time.Time) {
	var stale []*entry
	for _, e := range p.current.bySeq[signer] {
		if p.isStale(e, account, now) {
			stale = append(stale, e)
		}
	}
	for _, e := range p.future.bySeq[signer] {
		if p.isStale(e, account, now) {
			stale = append(stale, e)
		}
	}
	for _, e := range stale {
		part := p.current
		if _, ok := p.future.get(e.signer, e.tx.Unsigned.Seq); ok {
			part = p.future
		}
		p.dropEntry(part, e, AuditDropped, "stale against fresh account state")
	}
}

func (p *Pool) isStale(e *entry, account core.Account, now time.Time) bool {
	if e.tx.Unsigned.Seq < account.Seq {
		return true
	}
	if e.tx.Unsigned.Fee > account.Balance {
		return true
	}
	if e.origin != OriginLocal && p.cfg.MaxTimeInQueue > 0 {
		if now.Sub(e.insertedAt) > p.cfg.MaxTimeInQueue {
			return true
		}
	}
	return false
}

// TopTransactions produces a contiguous, per-signer-ordered list of
// current transactions respecting maxBodyBytes and, when blockTimestamp
// is non-zero, any timelock gating (§4.3 "Top-transactions query").
func (p *Pool) TopTransactions(maxBodyBytes int, blockNumber, blockTimestamp uint64) []*core.SignedTransaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ordered := p.current.ordered()
	out := make([]*core.SignedTransaction, 0, len(ordered))
	size := 0
	skipSigner := make(map[core.Address]bool)
	for _, e := range ordered {
		if skipSigner[e.signer] {
			continue
		}
		if e.minBlock > 0 && blockNumber > 0 && blockNumber < e.minBlock {
			skipSigner[e.signer] = true
			continue
		}
		if e.minTime > 0 && blockTimestamp > 0 && blockTimestamp < e.minTime {
			skipSigner[e.signer] = true
			continue
		}
		encoded, err := core.EncodeSignedTransactionRLP(e.tx)
		if err != nil {
			continue
		}
		if maxBodyBytes > 0 && size+len(encoded) > maxBodyBytes {
			break
		}
		size += len(encoded)
		out = append(out, e.tx)
	}
	return out
}

// Get returns the pool entry for hash, if present.
func (p *Pool) Get(hash core.Hash) (*core.SignedTransaction, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.byHash[hash]
	if !ok {
		return nil, false
	}
	return e.tx, true
}

// Contains reports whether hash is currently queued.
func (p *Pool) Contains(hash core.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}

// Remove drops hash from the pool, e.g. because it was mined.
func (p *Pool) Remove(hash core.Hash, status AuditStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.byHash[hash]
	if !ok {
		return
	}
	part := p.current
	if _, ok := p.future.get(e.signer, e.tx.Unsigned.Seq); ok {
		part = p.future
	}
	p.dropEntry(part, e, status, status.String())
}
