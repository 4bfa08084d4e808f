// Package miner produces candidate blocks and drives the consensus
// engine to seal them (§4.4).
//
// Grounded on the teacher's core/consensus.go "wire-up interfaces"
// style (txPool/networkAdapter/securityAdapter/authorityAdapter kept
// the core package free of concrete dependencies); generalized here to
// Mempool/ChainHead/SealEngine. Reseal timers use
// github.com/benbjohnson/clock so tests can drive a fake clock instead
// of sleeping real wall time.
package miner

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
	"codechain-core/core/chain"
	"codechain-core/core/mempool"
	"codechain-core/core/state"
)

// Mempool is the pending-transaction source a candidate is built from.
type Mempool interface {
	TopTransactions(maxBodyBytes int, blockNumber, blockTimestamp uint64) []*core.SignedTransaction
	Ban(addr core.Address)
	Remove(hash core.Hash, status mempool.AuditStatus)
	CountCurrent() int
}

// ChainHead is the capability the miner needs from core/chain.Client:
// the current best block, and a way to import a sealed candidate.
// core/chain never imports core/miner, so importing the concrete
// chain.ImportResult type here carries no cycle risk; the interface
// still exists so tests can substitute a fake.
type ChainHead interface {
	Best() (*core.Header, core.Hash)
	ImportBlock(block *core.Block) (chain.ImportResult, error)
}

// SealEngine is the polymorphic consensus capability §4.7 names:
// "seals_internally, generate_seal, verify_seal, is_proposal". The
// miner only needs the sealing half; it is satisfied directly by
// consensus.Engine, so any registered engine can drive a Miner.
type SealEngine interface {
	SealsInternally() bool
	// GenerateSeal produces the seal fields for header built on top of
	// parent, or a nil seal if the engine declines to seal right now
	// (e.g. not this validator's turn) — the miner must then abort the
	// candidate (§4.4).
	GenerateSeal(header *core.Header, parent *core.Header) ([][]byte, error)
	IsProposal(header *core.Header) bool
}

// Engine is the narrow state-engine capability needed to build a
// candidate: apply transactions speculatively against the best state.
type Engine interface {
	BuildCandidate(parentHash, parentStateRoot core.Hash, blockNumber uint64, candidates []*core.SignedTransaction) (core.Hash, []*core.SignedTransaction, []state.Invoice, []state.RejectedEntry, map[state.CacheEntryKey][]byte, error)
}

// Config bounds candidate construction and the reseal timers.
type Config struct {
	Author            core.Address
	MaxBodySize       int
	MinResealInterval time.Duration
	MaxResealInterval time.Duration
}

// Miner assembles candidate blocks from the mempool and drives the
// sealing engine (§4.4). It does not hold the import lock itself — it
// calls ChainHead.ImportBlock, which does.
type Miner struct {
	cfg    Config
	chain  ChainHead
	pool   Mempool
	engine Engine
	seal   SealEngine
	clk    clock.Clock
	log    *logrus.Logger

	mu           sync.Mutex
	minTimer     *clock.Timer
	maxTimer     *clock.Timer
	minScheduled bool
}

// New constructs a Miner and arms its reseal timers.
func New(cfg Config, chainHead ChainHead, pool Mempool, engine Engine, seal SealEngine, clk clock.Clock) *Miner {
	if clk == nil {
		clk = clock.New()
	}
	m := &Miner{
		cfg:    cfg,
		chain:  chainHead,
		pool:   pool,
		engine: engine,
		seal:   seal,
		clk:    clk,
		log:    logrus.StandardLogger(),
	}
	m.armTimers()
	return m
}

// armTimers starts the min/max reseal timers (§4.4 "Reseal policy").
func (m *Miner) armTimers() {
	if m.cfg.MinResealInterval > 0 {
		m.minTimer = m.clk.Timer(m.cfg.MinResealInterval)
	}
	if m.cfg.MaxResealInterval > 0 {
		m.maxTimer = m.clk.Timer(m.cfg.MaxResealInterval)
	}
}

// scheduleMinTimer rearms the min timer after it fires, unless one is
// already pending — the §9 "TokenAlreadyScheduled" case, swallowed
// silently rather than surfaced as an error.
func (m *Miner) scheduleMinTimer() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.minScheduled {
		m.log.Debug("miner: min-reseal timer already scheduled, ignoring")
		return
	}
	m.minScheduled = true
	m.minTimer = m.clk.Timer(m.cfg.MinResealInterval)
}

// RunResealLoop services the min/max reseal timers until stop fires.
// It is meant to run as its own goroutine (one per Miner).
func (m *Miner) RunResealLoop(stop <-chan struct{}) {
	for {
		var minC, maxC <-chan time.Time
		if m.minTimer != nil {
			minC = m.minTimer.C
		}
		if m.maxTimer != nil {
			maxC = m.maxTimer.C
		}
		select {
		case <-stop:
			return
		case <-minC:
			m.mu.Lock()
			m.minScheduled = false
			m.mu.Unlock()
			if m.pool.CountCurrent() > 0 {
				if err := m.Reseal(false); err != nil {
					m.log.WithError(err).Warn("miner: reseal on min timer failed")
				}
			}
			if m.cfg.MinResealInterval > 0 {
				m.scheduleMinTimer()
			}
		case <-maxC:
			if err := m.Reseal(true); err != nil {
				m.log.WithError(err).Warn("miner: reseal on max timer failed")
			}
			if m.cfg.MaxResealInterval > 0 {
				m.maxTimer = m.clk.Timer(m.cfg.MaxResealInterval)
			}
		}
	}
}

// Reseal builds a new candidate and attempts to seal it. An empty body
// is skipped unless allowEmpty is set, which only the max timer's
// firing does (§4.4:
// "request a candidate allowing empty blocks if the engine seals
// internally").
func (m *Miner) Reseal(allowEmpty bool) error {
	block, parent, invoices, rejected, err := m.BuildCandidate()
	if err != nil {
		return err
	}
	if block == nil {
		return nil // nothing imported yet, no parent to build on
	}
	if len(block.Body.Transactions) == 0 && !allowEmpty {
		return nil
	}
	m.evictRejected(rejected)
	_ = invoices

	if !m.seal.SealsInternally() {
		// External sealing: the caller is expected to publish work and
		// wait for submit_seal; Miner only hands back the unsealed
		// candidate, it does not block here.
		return nil
	}

	seal, err := m.seal.GenerateSeal(&block.Header, parent)
	if err != nil {
		return err
	}
	if seal == nil {
		return nil // engine declined to seal right now; abort the candidate
	}
	block.Header.Seal = seal

	result, err := m.chain.ImportBlock(block)
	if err != nil {
		return err
	}
	_ = result
	return nil
}

// BuildCandidate assembles an open block over the current best parent:
// author from Config, transactions pulled from the mempool
// up to MaxBodySize, applied in order through Engine.BuildCandidate.
// rejected entries were excluded from the block and should be evicted
// from the mempool along with banning their signer where warranted.
func (m *Miner) BuildCandidate() (block *core.Block, parentHeader *core.Header, invoices []state.Invoice, rejected []state.RejectedEntry, err error) {
	parent, parentHash := m.chain.Best()
	if parent == nil {
		return nil, nil, nil, nil, nil
	}

	candidates := m.pool.TopTransactions(m.cfg.MaxBodySize, parent.Number+1, uint64(m.clk.Now().Unix()))

	stateRoot, included, invoices, rejected, _, err := m.engine.BuildCandidate(parentHash, parent.StateRoot, parent.Number+1, candidates)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	body := core.Body{Transactions: included}
	header := core.Header{
		ParentHash:       parentHash,
		Number:           parent.Number + 1,
		Author:           m.cfg.Author,
		StateRoot:        stateRoot,
		TransactionsRoot: core.TransactionsRoot(parent.TransactionsRoot, included),
		Timestamp:        uint64(m.clk.Now().Unix()),
	}
	block = &core.Block{Header: header, Body: body}
	return block, parent, invoices, rejected, nil
}

// evictRejected applies the §4.4 ban/eviction policy to every
// transaction BuildCandidate excluded from the block.
func (m *Miner) evictRejected(rejected []state.RejectedEntry) {
	for _, r := range rejected {
		signer, err := r.Tx.Signer()
		if err != nil {
			continue
		}
		if core.IsKind(r.Err, core.KindSyntax) {
			m.pool.Ban(signer)
		}
		m.pool.Remove(r.Tx.Hash(), mempool.AuditDropped)
	}
}
