// Package chain implements the block-chain client of §4.5: the single
// serialization point for state mutation. It owns the import-lock
// critical section, computes reorg routes, drives the state engine's
// commit, and fans out notifications to subscribers in registration
// order (cmd/codechain registers the mempool, then sync).
//
// Grounded on original_source/core/src/client/client.rs for the import/
// reorg algorithm shape, and the teacher's peer_management.go
// register/deregister-with-lock idiom for the subscriber registry
// (generalized in subscriber.go).
package chain

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	core "codechain-core/core"
	"codechain-core/core/state"
)

// Client is the chain's single import-serialization point (§4.5, §5:
// "the import lock is always acquired before the state-db write lock;
// no other order is permitted. Mempool write lock is taken after
// releasing the import lock.").
type Client struct {
	db     core.KVStore
	engine *state.Engine

	importMu sync.Mutex // the §5 "import lock"

	mu                sync.RWMutex // guards the fields below
	headers           map[core.Hash]*core.Header
	bodies            map[core.Hash]*core.Body
	canonicalByNumber map[uint64]core.Hash
	best              *core.Header
	bestHash          core.Hash
	genesisAuthor     core.Address

	trackerMu    sync.RWMutex
	trackerIndex map[core.Hash]trackerEntry

	notifyMu sync.Mutex // serializes subscriber dispatch across imports
	subs     *Registry

	sealVerifier SealVerifier

	log *logrus.Logger
}

// SealVerifier is the consensus engine's block-admission capability
// (§4.7 "verify_seal"): check header's seal fields against its parent.
// Declared here rather than importing core/consensus's Engine interface
// directly, so core/chain's dependency surface stays narrow and the
// engine only needs to satisfy this one method structurally.
type SealVerifier interface {
	VerifySeal(header, parent *core.Header) error
}

// SetSealVerifier installs the consensus engine's seal-verification
// capability. This is wired in after New rather than taken as a
// constructor argument because the engine itself is constructed with a
// ChainView this same Client satisfies (DESIGN NOTES "cyclic
// client<->engine references") — Client must exist first. A nil
// verifier (the zero value before this is ever called) skips seal
// verification entirely; only acceptable for a client that never
// imports attacker-supplied blocks, e.g. one driving ApplyBlock
// directly in a test.
func (c *Client) SetSealVerifier(v SealVerifier) {
	c.sealVerifier = v
}

type trackerEntry struct {
	blockNumber uint64
	timestamp   uint64
	blockHash   core.Hash
}

// New wires a chain client over db (the opaque KV store, §1) and engine
// (the state engine, §4.1).
func New(db core.KVStore, engine *state.Engine) *Client {
	return &Client{
		db:                db,
		engine:            engine,
		headers:           make(map[core.Hash]*core.Header),
		bodies:            make(map[core.Hash]*core.Body),
		canonicalByNumber: make(map[uint64]core.Hash),
		trackerIndex:      make(map[core.Hash]trackerEntry),
		subs:              NewRegistry(),
		log:               logrus.StandardLogger(),
	}
}

// Subscribe registers sub for chain notifications, in the order the
// caller invokes Subscribe (§4.5: miner, then mempool, then sync, is the
// conventional wiring order — see cmd/codechain).
func (c *Client) Subscribe(sub Subscriber) *Handle {
	return c.subs.Subscribe(sub)
}

// ImportGenesis seeds the chain with g's state and installs block 0 as
// the (only, trivially canonical) best block.
func (c *Client) ImportGenesis(g *core.Genesis) (*core.Block, error) {
	root, err := c.engine.ApplyGenesis(g)
	if err != nil {
		return nil, err
	}
	block := g.Block()
	block.Header.StateRoot = root
	block.Header.TransactionsRoot = core.Hash{}

	c.mu.Lock()
	h := block.Header
	hash := block.Hash()
	c.headers[hash] = &h
	c.bodies[hash] = &block.Body
	c.canonicalByNumber[0] = hash
	c.best = &h
	c.bestHash = hash
	c.genesisAuthor = g.Author
	c.mu.Unlock()

	batch := c.db.NewBatch()
	c.persistBlock(batch, block)
	c.writeBestLocked(batch, hash)
	if err := batch.Commit(); err != nil {
		return nil, core.ErrDatabase("commit genesis: %v", err)
	}
	return block, nil
}

// HeaderByHash returns the header stored under hash, ok=false if unknown.
func (c *Client) HeaderByHash(hash core.Hash) (*core.Header, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	h, ok := c.headers[hash]
	return h, ok
}

// BodyByHash returns the body stored under hash, ok=false if unknown.
func (c *Client) BodyByHash(hash core.Hash) (*core.Body, bool) {
	return c.bodyByHashLocked(hash)
}

// HeaderByNumber returns the canonical header at number (consensus.ChainView).
func (c *Client) HeaderByNumber(number uint64) (*core.Header, bool) {
	c.mu.RLock()
	hash, ok := c.canonicalByNumber[number]
	if !ok {
		c.mu.RUnlock()
		return nil, false
	}
	h := c.headers[hash]
	c.mu.RUnlock()
	return h, h != nil
}

// GenesisAuthor implements consensus.ChainView.
func (c *Client) GenesisAuthor() core.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.genesisAuthor
}

// Best returns the current chain head header and hash.
func (c *Client) Best() (*core.Header, core.Hash) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.best, c.bestHash
}

// TrackerTiming implements core/vm's ChainView: when (if ever) the shard
// transaction identified by tracker was mined, as of the current
// canonical chain.
func (c *Client) TrackerTiming(tracker core.Hash) (blockNumber, timestamp uint64, mined bool) {
	c.trackerMu.RLock()
	defer c.trackerMu.RUnlock()
	e, ok := c.trackerIndex[tracker]
	if !ok {
		return 0, 0, false
	}
	return e.blockNumber, e.timestamp, true
}

// AccountAt opens the top-level state as of header (whose parent hash
// parameterizes cache validity, §4.1) and returns addr's account.
func (c *Client) AccountAt(header *core.Header, addr core.Address) (core.Account, error) {
	top, err := c.engine.OpenTopLevel(header.StateRoot, header.ParentHash)
	if err != nil {
		return core.Account{}, err
	}
	return top.GetAccount(addr)
}

// BestAccount is AccountAt at the current chain head, the view the
// mempool re-validates pending entries against after every import.
func (c *Client) BestAccount(addr core.Address) (core.Account, error) {
	header, _ := c.Best()
	if header == nil {
		return core.Account{}, fmt.Errorf("chain: no genesis imported")
	}
	return c.AccountAt(header, addr)
}

// VerifyTransaction dry-runs tx against the best known state without
// committing anything (mempool.EngineVerifier: the "engine-level
// verification" half of §4.3 admission, run against the pending parent
// a candidate block would actually build on).
func (c *Client) VerifyTransaction(tx *core.SignedTransaction) error {
	header, hash := c.Best()
	if header == nil {
		return core.ErrDatabase("chain: no genesis imported")
	}
	return c.engine.DryRunTransaction(hash, header.StateRoot, header.Number+1, tx)
}

// ImportResult reports what an ImportBlock call did, for callers (the
// miner, a future RPC layer) that want to know whether the block they
// just imported became canonical.
type ImportResult struct {
	Enacted   []core.Hash
	Retracted []core.Hash
	IsBest    bool
}

// ImportBlock runs the §4.5 import critical section: verify the
// block's seal against the injected consensus engine, apply
// transactions, compare roots, write the batch atomically, flip the
// best pointer (or reorg), and clear the state cache. Structural
// header/body decoding and any batching of incoming blocks into a
// verification queue are left to the caller (§2, an upstream concern);
// seal verification itself is not — §4.7 requires every import to go
// through verify_seal. Notifications are dispatched after the import lock is
// released (§5 "mempool write lock is taken after releasing the import
// lock"), serialized against other imports by notifyMu so subscribers
// still see events in strict per-block order.
func (c *Client) ImportBlock(block *core.Block) (ImportResult, error) {
	c.importMu.Lock()
	result, committed, err := c.importLocked(block)
	c.importMu.Unlock()
	if err != nil {
		return ImportResult{}, err
	}

	if committed {
		c.notifyMu.Lock()
		c.subs.notifyChainNewBlocks(result.Enacted, result.Retracted)
		if result.IsBest {
			c.subs.notifyNewBestBlock(block)
		}
		c.notifyMu.Unlock()
	}
	return result, nil
}

func (c *Client) importLocked(block *core.Block) (ImportResult, bool, error) {
	hash := block.Hash()

	c.mu.RLock()
	_, already := c.headers[hash]
	c.mu.RUnlock()
	if already {
		return ImportResult{}, false, core.ErrImport("%w: %s", core.ErrAlreadyImported, hash)
	}

	parent, ok := c.HeaderByHash(block.Header.ParentHash)
	if !ok {
		return ImportResult{}, false, core.ErrImport("unknown parent %s", block.Header.ParentHash)
	}
	if block.Header.Number != parent.Number+1 {
		return ImportResult{}, false, core.ErrImport("non-monotonic block number: parent %d, block %d", parent.Number, block.Header.Number)
	}
	wantTxRoot := core.TransactionsRoot(parent.TransactionsRoot, block.Body.Transactions)
	if block.Header.TransactionsRoot != wantTxRoot {
		return ImportResult{}, false, core.ErrImport("transactions root mismatch: header %s, computed %s", block.Header.TransactionsRoot, wantTxRoot)
	}

	if c.sealVerifier != nil {
		if err := c.sealVerifier.VerifySeal(&block.Header, parent); err != nil {
			return ImportResult{}, false, err
		}
	}

	root, invoices, buffer, err := c.engine.ApplyBlock(parent.Hash(), parent.StateRoot, block.Header.Number, block.Body.Transactions)
	if err != nil {
		// KindDatabase (or any other infrastructure failure): abort the
		// whole block, no partial state (§4.8).
		return ImportResult{}, false, err
	}
	if root != block.Header.StateRoot {
		return ImportResult{}, false, core.ErrImport("state root mismatch: header %s, computed %s", block.Header.StateRoot, root)
	}
	_ = invoices // invoices are exposed to RPC in the full node; out of core scope here

	c.mu.Lock()
	h := block.Header
	c.headers[hash] = &h
	c.bodies[hash] = &block.Body
	becomesBest := h.ParentHash == c.bestHash
	c.mu.Unlock()

	var enacted, retracted []core.Hash
	isBest := false
	if becomesBest {
		enacted = []core.Hash{hash}
		isBest = true
	} else if h.Number > c.best.Number || (h.Number == c.best.Number && h.Score > c.best.Score) {
		enacted, retracted = c.reorgRoute(&h)
		isBest = true
	}

	batch := c.db.NewBatch()
	c.persistBlock(batch, block)
	if isBest {
		c.mu.Lock()
		for _, eh := range enacted {
			if eb, ok := c.headers[eh]; ok {
				c.canonicalByNumber[eb.Number] = eh
			}
		}
		c.best = &h
		c.bestHash = hash
		c.mu.Unlock()
		c.writeBestLocked(batch, hash)
	}
	if err := batch.Commit(); err != nil {
		return ImportResult{}, false, core.ErrDatabase("commit import batch: %v", err)
	}

	c.engine.Cache.Note(h.Number, hash, h.ParentHash, buffer, isBest)
	if isBest {
		c.engine.Cache.SyncCache(enacted, retracted)
		c.updateTrackerIndex(block, retracted)
	}

	return ImportResult{Enacted: enacted, Retracted: retracted, IsBest: isBest}, true, nil
}

// reorgRoute walks back from the current best and from newHead to their
// common ancestor and returns the ordered (enacted, retracted) hash
// lists (§4.5 "Reorg handling").
func (c *Client) reorgRoute(newHead *core.Header) (enacted, retracted []core.Hash) {
	c.mu.RLock()
	oldHead := c.best
	c.mu.RUnlock()

	var enactedRev, retractedRev []core.Hash
	a, b := newHead, oldHead
	ah, bh := a.Hash(), b.Hash()
	for a.Number > b.Number {
		enactedRev = append(enactedRev, ah)
		a, _ = c.HeaderByHash(a.ParentHash)
		ah = a.Hash()
	}
	for b.Number > a.Number {
		retractedRev = append(retractedRev, bh)
		b, _ = c.HeaderByHash(b.ParentHash)
		bh = b.Hash()
	}
	for ah != bh {
		enactedRev = append(enactedRev, ah)
		retractedRev = append(retractedRev, bh)
		a, _ = c.HeaderByHash(a.ParentHash)
		b, _ = c.HeaderByHash(b.ParentHash)
		ah, bh = a.Hash(), b.Hash()
	}

	enacted = make([]core.Hash, len(enactedRev))
	for i, h := range enactedRev {
		enacted[len(enactedRev)-1-i] = h
	}
	retracted = make([]core.Hash, len(retractedRev))
	for i, h := range retractedRev {
		retracted[len(retractedRev)-1-i] = h
	}
	return enacted, retracted
}

// CommitAsCommitted promotes an already-imported block to best without
// re-executing it (§4.5 "Commit-as-committed"): used when a Tendermint-
// style engine finalizes a proposal in a separate step from insertion.
func (c *Client) CommitAsCommitted(hash core.Hash) error {
	c.importMu.Lock()
	header, ok := c.HeaderByHash(hash)
	if !ok {
		c.importMu.Unlock()
		return core.ErrImport("commit-as-committed: unknown block %s", hash)
	}
	c.mu.RLock()
	alreadyBest := c.bestHash == hash
	c.mu.RUnlock()
	if alreadyBest {
		c.importMu.Unlock()
		return nil
	}

	enacted, retracted := c.reorgRoute(header)
	c.mu.Lock()
	for _, eh := range enacted {
		if eb, ok := c.headers[eh]; ok {
			c.canonicalByNumber[eb.Number] = eh
		}
	}
	c.best = header
	c.bestHash = hash
	c.mu.Unlock()

	batch := c.db.NewBatch()
	c.writeBestLocked(batch, hash)
	if err := batch.Commit(); err != nil {
		c.importMu.Unlock()
		return core.ErrDatabase("commit-as-committed: %v", err)
	}
	c.engine.Cache.SyncCache(enacted, retracted)
	body, _ := c.bodyByHashLocked(hash)
	var block *core.Block
	if body != nil {
		block = &core.Block{Header: *header, Body: *body}
		c.updateTrackerIndex(block, retracted)
	}
	c.importMu.Unlock()

	c.notifyMu.Lock()
	c.subs.notifyChainNewBlocks(enacted, retracted)
	if block != nil {
		c.subs.notifyNewBestBlock(block)
	}
	c.notifyMu.Unlock()
	return nil
}

func (c *Client) bodyByHashLocked(hash core.Hash) (*core.Body, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	b, ok := c.bodies[hash]
	return b, ok
}

// updateTrackerIndex records the mined timing of every shard-transaction
// tracker in block (now canonical) and evicts entries belonging to
// retracted blocks (mirrors the state cache's reorg-tracked eviction,
// §4.1 DESIGN NOTES).
func (c *Client) updateTrackerIndex(block *core.Block, retracted []core.Hash) {
	c.trackerMu.Lock()
	defer c.trackerMu.Unlock()
	for _, rh := range retracted {
		for tr, e := range c.trackerIndex {
			if e.blockHash == rh {
				delete(c.trackerIndex, tr)
			}
		}
	}
	hash := block.Hash()
	for _, tx := range block.Body.Transactions {
		if !tx.Unsigned.Action.IsShardTransaction() {
			continue
		}
		tracker, err := tx.Tracker()
		if err != nil {
			continue
		}
		c.trackerIndex[tracker] = trackerEntry{
			blockNumber: block.Header.Number,
			timestamp:   block.Header.Timestamp,
			blockHash:   hash,
		}
	}
}

func (c *Client) persistBlock(batch core.Batch, block *core.Block) {
	hash := block.Hash()
	if enc, err := core.EncodeHeaderRLP(&block.Header); err == nil {
		batch.Put(core.ColumnBlocks, headerKey(hash), enc)
	}
	if enc, err := core.EncodeBodyRLP(&block.Body); err == nil {
		batch.Put(core.ColumnBlocks, bodyKey(hash), enc)
	}
}

func (c *Client) writeBestLocked(batch core.Batch, hash core.Hash) {
	batch.Put(core.ColumnMeta, bestHashKey, hash.Bytes())
}
