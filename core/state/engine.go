package state

// engine.go ties the top-level trie, the per-shard tries, the global
// cache and the checkpoint mechanism into the single entry point the
// chain client (core/chain) drives: open a state view at a given root,
// apply a block's transactions against it, and commit.
//
// Grounded on the teacher's core/engine.go orchestration object
// (orbas1-Synnergy), restructured around §4.1's trie-backed checkpoint
// design instead of the teacher's flat ledger.

import (
	"github.com/sirupsen/logrus"

	core "codechain-core/core"
)

// Engine owns the trie factories, the global cache and the registered
// Custom-action handlers; it is safe for concurrent use by readers, but
// ApplyBlock must only ever be called under the chain client's single
// import lock (§5).
type Engine struct {
	TopFactory   core.TrieFactory
	ShardFactory core.TrieFactory
	Cache        *GlobalCache
	Handlers     *HandlerRegistry
	Verifier     ScriptVerifier

	log *logrus.Logger
}

// ScriptVerifier is the capability core/vm provides to check an
// AssetTransferInput's unlock script against its referenced asset's
// lock script hash (§4.2). Kept as a narrow interface here so
// core/state never imports core/vm's opcode machinery directly.
type ScriptVerifier interface {
	Unlock(lockScriptHash core.H160, lockScript, unlockScript []byte, parameters [][]byte, tx *core.SignedTransaction, burns bool, blockNumber uint64) error
}

// NewEngine wires a state engine. A single in-memory TrieFactory may be
// passed for both topFactory and shardFactory; they are kept distinct
// because a production deployment may want the top-level and per-shard
// tries backed by different column families of the same KV store.
func NewEngine(topFactory, shardFactory core.TrieFactory, cache *GlobalCache, handlers *HandlerRegistry, verifier ScriptVerifier) *Engine {
	return &Engine{
		TopFactory:   topFactory,
		ShardFactory: shardFactory,
		Cache:        cache,
		Handlers:     handlers,
		Verifier:     verifier,
		log:          logrus.StandardLogger(),
	}
}

// OpenTopLevel opens the top-level state rooted at root. parentHash is
// the block whose children's state this view will read as-of, for cache
// validity (§4.1).
func (e *Engine) OpenTopLevel(root, parentHash core.Hash) (*TopLevelState, error) {
	trie, err := e.TopFactory.OpenTrie(root)
	if err != nil {
		return nil, core.ErrDatabase("open top-level trie at %s: %v", root, err)
	}
	return newTopLevelState(trie, e.Cache, parentHash), nil
}

// openShard opens shard id's trie rooted at root.
func (e *Engine) openShard(id core.ShardID, root, parentHash core.Hash) (*ShardState, error) {
	trie, err := e.ShardFactory.OpenTrie(root)
	if err != nil {
		return nil, core.ErrDatabase("open shard %d trie at %s: %v", id, root, err)
	}
	return newShardState(id, trie, e.Cache, parentHash), nil
}

// ApplyGenesis seeds a fresh top-level trie with g's accounts and shards
// and returns the resulting state root (§3 Genesis, core.Genesis.Block).
func (e *Engine) ApplyGenesis(g *core.Genesis) (core.Hash, error) {
	top, err := e.OpenTopLevel(core.Hash{}, core.Hash{})
	if err != nil {
		return core.Hash{}, err
	}
	for _, ga := range g.Accounts {
		if err := top.PutAccount(ga.Address, core.Account{Balance: ga.Balance}); err != nil {
			return core.Hash{}, err
		}
	}
	for _, gs := range g.Shards {
		shard, err := e.openShard(gs.ID, core.Hash{}, core.Hash{})
		if err != nil {
			return core.Hash{}, err
		}
		shardRoot, err := shard.Commit()
		if err != nil {
			return core.Hash{}, err
		}
		if err := top.PutShardRecord(gs.ID, core.ShardRecord{StateRoot: shardRoot, Owners: gs.Owners, Users: gs.Users}); err != nil {
			return core.Hash{}, err
		}
	}
	return top.Commit()
}

// DryRunTransaction applies tx against the state rooted at
// parentStateRoot without committing anything: every write lands in
// the nested checkpoint stack opened for this call alone, which is
// simply dropped once the function returns. It is the "engine-level
// verification" step of mempool admission (§4.3) — the same apply path
// ApplyBlock uses, run in isolation for one candidate transaction.
func (e *Engine) DryRunTransaction(parentHash, parentStateRoot core.Hash, blockNumber uint64, tx *core.SignedTransaction) error {
	top, err := e.OpenTopLevel(parentStateRoot, parentHash)
	if err != nil {
		return err
	}
	ctx := newApplyContext(e, top, parentHash, blockNumber)
	_, err = ApplyTransaction(ctx, tx)
	return err
}

// RejectedEntry names a candidate transaction BuildCandidate declined to
// include, and why.
type RejectedEntry struct {
	Tx  *core.SignedTransaction
	Err error
}

// BuildCandidate applies candidates against the state rooted at
// parentStateRoot one at a time, in order, including every transaction
// that applies cleanly (whether its action itself succeeds or is
// recorded Failed — §4.8 fee/seq side effects are always kept) and
// excluding any transaction whose precondition fails outright (bad seq,
// insufficient fee balance, or a signer recovery failure): that is the
// §4.4 "per-transaction failure" class during candidate construction,
// distinct from a block already assembled (ApplyBlock aborts wholesale
// on the same errors, because by then the miner should already have
// filtered them out). Once one candidate from a signer is rejected, every
// later candidate from that same signer is rejected too without being
// applied, since its seq can no longer be contiguous.
func (e *Engine) BuildCandidate(parentHash, parentStateRoot core.Hash, blockNumber uint64, candidates []*core.SignedTransaction) (core.Hash, []*core.SignedTransaction, []Invoice, []RejectedEntry, map[CacheEntryKey][]byte, error) {
	top, err := e.OpenTopLevel(parentStateRoot, parentHash)
	if err != nil {
		return core.Hash{}, nil, nil, nil, nil, err
	}
	ctx := newApplyContext(e, top, parentHash, blockNumber)

	var included []*core.SignedTransaction
	var invoices []Invoice
	var rejected []RejectedEntry
	skipSigner := make(map[core.Address]bool)

	for _, tx := range candidates {
		signer, serr := tx.Signer()
		if serr != nil {
			rejected = append(rejected, RejectedEntry{Tx: tx, Err: core.ErrSyntax("recover signer: %v", serr)})
			continue
		}
		if skipSigner[signer] {
			rejected = append(rejected, RejectedEntry{Tx: tx, Err: core.ErrHistory("skipped: earlier transaction from this signer was rejected")})
			continue
		}

		inv, applyErr := ApplyTransaction(ctx, tx)
		if applyErr != nil {
			if core.IsKind(applyErr, core.KindDatabase) {
				return core.Hash{}, nil, nil, nil, nil, applyErr
			}
			skipSigner[signer] = true
			rejected = append(rejected, RejectedEntry{Tx: tx, Err: applyErr})
			continue
		}
		included = append(included, tx)
		invoices = append(invoices, inv)
	}

	if err := ctx.finalizeShards(); err != nil {
		return core.Hash{}, nil, nil, nil, nil, err
	}
	buffer := top.ExportBuffer()
	for _, s := range ctx.shards {
		for k, v := range s.ExportBuffer() {
			buffer[k] = v
		}
	}
	root, err := top.Commit()
	if err != nil {
		return core.Hash{}, nil, nil, nil, nil, err
	}
	return root, included, invoices, rejected, buffer, nil
}

// ApplyBlock applies every transaction in txs against the state rooted
// at parentStateRoot, in order, and returns the resulting root, one
// Invoice per transaction, and the aggregate write buffer every touched
// trie produced (§4.1). A KindDatabase error aborts the whole block: the
// caller must discard the returned (zero) root and not advance the
// chain. The returned buffer is not yet reflected in the GlobalCache —
// the chain client must call GlobalCache.Note once it knows whether this
// block lands on the canonical chain.
func (e *Engine) ApplyBlock(parentHash, parentStateRoot core.Hash, blockNumber uint64, txs []*core.SignedTransaction) (core.Hash, []Invoice, map[CacheEntryKey][]byte, error) {
	top, err := e.OpenTopLevel(parentStateRoot, parentHash)
	if err != nil {
		return core.Hash{}, nil, nil, err
	}
	ctx := newApplyContext(e, top, parentHash, blockNumber)

	invoices := make([]Invoice, 0, len(txs))
	for _, tx := range txs {
		inv, err := ApplyTransaction(ctx, tx)
		if err != nil {
			// KindDatabase (or any unclassified) failure aborts the
			// entire block; history/consensus-kind errors should have
			// been filtered out by the mempool/verifier long before a
			// transaction reaches block application.
			return core.Hash{}, nil, nil, err
		}
		invoices = append(invoices, inv)
	}

	if err := ctx.finalizeShards(); err != nil {
		return core.Hash{}, nil, nil, err
	}

	buffer := top.ExportBuffer()
	for _, s := range ctx.shards {
		for k, v := range s.ExportBuffer() {
			buffer[k] = v
		}
	}

	root, err := top.Commit()
	if err != nil {
		return core.Hash{}, nil, nil, err
	}
	return root, invoices, buffer, nil
}
