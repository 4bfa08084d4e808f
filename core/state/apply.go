package state

// apply.go implements the per-transaction apply algorithm of §4.1:
//
//  1. recover the paying signer (resolving a regular key if the
//     recovered address is one);
//  2. reject on seq mismatch (KindHistory, Testable Property / scenario
//     S2) before any state is touched;
//  3. reject on insufficient balance to cover the fee;
//  4. unconditionally advance seq and deduct the fee — this happens
//     whether or not the action itself succeeds;
//  5. open a nested checkpoint over the top-level state and every shard
//     touched while dispatching the action;
//  6. dispatch the action; a KindDatabase error propagates to the
//     caller, which aborts the block; any other failure reverts
//     everything done under that checkpoint and is recorded as
//     Invoice{Failed}, but the fee already deducted in step 4 is kept;
//  7. on success, discard the checkpoint (folding its pre-images into the
//     parent, so an enclosing block-level checkpoint can still undo it)
//     and record Invoice{Success}.

import core "codechain-core/core"

// ApplyContext is the per-block working set handed to action appliers
// and Custom handlers: the top-level state, lazily-opened shard views
// (kept open and reused for the rest of the block once touched), and the
// bookkeeping needed to checkpoint/revert a single transaction's effects
// across all of them.
type ApplyContext struct {
	Engine      *Engine
	Top         *TopLevelState
	ParentHash  core.Hash
	BlockNumber uint64

	shards map[core.ShardID]*ShardState

	// txShardCheckpoints tracks, for the transaction currently being
	// applied, which shards were touched and the checkpoint id opened on
	// each the first time this transaction touched it.
	txShardCheckpoints map[core.ShardID]uint64
}

func newApplyContext(e *Engine, top *TopLevelState, parentHash core.Hash, blockNumber uint64) *ApplyContext {
	return &ApplyContext{
		Engine:      e,
		Top:         top,
		ParentHash:  parentHash,
		BlockNumber: blockNumber,
		shards:      make(map[core.ShardID]*ShardState),
	}
}

// Shard returns the (block-lifetime) state view for shard id, opening it
// from the top-level record's current root on first touch within the
// block. If this transaction's dispatch has not yet touched id, a
// checkpoint is opened on it so a failed transaction can be reverted.
func (ctx *ApplyContext) Shard(id core.ShardID) (*ShardState, error) {
	s, ok := ctx.shards[id]
	if !ok {
		rec, exists, err := ctx.Top.GetShardRecord(id)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, core.ErrSyntax("shard %d does not exist", id)
		}
		s, err = ctx.Engine.openShard(id, rec.StateRoot, ctx.ParentHash)
		if err != nil {
			return nil, err
		}
		ctx.shards[id] = s
	}
	if ctx.txShardCheckpoints != nil {
		if _, touched := ctx.txShardCheckpoints[id]; !touched {
			ctx.txShardCheckpoints[id] = s.Checkpoint()
		}
	}
	return s, nil
}

// finalizeShards commits every shard touched during the block and writes
// its new root back into the top-level shard record (§4.1: shard roots
// only need to be authenticated once per block, not once per
// transaction; intra-block reads see the live, uncommitted view because
// the same *ShardState is reused for the whole block).
func (ctx *ApplyContext) finalizeShards() error {
	for id, s := range ctx.shards {
		root, err := s.Commit()
		if err != nil {
			return err
		}
		rec, _, err := ctx.Top.GetShardRecord(id)
		if err != nil {
			return err
		}
		rec.StateRoot = root
		if err := ctx.Top.PutShardRecord(id, rec); err != nil {
			return err
		}
	}
	return nil
}

// ApplyTransaction runs the full apply algorithm for one transaction.
func ApplyTransaction(ctx *ApplyContext, tx *core.SignedTransaction) (Invoice, error) {
	payer, err := resolveSigner(ctx.Top, tx)
	if err != nil {
		return Invoice{}, err
	}

	acc, err := ctx.Top.GetAccount(payer)
	if err != nil {
		return Invoice{}, err
	}
	if acc.Seq != tx.Unsigned.Seq {
		return Invoice{}, &core.InvalidSeqError{Expected: acc.Seq, Got: tx.Unsigned.Seq}
	}
	if acc.Balance < tx.Unsigned.Fee {
		return Invoice{}, &core.InsufficientBalanceError{Address: payer, Required: tx.Unsigned.Fee, Actual: acc.Balance}
	}

	acc.Seq++
	acc.Balance -= tx.Unsigned.Fee
	if err := ctx.Top.PutAccount(payer, acc); err != nil {
		return Invoice{}, err
	}

	topCheckpoint := ctx.Top.Checkpoint()
	ctx.txShardCheckpoints = make(map[core.ShardID]uint64)

	applyErr := applyAction(ctx, payer, tx)

	shardCheckpoints := ctx.txShardCheckpoints
	ctx.txShardCheckpoints = nil

	if applyErr == nil {
		if err := ctx.Top.Discard(topCheckpoint); err != nil {
			return Invoice{}, err
		}
		for id, cpid := range shardCheckpoints {
			if err := ctx.shards[id].Discard(cpid); err != nil {
				return Invoice{}, err
			}
		}
		return invoiceSuccess(), nil
	}

	if core.IsKind(applyErr, core.KindDatabase) {
		return Invoice{}, applyErr
	}

	if err := ctx.Top.Revert(topCheckpoint); err != nil {
		return Invoice{}, err
	}
	for id, cpid := range shardCheckpoints {
		if err := ctx.shards[id].Revert(cpid); err != nil {
			return Invoice{}, err
		}
	}
	return invoiceFailed(applyErr), nil
}

// resolveSigner recovers the transaction's signing address and, if that
// address is currently installed as someone's regular key, attributes
// the transaction to the owning account instead (§3 SetRegularKey).
func resolveSigner(top *TopLevelState, tx *core.SignedTransaction) (core.Address, error) {
	recovered, err := tx.Signer()
	if err != nil {
		return core.Address{}, core.ErrSyntax("recover signer: %v", err)
	}
	if owner, ok := top.GetRegularKeyOwner(recovered); ok {
		return owner, nil
	}
	return recovered, nil
}
