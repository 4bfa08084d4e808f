package state

// actions_simple.go applies the non-shard actions of §3/§4.1: Pay,
// SetRegularKey, CreateShard, SetShardOwners, SetShardUsers, WrapCCC,
// Store, Remove and Custom. Shard actions (MintAsset, TransferAsset,
// ChangeAssetScheme, IncreaseAssetSupply, UnwrapCCC) are applied in
// actions_shard.go.

import core "codechain-core/core"

// applyAction dispatches tx's action to the appropriate applier. payer
// is the already-resolved, already-debited-for-fee account.
func applyAction(ctx *ApplyContext, payer core.Address, tx *core.SignedTransaction) error {
	switch a := tx.Unsigned.Action.(type) {
	case core.Pay:
		return applyPay(ctx, payer, a)
	case core.SetRegularKey:
		return applySetRegularKey(ctx, payer, a)
	case core.CreateShard:
		return applyCreateShard(ctx, payer, a)
	case core.SetShardOwners:
		return applySetShardOwners(ctx, payer, a)
	case core.SetShardUsers:
		return applySetShardUsers(ctx, payer, a)
	case core.WrapCCC:
		return applyWrapCCC(ctx, payer, tx, a)
	case core.Store:
		return applyStore(ctx, a)
	case core.Remove:
		return applyRemove(ctx, a)
	case core.Custom:
		return applyCustom(ctx, payer, a)
	case core.MintAsset:
		return applyMintAsset(ctx, tx, a)
	case core.TransferAsset:
		return applyTransferAsset(ctx, tx, a)
	case core.ChangeAssetScheme:
		return applyChangeAssetScheme(ctx, tx, a)
	case core.IncreaseAssetSupply:
		return applyIncreaseAssetSupply(ctx, tx, a)
	case core.UnwrapCCC:
		return applyUnwrapCCC(ctx, tx, a)
	default:
		return core.ErrSyntax("unknown action type %T", a)
	}
}

func applyPay(ctx *ApplyContext, payer core.Address, a core.Pay) error {
	from, err := ctx.Top.GetAccount(payer)
	if err != nil {
		return err
	}
	if from.Balance < a.Quantity {
		return &core.InsufficientBalanceError{Address: payer, Required: a.Quantity, Actual: from.Balance}
	}
	from.Balance -= a.Quantity
	if err := ctx.Top.PutAccount(payer, from); err != nil {
		return err
	}
	to, err := ctx.Top.GetAccount(a.Receiver)
	if err != nil {
		return err
	}
	to.Balance += a.Quantity
	return ctx.Top.PutAccount(a.Receiver, to)
}

func applySetRegularKey(ctx *ApplyContext, payer core.Address, a core.SetRegularKey) error {
	acc, err := ctx.Top.GetAccount(payer)
	if err != nil {
		return err
	}
	newAddr, err := core.AddressFromPublicKey(a.Key)
	if err != nil {
		return core.ErrSyntax("set regular key: %v", err)
	}
	if acc.RegularKey != nil {
		oldAddr, err := core.AddressFromPublicKey(*acc.RegularKey)
		if err == nil {
			ctx.Top.RemoveRegularKeyOwner(oldAddr)
		}
	}
	acc.RegularKey = &a.Key
	if err := ctx.Top.PutAccount(payer, acc); err != nil {
		return err
	}
	ctx.Top.PutRegularKeyOwner(newAddr, payer)
	return nil
}

// CreateShard creates a new shard owned solely by the signer; owners
// default to {signer} per the original's behavior (SPEC_FULL.md §3.1).
func applyCreateShard(ctx *ApplyContext, payer core.Address, a core.CreateShard) error {
	id := ctx.Top.NextShardID()
	return ctx.Top.PutShardRecord(id, core.ShardRecord{
		Owners: []core.Address{payer},
		Users:  a.Users,
	})
}

func applySetShardOwners(ctx *ApplyContext, payer core.Address, a core.SetShardOwners) error {
	rec, exists, err := ctx.Top.GetShardRecord(a.ShardID)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrSyntax("set shard owners: shard %d does not exist", a.ShardID)
	}
	if !addressIn(rec.Owners, payer) {
		return core.ErrRuntime("set shard owners: %s is not an owner of shard %d", payer, a.ShardID)
	}
	rec.Owners = a.Owners
	return ctx.Top.PutShardRecord(a.ShardID, rec)
}

func applySetShardUsers(ctx *ApplyContext, payer core.Address, a core.SetShardUsers) error {
	rec, exists, err := ctx.Top.GetShardRecord(a.ShardID)
	if err != nil {
		return err
	}
	if !exists {
		return core.ErrSyntax("set shard users: shard %d does not exist", a.ShardID)
	}
	if !addressIn(rec.Owners, payer) {
		return core.ErrRuntime("set shard users: %s is not an owner of shard %d", payer, a.ShardID)
	}
	rec.Users = a.Users
	return ctx.Top.PutShardRecord(a.ShardID, rec)
}

// applyWrapCCC converts Quantity native coin into an owned asset of
// AssetTypeZero in the target shard. WrapCCC is not itself a "shard
// transaction" in the Approvals sense (action.go), but it still writes
// into shard state, keyed by this transaction's own hash as its tracker
// since WrapCCC has no Tracker() of its own (only one output, index 0).
func applyWrapCCC(ctx *ApplyContext, payer core.Address, tx *core.SignedTransaction, a core.WrapCCC) error {
	acc, err := ctx.Top.GetAccount(payer)
	if err != nil {
		return err
	}
	if acc.Balance < a.Quantity {
		return &core.InsufficientBalanceError{Address: payer, Required: a.Quantity, Actual: acc.Balance}
	}
	acc.Balance -= a.Quantity
	if err := ctx.Top.PutAccount(payer, acc); err != nil {
		return err
	}
	shard, err := ctx.Shard(a.ShardID)
	if err != nil {
		return err
	}
	tracker := tx.Hash()
	return shard.PutAsset(tracker, 0, core.OwnedAsset{
		AssetType:      core.AssetTypeZero,
		ShardID:        a.ShardID,
		Quantity:       a.Quantity,
		LockScriptHash: a.LockScriptHash,
		Parameters:     a.Parameters,
	})
}

func applyStore(ctx *ApplyContext, a core.Store) error {
	hash := core.Blake256([]byte(a.Content))
	signer, err := core.RecoverSigner(hash, a.Signature)
	if err != nil || signer != a.Certifier {
		return core.ErrRuntime("store: certifier signature does not match %s", a.Certifier)
	}
	ctx.Top.PutText(hash, a.Certifier, a.Content)
	return nil
}

func applyRemove(ctx *ApplyContext, a core.Remove) error {
	_, certifier, ok := ctx.Top.GetText(a.Hash)
	if !ok {
		return core.ErrRuntime("remove: no text stored at %s", a.Hash)
	}
	signer, err := core.RecoverSigner(a.Hash, a.Signature)
	if err != nil || signer != certifier {
		return core.ErrRuntime("remove: signature does not match certifier %s", certifier)
	}
	ctx.Top.RemoveText(a.Hash)
	return nil
}

func applyCustom(ctx *ApplyContext, payer core.Address, a core.Custom) error {
	h, ok := ctx.Engine.Handlers.Lookup(a.HandlerID)
	if !ok {
		return core.ErrSyntax("custom: %w", core.ErrUnknownHandler)
	}
	return h.Apply(ctx, payer, a.Bytes)
}

func addressIn(list []core.Address, addr core.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}
