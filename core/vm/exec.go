package vm

import (
	"fmt"

	core "codechain-core/core"
	config "codechain-core/pkg/config"
)

// Result is the three-way outcome §4.2 defines for one unlock attempt.
type Result int

const (
	ResultFail Result = iota
	ResultUnlocked
	ResultBurnt
)

// ChainView is the narrow read capability the VM needs from the chain to
// evaluate timelock opcodes: the block number and timestamp at which the
// transaction that created outpointTracker was mined, if it has been.
type ChainView interface {
	TrackerTiming(tracker core.Hash) (blockNumber, timestamp uint64, mined bool)
}

// executor holds one unlock attempt's mutable evaluation state.
type executor struct {
	stack *stack
	steps int
	cfg   config.VMConfig

	tx          *core.SignedTransaction
	transfer    core.TransferAsset
	hasTransfer bool
	inputIndex  int

	chain          ChainView
	blockNumber    uint64
	blockTimestamp uint64
}

// Execute runs unlockScript then lockScript against a single operand
// stack and reports the §4.2 three-way result. parameters are pushed
// onto the stack before either script runs, in order (owner-supplied
// parameters, e.g. for order-conditional locks).
//
// transfer/hasTransfer/inputIndex identify which input within tx this
// unlock corresponds to, so ChkSig/ChkMultiSig's partial-hash tag can
// select the right subset of inputs/outputs to hash (Testable Property
// 6); hasTransfer is false for a burn that is not part of a
// TransferAsset (e.g. UnwrapCCC), in which case the tag is ignored and
// the digest signed over is simply tx.Tracker().
func Execute(
	unlockScript, lockScript []Instruction,
	parameters [][]byte,
	tx *core.SignedTransaction,
	transfer core.TransferAsset,
	hasTransfer bool,
	inputIndex int,
	burn bool,
	chain ChainView,
	cfg config.VMConfig,
	blockNumber, blockTimestamp uint64,
) (Result, error) {
	e := &executor{
		stack:          newStack(cfg.MaxStack),
		cfg:            cfg,
		tx:             tx,
		transfer:       transfer,
		hasTransfer:    hasTransfer,
		inputIndex:     inputIndex,
		chain:          chain,
		blockNumber:    blockNumber,
		blockTimestamp: blockTimestamp,
	}
	for _, p := range parameters {
		if err := e.stack.push(p); err != nil {
			return ResultFail, err
		}
	}
	for _, in := range unlockScript {
		if err := e.step(in); err != nil {
			return ResultFail, err
		}
	}
	for _, in := range lockScript {
		if err := e.step(in); err != nil {
			return ResultFail, err
		}
	}
	if e.stack.len() == 0 {
		return ResultFail, fmt.Errorf("script left an empty stack")
	}
	top, err := e.stack.pop()
	if err != nil {
		return ResultFail, err
	}
	if len(top) != 1 || top[0] == 0 {
		return ResultFail, nil
	}
	if burn {
		return ResultBurnt, nil
	}
	return ResultUnlocked, nil
}

func (e *executor) step(in Instruction) error {
	e.steps++
	if e.cfg.MaxStep > 0 && e.steps > e.cfg.MaxStep {
		return fmt.Errorf("exceeded max step count %d", e.cfg.MaxStep)
	}
	switch in.Op {
	case OpPushB, OpPushInt:
		return e.stack.push(append([]byte{}, in.Operand...))
	case OpCopy:
		depth, err := singleByte(in.Operand)
		if err != nil {
			return err
		}
		v, err := e.stack.peek(int(depth))
		if err != nil {
			return err
		}
		return e.stack.push(append([]byte{}, v...))
	case OpDrop:
		_, err := e.stack.pop()
		return err
	case OpSwap:
		a, err := e.stack.pop()
		if err != nil {
			return err
		}
		b, err := e.stack.pop()
		if err != nil {
			return err
		}
		if err := e.stack.push(a); err != nil {
			return err
		}
		return e.stack.push(b)
	case OpEq:
		a, err := e.stack.pop()
		if err != nil {
			return err
		}
		b, err := e.stack.pop()
		if err != nil {
			return err
		}
		return e.stack.push(boolBytes(string(a) == string(b)))
	case OpAdd, OpSub:
		a, err := e.stack.pop()
		if err != nil {
			return err
		}
		b, err := e.stack.pop()
		if err != nil {
			return err
		}
		x, y := beUint64(b), beUint64(a)
		var r uint64
		if in.Op == OpAdd {
			r = x + y
		} else {
			r = x - y
		}
		return e.stack.push(beBytes(r))
	case OpNot:
		v, err := e.stack.pop()
		if err != nil {
			return err
		}
		return e.stack.push(boolBytes(len(v) != 1 || v[0] == 0))
	case OpBlake256:
		v, err := e.stack.pop()
		if err != nil {
			return err
		}
		h := core.Blake256(v)
		return e.stack.push(h[:])
	case OpBlake160:
		v, err := e.stack.pop()
		if err != nil {
			return err
		}
		h := core.Blake160(v)
		return e.stack.push(h[:])
	case OpChkSig:
		return e.chkSig()
	case OpChkMultiSig:
		return e.chkMultiSig()
	case OpChkTimelock:
		kind, err := singleByte(in.Operand)
		if err != nil {
			return err
		}
		return e.chkTimelock(TimelockKind(kind))
	case OpEof:
		return nil
	default:
		return fmt.Errorf("unexecutable opcode %s", in.Op)
	}
}

func (e *executor) chkTimelock(kind TimelockKind) error {
	trackerBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	thresholdBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	var tracker core.Hash
	copy(tracker[:], trackerBytes)
	threshold := beUint64(thresholdBytes)

	if e.chain == nil {
		return fmt.Errorf("timelock opcode requires a chain view")
	}
	blockNumber, timestamp, mined := e.chain.TrackerTiming(tracker)
	if !mined {
		return &core.TimelockedError{Remaining: threshold}
	}
	var current uint64
	if kind == TimelockBlockNumber {
		current = blockNumber
	} else {
		current = timestamp
	}
	if current < threshold {
		return &core.TimelockedError{Remaining: threshold - current}
	}
	return e.stack.push(boolBytes(true))
}

// hashForTag decodes a partial-hash tag and computes the digest a
// ChkSig/ChkMultiSig signature must cover (Testable Property 6). For an
// unlock outside a TransferAsset (UnwrapCCC's single burn), there is
// nothing to select a subset of, so the tag is decoded only to validate
// its shape and the digest signed over is the transaction's Tracker.
func (e *executor) hashForTag(tagBytes []byte) (core.Hash, error) {
	tag, err := DecodeTag(tagBytes)
	if err != nil {
		return core.Hash{}, err
	}
	if e.hasTransfer {
		return HashPartially(e.transfer, tag, e.inputIndex)
	}
	return e.tx.Tracker()
}

func beUint64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

func beBytes(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
