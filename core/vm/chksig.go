package vm

import (
	"bytes"
	"math/bits"

	"github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
)

// verifySig reports whether sig is a valid secp256k1 signature by pubkey
// over digest. Unlike core.RecoverSigner (which recovers an *address*
// for transaction-signer attribution), a lock script pushes a raw
// uncompressed public key, so ChkSig/ChkMultiSig must recover the public
// key itself and compare byte-for-byte.
func verifySig(digest core.Hash, sig, pubkey []byte) bool {
	if len(sig) != 65 {
		return false
	}
	recovered, err := crypto.Ecrecover(digest[:], sig)
	if err != nil {
		return false
	}
	return bytes.Equal(recovered, pubkey)
}

// chkSig implements OpChkSig: pop pubkey, signature, message-tag; push
// a 1-byte boolean (1 = valid) per CodeChain's predicate-opcode
// convention.
func (e *executor) chkSig() error {
	pubkey, err := e.stack.pop()
	if err != nil {
		return err
	}
	sig, err := e.stack.pop()
	if err != nil {
		return err
	}
	tagBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	digest, err := e.hashForTag(tagBytes)
	if err != nil {
		return err
	}
	return e.stack.push(boolBytes(verifySig(digest, sig, pubkey)))
}

// chkMultiSig implements OpChkMultiSig per §4.2: the lock script has
// already pushed m (threshold), the n pubkeys, and n; the unlock script
// has pushed a presence bitmask and k = popcount(bitmask) signatures.
// Order-preserving: signatures must match their chosen pubkeys in the
// lock script's order, not an arbitrary permutation.
func (e *executor) chkMultiSig() error {
	nBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	nByte, err := singleByte(nBytes)
	if err != nil {
		return err
	}
	n := int(nByte)
	pubkeys := make([][]byte, n)
	for i := n - 1; i >= 0; i-- {
		pk, err := e.stack.pop()
		if err != nil {
			return err
		}
		pubkeys[i] = pk
	}
	mBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	mByte, err := singleByte(mBytes)
	if err != nil {
		return err
	}
	m := int(mByte)

	bitmaskBytes, err := e.stack.pop()
	if err != nil {
		return err
	}
	bitmask, err := singleByte(bitmaskBytes)
	if err != nil {
		return err
	}
	k := bits.OnesCount8(bitmask)

	// the tag item sits below the signatures; if fewer than k items
	// remain once it is accounted for, the unlock script did not supply
	// as many signatures as the bitmask claims.
	if e.stack.len() < k+1 {
		return core.ErrInvalidSigCount
	}

	sigs := make([][]byte, 0, k)
	for i := 0; i < k; i++ {
		sig, err := e.stack.pop()
		if err != nil {
			return err
		}
		sigs = append(sigs, sig)
	}
	tagBytes, err := e.stack.pop()
	if err != nil {
		return err
	}

	if k > n {
		return core.ErrInvalidFilter
	}
	digest, err := e.hashForTag(tagBytes)
	if err != nil {
		return err
	}

	// Walk the bitmask from bit 0 (pubkeys[0]) upward, consuming one
	// signature from sigs (popped in reverse push order, so sigs[0] is
	// the signature for the lowest set bit) per chosen pubkey, in order.
	sigIdx := 0
	matched := 0
	for i := 0; i < n && sigIdx < len(sigs); i++ {
		if bitmask&(1<<uint(i)) == 0 {
			continue
		}
		if verifySig(digest, sigs[sigIdx], pubkeys[i]) {
			matched++
		}
		sigIdx++
	}
	if matched != k || k < m {
		return e.stack.push(boolBytes(false))
	}
	return e.stack.push(boolBytes(true))
}

// singleByte reads a stack item expected to carry one opcode-parameter
// byte (ChkMultiSig's m/n/bitmask). An empty operand has no shape a
// count or bitmask can take, so it is a TypeMismatch (§4.2) rather than
// a silent zero.
func singleByte(b []byte) (byte, error) {
	if len(b) == 0 {
		return 0, core.ErrTypeMismatch
	}
	return b[len(b)-1], nil
}

func boolBytes(ok bool) []byte {
	if ok {
		return []byte{1}
	}
	return []byte{0}
}
