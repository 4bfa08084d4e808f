package vm

import (
	"crypto/ecdsa"
	"math/big"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
	config "codechain-core/pkg/config"
)

// Multisig vectors ported from original_source/vm/tests/chk_multi_sig.rs
// (ONE_KEY/MINUS_ONE_KEY/TWO_KEY fixed scalars, same m-of-n scenarios).
// The stack shape differs from the original: this VM carries the
// partial-hash tag (Testable Property 6) as its own stack item rather
// than overloading the pubkey-selection bitmask for both roles, so the
// scripts below push tag and bitmask separately even where the ported
// scenario used one byte for both.

// --- helpers ---

func fixedKey(t *testing.T, scalar *big.Int) *ecdsa.PrivateKey {
	t.Helper()
	raw := make([]byte, 32)
	scalar.FillBytes(raw)
	key, err := gethcrypto.ToECDSA(raw)
	if err != nil {
		t.Fatalf("fixed key: %v", err)
	}
	return key
}

func oneKey(t *testing.T) *ecdsa.PrivateKey { return fixedKey(t, big.NewInt(1)) }
func twoKey(t *testing.T) *ecdsa.PrivateKey { return fixedKey(t, big.NewInt(2)) }

// minusOneKey is the scalar curve-order-minus-one, matching the
// original vectors' MINUS_ONE_KEY.
func minusOneKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	n := gethcrypto.S256().Params().N
	scalar := new(big.Int).Sub(n, big.NewInt(1))
	return fixedKey(t, scalar)
}

func pubkeyBytes(key *ecdsa.PrivateKey) []byte {
	return gethcrypto.FromECDSAPub(&key.PublicKey)
}

func signDigest(t *testing.T, key *ecdsa.PrivateKey, digest core.Hash) []byte {
	t.Helper()
	sig, err := gethcrypto.Sign(digest[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return sig
}

// signAllTag is the partial-hash tag the ported vectors sign under:
// sign every input and every output, no burn.
var signAllTag = Tag{SignAllInputs: true, SignAllOutputs: true}

func signAllDigest(t *testing.T) core.Hash {
	t.Helper()
	h, err := HashPartially(core.TransferAsset{}, signAllTag, 0)
	if err != nil {
		t.Fatalf("hash partially: %v", err)
	}
	return h
}

// buildLockScript encodes the ChkMultiSig lock half: threshold m,
// n pubkeys, then n.
func buildLockScript(m int, pubkeys [][]byte) []Instruction {
	ins := []Instruction{PushB([]byte{byte(m)})}
	for _, pk := range pubkeys {
		ins = append(ins, PushB(pk))
	}
	ins = append(ins, PushB([]byte{byte(len(pubkeys))}), ChkMultiSig())
	return ins
}

// buildUnlockScript encodes the unlock half: the partial-hash tag, then
// sigsAscending's signatures pushed highest-selected-bit-first so the
// lowest selected bit ends up on top (chkMultiSig pops it first),
// finally the pubkey-selection bitmask on top of everything.
func buildUnlockScript(tag Tag, bitmask byte, sigsAscending [][]byte) []Instruction {
	tagBytes, err := EncodeTag(tag)
	if err != nil {
		panic(err)
	}
	ins := []Instruction{PushB(tagBytes)}
	for i := len(sigsAscending) - 1; i >= 0; i-- {
		ins = append(ins, PushB(sigsAscending[i]))
	}
	ins = append(ins, PushB([]byte{bitmask}))
	return ins
}

func runMultiSig(t *testing.T, unlock, lock []Instruction) (Result, error) {
	t.Helper()
	return Execute(unlock, lock, nil, nil, core.TransferAsset{}, true, 0, false, nil, config.VMConfig{MaxStack: 64, MaxStep: 256}, 0, 0)
}

// --- tests ---

func TestChkMultiSig_0of2_InsufficientSignatures(t *testing.T) {
	pk1, pk2 := pubkeyBytes(oneKey(t)), pubkeyBytes(minusOneKey(t))
	lock := buildLockScript(0, [][]byte{pk1, pk2})
	unlock := buildUnlockScript(signAllTag, 0b11, nil)

	_, err := runMultiSig(t, unlock, lock)
	if err != core.ErrInvalidSigCount {
		t.Fatalf("expected ErrInvalidSigCount, got %v", err)
	}
}

func TestChkMultiSig_1of2_Unlocked(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)

	lock := buildLockScript(1, [][]byte{pk1, pk2})
	unlock := buildUnlockScript(signAllTag, 0b01, [][]byte{sig1})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultUnlocked {
		t.Fatalf("expected Unlocked, got %v", result)
	}
}

func TestChkMultiSig_2of2_Unlocked(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)
	sig2 := signDigest(t, key2, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2})
	unlock := buildUnlockScript(signAllTag, 0b11, [][]byte{sig1, sig2})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultUnlocked {
		t.Fatalf("expected Unlocked, got %v", result)
	}
}

func TestChkMultiSig_2of2_DuplicatedSignatureRejected(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2})
	// sig1 stands in for both chosen signers instead of a real sig2.
	unlock := buildUnlockScript(signAllTag, 0b11, [][]byte{sig1, sig1})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultFail {
		t.Fatalf("expected Fail on duplicated signature, got %v", result)
	}
}

func TestChkMultiSig_2of3_FirstTwoSigners(t *testing.T) {
	key1, key2, key3 := oneKey(t), minusOneKey(t), twoKey(t)
	pk1, pk2, pk3 := pubkeyBytes(key1), pubkeyBytes(key2), pubkeyBytes(key3)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)
	sig2 := signDigest(t, key2, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2, pk3})
	unlock := buildUnlockScript(signAllTag, 0b011, [][]byte{sig1, sig2})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultUnlocked {
		t.Fatalf("expected Unlocked, got %v", result)
	}
}

func TestChkMultiSig_2of3_OutsideSigners(t *testing.T) {
	key1, key2, key3 := oneKey(t), minusOneKey(t), twoKey(t)
	pk1, pk2, pk3 := pubkeyBytes(key1), pubkeyBytes(key2), pubkeyBytes(key3)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)
	sig3 := signDigest(t, key3, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2, pk3})
	unlock := buildUnlockScript(signAllTag, 0b101, [][]byte{sig1, sig3})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultUnlocked {
		t.Fatalf("expected Unlocked, got %v", result)
	}
}

func TestChkMultiSig_2of3_LastTwoSigners(t *testing.T) {
	key1, key2, key3 := oneKey(t), minusOneKey(t), twoKey(t)
	pk1, pk2, pk3 := pubkeyBytes(key1), pubkeyBytes(key2), pubkeyBytes(key3)
	digest := signAllDigest(t)
	sig2 := signDigest(t, key2, digest)
	sig3 := signDigest(t, key3, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2, pk3})
	unlock := buildUnlockScript(signAllTag, 0b110, [][]byte{sig2, sig3})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultUnlocked {
		t.Fatalf("expected Unlocked, got %v", result)
	}
}

func TestChkMultiSig_WrongDigestRejected(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)

	// signed under a different tag (sign-all-inputs only) than the
	// lock script's ChkMultiSig will hash under (signAllTag).
	wrongTag := Tag{SignAllInputs: true}
	wrongDigest, err := HashPartially(core.TransferAsset{}, wrongTag, 0)
	if err != nil {
		t.Fatalf("hash partially: %v", err)
	}
	sig1 := signDigest(t, key1, wrongDigest)
	sig2 := signDigest(t, key2, wrongDigest)

	lock := buildLockScript(2, [][]byte{pk1, pk2})
	unlock := buildUnlockScript(signAllTag, 0b11, [][]byte{sig1, sig2})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultFail {
		t.Fatalf("expected Fail on wrong-digest signatures, got %v", result)
	}
}

func TestChkMultiSig_SwappedOrderRejected(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)
	sig2 := signDigest(t, key2, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2})
	// sigsAscending is supposed to list sig-for-bit0 then sig-for-bit1;
	// swapping them means pubkey1 gets checked against sig2 and vice
	// versa, an order that must fail (no cross-matching).
	unlock := buildUnlockScript(signAllTag, 0b11, [][]byte{sig2, sig1})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultFail {
		t.Fatalf("expected Fail on swapped signature order, got %v", result)
	}
}

func TestChkMultiSig_FewerSignaturesThanThreshold(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1, pk2 := pubkeyBytes(key1), pubkeyBytes(key2)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)

	lock := buildLockScript(2, [][]byte{pk1, pk2})
	// bitmask claims only bit0 is signed (k=1 signature supplied) while
	// the threshold m=2 demands two: k < m always fails regardless of
	// whether the one supplied signature is itself valid.
	unlock := buildUnlockScript(signAllTag, 0b01, [][]byte{sig1})

	result, err := runMultiSig(t, unlock, lock)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != ResultFail {
		t.Fatalf("expected Fail, k < m must not unlock, got %v", result)
	}
}

func TestChkMultiSig_MoreSignaturesThanPubkeysInvalidFilter(t *testing.T) {
	key1, key2 := oneKey(t), minusOneKey(t)
	pk1 := pubkeyBytes(key1)
	digest := signAllDigest(t)
	sig1 := signDigest(t, key1, digest)
	sig2 := signDigest(t, key2, digest)

	lock := buildLockScript(1, [][]byte{pk1})
	// bitmask 0b11 selects two bits against a single-pubkey lock script
	// (n=1): k=2 > n=1 must be rejected as InvalidFilter.
	unlock := buildUnlockScript(signAllTag, 0b11, [][]byte{sig1, sig2})

	_, err := runMultiSig(t, unlock, lock)
	if err != core.ErrInvalidFilter {
		t.Fatalf("expected ErrInvalidFilter, got %v", err)
	}
}

func TestChkMultiSig_MalformedOperandTypeMismatch(t *testing.T) {
	// an empty n operand cannot be interpreted as a pubkey count: a
	// malformed stack shape, §4.2's TypeMismatch failure mode.
	lock := []Instruction{PushB(nil), ChkMultiSig()}

	_, err := runMultiSig(t, nil, lock)
	if err != core.ErrTypeMismatch {
		t.Fatalf("expected ErrTypeMismatch, got %v", err)
	}
}
