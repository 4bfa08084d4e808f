package consensus

import (
	"crypto/ecdsa"
	"testing"

	gethcrypto "github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
)

// --- helpers ---

func newTestValidator(t *testing.T) (Validator, *ecdsa.PrivateKey) {
	t.Helper()
	key, err := gethcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr := core.Address(gethcrypto.PubkeyToAddress(key.PublicKey))
	return Validator{Address: addr}, key
}

func sign(t *testing.T, key *ecdsa.PrivateKey, m VoteMessage) core.Signature {
	t.Helper()
	h := m.signingHash()
	sig, err := gethcrypto.Sign(h[:], key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var out core.Signature
	copy(out[:], sig)
	return out
}

func makeSet(t *testing.T, size int) (*ValidatorSet, core.Hash, []*ecdsa.PrivateKey) {
	t.Helper()
	vs := NewValidatorSet()
	vals := make([]Validator, size)
	keys := make([]*ecdsa.PrivateKey, size)
	for i := 0; i < size; i++ {
		v, k := newTestValidator(t)
		vals[i] = v
		keys[i] = k
	}
	parent := core.Blake256([]byte("parent"))
	vs.Set(parent, vals)
	return vs, parent, keys
}

// --- tests ---

func TestVerifyDoubleVote_Valid(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("B"))}
	a.Signature = sign(t, keys[0], a)
	b.Signature = sign(t, keys[0], b)

	if err := VerifyDoubleVote(vs, parent, a, b); err != nil {
		t.Fatalf("expected valid evidence, got %v", err)
	}
}

func TestVerifyDoubleVote_DifferentRounds(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := VoteMessage{Height: 2, Round: 1, SignerIndex: 0, BlockHash: core.Blake256([]byte("B"))}
	a.Signature = sign(t, keys[0], a)
	b.Signature = sign(t, keys[0], b)

	err := VerifyDoubleVote(vs, parent, a, b)
	if err == nil || err.Error() != "different voting rounds" {
		t.Fatalf("expected %q, got %v", "different voting rounds", err)
	}
}

func TestVerifyDoubleVote_DifferentSignerIndexes(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := VoteMessage{Height: 2, Round: 0, SignerIndex: 1, BlockHash: core.Blake256([]byte("B"))}
	a.Signature = sign(t, keys[0], a)
	b.Signature = sign(t, keys[1], b)

	err := VerifyDoubleVote(vs, parent, a, b)
	if err == nil || err.Error() != "different signer indexes" {
		t.Fatalf("expected %q, got %v", "different signer indexes", err)
	}
}

func TestVerifyDoubleVote_SameBlockHashRejected(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := a
	a.Signature = sign(t, keys[0], a)
	b.Signature = a.Signature

	if err := VerifyDoubleVote(vs, parent, a, b); err == nil {
		t.Fatalf("expected rejection of identical block hash evidence")
	}
}

func TestVerifyDoubleVote_GenesisRejected(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 0, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := VoteMessage{Height: 0, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("B"))}
	a.Signature = sign(t, keys[0], a)
	b.Signature = sign(t, keys[0], b)

	if err := VerifyDoubleVote(vs, parent, a, b); err == nil {
		t.Fatalf("expected genesis evidence to be rejected")
	}
}

func TestVerifyDoubleVote_WrongSignature(t *testing.T) {
	vs, parent, keys := makeSet(t, 10)
	a := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("A"))}
	b := VoteMessage{Height: 2, Round: 0, SignerIndex: 0, BlockHash: core.Blake256([]byte("B"))}
	a.Signature = sign(t, keys[1], a) // wrong key for index 0
	b.Signature = sign(t, keys[0], b)

	if err := VerifyDoubleVote(vs, parent, a, b); err == nil {
		t.Fatalf("expected signature mismatch to be rejected")
	}
}
