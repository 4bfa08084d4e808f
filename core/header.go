package core

// header.go declares the block header/body entities (§3) and the skewed
// Merkle transactions-root computation used to bind a body to its header.

// Header is a block header. Hash() is the digest of its RLP encoding.
type Header struct {
	ParentHash       Hash
	Number           uint64
	Author           Address
	StateRoot        Hash
	TransactionsRoot Hash
	Timestamp        uint64
	Score            uint64 // PoW "difficulty" or validator-ranking score
	Seal             [][]byte
}

// Hash returns the digest of the RLP-encoded header.
func (h *Header) Hash() Hash {
	enc, err := EncodeHeaderRLP(h)
	if err != nil {
		panic(err) // a well-formed in-memory header cannot fail to encode
	}
	return Blake256(enc)
}

// Body is a block body: an ordered sequence of signed transactions (§3).
type Body struct {
	Transactions []*SignedTransaction
}

// Block couples a header with its body.
type Block struct {
	Header Header
	Body   Body
}

func (b *Block) Hash() Hash { return b.Header.Hash() }

// TransactionsRoot computes the skewed Merkle root of the body's
// transactions, seeded on the left by the parent block's transactions
// root (§3 "Body's transactions root").
//
// A plain Merkle root over the n transaction hashes is computed, and
// the result is Blake256(parentRoot || plainRoot). An empty body (n=0)
// returns the parent root unchanged. Two sibling chains that share a
// transaction set but differ in parent still diverge in transactions
// root.
func TransactionsRoot(parentRoot Hash, txs []*SignedTransaction) Hash {
	if len(txs) == 0 {
		return parentRoot
	}
	hashes := make([]Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = tx.Hash()
	}
	plain := merkleRoot(hashes)
	return Blake256(append(append([]byte{}, parentRoot[:]...), plain[:]...))
}

// merkleRoot computes an ordinary binary Merkle root over leaf hashes. The
// last element is duplicated at each odd level, matching the common
// Bitcoin-style construction.
func merkleRoot(leaves []Hash) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := leaves
	for len(level) > 1 {
		next := make([]Hash, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, Blake256(append(append([]byte{}, left[:]...), right[:]...)))
		}
		level = next
	}
	return level[0]
}
