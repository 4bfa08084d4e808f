package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

// RecoverSigner recovers the address whose key produced sig over digest.
// Shared by transaction signer recovery and the Store/Remove certifier
// checks (§3), which sign a plain content hash rather than a full
// transaction pre-image.
func RecoverSigner(digest Hash, sig Signature) (Address, error) {
	pub, err := crypto.SigToPub(digest[:], sig[:])
	if err != nil {
		return Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return Address(crypto.PubkeyToAddress(*pub)), nil
}

// AddressFromPublicKey derives the address a raw (uncompressed) public
// key would sign as, used to index a SetRegularKey's key by its
// effective address (core/state's regular-key-owner reverse index).
func AddressFromPublicKey(pub PublicKey) (Address, error) {
	key, err := crypto.UnmarshalPubkey(pub)
	if err != nil {
		return Address{}, fmt.Errorf("invalid public key: %w", err)
	}
	return Address(crypto.PubkeyToAddress(*key)), nil
}
