package main

// signer.go is the node's concrete consensus.Signer: an ECDSA key held
// in memory, loaded from the CODECHAIN_VALIDATOR_KEY environment
// variable. Grounded on core/transaction.go's SignTransaction/Signer
// pattern (go-ethereum/crypto ToECDSA/Sign/PubkeyToAddress), the same
// secp256k1 primitives used everywhere else signing happens in this
// module.

import (
	"encoding/hex"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	core "codechain-core/core"
	"codechain-core/core/consensus"
	"codechain-core/pkg/utils"
)

// validatorSigner implements consensus.Signer.
type validatorSigner struct {
	raw     []byte
	address core.Address
}

var _ consensus.Signer = (*validatorSigner)(nil)

func newValidatorSigner(hexKey string) (*validatorSigner, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("decode validator key: %w", err)
	}
	priv, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid validator key: %w", err)
	}
	addr := core.Address(crypto.PubkeyToAddress(priv.PublicKey))
	return &validatorSigner{raw: raw, address: addr}, nil
}

func (s *validatorSigner) Address() core.Address { return s.address }

func (s *validatorSigner) Sign(digest core.Hash) (core.Signature, error) {
	priv, err := crypto.ToECDSA(s.raw)
	if err != nil {
		return core.Signature{}, err
	}
	sig, err := crypto.Sign(digest[:], priv)
	if err != nil {
		return core.Signature{}, fmt.Errorf("sign: %w", err)
	}
	var out core.Signature
	copy(out[:], sig)
	return out, nil
}

// loadValidatorSigner reads the validator key from the environment; an
// empty value means this node runs as a non-validating observer
// (consensus.Tendermint accepts a nil Signer for exactly this case).
func loadValidatorSigner() (*validatorSigner, error) {
	hexKey := utils.EnvOrDefault("CODECHAIN_VALIDATOR_KEY", "")
	if hexKey == "" {
		return nil, nil
	}
	return newValidatorSigner(hexKey)
}
