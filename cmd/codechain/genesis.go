package main

// genesis.go loads the chain's genesis scheme from a YAML file named by
// Config.Network.GenesisFile (pkg/config), falling back to a small
// single-validator devnet genesis when none is configured. Grounded on
// the teacher's cmd/config YAML conventions, generalized from node
// config to chain genesis; yaml.v3 is the pack's actively-maintained
// yaml major (see DESIGN.md "Dropped teacher dependencies" for why
// yaml.v2 has no consumer here).

import (
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	core "codechain-core/core"
)

// genesisAccountYAML mirrors core.GenesisAccount with hex-string fields,
// the natural YAML encoding for addresses.
type genesisAccountYAML struct {
	Address string `yaml:"address"`
	Balance uint64 `yaml:"balance"`
}

type genesisShardYAML struct {
	ID     uint16   `yaml:"id"`
	Owners []string `yaml:"owners"`
	Users  []string `yaml:"users"`
}

type genesisYAML struct {
	NetworkID string               `yaml:"network_id"`
	Author    string               `yaml:"author"`
	Timestamp uint64               `yaml:"timestamp"`
	Score     uint64               `yaml:"score"`
	Accounts  []genesisAccountYAML `yaml:"accounts"`
	Shards    []genesisShardYAML   `yaml:"shards"`
	// Validators seeds the initial ValidatorSet snapshot at the genesis
	// hash; a devnet with no validators listed falls back to the
	// author being the sole validator.
	Validators []string `yaml:"validators"`
}

func parseAddress(s string) (core.Address, error) {
	var a core.Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	if len(b) != len(a) {
		return a, fmt.Errorf("invalid address %q: want %d bytes, got %d", s, len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// loadGenesis reads path and decodes it into a core.Genesis plus the
// raw validator address list (genesis.go has no concept of a
// ValidatorSet; main.go seeds one from these addresses).
func loadGenesis(path string) (*core.Genesis, []core.Address, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read genesis file %s: %w", path, err)
	}
	var g genesisYAML
	if err := yaml.Unmarshal(raw, &g); err != nil {
		return nil, nil, fmt.Errorf("parse genesis file %s: %w", path, err)
	}

	networkID, err := core.ParseNetworkID(g.NetworkID)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
	}
	author, err := parseAddress(g.Author)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
	}

	accounts := make([]core.GenesisAccount, 0, len(g.Accounts))
	for _, a := range g.Accounts {
		addr, err := parseAddress(a.Address)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
		}
		accounts = append(accounts, core.GenesisAccount{Address: addr, Balance: a.Balance})
	}

	shards := make([]core.GenesisShard, 0, len(g.Shards))
	for _, s := range g.Shards {
		owners, err := parseAddresses(s.Owners)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
		}
		users, err := parseAddresses(s.Users)
		if err != nil {
			return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
		}
		shards = append(shards, core.GenesisShard{ID: core.ShardID(s.ID), Owners: owners, Users: users})
	}

	validators, err := parseAddresses(g.Validators)
	if err != nil {
		return nil, nil, fmt.Errorf("genesis file %s: %w", path, err)
	}
	if len(validators) == 0 {
		validators = []core.Address{author}
	}

	return &core.Genesis{
		NetworkID: networkID,
		Author:    author,
		Timestamp: g.Timestamp,
		Score:     g.Score,
		Accounts:  accounts,
		Shards:    shards,
	}, validators, nil
}

func parseAddresses(ss []string) ([]core.Address, error) {
	out := make([]core.Address, 0, len(ss))
	for _, s := range ss {
		a, err := parseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// devnetGenesis is used when Config.Network.GenesisFile is empty: a
// single-account, single-validator scheme good enough to boot a local
// node without hand-writing a YAML file first.
func devnetGenesis(networkID core.NetworkID, author core.Address) (*core.Genesis, []core.Address) {
	return &core.Genesis{
		NetworkID: networkID,
		Author:    author,
		Timestamp: 0,
		Score:     1,
		Accounts: []core.GenesisAccount{
			{Address: author, Balance: 1_000_000_000},
		},
	}, []core.Address{author}
}
