package core

// genesis.go assembles the genesis block and initial state, grounded on
// the teacher's devnet bootstrap pattern (core/devnet.go in
// orbas1-Synnergy): a small struct of initial balances/shards plus a
// builder that produces block 0.

// GenesisAccount seeds one account's initial balance at genesis.
type GenesisAccount struct {
	Address Address
	Balance uint64
}

// GenesisShard seeds one shard's initial owners/users at genesis.
type GenesisShard struct {
	ID     ShardID
	Owners []Address
	Users  []Address
}

// Genesis describes the chain's genesis scheme (§6 "network_id is read
// from the chain scheme at genesis").
type Genesis struct {
	NetworkID NetworkID
	Author    Address
	Timestamp uint64
	Score     uint64
	Accounts  []GenesisAccount
	Shards    []GenesisShard
}

// Block builds the genesis block (number 0, empty body, parent hash
// zero). The state root is left zero here; the chain client computes
// the real root once the genesis state has been applied to a fresh
// trie (see core/state.Engine.ApplyGenesis).
func (g *Genesis) Block() *Block {
	return &Block{
		Header: Header{
			ParentHash: Hash{},
			Number:     0,
			Author:     g.Author,
			StateRoot:  Hash{},
			Timestamp:  g.Timestamp,
			Score:      g.Score,
		},
		Body: Body{},
	}
}
