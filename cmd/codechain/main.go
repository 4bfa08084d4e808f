// Command codechain runs a single-process CodeChain node: the state
// engine, the block-chain client, the mempool, the miner/sealer and the
// peer sync protocol, wired together the way the teacher's mock
// testnet/tokens commands never actually did.
//
// Grounded on the teacher's cmd/synnergy cobra shape (root command plus
// subcommands) generalized from mock demo output to a real "start"
// command that boots every module §2 names.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	cmdconfig "codechain-core/cmd/config"
	core "codechain-core/core"
	"codechain-core/core/chain"
	"codechain-core/core/consensus"
	"codechain-core/core/mempool"
	"codechain-core/core/miner"
	"codechain-core/core/stake"
	"codechain-core/core/state"
	"codechain-core/core/sync"
	"codechain-core/core/vm"
)

func main() {
	root := &cobra.Command{Use: "codechain"}
	root.AddCommand(startCmd())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "boot a single-process CodeChain node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(env)
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay (e.g. devnet); empty uses the default config only")
	return cmd
}

func runNode(env string) error {
	cmdconfig.LoadConfig(env)
	cfg := cmdconfig.AppConfig

	if level, err := logrus.ParseLevel(cfg.Logging.Level); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.StandardLogger()

	networkID, err := core.ParseNetworkID(cfg.Network.ID)
	if err != nil {
		return fmt.Errorf("codechain: %w", err)
	}

	signer, err := loadValidatorSigner()
	if err != nil {
		return fmt.Errorf("codechain: %w", err)
	}

	var genesis *core.Genesis
	var validatorAddrs []core.Address
	if cfg.Network.GenesisFile != "" {
		genesis, validatorAddrs, err = loadGenesis(cfg.Network.GenesisFile)
		if err != nil {
			return fmt.Errorf("codechain: %w", err)
		}
	} else {
		author := core.Address{}
		if signer != nil {
			author = signer.Address()
		}
		genesis, validatorAddrs = devnetGenesis(networkID, author)
	}

	// --- state engine ---

	handlers := state.NewHandlerRegistry()
	cache := state.NewGlobalCache(64, 4096)
	engine := state.NewEngine(core.NewTrieMem(), core.NewTrieMem(), cache, handlers, nil)

	// --- chain client ---

	db := core.NewKVMem()
	chainClient := chain.New(db, engine)

	// stake handler and the script verifier both need the chain client as
	// a read capability, which itself needs the engine constructed above;
	// both are wired in after the fact by mutating the registry/field the
	// engine already holds a reference to, rather than restructuring
	// construction order (§5 DESIGN NOTES "cyclic client<->engine
	// references").
	validators := consensus.NewValidatorSet()
	handlers.Register(stake.New(validators, chainClient))
	engine.Verifier = &vm.Verifier{Chain: chainClient, Config: cfg.VM}

	genesisBlock, err := chainClient.ImportGenesis(genesis)
	if err != nil {
		return fmt.Errorf("codechain: import genesis: %w", err)
	}
	validatorSet := make([]consensus.Validator, 0, len(validatorAddrs))
	for _, addr := range validatorAddrs {
		validatorSet = append(validatorSet, consensus.Validator{Address: addr})
	}
	validators.Set(genesisBlock.Header.Hash(), validatorSet)

	clk := clock.New()
	engineSealer := consensus.NewTendermint(chainClient, validators, signerCapability(signer))
	chainClient.SetSealVerifier(engineSealer)

	// --- mempool ---

	pool := mempool.New(mempool.Config{
		MaxCount:       cfg.Mempool.MaxCount,
		MaxMemoryBytes: cfg.Mempool.MaxMemBytes,
		FeeBumpShift:   uint(cfg.Mempool.FeeBumpShift),
		MaxTimeInQueue: time.Duration(cfg.Mempool.MaxTimeInPool) * time.Second,
	}, networkID, chainClient, chainClient, nil)
	chainClient.Subscribe(&mempool.ChainSubscriber{Pool: pool, Bodies: chainClient})

	// --- miner ---

	minerAuthor := core.Address{}
	if signer != nil {
		minerAuthor = signer.Address()
	}
	m := miner.New(miner.Config{
		Author:            minerAuthor,
		MaxBodySize:       cfg.Miner.MaxBodySize,
		MinResealInterval: time.Duration(cfg.Miner.MinResealMS) * time.Millisecond,
		MaxResealInterval: time.Duration(cfg.Miner.MaxResealMS) * time.Millisecond,
	}, chainClient, pool, engine, engineSealer, clk)

	// --- sync ---

	transport := &lazyTransport{}
	mgr := sync.New(genesisBlock.Header.Hash(), chainClient, chainClient, transport, clk)
	node, err := sync.NewNode(sync.Config{
		ListenAddr:     cfg.Network.ListenAddr,
		BootstrapPeers: cfg.Network.BootstrapPeers,
		DiscoveryTag:   cfg.Network.DiscoveryTag,
		GenesisHash:    genesisBlock.Header.Hash(),
	}, mgr)
	if err != nil {
		return fmt.Errorf("codechain: start sync node: %w", err)
	}
	transport.node = node
	node.AttachResponder(chainClient)
	chainClient.Subscribe(syncSubscriber{node: node, genesisHash: genesisBlock.Header.Hash()})

	// --- run ---

	stop := make(chan struct{})
	go m.RunResealLoop(stop)
	go mgr.RunScheduler(stop)

	log.Infof("codechain: node started, network %s, genesis %s", networkID, genesisBlock.Header.Hash())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	log.Info("codechain: shutting down")
	close(stop)
	return node.Close()
}

// signerCapability adapts a possibly-nil *validatorSigner to
// consensus.Signer: a typed nil *validatorSigner is not itself a nil
// interface, so this returns a genuine nil interface value when signer
// is nil, letting consensus.Tendermint's own nil check work correctly.
func signerCapability(signer *validatorSigner) consensus.Signer {
	if signer == nil {
		return nil
	}
	return signer
}

// syncSubscriber broadcasts our own Status whenever the best block
// changes, so peers admit us (§4.6 "Peer admission").
type syncSubscriber struct {
	node        *sync.Node
	genesisHash core.Hash
}

func (s syncSubscriber) ChainNewBlocks(enacted, retracted []core.Hash) {}

func (s syncSubscriber) NewBestBlock(block *core.Block) {
	_ = s.node.BroadcastStatus(sync.Status{
		GenesisHash: s.genesisHash,
		TotalScore:  block.Header.Score,
		BestHash:    block.Header.Hash(),
	})
}

// lazyTransport forwards to a *sync.Node set once NewNode returns,
// breaking the construction cycle: Manager needs a Transport before
// the Node that implements it can exist (NewNode itself needs the
// Manager to dispatch responses into).
type lazyTransport struct {
	node *sync.Node
}

func (t *lazyTransport) SendHeadersRequest(peer sync.PeerID, id sync.RequestID, req sync.HeadersRequest) error {
	return t.node.SendHeadersRequest(peer, id, req)
}

func (t *lazyTransport) SendBodiesRequest(peer sync.PeerID, id sync.RequestID, req sync.BodiesRequest) error {
	return t.node.SendBodiesRequest(peer, id, req)
}
