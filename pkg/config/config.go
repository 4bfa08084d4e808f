package config

// Package config provides a reusable loader for Synnergy configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0

import (
	"fmt"

	"github.com/spf13/viper"

	"codechain-core/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// VMConfig bounds the script VM's interpreter loop (core/vm): MaxStack
// caps stack depth, MaxStep caps the number of instructions a single
// unlock attempt may execute (§4.2 "the VM is ... bounded: step limit
// and stack-depth limit from VM config").
type VMConfig struct {
	MaxStack int `mapstructure:"max_stack" json:"max_stack"`
	MaxStep  int `mapstructure:"max_step" json:"max_step"`
}

// Config represents the unified configuration for a Synnergy node. It mirrors
// the structure of the YAML files under config/.
type Config struct {
	Network struct {
		ID             string   `mapstructure:"id" json:"id"`
		ChainID        int      `mapstructure:"chain_id" json:"chain_id"`
		MaxPeers       int      `mapstructure:"max_peers" json:"max_peers"`
		GenesisFile    string   `mapstructure:"genesis_file" json:"genesis_file"`
		RPCEnabled     bool     `mapstructure:"rpc_enabled" json:"rpc_enabled"`
		P2PPort        int      `mapstructure:"p2p_port" json:"p2p_port"`
		ListenAddr     string   `mapstructure:"listen_addr" json:"listen_addr"`
		DiscoveryTag   string   `mapstructure:"discovery_tag" json:"discovery_tag"`
		BootstrapPeers []string `mapstructure:"bootstrap_peers" json:"bootstrap_peers"`
	} `mapstructure:"network" json:"network"`

	Consensus struct {
		Type               string `mapstructure:"type" json:"type"`
		BlockTimeMS        int    `mapstructure:"block_time_ms" json:"block_time_ms"`
		ValidatorsRequired int    `mapstructure:"validators_required" json:"validators_required"`
	} `mapstructure:"consensus" json:"consensus"`

	VM VMConfig `mapstructure:"vm" json:"vm"`

	Mempool struct {
		MaxCount      int `mapstructure:"max_count" json:"max_count"`
		MaxMemBytes   int `mapstructure:"max_mem_bytes" json:"max_mem_bytes"`
		FeeBumpShift  int `mapstructure:"fee_bump_shift" json:"fee_bump_shift"`
		MaxTimeInPool int `mapstructure:"max_time_in_pool_secs" json:"max_time_in_pool_secs"`
	} `mapstructure:"mempool" json:"mempool"`

	Miner struct {
		MinResealMS int `mapstructure:"min_reseal_ms" json:"min_reseal_ms"`
		MaxResealMS int `mapstructure:"max_reseal_ms" json:"max_reseal_ms"`
		MaxBodySize int `mapstructure:"max_body_size" json:"max_body_size"`
	} `mapstructure:"miner" json:"miner"`

	Sync struct {
		RequestExpirySecs int `mapstructure:"request_expiry_secs" json:"request_expiry_secs"`
		SchedulerTickMS   int `mapstructure:"scheduler_tick_ms" json:"scheduler_tick_ms"`
	} `mapstructure:"sync" json:"sync"`

	Storage struct {
		DBPath string `mapstructure:"db_path" json:"db_path"`
		Prune  bool   `mapstructure:"prune" json:"prune"`
	} `mapstructure:"storage" json:"storage"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up matching environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the SYNN_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("SYNN_ENV", ""))
}
