package daemon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is where the CLI looks for the daemon config when none is
// given explicitly.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "fusion.json"
	}
	return filepath.Join(home, ".fusion", "config.json")
}

// ChainConfig describes one leg's ledger. Kind "sim" runs against the
// in-memory ledger, kind "evm" against a deployed escrow contract.
type ChainConfig struct {
	Kind string `json:"kind"`
	Name string `json:"name"`

	// evm settings
	RPC           string `json:"rpc,omitempty"`
	Contract      string `json:"contract,omitempty"`
	Confirmations uint64 `json:"confirmations,omitempty"`
	Key           string `json:"key,omitempty"`

	// sim settings
	Account         string `json:"account,omitempty"`
	FinalitySeconds int64  `json:"finalitySeconds,omitempty"`
	Funds           []Fund `json:"funds,omitempty"`
}

// Fund seeds one sim-ledger balance at startup, standing in for the deposits
// a real chain would already hold. Without any funds a sim leg cannot lock
// anything.
type Fund struct {
	Token   string `json:"token"`
	Account string `json:"account"`
	Amount  string `json:"amount"`
}

type Config struct {
	Addr        string `json:"addr"`
	RPCUser     string `json:"rpcUser"`
	RPCPassword string `json:"rpcPassword"`

	DB       string `json:"db"`
	RedisURL string `json:"redisUrl,omitempty"`

	Source ChainConfig `json:"source"`
	Dest   ChainConfig `json:"dest"`

	PollSeconds   int64 `json:"pollSeconds,omitempty"`
	MarginSeconds int64 `json:"marginSeconds,omitempty"`
}

func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %v: %v", path, err)
	}
	if config.Addr == "" {
		config.Addr = "localhost:8080"
	}
	if config.DB == "" {
		config.DB = "fusion.db"
	}
	return config, nil
}
