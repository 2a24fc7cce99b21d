// Package config holds the node's explicit configuration as a plain
// struct — no package-level singleton. Every component that needs
// configuration receives a *Config at construction time, which keeps
// tests able to run several independently-configured nodes in one process.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config is the node's configuration record: difficulty, miner address,
// target block interval, mining reward, minimum fee, maximum transactions
// per block, maximum peers — plus the ambient settings needed to run a
// single node process.
type Config struct {
	// Consensus / mining parameters.
	InitialDifficulty int
	MinerAddress      string
	TargetInterval    time.Duration
	MiningReward      float64
	MinFee            float64
	MaxTxPerBlock     int
	MaxPeers          int

	// Network identity, surfaced on the chain-info endpoint.
	NetworkName string
	TokenName   string
	TokenSymbol string

	// Reserved senders that bypass balance checks and the fee floor. Any
	// transaction naming one is accepted as such; where it was submitted
	// from is not checked.
	ReservedSenders []string

	// Process / transport.
	Port         string
	PublicNodeURL string
	SeedURLs      []string

	// Timing knobs for the various background workers.
	MinerPollInterval    time.Duration
	DiscoveryBaseInterval time.Duration
	DiscoveryMaxInterval  time.Duration
	HealthInterval        time.Duration
	SyncInterval          time.Duration
	SyncCooldown          time.Duration
	PeerRPCTimeout        time.Duration
	UnhealthyEvictionN    int

	// Storage.
	StorePath string

	// Logging.
	LogLevel  string
	LogPretty bool
}

// Default returns a Config populated with the node's baseline constants,
// before CLI/env overrides are applied.
func Default() *Config {
	return &Config{
		InitialDifficulty: 3,
		MiningReward:      12.5,
		MinFee:            0.0005,
		MaxTxPerBlock:     50,
		MaxPeers:          25,

		NetworkName: "ekehi",
		TokenName:   "Ekehi",
		TokenSymbol: "EKH",

		ReservedSenders: []string{"FAUCET", "ECOSYSTEM"},

		TargetInterval: 30 * time.Second,

		MinerPollInterval:    5 * time.Second,
		DiscoveryBaseInterval: 30 * time.Second,
		DiscoveryMaxInterval:  5 * time.Minute,
		HealthInterval:        20 * time.Second,
		SyncInterval:          60 * time.Second,
		SyncCooldown:          5 * time.Second,
		PeerRPCTimeout:        4 * time.Second,
		UnhealthyEvictionN:    3,

		StorePath: "ekehi-node.db",

		LogLevel:  "INFO",
		LogPretty: true,
	}
}

// ApplyEnv overrides fields from the process environment. Call after
// Default() and after CLI args are merged, so env always wins — this lets
// a hosting platform that assigns a public URL at deploy time override
// whatever was passed on the command line.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("EKEHI_PUBLIC_URL"); v != "" {
		c.PublicNodeURL = v
	}
	if v := os.Getenv("EKEHI_PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("EKEHI_MINER_ADDRESS"); v != "" {
		c.MinerAddress = v
	}
	if v := os.Getenv("EKEHI_STORE_PATH"); v != "" {
		c.StorePath = v
	}
	if v := os.Getenv("EKEHI_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("EKEHI_LOG_PRETTY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.LogPretty = b
		}
	}
	if v := os.Getenv("EKEHI_MIN_FEE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MinFee = f
		}
	}
	if v := os.Getenv("EKEHI_MINING_REWARD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.MiningReward = f
		}
	}
}
