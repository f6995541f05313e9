// Package config loads facilitator configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// NetworkConfig is one statically-known EVM network entry.
type NetworkConfig struct {
	Slug                  string
	ChainID               uint64
	Name                  string
	RPCEnv                string
	RequiredConfirmations uint64
	DefaultToken          string
}

// DefaultNetworks mirrors spec.md's recognized per-network RPC URL
// environment variables (§6).
var DefaultNetworks = []NetworkConfig{
	{Slug: "base-sepolia", ChainID: 84532, Name: "Base Sepolia", RPCEnv: "BASE_SEPOLIA_RPC_URL", RequiredConfirmations: 2, DefaultToken: "usdc"},
	{Slug: "ethereum-sepolia", ChainID: 11155111, Name: "Ethereum Sepolia", RPCEnv: "ETHEREUM_SEPOLIA_RPC_URL", RequiredConfirmations: 3, DefaultToken: "usdc"},
	{Slug: "base", ChainID: 8453, Name: "Base", RPCEnv: "BASE_MAINNET_RPC_URL", RequiredConfirmations: 3, DefaultToken: "usdc"},
	{Slug: "ethereum", ChainID: 1, Name: "Ethereum", RPCEnv: "ETHEREUM_MAINNET_RPC_URL", RequiredConfirmations: 12, DefaultToken: "usdc"},
	{Slug: "0g-mainnet", ChainID: 16661, Name: "0G Mainnet", RPCEnv: "ZG_MAINNET_RPC_URL", RequiredConfirmations: 3, DefaultToken: "w0g"},
	{Slug: "0g-testnet", ChainID: 16600, Name: "0G Testnet", RPCEnv: "ZG_TESTNET_RPC_URL", RequiredConfirmations: 2, DefaultToken: "w0g"},
	{Slug: "skale-base-sepolia", ChainID: 1351057110, Name: "SKALE Base Sepolia", RPCEnv: "SKALE_BASE_SEPOLIA_RPC_URL", RequiredConfirmations: 1, DefaultToken: "usdc"},
}

// TokenConfig describes one token entry across networks.
type TokenConfig struct {
	Symbol          string
	Decimals        uint8
	SupportsEIP3009 bool
	// EIP712Name/EIP712Version feed the domain separator used by the
	// Verifier's offline signature cross-check; only meaningful when
	// SupportsEIP3009 is true.
	EIP712Name    string
	EIP712Version string
	// AddressEnv maps network slug -> environment variable holding the
	// contract address on that network. A network slug absent here means
	// the token is unsupported on that network.
	AddressEnv map[string]string
}

// DefaultTokens mirrors the token catalog implied by spec.md's data model.
var DefaultTokens = []TokenConfig{
	{
		Symbol:          "usdc",
		Decimals:        6,
		SupportsEIP3009: true,
		EIP712Name:      "USD Coin",
		EIP712Version:   "2",
		AddressEnv: map[string]string{
			"base-sepolia":       "USDC_BASE_SEPOLIA_ADDRESS",
			"ethereum-sepolia":   "USDC_ETHEREUM_SEPOLIA_ADDRESS",
			"base":               "USDC_BASE_ADDRESS",
			"ethereum":           "USDC_ETHEREUM_ADDRESS",
			"skale-base-sepolia": "USDC_SKALE_BASE_SEPOLIA_ADDRESS",
		},
	},
	{
		Symbol:          "w0g",
		Decimals:        18,
		SupportsEIP3009: false,
		AddressEnv: map[string]string{
			"0g-mainnet": "W0G_MAINNET_ADDRESS",
			"0g-testnet": "W0G_TESTNET_ADDRESS",
		},
	},
}

// Config holds all configuration for the facilitator service.
type Config struct {
	Port               int
	LogLevel           string
	FacilitatorMode    string
	DefaultChain       string

	FacilitatorPrivateKey string
	TreasuryAddress       string

	RedisURL    string
	TxStoreDSN  string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	ChaoschainEnabled bool
	AgentRegistryURL  string

	FeeBps int64
}

// Load loads configuration from environment variables, matching the
// reference facilitator's getEnv/getEnvInt shape.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:            getEnvInt("PORT", 8402),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		FacilitatorMode: getEnv("FACILITATOR_MODE", "managed"),
		DefaultChain:    getEnv("DEFAULT_CHAIN", "base-sepolia"),

		FacilitatorPrivateKey: getEnv("FACILITATOR_PRIVATE_KEY", ""),
		TreasuryAddress:       getEnv("TREASURY_ADDRESS", ""),

		RedisURL:   getEnv("REDIS_URL", ""),
		TxStoreDSN: getEnv("TX_STORE_DSN", ""),

		RateLimitRequests: getEnvInt("RATE_LIMIT_REQUESTS", 600),
		RateLimitWindow:   time.Duration(getEnvInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		ChaoschainEnabled: getEnvBool("CHAOSCHAIN_ENABLED", false),
		AgentRegistryURL:  getEnv("AGENT_REGISTRY_URL", ""),

		FeeBps: int64(getEnvInt("FEE_BPS", 100)),
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}
