package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileConfig models the values read from config.json.
type FileConfig struct {
	Chain struct {
		ChainID        int64  `json:"chainId"`
		RPCURL         string `json:"rpcUrl"`
		EscrowContract string `json:"escrowContract"`
	} `json:"chain"`
	Escrow struct {
		WindowHours        int `json:"windowHours"`
		SlowThresholdSecs  int `json:"slowThresholdSeconds"`
		ConfirmTimeoutSecs int `json:"confirmTimeoutSeconds"`
		StatusPollSecs     int `json:"statusPollSeconds"`
	} `json:"escrow"`
	Oracle struct {
		CacheTTLSecs int    `json:"cacheTtlSeconds"`
		CoinbaseURL  string `json:"coinbaseUrl"`
		CoinGeckoURL string `json:"coingeckoUrl"`
	} `json:"oracle"`
	Secrets struct {
		HMACSecret string `json:"hmacSecret"`
	} `json:"secrets"`
	Timeouts struct {
		IdempotencyWindowSecs int `json:"idempotencyWindowSeconds"`
	} `json:"timeouts"`
}

// AppConfig ties together file values, environment overrides and derived
// durations.
type AppConfig struct {
	File    FileConfig
	Service ServiceConfig
	Chain   ChainConfig
	Escrow  EscrowConfig
	Oracle  OracleConfig
}

type ServiceConfig struct {
	HTTPPort          int
	HMACClockSkew     time.Duration
	IdempotencyWindow time.Duration
	BillStorePath     string
	PostgresDSN       string
}

type ChainConfig struct {
	ChainID        int64
	RPCURL         string
	PrivateKey     string
	EscrowContract string
}

type EscrowConfig struct {
	Window         time.Duration
	SlowThreshold  time.Duration
	ConfirmTimeout time.Duration
	StatusPoll     time.Duration
}

type OracleConfig struct {
	CacheTTL     time.Duration
	CoinbaseURL  string
	CoinGeckoURL string
}

const defaultConfigPath = "./config.json"

// Load aggregates configuration from disk and environment.
func Load() (*AppConfig, error) {
	path := envOr("CONFIG_PATH", defaultConfigPath)

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:          envOrInt("API_HTTP_PORT", 3000),
		HMACClockSkew:     time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
		IdempotencyWindow: time.Duration(orInt(fileCfg.Timeouts.IdempotencyWindowSecs, 300)) * time.Second,
		BillStorePath:     envOr("BILL_STORE_PATH", filepath.Join("data", "bills.db")),
		PostgresDSN:       envOr("POSTGRES_DSN", ""),
	}

	chainCfg := ChainConfig{
		ChainID:        fileCfg.Chain.ChainID,
		RPCURL:         envOr("CHAIN_RPC_URL", fileCfg.Chain.RPCURL),
		PrivateKey:     envOr("CHAIN_PRIVATE_KEY", ""),
		EscrowContract: envOr("ESCROW_CONTRACT", fileCfg.Chain.EscrowContract),
	}

	escrowCfg := EscrowConfig{
		Window:         time.Duration(orInt(fileCfg.Escrow.WindowHours, 7*24)) * time.Hour,
		SlowThreshold:  time.Duration(orInt(fileCfg.Escrow.SlowThresholdSecs, 60)) * time.Second,
		ConfirmTimeout: time.Duration(orInt(fileCfg.Escrow.ConfirmTimeoutSecs, 600)) * time.Second,
		StatusPoll:     time.Duration(orInt(fileCfg.Escrow.StatusPollSecs, 10)) * time.Second,
	}

	oracleCfg := OracleConfig{
		CacheTTL:     time.Duration(orInt(fileCfg.Oracle.CacheTTLSecs, 60)) * time.Second,
		CoinbaseURL:  or(fileCfg.Oracle.CoinbaseURL, "https://api.coinbase.com/v2/prices/ETH-USD/spot"),
		CoinGeckoURL: or(fileCfg.Oracle.CoinGeckoURL, "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"),
	}

	return &AppConfig{
		File:    *fileCfg,
		Service: serviceCfg,
		Chain:   chainCfg,
		Escrow:  escrowCfg,
		Oracle:  oracleCfg,
	}, nil
}

func loadFile(path string) (*FileConfig, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		// Missing file is fine: everything has a default or env override.
		return &FileConfig{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cfg FileConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func or(val, fallback string) string {
	if val != "" {
		return val
	}
	return fallback
}

func orInt(val, fallback int) int {
	if val > 0 {
		return val
	}
	return fallback
}
