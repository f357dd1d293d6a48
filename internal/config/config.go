package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Ledger configuration
	RPCURL        string
	WalletKeypair string
	ProgramID     string
	Commitment    string

	// Due scan configuration
	LookAheadSeconds int64
	BatchSize        int

	// Activation scan configuration
	NewSubsStartSlot       uint64
	NewSubsFetchLimit      int
	NewSubsMaxTransactions int
	NewSubsBeforeSignature string

	// PayPal configuration (absence of credentials disables live payouts)
	PayPalAPIBase      string
	PayPalClientID     string
	PayPalClientSecret string

	// Journal database configuration
	DatabaseURL string

	// Redis configuration (optional signature cache)
	RedisURL string

	// Ops API configuration
	Port      string
	Mode      string
	OpsAPIKey string

	// Brevo run report configuration
	BrevoAPIKey    string
	BrevoFromEmail string
	AlertEmail     string
}

const (
	// DefaultLookAheadSeconds is the default due-scan look-ahead window (24 hours).
	DefaultLookAheadSeconds = 24 * 60 * 60
	// DefaultBatchSize is the per-call account limit of find_due_subscriptions.
	DefaultBatchSize = 16
	// BillingPeriodSeconds must match the on-chain billing period constant (30 days).
	BillingPeriodSeconds = 30 * 24 * 60 * 60
)

var AppConfig *Config

func InitConfig() error {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		// Ignore error if .env file doesn't exist
	}

	AppConfig = &Config{
		RPCURL:        getEnv("RPC_URL", "https://api.devnet.solana.com"),
		WalletKeypair: getEnv("WALLET_KEYPAIR", defaultKeypairPath()),
		ProgramID:     getEnv("PROGRAM_ID", ""),
		Commitment:    getEnv("COMMITMENT", "confirmed"),

		LookAheadSeconds: getEnvInt64("LOOK_AHEAD_SECONDS", DefaultLookAheadSeconds),
		BatchSize:        getEnvInt("BATCH_SIZE", DefaultBatchSize),

		NewSubsStartSlot:       getEnvUint64("NEW_SUBS_START_SLOT", 0),
		NewSubsFetchLimit:      getEnvInt("NEW_SUBS_FETCH_LIMIT", 100),
		NewSubsMaxTransactions: getEnvInt("NEW_SUBS_MAX_TX", 1000),
		NewSubsBeforeSignature: getEnv("NEW_SUBS_BEFORE_SIGNATURE", ""),

		PayPalAPIBase:      getEnv("PAYPAL_API_BASE", "https://api-m.sandbox.paypal.com"),
		PayPalClientID:     getEnv("PAYPAL_CLIENT_ID", ""),
		PayPalClientSecret: getEnv("PAYPAL_CLIENT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		Port:      getEnv("PORT", "8080"),
		Mode:      getEnv("GIN_MODE", "debug"),
		OpsAPIKey: getEnv("OPS_API_KEY", ""),

		BrevoAPIKey:    getEnv("BREVO_API_KEY", ""),
		BrevoFromEmail: getEnv("BREVO_FROM_EMAIL", ""),
		AlertEmail:     getEnv("ALERT_EMAIL", ""),
	}

	return nil
}

func defaultKeypairPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "id.json"
	}
	return home + "/.config/solana/id.json"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvUint64(key string, defaultValue uint64) uint64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseUint(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
