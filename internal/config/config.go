package config

import (
	"errors"
	"os"
	"strconv"

	"github.com/rs/zerolog/log"
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultName is the ERC20-style name of the cellar's share token.
	VaultName string
	// VaultSymbol is the share token symbol.
	VaultSymbol string
	// BaseDenom is the denom the cellar accounts in (deposits, valuation).
	BaseDenom string
	// BaseDecimals is the base denom's exponent, used only for display-unit
	// conversion in logs and API responses.
	BaseDecimals int

	// StrategistAddress is the only account allowed to submit adaptor batches
	// and manage the position list.
	StrategistAddress string

	// WebPort is the port for the HTTP API.
	WebPort string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
// All environment variables are required and must be set.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultName, err = getEnv("CELLAR_NAME")
	if err != nil {
		return err
	}

	VaultSymbol, err = getEnv("CELLAR_SYMBOL")
	if err != nil {
		return err
	}

	BaseDenom, err = getEnv("CELLAR_BASE_DENOM")
	if err != nil {
		return err
	}

	StrategistAddress, err = getEnv("CELLAR_STRATEGIST")
	if err != nil {
		return err
	}

	BaseDecimals = 6
	if v := os.Getenv("CELLAR_BASE_DECIMALS"); v != "" {
		d, convErr := strconv.Atoi(v)
		if convErr != nil || d < 0 || d > 18 {
			return errors.New("environment variable CELLAR_BASE_DECIMALS must be an integer between 0 and 18, got: " + v)
		}
		BaseDecimals = d
	}

	WebPort = os.Getenv("WEB_PORT")
	if WebPort == "" {
		WebPort = "8080"
	}

	// Guardrail parameters are optional and fall back to defaults.
	if err := loadGuardrailOverrides(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultName", VaultName).
		Str("BaseDenom", BaseDenom).
		Str("Strategist", StrategistAddress).
		Msg("Configuration loaded successfully.")

	return nil
}

// getEnv retrieves a string environment variable. Returns error if not set.
func getEnv(key string) (string, error) {
	if value, exists := os.LookupEnv(key); exists {
		return value, nil
	}
	return "", errors.New("environment variable " + key + " is required but not set")
}

// getEnvAsInt64 retrieves an environment variable as an int64. Returns error if not set or invalid.
func getEnvAsInt64(key string) (int64, error) {
	valueStr, err := getEnv(key)
	if err != nil {
		return 0, err
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int64, got: " + valueStr)
	}
	return value, nil
}
