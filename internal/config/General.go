package config

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/defindex/internal/store"
)

// Vault modes.
const (
	ModeSim    = "sim"
	ModeRemote = "remote"
)

// Store backends.
const (
	BackendMemDB     = store.BackendMemDB
	BackendGoLevelDB = store.BackendGoLevelDB
)

// AppConfig holds all application configuration loaded from environment variables.
// These are populated at startup by the LoadConfig function.
var (
	// VaultAddress is the address the vault holds funds and shares under.
	VaultAddress string
	// VaultMode selects the collaborators: the in-process sim host or a remote gRPC host.
	VaultMode string
	// VaultConfigPath is the YAML bootstrap file defining the vault.
	VaultConfigPath string
	// OperatorAddress is the principal the keeper jobs sign as.
	OperatorAddress string

	// StoreBackend is the cosmos-db backend of the vault state.
	StoreBackend string
	// StoreDir is the data directory of persistent store backends.
	StoreDir string

	// WebPort is the port of the read-only HTTP API.
	WebPort string

	// LogLevel and LogFormat configure the global logger.
	LogLevel  string
	LogFormat string
)

// LoadConfig loads configuration from environment variables and sets the global config vars.
func LoadConfig() error {
	log.Info().Msg("Loading application configuration from environment variables...")

	var err error

	VaultAddress, err = getEnv("VAULT_ADDRESS")
	if err != nil {
		return err
	}

	VaultConfigPath, err = getEnv("VAULT_CONFIG_PATH")
	if err != nil {
		return err
	}

	VaultMode = getEnvOrDefault("VAULT_MODE", ModeSim)
	if VaultMode != ModeSim && VaultMode != ModeRemote {
		return errors.New("environment variable VAULT_MODE must be one of sim, remote, got: " + VaultMode)
	}

	OperatorAddress = getEnvOrDefault("OPERATOR_ADDRESS", "")

	StoreBackend = getEnvOrDefault("STORE_BACKEND", BackendMemDB)
	if StoreBackend != BackendMemDB && StoreBackend != BackendGoLevelDB {
		return errors.New("environment variable STORE_BACKEND must be one of memdb, goleveldb, got: " + StoreBackend)
	}

	StoreDir = getEnvOrDefault("STORE_DIR", "~/.defindex/data")
	// Expand the tilde (~) in the store directory path to the user's home directory.
	if strings.HasPrefix(StoreDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		StoreDir = filepath.Join(home, StoreDir[2:])
	}

	WebPort = getEnvOrDefault("WEB_PORT", "8080")
	LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	LogFormat = getEnvOrDefault("LOG_FORMAT", "console")

	// Load endpoint configuration
	if err := loadEndpointConfig(); err != nil {
		return err
	}

	if err := loadKeeperConfig(); err != nil {
		return err
	}

	log.Debug().
		Str("VaultAddress", VaultAddress).
		Str("VaultMode", VaultMode).
		Str("StoreBackend", StoreBackend).
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

// getEnvOrDefault retrieves a string environment variable, falling back when it is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an optional environment variable as an int.
func getEnvAsInt(key string, fallback int) (int, error) {
	valueStr := getEnvOrDefault(key, "")
	if valueStr == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, errors.New("environment variable " + key + " must be a valid int, got: " + valueStr)
	}
	return value, nil
}
