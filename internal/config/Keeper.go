package config

import (
	"errors"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/state"
	"github.com/elys-network/defindex/internal/utils"
)

// Keeper cron specs. An empty spec disables the job.
var (
	HarvestSchedule    string
	LockFeesSchedule   string
	CollectSchedule    string
	DistributeSchedule string
	RebalanceSchedule  string

	// RebalanceMaxUnwindBps caps the share of an asset unwound by one keeper rebalance.
	RebalanceMaxUnwindBps uint32
	// RebalanceMinMove skips keeper rebalance moves below this amount.
	RebalanceMinMove sdkmath.Int
)

func loadKeeperConfig() error {
	HarvestSchedule = getEnvOrDefault("KEEPER_HARVEST_SCHEDULE", "")
	LockFeesSchedule = getEnvOrDefault("KEEPER_LOCK_FEES_SCHEDULE", "@every 1h")
	CollectSchedule = getEnvOrDefault("KEEPER_COLLECT_SCHEDULE", "@every 6h")
	DistributeSchedule = getEnvOrDefault("KEEPER_DISTRIBUTE_SCHEDULE", "@daily")
	RebalanceSchedule = getEnvOrDefault("KEEPER_REBALANCE_SCHEDULE", "")

	maxUnwind, err := getEnvAsInt("KEEPER_REBALANCE_MAX_UNWIND_BPS", 0)
	if err != nil {
		return err
	}
	if maxUnwind < 0 {
		return errors.New("environment variable KEEPER_REBALANCE_MAX_UNWIND_BPS cannot be negative")
	}
	RebalanceMaxUnwindBps = uint32(maxUnwind)

	minMove := getEnvOrDefault("KEEPER_REBALANCE_MIN_MOVE", "1")
	RebalanceMinMove, err = utils.ParseAmount(minMove)
	if err != nil {
		return errors.Join(errors.New("environment variable KEEPER_REBALANCE_MIN_MOVE must be a non negative integer, got: "+minMove), err)
	}
	return nil
}

// LoadDBConfig reads the journal database settings. ok is false when DB_NAME is unset,
// which disables the journal.
func LoadDBConfig() (cfg state.DBConfig, ok bool, err error) {
	cfg.DBName = getEnvOrDefault("DB_NAME", "")
	if cfg.DBName == "" {
		return cfg, false, nil
	}
	cfg.Host = getEnvOrDefault("DB_HOST", "localhost")
	cfg.Port, err = getEnvAsInt("DB_PORT", 5432)
	if err != nil {
		return cfg, false, err
	}
	cfg.User, err = getEnv("DB_USER")
	if err != nil {
		return cfg, false, err
	}
	cfg.Password = getEnvOrDefault("DB_PASSWORD", "")
	cfg.SSLMode = getEnvOrDefault("DB_SSLMODE", "disable")
	return cfg, true, nil
}
