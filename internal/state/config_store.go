package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/elys-network/defindex/internal/types"
)

// ErrNoActiveConfig is returned when a vault has no active stored configuration.
var ErrNoActiveConfig = errors.New("no active vault config")

// SaveVaultConfig stores init params under a version, optionally making it the active one.
func SaveVaultConfig(ctx context.Context, vaultAddress string, version int, params types.InitParams, makeActive bool) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("failed to marshal vault config: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if makeActive {
		_, err = tx.ExecContext(ctx, "UPDATE vault_configs SET is_active = FALSE WHERE vault_address = $1 AND is_active = TRUE", vaultAddress)
		if err != nil {
			return fmt.Errorf("failed to deactivate previous vault configs: %w", err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_configs (vault_address, version, is_active, params)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vault_address, version) DO UPDATE SET
			is_active = EXCLUDED.is_active,
			params = EXCLUDED.params,
			activated_at = CASE WHEN EXCLUDED.is_active THEN CURRENT_TIMESTAMP ELSE vault_configs.activated_at END;`,
		vaultAddress, version, makeActive, paramsJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save vault config version %d: %w", version, err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit vault config: %w", err)
	}

	log.Info().Str("vault", vaultAddress).Int("version", version).Bool("active", makeActive).Msg("Vault config saved")
	return nil
}

// LoadActiveVaultConfig returns the active init params of a vault and their version.
func LoadActiveVaultConfig(ctx context.Context, vaultAddress string) (types.InitParams, int, error) {
	var params types.InitParams
	if DB == nil {
		return params, 0, ErrDBNotInitialized
	}

	var version int
	var paramsJSON []byte
	err := DB.QueryRowContext(ctx, `
		SELECT version, params FROM vault_configs
		WHERE vault_address = $1 AND is_active = TRUE
		ORDER BY activated_at DESC
		LIMIT 1;`, vaultAddress).Scan(&version, &paramsJSON)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return params, 0, ErrNoActiveConfig
		}
		return params, 0, fmt.Errorf("failed to load active vault config: %w", err)
	}

	if err := json.Unmarshal(paramsJSON, &params); err != nil {
		return params, 0, fmt.Errorf("failed to unmarshal vault config version %d: %w", version, err)
	}
	return params, version, nil
}
