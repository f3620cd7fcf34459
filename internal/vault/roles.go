package vault

import (
	"context"
	"errors"
	"fmt"

	"github.com/elys-network/defindex/internal/types"
)

type roleChange struct {
	Role    types.Role `json:"role"`
	Address string     `json:"address"`
}

// SetRole assigns a role. Only the manager may do so.
func (v *Vault) SetRole(ctx context.Context, caller string, role types.Role, addr string) error {
	_, err := execute(ctx, v, types.OperationSetRole, caller, func(c *call) (roleChange, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return roleChange{}, err
		}
		if !isKnownRole(role) {
			return roleChange{}, errors.Join(ErrRoleNotSet, fmt.Errorf("unknown role %q", role))
		}
		if addr == "" {
			return roleChange{}, errors.Join(ErrRoleNotSet, fmt.Errorf("role %s cannot be cleared", role))
		}
		if err := c.repo.setRole(role, addr); err != nil {
			return roleChange{}, err
		}
		c.log.Info().Str("role", string(role)).Str("address", addr).Msg("Roles: updated")
		return roleChange{Role: role, Address: addr}, nil
	})
	return err
}

func isKnownRole(role types.Role) bool {
	for _, known := range types.AllRoles {
		if role == known {
			return true
		}
	}
	return false
}

// GetRole returns the holder of role.
func (v *Vault) GetRole(ctx context.Context, role types.Role) (string, error) {
	return query(ctx, v, func(c *call) (string, error) {
		return c.repo.getRole(role)
	})
}

// PauseStrategy excludes a strategy from new investment. The manager or emergency manager may pause.
func (v *Vault) PauseStrategy(ctx context.Context, caller, strategy string) error {
	_, err := execute(ctx, v, types.OperationPauseStrategy, caller, func(c *call) (string, error) {
		if err := c.requireRole(caller, types.RoleManager, types.RoleEmergencyManager); err != nil {
			return "", err
		}
		return strategy, c.setPaused(strategy, true)
	})
	return err
}

// UnpauseStrategy readmits a strategy. Only the manager may unpause.
func (v *Vault) UnpauseStrategy(ctx context.Context, caller, strategy string) error {
	_, err := execute(ctx, v, types.OperationUnpauseStrategy, caller, func(c *call) (string, error) {
		if err := c.requireRole(caller, types.RoleManager); err != nil {
			return "", err
		}
		return strategy, c.setPaused(strategy, false)
	})
	return err
}

func (c *call) setPaused(strategy string, paused bool) error {
	assets, err := c.repo.getAssets()
	if err != nil {
		return err
	}
	assetIdx, strategyIdx, err := findStrategy(assets, strategy)
	if err != nil {
		return err
	}
	assets[assetIdx].Strategies[strategyIdx].Paused = paused
	if err := c.repo.setAssets(assets); err != nil {
		return err
	}
	c.log.Info().Str("strategy", strategy).Bool("paused", paused).Msg("Strategies: pause flag updated")
	return nil
}
