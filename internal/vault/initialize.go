package vault

import (
	"context"
	"errors"
	"fmt"

	sdktypes "github.com/cosmos/cosmos-sdk/types"

	"github.com/elys-network/defindex/internal/types"
)

// Initialize configures the vault once. Every strategy must report its asset as its underlying.
func (v *Vault) Initialize(ctx context.Context, params types.InitParams) error {
	_, err := execute(ctx, v, types.OperationInitialize, params.Roles[types.RoleManager], func(c *call) (types.InitParams, error) {
		initialized, err := c.repo.isInitialized()
		if err != nil {
			return types.InitParams{}, err
		}
		if initialized {
			return types.InitParams{}, ErrAlreadyInitialized
		}

		if err := validateInitParams(params); err != nil {
			return types.InitParams{}, err
		}
		if err := c.verifyStrategyAssets(params.Assets); err != nil {
			return types.InitParams{}, err
		}

		protocolReceiver := params.ProtocolReceiver
		if protocolReceiver == "" {
			if protocolReceiver, err = c.factoryFeeReceiver(params.Factory); err != nil {
				return types.InitParams{}, err
			}
		}

		for _, role := range types.AllRoles {
			if err := c.repo.setRole(role, params.Roles[role]); err != nil {
				return types.InitParams{}, err
			}
		}
		fees := types.Fees{VaultFeeBps: params.VaultFeeBps, ProtocolFeeBps: params.ProtocolFeeBps}
		if err := c.repo.setFees(fees); err != nil {
			return types.InitParams{}, err
		}
		if err := c.repo.setString(keyProtocolReceiver, protocolReceiver); err != nil {
			return types.InitParams{}, err
		}
		if err := c.repo.setString(keyFactory, params.Factory); err != nil {
			return types.InitParams{}, err
		}
		if err := c.repo.setString(keyRouter, params.Router); err != nil {
			return types.InitParams{}, err
		}
		md := types.Metadata{Name: params.Name, Symbol: params.Symbol, Decimals: types.ShareDecimals}
		if err := c.repo.setMetadata(md); err != nil {
			return types.InitParams{}, err
		}
		assets := make([]types.AssetStrategySet, len(params.Assets))
		for i, asset := range params.Assets {
			assets[i] = types.AssetStrategySet{
				Address:    asset.Address,
				Strategies: append([]types.Strategy(nil), asset.Strategies...),
			}
		}
		if err := c.repo.setAssets(assets); err != nil {
			return types.InitParams{}, err
		}
		if err := c.repo.setLastFeeAssessment(c.v.clock.Now()); err != nil {
			return types.InitParams{}, err
		}
		if err := c.repo.setInitialized(); err != nil {
			return types.InitParams{}, err
		}

		c.log.Info().
			Int("assetCount", len(assets)).
			Uint32("vaultFeeBps", fees.VaultFeeBps).
			Uint32("protocolFeeBps", fees.ProtocolFeeBps).
			Str("symbol", md.Symbol).
			Msg("Vault: initialized")

		params.ProtocolReceiver = protocolReceiver
		return params, nil
	})
	return err
}

// validateInitParams performs the checks that need no collaborator.
func validateInitParams(params types.InitParams) error {
	if len(params.Assets) == 0 {
		return errors.Join(ErrNoAssetAllocation, errors.New("at least one asset is required"))
	}

	seenAssets := make(map[string]struct{}, len(params.Assets))
	seenStrategies := make(map[string]struct{})
	for i, asset := range params.Assets {
		if err := sdktypes.ValidateDenom(asset.Address); err != nil {
			return errors.Join(ErrInvalidAsset, fmt.Errorf("asset %d: %w", i, err))
		}
		if _, dup := seenAssets[asset.Address]; dup {
			return errors.Join(ErrInvalidAsset, fmt.Errorf("asset %s listed twice", asset.Address))
		}
		seenAssets[asset.Address] = struct{}{}

		for j, strategy := range asset.Strategies {
			if strategy.Address == "" {
				return errors.Join(ErrInvalidInitParams, fmt.Errorf("asset %s strategy %d has no address", asset.Address, j))
			}
			if _, dup := seenStrategies[strategy.Address]; dup {
				return errors.Join(ErrInvalidInitParams, fmt.Errorf("strategy %s listed twice", strategy.Address))
			}
			seenStrategies[strategy.Address] = struct{}{}
		}
	}

	for _, role := range types.AllRoles {
		if params.Roles[role] == "" {
			return errors.Join(ErrRoleNotSet, fmt.Errorf("role %s", role))
		}
	}

	if int64(params.VaultFeeBps)+int64(params.ProtocolFeeBps) >= types.MaxBPS {
		return errors.Join(ErrInvalidFee,
			fmt.Errorf("vault fee %d + protocol fee %d must stay below %d bps", params.VaultFeeBps, params.ProtocolFeeBps, types.MaxBPS))
	}

	if params.Factory == "" {
		return errors.Join(ErrInvalidInitParams, errors.New("factory address cannot be empty"))
	}
	if params.Name == "" || params.Symbol == "" {
		return errors.Join(ErrInvalidMetadata, errors.New("name and symbol cannot be empty"))
	}
	return nil
}

// verifyStrategyAssets checks that every strategy manages the asset it is listed under.
func (c *call) verifyStrategyAssets(assets []types.AssetStrategySet) error {
	for _, asset := range assets {
		for _, strategy := range asset.Strategies {
			client, err := c.strategy(strategy.Address)
			if err != nil {
				return err
			}
			underlying, err := client.Asset(c.contractCtx())
			if err != nil {
				return errors.Join(ErrStrategyQuery, fmt.Errorf("asset of %s: %w", strategy.Address, err))
			}
			if underlying != asset.Address {
				return errors.Join(ErrStrategyDoesNotSupportAsset,
					fmt.Errorf("strategy %s manages %s, listed under %s", strategy.Address, underlying, asset.Address))
			}
		}
	}
	return nil
}
