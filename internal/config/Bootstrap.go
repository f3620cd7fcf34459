package config

import (
	"context"
	"errors"
	"fmt"
	"os"

	sdkmath "cosmossdk.io/math"
	"gopkg.in/yaml.v3"

	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

var ErrInvalidBootstrap = errors.New("invalid bootstrap file")

// Bootstrap is the YAML definition of a vault and, in sim mode, of its simulated collaborators.
type Bootstrap struct {
	Vault VaultDefinition `yaml:"vault"`
	Sim   *SimDefinition  `yaml:"sim,omitempty"`
}

// VaultDefinition mirrors types.InitParams with YAML friendly role keys.
type VaultDefinition struct {
	Name             string                   `yaml:"name"`
	Symbol           string                   `yaml:"symbol"`
	VaultFeeBps      uint32                   `yaml:"vault_fee_bps"`
	ProtocolFeeBps   uint32                   `yaml:"protocol_fee_bps"`
	ProtocolReceiver string                   `yaml:"protocol_receiver"`
	Factory          string                   `yaml:"factory"`
	Router           string                   `yaml:"router"`
	Roles            map[string]string        `yaml:"roles"`
	Assets           []types.AssetStrategySet `yaml:"assets"`
	// Targets are the keeper's rebalance weights per strategy in basis points.
	Targets map[string]uint32 `yaml:"targets,omitempty"`
}

// SimDefinition seeds the in-process host.
type SimDefinition struct {
	FactoryFee uint32        `yaml:"factory_fee_bps"`
	Strategies []SimStrategy `yaml:"strategies"`
	Pairs      []SimPair     `yaml:"pairs"`
	Balances   []SimBalance  `yaml:"balances"`
}

// SimStrategy is a simulated strategy. A zero APR makes it a HODL strategy.
type SimStrategy struct {
	Address string `yaml:"address"`
	Asset   string `yaml:"asset"`
	AprBps  uint32 `yaml:"apr_bps"`
	Reserve string `yaml:"reserve"`
}

// SimPair is a router pair with its initial liquidity.
type SimPair struct {
	TokenA  string `yaml:"token_a"`
	AmountA string `yaml:"amount_a"`
	TokenB  string `yaml:"token_b"`
	AmountB string `yaml:"amount_b"`
}

// SimBalance is an initial token balance.
type SimBalance struct {
	Denom  string `yaml:"denom"`
	Holder string `yaml:"holder"`
	Amount string `yaml:"amount"`
}

// LoadBootstrap reads and validates a bootstrap file.
func LoadBootstrap(path string) (*Bootstrap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read bootstrap file %s: %w", path, err)
	}
	return ParseBootstrap(data)
}

// ParseBootstrap decodes a bootstrap document.
func ParseBootstrap(data []byte) (*Bootstrap, error) {
	var b Bootstrap
	if err := yaml.Unmarshal(data, &b); err != nil {
		return nil, errors.Join(ErrInvalidBootstrap, err)
	}
	if len(b.Vault.Assets) == 0 {
		return nil, errors.Join(ErrInvalidBootstrap, errors.New("vault defines no assets"))
	}
	for role := range b.Vault.Roles {
		if !knownRole(types.Role(role)) {
			return nil, errors.Join(ErrInvalidBootstrap, fmt.Errorf("unknown role %q", role))
		}
	}
	if b.Sim != nil {
		if _, err := b.Sim.amounts(); err != nil {
			return nil, errors.Join(ErrInvalidBootstrap, err)
		}
	}
	return &b, nil
}

func knownRole(role types.Role) bool {
	for _, r := range types.AllRoles {
		if r == role {
			return true
		}
	}
	return false
}

// InitParams converts the vault definition. Validation is left to the vault's Initialize.
func (b *Bootstrap) InitParams() types.InitParams {
	roles := make(map[types.Role]string, len(b.Vault.Roles))
	for role, addr := range b.Vault.Roles {
		roles[types.Role(role)] = addr
	}
	return types.InitParams{
		Assets:           b.Vault.Assets,
		Roles:            roles,
		VaultFeeBps:      b.Vault.VaultFeeBps,
		ProtocolReceiver: b.Vault.ProtocolReceiver,
		ProtocolFeeBps:   b.Vault.ProtocolFeeBps,
		Factory:          b.Vault.Factory,
		Router:           b.Vault.Router,
		Name:             b.Vault.Name,
		Symbol:           b.Vault.Symbol,
	}
}

// amounts parses every amount of the definition, keyed by its position in the document.
func (s *SimDefinition) amounts() (map[string]sdkmath.Int, error) {
	parsed := make(map[string]sdkmath.Int)
	parse := func(key, raw string) error {
		if raw == "" {
			parsed[key] = sdkmath.ZeroInt()
			return nil
		}
		amount, err := utils.ParseAmount(raw)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		parsed[key] = amount
		return nil
	}
	for i, st := range s.Strategies {
		if err := parse(fmt.Sprintf("strategies[%d].reserve", i), st.Reserve); err != nil {
			return nil, err
		}
	}
	for i, p := range s.Pairs {
		if err := parse(fmt.Sprintf("pairs[%d].amount_a", i), p.AmountA); err != nil {
			return nil, err
		}
		if err := parse(fmt.Sprintf("pairs[%d].amount_b", i), p.AmountB); err != nil {
			return nil, err
		}
	}
	for i, bal := range s.Balances {
		if err := parse(fmt.Sprintf("balances[%d].amount", i), bal.Amount); err != nil {
			return nil, err
		}
	}
	return parsed, nil
}

// SeedHost registers the vault's tokens, strategies, router and factory on a sim host.
// With fund set it also mints strategy reserves, pair liquidity and the initial balances;
// a host reopened over a persistent store is seeded without funding.
func (b *Bootstrap) SeedHost(ctx context.Context, host *sim.Host, fund bool) error {
	def := b.Sim
	if def == nil {
		def = &SimDefinition{}
	}
	amounts, err := def.amounts()
	if err != nil {
		return errors.Join(ErrInvalidBootstrap, err)
	}

	for _, asset := range b.Vault.Assets {
		host.AddToken(asset.Address)
	}
	for _, pair := range def.Pairs {
		host.AddToken(pair.TokenA)
		host.AddToken(pair.TokenB)
	}
	for _, bal := range def.Balances {
		host.AddToken(bal.Denom)
	}

	for i, st := range def.Strategies {
		var err error
		if st.AprBps == 0 {
			_, err = host.AddHodlStrategy(st.Address, st.Asset)
		} else {
			_, err = host.AddFixedAPRStrategy(st.Address, st.Asset, st.AprBps)
		}
		if err != nil {
			return fmt.Errorf("failed to add strategy %s: %w", st.Address, err)
		}
		if reserve := amounts[fmt.Sprintf("strategies[%d].reserve", i)]; fund && reserve.IsPositive() {
			if err := host.Mint(ctx, st.Asset, st.Address, reserve); err != nil {
				return fmt.Errorf("failed to fund strategy %s: %w", st.Address, err)
			}
		}
	}

	if b.Vault.Router != "" {
		router := host.AddRouter(b.Vault.Router)
		for i, pair := range def.Pairs {
			if _, err := router.CreatePair(pair.TokenA, pair.TokenB); err != nil {
				return fmt.Errorf("failed to create pair %s/%s: %w", pair.TokenA, pair.TokenB, err)
			}
			if !fund {
				continue
			}
			amountA := amounts[fmt.Sprintf("pairs[%d].amount_a", i)]
			amountB := amounts[fmt.Sprintf("pairs[%d].amount_b", i)]
			if err := router.AddLiquidity(ctx, pair.TokenA, amountA, pair.TokenB, amountB); err != nil {
				return fmt.Errorf("failed to seed pair %s/%s: %w", pair.TokenA, pair.TokenB, err)
			}
		}
	}

	if b.Vault.Factory != "" {
		host.AddFactory(b.Vault.Factory, def.FactoryFee, b.Vault.ProtocolReceiver)
	}

	if !fund {
		return nil
	}
	for i, bal := range def.Balances {
		if err := host.Mint(ctx, bal.Denom, bal.Holder, amounts[fmt.Sprintf("balances[%d].amount", i)]); err != nil {
			return fmt.Errorf("failed to fund %s: %w", bal.Holder, err)
		}
	}
	return nil
}
