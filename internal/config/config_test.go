package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
)

const sampleBootstrap = `
vault:
  name: DeFindex USDC
  symbol: dfUSDC
  vault_fee_bps: 1000
  protocol_fee_bps: 500
  protocol_receiver: protocol
  factory: factory
  router: router
  roles:
    manager: manager
    emergency_manager: emergency
    rebalance_manager: rebalancer
    vault_fee_receiver: fees
  assets:
    - address: uusdc
      strategies:
        - address: usdc-hodl
          name: USDC HODL
        - address: usdc-lending
          name: USDC Lending
  targets:
    usdc-hodl: 2000
    usdc-lending: 8000
sim:
  factory_fee_bps: 500
  strategies:
    - address: usdc-hodl
      asset: uusdc
    - address: usdc-lending
      asset: uusdc
      apr_bps: 800
      reserve: "1000000"
  pairs:
    - token_a: uusdc
      amount_a: "5000000"
      token_b: uatom
      amount_b: "1000000"
  balances:
    - denom: uusdc
      holder: alice
      amount: "250000"
`

func TestParseBootstrap(t *testing.T) {
	b, err := ParseBootstrap([]byte(sampleBootstrap))
	require.NoError(t, err)

	params := b.InitParams()
	require.Equal(t, "dfUSDC", params.Symbol)
	require.Equal(t, uint32(1000), params.VaultFeeBps)
	require.Equal(t, "rebalancer", params.Roles[types.RoleRebalanceManager])
	require.Len(t, params.Assets, 1)
	require.Len(t, params.Assets[0].Strategies, 2)
	require.Equal(t, "usdc-lending", params.Assets[0].Strategies[1].Address)
	require.Len(t, b.Sim.Pairs, 1)
	require.Equal(t, uint32(8000), b.Vault.Targets["usdc-lending"])
}

func TestParseBootstrapRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"no assets":    "vault:\n  name: x\n",
		"unknown role": "vault:\n  roles:\n    owner: x\n  assets:\n    - address: uusdc\n",
		"bad amount":   "vault:\n  assets:\n    - address: uusdc\nsim:\n  balances:\n    - denom: uusdc\n      holder: a\n      amount: lots\n",
		"not yaml":     "vault: [",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseBootstrap([]byte(doc))
			require.ErrorIs(t, err, ErrInvalidBootstrap)
		})
	}
}

func TestLoadBootstrapFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleBootstrap), 0o600))

	b, err := LoadBootstrap(path)
	require.NoError(t, err)
	require.Equal(t, "DeFindex USDC", b.Vault.Name)

	_, err = LoadBootstrap(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestSeedHostInitializesVault(t *testing.T) {
	b, err := ParseBootstrap([]byte(sampleBootstrap))
	require.NoError(t, err)

	ctx := context.Background()
	svc := store.NewMemService()
	clock := sim.NewManualClock(1_700_000_000)
	host := sim.NewHost(svc, auth.Authorizer{}, clock)
	require.NoError(t, b.SeedHost(ctx, host, true))

	usdc, err := host.Token("uusdc")
	require.NoError(t, err)
	balance, err := usdc.Balance(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, "250000", balance.String())

	router, err := host.Router("router")
	require.NoError(t, err)
	reserveA, reserveB, err := router.GetReserves(ctx, "uusdc", "uatom")
	require.NoError(t, err)
	require.Equal(t, "5000000", reserveA.String())
	require.Equal(t, "1000000", reserveB.String())

	factory, err := host.Factory("factory")
	require.NoError(t, err)
	rate, err := factory.FeeRate(ctx)
	require.NoError(t, err)
	require.Equal(t, uint32(500), rate)

	v, err := vault.New(vault.Config{
		Address:    "vault",
		Store:      svc,
		Resolver:   host,
		Authorizer: auth.Authorizer{},
		Clock:      clock,
	})
	require.NoError(t, err)
	require.NoError(t, v.Initialize(ctx, b.InitParams()))

	res, err := v.Deposit(auth.WithSigners(ctx, "alice"), []sdkmath.Int{sdkmath.NewInt(10_000)}, []sdkmath.Int{sdkmath.ZeroInt()}, "alice", false)
	require.NoError(t, err)
	require.Equal(t, "10000", res.SharesMinted.String())
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("VAULT_ADDRESS", "vault")
	t.Setenv("VAULT_CONFIG_PATH", "vault.yaml")
	t.Setenv("VAULT_MODE", "remote")
	t.Setenv("NODE_GRPC", "localhost:9090")
	t.Setenv("STORE_BACKEND", "goleveldb")
	t.Setenv("STORE_DIR", "/tmp/defindex")
	t.Setenv("KEEPER_HARVEST_SCHEDULE", "@every 30m")
	t.Setenv("KEEPER_REBALANCE_MAX_UNWIND_BPS", "2500")
	t.Setenv("KEEPER_REBALANCE_MIN_MOVE", "100")

	require.NoError(t, LoadConfig())
	require.Equal(t, ModeRemote, VaultMode)
	require.Equal(t, "localhost:9090", NodeGRPC)
	require.Equal(t, BackendGoLevelDB, StoreBackend)
	require.Equal(t, "@every 30m", HarvestSchedule)
	require.Equal(t, uint32(2500), RebalanceMaxUnwindBps)
	require.Equal(t, "100", RebalanceMinMove.String())
	require.Equal(t, "8080", WebPort)

	t.Setenv("KEEPER_REBALANCE_MIN_MOVE", "dust")
	require.Error(t, LoadConfig())
	t.Setenv("KEEPER_REBALANCE_MIN_MOVE", "100")

	t.Setenv("VAULT_MODE", "chain")
	require.Error(t, LoadConfig())

	t.Setenv("VAULT_MODE", "remote")
	t.Setenv("NODE_GRPC", "")
	require.Error(t, LoadConfig())
}

func TestLoadDBConfig(t *testing.T) {
	t.Setenv("DB_NAME", "")
	_, ok, err := LoadDBConfig()
	require.NoError(t, err)
	require.False(t, ok)

	t.Setenv("DB_NAME", "defindex")
	t.Setenv("DB_USER", "defindex")
	t.Setenv("DB_PORT", "6543")
	cfg, ok, err := LoadDBConfig()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 6543, cfg.Port)
	require.Equal(t, "localhost", cfg.Host)

	t.Setenv("DB_PORT", "not-a-port")
	_, _, err = LoadDBConfig()
	require.Error(t, err)
}

func TestSeedHostWithoutFunding(t *testing.T) {
	b, err := ParseBootstrap([]byte(sampleBootstrap))
	require.NoError(t, err)

	ctx := context.Background()
	host := sim.NewHost(store.NewMemService(), auth.Authorizer{}, sim.NewManualClock(1_700_000_000))
	require.NoError(t, b.SeedHost(ctx, host, false))

	_, err = host.Strategy("usdc-lending")
	require.NoError(t, err)
	usdc, err := host.Token("uusdc")
	require.NoError(t, err)
	balance, err := usdc.Balance(ctx, "alice")
	require.NoError(t, err)
	require.True(t, balance.IsZero())
}
