package vault_test

import (
	"context"
	"sync"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
)

const (
	vaultAddr        = "vault"
	manager          = "manager"
	emergencyManager = "emergency"
	rebalanceManager = "rebalancer"
	feeReceiver      = "fee_receiver"
	protocolReceiver = "protocol"
	factoryAddr      = "factory"
	routerAddr       = "router"
	alice            = "alice"
	bob              = "bob"

	genesis uint64 = 1_700_000_000
)

type strategySpec struct {
	address string
	aprBps  uint32
}

type assetSpec struct {
	denom      string
	strategies []strategySpec
}

type fixtureOptions struct {
	assets         []assetSpec
	vaultFeeBps    uint32
	protocolFeeBps uint32
}

type fixture struct {
	t          *testing.T
	host       *sim.Host
	clock      *sim.ManualClock
	factory    *sim.Factory
	router     *sim.Router
	strategies map[string]*sim.Strategy
	vault      *vault.Vault
	params     types.InitParams
	journal    *memoryJournal
}

func singleAsset(strategies ...strategySpec) []assetSpec {
	return []assetSpec{{denom: "usdc", strategies: strategies}}
}

func defaultRoles() map[types.Role]string {
	return map[types.Role]string{
		types.RoleManager:          manager,
		types.RoleEmergencyManager: emergencyManager,
		types.RoleRebalanceManager: rebalanceManager,
		types.RoleVaultFeeReceiver: feeReceiver,
	}
}

// newFixture builds a host, funds alice and bob, and initializes a vault over opts.
func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	ctx := context.Background()

	clock := sim.NewManualClock(genesis)
	svc := store.NewMemService()
	host := sim.NewHost(svc, auth.Authorizer{}, clock)
	f := &fixture{
		t:          t,
		host:       host,
		clock:      clock,
		factory:    host.AddFactory(factoryAddr, opts.protocolFeeBps, protocolReceiver),
		router:     host.AddRouter(routerAddr),
		strategies: make(map[string]*sim.Strategy),
		journal:    &memoryJournal{},
	}

	params := types.InitParams{
		Roles:          defaultRoles(),
		VaultFeeBps:    opts.vaultFeeBps,
		ProtocolFeeBps: opts.protocolFeeBps,
		Factory:        factoryAddr,
		Router:         routerAddr,
		Name:           "DeFindex Vault",
		Symbol:         "DFXV",
	}
	for _, asset := range opts.assets {
		host.AddToken(asset.denom)
		require.NoError(t, host.Mint(ctx, asset.denom, alice, sdkmath.NewInt(1_000_000)))
		require.NoError(t, host.Mint(ctx, asset.denom, bob, sdkmath.NewInt(1_000_000)))

		set := types.AssetStrategySet{Address: asset.denom}
		for _, spec := range asset.strategies {
			strategy, err := host.AddFixedAPRStrategy(spec.address, asset.denom, spec.aprBps)
			require.NoError(t, err)
			// reserve the strategy pays interest from
			require.NoError(t, host.Mint(ctx, asset.denom, spec.address, sdkmath.NewInt(1_000_000)))
			f.strategies[spec.address] = strategy
			set.Strategies = append(set.Strategies, types.Strategy{Address: spec.address, Name: spec.address})
		}
		params.Assets = append(params.Assets, set)
	}

	v, err := vault.New(vault.Config{
		Address:    vaultAddr,
		Store:      svc,
		Resolver:   host,
		Authorizer: auth.Authorizer{},
		Clock:      clock,
		Recorder:   f.journal,
	})
	require.NoError(t, err)
	require.NoError(t, v.Initialize(ctx, params))
	f.vault = v
	f.params = params
	return f
}

// as returns a context signed by addrs.
func as(addrs ...string) context.Context {
	return auth.WithSigners(context.Background(), addrs...)
}

func ints(values ...int64) []sdkmath.Int {
	out := make([]sdkmath.Int, len(values))
	for i, v := range values {
		out[i] = sdkmath.NewInt(v)
	}
	return out
}

func (f *fixture) deposit(from string, amounts ...int64) types.DepositResult {
	f.t.Helper()
	res, err := f.vault.Deposit(as(from), ints(amounts...), zeros(len(amounts)), from, false)
	require.NoError(f.t, err)
	return res
}

func zeros(n int) []sdkmath.Int {
	out := make([]sdkmath.Int, n)
	for i := range out {
		out[i] = sdkmath.ZeroInt()
	}
	return out
}

func (f *fixture) invest(strategy string, amount int64) {
	f.t.Helper()
	_, err := f.vault.Rebalance(as(manager), manager, []types.Instruction{
		types.NewInvestInstruction(strategy, sdkmath.NewInt(amount)),
	})
	require.NoError(f.t, err)
}

func (f *fixture) shares(holder string) int64 {
	f.t.Helper()
	balance, err := f.vault.BalanceOf(context.Background(), holder)
	require.NoError(f.t, err)
	return balance.Int64()
}

func (f *fixture) supply() int64 {
	f.t.Helper()
	supply, err := f.vault.TotalSupply(context.Background())
	require.NoError(f.t, err)
	return supply.Int64()
}

func (f *fixture) tokenBalance(denom, holder string) int64 {
	f.t.Helper()
	token, err := f.host.Token(denom)
	require.NoError(f.t, err)
	balance, err := token.Balance(context.Background(), holder)
	require.NoError(f.t, err)
	return balance.Int64()
}

func (f *fixture) report(strategy string) report.Report {
	f.t.Helper()
	reports, err := f.vault.GetReports(context.Background())
	require.NoError(f.t, err)
	rep, ok := reports[strategy]
	require.True(f.t, ok, "no report for %s", strategy)
	return rep
}

// requireSupplyMatchesBalances checks that the known holders own the whole supply.
func (f *fixture) requireSupplyMatchesBalances() {
	f.t.Helper()
	var sum int64
	for _, holder := range []string{vaultAddr, alice, bob, feeReceiver, protocolReceiver} {
		sum += f.shares(holder)
	}
	require.Equal(f.t, f.supply(), sum)
}

// memoryJournal keeps every recorded operation in memory.
type memoryJournal struct {
	mu      sync.Mutex
	records []types.OperationRecord
}

func (j *memoryJournal) RecordOperation(ctx context.Context, record types.OperationRecord, reports map[string]report.Report) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, record)
	return nil
}

func (j *memoryJournal) kinds() []types.OperationKind {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]types.OperationKind, len(j.records))
	for i, r := range j.records {
		out[i] = r.Kind
	}
	return out
}
