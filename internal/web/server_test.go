package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/sim"
	"github.com/elys-network/defindex/internal/state"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/vault"
)

func newVault(t *testing.T, initialize bool) *vault.Vault {
	t.Helper()
	ctx := context.Background()
	clock := sim.NewManualClock(1_700_000_000)
	svc := store.NewMemService()
	host := sim.NewHost(svc, auth.Authorizer{}, clock)
	host.AddToken("usdc")
	host.AddFactory("factory", 0, "protocol")
	_, err := host.AddHodlStrategy("usdc_hodl", "usdc")
	require.NoError(t, err)
	require.NoError(t, host.Mint(ctx, "usdc", "alice", sdkmath.NewInt(100_000)))

	v, err := vault.New(vault.Config{Address: "vault", Store: svc, Resolver: host, Authorizer: auth.Authorizer{}, Clock: clock})
	require.NoError(t, err)
	if !initialize {
		return v
	}
	require.NoError(t, v.Initialize(ctx, types.InitParams{
		Assets: []types.AssetStrategySet{{Address: "usdc", Strategies: []types.Strategy{{Address: "usdc_hodl", Name: "Hodl"}}}},
		Roles: map[types.Role]string{
			types.RoleManager:          "manager",
			types.RoleEmergencyManager: "emergency",
			types.RoleRebalanceManager: "rebalancer",
			types.RoleVaultFeeReceiver: "fees",
		},
		VaultFeeBps: 1_000,
		Factory:     "factory",
		Name:        "Web Vault",
		Symbol:      "WEBV",
	}))
	_, err = v.Deposit(auth.WithSigners(ctx, "alice"), []sdkmath.Int{sdkmath.NewInt(10_000)}, []sdkmath.Int{sdkmath.ZeroInt()}, "alice", false)
	require.NoError(t, err)
	return v
}

type fakeJournal struct {
	healthErr error
}

func (f *fakeJournal) RecentOperations(ctx context.Context, limit int) ([]state.OperationEntry, error) {
	return []state.OperationEntry{{ID: "op-1", Kind: types.OperationDeposit, Caller: "alice"}}, nil
}

func (f *fakeJournal) Operation(ctx context.Context, id string) (*state.OperationEntry, error) {
	if id != "op-1" {
		return nil, errors.New("operation not found")
	}
	return &state.OperationEntry{ID: id, Kind: types.OperationDeposit, Timestamp: time.Unix(1_700_000_000, 0)}, nil
}

func (f *fakeJournal) Summary(ctx context.Context) (*state.OperationSummary, error) {
	return &state.OperationSummary{TotalOperations: 2, ByKind: map[types.OperationKind]int{types.OperationInitialize: 1, types.OperationDeposit: 1}}, nil
}

func (f *fakeJournal) JobRuns(ctx context.Context) ([]state.JobRun, error) {
	return []state.JobRun{{Name: "lock_fees", RunCount: 3}}, nil
}

func (f *fakeJournal) Healthy(ctx context.Context) error {
	return f.healthErr
}

func get(t *testing.T, ws *WebServer, path string) (int, map[string]interface{}) {
	t.Helper()
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestVaultEndpoints(t *testing.T) {
	ws := NewWebServer("", newVault(t, true), nil)

	code, body := get(t, ws, "/api/vault")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "vault", body["address"])
	require.Equal(t, "10000", body["total_supply"])
	require.InDelta(t, 0.001, body["total_supply_display"], 1e-12)
	require.Equal(t, "WEBV", body["metadata"].(map[string]interface{})["symbol"])
	require.Equal(t, "rebalancer", body["roles"].(map[string]interface{})["rebalance_manager"])

	code, body = get(t, ws, "/api/vault/funds")
	require.Equal(t, http.StatusOK, code)
	funds := body["funds"].([]interface{})
	require.Len(t, funds, 1)
	require.Equal(t, "10000", funds[0].(map[string]interface{})["idle_amount"])

	code, body = get(t, ws, "/api/vault/shares/alice")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "9000", body["balance"])

	code, body = get(t, ws, "/api/vault/quote?shares=5000")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "5000", body["amounts"].(map[string]interface{})["usdc"])

	code, _ = get(t, ws, "/api/vault/quote?shares=20000")
	require.Equal(t, http.StatusBadRequest, code)

	code, _ = get(t, ws, "/api/vault/quote?shares=abc")
	require.Equal(t, http.StatusBadRequest, code)
}

func TestUninitializedVault(t *testing.T) {
	ws := NewWebServer("", newVault(t, false), nil)

	code, body := get(t, ws, "/api/vault/funds")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, true, body["error"])
}

func TestJournalEndpoints(t *testing.T) {
	ws := NewWebServer("", newVault(t, true), &fakeJournal{})

	code, body := get(t, ws, "/api/operations?limit=5")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(1), body["count"])
	require.Equal(t, float64(5), body["limit"])

	code, body = get(t, ws, "/api/operations/summary")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, float64(2), body["total_operations"])

	code, body = get(t, ws, "/api/operations/op-1")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "DEPOSIT", body["kind"])

	code, _ = get(t, ws, "/api/operations/missing")
	require.Equal(t, http.StatusNotFound, code)

	code, body = get(t, ws, "/api/jobs")
	require.Equal(t, http.StatusOK, code)
	require.Len(t, body["jobs"].([]interface{}), 1)
}

func TestJournalDisabled(t *testing.T) {
	ws := NewWebServer("", newVault(t, true), nil)
	code, _ := get(t, ws, "/api/operations")
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealth(t *testing.T) {
	ws := NewWebServer("", newVault(t, true), &fakeJournal{})
	code, body := get(t, ws, "/health")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body["status"])

	ws = NewWebServer("", newVault(t, true), &fakeJournal{healthErr: errors.New("connection refused")})
	code, body = get(t, ws, "/api/health")
	require.Equal(t, http.StatusServiceUnavailable, code)
	require.Equal(t, "DEGRADED", body["status"])
}

func TestCORSPreflight(t *testing.T) {
	ws := NewWebServer("", newVault(t, true), nil)
	rec := httptest.NewRecorder()
	ws.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/api/vault", nil))
	require.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
