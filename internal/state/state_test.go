package state

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
)

const testDSNEnv = "DEFINDEX_TEST_DSN"

// openTestDB connects to the database named by DEFINDEX_TEST_DSN or skips.
func openTestDB(t *testing.T) {
	t.Helper()
	dsn := os.Getenv(testDSNEnv)
	if dsn == "" {
		t.Skipf("%s not set, skipping database test", testDSNEnv)
	}
	require.NoError(t, InitDBWithDSN(dsn))
	require.NoError(t, EnsureSchema())
	t.Cleanup(func() {
		CloseDB()
		DB = nil
	})
}

func TestUninitializedDB(t *testing.T) {
	prev := DB
	DB = nil
	defer func() { DB = prev }()

	ctx := context.Background()
	require.ErrorIs(t, SaveOperation(ctx, "vault", types.OperationRecord{}, nil), ErrDBNotInitialized)
	_, err := GetRecentOperations(ctx, "vault", 10)
	require.ErrorIs(t, err, ErrDBNotInitialized)
	_, _, err = LoadActiveVaultConfig(ctx, "vault")
	require.ErrorIs(t, err, ErrDBNotInitialized)
	require.ErrorIs(t, RecordJobRun(ctx, "harvest", nil), ErrDBNotInitialized)
	require.Error(t, TestDBConnection())
}

func TestDSN(t *testing.T) {
	cfg := DBConfig{Host: "localhost", Port: 5432, User: "u", Password: "p", DBName: "defindex", SSLMode: "disable"}
	require.Equal(t, "host=localhost port=5432 user=u password=p dbname=defindex sslmode=disable", cfg.DSN())
}

func TestJournalRoundTrip(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	vaultAddr := "vault-" + uuid.NewString()
	journal := NewJournal(vaultAddr)

	rep := report.New()
	rep.PrevBalance = sdkmath.NewInt(10800)
	rep.LockedFee = sdkmath.NewInt(200)

	record := types.OperationRecord{
		ID:           uuid.NewString(),
		InvocationID: uuid.NewString(),
		Kind:         types.OperationLockFees,
		Caller:       "manager",
		Strategies:   []string{"strategy-a"},
		Payload:      map[string]string{"note": "lock"},
		Timestamp:    time.Unix(1_700_000_000, 0).UTC(),
	}
	require.NoError(t, journal.RecordOperation(ctx, record, map[string]report.Report{"strategy-a": rep}))

	entry, err := GetOperationByID(ctx, record.ID)
	require.NoError(t, err)
	require.Equal(t, vaultAddr, entry.VaultAddress)
	require.Equal(t, types.OperationLockFees, entry.Kind)
	require.Equal(t, []string{"strategy-a"}, entry.Strategies)
	require.JSONEq(t, `{"note":"lock"}`, string(entry.Payload))

	recent, err := GetRecentOperations(ctx, vaultAddr, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	reports, err := GetLatestReports(ctx, vaultAddr)
	require.NoError(t, err)
	require.Equal(t, "10800", reports["strategy-a"].PrevBalance.String())
	require.Equal(t, "200", reports["strategy-a"].LockedFee.String())
	require.Equal(t, "0", reports["strategy-a"].GainsOrLosses.String())

	summary, err := GetOperationSummary(ctx, vaultAddr)
	require.NoError(t, err)
	require.Equal(t, 1, summary.TotalOperations)
	require.Equal(t, 1, summary.ByKind[types.OperationLockFees])
}

func TestVaultConfigVersions(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	vaultAddr := "vault-" + uuid.NewString()

	_, _, err := LoadActiveVaultConfig(ctx, vaultAddr)
	require.True(t, errors.Is(err, ErrNoActiveConfig))

	first := types.InitParams{Name: "First", Symbol: "FST", VaultFeeBps: 100}
	second := types.InitParams{Name: "Second", Symbol: "SND", VaultFeeBps: 200}
	require.NoError(t, SaveVaultConfig(ctx, vaultAddr, 1, first, true))
	require.NoError(t, SaveVaultConfig(ctx, vaultAddr, 2, second, true))

	params, version, err := LoadActiveVaultConfig(ctx, vaultAddr)
	require.NoError(t, err)
	require.Equal(t, 2, version)
	require.Equal(t, "Second", params.Name)
	require.Equal(t, uint32(200), params.VaultFeeBps)
}

func TestRecordJobRun(t *testing.T) {
	openTestDB(t)
	ctx := context.Background()
	name := "job-" + uuid.NewString()

	require.NoError(t, RecordJobRun(ctx, name, nil))
	require.NoError(t, RecordJobRun(ctx, name, errors.New("strategy halted")))

	runs, err := GetJobRuns(ctx)
	require.NoError(t, err)
	var found *JobRun
	for i := range runs {
		if runs[i].Name == name {
			found = &runs[i]
		}
	}
	require.NotNil(t, found)
	require.Equal(t, 2, found.RunCount)
	require.Equal(t, 1, found.FailureCount)
	require.Equal(t, "strategy halted", found.LastError)
}
