package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog/log"

	"github.com/elys-network/defindex/internal/types"
)

// OperationEntry is a journaled operation as read back from the database.
type OperationEntry struct {
	ID           string              `json:"id"`
	InvocationID string              `json:"invocation_id"`
	VaultAddress string              `json:"vault_address"`
	Kind         types.OperationKind `json:"kind"`
	Caller       string              `json:"caller"`
	Strategies   []string            `json:"strategies"`
	Payload      json.RawMessage     `json:"payload,omitempty"`
	Timestamp    time.Time           `json:"timestamp"`
	RecordedAt   time.Time           `json:"recorded_at"`
}

// ReportSnapshot is the most recent stored report of a strategy.
type ReportSnapshot struct {
	OperationID     string      `json:"operation_id"`
	StrategyAddress string      `json:"strategy_address"`
	PrevBalance     sdkmath.Int `json:"prev_balance"`
	GainsOrLosses   sdkmath.Int `json:"gains_or_losses"`
	LockedFee       sdkmath.Int `json:"locked_fee"`
	Timestamp       time.Time   `json:"timestamp"`
}

// OperationSummary counts journaled operations per kind.
type OperationSummary struct {
	VaultAddress    string                      `json:"vault_address"`
	TotalOperations int                         `json:"total_operations"`
	ByKind          map[types.OperationKind]int `json:"by_kind"`
	LastOperation   *time.Time                  `json:"last_operation,omitempty"`
}

// GetRecentOperations retrieves the latest operations of a vault, newest first.
func GetRecentOperations(ctx context.Context, vaultAddress string, limit int) ([]OperationEntry, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	if limit <= 0 || limit > 100 {
		limit = 10 // Default limit
	}

	query := `
		SELECT
			operation_id, invocation_id, vault_address, kind, caller, strategies, payload,
			operation_timestamp, recorded_at
		FROM vault_operations
		WHERE vault_address = $1
		ORDER BY operation_timestamp DESC, recorded_at DESC
		LIMIT $2
	`

	rows, err := DB.QueryContext(ctx, query, vaultAddress, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent operations")
		return nil, fmt.Errorf("failed to query recent operations: %w", err)
	}
	defer rows.Close()

	entries := []OperationEntry{}
	for rows.Next() {
		entry, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}
	return entries, nil
}

// GetLatestReports returns the newest stored report of every strategy of a vault.
func GetLatestReports(ctx context.Context, vaultAddress string) (map[string]ReportSnapshot, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	query := `
		SELECT DISTINCT ON (strategy_address)
			operation_id, strategy_address, prev_balance::TEXT, gains_or_losses::TEXT, locked_fee::TEXT, snapshot_timestamp
		FROM report_snapshots
		WHERE vault_address = $1
		ORDER BY strategy_address, snapshot_timestamp DESC, snapshot_id DESC
	`

	rows, err := DB.QueryContext(ctx, query, vaultAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest reports: %w", err)
	}
	defer rows.Close()

	snapshots := make(map[string]ReportSnapshot)
	for rows.Next() {
		var snap ReportSnapshot
		var prev, gains, locked string
		if err := rows.Scan(&snap.OperationID, &snap.StrategyAddress, &prev, &gains, &locked, &snap.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan report snapshot: %w", err)
		}
		var ok bool
		if snap.PrevBalance, ok = sdkmath.NewIntFromString(prev); !ok {
			return nil, fmt.Errorf("invalid prev_balance %q for %s", prev, snap.StrategyAddress)
		}
		if snap.GainsOrLosses, ok = sdkmath.NewIntFromString(gains); !ok {
			return nil, fmt.Errorf("invalid gains_or_losses %q for %s", gains, snap.StrategyAddress)
		}
		if snap.LockedFee, ok = sdkmath.NewIntFromString(locked); !ok {
			return nil, fmt.Errorf("invalid locked_fee %q for %s", locked, snap.StrategyAddress)
		}
		snapshots[snap.StrategyAddress] = snap
	}
	return snapshots, rows.Err()
}

// GetOperationSummary aggregates the journal of a vault.
func GetOperationSummary(ctx context.Context, vaultAddress string) (*OperationSummary, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}

	rows, err := DB.QueryContext(ctx, `
		SELECT kind, COUNT(*), MAX(operation_timestamp)
		FROM vault_operations
		WHERE vault_address = $1
		GROUP BY kind
	`, vaultAddress)
	if err != nil {
		return nil, fmt.Errorf("failed to query operation summary: %w", err)
	}
	defer rows.Close()

	summary := &OperationSummary{
		VaultAddress: vaultAddress,
		ByKind:       make(map[types.OperationKind]int),
	}
	for rows.Next() {
		var kind string
		var count int
		var last time.Time
		if err := rows.Scan(&kind, &count, &last); err != nil {
			return nil, fmt.Errorf("failed to scan operation summary: %w", err)
		}
		summary.ByKind[types.OperationKind(kind)] = count
		summary.TotalOperations += count
		if summary.LastOperation == nil || last.After(*summary.LastOperation) {
			l := last
			summary.LastOperation = &l
		}
	}
	return summary, rows.Err()
}

// JournalReader serves the journal of one vault.
type JournalReader struct {
	VaultAddress string
}

func (j JournalReader) RecentOperations(ctx context.Context, limit int) ([]OperationEntry, error) {
	return GetRecentOperations(ctx, j.VaultAddress, limit)
}

func (j JournalReader) Operation(ctx context.Context, id string) (*OperationEntry, error) {
	return GetOperationByID(ctx, id)
}

func (j JournalReader) Summary(ctx context.Context) (*OperationSummary, error) {
	return GetOperationSummary(ctx, j.VaultAddress)
}

func (j JournalReader) JobRuns(ctx context.Context) ([]JobRun, error) {
	return GetJobRuns(ctx)
}

func (j JournalReader) Healthy(ctx context.Context) error {
	return TestDBConnection()
}
