package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
)

var ErrDBNotInitialized = errors.New("database not initialized")

// Journal records the committed operations of one vault. It implements vault.Recorder.
type Journal struct {
	vaultAddress string
}

// NewJournal returns a journal writing under vaultAddress.
func NewJournal(vaultAddress string) *Journal {
	return &Journal{vaultAddress: vaultAddress}
}

func (j *Journal) RecordOperation(ctx context.Context, record types.OperationRecord, reports map[string]report.Report) error {
	return SaveOperation(ctx, j.vaultAddress, record, reports)
}

// SaveOperation stores an operation and the reports it left behind in one transaction.
func SaveOperation(ctx context.Context, vaultAddress string, record types.OperationRecord, reports map[string]report.Report) (err error) {
	if DB == nil {
		return ErrDBNotInitialized
	}

	payloadJSON, err := json.Marshal(record.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p) // Re-panic after rollback
		} else if err != nil {
			tx.Rollback() // Rollback if error occurred
		}
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO vault_operations (
			operation_id, invocation_id, vault_address, kind, caller, strategies, payload, operation_timestamp
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8);`,
		record.ID, record.InvocationID, vaultAddress, string(record.Kind), record.Caller,
		pq.Array(record.Strategies), payloadJSON, record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to save operation %s: %w", record.ID, err)
	}

	for strategy, rep := range reports {
		rep = rep.Normalize()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO report_snapshots (
				operation_id, vault_address, strategy_address, prev_balance, gains_or_losses, locked_fee, snapshot_timestamp
			) VALUES ($1, $2, $3, $4, $5, $6, $7);`,
			record.ID, vaultAddress, strategy,
			rep.PrevBalance.String(), rep.GainsOrLosses.String(), rep.LockedFee.String(), record.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("failed to save report of %s: %w", strategy, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit operation %s: %w", record.ID, err)
	}

	log.Debug().
		Str("operation_id", record.ID).
		Str("kind", string(record.Kind)).
		Int("reports", len(reports)).
		Msg("Vault operation saved to database")
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row scanner) (OperationEntry, error) {
	var entry OperationEntry
	var kind string
	var payload []byte
	err := row.Scan(
		&entry.ID, &entry.InvocationID, &entry.VaultAddress, &kind, &entry.Caller,
		pq.Array(&entry.Strategies), &payload, &entry.Timestamp, &entry.RecordedAt,
	)
	if err != nil {
		return OperationEntry{}, err
	}
	entry.Kind = types.OperationKind(kind)
	if len(payload) > 0 {
		entry.Payload = json.RawMessage(payload)
	}
	return entry, nil
}

// GetOperationByID retrieves one journaled operation.
func GetOperationByID(ctx context.Context, operationID string) (*OperationEntry, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	row := DB.QueryRowContext(ctx, `
		SELECT operation_id, invocation_id, vault_address, kind, caller, strategies, payload, operation_timestamp, recorded_at
		FROM vault_operations WHERE operation_id = $1;`, operationID)
	entry, err := scanOperation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation %s not found", operationID)
		}
		return nil, fmt.Errorf("failed to get operation %s: %w", operationID, err)
	}
	return &entry, nil
}
