// Package keeper runs the periodic maintenance calls of a vault on cron schedules:
// harvesting strategies, locking fees on fresh gains, collecting the time based
// fee, distributing locked fees and rebalancing toward target weights.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/planner"
	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/types"
)

// Job names.
const (
	JobHarvest    = "harvest"
	JobLockFees   = "lock_fees"
	JobCollect    = "collect_fees"
	JobDistribute = "distribute_fees"
	JobRebalance  = "rebalance"
)

var (
	ErrUnknownJob      = errors.New("unknown keeper job")
	ErrJobFailed       = errors.New("keeper job failed")
	ErrInvalidConfig   = errors.New("invalid keeper config")
	ErrInvalidSchedule = errors.New("invalid cron schedule")
)

// VaultOperations is the subset of the vault the keeper drives.
type VaultOperations interface {
	GetAssets(ctx context.Context) ([]types.AssetStrategySet, error)
	Harvest(ctx context.Context, caller, strategy string, data []byte) (report.Report, error)
	LockFees(ctx context.Context, caller string, newFeeBps *uint32) (map[string]report.Report, error)
	CollectFees(ctx context.Context) error
	DistributeFees(ctx context.Context, caller string) ([]types.FeeDistribution, error)
	FetchTotalManagedFunds(ctx context.Context) ([]types.CurrentAssetInvestmentAllocation, error)
	Rebalance(ctx context.Context, caller string, instructions []types.Instruction) ([]types.InstructionReceipt, error)
}

// RunRecorder persists the outcome of each job run.
type RunRecorder interface {
	RecordJobRun(ctx context.Context, name string, runErr error) error
}

// RunRecorderFunc adapts a function to RunRecorder.
type RunRecorderFunc func(ctx context.Context, name string, runErr error) error

func (f RunRecorderFunc) RecordJobRun(ctx context.Context, name string, runErr error) error {
	return f(ctx, name, runErr)
}

// Schedules holds one cron spec per job. An empty spec leaves the job unscheduled.
type Schedules struct {
	Harvest    string
	LockFees   string
	Collect    string
	Distribute string
	Rebalance  string
}

// Config configures a Keeper.
type Config struct {
	Vault VaultOperations
	// Operator is the address the keeper signs as; it must hold the manager role for
	// every job except collect_fees.
	Operator string
	Recorder RunRecorder
	// Timeout bounds a single job run. Zero means one minute.
	Timeout time.Duration
	// Targets drive the rebalance job; without targets it is a no-op.
	Targets     planner.Targets
	PlanOptions planner.Options
}

func validateConfig(cfg Config) error {
	if cfg.Vault == nil {
		return errors.Join(ErrInvalidConfig, errors.New("vault is required"))
	}
	if cfg.Operator == "" {
		return errors.Join(ErrInvalidConfig, errors.New("operator address is required"))
	}
	return nil
}

// Keeper schedules vault maintenance jobs.
type Keeper struct {
	cron     *cron.Cron
	vault    VaultOperations
	operator string
	recorder RunRecorder
	timeout  time.Duration
	targets  planner.Targets
	planOpts planner.Options
	logger   zerolog.Logger

	mu   sync.Mutex
	jobs map[string]func(ctx context.Context) error
}

// New creates a keeper with every job registered but none scheduled.
func New(cfg Config) (*Keeper, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = time.Minute
	}
	k := &Keeper{
		cron:     cron.New(),
		vault:    cfg.Vault,
		operator: cfg.Operator,
		recorder: cfg.Recorder,
		timeout:  timeout,
		targets:  cfg.Targets,
		planOpts: cfg.PlanOptions,
		logger:   logger.GetForComponent("keeper"),
	}
	k.jobs = map[string]func(ctx context.Context) error{
		JobHarvest:    k.harvest,
		JobLockFees:   k.lockFees,
		JobCollect:    k.collectFees,
		JobDistribute: k.distributeFees,
		JobRebalance:  k.rebalance,
	}
	return k, nil
}

// Schedule registers the jobs with a non empty spec.
func (k *Keeper) Schedule(s Schedules) error {
	specs := map[string]string{
		JobHarvest:    s.Harvest,
		JobLockFees:   s.LockFees,
		JobCollect:    s.Collect,
		JobDistribute: s.Distribute,
		JobRebalance:  s.Rebalance,
	}
	names := make([]string, 0, len(specs))
	for name := range specs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		spec := specs[name]
		if spec == "" {
			continue
		}
		jobName := name
		if _, err := k.cron.AddFunc(spec, func() {
			if err := k.RunJob(context.Background(), jobName); err != nil {
				k.logger.Error().Err(err).Str("job", jobName).Msg("Keeper: scheduled job failed")
			}
		}); err != nil {
			return errors.Join(ErrInvalidSchedule, fmt.Errorf("register %s job with %q: %w", jobName, spec, err))
		}
		k.logger.Info().Str("job", jobName).Str("schedule", spec).Msg("Keeper: job scheduled")
	}
	return nil
}

// Start starts the cron scheduler.
func (k *Keeper) Start() {
	k.cron.Start()
	k.logger.Info().Int("entries", len(k.cron.Entries())).Msg("Keeper: scheduler started")
}

// Stop stops the scheduler and waits for running jobs until ctx is done.
func (k *Keeper) Stop(ctx context.Context) {
	done := k.cron.Stop()
	select {
	case <-done.Done():
		k.logger.Info().Msg("Keeper: scheduler stopped")
	case <-ctx.Done():
		k.logger.Warn().Msg("Keeper: scheduler stop timed out with jobs still running")
	}
}

// RunJob executes one job now. Runs are serialized.
func (k *Keeper) RunJob(ctx context.Context, name string) error {
	job, ok := k.jobs[name]
	if !ok {
		return errors.Join(ErrUnknownJob, fmt.Errorf("%q", name))
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	runID := uuid.NewString()
	jobLogger := k.logger.With().Str("job", name).Str("runId", runID).Logger()
	jobLogger.Info().Msg("Keeper: job started")
	start := time.Now()

	runCtx, cancel := context.WithTimeout(ctx, k.timeout)
	defer cancel()
	runCtx = auth.WithSigners(runCtx, k.operator)

	runErr := job(runCtx)
	if runErr != nil {
		runErr = errors.Join(ErrJobFailed, fmt.Errorf("%s: %w", name, runErr))
		jobLogger.Error().Err(runErr).Dur("duration", time.Since(start)).Msg("Keeper: job failed")
	} else {
		jobLogger.Info().Dur("duration", time.Since(start)).Msg("Keeper: job finished")
	}

	if k.recorder != nil {
		if err := k.recorder.RecordJobRun(ctx, name, runErr); err != nil {
			jobLogger.Warn().Err(err).Msg("Keeper: failed to record job run")
		}
	}
	return runErr
}

// harvest harvests every active strategy. A failing strategy does not stop the others.
func (k *Keeper) harvest(ctx context.Context) error {
	assets, err := k.vault.GetAssets(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, asset := range assets {
		for _, strategy := range asset.Strategies {
			if strategy.Paused {
				continue
			}
			rep, err := k.vault.Harvest(ctx, k.operator, strategy.Address, nil)
			if err != nil {
				errs = append(errs, fmt.Errorf("strategy %s: %w", strategy.Address, err))
				continue
			}
			k.logger.Debug().
				Str("strategy", strategy.Address).
				Str("gainsOrLosses", rep.GainsOrLosses.String()).
				Msg("Keeper: strategy harvested")
		}
	}
	return errors.Join(errs...)
}

func (k *Keeper) lockFees(ctx context.Context) error {
	reports, err := k.vault.LockFees(ctx, k.operator, nil)
	if err != nil {
		return err
	}
	for strategy, rep := range reports {
		k.logger.Debug().Str("strategy", strategy).Str("lockedFee", rep.LockedFee.String()).Msg("Keeper: fees locked")
	}
	return nil
}

func (k *Keeper) collectFees(ctx context.Context) error {
	return k.vault.CollectFees(ctx)
}

func (k *Keeper) distributeFees(ctx context.Context) error {
	distributions, err := k.vault.DistributeFees(ctx, k.operator)
	if err != nil {
		return err
	}
	k.logger.Info().Int("strategies", len(distributions)).Msg("Keeper: locked fees distributed")
	return nil
}

// rebalance plans toward the configured targets and submits the plan as one rebalance.
func (k *Keeper) rebalance(ctx context.Context) error {
	if len(k.targets) == 0 {
		k.logger.Debug().Msg("Keeper: no rebalance targets configured")
		return nil
	}
	funds, err := k.vault.FetchTotalManagedFunds(ctx)
	if err != nil {
		return err
	}
	plan, err := planner.GenerateRebalancePlan(funds, k.targets, k.planOpts)
	if err != nil {
		return err
	}
	if len(plan) == 0 {
		k.logger.Info().Msg("Keeper: vault already at target allocation")
		return nil
	}
	receipts, err := k.vault.Rebalance(ctx, k.operator, plan)
	if err != nil {
		return err
	}
	k.logger.Info().Int("instructions", len(receipts)).Msg("Keeper: vault rebalanced")
	return nil
}
