package vault

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
)

const storeNamespace = "vault/"

// Recorder receives every committed operation together with the reports of the strategies it touched.
type Recorder interface {
	RecordOperation(ctx context.Context, record types.OperationRecord, reports map[string]report.Report) error
}

// Config holds the dependencies of a vault.
type Config struct {
	Address    string
	Store      *store.Service
	Resolver   types.ContractResolver
	Authorizer types.Authorizer
	Clock      types.Clock
	// Recorder is optional; journaling failures are logged and never fail an operation.
	Recorder Recorder
}

// Vault is the accounting and rebalancing engine of one vault instance.
// Public methods are serialized: one top level call runs at a time and commits atomically.
type Vault struct {
	address  string
	svc      *store.Service
	resolver types.ContractResolver
	auth     types.Authorizer
	clock    types.Clock
	recorder Recorder
	logger   zerolog.Logger

	mu sync.Mutex
}

// call is the state of one top level invocation.
type call struct {
	v            *Vault
	ctx          context.Context
	repo         *repository
	log          zerolog.Logger
	invocationID string
	touched      map[string]struct{}
}

// New creates a vault bound to its collaborators. The vault still needs Initialize before use.
func New(cfg Config) (*Vault, error) {
	if err := validateVaultConfig(cfg); err != nil {
		return nil, errors.Join(ErrInvalidVaultConfig, err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = types.SystemClock{}
	}

	v := &Vault{
		address:  cfg.Address,
		svc:      cfg.Store,
		resolver: cfg.Resolver,
		auth:     cfg.Authorizer,
		clock:    clock,
		recorder: cfg.Recorder,
		logger:   logger.GetForComponent("vault").With().Str("vault", cfg.Address).Logger(),
	}

	v.logger.Info().Bool("journal", cfg.Recorder != nil).Msg("Vault: created")
	return v, nil
}

// validateVaultConfig validates the vault configuration
func validateVaultConfig(cfg Config) error {
	if cfg.Address == "" {
		return fmt.Errorf("vault address cannot be empty")
	}
	if cfg.Store == nil {
		return fmt.Errorf("store service cannot be nil")
	}
	if cfg.Resolver == nil {
		return fmt.Errorf("contract resolver cannot be nil")
	}
	if cfg.Authorizer == nil {
		return fmt.Errorf("authorizer cannot be nil")
	}
	return nil
}

// Address returns the vault's own address.
func (v *Vault) Address() string {
	return v.address
}

// execute runs fn as one atomic top level call. State is committed only when fn succeeds.
func execute[T any](ctx context.Context, v *Vault, kind types.OperationKind, caller string, fn func(c *call) (T, error)) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	branchCtx, write := v.svc.Branch(ctx)
	c := v.newCall(branchCtx)
	c.log = c.log.With().Str("operation", string(kind)).Logger()

	if kind != types.OperationInitialize {
		if err := c.requireInitialized(); err != nil {
			return zero, err
		}
	}

	start := time.Now()
	result, err := fn(c)
	if err != nil {
		c.log.Warn().Err(err).Str("caller", caller).Msg("Vault: operation rejected, state discarded")
		return zero, err
	}
	write()

	c.log.Info().
		Str("caller", caller).
		Dur("duration", time.Since(start)).
		Int("strategiesTouched", len(c.touched)).
		Msg("Vault: operation committed")

	v.record(ctx, c, kind, caller, result)
	return result, nil
}

// query runs fn against a throwaway branch. Nothing it writes survives.
func query[T any](ctx context.Context, v *Vault, fn func(c *call) (T, error)) (T, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	var zero T
	branchCtx, _ := v.svc.Branch(ctx)
	c := v.newCall(branchCtx)
	if err := c.requireInitialized(); err != nil {
		return zero, err
	}
	return fn(c)
}

func (v *Vault) newCall(ctx context.Context) *call {
	id := uuid.NewString()
	return &call{
		v:            v,
		ctx:          ctx,
		repo:         newRepository(v.svc.Prefixed(ctx, storeNamespace)),
		log:          v.logger.With().Str("invocationId", id).Logger(),
		invocationID: id,
		touched:      make(map[string]struct{}),
	}
}

func (c *call) requireInitialized() error {
	initialized, err := c.repo.isInitialized()
	if err != nil {
		return err
	}
	if !initialized {
		return ErrNotInitialized
	}
	return nil
}

// record hands a committed operation to the journal.
func (v *Vault) record(ctx context.Context, c *call, kind types.OperationKind, caller string, payload interface{}) {
	if v.recorder == nil {
		return
	}

	strategies := make([]string, 0, len(c.touched))
	for addr := range c.touched {
		strategies = append(strategies, addr)
	}
	sort.Strings(strategies)

	committed := newRepository(v.svc.Prefixed(ctx, storeNamespace))
	reports := make(map[string]report.Report, len(strategies))
	for _, addr := range strategies {
		r, err := committed.getReport(addr)
		if err != nil {
			v.logger.Error().Err(err).Str("strategy", addr).Msg("Vault: failed to read report for journal")
			continue
		}
		reports[addr] = r
	}

	rec := types.OperationRecord{
		ID:           uuid.NewString(),
		InvocationID: c.invocationID,
		Kind:         kind,
		Caller:       caller,
		Payload:      payload,
		Strategies:   strategies,
		Timestamp:    time.Unix(int64(v.clock.Now()), 0).UTC(),
	}
	if err := v.recorder.RecordOperation(ctx, rec, reports); err != nil {
		v.logger.Error().Err(err).Str("invocationId", c.invocationID).Msg("Vault: failed to journal operation")
	}
}

// contractCtx is the context used for calls the vault issues as itself.
func (c *call) contractCtx(permits ...types.TransferPermit) context.Context {
	ctx := c.v.auth.AsInvoker(c.ctx, c.v.address)
	if len(permits) > 0 {
		ctx = c.v.auth.Permit(ctx, permits...)
	}
	return ctx
}

func (c *call) requireAuth(addr string) error {
	if err := c.v.auth.RequireAuth(c.ctx, addr); err != nil {
		return errors.Join(ErrUnauthorized, err)
	}
	return nil
}

// requireRole checks that caller holds one of roles and authorized the call.
func (c *call) requireRole(caller string, roles ...types.Role) error {
	for _, role := range roles {
		holder, err := c.repo.getRole(role)
		if err != nil {
			if errors.Is(err, ErrRoleNotSet) {
				continue
			}
			return err
		}
		if holder == caller {
			return c.requireAuth(caller)
		}
	}
	return errors.Join(ErrUnauthorized, fmt.Errorf("%s does not hold any of %v", caller, roles))
}

func (c *call) touch(strategy string) {
	c.touched[strategy] = struct{}{}
}
