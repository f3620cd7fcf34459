// Package sim is an in process host for vaults: token ledgers, strategies, a swap
// router and a factory, all kept in the same store service as the vault so a
// rejected vault call rolls their state back too.
package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"

	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
)

var (
	ErrUnknownContract       = errors.New("unknown contract")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrHalted                = errors.New("contract halted")
	ErrPairNotFound          = errors.New("pair not found")
	ErrExpired               = errors.New("deadline expired")
	ErrInsufficientOutput    = errors.New("insufficient output amount")
	ErrExcessiveInput        = errors.New("excessive input amount")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
)

// Host owns every simulated contract and resolves them by address.
type Host struct {
	svc    *store.Service
	auth   types.Authorizer
	clock  types.Clock
	logger zerolog.Logger

	mu         sync.RWMutex
	tokens     map[string]*Token
	strategies map[string]*Strategy
	routers    map[string]*Router
	factories  map[string]*Factory
}

var _ types.ContractResolver = (*Host)(nil)

// NewHost creates an empty host over svc.
func NewHost(svc *store.Service, authorizer types.Authorizer, clock types.Clock) *Host {
	return &Host{
		svc:        svc,
		auth:       authorizer,
		clock:      clock,
		logger:     logger.GetForComponent("sim_host"),
		tokens:     make(map[string]*Token),
		strategies: make(map[string]*Strategy),
		routers:    make(map[string]*Router),
		factories:  make(map[string]*Factory),
	}
}

// AddToken registers a token ledger for denom.
func (h *Host) AddToken(denom string) *Token {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.tokens[denom]; ok {
		return t
	}
	t := &Token{denom: denom, host: h}
	h.tokens[denom] = t
	h.logger.Debug().Str("denom", denom).Msg("Host: token registered")
	return t
}

// AddHodlStrategy registers a strategy that holds deposits without yield.
func (h *Host) AddHodlStrategy(address, asset string) (*Strategy, error) {
	return h.AddFixedAPRStrategy(address, asset, 0)
}

// AddFixedAPRStrategy registers a strategy that accrues aprBps per year on deposits.
func (h *Host) AddFixedAPRStrategy(address, asset string, aprBps uint32) (*Strategy, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.tokens[asset]; !ok {
		return nil, errors.Join(ErrUnknownContract, fmt.Errorf("token %s", asset))
	}
	if _, ok := h.strategies[address]; ok {
		return nil, fmt.Errorf("strategy %s already registered", address)
	}
	s := &Strategy{address: address, asset: asset, aprBps: aprBps, host: h}
	h.strategies[address] = s
	h.logger.Debug().Str("strategy", address).Str("asset", asset).Uint32("aprBps", aprBps).Msg("Host: strategy registered")
	return s, nil
}

// AddRouter registers a swap router.
func (h *Host) AddRouter(address string) *Router {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.routers[address]; ok {
		return r
	}
	r := &Router{address: address, host: h, pairs: make(map[[2]string]string)}
	h.routers[address] = r
	return r
}

// AddFactory registers a factory with a fixed protocol fee.
func (h *Host) AddFactory(address string, feeBps uint32, receiver string) *Factory {
	h.mu.Lock()
	defer h.mu.Unlock()
	f := &Factory{feeBps: feeBps, receiver: receiver}
	h.factories[address] = f
	return f
}

// Mint credits amount of denom to `to`.
func (h *Host) Mint(ctx context.Context, denom, to string, amount sdkmath.Int) error {
	t, err := h.token(denom)
	if err != nil {
		return err
	}
	return t.Mint(ctx, to, amount)
}

func (h *Host) token(denom string) (*Token, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	t, ok := h.tokens[denom]
	if !ok {
		return nil, errors.Join(ErrUnknownContract, fmt.Errorf("token %s", denom))
	}
	return t, nil
}

func (h *Host) balanceOf(ctx context.Context, denom, holder string) (sdkmath.Int, error) {
	t, err := h.token(denom)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return t.Balance(ctx, holder)
}

func (h *Host) Token(address string) (types.TokenClient, error) {
	return h.token(address)
}

func (h *Host) Strategy(address string) (types.StrategyClient, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.strategies[address]
	if !ok {
		return nil, errors.Join(ErrUnknownContract, fmt.Errorf("strategy %s", address))
	}
	return s, nil
}

func (h *Host) Router(address string) (types.RouterClient, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.routers[address]
	if !ok {
		return nil, errors.Join(ErrUnknownContract, fmt.Errorf("router %s", address))
	}
	return r, nil
}

func (h *Host) Factory(address string) (types.FactoryClient, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	f, ok := h.factories[address]
	if !ok {
		return nil, errors.Join(ErrUnknownContract, fmt.Errorf("factory %s", address))
	}
	return f, nil
}

// Factory serves a protocol fee rate and receiver.
type Factory struct {
	mu       sync.RWMutex
	feeBps   uint32
	receiver string
}

var _ types.FactoryClient = (*Factory)(nil)

func (f *Factory) FeeRate(ctx context.Context) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.feeBps, nil
}

func (f *Factory) FeeReceiver(ctx context.Context) (string, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.receiver, nil
}

// SetFeeRate changes the protocol fee served to vaults.
func (f *Factory) SetFeeRate(feeBps uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.feeBps = feeBps
}

// ManualClock is a ledger clock advanced explicitly.
type ManualClock struct {
	mu  sync.RWMutex
	now uint64
}

var _ types.Clock = (*ManualClock)(nil)

func NewManualClock(start uint64) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

// Advance moves the clock forward by seconds.
func (c *ManualClock) Advance(seconds uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}
