package sim

import (
	"context"
	"errors"
	"fmt"
	"sync"

	sdkmath "cosmossdk.io/math"

	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

// position is a depositor's stake, accrued up to LastUpdate.
type position struct {
	Amount     sdkmath.Int `json:"amount"`
	LastUpdate uint64      `json:"last_update"`
}

// Strategy holds deposits of one asset and accrues simple interest at a fixed APR
// on every touch. An APR of zero is a plain holding strategy.
// Interest is paid out of the strategy's own token balance, which the host seeds.
type Strategy struct {
	address string
	asset   string
	aprBps  uint32
	host    *Host

	mu     sync.RWMutex
	halted error
}

var _ types.StrategyClient = (*Strategy)(nil)

func (s *Strategy) namespace() string {
	return "strategy/" + s.address + "/"
}

// Address returns the strategy address.
func (s *Strategy) Address() string {
	return s.address
}

// Halt makes every state changing call fail with err until Resume. Balance keeps working.
func (s *Strategy) Halt(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = err
}

func (s *Strategy) Resume() {
	s.Halt(nil)
}

func (s *Strategy) checkHalted() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.halted != nil {
		return errors.Join(ErrHalted, s.halted)
	}
	return nil
}

func (s *Strategy) loadPosition(ctx context.Context, holder string) (position, error) {
	pos := position{Amount: sdkmath.ZeroInt()}
	if _, err := store.GetJSON(s.host.svc.Prefixed(ctx, s.namespace()), "position/"+holder, &pos); err != nil {
		return position{}, err
	}
	pos.Amount = utils.OrZero(pos.Amount)
	return pos, nil
}

func (s *Strategy) savePosition(ctx context.Context, holder string, pos position) error {
	return store.SetJSON(s.host.svc.Prefixed(ctx, s.namespace()), "position/"+holder, pos)
}

// accrued returns the position value at now without storing it.
func (s *Strategy) accrued(pos position, now uint64) (sdkmath.Int, error) {
	if s.aprBps == 0 || now <= pos.LastUpdate || pos.Amount.IsZero() {
		return pos.Amount, nil
	}
	elapsed := sdkmath.NewIntFromUint64(now - pos.LastUpdate)
	rate, err := utils.Mul(sdkmath.NewInt(int64(s.aprBps)), elapsed)
	if err != nil {
		return sdkmath.Int{}, err
	}
	interest, err := utils.MulDiv(pos.Amount, rate, sdkmath.NewInt(types.MaxBPS*types.SecondsPerYear))
	if err != nil {
		return sdkmath.Int{}, err
	}
	return utils.Add(pos.Amount, interest)
}

// touch accrues a position up to now.
func (s *Strategy) touch(ctx context.Context, holder string) (position, error) {
	pos, err := s.loadPosition(ctx, holder)
	if err != nil {
		return position{}, err
	}
	now := s.host.clock.Now()
	amount, err := s.accrued(pos, now)
	if err != nil {
		return position{}, err
	}
	return position{Amount: amount, LastUpdate: now}, nil
}

func (s *Strategy) Asset(ctx context.Context) (string, error) {
	return s.asset, nil
}

func (s *Strategy) Deposit(ctx context.Context, amount sdkmath.Int, from string) (sdkmath.Int, error) {
	if err := s.checkHalted(); err != nil {
		return sdkmath.Int{}, err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("strategy %s: deposit amount must be positive", s.address)
	}
	token, err := s.host.token(s.asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := token.Transfer(s.host.auth.AsInvoker(ctx, s.address), from, s.address, amount); err != nil {
		return sdkmath.Int{}, err
	}

	pos, err := s.touch(ctx, from)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if pos.Amount, err = utils.Add(pos.Amount, amount); err != nil {
		return sdkmath.Int{}, err
	}
	if err := s.savePosition(ctx, from, pos); err != nil {
		return sdkmath.Int{}, err
	}
	return pos.Amount, nil
}

func (s *Strategy) Withdraw(ctx context.Context, amount sdkmath.Int, from, to string) (sdkmath.Int, error) {
	if err := s.checkHalted(); err != nil {
		return sdkmath.Int{}, err
	}
	if err := s.host.auth.RequireAuth(ctx, from); err != nil {
		return sdkmath.Int{}, err
	}
	if amount.IsNil() || !amount.IsPositive() {
		return sdkmath.Int{}, fmt.Errorf("strategy %s: withdraw amount must be positive", s.address)
	}

	pos, err := s.touch(ctx, from)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if amount.GT(pos.Amount) {
		return sdkmath.Int{}, errors.Join(ErrInsufficientBalance,
			fmt.Errorf("strategy %s: %s holds %s, %s requested", s.address, from, pos.Amount, amount))
	}
	pos.Amount = pos.Amount.Sub(amount)
	if err := s.savePosition(ctx, from, pos); err != nil {
		return sdkmath.Int{}, err
	}

	token, err := s.host.token(s.asset)
	if err != nil {
		return sdkmath.Int{}, err
	}
	if err := token.Transfer(s.host.auth.AsInvoker(ctx, s.address), s.address, to, amount); err != nil {
		return sdkmath.Int{}, err
	}
	return amount, nil
}

func (s *Strategy) Balance(ctx context.Context, holder string) (sdkmath.Int, error) {
	pos, err := s.loadPosition(ctx, holder)
	if err != nil {
		return sdkmath.Int{}, err
	}
	return s.accrued(pos, s.host.clock.Now())
}

// Harvest settles the caller's accrued interest into its position.
func (s *Strategy) Harvest(ctx context.Context, caller string, data []byte) error {
	if err := s.checkHalted(); err != nil {
		return err
	}
	if err := s.host.auth.RequireAuth(ctx, caller); err != nil {
		return err
	}
	pos, err := s.touch(ctx, caller)
	if err != nil {
		return err
	}
	return s.savePosition(ctx, caller, pos)
}
