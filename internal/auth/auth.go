// Package auth carries call authorization through a context: the addresses that
// signed the call, the contract currently invoking, and single use transfer permits.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/elys-network/defindex/internal/types"
)

var (
	ErrUnauthorized = errors.New("authorization missing")
	ErrEmptyAddress = errors.New("address cannot be empty")
)

type signersKey struct{}
type invokerKey struct{}
type permitsKey struct{}

// permitBook holds the permits of one call frame. Consumed permits stay consumed
// for every context derived from the frame.
type permitBook struct {
	mu      sync.Mutex
	parent  *permitBook
	permits []types.TransferPermit
	used    []bool
}

// Authorizer implements types.Authorizer over context values.
type Authorizer struct{}

var _ types.Authorizer = Authorizer{}

// WithSigners returns a context in which every addr has signed the call.
func WithSigners(ctx context.Context, addrs ...string) context.Context {
	signers := make(map[string]struct{}, len(addrs))
	if existing, ok := ctx.Value(signersKey{}).(map[string]struct{}); ok {
		for addr := range existing {
			signers[addr] = struct{}{}
		}
	}
	for _, addr := range addrs {
		signers[addr] = struct{}{}
	}
	return context.WithValue(ctx, signersKey{}, signers)
}

// Signers returns the addresses that signed the call, sorted.
func Signers(ctx context.Context) []string {
	signers, _ := ctx.Value(signersKey{}).(map[string]struct{})
	out := make([]string, 0, len(signers))
	for addr := range signers {
		out = append(out, addr)
	}
	sort.Strings(out)
	return out
}

// Invoker returns the contract that issued the current call, if any.
func Invoker(ctx context.Context) string {
	invoker, _ := ctx.Value(invokerKey{}).(string)
	return invoker
}

// Permits returns the unconsumed permits visible from ctx.
func Permits(ctx context.Context) []types.TransferPermit {
	book, _ := ctx.Value(permitsKey{}).(*permitBook)
	var out []types.TransferPermit
	for b := book; b != nil; b = b.parent {
		b.mu.Lock()
		for i, p := range b.permits {
			if !b.used[i] {
				out = append(out, p)
			}
		}
		b.mu.Unlock()
	}
	return out
}

func (Authorizer) RequireAuth(ctx context.Context, addr string) error {
	if addr == "" {
		return errors.Join(ErrUnauthorized, ErrEmptyAddress)
	}
	if Invoker(ctx) == addr {
		return nil
	}
	if signers, ok := ctx.Value(signersKey{}).(map[string]struct{}); ok {
		if _, signed := signers[addr]; signed {
			return nil
		}
	}
	return errors.Join(ErrUnauthorized, fmt.Errorf("address %s did not authorize the call", addr))
}

func (Authorizer) AsInvoker(ctx context.Context, addr string) context.Context {
	return context.WithValue(ctx, invokerKey{}, addr)
}

func (Authorizer) Permit(ctx context.Context, permits ...types.TransferPermit) context.Context {
	if len(permits) == 0 {
		return ctx
	}
	parent, _ := ctx.Value(permitsKey{}).(*permitBook)
	book := &permitBook{
		parent:  parent,
		permits: append([]types.TransferPermit(nil), permits...),
		used:    make([]bool, len(permits)),
	}
	return context.WithValue(ctx, permitsKey{}, book)
}

func (a Authorizer) RequireTransfer(ctx context.Context, transfer types.TransferPermit) error {
	book, _ := ctx.Value(permitsKey{}).(*permitBook)
	for b := book; b != nil; b = b.parent {
		if b.consume(transfer) {
			return nil
		}
	}
	return a.RequireAuth(ctx, transfer.From)
}

// consume marks the first permit covering transfer as used.
func (b *permitBook) consume(transfer types.TransferPermit) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, p := range b.permits {
		if b.used[i] {
			continue
		}
		if p.Token != transfer.Token || p.From != transfer.From || p.To != transfer.To {
			continue
		}
		if p.Amount.IsNil() || transfer.Amount.GT(p.Amount) {
			continue
		}
		b.used[i] = true
		return true
	}
	return false
}
