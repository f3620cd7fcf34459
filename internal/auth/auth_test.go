package auth_test

import (
	"context"
	"errors"
	"testing"

	sdkmath "cosmossdk.io/math"
	"github.com/stretchr/testify/require"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/types"
)

func TestRequireAuth(t *testing.T) {
	a := auth.Authorizer{}
	ctx := auth.WithSigners(context.Background(), "alice")

	require.NoError(t, a.RequireAuth(ctx, "alice"))
	err := a.RequireAuth(ctx, "bob")
	require.True(t, errors.Is(err, auth.ErrUnauthorized), "bob never signed")

	// The invoker is authorized for its own address only.
	invoked := a.AsInvoker(ctx, "vault")
	require.NoError(t, a.RequireAuth(invoked, "vault"))
	require.NoError(t, a.RequireAuth(invoked, "alice"))
	require.Error(t, a.RequireAuth(ctx, "vault"))
	require.Error(t, a.RequireAuth(ctx, ""))
}

func TestPermitIsSingleUse(t *testing.T) {
	a := auth.Authorizer{}
	permit := types.TransferPermit{Token: "usdc", From: "vault", To: "strategy", Amount: sdkmath.NewInt(100)}
	ctx := a.Permit(context.Background(), permit)

	// ARRANGE: a smaller transfer than permitted is fine
	transfer := permit
	transfer.Amount = sdkmath.NewInt(60)

	// ACT
	require.NoError(t, a.RequireTransfer(ctx, transfer))

	// ASSERT: the permit was consumed
	require.Error(t, a.RequireTransfer(ctx, transfer))
	require.Empty(t, auth.Permits(ctx))
}

func TestPermitDoesNotCoverOtherTransfers(t *testing.T) {
	a := auth.Authorizer{}
	permit := types.TransferPermit{Token: "usdc", From: "vault", To: "strategy", Amount: sdkmath.NewInt(100)}
	ctx := a.Permit(context.Background(), permit)

	tooMuch := permit
	tooMuch.Amount = sdkmath.NewInt(101)
	require.Error(t, a.RequireTransfer(ctx, tooMuch))

	otherRecipient := permit
	otherRecipient.To = "attacker"
	require.Error(t, a.RequireTransfer(ctx, otherRecipient))

	require.Len(t, auth.Permits(ctx), 1)
}
