package gateway

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/types"
)

// Client resolves contracts served by a remote gateway.
type Client struct {
	conn   *grpc.ClientConn
	owned  bool
	logger zerolog.Logger
}

var _ types.ContractResolver = (*Client)(nil)

// Dial connects to endpoint. Endpoints on port 443 use TLS.
func Dial(endpoint string, opts ...grpc.DialOption) (*Client, error) {
	if endpoint == "" {
		return nil, errors.New("gateway endpoint cannot be empty")
	}
	var creds grpc.DialOption
	if strings.Contains(endpoint, ":443") {
		creds = grpc.WithTransportCredentials(credentials.NewTLS(&tls.Config{}))
	} else {
		creds = grpc.WithTransportCredentials(insecure.NewCredentials())
	}
	conn, err := grpc.NewClient(endpoint, append([]grpc.DialOption{creds}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to gateway %s: %w", endpoint, err)
	}
	c := NewClient(conn)
	c.owned = true
	c.logger.Info().Str("endpoint", endpoint).Msg("Gateway: client connected")
	return c, nil
}

// NewClient wraps an existing connection. Close leaves it open.
func NewClient(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, logger: logger.GetForComponent("gateway_client")}
}

// Close releases a connection opened by Dial.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// outgoing forwards the caller's authorization as metadata.
func outgoing(ctx context.Context) (context.Context, error) {
	var kv []string
	if signers := auth.Signers(ctx); len(signers) > 0 {
		kv = append(kv, mdSigners, strings.Join(signers, ","))
	}
	if invoker := auth.Invoker(ctx); invoker != "" {
		kv = append(kv, mdInvoker, invoker)
	}
	if permits := auth.Permits(ctx); len(permits) > 0 {
		encoded, err := json.Marshal(permits)
		if err != nil {
			return nil, fmt.Errorf("failed to encode permits: %w", err)
		}
		kv = append(kv, mdPermits, string(encoded))
	}
	if len(kv) == 0 {
		return ctx, nil
	}
	return metadata.AppendToOutgoingContext(ctx, kv...), nil
}

func (c *Client) invoke(ctx context.Context, method string, req *CallRequest) (*CallResponse, error) {
	ctx, err := outgoing(ctx)
	if err != nil {
		return nil, err
	}
	resp := new(CallResponse)
	if err := c.conn.Invoke(ctx, fullMethod(method), req, resp, grpc.CallContentSubtype(codecName)); err != nil {
		return nil, fromStatus(method, req.Contract, err)
	}
	return resp, nil
}

// fromStatus turns a gRPC status back into a contract error.
func fromStatus(method, contract string, err error) error {
	st := status.Convert(err)
	detail := fmt.Errorf("%s on %s: %s", method, contract, st.Message())
	switch st.Code() {
	case codes.PermissionDenied:
		return errors.Join(auth.ErrUnauthorized, detail)
	case codes.Unimplemented:
		return errors.Join(ErrUnknownMethod, detail)
	default:
		return errors.Join(ErrRemote, detail)
	}
}

func (c *Client) Token(address string) (types.TokenClient, error) {
	return &remoteToken{c: c, address: address}, nil
}

func (c *Client) Strategy(address string) (types.StrategyClient, error) {
	return &remoteStrategy{c: c, address: address}, nil
}

func (c *Client) Router(address string) (types.RouterClient, error) {
	return &remoteRouter{c: c, address: address}, nil
}

func (c *Client) Factory(address string) (types.FactoryClient, error) {
	return &remoteFactory{c: c, address: address}, nil
}

type remoteToken struct {
	c       *Client
	address string
}

func (t *remoteToken) Balance(ctx context.Context, holder string) (sdkmath.Int, error) {
	resp, err := t.c.invoke(ctx, MethodTokenBalance, &CallRequest{Contract: t.address, Holder: holder})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return resp.Amount, nil
}

func (t *remoteToken) Transfer(ctx context.Context, from, to string, amount sdkmath.Int) error {
	_, err := t.c.invoke(ctx, MethodTokenTransfer, &CallRequest{Contract: t.address, From: from, To: to, Amount: amount})
	return err
}

type remoteStrategy struct {
	c       *Client
	address string
}

func (s *remoteStrategy) Asset(ctx context.Context) (string, error) {
	resp, err := s.c.invoke(ctx, MethodStrategyAsset, &CallRequest{Contract: s.address})
	if err != nil {
		return "", err
	}
	return resp.Address, nil
}

func (s *remoteStrategy) Deposit(ctx context.Context, amount sdkmath.Int, from string) (sdkmath.Int, error) {
	resp, err := s.c.invoke(ctx, MethodStrategyDeposit, &CallRequest{Contract: s.address, Amount: amount, From: from})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return resp.Amount, nil
}

func (s *remoteStrategy) Withdraw(ctx context.Context, amount sdkmath.Int, from, to string) (sdkmath.Int, error) {
	resp, err := s.c.invoke(ctx, MethodStrategyWithdraw, &CallRequest{Contract: s.address, Amount: amount, From: from, To: to})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return resp.Amount, nil
}

func (s *remoteStrategy) Balance(ctx context.Context, holder string) (sdkmath.Int, error) {
	resp, err := s.c.invoke(ctx, MethodStrategyBalance, &CallRequest{Contract: s.address, Holder: holder})
	if err != nil {
		return sdkmath.Int{}, err
	}
	return resp.Amount, nil
}

func (s *remoteStrategy) Harvest(ctx context.Context, caller string, data []byte) error {
	_, err := s.c.invoke(ctx, MethodStrategyHarvest, &CallRequest{Contract: s.address, From: caller, Data: data})
	return err
}

type remoteRouter struct {
	c       *Client
	address string
}

func (r *remoteRouter) PairFor(ctx context.Context, tokenA, tokenB string) (string, error) {
	resp, err := r.c.invoke(ctx, MethodRouterPairFor, &CallRequest{Contract: r.address, TokenA: tokenA, TokenB: tokenB})
	if err != nil {
		return "", err
	}
	return resp.Address, nil
}

func (r *remoteRouter) GetReserves(ctx context.Context, tokenA, tokenB string) (sdkmath.Int, sdkmath.Int, error) {
	resp, err := r.c.invoke(ctx, MethodRouterGetReserves, &CallRequest{Contract: r.address, TokenA: tokenA, TokenB: tokenB})
	if err != nil {
		return sdkmath.Int{}, sdkmath.Int{}, err
	}
	return resp.ReserveA, resp.ReserveB, nil
}

func (r *remoteRouter) SwapExactTokensForTokens(ctx context.Context, amountIn, amountOutMin sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error) {
	resp, err := r.c.invoke(ctx, MethodRouterSwapExactIn, &CallRequest{
		Contract: r.address, Amount: amountIn, Limit: amountOutMin, Path: path, To: to, Deadline: deadline,
	})
	if err != nil {
		return nil, err
	}
	return resp.Amounts, nil
}

func (r *remoteRouter) SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax sdkmath.Int, path []string, to string, deadline uint64) ([]sdkmath.Int, error) {
	resp, err := r.c.invoke(ctx, MethodRouterSwapExactOut, &CallRequest{
		Contract: r.address, Amount: amountOut, Limit: amountInMax, Path: path, To: to, Deadline: deadline,
	})
	if err != nil {
		return nil, err
	}
	return resp.Amounts, nil
}

type remoteFactory struct {
	c       *Client
	address string
}

func (f *remoteFactory) FeeRate(ctx context.Context) (uint32, error) {
	resp, err := f.c.invoke(ctx, MethodFactoryFeeRate, &CallRequest{Contract: f.address})
	if err != nil {
		return 0, err
	}
	return resp.FeeBps, nil
}

func (f *remoteFactory) FeeReceiver(ctx context.Context) (string, error) {
	resp, err := f.c.invoke(ctx, MethodFactoryFeeReceiver, &CallRequest{Contract: f.address})
	if err != nil {
		return "", err
	}
	return resp.Address, nil
}
