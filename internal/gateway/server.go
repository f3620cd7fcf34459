package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
)

var (
	ErrUnknownMethod = errors.New("unknown contracts method")
	ErrRemote        = errors.New("remote contract call failed")
)

// ServerConfig holds the dependencies of a contracts server.
type ServerConfig struct {
	Resolver   types.ContractResolver
	Authorizer types.Authorizer
	// Store, when set, runs every call in a branch committed only on success.
	Store *store.Service
}

// Server serves the contracts of a resolver over gRPC.
type Server struct {
	resolver types.ContractResolver
	authz    types.Authorizer
	svc      *store.Service
	grpc     *grpc.Server
	health   *health.Server
	logger   zerolog.Logger
}

// NewServer creates a contracts server.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("contract resolver cannot be nil")
	}
	if cfg.Authorizer == nil {
		return nil, fmt.Errorf("authorizer cannot be nil")
	}

	s := &Server{
		resolver: cfg.Resolver,
		authz:    cfg.Authorizer,
		svc:      cfg.Store,
		health:   health.NewServer(),
		logger:   logger.GetForComponent("gateway_server"),
	}
	s.grpc = grpc.NewServer(grpc.UnaryInterceptor(s.loggingInterceptor))
	s.grpc.RegisterService(serviceDesc(), s)
	healthpb.RegisterHealthServer(s.grpc, s.health)
	s.health.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
	return s, nil
}

// Serve accepts connections on lis until Stop.
func (s *Server) Serve(lis net.Listener) error {
	s.logger.Info().Str("address", lis.Addr().String()).Msg("Gateway: serving contracts")
	return s.grpc.Serve(lis)
}

// Stop drains in flight calls and stops the server.
func (s *Server) Stop() {
	s.health.Shutdown()
	s.grpc.GracefulStop()
}

func (s *Server) loggingInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)
	event := s.logger.Debug()
	if err != nil {
		event = s.logger.Warn().Err(err)
	}
	event.Str("method", info.FullMethod).Dur("duration", time.Since(start)).Msg("Gateway: call handled")
	return resp, err
}

// authContext rebuilds the caller's authorization from the incoming metadata.
func (s *Server) authContext(ctx context.Context) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx, nil
	}
	if signers := md.Get(mdSigners); len(signers) > 0 {
		var addrs []string
		for _, v := range signers {
			addrs = append(addrs, strings.Split(v, ",")...)
		}
		ctx = auth.WithSigners(ctx, addrs...)
	}
	if invoker := md.Get(mdInvoker); len(invoker) > 0 && invoker[0] != "" {
		ctx = s.authz.AsInvoker(ctx, invoker[0])
	}
	if encoded := md.Get(mdPermits); len(encoded) > 0 && encoded[0] != "" {
		var permits []types.TransferPermit
		if err := json.Unmarshal([]byte(encoded[0]), &permits); err != nil {
			return nil, status.Errorf(codes.InvalidArgument, "invalid permits: %v", err)
		}
		ctx = s.authz.Permit(ctx, permits...)
	}
	return ctx, nil
}

func (s *Server) handle(ctx context.Context, method string, req *CallRequest) (*CallResponse, error) {
	ctx, err := s.authContext(ctx)
	if err != nil {
		return nil, err
	}

	write := func() {}
	if s.svc != nil {
		ctx, write = s.svc.Branch(ctx)
	}
	resp, err := s.dispatch(ctx, method, req)
	if err != nil {
		return nil, toStatus(err)
	}
	write()
	return resp, nil
}

func (s *Server) dispatch(ctx context.Context, method string, req *CallRequest) (*CallResponse, error) {
	switch {
	case strings.HasPrefix(method, "Token"):
		token, err := s.resolver.Token(req.Contract)
		if err != nil {
			return nil, err
		}
		return callToken(ctx, token, method, req)
	case strings.HasPrefix(method, "Strategy"):
		strategy, err := s.resolver.Strategy(req.Contract)
		if err != nil {
			return nil, err
		}
		return callStrategy(ctx, strategy, method, req)
	case strings.HasPrefix(method, "Router"):
		router, err := s.resolver.Router(req.Contract)
		if err != nil {
			return nil, err
		}
		return callRouter(ctx, router, method, req)
	case strings.HasPrefix(method, "Factory"):
		factory, err := s.resolver.Factory(req.Contract)
		if err != nil {
			return nil, err
		}
		return callFactory(ctx, factory, method)
	}
	return nil, errors.Join(ErrUnknownMethod, fmt.Errorf("method %s", method))
}

func callToken(ctx context.Context, token types.TokenClient, method string, req *CallRequest) (*CallResponse, error) {
	switch method {
	case MethodTokenBalance:
		balance, err := token.Balance(ctx, req.Holder)
		return &CallResponse{Amount: balance}, err
	case MethodTokenTransfer:
		return &CallResponse{}, token.Transfer(ctx, req.From, req.To, req.Amount)
	}
	return nil, errors.Join(ErrUnknownMethod, fmt.Errorf("method %s", method))
}

func callStrategy(ctx context.Context, strategy types.StrategyClient, method string, req *CallRequest) (*CallResponse, error) {
	switch method {
	case MethodStrategyAsset:
		asset, err := strategy.Asset(ctx)
		return &CallResponse{Address: asset}, err
	case MethodStrategyDeposit:
		balance, err := strategy.Deposit(ctx, req.Amount, req.From)
		return &CallResponse{Amount: balance}, err
	case MethodStrategyWithdraw:
		withdrawn, err := strategy.Withdraw(ctx, req.Amount, req.From, req.To)
		return &CallResponse{Amount: withdrawn}, err
	case MethodStrategyBalance:
		balance, err := strategy.Balance(ctx, req.Holder)
		return &CallResponse{Amount: balance}, err
	case MethodStrategyHarvest:
		return &CallResponse{}, strategy.Harvest(ctx, req.From, req.Data)
	}
	return nil, errors.Join(ErrUnknownMethod, fmt.Errorf("method %s", method))
}

func callRouter(ctx context.Context, router types.RouterClient, method string, req *CallRequest) (*CallResponse, error) {
	switch method {
	case MethodRouterPairFor:
		pair, err := router.PairFor(ctx, req.TokenA, req.TokenB)
		return &CallResponse{Address: pair}, err
	case MethodRouterGetReserves:
		reserveA, reserveB, err := router.GetReserves(ctx, req.TokenA, req.TokenB)
		return &CallResponse{ReserveA: reserveA, ReserveB: reserveB}, err
	case MethodRouterSwapExactIn:
		amounts, err := router.SwapExactTokensForTokens(ctx, req.Amount, req.Limit, req.Path, req.To, req.Deadline)
		return &CallResponse{Amounts: amounts}, err
	case MethodRouterSwapExactOut:
		amounts, err := router.SwapTokensForExactTokens(ctx, req.Amount, req.Limit, req.Path, req.To, req.Deadline)
		return &CallResponse{Amounts: amounts}, err
	}
	return nil, errors.Join(ErrUnknownMethod, fmt.Errorf("method %s", method))
}

func callFactory(ctx context.Context, factory types.FactoryClient, method string) (*CallResponse, error) {
	switch method {
	case MethodFactoryFeeRate:
		rate, err := factory.FeeRate(ctx)
		return &CallResponse{FeeBps: rate}, err
	case MethodFactoryFeeReceiver:
		receiver, err := factory.FeeReceiver(ctx)
		return &CallResponse{Address: receiver}, err
	}
	return nil, errors.Join(ErrUnknownMethod, fmt.Errorf("method %s", method))
}

// toStatus maps contract errors onto gRPC codes.
func toStatus(err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, ErrUnknownMethod):
		return status.Error(codes.Unimplemented, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.FailedPrecondition, err.Error())
	}
}
