// Package gateway exposes a contract host over gRPC and resolves remote
// contracts for a vault. Messages travel as JSON; the caller's signers, invoker
// and transfer permits travel as metadata.
package gateway

import (
	"context"

	sdkmath "cosmossdk.io/math"
	"google.golang.org/grpc"
)

const serviceName = "defindex.contracts.v1.Contracts"

// Method names of the contracts service.
const (
	MethodTokenBalance       = "TokenBalance"
	MethodTokenTransfer      = "TokenTransfer"
	MethodStrategyAsset      = "StrategyAsset"
	MethodStrategyDeposit    = "StrategyDeposit"
	MethodStrategyWithdraw   = "StrategyWithdraw"
	MethodStrategyBalance    = "StrategyBalance"
	MethodStrategyHarvest    = "StrategyHarvest"
	MethodRouterPairFor      = "RouterPairFor"
	MethodRouterGetReserves  = "RouterGetReserves"
	MethodRouterSwapExactIn  = "RouterSwapExactIn"
	MethodRouterSwapExactOut = "RouterSwapExactOut"
	MethodFactoryFeeRate     = "FactoryFeeRate"
	MethodFactoryFeeReceiver = "FactoryFeeReceiver"
)

// Metadata keys carrying the caller's authorization.
const (
	mdSigners = "x-defindex-signers"
	mdInvoker = "x-defindex-invoker"
	mdPermits = "x-defindex-permits"
)

// CallRequest is the request of every contracts method. Each method reads the fields it needs.
type CallRequest struct {
	Contract string      `json:"contract"`
	Holder   string      `json:"holder,omitempty"`
	From     string      `json:"from,omitempty"`
	To       string      `json:"to,omitempty"`
	Amount   sdkmath.Int `json:"amount,omitempty"`
	Limit    sdkmath.Int `json:"limit,omitempty"`
	TokenA   string      `json:"token_a,omitempty"`
	TokenB   string      `json:"token_b,omitempty"`
	Path     []string    `json:"path,omitempty"`
	Deadline uint64      `json:"deadline,omitempty"`
	Data     []byte      `json:"data,omitempty"`
}

// CallResponse is the response of every contracts method.
type CallResponse struct {
	Amount   sdkmath.Int   `json:"amount,omitempty"`
	Amounts  []sdkmath.Int `json:"amounts,omitempty"`
	ReserveA sdkmath.Int   `json:"reserve_a,omitempty"`
	ReserveB sdkmath.Int   `json:"reserve_b,omitempty"`
	Address  string        `json:"address,omitempty"`
	FeeBps   uint32        `json:"fee_bps,omitempty"`
}

// contractsServer is the handler type registered with the service description.
type contractsServer interface {
	handle(ctx context.Context, method string, req *CallRequest) (*CallResponse, error)
}

func fullMethod(method string) string {
	return "/" + serviceName + "/" + method
}

func methodHandler(method string) func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		req := new(CallRequest)
		if err := dec(req); err != nil {
			return nil, err
		}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return srv.(contractsServer).handle(ctx, method, req.(*CallRequest))
		}
		if interceptor == nil {
			return handler(ctx, req)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		return interceptor(ctx, req, info, handler)
	}
}

func serviceDesc() *grpc.ServiceDesc {
	methods := []string{
		MethodTokenBalance, MethodTokenTransfer,
		MethodStrategyAsset, MethodStrategyDeposit, MethodStrategyWithdraw, MethodStrategyBalance, MethodStrategyHarvest,
		MethodRouterPairFor, MethodRouterGetReserves, MethodRouterSwapExactIn, MethodRouterSwapExactOut,
		MethodFactoryFeeRate, MethodFactoryFeeReceiver,
	}
	desc := &grpc.ServiceDesc{
		ServiceName: serviceName,
		HandlerType: (*contractsServer)(nil),
		Streams:     []grpc.StreamDesc{},
		Metadata:    "defindex/contracts/v1/contracts.json",
	}
	for _, m := range methods {
		desc.Methods = append(desc.Methods, grpc.MethodDesc{MethodName: m, Handler: methodHandler(m)})
	}
	return desc
}
