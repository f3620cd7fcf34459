package vault

import (
	"errors"

	"github.com/elys-network/defindex/internal/auth"
	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/utils"
)

// Initialization errors
var (
	ErrNotInitialized              = errors.New("vault is not initialized")
	ErrAlreadyInitialized          = errors.New("vault is already initialized")
	ErrNoAssetAllocation           = errors.New("no asset allocation")
	ErrStrategyDoesNotSupportAsset = errors.New("strategy does not support asset")
	ErrInvalidAsset                = errors.New("asset is invalid")
	ErrInvalidFee                  = errors.New("fee is invalid")
	ErrRoleNotSet                  = errors.New("role is not set")
	ErrInvalidMetadata             = errors.New("share token metadata is invalid")
	ErrInvalidVaultConfig          = errors.New("vault configuration is invalid")
	ErrInvalidInitParams           = errors.New("initialization parameters are invalid")
)

// Validation errors
var (
	ErrNegativeNotAllowed     = report.ErrNegativeNotAllowed
	ErrWrongAmountsLength     = errors.New("wrong amounts length")
	ErrWrongAllocationsLength = errors.New("wrong allocations length")
	ErrInsufficientAmount     = errors.New("insufficient amount")
	ErrAmountOverTotalSupply  = errors.New("amount over total supply")
	ErrInsufficientBalance    = errors.New("insufficient share balance")
	ErrUnsupportedAsset       = errors.New("unsupported asset")
	ErrMissingDeadline        = errors.New("swap deadline is required")
	ErrNoInstructions         = errors.New("no instructions")
	ErrInvalidInstruction     = errors.New("instruction is invalid")
)

// Arithmetic and authorization errors
var (
	ErrArithmetic   = utils.ErrArithmetic
	ErrUnauthorized = auth.ErrUnauthorized
)

// Strategy and router interaction errors
var (
	ErrStrategyNotFound         = errors.New("strategy not found")
	ErrStrategyPaused           = errors.New("strategy is paused")
	ErrStrategyInvest           = errors.New("strategy invest failed")
	ErrStrategyWithdraw         = errors.New("strategy withdraw failed")
	ErrStrategyQuery            = errors.New("strategy query failed")
	ErrSwap                     = errors.New("swap failed")
	ErrExcessiveInputAmount     = errors.New("excessive input amount")
	ErrInsufficientOutputAmount = errors.New("insufficient output amount")
	ErrTokenTransfer            = errors.New("token transfer failed")
	ErrTokenQuery               = errors.New("token query failed")
	ErrFactoryQuery             = errors.New("factory query failed")
)

// Funds errors
var (
	ErrInsufficientManagedFunds = report.ErrInsufficientManagedFunds
	ErrInsufficientIdleFunds    = errors.New("insufficient idle funds")
)
