package vault

import (
	"errors"
	"fmt"
	"strings"

	sdkmath "cosmossdk.io/math"
	storetypes "cosmossdk.io/store/types"

	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/store"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
)

const (
	keyInitialized        = "initialized"
	keyAssets             = "assets"
	keyFees               = "fees"
	keyProtocolReceiver   = "protocol_receiver"
	keyFactory            = "factory"
	keyRouter             = "router"
	keyMetadata           = "metadata"
	keyLastFeeAssessment  = "last_fee_assessment"
	keyRolePrefix         = "roles/"
	keyReportPrefix       = "report/"
	keyShareBalancePrefix = "share/balance/"
	keyShareSupply        = "share/supply"
)

// repository is the typed view over the vault namespace of the store.
type repository struct {
	kv storetypes.KVStore
}

func newRepository(kv storetypes.KVStore) *repository {
	return &repository{kv: kv}
}

func (r *repository) isInitialized() (bool, error) {
	var initialized bool
	if _, err := store.GetJSON(r.kv, keyInitialized, &initialized); err != nil {
		return false, err
	}
	return initialized, nil
}

func (r *repository) setInitialized() error {
	return store.SetJSON(r.kv, keyInitialized, true)
}

func (r *repository) getAssets() ([]types.AssetStrategySet, error) {
	var assets []types.AssetStrategySet
	if _, err := store.GetJSON(r.kv, keyAssets, &assets); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *repository) setAssets(assets []types.AssetStrategySet) error {
	return store.SetJSON(r.kv, keyAssets, assets)
}

func (r *repository) getRole(role types.Role) (string, error) {
	var addr string
	found, err := store.GetJSON(r.kv, keyRolePrefix+string(role), &addr)
	if err != nil {
		return "", err
	}
	if !found || addr == "" {
		return "", errors.Join(ErrRoleNotSet, fmt.Errorf("role %s", role))
	}
	return addr, nil
}

func (r *repository) setRole(role types.Role, addr string) error {
	return store.SetJSON(r.kv, keyRolePrefix+string(role), addr)
}

func (r *repository) getFees() (types.Fees, error) {
	var fees types.Fees
	if _, err := store.GetJSON(r.kv, keyFees, &fees); err != nil {
		return types.Fees{}, err
	}
	return fees, nil
}

func (r *repository) setFees(fees types.Fees) error {
	return store.SetJSON(r.kv, keyFees, fees)
}

func (r *repository) getString(key string) (string, error) {
	var value string
	if _, err := store.GetJSON(r.kv, key, &value); err != nil {
		return "", err
	}
	return value, nil
}

func (r *repository) setString(key, value string) error {
	return store.SetJSON(r.kv, key, value)
}

func (r *repository) getMetadata() (types.Metadata, error) {
	var md types.Metadata
	if _, err := store.GetJSON(r.kv, keyMetadata, &md); err != nil {
		return types.Metadata{}, err
	}
	return md, nil
}

func (r *repository) setMetadata(md types.Metadata) error {
	return store.SetJSON(r.kv, keyMetadata, md)
}

// getLastFeeAssessment reports false when fees were never assessed.
func (r *repository) getLastFeeAssessment() (uint64, bool, error) {
	var ts uint64
	found, err := store.GetJSON(r.kv, keyLastFeeAssessment, &ts)
	return ts, found, err
}

func (r *repository) setLastFeeAssessment(ts uint64) error {
	return store.SetJSON(r.kv, keyLastFeeAssessment, ts)
}

// getReport returns the report of strategy, or a zero report if none was stored yet.
func (r *repository) getReport(strategy string) (report.Report, error) {
	rep := report.New()
	found, err := store.GetJSON(r.kv, keyReportPrefix+strategy, &rep)
	if err != nil {
		return report.Report{}, err
	}
	if !found {
		return report.New(), nil
	}
	return rep.Normalize(), nil
}

func (r *repository) setReport(strategy string, rep report.Report) error {
	return store.SetJSON(r.kv, keyReportPrefix+strategy, rep)
}

func (r *repository) allReports() (map[string]report.Report, error) {
	reports := make(map[string]report.Report)
	for _, key := range store.Keys(r.kv, keyReportPrefix) {
		strategy := strings.TrimPrefix(key, keyReportPrefix)
		rep, err := r.getReport(strategy)
		if err != nil {
			return nil, err
		}
		reports[strategy] = rep
	}
	return reports, nil
}

func (r *repository) shareBalance(holder string) (sdkmath.Int, error) {
	balance := sdkmath.ZeroInt()
	if _, err := store.GetJSON(r.kv, keyShareBalancePrefix+holder, &balance); err != nil {
		return sdkmath.Int{}, err
	}
	return utils.OrZero(balance), nil
}

func (r *repository) setShareBalance(holder string, balance sdkmath.Int) error {
	if balance.IsZero() {
		r.kv.Delete([]byte(keyShareBalancePrefix + holder))
		return nil
	}
	return store.SetJSON(r.kv, keyShareBalancePrefix+holder, balance)
}

func (r *repository) totalSupply() (sdkmath.Int, error) {
	supply := sdkmath.ZeroInt()
	if _, err := store.GetJSON(r.kv, keyShareSupply, &supply); err != nil {
		return sdkmath.Int{}, err
	}
	return utils.OrZero(supply), nil
}

func (r *repository) setTotalSupply(supply sdkmath.Int) error {
	return store.SetJSON(r.kv, keyShareSupply, supply)
}

// shareHolders lists every address with a non zero share balance.
func (r *repository) shareHolders() []string {
	keys := store.Keys(r.kv, keyShareBalancePrefix)
	holders := make([]string, 0, len(keys))
	for _, key := range keys {
		holders = append(holders, strings.TrimPrefix(key, keyShareBalancePrefix))
	}
	return holders
}
