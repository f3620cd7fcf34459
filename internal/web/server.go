package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strconv"
	"time"

	sdkmath "cosmossdk.io/math"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/elys-network/defindex/internal/logger"
	"github.com/elys-network/defindex/internal/report"
	"github.com/elys-network/defindex/internal/state"
	"github.com/elys-network/defindex/internal/types"
	"github.com/elys-network/defindex/internal/utils"
	"github.com/elys-network/defindex/internal/vault"
)

// VaultReader is the read only surface of a vault served over HTTP.
type VaultReader interface {
	Address() string
	FetchTotalManagedFunds(ctx context.Context) ([]types.CurrentAssetInvestmentAllocation, error)
	GetAssetAmountsPerShares(ctx context.Context, shares sdkmath.Int) (map[string]sdkmath.Int, error)
	GetAssets(ctx context.Context) ([]types.AssetStrategySet, error)
	GetReports(ctx context.Context) (map[string]report.Report, error)
	GetFees(ctx context.Context) (types.Fees, error)
	GetRole(ctx context.Context, role types.Role) (string, error)
	BalanceOf(ctx context.Context, holder string) (sdkmath.Int, error)
	TotalSupply(ctx context.Context) (sdkmath.Int, error)
	Metadata(ctx context.Context) (types.Metadata, error)
}

// JournalReader serves the operation history. It is optional.
type JournalReader interface {
	RecentOperations(ctx context.Context, limit int) ([]state.OperationEntry, error)
	Operation(ctx context.Context, id string) (*state.OperationEntry, error)
	Summary(ctx context.Context) (*state.OperationSummary, error)
	JobRuns(ctx context.Context) ([]state.JobRun, error)
	Healthy(ctx context.Context) error
}

// WebServer serves vault state and the operation journal as JSON.
type WebServer struct {
	router  *mux.Router
	port    string
	vault   VaultReader
	journal JournalReader
	started time.Time
	server  *http.Server
	logger  zerolog.Logger
}

// NewWebServer creates a new web server instance. journal may be nil.
func NewWebServer(port string, v VaultReader, journal JournalReader) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:  mux.NewRouter(),
		port:    port,
		vault:   v,
		journal: journal,
		started: time.Now(),
		logger:  logger.GetForComponent("web_server"),
	}

	server.setupRoutes()
	server.server = &http.Server{
		Addr:         ":" + port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault", ws.handleGetVault).Methods("GET")
	api.HandleFunc("/vault/funds", ws.handleGetFunds).Methods("GET")
	api.HandleFunc("/vault/assets", ws.handleGetAssets).Methods("GET")
	api.HandleFunc("/vault/reports", ws.handleGetReports).Methods("GET")
	api.HandleFunc("/vault/quote", ws.handleGetQuote).Methods("GET")
	api.HandleFunc("/vault/shares/{holder}", ws.handleGetShares).Methods("GET")
	api.HandleFunc("/operations", ws.handleGetOperations).Methods("GET")
	api.HandleFunc("/operations/summary", ws.handleGetOperationSummary).Methods("GET")
	api.HandleFunc("/operations/{id}", ws.handleGetOperation).Methods("GET")
	api.HandleFunc("/jobs", ws.handleGetJobs).Methods("GET")

	ws.router.Use(ws.loggingMiddleware)
}

// Handler returns the router wrapped in CORS handling. Preflight requests never reach a route.
func (ws *WebServer) Handler() http.Handler {
	return ws.corsMiddleware(ws.router)
}

// Start starts the web server and blocks until it is shut down.
func (ws *WebServer) Start() error {
	ws.logger.Info().Str("port", ws.port).Msg("Starting web server")

	if err := ws.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops a started server.
func (ws *WebServer) Shutdown(ctx context.Context) error {
	return ws.server.Shutdown(ctx)
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Get runtime memory stats
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false
	vaultInfo := map[string]interface{}{"address": ws.vault.Address()}
	supply, err := ws.vault.TotalSupply(r.Context())
	if err != nil {
		hasErrors = true
		vaultInfo["error"] = err.Error()
	} else {
		vaultInfo["total_supply"] = supply
	}

	journalInfo := map[string]interface{}{"enabled": ws.journal != nil}
	if ws.journal != nil {
		dbHealthy := true
		if err := ws.journal.Healthy(r.Context()); err != nil {
			dbHealthy = false
			hasErrors = true
		}
		journalInfo["database_healthy"] = dbHealthy
	}

	// Determine overall status
	overallStatus := "OK"
	if hasErrors {
		overallStatus = "DEGRADED"
	}

	response := map[string]interface{}{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		"system": map[string]interface{}{
			"version":          runtime.Version(),
			"goroutines_count": runtime.NumGoroutine(),
			"alloc_bytes":      memStats.Alloc,
			"sys_bytes":        memStats.Sys,
			"gc_cycles":        memStats.NumGC,
			"uptime_seconds":   int64(time.Since(ws.started).Seconds()),
		},
		"component": map[string]interface{}{
			"name":    "defindex-vault",
			"version": "1.0.0",
		},
		"vault":   vaultInfo,
		"journal": journalInfo,
	}

	// Set appropriate HTTP status code
	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVault returns the share token, fees and roles of the vault
func (ws *WebServer) handleGetVault(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	metadata, err := ws.vault.Metadata(ctx)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve vault metadata")
		return
	}
	fees, err := ws.vault.GetFees(ctx)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve vault fees")
		return
	}
	supply, err := ws.vault.TotalSupply(ctx)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve total supply")
		return
	}
	roles := make(map[types.Role]string, len(types.AllRoles))
	for _, role := range types.AllRoles {
		addr, err := ws.vault.GetRole(ctx, role)
		if err != nil {
			ws.writeVaultError(w, err, "Failed to retrieve vault roles")
			return
		}
		roles[role] = addr
	}

	supplyDisplay, err := utils.SDKIntToFloat64(supply, int(metadata.Decimals))
	if err != nil {
		ws.writeVaultError(w, err, "Failed to convert total supply")
		return
	}

	response := map[string]interface{}{
		"address":              ws.vault.Address(),
		"metadata":             metadata,
		"fees":                 fees,
		"total_supply":         supply,
		"total_supply_display": supplyDisplay,
		"roles":                roles,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetFunds returns the managed funds breakdown per asset
func (ws *WebServer) handleGetFunds(w http.ResponseWriter, r *http.Request) {
	funds, err := ws.vault.FetchTotalManagedFunds(r.Context())
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve managed funds")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"funds": funds})
}

func (ws *WebServer) handleGetAssets(w http.ResponseWriter, r *http.Request) {
	assets, err := ws.vault.GetAssets(r.Context())
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve assets")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"assets": assets})
}

func (ws *WebServer) handleGetReports(w http.ResponseWriter, r *http.Request) {
	reports, err := ws.vault.GetReports(r.Context())
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve reports")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"reports": reports})
}

// handleGetQuote returns the asset amounts a number of shares redeems for
func (ws *WebServer) handleGetQuote(w http.ResponseWriter, r *http.Request) {
	shares, err := utils.ParseAmount(r.URL.Query().Get("shares"))
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid shares amount")
		return
	}
	amounts, err := ws.vault.GetAssetAmountsPerShares(r.Context(), shares)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to quote shares")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"shares": shares, "amounts": amounts})
}

func (ws *WebServer) handleGetShares(w http.ResponseWriter, r *http.Request) {
	holder := mux.Vars(r)["holder"]
	balance, err := ws.vault.BalanceOf(r.Context(), holder)
	if err != nil {
		ws.writeVaultError(w, err, "Failed to retrieve share balance")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"holder": holder, "balance": balance})
}

// handleGetOperations returns the most recent journaled operations
func (ws *WebServer) handleGetOperations(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsedLimit, err := strconv.Atoi(limitStr); err == nil && parsedLimit > 0 && parsedLimit <= 100 {
			limit = parsedLimit
		}
	}

	operations, err := ws.journal.RecentOperations(r.Context(), limit)
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get recent operations")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operations")
		return
	}

	response := map[string]interface{}{
		"operations": operations,
		"count":      len(operations),
		"limit":      limit,
	}
	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetOperation returns a specific operation by ID
func (ws *WebServer) handleGetOperation(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	id := mux.Vars(r)["id"]
	operation, err := ws.journal.Operation(r.Context(), id)
	if err != nil {
		ws.logger.Error().Err(err).Str("operationId", id).Msg("Failed to get operation")
		ws.writeErrorResponse(w, http.StatusNotFound, "Operation not found")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, operation)
}

func (ws *WebServer) handleGetOperationSummary(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	summary, err := ws.journal.Summary(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get operation summary")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve operation summary")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, summary)
}

func (ws *WebServer) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	if !ws.requireJournal(w) {
		return
	}
	runs, err := ws.journal.JobRuns(r.Context())
	if err != nil {
		ws.logger.Error().Err(err).Msg("Failed to get job runs")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve job runs")
		return
	}
	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{"jobs": runs})
}

func (ws *WebServer) requireJournal(w http.ResponseWriter) bool {
	if ws.journal == nil {
		ws.writeErrorResponse(w, http.StatusServiceUnavailable, "Operation journal is disabled")
		return false
	}
	return true
}

// writeVaultError logs a failed vault query and maps it to a status code.
func (ws *WebServer) writeVaultError(w http.ResponseWriter, err error, message string) {
	ws.logger.Error().Err(err).Msg(message)
	statusCode := http.StatusInternalServerError
	if errors.Is(err, vault.ErrNotInitialized) {
		statusCode = http.StatusServiceUnavailable
	} else if errors.Is(err, vault.ErrAmountOverTotalSupply) {
		statusCode = http.StatusBadRequest
	}
	ws.writeErrorResponse(w, statusCode, message)
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeErrorResponse writes an error response
func (ws *WebServer) writeErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := map[string]interface{}{
		"error":     true,
		"message":   message,
		"timestamp": time.Now().UTC(),
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// corsMiddleware adds CORS headers
func (ws *WebServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (ws *WebServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Create a response writer wrapper to capture status code
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		ws.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
