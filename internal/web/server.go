package web

import (
	"encoding/json"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vaultworks/cellar/internal/cellar"
	"github.com/vaultworks/cellar/internal/logger"
	"github.com/vaultworks/cellar/internal/state"
	"github.com/vaultworks/cellar/internal/types"
	"github.com/vaultworks/cellar/internal/utils"
)

var webLogger = logger.GetForComponent("web_server")

// WebServer handles HTTP requests for vault data and strategist dispatch.
type WebServer struct {
	router     *mux.Router
	port       string
	cellar     *cellar.Cellar
	strategist string
}

// NewWebServer creates a new web server instance
func NewWebServer(port string, c *cellar.Cellar, strategist string) *WebServer {
	if port == "" {
		port = "8080"
	}

	server := &WebServer{
		router:     mux.NewRouter(),
		port:       port,
		cellar:     c,
		strategist: strategist,
	}

	server.setupRoutes()
	return server
}

// setupRoutes configures all HTTP routes
func (ws *WebServer) setupRoutes() {
	// Health endpoint (direct route)
	ws.router.HandleFunc("/health", ws.handleHealth).Methods("GET")

	// API endpoints
	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", ws.handleHealth).Methods("GET")
	api.HandleFunc("/vault/summary", ws.handleGetVaultSummary).Methods("GET")
	api.HandleFunc("/vault/positions", ws.handleGetVaultPositions).Methods("GET")
	api.HandleFunc("/rebalances", ws.handleGetRebalances).Methods("GET")
	api.HandleFunc("/snapshots", ws.handleGetSnapshots).Methods("GET")
	api.HandleFunc("/rebalance", ws.handlePostRebalance).Methods("POST")
	api.HandleFunc("/vault/deposit", ws.handlePostDeposit).Methods("POST")
	api.HandleFunc("/vault/withdraw", ws.handlePostWithdraw).Methods("POST")

	// Add CORS middleware
	ws.router.Use(ws.corsMiddleware)
	ws.router.Use(ws.loggingMiddleware)
}

// Start starts the web server
func (ws *WebServer) Start() error {
	webLogger.Info().Str("port", ws.port).Msg("Starting web server")

	server := &http.Server{
		Addr:         ":" + ws.port,
		Handler:      ws.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return server.ListenAndServe()
}

// handleHealth returns server health status
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	hasErrors := false

	dbHealthy := true
	if err := state.TestDBConnection(); err != nil {
		dbHealthy = false
		hasErrors = true
	}

	vaultHealthy := true
	totalAssets := "0"
	if total, err := ws.cellar.TotalAssets(); err != nil {
		vaultHealthy = false
		hasErrors = true
	} else {
		totalAssets = total.String()
	}

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
		},
		"component": map[string]interface{}{
			"name":    "cellard",
			"version": "1.0.0",
		},
		"vault_status": map[string]interface{}{
			"database_healthy": dbHealthy,
			"vault_healthy":    vaultHealthy,
			"total_assets":     totalAssets,
		},
	}

	statusCode := http.StatusOK
	if hasErrors {
		statusCode = http.StatusServiceUnavailable
	}

	ws.writeJSONResponse(w, statusCode, response)
}

// handleGetVaultSummary returns share supply, valuation and price
func (ws *WebServer) handleGetVaultSummary(w http.ResponseWriter, r *http.Request) {
	totalAssets, err := ws.cellar.TotalAssets()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to value vault")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to value vault")
		return
	}
	withdrawable, err := ws.cellar.TotalAssetsWithdrawable()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute withdrawable assets")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute withdrawable assets")
		return
	}
	sharePrice, err := ws.cellar.SharePrice()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to compute share price")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to compute share price")
		return
	}
	priceFloat, err := utils.LegacyDecToFloat64(sharePrice)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to convert share price")
		return
	}

	response := map[string]interface{}{
		"name":                ws.cellar.Name(),
		"symbol":              ws.cellar.Symbol(),
		"base_denom":          ws.cellar.BaseDenom(),
		"total_assets":        totalAssets.String(),
		"total_withdrawable":  withdrawable.String(),
		"total_shares":        ws.cellar.TotalShares().String(),
		"share_price":         priceFloat,
		"holding_position_id": ws.cellar.HoldingPositionID(),
		"timestamp":           time.Now().UTC(),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetVaultPositions returns the ordered position list with valuations
func (ws *WebServer) handleGetVaultPositions(w http.ResponseWriter, r *http.Request) {
	values, err := ws.cellar.PositionValues()
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to value positions")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to value positions")
		return
	}

	response := map[string]interface{}{
		"positions": values,
		"count":     len(values),
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetRebalances returns recent rebalance receipts
func (ws *WebServer) handleGetRebalances(w http.ResponseWriter, r *http.Request) {
	limit := ws.parseLimit(r, 20)

	receipts, err := state.GetRecentReceipts(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get rebalance receipts")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve rebalance receipts")
		return
	}

	response := map[string]interface{}{
		"receipts": receipts,
		"count":    len(receipts),
		"limit":    limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// handleGetSnapshots returns recent vault snapshots
func (ws *WebServer) handleGetSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := ws.parseLimit(r, 20)

	snapshots, err := state.GetRecentSnapshots(limit)
	if err != nil {
		webLogger.Error().Err(err).Msg("Failed to get vault snapshots")
		ws.writeErrorResponse(w, http.StatusInternalServerError, "Failed to retrieve vault snapshots")
		return
	}

	response := map[string]interface{}{
		"snapshots": snapshots,
		"count":     len(snapshots),
		"limit":     limit,
	}

	ws.writeJSONResponse(w, http.StatusOK, response)
}

// rebalanceRequest is the POST /api/rebalance body.
type rebalanceRequest struct {
	Batch []types.AdaptorCall `json:"batch"`
}

// handlePostRebalance dispatches a strategist batch and persists the receipt.
func (ws *WebServer) handlePostRebalance(w http.ResponseWriter, r *http.Request) {
	var req rebalanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Batch) == 0 {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Batch cannot be empty")
		return
	}

	batchID := uuid.New().String()
	receipt := types.RebalanceReceipt{
		BatchID:   batchID,
		Timestamp: time.Now().UTC(),
	}

	result, err := ws.cellar.CallOnAdaptor(ws.strategist, req.Batch)
	if err != nil {
		receipt.Success = false
		receipt.Message = err.Error()
		receipt.PreValue = "0"
		receipt.PostValue = "0"
		if _, saveErr := state.SaveRebalanceReceipt(receipt); saveErr != nil {
			webLogger.Error().Err(saveErr).Msg("Failed to save failed rebalance receipt")
		}

		webLogger.Warn().Err(err).Str("batch_id", batchID).Msg("Rebalance rejected")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	deviationFloat, convErr := utils.LegacyDecToFloat64(result.Deviation)
	if convErr != nil {
		deviationFloat = 0
	}

	receipt.Success = true
	receipt.PreValue = result.PreValue.String()
	receipt.PostValue = result.PostValue.String()
	receipt.DeviationPct = deviationFloat * 100
	receipt.CallCount = result.CallCount
	if _, saveErr := state.SaveRebalanceReceipt(receipt); saveErr != nil {
		webLogger.Error().Err(saveErr).Msg("Failed to save rebalance receipt")
	}

	ws.writeJSONResponse(w, http.StatusOK, receipt)
}

// depositRequest is the POST /api/vault/deposit body.
type depositRequest struct {
	Depositor string `json:"depositor"`
	Amount    string `json:"amount"`
}

// handlePostDeposit mints shares for a depositor's base-denom assets.
func (ws *WebServer) handlePostDeposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Depositor == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Depositor is required")
		return
	}
	amount, err := utils.ParseIntAmount(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	shares, err := ws.cellar.Deposit(amount, req.Depositor)
	if err != nil {
		webLogger.Warn().Err(err).Str("depositor", req.Depositor).Msg("Deposit rejected")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"depositor": req.Depositor,
		"assets":    amount.String(),
		"shares":    shares.String(),
	})
}

// withdrawRequest is the POST /api/vault/withdraw body.
type withdrawRequest struct {
	Owner    string `json:"owner"`
	Receiver string `json:"receiver,omitempty"`
	Amount   string `json:"amount"`
}

// handlePostWithdraw burns the owner's shares and pays out base-denom assets.
func (ws *WebServer) handlePostWithdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Owner == "" {
		ws.writeErrorResponse(w, http.StatusBadRequest, "Owner is required")
		return
	}
	if req.Receiver == "" {
		req.Receiver = req.Owner
	}
	amount, err := utils.ParseIntAmount(req.Amount)
	if err != nil {
		ws.writeErrorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	shares, err := ws.cellar.Withdraw(amount, req.Receiver, req.Owner)
	if err != nil {
		webLogger.Warn().Err(err).Str("owner", req.Owner).Msg("Withdrawal rejected")
		ws.writeErrorResponse(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	ws.writeJSONResponse(w, http.StatusOK, map[string]interface{}{
		"owner":    req.Owner,
		"receiver": req.Receiver,
		"assets":   amount.String(),
		"shares":   shares.String(),
	})
}

func (ws *WebServer) parseLimit(r *http.Request, fallback int) int {
	limit := fallback
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}
	return limit
}

// writeJSONResponse writes a JSON response
func (ws *WebServer) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		webLogger.Error().Err(err).Msg("Failed to encode JSON response")
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
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
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

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		duration := time.Since(start)

		webLogger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote_addr", r.RemoteAddr).
			Int("status", wrapper.statusCode).
			Dur("duration", duration).
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
