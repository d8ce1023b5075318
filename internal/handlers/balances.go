package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/bobmcallan/vire-balance/internal/balance"
	"github.com/bobmcallan/vire-balance/internal/common"
	"github.com/bobmcallan/vire-balance/internal/models"
)

// BalanceHandler exposes the engine's read and refresh operations over
// JSON. Reads never trigger scraping; refresh endpoints block until the
// requested work completes.
type BalanceHandler struct {
	logger *common.Logger
	engine *balance.Engine
}

// NewBalanceHandler creates a balance handler over the engine.
func NewBalanceHandler(logger *common.Logger, engine *balance.Engine) *BalanceHandler {
	return &BalanceHandler{logger: logger, engine: engine}
}

// Balances handles GET /api/balances.
func (h *BalanceHandler) Balances(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteData(w, http.StatusOK, h.engine.GetBalances())
}

// DetailedBalances handles GET /api/balances/detailed.
func (h *BalanceHandler) DetailedBalances(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}
	WriteData(w, http.StatusOK, h.engine.GetDetailedBalances())
}

// History handles GET /api/history?wallet=NAME&limit=N. Without a wallet
// it returns recent entries across all wallets.
func (h *BalanceHandler) History(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	limit := queryInt(r, "limit", 50)
	wallet := r.URL.Query().Get("wallet")

	var (
		entries []models.HistoryEntry
		err     error
	)
	if wallet != "" {
		entries, err = h.engine.GetWalletHistory(wallet, limit)
	} else {
		entries, err = h.engine.GetAllHistory(limit)
	}
	if err != nil {
		h.logger.Error().Str("error", err.Error()).Msg("history query failed")
		WriteError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	WriteData(w, http.StatusOK, entries)
}

// LatestByWallet handles GET /api/history/latest.
func (h *BalanceHandler) LatestByWallet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	latest, err := h.engine.GetLatestByWallet()
	if err != nil {
		h.logger.Error().Str("error", err.Error()).Msg("latest-by-wallet query failed")
		WriteError(w, http.StatusInternalServerError, "history query failed")
		return
	}
	WriteData(w, http.StatusOK, latest)
}

// Stats handles GET /api/stats?wallet=NAME.
func (h *BalanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		WriteError(w, http.StatusBadRequest, "wallet parameter is required")
		return
	}

	stats, err := h.engine.GetWalletStats(wallet)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteData(w, http.StatusOK, stats)
}

// Refresh handles POST /api/refresh and POST /api/refresh?wallet=NAME.
// Blocks until the triggered work completes ("force and wait").
func (h *BalanceHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if wallet := r.URL.Query().Get("wallet"); wallet != "" {
		reading, err := h.engine.RefreshWallet(r.Context(), wallet)
		if err != nil {
			h.writeRefreshError(w, err)
			return
		}
		WriteData(w, http.StatusOK, reading)
		return
	}

	readings, err := h.engine.RefreshAll(r.Context())
	if err != nil {
		h.writeRefreshError(w, err)
		return
	}
	WriteData(w, http.StatusOK, readings)
}

func (h *BalanceHandler) writeRefreshError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, balance.ErrCycleRunning):
		WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, balance.ErrWalletNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		WriteError(w, http.StatusInternalServerError, err.Error())
	}
}

// SetWallets handles PUT /api/wallets with a JSON array of wallet configs,
// replacing the configured set in whole.
func (h *BalanceHandler) SetWallets(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "PUT") {
		return
	}

	var configs []models.WalletConfig
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid wallet config payload")
		return
	}

	h.engine.SetWallets(configs)
	WriteData(w, http.StatusOK, h.engine.Wallets())
}

// InitializeWallet handles POST /api/wallets with one wallet config.
func (h *BalanceHandler) InitializeWallet(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	var cfg models.WalletConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid wallet config payload")
		return
	}
	if cfg.DisplayName == "" || cfg.SourceURL == "" {
		WriteError(w, http.StatusBadRequest, "display_name and source_url are required")
		return
	}

	WriteData(w, http.StatusOK, h.engine.InitializeWallet(cfg))
}

// Monitor handles POST /api/monitor?action=start|stop. Start accepts an
// optional interval_minutes parameter.
func (h *BalanceHandler) Monitor(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	switch r.URL.Query().Get("action") {
	case "start":
		minutes := queryInt(r, "interval_minutes", 60)
		h.engine.StartMonitor(time.Duration(minutes) * time.Minute)
		WriteData(w, http.StatusOK, map[string]int{"interval_minutes": minutes})
	case "stop":
		h.engine.StopMonitor()
		WriteData(w, http.StatusOK, map[string]string{"monitor": "stopped"})
	default:
		WriteError(w, http.StatusBadRequest, "action must be start or stop")
	}
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
