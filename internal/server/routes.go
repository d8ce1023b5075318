package server

import "net/http"

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	b := s.app.BalanceHandler

	// Read-only views over the live cache and history log
	mux.HandleFunc("/api/balances", b.Balances)
	mux.HandleFunc("/api/balances/detailed", b.DetailedBalances)
	mux.HandleFunc("/api/history", b.History)
	mux.HandleFunc("/api/history/latest", b.LatestByWallet)
	mux.HandleFunc("/api/stats", b.Stats)

	// Mutating operations
	mux.HandleFunc("/api/refresh", b.Refresh)
	mux.HandleFunc("/api/monitor", b.Monitor)
	mux.HandleFunc("/api/wallets", s.walletsByMethod)

	mux.HandleFunc("/api/health", s.app.HealthHandler.ServeHTTP)
	mux.HandleFunc("/api/version", s.app.VersionHandler.ServeHTTP)

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.handleNotFound)

	return mux
}

// walletsByMethod dispatches /api/wallets: PUT replaces the set, POST
// initializes one wallet.
func (s *Server) walletsByMethod(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPut:
		s.app.BalanceHandler.SetWallets(w, r)
	default:
		s.app.BalanceHandler.InitializeWallet(w, r)
	}
}

// handleNotFound returns a JSON 404 for unmatched API routes.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotFound)
	w.Write([]byte(`{"error":"Not Found","message":"The requested endpoint does not exist"}`))
}
