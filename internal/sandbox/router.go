package sandbox

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/qcom/banksession/internal/apiclient"
	"github.com/qcom/banksession/internal/config"
	"github.com/qcom/banksession/internal/metrics"
	"github.com/sirupsen/logrus"
)

const idempotencyTTL = 24 * time.Hour

// NewRouter wires the sandbox backend: auth and account endpoints under the
// configured base path plus /health and /metrics at the root. Both canonical
// and legacy route names are served.
func NewRouter(cfg *config.Config, registry *prometheus.Registry, logger *logrus.Logger) (*mux.Router, error) {
	issuer, err := NewTokenIssuer(&cfg.JWT, logger)
	if err != nil {
		return nil, err
	}

	m := metrics.New("sandbox", registry)
	bank := NewBank()

	authHandlers := NewAuthHandlers(bank, issuer, cfg.Sandbox.RegisterIssuesTokens, logger)
	accountHandlers := NewAccountHandlers(bank, logger)
	authMiddleware := NewAuthMiddleware(issuer, logger)
	idempotency := NewIdempotencyCache(idempotencyTTL, m, logger)

	router := mux.NewRouter()
	router.Use(CORSMiddleware)
	router.Use(LoggingMiddleware(logger, m))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")
	router.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods("GET")

	api := router
	if base := strings.TrimRight(cfg.Sandbox.BasePath, "/"); base != "" {
		api = router.PathPrefix(base).Subrouter()
	}

	canonical, legacy := apiclient.CanonicalRoutes, apiclient.LegacyRoutes

	public := api.PathPrefix("/").Subrouter()
	public.Use(idempotency.Middleware)
	public.HandleFunc(canonical.Login, authHandlers.Login).Methods("POST", "OPTIONS")
	public.HandleFunc(canonical.Register, authHandlers.Register).Methods("POST", "OPTIONS")
	public.HandleFunc(canonical.RenewToken, authHandlers.RenewToken).Methods("POST", "OPTIONS")
	// Logout authenticates itself so an expired access token can still revoke
	// the refresh token it carries.
	public.HandleFunc(canonical.Logout, authHandlers.Logout).Methods("POST", "OPTIONS")

	protected := api.PathPrefix("/").Subrouter()
	protected.Use(authMiddleware.RequireAuth, idempotency.Middleware)
	protected.HandleFunc(canonical.Profile, authHandlers.Profile).Methods("GET", "OPTIONS")
	protected.HandleFunc(canonical.CreateAccount, accountHandlers.CreateAccount).Methods("POST", "OPTIONS")
	protected.HandleFunc(canonical.ListAccounts, accountHandlers.ListAccounts).Methods("GET", "OPTIONS")
	protected.HandleFunc(legacy.ListAccounts, accountHandlers.ListAccounts).Methods("GET", "OPTIONS")
	protected.HandleFunc(canonical.GetAccount, accountHandlers.GetAccount).Methods("GET", "OPTIONS")
	protected.HandleFunc(legacy.GetAccount, accountHandlers.GetAccount).Methods("GET", "OPTIONS")
	protected.HandleFunc(canonical.DeleteAccount, accountHandlers.DeleteAccount).Methods("DELETE", "OPTIONS")
	protected.HandleFunc(canonical.CreateTransaction, accountHandlers.CreateTransaction).Methods("POST", "OPTIONS")
	protected.HandleFunc(canonical.Transactions, accountHandlers.ListTransactions).Methods("GET", "OPTIONS")

	return router, nil
}
