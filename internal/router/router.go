package router

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"sendflow/internal/handlers"
	"sendflow/internal/middleware"
	"sendflow/internal/models"
	"sendflow/internal/services"
)

// Services are the collaborators the HTTP layer is built on.
type Services struct {
	Auth               *services.AuthService
	Users              *services.UserService
	Balances           *services.BalanceService
	Transfers          *services.TransferService
	Withdrawals        *services.WithdrawalService
	WithdrawalRequests *services.WithdrawalRequestService
	Deposits           *services.DepositService
	Notifications      handlers.Subscriber
}

type Options struct {
	RateLimitRPS   float64
	RateLimitBurst int
}

func SetupRouter(svc Services, opts Options, logger zerolog.Logger) *mux.Router {
	authHandler := handlers.NewAuthHandler(svc.Users, svc.Auth, logger)
	userHandler := handlers.NewUserHandler(svc.Users, logger)
	balanceHandler := handlers.NewBalanceHandler(svc.Balances, logger)
	transferHandler := handlers.NewTransferHandler(svc.Transfers, logger)
	withdrawalHandler := handlers.NewWithdrawalHandler(svc.Withdrawals, logger)
	requestHandler := handlers.NewWithdrawalRequestHandler(svc.WithdrawalRequests, logger)
	depositHandler := handlers.NewDepositHandler(svc.Deposits, logger)
	notificationHandler := handlers.NewNotificationHandler(svc.Notifications, logger)

	if opts.RateLimitRPS <= 0 {
		opts.RateLimitRPS = 10
	}
	if opts.RateLimitBurst <= 0 {
		opts.RateLimitBurst = 20
	}
	rateLimiter := middleware.NewRateLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst)
	authenticate := middleware.Authentication(svc.Auth, logger)

	r := mux.NewRouter()

	r.Use(middleware.ErrorHandling(logger))
	r.Use(middleware.Metrics)
	r.Use(middleware.PerformanceMonitoring(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS())
	r.Use(rateLimiter.Middleware())

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.RequestValidation())

	auth := api.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/register", authHandler.Register).Methods("POST")
	auth.HandleFunc("/login", authHandler.Login).Methods("POST")
	auth.HandleFunc("/refresh", authHandler.Refresh).Methods("POST")

	users := api.PathPrefix("/users").Subrouter()
	users.Use(authenticate)
	users.HandleFunc("/me", userHandler.Me).Methods("GET")
	users.HandleFunc("/search", userHandler.Search).Methods("GET")
	users.Handle("/{id:[0-9]+}/role",
		middleware.RequireRole(models.RoleAdmin)(http.HandlerFunc(userHandler.UpdateRole)),
	).Methods("PUT")

	balances := api.PathPrefix("/balances").Subrouter()
	balances.Use(authenticate)
	balances.HandleFunc("/current", balanceHandler.GetCurrentBalance).Methods("GET")
	balances.HandleFunc("/historical", balanceHandler.GetHistoricalBalance).Methods("GET")
	balances.HandleFunc("/at-time", balanceHandler.GetBalanceAtTime).Methods("GET")

	transfers := api.PathPrefix("/transfers").Subrouter()
	transfers.Use(authenticate)
	transfers.HandleFunc("", transferHandler.Transfer).Methods("POST")
	transfers.HandleFunc("", transferHandler.GetHistory).Methods("GET")
	transfers.HandleFunc("/claim", transferHandler.Claim).Methods("POST")
	transfers.HandleFunc("/pending/{id}/cancel", transferHandler.CancelPending).Methods("POST")

	withdrawals := api.PathPrefix("/withdrawals").Subrouter()
	withdrawals.Use(authenticate)
	withdrawals.HandleFunc("", withdrawalHandler.Create).Methods("POST")
	withdrawals.HandleFunc("", withdrawalHandler.List).Methods("GET")
	withdrawals.HandleFunc("/start", withdrawalHandler.Start).Methods("POST")
	withdrawals.HandleFunc("/confirm", withdrawalHandler.Confirm).Methods("POST")
	withdrawals.HandleFunc("/reject", withdrawalHandler.Reject).Methods("POST")
	withdrawals.HandleFunc("/{id}/cancel", withdrawalHandler.Cancel).Methods("POST")

	requests := api.PathPrefix("/withdrawal-requests").Subrouter()
	requests.Use(authenticate)
	requests.HandleFunc("", requestHandler.Create).Methods("POST")
	requests.HandleFunc("/pending", requestHandler.ListPending).Methods("GET")
	requests.HandleFunc("/{id}/approve", requestHandler.Approve).Methods("POST")
	requests.HandleFunc("/{id}/reject", requestHandler.Reject).Methods("POST")

	deposits := api.PathPrefix("/deposits").Subrouter()
	deposits.Use(authenticate)
	deposits.HandleFunc("", depositHandler.Create).Methods("POST")
	deposits.HandleFunc("", depositHandler.List).Methods("GET")

	notifications := api.PathPrefix("/notifications").Subrouter()
	notifications.Use(authenticate)
	notifications.HandleFunc("/stream", notificationHandler.Stream).Methods("GET")

	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}).Methods("GET")

	return r
}
