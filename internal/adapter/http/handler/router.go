package handler

import (
	"arb-settlement-engine/internal/adapter/http/middleware"
	"arb-settlement-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	AuthSvc        ports.AuthService
	ValidatorSvc   ports.ValidatorService
	SettlementSvc  ports.SettlementService
	TransitSvc     ports.TransitService
	OverlaySvc     ports.OverlayService
	AccountRepo    ports.AccountRepository
	WalletRepo     ports.WalletRepository
	TokenSvc       ports.TokenService
	HealthCheckers []ports.HealthChecker
	AuditSvc       ports.AuditService // nil = request-level audit disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Audit logging (after response)
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	// API v1 routes
	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.AuthSvc)
	auth := v1.Group("/auth")
	{
		auth.POST("/register", authHandler.Register)
		auth.POST("/login", authHandler.Login)
	}

	// --- JWT-authenticated operator routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	settlementHandler := NewSettlementHandler(deps.ValidatorSvc, deps.SettlementSvc)
	settlements := v1.Group("/settlements", jwtAuth)
	{
		settlements.POST("/validate", settlementHandler.Validate)
		settlements.POST("/commit", settlementHandler.Commit)
	}

	transferHandler := NewTransferHandler(deps.TransitSvc)
	transfers := v1.Group("/transfers", jwtAuth)
	{
		transfers.POST("", transferHandler.Initiate)
		transfers.POST("/:id/confirm", transferHandler.Confirm)
		transfers.POST("/:id/fail", transferHandler.Fail)
	}

	accountHandler := NewAccountHandler(deps.AccountRepo, deps.WalletRepo, deps.OverlaySvc)
	credits := v1.Group("/credits", jwtAuth)
	{
		credits.POST("/resync", accountHandler.ResyncCredits)
		credits.POST("/:id/finalize", accountHandler.FinalizeCredit)
	}

	accounts := v1.Group("/accounts", jwtAuth)
	{
		accounts.GET("/:id", accountHandler.GetAccount)
	}

	wallets := v1.Group("/wallets", jwtAuth)
	{
		wallets.GET("/:id", accountHandler.GetWallet)
	}

	return r
}
