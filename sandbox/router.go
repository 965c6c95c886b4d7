package sandbox

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRouter sets up the Gin router
func SetupRouter(s *Server) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery(), RequestLogger(s.logger))

	h := &handlers{server: s}
	requireAuth := AuthMiddleware(s.sessions)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	auth := v1.Group("/auth")
	{
		auth.POST("/register", h.Register)
		auth.POST("/login", h.Login)
		auth.POST("/refresh", h.Refresh)
		auth.POST("/logout", h.Logout)
		auth.GET("/me", requireAuth, h.Me)
	}

	api := v1.Group("")
	api.Use(requireAuth)
	{
		api.GET("/wallets", h.ListWallets)
		api.POST("/wallets", h.CreateWallet)
		api.GET("/wallets/:id", h.GetWallet)
		api.GET("/wallets/:id/events", h.WalletEvents)
		api.GET("/wallets/:id/transactions", h.ListTransactions)
		api.POST("/wallets/:id/deposit", h.Deposit)
		api.POST("/wallets/:id/withdraw", h.Withdraw)
		api.POST("/transactions", h.Transfer)
		api.GET("/transactions/:id", h.GetTransaction)

		api.GET("/analytics/daily", h.Daily)
		api.GET("/analytics/hourly", h.Hourly)
		api.GET("/analytics/summary", h.Summary)
		api.GET("/analytics/users/:id", h.UserAnalytics)
		api.GET("/analytics/users/:id/snapshots", h.UserSnapshots)
	}

	return router
}
