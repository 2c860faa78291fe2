// README: HTTP route registration and middleware chain.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"antar/internal/http/handlers"
	"antar/internal/http/middleware"
	"antar/internal/modules/dispatch"
	"antar/internal/modules/driver"
	"antar/internal/modules/order"
	"antar/internal/modules/wallet"
	"antar/internal/types"
)

type RouterDeps struct {
	Order    *order.Service
	Dispatch *dispatch.Service
	Driver   *driver.Service
	Wallet   *wallet.Service

	AuthSecret string
}

func NewRouter(deps RouterDeps) http.Handler {
	engine := gin.New()
	engine.Use(middleware.Recovery(), middleware.Logging())

	rl := middleware.NewRateLimiter()
	auth := middleware.Auth(deps.AuthSecret)

	engine.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})

	api := engine.Group("/api", auth, rl.Limit(middleware.TierGeneral))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Driver)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/advance", orderHandler.Advance)

	dispatchHandler := handlers.NewDispatchHandler(deps.Dispatch, deps.Driver)
	driverOnly := middleware.RequireRole(types.RoleDriver)
	api.GET("/dispatch/orders", driverOnly, dispatchHandler.ListAvailable)
	api.POST("/dispatch/orders/:id/claim", driverOnly, dispatchHandler.Claim)

	driverHandler := handlers.NewDriverHandler(deps.Driver)
	api.GET("/drivers/me", driverOnly, driverHandler.Me)
	api.POST("/drivers/me/availability", driverOnly, driverHandler.SetAvailability)
	api.PUT("/drivers/me/location", driverOnly, driverHandler.UpdateLocation)

	walletHandler := handlers.NewWalletHandler(deps.Wallet)
	strict := rl.Limit(middleware.TierStrict)
	api.GET("/wallet", walletHandler.Balance)
	api.GET("/wallet/ledger", walletHandler.Ledger)
	api.POST("/wallet/withdrawals", strict, walletHandler.RequestWithdrawal)
	api.GET("/wallet/withdrawals/:id", walletHandler.GetWithdrawal)

	adminHandler := handlers.NewAdminHandler(deps.Wallet, deps.Driver)
	adminOnly := middleware.RequireRole(types.RoleAdmin)
	admin := api.Group("/admin", adminOnly)
	admin.GET("/withdrawals", adminHandler.PendingWithdrawals)
	admin.POST("/withdrawals/:id/resolve", strict, adminHandler.ResolveWithdrawal)
	admin.POST("/drivers/:id/review", adminHandler.ReviewDriver)

	return engine
}
