package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/config"
	domainRepo "github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/internal/presentation/http/handler"
	"github.com/sangkips/tillsync/internal/presentation/http/middleware"
	"github.com/sangkips/tillsync/pkg/utils"
)

// Handlers holds all the HTTP handlers used for route registration.
type Handlers struct {
	Receipt     *handler.ReceiptHandler
	Settlement  *handler.SettlementHandler
	StoreCredit *handler.StoreCreditHandler
	Sync        *handler.SyncHandler
}

// Deps holds shared dependencies needed by the routes.
type Deps struct {
	JWTManager      *utils.JWTManager
	Cfg             *config.Config
	IdempotencyRepo domainRepo.IdempotencyRepository
	RateLimiter     *middleware.ActorRateLimiter
	Gatherer        prometheus.Gatherer
	Log             zerolog.Logger
}

// Setup creates the Gin router and registers all routes.
func Setup(h *Handlers, deps *Deps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.LoggerMiddleware(deps.Log))
	router.Use(middleware.CORSMiddleware(&deps.Cfg.CORS))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": deps.Cfg.App.Name,
		})
	})
	if deps.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	protected := v1.Group("")
	protected.Use(middleware.AuthMiddleware(deps.JWTManager))
	if deps.RateLimiter != nil {
		protected.Use(deps.RateLimiter.Middleware())
	}

	registerReceiptRoutes(protected, h, deps)
	registerStoreCreditRoutes(protected, h)
	registerSyncRoutes(protected, h)

	return router
}

func registerReceiptRoutes(protected *gin.RouterGroup, h *Handlers, deps *Deps) {
	receipts := protected.Group("/receipts")
	receipts.Use(middleware.RequireRole(utils.RoleCashier, utils.RoleAdmin))
	{
		receipts.POST("", h.Receipt.Create)
		receipts.GET("/outstanding", h.Receipt.ListOutstanding)
		receipts.GET("/:id", h.Receipt.Get)
		receipts.GET("/:id/settlements", h.Settlement.History)
		receipts.POST("/:id/settlements",
			middleware.Idempotency(middleware.IdempotencyConfig{Repo: deps.IdempotencyRepo}),
			h.Settlement.Settle)
	}
}

func registerStoreCreditRoutes(protected *gin.RouterGroup, h *Handlers) {
	credits := protected.Group("/customers/:id/store-credits")
	credits.Use(middleware.RequireRole(utils.RoleCashier, utils.RoleAdmin))
	{
		credits.GET("", h.StoreCredit.Balance)
		credits.POST("", middleware.RequireRole(utils.RoleAdmin), h.StoreCredit.Issue)
		credits.POST("/allocations", h.StoreCredit.Allocate)
	}
}

func registerSyncRoutes(protected *gin.RouterGroup, h *Handlers) {
	sync := protected.Group("/sync")
	sync.Use(middleware.RequireRole(utils.RoleAdmin))
	{
		sync.POST("/runs", h.Sync.Trigger)
		sync.GET("/status", h.Sync.Status)
		sync.GET("/failures", h.Sync.Failures)
	}
}
