package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"marketplace-service/internal/models"
	"marketplace-service/internal/period"
	"marketplace-service/internal/service"
	"marketplace-service/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductCatalog is the product surface the facade needs
type ProductCatalog interface {
	ListPublished(ctx context.Context, q models.ProductQuery) (*service.ProductPage, error)
	GetPublished(ctx context.Context, id int64) (*models.Product, error)
	ListForPrincipal(ctx context.Context, p models.Principal, q models.ProductQuery) ([]models.Product, error)
	Create(ctx context.Context, p models.Principal, in service.ProductInput) (*models.Product, error)
	Update(ctx context.Context, p models.Principal, id int64, in service.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, p models.Principal, id int64) error
}

// OrderAdapter is the order surface the facade needs
type OrderAdapter interface {
	Create(ctx context.Context, p models.Principal, req *service.CreateOrderRequest) (*models.Order, error)
	Get(ctx context.Context, p models.Principal, id int64) (*models.Order, error)
	ListForUser(ctx context.Context, userID int64, role string, pg models.Page) ([]models.Order, error)
	UpdateStatus(ctx context.Context, p models.Principal, orderID int64, to string) (*models.Order, error)
}

// StatsAggregator is the reporting surface the facade needs
type StatsAggregator interface {
	SellerStats(ctx context.Context, sellerID int64, p period.Period) (*models.SellerStats, error)
	PlatformStats(ctx context.Context, p period.Period) (*models.PlatformStats, error)
	AllSellersWithStats(ctx context.Context, p period.Period, pg models.Page) ([]models.SellerWithStats, error)
	SellerDetail(ctx context.Context, sellerID int64, p period.Period) (*service.SellerDetail, error)
}

// CommissionReport reads the commission ledger
type CommissionReport interface {
	List(ctx context.Context, q models.CommissionQuery) ([]models.Commission, error)
	Sum(ctx context.Context, q models.CommissionQuery) (decimal.Decimal, error)
}

// Pinger is a dependency checked by the readiness probe
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services groups the operations exposed over HTTP
type Services struct {
	Products    ProductCatalog
	Orders      OrderAdapter
	Stats       StatsAggregator
	Commissions CommissionReport
}

// Handler contains HTTP handlers
type Handler struct {
	products    ProductCatalog
	orders      OrderAdapter
	stats       StatsAggregator
	commissions CommissionReport
	auth        *Authenticator
	paging      Paging
	checks      map[string]Pinger
	logger      *zap.Logger
	now         func() time.Time
}

// NewHandler creates a new HTTP handler
func NewHandler(svc Services, auth *Authenticator, paging Paging, checks map[string]Pinger) *Handler {
	if paging.DefaultPerPage <= 0 {
		paging.DefaultPerPage = 10
	}
	return &Handler{
		products:    svc.Products,
		orders:      svc.Orders,
		stats:       svc.Stats,
		commissions: svc.Commissions,
		auth:        auth,
		paging:      paging,
		checks:      checks,
		logger:      util.Named("api"),
		now:         time.Now,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(requestLogger(h.logger))

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")

	public := v1.Group("", h.authenticate(false))
	{
		public.GET("/products", h.listProducts)
		public.GET("/products/:id", h.getProduct)
	}

	user := v1.Group("", h.authenticate(true))
	{
		user.POST("/orders", h.createOrder)
		user.GET("/orders/:id", h.getOrder)
		user.GET("/user/orders", h.listUserOrders)
		user.GET("/user/products", h.listUserProducts)
		user.POST("/user/products", h.createProduct)
		user.PUT("/user/products/:id", h.updateProduct)
		user.DELETE("/user/products/:id", h.deleteProduct)
		user.GET("/user/stats", h.userStats)
	}

	admin := v1.Group("/admin", h.authenticate(true), requireAdmin())
	{
		admin.GET("/stats", h.platformStats)
		admin.GET("/users", h.listSellers)
		admin.GET("/users/:id", h.sellerDetail)
		admin.GET("/commissions", h.listCommissions)
		admin.PUT("/orders/:id/status", h.updateOrderStatus)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   h.now().Unix(),
	})
}

// readinessCheck pings every backing dependency
func (h *Handler) readinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	failed := gin.H{}
	for name, dep := range h.checks {
		if err := dep.Ping(ctx); err != nil {
			h.logger.Warn("Readiness check failed", zap.String("dependency", name), zap.Error(err))
			failed[name] = err.Error()
		}
	}

	if len(failed) > 0 {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"failed": failed,
			"time":   h.now().Unix(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   h.now().Unix(),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		logger.Debug("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}
