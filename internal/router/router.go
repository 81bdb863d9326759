package router

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/medinet/federation-api/internal/handler"
	auditHandler "github.com/medinet/federation-api/internal/handler/audit"
	emergencyHandler "github.com/medinet/federation-api/internal/handler/emergency"
	federationHandler "github.com/medinet/federation-api/internal/handler/federation"
	hospitalHandler "github.com/medinet/federation-api/internal/handler/hospital"
	policyHandler "github.com/medinet/federation-api/internal/handler/policy"
	recordHandler "github.com/medinet/federation-api/internal/handler/record"
	"github.com/medinet/federation-api/internal/middleware"
	"github.com/medinet/federation-api/internal/model"
)

type Config struct {
	RateLimitEnabled  bool
	RequestsPerSecond float64
	Burst             int
	MetricsPath       string
	PrometheusEnabled bool
}

type Router struct {
	engine      *gin.Engine
	auth        *middleware.AuthMiddleware
	federationH *federationHandler.Handler
	emergencyH  *emergencyHandler.Handler
	policyH     *policyHandler.Handler
	auditH      *auditHandler.Handler
	recordH     *recordHandler.Handler
	hospitalH   *hospitalHandler.Handler
	healthH     *handler.HealthHandler
	config      Config
	metrics     *routerMetrics
}

type routerMetrics struct {
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

func NewRouter(
	auth *middleware.AuthMiddleware,
	federationH *federationHandler.Handler,
	emergencyH *emergencyHandler.Handler,
	policyH *policyHandler.Handler,
	auditH *auditHandler.Handler,
	recordH *recordHandler.Handler,
	hospitalH *hospitalHandler.Handler,
	healthH *handler.HealthHandler,
	config Config,
) *Router {
	gin.SetMode(gin.ReleaseMode)

	r := &Router{
		engine:      gin.New(),
		auth:        auth,
		federationH: federationH,
		emergencyH:  emergencyH,
		policyH:     policyH,
		auditH:      auditH,
		recordH:     recordH,
		hospitalH:   hospitalH,
		healthH:     healthH,
		config:      config,
		metrics:     initRouterMetrics(),
	}

	r.engine.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logger(),
		r.metricsMiddleware(),
	)

	if config.RateLimitEnabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  rate.Limit(config.RequestsPerSecond),
			Burst: config.Burst,
		})
		r.engine.Use(limiter.RateLimit())
	}

	return r
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

func (r *Router) Setup() {
	r.engine.GET("/health", r.healthH.Live)
	r.engine.GET("/health/ready", r.healthH.Ready)

	if r.config.PrometheusEnabled {
		path := r.config.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.engine.GET(path, gin.WrapH(promhttp.Handler()))
	}

	v1 := r.engine.Group("/api/v1")

	// Break-glass access sits outside authentication on purpose; its
	// compensating controls are the mandatory audit entry and alert.
	r.emergencyH.RegisterRoutes(v1)

	authed := v1.Group("")
	authed.Use(r.auth.Authenticate())
	{
		r.federationH.RegisterRoutes(authed)
		r.policyH.RegisterRoutes(authed)
		r.recordH.RegisterRoutes(authed)
		r.hospitalH.RegisterRoutes(authed)

		authed.GET("/audit/mine", r.auditH.MyAccessLogs)

		admin := authed.Group("")
		admin.Use(r.auth.RequireTypes(model.PrincipalCentralAdmin))
		admin.GET("/audit/logs", r.auditH.ListLogs)
	}
}

func initRouterMetrics() *routerMetrics {
	return &routerMetrics{
		requestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		r.metrics.requestDuration.WithLabelValues(c.Request.Method, path, status).Observe(time.Since(start).Seconds())
		r.metrics.requestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}
