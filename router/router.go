// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stronghold-io/bastion/controller"
	"github.com/stronghold-io/bastion/devicetrust"
	"github.com/stronghold-io/bastion/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	devices *devicetrust.Manager,
	registry *prometheus.Registry,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))
	router.Use(middleware.DeviceGuard(devices))

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api/v1")

	controllers.Access.RegisterRoutes(api)
	controllers.Firewall.RegisterRoutes(api)
	controllers.Device.RegisterRoutes(api)
	controllers.Key.RegisterRoutes(api)

	return router
}
