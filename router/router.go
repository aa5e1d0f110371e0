// router/router.go

package router

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/archive-gateway/controller"
	"github.com/dev-mohitbeniwal/archive-gateway/middleware"
)

func SetupRouter(
	controllers *controller.Controllers,
	observer middleware.RequestObserver,
	rateLimitRequests int,
	rateLimitDuration time.Duration,
) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	if observer != nil {
		router.Use(middleware.Metrics(observer))
	}
	router.Use(middleware.RateLimiter(rateLimitRequests, rateLimitDuration))

	if controllers.Admin != nil {
		controllers.Admin.RegisterRoutes(router)
	}
	controllers.Gateway.RegisterRoutes(router)

	return router
}
