// controller/gateway_controller.go
package controller

import (
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dev-mohitbeniwal/archive-gateway/adapter"
	"github.com/dev-mohitbeniwal/archive-gateway/cache"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
	"github.com/dev-mohitbeniwal/archive-gateway/middleware"
	"github.com/dev-mohitbeniwal/archive-gateway/util"
)

//go:embed static/index.html
var defaultWelcome []byte

// LoadWelcomePage reads the welcome page from path, or returns the built-in
// page when path is empty.
func LoadWelcomePage(path string) ([]byte, error) {
	if path == "" {
		return defaultWelcome, nil
	}
	page, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read welcome page: %w", err)
	}
	return page, nil
}

type GatewayController struct {
	cache           cache.Accessor
	handlers        adapter.Factory
	welcome         []byte
	cacheFullStatus int
}

func NewGatewayController(accessor cache.Accessor, handlers adapter.Factory, welcome []byte, cacheFullStatus int) *GatewayController {
	if welcome == nil {
		welcome = defaultWelcome
	}
	if cacheFullStatus == 0 {
		cacheFullStatus = http.StatusInternalServerError
	}
	return &GatewayController{
		cache:           accessor,
		handlers:        handlers,
		welcome:         welcome,
		cacheFullStatus: cacheFullStatus,
	}
}

// RegisterRoutes makes the controller answer every path no other route claims.
func (gc *GatewayController) RegisterRoutes(r *gin.Engine) {
	r.NoRoute(gc.Handle)
}

// splitPath splits /<address>/<subPath> into its parts. trailing reports
// whether anything, even an empty subPath, followed the address.
func splitPath(p string) (address, subPath string, trailing bool) {
	parts := strings.SplitN(strings.TrimPrefix(p, "/"), "/", 2)
	address = parts[0]
	if len(parts) == 2 {
		return address, parts[1], true
	}
	return address, "", false
}

// Handle serves GET /<address>/<subPath> from the archive behind address.
func (gc *GatewayController) Handle(c *gin.Context) {
	start := time.Now()
	address, subPath, trailing := splitPath(c.Request.URL.Path)
	logger.Debug("Archive request",
		zap.String("requestID", util.GetRequestIDFromContext(c)),
		zap.String("address", address),
		zap.String("method", c.Request.Method),
		zap.String("subPath", subPath))

	if address == "" && subPath == "" {
		c.Data(http.StatusOK, "text/html; charset=utf-8", gc.welcome)
		return
	}
	if !trailing {
		target := "/" + address + "/"
		if q := c.Request.URL.RawQuery; q != "" {
			target += "?" + q
		}
		c.Redirect(http.StatusMovedPermanently, target)
		return
	}

	res, err := gc.cache.Access(c.Request.Context(), address)
	fields := []zap.Field{
		zap.String("address", address),
		zap.String("subPath", subPath),
		zap.Duration("elapsed", time.Since(start)),
	}
	if err != nil {
		middleware.AddLogFields(c, append(fields, zap.String("outcome", "error"))...)
		gc.respondWithAccessError(c, err)
		return
	}
	middleware.AddLogFields(c, append(fields, zap.String("outcome", res.Outcome.String()))...)

	handler, err := gc.handlers(res)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, gwerrors.ErrInternalServer.Error(), err)
		return
	}
	c.Request.URL.Path = "/" + subPath
	c.Request.URL.RawPath = ""
	handler.ServeHTTP(c.Writer, c.Request)
}

func (gc *GatewayController) respondWithAccessError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, gwerrors.ErrArchiveNotFound) || strings.Contains(err.Error(), "not found"):
		c.String(http.StatusNotFound, "Not found")
	case errors.Is(err, gwerrors.ErrCacheFull):
		util.RespondWithError(c, gc.cacheFullStatus, err.Error(), err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, err.Error(), err)
	}
}
