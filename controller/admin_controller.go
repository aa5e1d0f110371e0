// controller/admin_controller.go
package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dev-mohitbeniwal/archive-gateway/audit"
	gwerrors "github.com/dev-mohitbeniwal/archive-gateway/errors"
	"github.com/dev-mohitbeniwal/archive-gateway/util"
	helper_util "github.com/dev-mohitbeniwal/archive-gateway/util/helper"
)

// AdminPrefix is reserved for gateway endpoints. It is neither a valid key
// nor a valid archive name.
const AdminPrefix = "/_gateway"

// ArchiveCache is the part of the archive cache the admin endpoints use.
type ArchiveCache interface {
	Remove(ctx context.Context, address string) error
	LastAccess(key string) (time.Time, bool)
}

// KeyLister lists the keys of tracked archives.
type KeyLister interface {
	Keys() []string
}

type ArchiveStatus struct {
	Key        string     `json:"key"`
	LastAccess *time.Time `json:"lastAccess,omitempty"`
}

type AdminController struct {
	cache  ArchiveCache
	keys   KeyLister
	events audit.Service
}

// NewAdminController wires the admin endpoints. events may be nil when
// auditing is disabled.
func NewAdminController(cache ArchiveCache, keys KeyLister, events audit.Service) *AdminController {
	return &AdminController{cache: cache, keys: keys, events: events}
}

func (ac *AdminController) RegisterRoutes(r *gin.Engine) {
	admin := r.Group(AdminPrefix)
	{
		admin.GET("/archives", ac.ListArchives)
		admin.DELETE("/archives/:address", ac.RemoveArchive)
		admin.GET("/events", ac.QueryEvents)
	}
}

// ListArchives endpoint
func (ac *AdminController) ListArchives(c *gin.Context) {
	keys := ac.keys.Keys()
	archives := make([]ArchiveStatus, 0, len(keys))
	for _, key := range keys {
		status := ArchiveStatus{Key: key}
		if t, ok := ac.cache.LastAccess(key); ok {
			status.LastAccess = &t
		}
		archives = append(archives, status)
	}
	c.JSON(http.StatusOK, gin.H{"archives": archives, "count": len(archives)})
}

// RemoveArchive endpoint
func (ac *AdminController) RemoveArchive(c *gin.Context) {
	err := ac.cache.Remove(c.Request.Context(), c.Param("address"))
	switch {
	case err == nil:
		c.Status(http.StatusNoContent)
	case errors.Is(err, gwerrors.ErrArchiveNotFound):
		util.RespondWithError(c, http.StatusNotFound, "Archive not tracked", err)
	default:
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to remove archive", err)
	}
}

// QueryEvents endpoint
func (ac *AdminController) QueryEvents(c *gin.Context) {
	if ac.events == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "archive event auditing is not configured"})
		return
	}
	from, to, err := helper_util.GetTimeRange(c, time.Now(), 24*time.Hour)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid time range", err)
		return
	}
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	events, err := ac.events.QueryEvents(c.Request.Context(), from, to, c.Query("key"))
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to query archive events", err)
		return
	}
	total := len(events)
	if offset > total {
		offset = total
	}
	events = events[offset:]
	if limit < len(events) {
		events = events[:limit]
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "total": total})
}
