// controller/access_controller.go
package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stronghold-io/bastion/decision"
	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/model"
	"github.com/stronghold-io/bastion/util"
)

type AccessController struct {
	engine *decision.Engine
}

func NewAccessController(engine *decision.Engine) *AccessController {
	return &AccessController{engine: engine}
}

// RegisterRoutes registers the API routes for access decisions
func (ac *AccessController) RegisterRoutes(r *gin.RouterGroup) {
	access := r.Group("/access")
	{
		access.POST("/check", ac.CheckAccess)
		access.GET("/cache/stats", ac.CacheStats)
		access.DELETE("/cache", ac.ClearCache)
		access.DELETE("/cache/users/:id", ac.InvalidateUser)
		access.DELETE("/cache/resources/:id", ac.InvalidateResource)
	}
}

// CheckAccess endpoint
func (ac *AccessController) CheckAccess(c *gin.Context) {
	var request model.AccessRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid access request", err)
		return
	}

	if request.IPAddress == "" {
		request.IPAddress = c.ClientIP()
	}
	if request.UserAgent == "" {
		request.UserAgent = c.Request.UserAgent()
	}

	decision := ac.engine.Evaluate(c, request)
	c.JSON(http.StatusOK, decision)
}

// CacheStats endpoint
func (ac *AccessController) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, ac.engine.CacheStats(c))
}

// ClearCache endpoint
func (ac *AccessController) ClearCache(c *gin.Context) {
	ac.engine.ClearCache(c)
	c.Status(http.StatusNoContent)
}

// InvalidateUser endpoint
func (ac *AccessController) InvalidateUser(c *gin.Context) {
	userID := c.Param("id")
	if userID == "" {
		util.RespondWithError(c, http.StatusBadRequest, "Missing user id", bastion_errors.ErrUnauthorized)
		return
	}
	removed := ac.engine.InvalidateUserCache(c, userID)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// InvalidateResource endpoint
func (ac *AccessController) InvalidateResource(c *gin.Context) {
	resourceID := c.Param("id")
	removed := ac.engine.InvalidateResourceCache(c, resourceID)
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
