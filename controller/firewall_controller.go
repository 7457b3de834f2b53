// controller/firewall_controller.go
package controller

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	bastion_errors "github.com/stronghold-io/bastion/errors"
	"github.com/stronghold-io/bastion/firewall"
	"github.com/stronghold-io/bastion/model"
	"github.com/stronghold-io/bastion/util"
	helper_util "github.com/stronghold-io/bastion/util/helper"
)

type FirewallController struct {
	engine *firewall.Engine
	store  *firewall.Store
}

func NewFirewallController(engine *firewall.Engine, store *firewall.Store) *FirewallController {
	return &FirewallController{engine: engine, store: store}
}

// RegisterRoutes registers the API routes for firewall rules
func (fc *FirewallController) RegisterRoutes(r *gin.RouterGroup) {
	fw := r.Group("/firewall")
	{
		fw.POST("/rules", fc.CreateRule)
		fw.PUT("/rules/:id", fc.UpdateRule)
		fw.DELETE("/rules/:id", fc.DeleteRule)
		fw.GET("/rules", fc.ListRules)
		fw.POST("/check", fc.CheckTraffic)
	}
}

// CreateRule endpoint
func (fc *FirewallController) CreateRule(c *gin.Context) {
	var rule model.FirewallRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid firewall rule data", bastion_errors.ErrInvalidRuleData)
		return
	}

	created, err := fc.store.CreateRule(c, rule)
	if err != nil {
		switch {
		case errors.Is(err, bastion_errors.ErrInvalidRuleData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid firewall rule data", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to create firewall rule", err)
		}
		return
	}

	c.JSON(http.StatusCreated, created)
}

// UpdateRule endpoint
func (fc *FirewallController) UpdateRule(c *gin.Context) {
	ruleID := c.Param("id")
	var rule model.FirewallRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid firewall rule data", err)
		return
	}

	updated, err := fc.store.UpdateRule(c, ruleID, rule)
	if err != nil {
		switch {
		case errors.Is(err, bastion_errors.ErrRuleNotFound):
			util.RespondWithError(c, http.StatusNotFound, "Firewall rule not found", err)
		case errors.Is(err, bastion_errors.ErrInvalidRuleData):
			util.RespondWithError(c, http.StatusBadRequest, "Invalid firewall rule data", err)
		default:
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to update firewall rule", err)
		}
		return
	}

	c.JSON(http.StatusOK, updated)
}

// DeleteRule endpoint
func (fc *FirewallController) DeleteRule(c *gin.Context) {
	ruleID := c.Param("id")
	if err := fc.store.DeleteRule(c, ruleID); err != nil {
		if errors.Is(err, bastion_errors.ErrRuleNotFound) {
			util.RespondWithError(c, http.StatusNotFound, "Firewall rule not found", err)
		} else {
			util.RespondWithError(c, http.StatusInternalServerError, "Failed to delete firewall rule", err)
		}
		return
	}

	c.Status(http.StatusNoContent)
}

// ListRules endpoint
func (fc *FirewallController) ListRules(c *gin.Context) {
	limit, offset, err := helper_util.GetPaginationParams(c)
	if err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid pagination parameters", err)
		return
	}

	rules, err := fc.store.ListRules(c, limit, offset)
	if err != nil {
		util.RespondWithError(c, http.StatusInternalServerError, "Failed to list firewall rules", err)
		return
	}

	c.JSON(http.StatusOK, rules)
}

// CheckTraffic endpoint
func (fc *FirewallController) CheckTraffic(c *gin.Context) {
	var traffic model.TrafficDescriptor
	if err := c.ShouldBindJSON(&traffic); err != nil {
		util.RespondWithError(c, http.StatusBadRequest, "Invalid traffic descriptor", err)
		return
	}

	action := fc.engine.Decide(traffic)
	c.JSON(http.StatusOK, gin.H{"action": action})
}
