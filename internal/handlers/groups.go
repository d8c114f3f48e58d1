package handlers

import (
	"errors"
	"net/http"

	"building_monitor/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	statusOK    = "ok"
	statusWoken = "woken"

	errGroupNotFound = "group not found"
)

// @Summary      Health check
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": statusOK,
	})
}

// @Summary      List groups
// @Description  Status of every configured group: due entities, last round, next wake-up.
// @Tags         groups
// @Produce      json
// @Success      200  {object}  map[string]interface{}  "count, groups"
// @Failure      401  {object}  map[string]string
// @Router       /api/v1/groups [get]
// @Security     BearerAuth
func (h *Handler) listGroups(c *gin.Context) {
	groups := h.services.Monitoring.Groups()
	c.JSON(http.StatusOK, gin.H{
		"count":  len(groups),
		"groups": groups,
	})
}

// @Summary      Get group
// @Tags         groups
// @Produce      json
// @Param        group  path      string  true  "Group name"
// @Success      200    {object}  service.GroupStatus
// @Failure      401    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/groups/{group} [get]
// @Security     BearerAuth
func (h *Handler) getGroup(c *gin.Context) {
	st, err := h.services.Monitoring.Group(c.Param("group"))
	if err != nil {
		h.groupError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// @Summary      Wake group
// @Description  End the group's current sleep so the next round starts now.
// @Tags         groups
// @Produce      json
// @Param        group  path      string  true  "Group name"
// @Success      202    {object}  map[string]string
// @Failure      401    {object}  map[string]string
// @Failure      404    {object}  map[string]string
// @Router       /api/v1/groups/{group}/wake [post]
// @Security     BearerAuth
func (h *Handler) wakeGroup(c *gin.Context) {
	name := c.Param("group")
	if err := h.services.Monitoring.Wake(name); err != nil {
		h.groupError(c, err)
		return
	}
	if h.log != nil {
		operator, _ := c.Get(ctxOperator)
		h.log.Infow("group_woken", "group", name, "operator", operator)
	}
	c.JSON(http.StatusAccepted, gin.H{"status": statusWoken, "group": name})
}

func (h *Handler) groupError(c *gin.Context, err error) {
	if errors.Is(err, service.ErrGroupNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": errGroupNotFound})
		return
	}
	if h.log != nil {
		h.log.Errorw("group_request_failed", "err", err)
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
