package servers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/models"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

// GroupHandlers serves /api/v1/groups.
type GroupHandlers struct {
	groupRepo  *repositories.ServerGroupRepository
	serverRepo *repositories.ServerRepository
}

// NewGroupHandlers creates the server group handlers.
func NewGroupHandlers(groupRepo *repositories.ServerGroupRepository, serverRepo *repositories.ServerRepository) *GroupHandlers {
	return &GroupHandlers{groupRepo: groupRepo, serverRepo: serverRepo}
}

// GroupRequest is the body of POST and PUT /api/v1/groups.
type GroupRequest struct {
	Name        string  `json:"name" binding:"required"`
	Description *string `json:"description"`
}

func (req *GroupRequest) normalize() error {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return errors.New("name is required")
	}
	if len(req.Name) > maxNameLength {
		return errors.New("name is too long")
	}
	if req.Description != nil && strings.TrimSpace(*req.Description) == "" {
		req.Description = nil
	}
	return nil
}

func (h *GroupHandlers) loadGroup(c *gin.Context, userID string) (*models.ServerGroup, bool) {
	g, err := h.groupRepo.GetGroup(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		httperr.Internal(c, "Failed to load group", err)
		return nil, false
	}
	if g == nil {
		httperr.NotFound(c, "Group")
		return nil, false
	}
	return g, true
}

// ListGroupsHandler returns the caller's groups with member counts.
func (h *GroupHandlers) ListGroupsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		groups, err := h.groupRepo.ListGroups(c.Request.Context(), userID)
		if err != nil {
			httperr.Internal(c, "Failed to list groups", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"groups": groups})
	}
}

// CreateGroupHandler creates an empty group.
func (h *GroupHandlers) CreateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req GroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if err := req.normalize(); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		g := &models.ServerGroup{UserID: userID, Name: req.Name, Description: req.Description}
		if err := h.groupRepo.CreateGroup(c.Request.Context(), g); err != nil {
			httperr.Repo(c, err, "Group", "Failed to create group")
			return
		}
		c.JSON(http.StatusCreated, g)
	}
}

// GetGroupHandler returns a group and its members in order.
func (h *GroupHandlers) GetGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		g, ok := h.loadGroup(c, userID)
		if !ok {
			return
		}
		members, err := h.groupRepo.ListMembers(c.Request.Context(), g.ID)
		if err != nil {
			httperr.Internal(c, "Failed to list group members", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"group": g, "members": members})
	}
}

// UpdateGroupHandler renames a group.
func (h *GroupHandlers) UpdateGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req GroupRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		if err := req.normalize(); err != nil {
			httperr.BadRequest(c, err.Error())
			return
		}
		g, ok := h.loadGroup(c, userID)
		if !ok {
			return
		}
		g.Name = req.Name
		g.Description = req.Description
		if err := h.groupRepo.UpdateGroup(c.Request.Context(), g); err != nil {
			httperr.Repo(c, err, "Group", "Failed to update group")
			return
		}
		c.JSON(http.StatusOK, g)
	}
}

// DeleteGroupHandler removes a group. Its servers are not touched.
func (h *GroupHandlers) DeleteGroupHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		if err := h.groupRepo.DeleteGroup(c.Request.Context(), userID, c.Param("id")); err != nil {
			httperr.Repo(c, err, "Group", "Failed to delete group")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Group deleted"})
	}
}

// AddMemberRequest is the body of POST /api/v1/groups/:id/members.
type AddMemberRequest struct {
	ServerID string `json:"server_id" binding:"required"`
}

// AddMemberHandler appends one of the caller's servers to the end of a group.
func (h *GroupHandlers) AddMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req AddMemberRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		g, ok := h.loadGroup(c, userID)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		server, err := h.serverRepo.GetServer(ctx, userID, req.ServerID)
		if err != nil {
			httperr.Internal(c, "Failed to load server", err)
			return
		}
		if server == nil {
			httperr.NotFound(c, "Server")
			return
		}

		member, err := h.groupRepo.AddMember(ctx, g.ID, server.ID)
		if err != nil {
			if errors.Is(err, repositories.ErrDuplicate) {
				httperr.Abort(c, http.StatusConflict, "Server is already in this group")
				return
			}
			httperr.Internal(c, "Failed to add group member", err)
			return
		}
		member.ServerName = &server.Name
		member.ServerStatus = &server.Status
		c.JSON(http.StatusCreated, member)
	}
}

// RemoveMemberHandler takes a server out of a group.
func (h *GroupHandlers) RemoveMemberHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		g, ok := h.loadGroup(c, userID)
		if !ok {
			return
		}
		if err := h.groupRepo.RemoveMember(c.Request.Context(), g.ID, c.Param("server_id")); err != nil {
			httperr.Repo(c, err, "Group member", "Failed to remove group member")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Server removed from group"})
	}
}

// ReorderRequest is the body of PUT /api/v1/groups/:id/order: every member's
// server_id in the new order.
type ReorderRequest struct {
	ServerIDs []string `json:"server_ids" binding:"required"`
}

// @Summary      Reorder group members
// @Description  Persists a drag-and-drop order. The list must contain every current member exactly once; the whole order is applied atomically.
// @Tags         Groups
// @Security     Bearer
// @Accept       json
// @Produce      json
// @Param        id    path  string          true  "Group ID"
// @Param        body  body  ReorderRequest  true  "New order"
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]interface{}  "List does not match members"
// @Router       /api/v1/groups/{id}/order [put]
func (h *GroupHandlers) ReorderMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req ReorderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		g, ok := h.loadGroup(c, userID)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		if err := h.groupRepo.ReorderMembers(ctx, g.ID, req.ServerIDs); err != nil {
			if errors.Is(err, repositories.ErrOrderMismatch) {
				httperr.BadRequest(c, err.Error())
				return
			}
			httperr.Internal(c, "Failed to reorder group", err)
			return
		}
		members, err := h.groupRepo.ListMembers(ctx, g.ID)
		if err != nil {
			httperr.Internal(c, "Failed to list group members", err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"group": g, "members": members})
	}
}
