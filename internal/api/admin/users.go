// users.go implements instance administration of user accounts: listing,
// granting or revoking admin, and deleting accounts.
package admin

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/serversoft/serversoft/internal/api/httperr"
	"github.com/serversoft/serversoft/internal/db/repositories"
)

// UserHandlers handles user management endpoints
type UserHandlers struct {
	userRepo *repositories.UserRepository
}

// NewUserHandlers creates a new UserHandlers instance
func NewUserHandlers(userRepo *repositories.UserRepository) *UserHandlers {
	return &UserHandlers{userRepo: userRepo}
}

// @Summary      List users
// @Description  Get a paginated list of all accounts. Requires an admin session.
// @Tags         Users
// @Security     Bearer
// @Produce      json
// @Param        page      query  int  false  "Page number (default 1)"
// @Param        per_page  query  int  false  "Items per page, max 100 (default 20)"
// @Success      200  {object}  map[string]interface{}  "users: []models.User, pagination: map"
// @Failure      403  {object}  map[string]interface{}  "Not an admin"
// @Router       /api/v1/admin/users [get]
// ListUsersHandler lists all users with pagination
// GET /api/v1/admin/users?page=1&per_page=20
func (h *UserHandlers) ListUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))

		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 100 {
			perPage = 20
		}

		users, total, err := h.userRepo.ListUsers(c.Request.Context(), perPage, (page-1)*perPage)
		if err != nil {
			httperr.Internal(c, "Failed to list users", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"users": users,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// UpdateUserRequest is the body of PUT /api/v1/admin/users/:id.
type UpdateUserRequest struct {
	IsAdmin *bool `json:"is_admin" binding:"required"`
}

// UpdateUserHandler grants or revokes admin. Admins cannot demote themselves,
// which keeps at least one admin on the instance.
func (h *UserHandlers) UpdateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		var req UpdateUserRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httperr.BadRequest(c, "Invalid request: "+err.Error())
			return
		}
		id := c.Param("id")
		if id == callerID && !*req.IsAdmin {
			httperr.BadRequest(c, "You cannot revoke your own admin access")
			return
		}

		ctx := c.Request.Context()
		if err := h.userRepo.SetAdmin(ctx, id, *req.IsAdmin); err != nil {
			httperr.Repo(c, err, "User", "Failed to update user")
			return
		}
		user, err := h.userRepo.GetUserByID(ctx, id)
		if err != nil || user == nil {
			httperr.Internal(c, "Failed to reload user", err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// DeleteUserHandler deletes an account and everything it owns.
// DELETE /api/v1/admin/users/:id
func (h *UserHandlers) DeleteUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		callerID, ok := httperr.UserID(c)
		if !ok {
			return
		}
		id := c.Param("id")
		if id == callerID {
			httperr.BadRequest(c, "You cannot delete your own account here")
			return
		}
		if err := h.userRepo.DeleteUser(c.Request.Context(), id); err != nil {
			httperr.Repo(c, err, "User", "Failed to delete user")
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "User deleted"})
	}
}
