package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"license-server/internal/auth"
	"license-server/internal/database"
)

type createUserRequest struct {
	Username       string   `json:"username" binding:"required,min=3"`
	Password       string   `json:"password" binding:"required,min=8"`
	Role           string   `json:"role" binding:"required"`
	Quota          *int     `json:"quota"`
	AllocatedGames []string `json:"allocated_games"`
}

type updateUserRequest struct {
	Role           *string  `json:"role"`
	Quota          *int     `json:"quota"`
	AllocatedGames []string `json:"allocated_games"`
	IsActive       *bool    `json:"is_active"`
}

func sanitizeUser(u *database.User) gin.H {
	out := gin.H{
		"id":         u.ID,
		"username":   u.Username,
		"role":       u.Role,
		"is_active":  u.IsActive,
		"created_at": u.CreatedAt,
	}
	if u.Quota != nil {
		out["quota"] = *u.Quota
	}
	if u.AllocatedGames != "" {
		out["allocated_games"] = database.JSONToAllocatedGames(u.AllocatedGames)
	}
	return out
}

// handleListUsers lists accounts, optionally by role (admin only)
// GET /api/v1/users?role=reseller
func (s *Server) handleListUsers(c *gin.Context) {
	role := database.UserRole(c.Query("role"))
	if role != "" && !database.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": "invalid role"})
		return
	}

	users, err := s.repo.ListUsers(c.Request.Context(), role)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	items := make([]gin.H, 0, len(users))
	for i := range users {
		items = append(items, sanitizeUser(&users[i]))
	}

	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// handleCreateUser creates an account (admin only). Quota and game
// allocations only matter for resellers.
// POST /api/v1/users
func (s *Server) handleCreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	role := database.UserRole(req.Role)
	if !database.ValidRole(role) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": "invalid role"})
		return
	}

	hash, err := s.authService.HashPassword(req.Password)
	if err != nil {
		if authErr, ok := err.(auth.AuthError); ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": authErr.Code, "message": authErr.Message})
			return
		}
		s.respondLicenseError(c, err)
		return
	}

	user := &database.User{
		Username:     req.Username,
		PasswordHash: hash,
		Role:         role,
		Quota:        req.Quota,
		IsActive:     true,
	}
	if len(req.AllocatedGames) > 0 {
		user.AllocatedGames = database.AllocatedGamesToJSON(req.AllocatedGames)
	}

	if err := s.repo.CreateUser(c.Request.Context(), user); err != nil {
		if errors.Is(err, database.ErrDuplicateUsername) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "DUPLICATE_USERNAME",
				"message": "username already exists",
			})
			return
		}
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, sanitizeUser(user))
}

// handleUpdateUser updates role, quota, allocations, or active flag (admin only)
// PUT /api/v1/users/:id
func (s *Server) handleUpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	user, err := s.repo.GetUserByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND", "message": "user not found"})
		return
	}

	if req.Role != nil {
		role := database.UserRole(*req.Role)
		if !database.ValidRole(role) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": "invalid role"})
			return
		}
		user.Role = role
	}
	if req.Quota != nil {
		user.Quota = req.Quota
	}
	if req.AllocatedGames != nil {
		user.AllocatedGames = database.AllocatedGamesToJSON(req.AllocatedGames)
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateUser(c.Request.Context(), user); err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, sanitizeUser(user))
}

// handleDeactivateUser soft-deletes an account (admin only)
// DELETE /api/v1/users/:id
func (s *Server) handleDeactivateUser(c *gin.Context) {
	err := s.repo.DeactivateUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "USER_NOT_FOUND", "message": "user not found"})
			return
		}
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
