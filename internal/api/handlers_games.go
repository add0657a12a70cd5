package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"

	"license-server/internal/database"
)

type gameRequest struct {
	Name     string `json:"name" binding:"required"`
	IsActive *bool  `json:"is_active"`
}

// handleListGames lists the catalogue
// GET /api/v1/games?active=true
func (s *Server) handleListGames(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.DefaultQuery("active", "false"))

	games, err := s.repo.ListGames(c.Request.Context(), activeOnly)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": games, "count": len(games)})
}

// handleCreateGame adds a game to the catalogue (admin only)
// POST /api/v1/games
func (s *Server) handleCreateGame(c *gin.Context) {
	var req gameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	game := &database.Game{Name: req.Name, IsActive: true}
	if req.IsActive != nil {
		game.IsActive = *req.IsActive
	}

	if err := s.repo.CreateGame(c.Request.Context(), game); err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, game)
}

// handleUpdateGame updates a game's name or active flag (admin only)
// PUT /api/v1/games/:id
func (s *Server) handleUpdateGame(c *gin.Context) {
	var req gameRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	game, err := s.repo.GetGameByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}
	if game == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "GAME_NOT_FOUND", "message": "game not found"})
		return
	}

	game.Name = req.Name
	if req.IsActive != nil {
		game.IsActive = *req.IsActive
	}

	if err := s.repo.UpdateGame(c.Request.Context(), game); err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, game)
}

// handleDeactivateGame soft-deletes a game (admin only)
// DELETE /api/v1/games/:id
func (s *Server) handleDeactivateGame(c *gin.Context) {
	err := s.repo.DeactivateGame(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			c.JSON(http.StatusNotFound, gin.H{"error": "GAME_NOT_FOUND", "message": "game not found"})
			return
		}
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true})
}
