package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"license-server/internal/auth"
)

// handleDashboardStats returns the fleet-wide summary (admin only)
// GET /api/v1/stats/dashboard
func (s *Server) handleDashboardStats(c *gin.Context) {
	stats, err := s.licenseService.DashboardStats(c.Request.Context())
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// handleResellerStats returns quota usage for a reseller. Resellers may read
// their own stats; admins may read anyone's.
// GET /api/v1/stats/resellers/:id
func (s *Server) handleResellerStats(c *gin.Context) {
	resellerID := c.Param("id")
	if !auth.IsAdmin(c) && resellerID != auth.CurrentUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{
			"error":   auth.ErrForbidden.Code,
			"message": "cannot read another reseller's stats",
		})
		return
	}

	stats, err := s.licenseService.ResellerStats(c.Request.Context(), resellerID)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
