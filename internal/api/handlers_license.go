package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"license-server/internal/auth"
	"license-server/internal/database"
	"license-server/internal/license"
)

// respondLicenseError maps engine error kinds onto HTTP statuses. Unknown
// errors become a 500 without leaking internals.
func (s *Server) respondLicenseError(c *gin.Context, err error) {
	var licErr license.Error
	if errors.As(err, &licErr) {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, license.ErrKeyNotFound),
			errors.Is(err, license.ErrGameNotFound),
			errors.Is(err, license.ErrUserNotFound),
			errors.Is(err, license.ErrResellerNotFound):
			status = http.StatusNotFound
		case errors.Is(err, license.ErrExpired):
			status = http.StatusGone
		case errors.Is(err, license.ErrSuspended):
			status = http.StatusForbidden
		case errors.Is(err, license.ErrDeviceLocked),
			errors.Is(err, license.ErrDuplicateKey):
			status = http.StatusConflict
		case errors.Is(err, license.ErrInvalidStatus):
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": licErr.Code, "message": licErr.Message})
		return
	}

	s.log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "INTERNAL_ERROR",
		"message": "request failed",
	})
}

type activateRequest struct {
	LicenseKey string `json:"license_key" binding:"required"`
	DeviceID   string `json:"device_id" binding:"required"`
}

// handleActivate executes the device-lock activation protocol
// POST /api/v1/activate
func (s *Server) handleActivate(c *gin.Context) {
	var req activateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	details, err := s.licenseService.Activate(c.Request.Context(), req.LicenseKey, req.DeviceID, license.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	})
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	s.hub.Publish(ActivityEvent{
		Action:   database.ActionActivation,
		Key:      details.Key,
		DeviceID: req.DeviceID,
		At:       time.Now().UTC(),
	})

	c.JSON(http.StatusOK, details)
}

type issueRequest struct {
	GameID        string    `json:"game_id" binding:"required"`
	CustomerName  string    `json:"customer_name" binding:"required"`
	CustomerEmail string    `json:"customer_email"`
	ExpiresAt     time.Time `json:"expires_at" binding:"required"`
	Notes         string    `json:"notes"`
}

// handleIssueLicense issues a single license key. The issuing account is
// taken from the session; quota is reported, never enforced.
// POST /api/v1/licenses
func (s *Server) handleIssueLicense(c *gin.Context) {
	var req issueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	lk, err := s.licenseService.Issue(c.Request.Context(), license.IssueRequest{
		GameID:        req.GameID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		ExpiresAt:     req.ExpiresAt,
		Notes:         req.Notes,
		CreatedBy:     auth.CurrentUserID(c),
	})
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, lk)
}

type issueBulkRequest struct {
	GameID         string    `json:"game_id" binding:"required"`
	CustomerNames  []string  `json:"customer_names" binding:"required,min=1"`
	CustomerEmails []string  `json:"customer_emails"`
	ExpiresAt      time.Time `json:"expires_at" binding:"required"`
	Notes          string    `json:"notes"`
}

// handleIssueBulkLicenses issues one key per customer name. The batch is not
// all-or-nothing: on failure the keys issued so far are returned with the
// error.
// POST /api/v1/licenses/bulk
func (s *Server) handleIssueBulkLicenses(c *gin.Context) {
	var req issueBulkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	if len(req.CustomerNames) > s.cfg.LicenseConfig.MaxBulkBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "BATCH_TOO_LARGE",
			"message": "bulk batch exceeds the configured maximum",
		})
		return
	}

	issued, err := s.licenseService.IssueBulk(c.Request.Context(), license.BulkIssueRequest{
		GameID:         req.GameID,
		CustomerNames:  req.CustomerNames,
		CustomerEmails: req.CustomerEmails,
		ExpiresAt:      req.ExpiresAt,
		Notes:          req.Notes,
		CreatedBy:      auth.CurrentUserID(c),
	})
	if err != nil {
		var licErr license.Error
		if errors.As(err, &licErr) && len(issued) > 0 {
			c.JSON(http.StatusMultiStatus, gin.H{
				"issued": issued,
				"error":  licErr.Code,
			})
			return
		}
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"issued": issued, "count": len(issued)})
}

// handleSearchLicenses searches keys with filters and pagination.
// Non-admin accounts only see keys they issued themselves.
// GET /api/v1/licenses
func (s *Server) handleSearchLicenses(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(s.cfg.LicenseConfig.DefaultPageSize)))
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if limit > s.cfg.LicenseConfig.MaxPageSize {
		limit = s.cfg.LicenseConfig.MaxPageSize
	}

	filter := database.LicenseKeyFilter{
		GameID:       c.Query("game_id"),
		CustomerName: c.Query("customer_name"),
		Status:       database.LicenseStatus(c.Query("status")),
		KeySubstring: c.Query("key"),
		CreatedBy:    c.Query("created_by"),
		Page:         page,
		Limit:        limit,
	}
	if filter.Status != "" && !database.ValidStatus(filter.Status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": "invalid status"})
		return
	}
	if !auth.IsAdmin(c) {
		filter.CreatedBy = auth.CurrentUserID(c)
	}

	result, err := s.licenseService.Search(c.Request.Context(), filter)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// handleExpiringLicenses lists active keys expiring within the given days
// GET /api/v1/licenses/expiring?days=7
func (s *Server) handleExpiringLicenses(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": "invalid days"})
		return
	}

	keys, err := s.licenseService.ExpiringWithin(c.Request.Context(), days)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": keys, "count": len(keys)})
}

type updateLicenseRequest struct {
	CustomerName  *string    `json:"customer_name"`
	CustomerEmail *string    `json:"customer_email"`
	Status        *string    `json:"status"`
	ExpiresAt     *time.Time `json:"expires_at"`
	Notes         *string    `json:"notes"`
}

// handleUpdateLicense applies an administrative update to a key
// PUT /api/v1/licenses/:id
func (s *Server) handleUpdateLicense(c *gin.Context) {
	var req updateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "VALIDATION_ERROR", "message": err.Error()})
		return
	}

	update := license.UpdateRequest{
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		ExpiresAt:     req.ExpiresAt,
		Notes:         req.Notes,
	}
	if req.Status != nil {
		status := database.LicenseStatus(*req.Status)
		update.Status = &status
	}

	lk, err := s.licenseService.Update(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, lk)
}

// handleResetDeviceLock clears a key's device lock (admin only)
// POST /api/v1/licenses/:id/reset-device
func (s *Server) handleResetDeviceLock(c *gin.Context) {
	keyID := c.Param("id")
	if err := s.licenseService.ResetDeviceLock(c.Request.Context(), keyID, auth.CurrentUserID(c)); err != nil {
		s.respondLicenseError(c, err)
		return
	}

	s.hub.Publish(ActivityEvent{
		Action:   database.ActionDeviceReset,
		Key:      keyID,
		DeviceID: database.DeviceAdminReset,
		At:       time.Now().UTC(),
	})

	c.JSON(http.StatusOK, gin.H{"success": true})
}

// handleSweepExpired runs the expiry sweep (admin only)
// POST /api/v1/licenses/sweep
func (s *Server) handleSweepExpired(c *gin.Context) {
	n, err := s.licenseService.SweepExpired(c.Request.Context())
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked_expired": n})
}

// handleLicenseActivity lists recent audit rows for a key
// GET /api/v1/licenses/:id/activity
func (s *Server) handleLicenseActivity(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	logs, err := s.repo.ListActivityLogs(c.Request.Context(), c.Param("id"), limit)
	if err != nil {
		s.respondLicenseError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": logs, "count": len(logs)})
}
