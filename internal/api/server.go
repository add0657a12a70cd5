package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"license-server/config"
	"license-server/internal/auth"
	"license-server/internal/database"
	"license-server/internal/license"
	"license-server/internal/logging"
)

// ipRateLimiter hands out one token bucket per client IP for the public
// activation endpoint.
type ipRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newIPRateLimiter(perMinute, burst int) *ipRateLimiter {
	return &ipRateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(float64(perMinute) / 60.0),
		burst:    burst,
	}
}

func (l *ipRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.limit, l.burst)
		l.limiters[ip] = limiter
	}
	l.mu.Unlock()
	return limiter.Allow()
}

// Server is the HTTP API server
type Server struct {
	router         *gin.Engine
	httpServer     *http.Server
	repo           *database.Repository
	licenseService *license.Service
	authService    *auth.Service
	authHandlers   *auth.Handlers
	hub            *ActivityHub
	cfg            *config.Config
	activationRL   *ipRateLimiter
	log            zerolog.Logger
}

// NewServer creates the API server and registers all routes
func NewServer(cfg *config.Config, repo *database.Repository, licenseService *license.Service, authService *auth.Service) *Server {
	if cfg.ServerConfig.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		router:         gin.New(),
		repo:           repo,
		licenseService: licenseService,
		authService:    authService,
		authHandlers:   auth.NewHandlers(authService),
		hub:            NewActivityHub(),
		cfg:            cfg,
		activationRL:   newIPRateLimiter(cfg.LicenseConfig.ActivationRatePerMinute, cfg.LicenseConfig.ActivationBurst),
		log:            logging.Component("api"),
	}

	s.router.Use(gin.Recovery())
	s.router.Use(s.requestLogger())
	s.router.Use(s.corsMiddleware())

	s.registerRoutes()

	return s
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	corsConfig := cors.DefaultConfig()
	origins := strings.Split(s.cfg.ServerConfig.AllowedOrigins, ",")
	if len(origins) == 1 && origins[0] == "*" {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AllowHeaders = append(corsConfig.AllowHeaders, "Authorization")
	return cors.New(corsConfig)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	}
}

// activationRateLimit throttles the unauthenticated activation endpoint
func (s *Server) activationRateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.activationRL.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":   "RATE_LIMITED",
				"message": "too many activation attempts, slow down",
			})
			return
		}
		c.Next()
	}
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authGroup := s.router.Group("/api/auth")
	{
		authGroup.POST("/login", s.authHandlers.Login)
		authGroup.POST("/refresh", s.authHandlers.Refresh)
		authGroup.POST("/logout", s.authHandlers.Logout)
	}

	v1 := s.router.Group("/api/v1")

	// Activation is called by game clients and needs no account.
	v1.POST("/activate", s.activationRateLimit(), s.handleActivate)

	jwtMiddleware := auth.Middleware(s.authService.GetJWTManager())

	protected := v1.Group("", jwtMiddleware)
	{
		protected.POST("/auth/change-password", s.authHandlers.ChangePassword)

		protected.POST("/licenses", s.handleIssueLicense)
		protected.POST("/licenses/bulk", s.handleIssueBulkLicenses)
		protected.GET("/licenses", s.handleSearchLicenses)
		protected.GET("/licenses/expiring", s.handleExpiringLicenses)
		protected.GET("/licenses/:id/activity", s.handleLicenseActivity)
		protected.PUT("/licenses/:id", s.handleUpdateLicense)

		protected.GET("/stats/resellers/:id", s.handleResellerStats)

		protected.GET("/games", s.handleListGames)
	}

	admin := protected.Group("", auth.RequireAdmin())
	{
		admin.POST("/licenses/:id/reset-device", s.handleResetDeviceLock)
		admin.POST("/licenses/sweep", s.handleSweepExpired)

		admin.GET("/stats/dashboard", s.handleDashboardStats)

		admin.POST("/games", s.handleCreateGame)
		admin.PUT("/games/:id", s.handleUpdateGame)
		admin.DELETE("/games/:id", s.handleDeactivateGame)

		admin.GET("/users", s.handleListUsers)
		admin.POST("/users", s.handleCreateUser)
		admin.PUT("/users/:id", s.handleUpdateUser)
		admin.DELETE("/users/:id", s.handleDeactivateUser)
	}

	// Live audit feed for admin dashboards.
	s.router.GET("/ws/activity", jwtMiddleware, auth.RequireAdmin(), s.handleActivityWS)
}

// Start runs the HTTP server and the websocket hub until the context is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.Run(ctx)

	addr := fmt.Sprintf("%s:%d", s.cfg.ServerConfig.Host, s.cfg.ServerConfig.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	s.log.Info().Str("addr", addr).Msg("HTTP server listening")

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		s.log.Info().Msg("HTTP server stopped")
		return nil
	}
}
