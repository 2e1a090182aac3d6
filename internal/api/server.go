package api

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/david/pimm/internal/auth"
	"github.com/david/pimm/internal/batch"
	"github.com/david/pimm/internal/cache"
	"github.com/david/pimm/internal/config"
	"github.com/david/pimm/internal/dashboard"
	"github.com/david/pimm/internal/db"
	"github.com/david/pimm/internal/importer"
	"github.com/david/pimm/internal/invitation"
	"github.com/david/pimm/internal/projects"
	"github.com/david/pimm/internal/registration"
	"github.com/david/pimm/internal/tracking"
)

type Server struct {
	Repo          db.Repository
	AuthService   *auth.Service
	Echo          *echo.Echo
	Importer      *importer.Importer
	Tracking      *tracking.Manager
	BulkAdder     *tracking.BulkAdder
	Jobs          *batch.Runner
	Projects      *projects.Service
	Invitations   *invitation.Service
	Registrations *registration.Service
	Dashboard     *dashboard.Service
	Cache         *cache.Cache

	cfg *config.Configuration
	log *zap.Logger

	adminOnce   sync.Once
	adminSecret string
	adminErr    error
}

func NewServer(cfg *config.Configuration, repo db.Repository, log *zap.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.Use(requestLogger(log))
	e.Use(middleware.Recover())

	// CORS: allow frontend origins from config or default to localhost
	allowedOrigins := []string{"http://localhost:4200"}
	for _, o := range cfg.CORSOrigins {
		if o = strings.TrimSpace(o); o != "" {
			allowedOrigins = append(allowedOrigins, o)
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:  allowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
		ExposeHeaders: []string{echo.HeaderContentDisposition},
	}))

	authService, err := auth.NewService(repo, cfg.JWTSecret, log.Named("auth"))
	if err != nil {
		return nil, err
	}

	mappings, err := importer.LoadMappings(cfg.Import.MappingsFile)
	if err != nil {
		return nil, err
	}

	c := cache.New()
	provisioner := auth.NewProvisioner(repo, cfg.Import.EmailDomain, cfg.PasswordLength, log.Named("provision"))
	manager := tracking.NewManager(repo, c, log)
	regs := registration.NewService(repo, log)

	s := &Server{
		Repo:        repo,
		AuthService: authService,
		Echo:        e,
		Importer: importer.New(repo, provisioner, mappings, importer.Options{
			Sponsor:         cfg.Import.Sponsor,
			EagerAwardTerms: cfg.Import.EagerAwardTerms,
			SessionTTL:      cfg.Import.SessionTTL,
			Cache:           c,
		}, log),
		Tracking:      manager,
		BulkAdder:     tracking.NewBulkAdder(manager, cfg.Tracking.ChunkSize, log),
		Jobs:          batch.NewRunner(cfg.Tracking.JobTimeout, log),
		Projects:      projects.NewService(repo, c, log),
		Invitations:   invitation.NewService(repo, provisioner, log),
		Registrations: regs,
		Dashboard:     dashboard.NewService(manager, repo, regs, c, log),
		Cache:         c,
		cfg:           cfg,
		log:           log,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.Echo.Group("/api/v1")
	api.POST("/auth/login", s.handleLogin)

	// Admin Routes (operator accounts)
	admin := api.Group("/admin")
	admin.Use(s.adminMiddleware)
	admin.POST("/operators", s.handleCreateOperator)

	// Protected Routes
	p := api.Group("")
	p.Use(s.AuthService.Middleware)
	p.GET("/dashboard", s.handleDashboard)

	p.POST("/import/preview", s.handleImportPreview)
	p.GET("/import/:id", s.handleImportSession)
	p.POST("/import/:id/confirm", s.handleImportConfirm)
	p.POST("/import/:id/cancel", s.handleImportCancel)

	p.GET("/tracking", s.handleListTracking)
	p.POST("/tracking", s.handleAddTracking)
	p.GET("/tracking/counts", s.handleTrackingCounts)
	p.GET("/tracking/untracked/count", s.handleUntrackedCount)
	p.POST("/tracking/bulk", s.handleBulkAdd)
	p.PATCH("/tracking/:nid", s.handleUpdateTracking)
	p.DELETE("/tracking/:nid", s.handleRemoveTracking)
	p.GET("/jobs/:id", s.handleJobStatus)
	p.POST("/jobs/:id/cancel", s.handleJobCancel)

	p.GET("/projects", s.handleListProjects)
	p.POST("/projects", s.handleCreateProject)
	p.GET("/projects/:id", s.handleGetProject)

	p.POST("/invitations/filter", s.handleFilterProjects)
	p.POST("/invitations/match", s.handleMatchPIs)
	p.GET("/invitee-lists", s.handleListInviteeLists)
	p.POST("/invitee-lists", s.handleCreateInviteeList)
	p.GET("/invitee-lists/:id", s.handleGetInviteeList)
	p.POST("/invitee-lists/:id/users", s.handleAddInvitees)
	p.GET("/invitee-lists/:id/export", s.handleExportInviteeList)

	p.GET("/registration-lists", s.handleListRegistrationLists)
	p.POST("/registration-lists", s.handleCreateRegistrationList)
	p.GET("/registration-lists/:id", s.handleViewRegistrationList)
	p.GET("/registration-lists/:id/users/:uid", s.handleUserSubmissions)
	p.GET("/registration-lists/:id/export", s.handleExportRegistrants)
	p.GET("/webforms", s.handleListWebforms)
	p.POST("/webforms", s.handleCreateWebform)
	p.GET("/webforms/:id/fields", s.handleWebformFields)
	p.POST("/webforms/:id/submissions", s.handleCreateSubmission)
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

func (s *Server) handleDashboard(c echo.Context) error {
	return c.JSON(http.StatusOK, s.Dashboard.Build(c.Request().Context()))
}

func (s *Server) Start(port string) error {
	return s.Echo.Start(":" + port)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.Echo.Shutdown(ctx)
}

func requestLogger(log *zap.Logger) echo.MiddlewareFunc {
	log = log.Named("http")
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogError:    true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("remote_ip", v.RemoteIP),
			}
			if v.Error != nil {
				log.Warn("request failed", append(fields, zap.Error(v.Error))...)
				return nil
			}
			log.Info("request", fields...)
			return nil
		},
	})
}

func (s *Server) adminMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		secret, err := s.resolveAdminSecret()
		if err != nil {
			return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Server admin configuration error"})
		}

		// Check X-Admin-Secret header or Bearer token
		authHeader := c.Request().Header.Get("Authorization")
		adminHeader := c.Request().Header.Get("X-Admin-Secret")

		if adminHeader != "" && secretEqual(adminHeader, secret) {
			return next(c)
		}
		if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
			if secretEqual(authHeader[7:], secret) {
				return next(c)
			}
		}
		return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized admin access"})
	}
}

func secretEqual(given, secret string) bool {
	return subtle.ConstantTimeCompare([]byte(given), []byte(secret)) == 1
}

func (s *Server) resolveAdminSecret() (string, error) {
	s.adminOnce.Do(func() {
		if secret := strings.TrimSpace(s.cfg.AdminSecret); secret != "" {
			s.adminSecret = secret
			return
		}

		buf := make([]byte, 48)
		if _, err := rand.Read(buf); err != nil {
			s.adminErr = fmt.Errorf("failed to generate ADMIN_SECRET fallback: %w", err)
			return
		}
		s.adminSecret = base64.RawURLEncoding.EncodeToString(buf)
		s.log.Warn("ADMIN_SECRET is not set; using ephemeral in-memory fallback secret")
	})

	if s.adminErr != nil {
		return "", s.adminErr
	}
	if s.adminSecret == "" {
		return "", fmt.Errorf("admin secret unavailable")
	}
	return s.adminSecret, nil
}
