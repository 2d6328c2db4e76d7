// Package server exposes the orchestration core over HTTP: prompt
// submission, plan listing, health, and metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/knowflow/knowflow/internal/ratelimit"
	"github.com/knowflow/knowflow/internal/store"
	"github.com/knowflow/knowflow/pkg/models"
)

// Runner executes one orchestration run per submitted prompt.
type Runner interface {
	Run(ctx context.Context, userID, prompt string, taskCtx map[string]string) models.Outcome
}

// Options configures the server.
type Options struct {
	// AuthToken, when non-empty, is required as a bearer token on /api routes.
	AuthToken string
	// Limiter bounds prompt submissions per user; nil disables limiting.
	Limiter *ratelimit.Limiter
	// Registry serves /metrics; nil uses the default registry.
	Registry *prometheus.Registry
}

// Server is the HTTP front of the orchestration core.
type Server struct {
	echo    *echo.Echo
	runner  Runner
	gateway store.Gateway
	limiter *ratelimit.Limiter
	logger  *zap.Logger
	now     func() time.Time
}

// New creates the server and registers its routes.
func New(runner Runner, gateway store.Gateway, logger *zap.Logger, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:    e,
		runner:  runner,
		gateway: gateway,
		limiter: opts.Limiter,
		logger:  logger,
		now:     time.Now,
	}

	e.GET("/health", s.handleHealth)

	var metricsHandler http.Handler
	if opts.Registry != nil {
		metricsHandler = promhttp.HandlerFor(opts.Registry, promhttp.HandlerOpts{})
	} else {
		metricsHandler = promhttp.Handler()
	}
	e.GET("/metrics", echo.WrapHandler(metricsHandler))

	api := e.Group("/api")
	if opts.AuthToken != "" {
		api.Use(bearerAuth(opts.AuthToken))
	}
	api.POST("/user-prompt", s.handleSubmitPrompt)
	api.GET("/user-prompt", s.handleSubmitPromptQuery)
	api.GET("/user/:userId/plans", s.handleListPlans)

	return s
}

// Start begins serving on addr and blocks until the listener fails.
func (s *Server) Start(addr string) error {
	return s.echo.Start(addr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the routing tree, used by tests.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) handleHealth(c echo.Context) error {
	if err := s.gateway.Ping(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

type promptRequest struct {
	UserID  string            `json:"user_id"`
	Prompt  string            `json:"prompt"`
	Context map[string]string `json:"context,omitempty"`
}

func (s *Server) handleSubmitPrompt(c echo.Context) error {
	var req promptRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("malformed request body"))
	}
	if req.UserID == "" || req.Prompt == "" {
		return c.JSON(http.StatusBadRequest, errorBody("user_id and prompt are required"))
	}
	return s.submit(c, req.UserID, req.Prompt, req.Context)
}

// handleSubmitPromptQuery accepts the same submission via query
// parameters and forwards it to the shared submit path.
func (s *Server) handleSubmitPromptQuery(c echo.Context) error {
	userID := c.QueryParam("userId")
	prompt := c.QueryParam("prompt")
	if userID == "" || prompt == "" {
		return c.JSON(http.StatusBadRequest, errorBody("userId and prompt query parameters are required"))
	}
	return s.submit(c, userID, prompt, nil)
}

// submit is the one submission path: rate limit, record the prompt on
// the profile, run the orchestration.
func (s *Server) submit(c echo.Context, userID, prompt string, taskCtx map[string]string) error {
	if s.limiter != nil && !s.limiter.Allow(userID) {
		return c.JSON(http.StatusTooManyRequests, errorBody("rate limit exceeded, try again later"))
	}

	if err := s.touchProfile(c.Request().Context(), userID, prompt); err != nil {
		s.logger.Error("profile touch failed", zap.String("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorBody("storage unavailable"))
	}

	outcome := s.runner.Run(c.Request().Context(), userID, prompt, taskCtx)
	return c.JSON(outcomeStatus(outcome), outcome)
}

func (s *Server) handleListPlans(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("userId is required"))
	}

	docs, err := s.gateway.Query(c.Request().Context(), store.PlansCollection(userID), store.Filter{}, 0, 0)
	if err != nil {
		s.logger.Error("listing plans failed", zap.String("user_id", userID), zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorBody("storage unavailable"))
	}

	plans := make([]models.LessonPlan, 0, len(docs))
	for _, doc := range docs {
		var plan models.LessonPlan
		if err := doc.Decode(&plan); err != nil {
			s.logger.Warn("skipping undecodable plan",
				zap.String("user_id", userID),
				zap.String("key", doc.Key),
				zap.Error(err))
			continue
		}
		plans = append(plans, plan)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"user_id": userID,
		"plans":   plans,
		"count":   len(plans),
	})
}

// profile is the per-user document in the users collection.
type profile struct {
	UserID       string    `json:"user_id"`
	CreatedAt    time.Time `json:"created_at"`
	LastActive   time.Time `json:"last_active"`
	LastPrompt   string    `json:"last_prompt,omitempty"`
	LastPromptAt time.Time `json:"last_prompt_at,omitempty"`
}

// touchProfile ensures the user profile exists, refreshes its
// last-active timestamp, and records the submitted prompt. The prompt is
// written before the run starts, so it survives a failed run. Plans can
// only be persisted for known users, so submission is where a user
// becomes known.
func (s *Server) touchProfile(ctx context.Context, userID, prompt string) error {
	now := s.now().UTC()
	p := profile{UserID: userID, CreatedAt: now, LastActive: now, LastPrompt: prompt, LastPromptAt: now}

	doc, err := s.gateway.Get(ctx, store.UsersCollection, userID)
	switch {
	case errors.Is(err, store.ErrNotFound):
	case err != nil:
		return err
	default:
		var existing profile
		if decodeErr := doc.Decode(&existing); decodeErr == nil && !existing.CreatedAt.IsZero() {
			p.CreatedAt = existing.CreatedAt
		}
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = s.gateway.Upsert(ctx, store.UsersCollection, userID, data, store.AnyVersion)
	return err
}

// outcomeStatus maps a run outcome to an HTTP status. A persisted plan
// is a success even when the graph side degraded.
func outcomeStatus(out models.Outcome) int {
	if out.Success {
		return http.StatusOK
	}
	switch out.ErrorClass {
	case models.ErrorClassUnauthorized:
		return http.StatusForbidden
	case models.ErrorClassSchemaValidation:
		return http.StatusUnprocessableEntity
	case models.ErrorClassPersistenceConflict:
		return http.StatusConflict
	case models.ErrorClassTransientProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// bearerAuth requires "Authorization: Bearer <token>" on every request.
func bearerAuth(token string) echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:Authorization",
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return key == token, nil
		},
	})
}

// requestLogger logs one structured line per request.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
				zap.String("request_id", v.RequestID))
			return nil
		},
	})
}
