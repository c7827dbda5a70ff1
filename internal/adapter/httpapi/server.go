// Package httpapi exposes users and tasks over a JSON HTTP API.
// Domain error kinds are mapped to HTTP status codes in one place,
// handlers stay free of status logic.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"relmap/internal/repository"
	"relmap/internal/shared"
)

// HealthFunc probes the database backing the API.
type HealthFunc func(ctx context.Context) error

// StatsFunc reports connection pool statistics.
type StatsFunc func() map[string]any

// Server wires repositories into a gin router.
type Server struct {
	router *gin.Engine
	users  *repository.UserRepository
	tasks  *repository.TaskRepository
	health HealthFunc
	stats  StatsFunc
	log    *slog.Logger
}

// Options configures the HTTP server.
type Options struct {
	Users  *repository.UserRepository
	Tasks  *repository.TaskRepository
	Health HealthFunc
	Stats  StatsFunc
	Logger *slog.Logger
	Debug  bool
}

// NewServer builds the router with all routes registered.
func NewServer(opts Options) *Server {
	if !opts.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		router: gin.New(),
		users:  opts.Users,
		tasks:  opts.Tasks,
		health: opts.Health,
		stats:  opts.Stats,
		log:    log,
	}
	s.router.Use(gin.Recovery(), s.requestLog())
	s.routes()
	return s
}

// Handler returns the router as a standard http.Handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/healthz", s.handleHealth)

	api := s.router.Group("/api/v1")
	{
		api.GET("/users", s.handleListUsers)
		api.POST("/users", s.handleCreateUser)
		api.GET("/users/task-counts", s.handleTaskCounts)
		api.GET("/users/:id", s.handleGetUser)
		api.PATCH("/users/:id", s.handleUpdateUser)
		api.DELETE("/users/:id", s.handleDeleteUser)

		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.POST("/tasks/:id/complete", s.handleCompleteTask)
	}
}

func (s *Server) requestLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		s.log.DebugContext(c.Request.Context(), "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
		)
	}
}

// statusOf maps a domain error kind to an HTTP status code.
func statusOf(err error) int {
	switch shared.KindOf(err) {
	case shared.KindNotFound:
		return http.StatusNotFound
	case shared.KindValidation, shared.KindInvariantViolated:
		return http.StatusBadRequest
	case shared.KindConflict:
		return http.StatusConflict
	case shared.KindTimeout:
		return http.StatusGatewayTimeout
	case shared.KindDependencyFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(c.Request.Context(), "request failed",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
