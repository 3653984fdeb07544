// Package api serves the loopback JSON API over the taskflow datastore.
package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/maloquacious/taskflow/internal/logger"
	"github.com/maloquacious/taskflow/internal/store"
)

// Store is the part of the datastore the API needs.
type Store interface {
	store.ProjectStore
	store.TaskStore
	CheckState(ctx context.Context) (store.StoreState, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// BuildInfo is reported by /admin/status.
type BuildInfo struct {
	Version      string
	BuildDate    string
	InstanceID   string
	LatestSchema int
}

// Server holds the handlers and their dependencies.
type Server struct {
	store Store
	info  BuildInfo
	log   logger.Logger
}

// NewServer returns a Server backed by s.
func NewServer(s Store, info BuildInfo, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard
	}
	return &Server{store: s, info: info, log: log}
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.log))

	r.GET("/live", s.live)
	r.GET("/ready", s.ready)

	admin := r.Group("/admin", jsonOnly())
	admin.GET("/status", s.status)

	v := r.Group("/api", jsonOnly())
	{
		v.GET("/projects", s.listProjects)
		v.POST("/projects", s.createProject)
		v.GET("/projects/:id", s.getProject)
		v.PUT("/projects/:id", s.updateProject)
		v.DELETE("/projects/:id", s.deleteProject)
		v.GET("/projects/:id/tasks", s.listProjectTasks)
		v.POST("/projects/:id/tasks", s.createProjectTask)

		v.GET("/tasks/:id", s.getTask)
		v.PUT("/tasks/:id", s.updateTask)
		v.DELETE("/tasks/:id", s.deleteTask)
		v.PUT("/tasks/:id/position", s.moveTask)
	}

	r.NoRoute(func(c *gin.Context) {
		writeJSONError(c, http.StatusNotFound, "not_found", "no such route")
	})
	return r
}

func (s *Server) live(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}

// ready reports 200 only once every migration in the registry is applied.
func (s *Server) ready(c *gin.Context) {
	state, err := s.store.CheckState(c.Request.Context())
	if err != nil {
		s.log.Warn("readiness check failed", "error", err)
		c.String(http.StatusServiceUnavailable, "NOT READY")
		return
	}
	if state != store.StateReady {
		c.String(http.StatusServiceUnavailable, "NOT READY: "+state.String())
		return
	}
	c.String(http.StatusOK, "READY")
}

func (s *Server) status(c *gin.Context) {
	version, err := s.store.SchemaVersion(c.Request.Context())
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":             s.info.Version,
		"schemaVersion":       version,
		"latestSchemaVersion": s.info.LatestSchema,
		"buildDate":           s.info.BuildDate,
		"instanceId":          s.info.InstanceID,
		"time":                time.Now().UTC().Format(time.RFC3339),
		"mode":                "running",
	})
}

// jsonOnly enforces the JSON-only contract: Accept, when sent, must include
// application/json and request bodies must be application/json.
func jsonOnly() gin.HandlerFunc {
	return func(c *gin.Context) {
		accept := c.GetHeader("Accept")
		if accept != "" && !strings.Contains(accept, "application/json") && !strings.Contains(accept, "*/*") {
			writeJSONError(c, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		method := c.Request.Method
		if method != http.MethodGet && method != http.MethodDelete && !strings.HasPrefix(c.ContentType(), "application/json") {
			writeJSONError(c, http.StatusUnsupportedMediaType, "unsupported_media_type", "Content-Type must be application/json")
			return
		}
		c.Next()
	}
}

func requestLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Next()
		log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"elapsed", time.Since(started),
		)
	}
}
