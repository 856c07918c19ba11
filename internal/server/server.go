// Package server exposes the cell dashboard over HTTP: one JSON endpoint
// group per dashboard section, plus CSV/zip downloads and metrics.
package server

import (
	"net/http"
	"time"

	"cellule-dashboard/cellule"
	"cellule-dashboard/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server wires the gin router to a CellManager.
type Server struct {
	mgr    *cellule.CellManager
	log    *logrus.Logger
	router *gin.Engine
}

// New creates a Server and registers all routes.
func New(mgr *cellule.CellManager, log *logrus.Logger) *Server {
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))

	s := &Server{mgr: mgr, log: log, router: router}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() {
	s.router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	s.router.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := s.router.Group("/api")
	{
		api.GET("/overview", s.getOverview)

		api.GET("/members", s.getMembers)
		api.POST("/members", s.createMember)

		api.GET("/attendance", s.getAttendance)
		api.POST("/attendance", s.createAttendance)
		api.GET("/attendance/daily", s.getDailyRates)

		api.GET("/prayers", s.getPrayers)
		api.POST("/prayers", s.createPrayer)
		api.PUT("/prayers/:prayer_id/status", s.updatePrayerStatus)

		api.GET("/export", s.exportArchive)
		api.GET("/export/:table", s.exportTable)
		api.POST("/reset", s.reset)
	}
}

func requestLogger(log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start),
		}).Debug("request")
	}
}

// respondError maps rejected input to 400 and everything else to 500.
func (s *Server) respondError(c *gin.Context, err error) {
	if cellule.IsValidation(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.log.WithError(err).WithField("path", c.FullPath()).Error("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "details": err.Error()})
}
