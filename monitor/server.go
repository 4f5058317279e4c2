package monitor

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Server serves the tracker's state as JSON
type Server struct {
	Addr    string
	tracker *Tracker
	server  *http.Server
	logger  logrus.FieldLogger
}

func NewServer(addr string, tracker *Tracker, logger logrus.FieldLogger) *Server {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Server{
		Addr:    addr,
		tracker: tracker,
		logger:  logger.WithField("component", "monitor"),
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.GET("/status", s.handleStatus)
	r.GET("/experiments/:name", s.handleExperiment)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
	s.server = &http.Server{
		Addr:    addr,
		Handler: r,
	}
	return s
}

// Handler returns the routes, for embedding or testing
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"experiments": s.tracker.Status()})
}

func (s *Server) handleExperiment(c *gin.Context) {
	name := c.Param("name")
	h, ok := s.tracker.History(name)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown experiment " + name})
		return
	}
	c.JSON(http.StatusOK, h)
}

// Run serves until ctx is cancelled
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.WithField("addr", s.Addr).Info("status server listening")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("status server stopped")
	return nil
}
