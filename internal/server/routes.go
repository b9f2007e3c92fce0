package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Agents
	s.echo.POST("/api/agents", s.handleRegisterAgent)
	s.echo.GET("/api/agents/:id", s.handleGetAgent)

	// Posts and votes
	s.echo.POST("/api/posts", s.handleCreatePost)
	s.echo.GET("/api/posts/:id", s.handleGetPost)
	s.echo.POST("/api/posts/:id/upvote", s.handleUpvote)
	s.echo.POST("/api/posts/:id/downvote", s.handleDownvote)

	// Feed impressions
	s.echo.POST("/api/feed/views", s.handleRecordFeedView)
	s.echo.GET("/api/feed/views/recent", s.handleRecentFeedViews)

	// Experiment read and control surface
	s.echo.GET("/api/experiment/results", s.handleResults)
	s.echo.GET("/api/experiment/status", s.handleExperimentStatus)
	s.echo.GET("/api/experiment/treatments", s.handleListTreatments)
	s.echo.GET("/api/experiment/treatments/:post_id", s.handleGetTreatment)
	s.echo.POST("/api/experiment/worldfeed/start", s.handleWorldFeedStart)
	s.echo.POST("/api/experiment/worldfeed/stop", s.handleWorldFeedStop)
	s.echo.GET("/api/experiment/worldfeed/status", s.handleWorldFeedStatus)
}
