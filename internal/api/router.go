// Package api exposes the calculator, the factor table and the analysis
// relay over HTTP. It owns request-level policy only; all computation rules
// live in the root package.
package api

import (
	"github.com/gin-gonic/gin"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/carbondriven/carbon-pilot/factors"
	"github.com/carbondriven/carbon-pilot/internal/agent"
)

// Server wires handlers to the core operations. The agent client may be nil
// when no orchestration server is configured; the analysis route then
// answers 503.
type Server struct {
	calculator *carbonpilot.Calculator
	table      *factors.Table
	agent      *agent.Client
}

func NewServer(calculator *carbonpilot.Calculator, table *factors.Table, agentClient *agent.Client) *Server {
	return &Server{
		calculator: calculator,
		table:      table,
		agent:      agentClient,
	}
}

func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(RequestLogger(), gin.Recovery())

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/footprint", s.handleFootprint)
		api.POST("/footprint/upload", s.handleFootprintUpload)
		api.GET("/materials", s.handleListMaterials)
		api.GET("/materials/:name", s.handleGetMaterial)
		api.POST("/analysis", s.handleAnalysis)
	}

	return router
}
