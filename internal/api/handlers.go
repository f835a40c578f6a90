package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	carbonpilot "github.com/carbondriven/carbon-pilot"
	"github.com/carbondriven/carbon-pilot/internal/rows"
)

type footprintRequest struct {
	Products []map[string]any `json:"products"`
}

func (s *Server) handleFootprint(c *gin.Context) {
	records, ok := s.bindRecords(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, s.calculator.ComputeBatch(records))
}

func (s *Server) handleFootprintUpload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing csv file upload: " + err.Error()})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open csv upload: " + err.Error()})
		return
	}
	defer f.Close()

	records, err := rows.ReadCSV(f)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(records) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "csv upload contains no product rows"})
		return
	}

	c.JSON(http.StatusOK, s.calculator.ComputeBatch(records))
}

func (s *Server) handleListMaterials(c *gin.Context) {
	names := s.table.Materials()

	materials := make([]gin.H, 0, len(names))
	for _, name := range names {
		details, _ := s.table.Details(name)
		materials = append(materials, gin.H{
			"name":        name,
			"co2_per_kg":  details.CO2PerKg,
			"unit":        details.Unit,
			"description": details.Description,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"materials": materials,
		"count":     len(materials),
	})
}

func (s *Server) handleGetMaterial(c *gin.Context) {
	name := c.Param("name")

	details, found := s.table.Details(name)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error":       fmt.Sprintf("Material type %q not found in database", name),
			"suggestions": s.table.Suggest(name, 3),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"name":        name,
		"co2_per_kg":  details.CO2PerKg,
		"unit":        details.Unit,
		"description": details.Description,
	})
}

func (s *Server) handleAnalysis(c *gin.Context) {
	if s.agent == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis pipeline is not configured"})
		return
	}

	records, ok := s.bindRecords(c)
	if !ok {
		return
	}

	batch := s.calculator.ComputeBatch(records)
	if batch.Summary.SuccessfulCalculations == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "no product could be computed, nothing to analyze",
			"data":  batch,
		})
		return
	}

	analysis, err := s.agent.Analyze(c.Request.Context(), carbonpilot.Snapshot(batch))
	if err != nil {
		slog.Warn("analysis pipeline failed", "err", err.Error())
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "analysis pipeline unavailable",
			"data":  batch,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":     batch,
		"analysis": analysis,
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	agentStatus := "disabled"
	if s.agent != nil {
		agentStatus = "ready"

		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		if err := s.agent.Ping(ctx); err != nil {
			agentStatus = "unreachable"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"materials": s.table.Len(),
		"agent":     agentStatus,
	})
}

// bindRecords parses and decodes a footprint request body. Empty batches
// are rejected here: that is request policy, the calculator itself accepts
// them.
func (s *Server) bindRecords(c *gin.Context) ([]carbonpilot.ProductRecord, bool) {
	var req footprintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return nil, false
	}

	if len(req.Products) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no products provided"})
		return nil, false
	}

	records, err := rows.DecodeAll(req.Products)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}

	return records, true
}
