package server

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtxerr/meteolog/internal/constants"
	"github.com/xtxerr/meteolog/internal/errors"
	"github.com/xtxerr/meteolog/internal/export"
	"github.com/xtxerr/meteolog/internal/logging"
	"github.com/xtxerr/meteolog/internal/reading"
)

// =============================================================================
// Error Mapping - sentinel errors to HTTP statuses
// =============================================================================

// renderError writes a JSON error body with the status implied by the
// error's category.
func (s *Server) renderError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.IsValidation(err):
		status = http.StatusBadRequest
	case errors.Is(err, errors.ErrNoSuchReading):
		status = http.StatusNotFound
	case errors.IsUnavailable(err):
		status = http.StatusServiceUnavailable
	case errors.IsStorage(err):
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// windowParam reads the optional ?minutes= query parameter. A zero return
// means the caller did not constrain the window and the service default
// applies.
func windowParam(c *gin.Context) (time.Duration, error) {
	raw := c.Query("minutes")
	if raw == "" {
		return 0, nil
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return 0, errors.NewInvalidValue("minutes", raw, "must be a positive integer")
	}
	return time.Duration(minutes) * time.Minute, nil
}

// =============================================================================
// Service Endpoints
// =============================================================================

func (s *Server) handleRoot(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "meteolog",
		"endpoints": []string{
			"GET /status",
			"GET /metrics",
			"POST /readings",
			"GET /readings/recent",
			"GET /readings/latest",
			"GET /readings/export",
			"DELETE /readings",
			"GET /analytics/average",
			"GET /analytics/summary",
			"POST /simulate/sensor-data",
		},
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	h := s.svc.Health(c.Request.Context())
	status := http.StatusOK
	if h.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, h)
}

// =============================================================================
// Readings
// =============================================================================

type ingestRequest struct {
	Timestamp   *time.Time `json:"timestamp"`
	Temperature *float64   `json:"temperature" binding:"required"`
	SensorID    string     `json:"sensor_id" binding:"required"`
}

func (s *Server) handleIngest(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	r := reading.Reading{
		Temperature: *req.Temperature,
		SensorID:    req.SensorID,
	}
	if req.Timestamp != nil {
		r.Timestamp = *req.Timestamp
	}

	ctx := logging.ContextWithSource(c.Request.Context(), constants.OriginHTTP)
	stored, err := s.svc.Ingest(ctx, r)
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.metrics.IngestTotal.WithLabelValues(constants.OriginHTTP).Inc()
	c.JSON(http.StatusAccepted, stored)
}

func (s *Server) handleRecent(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.renderError(c, errors.NewInvalidValue("limit", raw, "must be an integer"))
			return
		}
		limit = n
	}

	rs, err := s.svc.Recent(c.Request.Context(), limit)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(rs), "readings": rs})
}

func (s *Server) handleLatest(c *gin.Context) {
	r, source, err := s.svc.Latest(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reading": r, "source": source})
}

func (s *Server) handleClear(c *gin.Context) {
	deleted, err := s.svc.ClearAll(c.Request.Context())
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

// =============================================================================
// Analytics
// =============================================================================

func (s *Server) handleAverage(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	res, err := s.svc.Average(c.Request.Context(), window)
	if err != nil {
		s.renderError(c, err)
		return
	}
	if res.Count == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"error":        "no readings in window",
			"window_start": res.WindowStart,
			"window_end":   res.WindowEnd,
		})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleSummary(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	sum, err := s.svc.Summary(c.Request.Context(), window)
	if err != nil {
		s.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

// =============================================================================
// Export
// =============================================================================

func (s *Server) handleExport(c *gin.Context) {
	window, err := windowParam(c)
	if err != nil {
		s.renderError(c, err)
		return
	}

	end := time.Now().UTC()
	start := time.Unix(0, 0).UTC()
	if window > 0 {
		start = end.Add(-window)
	}

	rs, err := s.svc.History(c.Request.Context(), start, end)
	if err != nil {
		s.renderError(c, err)
		return
	}

	opts := export.DefaultOptions()
	if raw := c.Query("compression"); raw != "" {
		opts.Compression = export.ParseCompression(raw)
	}

	filename := fmt.Sprintf("readings-%s.parquet", end.Format("20060102-150405"))
	c.Header("Content-Type", "application/octet-stream")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	c.Status(http.StatusOK)

	n, err := export.Write(c.Writer, rs, opts)
	if err != nil {
		// Headers are already on the wire, all we can do is log.
		log.Warn("export write failed", "error", err)
		return
	}
	log.Info("exported readings", "rows", n, "compression", c.Query("compression"))
}

// =============================================================================
// Simulator
// =============================================================================

type simulateRequest struct {
	Sensors           *int `json:"sensors"`
	ReadingsPerSensor *int `json:"readings_per_sensor"`
}

func (s *Server) handleSimulate(c *gin.Context) {
	var req simulateRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request body: %v", err)})
		return
	}

	sensors := constants.SimulateDefaultSensors
	if req.Sensors != nil {
		sensors = *req.Sensors
	}
	perSensor := constants.SimulateDefaultPerSensor
	if req.ReadingsPerSensor != nil {
		perSensor = *req.ReadingsPerSensor
	}

	generated, err := s.svc.Simulate(c.Request.Context(), sensors, perSensor)
	if err != nil {
		s.renderError(c, err)
		return
	}
	s.metrics.IngestTotal.WithLabelValues(constants.OriginSimulator).Add(float64(generated))
	c.JSON(http.StatusOK, gin.H{
		"generated":           generated,
		"sensors":             sensors,
		"readings_per_sensor": perSensor,
	})
}
