package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/shizuku-reports/services/api/settings"
	"github.com/02loveslollipop/shizuku-reports/services/api/source"
)

// handleV1GetSettings returns the active settings
// GET /api/v1/settings
func (s *Server) handleV1GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"data": s.deps.Settings.Current(),
		"meta": gin.H{"path": s.deps.Settings.Path()},
	})
}

// handleV1UpdateSettings applies a partial update; omitted fields keep their
// current value
// PUT /api/v1/settings
func (s *Server) handleV1UpdateSettings(c *gin.Context) {
	next := s.deps.Settings.Current()
	if err := c.ShouldBindJSON(&next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	saved, err := s.deps.Settings.Update(ctx, next)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, settings.ErrInvalid) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": saved})
}

// handleV1SettingsHealth probes the configured upstream sources
// GET /api/v1/settings/health
func (s *Server) handleV1SettingsHealth(c *gin.Context) {
	probes := source.HealthCheck(c.Request.Context(), s.deps.HealthClient, s.deps.HealthURLs)

	healthy := true
	for _, p := range probes {
		if !p.OK {
			healthy = false
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"data": probes,
		"meta": gin.H{"healthy": healthy, "count": len(probes)},
	})
}
