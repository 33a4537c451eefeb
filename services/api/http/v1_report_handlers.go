package http

import (
	"bytes"
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/02loveslollipop/shizuku-reports/services/api/engine"
	"github.com/02loveslollipop/shizuku-reports/services/api/report"
)

// document builds the report for the ?period selection from the committed
// snapshot. It writes the error response itself and reports false on failure.
func (s *Server) document(c *gin.Context) (*report.Document, bool) {
	snap := s.deps.Poller.Snapshot()
	period, err := s.deps.Generator.Resolver().Select(c.Query("period"), snap.Readings, s.deps.Now())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, false
	}
	return s.deps.Generator.Generate(snap.ReportData(), period, s.deps.Settings.Current()), true
}

// handleV1Report returns the report screen state, or a rendering of it
// GET /api/v1/report?period=2024-03&format=json|yaml|text|html
func (s *Server) handleV1Report(c *gin.Context) {
	doc, ok := s.document(c)
	if !ok {
		return
	}

	format := c.DefaultQuery("format", "json")
	if format == "json" {
		snap := s.deps.Poller.Snapshot()
		c.JSON(http.StatusOK, gin.H{
			"data": doc,
			"meta": gin.H{
				"fetched_at":   snap.FetchedAt,
				"last_attempt": snap.LastAttempt,
				"failed":       snap.Failed,
				"last_error":   snap.LastError,
				"stale":        snap.Stale,
			},
		})
		return
	}

	f, err := report.NewFormatter(format)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := f.Format(c.Request.Context(), doc, &buf); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Data(http.StatusOK, f.ContentType(), buf.Bytes())
}

// handleV1Refresh runs a fetch cycle now and restarts the countdown
// POST /api/v1/report/refresh
func (s *Server) handleV1Refresh(c *gin.Context) {
	timeout := s.cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout+5*time.Second)
	defer cancel()

	err := s.deps.Poller.Refresh(ctx)
	snap := s.deps.Poller.Snapshot()
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "data": snap})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": snap})
}

// handleV1Export renders the selected report and hands it to an exporter
// POST /api/v1/report/export?period=2024-03&target=file|webhook|archive
func (s *Server) handleV1Export(c *gin.Context) {
	exporter, err := s.deps.Exporters.Get(c.DefaultQuery("target", "file"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	doc, ok := s.document(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	res, err := exporter.Export(ctx, doc)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "data": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"data": res,
		"meta": gin.H{"document_id": doc.ID, "period": doc.Period.Key, "status": doc.Status},
	})
}

type periodRow struct {
	Key       string            `json:"key"`
	Label     string            `json:"label"`
	Kind      engine.PeriodKind `json:"kind"`
	Start     time.Time         `json:"start"`
	End       time.Time         `json:"end"`
	Available bool              `json:"available"`
}

// handleV1Months lists selectable months, most recent first
// GET /api/v1/periods/months
func (s *Server) handleV1Months(c *gin.Context) {
	snap := s.deps.Poller.Snapshot()
	resolver := s.deps.Generator.Resolver()
	now := s.deps.Now()

	earliest := ""
	if t, ok := engine.EarliestReading(snap.Readings); ok {
		earliest = t.Format(time.RFC3339)
	}

	available := make(map[string]bool)
	for _, p := range resolver.AvailableMonths(snap.Readings, now) {
		available[p.Key()] = true
	}

	months := resolver.ListMonths(earliest, now)
	rows := make([]periodRow, 0, len(months))
	for _, p := range months {
		rows = append(rows, toPeriodRow(p, available[p.Key()]))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rows,
		"meta": gin.H{"count": len(rows), "available": len(available)},
	})
}

// handleV1Weeks lists the weeks of a month
// GET /api/v1/periods/:year/:month/weeks (month is 1-12)
func (s *Server) handleV1Weeks(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil || year < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	month, err := strconv.Atoi(c.Param("month"))
	if err != nil || month < 1 || month > 12 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid month, expected 1-12"})
		return
	}

	snap := s.deps.Poller.Snapshot()
	weeks := s.deps.Generator.Resolver().ListWeeks(year, month-1)
	rows := make([]periodRow, 0, len(weeks))
	for _, w := range weeks {
		has := false
		for _, rd := range snap.Readings {
			if w.Contains(rd.Timestamp) {
				has = true
				break
			}
		}
		rows = append(rows, toPeriodRow(w, has))
	}

	c.JSON(http.StatusOK, gin.H{
		"data": rows,
		"meta": gin.H{"count": len(rows)},
	})
}

func toPeriodRow(p engine.Period, available bool) periodRow {
	return periodRow{
		Key:       p.Key(),
		Label:     p.Label(),
		Kind:      p.Kind,
		Start:     p.Start,
		End:       p.End,
		Available: available,
	}
}

// handleV1Status reports fetch-cycle state
// GET /api/v1/status
func (s *Server) handleV1Status(c *gin.Context) {
	snap := s.deps.Poller.Snapshot()
	resp := gin.H{
		"data": snap,
		"meta": gin.H{
			"kind":      s.deps.Poller.Kind(),
			"entities":  len(snap.Entities),
			"readings":  len(snap.Readings),
			"baselines": s.deps.Poller.Tracker().Len(),
			"source":    s.cfg.SourceMode(),
			"mirror":    s.cfg.Mirror(),
		},
	}
	if s.deps.Cache != nil {
		if stats, err := s.deps.Cache.GetStats(); err == nil {
			resp["cache"] = stats
		}
	}
	c.JSON(http.StatusOK, resp)
}

// handleV1CacheReset clears delta baselines and cached snapshots
// POST /api/v1/cache/reset
func (s *Server) handleV1CacheReset(c *gin.Context) {
	cleared := s.deps.Poller.Tracker().Len()
	s.deps.Poller.Tracker().Reset()

	if s.deps.Cache != nil {
		if err := s.deps.Cache.Clear(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"data": gin.H{"baselines_cleared": cleared}})
}

// handleV1Archive returns archived reports with pagination
// GET /api/v1/archive?period=2024-03&page=1&limit=20
func (s *Server) handleV1Archive(c *gin.Context) {
	if s.deps.Archive == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "report archive is not configured"})
		return
	}

	page := 1
	if p := c.Query("page"); p != "" {
		if val, err := strconv.Atoi(p); err == nil && val > 0 {
			page = val
		}
	}

	limit := 20
	if l := c.Query("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= 100 {
			limit = val
		}
	}

	offset := (page - 1) * limit

	periodKey := c.Query("period")
	if periodKey != "" {
		p, err := s.deps.Generator.Resolver().ParsePeriod(periodKey)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		periodKey = p.Key()
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	result, err := s.deps.Archive.ListArchived(ctx, periodKey, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": result.Reports,
		"pagination": gin.H{
			"page":        page,
			"limit":       limit,
			"total_count": result.TotalCount,
			"total_pages": (result.TotalCount + limit - 1) / limit,
		},
	})
}
