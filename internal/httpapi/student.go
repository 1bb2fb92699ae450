package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"smartattend/internal/dashboard"
	"smartattend/internal/model"
	"smartattend/internal/qr"
)

func (s *Server) studentDashboard(c *gin.Context) {
	w := workspaceOf(c)
	c.JSON(http.StatusOK, gin.H{
		"dashboard": dashboard.ForStudent(*w.session.User()),
		"scanner":   w.scanner.State(),
	})
}

func (s *Server) studentReport(c *gin.Context) {
	report := dashboard.Report()
	c.JSON(http.StatusOK, gin.H{
		"entries": report,
		"daily":   dashboard.DailyPercentages(report),
	})
}

func (s *Server) studentSchedule(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"weekdays":  dashboard.Weekdays,
		"timetable": dashboard.Timetable(),
	})
}

func (s *Server) studentStats(c *gin.Context) {
	if s.deps.Attendance == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "attendance not configured"})
		return
	}
	u := workspaceOf(c).session.User()
	stats, err := s.deps.Attendance.Stats(c.Request.Context(), u.ID)
	if err != nil {
		s.log.Error("attendance stats failed", "user", u.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	history, err := s.deps.Attendance.History(c.Request.Context(), u.ID, 20)
	if err != nil {
		s.log.Error("attendance history failed", "user", u.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "stats unavailable"})
		return
	}
	if history == nil {
		history = []model.AttendanceRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats, "history": history})
}

func (s *Server) scannerState(c *gin.Context) {
	c.JSON(http.StatusOK, workspaceOf(c).scanner.State())
}

// cameraRequest carries the permission outcome the device observed when it
// asked for the rear camera.
type cameraRequest struct {
	Granted bool `json:"granted"`
}

func (s *Server) startCamera(c *gin.Context, result string) {
	var req cameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w := workspaceOf(c)
	err := w.scanner.Retry(c.Request.Context(), qr.ReportedCamera{Granted: req.Granted})
	switch {
	case errors.Is(err, qr.ErrCameraUnavailable):
		s.deps.Metrics.Scans.WithLabelValues("camera_denied").Inc()
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	default:
		s.deps.Metrics.Scans.WithLabelValues(result).Inc()
	}
	c.JSON(http.StatusOK, gin.H{"scanner": w.scanner.State(), "constraints": qr.RearCamera})
}

func (s *Server) openScanner(c *gin.Context)  { s.startCamera(c, "opened") }
func (s *Server) retryScanner(c *gin.Context) { s.startCamera(c, "retried") }

func (s *Server) closeScanner(c *gin.Context) {
	workspaceOf(c).scanner.Close()
	c.Status(http.StatusNoContent)
}

// scan waits for the simulated scan, closes the camera and marks the
// student present. A payload sent by the device replaces the simulated one.
func (s *Server) scan(c *gin.Context) {
	var req struct {
		Payload string `json:"payload"`
	}
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	w := workspaceOf(c)
	payload, err := w.scanner.Scan(c.Request.Context())
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "scan cancelled"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if req.Payload != "" {
		payload = req.Payload
	}
	w.scanner.Close()
	s.deps.Metrics.Scans.WithLabelValues("scanned").Inc()

	resp := gin.H{"result": payload}
	if s.deps.Attendance != nil {
		sessionID, ok := qr.ParseSessionPayload(payload)
		if !ok {
			sessionID = payload
		}
		u := w.session.User()
		rec, created, err := s.deps.Attendance.Mark(c.Request.Context(), u.ID, sessionID, model.MethodQR)
		if err != nil {
			s.log.Error("mark attendance failed", "user", u.ID, "session", sessionID, "err", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "could not mark attendance", "result": payload})
			return
		}
		if created {
			s.deps.Metrics.Marks.WithLabelValues("new").Inc()
		} else {
			s.deps.Metrics.Marks.WithLabelValues("duplicate").Inc()
		}
		resp["record"] = rec
		resp["created"] = created
	}
	c.JSON(http.StatusOK, resp)
}
