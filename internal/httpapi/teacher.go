package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"smartattend/internal/dashboard"
	"smartattend/internal/model"
	"smartattend/internal/qr"
)

func (s *Server) sessionsFor(w *workspace) []model.ClassSession {
	return dashboard.TeacherSessions(*w.session.User(), s.clock.Now())
}

func (s *Server) teacherDashboard(c *gin.Context) {
	w := workspaceOf(c)
	resp := gin.H{"dashboard": w.board.ForTeacher(*w.session.User(), s.clock.Now()), "generated": nil}
	if v := w.generatedValue(); v != "" {
		if img, err := qr.PNG(v, qr.DefaultSize); err == nil {
			resp["generated"] = gin.H{"value": v, "image": qr.DataURL(img)}
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) analytics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"analytics": dashboard.CourseAnalytics()})
}

func (s *Server) findSession(c *gin.Context) (model.ClassSession, bool) {
	sess, err := dashboard.FindSession(s.sessionsFor(workspaceOf(c)), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return model.ClassSession{}, false
	}
	return sess, true
}

func (s *Server) sessionReport(c *gin.Context) {
	sess, ok := s.findSession(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, dashboard.ReportFor(sess))
}

func (s *Server) startSession(c *gin.Context) {
	w := workspaceOf(c)
	if err := w.board.Start(s.sessionsFor(w), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeSession": w.board.Active()})
}

func (s *Server) endSession(c *gin.Context) {
	w := workspaceOf(c)
	if err := w.board.End(s.sessionsFor(w), c.Param("id")); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"activeSession": nil})
}

var errNoModal = errors.New("no open qr code")

type qrResponse struct {
	Session      model.ClassSession `json:"session"`
	Value        string             `json:"value"`
	Image        string             `json:"image"`
	Remaining    int                `json:"remaining"`
	HasExpiry    bool               `json:"hasExpiry"`
	DownloadName string             `json:"downloadName"`
}

func (s *Server) renderModal(c *gin.Context, status int, w *workspace, m qrModal) {
	img, err := qr.PNG(m.Value, qr.DefaultSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(status, qrResponse{
		Session:      m.Session,
		Value:        m.Value,
		Image:        qr.DataURL(img),
		Remaining:    w.countdown.Remaining(),
		HasExpiry:    !m.Expiry.IsZero(),
		DownloadName: qr.DownloadName(m.Session.ID),
	})
}

// openQR shows a session's code: the stored one if the session has it,
// otherwise a fresh session payload. A countdown runs while the session
// carries an expiry; opening another session replaces it.
func (s *Server) openQR(c *gin.Context) {
	sess, ok := s.findSession(c)
	if !ok {
		return
	}
	now := s.clock.Now()
	m := qrModal{Session: sess, Value: sess.QRCode}
	if m.Value == "" {
		m.Value = qr.SessionPayload(sess.ID, now)
	}
	if sess.QRExpiry != "" {
		expiry, err := time.Parse(time.RFC3339Nano, sess.QRExpiry)
		if err != nil {
			s.log.Warn("bad qr expiry", "session", sess.ID, "expiry", sess.QRExpiry, "err", err)
		} else {
			m.Expiry = expiry
		}
	}

	w := workspaceOf(c)
	w.openModal(m)
	s.deps.Metrics.QROpens.Inc()
	s.renderModal(c, http.StatusOK, w, m)
}

func (s *Server) qrState(c *gin.Context) {
	w := workspaceOf(c)
	m, ok := w.currentModal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoModal.Error()})
		return
	}
	s.renderModal(c, http.StatusOK, w, m)
}

func (s *Server) closeQR(c *gin.Context) {
	workspaceOf(c).closeModal()
	c.Status(http.StatusNoContent)
}

func (s *Server) qrImage(c *gin.Context) {
	m, ok := workspaceOf(c).currentModal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoModal.Error()})
		return
	}
	img, err := qr.PNG(m.Value, qr.DefaultSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+qr.DownloadName(m.Session.ID)+`"`)
	c.Data(http.StatusOK, "image/png", img)
}

func (s *Server) publishQR(c *gin.Context) {
	if s.deps.Publisher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "image storage not configured"})
		return
	}
	m, ok := workspaceOf(c).currentModal()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": errNoModal.Error()})
		return
	}
	img, err := qr.PNG(m.Value, qr.DefaultSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	publicID := strings.TrimSuffix(qr.DownloadName(m.Session.ID), ".png")
	res, err := s.deps.Publisher.UploadPNG(c.Request.Context(), img, publicID)
	if err != nil {
		s.log.Error("qr upload failed", "session", m.Session.ID, "err", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "image upload failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": res.SecureURL, "publicId": res.PublicID})
}

func (s *Server) generateQR(c *gin.Context) {
	v := qr.GeneratorPayload(s.clock.Now())
	img, err := qr.PNG(v, qr.DefaultSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	workspaceOf(c).setGenerated(v)
	c.JSON(http.StatusOK, gin.H{"value": v, "image": qr.DataURL(img)})
}

