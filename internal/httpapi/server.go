// Package httpapi is the JSON/SVG/PNG HTTP surface. Each client holds a
// token naming its workspace; all view state of that client lives there.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"

	"smartattend/internal/attendance"
	"smartattend/internal/auth"
	"smartattend/internal/cloudinary"
	"smartattend/internal/form"
	"smartattend/internal/httpmiddleware"
	"smartattend/internal/metrics"
	"smartattend/internal/model"
	"smartattend/internal/notify"
	"smartattend/internal/storage"
)

// Publisher uploads QR images and returns where they can be fetched.
type Publisher interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// HealthCheck reports whether one dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Config holds the transport settings.
type Config struct {
	JWTIssuer     string
	JWTSigningKey string
	ClientTTL     time.Duration
	LoginDelay    time.Duration
	RegisterDelay time.Duration
	ScanDelay     time.Duration
}

// Deps are the collaborators a Server is built from. Attendance,
// Notifications, Publisher and Limiter are optional.
type Deps struct {
	Store         storage.Store
	Directory     *auth.Directory
	Attendance    *attendance.Service
	Notifications notify.Store
	Publisher     Publisher
	Limiter       *httpmiddleware.SimpleTokenBucket
	Metrics       *metrics.Metrics
	Clock         clockwork.Clock
	Logger        *slog.Logger
	Health        map[string]HealthCheck
}

// Server owns the client workspaces and serves the API.
type Server struct {
	cfg        Config
	deps       Deps
	clock      clockwork.Clock
	log        *slog.Logger
	validator  *form.Validator
	workspaces *registry
}

// New creates a server.
func New(cfg Config, deps Deps) *Server {
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = storage.NewMemory()
	}
	if deps.Directory == nil {
		deps.Directory = auth.NewDirectory()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if cfg.ClientTTL <= 0 {
		cfg.ClientTTL = 24 * time.Hour
	}
	opts := auth.Options{
		Directory:     deps.Directory,
		Clock:         deps.Clock,
		LoginDelay:    cfg.LoginDelay,
		RegisterDelay: cfg.RegisterDelay,
		Logger:        deps.Logger,
	}
	return &Server{
		cfg:        cfg,
		deps:       deps,
		clock:      deps.Clock,
		log:        deps.Logger,
		validator:  form.New(),
		workspaces: newRegistry(deps.Store, opts, deps.Clock, cfg.ScanDelay),
	}
}

// Routes mounts every endpoint on r.
func (s *Server) Routes(r gin.IRouter) {
	r.GET("/healthz", s.healthz)
	r.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/clients", s.limit(httpmiddleware.ByClientIP), s.createClient)
	v1.GET("/departments", s.departments)

	charts := v1.Group("/charts")
	charts.GET("/bar.svg", s.barChart)
	charts.GET("/line.svg", s.lineChart)
	charts.GET("/pie.svg", s.pieChart)
	charts.GET("/weekly.svg", s.weeklyChart)

	client := v1.Group("", auth.ClientAuth(s.cfg.JWTSigningKey, s.cfg.JWTIssuer, s.clock), s.limit(httpmiddleware.ByContextKey(auth.ClientIDKey)), s.loadWorkspace)
	client.GET("/view", s.view)
	client.POST("/flow/role", s.selectRole)
	client.POST("/flow/back", s.flowBack)
	client.POST("/flow/register", s.flowRegister)
	client.POST("/flow/login", s.flowLogin)

	client.POST("/auth/login", s.login)
	client.POST("/auth/register", s.register)
	client.POST("/auth/logout", s.logout)
	client.GET("/auth/me", s.me)
	client.GET("/notifications", s.requireUser, s.notifications)

	student := client.Group("/student", s.requireRole(model.RoleStudent))
	student.GET("/dashboard", s.studentDashboard)
	student.GET("/report", s.studentReport)
	student.GET("/schedule", s.studentSchedule)
	student.GET("/stats", s.studentStats)
	student.GET("/scanner", s.scannerState)
	student.POST("/scanner", s.openScanner)
	student.POST("/scanner/retry", s.retryScanner)
	student.POST("/scanner/scan", s.scan)
	student.DELETE("/scanner", s.closeScanner)

	teacher := client.Group("/teacher", s.requireRole(model.RoleTeacher))
	teacher.GET("/dashboard", s.teacherDashboard)
	teacher.GET("/analytics", s.analytics)
	teacher.GET("/sessions/:id/report", s.sessionReport)
	teacher.POST("/sessions/:id/start", s.startSession)
	teacher.POST("/sessions/:id/end", s.endSession)
	teacher.POST("/sessions/:id/qr", s.openQR)
	teacher.GET("/qr", s.qrState)
	teacher.DELETE("/qr", s.closeQR)
	teacher.GET("/qr/image.png", s.qrImage)
	teacher.GET("/qr/ws", s.qrSocket)
	teacher.POST("/qr/publish", s.publishQR)
	teacher.POST("/qr/generate", s.generateQR)
}

// Sweep releases client workspaces idle for longer than maxIdle.
func (s *Server) Sweep(maxIdle time.Duration) int {
	n := s.workspaces.sweep(maxIdle)
	if n > 0 {
		s.log.Info("released idle clients", "count", n)
	}
	return n
}

// Close stops every countdown and scanner.
func (s *Server) Close() {
	s.workspaces.closeAll()
}

// limit charges requests to key's bucket when a limiter is configured.
func (s *Server) limit(key httpmiddleware.KeyFunc) gin.HandlerFunc {
	if s.deps.Limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return s.deps.Limiter.GinMiddleware(key)
}

const workspaceKey = "workspace"

func (s *Server) loadWorkspace(c *gin.Context) {
	id := c.GetString(auth.ClientIDKey)
	w, err := s.workspaces.get(c.Request.Context(), id)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	defer s.workspaces.put(w)
	c.Set(workspaceKey, w)
	c.Next()
}

func workspaceOf(c *gin.Context) *workspace {
	return c.MustGet(workspaceKey).(*workspace)
}

func (s *Server) requireUser(c *gin.Context) {
	if workspaceOf(c).session.User() == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		return
	}
	c.Next()
}

func (s *Server) requireRole(role model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := workspaceOf(c).session.User()
		switch {
		case u == nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "not signed in"})
		case u.Role != role:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden for role " + string(u.Role)})
		default:
			c.Next()
		}
	}
}

func (s *Server) healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range s.deps.Health {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

func (s *Server) createClient(c *gin.Context) {
	tok, err := auth.IssueClientToken(newClientID(), s.cfg.JWTIssuer, s.cfg.JWTSigningKey, s.cfg.ClientTTL, s.clock.Now())
	if err != nil {
		s.log.Error("client token issue failed", "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
		return
	}
	s.deps.Metrics.Clients.Inc()
	c.JSON(http.StatusCreated, gin.H{
		"clientId":  tok.ClientID,
		"token":     tok.Token,
		"expiresAt": tok.ExpiresAt.Unix(),
	})
}

func (s *Server) departments(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"departments": form.Departments})
}

// abortForm answers a validation failure with the message the form shows.
func abortForm(c *gin.Context, err error) {
	var fe *form.Error
	if errors.As(err, &fe) {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{"error": fe.Message, "field": fe.Field})
		return
	}
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
