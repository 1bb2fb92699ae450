package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"smartattend/internal/auth"
	"smartattend/internal/flow"
	"smartattend/internal/form"
	"smartattend/internal/metrics"
	"smartattend/internal/model"
)

func newClientID() string { return uuid.NewString() }

type viewResponse struct {
	View       flow.View        `json:"view"`
	Step       flow.Step        `json:"step"`
	Role       model.Role       `json:"role,omitempty"`
	User       *model.User      `json:"user"`
	Loading    bool             `json:"loading"`
	RoleConfig *form.RoleConfig `json:"roleConfig,omitempty"`
}

func viewOf(w *workspace) viewResponse {
	u := w.session.User()
	step, role := w.flow.State()
	resp := viewResponse{
		View:    w.flow.Resolve(u),
		Step:    step,
		Role:    role,
		User:    u,
		Loading: w.session.Loading(),
	}
	if role != "" {
		rc := form.ConfigFor(role)
		resp.RoleConfig = &rc
	}
	return resp
}

func (s *Server) view(c *gin.Context) {
	c.JSON(http.StatusOK, viewOf(workspaceOf(c)))
}

func (s *Server) transition(c *gin.Context, err error) {
	if errors.Is(err, flow.ErrInvalidTransition) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, viewOf(workspaceOf(c)))
}

func (s *Server) selectRole(c *gin.Context) {
	var req struct {
		Role string `json:"role" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	role, err := model.ParseRole(req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.transition(c, workspaceOf(c).flow.SelectRole(role))
}

func (s *Server) flowBack(c *gin.Context)     { s.transition(c, workspaceOf(c).flow.Back()) }
func (s *Server) flowRegister(c *gin.Context) { s.transition(c, workspaceOf(c).flow.SwitchToRegister()) }
func (s *Server) flowLogin(c *gin.Context)    { s.transition(c, workspaceOf(c).flow.SwitchToLogin()) }

// formRole is the role a login or register form submits for: the one in
// the body, else the one picked on the role screen.
func formRole(w *workspace, raw string) (model.Role, error) {
	if raw != "" {
		return model.ParseRole(raw)
	}
	if _, role := w.flow.State(); role != "" {
		return role, nil
	}
	return "", errors.New("select a role first")
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		form.Login
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w := workspaceOf(c)
	role, err := formRole(w, req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.ValidateLogin(req.Login); err != nil {
		abortForm(c, err)
		return
	}

	ok := w.session.Login(c.Request.Context(), req.Email, req.Password, role)
	s.deps.Metrics.Logins.WithLabelValues(string(role), metrics.Result(ok)).Inc()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": form.MsgInvalidCredentials})
		return
	}
	s.log.Info("signed in", "client", w.id, "role", role)
	c.JSON(http.StatusOK, viewOf(w))
}

func (s *Server) register(c *gin.Context) {
	var req struct {
		form.Register
		Role string `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	w := workspaceOf(c)
	role, err := formRole(w, req.Role)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.validator.ValidateRegister(role, req.Register); err != nil {
		abortForm(c, err)
		return
	}

	data := auth.RegisterData{
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Password:   req.Password,
		Role:       role,
		Department: req.Department,
	}
	switch role {
	case model.RoleStudent:
		data.AdmissionNumber = req.AdmissionNumber
	case model.RoleTeacher:
		data.EmployeeID = req.EmployeeID
	}
	ok := w.session.Register(c.Request.Context(), data)
	s.deps.Metrics.Registrations.WithLabelValues(string(role), metrics.Result(ok)).Inc()
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": form.MsgRegisterFailed})
		return
	}
	s.log.Info("registered", "client", w.id, "role", role)
	c.JSON(http.StatusCreated, viewOf(w))
}

func (s *Server) logout(c *gin.Context) {
	w := workspaceOf(c)
	w.session.Logout(c.Request.Context())
	w.release()
	w.flow.Reset()
	c.JSON(http.StatusOK, viewOf(w))
}

func (s *Server) me(c *gin.Context) {
	w := workspaceOf(c)
	u := w.session.User()
	if u == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not signed in", "loading": w.session.Loading()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

func (s *Server) notifications(c *gin.Context) {
	if s.deps.Notifications == nil {
		c.JSON(http.StatusOK, gin.H{"notifications": []model.Notification{}})
		return
	}
	u := workspaceOf(c).session.User()
	list, err := s.deps.Notifications.List(c.Request.Context(), u.ID)
	if err != nil {
		s.log.Error("list notifications failed", "user", u.ID, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "notifications unavailable"})
		return
	}
	if list == nil {
		list = []model.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": list})
}
