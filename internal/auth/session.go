package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"smartattend/internal/model"
	"smartattend/internal/storage"
	"smartattend/internal/token"
)

// Default simulated latencies of the mock backend.
const (
	DefaultLoginDelay    = time.Second
	DefaultRegisterDelay = 1500 * time.Millisecond
)

// RegisterData is what a new account is created from.
type RegisterData struct {
	FirstName       string     `json:"firstName"`
	LastName        string     `json:"lastName"`
	Email           string     `json:"email"`
	Password        string     `json:"password"`
	Role            model.Role `json:"role"`
	Department      string     `json:"department"`
	AdmissionNumber string     `json:"admissionNumber,omitempty"`
	EmployeeID      string     `json:"employeeId,omitempty"`
}

// Authenticator is the capability views get to change who is signed in.
// Failures are reported only through the boolean result.
type Authenticator interface {
	Login(ctx context.Context, email, password string, role model.Role) bool
	Register(ctx context.Context, data RegisterData) bool
	Logout(ctx context.Context)
}

// Options tunes a Session. Zero values pick the defaults.
type Options struct {
	Directory     *Directory
	Clock         clockwork.Clock
	LoginDelay    time.Duration
	RegisterDelay time.Duration
	Logger        *slog.Logger
}

// Session is one client's authentication state, mirrored into its store
// under storage.CurrentUserKey.
type Session struct {
	store         storage.Store
	dir           *Directory
	clock         clockwork.Clock
	loginDelay    time.Duration
	registerDelay time.Duration
	log           *slog.Logger

	mu      sync.RWMutex
	user    *model.User
	pending int
}

var _ Authenticator = (*Session)(nil)

// NewSession creates a signed-out session backed by store. Call Restore to
// pick up a previously persisted user.
func NewSession(store storage.Store, opts Options) *Session {
	s := &Session{
		store:         store,
		dir:           opts.Directory,
		clock:         opts.Clock,
		loginDelay:    opts.LoginDelay,
		registerDelay: opts.RegisterDelay,
		log:           opts.Logger,
	}
	if s.dir == nil {
		s.dir = NewDirectory()
	}
	if s.clock == nil {
		s.clock = clockwork.NewRealClock()
	}
	if s.loginDelay < 0 {
		s.loginDelay = 0
	}
	if s.registerDelay < 0 {
		s.registerDelay = 0
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// User returns a copy of the signed-in user, or nil.
func (s *Session) User() *model.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Loading reports whether a login or registration is in flight.
func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pending > 0
}

// Restore loads the persisted user. A value that does not decode into a
// valid user is dropped and the session stays signed out.
func (s *Session) Restore(ctx context.Context) {
	raw, ok, err := s.store.Get(ctx, storage.CurrentUserKey)
	if err != nil {
		s.log.Error("restore session", "error", err)
		return
	}
	if !ok {
		return
	}
	var u model.User
	if err := decodeStored(raw, &u); err != nil {
		s.log.Warn("discarding malformed stored user", "error", err)
		if rmErr := s.store.Remove(ctx, storage.CurrentUserKey); rmErr != nil {
			s.log.Error("remove malformed stored user", "error", rmErr)
		}
		return
	}
	s.setUser(&u)
}

func decodeStored(raw string, u *model.User) error {
	if err := json.Unmarshal([]byte(raw), u); err != nil {
		return fmt.Errorf("decode stored user: %w", err)
	}
	return u.Validate()
}

// Login signs in the directory user matching email and role. Any
// non-empty password is accepted.
func (s *Session) Login(ctx context.Context, email, password string, role model.Role) bool {
	defer s.begin()()

	if err := s.wait(ctx, s.loginDelay); err != nil {
		s.log.Error("login error", "error", err)
		return false
	}
	if password == "" {
		return false
	}
	u, ok := s.dir.Find(email, role)
	if !ok {
		return false
	}
	if err := s.persist(ctx, u); err != nil {
		s.log.Error("login error", "email", email, "error", err)
		return false
	}
	s.setUser(&u)
	return true
}

// Register creates and signs in a new account. Emails are not checked for
// duplicates and the password is not kept.
func (s *Session) Register(ctx context.Context, data RegisterData) bool {
	defer s.begin()()

	if err := s.wait(ctx, s.registerDelay); err != nil {
		s.log.Error("registration error", "error", err)
		return false
	}
	u := model.User{
		ID:          token.Base36(9),
		Email:       data.Email,
		FirstName:   data.FirstName,
		LastName:    data.LastName,
		Role:        data.Role,
		Department:  data.Department,
		Institution: Institution,
		CreatedAt:   s.clock.Now().UTC().Format(time.RFC3339Nano),
	}
	switch data.Role {
	case model.RoleStudent:
		u.AdmissionNumber = data.AdmissionNumber
	case model.RoleTeacher:
		u.EmployeeID = data.EmployeeID
	}
	if err := s.persist(ctx, u); err != nil {
		s.log.Error("registration error", "email", data.Email, "error", err)
		return false
	}
	s.setUser(&u)
	return true
}

// Logout forgets the user in memory and in the store.
func (s *Session) Logout(ctx context.Context) {
	s.setUser(nil)
	if err := s.store.Remove(ctx, storage.CurrentUserKey); err != nil {
		s.log.Error("logout: remove stored user", "error", err)
	}
}

func (s *Session) begin() func() {
	s.mu.Lock()
	s.pending++
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.pending--
		s.mu.Unlock()
	}
}

func (s *Session) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-s.clock.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) persist(ctx context.Context, u model.User) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return s.store.Set(ctx, storage.CurrentUserKey, string(raw))
}

func (s *Session) setUser(u *model.User) {
	s.mu.Lock()
	s.user = u
	s.mu.Unlock()
}
