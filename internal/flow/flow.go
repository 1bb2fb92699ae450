// Package flow is the top-level navigation state machine: unauthenticated
// clients step between role selection, login and registration, while a
// signed-in student or teacher always lands on their dashboard.
package flow

import (
	"errors"
	"sync"

	"smartattend/internal/model"
)

// Step is a screen of the signed-out flow.
type Step string

const (
	StepRoleSelect Step = "roleSelect"
	StepLogin      Step = "login"
	StepRegister   Step = "register"
)

// View is what a client should render.
type View string

const (
	ViewRoleSelect       View = "roleSelect"
	ViewLogin            View = "login"
	ViewRegister         View = "register"
	ViewStudentDashboard View = "studentDashboard"
	ViewTeacherDashboard View = "teacherDashboard"
)

// ErrInvalidTransition is returned for an event the current step ignores.
var ErrInvalidTransition = errors.New("invalid transition")

// Machine holds the selected role and the current signed-out step.
type Machine struct {
	mu   sync.Mutex
	step Step
	role model.Role
}

// New returns a machine at role selection.
func New() *Machine {
	return &Machine{step: StepRoleSelect}
}

// State returns the current step and selected role.
func (m *Machine) State() (Step, model.Role) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.step, m.role
}

// SelectRole records role and moves on to login.
func (m *Machine) SelectRole(role model.Role) error {
	if !role.Valid() {
		return ErrInvalidTransition
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.role = role
	m.step = StepLogin
	return nil
}

// SwitchToRegister moves from login to registration.
func (m *Machine) SwitchToRegister() error {
	return m.move(StepLogin, StepRegister)
}

// SwitchToLogin moves from registration back to login.
func (m *Machine) SwitchToLogin() error {
	return m.move(StepRegister, StepLogin)
}

// Back returns to the previous screen: login goes to role selection,
// registration goes to login.
func (m *Machine) Back() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.step {
	case StepLogin:
		m.step = StepRoleSelect
	case StepRegister:
		m.step = StepLogin
	default:
		return ErrInvalidTransition
	}
	return nil
}

// Reset restores the defaults, as after a logout.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.step = StepRoleSelect
	m.role = ""
	m.mu.Unlock()
}

// Resolve picks the view for user. Admins have no dashboard and stay in
// the signed-out flow. Login and registration need a selected role; without
// one the client is sent back to role selection.
func (m *Machine) Resolve(user *model.User) View {
	if user != nil {
		switch user.Role {
		case model.RoleStudent:
			return ViewStudentDashboard
		case model.RoleTeacher:
			return ViewTeacherDashboard
		}
	}
	step, role := m.State()
	switch {
	case step == StepLogin && role != "":
		return ViewLogin
	case step == StepRegister && role != "":
		return ViewRegister
	default:
		return ViewRoleSelect
	}
}

func (m *Machine) move(from, to Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.step != from {
		return ErrInvalidTransition
	}
	m.step = to
	return nil
}
