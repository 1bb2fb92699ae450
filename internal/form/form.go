package form

import (
	"github.com/go-playground/validator/v10"

	"smartattend/internal/model"
)

// User-facing messages, shown inline next to the form.
const (
	MsgFillAllFields      = "Please fill in all fields"
	MsgFillRequired       = "Please fill in all required fields"
	MsgPasswordMismatch   = "Passwords do not match"
	MsgPasswordTooShort   = "Password must be at least 6 characters long"
	MsgAdmissionRequired  = "Please enter your admission number"
	MsgEmployeeIDRequired = "Please enter your employee ID"
	MsgInvalidCredentials = "Invalid credentials. Please try again."
	MsgRegisterFailed     = "Registration failed. Please try again."
)

// MinPasswordLen is the shortest password registration accepts.
const MinPasswordLen = 6

// Error is a validation failure that blocks submission.
type Error struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *Error) Error() string { return e.Message }

// Validator checks login and registration input.
type Validator struct {
	v *validator.Validate
}

// New creates a validator.
func New() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// Login is the sign-in form.
type Login struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// ValidateLogin requires both fields.
func (v *Validator) ValidateLogin(f Login) error {
	if err := v.v.Struct(f); err != nil {
		return &Error{Message: MsgFillAllFields}
	}
	return nil
}

// Register is the sign-up form for a given role.
type Register struct {
	FirstName       string `json:"firstName" validate:"required"`
	LastName        string `json:"lastName" validate:"required"`
	Email           string `json:"email" validate:"required"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword"`
	Department      string `json:"department" validate:"required"`
	AdmissionNumber string `json:"admissionNumber"`
	EmployeeID      string `json:"employeeId"`
}

// ValidateRegister applies the checks in the order the form reports them;
// only the first failure is returned.
func (v *Validator) ValidateRegister(role model.Role, f Register) error {
	if err := v.v.StructPartial(f, "FirstName", "LastName", "Email", "Password", "Department"); err != nil {
		field := ""
		if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
			field = errs[0].Field()
		}
		return &Error{Field: field, Message: MsgFillRequired}
	}
	if f.Password != f.ConfirmPassword {
		return &Error{Field: "ConfirmPassword", Message: MsgPasswordMismatch}
	}
	if err := v.v.Var(f.Password, "min=6"); err != nil {
		return &Error{Field: "Password", Message: MsgPasswordTooShort}
	}
	switch role {
	case model.RoleStudent:
		if err := v.v.Var(f.AdmissionNumber, "required"); err != nil {
			return &Error{Field: "AdmissionNumber", Message: MsgAdmissionRequired}
		}
	case model.RoleTeacher:
		if err := v.v.Var(f.EmployeeID, "required"); err != nil {
			return &Error{Field: "EmployeeID", Message: MsgEmployeeIDRequired}
		}
	}
	return nil
}

// Departments offered by the registration form.
var Departments = []string{
	"Computer Science",
	"Information Technology",
	"Electronics & Communication",
	"Mechanical Engineering",
	"Civil Engineering",
	"Business Administration",
	"Mathematics",
	"Physics",
	"Chemistry",
}

// ExtraField describes the role-specific registration input.
type ExtraField struct {
	Label       string `json:"label"`
	Placeholder string `json:"placeholder"`
}

// RoleConfig is the per-role copy used by the login and register views.
type RoleConfig struct {
	LoginTitle       string      `json:"loginTitle"`
	RegisterTitle    string      `json:"registerTitle"`
	EmailPlaceholder string      `json:"emailPlaceholder"`
	DemoEmail        string      `json:"demoEmail"`
	ExtraField       *ExtraField `json:"extraField,omitempty"`
}

// ConfigFor returns the view copy for role.
func ConfigFor(role model.Role) RoleConfig {
	switch role {
	case model.RoleStudent:
		return RoleConfig{
			LoginTitle:       "Student Login",
			RegisterTitle:    "Student Registration",
			EmailPlaceholder: "Enter your college email",
			DemoEmail:        "student@kiit.edu",
			ExtraField:       &ExtraField{Label: "Admission Number", Placeholder: "e.g., CS2024001"},
		}
	case model.RoleTeacher:
		return RoleConfig{
			LoginTitle:       "Teacher Login",
			RegisterTitle:    "Teacher Registration",
			EmailPlaceholder: "Enter your faculty email",
			DemoEmail:        "teacher@kiit.edu",
			ExtraField:       &ExtraField{Label: "Employee ID", Placeholder: "e.g., EMP001"},
		}
	default:
		return RoleConfig{
			LoginTitle:       "Admin Login",
			RegisterTitle:    "Admin Registration",
			EmailPlaceholder: "Enter your admin email",
			DemoEmail:        "admin@kiit.edu",
		}
	}
}
