package model

import (
	"errors"
	"fmt"
	"strings"
)

// Role discriminates the kind of user.
type Role string

const (
	RoleStudent Role = "student"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// ParseRole returns the role for s or an error for unknown values.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleStudent, RoleTeacher, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	_, err := ParseRole(string(r))
	return err == nil
}

// User is the authenticated account. Role-specific data lives in the
// Student or Teacher payload, never in a subtype.
type User struct {
	ID              string   `json:"id"`
	Email           string   `json:"email"`
	FirstName       string   `json:"firstName"`
	LastName        string   `json:"lastName"`
	Role            Role     `json:"role"`
	Avatar          string   `json:"avatar,omitempty"`
	AdmissionNumber string   `json:"admissionNumber,omitempty"`
	EmployeeID      string   `json:"employeeId,omitempty"`
	Department      string   `json:"department"`
	Institution     string   `json:"institution"`
	CreatedAt       string   `json:"createdAt"`
	Student         *Student `json:"student,omitempty"`
	Teacher         *Teacher `json:"teacher,omitempty"`
}

// Student holds the fields only students carry.
type Student struct {
	Batch                string   `json:"batch,omitempty"`
	Section              string   `json:"section,omitempty"`
	Interests            []string `json:"interests,omitempty"`
	Strengths            []string `json:"strengths,omitempty"`
	CareerGoals          []string `json:"careerGoals,omitempty"`
	AttendancePercentage float64  `json:"attendancePercentage"`
}

// Teacher holds the fields only teachers carry.
type Teacher struct {
	Subjects []string `json:"subjects,omitempty"`
	Classes  []string `json:"classes,omitempty"`
}

// FullName joins first and last name.
func (u User) FullName() string {
	return strings.TrimSpace(u.FirstName + " " + u.LastName)
}

// Validate checks that a user decoded from untrusted input has the shape
// the rest of the code relies on.
func (u User) Validate() error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user: missing id")
	}
	if strings.TrimSpace(u.Email) == "" {
		return errors.New("user: missing email")
	}
	if !u.Role.Valid() {
		return fmt.Errorf("user: invalid role %q", u.Role)
	}
	if u.Student != nil && u.Role != RoleStudent {
		return errors.New("user: student payload on non-student")
	}
	if u.Teacher != nil && u.Role != RoleTeacher {
		return errors.New("user: teacher payload on non-teacher")
	}
	return nil
}

// SessionStatus is the lifecycle state of a class session.
type SessionStatus string

const (
	SessionScheduled SessionStatus = "scheduled"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
	SessionCancelled SessionStatus = "cancelled"
)

// ClassSession is a scheduled teaching slot.
type ClassSession struct {
	ID          string        `json:"id"`
	CourseCode  string        `json:"courseCode"`
	CourseName  string        `json:"courseName"`
	TeacherID   string        `json:"teacherId"`
	TeacherName string        `json:"teacherName"`
	StartTime   string        `json:"startTime"`
	EndTime     string        `json:"endTime"`
	Room        string        `json:"room"`
	Status      SessionStatus `json:"status"`
	QRCode      string        `json:"qrCode,omitempty"`
	QRExpiry    string        `json:"qrExpiry,omitempty"`
	Attendees   []string      `json:"attendees,omitempty"`
}

// Method is how an attendance record was captured.
type Method string

const (
	MethodQR     Method = "qr"
	MethodManual Method = "manual"
)

// AttendanceStatus is the outcome recorded for a student.
type AttendanceStatus string

const (
	StatusPresent AttendanceStatus = "present"
	StatusAbsent  AttendanceStatus = "absent"
	StatusLate    AttendanceStatus = "late"
)

// AttendanceRecord is one student's attendance for one session.
type AttendanceRecord struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	StudentID string           `json:"studentId"`
	Timestamp string           `json:"timestamp"`
	Method    Method           `json:"method"`
	Status    AttendanceStatus `json:"status"`
}

// Task is an item on a student's daily routine.
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type"`
	Priority    string `json:"priority"`
	Completed   bool   `json:"completed"`
	DueDate     string `json:"dueDate,omitempty"`
	SuggestedBy string `json:"suggestedBy,omitempty"`
}

type DailyRoutine struct {
	ID        string         `json:"id"`
	StudentID string         `json:"studentId"`
	Date      string         `json:"date"`
	Tasks     []Task         `json:"tasks"`
	Classes   []ClassSession `json:"classes"`
}

type QRSession struct {
	ID         string `json:"id"`
	SessionID  string `json:"sessionId"`
	QRCode     string `json:"qrCode"`
	ExpiryTime string `json:"expiryTime"`
	IsActive   bool   `json:"isActive"`
}

// MonthlyPercentage is one point of the monthly attendance series.
type MonthlyPercentage struct {
	Month      string  `json:"month"`
	Percentage float64 `json:"percentage"`
}

type AttendanceStats struct {
	TotalSessions    int                 `json:"totalSessions"`
	AttendedSessions int                 `json:"attendedSessions"`
	Percentage       float64             `json:"percentage"`
	Streak           int                 `json:"streak"`
	MonthlyData      []MonthlyPercentage `json:"monthlyData"`
}

// NotificationType is the severity shown with a notification.
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifySuccess NotificationType = "success"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
)

type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"userId"`
	Title     string           `json:"title"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	Timestamp string           `json:"timestamp"`
}
