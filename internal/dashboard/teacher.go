package dashboard

import (
	"errors"
	"sync"
	"time"

	"smartattend/internal/model"
)

// TimeFormat is how timestamps are rendered in the dashboard payloads.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ErrUnknownSession is returned for a session id that is not on today's list.
var ErrUnknownSession = errors.New("unknown session")

// CourseCodes label the analytics series.
var CourseCodes = []string{"CS301", "CS302", "CS303", "CS304", "CS305", "CS306"}

// CourseAttendance is one course's attendance totals.
type CourseAttendance struct {
	Code       string `json:"code"`
	Percentage int    `json:"percentage"`
	Present    int    `json:"present"`
	Absent     int    `json:"absent"`
}

// Analytics is the data behind the teacher's charts.
type Analytics struct {
	Courses []CourseAttendance `json:"courses"`
	Present int                `json:"present"`
	Absent  int                `json:"absent"`
	// PresentShare is the rounded share of present marks across courses.
	PresentShare int `json:"presentShare"`
}

// Values returns the per-course percentages in CourseCodes order.
func (a Analytics) Values() []float64 {
	out := make([]float64, len(a.Courses))
	for i, c := range a.Courses {
		out[i] = float64(c.Percentage)
	}
	return out
}

// Labels returns the course codes in the same order as Values.
func (a Analytics) Labels() []string {
	out := make([]string, len(a.Courses))
	for i, c := range a.Courses {
		out[i] = c.Code
	}
	return out
}

// CourseAnalytics returns the demo analytics.
func CourseAnalytics() Analytics {
	percentages := []int{87, 92, 78, 85, 90, 80}
	present := []int{28, 30, 25, 27, 29, 24}
	absent := []int{2, 0, 5, 3, 1, 6}

	a := Analytics{Courses: make([]CourseAttendance, len(CourseCodes))}
	for i, code := range CourseCodes {
		a.Courses[i] = CourseAttendance{Code: code, Percentage: percentages[i], Present: present[i], Absent: absent[i]}
		a.Present += present[i]
		a.Absent += absent[i]
	}
	a.PresentShare = Percentage(a.Present, a.Present+a.Absent)
	return a
}

// StudentMark is one row of a session report.
type StudentMark struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// SessionReport is the attendance of one class session.
type SessionReport struct {
	Session  model.ClassSession `json:"session"`
	Students []StudentMark      `json:"students"`
	Present  int                `json:"present"`
	Absent   int                `json:"absent"`
}

// ReportStudents is the roster shown in every session report.
func ReportStudents() []StudentMark {
	return []StudentMark{
		{ID: "23052809", Name: "Kshitij Jaiswal", Status: "Present"},
		{ID: "23052810", Name: "Manika Pathak", Status: "Present"},
		{ID: "23052811", Name: "Mayank Singh", Status: "Absent"},
		{ID: "23052812", Name: "Medhansh Vibhu", Status: "Present"},
		{ID: "23052786", Name: "Anushkaa Dwary", Status: "Present"},
		{ID: "2305145", Name: "Paranjay Senapati", Status: "Absent"},
	}
}

// Activity is an entry of the teacher's recent activity feed.
type Activity struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// TeacherStats are the quick stats of the teacher dashboard.
type TeacherStats struct {
	ActiveSessions int `json:"activeSessions"`
	TotalStudents  int `json:"totalStudents"`
	AvgAttendance  int `json:"avgAttendance"`
}

// Teacher is everything the teacher dashboard renders.
type Teacher struct {
	User           model.User           `json:"user"`
	Stats          TeacherStats         `json:"stats"`
	Sessions       []model.ClassSession `json:"sessions"`
	ActiveSession  string               `json:"activeSession,omitempty"`
	RecentActivity []Activity           `json:"recentActivity"`
}

// TeacherSessions returns today's sessions taught by u. The active session
// carries a code that expires QRLifetime after now.
func TeacherSessions(u model.User, now time.Time) []model.ClassSession {
	id := u.ID
	if id == "" {
		id = "1"
	}
	name := u.FullName()
	completed := class("1", "CS301", "Data Structures", id, name, "09:00", "10:30", "Room 101", model.SessionCompleted)
	completed.Attendees = []string{"std1", "std2", "std3", "std4", "std5", "std6"}
	active := class("2", "CS302", "Database Systems", id, name, "11:00", "12:30", "Room 205", model.SessionActive)
	active.QRCode = "QR123456"
	active.QRExpiry = now.Add(QRLifetime).UTC().Format(TimeFormat)
	return []model.ClassSession{
		completed,
		active,
		class("3", "CS303", "Computer Networks", id, name, "14:00", "15:30", "Room 301", model.SessionScheduled),
	}
}

// FindSession looks id up in sessions.
func FindSession(sessions []model.ClassSession, id string) (model.ClassSession, error) {
	for _, s := range sessions {
		if s.ID == id {
			return s, nil
		}
	}
	return model.ClassSession{}, ErrUnknownSession
}

// ReportFor builds the attendance report of session.
func ReportFor(session model.ClassSession) SessionReport {
	students := ReportStudents()
	r := SessionReport{Session: session, Students: students}
	for _, s := range students {
		if s.Status == "Present" {
			r.Present++
		} else {
			r.Absent++
		}
	}
	return r
}

// Board tracks which of today's sessions a teacher has started.
type Board struct {
	mu     sync.Mutex
	active string
}

// Start marks id as the running session.
func (b *Board) Start(sessions []model.ClassSession, id string) error {
	if _, err := FindSession(sessions, id); err != nil {
		return err
	}
	b.mu.Lock()
	b.active = id
	b.mu.Unlock()
	return nil
}

// End clears the running session.
func (b *Board) End(sessions []model.ClassSession, id string) error {
	if _, err := FindSession(sessions, id); err != nil {
		return err
	}
	b.mu.Lock()
	b.active = ""
	b.mu.Unlock()
	return nil
}

// Active returns the running session id, if any.
func (b *Board) Active() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// ForTeacher builds the teacher dashboard for u at now.
func (b *Board) ForTeacher(u model.User, now time.Time) Teacher {
	sessions := TeacherSessions(u, now)
	active := 0
	for _, s := range sessions {
		if s.Status == model.SessionActive {
			active++
		}
	}
	return Teacher{
		User:          u,
		Stats:         TeacherStats{ActiveSessions: active, TotalStudents: 156, AvgAttendance: 87},
		Sessions:      sessions,
		ActiveSession: b.Active(),
		RecentActivity: []Activity{
			{Title: "CS301 session completed", Detail: "28/30 students attended"},
			{Title: "QR code generated", Detail: "CS302 - Active now"},
			{Title: "Upcoming: CS303", Detail: "In 2 hours"},
		},
	}
}
