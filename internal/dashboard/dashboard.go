// Package dashboard holds the fixed demo data behind the student and teacher
// dashboards and the small aggregations computed from it.
package dashboard

import (
	"math"
	"time"

	"smartattend/internal/model"
)

// Weekdays are the timetable columns in display order.
var Weekdays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday"}

// ReportWeek maps each weekday to the date it covers in the demo report.
var ReportWeek = map[string]string{
	"Monday":    "2025-09-15",
	"Tuesday":   "2025-09-16",
	"Wednesday": "2025-09-17",
	"Thursday":  "2025-09-18",
	"Friday":    "2025-09-19",
}

// QRLifetime is how long the demo active session's code stays valid.
const QRLifetime = 5 * time.Minute

// Percentage is present/total as a whole percent; zero when total is zero.
func Percentage(present, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(present) / float64(total) * 100))
}

// Course is one cell of the timetable.
type Course struct {
	Subject string `json:"subject"`
	Code    string `json:"code"`
	Room    string `json:"room"`
}

// Slot is a timetable row: a time range and the course for each weekday.
type Slot struct {
	Time string            `json:"time"`
	Days map[string]Course `json:"days"`
}

// ReportEntry is one class in the student's attendance report.
type ReportEntry struct {
	Subject string `json:"subject"`
	Code    string `json:"code"`
	Date    string `json:"date"`
	Status  string `json:"status"`
}

// DayPercentage is one point of the weekly attendance graph.
type DayPercentage struct {
	Day        string `json:"day"`
	Date       string `json:"date"`
	Percentage int    `json:"percentage"`
}

// StudentStats are the quick stats shown above the schedule.
type StudentStats struct {
	AttendanceRate float64 `json:"attendanceRate"`
	ClassesToday   int     `json:"classesToday"`
	StreakDays     int     `json:"streakDays"`
}

// Student is everything the student dashboard renders.
type Student struct {
	User          model.User           `json:"user"`
	Stats         StudentStats         `json:"stats"`
	TodaysClasses []model.ClassSession `json:"todaysClasses"`
}

var (
	dataStructures = Course{Subject: "Data Structures", Code: "CS301", Room: "101"}
	databases      = Course{Subject: "Database Systems", Code: "CS302", Room: "205"}
	networks       = Course{Subject: "Computer Networks", Code: "CS303", Room: "301"}
	osCourse       = Course{Subject: "Operating Systems", Code: "CS304", Room: "102"}
	algorithms     = Course{Subject: "Algorithms", Code: "CS305", Room: "103"}
	softwareEngg   = Course{Subject: "Software Engg.", Code: "CS306", Room: "104"}
)

func alternating(odd, even Course) map[string]Course {
	return map[string]Course{
		"Monday":    odd,
		"Tuesday":   even,
		"Wednesday": odd,
		"Thursday":  even,
		"Friday":    odd,
	}
}

// Timetable returns the weekly schedule.
func Timetable() []Slot {
	return []Slot{
		{Time: "09:00 - 10:00", Days: alternating(dataStructures, osCourse)},
		{Time: "10:15 - 11:15", Days: alternating(databases, algorithms)},
		{Time: "11:30 - 12:30", Days: alternating(networks, softwareEngg)},
	}
}

// Report returns the student's attendance for the demo week.
func Report() []ReportEntry {
	row := func(c Course, date, status string) ReportEntry {
		return ReportEntry{Subject: c.Subject, Code: c.Code, Date: date, Status: status}
	}
	return []ReportEntry{
		row(dataStructures, "2025-09-15", "Present"),
		row(databases, "2025-09-15", "Present"),
		row(networks, "2025-09-15", "Absent"),
		row(osCourse, "2025-09-16", "Present"),
		row(algorithms, "2025-09-16", "Present"),
		row(softwareEngg, "2025-09-16", "Present"),
		row(dataStructures, "2025-09-17", "Present"),
		row(databases, "2025-09-17", "Absent"),
		row(networks, "2025-09-17", "Present"),
		row(osCourse, "2025-09-18", "Present"),
		row(algorithms, "2025-09-18", "Present"),
		row(softwareEngg, "2025-09-18", "Absent"),
		row(dataStructures, "2025-09-19", "Present"),
		row(databases, "2025-09-19", "Present"),
		row(networks, "2025-09-19", "Present"),
	}
}

// DailyPercentages computes the share of Present entries per weekday of
// ReportWeek. Days without entries are 0.
func DailyPercentages(report []ReportEntry) []DayPercentage {
	out := make([]DayPercentage, 0, len(Weekdays))
	for _, day := range Weekdays {
		date := ReportWeek[day]
		var present, total int
		for _, r := range report {
			if r.Date != date {
				continue
			}
			total++
			if r.Status == "Present" {
				present++
			}
		}
		out = append(out, DayPercentage{Day: day, Date: date, Percentage: Percentage(present, total)})
	}
	return out
}

func class(id, code, course, teacherID, teacher, start, end, room string, status model.SessionStatus) model.ClassSession {
	return model.ClassSession{
		ID:          id,
		CourseCode:  code,
		CourseName:  course,
		TeacherID:   teacherID,
		TeacherName: teacher,
		StartTime:   start,
		EndTime:     end,
		Room:        room,
		Status:      status,
	}
}

// StudentClasses returns today's classes as a student sees them.
func StudentClasses() []model.ClassSession {
	return []model.ClassSession{
		class("1", "CS301", "Data Structures", "1", "Dr. Santwana Sagnika", "09:00", "10:30", "Room 101", model.SessionCompleted),
		class("2", "CS302", "Database Systems", "2", "Dr. HK Tripathy", "11:00", "12:30", "Room 205", model.SessionActive),
		class("3", "CS303", "Computer Networks", "3", "Dr. Ajit Pasayat", "14:00", "15:30", "Room 301", model.SessionScheduled),
	}
}

// ForStudent builds the student dashboard for u.
func ForStudent(u model.User) Student {
	classes := StudentClasses()
	rate := 92.0
	if u.Student != nil && u.Student.AttendancePercentage > 0 {
		rate = u.Student.AttendancePercentage
	}
	return Student{
		User:          u,
		Stats:         StudentStats{AttendanceRate: rate, ClassesToday: len(classes), StreakDays: 15},
		TodaysClasses: classes,
	}
}
