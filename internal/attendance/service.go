// Package attendance records the attendance marks produced by QR scans and
// summarizes them per student.
package attendance

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"smartattend/internal/model"
	"smartattend/internal/queue"
)

// MarkedEvent is the queue message type published for every new record.
const MarkedEvent = "attendance.marked"

// DefaultDedupWindow is how long a repeated scan returns the earlier record.
const DefaultDedupWindow = 5 * time.Minute

var ErrInvalidMark = errors.New("student and session required")

// Service coordinates attendance marks and deduplication.
type Service struct {
	repo        Repository
	queue       queue.Queue
	clock       clockwork.Clock
	dedupWindow time.Duration
	log         *slog.Logger
}

// NewService creates a service. q may be nil when nothing consumes events.
func NewService(repo Repository, q queue.Queue, clock clockwork.Clock, dedupWindow time.Duration, logger *slog.Logger) *Service {
	if dedupWindow <= 0 {
		dedupWindow = DefaultDedupWindow
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, queue: q, clock: clock, dedupWindow: dedupWindow, log: logger}
}

// Mark records studentID as present for sessionID. A repeat within the
// dedup window returns the earlier record and false.
func (s *Service) Mark(ctx context.Context, studentID, sessionID string, method model.Method) (model.AttendanceRecord, bool, error) {
	studentID = strings.TrimSpace(studentID)
	sessionID = strings.TrimSpace(sessionID)
	if studentID == "" || sessionID == "" {
		return model.AttendanceRecord{}, false, ErrInvalidMark
	}
	if method == "" {
		method = model.MethodQR
	}
	now := s.clock.Now().UTC()

	rec := Record{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		StudentID: studentID,
		When:      now,
		Method:    string(method),
		Status:    string(model.StatusPresent),
	}
	prev, err := s.repo.InsertUnlessRecent(ctx, rec, now.Add(-s.dedupWindow))
	if err != nil {
		return model.AttendanceRecord{}, false, err
	}
	if prev != nil {
		return toModel(*prev), false, nil
	}
	out := toModel(rec)

	if s.queue != nil {
		msg, err := queue.NewMessage(MarkedEvent, out)
		if err == nil {
			err = s.queue.Publish(ctx, msg)
		}
		if err != nil {
			s.log.Warn("queue publish failed", "record", rec.ID, "err", err)
		}
	}
	return out, true, nil
}

// History returns the student's newest records first.
func (s *Service) History(ctx context.Context, studentID string, limit int) ([]model.AttendanceRecord, error) {
	recs, err := s.repo.ListByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.AttendanceRecord, len(recs))
	for i, r := range recs {
		out[i] = toModel(r)
	}
	return out, nil
}

// Stats summarizes every record of studentID.
func (s *Service) Stats(ctx context.Context, studentID string) (model.AttendanceStats, error) {
	recs, err := s.repo.ListByStudent(ctx, studentID, 0)
	if err != nil {
		return model.AttendanceStats{}, err
	}
	return Summarize(recs), nil
}

// Summarize computes totals, the percentage attended, the streak of
// consecutive days with attendance ending on the newest day, and one
// percentage per month in chronological order.
func Summarize(recs []Record) model.AttendanceStats {
	stats := model.AttendanceStats{TotalSessions: len(recs), MonthlyData: []model.MonthlyPercentage{}}
	if len(recs) == 0 {
		return stats
	}

	type tally struct{ attended, total int }
	months := map[string]*tally{}
	days := map[string]bool{}
	for _, r := range recs {
		attended := attendedStatus(r.Status)
		if attended {
			stats.AttendedSessions++
			days[r.When.UTC().Format(time.DateOnly)] = true
		}
		key := r.When.UTC().Format("2006-01")
		t, ok := months[key]
		if !ok {
			t = &tally{}
			months[key] = t
		}
		t.total++
		if attended {
			t.attended++
		}
	}
	stats.Percentage = percent(stats.AttendedSessions, stats.TotalSessions)

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m, _ := time.Parse("2006-01", k)
		stats.MonthlyData = append(stats.MonthlyData, model.MonthlyPercentage{
			Month:      m.Format("Jan 2006"),
			Percentage: percent(months[k].attended, months[k].total),
		})
	}

	var latest time.Time
	for d := range days {
		t, _ := time.Parse(time.DateOnly, d)
		if t.After(latest) {
			latest = t
		}
	}
	for d := latest; !latest.IsZero() && days[d.Format(time.DateOnly)]; d = d.AddDate(0, 0, -1) {
		stats.Streak++
	}
	return stats
}

func attendedStatus(status string) bool {
	return status == string(model.StatusPresent) || status == string(model.StatusLate)
}

func percent(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(n)/float64(total)*1000) / 10
}

func toModel(r Record) model.AttendanceRecord {
	return model.AttendanceRecord{
		ID:        r.ID,
		SessionID: r.SessionID,
		StudentID: r.StudentID,
		Timestamp: r.When.UTC().Format(time.RFC3339Nano),
		Method:    model.Method(r.Method),
		Status:    model.AttendanceStatus(r.Status),
	}
}
