package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Record is a stored attendance mark.
type Record struct {
	ID        string
	SessionID string
	StudentID string
	When      time.Time
	Method    string
	Status    string
}

// Repository persists attendance records.
type Repository interface {
	// InsertUnlessRecent stores rec unless the same student already has a
	// record for the session at or after since. It returns that earlier
	// record, or nil when rec was stored. Check and insert are atomic.
	InsertUnlessRecent(ctx context.Context, rec Record, since time.Time) (*Record, error)
	ListByStudent(ctx context.Context, studentID string, limit int) ([]Record, error)
}

// MemoryRepository keeps records in process.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryRepository creates an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

// Recent returns the newest record for the student and session at or after
// since, or nil.
func (m *MemoryRepository) Recent(_ context.Context, studentID, sessionID string, since time.Time) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recentLocked(studentID, sessionID, since), nil
}

func (m *MemoryRepository) recentLocked(studentID, sessionID string, since time.Time) *Record {
	var best *Record
	for i := range m.records {
		r := m.records[i]
		if r.StudentID != studentID || r.SessionID != sessionID || r.When.Before(since) {
			continue
		}
		if best == nil || r.When.After(best.When) {
			best = &r
		}
	}
	return best
}

func (m *MemoryRepository) InsertUnlessRecent(_ context.Context, rec Record, since time.Time) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev := m.recentLocked(rec.StudentID, rec.SessionID, since); prev != nil {
		return prev, nil
	}
	for _, r := range m.records {
		if r.ID == rec.ID {
			return nil, fmt.Errorf("duplicate record %s", rec.ID)
		}
	}
	m.records = append(m.records, rec)
	return nil, nil
}

func (m *MemoryRepository) ListByStudent(_ context.Context, studentID string, limit int) ([]Record, error) {
	m.mu.RLock()
	var res []Record
	for _, r := range m.records {
		if r.StudentID == studentID {
			res = append(res, r)
		}
	}
	m.mu.RUnlock()
	sort.SliceStable(res, func(i, j int) bool { return res[i].When.After(res[j].When) })
	if limit > 0 && len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

// Dialect selects placeholder syntax and column types.
type Dialect int

const (
	Postgres Dialect = iota
	SQLite
)

// SQLRepository stores records in Postgres (pgx) or SQLite (go-sqlite3).
type SQLRepository struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLRepository creates a repo on an open database.
func NewSQLRepository(db *sql.DB, dialect Dialect) *SQLRepository {
	return &SQLRepository{db: db, dialect: dialect}
}

// Migrate creates the attendance table when missing.
func (r *SQLRepository) Migrate(ctx context.Context) error {
	ts := "TIMESTAMPTZ"
	if r.dialect == SQLite {
		ts = "TIMESTAMP"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS attendance_records (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			student_id TEXT NOT NULL,
			occurred_at ` + ts + ` NOT NULL,
			method TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS attendance_records_student_idx
			ON attendance_records (student_id, session_id, occurred_at)`,
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Recent returns the newest record for the student and session at or after
// since, or nil.
func (r *SQLRepository) Recent(ctx context.Context, studentID, sessionID string, since time.Time) (*Record, error) {
	return r.recent(ctx, r.db, studentID, sessionID, since)
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (r *SQLRepository) recent(ctx context.Context, q querier, studentID, sessionID string, since time.Time) (*Record, error) {
	row := q.QueryRowContext(ctx, r.bind(`
		SELECT id, session_id, student_id, occurred_at, method, status
		FROM attendance_records
		WHERE student_id = $1 AND session_id = $2 AND occurred_at >= $3
		ORDER BY occurred_at DESC
		LIMIT 1
	`), studentID, sessionID, since.UTC())
	var rec Record
	if err := row.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.When, &rec.Method, &rec.Status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// InsertUnlessRecent runs the duplicate check inside the INSERT. On Postgres
// the transaction also holds an advisory lock on the student/session pair.
func (r *SQLRepository) InsertUnlessRecent(ctx context.Context, rec Record, since time.Time) (*Record, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	if r.dialect == Postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, rec.StudentID+"/"+rec.SessionID); err != nil {
			return nil, fmt.Errorf("lock mark: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx, r.bind(`
		INSERT INTO attendance_records (id, session_id, student_id, occurred_at, method, status)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE NOT EXISTS (
			SELECT 1 FROM attendance_records
			WHERE student_id = $7 AND session_id = $8 AND occurred_at >= $9
		)
	`), rec.ID, rec.SessionID, rec.StudentID, rec.When.UTC(), rec.Method, rec.Status,
		rec.StudentID, rec.SessionID, since.UTC())
	if err != nil {
		return nil, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		prev, err := r.recent(ctx, tx, rec.StudentID, rec.SessionID, since)
		if err != nil {
			return nil, err
		}
		if prev == nil {
			return nil, fmt.Errorf("insert %s: skipped without an earlier record", rec.ID)
		}
		return prev, tx.Commit()
	}
	return nil, tx.Commit()
}

func (r *SQLRepository) ListByStudent(ctx context.Context, studentID string, limit int) ([]Record, error) {
	query := `SELECT id, session_id, student_id, occurred_at, method, status
		FROM attendance_records WHERE student_id = $1 ORDER BY occurred_at DESC`
	args := []any{studentID}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.bind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.StudentID, &rec.When, &rec.Method, &rec.Status); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

// bind rewrites $n placeholders to ? for SQLite.
func (r *SQLRepository) bind(query string) string {
	if r.dialect != SQLite {
		return query
	}
	var b strings.Builder
	b.Grow(len(query))
	for i := 0; i < len(query); i++ {
		if query[i] == '$' && i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
			b.WriteByte('?')
			for i+1 < len(query) && query[i+1] >= '0' && query[i+1] <= '9' {
				i++
			}
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
