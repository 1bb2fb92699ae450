package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/model"
	"smartattend/internal/queue"
	"smartattend/internal/store"
)

func TestMarkDeduplicates(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.Date(2025, 9, 15, 11, 5, 0, 0, time.UTC))
	q := queue.NewInMemory(8)
	svc := NewService(NewMemoryRepository(), q, fc, time.Minute, nil)

	first, created, err := svc.Mark(ctx, "1", "2", model.MethodQR)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.StatusPresent, first.Status)
	assert.Equal(t, "2025-09-15T11:05:00Z", first.Timestamp)

	fc.Advance(30 * time.Second)
	again, created, err := svc.Mark(ctx, "1", "2", model.MethodQR)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)

	fc.Advance(time.Minute)
	later, created, err := svc.Mark(ctx, "1", "2", "")
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, later.ID)
	assert.Equal(t, model.MethodQR, later.Method)

	hist, err := svc.History(ctx, "1", 0)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, later.ID, hist[0].ID)

	ch, err := q.Consume(ctx)
	require.NoError(t, err)
	msg := <-ch
	assert.Equal(t, MarkedEvent, msg.Type)
	var published model.AttendanceRecord
	require.NoError(t, json.Unmarshal(msg.Body, &published))
	assert.Equal(t, first, published)
}

func TestMarkRejectsMissingIDs(t *testing.T) {
	svc := NewService(NewMemoryRepository(), nil, nil, 0, nil)
	_, _, err := svc.Mark(context.Background(), " ", "2", model.MethodQR)
	assert.ErrorIs(t, err, ErrInvalidMark)
	_, _, err = svc.Mark(context.Background(), "1", "", model.MethodQR)
	assert.ErrorIs(t, err, ErrInvalidMark)
}

type failingRepo struct{ MemoryRepository }

func (*failingRepo) InsertUnlessRecent(context.Context, Record, time.Time) (*Record, error) {
	return nil, errors.New("disk full")
}

func TestMarkRepoFailure(t *testing.T) {
	svc := NewService(&failingRepo{}, nil, nil, 0, nil)
	_, _, err := svc.Mark(context.Background(), "1", "2", model.MethodQR)
	assert.EqualError(t, err, "disk full")
}

func TestConcurrentMarksCreateOneRecord(t *testing.T) {
	ctx := context.Background()
	fc := clockwork.NewFakeClockAt(time.Date(2025, 9, 15, 11, 5, 0, 0, time.UTC))
	repo := NewMemoryRepository()
	svc := NewService(repo, nil, fc, time.Minute, nil)

	var created atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok, err := svc.Mark(ctx, "1", "2", model.MethodQR)
			if err == nil && ok {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
	recs, err := repo.ListByStudent(ctx, "1", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestSummarize(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 9, d, 10, 0, 0, 0, time.UTC) }
	recs := []Record{
		{When: time.Date(2025, 8, 29, 10, 0, 0, 0, time.UTC), Status: "absent"},
		{When: day(15), Status: "present"},
		{When: day(16), Status: "late"},
		{When: day(17), Status: "present"},
		{When: day(17), Status: "absent"},
	}
	stats := Summarize(recs)
	assert.Equal(t, 5, stats.TotalSessions)
	assert.Equal(t, 3, stats.AttendedSessions)
	assert.Equal(t, 60.0, stats.Percentage)
	assert.Equal(t, 3, stats.Streak)
	assert.Equal(t, []model.MonthlyPercentage{
		{Month: "Aug 2025", Percentage: 0},
		{Month: "Sep 2025", Percentage: 75},
	}, stats.MonthlyData)

	empty := Summarize(nil)
	assert.Zero(t, empty.Percentage)
	assert.Zero(t, empty.Streak)
	assert.NotNil(t, empty.MonthlyData)
}

func TestBindRewritesPlaceholders(t *testing.T) {
	lite := NewSQLRepository(nil, SQLite)
	assert.Equal(t, "a = ? AND b = ? LIMIT ?", lite.bind("a = $1 AND b = $2 LIMIT $10"))
	assert.Equal(t, "cost = '$x'", lite.bind("cost = '$x'"))

	pg := NewSQLRepository(nil, Postgres)
	assert.Equal(t, "a = $1", pg.bind("a = $1"))
}

func TestSQLiteRepository(t *testing.T) {
	ctx := context.Background()
	db, err := store.NewSQLite(ctx, filepath.Join(t.TempDir(), "att.db"))
	require.NoError(t, err)
	defer db.Close()

	repo := NewSQLRepository(db.Client, SQLite)
	require.NoError(t, repo.Migrate(ctx))
	require.NoError(t, repo.Migrate(ctx))

	fc := clockwork.NewFakeClockAt(time.Date(2025, 9, 17, 9, 0, 0, 0, time.UTC))
	svc := NewService(repo, nil, fc, time.Minute, nil)

	first, created, err := svc.Mark(ctx, "1", "1", model.MethodQR)
	require.NoError(t, err)
	require.True(t, created)

	fc.Advance(10 * time.Second)
	dup, created, err := svc.Mark(ctx, "1", "1", model.MethodQR)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, dup.ID)

	fc.Advance(24 * time.Hour)
	_, created, err = svc.Mark(ctx, "1", "2", model.MethodManual)
	require.NoError(t, err)
	require.True(t, created)

	hist, err := svc.History(ctx, "1", 1)
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, "2", hist[0].SessionID)
	assert.Equal(t, model.MethodManual, hist[0].Method)

	stats, err := svc.Stats(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 2, stats.Streak)
	assert.Equal(t, 100.0, stats.Percentage)

	var wg sync.WaitGroup
	var fresh atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok, err := svc.Mark(ctx, "3", "1", model.MethodQR); err == nil && ok {
				fresh.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fresh.Load())
	hist, err = svc.History(ctx, "3", 0)
	require.NoError(t, err)
	assert.Len(t, hist, 1)
}
