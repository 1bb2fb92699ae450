package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartattend/internal/auth"
	"smartattend/internal/model"
	"smartattend/internal/storage"
)

// gatedStore blocks the first Get until release is closed.
type gatedStore struct {
	storage.Store
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedStore) Get(ctx context.Context, key string) (string, bool, error) {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.Store.Get(ctx, key)
}

func newTestRegistry(store storage.Store, clock clockwork.Clock) *registry {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return newRegistry(store, auth.Options{Clock: clock, Logger: logger}, clock, 0)
}

func TestRegistryWaitsForRestore(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemory()
	u, ok := auth.NewDirectory().Find("student@kiit.edu", model.RoleStudent)
	require.True(t, ok)
	raw, err := json.Marshal(u)
	require.NoError(t, err)
	require.NoError(t, storage.Scoped(mem, "c1").Set(ctx, storage.CurrentUserKey, string(raw)))

	gate := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	reg := newTestRegistry(gate, clockwork.NewFakeClockAt(testStart))

	go func() {
		w, err := reg.get(ctx, "c1")
		if err == nil {
			reg.put(w)
		}
	}()
	<-gate.entered

	second := make(chan *workspace, 1)
	go func() {
		w, err := reg.get(ctx, "c1")
		if err == nil {
			second <- w
		}
	}()
	assert.Never(t, func() bool { return len(second) > 0 }, 50*time.Millisecond, 5*time.Millisecond,
		"a second request must not see the workspace mid-restore")

	close(gate.release)
	var w *workspace
	select {
	case w = <-second:
	case <-time.After(2 * time.Second):
		t.Fatal("second request never got the workspace")
	}
	defer reg.put(w)
	require.NotNil(t, w.session.User(), "restored user visible to the waiting request")

	w.session.Logout(ctx)
	assert.Nil(t, w.session.User())
	_, stored, err := storage.Scoped(mem, "c1").Get(ctx, storage.CurrentUserKey)
	require.NoError(t, err)
	assert.False(t, stored)
}

func TestRegistryGetHonoursCancel(t *testing.T) {
	mem := storage.NewMemory()
	gate := &gatedStore{Store: mem, entered: make(chan struct{}), release: make(chan struct{})}
	defer close(gate.release)
	reg := newTestRegistry(gate, clockwork.NewFakeClockAt(testStart))

	go func() { _, _ = reg.get(context.Background(), "c1") }()
	<-gate.entered

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w, err := reg.get(ctx, "c1")
	assert.Nil(t, w)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSweepKeepsBusyWorkspace(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	reg := newTestRegistry(storage.NewMemory(), clock)
	ctx := context.Background()

	busy, err := reg.get(ctx, "busy")
	require.NoError(t, err)
	idle, err := reg.get(ctx, "idle")
	require.NoError(t, err)
	reg.put(idle)

	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, reg.sweep(time.Hour), "only the released workspace goes")

	again, err := reg.get(ctx, "busy")
	require.NoError(t, err)
	assert.Same(t, busy, again)
	reg.put(again)
	reg.put(busy)

	assert.Zero(t, reg.sweep(time.Hour), "put refreshes last use")
	clock.Advance(2 * time.Hour)
	assert.Equal(t, 1, reg.sweep(time.Hour))
}

func TestConcurrentModalOpensStayConsistent(t *testing.T) {
	clock := clockwork.NewFakeClockAt(testStart)
	reg := newTestRegistry(storage.NewMemory(), clock)
	w, err := reg.get(context.Background(), "c1")
	require.NoError(t, err)
	defer reg.put(w)
	defer w.release()

	timed := qrModal{Session: model.ClassSession{ID: "2"}, Value: "QR123456", Expiry: testStart.Add(5 * time.Minute)}
	untimed := qrModal{Session: model.ClassSession{ID: "1"}, Value: "plain"}

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		m := timed
		if i%2 == 1 {
			m = untimed
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.openModal(m)
		}()
	}
	wg.Wait()

	m, ok := w.currentModal()
	require.True(t, ok)
	if m.Expiry.IsZero() {
		assert.False(t, w.countdown.Active())
		assert.Zero(t, w.countdown.Remaining())
	} else {
		assert.True(t, w.countdown.Active())
		assert.Equal(t, 300, w.countdown.Remaining())
	}
}
