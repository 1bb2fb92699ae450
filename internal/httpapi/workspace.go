package httpapi

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"smartattend/internal/auth"
	"smartattend/internal/countdown"
	"smartattend/internal/dashboard"
	"smartattend/internal/flow"
	"smartattend/internal/model"
	"smartattend/internal/qr"
	"smartattend/internal/storage"
)

// qrModal is the teacher's open QR dialog.
type qrModal struct {
	Session model.ClassSession
	Value   string
	Expiry  time.Time
}

// workspace is everything one client (a browser tab or device) keeps
// between requests: who is signed in, where the view flow stands, and the
// dialogs that are open.
type workspace struct {
	id        string
	session   *auth.Session
	flow      *flow.Machine
	countdown *countdown.Controller
	scanner   *qr.Scanner
	board     dashboard.Board

	// ready is closed once the persisted session has been restored.
	ready chan struct{}

	// dialog serializes opening and closing the QR modal so the modal and
	// its countdown always describe the same session.
	dialog sync.Mutex

	mu        sync.Mutex
	modal     *qrModal
	generated string
	lastSeen  time.Time
	inFlight  int
}

func (w *workspace) acquire(now time.Time) {
	w.mu.Lock()
	w.inFlight++
	w.lastSeen = now
	w.mu.Unlock()
}

func (w *workspace) done(now time.Time) {
	w.mu.Lock()
	w.inFlight--
	w.lastSeen = now
	w.mu.Unlock()
}

// idle reports whether no request holds the workspace and it was last
// used before cutoff.
func (w *workspace) idle(cutoff time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight == 0 && w.lastSeen.Before(cutoff)
}

// openModal shows m and restarts the countdown towards its expiry.
func (w *workspace) openModal(m qrModal) {
	w.dialog.Lock()
	defer w.dialog.Unlock()
	w.countdown.Open(m.Expiry)
	w.mu.Lock()
	w.modal = &m
	w.mu.Unlock()
}

func (w *workspace) currentModal() (qrModal, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.modal == nil {
		return qrModal{}, false
	}
	return *w.modal, true
}

// closeModal drops the dialog and stops its countdown.
func (w *workspace) closeModal() {
	w.dialog.Lock()
	defer w.dialog.Unlock()
	w.mu.Lock()
	w.modal = nil
	w.mu.Unlock()
	w.countdown.Close()
}

func (w *workspace) setGenerated(v string) {
	w.mu.Lock()
	w.generated = v
	w.mu.Unlock()
}

func (w *workspace) generatedValue() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.generated
}

// release stops every timer and device the workspace holds.
func (w *workspace) release() {
	w.closeModal()
	w.scanner.Close()
}

// registry creates workspaces on first use and restores their session from
// the client's storage, so a client survives an API restart when storage is
// shared.
type registry struct {
	store      storage.Store
	authOpts   auth.Options
	clock      clockwork.Clock
	scanDelay  time.Duration
	mu         sync.Mutex
	workspaces map[string]*workspace
}

func newRegistry(store storage.Store, opts auth.Options, clock clockwork.Clock, scanDelay time.Duration) *registry {
	return &registry{
		store:      store,
		authOpts:   opts,
		clock:      clock,
		scanDelay:  scanDelay,
		workspaces: make(map[string]*workspace),
	}
}

// get returns the client's workspace, creating and restoring it on first
// use, and holds it until put is called. Concurrent first requests all wait
// for the one restore so none of them sees a half-loaded session.
func (r *registry) get(ctx context.Context, clientID string) (*workspace, error) {
	r.mu.Lock()
	w, ok := r.workspaces[clientID]
	if !ok {
		w = &workspace{
			id:        clientID,
			session:   auth.NewSession(storage.Scoped(r.store, clientID), r.authOpts),
			flow:      flow.New(),
			countdown: countdown.NewController(r.clock),
			scanner:   qr.NewScanner(nil, r.clock, r.scanDelay),
			ready:     make(chan struct{}),
		}
		r.workspaces[clientID] = w
	}
	w.acquire(r.clock.Now())
	r.mu.Unlock()

	if !ok {
		w.session.Restore(ctx)
		close(w.ready)
		return w, nil
	}
	select {
	case <-w.ready:
		return w, nil
	case <-ctx.Done():
		r.put(w)
		return nil, ctx.Err()
	}
}

// put hands back a workspace taken with get.
func (r *registry) put(w *workspace) {
	w.done(r.clock.Now())
}

// sweep releases workspaces idle for longer than maxIdle and returns how
// many were dropped. Workspaces held by a running request are kept. Their
// persisted user stays in storage.
func (r *registry) sweep(maxIdle time.Duration) int {
	cutoff := r.clock.Now().Add(-maxIdle)
	var stale []*workspace
	r.mu.Lock()
	for id, w := range r.workspaces {
		if w.idle(cutoff) {
			stale = append(stale, w)
			delete(r.workspaces, id)
		}
	}
	r.mu.Unlock()
	for _, w := range stale {
		w.release()
	}
	return len(stale)
}

func (r *registry) closeAll() {
	r.mu.Lock()
	all := r.workspaces
	r.workspaces = make(map[string]*workspace)
	r.mu.Unlock()
	for _, w := range all {
		w.release()
	}
}
