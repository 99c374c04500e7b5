package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/kisansetu/voicecore/pkg/core/types"
)

type memStore struct {
	mu       sync.Mutex
	alerts   []types.ScheduledAlert
	claimed  map[string]bool
	dueErr   error
	claimErr map[string]error
}

func (s *memStore) DueAlerts(_ context.Context, now time.Time, limit int) ([]types.ScheduledAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dueErr != nil {
		return nil, s.dueErr
	}
	var out []types.ScheduledAlert
	for _, a := range s.alerts {
		if !s.claimed[a.ID] && !a.DueAt.After(now) && len(out) < limit {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memStore) ClaimAlert(_ context.Context, id string, _ time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.claimErr[id]; err != nil {
		return false, err
	}
	if s.claimed == nil {
		s.claimed = map[string]bool{}
	}
	if s.claimed[id] {
		return false, nil
	}
	s.claimed[id] = true
	return true, nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	titles []string
	fail   map[string]bool
}

func (d *recordingDispatcher) Dispatch(_ context.Context, a *types.AlertDescriptor) (*types.DeliveryReport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.titles = append(d.titles, a.Title)
	if d.fail[a.Title] {
		return nil, errors.New("recipients lookup failed")
	}
	return &types.DeliveryReport{Sent: 1}, nil
}

type countingObserver struct {
	scans   int
	results map[string]int
}

func (o *countingObserver) ObserveScan(error) { o.scans++ }
func (o *countingObserver) ObserveScheduled(r string) {
	if o.results == nil {
		o.results = map[string]int{}
	}
	o.results[r]++
}

var t0 = time.Date(2026, 6, 1, 6, 0, 0, 0, time.UTC)

func scheduled(id, title string, due time.Time) types.ScheduledAlert {
	return types.ScheduledAlert{ID: id, DueAt: due, Alert: types.AlertDescriptor{Title: title, District: "Nashik"}}
}

func newScheduler(t *testing.T, store Store, d Dispatcher, obs Observer) *Scheduler {
	t.Helper()
	s, err := New(Config{Schedule: "@every 1m", Store: store, Dispatcher: d, Observer: obs})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	s.now = func() time.Time { return t0 }
	return s
}

func TestScan_DispatchesDueAlertsOnce(t *testing.T) {
	store := &memStore{alerts: []types.ScheduledAlert{
		scheduled("a1", "Hailstorm warning", t0.Add(-time.Hour)),
		scheduled("a2", "Onion price update", t0),
		scheduled("a3", "Scheme deadline", t0.Add(time.Hour)),
	}}
	d := &recordingDispatcher{}
	obs := &countingObserver{}
	s := newScheduler(t, store, d, obs)

	for range 2 {
		if err := s.Scan(t.Context()); err != nil {
			t.Fatalf("Scan() error = %v", err)
		}
	}

	if diff := cmp.Diff([]string{"Hailstorm warning", "Onion price update"}, d.titles); diff != "" {
		t.Errorf("dispatched mismatch (-want +got):\n%s", diff)
	}
	if obs.scans != 2 || obs.results[ResultDispatched] != 2 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestScan_ClaimedElsewhereIsSkipped(t *testing.T) {
	store := &memStore{
		alerts:  []types.ScheduledAlert{scheduled("a1", "Frost", t0)},
		claimed: map[string]bool{},
	}
	// Another replica claims between listing and claiming.
	racing := &racingStore{memStore: store}
	d := &recordingDispatcher{}
	obs := &countingObserver{}

	if err := newScheduler(t, racing, d, obs).Scan(t.Context()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if len(d.titles) != 0 || obs.results[ResultSkipped] != 1 {
		t.Errorf("dispatched=%v observer=%+v", d.titles, obs)
	}
}

type racingStore struct{ *memStore }

func (r *racingStore) DueAlerts(ctx context.Context, now time.Time, limit int) ([]types.ScheduledAlert, error) {
	due, err := r.memStore.DueAlerts(ctx, now, limit)
	for _, a := range due {
		_, _ = r.memStore.ClaimAlert(ctx, a.ID, now)
	}
	return due, err
}

func TestScan_FailuresDoNotStopTheBatch(t *testing.T) {
	store := &memStore{
		alerts: []types.ScheduledAlert{
			scheduled("a1", "Pest outbreak", t0),
			scheduled("a2", "Heavy rain", t0),
			scheduled("a3", "Mandi closed", t0),
		},
		claimErr: map[string]error{"a3": errors.New("connection reset")},
	}
	d := &recordingDispatcher{fail: map[string]bool{"Pest outbreak": true}}
	obs := &countingObserver{}

	if err := newScheduler(t, store, d, obs).Scan(t.Context()); err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	if obs.results[ResultFailed] != 2 || obs.results[ResultDispatched] != 1 {
		t.Errorf("observer = %+v", obs.results)
	}
	if !store.claimed["a1"] {
		t.Error("failed dispatch should stay claimed")
	}
}

func TestScan_ListErrorIsReturned(t *testing.T) {
	store := &memStore{dueErr: errors.New("db down")}
	obs := &countingObserver{}
	if err := newScheduler(t, store, &recordingDispatcher{}, obs).Scan(t.Context()); err == nil {
		t.Fatal("Scan() error = nil")
	}
	if obs.scans != 1 {
		t.Errorf("scans = %d", obs.scans)
	}
}

func TestNew_Validates(t *testing.T) {
	if _, err := New(Config{Schedule: "@every 1m"}); err == nil {
		t.Error("New() without store succeeded")
	}
	if _, err := New(Config{Schedule: "sometimes", Store: &memStore{}, Dispatcher: &recordingDispatcher{}}); err == nil {
		t.Error("New() with bad schedule succeeded")
	}
}

func TestStartStop(t *testing.T) {
	s := newScheduler(t, &memStore{}, &recordingDispatcher{}, nil)
	s.Start()
	ctx, cancel := context.WithTimeout(t.Context(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
