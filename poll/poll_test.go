package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"termin-notifier/pkg/termin"
	"termin-notifier/scraper"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeChecker maps location IDs to canned results. Unlisted locations
// report no slots.
type fakeChecker struct {
	available map[string]int // location ID -> slot count
	failing   map[string]error
}

func (f *fakeChecker) CheckLocation(_ context.Context, loc termin.Location) (scraper.Classification, error) {
	if err, ok := f.failing[loc.ID]; ok {
		return scraper.Classification{}, err
	}
	if slots, ok := f.available[loc.ID]; ok {
		return scraper.Classification{Status: termin.StatusAvailable, SlotCount: slots}, nil
	}
	return scraper.Classification{Status: termin.StatusNoSlots}, nil
}

type notification struct {
	available []termin.PollOutcome
	status    string
}

type fakeNotifier struct {
	sent []notification
}

func (f *fakeNotifier) NotifyAvailability(_ context.Context, available []termin.PollOutcome) error {
	f.sent = append(f.sent, notification{available: available})
	return nil
}

func (f *fakeNotifier) NotifyStatus(_ context.Context, message, _ string) error {
	f.sent = append(f.sent, notification{status: message})
	return nil
}

func (f *fakeNotifier) availabilityCount() int {
	n := 0
	for _, s := range f.sent {
		if s.status == "" {
			n++
		}
	}
	return n
}

func (f *fakeNotifier) statusCount() int {
	n := 0
	for _, s := range f.sent {
		if s.status != "" {
			n++
		}
	}
	return n
}

// TestCheckAllCoversRegistryInOrder verifies every registered location
// gets exactly one outcome, in registry order.
func TestCheckAllCoversRegistryInOrder(t *testing.T) {
	m := NewMonitor(&fakeChecker{}, &fakeNotifier{}, testLogger())
	agg := m.CheckAll(context.Background())

	locations := termin.Locations()
	if len(agg.Outcomes) != len(locations) {
		t.Fatalf("got %d outcomes, want %d", len(agg.Outcomes), len(locations))
	}
	for i, loc := range locations {
		if agg.Outcomes[i].LocationID != loc.ID {
			t.Errorf("outcome[%d] = %s, want %s", i, agg.Outcomes[i].LocationID, loc.ID)
		}
		if agg.Outcomes[i].CheckedAt.IsZero() {
			t.Errorf("outcome[%d] has zero CheckedAt", i)
		}
	}
	if agg.Overall != termin.OverallSuccess {
		t.Errorf("overall = %q, want success", agg.Overall)
	}
}

// TestCheckAllIsolatesFailures verifies a failing location downgrades the
// cycle to partial success without touching the other outcomes.
func TestCheckAllIsolatesFailures(t *testing.T) {
	locations := termin.Locations()
	failingID := locations[1].ID

	checker := &fakeChecker{
		available: map[string]int{locations[0].ID: 2},
		failing: map[string]error{
			failingID: &scraper.NetworkError{URL: "http://x", Err: errors.New("connection timed out")},
		},
	}
	m := NewMonitor(checker, &fakeNotifier{}, testLogger())
	agg := m.CheckAll(context.Background())

	if len(agg.Outcomes) != len(locations) {
		t.Fatalf("got %d outcomes, want %d", len(agg.Outcomes), len(locations))
	}
	if agg.Overall != termin.OverallPartialSuccess {
		t.Errorf("overall = %q, want partial_success", agg.Overall)
	}

	byID := make(map[string]termin.PollOutcome)
	for _, o := range agg.Outcomes {
		byID[o.LocationID] = o
	}
	if got := byID[failingID]; got.Status != termin.StatusNetworkError || got.ErrorDetail == "" {
		t.Errorf("failing outcome = %+v, want network_error with detail", got)
	}
	if got := byID[locations[0].ID]; got.Status != termin.StatusAvailable || got.SlotCount != 2 {
		t.Errorf("available outcome = %+v, want available with 2 slots", got)
	}
	if got := byID[locations[2].ID]; got.Status != termin.StatusNoSlots {
		t.Errorf("unaffected outcome = %+v, want no_slots", got)
	}
}

func TestCheckAllMapsErrorKinds(t *testing.T) {
	locations := termin.Locations()
	checker := &fakeChecker{failing: map[string]error{
		locations[0].ID: &scraper.HTTPStatusError{URL: "http://x", StatusCode: 503},
		locations[1].ID: errors.New("unexpected markup"),
	}}
	m := NewMonitor(checker, &fakeNotifier{}, testLogger())
	agg := m.CheckAll(context.Background())

	if agg.Outcomes[0].Status != termin.StatusHTTPError {
		t.Errorf("outcome[0] = %q, want http_error", agg.Outcomes[0].Status)
	}
	if agg.Outcomes[1].Status != termin.StatusParseError {
		t.Errorf("outcome[1] = %q, want parse_error", agg.Outcomes[1].Status)
	}
}

func aggregateWithAvailable(ids ...string) *termin.AggregateResult {
	agg := &termin.AggregateResult{CheckedAt: time.Now(), Overall: termin.OverallSuccess}
	available := make(map[string]bool)
	for _, id := range ids {
		available[id] = true
	}
	for _, loc := range termin.Locations() {
		o := termin.PollOutcome{
			CheckedAt:    time.Now(),
			LocationID:   loc.ID,
			LocationName: loc.Name,
			Status:       termin.StatusNoSlots,
		}
		if available[loc.ID] {
			o.Status = termin.StatusAvailable
			o.SlotCount = 1
		}
		agg.Outcomes = append(agg.Outcomes, o)
	}
	return agg
}

func TestDiffNotifiesOnlyNewLocations(t *testing.T) {
	prev := map[string]bool{"122626": true}
	agg := aggregateWithAvailable("122626", "122659")

	toNotify, newSeen := Diff(prev, agg)

	if len(toNotify) != 1 || toNotify[0].LocationID != "122659" {
		t.Errorf("toNotify = %+v, want only 122659", toNotify)
	}
	if len(newSeen) != 2 || !newSeen["122626"] || !newSeen["122659"] {
		t.Errorf("newSeen = %v, want {122626, 122659}", newSeen)
	}
}

// TestDiffIdempotent: feeding the same aggregate back with the first
// call's newSeen always produces an empty delta.
func TestDiffIdempotent(t *testing.T) {
	for _, ids := range [][]string{{}, {"122626"}, {"122626", "122666"}} {
		agg := aggregateWithAvailable(ids...)
		_, seen := Diff(map[string]bool{}, agg)
		toNotify, again := Diff(seen, agg)
		if len(toNotify) != 0 {
			t.Errorf("ids %v: second diff toNotify = %+v, want empty", ids, toNotify)
		}
		if len(again) != len(seen) {
			t.Errorf("ids %v: seen set changed size on repeat: %v -> %v", ids, seen, again)
		}
	}
}

// TestDiffResetLaw: a cycle with zero available locations empties the
// seen set regardless of what was seen before.
func TestDiffResetLaw(t *testing.T) {
	prev := map[string]bool{"122626": true, "122659": true, "bogus": true}
	toNotify, newSeen := Diff(prev, aggregateWithAvailable())
	if len(toNotify) != 0 {
		t.Errorf("toNotify = %+v, want empty", toNotify)
	}
	if len(newSeen) != 0 {
		t.Errorf("newSeen = %v, want empty", newSeen)
	}
}

// TestDiffReplacesSeenSet: locations that silently vanished from the
// available set are dropped, not carried over.
func TestDiffReplacesSeenSet(t *testing.T) {
	prev := map[string]bool{"122626": true}
	_, newSeen := Diff(prev, aggregateWithAvailable("122659"))
	if newSeen["122626"] {
		t.Error("vanished location still in seen set")
	}
	if !newSeen["122659"] {
		t.Error("current location missing from seen set")
	}
}

// TestRunCycleScenario walks the notify / suppress / reset / re-notify
// sequence end to end.
func TestRunCycleScenario(t *testing.T) {
	locations := termin.Locations()
	a := locations[0].ID

	checker := &fakeChecker{available: map[string]int{a: 3}}
	notifier := &fakeNotifier{}
	m := NewMonitor(checker, notifier, testLogger())
	ctx := context.Background()

	// Cycle 1: A appears, notify.
	m.RunCycle(ctx)
	if notifier.availabilityCount() != 1 {
		t.Fatalf("after cycle 1: %d notifications, want 1", notifier.availabilityCount())
	}
	if got := notifier.sent[0].available; len(got) != 1 || got[0].LocationID != a || got[0].SlotCount != 3 {
		t.Errorf("notification = %+v, want location %s with 3 slots", got, a)
	}

	// Cycle 2: A still available, suppressed.
	m.RunCycle(ctx)
	if notifier.availabilityCount() != 1 {
		t.Errorf("after cycle 2: %d notifications, want still 1", notifier.availabilityCount())
	}

	// Cycle 3: nothing available, seen set resets.
	checker.available = map[string]int{}
	m.RunCycle(ctx)
	if len(m.SeenIDs()) != 0 {
		t.Errorf("after cycle 3: seen = %v, want empty", m.SeenIDs())
	}

	// Cycle 4: A re-appears, re-notified.
	checker.available = map[string]int{a: 1}
	m.RunCycle(ctx)
	if notifier.availabilityCount() != 2 {
		t.Errorf("after cycle 4: %d notifications, want 2", notifier.availabilityCount())
	}

	if last := m.LastResult(); last == nil || len(last.Outcomes) != len(locations) {
		t.Error("LastResult not recorded")
	}
}

// TestRunCycleStatusOnPersistentFailure: a status update goes out only
// when failures persist across consecutive cycles.
func TestRunCycleStatusOnPersistentFailure(t *testing.T) {
	locations := termin.Locations()
	checker := &fakeChecker{failing: map[string]error{
		locations[0].ID: &scraper.NetworkError{URL: "http://x", Err: errors.New("timeout")},
	}}
	notifier := &fakeNotifier{}
	m := NewMonitor(checker, notifier, testLogger())
	ctx := context.Background()

	m.RunCycle(ctx)
	if notifier.statusCount() != 0 {
		t.Fatalf("after first failing cycle: %d status updates, want 0", notifier.statusCount())
	}

	m.RunCycle(ctx)
	if notifier.statusCount() != 1 {
		t.Errorf("after second failing cycle: %d status updates, want 1", notifier.statusCount())
	}

	// Recovery clears the failing flag: a later isolated failure stays
	// quiet again.
	checker.failing = map[string]error{}
	m.RunCycle(ctx)
	checker.failing = map[string]error{
		locations[0].ID: &scraper.NetworkError{URL: "http://x", Err: errors.New("timeout")},
	}
	m.RunCycle(ctx)
	if notifier.statusCount() != 1 {
		t.Errorf("after recovery and one new failure: %d status updates, want still 1", notifier.statusCount())
	}
}
