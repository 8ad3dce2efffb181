// Package poll drives the periodic appointment checks and decides which
// availability changes are worth notifying.
package poll

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"termin-notifier/pkg/termin"
	"termin-notifier/scraper"
)

// Checker fetches and classifies the booking page for one location.
type Checker interface {
	CheckLocation(ctx context.Context, loc termin.Location) (scraper.Classification, error)
}

// Notifier delivers messages to all subscribers.
type Notifier interface {
	NotifyAvailability(ctx context.Context, available []termin.PollOutcome) error
	NotifyStatus(ctx context.Context, message, errDetail string) error
}

// Monitor owns the poll loop state: the location registry, the seen set
// used for notification dedup, and the last completed aggregate. Scheduled
// cycles are serialized by cycleMu; the seen set is swapped atomically at
// cycle end and never mutated in place.
type Monitor struct {
	checker   Checker
	notifier  Notifier
	logger    *slog.Logger
	locations []termin.Location

	cycleMu sync.Mutex // serializes RunCycle

	mu         sync.Mutex // guards the fields below
	seen       map[string]bool
	lastResult *termin.AggregateResult
	lastFailed bool // previous cycle had per-location errors
}

// NewMonitor creates a monitor over the fixed location registry.
func NewMonitor(checker Checker, notifier Notifier, logger *slog.Logger) *Monitor {
	return &Monitor{
		checker:   checker,
		notifier:  notifier,
		logger:    logger,
		locations: termin.Locations(),
		seen:      make(map[string]bool),
	}
}

// CheckAll polls every registered location and aggregates the outcomes.
// It is read-only with respect to monitor state: manual checks can call it
// without affecting notification dedup. A failure at one location never
// aborts the cycle; it is recorded in that location's outcome.
func (m *Monitor) CheckAll(ctx context.Context) *termin.AggregateResult {
	agg := &termin.AggregateResult{
		CheckedAt: time.Now(),
		Overall:   termin.OverallSuccess,
	}

	for _, loc := range m.locations {
		outcome := m.checkOne(ctx, loc)
		agg.Outcomes = append(agg.Outcomes, outcome)

		switch outcome.Status {
		case termin.StatusNetworkError, termin.StatusHTTPError, termin.StatusParseError:
			agg.Overall = termin.OverallPartialSuccess
			outcomesTotal.WithLabelValues(string(outcome.Status)).Inc()
		case termin.StatusAvailable, termin.StatusNoSlots:
			outcomesTotal.WithLabelValues(string(outcome.Status)).Inc()
		}
	}

	availableLocations.Set(float64(len(agg.Available())))
	return agg
}

func (m *Monitor) checkOne(ctx context.Context, loc termin.Location) termin.PollOutcome {
	m.logger.Info("Checking location", "location_id", loc.ID, "location_name", loc.Name)

	outcome := termin.PollOutcome{
		CheckedAt:    time.Now(),
		LocationID:   loc.ID,
		LocationName: loc.Name,
	}

	result, err := m.checker.CheckLocation(ctx, loc)
	switch {
	case err == nil:
		outcome.Status = result.Status
		outcome.SlotCount = result.SlotCount
		outcome.ErrorDetail = result.ErrorDetail
	case scraper.IsNetworkError(err):
		m.logger.Warn("Location check failed", "location_name", loc.Name, "error", err)
		outcome.Status = termin.StatusNetworkError
		outcome.ErrorDetail = err.Error()
	default:
		if code, ok := scraper.HTTPStatusCode(err); ok {
			m.logger.Warn("Location returned unexpected status", "location_name", loc.Name, "status_code", code)
			outcome.Status = termin.StatusHTTPError
		} else {
			m.logger.Warn("Location check failed", "location_name", loc.Name, "error", err)
			outcome.Status = termin.StatusParseError
		}
		outcome.ErrorDetail = err.Error()
	}

	return outcome
}

// Diff computes the notification delta between the previously seen
// available set and a fresh aggregate. Pure function: callers own the
// seen-set swap.
//
// toNotify holds locations available now but absent from prev. newSeen is
// exactly the current available set; when nothing is available it is empty
// even if prev was not, so a later re-appearance is re-notified.
func Diff(prev map[string]bool, agg *termin.AggregateResult) (toNotify []termin.PollOutcome, newSeen map[string]bool) {
	newSeen = make(map[string]bool)
	for _, o := range agg.Outcomes {
		if o.Status != termin.StatusAvailable {
			continue
		}
		newSeen[o.LocationID] = true
		if !prev[o.LocationID] {
			toNotify = append(toNotify, o)
		}
	}
	return toNotify, newSeen
}

// RunCycle performs one scheduled poll-and-notify cycle: check all
// locations, notify subscribers about newly available ones, then swap the
// seen set. Cycles never overlap; a second caller blocks until the
// in-flight cycle finishes.
func (m *Monitor) RunCycle(ctx context.Context) {
	m.cycleMu.Lock()
	defer m.cycleMu.Unlock()

	cyclesTotal.Inc()
	start := time.Now()
	agg := m.CheckAll(ctx)

	m.mu.Lock()
	prev := m.seen
	wasFailing := m.lastFailed
	m.mu.Unlock()

	toNotify, newSeen := Diff(prev, agg)

	switch {
	case len(toNotify) > 0:
		m.logger.Info("New availability detected", "locations", len(toNotify))
		if err := m.notifier.NotifyAvailability(ctx, toNotify); err != nil {
			m.logger.Error("Failed to send availability notification", "error", err)
		}
	case len(newSeen) > 0:
		m.logger.Info("Appointments still available, already notified", "locations", len(newSeen))
	case len(prev) > 0:
		m.logger.Info("No appointments available, seen set cleared")
	default:
		m.logger.Info("No appointments available at any location")
	}

	failing := agg.Overall == termin.OverallPartialSuccess
	if failing && wasFailing {
		// Only bother subscribers about errors that persist across
		// cycles; transient failures would be notification spam.
		detail := ""
		if failed := agg.Failed(); len(failed) > 0 {
			detail = failed[0].LocationName + ": " + failed[0].ErrorDetail
		}
		if err := m.notifier.NotifyStatus(ctx, "Having trouble checking some locations", detail); err != nil {
			m.logger.Error("Failed to send status update", "error", err)
		}
	}

	m.mu.Lock()
	m.seen = newSeen
	m.lastResult = agg
	m.lastFailed = failing
	m.mu.Unlock()

	m.logger.Info("Poll cycle completed",
		"overall_status", agg.Overall,
		"available", len(newSeen),
		"notified", len(toNotify),
		"duration_ms", time.Since(start).Milliseconds())
}

// Run executes cycles on the given interval until the context is
// cancelled, starting with an immediate check.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.logger.Info("Starting poll loop", "interval", interval.String())
	m.RunCycle(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Poll loop stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// LastResult returns the most recently completed aggregate, or nil before
// the first cycle finishes.
func (m *Monitor) LastResult() *termin.AggregateResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastResult
}

// SeenIDs returns a copy of the current seen set.
func (m *Monitor) SeenIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.seen))
	for id := range m.seen {
		ids = append(ids, id)
	}
	return ids
}

// Locations exposes the registry the monitor polls.
func (m *Monitor) Locations() []termin.Location {
	return m.locations
}
