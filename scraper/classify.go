package scraper

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"termin-notifier/pkg/termin"
)

// Page structure markers. The booking site is external and unversioned, so
// these are best-effort heuristics kept as data for easy tuning.
var (
	// terminalPaths are URL fragments of pages that authoritatively mean
	// "no appointment", regardless of body content.
	terminalPaths = []string{
		"/terminvereinbarung/termin/stop/",
		"/terminvereinbarung/termin/taken/",
	}

	// calendarContainerSelector marks the month calendar wrapper.
	calendarContainerSelector = "div.calendar-month-table"

	// bookableCellSelector matches calendar cells with open slots
	// (buchbar = bookable) inside the month calendar.
	bookableCellSelector = "td.buchbar"

	// fallbackCellSelector is the broader search used when the calendar
	// container is absent from the page.
	fallbackCellSelector = "td.buchbar, a.buchbar, td.calendar-week-day, a.calendar-week-day"

	// noSlotsSelectors are structural indicators of an explicit
	// "no appointments" page.
	noSlotsSelectors = []string{"div.alert-warning", "div.alert"}

	// noSlotsTokens must all appear in a single text node (lowercased) to
	// count as an explicit textual indicator ("keine Termine").
	noSlotsTokens = []string{"keine", "termin"}
)

// Reason records which classifier branch produced a result, so ambiguous
// pages stay distinguishable from explicit ones in logs and tests.
type Reason string

const (
	// ReasonTerminalPage means the final URL was a stop/taken page.
	ReasonTerminalPage Reason = "terminal_page"
	// ReasonBookableCells means bookable calendar cells were counted.
	ReasonBookableCells Reason = "bookable_cells"
	// ReasonNoSlotsIndicator means the page explicitly said no
	// appointments are available.
	ReasonNoSlotsIndicator Reason = "no_slots_indicator"
	// ReasonNoEvidence means neither bookable cells nor an explicit
	// indicator were found. Treated as no slots: absence of evidence of
	// availability is not availability. May signal markup drift.
	ReasonNoEvidence Reason = "no_evidence"
	// ReasonParseFailure means the HTML could not be parsed at all.
	ReasonParseFailure Reason = "parse_failure"
)

// Classification is the result of interpreting one booking page.
type Classification struct {
	Status      termin.Status
	Reason      Reason
	ErrorDetail string
	SlotCount   int
}

// Classify decides whether a booking page shows open slots. The final URL
// takes priority: stop/taken pages are terminal no-appointment states no
// matter what the body says. Parsing trouble degrades to a parse-error
// classification, never a crash.
func Classify(finalURL string, html []byte) Classification {
	for _, path := range terminalPaths {
		if strings.Contains(finalURL, path) {
			return Classification{Status: termin.StatusNoSlots, Reason: ReasonTerminalPage}
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return Classification{
			Status:      termin.StatusParseError,
			Reason:      ReasonParseFailure,
			ErrorDetail: err.Error(),
		}
	}

	bookable := doc.Find(calendarContainerSelector).Find(bookableCellSelector)
	if doc.Find(calendarContainerSelector).Length() == 0 {
		bookable = doc.Find(fallbackCellSelector)
	}
	if count := bookable.Length(); count > 0 {
		return Classification{
			Status:    termin.StatusAvailable,
			Reason:    ReasonBookableCells,
			SlotCount: count,
		}
	}

	if hasNoSlotsIndicator(doc) {
		return Classification{Status: termin.StatusNoSlots, Reason: ReasonNoSlotsIndicator}
	}

	return Classification{Status: termin.StatusNoSlots, Reason: ReasonNoEvidence}
}

// hasNoSlotsIndicator reports whether the page explicitly states that no
// appointments are available, either structurally or textually.
func hasNoSlotsIndicator(doc *goquery.Document) bool {
	for _, sel := range noSlotsSelectors {
		if doc.Find(sel).Length() > 0 {
			return true
		}
	}

	// The tokens must land in the same text node. Scanning the whole
	// document would match "keine" in a footer plus "Termin" in the
	// navigation and misreport an explicit indicator.
	found := false
	doc.Find("*").Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "#text" {
			return true
		}
		text := strings.ToLower(s.Text())
		for _, token := range noSlotsTokens {
			if !strings.Contains(text, token) {
				return true
			}
		}
		found = true
		return false
	})
	return found
}
