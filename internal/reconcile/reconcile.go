// Package reconcile diffs fresh observations against the persisted state.
package reconcile

import (
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Change pairs a ChangeEvent with the item that produced it, so the
// notification policy and recipients travel with the event.
type Change struct {
	Item  tracker.Item
	Event tracker.ChangeEvent
}

// Report is one line of run reporting, in input order.
type Report struct {
	Kind ReportKind
	Item tracker.Item
	// Observation is set for every kind except ReportFailed.
	Observation tracker.Observation
	// Previous is the entry before reconciliation, if any.
	Previous tracker.Entry
	Err      *tracker.Error
}

// ReportKind classifies a Report.
type ReportKind int

// Report kinds.
const (
	ReportNew ReportKind = iota + 1
	ReportChanged
	ReportUnchanged
	ReportFailed
)

// Result is the output of Reconcile.
type Result struct {
	Changes  []Change
	Failures []*tracker.Error
	// NewItems lists identities recorded for the first time.
	NewItems []tracker.Observation
	// Reports holds one entry per outcome, in outcome order.
	Reports []Report
}

// Reconcile folds outcomes into state and reports what changed. It mutates
// state in place: new identities are inserted, changed prices overwritten,
// and unchanged prices get a fresh check time. Failed items leave their
// entry untouched. Prices compare exactly; the parser already yields
// discrete decimal values.
func Reconcile(outcomes []tracker.Outcome, state *tracker.State) Result {
	var res Result
	for _, out := range outcomes {
		if !out.OK() {
			res.Failures = append(res.Failures, out.Err)
			res.Reports = append(res.Reports, Report{Kind: ReportFailed, Item: out.Item, Err: out.Err})
			continue
		}

		obs := out.Observation
		next := tracker.Entry{
			URL:       obs.URL,
			Title:     obs.Title,
			Price:     obs.Price,
			CheckedAt: obs.ObservedAt,
		}
		prev, known := state.Lookup(obs.URL)
		switch {
		case !known:
			res.NewItems = append(res.NewItems, obs)
			res.Reports = append(res.Reports, Report{Kind: ReportNew, Item: out.Item, Observation: obs})
		case prev.Price != obs.Price:
			// Keep the stored spelling of the identity; lookups are case-insensitive.
			next.URL = prev.URL
			res.Changes = append(res.Changes, Change{
				Item: out.Item,
				Event: tracker.ChangeEvent{
					URL:          obs.URL,
					Title:        titleOr(obs.Title, prev.Title),
					OldPrice:     prev.Price,
					NewPrice:     obs.Price,
					OldCheckedAt: prev.CheckedAt,
					NewCheckedAt: obs.ObservedAt,
				},
			})
			res.Reports = append(res.Reports, Report{Kind: ReportChanged, Item: out.Item, Observation: obs, Previous: prev})
		default:
			next.URL = prev.URL
			res.Reports = append(res.Reports, Report{Kind: ReportUnchanged, Item: out.Item, Observation: obs, Previous: prev})
		}
		if next.Title == "" {
			next.Title = prev.Title
		}
		state.Upsert(next)
	}
	return res
}

func titleOr(title, fallback string) string {
	if title != "" {
		return title
	}
	return fallback
}
