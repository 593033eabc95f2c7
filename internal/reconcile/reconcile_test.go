package reconcile

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

var (
	t0 = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(24 * time.Hour)
	t2 = t1.Add(24 * time.Hour)
)

func ok(url string, price float64, at time.Time) tracker.Outcome {
	item := tracker.Item{URL: url, Rule: tracker.Rule{Selector: ".p"}}
	return tracker.Success(item, tracker.Observation{URL: url, Title: "T " + url, Price: price, ObservedAt: at})
}

func failed(url string) tracker.Outcome {
	item := tracker.Item{URL: url, Rule: tracker.Rule{Selector: ".p"}}
	return tracker.Failure(item, tracker.NewError(tracker.ReasonFetchFailed, url, errors.New("timeout")))
}

func TestReconcileNewItemIsRecordedWithoutEvent(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	res := Reconcile([]tracker.Outcome{ok("http://a", 12.5, t0)}, state)

	require.Empty(t, res.Changes)
	require.Len(t, res.NewItems, 1)
	require.Equal(t, ReportNew, res.Reports[0].Kind)

	entry, found := state.Lookup("http://a")
	require.True(t, found)
	require.Equal(t, 12.5, entry.Price)
	require.Equal(t, t0, entry.CheckedAt)
	require.Equal(t, "T http://a", entry.Title)
}

func TestReconcileChangeEmitsEventAndOverwrites(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "http://a", Title: "Old", Price: 10, CheckedAt: t0})

	res := Reconcile([]tracker.Outcome{ok("HTTP://A", 8, t1)}, state)
	require.Len(t, res.Changes, 1)
	ev := res.Changes[0].Event
	require.Equal(t, 10.0, ev.OldPrice)
	require.Equal(t, 8.0, ev.NewPrice)
	require.Equal(t, t0, ev.OldCheckedAt)
	require.Equal(t, t1, ev.NewCheckedAt)
	require.True(t, ev.Dropped())

	require.Equal(t, 1, state.Len())
	entry, _ := state.Lookup("http://a")
	require.Equal(t, 8.0, entry.Price)
	require.Equal(t, t1, entry.CheckedAt)
	require.Equal(t, "http://a", entry.URL)
}

func TestReconcileIsIdempotentButRefreshesCheckTime(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "http://a", Price: 19.99, CheckedAt: t0})

	res := Reconcile([]tracker.Outcome{ok("http://a", 19.99, t1)}, state)
	require.Empty(t, res.Changes)
	require.Equal(t, ReportUnchanged, res.Reports[0].Kind)
	entry, _ := state.Lookup("http://a")
	require.Equal(t, t1, entry.CheckedAt)

	res = Reconcile([]tracker.Outcome{ok("http://a", 19.99, t2)}, state)
	require.Empty(t, res.Changes)
	entry, _ = state.Lookup("http://a")
	require.Equal(t, t2, entry.CheckedAt)
}

func TestReconcileIsolatesFailures(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "http://known-fail", Price: 5, CheckedAt: t0})
	before := state.Len()

	outcomes := []tracker.Outcome{
		ok("http://a", 1, t1),
		failed("http://b"),
		ok("http://c", 3, t1),
		failed("http://known-fail"),
	}
	res := Reconcile(outcomes, state)

	require.Len(t, res.Failures, 2)
	require.Equal(t, "http://b", res.Failures[0].Identity)
	require.Len(t, res.Reports, 4)
	require.Equal(t, ReportFailed, res.Reports[1].Kind)

	require.Equal(t, before+2, state.Len())
	_, found := state.Lookup("http://b")
	require.False(t, found)

	kept, _ := state.Lookup("http://known-fail")
	require.Equal(t, 5.0, kept.Price)
	require.Equal(t, t0, kept.CheckedAt)
}

func TestReconcileKeepsTitleWhenPageLosesIt(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	state.Upsert(tracker.Entry{URL: "http://a", Title: "Kettle", Price: 10, CheckedAt: t0})

	item := tracker.Item{URL: "http://a"}
	res := Reconcile([]tracker.Outcome{
		tracker.Success(item, tracker.Observation{URL: "http://a", Price: 9, ObservedAt: t1}),
	}, state)

	require.Equal(t, "Kettle", res.Changes[0].Event.Title)
	entry, _ := state.Lookup("http://a")
	require.Equal(t, "Kettle", entry.Title)
}
