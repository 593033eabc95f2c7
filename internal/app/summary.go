package app

import (
	"fmt"
	"time"

	"github.com/JakeFAU/pricewatch/internal/reconcile"
)

// Summary counts what happened during one run.
type Summary struct {
	RunID        string
	Checked      int
	New          int
	Changed      int
	Unchanged    int
	Failed       int
	Notified     int
	Suppressed   int
	NotifyFailed int
	Duration     time.Duration
	// Reports lists every item in input order.
	Reports []reconcile.Report
}

func newSummary(res reconcile.Result) Summary {
	sum := Summary{Checked: len(res.Reports), Reports: res.Reports}
	for _, rep := range res.Reports {
		switch rep.Kind {
		case reconcile.ReportNew:
			sum.New++
		case reconcile.ReportChanged:
			sum.Changed++
		case reconcile.ReportUnchanged:
			sum.Unchanged++
		case reconcile.ReportFailed:
			sum.Failed++
		}
	}
	return sum
}

func (s Summary) String() string {
	return fmt.Sprintf("checked=%d new=%d changed=%d unchanged=%d failed=%d notified=%d suppressed=%d notify_failed=%d",
		s.Checked, s.New, s.Changed, s.Unchanged, s.Failed, s.Notified, s.Suppressed, s.NotifyFailed)
}
