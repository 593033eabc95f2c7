package cmd

import (
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/JakeFAU/pricewatch/internal/app"
	"github.com/JakeFAU/pricewatch/internal/reconcile"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

func renderState(w io.Writer, state *tracker.State) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Title", "Price", "Last check", "URL"})
	for _, e := range state.Entries() {
		t.AppendRow(table.Row{e.Title, tracker.FormatPrice(e.Price), tracker.FormatTime(e.CheckedAt), e.URL})
	}
	t.AppendFooter(table.Row{"", "", "Total", state.Len()})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderSummary(w io.Writer, sum app.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Item", "Result", "Old", "New", "Detail"})
	for _, rep := range sum.Reports {
		row := table.Row{displayName(rep), "", "", "", ""}
		switch rep.Kind {
		case reconcile.ReportNew:
			row[1], row[3] = "new", tracker.FormatPrice(rep.Observation.Price)
		case reconcile.ReportChanged:
			row[1] = "changed"
			row[2] = tracker.FormatPrice(rep.Previous.Price)
			row[3] = tracker.FormatPrice(rep.Observation.Price)
			row[4] = "last check " + tracker.FormatTime(rep.Previous.CheckedAt)
		case reconcile.ReportUnchanged:
			row[1], row[3] = "unchanged", tracker.FormatPrice(rep.Observation.Price)
		case reconcile.ReportFailed:
			row[1], row[4] = "failed", rep.Err.Error()
		}
		t.AppendRow(row)
	}
	t.AppendFooter(table.Row{"Run " + sum.RunID, sum.String(), "", "", sum.Duration.Round(time.Millisecond).String()})
	t.SetStyle(table.StyleRounded)
	t.Render()
}

func displayName(rep reconcile.Report) string {
	switch {
	case rep.Observation.Title != "":
		return rep.Observation.Title
	case rep.Previous.Title != "":
		return rep.Previous.Title
	default:
		return rep.Item.URL
	}
}
