// Command vitals-report renders an HTML report for a stored session
// using go-echarts: heart rate, SpO2, blood pressure, quality, and
// SDNN over the run.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/pulse.report/internal/db"
)

func main() {
	dbFile := flag.String("db", "vitals.db", "path to the sqlite database")
	sessionID := flag.String("session", "", "session ID to report on (default: most recent)")
	output := flag.String("o", "vitals_report.html", "output path")
	limit := flag.Int("limit", 10000, "max snapshots to plot")
	flag.Parse()

	store, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer store.Close()

	id := *sessionID
	if id == "" {
		sessions, err := store.Sessions(1)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		if len(sessions) == 0 {
			log.Fatal("no sessions in database")
		}
		id = sessions[0].SessionID
		log.Printf("no session given, using most recent: %s", id)
	}

	rows, err := store.SessionSnapshots(id, *limit)
	if err != nil {
		log.Fatalf("failed to load snapshots: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("session %s has no snapshots", id)
	}

	page := components.NewPage()
	page.PageTitle = "Vitals Report"
	page.AddCharts(
		vitalsLine(rows, "Heart Rate", "BPM", func(r db.SnapshotRow) float64 { return r.BPM }),
		vitalsLine(rows, "SpO2", "%", func(r db.SnapshotRow) float64 { return r.SpO2 }),
		bpLine(rows),
		vitalsLine(rows, "Signal Quality", "score", func(r db.SnapshotRow) float64 { return r.Quality }),
		vitalsLine(rows, "SDNN", "ms", func(r db.SnapshotRow) float64 { return r.HRVSDNN }),
	)

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	if err := page.Render(f); err != nil {
		log.Fatalf("failed to render report: %v", err)
	}
	log.Printf("✓ Created: %s (%d snapshots, session %s)", *output, len(rows), id)
}

func timeAxis(rows []db.SnapshotRow) []string {
	t0 := rows[0].TimestampMs
	xs := make([]string, len(rows))
	for i, r := range rows {
		xs[i] = (time.Duration(r.TimestampMs-t0) * time.Millisecond).Truncate(time.Second).String()
	}
	return xs
}

func vitalsLine(rows []db.SnapshotRow, title, unit string, pick func(db.SnapshotRow) float64) components.Charter {
	data := make([]opts.LineData, len(rows))
	for i, r := range rows {
		data[i] = opts.LineData{Value: pick(r)}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("unit=%s points=%d", unit, len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(timeAxis(rows)).
		AddSeries(title, data, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

func bpLine(rows []db.SnapshotRow) components.Charter {
	sys := make([]opts.LineData, len(rows))
	dia := make([]opts.LineData, len(rows))
	for i, r := range rows {
		sys[i] = opts.LineData{Value: r.BPSystolic}
		dia[i] = opts.LineData{Value: r.BPDiastolic}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Blood Pressure", Subtitle: fmt.Sprintf("mmHg points=%d", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	line.SetXAxis(timeAxis(rows)).
		AddSeries("systolic", sys, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})).
		AddSeries("diastolic", dia, charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}
