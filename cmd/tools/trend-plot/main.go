// Command trend-plot writes PNG trend plots for a stored session:
// heart rate, SpO2, blood pressure, and quality against elapsed time.
// Useful for eyeballing estimator drift across a long recording
// without a browser.
package main

import (
	"flag"
	"fmt"
	"image/color"
	"log"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/pulse.report/internal/db"
)

type series struct {
	name  string
	unit  string
	color color.RGBA
	pick  func(db.SnapshotRow) float64
}

func main() {
	dbFile := flag.String("db", "vitals.db", "path to the sqlite database")
	sessionID := flag.String("session", "", "session ID to plot (default: most recent)")
	outDir := flag.String("o", "trend_plots", "output directory")
	limit := flag.Int("limit", 50000, "max snapshots to plot")
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
	}

	rows, err := store.SessionSnapshots(id, *limit)
	if err != nil {
		log.Fatalf("failed to load snapshots: %v", err)
	}
	if len(rows) == 0 {
		log.Fatalf("session %s has no snapshots", id)
	}

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create output dir: %v", err)
	}

	plots := []series{
		{"heart_rate", "BPM", color.RGBA{R: 200, G: 40, B: 40, A: 255}, func(r db.SnapshotRow) float64 { return r.BPM }},
		{"spo2", "%", color.RGBA{R: 40, G: 80, B: 200, A: 255}, func(r db.SnapshotRow) float64 { return r.SpO2 }},
		{"bp_systolic", "mmHg", color.RGBA{R: 160, G: 40, B: 160, A: 255}, func(r db.SnapshotRow) float64 { return r.BPSystolic }},
		{"bp_diastolic", "mmHg", color.RGBA{R: 160, G: 120, B: 40, A: 255}, func(r db.SnapshotRow) float64 { return r.BPDiastolic }},
		{"quality", "score", color.RGBA{R: 40, G: 140, B: 60, A: 255}, func(r db.SnapshotRow) float64 { return r.Quality }},
		{"sdnn", "ms", color.RGBA{R: 90, G: 90, B: 90, A: 255}, func(r db.SnapshotRow) float64 { return r.HRVSDNN }},
	}

	t0 := rows[0].TimestampMs
	for _, s := range plots {
		pts := make(plotter.XYs, 0, len(rows))
		for _, r := range rows {
			v := s.pick(r)
			if v == 0 {
				continue // estimator had nothing yet
			}
			pts = append(pts, plotter.XY{X: float64(r.TimestampMs-t0) / 1000.0, Y: v})
		}
		if len(pts) == 0 {
			log.Printf("skipping %s: no valid points", s.name)
			continue
		}

		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s (session %s)", s.name, id)
		p.X.Label.Text = "elapsed (s)"
		p.Y.Label.Text = s.unit

		line, err := plotter.NewLine(pts)
		if err != nil {
			log.Fatalf("failed to build %s line: %v", s.name, err)
		}
		line.Color = s.color
		p.Add(line)
		p.Legend.Add(s.name, line)

		out := filepath.Join(*outDir, s.name+".png")
		if err := p.Save(14*vg.Inch, 6*vg.Inch, out); err != nil {
			log.Fatalf("failed to save %s: %v", s.name, err)
		}
		log.Printf("✓ %s (%d points)", out, len(pts))
	}
}
