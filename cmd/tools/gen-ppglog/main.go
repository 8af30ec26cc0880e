// Command gen-ppglog generates sample PPG brightness logs for testing replay.
package main

import (
	"encoding/csv"
	"flag"
	"log"
	"os"
	"strconv"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

func main() {
	output := flag.String("o", "sample_ppg.csv", "output path")
	seconds := flag.Int("s", 60, "seconds of signal to generate")
	bpm := flag.Float64("bpm", 72, "simulated heart rate")
	perfusion := flag.Float64("pi", 0.05, "pulsatile amplitude as a fraction of baseline")
	noise := flag.Float64("noise", 0.002, "noise amplitude as a fraction of baseline")
	flag.Parse()

	gen := ppg.NewSyntheticSource()
	gen.HeartRateBPM = *bpm
	gen.ACFraction = *perfusion
	gen.Noise = *noise

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create output: %v", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"timestamp_ms", "red", "green", "blue", "coverage", "saturation"}); err != nil {
		log.Fatalf("failed to write header: %v", err)
	}

	n := *seconds * int(ppg.NominalSampleRateHz)
	for i := 0; i < n; i++ {
		s := gen.Next()
		rec := []string{
			strconv.FormatUint(s.TimestampMs, 10),
			strconv.FormatFloat(s.Red, 'f', 4, 64),
			strconv.FormatFloat(s.Green, 'f', 4, 64),
			strconv.FormatFloat(s.Blue, 'f', 4, 64),
			strconv.FormatFloat(s.CoverageRatio, 'f', 3, 64),
			strconv.FormatFloat(s.SaturationRatio, 'f', 3, 64),
		}
		if err := w.Write(rec); err != nil {
			log.Fatalf("failed to write record: %v", err)
		}
		if (i+1)%(10*int(ppg.NominalSampleRateHz)) == 0 {
			log.Printf("%d/%d samples", i+1, n)
		}
	}
	log.Printf("✓ Created: %s", *output)
}
