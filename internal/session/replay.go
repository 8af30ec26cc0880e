package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/banshee-data/pulse.report/internal/ppg"
)

// ReplaySource replays a recorded PPG log (as produced by
// cmd/tools/gen-ppglog or exported from the host app). When the log is
// exhausted it wraps around, shifting timestamps so they stay
// monotonic.
type ReplaySource struct {
	samples []ppg.Sample
	idx     int
	offset  uint64
	span    uint64
}

// LoadReplay parses a CSV log with header
// timestamp_ms,red,green,blue[,coverage,saturation].
func LoadReplay(path string) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open replay log: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read replay header: %w", err)
	}
	if len(header) < 4 || header[0] != "timestamp_ms" {
		return nil, fmt.Errorf("unexpected replay header %v", header)
	}

	var samples []ppg.Sample
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read replay record: %w", err)
		}
		s, err := parseRecord(rec)
		if err != nil {
			return nil, err
		}
		samples = append(samples, s)
	}
	if len(samples) < 2 {
		return nil, fmt.Errorf("replay log has %d samples, need at least 2", len(samples))
	}

	span := samples[len(samples)-1].TimestampMs - samples[0].TimestampMs
	// The wrap gap reuses the mean inter-sample spacing.
	span += span / uint64(len(samples)-1)

	return &ReplaySource{samples: samples, span: span}, nil
}

func parseRecord(rec []string) (ppg.Sample, error) {
	if len(rec) < 4 {
		return ppg.Sample{}, fmt.Errorf("short replay record %v", rec)
	}
	ts, err := strconv.ParseUint(rec[0], 10, 64)
	if err != nil {
		return ppg.Sample{}, fmt.Errorf("bad timestamp %q: %w", rec[0], err)
	}
	fields := make([]float64, len(rec)-1)
	for i, v := range rec[1:] {
		fields[i], err = strconv.ParseFloat(v, 64)
		if err != nil {
			return ppg.Sample{}, fmt.Errorf("bad field %q: %w", v, err)
		}
	}
	s := ppg.Sample{
		TimestampMs: ts,
		Red:         fields[0],
		Green:       fields[1],
		Blue:        fields[2],
		Value:       fields[1], // green carries the pulse
	}
	if len(fields) > 3 {
		s.CoverageRatio = fields[3]
	}
	if len(fields) > 4 {
		s.SaturationRatio = fields[4]
	}
	return s, nil
}

// Next returns the next sample, wrapping with shifted timestamps at the
// end of the log.
func (rs *ReplaySource) Next() ppg.Sample {
	s := rs.samples[rs.idx]
	s.TimestampMs += rs.offset

	rs.idx++
	if rs.idx >= len(rs.samples) {
		rs.idx = 0
		rs.offset += rs.span
	}
	return s
}

// Len returns the number of samples in one pass of the log.
func (rs *ReplaySource) Len() int { return len(rs.samples) }
