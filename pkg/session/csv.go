package session

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
)

// CSVHeader is the column layout written by WriteCSV.
var CSVHeader = func() []string {
	h := []string{"timestamp"}
	for _, l := range emotion.Labels {
		h = append(h, l.String())
	}
	return append(h, "audio_stress", "stress", "engagement", "confusion", "confidence", "dominant_state", "source")
}()

// WriteCSV writes records with a header row.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}

	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 4, 64) }
	row := make([]string, len(CSVHeader))
	for _, r := range records {
		row = row[:0]
		row = append(row, r.Timestamp.UTC().Format(time.RFC3339Nano))
		for _, l := range emotion.Labels {
			row = append(row, f(r.Face[l]))
		}
		row = append(row,
			f(r.AudioStress),
			f(r.State.Stress),
			f(r.State.Engagement),
			f(r.State.Confusion),
			f(r.State.Confidence),
			string(r.State.Dominant),
			string(r.Source),
		)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write record %s: %w", r.Timestamp, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV parses records written by WriteCSV. Valence is not stored and
// reads back as zero.
func ReadCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(CSVHeader)

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	out := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rec, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func parseRow(row []string) (Record, error) {
	var rec Record
	ts, err := time.Parse(time.RFC3339Nano, row[0])
	if err != nil {
		return rec, err
	}
	rec.Timestamp = ts

	nums := make([]float64, emotion.NumLabels+5)
	for i := range nums {
		if nums[i], err = strconv.ParseFloat(row[1+i], 64); err != nil {
			return rec, fmt.Errorf("column %s: %w", CSVHeader[1+i], err)
		}
	}
	copy(rec.Face[:], nums[:emotion.NumLabels])
	rest := nums[emotion.NumLabels:]
	rec.AudioStress = rest[0]
	rec.State = fusion.State{
		Stress:     rest[1],
		Engagement: rest[2],
		Confusion:  rest[3],
		Confidence: rest[4],
		Dominant:   fusion.DominantState(row[len(row)-2]),
	}
	rec.Source = Source(row[len(row)-1])
	return rec, nil
}
