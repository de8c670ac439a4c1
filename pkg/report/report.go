// Package report renders a finished or running session as a standalone
// HTML page of go-echarts charts.
package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/teslashibe/go-emotisense/pkg/emotion"
	"github.com/teslashibe/go-emotisense/pkg/fusion"
	"github.com/teslashibe/go-emotisense/pkg/session"
	"github.com/teslashibe/go-emotisense/pkg/trigger"
)

// Input is everything a report page shows.
type Input struct {
	SessionID string
	Records   []session.Record
	Stats     session.Stats
	Events    []trigger.Event
	Feedback  []string
}

// Render writes the report page for in to w.
func Render(w io.Writer, in Input) error {
	page := components.NewPage()
	page.SetPageTitle(fmt.Sprintf("Session %s", in.SessionID))
	page.AddCharts(
		timelineChart(in),
		faceChart(in.Records),
		stateChart(in.Stats, in.Feedback),
		eventChart(in.Events),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

func axisLabels(records []session.Record) []string {
	labels := make([]string, len(records))
	if len(records) == 0 {
		return labels
	}
	start := records[0].Timestamp
	for i, r := range records {
		labels[i] = fmt.Sprintf("%.0fs", r.Timestamp.Sub(start).Seconds())
	}
	return labels
}

func lineSeries(records []session.Record, value func(session.Record) float64) []opts.LineData {
	out := make([]opts.LineData, len(records))
	for i, r := range records {
		out[i] = opts.LineData{Value: value(r)}
	}
	return out
}

func timelineChart(in Input) *charts.Line {
	s := in.Stats
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px"}),
		charts.WithTitleOpts(opts.Title{
			Title: "Affective state",
			Subtitle: fmt.Sprintf("%d ticks over %s, quality %.0f/100",
				s.Count, s.Duration.Round(time.Second), s.Quality),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "score"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)

	smooth := charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)})
	line.SetXAxis(axisLabels(in.Records)).
		AddSeries("stress", lineSeries(in.Records, func(r session.Record) float64 { return r.State.Stress }), smooth).
		AddSeries("engagement", lineSeries(in.Records, func(r session.Record) float64 { return r.State.Engagement }), smooth).
		AddSeries("confusion", lineSeries(in.Records, func(r session.Record) float64 { return r.State.Confusion }), smooth).
		AddSeries("audio stress", lineSeries(in.Records, func(r session.Record) float64 { return r.AudioStress }), smooth)
	return line
}

func faceChart(records []session.Record) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Facial expression"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "30px"}),
		charts.WithYAxisOpts(opts.YAxis{Min: 0, Max: 1, Name: "probability"}),
	)

	line.SetXAxis(axisLabels(records))
	for _, l := range emotion.Labels {
		l := l
		line.AddSeries(l.String(), lineSeries(records, func(r session.Record) float64 { return r.Face[l] }))
	}
	return line
}

func stateChart(s session.Stats, feedback []string) *charts.Bar {
	x := make([]string, 0, len(fusion.DominantStates))
	y := make([]opts.BarData, 0, len(fusion.DominantStates))
	for _, st := range fusion.DominantStates {
		x = append(x, string(st))
		y = append(y, opts.BarData{Value: s.StateCounts[st]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px"}),
		charts.WithTitleOpts(opts.Title{Title: "Dominant state", Subtitle: strings.Join(feedback, "\n")}),
		charts.WithGridOpts(opts.Grid{Top: fmt.Sprintf("%dpx", 60+18*len(feedback))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("ticks", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}

func eventChart(events []trigger.Event) *charts.Bar {
	types := []trigger.Type{trigger.Stress, trigger.Happy, trigger.Distraction, trigger.Auto}
	counts := make(map[trigger.Type]int, len(types))
	for _, e := range events {
		counts[e.Type]++
	}

	x := make([]string, 0, len(types))
	y := make([]opts.BarData, 0, len(types))
	for _, t := range types {
		x = append(x, string(t))
		y = append(y, opts.BarData{Value: counts[t]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "320px"}),
		charts.WithTitleOpts(opts.Title{Title: "Triggers", Subtitle: fmt.Sprintf("%d events", len(events))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("events", y,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		)
	return bar
}
