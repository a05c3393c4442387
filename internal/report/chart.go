package report

import (
	"bytes"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

var lineColor = drawing.ColorFromHex("58a6ff")

// segments splits points at gap markers. Each run becomes its own series so
// no line is drawn across a gap.
func segments(points []Point) [][]Point {
	var out [][]Point
	var cur []Point
	for _, p := range points {
		if p.Gap || math.IsNaN(p.Value) {
			if len(cur) > 0 {
				out = append(out, cur)
			}
			cur = nil
			continue
		}
		cur = append(cur, p)
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

// padRange widens a degenerate range so the renderer has something to scale.
func padRange(lo, hi, pad float64) (float64, float64) {
	if hi-lo < 1e-9 {
		return lo - pad, hi + pad
	}
	return lo, hi
}

// RenderChart draws points as a PNG line chart.
func RenderChart(points []Point, spec MetricSpec, minutes int) ([]byte, error) {
	segs := segments(points)
	if len(segs) == 0 {
		return nil, ErrNoData
	}

	var (
		series       []chart.Series
		yMin, yMax   = math.Inf(1), math.Inf(-1)
		tStart, tEnd time.Time
		style        = chart.Style{StrokeColor: lineColor, StrokeWidth: 2.2, FillColor: lineColor.WithAlpha(64)}
	)
	for _, seg := range segs {
		ts := chart.TimeSeries{Style: style}
		for _, p := range seg {
			ts.XValues = append(ts.XValues, p.At)
			ts.YValues = append(ts.YValues, p.Value)
			yMin, yMax = math.Min(yMin, p.Value), math.Max(yMax, p.Value)
			if tStart.IsZero() || p.At.Before(tStart) {
				tStart = p.At
			}
			if p.At.After(tEnd) {
				tEnd = p.At
			}
		}
		if len(seg) == 1 {
			// A lone sample has no line; show it as a dot.
			ts.Style.DotWidth = 3
			ts.Style.DotColor = lineColor
		}
		series = append(series, ts)
	}

	if spec.Clamp != nil {
		yMin, yMax = spec.Clamp[0], spec.Clamp[1]
	}
	yMin, yMax = padRange(yMin, yMax, 1)
	xMin, xMax := padRange(chart.TimeToFloat64(tStart), chart.TimeToFloat64(tEnd), float64(time.Minute))

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s: last %d min", spec.Label, minutes),
		Width:  1260,
		Height: 630,
		XAxis:  timeAxis(xMin, xMax),
		YAxis: chart.YAxis{
			Name:  fmt.Sprintf("%s (%s)", spec.Label, spec.Unit),
			Range: &chart.ContinuousRange{Min: yMin, Max: yMax},
		},
		Series: series,
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// timeAxis labels the x axis in wall-clock hours and minutes.
func timeAxis(lo, hi float64) chart.XAxis {
	return chart.XAxis{
		Name:           "Time",
		Range:          &chart.ContinuousRange{Min: lo, Max: hi},
		ValueFormatter: chart.TimeValueFormatterWithFormat("15:04"),
	}
}
