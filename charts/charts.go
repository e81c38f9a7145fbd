// Package charts renders price series to PNG images with go-chart.
package charts

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/wcharczuk/go-chart/v2"

	"github.com/finchat-labs/finflow/capability"
)

// Default canvas size in pixels.
const (
	DefaultWidth  = 900
	DefaultHeight = 480
)

// minBars is the smallest series worth drawing. go-chart rejects
// single-point series as well.
const minBars = 2

// Renderer draws line, bar, and candlestick charts with go-chart.
// Candlesticks are approximated as a high/low envelope around the close
// line because go-chart has no native candlestick series.
type Renderer struct {
	width  int
	height int
}

// Option adjusts a Renderer.
type Option func(*Renderer)

// WithSize overrides the output canvas dimensions in pixels.
func WithSize(width, height int) Option {
	return func(r *Renderer) {
		if width > 0 {
			r.width = width
		}
		if height > 0 {
			r.height = height
		}
	}
}

// NewRenderer returns a Renderer with the default canvas size.
func NewRenderer(opts ...Option) *Renderer {
	r := &Renderer{width: DefaultWidth, height: DefaultHeight}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

var _ capability.ChartRenderer = (*Renderer)(nil)

// Render draws series in the requested style and returns PNG bytes.
// Too few bars or an unknown kind is an error, never a panic.
func (r *Renderer) Render(ctx context.Context, series capability.Series, kind capability.ChartKind) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(series.Bars) < minBars {
		return nil, fmt.Errorf("charts: need at least %d bars, got %d", minBars, len(series.Bars))
	}
	switch kind {
	case capability.ChartLine:
		return r.renderLine(series)
	case capability.ChartBar:
		return r.renderBar(series)
	case capability.ChartCandlestick:
		return r.renderCandlestick(series)
	default:
		return nil, fmt.Errorf("charts: unknown chart kind %q", kind)
	}
}

func (r *Renderer) renderLine(series capability.Series) ([]byte, error) {
	closes := column(series.Bars, func(b capability.Pricebar) float64 { return b.Close })
	graph := chart.Chart{
		Title:  series.Label,
		Width:  r.width,
		Height: r.height,
		XAxis:  chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:  chart.YAxis{Range: flatPad(closes)},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "close",
				XValues: timeline(series.Bars),
				YValues: closes,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 2},
			},
		},
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("charts: render line: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderBar(series capability.Series) ([]byte, error) {
	bars := make([]chart.Value, 0, len(series.Bars))
	for _, b := range series.Bars {
		bars = append(bars, chart.Value{
			Label: b.T.Format("01/02"),
			Value: float64(b.Volume),
		})
	}
	width, spacing := barLayout(len(bars), r.width)
	graph := chart.BarChart{
		Title:      series.Label,
		Width:      r.width,
		Height:     r.height,
		BarWidth:   width,
		BarSpacing: spacing,
		// Volume bars grow from zero; this also keeps the y-range
		// nonzero when every bar carries the same volume.
		UseBaseValue: true,
		BaseValue:    0,
		Bars:         bars,
	}
	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("charts: render bar: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) renderCandlestick(series capability.Series) ([]byte, error) {
	highs := column(series.Bars, func(b capability.Pricebar) float64 { return b.High })
	lows := column(series.Bars, func(b capability.Pricebar) float64 { return b.Low })
	closes := column(series.Bars, func(b capability.Pricebar) float64 { return b.Close })
	xs := timeline(series.Bars)

	all := make([]float64, 0, 3*len(series.Bars))
	all = append(all, highs...)
	all = append(all, lows...)
	all = append(all, closes...)

	// Series names stay ASCII; the embedded font has no Hangul glyphs.
	graph := chart.Chart{
		Title:  series.Label,
		Width:  r.width,
		Height: r.height,
		XAxis:  chart.XAxis{ValueFormatter: chart.TimeDateValueFormatter},
		YAxis:  chart.YAxis{Range: flatPad(all)},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "high",
				XValues: xs,
				YValues: highs,
				Style:   chart.Style{StrokeColor: chart.ColorRed, StrokeWidth: 1, StrokeDashArray: []float64{4, 2}},
			},
			chart.TimeSeries{
				Name:    "low",
				XValues: xs,
				YValues: lows,
				Style:   chart.Style{StrokeColor: chart.ColorBlue, StrokeWidth: 1, StrokeDashArray: []float64{4, 2}},
			},
			chart.TimeSeries{
				Name:    "close",
				XValues: xs,
				YValues: closes,
				Style:   chart.Style{StrokeColor: chart.ColorBlack, StrokeWidth: 2},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("charts: render candlestick: %w", err)
	}
	return buf.Bytes(), nil
}

func timeline(bars []capability.Pricebar) []time.Time {
	xs := make([]time.Time, len(bars))
	for i, b := range bars {
		xs[i] = b.T
	}
	return xs
}

func column(bars []capability.Pricebar, pick func(capability.Pricebar) float64) []float64 {
	ys := make([]float64, len(bars))
	for i, b := range bars {
		ys[i] = pick(b)
	}
	return ys
}

// flatPad returns an explicit y-range for a constant-valued series.
// go-chart rejects a zero y-range delta, so a halted stock would
// otherwise fail to render.
func flatPad(ys []float64) chart.Range {
	lo, hi := ys[0], ys[0]
	for _, y := range ys[1:] {
		if y < lo {
			lo = y
		}
		if y > hi {
			hi = y
		}
	}
	if lo != hi {
		return nil
	}
	pad := math.Abs(lo) * 0.01
	if pad == 0 {
		pad = 1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// barLayout sizes volume bars to fit the canvas. go-chart widens the
// drawing box to the bar total otherwise, clipping anything past the
// image edge.
func barLayout(n, width int) (barWidth, spacing int) {
	spacing = 4
	usable := width - 80
	barWidth = usable/n - spacing
	if barWidth < 2 {
		barWidth = 2
	}
	if barWidth > 48 {
		barWidth = 48
	}
	return barWidth, spacing
}
