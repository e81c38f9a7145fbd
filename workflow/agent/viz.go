package agent

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/finchat-labs/finflow/capability"
)

// Visualization renders a chart for the quote fetched by the data agent.
// The chart kind follows hints in the query; with only a point-in-time quote
// available, the series is the derived previous close and the current price.
type Visualization struct {
	Renderer capability.ChartRenderer
}

func (a *Visualization) Name() string { return NameVisualization }

func (a *Visualization) Process(ctx context.Context, in Input) Result {
	start := time.Now()

	if in.FinancialData == nil {
		return failWith(NameVisualization, KindInternal, "financial data missing from prior stage", start)
	}

	kind := chartKindFor(in.Query)
	png, err := a.Renderer.Render(ctx, quoteSeries(in.FinancialData), kind)
	if err != nil {
		k := Classify(err)
		if k != KindTimeout && k != KindCancelled {
			k = KindRenderFailed
		}
		return failWith(NameVisualization, k, err.Error(), start)
	}

	d := in.FinancialData
	caption := fmt.Sprintf("%s(%s) %s (전일 대비 %+.1f%%)", d.Name, d.Symbol, chartLabel(kind), d.ChangePct)
	return succeed(NameVisualization, &Chart{Kind: kind, PNG: png, Caption: caption}, start)
}

// chartKindFor picks the chart type from query hints. Candlestick and volume
// requests are explicit; everything else defaults to a line chart.
func chartKindFor(query string) capability.ChartKind {
	q := strings.ToLower(query)
	switch {
	case containsAny(q, "봉", "캔들", "candle"):
		return capability.ChartCandlestick
	case containsAny(q, "거래량", "volume"):
		return capability.ChartBar
	default:
		return capability.ChartLine
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// quoteSeries derives a two-bar series from a point-in-time quote: the
// previous close reconstructed from the change percentage, then today.
func quoteSeries(d *FinancialData) capability.Series {
	prev := d.Price
	if d.ChangePct > -100 {
		prev = d.Price / (1 + d.ChangePct/100)
	}
	hi := math.Max(prev, d.Price)
	lo := math.Min(prev, d.Price)
	now := time.Now()
	return capability.Series{
		Label: d.Name,
		Bars: []capability.Pricebar{
			{T: now.AddDate(0, 0, -1), Open: prev, High: prev, Low: prev, Close: prev},
			{T: now, Open: prev, High: hi, Low: lo, Close: d.Price, Volume: d.Volume},
		},
	}
}

func chartLabel(kind capability.ChartKind) string {
	switch kind {
	case capability.ChartCandlestick:
		return "봉 차트"
	case capability.ChartBar:
		return "거래량 차트"
	default:
		return "주가 추세 차트"
	}
}
