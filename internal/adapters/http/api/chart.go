package api

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	service "github.com/okian/survcast/internal/app"
	"github.com/okian/survcast/internal/domain/kaplanmeier"
)

const (
	colorGroupA = "#2f7ed8"
	colorGroupB = "#d94e4e"
	chartWidth  = "960px"
	chartHeight = "540px"
)

// HandleChart handles GET /api/cohorts/compare/chart requests. It renders
// the tier comparison as a standalone HTML line chart.
func (h *CompareHandler) HandleChart(w http.ResponseWriter, r *http.Request) {
	const op = "api.compare_chart"
	cmp, err := h.compareTiers(r)
	if err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	var buf bytes.Buffer
	if err := comparisonChart(cmp).Render(&buf); err != nil {
		fail(r.Context(), w, Wrap(op, err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func comparisonChart(cmp *service.GroupComparison) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			PageTitle: "Survival comparison",
			Width:     chartWidth,
			Height:    chartHeight,
		}),
		charts.WithTitleOpts(opts.Title{
			Title: fmt.Sprintf("Kaplan-Meier: %s vs %s", cmp.A.Label, cmp.B.Label),
			Subtitle: fmt.Sprintf("log-rank chi2=%.3f p=%.4f, n=%d/%d",
				cmp.LogRank.Statistic, cmp.LogRank.PValue, cmp.A.Subjects, cmp.B.Subjects),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "months"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "survival", Min: 0, Max: 1}),
	)
	line.SetSeriesOptions(
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
	)
	line.SetXAxis(axisLabels(cmp.A.Curve.Times))
	addGroup(line, cmp.A, colorGroupA)
	addGroup(line, cmp.B, colorGroupB)
	return line
}

func addGroup(line *charts.Line, g kaplanmeier.GroupCurve, color string) {
	line.AddSeries(g.Label, lineData(g.Curve.Survival),
		charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 2}))
	if len(g.Curve.Lower) > 0 {
		line.AddSeries(g.Label+" lower", lineData(g.Curve.Lower),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1, Type: "dashed"}))
	}
	if len(g.Curve.Upper) > 0 {
		line.AddSeries(g.Label+" upper", lineData(g.Curve.Upper),
			charts.WithLineStyleOpts(opts.LineStyle{Color: color, Width: 1, Type: "dashed"}))
	}
}

func axisLabels(times []float64) []string {
	out := make([]string, len(times))
	for i, t := range times {
		out[i] = strconv.FormatFloat(t, 'f', -1, 64)
	}
	return out
}

func lineData(series []float64) []opts.LineData {
	out := make([]opts.LineData, len(series))
	for i, v := range series {
		if math.IsNaN(v) {
			out[i] = opts.LineData{Value: nil}
			continue
		}
		out[i] = opts.LineData{Value: math.Round(v*1e4) / 1e4}
	}
	return out
}
