// Package charts renders run results and archive trends as go-echarts HTML.
package charts

import (
	"fmt"
	"io"
	"math"
	"sort"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/database"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

func (g *Generator) outcomePie(s *appthwack.ResultSummary) *charts.Pie {
	pie := charts.NewPie()
	pie.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Outcomes", Subtitle: s.Name}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "300px",
			Width:  "100%",
		}),
	)
	pie.AddSeries("Tests", []opts.PieData{
		{Name: "Passed", Value: s.Passes},
		{Name: "Warnings", Value: s.Warnings},
		{Name: "Failed", Value: s.Failures},
		{Name: "Errors", Value: s.Errors},
	}, charts.WithPieChartOpts(opts.PieChart{Radius: []string{"40%", "70%"}}))
	return pie
}

func (g *Generator) deviceBar(res *appthwack.Result) *charts.Bar {
	devices := map[string]map[appthwack.Outcome]int{}
	for _, o := range appthwack.Outcomes {
		for _, c := range res.Group(o).ByDevice {
			if c == nil {
				continue
			}
			if devices[c.Name] == nil {
				devices[c.Name] = map[appthwack.Outcome]int{}
			}
			devices[c.Name][o] += len(c.Results)
		}
	}
	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}
	sort.Strings(names)

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Results by Device"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "300px",
			Width:  "100%",
		}),
	)
	bar.SetXAxis(names)
	for _, o := range appthwack.Outcomes {
		data := make([]opts.BarData, len(names))
		for i, name := range names {
			data[i] = opts.BarData{Value: devices[name][o]}
		}
		bar.AddSeries(string(o), data, charts.WithBarChartOpts(opts.BarChart{Stack: "outcome"}))
	}
	return bar
}

// performanceBar renders the min/avg/max of one metric per device.
func (g *Generator) performanceBar(metric string, records []database.PerformanceRecord) *charts.Bar {
	var devices []string
	var minData, avgData, maxData []opts.BarData
	for _, r := range records {
		if r.Metric != metric {
			continue
		}
		devices = append(devices, r.Device)
		minData = append(minData, opts.BarData{Value: r.MinValue})
		avgData = append(avgData, opts.BarData{Value: r.AvgValue})
		maxData = append(maxData, opts.BarData{Value: r.MaxValue})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: strings.ToUpper(metric[:1]) + metric[1:] + " by Device"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "250px",
			Width:  "100%",
		}),
	)
	bar.SetXAxis(devices).
		AddSeries("Min", minData).
		AddSeries("Avg", avgData).
		AddSeries("Max", maxData)
	return bar
}

func (g *Generator) passRateLine(data []database.DataPoint) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: "Pass Rate Trend"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithInitializationOpts(opts.Initialization{
			Height: "200px",
			Width:  "100%",
		}),
	)

	xAxis := make([]string, len(data))
	yAxis := make([]opts.LineData, len(data))

	for i, dp := range data {
		xAxis[i] = dp.Date.Format("Jan 02")
		yAxis[i] = opts.LineData{Value: dp.PassRate}
	}

	line.SetXAxis(xAxis).
		AddSeries("Pass Rate %", yAxis).
		SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return line
}

// Page renders a standalone HTML report for a result. Performance charts
// are added for every metric present in perf; the trend line only when
// trend has points.
func (g *Generator) Page(res *appthwack.Result, perf []database.PerformanceRecord, trend []database.DataPoint, w io.Writer) error {
	title := "Run Report"
	if res.Summary != nil && res.Summary.Name != "" {
		title = res.Summary.Name
	}
	page := components.NewPage()
	page.SetPageTitle(title)

	if res.Summary != nil {
		page.AddCharts(g.outcomePie(res.Summary))
	}
	page.AddCharts(g.deviceBar(res))

	seen := map[string]bool{}
	for _, r := range perf {
		if r.Metric == "" || seen[r.Metric] {
			continue
		}
		seen[r.Metric] = true
		page.AddCharts(g.performanceBar(r.Metric, perf))
	}
	if len(trend) > 0 {
		page.AddCharts(g.passRateLine(trend))
	}

	if err := page.Render(w); err != nil {
		return fmt.Errorf("failed to render report page: %w", err)
	}
	return nil
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// Sparkline draws values as one line of block characters, scaled between
// their minimum and maximum. Flat series sit on the lowest level.
func (g *Generator) Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	min, max := values[0], values[0]
	for _, v := range values {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	var b strings.Builder
	top := len(sparkLevels) - 1
	for _, v := range values {
		level := 0
		if max > min {
			level = int(math.Round((v - min) / (max - min) * float64(top)))
		}
		b.WriteRune(sparkLevels[level])
	}
	return b.String()
}
