package thwackbin

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/appthwack/thwack/internal/appthwack"
)

// Outcome describes how a generated run turns out.
type Outcome struct {
	Passes   int
	Warnings int
	Failures int
	// Count and Completed default to the number of tests.
	Count     int
	Completed int
	Devices   []string
	// Unstaged leaves report_file empty, as the service does for a while
	// after a run completes.
	Unstaged bool
}

func pendingSummary(r *Run) *appthwack.ResultSummary {
	return &appthwack.ResultSummary{
		ID:        r.ID,
		Status:    r.Status,
		Name:      r.Name,
		Initiator: "thwackbin",
		StartTime: r.CreatedAt.Format("15:04"),
		StartDate: r.CreatedAt.Format("2006-01-02"),
	}
}

// buildResult spreads the outcome's tests over its devices round robin and
// groups them by job, by type and by device.
func buildResult(r *Run, o Outcome) *appthwack.Result {
	devices := o.Devices
	if len(devices) == 0 {
		devices = []string{"Nexus 5"}
	}

	total := o.Passes + o.Warnings + o.Failures
	summary := pendingSummary(r)
	summary.Status = appthwack.StatusCompleted
	summary.Passes = o.Passes
	summary.Warnings = o.Warnings
	summary.Failures = o.Failures
	summary.Count = total
	summary.Completed = total
	if o.Count > 0 {
		summary.Count = o.Count
	}
	if o.Completed > 0 {
		summary.Completed = o.Completed
	}
	summary.MinutesUsed = len(devices) * 2
	summary.PublicURL = fmt.Sprintf("public/%d/%d", r.ProjectID, r.ID)
	summary.Result = "pass"
	if o.Warnings > 0 {
		summary.Result = "warning"
	}
	if o.Failures > 0 {
		summary.Result = "fail"
	}

	res := &appthwack.Result{Summary: summary}
	next := 1000 * r.ID
	for _, axis := range []struct {
		outcome appthwack.Outcome
		n       int
		message string
	}{
		{appthwack.OutcomePass, o.Passes, "passed"},
		{appthwack.OutcomeWarning, o.Warnings, "slow response"},
		{appthwack.OutcomeFailure, o.Failures, "assertion failed"},
	} {
		if axis.n == 0 {
			continue
		}
		job := &appthwack.ResultContainer{ID: appthwack.ContainerID(r.Name), Name: r.Name, Description: string(axis.outcome)}
		typ := &appthwack.ResultContainer{ID: appthwack.ContainerID(r.Kind), Name: string(r.Kind)}
		byDevice := make([]*appthwack.ResultContainer, len(devices))
		for i, d := range devices {
			byDevice[i] = &appthwack.ResultContainer{ID: appthwack.ContainerID(strconv.Itoa(i + 1)), Name: d}
		}
		for i := 0; i < axis.n; i++ {
			next++
			t := &appthwack.TestResult{
				ID:      next,
				Name:    fmt.Sprintf("test%s%d", axis.outcome, i+1),
				Message: axis.message,
			}
			job.Results = append(job.Results, t)
			typ.Results = append(typ.Results, t)
			dev := byDevice[i%len(devices)]
			dev.Results = append(dev.Results, t)
		}
		var devicesWithResults []*appthwack.ResultContainer
		for _, d := range byDevice {
			if len(d.Results) > 0 {
				devicesWithResults = append(devicesWithResults, d)
			}
		}
		set := []*appthwack.ResultContainer{job}
		switch axis.outcome {
		case appthwack.OutcomePass:
			res.PassesByJob, res.PassesByType, res.PassesByDevice = set, []*appthwack.ResultContainer{typ}, devicesWithResults
		case appthwack.OutcomeWarning:
			res.WarningsByJob, res.WarningsByType, res.WarningsByDevice = set, []*appthwack.ResultContainer{typ}, devicesWithResults
		case appthwack.OutcomeFailure:
			res.FailuresByJob, res.FailuresByType, res.FailuresByDevice = set, []*appthwack.ResultContainer{typ}, devicesWithResults
		}
	}

	res.Performance, res.PerformanceSummary = buildPerformance(devices)
	return res
}

func buildPerformance(devices []string) ([]*appthwack.PerformanceResultContainer, *appthwack.PerformanceSummary) {
	entry := func(name string, v float64) *appthwack.PerformanceEntry {
		return &appthwack.PerformanceEntry{Name: name, Value: strconv.FormatFloat(v, 'f', -1, 64), Timestamp: "0"}
	}
	triple := func(name string, base float64) *appthwack.PerformanceResult {
		return &appthwack.PerformanceResult{Min: entry(name, base), Avg: entry(name, base*2), Max: entry(name, base*3)}
	}

	var perf []*appthwack.PerformanceResultContainer
	var first, last *appthwack.Device
	for i, name := range devices {
		d := &appthwack.Device{ID: i + 1, Name: name, OSVersion: "4.4"}
		if first == nil {
			first = d
		}
		last = d
		base := float64(i + 1)
		perf = append(perf, &appthwack.PerformanceResultContainer{
			Device:  d,
			CPU:     triple("cpu", 10*base),
			Memory:  triple("memory", 1024*base),
			Threads: triple("threads", 5*base),
		})
	}
	n := float64(len(devices))
	value := func(d *appthwack.Device, v float64) *appthwack.PerformanceResultSummary {
		return &appthwack.PerformanceResultSummary{Device: d, Value: strconv.FormatFloat(v, 'f', -1, 64)}
	}
	summary := &appthwack.PerformanceSummary{
		CPUMin:     value(first, 10),
		CPUAvg:     value(first, 10*(n+1)),
		CPUMax:     value(last, 30*n),
		MemoryMin:  value(first, 1024),
		MemoryAvg:  value(first, 1024*(n+1)),
		MemoryMax:  value(last, 3072*n),
		ThreadsMin: value(first, 5),
		ThreadsAvg: value(first, 5*(n+1)),
		ThreadsMax: value(last, 15*n),
		FPSMin:     value(last, 42),
		FPSAvg:     value(first, 55),
		FPSMax:     value(first, 60),
	}
	return perf, summary
}

// buildReport packs the result of a run into the zip archive served as
// its report file.
func buildReport(r *Run, res *appthwack.Result) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	results, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	s := res.Summary
	files := []struct {
		name string
		body []byte
	}{
		{"results.json", results},
		{"summary.txt", []byte(fmt.Sprintf("%s\npasses: %d\nwarnings: %d\nfailures: %d\n", r.Name, s.Passes, s.Warnings, s.Failures))},
	}
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: zip.Deflate, Modified: time.Now().UTC()})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(f.body); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
