package database

import (
	"fmt"
	"sort"

	"github.com/appthwack/thwack/internal/appthwack"
)

// Records flattens a fetched result into archive rows. Test cases come from
// the by-device grouping of each outcome, or the by-job grouping when the
// service sent no device breakdown. Performance samples that do not parse
// as numbers are skipped.
func Records(run *appthwack.Run, res *appthwack.Result) (RunRecord, []TestCase, []PerformanceRecord) {
	rec := RunRecord{
		ProjectID: run.ProjectID,
		RunID:     run.ID,
		Name:      run.Name,
		WebURL:    run.WebURL(),
	}
	if s := res.Summary; s != nil {
		if s.Name != "" {
			rec.Name = s.Name
		}
		rec.Status = string(s.Status)
		rec.Result = s.Result
		rec.Passes = s.Passes
		rec.Warnings = s.Warnings
		rec.Failures = s.Failures
		rec.Errors = s.Errors
		rec.MinutesUsed = s.MinutesUsed
		rec.ReportFile = s.ReportFile
	}

	var cases []TestCase
	for _, o := range appthwack.Outcomes {
		g := res.Group(o)
		containers, byDevice := g.ByDevice, true
		if len(containers) == 0 {
			containers, byDevice = g.ByJob, false
		}
		for _, c := range containers {
			if c == nil {
				continue
			}
			device := ""
			if byDevice {
				device = c.Name
			}
			for _, t := range c.Results {
				if t == nil {
					continue
				}
				cases = append(cases, TestCase{
					ProjectID: run.ProjectID,
					RunID:     run.ID,
					TestID:    t.ID,
					TestName:  t.Name,
					Outcome:   string(o),
					Device:    device,
					Message:   t.Message,
				})
			}
		}
	}

	var perf []PerformanceRecord
	for _, p := range res.Performance {
		if p == nil || p.Device == nil {
			continue
		}
		for _, m := range []struct {
			name string
			r    *appthwack.PerformanceResult
		}{{"cpu", p.CPU}, {"memory", p.Memory}, {"threads", p.Threads}} {
			rec, ok := performanceRecord(m.r)
			if !ok {
				continue
			}
			rec.ProjectID = run.ProjectID
			rec.RunID = run.ID
			rec.Device = p.Device.Name
			rec.Metric = m.name
			perf = append(perf, rec)
		}
	}

	return rec, cases, perf
}

// Store archives res under run.
func Store(db Database, run *appthwack.Run, res *appthwack.Result) error {
	rec, cases, perf := Records(run, res)
	if err := db.InsertRun(rec); err != nil {
		return fmt.Errorf("failed to insert run %d: %w", run.ID, err)
	}
	for _, tc := range cases {
		if err := db.InsertTestCase(tc); err != nil {
			return fmt.Errorf("failed to insert test case %d: %w", tc.TestID, err)
		}
	}
	for _, p := range perf {
		if err := db.InsertPerformance(p); err != nil {
			return fmt.Errorf("failed to insert %s performance: %w", p.Metric, err)
		}
	}
	return nil
}

func performanceRecord(r *appthwack.PerformanceResult) (PerformanceRecord, bool) {
	if r == nil || r.Min == nil || r.Avg == nil || r.Max == nil {
		return PerformanceRecord{}, false
	}
	var rec PerformanceRecord
	var err error
	if rec.MinValue, err = r.Min.Float(); err != nil {
		return rec, false
	}
	if rec.AvgValue, err = r.Avg.Float(); err != nil {
		return rec, false
	}
	if rec.MaxValue, err = r.Max.Float(); err != nil {
		return rec, false
	}
	return rec, true
}

func sortFlaky(tests []FlakyTest) {
	sort.Slice(tests, func(i, j int) bool {
		if tests[i].FlakyScore != tests[j].FlakyScore {
			return tests[i].FlakyScore > tests[j].FlakyScore
		}
		return tests[i].LastFailure.After(tests[j].LastFailure)
	})
}
