package database

import (
	"sort"
	"sync"
	"time"
)

// MockDatabase keeps the archive in memory.
type MockDatabase struct {
	mu          sync.Mutex
	runs        []RunRecord
	testCases   []TestCase
	performance []PerformanceRecord
}

func NewMockDatabase() *MockDatabase {
	return &MockDatabase{
		runs:        []RunRecord{},
		testCases:   []TestCase{},
		performance: []PerformanceRecord{},
	}
}

func (db *MockDatabase) InsertRun(run RunRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if run.ArchivedAt.IsZero() {
		run.ArchivedAt = time.Now().UTC()
	}
	for i, r := range db.runs {
		if r.ProjectID == run.ProjectID && r.RunID == run.RunID {
			db.runs[i] = run
			return nil
		}
	}
	db.runs = append(db.runs, run)
	return nil
}

func (db *MockDatabase) InsertTestCase(tc TestCase) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, t := range db.testCases {
		if t.ProjectID == tc.ProjectID && t.RunID == tc.RunID && t.TestID == tc.TestID &&
			t.Outcome == tc.Outcome && t.Device == tc.Device {
			return nil
		}
	}
	db.testCases = append(db.testCases, tc)
	return nil
}

func (db *MockDatabase) InsertPerformance(p PerformanceRecord) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i, existing := range db.performance {
		if existing.ProjectID == p.ProjectID && existing.RunID == p.RunID &&
			existing.Device == p.Device && existing.Metric == p.Metric {
			db.performance[i] = p
			return nil
		}
	}
	db.performance = append(db.performance, p)
	return nil
}

func (db *MockDatabase) GetRun(projectID, runID int) (*RunRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, r := range db.runs {
		if r.ProjectID == projectID && r.RunID == runID {
			r := r
			return &r, nil
		}
	}
	return nil, nil
}

func (db *MockDatabase) RecentRuns(limit int) ([]RunRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	runs := append([]RunRecord(nil), db.runs...)
	sort.SliceStable(runs, func(i, j int) bool {
		return runs[i].ArchivedAt.After(runs[j].ArchivedAt)
	})
	if limit >= 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (db *MockDatabase) GetTestCases(projectID, runID int) ([]TestCase, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var tests []TestCase
	for _, t := range db.testCases {
		if t.ProjectID == projectID && t.RunID == runID {
			tests = append(tests, t)
		}
	}
	sort.SliceStable(tests, func(i, j int) bool {
		if tests[i].TestName != tests[j].TestName {
			return tests[i].TestName < tests[j].TestName
		}
		return tests[i].Device < tests[j].Device
	})
	return tests, nil
}

func (db *MockDatabase) GetPerformance(projectID, runID int) ([]PerformanceRecord, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	var records []PerformanceRecord
	for _, p := range db.performance {
		if p.ProjectID == projectID && p.RunID == runID {
			records = append(records, p)
		}
	}
	return records, nil
}

func (db *MockDatabase) GetPassRateTrend(projectID int, days int) ([]DataPoint, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	since := time.Now().UTC().AddDate(0, 0, -days)
	byDay := map[time.Time]*struct{ runs, passes, tests int }{}
	for _, r := range db.runs {
		if r.ProjectID != projectID || !r.ArchivedAt.After(since) {
			continue
		}
		day := r.ArchivedAt.UTC().Truncate(24 * time.Hour)
		agg, ok := byDay[day]
		if !ok {
			agg = &struct{ runs, passes, tests int }{}
			byDay[day] = agg
		}
		agg.runs++
		agg.passes += r.Passes
		agg.tests += r.Passes + r.Warnings + r.Failures
	}

	var points []DataPoint
	for day, agg := range byDay {
		p := DataPoint{Date: day, Count: agg.runs}
		if agg.tests > 0 {
			p.PassRate = float64(agg.passes) / float64(agg.tests) * 100
		}
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}

func (db *MockDatabase) GetFlakyTests(threshold float64) ([]FlakyTest, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	type runKey struct{ project, run int }
	archived := map[runKey]time.Time{}
	for _, r := range db.runs {
		archived[runKey{r.ProjectID, r.RunID}] = r.ArchivedAt
	}

	type stats struct {
		runs, failed, passed map[runKey]bool
		lastFailure          time.Time
	}
	byName := map[string]*stats{}
	for _, t := range db.testCases {
		key := runKey{t.ProjectID, t.RunID}
		at, ok := archived[key]
		if !ok {
			continue
		}
		s, ok := byName[t.TestName]
		if !ok {
			s = &stats{runs: map[runKey]bool{}, failed: map[runKey]bool{}, passed: map[runKey]bool{}}
			byName[t.TestName] = s
		}
		s.runs[key] = true
		switch t.Outcome {
		case "failure":
			s.failed[key] = true
			if at.After(s.lastFailure) {
				s.lastFailure = at
			}
		case "pass":
			s.passed[key] = true
		}
	}

	var tests []FlakyTest
	for name, s := range byName {
		if len(s.failed) == 0 || len(s.passed) == 0 {
			continue
		}
		ft := FlakyTest{
			TestName:    name,
			TotalRuns:   len(s.runs),
			FailedRuns:  len(s.failed),
			PassedRuns:  len(s.passed),
			FlakyScore:  float64(len(s.failed)) / float64(len(s.runs)),
			LastFailure: s.lastFailure,
		}
		if ft.FlakyScore >= threshold {
			tests = append(tests, ft)
		}
	}
	sortFlaky(tests)
	return tests, nil
}

func (db *MockDatabase) Close() error {
	return nil
}
