// Package database archives finished run results so they can be queried
// after the service has expired them.
package database

import (
	"time"
)

// RunRecord is the archived summary of one run.
type RunRecord struct {
	ProjectID   int
	RunID       int
	Name        string
	Status      string
	Result      string
	Passes      int
	Warnings    int
	Failures    int
	Errors      int
	MinutesUsed int
	ReportFile  string
	WebURL      string
	ArchivedAt  time.Time
}

// TestCase is one test result of a run on one device.
type TestCase struct {
	ProjectID int
	RunID     int
	TestID    int
	TestName  string
	Outcome   string
	Device    string
	Message   string
}

// PerformanceRecord is the min/avg/max of one metric on one device.
type PerformanceRecord struct {
	ProjectID int
	RunID     int
	Device    string
	Metric    string
	MinValue  float64
	AvgValue  float64
	MaxValue  float64
}

type DataPoint struct {
	Date     time.Time
	PassRate float64
	Count    int
}

type FlakyTest struct {
	TestName    string
	TotalRuns   int
	FailedRuns  int
	PassedRuns  int
	FlakyScore  float64
	LastFailure time.Time
}

type Database interface {
	InsertRun(run RunRecord) error
	InsertTestCase(tc TestCase) error
	InsertPerformance(p PerformanceRecord) error

	GetRun(projectID, runID int) (*RunRecord, error)
	GetTestCases(projectID, runID int) ([]TestCase, error)
	GetPerformance(projectID, runID int) ([]PerformanceRecord, error)
	RecentRuns(limit int) ([]RunRecord, error)

	GetPassRateTrend(projectID int, days int) ([]DataPoint, error)
	GetFlakyTests(threshold float64) ([]FlakyTest, error)

	Close() error
}
