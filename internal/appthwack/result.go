package appthwack

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Status is the lifecycle state the service reports for a run. The set is
// open: values other than the constants below may appear.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
)

func (s Status) String() string { return string(s) }

// Outcome is one of the three result axes.
type Outcome string

const (
	OutcomePass    Outcome = "pass"
	OutcomeWarning Outcome = "warning"
	OutcomeFailure Outcome = "failure"
)

// Outcomes lists the axes in the order the service reports them.
var Outcomes = []Outcome{OutcomePass, OutcomeWarning, OutcomeFailure}

// Result is the aggregation tree of one run: every outcome grouped by job,
// by test type and by device, plus performance data and a summary.
type Result struct {
	PassesByJob    []*ResultContainer `json:"passes_by_job"`
	PassesByType   []*ResultContainer `json:"passes_by_type"`
	PassesByDevice []*ResultContainer `json:"passes_by_device"`

	WarningsByJob    []*ResultContainer `json:"warnings_by_job"`
	WarningsByType   []*ResultContainer `json:"warnings_by_type"`
	WarningsByDevice []*ResultContainer `json:"warnings_by_device"`

	FailuresByJob    []*ResultContainer `json:"failures_by_job"`
	FailuresByType   []*ResultContainer `json:"failures_by_type"`
	FailuresByDevice []*ResultContainer `json:"failures_by_device"`

	PerformanceSummary *PerformanceSummary           `json:"performance_summary"`
	Performance        []*PerformanceResultContainer `json:"performance"`

	Summary *ResultSummary `json:"summary"`

	run    *Run
	webURL string
}

// attach links every node of the tree to run. Absent lists are skipped.
func (r *Result) attach(run *Run) {
	r.run = run
	r.webURL = run.WebURL()
	if r.Summary != nil {
		r.Summary.attach(run)
	}
	for _, o := range Outcomes {
		for _, list := range r.Group(o).lists() {
			for _, c := range list {
				if c != nil {
					c.attach(run)
				}
			}
		}
	}
}

// Run returns the run this result was fetched for.
func (r *Result) Run() *Run { return r.run }

// WebURL is the run overview page; results have no page of their own.
func (r *Result) WebURL() string { return r.webURL }

// IsCompleted reports whether the run finished and its report archive is
// ready to download.
func (r *Result) IsCompleted() bool {
	return r.Summary != nil &&
		r.Summary.Status == StatusCompleted &&
		r.Summary.ReportFile != ""
}

// Group returns the three groupings of one outcome.
func (r *Result) Group(o Outcome) Grouping {
	switch o {
	case OutcomePass:
		return Grouping{ByJob: r.PassesByJob, ByType: r.PassesByType, ByDevice: r.PassesByDevice}
	case OutcomeWarning:
		return Grouping{ByJob: r.WarningsByJob, ByType: r.WarningsByType, ByDevice: r.WarningsByDevice}
	case OutcomeFailure:
		return Grouping{ByJob: r.FailuresByJob, ByType: r.FailuresByType, ByDevice: r.FailuresByDevice}
	}
	return Grouping{}
}

func (r *Result) String() string {
	if r.Summary == nil {
		return "<no summary>"
	}
	return r.Summary.String()
}

// Grouping holds the same set of test results arranged three ways.
type Grouping struct {
	ByJob    []*ResultContainer
	ByType   []*ResultContainer
	ByDevice []*ResultContainer
}

func (g Grouping) lists() [][]*ResultContainer {
	return [][]*ResultContainer{g.ByJob, g.ByType, g.ByDevice}
}

// Count is the number of test results in the largest arrangement. The three
// arrangements agree once a run has completed.
func (g Grouping) Count() int {
	n := 0
	for _, list := range g.lists() {
		if c := CountResults(list); c > n {
			n = c
		}
	}
	return n
}

// Consistent reports whether every populated arrangement holds the same
// number of test results.
func (g Grouping) Consistent() bool {
	want := -1
	for _, list := range g.lists() {
		if list == nil {
			continue
		}
		c := CountResults(list)
		if want >= 0 && c != want {
			return false
		}
		want = c
	}
	return true
}

// CountResults sums the test results held by containers.
func CountResults(containers []*ResultContainer) int {
	n := 0
	for _, c := range containers {
		if c != nil {
			n += len(c.Results)
		}
	}
	return n
}

// ResultSummary carries the counts, status and report reference of a run.
type ResultSummary struct {
	ID        int    `json:"id"`
	Status    Status `json:"status"`
	Count     int    `json:"count"`
	Completed int    `json:"completed"`
	Name      string `json:"name"`
	Initiator string `json:"initiator"`
	Result    string `json:"result"`

	Failures int `json:"failure_count"`
	Errors   int `json:"error_count"`
	Passes   int `json:"pass_count"`
	Warnings int `json:"warning_count"`

	StartTime   string `json:"start_time"`
	StartDate   string `json:"start_date"`
	ReportFile  string `json:"report_file"`
	PublicURL   string `json:"public_url"`
	MinutesUsed int    `json:"minutes_used"`

	run    *Run
	webURL string
}

func (s *ResultSummary) attach(run *Run) {
	s.run = run
	s.webURL = run.WebURL()
}

func (s *ResultSummary) Run() *Run { return s.run }
func (s *ResultSummary) WebURL() string { return s.webURL }

func (s *ResultSummary) String() string {
	return fmt.Sprintf("[%d] (%s) %s by %s => %s", s.ID, s.Status, s.Name, s.Initiator, s.Result)
}

// ContainerID identifies a grouping. The service sends it as a string for
// job and type groupings and as a number for device groupings.
type ContainerID string

func (id *ContainerID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ContainerID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("container id: %w", err)
	}
	*id = ContainerID(n.String())
	return nil
}

// ResultContainer is one group of test results: a job, a test type or a
// device.
type ResultContainer struct {
	ID          ContainerID   `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Results     []*TestResult `json:"results"`

	run    *Run
	webURL string
}

func (c *ResultContainer) attach(run *Run) {
	c.run = run
	c.webURL = fmt.Sprintf("%s/device/%s", run.WebURL(), c.ID)
	for _, t := range c.Results {
		if t != nil {
			t.attach(run)
		}
	}
}

func (c *ResultContainer) Run() *Run { return c.run }
func (c *ResultContainer) WebURL() string { return c.webURL }

func (c *ResultContainer) String() string {
	return fmt.Sprintf("[%s] %s %s", c.ID, c.Name, c.Description)
}

// TestResult is a single test or assertion outcome.
type TestResult struct {
	ID          int    `json:"id"`
	Name        string `json:"name"`
	Message     string `json:"message"`
	Description string `json:"description"`

	run    *Run
	webURL string
}

func (t *TestResult) attach(run *Run) {
	t.run = run
	t.webURL = fmt.Sprintf("%s/jobrun/%d", run.WebURL(), t.ID)
}

func (t *TestResult) Run() *Run { return t.run }
func (t *TestResult) WebURL() string { return t.webURL }

func (t *TestResult) String() string {
	return fmt.Sprintf("[%d] %s %s", t.ID, t.Name, t.Message)
}

type Device struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	OSVersion string `json:"os_version"`
}

func (d *Device) String() string {
	return fmt.Sprintf("[%d] %s (%s)", d.ID, d.Name, d.OSVersion)
}

// PerformanceEntry is one performance sample. Value is kept as sent.
type PerformanceEntry struct {
	Name      string `json:"name"`
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// Float parses Value.
func (e *PerformanceEntry) Float() (float64, error) {
	return parseSample(e.Value)
}

func (e *PerformanceEntry) String() string {
	return fmt.Sprintf("%s => %s", e.Name, e.Value)
}

type PerformanceResult struct {
	Min *PerformanceEntry `json:"min"`
	Max *PerformanceEntry `json:"max"`
	Avg *PerformanceEntry `json:"avg"`
}

func (p *PerformanceResult) String() string {
	return fmt.Sprintf("%s < %s < %s", p.Min, p.Avg, p.Max)
}

// PerformanceResultContainer holds the samples of one device.
type PerformanceResultContainer struct {
	Threads *PerformanceResult `json:"threads"`
	CPU     *PerformanceResult `json:"cpu"`
	Memory  *PerformanceResult `json:"memory"`
	Device  *Device            `json:"device"`
}

func (p *PerformanceResultContainer) String() string {
	name := ""
	if p.Device != nil {
		name = p.Device.Name
	}
	return fmt.Sprintf("[%s] Threads: (%s) CPU: (%s) Memory: (%s)", name, p.Threads, p.CPU, p.Memory)
}

// PerformanceResultSummary names the device that produced an extreme or
// average value.
type PerformanceResultSummary struct {
	Device *Device `json:"device"`
	Value  string  `json:"value"`
}

func (p *PerformanceResultSummary) Float() (float64, error) {
	return parseSample(p.Value)
}

func (p *PerformanceResultSummary) String() string {
	name := ""
	if p.Device != nil {
		name = p.Device.Name
	}
	return fmt.Sprintf("%s => %s", name, p.Value)
}

type PerformanceSummary struct {
	CPUMin *PerformanceResultSummary `json:"CPU_min"`
	CPUMax *PerformanceResultSummary `json:"CPU_max"`
	CPUAvg *PerformanceResultSummary `json:"CPU_avg"`

	ThreadsMin *PerformanceResultSummary `json:"Threads_min"`
	ThreadsMax *PerformanceResultSummary `json:"Threads_max"`
	ThreadsAvg *PerformanceResultSummary `json:"Threads_avg"`

	MemoryMin *PerformanceResultSummary `json:"Memory_min"`
	MemoryMax *PerformanceResultSummary `json:"Memory_max"`
	MemoryAvg *PerformanceResultSummary `json:"Memory_avg"`

	DrawMin *PerformanceResultSummary `json:"AvgFrameDrawTime_min"`
	DrawMax *PerformanceResultSummary `json:"AvgFrameDrawTime_max"`
	DrawAvg *PerformanceResultSummary `json:"AvgFrameDrawTime_avg"`

	FPSMin *PerformanceResultSummary `json:"FPS_min"`
	FPSMax *PerformanceResultSummary `json:"FPS_max"`
	FPSAvg *PerformanceResultSummary `json:"FPS_avg"`
}

// MetricStats is the min/avg/max triple of one metric. Any of the three may
// be nil.
type MetricStats struct {
	Metric string
	Min    *PerformanceResultSummary
	Avg    *PerformanceResultSummary
	Max    *PerformanceResultSummary
}

// Metrics returns the summary as one entry per metric, in a fixed order.
func (p *PerformanceSummary) Metrics() []MetricStats {
	return []MetricStats{
		{Metric: "CPU", Min: p.CPUMin, Avg: p.CPUAvg, Max: p.CPUMax},
		{Metric: "Threads", Min: p.ThreadsMin, Avg: p.ThreadsAvg, Max: p.ThreadsMax},
		{Metric: "Memory", Min: p.MemoryMin, Avg: p.MemoryAvg, Max: p.MemoryMax},
		{Metric: "AvgFrameDrawTime", Min: p.DrawMin, Avg: p.DrawAvg, Max: p.DrawMax},
		{Metric: "FPS", Min: p.FPSMin, Avg: p.FPSAvg, Max: p.FPSMax},
	}
}

func (p *PerformanceSummary) String() string {
	return fmt.Sprintf("Threads: (%s, %s, %s) CPU: (%s, %s, %s) Memory: (%s, %s, %s)",
		p.ThreadsMin, p.ThreadsAvg, p.ThreadsMax, p.CPUMin, p.CPUAvg, p.CPUMax, p.MemoryMin, p.MemoryAvg, p.MemoryMax)
}

func parseSample(v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid performance value %q: %w", v, err)
	}
	return f, nil
}
