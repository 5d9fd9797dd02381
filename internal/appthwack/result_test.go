package appthwack

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fetchResult(t *testing.T) (*fakeTransport, *Run, *Result) {
	t.Helper()
	body, err := os.ReadFile(filepath.Join("testdata", "result.json"))
	require.NoError(t, err)

	tr := newFakeTransport()
	tr.responses["GET run/1/128"] = string(body)
	run := tr.session().Run(1, 128)
	res, err := run.Results(context.Background())
	require.NoError(t, err)
	return tr, run, res
}

func TestResultsBackLinkEveryNode(t *testing.T) {
	_, run, res := fetchResult(t)
	prefix := run.WebURL()

	assert.Same(t, run, res.Run())
	assert.Equal(t, prefix, res.WebURL())
	assert.Same(t, run, res.Summary.Run())
	assert.Equal(t, prefix, res.Summary.WebURL())

	leaves := 0
	for _, o := range Outcomes {
		g := res.Group(o)
		for _, list := range [][]*ResultContainer{g.ByJob, g.ByType, g.ByDevice} {
			for _, c := range list {
				assert.Same(t, run, c.Run())
				assert.True(t, strings.HasPrefix(c.WebURL(), prefix+"/device/"), c.WebURL())
				for _, leaf := range c.Results {
					leaves++
					assert.Same(t, run, leaf.Run())
					assert.Equal(t, prefix+"/jobrun/"+itoa(leaf.ID), leaf.WebURL())
				}
			}
		}
	}
	assert.Equal(t, 9, leaves)
	assert.Equal(t, prefix+"/device/31", res.PassesByDevice[0].WebURL())
	assert.Equal(t, ContainerID("login"), res.PassesByJob[0].ID)
}

func TestResultGroupingsAgree(t *testing.T) {
	_, _, res := fetchResult(t)

	pass := res.Group(OutcomePass)
	assert.True(t, pass.Consistent())
	assert.Equal(t, 2, pass.Count())

	fail := res.Group(OutcomeFailure)
	assert.True(t, fail.Consistent())
	assert.Equal(t, 1, fail.Count())

	warn := res.Group(OutcomeWarning)
	assert.True(t, warn.Consistent())
	assert.Zero(t, warn.Count())

	broken := Grouping{
		ByJob:  pass.ByJob,
		ByType: fail.ByType,
	}
	assert.False(t, broken.Consistent())
}

func TestResultsToleratesPartialTree(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["GET run/1/5"] = `{"passes_by_job": [{"id": "a", "results": [{"id": 1}]}], "summary": {"status": "running"}}`
	run := tr.session().Run(1, 5)

	res, err := run.Results(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.FailuresByDevice)
	assert.Same(t, run, res.PassesByJob[0].Results[0].Run())
	assert.False(t, res.IsCompleted())
	assert.Equal(t, Status("running"), res.Summary.Status)
}

func TestResultsWithoutSummary(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["GET run/1/6"] = `{"failures_by_type": null}`

	res, err := tr.session().Run(1, 6).Results(context.Background())
	require.NoError(t, err)
	assert.Nil(t, res.Summary)
	assert.False(t, res.IsCompleted())
	assert.Equal(t, "<no summary>", res.String())
}

func TestIsCompleted(t *testing.T) {
	tests := []struct {
		name    string
		summary *ResultSummary
		want    bool
	}{
		{"no summary", nil, false},
		{"completed with report", &ResultSummary{Status: StatusCompleted, ReportFile: "r.zip"}, true},
		{"completed without report", &ResultSummary{Status: StatusCompleted}, false},
		{"running with report", &ResultSummary{Status: StatusRunning, ReportFile: "r.zip"}, false},
		{"pending", &ResultSummary{Status: StatusPending}, false},
		{"unknown status", &ResultSummary{Status: "archived", ReportFile: "r.zip"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, (&Result{Summary: tt.summary}).IsCompleted())
		})
	}
}

func TestIsCompletedComparesByValue(t *testing.T) {
	var s ResultSummary
	require.NoError(t, json.Unmarshal([]byte(`{"status": "completed", "report_file": "r.zip"}`), &s))
	assert.True(t, (&Result{Summary: &s}).IsCompleted())
}

func TestPerformance(t *testing.T) {
	_, _, res := fetchResult(t)
	require.NotNil(t, res.PerformanceSummary)

	metrics := res.PerformanceSummary.Metrics()
	require.Len(t, metrics, 5)
	assert.Equal(t, "CPU", metrics[0].Metric)
	v, err := metrics[0].Max.Float()
	require.NoError(t, err)
	assert.Equal(t, 88.0, v)
	assert.Equal(t, "Galaxy S4", metrics[0].Max.Device.Name)
	assert.Nil(t, metrics[1].Min)

	require.Len(t, res.Performance, 1)
	perf := res.Performance[0]
	assert.Equal(t, "4.4", perf.Device.OSVersion)
	assert.Equal(t, "cpu => 3.5 < cpu => 41.2 < cpu => 80", perf.CPU.String())

	_, err = (&PerformanceEntry{Value: "n/a"}).Float()
	assert.Error(t, err)
}

func TestSummaryAndStatus(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["GET run/1/128/status"] = `{"id": 128, "status": "queued", "name": "Smoke", "initiator": "ci", "result": ""}`
	run := tr.session().Run(1, 128)

	status, err := run.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Status("queued"), status)

	summary, err := run.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "[128] (queued) Smoke by ci => ", summary.String())
	assert.Same(t, run, summary.Run())
	assert.Empty(t, run.Name)
}

func TestDownloadResults(t *testing.T) {
	tr, run, res := fetchResult(t)
	tr.downloads["https://thwack.test/reports/128.zip"] = "zipdata"
	dir := t.TempDir()

	require.NoError(t, run.DownloadResults(context.Background(), res, dir))
	data, err := os.ReadFile(filepath.Join(dir, "128.zip"))
	require.NoError(t, err)
	assert.Equal(t, "zipdata", string(data))

	dest := filepath.Join(dir, "named.zip")
	require.NoError(t, run.DownloadResults(context.Background(), res, dest))
	_, err = os.Stat(dest)
	assert.NoError(t, err)
}

func TestDownloadResultsRequiresCompletion(t *testing.T) {
	tr := newFakeTransport()
	run := tr.session().Run(1, 5)
	res := &Result{Summary: &ResultSummary{Status: StatusRunning}}

	err := run.DownloadResults(context.Background(), res, t.TempDir())
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, tr.calls)
}

func TestDownloadResultsRemovesPartialFile(t *testing.T) {
	tr := newFakeTransport()
	run := tr.session().Run(1, 5)
	res := &Result{Summary: &ResultSummary{Status: StatusCompleted, ReportFile: "reports/5.zip"}}
	dest := filepath.Join(t.TempDir(), "out.zip")

	err := run.DownloadResults(context.Background(), res, dest)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
}

func TestContainerIDAcceptsNumbers(t *testing.T) {
	var c ResultContainer
	require.NoError(t, json.Unmarshal([]byte(`{"id": 31, "name": "Nexus 5"}`), &c))
	assert.Equal(t, ContainerID("31"), c.ID)
	assert.Equal(t, "[31] Nexus 5 ", c.String())
}
