package thwackbin

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/observability"
	"github.com/appthwack/thwack/internal/transport"
)

const testKey = "secret-key"

func startServer(t *testing.T) (*Server, *appthwack.Session, *httptest.Server) {
	t.Helper()
	store := NewStore()
	require.NoError(t, Seed(store))
	srv := NewServer(store, testKey, zerolog.Nop(), observability.NewMetrics())
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, appthwack.Connect(testKey, ts.URL, "/api"), ts
}

func TestRequiresAPIKey(t *testing.T) {
	_, _, ts := startServer(t)

	resp, err := http.Get(ts.URL + "/api/project")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, err = appthwack.Connect("wrong", ts.URL, "/api").Projects(context.Background())
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusUnauthorized, terr.StatusCode)
}

func TestSeededLookups(t *testing.T) {
	_, session, _ := startServer(t)
	ctx := context.Background()

	p, err := session.ProjectByName(ctx, "my project")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, 1, p.ID)

	byID, err := p.DevicePoolByID(ctx, 15)
	require.NoError(t, err)
	byName, err := p.DevicePoolByName(ctx, "The Usual Suspects")
	require.NoError(t, err)
	require.NotNil(t, byID)
	require.NotNil(t, byName)
	assert.Equal(t, byID.ID, byName.ID)

	missing, err := p.DevicePoolByID(ctx, 999)
	require.NoError(t, err)
	assert.Nil(t, missing)

	res, err := session.Run(9, 1).Results(ctx)
	assert.Nil(t, res)
	assert.True(t, transport.IsNotFound(err))
}

func TestSeededRunResults(t *testing.T) {
	_, session, ts := startServer(t)
	run := session.Run(1, 128)

	res, err := run.Results(context.Background())
	require.NoError(t, err)
	require.NotNil(t, res.Summary)
	assert.True(t, res.IsCompleted())
	assert.Equal(t, 17, res.Summary.Failures)
	assert.Equal(t, 23, res.Summary.Passes)
	assert.Equal(t, 40, res.Summary.Count)
	assert.Equal(t, 36, res.Summary.Completed)
	assert.Equal(t, "fail", res.Summary.Result)

	for _, o := range appthwack.Outcomes {
		assert.True(t, res.Group(o).Consistent(), o)
	}
	assert.Equal(t, 23, res.Group(appthwack.OutcomePass).Count())
	assert.Len(t, res.PassesByDevice, 2)

	leaf := res.FailuresByJob[0].Results[0]
	assert.Same(t, run, leaf.Run())
	assert.True(t, strings.HasPrefix(leaf.WebURL(), ts.URL+"/project/1/run/128/jobrun/"))
}

func TestScheduleAndWaitForCompletion(t *testing.T) {
	srv, session, _ := startServer(t)
	srv.Store().AutoAdvance = true
	ctx := context.Background()

	app, err := session.Upload(ctx, "app.apk", strings.NewReader("apk"))
	require.NoError(t, err)
	tests, err := session.Upload(ctx, "tests.apk", strings.NewReader("tests"))
	require.NoError(t, err)

	p, err := session.ProjectByID(ctx, 1)
	require.NoError(t, err)
	pool, err := p.DevicePoolByName(ctx, "the usual suspects")
	require.NoError(t, err)

	run, err := p.Schedule(ctx, "Smoke", pool, appthwack.JUnit{App: app, TestApp: tests})
	require.NoError(t, err)
	assert.Equal(t, "Smoke", run.Name)

	stored, err := srv.Store().Run(1, run.ID)
	require.NoError(t, err)
	assert.Equal(t, appthwack.KindJUnit, stored.Kind)
	assert.Equal(t, 15, stored.PoolID)

	partial, err := run.Results(ctx)
	require.NoError(t, err)
	assert.False(t, partial.IsCompleted())

	status, err := run.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, appthwack.StatusRunning, status)
	status, err = run.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, appthwack.StatusCompleted, status)

	res, err := run.Results(ctx)
	require.NoError(t, err)
	require.True(t, res.IsCompleted())
	assert.Equal(t, 3, res.Summary.Passes)

	dir := t.TempDir()
	require.NoError(t, run.DownloadResults(ctx, res, dir))
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"results.json", "summary.txt"}, names)
}

func TestScheduleRejectedByService(t *testing.T) {
	_, session, _ := startServer(t)
	ctx := context.Background()
	p, err := session.ProjectByID(ctx, 1)
	require.NoError(t, err)

	_, err = p.Schedule(ctx, "Smoke", appthwack.NewDevicePool(15, ""), appthwack.JUnit{App: appthwack.NewFile(1), TestApp: appthwack.NewFile(404)})
	var terr *transport.Error
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
	assert.Contains(t, terr.Body, "junit file 404")

	_, err = p.Schedule(ctx, "Smoke", appthwack.NewDevicePool(99, ""), appthwack.KIF{App: appthwack.NewFile(1)})
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, http.StatusBadRequest, terr.StatusCode)
}

func TestWebRunRejectsPool(t *testing.T) {
	store := NewStore()
	require.NoError(t, Seed(store))

	_, err := store.CreateRun(map[string]string{"project": "2", "name": "site", "app": "https://example.com", "pool": "15"})
	assert.ErrorIs(t, err, ErrInvalid)

	run, err := store.CreateRun(map[string]string{"project": "2", "name": "site", "app": "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, appthwack.KindWeb, run.Kind)
}

func TestUnstagedReport(t *testing.T) {
	store := NewStore()
	require.NoError(t, Seed(store))
	run, err := store.CreateRun(map[string]string{"project": "1", "name": "late", "app": "1"})
	require.NoError(t, err)
	require.NoError(t, store.Complete(1, run.ID, Outcome{Passes: 1, Unstaged: true}))

	res, err := store.Result(1, run.ID)
	require.NoError(t, err)
	assert.Equal(t, appthwack.StatusCompleted, res.Summary.Status)
	assert.False(t, res.IsCompleted())
}

func TestMetricsEndpoint(t *testing.T) {
	_, session, ts := startServer(t)
	_, err := session.Projects(context.Background())
	require.NoError(t, err)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `thwackbin_requests_served_total{code="200",route="/api/project"} 1`)
}
