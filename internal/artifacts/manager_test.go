package artifacts

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/transport"
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, body := range files {
		f, err := w.Create(name)
		require.NoError(t, err)
		_, err = f.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestSaveAndGetCachedReport(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	key := Key(1, 128)
	assert.Equal(t, "project-1-run-128", key)

	dir, err := m.GetCachedReport(key)
	require.NoError(t, err)
	assert.Empty(t, dir)

	dir, err = m.SaveReport(key, zipOf(t, map[string]string{
		"index.html":        "<html></html>",
		"devices/nexus.log": "logcat",
	}))
	require.NoError(t, err)

	cached, err := m.GetCachedReport(key)
	require.NoError(t, err)
	assert.Equal(t, dir, cached)

	files, err := Files(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"index.html", "devices/nexus.log"}, files)
}

func TestSaveReportRejectsZipSlip(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	_, err := m.SaveReport("evil", zipOf(t, map[string]string{"../escape.txt": "x"}))
	assert.Error(t, err)

	_, err = os.Stat(filepath.Join(m.cacheDir, "evil"))
	assert.True(t, os.IsNotExist(err))
}

func TestSaveReportRejectsNonZip(t *testing.T) {
	m := NewManager(t.TempDir(), time.Hour)
	_, err := m.SaveReport("bad", []byte("not a zip"))
	assert.ErrorContains(t, err, "failed to read zip")
}

func TestExpiredEntriesArePruned(t *testing.T) {
	m := NewManager(t.TempDir(), time.Minute)
	dir, err := m.SaveReport("old", zipOf(t, map[string]string{"a.txt": "a"}))
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(dir, past, past))

	removed, err := m.Prune()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	cached, err := m.GetCachedReport("old")
	require.NoError(t, err)
	assert.Empty(t, cached)
}

type reportTransport struct {
	body      []byte
	downloads int
}

func (r *reportTransport) Get(context.Context, string, any) error { return nil }
func (r *reportTransport) Post(context.Context, string, transport.Form, any) error {
	return nil
}
func (r *reportTransport) PostFile(context.Context, string, transport.Form, *transport.FilePart, any) error {
	return nil
}
func (r *reportTransport) Download(_ context.Context, _ string, w io.Writer) error {
	r.downloads++
	_, err := io.Copy(w, bytes.NewReader(r.body))
	return err
}

func TestFetchDownloadsOnce(t *testing.T) {
	tr := &reportTransport{body: zipOf(t, map[string]string{"summary.txt": "17 failures"})}
	run := appthwack.NewSession(tr, "https://thwack.test").Run(1, 128)
	res := &appthwack.Result{Summary: &appthwack.ResultSummary{Status: appthwack.StatusCompleted, ReportFile: "reports/128.zip"}}
	m := NewManager(t.TempDir(), time.Hour)

	dir, err := m.Fetch(context.Background(), run, res)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(dir, "summary.txt"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "17"))

	again, err := m.Fetch(context.Background(), run, res)
	require.NoError(t, err)
	assert.Equal(t, dir, again)
	assert.Equal(t, 1, tr.downloads)
}

func TestFetchRequiresCompletedResult(t *testing.T) {
	tr := &reportTransport{}
	run := appthwack.NewSession(tr, "https://thwack.test").Run(1, 5)
	_, err := NewManager(t.TempDir(), time.Hour).Fetch(context.Background(), run, &appthwack.Result{})
	assert.ErrorIs(t, err, appthwack.ErrValidation)
	assert.Zero(t, tr.downloads)
}
