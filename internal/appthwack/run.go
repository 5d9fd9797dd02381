package appthwack

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path"
	"path/filepath"
)

type runData struct {
	RunID int    `json:"run_id"`
	ID    int    `json:"id"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// Run is a scheduled or previously scheduled run. Name and URL are only set
// on runs returned by Schedule.
type Run struct {
	ID        int
	ProjectID int
	Name      string
	URL       string

	session *Session
}

func newRun(s *Session, projectID int, d runData) *Run {
	id := d.RunID
	if id == 0 {
		id = d.ID
	}
	return &Run{ID: id, ProjectID: projectID, Name: d.Name, URL: d.URL, session: s}
}

func (r *Run) sess() *Session {
	if r == nil || r.session == nil {
		panic("appthwack: Run was not obtained from a Session")
	}
	return r.session
}

// Path is the resource path of the run relative to the API root.
func (r *Run) Path() string {
	return fmt.Sprintf("run/%d/%d", r.ProjectID, r.ID)
}

func (r *Run) WebURL() string {
	return fmt.Sprintf("%s/project/%d/run/%d", r.sess().domain, r.ProjectID, r.ID)
}

func (r *Run) String() string {
	if r.Name == "" {
		return fmt.Sprintf("run %d/%d", r.ProjectID, r.ID)
	}
	return fmt.Sprintf("[%d] %s", r.ID, r.Name)
}

// Summary fetches the summary sub-resource of the run.
func (r *Run) Summary(ctx context.Context) (*ResultSummary, error) {
	s := r.sess()
	var summary ResultSummary
	if err := s.tr.Get(ctx, r.Path()+"/status", &summary); err != nil {
		return nil, err
	}
	summary.attach(r)
	return &summary, nil
}

// Status fetches the current status of the run. It does not wait.
func (r *Run) Status(ctx context.Context) (Status, error) {
	summary, err := r.Summary(ctx)
	if err != nil {
		return "", err
	}
	return summary.Status, nil
}

// Results fetches the result tree as it currently stands and links every
// node back to r. Partial trees of unfinished runs are returned as is.
func (r *Run) Results(ctx context.Context) (*Result, error) {
	s := r.sess()
	var res Result
	if err := s.tr.Get(ctx, r.Path(), &res); err != nil {
		return nil, err
	}
	res.attach(r)
	return &res, nil
}

// WriteResults streams the report archive of res to w. res must be
// completed.
func (r *Run) WriteResults(ctx context.Context, res *Result, w io.Writer) error {
	s := r.sess()
	if res == nil || !res.IsCompleted() {
		return invalid("result", "is not completed")
	}
	return s.tr.Download(ctx, res.Summary.ReportFile, w)
}

// DownloadResults saves the report archive of res to dest. When dest is a
// directory the archive keeps the name the service gave it.
func (r *Run) DownloadResults(ctx context.Context, res *Result, dest string) error {
	r.sess()
	if res == nil || !res.IsCompleted() {
		return invalid("result", "is not completed")
	}
	if dest == "" {
		return invalid("destination", "cannot be empty")
	}
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, reportName(res.Summary.ReportFile, r.ID))
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	if err := r.WriteResults(ctx, res, f); err != nil {
		f.Close()
		os.Remove(dest)
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write %s: %w", dest, err)
	}
	return nil
}

func reportName(ref string, runID int) string {
	if u, err := url.Parse(ref); err == nil {
		ref = u.Path
	}
	name := path.Base(ref)
	if name == "." || name == "/" || name == "" {
		return fmt.Sprintf("run-%d.zip", runID)
	}
	return name
}
