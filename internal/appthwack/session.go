package appthwack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/appthwack/thwack/internal/transport"
)

// Transport is the wire collaborator a Session issues requests through.
// It owns authentication, redirects and JSON decoding.
type Transport interface {
	Get(ctx context.Context, path string, out any) error
	Post(ctx context.Context, path string, form transport.Form, out any) error
	PostFile(ctx context.Context, path string, form transport.Form, file *transport.FilePart, out any) error
	Download(ctx context.Context, ref string, w io.Writer) error
}

// Session is the root of every call against the service. It holds no state
// beyond its transport and the site domain used to build web addresses.
type Session struct {
	tr     Transport
	domain string
}

// NewSession returns a Session using tr. domain is the site address that web
// URLs of projects, runs and results are built from.
func NewSession(tr Transport, domain string) *Session {
	if tr == nil {
		panic("appthwack: nil transport")
	}
	return &Session{tr: tr, domain: strings.TrimRight(domain, "/")}
}

// Connect builds an HTTP transport authenticated with apiKey and wraps it in
// a Session. Empty domain and apiRoot select the public service.
func Connect(apiKey, domain, apiRoot string, opts ...transport.Option) *Session {
	c := transport.New(apiKey, domain, apiRoot, opts...)
	return NewSession(c, c.Domain())
}

func (s *Session) Domain() string { return s.domain }

// Projects lists every project visible to the account.
func (s *Session) Projects(ctx context.Context) ([]*Project, error) {
	var raw []projectData
	if err := s.tr.Get(ctx, "project", &raw); err != nil {
		return nil, err
	}
	projects := make([]*Project, 0, len(raw))
	for _, d := range raw {
		projects = append(projects, newProject(s, d))
	}
	return projects, nil
}

// ProjectByName returns the project whose name matches name ignoring case,
// or nil when there is none.
func (s *Session) ProjectByName(ctx context.Context, name string) (*Project, error) {
	projects, err := s.Projects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, nil
}

// ProjectByID returns the project with the given id, or nil when there is none.
func (s *Session) ProjectByID(ctx context.Context, id int) (*Project, error) {
	projects, err := s.Projects(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range projects {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, nil
}

// Run references a previously scheduled run without contacting the service.
func (s *Session) Run(projectID, runID int) *Run {
	return newRun(s, projectID, runData{RunID: runID})
}

// UploadFile uploads the file at path under its base name.
func (s *Session) UploadFile(ctx context.Context, path string) (*File, error) {
	return s.UploadFileAs(ctx, path, filepath.Base(path))
}

// UploadFileAs uploads the file at path under name.
func (s *Session) UploadFileAs(ctx context.Context, path, name string) (*File, error) {
	if path == "" {
		return nil, invalid("file", "cannot be empty")
	}
	if name == "" {
		return nil, invalid("name", "cannot be empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, invalid("file", "does not exist")
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, invalid("file", "cannot be a directory")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return s.Upload(ctx, name, f)
}

// Upload sends contents as a new file called name and returns its handle.
func (s *Session) Upload(ctx context.Context, name string, contents io.Reader) (*File, error) {
	if contents == nil {
		return nil, invalid("file", "cannot be nil")
	}
	if name == "" {
		return nil, invalid("name", "cannot be empty")
	}
	var f File
	part := &transport.FilePart{Field: "file", Name: name, Contents: contents}
	if err := s.tr.PostFile(ctx, "file", transport.Form{"name": name}, part, &f); err != nil {
		return nil, err
	}
	return &f, nil
}
