// Package thwackbin is an in-memory stand-in for the AppThwack service. It
// serves the same API paths and is used by tests and the thwackbin binary.
package thwackbin

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/appthwack/thwack/internal/appthwack"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid request")
)

type Project struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

type Pool struct {
	ID      int      `json:"id"`
	Name    string   `json:"name"`
	Devices []string `json:"-"`
}

type File struct {
	ID   int
	Name string
	Data []byte
}

// Run is a run as the service tracks it.
type Run struct {
	ID        int
	ProjectID int
	Name      string
	PoolID    int
	App       string
	Kind      appthwack.Kind
	Params    map[string]string
	Status    appthwack.Status
	CreatedAt time.Time

	result *appthwack.Result
}

type runKey struct {
	projectID int
	runID     int
}

// frameworkFileKeys are run parameters whose value must name an uploaded file.
var frameworkFileKeys = map[string]appthwack.Kind{
	"junit":       appthwack.KindJUnit,
	"calabash":    appthwack.KindCalabash,
	"uiautomator": appthwack.KindUIAutomator,
	"monkeytalk":  appthwack.KindMonkeyTalk,
	"uia":         appthwack.KindUIA,
	"ocunit":      appthwack.KindOCUnit,
	"xctest":      appthwack.KindXCTest,
}

type Store struct {
	mu       sync.RWMutex
	projects []Project
	pools    map[int][]Pool
	files    map[int]*File
	runs     map[runKey]*Run
	reports  map[string][]byte
	nextFile int
	nextRun  int

	// AutoAdvance moves a run one state forward on every status poll.
	AutoAdvance bool
}

func NewStore() *Store {
	return &Store{
		pools:    map[int][]Pool{},
		files:    map[int]*File{},
		runs:     map[runKey]*Run{},
		reports:  map[string][]byte{},
		nextFile: 1,
		nextRun:  1,
	}
}

func (s *Store) AddProject(p Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.URL == "" {
		p.URL = strings.ToLower(strings.ReplaceAll(p.Name, " ", "-"))
	}
	s.projects = append(s.projects, p)
}

func (s *Store) AddPool(projectID int, p Pool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[projectID] = append(s.pools[projectID], p)
}

func (s *Store) Projects() []Project {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Project(nil), s.projects...)
}

func (s *Store) Pools(projectID int) ([]Pool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.hasProject(projectID) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	return append([]Pool{}, s.pools[projectID]...), nil
}

func (s *Store) hasProject(id int) bool {
	for _, p := range s.projects {
		if p.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) pool(projectID, poolID int) (Pool, bool) {
	for _, p := range s.pools[projectID] {
		if p.ID == poolID {
			return p, true
		}
	}
	return Pool{}, false
}

func (s *Store) AddFile(name string, data []byte) File {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := &File{ID: s.nextFile, Name: name, Data: data}
	s.files[f.ID] = f
	s.nextFile++
	return *f
}

func (s *Store) File(id int) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.files[id]
	if !ok {
		return File{}, false
	}
	return *f, true
}

// CreateRun validates a run request the way the service does and stores
// the new run as pending.
func (s *Store) CreateRun(form map[string]string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	projectID, err := strconv.Atoi(form["project"])
	if err != nil {
		return nil, fmt.Errorf("project %q: %w", form["project"], ErrInvalid)
	}
	if !s.hasProject(projectID) {
		return nil, fmt.Errorf("project %d: %w", projectID, ErrNotFound)
	}
	name := form["name"]
	if name == "" {
		return nil, fmt.Errorf("name is required: %w", ErrInvalid)
	}

	run := &Run{
		ProjectID: projectID,
		Name:      name,
		App:       form["app"],
		Kind:      appthwack.KindExplorer,
		Params:    map[string]string{},
		Status:    appthwack.StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	switch {
	case strings.HasPrefix(run.App, "http://"), strings.HasPrefix(run.App, "https://"):
		run.Kind = appthwack.KindWeb
	default:
		if err := s.requireFile("app", run.App); err != nil {
			return nil, err
		}
	}

	if v, ok := form["pool"]; ok {
		if run.Kind == appthwack.KindWeb {
			return nil, fmt.Errorf("web runs do not take a pool: %w", ErrInvalid)
		}
		poolID, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("pool %q: %w", v, ErrInvalid)
		}
		if _, ok := s.pool(projectID, poolID); !ok {
			return nil, fmt.Errorf("pool %d: %w", poolID, ErrInvalid)
		}
		run.PoolID = poolID
	}

	for k, v := range form {
		switch k {
		case "project", "name", "app", "pool":
			continue
		}
		run.Params[k] = v
		if kind, ok := frameworkFileKeys[k]; ok {
			if err := s.requireFile(k, v); err != nil {
				return nil, err
			}
			run.Kind = kind
		}
		if k == "kif" {
			run.Kind = appthwack.KindKIF
		}
	}

	for s.runs[runKey{projectID, s.nextRun}] != nil {
		s.nextRun++
	}
	run.ID = s.nextRun
	s.nextRun++
	s.runs[runKey{projectID, run.ID}] = run
	return run, nil
}

func (s *Store) requireFile(field, value string) error {
	id, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s %q: %w", field, value, ErrInvalid)
	}
	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%s file %d: %w", field, id, ErrInvalid)
	}
	return nil
}

// Run returns a copy of the stored run.
func (s *Store) Run(projectID, runID int) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runKey{projectID, runID}]
	if !ok {
		return Run{}, fmt.Errorf("run %d/%d: %w", projectID, runID, ErrNotFound)
	}
	return *r, nil
}

// Runs lists the runs of a project by id.
func (s *Store) Runs(projectID int) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var runs []Run
	for k, r := range s.runs {
		if k.projectID == projectID {
			runs = append(runs, *r)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID < runs[j].ID })
	return runs
}

// Advance moves a run from pending to running, and from running to
// completed with a generated result.
func (s *Store) Advance(projectID, runID int) (appthwack.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runKey{projectID, runID}]
	if !ok {
		return "", fmt.Errorf("run %d/%d: %w", projectID, runID, ErrNotFound)
	}
	switch r.Status {
	case appthwack.StatusPending:
		r.Status = appthwack.StatusRunning
	case appthwack.StatusRunning:
		devices := []string{"Nexus 5"}
		if p, ok := s.pool(projectID, r.PoolID); ok && len(p.Devices) > 0 {
			devices = p.Devices
		}
		if err := s.complete(r, Outcome{Passes: 3, Devices: devices}); err != nil {
			return "", err
		}
	}
	return r.Status, nil
}

// Complete finishes a run with the given outcome and stages its report.
func (s *Store) Complete(projectID, runID int, o Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runKey{projectID, runID}]
	if !ok {
		return fmt.Errorf("run %d/%d: %w", projectID, runID, ErrNotFound)
	}
	return s.complete(r, o)
}

func (s *Store) complete(r *Run, o Outcome) error {
	res := buildResult(r, o)
	report, err := buildReport(r, res)
	if err != nil {
		return err
	}
	name := uuid.NewString() + ".zip"
	s.reports[name] = report
	if !o.Unstaged {
		res.Summary.ReportFile = "reports/" + name
	}
	r.Status = appthwack.StatusCompleted
	r.result = res
	return nil
}

// Result returns the result tree of a run as it currently stands.
func (s *Store) Result(projectID, runID int) (*appthwack.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[runKey{projectID, runID}]
	if !ok {
		return nil, fmt.Errorf("run %d/%d: %w", projectID, runID, ErrNotFound)
	}
	if r.result != nil {
		return r.result, nil
	}
	return &appthwack.Result{Summary: pendingSummary(r)}, nil
}

func (s *Store) Report(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.reports[name]
	return data, ok
}

// Seed loads the fixture account: project 1 "My Project" with pool 15
// "The Usual Suspects" and a finished run 128.
func Seed(s *Store) error {
	s.AddProject(Project{ID: 1, Name: "My Project", URL: "my-project"})
	s.AddPool(1, Pool{ID: 14, Name: "All Android Devices", Devices: []string{"Nexus 5", "Galaxy S4", "Moto X", "HTC One"}})
	s.AddPool(1, Pool{ID: 15, Name: "The Usual Suspects", Devices: []string{"Nexus 5", "Galaxy S4"}})
	s.AddProject(Project{ID: 2, Name: "Web Store", URL: "web-store"})

	app := s.AddFile("example.apk", []byte("PK\x03\x04"))
	tests := s.AddFile("example-tests.apk", []byte("PK\x03\x04"))

	s.mu.Lock()
	s.nextRun = 128
	s.mu.Unlock()

	run, err := s.CreateRun(map[string]string{
		"project": "1",
		"name":    "Nightly",
		"app":     strconv.Itoa(app.ID),
		"junit":   strconv.Itoa(tests.ID),
		"pool":    "15",
	})
	if err != nil {
		return err
	}
	return s.Complete(1, run.ID, Outcome{
		Passes:    23,
		Failures:  17,
		Count:     40,
		Completed: 36,
		Devices:   []string{"Nexus 5", "Galaxy S4"},
	})
}
