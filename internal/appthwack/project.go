package appthwack

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/appthwack/thwack/internal/transport"
)

type projectData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Project groups device pools and runs. URL is the project's slug on the site.
type Project struct {
	ID   int
	Name string
	URL  string

	session *Session
}

func newProject(s *Session, d projectData) *Project {
	return &Project{ID: d.ID, Name: d.Name, URL: d.URL, session: s}
}

func (p *Project) sess() *Session {
	if p == nil || p.session == nil {
		panic("appthwack: Project was not obtained from a Session")
	}
	return p.session
}

func (p *Project) WebURL() string {
	slug := p.URL
	if slug == "" {
		slug = strconv.Itoa(p.ID)
	}
	return fmt.Sprintf("%s/project/%s", p.sess().domain, slug)
}

func (p *Project) String() string {
	return fmt.Sprintf("[%d] %s", p.ID, p.Name)
}

// DevicePools lists the pools of this project.
func (p *Project) DevicePools(ctx context.Context) ([]*DevicePool, error) {
	s := p.sess()
	var raw []devicePoolData
	if err := s.tr.Get(ctx, fmt.Sprintf("devicepool/%d", p.ID), &raw); err != nil {
		return nil, err
	}
	pools := make([]*DevicePool, 0, len(raw))
	for _, d := range raw {
		pools = append(pools, newDevicePool(s, p.ID, d))
	}
	return pools, nil
}

// DevicePoolByName returns the pool whose name matches name ignoring case,
// or nil when there is none.
func (p *Project) DevicePoolByName(ctx context.Context, name string) (*DevicePool, error) {
	pools, err := p.DevicePools(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range pools {
		if strings.EqualFold(d.Name, name) {
			return d, nil
		}
	}
	return nil, nil
}

// DevicePoolByID returns the pool with the given id, or nil when there is none.
func (p *Project) DevicePoolByID(ctx context.Context, id int) (*DevicePool, error) {
	pools, err := p.DevicePools(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range pools {
		if d.ID == id {
			return d, nil
		}
	}
	return nil, nil
}

// Run references a run of this project without contacting the service.
func (p *Project) Run(runID int) *Run {
	return newRun(p.sess(), p.ID, runData{RunID: runID})
}

// BuildRequest validates the arguments of a run and returns the form that
// Schedule would post. A nil pool lets the service pick its default pool.
func (p *Project) BuildRequest(name string, pool *DevicePool, kind Framework) (transport.Form, error) {
	if kind == nil {
		return nil, invalid("framework", "cannot be nil")
	}
	app, err := kind.app()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return nil, invalid("name", "cannot be empty")
	}
	params, err := kind.params()
	if err != nil {
		return nil, err
	}
	if pool != nil && kind.Kind() == KindWeb {
		return nil, invalid("pool", "is not accepted by web runs")
	}

	form := transport.Form{}
	for k, v := range params {
		if reservedKey(k) {
			return nil, invalid(k, "is a reserved run parameter")
		}
		form[k] = v
	}
	form["project"] = strconv.Itoa(p.ID)
	form["name"] = name
	form["app"] = app
	if pool != nil {
		form["pool"] = strconv.Itoa(pool.ID)
	}
	return form, nil
}

// Schedule starts a run of kind on pool. Validation happens before any
// request is sent.
func (p *Project) Schedule(ctx context.Context, name string, pool *DevicePool, kind Framework) (*Run, error) {
	s := p.sess()
	form, err := p.BuildRequest(name, pool, kind)
	if err != nil {
		return nil, err
	}
	var d runData
	if err := s.tr.Post(ctx, "run", form, &d); err != nil {
		return nil, err
	}
	if d.Name == "" {
		d.Name = name
	}
	return newRun(s, p.ID, d), nil
}

func reservedKey(k string) bool {
	switch k {
	case "project", "name", "app", "pool":
		return true
	}
	return false
}
