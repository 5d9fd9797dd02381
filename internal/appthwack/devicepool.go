package appthwack

import "fmt"

type devicePoolData struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// DevicePool is a named set of devices a run executes on.
type DevicePool struct {
	ID   int
	Name string

	projectID int
	session   *Session
}

func newDevicePool(s *Session, projectID int, d devicePoolData) *DevicePool {
	return &DevicePool{ID: d.ID, Name: d.Name, projectID: projectID, session: s}
}

// NewDevicePool references a pool by id when it is already known. The
// result is not tied to a project and has no web address.
func NewDevicePool(id int, name string) *DevicePool {
	return &DevicePool{ID: id, Name: name}
}

// ProjectID reports the owning project, if the pool was listed from one.
func (d *DevicePool) ProjectID() (int, bool) {
	return d.projectID, d.session != nil
}

func (d *DevicePool) WebURL() string {
	if d.session == nil {
		return ""
	}
	return fmt.Sprintf("%s/project/%d/devicepool/%d", d.session.domain, d.projectID, d.ID)
}

func (d *DevicePool) String() string {
	return fmt.Sprintf("[%d] %s", d.ID, d.Name)
}
