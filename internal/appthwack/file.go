package appthwack

import "fmt"

// File is the handle of an uploaded binary. Its only use is to be referenced
// by id from a run request.
type File struct {
	ID int `json:"file_id"`
}

func NewFile(id int) *File {
	return &File{ID: id}
}

func (f *File) String() string {
	return fmt.Sprintf("file/%d", f.ID)
}
