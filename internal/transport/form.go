package transport

import (
	"fmt"
	"io"
	"mime/multipart"
	"sort"
)

// Form is the field set of one multipart request.
type Form map[string]string

// Keys returns the field names in a stable order.
func (f Form) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FilePart is the binary part of an upload.
type FilePart struct {
	Field    string
	Name     string
	Contents io.Reader
}

func writeMultipart(w io.Writer, form Form, file *FilePart) (string, error) {
	mw := multipart.NewWriter(w)
	for _, k := range form.Keys() {
		if err := mw.WriteField(k, form[k]); err != nil {
			return "", fmt.Errorf("failed to write field %s: %w", k, err)
		}
	}
	if file != nil {
		part, err := mw.CreateFormFile(file.Field, file.Name)
		if err != nil {
			return "", fmt.Errorf("failed to create file part: %w", err)
		}
		if _, err := io.Copy(part, file.Contents); err != nil {
			return "", fmt.Errorf("failed to copy file contents: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}
	return mw.FormDataContentType(), nil
}
