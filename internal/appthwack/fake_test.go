package appthwack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/appthwack/thwack/internal/transport"
)

const testDomain = "https://thwack.test"

type call struct {
	method string
	path   string
	form   transport.Form
	file   string
}

// fakeTransport answers from canned JSON keyed by "METHOD path" and records
// every call it receives.
type fakeTransport struct {
	responses map[string]string
	errs      map[string]error
	downloads map[string]string
	calls     []call
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		responses: map[string]string{},
		errs:      map[string]error{},
		downloads: map[string]string{},
	}
}

func (f *fakeTransport) session() *Session {
	return NewSession(f, testDomain)
}

func (f *fakeTransport) respond(method, path string, out any) error {
	key := method + " " + path
	if err := f.errs[key]; err != nil {
		return err
	}
	body, ok := f.responses[key]
	if !ok {
		return &transport.Error{Method: method, URL: path, StatusCode: http.StatusNotFound}
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal([]byte(body), out)
}

func (f *fakeTransport) Get(_ context.Context, path string, out any) error {
	f.calls = append(f.calls, call{method: http.MethodGet, path: path})
	return f.respond(http.MethodGet, path, out)
}

func (f *fakeTransport) Post(_ context.Context, path string, form transport.Form, out any) error {
	f.calls = append(f.calls, call{method: http.MethodPost, path: path, form: form})
	return f.respond(http.MethodPost, path, out)
}

func (f *fakeTransport) PostFile(_ context.Context, path string, form transport.Form, file *transport.FilePart, out any) error {
	contents, err := io.ReadAll(file.Contents)
	if err != nil {
		return err
	}
	f.calls = append(f.calls, call{method: http.MethodPost, path: path, form: form, file: file.Field + ":" + file.Name + ":" + string(contents)})
	return f.respond(http.MethodPost, path, out)
}

func (f *fakeTransport) Download(_ context.Context, ref string, w io.Writer) error {
	f.calls = append(f.calls, call{method: http.MethodGet, path: ref})
	body, ok := f.downloads[ref]
	if !ok {
		return &transport.Error{Method: http.MethodGet, URL: ref, StatusCode: http.StatusNotFound}
	}
	_, err := io.Copy(w, strings.NewReader(body))
	return err
}

func bytesReader(s string) io.Reader {
	return strings.NewReader(s)
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
