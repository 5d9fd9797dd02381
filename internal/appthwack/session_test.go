package appthwack

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/appthwack/thwack/internal/transport"
)

const projectsJSON = `[
	{"id": 1, "name": "Foo", "url": "foo"},
	{"id": 2, "name": "My Project", "url": "my-project"}
]`

func TestProjectByNameIgnoresCase(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["GET project"] = projectsJSON
	s := tr.session()
	ctx := context.Background()

	for _, name := range []string{"Foo", "FOO", "foo"} {
		p, err := s.ProjectByName(ctx, name)
		require.NoError(t, err)
		require.NotNil(t, p, name)
		assert.Equal(t, 1, p.ID)
		assert.Equal(t, "Foo", p.Name)
	}

	p, err := s.ProjectByName(ctx, "Bar")
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestProjectByID(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["GET project"] = projectsJSON
	s := tr.session()

	p, err := s.ProjectByID(context.Background(), 2)
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "My Project", p.Name)
	assert.Equal(t, testDomain+"/project/my-project", p.WebURL())

	p, err = s.ProjectByID(context.Background(), 3)
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestProjectsReturnsTransportErrorUnwrapped(t *testing.T) {
	tr := newFakeTransport()
	want := &transport.Error{Method: "GET", URL: "project", StatusCode: 500, Body: "boom"}
	tr.errs["GET project"] = want

	_, err := tr.session().Projects(context.Background())
	assert.Same(t, want, err)

	var terr *TransportError
	require.True(t, errors.As(err, &terr))
	assert.Equal(t, 500, terr.StatusCode)
}

func TestUpload(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["POST file"] = `{"file_id": 42}`

	f, err := tr.session().Upload(context.Background(), "app.apk", bytesReader("PK"))
	require.NoError(t, err)
	assert.Equal(t, 42, f.ID)
	assert.Equal(t, "file/42", f.String())

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "file", tr.calls[0].path)
	assert.Equal(t, transport.Form{"name": "app.apk"}, tr.calls[0].form)
	assert.Equal(t, "file:app.apk:PK", tr.calls[0].file)
}

func TestUploadValidation(t *testing.T) {
	tr := newFakeTransport()
	s := tr.session()
	ctx := context.Background()
	dir := t.TempDir()

	_, err := s.Upload(ctx, "", bytesReader("x"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.Upload(ctx, "a.apk", nil)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.UploadFile(ctx, filepath.Join(dir, "missing.apk"))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.UploadFile(ctx, dir)
	assert.ErrorIs(t, err, ErrValidation)

	assert.Empty(t, tr.calls)
}

func TestUploadFileUsesBaseName(t *testing.T) {
	tr := newFakeTransport()
	tr.responses["POST file"] = `{"file_id": 7}`
	path := filepath.Join(t.TempDir(), "tests.apk")
	require.NoError(t, os.WriteFile(path, []byte("apk"), 0o644))

	f, err := tr.session().UploadFile(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, f.ID)
	assert.Equal(t, "file:tests.apk:apk", tr.calls[0].file)
}

func TestSessionRunIsAddressable(t *testing.T) {
	r := newFakeTransport().session().Run(1, 128)
	assert.Equal(t, "run/1/128", r.Path())
	assert.Equal(t, testDomain+"/project/1/run/128", r.WebURL())
	assert.Empty(t, r.Name)
}

func TestZeroValueEntitiesPanic(t *testing.T) {
	assert.Panics(t, func() { (&Project{ID: 1}).Run(2) })
	assert.Panics(t, func() { _, _ = (&Run{ID: 1}).Status(context.Background()) })
	assert.Panics(t, func() { NewSession(nil, testDomain) })
}
