package appthwack

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/appthwack/thwack/internal/transport"
)

const poolsJSON = `[
	{"id": 14, "name": "All Android"},
	{"id": 15, "name": "The Usual Suspects"}
]`

func testProject(t *testing.T) (*fakeTransport, *Project) {
	t.Helper()
	tr := newFakeTransport()
	tr.responses["GET project"] = projectsJSON
	tr.responses["GET devicepool/1"] = poolsJSON
	p, err := tr.session().ProjectByID(context.Background(), 1)
	require.NoError(t, err)
	require.NotNil(t, p)
	tr.calls = nil
	return tr, p
}

func TestDevicePoolLookups(t *testing.T) {
	_, p := testProject(t)
	ctx := context.Background()

	byID, err := p.DevicePoolByID(ctx, 15)
	require.NoError(t, err)
	require.NotNil(t, byID)

	byName, err := p.DevicePoolByName(ctx, "The Usual Suspects")
	require.NoError(t, err)
	require.NotNil(t, byName)

	assert.Equal(t, byID.ID, byName.ID)
	assert.Equal(t, byID.Name, byName.Name)
	assert.Equal(t, "[15] The Usual Suspects", byName.String())

	upper, err := p.DevicePoolByName(ctx, "THE USUAL SUSPECTS")
	require.NoError(t, err)
	require.NotNil(t, upper)
	assert.Equal(t, 15, upper.ID)

	missing, err := p.DevicePoolByID(ctx, 999)
	assert.NoError(t, err)
	assert.Nil(t, missing)

	projectID, scoped := byID.ProjectID()
	assert.True(t, scoped)
	assert.Equal(t, 1, projectID)
	assert.Equal(t, testDomain+"/project/1/devicepool/15", byID.WebURL())
}

func TestUnscopedDevicePool(t *testing.T) {
	pool := NewDevicePool(15, "The Usual Suspects")
	_, scoped := pool.ProjectID()
	assert.False(t, scoped)
	assert.Empty(t, pool.WebURL())
	assert.Equal(t, "[15] The Usual Suspects", pool.String())
}

func TestBuildRequestJUnitFieldSet(t *testing.T) {
	_, p := testProject(t)
	kind := JUnit{App: NewFile(42), TestApp: NewFile(7)}

	form, err := p.BuildRequest("Smoke", nil, kind)
	require.NoError(t, err)
	want := transport.Form{"project": "1", "name": "Smoke", "app": "42", "junit": "7"}
	if diff := cmp.Diff(want, form); diff != "" {
		t.Errorf("form mismatch (-want +got):\n%s", diff)
	}

	form, err = p.BuildRequest("Smoke", NewDevicePool(15, ""), kind)
	require.NoError(t, err)
	want["pool"] = "15"
	if diff := cmp.Diff(want, form); diff != "" {
		t.Errorf("form with pool mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRequestFrameworkKeys(t *testing.T) {
	_, p := testProject(t)
	app := NewFile(1)
	aux := NewFile(2)

	tests := []struct {
		name string
		kind Framework
		want map[string]string
	}{
		{"explorer", Explorer{App: app, Options: map[string]string{"username": "bob"}}, map[string]string{"username": "bob"}},
		{"calabash", Calabash{App: app, Features: aux}, map[string]string{"calabash": "2"}},
		{"calabash tags", Calabash{App: app, Features: aux, Tags: ldvalue.NewOptionalString("@smoke")}, map[string]string{"calabash": "2", "calabashtags": "@smoke"}},
		{"junit filter", JUnit{App: app, TestApp: aux, Filter: ldvalue.NewOptionalString("com.example.Smoke")}, map[string]string{"junit": "2", "testfilter": "com.example.Smoke"}},
		{"uiautomator", UIAutomator{App: app, Tests: aux}, map[string]string{"uiautomator": "2"}},
		{"monkeytalk", MonkeyTalk{App: app, Suite: aux}, map[string]string{"monkeytalk": "2"}},
		{"uia", UIA{App: app, Script: aux}, map[string]string{"uia": "2"}},
		{"kif", KIF{App: app}, map[string]string{"kif": "true"}},
		{"ocunit", OCUnit{App: app, TestBundle: aux}, map[string]string{"ocunit": "2"}},
		{"xctest", XCTest{App: app, TestBundle: aux}, map[string]string{"xctest": "2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form, err := p.BuildRequest("run", nil, tt.kind)
			require.NoError(t, err)
			want := transport.Form{"project": "1", "name": "run", "app": "1"}
			for k, v := range tt.want {
				want[k] = v
			}
			assert.Equal(t, want, form)
		})
	}
}

func TestBuildRequestWeb(t *testing.T) {
	_, p := testProject(t)

	form, err := p.BuildRequest("site", nil, Web{URL: "https://example.com"})
	require.NoError(t, err)
	assert.Equal(t, transport.Form{"project": "1", "name": "site", "app": "https://example.com"}, form)

	_, err = p.BuildRequest("site", NewDevicePool(15, ""), Web{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestScheduleValidationSendsNothing(t *testing.T) {
	tr, p := testProject(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		runName string
		kind    Framework
		field   string
	}{
		{"nil framework", "Smoke", nil, "framework"},
		{"nil app", "Smoke", JUnit{TestApp: NewFile(7)}, "app"},
		{"empty name", "", JUnit{App: NewFile(42), TestApp: NewFile(7)}, "name"},
		{"nil test app", "Smoke", JUnit{App: NewFile(42)}, "testApp"},
		{"nil features", "Smoke", Calabash{App: NewFile(42)}, "features"},
		{"empty url", "Smoke", Web{}, "url"},
		{"reserved option", "Smoke", Explorer{App: NewFile(42), Options: map[string]string{"pool": "3"}}, "pool"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run, err := p.Schedule(ctx, tt.runName, nil, tt.kind)
			assert.Nil(t, run)
			require.ErrorIs(t, err, ErrValidation)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
	assert.Empty(t, tr.calls)
}

func TestSchedule(t *testing.T) {
	tr, p := testProject(t)
	tr.responses["POST run"] = `{"run_id": 128}`

	pool, err := p.DevicePoolByID(context.Background(), 15)
	require.NoError(t, err)
	tr.calls = nil

	run, err := p.Schedule(context.Background(), "Smoke", pool, JUnit{App: NewFile(42), TestApp: NewFile(7)})
	require.NoError(t, err)
	assert.Equal(t, 128, run.ID)
	assert.Equal(t, 1, run.ProjectID)
	assert.Equal(t, "Smoke", run.Name)
	assert.Equal(t, testDomain+"/project/1/run/128", run.WebURL())

	require.Len(t, tr.calls, 1)
	assert.Equal(t, "run", tr.calls[0].path)
	assert.Equal(t, "15", tr.calls[0].form["pool"])
}
