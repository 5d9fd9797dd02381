package appthwack

import (
	"strconv"

	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"
)

// Kind names a test framework the service can run.
type Kind string

const (
	KindExplorer    Kind = "appexplorer"
	KindCalabash    Kind = "calabash"
	KindJUnit       Kind = "junit"
	KindUIAutomator Kind = "uiautomator"
	KindMonkeyTalk  Kind = "monkeytalk"
	KindUIA         Kind = "uia"
	KindKIF         Kind = "kif"
	KindOCUnit      Kind = "ocunit"
	KindXCTest      Kind = "xctest"
	KindWeb         Kind = "web"
)

// Framework is one run kind together with the artifacts it needs. Each
// implementation knows the form fields it contributes to a run request.
type Framework interface {
	Kind() Kind
	app() (string, error)
	params() (map[string]string, error)
}

func fileApp(f *File) (string, error) {
	if f == nil {
		return "", invalid("app", "cannot be nil")
	}
	return strconv.Itoa(f.ID), nil
}

func fileParam(field, key string, f *File, into map[string]string) error {
	if f == nil {
		return invalid(field, "cannot be nil")
	}
	into[key] = strconv.Itoa(f.ID)
	return nil
}

func optionalParam(key string, v ldvalue.OptionalString, into map[string]string) {
	if v.IsDefined() {
		into[key] = v.StringValue()
	}
}

// Explorer runs the platform's built-in exploratory test against App.
// Options are passed through verbatim and may not use reserved keys.
type Explorer struct {
	App     *File
	Options map[string]string
}

func (Explorer) Kind() Kind { return KindExplorer }
func (e Explorer) app() (string, error) { return fileApp(e.App) }

func (e Explorer) params() (map[string]string, error) {
	out := make(map[string]string, len(e.Options))
	for k, v := range e.Options {
		if reservedKey(k) {
			return nil, invalid(k, "is a reserved run parameter")
		}
		out[k] = v
	}
	return out, nil
}

type Calabash struct {
	App      *File
	Features *File
	Tags     ldvalue.OptionalString
}

func (Calabash) Kind() Kind { return KindCalabash }
func (c Calabash) app() (string, error) { return fileApp(c.App) }

func (c Calabash) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("features", "calabash", c.Features, out); err != nil {
		return nil, err
	}
	optionalParam("calabashtags", c.Tags, out)
	return out, nil
}

// JUnit runs an instrumentation test application against App.
type JUnit struct {
	App     *File
	TestApp *File
	Filter  ldvalue.OptionalString
}

func (JUnit) Kind() Kind { return KindJUnit }
func (j JUnit) app() (string, error) { return fileApp(j.App) }

func (j JUnit) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("testApp", "junit", j.TestApp, out); err != nil {
		return nil, err
	}
	optionalParam("testfilter", j.Filter, out)
	return out, nil
}

type UIAutomator struct {
	App    *File
	Tests  *File
	Filter ldvalue.OptionalString
}

func (UIAutomator) Kind() Kind { return KindUIAutomator }
func (u UIAutomator) app() (string, error) { return fileApp(u.App) }

func (u UIAutomator) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("tests", "uiautomator", u.Tests, out); err != nil {
		return nil, err
	}
	optionalParam("testfilter", u.Filter, out)
	return out, nil
}

type MonkeyTalk struct {
	App   *File
	Suite *File
}

func (MonkeyTalk) Kind() Kind { return KindMonkeyTalk }
func (m MonkeyTalk) app() (string, error) { return fileApp(m.App) }

func (m MonkeyTalk) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("suite", "monkeytalk", m.Suite, out); err != nil {
		return nil, err
	}
	return out, nil
}

// UIA runs a UI Automation script against an iOS App.
type UIA struct {
	App    *File
	Script *File
}

func (UIA) Kind() Kind { return KindUIA }
func (u UIA) app() (string, error) { return fileApp(u.App) }

func (u UIA) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("script", "uia", u.Script, out); err != nil {
		return nil, err
	}
	return out, nil
}

// KIF runs the KIF tests compiled into App.
type KIF struct {
	App *File
}

func (KIF) Kind() Kind { return KindKIF }
func (k KIF) app() (string, error) { return fileApp(k.App) }

func (KIF) params() (map[string]string, error) {
	return map[string]string{"kif": "true"}, nil
}

type OCUnit struct {
	App        *File
	TestBundle *File
}

func (OCUnit) Kind() Kind { return KindOCUnit }
func (o OCUnit) app() (string, error) { return fileApp(o.App) }

func (o OCUnit) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("testBundle", "ocunit", o.TestBundle, out); err != nil {
		return nil, err
	}
	return out, nil
}

type XCTest struct {
	App        *File
	TestBundle *File
}

func (XCTest) Kind() Kind { return KindXCTest }
func (x XCTest) app() (string, error) { return fileApp(x.App) }

func (x XCTest) params() (map[string]string, error) {
	out := map[string]string{}
	if err := fileParam("testBundle", "xctest", x.TestBundle, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Web tests a site in device browsers. The service chooses the browsers, so
// web runs never take a device pool.
type Web struct {
	URL string
}

func (Web) Kind() Kind { return KindWeb }

func (w Web) app() (string, error) {
	if w.URL == "" {
		return "", invalid("url", "cannot be empty")
	}
	return w.URL, nil
}

func (Web) params() (map[string]string, error) {
	return nil, nil
}
