package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/spf13/cobra"
	"gopkg.in/launchdarkly/go-sdk-common.v2/ldvalue"

	"github.com/appthwack/thwack/internal/appthwack"
	"github.com/appthwack/thwack/internal/transport"
)

type scheduleParams struct {
	project string
	name    string
	pool    string
	kind    string
	files   map[string]*string
	url     string
	tags    string
	filter  string
	options map[string]string
	dryRun  bool
}

// kindFlags lists the kind-specific flags each run kind reads. File flags
// are the ones also present in scheduleParams.files.
var kindFlags = map[appthwack.Kind][]string{
	appthwack.KindExplorer:    {"app", "option"},
	appthwack.KindCalabash:    {"app", "features", "tags"},
	appthwack.KindJUnit:       {"app", "test-app", "filter"},
	appthwack.KindUIAutomator: {"app", "tests", "filter"},
	appthwack.KindMonkeyTalk:  {"app", "suite"},
	appthwack.KindUIA:         {"app", "script"},
	appthwack.KindKIF:         {"app"},
	appthwack.KindOCUnit:      {"app", "test-bundle"},
	appthwack.KindXCTest:      {"app", "test-bundle"},
	appthwack.KindWeb:         {"url"},
}

var allKinds = []appthwack.Kind{
	appthwack.KindExplorer, appthwack.KindCalabash, appthwack.KindJUnit, appthwack.KindUIAutomator,
	appthwack.KindMonkeyTalk, appthwack.KindUIA, appthwack.KindKIF, appthwack.KindOCUnit,
	appthwack.KindXCTest, appthwack.KindWeb,
}

func (a *app) scheduleCommand() *cobra.Command {
	p := scheduleParams{files: map[string]*string{}}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a test run",
		Long: "Schedule a test run. File flags take an uploaded file id or a local path,\n" +
			"which is uploaded once the request has been validated. --dry-run never uploads.\n" +
			"Kinds: " + kindList() + ".",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			kind := appthwack.Kind(p.kind)
			if err := checkKindFlags(cmd, kind); err != nil {
				return err
			}
			if p.name == "" {
				return fmt.Errorf("--name cannot be empty")
			}
			refs, err := p.fileRefs(kind)
			if err != nil {
				return err
			}

			project, err := a.project(ctx, p.project)
			if err != nil {
				return err
			}
			var pool *appthwack.DevicePool
			if p.pool != "" {
				if pool, err = a.pool(ctx, project, p.pool); err != nil {
					return err
				}
			}

			// Local paths stand in as negative ids until they are uploaded.
			files, pending := placeholders(refs)
			form, err := project.BuildRequest(p.name, pool, p.framework(kind, files))
			if err != nil {
				return err
			}
			if p.dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), curlCommand(a.cfg.Domain+a.cfg.APIRoot+"/run", form, pending))
				return nil
			}

			for flag, path := range pendingByFlag(refs) {
				f, err := a.session.UploadFile(ctx, path)
				if err != nil {
					return fmt.Errorf("--%s: %w", flag, err)
				}
				a.logger.Info().Str("path", path).Int("file", f.ID).Msg("uploaded")
				files[flag] = f
			}
			run, err := project.Schedule(ctx, p.name, pool, p.framework(kind, files))
			if err != nil {
				return err
			}
			a.logger.Info().Int("run", run.ID).Str("url", run.WebURL()).Msg("run scheduled")
			fmt.Fprintf(cmd.OutOrStdout(), "%d %d\n", run.ProjectID, run.ID)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&p.project, "project", "", "project id or name")
	f.StringVar(&p.name, "name", "", "run name")
	f.StringVar(&p.pool, "pool", "", "device pool id or name (not used by web runs)")
	f.StringVar(&p.kind, "kind", string(appthwack.KindExplorer), "test framework")
	for _, ff := range []struct{ name, usage string }{
		{"app", "application file"},
		{"test-app", "junit: instrumentation test application"},
		{"tests", "uiautomator: test jar"},
		{"features", "calabash: features archive"},
		{"suite", "monkeytalk: test suite"},
		{"script", "uia: automation script"},
		{"test-bundle", "ocunit, xctest: test bundle"},
	} {
		p.files[ff.name] = f.String(ff.name, "", ff.usage)
	}
	f.StringVar(&p.url, "url", "", "web: site to test")
	f.StringVar(&p.tags, "tags", "", "calabash: tag expression")
	f.StringVar(&p.filter, "filter", "", "junit, uiautomator: test filter")
	f.StringToStringVar(&p.options, "option", nil, "appexplorer: extra run parameter as key=value")
	f.BoolVar(&p.dryRun, "dry-run", false, "print the request as a curl command instead of sending it")
	_ = cmd.MarkFlagRequired("project")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func kindList() string {
	names := make([]string, len(allKinds))
	for i, k := range allKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}

// checkKindFlags rejects unknown kinds and kind-specific flags that kind
// would ignore.
func checkKindFlags(cmd *cobra.Command, kind appthwack.Kind) error {
	used, ok := kindFlags[kind]
	if !ok {
		return fmt.Errorf("unknown kind %q (want one of %s)", kind, kindList())
	}
	accepted := map[string]bool{}
	for _, name := range used {
		accepted[name] = true
	}
	seen := map[string]bool{}
	var unused []string
	for _, names := range kindFlags {
		for _, name := range names {
			if seen[name] {
				continue
			}
			seen[name] = true
			if !accepted[name] && cmd.Flags().Changed(name) {
				unused = append(unused, "--"+name)
			}
		}
	}
	if len(unused) > 0 {
		sort.Strings(unused)
		return fmt.Errorf("%s not used by %s runs", strings.Join(unused, ", "), kind)
	}
	return nil
}

// fileRef is a file flag value: an uploaded file id, or a local path that
// has been checked but not uploaded.
type fileRef struct {
	id   int
	path string
}

func (p scheduleParams) fileRefs(kind appthwack.Kind) (map[string]fileRef, error) {
	refs := map[string]fileRef{}
	for _, flag := range kindFlags[kind] {
		v, ok := p.files[flag]
		if !ok || *v == "" {
			continue
		}
		if id, err := strconv.Atoi(*v); err == nil && id > 0 {
			refs[flag] = fileRef{id: id}
			continue
		}
		info, err := os.Stat(*v)
		if err != nil {
			return nil, fmt.Errorf("--%s: %w", flag, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("--%s: %s is a directory", flag, *v)
		}
		refs[flag] = fileRef{path: *v}
	}
	return refs, nil
}

// placeholders maps each ref to a File. Paths get distinct negative ids;
// pending maps those ids, as form values, back to the path.
func placeholders(refs map[string]fileRef) (map[string]*appthwack.File, map[string]string) {
	files := map[string]*appthwack.File{}
	pending := map[string]string{}
	flags := make([]string, 0, len(refs))
	for flag := range refs {
		flags = append(flags, flag)
	}
	sort.Strings(flags)
	for i, flag := range flags {
		ref := refs[flag]
		if ref.path == "" {
			files[flag] = appthwack.NewFile(ref.id)
			continue
		}
		id := -(i + 1)
		files[flag] = appthwack.NewFile(id)
		pending[strconv.Itoa(id)] = ref.path
	}
	return files, pending
}

func pendingByFlag(refs map[string]fileRef) map[string]string {
	out := map[string]string{}
	for flag, ref := range refs {
		if ref.path != "" {
			out[flag] = ref.path
		}
	}
	return out
}

func optional(v string) ldvalue.OptionalString {
	if v == "" {
		return ldvalue.OptionalString{}
	}
	return ldvalue.NewOptionalString(v)
}

// framework builds the run kind from resolved files. Missing files stay nil
// and are reported by BuildRequest.
func (p scheduleParams) framework(kind appthwack.Kind, files map[string]*appthwack.File) appthwack.Framework {
	app := files["app"]
	switch kind {
	case appthwack.KindCalabash:
		return appthwack.Calabash{App: app, Features: files["features"], Tags: optional(p.tags)}
	case appthwack.KindJUnit:
		return appthwack.JUnit{App: app, TestApp: files["test-app"], Filter: optional(p.filter)}
	case appthwack.KindUIAutomator:
		return appthwack.UIAutomator{App: app, Tests: files["tests"], Filter: optional(p.filter)}
	case appthwack.KindMonkeyTalk:
		return appthwack.MonkeyTalk{App: app, Suite: files["suite"]}
	case appthwack.KindUIA:
		return appthwack.UIA{App: app, Script: files["script"]}
	case appthwack.KindKIF:
		return appthwack.KIF{App: app}
	case appthwack.KindOCUnit:
		return appthwack.OCUnit{App: app, TestBundle: files["test-bundle"]}
	case appthwack.KindXCTest:
		return appthwack.XCTest{App: app, TestBundle: files["test-bundle"]}
	case appthwack.KindWeb:
		return appthwack.Web{URL: p.url}
	}
	return appthwack.Explorer{App: app, Options: p.options}
}

type commandBuilder []string

func (b *commandBuilder) add(args ...string) {
	for _, a := range args {
		*b = append(*b, shellescape.Quote(a))
	}
}

func (b commandBuilder) String() string {
	return strings.Join(b, " ")
}

// curlCommand renders form as a curl invocation that reads the key from
// APPTHWACK_API_KEY. Fields whose value is in pending are filled by
// uploading the named path first.
func curlCommand(endpoint string, form transport.Form, pending map[string]string) string {
	var b commandBuilder
	b.add("curl", "-X", "POST")
	b = append(b, "-u", `"$APPTHWACK_API_KEY:"`)
	for _, k := range form.Keys() {
		if path, ok := pending[form[k]]; ok {
			b = append(b, "-F", fmt.Sprintf(`"%s=$(thwack upload %s)"`, k, shellescape.Quote(path)))
			continue
		}
		b.add("-F", k+"="+form[k])
	}
	b.add(endpoint)
	return b.String()
}
