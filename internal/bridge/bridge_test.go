package bridge

import (
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/eugenenazirov/ijbridge/internal/config"
	"github.com/eugenenazirov/ijbridge/internal/platform"
	"github.com/eugenenazirov/ijbridge/internal/source"
)

func TestParamsFromMapsResolvedFields(t *testing.T) {
	t.Parallel()

	legacy := false
	dir := "/opt/base"
	interactive := config.ModeInteractive
	resolved, err := config.NewResolver(platform.Fixed(false)).Resolve(config.Partial{
		RuntimeSource:          config.ListValue("net.imagej:imagej:2.3.0", "net.imagej:imagej-legacy"),
		RuntimeBaseDirectory:   &dir,
		LegacyModeEnabled:      &legacy,
		ExecutionMode:          &interactive,
		RuntimeLaunchArguments: config.StringValue("-Xmx4g -Dfoo=bar"),
	})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	params := ParamsFrom(resolved)
	if params.Source.Kind != source.KindCoordinateList || len(params.Source.Coordinates) != 2 {
		t.Fatalf("unexpected source %s", params.Source)
	}
	if params.BaseDirectory != dir || params.LegacyMode {
		t.Fatalf("unexpected base directory or legacy flag: %+v", params)
	}
	if params.Mode != config.ModeHeadless {
		t.Fatalf("expected effective mode headless, got %q", params.Mode)
	}
	if !slices.Equal(params.LaunchArguments, []string{"-Xmx4g", "-Dfoo=bar"}) {
		t.Fatalf("unexpected launch arguments %v", params.LaunchArguments)
	}
}

func TestCommandBridgeArgs(t *testing.T) {
	t.Parallel()

	b := NewCommandBridge("")
	if b.launcher != DefaultLauncher {
		t.Fatalf("expected default launcher, got %q", b.launcher)
	}

	coords, _ := source.Classify("net.imagej:imagej+net.imagej:imagej-legacy:1.1.0")
	version, _ := source.Classify("2.3.0")
	path, _ := source.Classify("/opt/Fiji.app")

	tests := []struct {
		name   string
		params StartupParams
		want   []string
	}{
		{
			name: "Coordinates",
			params: StartupParams{
				Source:          coords,
				BaseDirectory:   "/base",
				LegacyMode:      true,
				Mode:            config.ModeHeadless,
				LaunchArguments: []string{"-Xmx4g"},
			},
			want: []string{
				"-Dimagej2.dir=/base", "-Xmx4g", "--",
				"--coordinate", "net.imagej:imagej", "--coordinate", "net.imagej:imagej-legacy:1.1.0",
				"--mode", "headless", "--legacy=true",
			},
		},
		{
			name:   "Version",
			params: StartupParams{Source: version, Mode: config.ModeInteractive},
			want:   []string{"--", "--version", "2.3.0", "--mode", "interactive", "--legacy=false"},
		},
		{
			name:   "Path",
			params: StartupParams{Source: path, BaseDirectory: "/b", Mode: config.ModeHeadless},
			want:   []string{"-Dimagej2.dir=/b", "--", "--app-dir", "/opt/Fiji.app", "--mode", "headless", "--legacy=false"},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := b.Args(tc.params); !slices.Equal(got, tc.want) {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}

func TestAtLeast(t *testing.T) {
	t.Parallel()

	tests := []struct {
		version, minimum string
		want             bool
	}{
		{"2.94.0", "2.94.0", true},
		{"2.99.1", "2.94.0", true},
		{"2.9.0", "2.94.0", false},
		{"1.1.0-SNAPSHOT", "1.1.0", false},
		{"7.11", "7.11.0", true},
		{"not-a-version", "1.0.0", false},
		{"1.2.3.4", "1.0.0", false},
	}

	for _, tc := range tests {
		if got := AtLeast(tc.version, tc.minimum); got != tc.want {
			t.Fatalf("AtLeast(%q, %q) = %v, want %v", tc.version, tc.minimum, got, tc.want)
		}
	}
}

func installedAtMinimum() map[string]string {
	installed := make(map[string]string, len(MinimumVersions))
	for component, minimum := range MinimumVersions {
		installed[component] = minimum
	}
	return installed
}

func TestCheckVersions(t *testing.T) {
	t.Parallel()

	if err := CheckVersions(installedAtMinimum(), MinimumVersions); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	withoutOptional := installedAtMinimum()
	delete(withoutOptional, "net.imagej:imagej-legacy")
	delete(withoutOptional, "sc.fiji:TrackMate")
	if err := CheckVersions(withoutOptional, MinimumVersions); err != nil {
		t.Fatalf("optional components must be skipped when absent, got %v", err)
	}

	installed := installedAtMinimum()
	installed["org.scijava:scijava-common"] = "2.90.0"
	installed["io.scif:scifio"] = "0.40.0"
	installed["net.imagej:imagej-legacy"] = "0.9.0"
	err := CheckVersions(installed, MinimumVersions)

	var versionErr *VersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("expected *VersionError, got %v", err)
	}
	want := []string{"io.scif:scifio", "net.imagej:imagej-legacy", "org.scijava:scijava-common"}
	got := make([]string, 0, len(versionErr.Violations))
	for _, v := range versionErr.Violations {
		got = append(got, v.Component)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("expected violations %v, got %v", want, got)
	}
}

func TestCheckVersionsRequiresCoreComponents(t *testing.T) {
	t.Parallel()

	err := CheckVersions(nil, MinimumVersions)
	var versionErr *VersionError
	if !errors.As(err, &versionErr) {
		t.Fatalf("expected *VersionError when nothing is reported, got %v", err)
	}
	if len(versionErr.Violations) != len(MinimumVersions)-len(OptionalComponents) {
		t.Fatalf("expected every required component to be reported, got %v", versionErr.Violations)
	}
	for _, v := range versionErr.Violations {
		if OptionalComponents[v.Component] || v.Installed != "" {
			t.Fatalf("unexpected violation %+v", v)
		}
	}
	if !strings.Contains(err.Error(), "io.scif:scifio : 0.45.0 (installed: not found)") {
		t.Fatalf("expected missing component in message, got %q", err.Error())
	}
}
