package bridge

import (
	"sort"
	"strings"

	"golang.org/x/mod/semver"
)

// MinimumVersions are the oldest component releases the plugin works with.
var MinimumVersions = map[string]string{
	"io.scif:scifio":             "0.45.0",
	"net.imagej:imagej-common":   "2.0.2",
	"net.imagej:imagej-legacy":   "1.1.0",
	"net.imagej:imagej-ops":      "0.49.0",
	"net.imglib2:imglib2-unsafe": "1.0.0",
	"net.imglib2:imglib2-imglyb": "1.1.0",
	"org.scijava:scijava-common": "2.94.0",
	"org.scijava:scijava-search": "2.0.2",
	"sc.fiji:TrackMate":          "7.11.0",
}

// OptionalComponents are only present when the toolkit loaded them, such as
// the legacy layer when legacy mode is off. They are checked when reported.
var OptionalComponents = map[string]bool{
	"net.imagej:imagej-legacy": true,
	"sc.fiji:TrackMate":        true,
}

// CheckVersions compares installed component versions against minimums.
// A required component missing from installed is a violation with an empty
// Installed version. Installed versions that cannot be compared count as
// violations.
func CheckVersions(installed, minimums map[string]string) error {
	var violations []Violation
	for component, minimum := range minimums {
		version, ok := installed[component]
		if !ok {
			if !OptionalComponents[component] {
				violations = append(violations, Violation{Component: component, Minimum: minimum})
			}
			continue
		}
		if !AtLeast(version, minimum) {
			violations = append(violations, Violation{Component: component, Minimum: minimum, Installed: version})
		}
	}
	if len(violations) == 0 {
		return nil
	}
	sort.Slice(violations, func(i, j int) bool {
		return violations[i].Component < violations[j].Component
	})
	return &VersionError{Violations: violations}
}

// AtLeast reports whether version >= minimum. Maven style versions are
// compared as semantic versions; "-SNAPSHOT" builds sort before the release.
func AtLeast(version, minimum string) bool {
	v, m := canonical(version), canonical(minimum)
	if !semver.IsValid(v) || !semver.IsValid(m) {
		return false
	}
	return semver.Compare(v, m) >= 0
}

func canonical(version string) string {
	version = strings.TrimSpace(version)
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	return version
}
