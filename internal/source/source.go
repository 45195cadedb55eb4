package source

import (
	"fmt"
	"regexp"
	"strings"
)

// Kind tags the shape of a runtime source.
type Kind int

const (
	// KindPath is a local installation directory.
	KindPath Kind = iota + 1
	// KindVersion is a bare release version of the default toolkit artifact.
	KindVersion
	// KindCoordinate is a single group:artifact[:version] coordinate.
	KindCoordinate
	// KindCoordinateList is an ordered, non-empty set of coordinates.
	KindCoordinateList
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindVersion:
		return "version"
	case KindCoordinate:
		return "coordinate"
	case KindCoordinateList:
		return "coordinate-list"
	default:
		return "unknown"
	}
}

// listSeparator joins several coordinates in a single endpoint string.
const listSeparator = "+"

var (
	versionPattern   = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*([-.][A-Za-z0-9][A-Za-z0-9.-]*)?$`)
	drivePathPattern = regexp.MustCompile(`^[A-Za-z]:[\\/]`)
)

// Coordinate identifies a downloadable artifact.
type Coordinate struct {
	Group    string
	Artifact string
	Version  string
}

func (c Coordinate) String() string {
	if c.Version == "" {
		return c.Group + ":" + c.Artifact
	}
	return c.Group + ":" + c.Artifact + ":" + c.Version
}

// Source is the classified runtime source. Exactly one of Path, Version or
// Coordinates is meaningful, selected by Kind.
type Source struct {
	Kind        Kind
	Path        string
	Version     string
	Coordinates []Coordinate
}

// Endpoint renders the source in the form the toolkit launcher accepts.
func (s Source) Endpoint() string {
	switch s.Kind {
	case KindPath:
		return s.Path
	case KindVersion:
		return s.Version
	case KindCoordinate, KindCoordinateList:
		parts := make([]string, len(s.Coordinates))
		for i, c := range s.Coordinates {
			parts[i] = c.String()
		}
		return strings.Join(parts, listSeparator)
	default:
		return ""
	}
}

// Raw returns the persisted representation: a single string, or a list for
// KindCoordinateList.
func (s Source) Raw() (single string, list []string) {
	if s.Kind != KindCoordinateList {
		return s.Endpoint(), nil
	}
	list = make([]string, len(s.Coordinates))
	for i, c := range s.Coordinates {
		list[i] = c.String()
	}
	return "", list
}

func (s Source) String() string {
	return s.Kind.String() + "(" + s.Endpoint() + ")"
}

// Classify determines the shape of a single source string. Strings joining
// coordinates with "+" classify as a coordinate list.
func Classify(value string) (Source, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return Source{}, &InvalidSpecError{Value: value, Reason: "empty source"}
	}

	if strings.Contains(trimmed, listSeparator) && !looksLikePath(trimmed) {
		return ClassifyList(strings.Split(trimmed, listSeparator))
	}

	if looksLikePath(trimmed) {
		return Source{Kind: KindPath, Path: trimmed}, nil
	}

	if strings.Contains(trimmed, ":") {
		coord, err := parseCoordinate(trimmed)
		if err != nil {
			return Source{}, err
		}
		return Source{Kind: KindCoordinate, Coordinates: []Coordinate{coord}}, nil
	}

	if versionPattern.MatchString(trimmed) {
		return Source{Kind: KindVersion, Version: trimmed}, nil
	}

	// A bare name such as "Fiji.app" is a directory relative to the base directory.
	return Source{Kind: KindPath, Path: trimmed}, nil
}

// ClassifyList classifies an explicit list of coordinates. The list must be
// non-empty and every element must be a well-formed coordinate.
func ClassifyList(values []string) (Source, error) {
	if len(values) == 0 {
		return Source{}, &InvalidSpecError{Reason: "empty coordinate list"}
	}

	coords := make([]Coordinate, 0, len(values))
	for _, raw := range values {
		coord, err := parseCoordinate(strings.TrimSpace(raw))
		if err != nil {
			return Source{}, err
		}
		coords = append(coords, coord)
	}

	return Source{Kind: KindCoordinateList, Coordinates: coords}, nil
}

func parseCoordinate(value string) (Coordinate, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Coordinate{}, &InvalidSpecError{
			Value:  value,
			Reason: fmt.Sprintf("coordinate must be group:artifact[:version], got %d segments", len(parts)),
		}
	}
	for i, part := range parts {
		if strings.TrimSpace(part) == "" {
			return Coordinate{}, &InvalidSpecError{
				Value:  value,
				Reason: fmt.Sprintf("coordinate segment %d is empty", i+1),
			}
		}
	}

	coord := Coordinate{Group: parts[0], Artifact: parts[1]}
	if len(parts) == 3 {
		coord.Version = parts[2]
	}
	return coord, nil
}

func looksLikePath(value string) bool {
	switch {
	case strings.HasPrefix(value, "/"),
		strings.HasPrefix(value, "~"),
		strings.HasPrefix(value, "."),
		strings.HasPrefix(value, `\\`),
		drivePathPattern.MatchString(value):
		return true
	}
	return strings.ContainsAny(value, `/\`)
}
