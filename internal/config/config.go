package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

const (
	// AppName names the per-user configuration directory.
	AppName = "napari-imagej"
	// EnvPrefix prefixes the environment variable for every key.
	EnvPrefix = "NAPARI_IMAGEJ_"

	originEnvironment = "environment"
)

// LoadOptions selects the override sources merged by Load.
// Precedence: Explicit values > settings file > environment variables.
// Defaults are applied later by Resolve.
type LoadOptions struct {
	// ConfigFile is a settings file that must exist. YAML or TOML, chosen by extension.
	ConfigFile string
	// SearchDefaultFile loads DefaultConfigPath when ConfigFile is empty and the file exists.
	SearchDefaultFile bool
	// LookupEnv reads environment variables; os.LookupEnv when nil.
	LookupEnv func(string) (string, bool)
	// Explicit holds caller-supplied values.
	Explicit Partial
}

// Load merges the override sources into a partial settings record. Fields
// absent from every source stay unset.
func Load(opts LoadOptions) (Partial, error) {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}

	settings, err := loadFromEnv(lookup)
	if err != nil {
		return Partial{}, err
	}

	path := opts.ConfigFile
	if path == "" && opts.SearchDefaultFile {
		path, err = existingDefaultPath()
		if err != nil {
			return Partial{}, err
		}
	}
	if path != "" {
		fromFile, err := LoadFile(path)
		if err != nil {
			return Partial{}, fmt.Errorf("load settings file: %w", err)
		}
		settings = Merge(settings, fromFile)
	}

	return Merge(settings, opts.Explicit), nil
}

// LoadFile reads a single settings file. Unknown keys are ignored.
func LoadFile(path string) (Partial, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Partial{}, fmt.Errorf("read file: %w", err)
	}
	return Decode(data, formatFromPath(path), path)
}

// Format is a settings file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

func formatFromPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Decode parses a settings document. origin names the document in errors.
func Decode(data []byte, format Format, origin string) (Partial, error) {
	var (
		values map[string]any
		err    error
	)
	switch format {
	case FormatTOML:
		values, err = decodeTOML(data)
	default:
		values, err = decodeYAML(data)
	}
	if err != nil {
		return Partial{}, &MalformedConfigError{Origin: origin, Err: err}
	}
	return partialFromValues(values, origin)
}

// DefaultConfigPath returns the per-user settings file location, following
// the platform convention for configuration directories.
func DefaultConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate user config directory: %w", err)
	}
	return filepath.Join(dir, AppName, "config.yaml"), nil
}

func existingDefaultPath() (string, error) {
	path, err := DefaultConfigPath()
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	return path, nil
}

func decodeYAML(data []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	values := make(map[string]any, len(doc))
	for key, node := range doc {
		value, err := nodeValue(&node)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", key, err)
		}
		if value != nil {
			values[key] = value
		}
	}
	return values, nil
}

// nodeValue keeps scalars as their source text so versions such as 2.10 are
// not reinterpreted as floats.
func nodeValue(node *yaml.Node) (any, error) {
	switch node.Kind {
	case yaml.ScalarNode:
		switch node.Tag {
		case "!!null":
			return nil, nil
		case "!!bool":
			var b bool
			if err := node.Decode(&b); err != nil {
				return nil, err
			}
			return b, nil
		default:
			return node.Value, nil
		}
	case yaml.SequenceNode:
		items := make([]any, 0, len(node.Content))
		for _, child := range node.Content {
			if child.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: list items must be scalars", child.Line)
			}
			items = append(items, child.Value)
		}
		return items, nil
	case yaml.AliasNode:
		return nodeValue(node.Alias)
	default:
		// Nested mappings belong to keys this version does not know about.
		return node, nil
	}
}

func decodeTOML(data []byte) (map[string]any, error) {
	var values map[string]any
	if _, err := toml.Decode(string(data), &values); err != nil {
		return nil, fmt.Errorf("parse TOML: %w", err)
	}
	return values, nil
}

func loadFromEnv(lookup func(string) (string, bool)) (Partial, error) {
	values := make(map[string]any)
	for _, key := range Keys {
		raw, ok := lookup(EnvVar(key))
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		values[key] = raw
	}
	return partialFromValues(values, originEnvironment)
}

// EnvVar returns the environment variable name for a settings key.
func EnvVar(key string) string {
	return EnvPrefix + strings.ToUpper(key)
}

// FromValues builds a partial record from generically decoded values, such as
// a JSON object. origin names the source in errors.
func FromValues(values map[string]any, origin string) (Partial, error) {
	return partialFromValues(values, origin)
}

func partialFromValues(values map[string]any, origin string) (Partial, error) {
	var p Partial
	malformed := func(key string, value any, err error) error {
		return &MalformedConfigError{Origin: origin, Key: key, Value: fmt.Sprint(value), Err: err}
	}

	if raw, ok := values[KeyRuntimeSource]; ok {
		v, err := toValues(raw)
		if err != nil {
			return Partial{}, malformed(KeyRuntimeSource, raw, err)
		}
		p.RuntimeSource = v
	}

	if raw, ok := values[KeyRuntimeBaseDirectory]; ok {
		s, err := toString(raw)
		if err != nil {
			return Partial{}, malformed(KeyRuntimeBaseDirectory, raw, err)
		}
		if s = strings.TrimSpace(s); s != "" {
			p.RuntimeBaseDirectory = &s
		}
	}

	if raw, ok := values[KeyLegacyModeEnabled]; ok {
		b, err := toBool(raw)
		if err != nil {
			return Partial{}, malformed(KeyLegacyModeEnabled, raw, err)
		}
		p.LegacyModeEnabled = &b
	}

	if raw, ok := values[KeyExecutionMode]; ok {
		s, err := toString(raw)
		if err == nil {
			var mode ExecutionMode
			if mode, err = ParseExecutionMode(s); err == nil {
				p.ExecutionMode = &mode
			}
		}
		if err != nil {
			return Partial{}, malformed(KeyExecutionMode, raw, err)
		}
	}

	if raw, ok := values[KeyTransferSelectionMode]; ok {
		var s string
		switch v := raw.(type) {
		case bool:
			s = strconv.FormatBool(v)
		default:
			var err error
			if s, err = toString(raw); err != nil {
				return Partial{}, malformed(KeyTransferSelectionMode, raw, err)
			}
		}
		mode, err := ParseTransferMode(s)
		if err != nil {
			return Partial{}, malformed(KeyTransferSelectionMode, raw, err)
		}
		p.TransferSelectionMode = &mode
	}

	if raw, ok := values[KeyRuntimeLaunchArguments]; ok {
		v, err := toValues(raw)
		if err != nil {
			return Partial{}, malformed(KeyRuntimeLaunchArguments, raw, err)
		}
		p.RuntimeLaunchArguments = v
	}

	return p, nil
}

func toString(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int, int64, uint64:
		return fmt.Sprint(v), nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), nil
	default:
		return "", fmt.Errorf("expected a string, got %T", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("expected a boolean")
		}
		return b, nil
	default:
		return false, fmt.Errorf("expected a boolean, got %T", raw)
	}
}

func toValues(raw any) (*Values, error) {
	switch v := raw.(type) {
	case []any:
		items := make([]string, 0, len(v))
		for _, item := range v {
			s, err := toText(item)
			if err != nil {
				return nil, fmt.Errorf("list item: %w", err)
			}
			items = append(items, s)
		}
		return ListValue(items...), nil
	case []string:
		return ListValue(v...), nil
	case string:
		return StringValue(v), nil
	case int, int64, uint64, float64:
		return nil, errNumericText
	default:
		return nil, fmt.Errorf("expected a string or a list of strings, got %T", raw)
	}
}

var errNumericText = errors.New("numbers lose their text (2.10 reads as 2.1); quote the value")

// toText accepts only strings; a decoded number has already lost its spelling.
func toText(raw any) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case int, int64, uint64, float64:
		return "", errNumericText
	default:
		return "", fmt.Errorf("expected a string, got %T", raw)
	}
}
