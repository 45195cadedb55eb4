package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// keyDocs are written above each key. They are documentation only and are
// never read back.
var keyDocs = map[string]string{
	KeyRuntimeSource: "Toolkit to launch. One of: a local installation directory, a release version\n" +
		"(e.g. 2.3.0), an artifact coordinate (group:artifact[:version]), or a list of\n" +
		"coordinates combined into one environment.",
	KeyRuntimeBaseDirectory: "Directory the toolkit treats as its home. Empty means the working directory\n" +
		"of the viewer process.",
	KeyLegacyModeEnabled: "Include the original ImageJ compatibility layer. Some coordinates do not\n" +
		"ship it; the bridge decides how to handle that combination.",
	KeyExecutionMode: "headless or interactive. Interactive lets the toolkit show its own windows.\n" +
		"Hosts without interactive support always start headless.",
	KeyTransferSelectionMode: "active sends the viewer's active element; prompt asks which element to send.",
	KeyRuntimeLaunchArguments: "Extra JVM arguments, e.g. -Xmx4g. A single string is split on whitespace.",
}

// EncodeOption adjusts how Encode writes a settings document.
type EncodeOption func(*encodeOptions)

type encodeOptions struct {
	omitUnset bool
}

// OmitUnset leaves unset fields out of the document so later reads fall
// through to the environment and the built-in defaults.
func OmitUnset() EncodeOption {
	return func(o *encodeOptions) {
		o.omitUnset = true
	}
}

// Encode writes p as a commented YAML document containing every key. Unset
// fields are written with their documented defaults unless OmitUnset is given.
func Encode(w io.Writer, p Partial, opts ...EncodeOption) error {
	var o encodeOptions
	for _, opt := range opts {
		opt(&o)
	}

	doc := &yaml.Node{Kind: yaml.MappingNode}
	for _, key := range Keys {
		if o.omitUnset && !isSet(key, p) {
			continue
		}
		keyNode := &yaml.Node{Kind: yaml.ScalarNode, Value: key, HeadComment: keyDocs[key]}
		doc.Content = append(doc.Content, keyNode, valueNode(key, p))
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return enc.Close()
}

// WriteFile writes p to path as YAML, creating parent directories.
func WriteFile(path string, p Partial, opts ...EncodeOption) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".settings-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if err := Encode(tmp, p, opts...); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace settings file: %w", err)
	}
	return nil
}

func isSet(key string, p Partial) bool {
	switch key {
	case KeyRuntimeSource:
		return p.RuntimeSource != nil
	case KeyRuntimeBaseDirectory:
		return p.RuntimeBaseDirectory != nil
	case KeyLegacyModeEnabled:
		return p.LegacyModeEnabled != nil
	case KeyExecutionMode:
		return p.ExecutionMode != nil
	case KeyTransferSelectionMode:
		return p.TransferSelectionMode != nil
	case KeyRuntimeLaunchArguments:
		return p.RuntimeLaunchArguments != nil
	default:
		return false
	}
}

func valueNode(key string, p Partial) *yaml.Node {
	switch key {
	case KeyRuntimeSource:
		if p.RuntimeSource == nil {
			return stringNode(DefaultRuntimeSource)
		}
		return valuesNode(*p.RuntimeSource)
	case KeyRuntimeBaseDirectory:
		if p.RuntimeBaseDirectory == nil {
			return stringNode("")
		}
		return stringNode(*p.RuntimeBaseDirectory)
	case KeyLegacyModeEnabled:
		legacy := DefaultLegacyModeEnabled
		if p.LegacyModeEnabled != nil {
			legacy = *p.LegacyModeEnabled
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: strconv.FormatBool(legacy)}
	case KeyExecutionMode:
		mode := DefaultExecutionMode
		if p.ExecutionMode != nil {
			mode = *p.ExecutionMode
		}
		return stringNode(string(mode))
	case KeyTransferSelectionMode:
		mode := DefaultTransferSelectionMode
		if p.TransferSelectionMode != nil {
			mode = *p.TransferSelectionMode
		}
		return stringNode(string(mode))
	case KeyRuntimeLaunchArguments:
		if p.RuntimeLaunchArguments == nil {
			return &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		}
		return valuesNode(*p.RuntimeLaunchArguments)
	default:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
	}
}

// stringNode forces the string tag so values like 2.10 or "true" keep their type.
func stringNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

func valuesNode(v Values) *yaml.Node {
	if !v.IsList {
		return stringNode(v.Single)
	}
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	if len(v.List) == 0 {
		seq.Style = yaml.FlowStyle
	}
	for _, item := range v.List {
		seq.Content = append(seq.Content, stringNode(item))
	}
	return seq
}
