package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputFormat selects how command results are printed.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
	FormatYAML OutputFormat = "yaml"
)

// ParseOutputFormat validates the --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML:
		return FormatYAML, nil
	}
	return "", WrapWithSuggestion(
		fmt.Errorf("unknown output format %q", s),
		"Use one of: text, json, yaml",
	)
}

// WriteStructured marshals data as JSON or YAML into w. FormatText is
// rejected; text rendering belongs to the caller.
func WriteStructured(w io.Writer, format OutputFormat, data interface{}) error {
	var (
		out []byte
		err error
	)
	switch format {
	case FormatJSON:
		out, err = MarshalJSON(data)
		if err == nil {
			out = append(out, '\n')
		}
	case FormatYAML:
		out, err = MarshalYAML(data)
	default:
		return fmt.Errorf("format %q is not a structured format", format)
	}
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

// MarshalJSON marshals the provided data as indented JSON.
func MarshalJSON(data interface{}) ([]byte, error) {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return jsonData, nil
}

// MarshalYAML marshals the provided data as YAML.
func MarshalYAML(data interface{}) ([]byte, error) {
	yamlData, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal YAML: %w", err)
	}
	return yamlData, nil
}
