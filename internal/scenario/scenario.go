// Package scenario reads retirement inputs from YAML, TOML or JSON files.
//
// A scenario file names any subset of the input fields using their snake_case
// names. Fields the file leaves out keep the value of the base inputs it is
// loaded over. Rates are fractions (0.035 is 3.5%), as in the JSON API.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/goccy/go-json"
	"gopkg.in/yaml.v3"

	"retire/internal/core"
)

// Format is a scenario file encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatTOML
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatTOML:
		return "toml"
	case FormatJSON:
		return "json"
	default:
		return "yaml"
	}
}

var (
	ErrUnsupportedFormat = errors.New("unsupported scenario format")
	ErrInvalidScenario   = errors.New("invalid scenario")
)

// DetectFormat picks the format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: %q (want .yaml, .yml, .toml or .json)", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Load reads the scenario at path over base.
func Load(path string, base core.RetirementInputs) (core.RetirementInputs, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return base, err
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read scenario: %w", err)
	}
	in, err := Parse(content, format, base)
	if err != nil {
		return base, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// Parse decodes content over base. Unknown field names are an error so a
// typo cannot silently fall back to the base value. Values are not range
// checked here; the calculator does that.
func Parse(content []byte, format Format, base core.RetirementInputs) (core.RetirementInputs, error) {
	in := base
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(content))
		dec.KnownFields(true)
		if err := dec.Decode(&in); err != nil && !errors.Is(err, io.EOF) {
			return base, fmt.Errorf("%w: YAML: %v", ErrInvalidScenario, err)
		}
	case FormatTOML:
		md, err := toml.Decode(string(content), &in)
		if err != nil {
			return base, fmt.Errorf("%w: TOML: %v", ErrInvalidScenario, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, len(undecoded))
			for i, k := range undecoded {
				keys[i] = k.String()
			}
			return base, fmt.Errorf("%w: TOML: unknown fields %s", ErrInvalidScenario, strings.Join(keys, ", "))
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(content))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&in); err != nil {
			return base, fmt.Errorf("%w: JSON: %v", ErrInvalidScenario, err)
		}
	default:
		return base, fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
	return in, nil
}

// Write encodes in as format. Used by the CLI to print a scenario that can
// be loaded back.
func Write(w io.Writer, in core.RetirementInputs, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(in); err != nil {
			return fmt.Errorf("encode YAML: %w", err)
		}
		return enc.Close()
	case FormatTOML:
		if err := toml.NewEncoder(w).Encode(in); err != nil {
			return fmt.Errorf("encode TOML: %w", err)
		}
		return nil
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(in); err != nil {
			return fmt.Errorf("encode JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, format)
	}
}

// ParseFormat accepts a format name: yaml, yml, toml or json.
func ParseFormat(s string) (Format, error) {
	return DetectFormat("." + strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "."))
}
