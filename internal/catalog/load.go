package catalog

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed data/catalog.schema.json data/default.yaml
var dataFS embed.FS

const schemaURL = "catalog.schema.json"

// #region format

// Format is a catalog file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatJSON Format = "json"
)

// FormatFromPath picks the format from a file extension, defaulting to YAML.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML
	case ".json":
		return FormatJSON
	}
	return FormatYAML
}

// #endregion format

// #region schema

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		data, err := dataFS.ReadFile("data/catalog.schema.json")
		if err != nil {
			schemaErr = fmt.Errorf("read schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(data)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// #endregion schema

// #region parse

// Parse decodes, schema-checks and semantically validates a catalog.
// Top-level keys starting with "x-" are treated as comments (YAML anchors
// live there) and stripped before validation.
func Parse(data []byte, format Format) (*Catalog, error) {
	var raw map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidCatalog, err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode toml: %v", ErrInvalidCatalog, err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode json: %v", ErrInvalidCatalog, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", ErrInvalidCatalog, format)
	}
	for k := range raw {
		if strings.HasPrefix(k, "x-") {
			delete(raw, k)
		}
	}

	// Round-trip through JSON so every format reaches the schema validator and
	// the typed decoder with the same shapes.
	normalised, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: normalise: %v", ErrInvalidCatalog, err)
	}
	var instance any
	if err := json.Unmarshal(normalised, &instance); err != nil {
		return nil, fmt.Errorf("%w: normalise: %v", ErrInvalidCatalog, err)
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(instance); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
	}

	var c Catalog
	if err := json.Unmarshal(normalised, &c); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidCatalog, err)
	}
	if err := Validate(&c); err != nil {
		return nil, err
	}
	c.buildIndex()
	return &c, nil
}

// LoadFile reads and parses a catalog file.
func LoadFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	c, err := Parse(data, FormatFromPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the embedded default catalog.
func Default() (*Catalog, error) {
	data, err := dataFS.ReadFile("data/default.yaml")
	if err != nil {
		return nil, fmt.Errorf("read default catalog: %w", err)
	}
	return Parse(data, FormatYAML)
}

// Load returns the catalog at path, or the embedded default when path is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default()
	}
	return LoadFile(path)
}

// #endregion parse

// #region validate

// Validate runs the semantic checks the schema cannot express: unique IDs,
// well-formed predicates and params, and parseable templates.
func Validate(c *Catalog) error {
	seen := make(map[string]bool, len(c.Interventions))
	for i, s := range c.Interventions {
		if s.ID == "" {
			return fmt.Errorf("%w: intervention %d has no id", ErrInvalidCatalog, i)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, s.ID)
		}
		seen[s.ID] = true
		if !s.Category.Valid() {
			return fmt.Errorf("%w: %s: unknown category %q", ErrInvalidCatalog, s.ID, s.Category)
		}
		if len(s.Targets) == 0 {
			return fmt.Errorf("%w: %s: no targets", ErrInvalidCatalog, s.ID)
		}
		if err := s.When.validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidCatalog, s.ID, err)
		}
		for j, t := range s.Targets {
			if t.Device == "" {
				return fmt.Errorf("%w: %s: target %d has no device", ErrInvalidCatalog, s.ID, j)
			}
			for name, p := range t.Payload {
				if err := p.validate(); err != nil {
					return fmt.Errorf("%w: %s: %s.%s: %v", ErrInvalidCatalog, s.ID, t.Device, name, err)
				}
			}
		}
	}
	return nil
}

func (p Param) validate() error {
	set := 0
	if p.Value != nil {
		set++
	}
	if p.From != "" {
		set++
	}
	if p.Text != "" {
		set++
	}
	if set != 1 {
		return fmt.Errorf("exactly one of value, from, text must be set")
	}
	if p.From != "" {
		if !p.From.Valid() {
			return fmt.Errorf("unknown dimension %q", p.From)
		}
		if len(p.Range) != 2 {
			return fmt.Errorf("from %s needs range [lo, hi]", p.From)
		}
	}
	if p.Text != "" {
		if _, err := template.New("param").Option("missingkey=error").Parse(p.Text); err != nil {
			return fmt.Errorf("template: %v", err)
		}
	}
	return nil
}

// #endregion validate
