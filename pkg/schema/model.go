package schema

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// ErrModelNotFound indicates no destination model is registered for a table name.
var ErrModelNotFound = errors.New("destination model not found")

// Attribute types the migrator cares about. Any other declared type is kept
// as-is and treated as pass-through.
const (
	TypeString   = "string"
	TypeInteger  = "integer"
	TypeFloat    = "float"
	TypeBoolean  = "boolean"
	TypeDatetime = "datetime"
	TypeJSON     = "json"
	TypeArray    = "array"
	TypeBinary   = "binary"
)

// Attribute is one logical field of a destination model.
type Attribute struct {
	Name   string
	Column string
	Type   string
	// Model is set for association attributes and names the referenced model.
	Model string
}

// IsBoolean reports whether the attribute holds a boolean column.
func (a Attribute) IsBoolean() bool {
	return a.Type == TypeBoolean
}

// Model describes a destination table.
type Model struct {
	Name       string
	Table      string
	Attributes []Attribute
}

// Registry maps destination table names to models. It is built once at
// startup and read-only afterwards.
type Registry struct {
	byTable map[string]*Model
}

func NewRegistry(models ...*Model) *Registry {
	r := &Registry{byTable: make(map[string]*Model, len(models))}
	for _, m := range models {
		r.Add(m)
	}
	return r
}

// Add registers a model under its table name, or its name when no table is set.
// A later model for the same table replaces the earlier one.
func (r *Registry) Add(m *Model) {
	key := m.Table
	if key == "" {
		key = m.Name
	}
	r.byTable[key] = m
}

// Has reports whether a model is registered for the table.
func (r *Registry) Has(table string) bool {
	_, ok := r.byTable[table]
	return ok
}

// Lookup returns the model for a table.
// Returns ErrModelNotFound if the table is unknown.
func (r *Registry) Lookup(table string) (*Model, error) {
	m, ok := r.byTable[table]
	if !ok {
		return nil, fmt.Errorf("%w: tableName=%s", ErrModelNotFound, table)
	}
	return m, nil
}

type attributeYaml struct {
	Type       string `yaml:"type"`
	ColumnName string `yaml:"columnName"`
	Model      string `yaml:"model"`

	// Accepted for compatibility with existing model definitions, not used.
	Unique     bool        `yaml:"unique"`
	PrimaryKey bool        `yaml:"primaryKey"`
	Required   bool        `yaml:"required"`
	DefaultsTo interface{} `yaml:"defaultsTo"`
}

type modelYaml struct {
	TableName     string        `yaml:"tableName"`
	AutoCreatedAt bool          `yaml:"autoCreatedAt"`
	AutoUpdatedAt bool          `yaml:"autoUpdatedAt"`
	Attributes    yaml.MapSlice `yaml:"attributes"`
}

// LoadModels reads a models file. Top-level keys are model names; each entry
// holds an optional tableName (defaults to the lower-cased model name) and an
// ordered attributes map whose entries carry type and columnName (defaults to
// the attribute name).
func LoadModels(path string) ([]*Model, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read models file: %w", err)
	}
	return ParseModels(content)
}

// ParseModels parses the content of a models file, see LoadModels.
func ParseModels(content []byte) ([]*Model, error) {
	var order yaml.MapSlice
	if err := yaml.Unmarshal(content, &order); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}
	var defs map[string]modelYaml
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse models: %w", err)
	}

	models := make([]*Model, 0, len(order))
	for _, item := range order {
		name := fmt.Sprint(item.Key)
		def := defs[name]

		m := &Model{Name: name, Table: def.TableName}
		if m.Table == "" {
			m.Table = strings.ToLower(name)
		}

		for _, attrItem := range def.Attributes {
			attrName := fmt.Sprint(attrItem.Key)
			raw, err := yaml.Marshal(attrItem.Value)
			if err != nil {
				return nil, fmt.Errorf("model %s attribute %s: %w", name, attrName, err)
			}
			var attr attributeYaml
			if err := yaml.UnmarshalStrict(raw, &attr); err != nil {
				return nil, fmt.Errorf("model %s attribute %s: %w", name, attrName, err)
			}
			column := attr.ColumnName
			if column == "" {
				column = attrName
			}
			m.Attributes = append(m.Attributes, Attribute{
				Name:   attrName,
				Column: column,
				Type:   strings.ToLower(attr.Type),
				Model:  attr.Model,
			})
		}
		if len(m.Attributes) == 0 {
			return nil, fmt.Errorf("model %s has no attributes", name)
		}
		models = append(models, m)
	}
	return models, nil
}
