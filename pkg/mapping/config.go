package mapping

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

var (
	// ErrInvalidConfig indicates the mapping file does not have the expected shape.
	ErrInvalidConfig = errors.New("invalid mapping config")

	// ErrMalformedColumn indicates a column entry that does not resolve to a
	// destination column name.
	ErrMalformedColumn = errors.New("unable to determine mapping details")
)

// Marker keys used inside the mapping file.
const (
	keyMeta    = ":meta"
	keyTable   = ":table"
	keyColumns = ":columns"
	keyColumn  = ":column"
	keySource  = ":source"
	keyType    = ":type"
)

// File is the parsed mapping configuration. Groups and tables keep the order
// they have in the file.
type File struct {
	Groups []Group
}

// Group is a top-level grouping label with its collections.
type Group struct {
	Label  string
	Tables []TableMapping
}

// TableMapping describes how one source collection is copied into one
// destination table.
type TableMapping struct {
	Group      string
	Collection string
	Table      string
	Columns    []ColumnMapping
}

// ColumnMapping maps one destination column. Source defaults to Column when
// empty. Type is an optional hint used to pick a coercion.
type ColumnMapping struct {
	Column string
	Source string
	Type   string

	raw yaml.MapSlice
}

// SourceField returns the name of the document field read for this column.
func (c ColumnMapping) SourceField() string {
	if c.Source != "" {
		return c.Source
	}
	return c.Column
}

// UnmarshalYAML accepts both the shorthand form, where the single non-marker
// key is the column name and its value the type hint:
//
//	":columns":
//	  - name: text
//	  - owner_id: null
//	    ":source": owner
//
// and the explicit form using ":column", ":source" and ":type". An explicit
// ":type" takes precedence over a shorthand value regardless of key order.
func (c *ColumnMapping) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var entry yaml.MapSlice
	if err := unmarshal(&entry); err != nil {
		return fmt.Errorf("%w: column entry must be a map: %v", ErrInvalidConfig, err)
	}
	c.raw = entry

	var shorthandType string
	for _, item := range entry {
		key := fmt.Sprint(item.Key)
		switch key {
		case keyType:
			c.Type = scalarString(item.Value)
		case keySource:
			c.Source = scalarString(item.Value)
		case keyColumn:
			if c.Column != "" {
				return fmt.Errorf("%w: more than one column name in %s", ErrMalformedColumn, c.describe())
			}
			c.Column = scalarString(item.Value)
		default:
			if c.Column != "" {
				return fmt.Errorf("%w: more than one column name in %s", ErrMalformedColumn, c.describe())
			}
			c.Column = key
			shorthandType = scalarString(item.Value)
		}
	}
	if c.Type == "" {
		c.Type = shorthandType
	}
	return nil
}

// Validate checks that the entry resolved to a destination column.
func (c ColumnMapping) Validate() error {
	if c.Column == "" {
		return fmt.Errorf("%w: %s", ErrMalformedColumn, c.describe())
	}
	return nil
}

func (c ColumnMapping) describe() string {
	if c.raw == nil {
		return fmt.Sprintf("{%s: %q, %s: %q, %s: %q}", keyColumn, c.Column, keySource, c.Source, keyType, c.Type)
	}
	out, err := yaml.Marshal(c.raw)
	if err != nil {
		return fmt.Sprint(c.raw)
	}
	return string(out)
}

func scalarString(v interface{}) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type collectionYaml struct {
	Meta struct {
		Table string `yaml:":table"`
	} `yaml:":meta"`
	Columns []ColumnMapping `yaml:":columns"`
}

// UnmarshalYAML keeps the order of collections as written in the file.
func (g *Group) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var order yaml.MapSlice
	if err := unmarshal(&order); err != nil {
		return fmt.Errorf("%w: group must be a map of collections: %v", ErrInvalidConfig, err)
	}
	var collections map[string]collectionYaml
	if err := unmarshal(&collections); err != nil {
		return err
	}

	for _, item := range order {
		name := fmt.Sprint(item.Key)
		c := collections[name]
		g.Tables = append(g.Tables, TableMapping{
			Collection: name,
			Table:      c.Meta.Table,
			Columns:    c.Columns,
		})
	}
	return nil
}

// UnmarshalYAML keeps the order of grouping labels as written in the file.
func (f *File) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var order yaml.MapSlice
	if err := unmarshal(&order); err != nil {
		return fmt.Errorf("%w: top level must be a map: %v", ErrInvalidConfig, err)
	}
	var groups map[string]Group
	if err := unmarshal(&groups); err != nil {
		return err
	}

	for _, item := range order {
		label := fmt.Sprint(item.Key)
		g := groups[label]
		g.Label = label
		for i := range g.Tables {
			g.Tables[i].Group = label
		}
		f.Groups = append(f.Groups, g)
	}
	return nil
}

// Tables returns all table mappings in file order.
func (f *File) Tables() []TableMapping {
	var tables []TableMapping
	for _, g := range f.Groups {
		tables = append(tables, g.Tables...)
	}
	return tables
}

// Validate checks every table and column entry without touching any store.
func (f *File) Validate() error {
	for _, t := range f.Tables() {
		if t.Table == "" {
			return fmt.Errorf("%w: collection %s has no %s.%s", ErrInvalidConfig, t.Collection, keyMeta, keyTable)
		}
		if len(t.Columns) == 0 {
			return fmt.Errorf("%w: collection %s has no %s", ErrInvalidConfig, t.Collection, keyColumns)
		}
		seen := make(map[string]bool, len(t.Columns))
		for _, c := range t.Columns {
			if err := c.Validate(); err != nil {
				return fmt.Errorf("collection %s: %w", t.Collection, err)
			}
			if seen[c.Column] {
				return fmt.Errorf("%w: collection %s maps column %s twice", ErrInvalidConfig, t.Collection, c.Column)
			}
			seen[c.Column] = true
		}
	}
	return nil
}

// Parse decodes and validates mapping file content.
func Parse(content []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(content, &f); err != nil {
		if errors.Is(err, ErrMalformedColumn) || errors.Is(err, ErrInvalidConfig) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// LoadFile reads and validates the mapping file at path.
func LoadFile(path string) (*File, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file: %w", err)
	}
	return Parse(content)
}
