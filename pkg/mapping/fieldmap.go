package mapping

import (
	"errors"
	"fmt"

	"github.com/infectieradar-nl/doc-sql-migration-tool/pkg/schema"
)

// IDField is the document identifier, always part of the query projection.
const IDField = "_id"

// ErrFieldNotFound indicates a mapped column has no attribute in the destination model.
var ErrFieldNotFound = errors.New("unable to find field in schema")

// Row is a destination row keyed by logical field name.
type Row map[string]any

// FieldMap resolves source fields to destination attributes for one table.
type FieldMap struct {
	fieldsByColumn  map[string]schema.Attribute
	columnsBySource map[string]string
	coercions       map[string]Coercion

	// mapped source fields in mapping order
	sources []string
	// attributes that receive false when the document does not carry them
	boolDefaults []schema.Attribute
}

// Build creates the field map of a table from its destination model and its
// column mappings.
func Build(model *schema.Model, columns []ColumnMapping) (*FieldMap, error) {
	fm := &FieldMap{
		fieldsByColumn:  make(map[string]schema.Attribute, len(model.Attributes)),
		columnsBySource: make(map[string]string, len(columns)),
		coercions:       make(map[string]Coercion, len(columns)),
	}
	for _, a := range model.Attributes {
		fm.fieldsByColumn[a.Column] = a
	}

	for _, c := range columns {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		attr, ok := fm.fieldsByColumn[c.Column]
		if !ok {
			return nil, fmt.Errorf("%w: column %s of table %s", ErrFieldNotFound, c.Column, model.Table)
		}

		source := c.SourceField()
		if _, dup := fm.columnsBySource[source]; !dup {
			fm.sources = append(fm.sources, source)
		}
		fm.columnsBySource[source] = c.Column

		switch {
		case isTextHint(c.Type):
			fm.coercions[c.Column] = ToText
		case attr.IsBoolean():
			fm.coercions[c.Column] = BooleanDefault
			fm.boolDefaults = append(fm.boolDefaults, attr)
		default:
			fm.coercions[c.Column] = Identity
		}
	}
	return fm, nil
}

// FieldFor returns the attribute stored in the given column.
func (fm *FieldMap) FieldFor(column string) (schema.Attribute, bool) {
	a, ok := fm.fieldsByColumn[column]
	return a, ok
}

// ColumnFor returns the destination column fed by a source field.
func (fm *FieldMap) ColumnFor(source string) (string, bool) {
	c, ok := fm.columnsBySource[source]
	return c, ok
}

// CoercionFor returns the coercion applied to values written to column.
func (fm *FieldMap) CoercionFor(column string) Coercion {
	return fm.coercions[column]
}

// Sources returns the mapped source fields in mapping order.
func (fm *FieldMap) Sources() []string {
	return append([]string(nil), fm.sources...)
}

// Projection returns the document fields to fetch: the identifier followed
// by every mapped source field.
func (fm *FieldMap) Projection() []string {
	projection := []string{IDField}
	for _, s := range fm.sources {
		if s != IDField {
			projection = append(projection, s)
		}
	}
	return projection
}

// Transform builds the destination row of a document. Fields that are not
// mapped are ignored.
func (fm *FieldMap) Transform(doc map[string]any) (Row, error) {
	row := make(Row, len(fm.sources))
	for field, value := range doc {
		column, ok := fm.columnsBySource[field]
		if !ok {
			continue
		}
		attr, ok := fm.fieldsByColumn[column]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrFieldNotFound, field)
		}
		row[attr.Name] = fm.coercions[column].Apply(value)
	}

	for _, attr := range fm.boolDefaults {
		if _, ok := row[attr.Name]; !ok {
			row[attr.Name] = false
		}
	}
	return row, nil
}
