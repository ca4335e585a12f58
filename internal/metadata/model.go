package metadata

import "fmt"

// Model describes one table-backed model: scalar fields, primary key,
// relation fields and uniqueness metadata. Definitions are stored as JSON
// in the _models system table and loaded into the Registry at boot.
type Model struct {
	Name       string     `json:"name"`
	Table      string     `json:"table"`
	PrimaryKey PrimaryKey `json:"primary_key"`
	Fields     []Field    `json:"fields"`
	Relations  []Relation `json:"relations,omitempty"`

	// CompoundUniqueIndexes lists multi-column unique constraints,
	// one field-name slice per index.
	CompoundUniqueIndexes [][]string `json:"compound_unique_indexes,omitempty"`
}

type PrimaryKey struct {
	Field     string `json:"field"`
	Type      string `json:"type"` // uuid, int, bigint, string
	Generated bool   `json:"generated"`
}

type Field struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Required bool   `json:"required,omitempty"`
	Unique   bool   `json:"unique,omitempty"`
	Default  any    `json:"default,omitempty"`
	Nullable bool   `json:"nullable,omitempty"`
}

// Relation is a relation field in the prisma style: it is addressed by the
// field name used inside args (data payloads, where filters, includes).
//
// For a list relation the foreign key lives on the target model and
// References names this model's referenced column. For a to-one relation
// the foreign key lives on this model and References names the target's
// referenced column.
type Relation struct {
	Name       string `json:"name"`
	Target     string `json:"target"`
	IsList     bool   `json:"is_list,omitempty"`
	ForeignKey string `json:"foreign_key"`
	References string `json:"references"`
}

// PostgresType returns the Postgres DDL type for this field.
func (f Field) PostgresType() string {
	switch f.Type {
	case "string", "text":
		return "TEXT"
	case "int":
		return "INTEGER"
	case "bigint":
		return "BIGINT"
	case "decimal":
		return "NUMERIC"
	case "boolean":
		return "BOOLEAN"
	case "uuid":
		return "UUID"
	case "timestamp":
		return "TIMESTAMPTZ"
	case "date":
		return "DATE"
	case "json":
		return "JSONB"
	default:
		return "TEXT"
	}
}

// GetField returns a pointer to the field with the given name, or nil.
func (m *Model) GetField(name string) *Field {
	for i := range m.Fields {
		if m.Fields[i].Name == name {
			return &m.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the model has a scalar field with the given name.
func (m *Model) HasField(name string) bool {
	return m.GetField(name) != nil
}

// FieldNames returns all scalar field names.
func (m *Model) FieldNames() []string {
	names := make([]string, len(m.Fields))
	for i, f := range m.Fields {
		names[i] = f.Name
	}
	return names
}

// GetRelation returns the relation field with the given name, or nil.
func (m *Model) GetRelation(name string) *Relation {
	for i := range m.Relations {
		if m.Relations[i].Name == name {
			return &m.Relations[i]
		}
	}
	return nil
}

// Validate checks structural invariants of a model definition.
func (m *Model) Validate() error {
	if m.Name == "" || m.Table == "" {
		return fmt.Errorf("model definition missing name or table")
	}
	if m.PrimaryKey.Field == "" {
		return fmt.Errorf("model %s missing primary key", m.Name)
	}
	for _, rel := range m.Relations {
		if rel.Name == "" || rel.Target == "" || rel.ForeignKey == "" || rel.References == "" {
			return fmt.Errorf("model %s has incomplete relation %q", m.Name, rel.Name)
		}
	}
	for _, idx := range m.CompoundUniqueIndexes {
		if len(idx) < 2 {
			return fmt.Errorf("model %s has compound unique index with fewer than two fields", m.Name)
		}
		for _, f := range idx {
			if !m.HasField(f) {
				return fmt.Errorf("model %s compound unique index names unknown field %s", m.Name, f)
			}
		}
	}
	return nil
}
