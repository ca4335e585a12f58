package store

import (
	"context"
	"fmt"
	"strings"

	"paranoid-backend/internal/metadata"
)

type Migrator struct {
	store *Store
}

func NewMigrator(store *Store) *Migrator {
	return &Migrator{store: store}
}

// MarkerColumn describes the soft-delete marker column a model needs when
// it is opted into soft delete and the column is not declared as a field.
type MarkerColumn struct {
	Name string
	Type string // "boolean" or "timestamp"
}

func (c MarkerColumn) ddlType() string {
	if c.Type == "timestamp" {
		return "TIMESTAMPTZ"
	}
	return "BOOLEAN NOT NULL DEFAULT false"
}

// Migrate ensures the table matches the model metadata: creates the table
// if it doesn't exist, otherwise adds missing columns.
func (m *Migrator) Migrate(ctx context.Context, model *metadata.Model, marker *MarkerColumn) error {
	exists, err := m.tableExists(ctx, model.Table)
	if err != nil {
		return fmt.Errorf("check table exists: %w", err)
	}
	if !exists {
		return m.createTable(ctx, model, marker)
	}
	return m.alterTable(ctx, model, marker)
}

func (m *Migrator) tableExists(ctx context.Context, tableName string) (bool, error) {
	var exists bool
	err := m.store.Pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = 'public')`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (m *Migrator) createTable(ctx context.Context, model *metadata.Model, marker *MarkerColumn) error {
	var cols []string
	for i := range model.Fields {
		cols = append(cols, m.buildColumnDef(model, &model.Fields[i]))
	}
	if marker != nil && !model.HasField(marker.Name) {
		cols = append(cols, fmt.Sprintf("%s %s", marker.Name, marker.ddlType()))
	}
	for _, idx := range model.CompoundUniqueIndexes {
		cols = append(cols, fmt.Sprintf("UNIQUE (%s)", strings.Join(idx, ", ")))
	}

	sql := fmt.Sprintf("CREATE TABLE %s (\n\t%s\n)", model.Table, strings.Join(cols, ",\n\t"))
	if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create table %s: %w", model.Table, err)
	}
	return nil
}

func (m *Migrator) alterTable(ctx context.Context, model *metadata.Model, marker *MarkerColumn) error {
	existing, err := m.existingColumns(ctx, model.Table)
	if err != nil {
		return err
	}

	for i := range model.Fields {
		f := &model.Fields[i]
		if existing[f.Name] {
			continue
		}
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", model.Table, m.buildColumnDef(model, f))
		if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("add column %s.%s: %w", model.Table, f.Name, err)
		}
	}

	if marker != nil && !existing[marker.Name] {
		sql := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", model.Table, marker.Name, marker.ddlType())
		if _, err := m.store.Pool.Exec(ctx, sql); err != nil {
			return fmt.Errorf("add marker column %s.%s: %w", model.Table, marker.Name, err)
		}
	}
	return nil
}

func (m *Migrator) existingColumns(ctx context.Context, tableName string) (map[string]bool, error) {
	rows, err := m.store.Pool.Query(ctx,
		`SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = 'public'`,
		tableName,
	)
	if err != nil {
		return nil, fmt.Errorf("list columns for %s: %w", tableName, err)
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		existing[name] = true
	}
	return existing, rows.Err()
}

func (m *Migrator) buildColumnDef(model *metadata.Model, f *metadata.Field) string {
	def := fmt.Sprintf("%s %s", f.Name, f.PostgresType())

	if f.Name == model.PrimaryKey.Field {
		def += " PRIMARY KEY"
		if model.PrimaryKey.Generated {
			switch model.PrimaryKey.Type {
			case "uuid":
				def += " DEFAULT gen_random_uuid()"
			case "int", "bigint":
				def = fmt.Sprintf("%s %s PRIMARY KEY", f.Name,
					map[string]string{"int": "SERIAL", "bigint": "BIGSERIAL"}[model.PrimaryKey.Type])
			}
		}
		return def
	}

	if f.Required && !f.Nullable {
		def += " NOT NULL"
	}
	if f.Unique {
		def += " UNIQUE"
	}
	return def
}
