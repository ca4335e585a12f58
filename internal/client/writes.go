package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/store"
)

// insertRow inserts one row, resolving to-one relation payloads before the
// insert (they produce the foreign key value) and running to-many payloads
// after it (they need the parent key). Everything happens on the caller's
// transaction.
func (c *Client) insertRow(ctx context.Context, q store.Querier, model *metadata.Model, data map[string]any) (map[string]any, error) {
	scalars := map[string]any{}
	type pendingWrite struct {
		rel     *metadata.Relation
		payload map[string]any
	}
	var after []pendingWrite

	for _, key := range sortedKeys(data) {
		val := data[key]
		rel := model.GetRelation(key)
		if rel == nil {
			scalars[key] = val
			continue
		}
		payload, ok := docOf(val)
		if !ok {
			continue
		}
		if rel.IsList {
			after = append(after, pendingWrite{rel: rel, payload: payload})
			continue
		}
		fk, err := c.resolveToOneFK(ctx, q, model, rel, payload)
		if err != nil {
			return nil, err
		}
		scalars[rel.ForeignKey] = fk
	}

	pk := model.PrimaryKey
	if pk.Generated && pk.Type == "uuid" && scalars[pk.Field] == nil {
		scalars[pk.Field] = uuid.NewString()
	}

	row, err := c.insertScalars(ctx, q, model, scalars)
	if err != nil {
		return nil, err
	}
	for _, w := range after {
		if err := c.childWrites(ctx, q, model, row, w.rel, w.payload); err != nil {
			return nil, err
		}
	}
	return row, nil
}

func (c *Client) insertScalars(ctx context.Context, q store.Querier, model *metadata.Model, scalars map[string]any) (map[string]any, error) {
	pb := &paramBuilder{}
	cols := make([]string, 0, len(scalars))
	placeholders := make([]string, 0, len(scalars))
	for _, key := range sortedKeys(scalars) {
		cols = append(cols, quoteIdent(key))
		placeholders = append(placeholders, pb.add(scalars[key]))
	}
	var sql string
	if len(cols) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES RETURNING *", model.Table)
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
			model.Table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	}
	return store.QueryRow(ctx, q, sql, pb.params...)
}

// resolveToOneFK turns a to-one relation payload in create data into the
// foreign key value to store on this row.
func (c *Client) resolveToOneFK(ctx context.Context, q store.Querier, model *metadata.Model, rel *metadata.Relation, payload map[string]any) (any, error) {
	target := c.registry.GetModel(rel.Target)
	if target == nil {
		return nil, fmt.Errorf("relation %s.%s points at unknown model %s", model.Name, rel.Name, rel.Target)
	}
	if createDoc, ok := docOf(payload["create"]); ok {
		row, err := c.insertRow(ctx, q, target, createDoc)
		if err != nil {
			return nil, err
		}
		return row[rel.References], nil
	}
	if connectDoc, ok := docOf(payload["connect"]); ok {
		if v, ok := connectDoc[rel.References]; ok && len(connectDoc) == 1 {
			return v, nil
		}
		row, err := c.fetchOne(ctx, q, target, connectDoc)
		if err != nil {
			return nil, err
		}
		return row[rel.References], nil
	}
	return nil, fmt.Errorf("relation %s.%s: create data needs create or connect", model.Name, rel.Name)
}

// updateRow applies a data document to a fetched row: scalar columns first,
// relation payloads after.
func (c *Client) updateRow(ctx context.Context, q store.Querier, model *metadata.Model, row map[string]any, data map[string]any) error {
	pb := &paramBuilder{}
	setClause, err := setSQL(model, data, pb)
	if err != nil {
		return err
	}
	if setClause != "" {
		pk := model.PrimaryKey.Field
		sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			model.Table, setClause, quoteIdent(pk), pb.add(row[pk]))
		if _, err := store.Exec(ctx, q, sql, pb.params...); err != nil {
			return err
		}
	}
	for _, key := range sortedKeys(data) {
		rel := model.GetRelation(key)
		if rel == nil {
			continue
		}
		payload, ok := docOf(data[key])
		if !ok {
			continue
		}
		if err := c.childWrites(ctx, q, model, row, rel, payload); err != nil {
			return err
		}
	}
	return nil
}

// childWrites executes the operation keys of one relation payload against
// the related rows of parentRow.
func (c *Client) childWrites(ctx context.Context, q store.Querier, parentModel *metadata.Model, parentRow map[string]any, rel *metadata.Relation, payload map[string]any) error {
	target := c.registry.GetModel(rel.Target)
	if target == nil {
		return fmt.Errorf("relation %s.%s points at unknown model %s", parentModel.Name, rel.Name, rel.Target)
	}
	if rel.IsList {
		return c.childListWrites(ctx, q, parentModel, parentRow, rel, target, payload)
	}
	return c.childOneWrites(ctx, q, parentModel, parentRow, rel, target, payload)
}

func (c *Client) childListWrites(ctx context.Context, q store.Querier, parentModel *metadata.Model, parentRow map[string]any, rel *metadata.Relation, target *metadata.Model, payload map[string]any) error {
	parentVal := parentRow[rel.References]

	for _, kind := range []string{"create", "connect", "disconnect", "set", "update", "updateMany", "upsert", "delete", "deleteMany"} {
		raw, present := payload[kind]
		if !present {
			continue
		}
		elems, _ := asList(raw)
		switch kind {
		case "create":
			for _, elem := range elems {
				doc, ok := docOf(elem)
				if !ok {
					return fmt.Errorf("%s.%s create: expected object", parentModel.Name, rel.Name)
				}
				child := cloneDoc(doc)
				child[rel.ForeignKey] = parentVal
				if _, err := c.insertRow(ctx, q, target, child); err != nil {
					return err
				}
			}
		case "connect":
			for _, elem := range elems {
				if err := c.setChildFK(ctx, q, target, rel, elem, parentVal); err != nil {
					return err
				}
			}
		case "set":
			clear := fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s = $1",
				target.Table, quoteIdent(rel.ForeignKey), quoteIdent(rel.ForeignKey))
			if _, err := store.Exec(ctx, q, clear, parentVal); err != nil {
				return err
			}
			for _, elem := range elems {
				if err := c.setChildFK(ctx, q, target, rel, elem, parentVal); err != nil {
					return err
				}
			}
		case "disconnect":
			for _, elem := range elems {
				if err := c.setChildFK(ctx, q, target, rel, elem, nil, scopeCond{field: rel.ForeignKey, value: parentVal}); err != nil {
					return err
				}
			}
		case "update":
			for _, elem := range elems {
				doc, ok := docOf(elem)
				if !ok {
					return fmt.Errorf("%s.%s update: expected object", parentModel.Name, rel.Name)
				}
				where, _ := docOf(doc["where"])
				data, ok := docOf(doc["data"])
				if !ok {
					return fmt.Errorf("%s.%s update: data is required", parentModel.Name, rel.Name)
				}
				if err := c.updateScopedChildren(ctx, q, target, rel, parentVal, where, data, true); err != nil {
					return err
				}
			}
		case "updateMany":
			for _, elem := range elems {
				doc, ok := docOf(elem)
				if !ok {
					return fmt.Errorf("%s.%s updateMany: expected object", parentModel.Name, rel.Name)
				}
				where, _ := docOf(doc["where"])
				data, ok := docOf(doc["data"])
				if !ok {
					return fmt.Errorf("%s.%s updateMany: data is required", parentModel.Name, rel.Name)
				}
				if err := c.updateScopedChildren(ctx, q, target, rel, parentVal, where, data, false); err != nil {
					return err
				}
			}
		case "upsert":
			for _, elem := range elems {
				doc, ok := docOf(elem)
				if !ok {
					return fmt.Errorf("%s.%s upsert: expected object", parentModel.Name, rel.Name)
				}
				where, _ := docOf(doc["where"])
				row, err := c.fetchScopedChild(ctx, q, target, rel, parentVal, where)
				switch {
				case errors.Is(err, store.ErrNotFound):
					createDoc, ok := docOf(doc["create"])
					if !ok {
						return fmt.Errorf("%s.%s upsert: create is required", parentModel.Name, rel.Name)
					}
					child := cloneDoc(createDoc)
					child[rel.ForeignKey] = parentVal
					if _, err := c.insertRow(ctx, q, target, child); err != nil {
						return err
					}
				case err != nil:
					return err
				default:
					updateDoc, ok := docOf(doc["update"])
					if !ok {
						continue
					}
					if err := c.updateRow(ctx, q, target, row, updateDoc); err != nil {
						return err
					}
				}
			}
		case "delete", "deleteMany":
			for _, elem := range elems {
				where, ok := docOf(elem)
				if !ok && elem != true {
					continue
				}
				pb := &paramBuilder{}
				cond, err := c.whereSQL(target, where, pb)
				if err != nil {
					return err
				}
				scope := fmt.Sprintf("%s.%s = %s", target.Table, quoteIdent(rel.ForeignKey), pb.add(parentVal))
				if cond != "" {
					scope += " AND " + cond
				}
				sql := fmt.Sprintf("DELETE FROM %s WHERE %s", target.Table, scope)
				if _, err := store.Exec(ctx, q, sql, pb.params...); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type scopeCond struct {
	field string
	value any
}

// setChildFK points the child row identified by cond at parentVal (or NULL).
func (c *Client) setChildFK(ctx context.Context, q store.Querier, target *metadata.Model, rel *metadata.Relation, elem any, parentVal any, scopes ...scopeCond) error {
	where, _ := docOf(elem)
	pb := &paramBuilder{}
	set := quoteIdent(rel.ForeignKey) + " = "
	if parentVal == nil {
		set += "NULL"
	} else {
		set += pb.add(parentVal)
	}
	cond, err := c.whereSQL(target, where, pb)
	if err != nil {
		return err
	}
	var parts []string
	if cond != "" {
		parts = append(parts, cond)
	}
	for _, s := range scopes {
		parts = append(parts, fmt.Sprintf("%s.%s = %s", target.Table, quoteIdent(s.field), pb.add(s.value)))
	}
	if len(parts) == 0 {
		return fmt.Errorf("connect on %s needs a where condition", target.Name)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", target.Table, set, strings.Join(parts, " AND "))
	_, err = store.Exec(ctx, q, sql, pb.params...)
	return err
}

// updateScopedChildren updates children of one parent. When deep is set the
// data document may itself carry relation payloads, so each affected row is
// fetched and updated individually.
func (c *Client) updateScopedChildren(ctx context.Context, q store.Querier, target *metadata.Model, rel *metadata.Relation, parentVal any, where, data map[string]any, deep bool) error {
	if deep && hasRelationKeys(target, data) {
		rows, err := c.fetchScopedChildren(ctx, q, target, rel, parentVal, where)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if err := c.updateRow(ctx, q, target, row, data); err != nil {
				return err
			}
		}
		return nil
	}
	pb := &paramBuilder{}
	setClause, err := setSQL(target, data, pb)
	if err != nil {
		return err
	}
	if setClause == "" {
		return nil
	}
	cond, err := c.whereSQL(target, where, pb)
	if err != nil {
		return err
	}
	scope := fmt.Sprintf("%s.%s = %s", target.Table, quoteIdent(rel.ForeignKey), pb.add(parentVal))
	if cond != "" {
		scope += " AND " + cond
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s", target.Table, setClause, scope)
	_, err = store.Exec(ctx, q, sql, pb.params...)
	return err
}

func (c *Client) fetchScopedChild(ctx context.Context, q store.Querier, target *metadata.Model, rel *metadata.Relation, parentVal any, where map[string]any) (map[string]any, error) {
	rows, err := c.fetchScopedChildren(ctx, q, target, rel, parentVal, where)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	return rows[0], nil
}

func (c *Client) fetchScopedChildren(ctx context.Context, q store.Querier, target *metadata.Model, rel *metadata.Relation, parentVal any, where map[string]any) ([]map[string]any, error) {
	pb := &paramBuilder{}
	cond, err := c.whereSQL(target, where, pb)
	if err != nil {
		return nil, err
	}
	scope := fmt.Sprintf("%s.%s = %s", target.Table, quoteIdent(rel.ForeignKey), pb.add(parentVal))
	if cond != "" {
		scope += " AND " + cond
	}
	sql := fmt.Sprintf("SELECT %s.* FROM %s WHERE %s", target.Table, target.Table, scope)
	return store.QueryRows(ctx, q, sql, pb.params...)
}

func hasRelationKeys(model *metadata.Model, data map[string]any) bool {
	for key := range data {
		if model.GetRelation(key) != nil {
			return true
		}
	}
	return false
}

// childOneWrites handles a to-one relation payload on an update: the foreign
// key lives on the parent row.
func (c *Client) childOneWrites(ctx context.Context, q store.Querier, parentModel *metadata.Model, parentRow map[string]any, rel *metadata.Relation, target *metadata.Model, payload map[string]any) error {
	parentFK := parentRow[rel.ForeignKey]

	for _, kind := range []string{"create", "connect", "disconnect", "update", "upsert", "delete"} {
		raw, present := payload[kind]
		if !present {
			continue
		}
		switch kind {
		case "create":
			doc, ok := docOf(raw)
			if !ok {
				return fmt.Errorf("%s.%s create: expected object", parentModel.Name, rel.Name)
			}
			row, err := c.insertRow(ctx, q, target, doc)
			if err != nil {
				return err
			}
			if err := c.setParentFK(ctx, q, parentModel, parentRow, rel, row[rel.References]); err != nil {
				return err
			}
			parentFK = row[rel.References]
		case "connect":
			fk, err := c.resolveToOneFK(ctx, q, parentModel, rel, map[string]any{"connect": raw})
			if err != nil {
				return err
			}
			if err := c.setParentFK(ctx, q, parentModel, parentRow, rel, fk); err != nil {
				return err
			}
			parentFK = fk
		case "disconnect":
			if raw == false {
				continue
			}
			if err := c.setParentFK(ctx, q, parentModel, parentRow, rel, nil); err != nil {
				return err
			}
			parentFK = nil
		case "update":
			if parentFK == nil {
				return fmt.Errorf("%s.%s update: no related record", parentModel.Name, rel.Name)
			}
			data, ok := docOf(raw)
			if !ok {
				return fmt.Errorf("%s.%s update: expected object", parentModel.Name, rel.Name)
			}
			// {where, data} form also appears after rewrites; unwrap it.
			if inner, ok := docOf(data["data"]); ok {
				data = inner
			}
			row, err := c.fetchOne(ctx, q, target, map[string]any{rel.References: parentFK})
			if err != nil {
				return err
			}
			if err := c.updateRow(ctx, q, target, row, data); err != nil {
				return err
			}
		case "upsert":
			doc, ok := docOf(raw)
			if !ok {
				return fmt.Errorf("%s.%s upsert: expected object", parentModel.Name, rel.Name)
			}
			if parentFK == nil {
				createDoc, ok := docOf(doc["create"])
				if !ok {
					return fmt.Errorf("%s.%s upsert: create is required", parentModel.Name, rel.Name)
				}
				row, err := c.insertRow(ctx, q, target, createDoc)
				if err != nil {
					return err
				}
				if err := c.setParentFK(ctx, q, parentModel, parentRow, rel, row[rel.References]); err != nil {
					return err
				}
				parentFK = row[rel.References]
				continue
			}
			updateDoc, ok := docOf(doc["update"])
			if !ok {
				continue
			}
			row, err := c.fetchOne(ctx, q, target, map[string]any{rel.References: parentFK})
			if err != nil {
				return err
			}
			if err := c.updateRow(ctx, q, target, row, updateDoc); err != nil {
				return err
			}
		case "delete":
			if raw == false || parentFK == nil {
				continue
			}
			pb := &paramBuilder{}
			sql := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
				target.Table, quoteIdent(rel.References), pb.add(parentFK))
			if _, err := store.Exec(ctx, q, sql, pb.params...); err != nil {
				return err
			}
			if err := c.setParentFK(ctx, q, parentModel, parentRow, rel, nil); err != nil {
				return err
			}
			parentFK = nil
		}
	}
	return nil
}

func (c *Client) setParentFK(ctx context.Context, q store.Querier, parentModel *metadata.Model, parentRow map[string]any, rel *metadata.Relation, val any) error {
	pk := parentModel.PrimaryKey.Field
	pb := &paramBuilder{}
	set := quoteIdent(rel.ForeignKey) + " = "
	if val == nil {
		set += "NULL"
	} else {
		set += pb.add(val)
	}
	sql := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		parentModel.Table, set, quoteIdent(pk), pb.add(parentRow[pk]))
	if _, err := store.Exec(ctx, q, sql, pb.params...); err != nil {
		return err
	}
	parentRow[rel.ForeignKey] = val
	return nil
}
