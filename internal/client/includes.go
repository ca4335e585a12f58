package client

import (
	"context"
	"fmt"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/store"
)

// loadRelations attaches related records for every include entry and every
// relation selected in select. Each relation loads with one batched query
// over the parent keys, then recurses for its own nested entries.
func (c *Client) loadRelations(ctx context.Context, q store.Querier, model *metadata.Model, rows []map[string]any, args map[string]any) error {
	if len(rows) == 0 {
		return nil
	}
	entries := relationEntries(model, args)
	for _, name := range sortedKeys(entries) {
		entry := entries[name]
		if entry == false {
			continue
		}
		rel := model.GetRelation(name)
		if rel == nil {
			continue
		}
		entryDoc, _ := docOf(entry)
		if entryDoc == nil {
			entryDoc = map[string]any{}
		}
		target := c.registry.GetModel(rel.Target)
		if target == nil {
			return fmt.Errorf("relation %s.%s points at unknown model %s", model.Name, rel.Name, rel.Target)
		}
		var err error
		if rel.IsList {
			err = c.loadListRelation(ctx, q, model, rel, target, rows, entryDoc)
		} else {
			err = c.loadOneRelation(ctx, q, rel, target, rows, entryDoc)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// relationEntries merges include entries with the relation-valued entries of
// select into one map of relation name to entry.
func relationEntries(model *metadata.Model, args map[string]any) map[string]any {
	entries := map[string]any{}
	if sel, ok := docOf(args["select"]); ok {
		for name, entry := range sel {
			if model.GetRelation(name) != nil {
				entries[name] = entry
			}
		}
	}
	if inc, ok := docOf(args["include"]); ok {
		for name, entry := range inc {
			entries[name] = entry
		}
	}
	return entries
}

func (c *Client) loadListRelation(ctx context.Context, q store.Querier, model *metadata.Model, rel *metadata.Relation, target *metadata.Model, rows []map[string]any, entry map[string]any) error {
	keys := parentKeys(rows, rel.References)
	if len(keys) == 0 {
		attachEmptyLists(rows, rel.Name)
		return nil
	}

	pb := &paramBuilder{}
	scope := fmt.Sprintf("%s.%s = ANY(%s)", target.Table, quoteIdent(rel.ForeignKey), pb.add(keys))
	cond, err := c.whereSQL(target, entry["where"], pb)
	if err != nil {
		return err
	}
	if cond != "" {
		scope += " AND " + cond
	}
	sql := fmt.Sprintf("SELECT %s.* FROM %s WHERE %s", target.Table, target.Table, scope)
	if order := orderBySQL(target, entry["orderBy"]); order != "" {
		sql += " ORDER BY " + order
	}
	children, err := store.QueryRows(ctx, q, sql, pb.params...)
	if err != nil {
		return err
	}

	if err := c.loadRelations(ctx, q, target, children, entry); err != nil {
		return err
	}

	grouped := map[string][]map[string]any{}
	for _, child := range children {
		key := fmt.Sprint(child[rel.ForeignKey])
		grouped[key] = append(grouped[key], child)
	}
	take, hasTake := toInt(entry["take"])
	for _, row := range rows {
		group := grouped[fmt.Sprint(row[rel.References])]
		if group == nil {
			group = []map[string]any{}
		}
		if hasTake && len(group) > take {
			group = group[:take]
		}
		projectRows(group, entry)
		row[rel.Name] = group
	}
	return nil
}

func (c *Client) loadOneRelation(ctx context.Context, q store.Querier, rel *metadata.Relation, target *metadata.Model, rows []map[string]any, entry map[string]any) error {
	keys := parentKeys(rows, rel.ForeignKey)
	if len(keys) == 0 {
		for _, row := range rows {
			row[rel.Name] = nil
		}
		return nil
	}

	pb := &paramBuilder{}
	scope := fmt.Sprintf("%s.%s = ANY(%s)", target.Table, quoteIdent(rel.References), pb.add(keys))
	cond, err := c.whereSQL(target, entry["where"], pb)
	if err != nil {
		return err
	}
	if cond != "" {
		scope += " AND " + cond
	}
	sql := fmt.Sprintf("SELECT %s.* FROM %s WHERE %s", target.Table, target.Table, scope)
	children, err := store.QueryRows(ctx, q, sql, pb.params...)
	if err != nil {
		return err
	}

	if err := c.loadRelations(ctx, q, target, children, entry); err != nil {
		return err
	}

	byKey := map[string]map[string]any{}
	for _, child := range children {
		byKey[fmt.Sprint(child[rel.References])] = child
	}
	for _, row := range rows {
		fk := row[rel.ForeignKey]
		if fk == nil {
			row[rel.Name] = nil
			continue
		}
		child, ok := byKey[fmt.Sprint(fk)]
		if !ok {
			row[rel.Name] = nil
			continue
		}
		projectRows([]map[string]any{child}, entry)
		row[rel.Name] = child
	}
	return nil
}

func parentKeys(rows []map[string]any, field string) []any {
	seen := map[string]struct{}{}
	var keys []any
	for _, row := range rows {
		v := row[field]
		if v == nil {
			continue
		}
		k := fmt.Sprint(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, v)
	}
	return keys
}

func attachEmptyLists(rows []map[string]any, name string) {
	for _, row := range rows {
		row[name] = []map[string]any{}
	}
}
