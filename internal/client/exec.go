package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/softdelete"
	"paranoid-backend/internal/store"
)

// execute runs a fully rewritten operation tree against Postgres.
func (c *Client) execute(ctx context.Context, p softdelete.OperationParams) (any, error) {
	model := c.registry.GetModel(p.Model)
	if model == nil {
		return nil, fmt.Errorf("unknown model %q", p.Model)
	}
	args, _ := docOf(p.Args)
	if args == nil {
		args = map[string]any{}
	}

	switch p.Operation {
	case softdelete.OpFindMany:
		return c.findMany(ctx, c.store.Pool, model, args)
	case softdelete.OpFindFirst, softdelete.OpFindUnique:
		return c.findOne(ctx, model, args, false)
	case softdelete.OpFindFirstOrThrow, softdelete.OpFindUniqueOrThrow:
		return c.findOne(ctx, model, args, true)
	case softdelete.OpCount:
		return c.count(ctx, model, args)
	case softdelete.OpAggregate:
		return c.aggregate(ctx, model, args)
	case softdelete.OpGroupBy:
		return c.groupBy(ctx, model, args)
	case softdelete.OpCreate:
		return c.create(ctx, model, args)
	case softdelete.OpUpdate:
		return c.update(ctx, model, args)
	case softdelete.OpUpdateMany:
		return c.updateMany(ctx, model, args)
	case softdelete.OpUpsert:
		return c.upsert(ctx, model, args)
	case softdelete.OpDelete:
		return c.physicalDelete(ctx, model, args)
	case softdelete.OpDeleteMany:
		return c.physicalDeleteMany(ctx, model, args)
	default:
		return nil, fmt.Errorf("unsupported operation %q", p.Operation)
	}
}

func (c *Client) findMany(ctx context.Context, q store.Querier, model *metadata.Model, args map[string]any) ([]map[string]any, error) {
	pb := &paramBuilder{}
	sql, err := c.buildSelect(model, args, pb)
	if err != nil {
		return nil, err
	}
	rows, err := store.QueryRows(ctx, q, sql, pb.params...)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	if err := c.loadRelations(ctx, q, model, rows, args); err != nil {
		return nil, err
	}
	projectRows(rows, args)
	return rows, nil
}

func (c *Client) findOne(ctx context.Context, model *metadata.Model, args map[string]any, required bool) (map[string]any, error) {
	limited := cloneDoc(args)
	limited["take"] = 1
	rows, err := c.findMany(ctx, c.store.Pool, model, limited)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		if required {
			return nil, fmt.Errorf("%s: %w", model.Name, store.ErrNotFound)
		}
		return nil, nil
	}
	return rows[0], nil
}

func (c *Client) count(ctx context.Context, model *metadata.Model, args map[string]any) (int64, error) {
	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", model.Table)
	if cond != "" {
		sql += " WHERE " + cond
	}
	row, err := store.QueryRow(ctx, c.store.Pool, sql, pb.params...)
	if err != nil {
		return 0, err
	}
	n, _ := row["n"].(int64)
	return n, nil
}

var aggregateOps = map[string]string{
	"_count": "COUNT",
	"_avg":   "AVG",
	"_sum":   "SUM",
	"_min":   "MIN",
	"_max":   "MAX",
}

func (c *Client) aggregate(ctx context.Context, model *metadata.Model, args map[string]any) (map[string]any, error) {
	exprs, err := aggregateExprs(model, args)
	if err != nil {
		return nil, err
	}
	if len(exprs) == 0 {
		exprs = []string{"COUNT(*) AS __count__all"}
	}

	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s FROM %s", strings.Join(exprs, ", "), model.Table)
	if cond != "" {
		sql += " WHERE " + cond
	}
	row, err := store.QueryRow(ctx, c.store.Pool, sql, pb.params...)
	if err != nil {
		return nil, err
	}
	return reshapeAggregates(row), nil
}

func (c *Client) groupBy(ctx context.Context, model *metadata.Model, args map[string]any) ([]map[string]any, error) {
	byFields, err := groupByFields(args)
	if err != nil {
		return nil, err
	}
	exprs := make([]string, 0, len(byFields)+2)
	for _, f := range byFields {
		exprs = append(exprs, fmt.Sprintf("%s.%s", model.Table, quoteIdent(f)))
	}
	aggExprs, err := aggregateExprs(model, args)
	if err != nil {
		return nil, err
	}
	exprs = append(exprs, aggExprs...)

	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(exprs, ", "), model.Table)
	if cond != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(cond)
	}
	groupCols := make([]string, len(byFields))
	for i, f := range byFields {
		groupCols[i] = quoteIdent(f)
	}
	sb.WriteString(" GROUP BY ")
	sb.WriteString(strings.Join(groupCols, ", "))
	if order := orderBySQL(model, args["orderBy"]); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}

	rows, err := store.QueryRows(ctx, c.store.Pool, sb.String(), pb.params...)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		out[i] = reshapeAggregates(row)
	}
	return out, nil
}

func groupByFields(args map[string]any) ([]string, error) {
	raw, _ := asList(args["by"])
	fields := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("groupBy: by entries must be field names")
		}
		fields = append(fields, s)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("groupBy: by is required")
	}
	return fields, nil
}

// aggregateExprs compiles _count/_avg/_sum/_min/_max selections into SQL
// expressions aliased __op__field so rows reshape back deterministically.
func aggregateExprs(model *metadata.Model, args map[string]any) ([]string, error) {
	var exprs []string
	for _, op := range []string{"_count", "_avg", "_sum", "_min", "_max"} {
		spec, present := args[op]
		if !present {
			continue
		}
		fn := aggregateOps[op]
		if spec == true && op == "_count" {
			exprs = append(exprs, "COUNT(*) AS __count__all")
			continue
		}
		doc, ok := docOf(spec)
		if !ok {
			return nil, fmt.Errorf("aggregate: %s must be an object of field selections", op)
		}
		for _, field := range sortedKeys(doc) {
			if doc[field] != true {
				continue
			}
			alias := fmt.Sprintf("__%s__%s", strings.TrimPrefix(op, "_"), field)
			exprs = append(exprs, fmt.Sprintf("%s(%s.%s) AS %s", fn, model.Table, quoteIdent(field), alias))
		}
	}
	return exprs, nil
}

// reshapeAggregates turns aliased aggregate columns back into the nested
// result shape: __avg__price becomes _avg.price, __count__all becomes _count.
func reshapeAggregates(row map[string]any) map[string]any {
	out := map[string]any{}
	for key, val := range row {
		if !strings.HasPrefix(key, "__") {
			out[key] = val
			continue
		}
		parts := strings.SplitN(strings.TrimPrefix(key, "__"), "__", 2)
		if len(parts) != 2 {
			out[key] = val
			continue
		}
		op, field := "_"+parts[0], parts[1]
		if field == "all" && op == "_count" {
			out["_count"] = val
			continue
		}
		bucket, _ := out[op].(map[string]any)
		if bucket == nil {
			bucket = map[string]any{}
			out[op] = bucket
		}
		bucket[field] = val
	}
	return out
}

func (c *Client) create(ctx context.Context, model *metadata.Model, args map[string]any) (map[string]any, error) {
	data, ok := docOf(args["data"])
	if !ok {
		return nil, fmt.Errorf("create %s: data is required", model.Name)
	}
	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row, err := c.insertRow(ctx, tx, model, data)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c.decorateRecord(ctx, model, row, args)
}

func (c *Client) update(ctx context.Context, model *metadata.Model, args map[string]any) (map[string]any, error) {
	where, ok := docOf(args["where"])
	if !ok {
		return nil, fmt.Errorf("update %s: where is required", model.Name)
	}
	data, ok := docOf(args["data"])
	if !ok {
		return nil, fmt.Errorf("update %s: data is required", model.Name)
	}

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row, err := c.fetchOne(ctx, tx, model, where)
	if err != nil {
		return nil, err
	}
	if err := c.updateRow(ctx, tx, model, row, data); err != nil {
		return nil, err
	}
	pk := model.PrimaryKey.Field
	fresh, err := c.fetchOne(ctx, tx, model, map[string]any{pk: row[pk]})
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c.decorateRecord(ctx, model, fresh, args)
}

func (c *Client) updateMany(ctx context.Context, model *metadata.Model, args map[string]any) (int64, error) {
	data, ok := docOf(args["data"])
	if !ok {
		return 0, fmt.Errorf("updateMany %s: data is required", model.Name)
	}
	pb := &paramBuilder{}
	setClause, err := setSQL(model, data, pb)
	if err != nil {
		return 0, err
	}
	if setClause == "" {
		return 0, nil
	}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("UPDATE %s SET %s", model.Table, setClause)
	if cond != "" {
		sql += " WHERE " + cond
	}
	return store.Exec(ctx, c.store.Pool, sql, pb.params...)
}

func (c *Client) upsert(ctx context.Context, model *metadata.Model, args map[string]any) (map[string]any, error) {
	where, ok := docOf(args["where"])
	if !ok {
		return nil, fmt.Errorf("upsert %s: where is required", model.Name)
	}
	createData, _ := docOf(args["create"])
	updateData, _ := docOf(args["update"])

	tx, err := c.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	row, err := c.fetchOne(ctx, tx, model, where)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if createData == nil {
			return nil, fmt.Errorf("upsert %s: create is required", model.Name)
		}
		row, err = c.insertRow(ctx, tx, model, createData)
		if err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if updateData != nil {
			if err := c.updateRow(ctx, tx, model, row, updateData); err != nil {
				return nil, err
			}
		}
		pk := model.PrimaryKey.Field
		row, err = c.fetchOne(ctx, tx, model, map[string]any{pk: row[pk]})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return c.decorateRecord(ctx, model, row, args)
}

// physicalDelete runs only when the rewrite let a delete through: under
// ForceDelete or for models without a soft-delete policy.
func (c *Client) physicalDelete(ctx context.Context, model *metadata.Model, args map[string]any) (map[string]any, error) {
	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return nil, err
	}
	if cond == "" {
		return nil, fmt.Errorf("delete %s: where is required", model.Name)
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s RETURNING *", model.Table, cond)
	row, err := store.QueryRow(ctx, c.store.Pool, sql, pb.params...)
	if err != nil {
		return nil, err
	}
	return row, nil
}

func (c *Client) physicalDeleteMany(ctx context.Context, model *metadata.Model, args map[string]any) (int64, error) {
	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return 0, err
	}
	sql := fmt.Sprintf("DELETE FROM %s", model.Table)
	if cond != "" {
		sql += " WHERE " + cond
	}
	return store.Exec(ctx, c.store.Pool, sql, pb.params...)
}

// fetchOne loads a single row inside a transaction, without relations.
func (c *Client) fetchOne(ctx context.Context, q store.Querier, model *metadata.Model, where map[string]any) (map[string]any, error) {
	pb := &paramBuilder{}
	cond, err := c.whereSQL(model, where, pb)
	if err != nil {
		return nil, err
	}
	sql := fmt.Sprintf("SELECT %s.* FROM %s", model.Table, model.Table)
	if cond != "" {
		sql += " WHERE " + cond
	}
	sql += " LIMIT 1"
	return store.QueryRow(ctx, q, sql, pb.params...)
}

// decorateRecord loads requested relations for a single written row and
// applies the projection.
func (c *Client) decorateRecord(ctx context.Context, model *metadata.Model, row map[string]any, args map[string]any) (map[string]any, error) {
	rows := []map[string]any{row}
	if err := c.loadRelations(ctx, c.store.Pool, model, rows, args); err != nil {
		return nil, err
	}
	projectRows(rows, args)
	return rows[0], nil
}

// setSQL compiles scalar assignments of a data document; relation keys were
// already consumed by the nested-write pass.
func setSQL(model *metadata.Model, data map[string]any, pb *paramBuilder) (string, error) {
	var parts []string
	for _, key := range sortedKeys(data) {
		if model.GetRelation(key) != nil {
			continue
		}
		parts = append(parts, quoteIdent(key)+" = "+pb.add(data[key]))
	}
	return strings.Join(parts, ", "), nil
}

// projectRows applies a select projection in place. Rows without a select
// keep every column.
func projectRows(rows []map[string]any, args map[string]any) {
	sel, ok := docOf(args["select"])
	if !ok || len(sel) == 0 {
		return
	}
	for _, row := range rows {
		for key := range row {
			keep, present := sel[key]
			if !present || keep == false {
				delete(row, key)
			}
		}
	}
}
