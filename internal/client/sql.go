package client

import (
	"fmt"
	"strings"

	"paranoid-backend/internal/metadata"
)

// paramBuilder accumulates positional query parameters.
type paramBuilder struct {
	params []any
}

func (p *paramBuilder) add(v any) string {
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", len(p.params))
}

// buildSelect compiles a find operation into SQL. Columns are always the
// full row; projection happens after relation loading so foreign keys stay
// available for batching.
func (c *Client) buildSelect(model *metadata.Model, args map[string]any, pb *paramBuilder) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s.* FROM %s", model.Table, model.Table)

	cond, err := c.whereSQL(model, args["where"], pb)
	if err != nil {
		return "", err
	}
	if cond != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(cond)
	}
	if order := orderBySQL(model, args["orderBy"]); order != "" {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(order)
	}
	if take, ok := toInt(args["take"]); ok {
		fmt.Fprintf(&sb, " LIMIT %d", take)
	}
	if skip, ok := toInt(args["skip"]); ok {
		fmt.Fprintf(&sb, " OFFSET %d", skip)
	}
	return sb.String(), nil
}

// whereSQL compiles a where document into a SQL condition. Conditions join
// with AND; keys compile in sorted order so generated SQL is deterministic.
func (c *Client) whereSQL(model *metadata.Model, where any, pb *paramBuilder) (string, error) {
	doc, ok := docOf(where)
	if !ok || len(doc) == 0 {
		return "", nil
	}
	var parts []string
	for _, key := range sortedKeys(doc) {
		val := doc[key]
		switch key {
		case "AND", "OR":
			joined, err := c.combineSQL(model, val, key, pb)
			if err != nil {
				return "", err
			}
			if joined != "" {
				parts = append(parts, joined)
			}
		case "NOT":
			inner, err := c.combineSQL(model, val, "AND", pb)
			if err != nil {
				return "", err
			}
			if inner != "" {
				parts = append(parts, "NOT ("+inner+")")
			}
		default:
			if rel := model.GetRelation(key); rel != nil {
				cond, err := c.relationSQL(model, rel, val, pb)
				if err != nil {
					return "", err
				}
				if cond != "" {
					parts = append(parts, cond)
				}
				continue
			}
			cond, err := fieldSQL(model.Table, key, val, pb)
			if err != nil {
				return "", err
			}
			parts = append(parts, cond)
		}
	}
	return strings.Join(parts, " AND "), nil
}

func (c *Client) combineSQL(model *metadata.Model, val any, joiner string, pb *paramBuilder) (string, error) {
	items, _ := asList(val)
	var parts []string
	for _, item := range items {
		cond, err := c.whereSQL(model, item, pb)
		if err != nil {
			return "", err
		}
		if cond != "" {
			parts = append(parts, "("+cond+")")
		}
	}
	return strings.Join(parts, " "+joiner+" "), nil
}

// fieldSQL compiles one column condition: a scalar means equality, a
// document carries comparison operators.
func fieldSQL(table, field string, val any, pb *paramBuilder) (string, error) {
	col := table + "." + quoteIdent(field)
	if val == nil {
		return col + " IS NULL", nil
	}
	opDoc, ok := docOf(val)
	if !ok {
		return col + " = " + pb.add(val), nil
	}
	var parts []string
	for _, op := range sortedKeys(opDoc) {
		v := opDoc[op]
		cond, err := operatorSQL(table, field, col, op, v, pb)
		if err != nil {
			return "", err
		}
		parts = append(parts, cond)
	}
	return strings.Join(parts, " AND "), nil
}

func operatorSQL(table, field, col, op string, v any, pb *paramBuilder) (string, error) {
	switch op {
	case "equals":
		if v == nil {
			return col + " IS NULL", nil
		}
		return col + " = " + pb.add(v), nil
	case "not":
		if v == nil {
			return col + " IS NOT NULL", nil
		}
		if _, ok := docOf(v); ok {
			inner, err := fieldSQL(table, field, v, pb)
			if err != nil {
				return "", err
			}
			return "NOT (" + inner + ")", nil
		}
		return col + " <> " + pb.add(v), nil
	case "in":
		return col + " = ANY(" + pb.add(listParam(v)) + ")", nil
	case "notIn":
		return col + " <> ALL(" + pb.add(listParam(v)) + ")", nil
	case "lt":
		return col + " < " + pb.add(v), nil
	case "lte":
		return col + " <= " + pb.add(v), nil
	case "gt":
		return col + " > " + pb.add(v), nil
	case "gte":
		return col + " >= " + pb.add(v), nil
	case "contains":
		return col + " LIKE " + pb.add("%"+fmt.Sprint(v)+"%"), nil
	case "startsWith":
		return col + " LIKE " + pb.add(fmt.Sprint(v)+"%"), nil
	case "endsWith":
		return col + " LIKE " + pb.add("%"+fmt.Sprint(v)), nil
	default:
		return "", fmt.Errorf("unknown filter operator %q on %s", op, field)
	}
}

func listParam(v any) []any {
	if list, ok := v.([]any); ok {
		return list
	}
	return []any{v}
}

// relationSQL compiles a relation filter into an EXISTS subquery linked
// through the foreign key declared in metadata.
func (c *Client) relationSQL(model *metadata.Model, rel *metadata.Relation, val any, pb *paramBuilder) (string, error) {
	target := c.registry.GetModel(rel.Target)
	if target == nil {
		return "", fmt.Errorf("relation %s.%s points at unknown model %s", model.Name, rel.Name, rel.Target)
	}
	filter, ok := docOf(val)
	if !ok {
		return "", fmt.Errorf("relation filter on %s.%s must be an object", model.Name, rel.Name)
	}

	if rel.IsList {
		link := fmt.Sprintf("%s.%s = %s.%s", target.Table, quoteIdent(rel.ForeignKey), model.Table, quoteIdent(rel.References))
		var parts []string
		for _, mod := range []string{"some", "every", "none"} {
			cond, present := filter[mod]
			if !present {
				continue
			}
			sub, err := c.whereSQL(target, cond, pb)
			if err != nil {
				return "", err
			}
			switch mod {
			case "some":
				parts = append(parts, existsSQL(target.Table, link, sub, false))
			case "none":
				parts = append(parts, existsSQL(target.Table, link, sub, true))
			case "every":
				if sub == "" {
					continue
				}
				parts = append(parts, existsSQL(target.Table, link+" AND NOT ("+sub+")", "", true))
			}
		}
		return strings.Join(parts, " AND "), nil
	}

	link := fmt.Sprintf("%s.%s = %s.%s", target.Table, quoteIdent(rel.References), model.Table, quoteIdent(rel.ForeignKey))
	var parts []string
	matched := false
	for _, mod := range []string{"is", "isNot"} {
		cond, present := filter[mod]
		if !present {
			continue
		}
		matched = true
		sub, err := c.whereSQL(target, cond, pb)
		if err != nil {
			return "", err
		}
		parts = append(parts, existsSQL(target.Table, link, sub, mod == "isNot"))
	}
	if !matched {
		sub, err := c.whereSQL(target, filter, pb)
		if err != nil {
			return "", err
		}
		parts = append(parts, existsSQL(target.Table, link, sub, false))
	}
	return strings.Join(parts, " AND "), nil
}

func existsSQL(table, link, cond string, negate bool) string {
	body := link
	if cond != "" {
		body += " AND " + cond
	}
	sql := fmt.Sprintf("EXISTS (SELECT 1 FROM %s WHERE %s)", table, body)
	if negate {
		return "NOT " + sql
	}
	return sql
}

func orderBySQL(model *metadata.Model, val any) string {
	items, _ := asList(val)
	var parts []string
	for _, item := range items {
		doc, ok := docOf(item)
		if !ok {
			continue
		}
		for _, field := range sortedKeys(doc) {
			dir := "ASC"
			if s, ok := doc[field].(string); ok && strings.EqualFold(s, "desc") {
				dir = "DESC"
			}
			parts = append(parts, fmt.Sprintf("%s.%s %s", model.Table, quoteIdent(field), dir))
		}
	}
	return strings.Join(parts, ", ")
}

// quoteIdent quotes a column name so fields named like keywords still work.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
