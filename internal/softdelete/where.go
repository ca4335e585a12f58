package softdelete

// visibilityWhere injects the read-visibility constraint into a where
// document. Used by every read path. In the default except mode the
// caller's own constraint on the marker field wins.
func visibilityWhere(p policy, where any) any {
	doc, ok := asDocument(where)
	if where != nil && !ok {
		// unknown shape passes through untouched
		return where
	}
	switch p.option() {
	case QueryAll:
		return where
	case QueryOnly:
		out := cloneDocument(doc)
		out[p.Field] = map[string]any{"not": p.CreateValue(false)}
		return out
	default:
		if constrains(doc, p.Field) {
			return where
		}
		out := cloneDocument(doc)
		out[p.Field] = p.CreateValue(false)
		return out
	}
}

// newWhere is the transform for paths that change deletion state (the
// delete-kind rewrites). Unlike visibilityWhere it overrides any caller
// constraint on the marker field: these paths are about transitioning rows
// out of the visible set, so the engine decides which rows qualify.
func newWhere(p policy, where any) any {
	doc, ok := asDocument(where)
	if where != nil && !ok {
		return where
	}
	switch p.option() {
	case QueryAll:
		return where
	case QueryOnly:
		out := cloneDocument(doc)
		out[p.Field] = map[string]any{"not": p.CreateValue(false)}
		return out
	default:
		out := cloneDocument(doc)
		out[p.Field] = p.CreateValue(false)
		return out
	}
}

// everyWhere wraps a relation-filter condition reached under an "every"
// quantifier. Soft-deleted rows must satisfy the condition vacuously,
// otherwise hidden rows would make every() fail; OR-ing in "marker is not
// the not-deleted value" restricts the quantifier to visible rows.
func everyWhere(p policy, where any) any {
	if where == nil {
		where = map[string]any{}
	}
	return map[string]any{
		"OR": []any{
			map[string]any{p.Field: map[string]any{"not": p.CreateValue(false)}},
			where,
		},
	}
}
