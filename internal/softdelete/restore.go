package softdelete

// Restore post-processes a result after the rewritten operation executed.
// Today the only restorer strips a marker field that was injected into a
// selection purely for filtering, so callers get back exactly the shape
// they asked for. Results with no matching restorer are returned untouched.
func (e *Engine) Restore(result any, params OperationParams, ctx *RewriteContext) any {
	if ctx == nil || !ctx.DeletedFieldAdded {
		return result
	}
	cfg, ok := e.configs[params.Model]
	if !ok {
		return result
	}
	return stripField(result, cfg.Field)
}

// stripField removes the field from a record, or from every element of a
// list result. Other shapes pass through.
func stripField(result any, field string) any {
	switch v := result.(type) {
	case map[string]any:
		delete(v, field)
	case []map[string]any:
		for _, row := range v {
			delete(row, field)
		}
	case []any:
		for _, item := range v {
			if row, ok := item.(map[string]any); ok {
				delete(row, field)
			}
		}
	}
	return result
}
