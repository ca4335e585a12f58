package softdelete

// injectInclude applies nested-visibility overrides to a caller's include
// document on the given model.
//
// With no NestModels entries the include passes through unchanged: included
// relations then surface rows according to the included model's own policy
// when it is dispatched as its own operation. That inheritance is
// deliberately preserved as-is (see the quirk test in rules_test.go).
//
// With NestModels entries, every included relation matching a configured
// key gets a not-deleted filter injected into its where, unless the entry
// is true, which keeps that relation's trashed rows visible too. The filter
// uses the included model's own policy, since it constrains the included
// model's rows; relations whose target is not soft-delete enabled are left
// alone.
func (e *Engine) injectInclude(p policy, model string, include any) any {
	if len(p.NestModels) == 0 {
		return include
	}
	doc, ok := asDocument(include)
	if !ok {
		return include
	}

	out := cloneDocument(doc)
	for name, entry := range doc {
		includeTrashed, configured := p.NestModels[name]
		if !configured || includeTrashed {
			continue
		}
		rel := e.registry.Relation(model, name)
		if rel == nil {
			continue
		}
		target, enabled := e.configs[rel.Target]
		if !enabled {
			continue
		}
		out[name] = injectIncludeEntry(entry, target)
	}
	return out
}

// injectIncludeEntry adds {field: createValue(false)} to one include
// entry's where. `include: {posts: true}` becomes an entry document so the
// filter has somewhere to live.
func injectIncludeEntry(entry any, target ModelConfig) any {
	notDeleted := target.CreateValue(false)

	entryDoc, ok := asDocument(entry)
	if !ok {
		if b, isBool := entry.(bool); isBool && !b {
			return entry
		}
		return map[string]any{
			"where": map[string]any{target.Field: notDeleted},
		}
	}

	out := cloneDocument(entryDoc)
	whereDoc, _ := asDocument(entryDoc["where"])
	where := cloneDocument(whereDoc)
	where[target.Field] = notDeleted
	out["where"] = where
	return out
}
