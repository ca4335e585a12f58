package softdelete

// One rewrite rule per operation kind. Each rule is a pure function of the
// effective policy and the operation node; it may change the operation
// kind, inject where/include/select/data fragments, or reject the node
// with an error. Shapes a rule does not recognize pass through so the
// underlying client keeps its native error contract for malformed calls.

// rewriteDelete turns a delete into an update of the deletion marker.
func rewriteDelete(p policy, params OperationParams) (RewriteResult, error) {
	if b, ok := params.Args.(bool); ok {
		if !b {
			// `delete: false` shorthand is a no-op for the client too
			return RewriteResult{Params: params}, nil
		}
		// `delete: true` nested shorthand: becomes a to-one update of the
		// marker, tagged so the update rule lets it through the relation
		// guard.
		if p.forceDelete {
			return RewriteResult{Params: params}, nil
		}
		params.Operation = OpUpdate
		params.Args = map[string]any{
			passUpdateThrough: true,
			p.Field:           p.CreateValue(true),
		}
		return RewriteResult{Params: params}, nil
	}

	if p.forceDelete {
		return RewriteResult{Params: params}, nil
	}

	doc, ok := asDocument(params.Args)
	if !ok {
		return RewriteResult{Params: params}, nil
	}

	if params.Root() {
		if !constrains(doc, "where") {
			// A root delete without a where falls through so the client
			// raises its own error for the malformed call.
			return RewriteResult{Params: params}, nil
		}
		out := cloneDocument(doc)
		out["where"] = newWhere(p, doc["where"])
		out["data"] = map[string]any{p.Field: p.CreateValue(true)}
		params.Operation = OpUpdate
		params.Args = out
		return RewriteResult{Params: params}, nil
	}

	// Nested delete entries carry either a {where} wrapper or a bare
	// condition document, the same dual shape deleteMany accepts. Both
	// become a marker update, tagged for the relation guard like the
	// boolean shorthand above.
	where := any(doc)
	if constrains(doc, "where") {
		where = doc["where"]
	}
	params.Operation = OpUpdate
	params.Args = map[string]any{
		passUpdateThrough: true,
		"where":           newWhere(p, where),
		"data":            map[string]any{p.Field: p.CreateValue(true)},
	}
	return RewriteResult{Params: params}, nil
}

// rewriteDeleteMany turns a deleteMany into an updateMany of the deletion
// marker. Nested deleteMany entries may be a bare condition document
// instead of a {where} wrapper; both shapes are handled.
func rewriteDeleteMany(p policy, params OperationParams) (RewriteResult, error) {
	if p.forceDelete {
		return RewriteResult{Params: params}, nil
	}

	var where any
	doc, ok := asDocument(params.Args)
	switch {
	case ok && (constrains(doc, "where") || params.Root()):
		where = doc["where"]
	case ok:
		where = doc
	case params.Args == nil:
		where = nil
	default:
		return RewriteResult{Params: params}, nil
	}

	params.Operation = OpUpdateMany
	params.Args = map[string]any{
		"where": newWhere(p, where),
		"data":  map[string]any{p.Field: p.CreateValue(true)},
	}
	return RewriteResult{Params: params}, nil
}

// rewriteUpdate guards updates reached through a to-one relation and strips
// the delete-shorthand sentinel.
func rewriteUpdate(p policy, params OperationParams) (RewriteResult, error) {
	doc, ok := asDocument(params.Args)
	sentinel := ok && constrains(doc, passUpdateThrough)

	if s := params.Scope; s != nil && !s.Relation.IsList && !p.AllowToOneUpdates && !sentinel {
		return RewriteResult{}, &RelationSafetyError{
			Model:     params.Model,
			Relation:  s.Relation.FieldName,
			Operation: OpUpdate,
		}
	}

	if sentinel {
		out := cloneDocument(doc)
		delete(out, passUpdateThrough)
		params.Args = out
	}
	return RewriteResult{Params: params}, nil
}

// rewriteUpdateMany scopes bulk updates to the current visibility. In the
// default except mode the marker filter is injected only when the caller
// did not constrain the marker field themselves.
func rewriteUpdateMany(p policy, params OperationParams) (RewriteResult, error) {
	doc, ok := asDocument(params.Args)
	if !ok {
		return RewriteResult{Params: params}, nil
	}
	out := cloneDocument(doc)
	out["where"] = visibilityWhere(p, doc["where"])
	params.Args = out
	return RewriteResult{Params: params}, nil
}

// rewriteUpsert rejects upserts reached through a to-one relation. There is
// no sentinel escape here: an upsert can always create, so rewriting a
// delete into one never produces it.
func rewriteUpsert(p policy, params OperationParams) (RewriteResult, error) {
	if s := params.Scope; s != nil && !s.Relation.IsList && !p.AllowToOneUpdates {
		return RewriteResult{}, &RelationSafetyError{
			Model:     params.Model,
			Relation:  s.Relation.FieldName,
			Operation: OpUpsert,
		}
	}
	return RewriteResult{Params: params}, nil
}

// rewriteFindUnique redirects unique point lookups to findFirst so the
// visibility filter can be injected, after the unique-index guard clears
// the lookup.
func (e *Engine) rewriteFindUnique(p policy, params OperationParams) (RewriteResult, error) {
	doc, ok := asDocument(params.Args)
	if !ok {
		return RewriteResult{Params: params}, nil
	}
	where, ok := asDocument(doc["where"])
	if !ok || len(where) == 0 {
		return RewriteResult{Params: params}, nil
	}

	pass, err := e.guardUniqueWhere(p, params.Model, where)
	if err != nil {
		return RewriteResult{}, err
	}
	if pass || !e.hasUniqueField(params.Model, where) {
		return RewriteResult{Params: params}, nil
	}

	switch params.Operation {
	case OpFindUniqueOrThrow:
		params.Operation = OpFindFirstOrThrow
	default:
		params.Operation = OpFindFirst
	}
	return e.rewriteFind(p, params)
}

// rewriteFind injects the visibility where and the per-relation include
// filters into a read operation.
func (e *Engine) rewriteFind(p policy, params OperationParams) (RewriteResult, error) {
	doc, ok := asDocument(params.Args)
	if params.Args != nil && !ok {
		return RewriteResult{Params: params}, nil
	}
	out := cloneDocument(doc)
	out["where"] = visibilityWhere(p, doc["where"])
	if constrains(doc, "include") {
		out["include"] = e.injectInclude(p, params.Model, doc["include"])
	}
	params.Args = out
	return RewriteResult{Params: params}, nil
}

// rewriteAggregate injects the visibility where only; count, aggregate and
// groupBy have no include surface.
func rewriteAggregate(p policy, params OperationParams) (RewriteResult, error) {
	doc, ok := asDocument(params.Args)
	if params.Args != nil && !ok {
		return RewriteResult{Params: params}, nil
	}
	out := cloneDocument(doc)
	out["where"] = visibilityWhere(p, doc["where"])
	params.Args = out
	return RewriteResult{Params: params}, nil
}

// rewriteNestedWhere rewrites a relation-filter condition. Under an
// "every" quantifier the condition is OR-wrapped instead of AND-filtered
// so hidden rows satisfy the quantifier vacuously; everywhere else the
// delete-path where transform applies.
func rewriteNestedWhere(p policy, params OperationParams) (RewriteResult, error) {
	if s := params.Scope; s != nil && s.Modifier == "every" {
		if doc, ok := asDocument(params.Args); ok && constrains(doc, p.Field) {
			return RewriteResult{Params: params}, nil
		}
		params.Args = everyWhere(p, params.Args)
		return RewriteResult{Params: params}, nil
	}
	params.Args = newWhere(p, params.Args)
	return RewriteResult{Params: params}, nil
}

// rewriteNestedSelect rewrites a relation entry in a select document.
//
// Entries nested under an include are passed through: the include injection
// on the parent handles those. To-one entries cannot carry a where, so the
// marker field is added to the selection instead and the restorer strips it
// from the result; to-many entries get the visibility where.
func rewriteNestedSelect(p policy, params OperationParams) (RewriteResult, error) {
	if nestedUnderInclude(params) {
		return RewriteResult{Params: params}, nil
	}
	doc, ok := asDocument(params.Args)
	if !ok {
		return RewriteResult{Params: params}, nil
	}

	if s := params.Scope; s != nil && !s.Relation.IsList {
		sel, ok := asDocument(doc["select"])
		if !ok || constrains(sel, p.Field) {
			return RewriteResult{Params: params}, nil
		}
		outSel := cloneDocument(sel)
		outSel[p.Field] = true
		out := cloneDocument(doc)
		out["select"] = outSel
		params.Args = out
		return RewriteResult{Params: params, Ctx: &RewriteContext{DeletedFieldAdded: true}}, nil
	}

	out := cloneDocument(doc)
	out["where"] = visibilityWhere(p, doc["where"])
	params.Args = out
	return RewriteResult{Params: params}, nil
}

// nestedUnderInclude reports whether this select entry was reached through
// the parent's include document rather than its select document.
func nestedUnderInclude(params OperationParams) bool {
	s := params.Scope
	if s == nil || s.Parent == nil {
		return false
	}
	parentArgs, ok := asDocument(s.Parent.Args)
	if !ok {
		return false
	}
	include, ok := asDocument(parentArgs["include"])
	if !ok {
		return false
	}
	return constrains(include, s.Relation.FieldName)
}
