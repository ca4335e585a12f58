package softdelete

// compoundIndexField returns the first where key that belongs to a compound
// unique index on the model, or "". Point lookups keyed this way cannot be
// redirected to a filtered findFirst without changing which row they match.
func (e *Engine) compoundIndexField(model string, where map[string]any) string {
	compound := e.registry.CompoundUniqueIndexFields(model)
	if len(compound) == 0 {
		return ""
	}
	for key := range where {
		if _, ok := compound[key]; ok {
			return key
		}
	}
	return ""
}

// hasUniqueField reports whether the where addresses at least one genuine
// id/unique field of the model. Lookups without one are left for the
// underlying client to reject with its own native error.
func (e *Engine) hasUniqueField(model string, where map[string]any) bool {
	unique := e.registry.IDAndUniqueFields(model)
	for key := range where {
		if _, ok := unique[key]; ok {
			return true
		}
	}
	return false
}

// guardUniqueWhere validates a point lookup against the model's compound
// unique indexes. It returns (pass, err): pass means the lookup must be
// forwarded unmodified because the policy explicitly allows compound-index
// lookups; err rejects it.
func (e *Engine) guardUniqueWhere(p policy, model string, where map[string]any) (bool, error) {
	field := e.compoundIndexField(model, where)
	if field == "" {
		return false, nil
	}
	if p.AllowCompoundUniqueIndexWhere {
		return true, nil
	}
	return false, &UniqueIndexGuardError{Model: model, Field: field}
}
