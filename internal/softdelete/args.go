package softdelete

// Argument trees arrive as decoded JSON: map[string]any documents, []any
// lists and scalars. The helpers below are the only way rules look inside
// them; anything that is not the expected shape falls through untouched.

// asDocument returns v as a document, or (nil, false) for any other shape.
func asDocument(v any) (map[string]any, bool) {
	doc, ok := v.(map[string]any)
	return doc, ok
}

// cloneDocument returns a shallow copy of doc. Rules never mutate caller
// arguments; every injection happens on a copy. A nil doc clones to an
// empty document so injections always have somewhere to land.
func cloneDocument(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// constrains reports whether doc names the given key at its top level.
func constrains(doc map[string]any, key string) bool {
	if doc == nil {
		return false
	}
	_, ok := doc[key]
	return ok
}
