package client

import (
	"context"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/softdelete"
)

// restorePatch remembers a nested select that needs post-execution cleanup.
// path is the chain of relation field names from the root result down to the
// records the patch applies to.
type restorePatch struct {
	path   []string
	params softdelete.OperationParams
	ctx    *softdelete.RewriteContext
}

// run executes a root operation whose own arguments have already been
// rewritten: it walks the argument tree so every nested operation passes
// through the rewrite rules, executes the final tree, and applies the
// restore patches collected along the way.
func (c *Client) run(ctx context.Context, p softdelete.OperationParams, view softdelete.View) (any, error) {
	walked, patches, err := c.walkArgs(p, view, nil)
	if err != nil {
		return nil, err
	}
	result, err := c.execute(ctx, walked)
	if err != nil {
		return nil, err
	}
	for _, patch := range patches {
		c.applyPatch(result, patch)
	}
	return result, nil
}

// walkArgs rewrites every nested operation reachable from params.Args and
// splices the results back in. path addresses the current position in the
// eventual result tree, for restore patches.
func (c *Client) walkArgs(params softdelete.OperationParams, view softdelete.View, path []string) (softdelete.OperationParams, []restorePatch, error) {
	doc, ok := docOf(params.Args)
	if !ok {
		return params, nil, nil
	}

	// Nested create and to-one update payloads are the data document itself.
	if params.Scope != nil &&
		(params.Operation == softdelete.OpCreate || params.Operation == softdelete.OpUpdate) &&
		doc["data"] == nil && doc["where"] == nil {
		data, err := c.walkData(params.Model, doc, &params, view)
		if err != nil {
			return params, nil, err
		}
		params.Args = data
		return params, nil, nil
	}

	out := cloneDoc(doc)
	var patches []restorePatch

	if where, ok := docOf(doc["where"]); ok {
		walked, err := c.walkWhere(params.Model, where, &params, view)
		if err != nil {
			return params, nil, err
		}
		out["where"] = walked
	}
	for _, key := range []string{"data", "create", "update"} {
		if data, ok := docOf(doc[key]); ok {
			walked, err := c.walkData(params.Model, data, &params, view)
			if err != nil {
				return params, nil, err
			}
			out[key] = walked
		}
	}
	for _, key := range []string{"select", "include"} {
		entries, ok := docOf(doc[key])
		if !ok {
			continue
		}
		walkedEntries := cloneDoc(entries)
		params.Args = out
		for _, name := range sortedKeys(entries) {
			rel := c.registry.Relation(params.Model, name)
			if rel == nil {
				continue
			}
			entry, entryPatches, err := c.dispatchSelect(rel, entries[name], &params, view, append(path, name))
			if err != nil {
				return params, nil, err
			}
			walkedEntries[name] = entry
			patches = append(patches, entryPatches...)
		}
		out[key] = walkedEntries
	}

	params.Args = out
	return params, patches, nil
}

// walkWhere dispatches relation filters (some/every/none, is/isNot) as
// nested where operations and recurses into logical combinators.
func (c *Client) walkWhere(model string, where map[string]any, parent *softdelete.OperationParams, view softdelete.View) (map[string]any, error) {
	out := cloneDoc(where)
	for _, key := range sortedKeys(where) {
		val := where[key]
		switch key {
		case "AND", "OR", "NOT":
			walked, err := c.walkWhereBranch(model, val, parent, view)
			if err != nil {
				return nil, err
			}
			out[key] = walked
		default:
			rel := c.registry.Relation(model, key)
			if rel == nil {
				continue
			}
			filter, ok := docOf(val)
			if !ok {
				continue
			}
			walked, err := c.walkRelationFilter(rel, filter, parent, view)
			if err != nil {
				return nil, err
			}
			out[key] = walked
		}
	}
	return out, nil
}

func (c *Client) walkWhereBranch(model string, val any, parent *softdelete.OperationParams, view softdelete.View) (any, error) {
	switch branch := val.(type) {
	case []any:
		out := make([]any, len(branch))
		for i, item := range branch {
			doc, ok := docOf(item)
			if !ok {
				out[i] = item
				continue
			}
			walked, err := c.walkWhere(model, doc, parent, view)
			if err != nil {
				return nil, err
			}
			out[i] = walked
		}
		return out, nil
	case map[string]any:
		return c.walkWhere(model, branch, parent, view)
	default:
		return val, nil
	}
}

func (c *Client) walkRelationFilter(rel *metadata.Relation, filter map[string]any, parent *softdelete.OperationParams, view softdelete.View) (any, error) {
	modifiers := []string{"is", "isNot"}
	if rel.IsList {
		modifiers = []string{"some", "every", "none"}
	}
	out := cloneDoc(filter)
	matched := false
	for _, mod := range modifiers {
		cond, present := filter[mod]
		if !present {
			continue
		}
		matched = true
		walked, err := c.dispatchWhere(rel, mod, cond, parent, view)
		if err != nil {
			return nil, err
		}
		out[mod] = walked
	}
	if matched || rel.IsList {
		return out, nil
	}
	// A bare condition on a to-one relation is shorthand for "is".
	return c.dispatchWhere(rel, "is", filter, parent, view)
}

func (c *Client) dispatchWhere(rel *metadata.Relation, modifier string, cond any, parent *softdelete.OperationParams, view softdelete.View) (any, error) {
	nested := softdelete.OperationParams{
		Model:     rel.Target,
		Operation: softdelete.OpWhere,
		Args:      cond,
		Scope: &softdelete.Scope{
			Parent:   parent,
			Relation: softdelete.RelationRef{FieldName: rel.Name, Model: rel.Target, IsList: rel.IsList},
			Modifier: modifier,
		},
	}
	res, err := c.engine.Rewrite(nested, view)
	if err != nil {
		return nil, err
	}
	condDoc, ok := docOf(res.Params.Args)
	if !ok {
		return res.Params.Args, nil
	}
	return c.walkWhere(rel.Target, condDoc, &res.Params, view)
}

var nestedWriteKinds = []softdelete.Operation{
	softdelete.OpCreate,
	softdelete.OpUpdate,
	softdelete.OpUpdateMany,
	softdelete.OpUpsert,
	softdelete.OpDelete,
	softdelete.OpDeleteMany,
}

// walkData dispatches the write payloads nested under relation fields of a
// data document. A rewrite may move a payload to a different operation key
// (delete becomes update); the rewritten element then passes once through
// the rules of its new kind before splicing.
func (c *Client) walkData(model string, data map[string]any, parent *softdelete.OperationParams, view softdelete.View) (map[string]any, error) {
	out := cloneDoc(data)
	for _, key := range sortedKeys(data) {
		rel := c.registry.Relation(model, key)
		if rel == nil {
			continue
		}
		payload, ok := docOf(data[key])
		if !ok {
			continue
		}
		walked, err := c.walkWritePayload(rel, payload, parent, view)
		if err != nil {
			return nil, err
		}
		out[key] = walked
	}
	return out, nil
}

func (c *Client) walkWritePayload(rel *metadata.Relation, payload map[string]any, parent *softdelete.OperationParams, view softdelete.View) (map[string]any, error) {
	out := cloneDoc(payload)
	for _, kind := range nestedWriteKinds {
		raw, present := payload[string(kind)]
		if !present {
			continue
		}
		delete(out, string(kind))
		elems, wasList := asList(raw)
		grouped := map[softdelete.Operation][]any{}
		for _, elem := range elems {
			newKind, newArgs, err := c.dispatchWrite(rel, kind, elem, parent, view)
			if err != nil {
				return nil, err
			}
			grouped[newKind] = append(grouped[newKind], newArgs)
		}
		for _, newKind := range nestedWriteKinds {
			items, ok := grouped[newKind]
			if !ok {
				continue
			}
			if err := mergePayloadKind(out, rel, string(newKind), items, wasList); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

// mergePayloadKind splices rewritten elements under their (possibly new)
// operation key, merging with anything the caller already put there.
func mergePayloadKind(out map[string]any, rel *metadata.Relation, key string, items []any, wasList bool) error {
	existing, has := out[key]
	if !has {
		if len(items) == 1 && !wasList {
			out[key] = items[0]
			return nil
		}
		out[key] = items
		return nil
	}
	if !rel.IsList {
		// To-one payloads hold documents, not lists; a delete rewritten to
		// an update merges into the caller's own update document.
		base, okBase := docOf(existing)
		if !okBase {
			out[key] = items[len(items)-1]
			return nil
		}
		merged := cloneDoc(base)
		for _, item := range items {
			doc, ok := docOf(item)
			if !ok {
				continue
			}
			for k, v := range doc {
				merged[k] = v
			}
		}
		out[key] = merged
		return nil
	}
	list, _ := asList(existing)
	out[key] = append(append([]any{}, list...), items...)
	return nil
}

func (c *Client) dispatchWrite(rel *metadata.Relation, kind softdelete.Operation, args any, parent *softdelete.OperationParams, view softdelete.View) (softdelete.Operation, any, error) {
	scope := &softdelete.Scope{
		Parent:   parent,
		Relation: softdelete.RelationRef{FieldName: rel.Name, Model: rel.Target, IsList: rel.IsList},
	}
	nested := softdelete.OperationParams{Model: rel.Target, Operation: kind, Args: args, Scope: scope}
	res, err := c.engine.Rewrite(nested, view)
	if err != nil {
		return "", nil, err
	}
	if res.Params.Operation != kind {
		// The payload changed kind; give the new kind's rule one pass so,
		// for example, a delete rewritten to an update clears its marker.
		res, err = c.engine.Rewrite(res.Params, view)
		if err != nil {
			return "", nil, err
		}
	}
	walked, _, err := c.walkArgs(res.Params, view, nil)
	if err != nil {
		return "", nil, err
	}
	return walked.Operation, walked.Args, nil
}

// dispatchSelect routes one select or include entry through the rewrite
// rules, then walks the entry's own subtree.
func (c *Client) dispatchSelect(rel *metadata.Relation, entry any, parent *softdelete.OperationParams, view softdelete.View, path []string) (any, []restorePatch, error) {
	nested := softdelete.OperationParams{
		Model:     rel.Target,
		Operation: softdelete.OpSelect,
		Args:      entry,
		Scope: &softdelete.Scope{
			Parent:   parent,
			Relation: softdelete.RelationRef{FieldName: rel.Name, Model: rel.Target, IsList: rel.IsList},
		},
	}
	res, err := c.engine.Rewrite(nested, view)
	if err != nil {
		return nil, nil, err
	}
	var patches []restorePatch
	if res.Ctx != nil && res.Ctx.DeletedFieldAdded {
		patches = append(patches, restorePatch{
			path:   append([]string{}, path...),
			params: res.Params,
			ctx:    res.Ctx,
		})
	}
	if _, ok := docOf(res.Params.Args); !ok {
		return res.Params.Args, patches, nil
	}
	walked, subPatches, err := c.walkArgs(res.Params, view, path)
	if err != nil {
		return nil, nil, err
	}
	return walked.Args, append(patches, subPatches...), nil
}

// applyPatch navigates the result tree along the patch path and runs the
// restorer on every record found there.
func (c *Client) applyPatch(result any, patch restorePatch) {
	values := []any{result}
	for _, field := range patch.path {
		var next []any
		for _, v := range values {
			switch node := v.(type) {
			case map[string]any:
				if child, ok := node[field]; ok && child != nil {
					next = append(next, child)
				}
			case []map[string]any:
				for _, row := range node {
					if child, ok := row[field]; ok && child != nil {
						next = append(next, child)
					}
				}
			case []any:
				for _, item := range node {
					if row, ok := item.(map[string]any); ok {
						if child, ok := row[field]; ok && child != nil {
							next = append(next, child)
						}
					}
				}
			}
		}
		values = next
	}
	for _, v := range values {
		c.engine.Restore(v, patch.params, patch.ctx)
	}
}
