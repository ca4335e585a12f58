package softdelete

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"paranoid-backend/internal/metadata"
)

func testRegistry() *metadata.Registry {
	reg := metadata.NewRegistry()
	reg.Load([]*metadata.Model{
		{
			Name: "user", Table: "users",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "uuid"},
				{Name: "email", Type: "string", Unique: true},
				{Name: "name", Type: "string"},
			},
			Relations: []metadata.Relation{
				{Name: "posts", Target: "post", IsList: true, ForeignKey: "author_id", References: "id"},
			},
		},
		{
			Name: "post", Table: "posts",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "uuid"},
				{Name: "title", Type: "string"},
				{Name: "slug", Type: "string"},
				{Name: "author_id", Type: "uuid"},
			},
			Relations: []metadata.Relation{
				{Name: "author", Target: "user", ForeignKey: "author_id", References: "id"},
				{Name: "comments", Target: "comment", IsList: true, ForeignKey: "post_id", References: "id"},
			},
			CompoundUniqueIndexes: [][]string{{"title", "slug"}},
		},
		{
			Name: "comment", Table: "comments",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "uuid"},
				{Name: "body", Type: "string"},
				{Name: "post_id", Type: "uuid"},
			},
		},
		{
			Name: "profile", Table: "profiles",
			PrimaryKey: metadata.PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []metadata.Field{
				{Name: "id", Type: "uuid"},
				{Name: "bio", Type: "string"},
			},
		},
	})
	return reg
}

func boolPolicy() ModelConfig {
	return ModelConfig{
		Field:       "deleted",
		CreateValue: func(deleted bool) any { return deleted },
	}
}

// testEngine opts user, post and comment into soft delete with the boolean
// default policy; profile stays unconfigured.
func testEngine(t *testing.T, models map[string]*ModelConfig) *Engine {
	t.Helper()
	if models == nil {
		models = map[string]*ModelConfig{"user": nil, "post": nil, "comment": nil}
	}
	e, err := New(testRegistry(), boolPolicy(), models)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func mustRewrite(t *testing.T, e *Engine, params OperationParams, view View) RewriteResult {
	t.Helper()
	res, err := e.Rewrite(params, view)
	if err != nil {
		t.Fatalf("Rewrite(%s %s): %v", params.Model, params.Operation, err)
	}
	return res
}

func assertArgs(t *testing.T, got any, want map[string]any) {
	t.Helper()
	if !reflect.DeepEqual(got, any(want)) {
		t.Fatalf("args mismatch:\n got  %#v\n want %#v", got, want)
	}
}

func TestDeleteBecomesUpdate(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpDelete,
		Args:      map[string]any{"where": map[string]any{"id": "u1"}},
	}, View{Model: "user"})

	if res.Params.Operation != OpUpdate {
		t.Fatalf("operation = %s, want update", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"id": "u1", "deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestDeleteOverridesCallerMarker(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpDelete,
		Args:      map[string]any{"where": map[string]any{"id": "u1", "deleted": true}},
	}, View{Model: "user"})

	where := res.Params.Args.(map[string]any)["where"].(map[string]any)
	if where["deleted"] != false {
		t.Fatalf("delete-path where must pin the marker to not-deleted, got %v", where["deleted"])
	}
}

func TestDeleteWithoutWherePassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	params := OperationParams{Model: "user", Operation: OpDelete, Args: map[string]any{}}
	res := mustRewrite(t, e, params, View{Model: "user"})
	if res.Params.Operation != OpDelete {
		t.Fatalf("malformed delete should pass through, got %s", res.Params.Operation)
	}
}

func TestForceDeletePassesThroughUnchanged(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"where": map[string]any{"id": "u1"}}
	res := mustRewrite(t, e, OperationParams{Model: "user", Operation: OpDelete, Args: args},
		View{Model: "user", ForceDelete: true})

	if res.Params.Operation != OpDelete {
		t.Fatalf("forceDelete must keep the delete, got %s", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, args)
}

func TestNestedDeleteTrueShorthand(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{Model: "post", Operation: OpUpdate}
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpDelete,
		Args:      true,
		Scope: &Scope{
			Parent:   parent,
			Relation: RelationRef{FieldName: "author", Model: "user"},
		},
	}, View{Model: "post"})

	if res.Params.Operation != OpUpdate {
		t.Fatalf("delete:true must become an update, got %s", res.Params.Operation)
	}
	doc := res.Params.Args.(map[string]any)
	if doc["deleted"] != true {
		t.Fatalf("marker not set: %#v", doc)
	}
	if doc[passUpdateThrough] != true {
		t.Fatalf("sentinel missing: %#v", doc)
	}

	// The walker re-dispatches through the update rule, which must accept
	// the sentinel despite the to-one guard and then strip it.
	res2 := mustRewrite(t, e, res.Params, View{Model: "post"})
	doc2 := res2.Params.Args.(map[string]any)
	if _, ok := doc2[passUpdateThrough]; ok {
		t.Fatalf("sentinel must be stripped before execution: %#v", doc2)
	}
	if doc2["deleted"] != true {
		t.Fatalf("marker lost in re-dispatch: %#v", doc2)
	}
}

func TestNestedDeleteFalseIsNoop(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpDelete,
		Args:      false,
		Scope:     &Scope{Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})
	if res.Params.Operation != OpDelete || res.Params.Args != false {
		t.Fatalf("delete:false must pass through, got %s %#v", res.Params.Operation, res.Params.Args)
	}
}

func TestNestedDeleteBareCondition(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{Model: "post", Operation: OpUpdate}
	res := mustRewrite(t, e, OperationParams{
		Model:     "comment",
		Operation: OpDelete,
		Args:      map[string]any{"id": "c1"},
		Scope: &Scope{
			Parent:   parent,
			Relation: RelationRef{FieldName: "comments", Model: "comment", IsList: true},
		},
	}, View{Model: "post"})

	if res.Params.Operation != OpUpdate {
		t.Fatalf("nested delete must become an update, got %s", res.Params.Operation)
	}
	doc := res.Params.Args.(map[string]any)
	if doc[passUpdateThrough] != true {
		t.Fatalf("sentinel missing: %#v", doc)
	}
	delete(doc, passUpdateThrough)
	assertArgs(t, doc, map[string]any{
		"where": map[string]any{"id": "c1", "deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestNestedDeleteWhereWrapper(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{Model: "post", Operation: OpUpdate}
	res := mustRewrite(t, e, OperationParams{
		Model:     "comment",
		Operation: OpDelete,
		Args:      map[string]any{"where": map[string]any{"id": "c1"}},
		Scope: &Scope{
			Parent:   parent,
			Relation: RelationRef{FieldName: "comments", Model: "comment", IsList: true},
		},
	}, View{Model: "post"})

	if res.Params.Operation != OpUpdate {
		t.Fatalf("nested delete must become an update, got %s", res.Params.Operation)
	}
	doc := res.Params.Args.(map[string]any)
	delete(doc, passUpdateThrough)
	assertArgs(t, doc, map[string]any{
		"where": map[string]any{"id": "c1", "deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestDeleteManyBecomesUpdateMany(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpDeleteMany,
		Args:      map[string]any{"where": map[string]any{"title": "old"}},
	}, View{Model: "post"})

	if res.Params.Operation != OpUpdateMany {
		t.Fatalf("operation = %s, want updateMany", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"title": "old", "deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestNestedDeleteManyBareCondition(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "comment",
		Operation: OpDeleteMany,
		Args:      map[string]any{"body": "spam"},
		Scope:     &Scope{Relation: RelationRef{FieldName: "comments", Model: "comment", IsList: true}},
	}, View{Model: "post"})

	if res.Params.Operation != OpUpdateMany {
		t.Fatalf("operation = %s, want updateMany", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"body": "spam", "deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestDeleteManyNilArgs(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpDeleteMany}, View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": false},
		"data":  map[string]any{"deleted": true},
	})
}

func TestFindManyInjectsVisibility(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpFindMany,
		Args:      map[string]any{"where": map[string]any{"title": "hi"}},
	}, View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"title": "hi", "deleted": false},
	})
}

func TestFindManyNilArgs(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindMany}, View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": false},
	})
}

func TestFindManyCallerMarkerWins(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpFindMany,
		Args:      map[string]any{"where": map[string]any{"deleted": true}},
	}, View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": true},
	})
}

func TestWithTrashedView(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"where": map[string]any{"title": "hi"}}
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindMany, Args: args},
		View{Model: "post", QueryOption: QueryAll})
	assertArgs(t, res.Params.Args, args)
}

func TestOnlyTrashedView(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindMany, Args: map[string]any{}},
		View{Model: "post", QueryOption: QueryOnly})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": map[string]any{"not": false}},
	})
}

func TestViewScopedToItsModel(t *testing.T) {
	e := testEngine(t, nil)
	// A withTrashed view for post must not widen a nested user operation.
	res := mustRewrite(t, e, OperationParams{Model: "user", Operation: OpFindMany, Args: map[string]any{}},
		View{Model: "post", QueryOption: QueryAll})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": false},
	})
}

func TestViewDoesNotLeakAcrossCalls(t *testing.T) {
	e := testEngine(t, nil)
	mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindMany, Args: map[string]any{}},
		View{Model: "post", QueryOption: QueryAll})

	// A later call with a fresh view sees the default visibility again.
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindMany, Args: map[string]any{}},
		View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": false},
	})
}

func TestCountInjectsVisibility(t *testing.T) {
	e := testEngine(t, nil)
	for _, op := range []Operation{OpCount, OpAggregate, OpGroupBy} {
		res := mustRewrite(t, e, OperationParams{Model: "post", Operation: op, Args: map[string]any{}},
			View{Model: "post"})
		assertArgs(t, res.Params.Args, map[string]any{
			"where": map[string]any{"deleted": false},
		})
	}
}

func TestUpdateThroughToOneRejected(t *testing.T) {
	e := testEngine(t, nil)
	_, err := e.Rewrite(OperationParams{
		Model:     "user",
		Operation: OpUpdate,
		Args:      map[string]any{"name": "x"},
		Scope:     &Scope{Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})

	var relErr *RelationSafetyError
	if err == nil {
		t.Fatal("expected RelationSafetyError, got nil")
	}
	if !errors.As(err, &relErr) {
		t.Fatalf("expected RelationSafetyError, got %T: %v", err, err)
	}
	if relErr.Relation != "author" || relErr.Model != "user" {
		t.Fatalf("wrong error detail: %+v", relErr)
	}
}

func TestUpdateThroughToOneAllowed(t *testing.T) {
	allowed := boolPolicy()
	allowed.AllowToOneUpdates = true
	e := testEngine(t, map[string]*ModelConfig{"user": &allowed, "post": nil, "comment": nil})

	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpUpdate,
		Args:      map[string]any{"name": "x"},
		Scope:     &Scope{Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})
	assertArgs(t, res.Params.Args, map[string]any{"name": "x"})
}

func TestUpdateThroughToManyAllowed(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpUpdate,
		Args:      map[string]any{"where": map[string]any{"id": "p1"}, "data": map[string]any{"title": "x"}},
		Scope:     &Scope{Relation: RelationRef{FieldName: "posts", Model: "post", IsList: true}},
	}, View{Model: "user"})
	if res.Params.Operation != OpUpdate {
		t.Fatalf("to-many update must pass, got %s", res.Params.Operation)
	}
}

func TestUpsertThroughToOneRejected(t *testing.T) {
	e := testEngine(t, nil)
	_, err := e.Rewrite(OperationParams{
		Model:     "user",
		Operation: OpUpsert,
		Args:      map[string]any{"create": map[string]any{}, "update": map[string]any{}},
		Scope:     &Scope{Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})

	var relErr *RelationSafetyError
	if !errors.As(err, &relErr) {
		t.Fatalf("expected RelationSafetyError, got %T: %v", err, err)
	}
	if relErr.Operation != OpUpsert {
		t.Fatalf("error operation = %s, want upsert", relErr.Operation)
	}
}

func TestUpdateManyCallerMarkerWins(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpUpdateMany,
		Args: map[string]any{
			"where": map[string]any{"deleted": true},
			"data":  map[string]any{"deleted": false},
		},
	}, View{Model: "post"})

	// Restoring soft-deleted rows works because the caller's marker
	// constraint survives in except mode.
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": true},
		"data":  map[string]any{"deleted": false},
	})
}

func TestFindUniqueRedirectsToFindFirst(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindUnique,
		Args:      map[string]any{"where": map[string]any{"email": "a@b.c"}},
	}, View{Model: "user"})

	if res.Params.Operation != OpFindFirst {
		t.Fatalf("operation = %s, want findFirst", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"email": "a@b.c", "deleted": false},
	})
}

func TestFindUniqueOrThrowRedirects(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindUniqueOrThrow,
		Args:      map[string]any{"where": map[string]any{"id": "u1"}},
	}, View{Model: "user"})
	if res.Params.Operation != OpFindFirstOrThrow {
		t.Fatalf("operation = %s, want findFirstOrThrow", res.Params.Operation)
	}
}

func TestFindUniqueCompoundIndexRejected(t *testing.T) {
	e := testEngine(t, nil)
	_, err := e.Rewrite(OperationParams{
		Model:     "post",
		Operation: OpFindUnique,
		Args:      map[string]any{"where": map[string]any{"title": "a", "slug": "b"}},
	}, View{Model: "post"})

	var guardErr *UniqueIndexGuardError
	if !errors.As(err, &guardErr) {
		t.Fatalf("expected UniqueIndexGuardError, got %T: %v", err, err)
	}
	if guardErr.Model != "post" {
		t.Fatalf("wrong model in error: %+v", guardErr)
	}
}

func TestFindUniqueCompoundIndexAllowed(t *testing.T) {
	allowed := boolPolicy()
	allowed.AllowCompoundUniqueIndexWhere = true
	e := testEngine(t, map[string]*ModelConfig{"post": &allowed, "user": nil, "comment": nil})

	args := map[string]any{"where": map[string]any{"title": "a", "slug": "b"}}
	res := mustRewrite(t, e, OperationParams{Model: "post", Operation: OpFindUnique, Args: args},
		View{Model: "post"})

	// Allowed compound lookups forward unmodified: no redirect, no filter.
	if res.Params.Operation != OpFindUnique {
		t.Fatalf("operation = %s, want findUnique", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, args)
}

func TestFindUniqueNoUniqueFieldPassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"where": map[string]any{"name": "x"}}
	res := mustRewrite(t, e, OperationParams{Model: "user", Operation: OpFindUnique, Args: args},
		View{Model: "user"})
	if res.Params.Operation != OpFindUnique {
		t.Fatalf("operation = %s, want findUnique", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, args)
}

func TestEveryFilterOrWraps(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpWhere,
		Args:      map[string]any{"title": "x"},
		Scope: &Scope{
			Relation: RelationRef{FieldName: "posts", Model: "post", IsList: true},
			Modifier: "every",
		},
	}, View{Model: "user"})

	assertArgs(t, res.Params.Args, map[string]any{
		"OR": []any{
			map[string]any{"deleted": map[string]any{"not": false}},
			map[string]any{"title": "x"},
		},
	})
}

func TestEveryFilterCallerMarkerPassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"deleted": true}
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpWhere,
		Args:      args,
		Scope: &Scope{
			Relation: RelationRef{FieldName: "posts", Model: "post", IsList: true},
			Modifier: "every",
		},
	}, View{Model: "user"})
	assertArgs(t, res.Params.Args, args)
}

func TestSomeFilterPinsMarker(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpWhere,
		Args:      map[string]any{"title": "x", "deleted": true},
		Scope: &Scope{
			Relation: RelationRef{FieldName: "posts", Model: "post", IsList: true},
			Modifier: "some",
		},
	}, View{Model: "user"})

	// Relation filters always constrain to visible rows; the caller's
	// marker value is overridden.
	assertArgs(t, res.Params.Args, map[string]any{"title": "x", "deleted": false})
}

func TestNestedSelectToOneInjectsMarker(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{
		Model:     "post",
		Operation: OpFindMany,
		Args:      map[string]any{"select": map[string]any{"author": map[string]any{"select": map[string]any{"name": true}}}},
	}
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpSelect,
		Args:      map[string]any{"select": map[string]any{"name": true}},
		Scope:     &Scope{Parent: parent, Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})

	if res.Ctx == nil || !res.Ctx.DeletedFieldAdded {
		t.Fatal("expected DeletedFieldAdded context")
	}
	assertArgs(t, res.Params.Args, map[string]any{
		"select": map[string]any{"name": true, "deleted": true},
	})

	// The restorer strips the injected marker from the result.
	record := map[string]any{"name": "ada", "deleted": false}
	e.Restore(record, res.Params, res.Ctx)
	if _, ok := record["deleted"]; ok {
		t.Fatalf("marker not stripped: %#v", record)
	}
	if record["name"] != "ada" {
		t.Fatalf("record damaged: %#v", record)
	}
}

func TestNestedSelectCallerMarkerNotRestored(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{Model: "post", Operation: OpFindMany, Args: map[string]any{}}
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpSelect,
		Args:      map[string]any{"select": map[string]any{"name": true, "deleted": true}},
		Scope:     &Scope{Parent: parent, Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})

	if res.Ctx != nil {
		t.Fatal("caller selected the marker themselves; nothing to restore")
	}
}

func TestNestedSelectUnderIncludePassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{
		Model:     "post",
		Operation: OpFindMany,
		Args:      map[string]any{"include": map[string]any{"author": map[string]any{"select": map[string]any{"name": true}}}},
	}
	args := map[string]any{"select": map[string]any{"name": true}}
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpSelect,
		Args:      args,
		Scope:     &Scope{Parent: parent, Relation: RelationRef{FieldName: "author", Model: "user"}},
	}, View{Model: "post"})

	if res.Ctx != nil {
		t.Fatal("include-nested entries are the include injection's job")
	}
	assertArgs(t, res.Params.Args, args)
}

func TestNestedSelectToManyGetsWhere(t *testing.T) {
	e := testEngine(t, nil)
	parent := &OperationParams{Model: "user", Operation: OpFindMany, Args: map[string]any{}}
	res := mustRewrite(t, e, OperationParams{
		Model:     "post",
		Operation: OpSelect,
		Args:      map[string]any{"where": map[string]any{"title": "x"}},
		Scope:     &Scope{Parent: parent, Relation: RelationRef{FieldName: "posts", Model: "post", IsList: true}},
	}, View{Model: "user"})

	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"title": "x", "deleted": false},
	})
}

func TestIncludeInjectionWithNestModels(t *testing.T) {
	cfg := boolPolicy()
	cfg.NestModels = map[string]bool{"posts": false}
	e := testEngine(t, map[string]*ModelConfig{"user": &cfg, "post": nil, "comment": nil})

	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindMany,
		Args:      map[string]any{"include": map[string]any{"posts": true}},
	}, View{Model: "user"})

	assertArgs(t, res.Params.Args, map[string]any{
		"where": map[string]any{"deleted": false},
		"include": map[string]any{
			"posts": map[string]any{"where": map[string]any{"deleted": false}},
		},
	})
}

func TestIncludeKeepTrashedRelation(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindMany,
		Args:      map[string]any{"include": map[string]any{"posts": true}},
	}, View{Model: "user", NestModels: map[string]bool{"posts": true}})

	include := res.Params.Args.(map[string]any)["include"].(map[string]any)
	if include["posts"] != true {
		t.Fatalf("entry flagged true must stay untouched: %#v", include)
	}
}

func TestIncludeInjectionMergesEntryWhere(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindMany,
		Args: map[string]any{"include": map[string]any{
			"posts": map[string]any{"where": map[string]any{"title": "x"}},
		}},
	}, View{Model: "user", NestModels: map[string]bool{"posts": false}})

	include := res.Params.Args.(map[string]any)["include"].(map[string]any)
	assertArgs(t, include["posts"], map[string]any{
		"where": map[string]any{"title": "x", "deleted": false},
	})
}

// With no nested-visibility overrides the include document is forwarded
// untouched; visibility of included rows then follows the included model's
// own policy when its entry dispatches. Kept on purpose.
func TestIncludeDefaultInheritance(t *testing.T) {
	e := testEngine(t, nil)
	res := mustRewrite(t, e, OperationParams{
		Model:     "user",
		Operation: OpFindMany,
		Args:      map[string]any{"include": map[string]any{"posts": true}},
	}, View{Model: "user"})

	include := res.Params.Args.(map[string]any)["include"].(map[string]any)
	if include["posts"] != true {
		t.Fatalf("include must pass through without overrides: %#v", include)
	}
}

func TestUnconfiguredModelPassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"where": map[string]any{"id": "p1"}}
	res := mustRewrite(t, e, OperationParams{Model: "profile", Operation: OpDelete, Args: args},
		View{Model: "profile"})
	if res.Params.Operation != OpDelete {
		t.Fatalf("unconfigured model must keep the physical delete, got %s", res.Params.Operation)
	}
	assertArgs(t, res.Params.Args, args)
}

func TestCreatePassesThrough(t *testing.T) {
	e := testEngine(t, nil)
	args := map[string]any{"data": map[string]any{"name": "x"}}
	res := mustRewrite(t, e, OperationParams{Model: "user", Operation: OpCreate, Args: args},
		View{Model: "user"})
	assertArgs(t, res.Params.Args, args)
}

func TestRewriteDoesNotMutateCallerArgs(t *testing.T) {
	e := testEngine(t, nil)
	where := map[string]any{"id": "u1"}
	args := map[string]any{"where": where}
	mustRewrite(t, e, OperationParams{Model: "user", Operation: OpDelete, Args: args}, View{Model: "user"})

	if len(where) != 1 || len(args) != 1 {
		t.Fatalf("caller args mutated: %#v", args)
	}
}

func TestInterceptRunsExecuteWithRewrittenParams(t *testing.T) {
	e := testEngine(t, nil)
	var seen OperationParams
	result, err := e.Intercept(context.Background(),
		OperationParams{Model: "user", Operation: OpDelete, Args: map[string]any{"where": map[string]any{"id": "u1"}}},
		View{Model: "user"},
		func(_ context.Context, p OperationParams) (any, error) {
			seen = p
			return map[string]any{"id": "u1", "deleted": true}, nil
		})
	if err != nil {
		t.Fatalf("Intercept: %v", err)
	}
	if seen.Operation != OpUpdate {
		t.Fatalf("executed operation = %s, want update", seen.Operation)
	}
	record := result.(map[string]any)
	if record["id"] != "u1" {
		t.Fatalf("result damaged: %#v", record)
	}
}
