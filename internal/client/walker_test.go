package client

import (
	"reflect"
	"testing"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/softdelete"
	"paranoid-backend/internal/store"
)

func testModels() []*metadata.Model {
	return []*metadata.Model{
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
				{Name: "author_id", Type: "uuid"},
			},
			Relations: []metadata.Relation{
				{Name: "author", Target: "user", ForeignKey: "author_id", References: "id"},
				{Name: "comments", Target: "comment", IsList: true, ForeignKey: "post_id", References: "id"},
			},
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
	}
}

// testClient builds a client whose engine soft-deletes user, post and
// comment. The store is never reached by the walker tests.
func testClient(t *testing.T, overrides map[string]*softdelete.ModelConfig) *Client {
	t.Helper()
	if overrides == nil {
		overrides = map[string]*softdelete.ModelConfig{"user": nil, "post": nil, "comment": nil}
	}
	reg := metadata.NewRegistry()
	reg.Load(testModels())
	engine, err := softdelete.New(reg,
		softdelete.ModelConfig{Field: "deleted", CreateValue: func(d bool) any { return d }},
		overrides)
	if err != nil {
		t.Fatalf("softdelete.New: %v", err)
	}
	return New(engine, &store.Store{})
}

func mustWalk(t *testing.T, c *Client, params softdelete.OperationParams, view softdelete.View) (softdelete.OperationParams, []restorePatch) {
	t.Helper()
	walked, patches, err := c.walkArgs(params, view, nil)
	if err != nil {
		t.Fatalf("walkArgs: %v", err)
	}
	return walked, patches
}

func TestWalkDataNestedDeleteTrue(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpUpdate,
		Args: map[string]any{
			"where": map[string]any{"id": "p1"},
			"data":  map[string]any{"author": map[string]any{"delete": true}},
		},
	}, softdelete.View{Model: "post"})

	data := walked.Args.(map[string]any)["data"].(map[string]any)
	author := data["author"].(map[string]any)
	if _, ok := author["delete"]; ok {
		t.Fatalf("delete key must be rewritten away: %#v", author)
	}
	update, ok := author["update"].(map[string]any)
	if !ok {
		t.Fatalf("expected update payload: %#v", author)
	}
	if update["deleted"] != true {
		t.Fatalf("marker not set: %#v", update)
	}
	if _, ok := update["__passUpdateThrough"]; ok {
		t.Fatalf("sentinel must not survive the walk: %#v", update)
	}
}

func TestWalkDataNestedListDeleteBareCondition(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpUpdate,
		Args: map[string]any{
			"where": map[string]any{"id": "p1"},
			"data":  map[string]any{"comments": map[string]any{"delete": map[string]any{"id": "c1"}}},
		},
	}, softdelete.View{Model: "post"})

	data := walked.Args.(map[string]any)["data"].(map[string]any)
	comments := data["comments"].(map[string]any)
	if _, ok := comments["delete"]; ok {
		t.Fatalf("delete key must be rewritten away: %#v", comments)
	}
	update, ok := comments["update"].(map[string]any)
	if !ok {
		t.Fatalf("expected update payload: %#v", comments)
	}
	want := map[string]any{
		"where": map[string]any{"id": "c1", "deleted": false},
		"data":  map[string]any{"deleted": true},
	}
	if !reflect.DeepEqual(update, want) {
		t.Fatalf("update = %#v, want %#v", update, want)
	}
}

func TestWalkDataDeleteMergesWithCallerUpdate(t *testing.T) {
	c := testClient(t, map[string]*softdelete.ModelConfig{
		"user": {Field: "deleted", CreateValue: func(d bool) any { return d }, AllowToOneUpdates: true},
		"post": nil, "comment": nil,
	})
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpUpdate,
		Args: map[string]any{
			"where": map[string]any{"id": "p1"},
			"data": map[string]any{"author": map[string]any{
				"update": map[string]any{"name": "x"},
				"delete": true,
			}},
		},
	}, softdelete.View{Model: "post"})

	author := walked.Args.(map[string]any)["data"].(map[string]any)["author"].(map[string]any)
	update := author["update"].(map[string]any)
	if update["name"] != "x" || update["deleted"] != true {
		t.Fatalf("rewritten delete must merge into the caller's update: %#v", update)
	}
}

func TestWalkDataNestedListDeleteMany(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpUpdate,
		Args: map[string]any{
			"where": map[string]any{"id": "p1"},
			"data": map[string]any{"comments": map[string]any{
				"deleteMany": map[string]any{"body": "spam"},
			}},
		},
	}, softdelete.View{Model: "post"})

	comments := walked.Args.(map[string]any)["data"].(map[string]any)["comments"].(map[string]any)
	if _, ok := comments["deleteMany"]; ok {
		t.Fatalf("deleteMany must be rewritten away: %#v", comments)
	}
	um, ok := comments["updateMany"].(map[string]any)
	if !ok {
		t.Fatalf("expected updateMany payload: %#v", comments)
	}
	want := map[string]any{
		"where": map[string]any{"body": "spam", "deleted": false},
		"data":  map[string]any{"deleted": true},
	}
	if !reflect.DeepEqual(um, want) {
		t.Fatalf("updateMany mismatch:\n got  %#v\n want %#v", um, want)
	}
}

func TestWalkWhereSomeFilter(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "user",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"where": map[string]any{"posts": map[string]any{
				"some": map[string]any{"title": "x"},
			}},
		},
	}, softdelete.View{Model: "user"})

	where := walked.Args.(map[string]any)["where"].(map[string]any)
	some := where["posts"].(map[string]any)["some"].(map[string]any)
	if some["deleted"] != false || some["title"] != "x" {
		t.Fatalf("some condition not filtered: %#v", some)
	}
}

func TestWalkWhereEveryFilterOrWraps(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "user",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"where": map[string]any{"posts": map[string]any{
				"every": map[string]any{"title": "x"},
			}},
		},
	}, softdelete.View{Model: "user"})

	every := walked.Args.(map[string]any)["where"].(map[string]any)["posts"].(map[string]any)["every"].(map[string]any)
	branches, ok := every["OR"].([]any)
	if !ok || len(branches) != 2 {
		t.Fatalf("every must OR-wrap: %#v", every)
	}
}

func TestWalkWhereLogicalCombinators(t *testing.T) {
	c := testClient(t, nil)
	walked, _ := mustWalk(t, c, softdelete.OperationParams{
		Model:     "user",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"where": map[string]any{"OR": []any{
				map[string]any{"posts": map[string]any{"some": map[string]any{}}},
				map[string]any{"name": "x"},
			}},
		},
	}, softdelete.View{Model: "user"})

	branches := walked.Args.(map[string]any)["where"].(map[string]any)["OR"].([]any)
	some := branches[0].(map[string]any)["posts"].(map[string]any)["some"].(map[string]any)
	if some["deleted"] != false {
		t.Fatalf("filter must reach inside OR branches: %#v", some)
	}
}

func TestWalkSelectToOneCollectsRestorePatch(t *testing.T) {
	c := testClient(t, nil)
	walked, patches := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"select": map[string]any{
				"title":  true,
				"author": map[string]any{"select": map[string]any{"name": true}},
			},
		},
	}, softdelete.View{Model: "post"})

	entry := walked.Args.(map[string]any)["select"].(map[string]any)["author"].(map[string]any)
	sel := entry["select"].(map[string]any)
	if sel["deleted"] != true {
		t.Fatalf("marker not injected into to-one selection: %#v", sel)
	}
	if len(patches) != 1 {
		t.Fatalf("expected one restore patch, got %d", len(patches))
	}
	if !reflect.DeepEqual(patches[0].path, []string{"author"}) {
		t.Fatalf("patch path = %v", patches[0].path)
	}

	// Applying the patch strips the injected marker from every author in
	// the result set.
	result := []map[string]any{
		{"title": "a", "author": map[string]any{"name": "ada", "deleted": false}},
		{"title": "b", "author": nil},
	}
	c.applyPatch(result, patches[0])
	author := result[0]["author"].(map[string]any)
	if _, ok := author["deleted"]; ok {
		t.Fatalf("marker not stripped: %#v", author)
	}
}

func TestWalkIncludeEntryNotPatched(t *testing.T) {
	c := testClient(t, nil)
	_, patches := mustWalk(t, c, softdelete.OperationParams{
		Model:     "post",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"include": map[string]any{"author": true},
		},
	}, softdelete.View{Model: "post"})

	if len(patches) != 0 {
		t.Fatalf("include entries never need restoring, got %d patches", len(patches))
	}
}

func TestWalkNestedSelectDeepPath(t *testing.T) {
	c := testClient(t, nil)
	_, patches := mustWalk(t, c, softdelete.OperationParams{
		Model:     "user",
		Operation: softdelete.OpFindMany,
		Args: map[string]any{
			"select": map[string]any{
				"posts": map[string]any{
					"select": map[string]any{
						"author": map[string]any{"select": map[string]any{"name": true}},
					},
				},
			},
		},
	}, softdelete.View{Model: "user"})

	if len(patches) != 1 {
		t.Fatalf("expected one restore patch, got %d", len(patches))
	}
	if !reflect.DeepEqual(patches[0].path, []string{"posts", "author"}) {
		t.Fatalf("patch path = %v", patches[0].path)
	}
}
