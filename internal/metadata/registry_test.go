package metadata

import "testing"

func registryFixture() *Registry {
	r := NewRegistry()
	r.Load([]*Model{
		{
			Name: "user", Table: "users",
			PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []Field{
				{Name: "id", Type: "uuid"},
				{Name: "email", Type: "string", Unique: true},
				{Name: "name", Type: "string"},
			},
			Relations: []Relation{
				{Name: "posts", Target: "post", IsList: true, ForeignKey: "author_id", References: "id"},
			},
		},
		{
			Name: "post", Table: "posts",
			PrimaryKey: PrimaryKey{Field: "id", Type: "uuid", Generated: true},
			Fields: []Field{
				{Name: "id", Type: "uuid"},
				{Name: "title", Type: "string"},
				{Name: "slug", Type: "string"},
				{Name: "author_id", Type: "uuid"},
			},
			Relations: []Relation{
				{Name: "author", Target: "user", ForeignKey: "author_id", References: "id"},
			},
			CompoundUniqueIndexes: [][]string{{"title", "slug"}},
		},
	})
	return r
}

func TestIDAndUniqueFields(t *testing.T) {
	r := registryFixture()

	set := r.IDAndUniqueFields("user")
	if _, ok := set["id"]; !ok {
		t.Fatal("primary key missing from unique set")
	}
	if _, ok := set["email"]; !ok {
		t.Fatal("unique field missing from unique set")
	}
	if _, ok := set["name"]; ok {
		t.Fatal("plain field must not be in unique set")
	}
	if r.IDAndUniqueFields("nope") != nil {
		t.Fatal("unknown model must return nil")
	}
}

func TestCompoundUniqueIndexFields(t *testing.T) {
	r := registryFixture()

	set := r.CompoundUniqueIndexFields("post")
	for _, f := range []string{"title", "slug"} {
		if _, ok := set[f]; !ok {
			t.Fatalf("compound index field %s missing", f)
		}
	}
	if _, ok := set["author_id"]; ok {
		t.Fatal("author_id is not part of a compound index")
	}
	if set := r.CompoundUniqueIndexFields("user"); len(set) != 0 {
		t.Fatalf("user has no compound indexes, got %v", set)
	}
}

func TestRelationLookup(t *testing.T) {
	r := registryFixture()

	rel := r.Relation("post", "author")
	if rel == nil || rel.Target != "user" || rel.IsList {
		t.Fatalf("author relation = %+v", rel)
	}
	if r.Relation("post", "title") != nil {
		t.Fatal("scalar field must not resolve as relation")
	}
	if r.Relation("nope", "author") != nil {
		t.Fatal("unknown model must not resolve relations")
	}
	if got := len(r.RelationFields("user")); got != 1 {
		t.Fatalf("user relation count = %d", got)
	}
}

func TestLoadReplacesModels(t *testing.T) {
	r := registryFixture()
	r.Load([]*Model{
		{
			Name: "tag", Table: "tags",
			PrimaryKey: PrimaryKey{Field: "id", Type: "int", Generated: true},
			Fields:     []Field{{Name: "id", Type: "int"}, {Name: "label", Type: "string"}},
		},
	})

	if r.GetModel("user") != nil {
		t.Fatal("reload must drop models absent from the new set")
	}
	if r.GetModel("tag") == nil {
		t.Fatal("reload must register new models")
	}
	if _, ok := r.IDAndUniqueFields("tag")["id"]; !ok {
		t.Fatal("reload must rebuild indexes")
	}
}

func TestModelValidate(t *testing.T) {
	valid := &Model{
		Name: "tag", Table: "tags",
		PrimaryKey: PrimaryKey{Field: "id", Type: "int"},
		Fields:     []Field{{Name: "id", Type: "int"}, {Name: "a", Type: "string"}, {Name: "b", Type: "string"}},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid model rejected: %v", err)
	}

	cases := []struct {
		name  string
		model *Model
	}{
		{"missing table", &Model{Name: "tag", PrimaryKey: PrimaryKey{Field: "id"}}},
		{"missing primary key", &Model{Name: "tag", Table: "tags"}},
		{"incomplete relation", &Model{
			Name: "tag", Table: "tags",
			PrimaryKey: PrimaryKey{Field: "id"},
			Relations:  []Relation{{Name: "owner", Target: "user"}},
		}},
		{"single-field compound index", &Model{
			Name: "tag", Table: "tags",
			PrimaryKey:            PrimaryKey{Field: "id"},
			Fields:                []Field{{Name: "id", Type: "int"}, {Name: "a", Type: "string"}},
			CompoundUniqueIndexes: [][]string{{"a"}},
		}},
		{"compound index unknown field", &Model{
			Name: "tag", Table: "tags",
			PrimaryKey:            PrimaryKey{Field: "id"},
			Fields:                []Field{{Name: "id", Type: "int"}, {Name: "a", Type: "string"}},
			CompoundUniqueIndexes: [][]string{{"a", "missing"}},
		}},
	}
	for _, tc := range cases {
		if err := tc.model.Validate(); err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
	}
}

func TestPostgresType(t *testing.T) {
	cases := map[string]string{
		"string":    "TEXT",
		"int":       "INTEGER",
		"boolean":   "BOOLEAN",
		"uuid":      "UUID",
		"timestamp": "TIMESTAMPTZ",
		"json":      "JSONB",
		"mystery":   "TEXT",
	}
	for in, want := range cases {
		if got := (Field{Type: in}).PostgresType(); got != want {
			t.Fatalf("PostgresType(%s) = %s, want %s", in, got, want)
		}
	}
}
