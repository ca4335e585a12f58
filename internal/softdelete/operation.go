// Package softdelete implements the query rewriting that gives table-backed
// models soft-delete semantics: reads are filtered to hide logically deleted
// rows, deletes become updates of a deletion marker field, and operations
// nested inside relation payloads are rewritten through the same rules as
// root operations.
//
// The package is pure transformation: it rewrites operation parameters and
// post-processes results, but never touches storage. Execution belongs to
// the caller (see internal/client).
package softdelete

// Operation identifies the kind of a single operation node.
type Operation string

const (
	OpCreate            Operation = "create"
	OpUpdate            Operation = "update"
	OpUpdateMany        Operation = "updateMany"
	OpUpsert            Operation = "upsert"
	OpDelete            Operation = "delete"
	OpDeleteMany        Operation = "deleteMany"
	OpFindUnique        Operation = "findUnique"
	OpFindUniqueOrThrow Operation = "findUniqueOrThrow"
	OpFindFirst         Operation = "findFirst"
	OpFindFirstOrThrow  Operation = "findFirstOrThrow"
	OpFindMany          Operation = "findMany"
	OpCount             Operation = "count"
	OpAggregate         Operation = "aggregate"
	OpGroupBy           Operation = "groupBy"

	// Pseudo-kinds used only while rewriting nested argument fragments.
	// They never execute on their own.
	OpWhere  Operation = "where"
	OpSelect Operation = "select"
)

// RelationRef describes how a nested operation is reached from its parent.
type RelationRef struct {
	// FieldName is the relation field on the parent model that carries the
	// nested operation (e.g. "author" in data.author.update).
	FieldName string
	// Model is the target model name.
	Model string
	// IsList reports the relation cardinality: true for to-many.
	IsList bool
}

// Scope is present only on nested operations. Parent links form a chain up
// to the root; a node only ever references its ancestor, never the reverse.
type Scope struct {
	Parent   *OperationParams
	Relation RelationRef
	// Modifier is the relation-filter quantifier this node sits under:
	// "some", "every", "none", "is", "isNot", or "" for direct payloads.
	Modifier string
}

// OperationParams is a single node in the operation tree. Args is an opaque
// document tree (map[string]any / []any / scalars); shapes the rules do not
// recognize pass through untouched.
type OperationParams struct {
	Model     string
	Operation Operation
	Args      any
	Scope     *Scope
}

// Root reports whether this node is the root of its operation tree.
func (p *OperationParams) Root() bool {
	return p.Scope == nil
}

// RewriteContext is the side channel between a rewrite rule and the result
// restorer for the same (model, operation) pair.
type RewriteContext struct {
	// DeletedFieldAdded is set when the rule injected the deletion marker
	// into a selection purely for filtering; the restorer strips it back
	// out of the result.
	DeletedFieldAdded bool
}

// RewriteResult is the outcome of applying a rewrite rule to one node.
type RewriteResult struct {
	Params OperationParams
	Ctx    *RewriteContext
}

// passUpdateThrough marks an update produced by rewriting a nested
// `delete: true` shorthand, so the update rule lets it through the to-one
// relation guard. The rule strips the key before the operation executes.
const passUpdateThrough = "__passUpdateThrough"
