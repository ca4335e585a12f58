package softdelete

import "fmt"

// ConfigError reports a soft-delete policy that cannot be constructed.
// Raised at setup time only; the engine never starts with a bad policy.
type ConfigError struct {
	Model  string // empty for the default policy
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Model == "" {
		return fmt.Sprintf("soft-delete config: %s", e.Reason)
	}
	return fmt.Sprintf("soft-delete config for model %s: %s", e.Model, e.Reason)
}

// RelationSafetyError reports an update or upsert of a soft-delete-enabled
// model reached through a to-one relation. Such writes could silently
// resurrect or corrupt a soft-deleted record, so they are rejected before
// anything executes unless the model opts in via AllowToOneUpdates.
type RelationSafetyError struct {
	Model     string
	Relation  string
	Operation Operation
}

func (e *RelationSafetyError) Error() string {
	return fmt.Sprintf("%s of soft-deleted model %s through to-one relation %q is not allowed",
		e.Operation, e.Model, e.Relation)
}

// UniqueIndexGuardError reports a point lookup keyed on a compound unique
// index. Redirecting such a lookup to a filtered findFirst would change its
// matching semantics, so it is rejected unless the model opts in via
// AllowCompoundUniqueIndexWhere.
type UniqueIndexGuardError struct {
	Model string
	Field string
}

func (e *UniqueIndexGuardError) Error() string {
	return fmt.Sprintf("unique lookup on model %s uses compound-unique-index field %q, which cannot be soft-delete filtered",
		e.Model, e.Field)
}
