package softdelete

// QueryOption selects the default read visibility for a model.
type QueryOption string

const (
	// QueryExcept hides soft-deleted rows (the default).
	QueryExcept QueryOption = "except"
	// QueryOnly shows only soft-deleted rows.
	QueryOnly QueryOption = "only"
	// QueryAll disables visibility filtering.
	QueryAll QueryOption = "all"
)

// ModelConfig is the soft-delete policy for one model.
type ModelConfig struct {
	// Field is the column marking deletion state.
	Field string
	// CreateValue maps the logical deleted flag to the concrete value
	// stored and queried in Field. Both boolean and timestamp-like schemes
	// fit behind this function.
	CreateValue func(deleted bool) any
	// AllowToOneUpdates permits updates reached through a to-one relation.
	AllowToOneUpdates bool
	// AllowCompoundUniqueIndexWhere permits point lookups keyed on
	// compound unique indexes.
	AllowCompoundUniqueIndexWhere bool
	// QueryOption is the default read visibility; empty means QueryExcept.
	QueryOption QueryOption
	// NestModels maps relation field names to whether that relation's
	// soft-deleted rows stay visible when traversed via an include.
	NestModels map[string]bool
}

func (c ModelConfig) validate(model string) error {
	if c.Field == "" {
		return &ConfigError{Model: model, Reason: "missing deletion marker field"}
	}
	if c.CreateValue == nil {
		return &ConfigError{Model: model, Reason: "missing createValue function"}
	}
	switch c.QueryOption {
	case "", QueryExcept, QueryOnly, QueryAll:
	default:
		return &ConfigError{Model: model, Reason: "unknown query option " + string(c.QueryOption)}
	}
	return nil
}

// resolveConfigs merges the default policy with per-model overrides. A nil
// override value means "use the default as-is"; a non-nil value replaces
// the default entirely. Models absent from the map are not soft-deleted and
// pass through the engine unmodified.
func resolveConfigs(defaults ModelConfig, models map[string]*ModelConfig) (map[string]ModelConfig, error) {
	if err := defaults.validate(""); err != nil {
		return nil, err
	}
	resolved := make(map[string]ModelConfig, len(models))
	for name, override := range models {
		cfg := defaults
		if override != nil {
			cfg = *override
			if err := cfg.validate(name); err != nil {
				return nil, err
			}
		}
		resolved[name] = cfg
	}
	return resolved, nil
}

// View is the per-call visibility state. It is built for one root dispatch
// and threaded by value through every rewrite that call performs; shared
// model policies are never mutated, so concurrent calls against the same
// model cannot race and nothing needs resetting afterwards.
type View struct {
	// Model scopes the overrides: they apply only to operations on this
	// model. Nested operations on other models keep their own defaults.
	Model string
	// QueryOption overrides the model's read visibility when non-empty.
	QueryOption QueryOption
	// NestModels entries override the model's NestModels per relation.
	NestModels map[string]bool
	// ForceDelete requests physical deletion instead of the soft-update
	// rewrite for this call.
	ForceDelete bool
}

// policy is the effective configuration for one (model, call) pair:
// the static ModelConfig with the call's View overrides applied.
type policy struct {
	ModelConfig
	forceDelete bool
}

// option returns the effective query option.
func (p policy) option() QueryOption {
	if p.QueryOption == "" {
		return QueryExcept
	}
	return p.QueryOption
}

func (e *Engine) policyFor(model string, view View) (policy, bool) {
	cfg, ok := e.configs[model]
	if !ok {
		return policy{}, false
	}
	p := policy{ModelConfig: cfg}
	if view.Model != model {
		return p, true
	}
	p.forceDelete = view.ForceDelete
	if view.QueryOption != "" {
		p.QueryOption = view.QueryOption
	}
	if len(view.NestModels) > 0 {
		merged := make(map[string]bool, len(cfg.NestModels)+len(view.NestModels))
		for k, v := range cfg.NestModels {
			merged[k] = v
		}
		for k, v := range view.NestModels {
			merged[k] = v
		}
		p.NestModels = merged
	}
	return p, true
}
