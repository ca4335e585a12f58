package config

import (
	"fmt"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"paranoid-backend/internal/softdelete"
)

// BuildPolicies turns the declarative soft_delete config section into the
// engine's policy inputs: the resolved default plus per-model overrides
// (nil meaning "use the default", matching the engine's contract).
func (c SoftDeleteConfig) BuildPolicies() (softdelete.ModelConfig, map[string]*softdelete.ModelConfig, error) {
	defaults, err := c.Default.build()
	if err != nil {
		return softdelete.ModelConfig{}, nil, fmt.Errorf("soft_delete.default: %w", err)
	}

	models := make(map[string]*softdelete.ModelConfig, len(c.Models))
	for name, raw := range c.Models {
		switch v := raw.(type) {
		case bool:
			if !v {
				continue // excluded: passes through the engine unmodified
			}
			models[name] = nil
		case map[string]any:
			var pc ModelPolicyConfig
			if err := decodePolicy(v, &pc); err != nil {
				return softdelete.ModelConfig{}, nil, fmt.Errorf("soft_delete.models.%s: %w", name, err)
			}
			cfg, err := pc.build()
			if err != nil {
				return softdelete.ModelConfig{}, nil, fmt.Errorf("soft_delete.models.%s: %w", name, err)
			}
			models[name] = &cfg
		default:
			return softdelete.ModelConfig{}, nil, fmt.Errorf("soft_delete.models.%s: expected bool or policy object", name)
		}
	}
	return defaults, models, nil
}

func (pc ModelPolicyConfig) build() (softdelete.ModelConfig, error) {
	createValue, err := pc.buildCreateValue()
	if err != nil {
		return softdelete.ModelConfig{}, err
	}
	return softdelete.ModelConfig{
		Field:                         pc.Field,
		CreateValue:                   createValue,
		AllowToOneUpdates:             pc.AllowToOneUpdates,
		AllowCompoundUniqueIndexWhere: pc.AllowCompoundUniqueIndexWhere,
		QueryOption:                   softdelete.QueryOption(pc.QueryOption),
		NestModels:                    pc.NestModels,
	}, nil
}

func (pc ModelPolicyConfig) buildCreateValue() (func(bool) any, error) {
	switch pc.ValueScheme {
	case "", "boolean":
		return func(deleted bool) any { return deleted }, nil
	case "timestamp":
		return func(deleted bool) any {
			if deleted {
				return time.Now().UTC()
			}
			return nil
		}, nil
	case "expression":
		deleted, err := compileValueExpr(pc.DeletedValue)
		if err != nil {
			return nil, fmt.Errorf("deleted_value: %w", err)
		}
		notDeleted, err := compileValueExpr(pc.NotDeletedValue)
		if err != nil {
			return nil, fmt.Errorf("not_deleted_value: %w", err)
		}
		return func(d bool) any {
			prog := notDeleted
			if d {
				prog = deleted
			}
			out, err := expr.Run(prog, valueExprEnv())
			if err != nil {
				// compile already vetted the program; a runtime failure
				// here means a broken env function, not caller input
				return nil
			}
			return out
		}, nil
	default:
		return nil, fmt.Errorf("unknown value_scheme %q", pc.ValueScheme)
	}
}

func compileValueExpr(src string) (*vm.Program, error) {
	if src == "" {
		return nil, fmt.Errorf("expression value scheme requires both value expressions")
	}
	prog, err := expr.Compile(src, expr.Env(valueExprEnv()))
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

func valueExprEnv() map[string]any {
	return map[string]any{
		"now": func() time.Time { return time.Now().UTC() },
	}
}

// MarkerFor reports the marker column a model's table needs: the field name
// and value scheme of its policy, or enabled=false when the model is not
// opted into soft delete.
func (c SoftDeleteConfig) MarkerFor(model string) (field, scheme string, enabled bool) {
	raw, listed := c.Models[model]
	if !listed {
		return "", "", false
	}
	pc := c.Default
	switch v := raw.(type) {
	case bool:
		if !v {
			return "", "", false
		}
	case map[string]any:
		var override ModelPolicyConfig
		if err := decodePolicy(v, &override); err != nil {
			return "", "", false
		}
		pc = override
	default:
		return "", "", false
	}
	scheme = pc.ValueScheme
	if scheme == "" {
		scheme = "boolean"
	}
	return pc.Field, scheme, pc.Field != ""
}

// decodePolicy maps a raw config object onto a ModelPolicyConfig. Keys
// mirror the mapstructure tags; unknown keys are rejected so typos in
// policy blocks fail at boot instead of silently using defaults.
func decodePolicy(raw map[string]any, pc *ModelPolicyConfig) error {
	for key, val := range raw {
		switch key {
		case "field":
			pc.Field, _ = val.(string)
		case "value_scheme":
			pc.ValueScheme, _ = val.(string)
		case "deleted_value":
			pc.DeletedValue, _ = val.(string)
		case "not_deleted_value":
			pc.NotDeletedValue, _ = val.(string)
		case "query_option":
			pc.QueryOption, _ = val.(string)
		case "allow_to_one_updates":
			pc.AllowToOneUpdates, _ = val.(bool)
		case "allow_compound_unique_index_where":
			pc.AllowCompoundUniqueIndexWhere, _ = val.(bool)
		case "nest_models":
			if m, ok := val.(map[string]any); ok {
				pc.NestModels = make(map[string]bool, len(m))
				for k, v := range m {
					b, _ := v.(bool)
					pc.NestModels[k] = b
				}
			}
		default:
			return fmt.Errorf("unknown policy key %q", key)
		}
	}
	return nil
}
