package softdelete

import (
	"context"

	"paranoid-backend/internal/metadata"
)

// Engine holds the resolved per-model policies and the metadata the rules
// consult. It is immutable after New; per-call visibility travels in a View.
type Engine struct {
	registry *metadata.Registry
	configs  map[string]ModelConfig
}

// New resolves the soft-delete policies and returns an engine. It fails
// with a *ConfigError when the default policy (or a full per-model
// override) is missing the marker field or the createValue function.
func New(registry *metadata.Registry, defaults ModelConfig, models map[string]*ModelConfig) (*Engine, error) {
	configs, err := resolveConfigs(defaults, models)
	if err != nil {
		return nil, err
	}
	return &Engine{registry: registry, configs: configs}, nil
}

// Enabled reports whether the model is opted into soft delete.
func (e *Engine) Enabled(model string) bool {
	_, ok := e.configs[model]
	return ok
}

// Registry exposes the metadata the engine was built with.
func (e *Engine) Registry() *metadata.Registry {
	return e.registry
}

// ExecuteFunc runs a rewritten root operation: for the real client this
// walks the argument tree for nested operations and then hits storage.
type ExecuteFunc func(ctx context.Context, params OperationParams) (any, error)

// Intercept is the root interception protocol: rewrite the operation,
// execute it, restore the result. Operations on models without a policy
// (or with no model at all) execute unmodified. A rule error propagates
// before anything executes.
func (e *Engine) Intercept(ctx context.Context, params OperationParams, view View, exec ExecuteFunc) (any, error) {
	res, err := e.Rewrite(params, view)
	if err != nil {
		return nil, err
	}
	result, err := exec(ctx, res.Params)
	if err != nil {
		return nil, err
	}
	return e.Restore(result, res.Params, res.Ctx), nil
}

// Rewrite applies the rewrite rule for the node's (model, operation) pair.
// The nested-operation walker calls this once per node it discovers; root
// dispatch goes through Intercept. Kinds without a rule - and models
// without a policy - pass through unchanged: that fallback is the explicit
// contract, not an accident.
func (e *Engine) Rewrite(params OperationParams, view View) (RewriteResult, error) {
	if params.Model == "" {
		return RewriteResult{Params: params}, nil
	}
	p, ok := e.policyFor(params.Model, view)
	if !ok {
		return RewriteResult{Params: params}, nil
	}

	switch params.Operation {
	case OpDelete:
		return rewriteDelete(p, params)
	case OpDeleteMany:
		return rewriteDeleteMany(p, params)
	case OpUpdate:
		return rewriteUpdate(p, params)
	case OpUpdateMany:
		return rewriteUpdateMany(p, params)
	case OpUpsert:
		return rewriteUpsert(p, params)
	case OpFindUnique, OpFindUniqueOrThrow:
		return e.rewriteFindUnique(p, params)
	case OpFindFirst, OpFindFirstOrThrow, OpFindMany:
		return e.rewriteFind(p, params)
	case OpCount, OpAggregate, OpGroupBy:
		return rewriteAggregate(p, params)
	case OpWhere:
		return rewriteNestedWhere(p, params)
	case OpSelect:
		return rewriteNestedSelect(p, params)
	default:
		// create and any future kinds pass through untouched
		return RewriteResult{Params: params}, nil
	}
}
