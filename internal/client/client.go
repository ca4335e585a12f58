// Package client executes prisma-style operations against Postgres through
// the soft-delete engine: every root call is intercepted, every nested
// operation discovered in the argument tree is dispatched through the same
// rewrite rules, and the rewritten tree is compiled to SQL.
package client

import (
	"context"
	"fmt"

	"paranoid-backend/internal/metadata"
	"paranoid-backend/internal/softdelete"
	"paranoid-backend/internal/store"
)

type Client struct {
	engine   *softdelete.Engine
	store    *store.Store
	registry *metadata.Registry
}

func New(engine *softdelete.Engine, st *store.Store) *Client {
	return &Client{engine: engine, store: st, registry: engine.Registry()}
}

// Model returns a handle for operations against one model. Handles are
// immutable; the visibility-mode methods below derive new handles, so a
// mode never leaks into other callers or later calls.
func (c *Client) Model(name string) *ModelClient {
	return &ModelClient{client: c, name: name, view: softdelete.View{Model: name}}
}

type ModelClient struct {
	client *Client
	name   string
	view   softdelete.View
}

// WithTrashed derives a handle whose reads see soft-deleted rows too.
func (m *ModelClient) WithTrashed() *ModelClient {
	next := *m
	next.view.QueryOption = softdelete.QueryAll
	return &next
}

// OnlyTrashed derives a handle whose reads see only soft-deleted rows.
func (m *ModelClient) OnlyTrashed() *ModelClient {
	next := *m
	next.view.QueryOption = softdelete.QueryOnly
	return &next
}

// WithTrashedRelated derives a handle whose includes keep (true) or filter
// (false) soft-deleted rows of the named relations. Keys that are not
// relation fields of this model are ignored.
func (m *ModelClient) WithTrashedRelated(relations map[string]bool) *ModelClient {
	next := *m
	merged := make(map[string]bool, len(m.view.NestModels)+len(relations))
	for k, v := range m.view.NestModels {
		merged[k] = v
	}
	for name, keep := range relations {
		if m.client.registry.Relation(m.name, name) == nil {
			continue
		}
		merged[name] = keep
	}
	next.view.NestModels = merged
	return &next
}

// ForceDelete physically deletes the rows matching where, bypassing the
// soft-delete rewrite for exactly this call.
func (m *ModelClient) ForceDelete(ctx context.Context, where map[string]any) (int64, error) {
	next := *m
	next.view.ForceDelete = true
	return next.DeleteMany(ctx, map[string]any{"where": where})
}

func (m *ModelClient) FindMany(ctx context.Context, args map[string]any) ([]map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpFindMany, args)
	if err != nil {
		return nil, err
	}
	return asRows(result)
}

func (m *ModelClient) FindFirst(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpFindFirst, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) FindFirstOrThrow(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpFindFirstOrThrow, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) FindUnique(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpFindUnique, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) FindUniqueOrThrow(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpFindUniqueOrThrow, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) Create(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpCreate, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) Update(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpUpdate, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) UpdateMany(ctx context.Context, args map[string]any) (int64, error) {
	result, err := m.do(ctx, softdelete.OpUpdateMany, args)
	if err != nil {
		return 0, err
	}
	return asCount(result)
}

func (m *ModelClient) Upsert(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpUpsert, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

// Delete soft-deletes the matching row and returns it; under ForceDelete or
// for models without a policy it deletes physically.
func (m *ModelClient) Delete(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpDelete, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) DeleteMany(ctx context.Context, args map[string]any) (int64, error) {
	result, err := m.do(ctx, softdelete.OpDeleteMany, args)
	if err != nil {
		return 0, err
	}
	return asCount(result)
}

func (m *ModelClient) Count(ctx context.Context, args map[string]any) (int64, error) {
	result, err := m.do(ctx, softdelete.OpCount, args)
	if err != nil {
		return 0, err
	}
	return asCount(result)
}

func (m *ModelClient) Aggregate(ctx context.Context, args map[string]any) (map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpAggregate, args)
	if err != nil {
		return nil, err
	}
	return asRecord(result)
}

func (m *ModelClient) GroupBy(ctx context.Context, args map[string]any) ([]map[string]any, error) {
	result, err := m.do(ctx, softdelete.OpGroupBy, args)
	if err != nil {
		return nil, err
	}
	return asRows(result)
}

// do routes one root operation through the interception protocol: rewrite,
// walk the argument tree for nested operations, execute, restore.
func (m *ModelClient) do(ctx context.Context, op softdelete.Operation, args map[string]any) (any, error) {
	params := softdelete.OperationParams{Model: m.name, Operation: op}
	if args != nil {
		params.Args = args
	}
	view := m.view
	return m.client.engine.Intercept(ctx, params, view, func(ctx context.Context, p softdelete.OperationParams) (any, error) {
		return m.client.run(ctx, p, view)
	})
}

func asRows(result any) ([]map[string]any, error) {
	switch v := result.(type) {
	case nil:
		return []map[string]any{}, nil
	case []map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected result shape %T", result)
	}
}

func asRecord(result any) (map[string]any, error) {
	switch v := result.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	default:
		return nil, fmt.Errorf("unexpected result shape %T", result)
	}
}

func asCount(result any) (int64, error) {
	switch v := result.(type) {
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("unexpected result shape %T", result)
	}
}
