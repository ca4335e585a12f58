package metadata

import "sync"

// modelIndex holds the per-model lookup sets the query engine consults on
// every dispatch. Computed once per Load so rewrite rules never walk field
// slices at request time.
type modelIndex struct {
	idAndUnique    map[string]struct{}
	compoundUnique map[string]struct{}
}

type Registry struct {
	mu      sync.RWMutex
	models  map[string]*Model
	indexes map[string]*modelIndex
}

func NewRegistry() *Registry {
	return &Registry{
		models:  make(map[string]*Model),
		indexes: make(map[string]*modelIndex),
	}
}

// GetModel returns the model with the given name, or nil.
func (r *Registry) GetModel(name string) *Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[name]
}

// AllModels returns all registered models.
func (r *Registry) AllModels() []*Model {
	r.mu.RLock()
	defer r.mu.RUnlock()
	models := make([]*Model, 0, len(r.models))
	for _, m := range r.models {
		models = append(models, m)
	}
	return models
}

// IDAndUniqueFields returns the set of field names that are the primary key
// or carry a single-field unique constraint on the given model.
func (r *Registry) IDAndUniqueFields(model string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexes[model]; idx != nil {
		return idx.idAndUnique
	}
	return nil
}

// CompoundUniqueIndexFields returns the set of field names that participate
// in any compound unique index on the given model.
func (r *Registry) CompoundUniqueIndexFields(model string) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if idx := r.indexes[model]; idx != nil {
		return idx.compoundUnique
	}
	return nil
}

// RelationFields returns the relation fields of the given model.
func (r *Registry) RelationFields(model string) []Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.models[model]; m != nil {
		return m.Relations
	}
	return nil
}

// Relation resolves a relation field on a model, or nil.
func (r *Registry) Relation(model, field string) *Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m := r.models[model]; m != nil {
		return m.GetRelation(field)
	}
	return nil
}

// Load replaces all models in the registry and rebuilds the lookup indexes.
// Called during startup and after admin mutations.
func (r *Registry) Load(models []*Model) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.models = make(map[string]*Model, len(models))
	r.indexes = make(map[string]*modelIndex, len(models))
	for _, m := range models {
		r.models[m.Name] = m
		r.indexes[m.Name] = buildIndex(m)
	}
}

func buildIndex(m *Model) *modelIndex {
	idx := &modelIndex{
		idAndUnique:    make(map[string]struct{}),
		compoundUnique: make(map[string]struct{}),
	}
	idx.idAndUnique[m.PrimaryKey.Field] = struct{}{}
	for _, f := range m.Fields {
		if f.Unique {
			idx.idAndUnique[f.Name] = struct{}{}
		}
	}
	for _, compound := range m.CompoundUniqueIndexes {
		for _, f := range compound {
			idx.compoundUnique[f] = struct{}{}
		}
	}
	return idx
}
