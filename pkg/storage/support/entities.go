package support

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/datavirt/datavirt/pkg/entity"
	"github.com/datavirt/datavirt/pkg/storage"
)

// EntityLoader reads the entity identifiers of a table from its backend.
type EntityLoader func(ctx context.Context) ([]string, error)

// EntityProvider caches the entity set of a table. The set is loaded on the first
// access (or the first Refresh) and only reloaded by Refresh.
type EntityProvider struct {
	entityType string
	load       EntityLoader

	sf       singleflight.Group
	mu       sync.RWMutex
	loaded   bool
	entities *entity.RedBlackTreeSet // GUARDED_BY(mu)
}

var _ storage.VariableEntityProvider = (*EntityProvider)(nil)

// NewEntityProvider returns a provider of entities of type entityType read through load.
// A nil load yields a provider whose set only changes through Add and Remove.
func NewEntityProvider(entityType string, load EntityLoader) *EntityProvider {
	return &EntityProvider{
		entityType: entityType,
		load:       load,
		entities:   entity.NewSortedSet(),
	}
}

func (p *EntityProvider) EntityType() string {
	return p.entityType
}

func (p *EntityProvider) IsForEntityType(entityType string) bool {
	return p.entityType == entityType
}

// VariableEntities returns the cached entities in identifier order.
func (p *EntityProvider) VariableEntities(ctx context.Context) ([]entity.Entity, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return nil, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entities.Values(), nil
}

// Contains reports whether e is in the cached set.
func (p *EntityProvider) Contains(ctx context.Context, e entity.Entity) (bool, error) {
	if e.Type != p.entityType {
		return false, nil
	}
	if err := p.ensureLoaded(ctx); err != nil {
		return false, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entities.Exists(e), nil
}

// Size is the number of cached entities.
func (p *EntityProvider) Size(ctx context.Context) (int, error) {
	if err := p.ensureLoaded(ctx); err != nil {
		return 0, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.entities.Size(), nil
}

// Refresh reloads the entity set from the backend.
func (p *EntityProvider) Refresh(ctx context.Context) error {
	if p.load == nil {
		p.mu.Lock()
		p.loaded = true
		p.mu.Unlock()
		return nil
	}

	_, err, _ := p.sf.Do("refresh", func() (interface{}, error) {
		ids, err := p.load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load entities of type '%s': %w", p.entityType, err)
		}
		set := entity.NewSortedSet(entity.Of(p.entityType, ids...)...)

		p.mu.Lock()
		p.entities = set
		p.loaded = true
		p.mu.Unlock()
		return nil, nil
	})
	return err
}

// Add makes entities visible without reloading the set.
func (p *EntityProvider) Add(entities ...entity.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities.Add(entities...)
}

// Remove drops e from the cached set.
func (p *EntityProvider) Remove(e entity.Entity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entities.Remove(e)
}

func (p *EntityProvider) ensureLoaded(ctx context.Context) error {
	p.mu.RLock()
	loaded := p.loaded
	p.mu.RUnlock()
	if loaded {
		return nil
	}
	return p.Refresh(ctx)
}
