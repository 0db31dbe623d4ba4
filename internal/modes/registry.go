package modes

import (
	"searchbot/internal/domain"
)

// Registry maps every mode to a producer. It is built once at startup and
// read concurrently afterwards.
type Registry struct {
	defs      []Definition
	producers map[domain.ModeKey]domain.Producer
}

// NewRegistry builds one producer per definition.
func NewRegistry(defs []Definition, build func(Definition) domain.Producer) *Registry {
	r := &Registry{
		defs:      defs,
		producers: make(map[domain.ModeKey]domain.Producer, len(defs)),
	}
	for _, d := range defs {
		if p := build(d); p != nil {
			r.producers[d.Key] = p
		}
	}
	return r
}

// Lookup returns the producer registered for key.
func (r *Registry) Lookup(key domain.ModeKey) (domain.Producer, bool) {
	p, ok := r.producers[key]
	return p, ok
}

// Definitions returns the definitions in display order.
func (r *Registry) Definitions() []Definition {
	return r.defs
}
